// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/tracker-gateway/broker"
	"github.com/bureau-foundation/tracker-gateway/datalog"
	"github.com/bureau-foundation/tracker-gateway/gateway"
	"github.com/bureau-foundation/tracker-gateway/lib/config"
	"github.com/bureau-foundation/tracker-gateway/lib/process"
	"github.com/bureau-foundation/tracker-gateway/lib/version"
	"github.com/bureau-foundation/tracker-gateway/metrics"
)

// Exit statuses.
const (
	exitUsage    = 1
	exitConfig   = 2
	exitProtocol = 3
	exitTLS      = 4
	exitListen   = 5
	exitDataLog  = 6
	exitReplay   = 7
)

// replayConnectTimeout bounds how long --replay waits for the broker.
const replayConnectTimeout = 30 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

type flags struct {
	configPath  string
	listen      string
	replayPath  string
	verbose     bool
	showVersion bool
}

func parseFlags(args []string) (flags, error) {
	var parsed flags
	flagSet := pflag.NewFlagSet("tracker-gateway", pflag.ContinueOnError)
	flagSet.StringVarP(&parsed.configPath, "config", "c", "", "path to config file (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&parsed.listen, "listen", "", "override the tracker listen address")
	flagSet.StringVar(&parsed.replayPath, "replay", "", "publish the records in this data log file and exit")
	flagSet.BoolVarP(&parsed.verbose, "verbose", "v", false, "enable debug logging")
	flagSet.BoolVar(&parsed.showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		return flags{}, err
	}
	if flagSet.NArg() > 0 {
		return flags{}, fmt.Errorf("unexpected arguments: %v", flagSet.Args())
	}
	return parsed, nil
}

func loadConfig(parsed flags) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if parsed.configPath != "" {
		cfg, err = config.LoadFile(parsed.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if parsed.listen != "" {
		cfg.Listen = parsed.listen
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(args []string) error {
	parsed, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return process.WithExitCode(exitUsage, err)
	}
	if parsed.showVersion {
		fmt.Printf("tracker-gateway %s\n", version.Full())
		return nil
	}

	cfg, err := loadConfig(parsed)
	if err != nil {
		return process.WithExitCode(exitConfig, err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return process.WithExitCode(exitConfig, err)
	}

	logger, closeLog, err := newLogger(cfg.Paths.LogFile, parsed.verbose)
	if err != nil {
		return process.WithExitCode(exitConfig, err)
	}
	defer closeLog()
	slog.SetDefault(logger)

	logger.Info("starting tracker-gateway",
		"version", version.Info(),
		"environment", cfg.Environment,
	)

	clientOptions, err := brokerOptions(cfg, logger)
	if err != nil {
		return err
	}
	counters := metrics.NewCounters(cfg.Metrics.Namespace)

	// The broker delivers messages into the gateway's queue; the gateway
	// publishes through the broker. Nothing arrives before Connect.
	var gw *gateway.Gateway
	clientOptions.OnMessage = func(topic string, payload []byte) {
		gw.HandleMessage(topic, payload)
	}

	if parsed.replayPath != "" {
		// Replay only publishes; no loop is running to take commands.
		clientOptions.Subscriptions = nil
		client := broker.New(clientOptions)
		gw, err = gateway.New(gatewayOptions(cfg, client, counters, nil, logger))
		if err != nil {
			return process.WithExitCode(exitConfig, err)
		}
		return replay(gw, client, parsed.replayPath, logger)
	}

	client := broker.New(clientOptions)

	compression, err := datalog.ParseCompression(cfg.DataLog.Compression)
	if err != nil {
		return process.WithExitCode(exitConfig, err)
	}
	dataLog, err := datalog.Open(datalog.Options{
		Path:        cfg.Paths.DataLog,
		RotateBytes: cfg.DataLog.RotateBytes,
		Compression: compression,
		RecordsDir:  cfg.Paths.RecordsDir,
		Logger:      logger,
	})
	if err != nil {
		return process.WithExitCode(exitDataLog, err)
	}
	defer dataLog.Close()

	gw, err = gateway.New(gatewayOptions(cfg, client, counters, dataLog, logger))
	if err != nil {
		return process.WithExitCode(exitConfig, err)
	}

	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return process.WithExitCode(exitListen, fmt.Errorf("listening for trackers: %w", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Listen != "" {
		metricsListener, err := net.Listen("tcp", cfg.Metrics.Listen)
		if err != nil {
			listener.Close()
			return process.WithExitCode(exitListen, fmt.Errorf("listening for metrics: %w", err))
		}
		registerRuntimeCollectors(counters, cfg.Metrics.Namespace)
		go func() {
			if err := metrics.Serve(ctx, metricsListener, counters, logger); err != nil {
				logger.Error("metrics endpoint stopped", "error", err)
			}
		}()
	}

	client.Connect()
	defer client.Disconnect(250 * time.Millisecond)

	if err := gw.Run(ctx, listener); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// brokerOptions translates the broker configuration, failing with the
// protocol or TLS exit status.
func brokerOptions(cfg *config.Config, logger *slog.Logger) (broker.Options, error) {
	protocol, err := broker.ParseProtocolVersion(cfg.Broker.ProtocolVersion)
	if err != nil {
		return broker.Options{}, process.WithExitCode(exitProtocol, err)
	}

	options := broker.Options{
		Host:            cfg.Broker.Host,
		Port:            cfg.Broker.Port,
		ClientID:        cfg.Broker.ClientID,
		Username:        cfg.Broker.Username,
		Password:        cfg.Broker.Password,
		ProtocolVersion: protocol,
		KeepAlive:       cfg.Broker.KeepAlive,
		CleanSession:    cfg.Broker.CleanSession,
		Subscriptions:   cfg.Subscriptions,
		Logger:          logger,
	}
	if tls := cfg.Broker.TLS; tls.Enabled() {
		options.TLS, err = broker.NewTLSConfig(tls.CAFile, tls.CAPath, tls.CertFile, tls.KeyFile)
		if err != nil {
			return broker.Options{}, process.WithExitCode(exitTLS, fmt.Errorf("broker TLS: %w", err))
		}
	}
	return options, nil
}

// registerRuntimeCollectors adds Go runtime and process metrics to the
// endpoint alongside the gateway counters.
func registerRuntimeCollectors(counters *metrics.Counters, namespace string) {
	counters.Registry().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}),
	)
}

func gatewayOptions(cfg *config.Config, publisher gateway.Publisher, counters *metrics.Counters, dataLog *datalog.Logger, logger *slog.Logger) gateway.Options {
	return gateway.Options{
		Publisher:    publisher,
		DataLog:      dataLog,
		Metrics:      counters,
		RawTopic:     cfg.Topics.Raw,
		ReportTopic:  cfg.Topics.Report,
		OfflineTopic: cfg.Topics.Offline,
		Placeholder:  cfg.Gateway.Placeholder,
		IgnoreDevice: cfg.Gateway.IgnoreDevice,
		DumpDir:      cfg.Paths.DumpDir,
		TickInterval: cfg.Gateway.TickInterval,
		IdleTimeout:  cfg.Gateway.IdleTimeout,
		WriteTimeout: cfg.Gateway.WriteTimeout,
		DebugHex:     cfg.Gateway.DebugHex,
		Logger:       logger,
	}
}

func replay(gw *gateway.Gateway, client *broker.Client, path string, logger *slog.Logger) error {
	input, err := datalog.OpenArchive(path)
	if err != nil {
		return process.WithExitCode(exitReplay, fmt.Errorf("opening replay input: %w", err))
	}
	defer input.Close()

	if err := client.ConnectWait(replayConnectTimeout); err != nil {
		return process.WithExitCode(exitReplay, err)
	}
	defer client.Disconnect(time.Second)

	count, err := gw.Replay(input)
	if err != nil {
		return process.WithExitCode(exitReplay, err)
	}
	logger.Info("replayed data log", "path", path, "records", count)
	return nil
}
