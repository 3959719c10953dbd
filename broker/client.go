// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrInvalidProtocol is returned by ParseProtocolVersion for names other
// than "mqttv31" and "mqttv311".
var ErrInvalidProtocol = errors.New("invalid MQTT protocol version")

// ParseProtocolVersion maps a configuration name to the MQTT protocol
// level paho expects.
func ParseProtocolVersion(name string) (uint, error) {
	switch name {
	case "mqttv31":
		return 3, nil
	case "mqttv311":
		return 4, nil
	default:
		return 0, fmt.Errorf("%w: %q (want mqttv31 or mqttv311)", ErrInvalidProtocol, name)
	}
}

// NewTLSConfig builds a client TLS configuration that verifies the
// broker against the CA certificates in caFile and every PEM file in
// caPath. certFile and keyFile, when both set, supply a client
// certificate.
func NewTLSConfig(caFile, caPath, certFile, keyFile string) (*tls.Config, error) {
	pool := x509.NewCertPool()
	loaded := 0

	addPEM := func(path string) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading CA certificate: %w", err)
		}
		if !pool.AppendCertsFromPEM(data) {
			return fmt.Errorf("no certificates found in %s", path)
		}
		loaded++
		return nil
	}

	if caFile != "" {
		if err := addPEM(caFile); err != nil {
			return nil, err
		}
	}
	if caPath != "" {
		entries, err := os.ReadDir(caPath)
		if err != nil {
			return nil, fmt.Errorf("reading CA directory: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			// Hash-named symlinks created by c_rehash point at the same
			// files; duplicates in the pool are harmless.
			path := filepath.Join(caPath, entry.Name())
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			if pool.AppendCertsFromPEM(data) {
				loaded++
			}
		}
	}
	if loaded == 0 {
		return nil, fmt.Errorf("no CA certificates loaded (ca_file %q, ca_path %q)", caFile, caPath)
	}

	config := &tls.Config{
		RootCAs:    pool,
		MinVersion: tls.VersionTLS12,
	}
	if certFile != "" || keyFile != "" {
		certificate, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		config.Certificates = []tls.Certificate{certificate}
	}
	return config, nil
}

// Options configures a Client.
type Options struct {
	Host     string
	Port     int
	ClientID string
	Username string
	Password string

	// ProtocolVersion is the paho protocol level from
	// ParseProtocolVersion.
	ProtocolVersion uint

	KeepAlive    time.Duration
	CleanSession bool

	// TLS, when non-nil, connects over ssl:// with this configuration.
	TLS *tls.Config

	// Subscriptions are (re)subscribed at QoS 0 on every connect.
	Subscriptions []string

	// OnMessage receives every inbound message. It runs on a paho
	// goroutine and must not block for long.
	OnMessage func(topic string, payload []byte)

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client is the gateway's MQTT connection. Publishing is asynchronous:
// Publish returns immediately and delivery failures are logged.
type Client struct {
	client        mqtt.Client
	subscriptions []string
	onMessage     func(topic string, payload []byte)
	logger        *slog.Logger
}

// New creates a client. It does not connect; call Connect.
func New(options Options) *Client {
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	c := &Client{
		subscriptions: options.Subscriptions,
		onMessage:     options.OnMessage,
		logger:        options.Logger,
	}

	scheme := "tcp"
	if options.TLS != nil {
		scheme = "ssl"
	}
	address := scheme + "://" + net.JoinHostPort(options.Host, strconv.Itoa(options.Port))

	clientOptions := mqtt.NewClientOptions().
		AddBroker(address).
		SetClientID(options.ClientID).
		SetUsername(options.Username).
		SetPassword(options.Password).
		SetProtocolVersion(options.ProtocolVersion).
		SetCleanSession(options.CleanSession).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(client mqtt.Client) {
			c.logger.Info("connected to MQTT broker", "broker", address)
			c.subscribeAll(client)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			c.logger.Warn("MQTT connection lost", "broker", address, "error", err)
		}).
		SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
			c.logger.Info("reconnecting to MQTT broker", "broker", address)
		})
	if options.KeepAlive > 0 {
		clientOptions.SetKeepAlive(options.KeepAlive)
	}
	if options.TLS != nil {
		clientOptions.SetTLSConfig(options.TLS)
	}

	c.client = mqtt.NewClient(clientOptions)
	return c
}

// Connect starts connecting in the background. With connect retry
// enabled the returned token only completes once a connection has been
// established, so Connect never blocks startup on an unreachable
// broker.
func (c *Client) Connect() {
	token := c.client.Connect()
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			c.logger.Error("MQTT connect failed", "error", err)
		}
	}()
}

// ConnectWait connects and waits up to timeout for the connection to be
// established. It is for one-shot uses such as replay, where publishing
// before the broker is reachable would lose messages.
func (c *Client) ConnectWait(timeout time.Duration) error {
	token := c.client.Connect()
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("broker not reachable within %v", timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	return nil
}

// subscribeAll subscribes every configured pattern. Failures are logged
// and do not prevent the remaining subscriptions.
func (c *Client) subscribeAll(client mqtt.Client) {
	for _, pattern := range c.subscriptions {
		token := client.Subscribe(pattern, 0, c.handleMessage)
		go func() {
			<-token.Done()
			if err := token.Error(); err != nil {
				c.logger.Error("MQTT subscribe failed", "topic", pattern, "error", err)
				return
			}
			c.logger.Info("subscribed", "topic", pattern)
		}()
	}
}

func (c *Client) handleMessage(_ mqtt.Client, message mqtt.Message) {
	if c.onMessage == nil {
		return
	}
	payload := make([]byte, len(message.Payload()))
	copy(payload, message.Payload())
	c.onMessage(message.Topic(), payload)
}

// Publish sends payload to topic at QoS 0, not retained.
func (c *Client) Publish(topic string, payload []byte) {
	token := c.client.Publish(topic, 0, false, payload)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			c.logger.Warn("MQTT publish failed", "topic", topic, "error", err)
		}
	}()
}

// Disconnect closes the broker connection, waiting up to quiesce for
// in-flight work.
func (c *Client) Disconnect(quiesce time.Duration) {
	c.client.Disconnect(uint(quiesce / time.Millisecond))
}
