// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/tracker-gateway/broker"
	"github.com/bureau-foundation/tracker-gateway/datalog"
	"github.com/bureau-foundation/tracker-gateway/lib/clock"
	"github.com/bureau-foundation/tracker-gateway/lib/netutil"
	"github.com/bureau-foundation/tracker-gateway/metrics"
	"github.com/bureau-foundation/tracker-gateway/registry"
	"github.com/bureau-foundation/tracker-gateway/report"
)

// Defaults applied by New to zero-valued Options fields.
const (
	DefaultTickInterval = time.Second
	DefaultIdleTimeout  = 20 * time.Minute
	DefaultWriteTimeout = 10 * time.Second
	DefaultPlaceholder  = "unknown"
)

// eventQueueSize bounds the events waiting for the loop. Readers block
// when it is full, which applies backpressure to the sockets.
const eventQueueSize = 256

// outboundQueueSize bounds the payloads waiting for one device's
// writer. Writes beyond it are dropped.
const outboundQueueSize = 16

// Publisher sends a message to the broker. Implementations must not
// block the caller on network I/O.
type Publisher interface {
	Publish(topic string, payload []byte)
}

// Snapshotter is implemented by metrics sinks whose counters can be
// read back, for the stats and dump admin commands.
type Snapshotter interface {
	Snapshot() (map[string]uint64, error)
}

// Options configures a Gateway.
type Options struct {
	// Publisher receives raw backups, offline notifications and admin
	// replies. Required.
	Publisher Publisher

	// Decoder interprets records. Nil means report.FieldDecoder.
	Decoder report.Decoder

	// DataLog receives every record. Nil disables raw logging.
	DataLog *datalog.Logger

	// Metrics receives counter increments. Nil disables counting.
	Metrics metrics.Sink

	// RawTopic is the raw-backup topic prefix.
	RawTopic string

	// ReportTopic receives admin replies. Empty means log only.
	ReportTopic string

	// OfflineTopic is the pseudo offline notification prefix. Empty
	// disables the notifications.
	OfflineTopic string

	// Placeholder stands in for the device id in the raw-backup topic
	// when a record could not be attributed.
	Placeholder string

	// IgnoreDevice never produces an offline notification.
	IgnoreDevice string

	// DumpDir receives the counters dump. Empty disables the dump
	// command.
	DumpDir string

	TickInterval time.Duration
	IdleTimeout  time.Duration
	WriteTimeout time.Duration

	// DebugHex logs a hex dump of every received chunk at debug level.
	DebugHex bool

	Clock  clock.Clock
	Logger *slog.Logger
}

// Gateway bridges tracker connections to the broker. All of its state
// is owned by the goroutine running Run (or calling Dispatch).
type Gateway struct {
	publisher Publisher
	decoder   report.Decoder
	dataLog   *datalog.Logger
	metrics   metrics.Sink
	clock     clock.Clock
	logger    *slog.Logger

	rawTopic     string
	reportTopic  string
	offlineTopic string
	placeholder  string
	ignoreDevice string
	dumpDir      string
	tickInterval time.Duration
	idleTimeout  time.Duration
	writeTimeout time.Duration
	debugHex     bool

	registry *registry.Registry

	events     chan Event
	done       chan struct{}
	nextHandle atomic.Uint64

	// writers tracks the per-connection writer goroutines.
	writers sync.WaitGroup
}

// New creates a gateway. It does not start accepting connections; call
// Run.
func New(options Options) (*Gateway, error) {
	if options.Publisher == nil {
		return nil, fmt.Errorf("gateway: publisher is required")
	}
	if options.RawTopic == "" {
		return nil, fmt.Errorf("gateway: raw topic is required")
	}
	if options.Decoder == nil {
		options.Decoder = report.FieldDecoder{}
	}
	if options.Placeholder == "" {
		options.Placeholder = DefaultPlaceholder
	}
	if options.TickInterval <= 0 {
		options.TickInterval = DefaultTickInterval
	}
	if options.IdleTimeout <= 0 {
		options.IdleTimeout = DefaultIdleTimeout
	}
	if options.WriteTimeout <= 0 {
		options.WriteTimeout = DefaultWriteTimeout
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	return &Gateway{
		publisher:    options.Publisher,
		decoder:      options.Decoder,
		dataLog:      options.DataLog,
		metrics:      options.Metrics,
		clock:        options.Clock,
		logger:       options.Logger,
		rawTopic:     options.RawTopic,
		reportTopic:  options.ReportTopic,
		offlineTopic: options.OfflineTopic,
		placeholder:  options.Placeholder,
		ignoreDevice: options.IgnoreDevice,
		dumpDir:      options.DumpDir,
		tickInterval: options.TickInterval,
		idleTimeout:  options.IdleTimeout,
		writeTimeout: options.WriteTimeout,
		debugHex:     options.DebugHex,
		registry:     registry.New(),
		events:       make(chan Event, eventQueueSize),
		done:         make(chan struct{}),
	}, nil
}

// Post queues event for the loop. It is safe to call from any
// goroutine, and is how broker callbacks hand messages to the gateway.
// It returns false once Run has returned.
func (g *Gateway) Post(event Event) bool {
	select {
	case g.events <- event:
		return true
	case <-g.done:
		return false
	}
}

// HandleMessage posts an inbound broker message. Its signature matches
// broker.Options.OnMessage.
func (g *Gateway) HandleMessage(topic string, payload []byte) {
	g.Post(MessageEvent{Topic: topic, Payload: payload})
}

func (g *Gateway) handleAccept(event AcceptEvent) {
	connection := g.registry.Create(event.Handle)
	connection.PeerAddr = event.PeerAddr
	connection.Transport = event.Transport
	connection.LastActivity = g.clock.Now()
	connection.Closing = false
	if connection.Outbound == nil && event.Transport != nil {
		queue := make(chan []byte, outboundQueueSize)
		connection.Outbound = queue
		g.writers.Add(1)
		go func() {
			defer g.writers.Done()
			g.writeLoop(event.Handle, event.Transport, queue)
		}()
	}

	g.logger.Info("connection accepted", "handle", event.Handle, "peer", event.PeerAddr)
	metrics.Inc(g.metrics, metrics.ConnectionNew)
}

func (g *Gateway) handleReceive(event ReceiveEvent) {
	connection, ok := g.registry.FindByHandle(event.Handle)
	if !ok {
		g.logger.Warn("data for unknown connection dropped", "handle", event.Handle, "bytes", len(event.Data))
		return
	}
	if g.debugHex {
		g.logger.Debug("received",
			"handle", event.Handle,
			"peer", connection.PeerAddr,
			"hex", hex.Dump(event.Data),
		)
	}
	connection.Buffer.Append(event.Data)
	connection.LastActivity = g.clock.Now()
}

// handleClose runs when a connection has gone away, whichever side
// closed it.
func (g *Gateway) handleClose(handle uint64, err error) {
	connection, ok := g.registry.FindByHandle(handle)
	if !ok {
		g.logger.Debug("close for unknown connection", "handle", handle)
		return
	}
	if !connection.Closing && connection.Transport != nil {
		connection.Closing = true
		connection.Transport.Close()
	}

	id := connection.DeviceID
	if id != "" {
		metrics.Inc(g.metrics, metrics.ConnectionClose)
		g.logger.Info("device disconnected",
			"handle", handle,
			"device", id,
			"peer", connection.PeerAddr,
			"error", err,
		)
		// The count still includes this connection, so below two means
		// no other connection is covering the device.
		if id != g.ignoreDevice && g.registry.CountByDevice(id) < 2 {
			g.publishOffline(id)
		}
	} else {
		g.logger.Debug("connection closed", "handle", handle, "peer", connection.PeerAddr, "error", err)
	}

	if connection.Outbound != nil {
		close(connection.Outbound)
		connection.Outbound = nil
	}
	g.registry.Remove(connection)
}

func (g *Gateway) publishOffline(id string) {
	if g.offlineTopic == "" {
		return
	}
	topic := broker.OfflineTopic(g.offlineTopic, id)
	g.logger.Info("publishing offline notification", "device", id, "topic", topic)
	g.publisher.Publish(topic, broker.OfflinePayload(g.clock.Now()))
}

// write queues payload for the connection's writer. It never blocks:
// when the queue is full the payload is dropped.
func (g *Gateway) write(connection *registry.Connection, payload []byte) {
	if connection.Outbound == nil || connection.Closing {
		g.logger.Debug("not writing to closing connection", "handle", connection.Handle, "device", connection.DeviceID)
		return
	}
	select {
	case connection.Outbound <- payload:
	default:
		g.logger.Warn("device write queue full, dropping payload",
			"handle", connection.Handle,
			"device", connection.DeviceID,
			"bytes", len(payload),
		)
	}
}

// writeLoop writes queued payloads to transport, each under the write
// deadline, until queue is closed.
func (g *Gateway) writeLoop(handle uint64, transport registry.Transport, queue <-chan []byte) {
	deadliner, _ := transport.(interface{ SetWriteDeadline(time.Time) error })
	for payload := range queue {
		if deadliner != nil {
			// Socket deadlines are wall-clock, independent of the
			// gateway clock.
			deadliner.SetWriteDeadline(time.Now().Add(g.writeTimeout))
		}
		if _, err := transport.Write(payload); err != nil {
			if netutil.IsExpectedCloseError(err) {
				g.logger.Debug("write to closed connection", "handle", handle, "error", err)
				continue
			}
			g.logger.Warn("writing to device failed", "handle", handle, "error", err)
		}
	}
}

// Connections returns the number of registered connections. Like every
// other method touching gateway state, it is for the loop goroutine.
func (g *Gateway) Connections() int {
	return g.registry.Len()
}
