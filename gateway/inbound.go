// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/tracker-gateway/broker"
	"github.com/bureau-foundation/tracker-gateway/metrics"
)

// handleMessage routes an inbound broker message to the device named in
// its topic, or runs it as an admin command when the device is the
// wildcard. Undeliverable messages are logged and dropped; the sender
// is not told.
func (g *Gateway) handleMessage(topic string, payload []byte) {
	metrics.Inc(g.metrics, metrics.MessageIn)
	g.logger.Debug("broker message", "topic", topic, "payload", string(payload))

	id, ok := broker.DeviceFromCommandTopic(topic)
	if !ok {
		g.logger.Warn("ignoring message on non-command topic", "topic", topic)
		return
	}

	if id == broker.Wildcard {
		g.handleAdmin(payload)
		return
	}

	connection, ok := g.registry.FindByDevice(id)
	if !ok {
		g.logger.Info("no connection for device, command dropped", "device", id, "topic", topic)
		return
	}
	g.logger.Info("sending command to device",
		"handle", connection.Handle,
		"device", id,
		"payload", string(payload),
	)
	g.write(connection, payload)
}

func (g *Gateway) handleAdmin(payload []byte) {
	command, ok := broker.ParseAdminCommand(payload)
	if !ok {
		g.logger.Warn("unknown admin command", "payload", string(payload))
		return
	}

	switch command {
	case broker.AdminList:
		g.listConnections()
	case broker.AdminStats:
		counters := g.snapshot()
		attrs := make([]any, 0, 2*len(counters))
		for _, name := range metrics.SortedNames(counters) {
			attrs = append(attrs, name, counters[name])
		}
		g.logger.Info("stats", "connections", g.registry.Len(), slog.Group("counters", attrs...))
		g.report(broker.StatsPayload(g.clock.Now(), g.registry.Len(), counters))
	case broker.AdminDump:
		g.dumpCounters()
	case broker.AdminPing:
		g.logger.Info("ping")
		g.report(broker.PongPayload(g.clock.Now()))
	}
}

// listConnections reports one line per connection:
//
//	conn <handle>: <device-id|nil> (<peer>)
func (g *Gateway) listConnections() {
	for _, connection := range g.registry.Connections() {
		line := fmt.Sprintf("conn %d: %s (%s)",
			connection.Handle,
			orNil(connection.DeviceID),
			orNil(connection.PeerAddr),
		)
		g.logger.Info(line)
		g.report([]byte(line))
	}
}

func (g *Gateway) dumpCounters() {
	if g.dumpDir == "" {
		g.logger.Warn("dump requested but no dump directory is configured")
		return
	}
	path, err := metrics.WriteDump(g.dumpDir, metrics.Dump{
		Timestamp:   g.clock.Now(),
		Counters:    g.snapshot(),
		Connections: g.registry.Len(),
	})
	if err != nil {
		g.logger.Error("writing counters dump", "error", err)
		return
	}
	g.logger.Info("counters dumped", "path", path)
}

func (g *Gateway) snapshot() map[string]uint64 {
	snapshotter, ok := g.metrics.(Snapshotter)
	if !ok {
		return map[string]uint64{}
	}
	counters, err := snapshotter.Snapshot()
	if err != nil {
		g.logger.Error("reading counters", "error", err)
		return map[string]uint64{}
	}
	return counters
}

// report publishes an admin reply when a report topic is configured.
func (g *Gateway) report(payload []byte) {
	if g.reportTopic == "" {
		return
	}
	g.publisher.Publish(g.reportTopic, payload)
}

func orNil(value string) string {
	if value == "" {
		return "nil"
	}
	return value
}
