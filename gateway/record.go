// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"time"

	"github.com/bureau-foundation/tracker-gateway/broker"
	"github.com/bureau-foundation/tracker-gateway/metrics"
	"github.com/bureau-foundation/tracker-gateway/registry"
)

// handleTick closes idle connections and extracts at most one record
// from every connection's buffer.
func (g *Gateway) handleTick(now time.Time) {
	for _, connection := range g.registry.Connections() {
		if !connection.Closing && now.Sub(connection.LastActivity) >= g.idleTimeout {
			g.logger.Info("closing inactive connection",
				"handle", connection.Handle,
				"peer", connection.PeerAddr,
				"device", connection.DeviceID,
				"idle", now.Sub(connection.LastActivity).String(),
			)
			metrics.Inc(g.metrics, metrics.ConnectionForce)
			connection.Closing = true
			if connection.Transport != nil {
				connection.Transport.Close()
			}
		}

		// Bytes already received are still processed while the close
		// event is pending.
		if record, ok := connection.Buffer.Next(); ok {
			g.processRecord(connection, record)
		}
	}
}

// processRecord runs one record received on connection through the
// pipeline: global log, decode and publish, per-device file, binding.
func (g *Gateway) processRecord(connection *registry.Connection, record []byte) {
	if err := g.dataLog.Append(record); err != nil {
		g.logger.Error("appending to data log", "handle", connection.Handle, "error", err)
	}

	id := g.process(connection, record)
	if id == "" {
		return
	}

	if err := g.dataLog.AppendDevice(id, record); err != nil {
		g.logger.Error("appending to device log", "device", id, "error", err)
	}

	g.logger.Debug("record attributed",
		"handle", connection.Handle,
		"peer", connection.PeerAddr,
		"device", id,
	)
	metrics.Inc(g.metrics, metrics.ConnectionReuse)
	g.registry.AttachDevice(connection, id)
}

// process decodes record, answers the device if the decoder produced a
// response, and publishes the record verbatim on the raw-backup topic.
// It returns the device id, or "" if none could be recovered.
// connection is nil when replaying.
func (g *Gateway) process(connection *registry.Connection, record []byte) string {
	metrics.Inc(g.metrics, metrics.LineProcess)

	result, err := g.decoder.Decode(record)
	if err != nil {
		g.logger.Warn("undecodable record",
			"device", result.DeviceID,
			"error", err,
			"record", string(record),
		)
	}

	if len(result.Response) > 0 && connection != nil {
		g.logger.Info("responding to device",
			"handle", connection.Handle,
			"device", result.DeviceID,
			"response", string(result.Response),
		)
		g.write(connection, result.Response)
	}

	topicID := result.DeviceID
	if topicID == "" {
		topicID = g.placeholder
	}
	g.publisher.Publish(broker.RawTopic(g.rawTopic, topicID), record)

	return result.DeviceID
}
