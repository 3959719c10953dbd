// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateway is the event loop bridging tracker connections and
// the MQTT broker.
//
// A [Gateway] owns the connection registry and reacts to five kinds of
// [Event]: a device connecting, bytes arriving, the periodic tick, a
// device disconnecting, and a broker message arriving. [Gateway.Run]
// turns sockets into events on helper goroutines and handles the
// events one at a time, so the registry, the frame buffers and the data
// log never see concurrent access. Broker callbacks join the same queue
// through [Gateway.Post].
//
// Received bytes are only buffered. Each tick takes at most one
// complete record from each connection and runs it through the record
// pipeline:
//
//  1. append to the global raw log
//  2. decode, and write the decoder's response back to the device
//  3. publish verbatim on <raw-topic>/<device-id or placeholder>
//  4. append to the device's own log file
//  5. bind the device id to the connection
//
// The tick also closes connections that have been silent for the idle
// timeout. When the last connection covering a device closes, the
// gateway publishes a pseudo offline notification on the device's
// behalf, standing in for the last-will message the tracker cannot
// register itself.
//
// Broker messages on <prefix>/<device-id>/cmd are written verbatim to
// that device's newest connection. Device writes go through a small
// per-connection queue drained by a writer goroutine, so a device that
// stops reading never stalls the loop; payloads beyond the queue are
// dropped. The device id "*" addresses the
// gateway: "list", "stats", "dump" and "ping" are its admin commands.
package gateway
