// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package broker connects the gateway to an MQTT broker.
//
// [Client] wraps a paho client configured for automatic reconnection.
// Every configured subscription is renewed on each successful connect,
// since a clean session discards them server-side. Inbound messages are
// handed to a callback; publishing is fire-and-forget at QoS 0.
//
// The package also owns the topic grammar the gateway speaks: raw
// backups on <prefix>/<device>, commands on <prefix>/<device>/cmd with
// "*" addressing the gateway's admin commands, and pseudo offline
// notifications on <prefix>/<device>.
package broker
