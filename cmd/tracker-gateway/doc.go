// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Tracker-gateway bridges GPS/GPRS trackers to an MQTT broker. Trackers
// connect over TCP and send '$'-terminated records; every record is
// logged, acknowledged when the device expects it, and republished on
// the broker. Commands published to <prefix>/<device-id>/cmd are written
// back to the device.
//
// Usage:
//
//	tracker-gateway --config /etc/tracker-gateway/gateway.yaml
//	tracker-gateway --config gateway.yaml --replay raw.log.1772366400.zst
//
// Without --config, the file named by TRACKER_GATEWAY_CONFIG is used.
// --replay publishes the records of a captured or archived data log and
// exits instead of listening.
//
// Exit status: 0 on clean shutdown, 1 for flag errors, 2 for
// configuration errors, 3 for an invalid MQTT protocol version, 4 for
// unusable TLS material, 5 when a listen address cannot be bound, 6 when
// the data log cannot be opened, 7 when the replay input cannot be read
// or the broker cannot be reached for it.
package main
