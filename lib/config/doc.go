// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the gateway configuration.
//
// Configuration comes from a single file named either by the
// TRACKER_GATEWAY_CONFIG environment variable (via [Load]) or by the
// --config flag (via [LoadFile]). There is no discovery and no
// fallback. YAML is the primary format; files ending in .json or .jsonc
// are accepted as JSON with comments and trailing commas.
//
// [Default] supplies every value, so a file only names what differs.
// Environment sections (development, staging, production) override the
// listen address and broker settings when [Config].Environment matches.
// ${VAR} and ${VAR:-default} are expanded in paths and broker
// credentials after loading; no other environment variable overrides a
// config value.
//
// A minimal file:
//
//	listen: ":5004"
//	broker:
//	  host: mqtt.example.net
//	  username: gateway
//	  password: ${MQTT_PASSWORD}
//	subscriptions:
//	  - tracker/+/cmd
//	paths:
//	  data_log: /var/log/tracker-gateway/raw.log
//	  records_dir: /var/lib/tracker-gateway/records
//
// This package depends on no other gateway packages.
package config
