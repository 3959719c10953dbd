// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry tracks live device connections.
//
// A [Connection] is reachable two ways: by the handle the gateway
// assigned at accept time, and by the device id learned from the first
// decoded record. The id index tolerates several connections per device,
// which happens when a tracker reconnects before the gateway has noticed
// the old socket die; [Registry.FindByDevice] prefers the newest binding
// and [Registry.CountByDevice] lets the gateway tell whether closing one
// connection leaves the device uncovered.
package registry
