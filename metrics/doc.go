// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics counts gateway events.
//
// Components increment named counters through a [Sink]; a nil sink is
// valid and discards everything, so counting is never a reason for a
// component to fail. [Counters] is the production sink. It keeps one
// Prometheus counter vector, serves it over HTTP via [Serve], and can
// be snapshotted for the "stats" admin command or persisted with
// [WriteDump] for the "dump" command.
package metrics
