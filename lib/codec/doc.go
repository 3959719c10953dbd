// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the gateway's CBOR configuration.
//
// JSON is used for everything published to the broker, because broker
// consumers are heterogeneous. CBOR is used for state the gateway writes
// for itself, currently the counters dump produced by the "dump" admin
// command. Encoding is deterministic, so two dumps of identical counters
// are byte-identical and can be compared with cmp(1).
package codec
