// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package report decodes tracker records far enough for the gateway to
// route them: who sent the record, and what (if anything) the device
// expects back.
//
// Full report interpretation belongs to downstream consumers of the raw
// topic. The gateway only needs a [Decoder]; [FieldDecoder] is the
// default, covering the +CLASS:TYPE field layout used by the supported
// trackers and acknowledging their heartbeats.
package report
