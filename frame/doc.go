// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package frame reassembles tracker records from a TCP byte stream.
//
// Trackers send records terminated by '$' with no length prefix. TCP
// delivers them in arbitrary chunks: a read may hold half a record or
// several. A [Buffer] keeps the unconsumed bytes for one connection;
// [Buffer.Next] hands out exactly one complete record per call so the
// caller decides the pacing. Bytes that never see a delimiter stay
// buffered indefinitely, so the caller is expected to bound a
// connection's lifetime by other means (the gateway's idle timeout).
package frame
