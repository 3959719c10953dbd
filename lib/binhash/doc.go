// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash computes BLAKE3 digests of files.
//
// When the data logger compresses a rotated raw log, it records the
// digest of the uncompressed archive in its log line. An operator who
// later decompresses the archive can confirm it matches what the
// gateway wrote before the original was removed.
package binhash
