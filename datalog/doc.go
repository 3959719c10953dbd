// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package datalog keeps the gateway's raw traffic logs.
//
// Every extracted record is appended, newline-terminated, to one global
// log at a stable path. When the log grows past a size threshold it is
// hard-linked to <path>.<unix-seconds>, unlinked, and reopened empty, so
// a consumer following the stable path sees a fresh file and nothing is
// lost across the switch. Archives can be compressed with zstd or LZ4
// once rotated; the BLAKE3 digest of each compressed archive is logged
// for later verification. [OpenArchive] reads any of the three forms.
//
// Records attributed to a device are additionally appended to
// data-<device-id> under a records directory, one file per device.
package datalog
