// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for the gateway
// binary.
//
// [GitCommit], [GitDirty], [BuildTime] and [Version] are injected at
// build time via -ldflags -X and default to "unknown" / "0.1.0-dev" in
// development builds and test runs. [Info] formats them for --version;
// the gateway also includes it in its startup log line and in the
// "stats" admin reply so operators can tell which build answered.
package version
