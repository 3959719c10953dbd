// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with time.After fallback) so that tests which
// cross real goroutine boundaries, such as the end-to-end TCP test of
// the gateway loop, fail with a message instead of hanging. These are
// the only place in the test suite where wall-clock timeouts are used;
// everything else drives time through lib/clock.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
