// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// The gateway reads the current time to stamp connection activity and
// drives its periodic tick from a ticker. Both go through a Clock so
// that idle-timeout behavior can be tested without waiting twenty real
// minutes:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	g := gateway.New(gateway.Options{Clock: c, ...})
//	c.Advance(20 * time.Minute)
//	g.Dispatch(gateway.TickEvent{Now: c.Now()})
package clock
