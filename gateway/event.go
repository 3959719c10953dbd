// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"time"

	"github.com/bureau-foundation/tracker-gateway/registry"
)

// Event is something the event loop reacts to. Every state change in the
// gateway happens while handling exactly one Event.
type Event interface {
	event()
}

// AcceptEvent reports a new device connection.
type AcceptEvent struct {
	Handle    uint64
	Transport registry.Transport
	PeerAddr  string
}

// ReceiveEvent carries bytes read from a device connection.
type ReceiveEvent struct {
	Handle uint64
	Data   []byte
}

// TickEvent is the periodic tick that paces record processing and idle
// detection.
type TickEvent struct {
	Now time.Time
}

// CloseEvent reports that a device connection has terminated. Err is
// nil for an orderly close.
type CloseEvent struct {
	Handle uint64
	Err    error
}

// MessageEvent carries an inbound broker message.
type MessageEvent struct {
	Topic   string
	Payload []byte
}

func (AcceptEvent) event()  {}
func (ReceiveEvent) event() {}
func (TickEvent) event()    {}
func (CloseEvent) event()   {}
func (MessageEvent) event() {}

// Dispatch handles one event. It must only be called from the goroutine
// that owns the gateway: Run's loop, or a test driving the gateway
// directly.
func (g *Gateway) Dispatch(event Event) {
	switch event := event.(type) {
	case AcceptEvent:
		g.handleAccept(event)
	case ReceiveEvent:
		g.handleReceive(event)
	case TickEvent:
		g.handleTick(event.Now)
	case CloseEvent:
		g.handleClose(event.Handle, event.Err)
	case MessageEvent:
		g.handleMessage(event.Topic, event.Payload)
	}
}
