// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/bureau-foundation/tracker-gateway/lib/netutil"
)

// readBufferSize is the largest chunk a reader hands to the loop in one
// ReceiveEvent.
const readBufferSize = 4096

// Run accepts device connections on listener and runs the event loop
// until ctx is cancelled or accepting fails. On return every device
// connection has been closed and given close handling, and the listener
// is closed.
//
// Accepting and reading happen on their own goroutines, which only turn
// socket activity into events. Everything else happens on the calling
// goroutine.
func (g *Gateway) Run(ctx context.Context, listener net.Listener) error {
	var readers sync.WaitGroup
	acceptErr := make(chan error, 1)
	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		g.accept(listener, &readers, acceptErr)
	}()

	// Readers are only started by the accept goroutine, so once it has
	// exited no reader can be added behind Wait. Writers exit once
	// shutdown has closed their queues.
	defer func() {
		close(g.done)
		<-acceptDone
		readers.Wait()
		g.writers.Wait()
	}()

	ticker := g.clock.NewTicker(g.tickInterval)
	defer ticker.Stop()

	g.logger.Info("gateway listening", "address", listener.Addr().String())

	for {
		select {
		case <-ctx.Done():
			listener.Close()
			g.shutdown()
			return nil

		case err := <-acceptErr:
			listener.Close()
			g.shutdown()
			return fmt.Errorf("accepting connections: %w", err)

		case event := <-g.events:
			g.Dispatch(event)

		case now := <-ticker.C:
			g.Dispatch(TickEvent{Now: now})
		}
	}
}

// accept assigns each new connection a handle, announces it to the
// loop, and starts its reader. Handles increase monotonically and are
// never reused.
func (g *Gateway) accept(listener net.Listener, readers *sync.WaitGroup, acceptErr chan<- error) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				acceptErr <- err
			}
			return
		}

		handle := g.nextHandle.Add(1)
		if !g.Post(AcceptEvent{
			Handle:    handle,
			Transport: conn,
			PeerAddr:  netutil.PeerIP(conn.RemoteAddr()),
		}) {
			conn.Close()
			return
		}

		readers.Add(1)
		go func() {
			defer readers.Done()
			g.read(handle, conn)
		}()
	}
}

// read forwards everything received on conn to the loop and reports
// the close. Per-connection ordering holds because one goroutine feeds
// one FIFO queue.
func (g *Gateway) read(handle uint64, conn net.Conn) {
	buffer := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buffer)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buffer[:n])
			if !g.Post(ReceiveEvent{Handle: handle, Data: data}) {
				return
			}
		}
		if err != nil {
			if netutil.IsExpectedCloseError(err) {
				err = nil
			}
			g.Post(CloseEvent{Handle: handle, Err: err})
			return
		}
	}
}

// shutdown closes every device connection and runs close handling for
// each, so devices get their offline notifications.
func (g *Gateway) shutdown() {
	connections := g.registry.Connections()
	g.logger.Info("gateway shutting down", "connections", len(connections))
	for _, connection := range connections {
		g.handleClose(connection.Handle, nil)
	}
}
