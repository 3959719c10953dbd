// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"io"
	"slices"
	"time"

	"github.com/bureau-foundation/tracker-gateway/frame"
)

// Transport is the writable, closable side of a device connection. In
// production it is a net.Conn.
type Transport interface {
	io.Writer
	Close() error
}

// Connection is one live device connection.
type Connection struct {
	// Handle identifies the connection for as long as it is open.
	Handle uint64

	// DeviceID is empty until the first record that names a device has
	// been processed. Once set it does not change.
	DeviceID string

	// PeerAddr is the remote IP address.
	PeerAddr string

	// Buffer holds received bytes not yet extracted as records.
	Buffer *frame.Buffer

	// LastActivity is when bytes were last received (or the accept
	// time, before any were).
	LastActivity time.Time

	// Transport writes to and closes the device socket.
	Transport Transport

	// Outbound queues payloads for the goroutine that writes them to
	// Transport. The gateway owns it and closes it before Remove.
	Outbound chan []byte

	// Closing is set once the gateway has closed the transport itself
	// and is waiting for the corresponding close event.
	Closing bool
}

// Registry indexes live connections by handle and by device id. Both
// indices point at the same *Connection values; binding an id never
// copies a connection.
//
// Registry is not safe for concurrent use. The gateway touches it from
// its event loop goroutine only.
type Registry struct {
	byHandle map[uint64]*Connection

	// byDevice lists connections bound to an id in bind order. More than
	// one entry means the device reconnected before its previous
	// connection was closed.
	byDevice map[string][]*Connection
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		byHandle: make(map[uint64]*Connection),
		byDevice: make(map[string][]*Connection),
	}
}

// Create returns the connection for handle, creating an empty one with
// a fresh buffer if none exists.
func (r *Registry) Create(handle uint64) *Connection {
	if connection, ok := r.byHandle[handle]; ok {
		return connection
	}
	connection := &Connection{
		Handle: handle,
		Buffer: &frame.Buffer{},
	}
	r.byHandle[handle] = connection
	return connection
}

// FindByHandle returns the connection for handle.
func (r *Registry) FindByHandle(handle uint64) (*Connection, bool) {
	connection, ok := r.byHandle[handle]
	return connection, ok
}

// FindByDevice returns the most recently bound connection for id.
func (r *Registry) FindByDevice(id string) (*Connection, bool) {
	connections := r.byDevice[id]
	if len(connections) == 0 {
		return nil, false
	}
	return connections[len(connections)-1], true
}

// AttachDevice binds id to connection. A connection keeps the first id
// it is bound to: later calls and empty ids are no-ops.
func (r *Registry) AttachDevice(connection *Connection, id string) {
	if connection == nil || id == "" || connection.DeviceID != "" {
		return
	}
	connection.DeviceID = id
	r.byDevice[id] = append(r.byDevice[id], connection)
}

// CountByDevice returns how many registered connections are bound to id,
// including any that are closing.
func (r *Registry) CountByDevice(id string) int {
	return len(r.byDevice[id])
}

// Remove drops connection from both indices and releases its buffer.
func (r *Registry) Remove(connection *Connection) {
	if connection == nil {
		return
	}
	if current, ok := r.byHandle[connection.Handle]; ok && current == connection {
		delete(r.byHandle, connection.Handle)
	}
	if id := connection.DeviceID; id != "" {
		remaining := slices.DeleteFunc(r.byDevice[id], func(candidate *Connection) bool {
			return candidate == connection
		})
		if len(remaining) == 0 {
			delete(r.byDevice, id)
		} else {
			r.byDevice[id] = remaining
		}
	}
	if connection.Buffer != nil {
		connection.Buffer.Release()
	}
}

// Connections returns the registered connections ordered by handle. The
// slice is a snapshot; removing entries while iterating it is safe.
func (r *Registry) Connections() []*Connection {
	connections := make([]*Connection, 0, len(r.byHandle))
	for _, connection := range r.byHandle {
		connections = append(connections, connection)
	}
	slices.SortFunc(connections, func(a, b *Connection) int {
		switch {
		case a.Handle < b.Handle:
			return -1
		case a.Handle > b.Handle:
			return 1
		}
		return 0
	})
	return connections
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	return len(r.byHandle)
}
