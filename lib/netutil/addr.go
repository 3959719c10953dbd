// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides small network helpers shared by the gateway
// and its command.
//
// [IsExpectedCloseError] classifies errors that occur during normal
// connection teardown. [PeerIP] renders a remote address the way the
// gateway logs and lists it: the IP alone, without the ephemeral port.
package netutil

import (
	"net"
	"net/netip"
)

// PeerIP returns the IP portion of addr as a string. Addresses that do
// not carry an IP (unix sockets, net.Pipe) fall back to addr.String().
// A nil addr yields the empty string.
func PeerIP(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	switch typed := addr.(type) {
	case *net.TCPAddr:
		return typed.IP.String()
	case *net.UDPAddr:
		return typed.IP.String()
	}
	if addrPort, err := netip.ParseAddrPort(addr.String()); err == nil {
		return addrPort.Addr().Unmap().String()
	}
	return addr.String()
}
