// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is wrapped by decode errors for records that do not
// follow the report grammar.
var ErrMalformed = errors.New("malformed report")

// Result is what the gateway needs from a decoded record.
type Result struct {
	// DeviceID identifies the sender. It may be set even when Decode
	// returns an error, if the id field was recoverable.
	DeviceID string

	// Response is written back to the device verbatim when non-empty.
	Response []byte

	// Kind is the message class and report type, e.g. "RESP:GTFRI".
	Kind string
}

// Decoder interprets one record.
type Decoder interface {
	Decode(record []byte) (Result, error)
}

// FieldDecoder decodes the comma-separated report format:
//
//	+<CLASS>:<TYPE>,<protocol>,<device-id>,<fields...>$
//
// It extracts the device id and answers heartbeats; the remaining
// fields are not interpreted.
type FieldDecoder struct{}

// heartbeatKind is the heartbeat a device expects acknowledged with
// +SACK:GTHBD.
const heartbeatKind = "ACK:GTHBD"

// Decode implements Decoder.
func (FieldDecoder) Decode(record []byte) (Result, error) {
	text := string(bytes.TrimLeft(record, " \t\r\n"))
	if !strings.HasPrefix(text, "+") {
		return Result{}, fmt.Errorf("%w: missing leading '+'", ErrMalformed)
	}
	text = strings.TrimSuffix(text[1:], "$")

	fields := strings.Split(text, ",")
	kind := fields[0]
	if class, name, ok := strings.Cut(kind, ":"); !ok || class == "" || name == "" {
		return Result{}, fmt.Errorf("%w: report kind %q", ErrMalformed, kind)
	}
	result := Result{Kind: kind}

	if len(fields) < 3 {
		return result, fmt.Errorf("%w: %s has no device id field", ErrMalformed, kind)
	}
	id := fields[2]
	if !validDeviceID(id) {
		return result, fmt.Errorf("%w: %s device id %q", ErrMalformed, kind, id)
	}
	result.DeviceID = id

	if kind == heartbeatKind {
		protocol := fields[1]
		count := fields[len(fields)-1]
		if len(fields) < 4 || count == "" {
			return result, fmt.Errorf("%w: heartbeat without count", ErrMalformed)
		}
		result.Response = fmt.Appendf(nil, "+SACK:GTHBD,%s,%s$", protocol, count)
	}
	return result, nil
}

// validDeviceID accepts ids made of ASCII letters and digits. Trackers
// report a 15-digit IMEI; anything else in that position means the
// record is garbled.
func validDeviceID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}
