// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package frame

import "bytes"

// Delimiter terminates every record on the wire.
const Delimiter byte = '$'

// Buffer accumulates bytes received on one connection until they form
// complete records. The zero value is an empty buffer ready to use.
//
// Buffer is not safe for concurrent use.
type Buffer struct {
	data []byte
}

// Append copies p onto the end of the buffer. It never parses.
func (b *Buffer) Append(p []byte) {
	b.data = append(b.data, p...)
}

// Next removes and returns the bytes up to and including the first
// Delimiter. It returns false, consuming nothing, when the buffered bytes
// contain no delimiter yet.
//
// The returned slice is a copy and remains valid after further calls.
func (b *Buffer) Next() ([]byte, bool) {
	index := bytes.IndexByte(b.data, Delimiter)
	if index < 0 {
		return nil, false
	}

	record := make([]byte, index+1)
	copy(record, b.data[:index+1])

	// Shift the remainder down so the backing array is reused instead
	// of leaking its consumed prefix.
	remaining := copy(b.data, b.data[index+1:])
	b.data = b.data[:remaining]
	return record, true
}

// Len returns the number of buffered bytes not yet returned by Next.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Release drops the buffered bytes and the backing storage.
func (b *Buffer) Release() {
	b.data = nil
}

// Split extracts every complete record from data. The trailing bytes
// after the last delimiter are returned as rest.
func Split(data []byte) (records [][]byte, rest []byte) {
	var buffer Buffer
	buffer.Append(data)
	for {
		record, ok := buffer.Next()
		if !ok {
			break
		}
		records = append(records, record)
	}
	return records, buffer.data
}
