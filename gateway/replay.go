// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"bytes"
	"fmt"
	"io"

	"github.com/bureau-foundation/tracker-gateway/frame"
)

// Replay feeds previously captured traffic through the decoder and the
// raw-backup publish, as if it had just been received. There is no
// device to answer or bind, and the records are not logged again.
// Newlines between records, as written by the data log, are ignored.
// It returns the number of records replayed.
//
// Replay must not run concurrently with Run.
func (g *Gateway) Replay(r io.Reader) (int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("reading replay input: %w", err)
	}

	records, rest := frame.Split(data)
	replayed := 0
	for _, record := range records {
		record = bytes.TrimLeft(record, " \t\r\n")
		if len(record) <= 1 {
			continue
		}
		g.process(nil, record)
		replayed++
	}

	if trailing := bytes.TrimSpace(rest); len(trailing) > 0 {
		g.logger.Warn("replay input ends inside a record", "bytes", len(trailing))
	}
	g.logger.Info("replay complete", "records", replayed)
	return replayed, nil
}
