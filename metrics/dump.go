// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/tracker-gateway/lib/codec"
)

// DumpFile is the name of the counters dump inside the dump directory.
const DumpFile = "counters.cbor"

// Dump is a point-in-time copy of the gateway counters.
type Dump struct {
	Timestamp   time.Time         `cbor:"timestamp"`
	Counters    map[string]uint64 `cbor:"counters"`
	Connections int               `cbor:"connections"`
}

// WriteDump atomically replaces <directory>/counters.cbor with dump and
// returns the path written. Readers never see a partial file.
func WriteDump(directory string, dump Dump) (string, error) {
	data, err := codec.Marshal(dump)
	if err != nil {
		return "", fmt.Errorf("encoding counters dump: %w", err)
	}

	path := filepath.Join(directory, DumpFile)
	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return "", fmt.Errorf("creating temporary dump file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return "", fmt.Errorf("writing temporary dump file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return "", fmt.Errorf("syncing temporary dump file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return "", fmt.Errorf("closing temporary dump file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return "", fmt.Errorf("renaming dump file into place: %w", err)
	}

	if parent, err := os.Open(directory); err == nil {
		parent.Sync()
		parent.Close()
	}
	return path, nil
}

// ReadDump reads a dump written by WriteDump. A missing file yields an
// error wrapping os.ErrNotExist.
func ReadDump(path string) (Dump, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Dump{}, err
	}
	var dump Dump
	if err := codec.Unmarshal(data, &dump); err != nil {
		return Dump{}, fmt.Errorf("decoding counters dump %s: %w", path, err)
	}
	return dump, nil
}
