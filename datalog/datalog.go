// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package datalog

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bureau-foundation/tracker-gateway/lib/binhash"
	"github.com/bureau-foundation/tracker-gateway/lib/clock"
)

// DefaultRotateBytes is the global log size above which it is rotated.
const DefaultRotateBytes = 10 * 1024 * 1024

// ErrInvalidDeviceID is returned by AppendDevice for ids that cannot be
// used as a file name component.
var ErrInvalidDeviceID = errors.New("invalid device id")

// Options configures a Logger.
type Options struct {
	// Path is the stable path of the global log. Empty disables the
	// global log.
	Path string

	// RotateBytes is the rotation threshold. Zero means
	// DefaultRotateBytes.
	RotateBytes int64

	// Compression is applied to rotated archives.
	Compression Compression

	// RecordsDir holds per-device files. Empty disables them.
	RecordsDir string

	// Clock names archives. Nil means the real clock.
	Clock clock.Clock

	// Logger receives rotation and write failures. Nil means
	// slog.Default().
	Logger *slog.Logger
}

// Logger appends raw records to the global log and to per-device files.
//
// Logger is not safe for concurrent use.
type Logger struct {
	path        string
	rotateBytes int64
	compression Compression
	recordsDir  string
	clock       clock.Clock
	logger      *slog.Logger

	file   *os.File
	size   int64
	closed bool
}

// Open opens the global log for appending, creating it if needed.
func Open(options Options) (*Logger, error) {
	if options.RotateBytes <= 0 {
		options.RotateBytes = DefaultRotateBytes
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	l := &Logger{
		path:        options.Path,
		rotateBytes: options.RotateBytes,
		compression: options.Compression,
		recordsDir:  options.RecordsDir,
		clock:       options.Clock,
		logger:      options.Logger,
	}
	if l.path == "" {
		return l, nil
	}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Logger) open() error {
	file, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0666)
	if err != nil {
		return fmt.Errorf("opening data log %s: %w", l.path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat data log %s: %w", l.path, err)
	}
	l.file = file
	l.size = info.Size()
	return nil
}

// Append writes record and a newline to the global log, then rotates
// the log if it has grown past the threshold. A nil Logger, or one
// opened without a path, discards the record. If an earlier rotation
// could not reopen the log, Append tries again first.
func (l *Logger) Append(record []byte) error {
	if l == nil || l.path == "" || l.closed {
		return nil
	}
	if l.file == nil {
		if err := l.open(); err != nil {
			return err
		}
	}

	line := make([]byte, 0, len(record)+1)
	line = append(line, record...)
	line = append(line, '\n')
	written, err := l.file.Write(line)
	l.size += int64(written)
	if err != nil {
		return fmt.Errorf("writing data log: %w", err)
	}

	if l.size > l.rotateBytes {
		return l.rotate()
	}
	return nil
}

// Size returns the number of bytes in the active global log.
func (l *Logger) Size() int64 {
	if l == nil {
		return 0
	}
	return l.size
}

// rotate moves the active log aside to a timestamped name and reopens
// the stable path. Readers tailing the stable path see it replaced
// rather than truncated.
func (l *Logger) rotate() error {
	if err := l.file.Close(); err != nil {
		l.logger.Warn("closing data log before rotation", "path", l.path, "error", err)
	}
	l.file = nil

	archive := l.archiveName()
	linkErr := os.Link(l.path, archive)
	if linkErr == nil {
		if err := os.Remove(l.path); err != nil {
			l.logger.Error("removing rotated data log", "path", l.path, "error", err)
		}
	}

	if err := l.open(); err != nil {
		return fmt.Errorf("reopening data log after rotation: %w", err)
	}
	if linkErr != nil {
		return fmt.Errorf("archiving data log to %s: %w", archive, linkErr)
	}

	l.logger.Info("data log rotated", "path", l.path, "archive", archive)
	l.finishArchive(archive)
	return nil
}

// archiveName returns <path>.<unix-seconds>, adding a .N suffix when a
// rotation in the same second already claimed that name.
func (l *Logger) archiveName() string {
	base := l.path + "." + strconv.FormatInt(l.clock.Now().Unix(), 10)
	candidate := base
	for sequence := 1; l.archiveExists(candidate); sequence++ {
		candidate = base + "." + strconv.Itoa(sequence)
	}
	return candidate
}

func (l *Logger) archiveExists(name string) bool {
	for _, path := range []string{name, name + l.compression.Extension()} {
		if _, err := os.Lstat(path); err == nil {
			return true
		}
	}
	return false
}

// finishArchive compresses a fresh archive when compression is
// configured. Failures leave the uncompressed archive in place.
func (l *Logger) finishArchive(archive string) {
	if l.compression == CompressionNone {
		return
	}
	compressed := archive + l.compression.Extension()
	if err := compressFile(archive, compressed, l.compression); err != nil {
		l.logger.Error("compressing data log archive", "archive", archive, "error", err)
		os.Remove(compressed)
		return
	}
	digest, err := binhash.HashFile(compressed)
	if err != nil {
		l.logger.Error("hashing data log archive", "archive", compressed, "error", err)
	} else {
		l.logger.Info("data log archive compressed",
			"archive", compressed,
			"compression", l.compression.String(),
			"blake3", binhash.FormatDigest(digest),
		)
	}
	if err := os.Remove(archive); err != nil {
		l.logger.Warn("removing uncompressed archive", "archive", archive, "error", err)
	}
}

// AppendDevice appends record and a newline to <RecordsDir>/data-<id>.
// The file is opened and closed on every call. Without a records
// directory it does nothing.
func (l *Logger) AppendDevice(id string, record []byte) error {
	if l == nil || l.recordsDir == "" {
		return nil
	}
	if err := validateDeviceID(id); err != nil {
		return err
	}

	path := filepath.Join(l.recordsDir, "data-"+id)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("opening device log: %w", err)
	}
	line := make([]byte, 0, len(record)+1)
	line = append(line, record...)
	line = append(line, '\n')
	_, writeErr := file.Write(line)
	closeErr := file.Close()
	if writeErr != nil {
		return fmt.Errorf("writing device log %s: %w", path, writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing device log %s: %w", path, closeErr)
	}
	return nil
}

func validateDeviceID(id string) error {
	if id == "" || id == "." || strings.Contains(id, "..") ||
		strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidDeviceID, id)
	}
	return nil
}

// Close closes the global log.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.closed = true
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
