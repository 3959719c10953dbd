// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package datalog

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/tracker-gateway/lib/clock"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestLogger(t *testing.T, options Options) *Logger {
	t.Helper()
	if options.Clock == nil {
		options.Clock = clock.Fake(epoch)
	}
	logger, err := Open(options)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger
}

func fileSize(t *testing.T, path string) int64 {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	return info.Size()
}

func archives(t *testing.T, path string) []string {
	t.Helper()
	matches, err := filepath.Glob(path + ".*")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	return matches
}

func TestAppend_WritesNewlineTerminated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.log")
	logger := openTestLogger(t, Options{Path: path})

	for _, record := range []string{"+RESP:GTFRI,a$", "+ACK:GTHBD,b$"} {
		if err := logger.Append([]byte(record)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if string(data) != "+RESP:GTFRI,a$\n+ACK:GTHBD,b$\n" {
		t.Errorf("log contents = %q", data)
	}
}

func TestOpen_ResumesExistingSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.log")
	if err := os.WriteFile(path, bytes.Repeat([]byte("x"), 90), 0644); err != nil {
		t.Fatal(err)
	}
	logger := openTestLogger(t, Options{Path: path, RotateBytes: 100})
	if logger.Size() != 90 {
		t.Fatalf("Size = %d, want 90", logger.Size())
	}

	// 90 + 20 crosses the threshold on the first append.
	if err := logger.Append(bytes.Repeat([]byte("y"), 19)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(archives(t, path)) != 1 {
		t.Errorf("expected rotation to account for pre-existing bytes")
	}
}

func TestRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.log")
	logger := openTestLogger(t, Options{Path: path, RotateBytes: 100})

	record := bytes.Repeat([]byte("r"), 29) // 30 bytes with the newline
	var total int64
	for range 6 {
		if err := logger.Append(record); err != nil {
			t.Fatalf("Append: %v", err)
		}
		total += int64(len(record) + 1)
	}

	found := archives(t, path)
	if len(found) != 1 {
		t.Fatalf("archives = %v, want exactly one", found)
	}
	want := path + "." + strconv.FormatInt(epoch.Unix(), 10)
	if found[0] != want {
		t.Errorf("archive = %s, want %s", found[0], want)
	}

	archived := fileSize(t, found[0])
	active := fileSize(t, path)
	if archived != 120 {
		t.Errorf("archive size = %d, want 120", archived)
	}
	if archived+active != total {
		t.Errorf("archive %d + active %d != appended %d", archived, active, total)
	}
	if logger.Size() != active {
		t.Errorf("tracked size %d != file size %d", logger.Size(), active)
	}
}

func TestAppend_RecoversAfterFailedReopen(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs")
	if err := os.Mkdir(logDir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(logDir, "raw.log")
	logger := openTestLogger(t, Options{Path: path, RotateBytes: 100})

	record := bytes.Repeat([]byte("r"), 29)
	for range 3 {
		if err := logger.Append(record); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	if err := os.RemoveAll(logDir); err != nil {
		t.Fatal(err)
	}
	if err := logger.Append(record); err == nil {
		t.Fatal("rotation into a missing directory reported no error")
	}
	if err := logger.Append(record); err == nil {
		t.Fatal("Append with no open log reported no error")
	}

	if err := os.Mkdir(logDir, 0755); err != nil {
		t.Fatal(err)
	}
	for i := range 3 {
		if err := logger.Append([]byte("+RESP:GTFRI," + strconv.Itoa(i) + "$")); err != nil {
			t.Fatalf("Append after directory returned: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading reopened log: %v", err)
	}
	if string(data) != "+RESP:GTFRI,0$\n+RESP:GTFRI,1$\n+RESP:GTFRI,2$\n" {
		t.Errorf("log contents = %q", data)
	}
}

func TestAppend_AfterCloseDiscards(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.log")
	logger := openTestLogger(t, Options{Path: path})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := logger.Append([]byte("+RESP:GTFRI,a$")); err != nil {
		t.Fatalf("Append after Close: %v", err)
	}
	if size := fileSize(t, path); size != 0 {
		t.Errorf("log grew to %d bytes after Close", size)
	}
}

func TestRotation_SameSecondGetsSuffix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.log")
	logger := openTestLogger(t, Options{Path: path, RotateBytes: 10})

	for range 2 {
		if err := logger.Append([]byte("0123456789$")); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	base := path + "." + strconv.FormatInt(epoch.Unix(), 10)
	for _, name := range []string{base, base + ".1"} {
		if _, err := os.Stat(name); err != nil {
			t.Errorf("expected archive %s: %v", name, err)
		}
	}
	if fileSize(t, path) != 0 {
		t.Errorf("active log not fresh after rotation")
	}
}

func TestRotation_Compressed(t *testing.T) {
	for _, compression := range []Compression{CompressionZstd, CompressionLZ4} {
		t.Run(compression.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "raw.log")
			logger := openTestLogger(t, Options{
				Path:        path,
				RotateBytes: 256,
				Compression: compression,
			})

			var expected bytes.Buffer
			record := []byte("+RESP:GTFRI,F50106,860599001234567,,0,0,1,1,0.0,0,0.0,0,0$")
			for expected.Len() <= 256 {
				if err := logger.Append(record); err != nil {
					t.Fatalf("Append: %v", err)
				}
				expected.Write(record)
				expected.WriteByte('\n')
			}

			base := path + "." + strconv.FormatInt(epoch.Unix(), 10)
			if _, err := os.Stat(base); !errors.Is(err, os.ErrNotExist) {
				t.Errorf("uncompressed archive left behind: %v", err)
			}

			reader, err := OpenArchive(base + compression.Extension())
			if err != nil {
				t.Fatalf("OpenArchive: %v", err)
			}
			defer reader.Close()
			got, err := io.ReadAll(reader)
			if err != nil {
				t.Fatalf("reading archive: %v", err)
			}
			if !bytes.Equal(got, expected.Bytes()) {
				t.Errorf("archive round trip mismatch: %d bytes, want %d", len(got), expected.Len())
			}
		})
	}
}

func TestOpenArchive_Plain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.log.1700000000")
	if err := os.WriteFile(path, []byte("a$\n"), 0644); err != nil {
		t.Fatal(err)
	}
	reader, err := OpenArchive(path)
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	defer reader.Close()
	data, _ := io.ReadAll(reader)
	if string(data) != "a$\n" {
		t.Errorf("data = %q", data)
	}
}

func TestAppend_Disabled(t *testing.T) {
	var nilLogger *Logger
	if err := nilLogger.Append([]byte("a$")); err != nil {
		t.Errorf("nil Append: %v", err)
	}
	if err := nilLogger.AppendDevice("1", []byte("a$")); err != nil {
		t.Errorf("nil AppendDevice: %v", err)
	}

	pathless := openTestLogger(t, Options{})
	if err := pathless.Append([]byte("a$")); err != nil {
		t.Errorf("pathless Append: %v", err)
	}
}

func TestOpen_Unwritable(t *testing.T) {
	_, err := Open(Options{Path: filepath.Join(t.TempDir(), "missing", "raw.log")})
	if err == nil {
		t.Fatal("expected error opening log in a missing directory")
	}
}

func TestAppendDevice(t *testing.T) {
	directory := t.TempDir()
	logger := openTestLogger(t, Options{RecordsDir: directory})

	for _, record := range []string{"one$", "two$"} {
		if err := logger.AppendDevice("860599001234567", []byte(record)); err != nil {
			t.Fatalf("AppendDevice: %v", err)
		}
	}
	data, err := os.ReadFile(filepath.Join(directory, "data-860599001234567"))
	if err != nil {
		t.Fatalf("reading device file: %v", err)
	}
	if string(data) != "one$\ntwo$\n" {
		t.Errorf("device file = %q", data)
	}
}

func TestAppendDevice_RejectsPathComponents(t *testing.T) {
	directory := t.TempDir()
	logger := openTestLogger(t, Options{RecordsDir: directory})

	for _, id := range []string{"", "../escape", "a/b", `a\b`, "..", "."} {
		err := logger.AppendDevice(id, []byte("x$"))
		if !errors.Is(err, ErrInvalidDeviceID) {
			t.Errorf("AppendDevice(%q) error = %v, want ErrInvalidDeviceID", id, err)
		}
	}
	entries, _ := os.ReadDir(directory)
	if len(entries) != 0 {
		t.Errorf("files created for rejected ids: %v", entries)
	}
}

func TestParseCompression(t *testing.T) {
	for _, name := range []string{"", "none", "zstd", "lz4"} {
		compression, err := ParseCompression(name)
		if err != nil {
			t.Errorf("ParseCompression(%q): %v", name, err)
			continue
		}
		if name != "" && compression.String() != name {
			t.Errorf("round trip %q -> %q", name, compression.String())
		}
	}
	if _, err := ParseCompression("gzip"); err == nil || !strings.Contains(err.Error(), "gzip") {
		t.Errorf("ParseCompression(gzip) error = %v", err)
	}
}
