// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package datalog

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how rotated archives are compressed.
type Compression uint8

const (
	// CompressionNone leaves archives as plain text.
	CompressionNone Compression = iota

	// CompressionZstd writes a zstd stream. Raw tracker traffic is
	// highly repetitive ASCII, so this is the better ratio.
	CompressionZstd

	// CompressionLZ4 writes an LZ4 frame. Cheaper on CPU than zstd.
	CompressionLZ4
)

// String returns the configuration name of the compression.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// Extension returns the file suffix for compressed archives.
func (c Compression) Extension() string {
	switch c {
	case CompressionZstd:
		return ".zst"
	case CompressionLZ4:
		return ".lz4"
	default:
		return ""
	}
}

// ParseCompression parses a configuration name. The empty string means
// CompressionNone.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression: %q", name)
	}
}

// compressFile streams source into a new compressed file at
// destination.
func compressFile(source, destination string, compression Compression) error {
	input, err := os.Open(source)
	if err != nil {
		return err
	}
	defer input.Close()

	output, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}

	var writer io.WriteCloser
	switch compression {
	case CompressionZstd:
		writer, err = zstd.NewWriter(output, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			output.Close()
			return fmt.Errorf("zstd writer: %w", err)
		}
	case CompressionLZ4:
		writer = lz4.NewWriter(output)
	default:
		output.Close()
		return fmt.Errorf("unsupported compression: %s", compression)
	}

	if _, err := io.Copy(writer, input); err != nil {
		writer.Close()
		output.Close()
		return fmt.Errorf("%s compress: %w", compression, err)
	}
	if err := writer.Close(); err != nil {
		output.Close()
		return fmt.Errorf("%s flush: %w", compression, err)
	}
	if err := output.Sync(); err != nil {
		output.Close()
		return err
	}
	return output.Close()
}

// OpenArchive opens a rotated archive for reading, decompressing it
// according to its extension.
func OpenArchive(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	switch {
	case strings.HasSuffix(path, CompressionZstd.Extension()):
		decoder, err := zstd.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		return &archiveReader{Reader: decoder, close: func() error {
			decoder.Close()
			return file.Close()
		}}, nil
	case strings.HasSuffix(path, CompressionLZ4.Extension()):
		return &archiveReader{Reader: lz4.NewReader(file), close: file.Close}, nil
	default:
		return file, nil
	}
}

type archiveReader struct {
	io.Reader
	close func() error
}

func (r *archiveReader) Close() error {
	return r.close()
}
