// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package binhash

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zeebo/blake3"
)

func TestHashFile(t *testing.T) {
	content := []byte("+RESP:GTFRI,060228,862170010196747,,0,0,1,1,0.0,0,33.4,-104.5,20180410170009,,,,,,20180410170009,1A2B$")
	path := filepath.Join(t.TempDir(), "raw.log.1523379600")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if want := blake3.Sum256(content); got != want {
		t.Errorf("HashFile = %x, want %x", got, want)
	}
}

func TestHashFileLarge(t *testing.T) {
	content := make([]byte, 256*1024)
	for i := range content {
		content[i] = byte(i % 251)
	}
	path := filepath.Join(t.TempDir(), "large")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if want := blake3.Sum256(content); got != want {
		t.Errorf("HashFile(large) = %x, want %x", got, want)
	}
}

func TestHashFileNonexistent(t *testing.T) {
	if _, err := HashFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("HashFile should fail for a nonexistent file")
	}
}

func TestFormatDigest(t *testing.T) {
	var digest [32]byte
	digest[0] = 0xab
	digest[31] = 0x01
	formatted := FormatDigest(digest)
	if len(formatted) != 64 {
		t.Fatalf("len = %d, want 64", len(formatted))
	}
	if formatted[:2] != "ab" || formatted[62:] != "01" {
		t.Errorf("FormatDigest = %s", formatted)
	}
}
