// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/bureau-foundation/tracker-gateway/datalog"
)

func TestReplay(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "raw.log")
	dataLog, err := datalog.Open(datalog.Options{Path: logPath})
	if err != nil {
		t.Fatal(err)
	}
	defer dataLog.Close()
	h := newHarness(t, func(options *Options) { options.DataLog = dataLog })

	input := heartbeat + "\n" + "garbage$\n" + position + "\r\n+RESP:GTFRI,trailing"
	replayed, err := h.gateway.Replay(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if replayed != 3 {
		t.Errorf("replayed = %d, want 3", replayed)
	}

	want := []message{
		{"tracker/raw/" + deviceA, heartbeat},
		{"tracker/raw/unknown", "garbage$"},
		{"tracker/raw/" + deviceA, position},
	}
	if len(h.publisher.messages) != len(want) {
		t.Fatalf("messages = %+v", h.publisher.messages)
	}
	for i := range want {
		if h.publisher.messages[i] != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, h.publisher.messages[i], want[i])
		}
	}

	if h.gateway.Connections() != 0 {
		t.Error("replay registered connections")
	}
	logged, _ := os.ReadFile(logPath)
	if len(logged) != 0 {
		t.Errorf("replayed records were logged again: %q", logged)
	}
}

func TestReplay_ReadError(t *testing.T) {
	h := newHarness(t, nil)
	failure := errors.New("disk on fire")
	if _, err := h.gateway.Replay(iotest.ErrReader(failure)); !errors.Is(err, failure) {
		t.Errorf("Replay error = %v, want wrapped read error", err)
	}
}
