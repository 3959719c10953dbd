// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// newLogger creates the process logger. Logs go to logFile when set,
// always as JSON. Otherwise they go to stderr: human-readable text on a
// terminal, JSON when redirected (systemd, containers). The returned
// function closes the log file, if any.
func newLogger(logFile string, verbose bool) (*slog.Logger, func(), error) {
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		options.Level = slog.LevelDebug
	}

	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		return slog.New(slog.NewJSONHandler(file, options)), func() { file.Close() }, nil
	}

	return slog.New(stderrHandler(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), options)), func() {}, nil
}

func stderrHandler(w io.Writer, terminal bool, options *slog.HandlerOptions) slog.Handler {
	if terminal {
		return slog.NewTextHandler(w, options)
	}
	return slog.NewJSONHandler(w, options)
}
