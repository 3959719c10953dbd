// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers.
//
// A binary's run function returns errors wrapped with [WithExitCode] to
// choose a distinct exit status per failure class; main hands the result
// to [Fatal], which reports it on stderr (the structured logger may not
// exist yet) and exits with that status.
package process
