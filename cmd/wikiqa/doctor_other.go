// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

//go:build !unix

package main

import (
	"runtime"

	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
)

func availableBytes(string) (uint64, error) {
	return 0, wikierr.New(wikierr.CodeCLISetupFailure, "disk space check not supported on "+runtime.GOOS)
}
