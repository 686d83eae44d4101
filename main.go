// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

// Pageclone renders web pages in a headless browser and saves them as
// self-contained HTML documents.
package main

import (
	"fmt"
	"os"

	"codeberg.org/pageclone/pageclone/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err) //nolint:errcheck
		os.Exit(1)
	}
}
