// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cristalhq/acmd"

	"codeberg.org/pageclone/pageclone/internal/clone"
)

func init() {
	commands = append(commands, acmd.Command{
		Name:        "clone",
		Description: "Clone a web page into a self-contained HTML document",
		ExecFunc:    runClone,
	})
}

func runClone(ctx context.Context, args []string) error {
	var dest string
	var asJSON bool

	var flags appFlags
	fs := flags.Flags()
	// nolint: errcheck
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: clone [arguments...] URL")
		fmt.Fprintln(fs.Output(), "  URL")
		fmt.Fprintln(fs.Output(), "    \tpage to clone")
		fs.PrintDefaults()
	}
	fs.StringVar(&dest, "o", "", "destination file (default: standard output)")
	fs.BoolVar(&asJSON, "json", false, "write the full result as JSON")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	target := strings.TrimSpace(fs.Arg(0))
	if target == "" {
		return errors.New("URL is required")
	}
	if _, err := clone.ValidateTarget(target); err != nil {
		return err
	}

	if err := appPreRun(&flags); err != nil {
		return err
	}

	c, err := newCloner(nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := c.Clone(ctx, target)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if dest != "" {
		fd, err := os.Create(dest)
		if err != nil {
			return err
		}
		defer func() {
			if err := fd.Close(); err != nil {
				fatal("error closing the file", err)
			}
		}()
		w = fd
	}

	if err := writeResult(w, res, asJSON); err != nil {
		return err
	}

	if dest != "" {
		fmt.Fprintf(os.Stderr, "%s%s%s%s created in %.2fs (%d resources, %d inlined, %s%d failed%s)\n", //nolint:errcheck
			bold, colorGreen, dest, colorReset,
			res.TimeTaken, res.TotalResources, res.Inlined,
			colorYellow, res.Failed, colorReset,
		)
	}
	return nil
}

func writeResult(w io.Writer, res *clone.Result, asJSON bool) error {
	if !asJSON {
		_, err := io.WriteString(w, res.HTML)
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
