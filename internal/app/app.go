// SPDX-FileCopyrightText: © 2020 Olivier Meunier <olivier@neokraft.net>
// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package app is the command line entry point.
package app

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/cristalhq/acmd"

	"codeberg.org/pageclone/pageclone/configs"
	"codeberg.org/pageclone/pageclone/internal/clone"
	"codeberg.org/pageclone/pageclone/internal/httpclient"
	"codeberg.org/pageclone/pageclone/internal/metrics"
	"codeberg.org/pageclone/pageclone/pkg/archiver"
	"codeberg.org/pageclone/pageclone/pkg/renderer"
)

const (
	bold        = "\033[1m"
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
)

var commands = []acmd.Command{}

// Run starts the application CLI.
func Run() error {
	r := acmd.RunnerOf(commands, acmd.Config{
		AppName:        "pageclone",
		AppDescription: "pageclone saves web pages as self-contained HTML documents.",
		Version:        configs.Version(),
	})

	return r.Run()
}

// appFlags holds the flags every command shares.
type appFlags struct {
	ConfigFile string
}

// Flags returns a new [flag.FlagSet] with the shared flags.
func (f *appFlags) Flags() *flag.FlagSet {
	fs := flag.NewFlagSet("", flag.ContinueOnError)
	fs.StringVar(&f.ConfigFile, "config", "", "configuration file path")
	return fs
}

// appPreRun loads the configuration and sets up the logger.
func appPreRun(flags *appFlags) error {
	configs.InitConfiguration()
	if err := configs.LoadConfiguration(flags.ConfigFile); err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	if err := configs.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	initLogger()
	return nil
}

// newCloner builds a [clone.Cloner] from the configuration.
// The metrics are optional.
func newCloner(m *metrics.Metrics) (*clone.Cloner, error) {
	cf := configs.Config.Fetcher
	cr := configs.Config.Renderer
	cc := configs.Config.Clone

	client := httpclient.New(
		httpclient.WithLogger(slog.Default()),
		httpclient.WithDeniedIPs(cf.DeniedNetworks()),
	)
	if m != nil {
		client.Transport = m.RoundTripper(client.Transport)
	}

	r, err := renderer.New(cr.Engine,
		renderer.WithBrowserBin(cr.BrowserBin),
		renderer.WithNoSandbox(cr.NoSandbox),
		renderer.WithStealth(cr.Stealth),
		renderer.WithUserAgent(httpclient.UserAgent),
		renderer.WithTimeout(cr.Timeout.Value()),
		renderer.WithSettleDelay(cr.SettleDelay.Value()),
		renderer.WithBlockedResources(cr.BlockedResources),
		renderer.WithHeaders(cr.Headers),
		renderer.WithLogger(slog.Default()),
	)
	if err != nil {
		return nil, err
	}

	options := []clone.Option{
		clone.WithClient(client),
		clone.WithLogger(slog.Default()),
		clone.WithFetchOptions(
			archiver.WithRetry(cf.MaxAttempts, cf.RetryDelay.Value()),
			archiver.WithTimeout(cf.Timeout.Value()),
			archiver.WithConcurrency(cf.Concurrency),
		),
		clone.WithRetryPolicy(clone.RetryPolicy{
			MaxAttempts:    cc.MaxAttempts,
			InitialBackoff: cc.InitialBackoff.Value(),
			MaxBackoff:     cc.MaxBackoff.Value(),
			Multiplier:     2,
		}),
		clone.WithAssembleOptions(archiver.AssembleOptions{
			Lang:  cc.Lang,
			Title: cc.Title,
		}),
	}
	if m != nil {
		options = append(options, clone.WithObserver(m))
	}

	return clone.New(r, options...), nil
}

// fatal prints an error message and exits.
func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "%s%s%s: %s\n", colorRed, msg, colorReset, err) //nolint:errcheck
	os.Exit(1)
}
