// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package app

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cristalhq/acmd"

	"codeberg.org/pageclone/pageclone/configs"
	"codeberg.org/pageclone/pageclone/internal/metrics"
	"codeberg.org/pageclone/pageclone/internal/server"
)

const shutdownTimeout = 30 * time.Second

func init() {
	commands = append(commands, acmd.Command{
		Name:        "serve",
		Description: "Start the HTTP server",
		ExecFunc:    runServe,
	})
}

func runServe(ctx context.Context, args []string) error {
	var flags appFlags
	fs := flags.Flags()
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	if err := appPreRun(&flags); err != nil {
		return err
	}

	m := metrics.New()
	c, err := newCloner(m)
	if err != nil {
		return err
	}

	s := &http.Server{
		Addr:              configs.Config.Server.Addr(),
		Handler:           server.New(c, m),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			slog.String("addr", s.Addr),
			slog.String("version", configs.Version()),
			slog.String("renderer", configs.Config.Renderer.Engine),
		)
		errc <- s.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	slog.Info("stopping server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
