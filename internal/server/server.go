// SPDX-FileCopyrightText: © 2020 Olivier Meunier <olivier@neokraft.net>
// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package server is the pageclone HTTP server.
// It defines the routes and the common middlewares.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"runtime"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"codeberg.org/pageclone/pageclone/configs"
	"codeberg.org/pageclone/pageclone/internal/clone"
	"codeberg.org/pageclone/pageclone/internal/metrics"
	"codeberg.org/pageclone/pageclone/pkg/http/request"
)

// Cloner runs a clone operation.
type Cloner interface {
	Clone(ctx context.Context, target string) (*clone.Result, error)
}

// Server is a wrapper around chi router.
type Server struct {
	*chi.Mux
	cloner  Cloner
	metrics *metrics.Metrics
}

// New creates a new server with all its routes.
// The metrics route and middleware are only installed when m is not nil.
func New(c Cloner, m *metrics.Metrics) *Server {
	s := &Server{
		Mux:     chi.NewRouter(),
		cloner:  c,
		metrics: m,
	}

	s.Use(
		middleware.Recoverer,
		request.InitRequest(configs.Config.Server.TrustedNetworks()...),
		Logger(),
	)
	if m != nil {
		s.Use(m.Middleware)
	}
	s.Use(
		CompressResponse,
		CannonicalPaths,
	)

	s.NotFound(func(w http.ResponseWriter, r *http.Request) {
		TextMsg(w, r, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})
	s.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		TextMsg(w, r, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	s.Mount("/api/info", infoRoutes())
	s.Mount("/clone", s.cloneRoutes())
	if m != nil {
		s.Method(http.MethodGet, "/metrics", m.Handler())
	}

	return s
}

// infoRoutes returns the route returning the service information.
func infoRoutes() http.Handler {
	r := chi.NewRouter()

	type versionInfo struct {
		Canonical string `json:"canonical"`
		Release   string `json:"release"`
		Build     string `json:"build"`
	}

	type fetcherInfo struct {
		MaxAttempts int     `json:"max_attempts"`
		RetryDelay  float64 `json:"retry_delay"`
		Timeout     float64 `json:"timeout"`
		Concurrency int     `json:"concurrency"`
	}

	type rendererInfo struct {
		Engine           string   `json:"engine"`
		Stealth          bool     `json:"stealth"`
		Timeout          float64  `json:"timeout"`
		SettleDelay      float64  `json:"settle_delay"`
		BlockedResources []string `json:"blocked_resources"`
	}

	type serviceInfo struct {
		Version   versionInfo  `json:"version"`
		GoVersion string       `json:"go_version"`
		Fetcher   fetcherInfo  `json:"fetcher"`
		Renderer  rendererInfo `json:"renderer"`
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		canonical := configs.Version()
		release, build, _ := strings.Cut(canonical, "-")
		cf := configs.Config.Fetcher
		cr := configs.Config.Renderer

		res := serviceInfo{
			Version: versionInfo{
				Canonical: canonical,
				Release:   release,
				Build:     build,
			},
			GoVersion: runtime.Version(),
			Fetcher: fetcherInfo{
				MaxAttempts: cf.MaxAttempts,
				RetryDelay:  cf.RetryDelay.Value().Seconds(),
				Timeout:     cf.Timeout.Value().Seconds(),
				Concurrency: cf.Concurrency,
			},
			Renderer: rendererInfo{
				Engine:           cr.Engine,
				Stealth:          cr.Stealth,
				Timeout:          cr.Timeout.Value().Seconds(),
				SettleDelay:      cr.SettleDelay.Value().Seconds(),
				BlockedResources: cr.BlockedResources,
			},
		}

		Render(w, r, http.StatusOK, res)
	})

	return r
}

// GetReqID returns the request ID.
func GetReqID(r *http.Request) string {
	id, _ := request.CheckReqID(r.Context())
	return id
}

// Log returns a log entry including the request ID.
func Log(r *http.Request) *slog.Logger {
	return slog.With(slog.String("@id", GetReqID(r)))
}
