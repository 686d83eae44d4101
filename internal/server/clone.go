// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"codeberg.org/pageclone/pageclone/configs"
	"codeberg.org/pageclone/pageclone/internal/clone"
	"codeberg.org/pageclone/pageclone/pkg/renderer"
)

const maxRequestBody = 1 << 20

type cloneRequest struct {
	URL string `json:"url"`
}

type cloneResponse struct {
	HTML             string  `json:"html"`
	TimeTaken        float64 `json:"timeTaken"`
	TotalResources   int     `json:"totalResources"`
	EstimatedTimeout float64 `json:"estimatedTimeout"`
}

func (s *Server) cloneRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(RateLimit(configs.Config.Server.RateLimit, configs.Config.Server.RateBurst))
	r.Post("/", s.cloneHandler)

	return r
}

func (s *Server) cloneHandler(w http.ResponseWriter, r *http.Request) {
	target, err := readCloneRequest(w, r)
	if err != nil {
		Err(w, r, err)
		return
	}

	res, err := s.cloner.Clone(r.Context(), target)
	if err != nil {
		Err(w, r, cloneError(r.Context(), err))
		return
	}

	Log(r).Debug("clone done", slog.String("clone_id", res.ID))
	Render(w, r, http.StatusOK, cloneResponse{
		HTML:             res.HTML,
		TimeTaken:        res.TimeTaken,
		TotalResources:   res.TotalResources,
		EstimatedTimeout: res.EstimatedTimeout,
	})
}

func readCloneRequest(w http.ResponseWriter, r *http.Request) (string, error) {
	if !isJSON(r) {
		return "", newHTTPError(http.StatusUnsupportedMediaType,
			errors.New("request body must be application/json"))
	}

	var payload cloneRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&payload); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return "", newHTTPError(http.StatusRequestEntityTooLarge, errors.New("request body too large"))
		}
		return "", newHTTPError(http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err))
	}

	target := strings.TrimSpace(payload.URL)
	if target == "" {
		return "", newHTTPError(http.StatusBadRequest, errors.New("url is required"))
	}
	return target, nil
}

// cloneError maps a clone failure to an HTTP error.
func cloneError(ctx context.Context, err error) error {
	var re *renderer.RenderError
	switch {
	case errors.Is(err, clone.ErrInvalidTarget):
		return newHTTPError(http.StatusBadRequest, err)
	case ctx.Err() != nil:
		// The client is gone; the status is only logged.
		return newHTTPError(499, err)
	case errors.As(err, &re):
		return newHTTPError(http.StatusBadGateway, fmt.Errorf("failed to clone page: %w", err))
	}
	return err
}
