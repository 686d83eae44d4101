// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package clone turns a live web page into a single self-contained HTML
// document.
//
// A [Cloner] renders the page with a [renderer.Renderer], then runs the
// inlining pipeline on the snapshot: stylesheets are merged and applied as
// inline styles, images and background images are fetched and embedded as
// data URIs, scripts are removed and the final document is assembled.
package clone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/html"

	"codeberg.org/pageclone/pageclone/pkg/archiver"
	"codeberg.org/pageclone/pageclone/pkg/cssinline"
	"codeberg.org/pageclone/pageclone/pkg/renderer"
)

// ErrInvalidTarget is returned for a target that is not an absolute
// http or https URL.
var ErrInvalidTarget = errors.New("invalid target URL")

// Result is the outcome of a successful clone.
type Result struct {
	ID               string  `json:"id"`
	URL              string  `json:"url"`
	HTML             string  `json:"html"`
	TimeTaken        float64 `json:"timeTaken"`
	TotalResources   int     `json:"totalResources"`
	EstimatedTimeout float64 `json:"estimatedTimeout"`
	Inlined          int     `json:"inlined"`
	Failed           int     `json:"failed"`
}

// Observer receives the outcome of every clone.
type Observer interface {
	ObserveClone(d time.Duration, inlined, failed int, err error)
}

// Cloner runs clone operations. It's safe for concurrent use; every call
// to [Cloner.Clone] uses its own browser and resource cache.
type Cloner struct {
	renderer   renderer.Renderer
	client     *http.Client
	fetchOpts  []archiver.Option
	retry      RetryPolicy
	assembly   archiver.AssembleOptions
	logger     *slog.Logger
	observer   Observer
	newID      func() string
	timeSource func() time.Time
}

// Option is a function that sets a [Cloner] option.
type Option func(c *Cloner)

// WithClient sets the HTTP client used to fetch resources.
func WithClient(client *http.Client) Option {
	return func(c *Cloner) {
		c.client = client
	}
}

// WithFetchOptions adds options to every archiver.
func WithFetchOptions(options ...archiver.Option) Option {
	return func(c *Cloner) {
		c.fetchOpts = append(c.fetchOpts, options...)
	}
}

// WithRetryPolicy sets the retry policy of the rendering step.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Cloner) {
		c.retry = p
	}
}

// WithAssembleOptions sets the final document's language and title.
func WithAssembleOptions(o archiver.AssembleOptions) Option {
	return func(c *Cloner) {
		c.assembly = o
	}
}

// WithLogger sets the cloner's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cloner) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver sets an [Observer].
func WithObserver(o Observer) Option {
	return func(c *Cloner) {
		c.observer = o
	}
}

// New returns a [Cloner] using the given renderer.
func New(r renderer.Renderer, options ...Option) *Cloner {
	c := &Cloner{
		renderer:   r,
		client:     http.DefaultClient,
		retry:      DefaultRetryPolicy(),
		logger:     slog.New(slog.DiscardHandler),
		newID:      uuid.NewString,
		timeSource: time.Now,
	}
	for _, f := range options {
		f(c)
	}
	if c.retry.Retryable == nil {
		c.retry.Retryable = isRenderError
	}
	return c
}

func isRenderError(err error) bool {
	var re *renderer.RenderError
	return errors.As(err, &re)
}

// ValidateTarget checks that target is an absolute http or https URL and
// returns it parsed.
func ValidateTarget(target string) (*url.URL, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, fmt.Errorf("%w: empty URL", ErrInvalidTarget)
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTarget, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidTarget, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: no host", ErrInvalidTarget)
	}
	return u, nil
}

// Clone renders target and returns the self-contained document.
//
// Rendering is retried following the cloner's [RetryPolicy]. Once the page
// is rendered, resource failures are logged and never fail the operation.
func (c *Cloner) Clone(ctx context.Context, target string) (res *Result, err error) {
	start := c.timeSource()
	id := c.newID()
	logger := c.logger.With(slog.String("clone_id", id))

	defer func() {
		if c.observer == nil {
			return
		}
		if err != nil {
			c.observer.ObserveClone(c.timeSource().Sub(start), 0, 0, err)
			return
		}
		c.observer.ObserveClone(c.timeSource().Sub(start), res.Inlined, res.Failed, nil)
	}()

	u, err := ValidateTarget(target)
	if err != nil {
		return nil, err
	}

	var snapshot *renderer.Snapshot
	err = c.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		logger.Debug("rendering page", slog.String("url", u.String()), slog.Int("attempt", attempt))
		var rerr error
		if snapshot, rerr = c.renderer.Render(ctx, u.String()); rerr != nil {
			logger.Warn("render failed", slog.Int("attempt", attempt), slog.Any("err", rerr))
		}
		return rerr
	})
	if err != nil {
		logger.Error("clone failed", slog.String("url", u.String()), slog.Any("err", err))
		return nil, err
	}

	res, err = c.process(ctx, logger, snapshot)
	if err != nil {
		return nil, err
	}

	res.ID = id
	res.TimeTaken = roundSeconds(c.timeSource().Sub(start))
	logger.Info("page cloned",
		slog.String("url", res.URL),
		slog.Float64("time_taken", res.TimeTaken),
		slog.Int("total_resources", res.TotalResources),
		slog.Int("inlined", res.Inlined),
		slog.Int("failed", res.Failed),
	)
	return res, nil
}

// process runs the inlining pipeline on a rendered page.
func (c *Cloner) process(ctx context.Context, logger *slog.Logger, snapshot *renderer.Snapshot) (*Result, error) {
	base, err := url.Parse(snapshot.URL)
	if err != nil {
		return nil, fmt.Errorf("snapshot URL: %w", err)
	}

	doc, err := html.Parse(strings.NewReader(snapshot.HTML))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	collector := archiver.NewDownloadCollector(c.client)
	arc := archiver.New(append([]archiver.Option{
		archiver.WithCollector(collector),
		archiver.WithLogger(logger),
	}, c.fetchOpts...)...)
	ctx = archiver.WithReferrer(ctx, snapshot.URL)

	bundle := snapshot.Styles
	if bundle.InlineStyles == "" && len(bundle.ExternalStyles) == 0 && bundle.FontFaces == "" && len(bundle.Sheets) == 0 {
		bundle = archiver.CollectStyles(doc, base)
	}

	stylesheet := arc.MergeStyles(ctx, bundle)

	stats := cssinline.ApplyNode(doc, stylesheet)
	logger.Debug("styles applied",
		slog.Int("rules", stats.Rules),
		slog.Int("retained", stats.Retained),
		slog.Int("skipped", stats.Skipped),
		slog.Int("elements", stats.Elements),
	)

	refs, err := archiver.Discover(doc, base)
	if err != nil {
		logger.Warn("malformed references", slog.Any("err", err))
	}

	report := arc.InlineAll(ctx, refs)
	size := 0
	for res := range collector.Resources() {
		size += len(res.Data)
	}
	logger.Debug("resources inlined",
		slog.Any("report", report),
		slog.Int("collected", collector.Len()),
		slog.Int("collected_bytes", size),
	)

	text, err := archiver.Assemble(doc, stylesheet, c.assembly)
	if err != nil {
		return nil, fmt.Errorf("assemble document: %w", err)
	}

	return &Result{
		URL:            snapshot.URL,
		HTML:           text,
		TotalResources: len(bundle.ExternalStyles) + report.Total,
		EstimatedTimeout: roundSeconds(
			arc.EstimatedDuration(len(bundle.ExternalStyles)) + arc.EstimatedDuration(report.Total),
		),
		Inlined: report.Inlined,
		Failed:  report.Failed,
	}, nil
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
