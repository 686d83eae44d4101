// SPDX-FileCopyrightText: © 2020 Radhi Fadlillah
// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: MIT

// Package archiver turns a rendered HTML document into a single self-contained
// file. It fetches every external visual resource (stylesheets, images, inline
// background images), converts them to data URIs and rewrites the document so
// it can be displayed without any network access.
//
// The pipeline is made of small steps that can be used independently:
//
//   - [CollectStyles] and [Archiver.MergeStyles] build one stylesheet out of
//     a document's inline and linked styles;
//   - [Discover] lists every image and background image reference;
//   - [Archiver.InlineAll] fetches references and rewrites their nodes;
//   - [Assemble] produces the final document.
package archiver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

const levelTrace = slog.LevelDebug - 10

const (
	defaultMaxAttempts = 5
	defaultRetryDelay  = 2 * time.Second
	defaultTimeout     = 10 * time.Second
	defaultConcurrency = 8
)

type ctxArchiverKey struct{}

// IsArchiverRequest returns true when an [http.Request] was made using the archiver.
func IsArchiverRequest(req *http.Request) bool {
	res, _ := req.Context().Value(ctxArchiverKey{}).(bool)
	return res
}

// Archiver holds the fetching policy (retries, timeout, concurrency) and
// a [Collector] that caches fetched resources.
// An Archiver is meant to be used for one document only; its cache lives as
// long as the instance.
type Archiver struct {
	collector Collector
	logger    *slog.Logger

	maxAttempts int
	retryDelay  time.Duration
	timeout     time.Duration
	concurrency int

	fetchGroup     *singleflight.Group
	fetchSemaphore *semaphore.Weighted
}

// Option is a function that can set an [Archiver] options.
type Option func(arc *Archiver)

// WithCollector sets a [Collector] to an [Archiver].
func WithCollector(collector Collector) Option {
	return func(arc *Archiver) {
		arc.collector = collector
	}
}

// WithClient sets the HTTP client used to fetch resources. It's a shortcut
// for a [DownloadCollector] using this client.
func WithClient(client *http.Client) Option {
	return func(arc *Archiver) {
		arc.collector = NewDownloadCollector(client)
	}
}

// WithLogger sets the archiver's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(arc *Archiver) {
		arc.logger = logger
	}
}

// WithConcurrency set the maximum concurrent downloads that
// can take place during archiving.
func WithConcurrency(v int) Option {
	return func(arc *Archiver) {
		if v > 0 {
			arc.concurrency = v
		}
	}
}

// WithRetry sets the maximum number of attempts for one resource and the fixed
// delay between two attempts.
func WithRetry(maxAttempts int, delay time.Duration) Option {
	return func(arc *Archiver) {
		if maxAttempts > 0 {
			arc.maxAttempts = maxAttempts
		}
		if delay >= 0 {
			arc.retryDelay = delay
		}
	}
}

// WithTimeout sets the timeout of a single fetch attempt.
func WithTimeout(timeout time.Duration) Option {
	return func(arc *Archiver) {
		if timeout > 0 {
			arc.timeout = timeout
		}
	}
}

// New creates a new [Archiver].
func New(options ...Option) *Archiver {
	arc := &Archiver{
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
		timeout:     defaultTimeout,
		concurrency: defaultConcurrency,
		fetchGroup:  &singleflight.Group{},
	}

	for _, fn := range options {
		fn(arc)
	}

	arc.fetchSemaphore = semaphore.NewWeighted(int64(arc.concurrency))

	if arc.collector == nil {
		arc.collector = NewDownloadCollector(http.DefaultClient)
	}
	if arc.logger == nil {
		arc.logger = nullLogger
	}

	return arc
}

// EstimatedDuration returns the worst case duration needed to fetch
// count resources: every resource exhausting its attempts, each attempt
// reaching its timeout, with the concurrency limit applied.
func (arc *Archiver) EstimatedDuration(count int) time.Duration {
	if count <= 0 {
		return 0
	}
	batches := (count + arc.concurrency - 1) / arc.concurrency
	perResource := time.Duration(arc.maxAttempts)*arc.timeout +
		time.Duration(arc.maxAttempts-1)*arc.retryDelay

	return time.Duration(batches) * perResource
}

func (arc *Archiver) log() *slog.Logger {
	return arc.logger
}

func (arc *Archiver) withArchiverContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxArchiverKey{}, true)
}
