// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package renderer loads a page in a headless browser and takes a snapshot
// of the rendered document, once the network is idle and lazy content had
// a chance to load.
//
// Two engines are available: [Rod] (go-rod) and [Chromedp]. Both launch one
// browser per [Renderer.Render] call and close it before returning.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"codeberg.org/pageclone/pageclone/pkg/archiver"
)

// DefaultUserAgent is the desktop browser user agent sent by the rendering
// browser.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

const (
	defaultTimeout     = 60 * time.Second
	defaultSettleDelay = 3 * time.Second
	idleDuration       = 500 * time.Millisecond
)

// DefaultBlockedResources are the request types aborted while a page loads.
var DefaultBlockedResources = []string{"font", "media", "websocket"}

// ErrUnknownEngine is returned by [New] for an engine name it doesn't know.
var ErrUnknownEngine = errors.New("unknown renderer engine")

// Renderer produces a [Snapshot] of a live page.
type Renderer interface {
	Render(ctx context.Context, target string) (*Snapshot, error)
}

// Snapshot is a rendered page.
type Snapshot struct {
	// URL is the document URL once every redirection was followed.
	// It's the base URL of the document.
	URL string

	// HTML is the serialized DOM.
	HTML string

	// Styles holds the style materials read from the live page.
	Styles archiver.StyleBundle

	// ImageURLs lists the image sources found by an attribute scan
	// (src, data-src and data-lazy-src), data URIs excluded.
	ImageURLs []string
}

// RenderError is returned when a page could not be loaded.
type RenderError struct {
	URL string
	Op  string
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %s: %s", e.URL, e.Op, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// Timeout returns true when the page load exceeded its deadline.
func (e *RenderError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

func newRenderError(target, op string, err error) *RenderError {
	if errors.Is(err, context.Canceled) {
		op = "canceled"
	}
	return &RenderError{URL: target, Op: op, Err: err}
}

// Options holds the browser settings shared by every engine.
type Options struct {
	BrowserBin       string
	NoSandbox        bool
	Stealth          bool
	UserAgent        string
	Timeout          time.Duration
	SettleDelay      time.Duration
	BlockedResources []string
	Headers          map[string]string
	Logger           *slog.Logger
}

// Option is a function that sets renderer options.
type Option func(o *Options)

// WithBrowserBin sets the path of the browser executable.
// When empty, the engine looks for one.
func WithBrowserBin(bin string) Option {
	return func(o *Options) {
		o.BrowserBin = bin
	}
}

// WithNoSandbox disables the browser sandbox (needed in most containers).
func WithNoSandbox(v bool) Option {
	return func(o *Options) {
		o.NoSandbox = v
	}
}

// WithStealth hides the most common headless browser fingerprints.
// Only [Rod] supports it.
func WithStealth(v bool) Option {
	return func(o *Options) {
		o.Stealth = v
	}
}

// WithUserAgent sets the browser's user agent.
func WithUserAgent(ua string) Option {
	return func(o *Options) {
		if ua != "" {
			o.UserAgent = ua
		}
	}
}

// WithTimeout sets the maximum duration of a whole render.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.Timeout = d
		}
	}
}

// WithSettleDelay sets the wait after scrolling to the bottom of the page.
func WithSettleDelay(d time.Duration) Option {
	return func(o *Options) {
		if d >= 0 {
			o.SettleDelay = d
		}
	}
}

// WithBlockedResources sets the resource types (font, media, websocket,
// image...) aborted during page load.
func WithBlockedResources(types []string) Option {
	return func(o *Options) {
		o.BlockedResources = types
	}
}

// WithHeaders sets extra HTTP headers sent with every browser request.
func WithHeaders(headers map[string]string) Option {
	return func(o *Options) {
		o.Headers = headers
	}
}

// WithLogger sets the renderer's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

func newOptions(options ...Option) Options {
	o := Options{
		UserAgent:        DefaultUserAgent,
		Timeout:          defaultTimeout,
		SettleDelay:      defaultSettleDelay,
		BlockedResources: DefaultBlockedResources,
		Logger:           slog.New(slog.DiscardHandler),
	}
	for _, f := range options {
		f(&o)
	}
	return o
}

// isBlocked returns true when a request of the given resource type must
// be aborted. Types are compared case insensitively.
func (o Options) isBlocked(resourceType string) bool {
	return slices.ContainsFunc(o.BlockedResources, func(s string) bool {
		return strings.EqualFold(s, resourceType)
	})
}

// New returns the [Renderer] of the given engine ("rod" or "chromedp").
func New(engine string, options ...Option) (Renderer, error) {
	switch strings.ToLower(engine) {
	case "", "rod":
		return NewRod(options...), nil
	case "chromedp":
		return NewChromedp(options...), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, engine)
}

// Page scripts are function declarations. [invokeScript] turns them
// into an expression.

// scrollScript scrolls to the bottom of the page and resolves after the
// given delay.
func scrollScript(delay time.Duration) string {
	return fmt.Sprintf(`() => new Promise(resolve => {
	window.scrollTo(0, document.body ? document.body.scrollHeight : 0);
	setTimeout(resolve, %d);
})`, delay.Milliseconds())
}

// imageScript lists image sources and lazy image attributes.
const imageScript = `() => {
	const images = Array.from(document.querySelectorAll("img")).map(img => img.src);
	const lazy = Array.from(document.querySelectorAll("[data-src], [data-lazy-src]"))
		.map(el => el.getAttribute("data-src") || el.getAttribute("data-lazy-src"));
	return images.concat(lazy).filter(src => src && !src.startsWith("data:"));
}`

// styleScript reads the page's style materials. sheets holds the rule
// text of every readable stylesheet with the URL its rules are relative
// to. A stylesheet whose rules can't be read (cross origin) is left out.
const styleScript = `() => {
	const sheets = Array.from(document.styleSheets).map(sheet => {
		try {
			return {
				href: sheet.href || document.baseURI,
				text: Array.from(sheet.cssRules).map(rule => rule.cssText).join("\n"),
			};
		} catch (e) {
			return null;
		}
	}).filter(sheet => sheet && sheet.text);
	return {
		inlineStyles: Array.from(document.querySelectorAll("style")).map(el => el.innerHTML).join("\n"),
		externalStyles: Array.from(document.querySelectorAll('link[rel~="stylesheet"]'))
			.filter(el => el.href && !/\balternate\b/i.test(el.rel))
			.map(el => el.href),
		sheets: sheets,
	};
}`

func invokeScript(fn string) string {
	return "(" + fn + ")()"
}

// normalizeSnapshot cleans up the values returned by page scripts.
func normalizeSnapshot(s *Snapshot) {
	s.Styles.ExternalStyles = slices.DeleteFunc(s.Styles.ExternalStyles, func(v string) bool {
		return strings.TrimSpace(v) == ""
	})
	s.ImageURLs = slices.Compact(slices.DeleteFunc(s.ImageURLs, func(v string) bool {
		return v == "" || strings.HasPrefix(v, "data:")
	}))
	if s.Styles.ExternalStyles == nil {
		s.Styles.ExternalStyles = []string{}
	}
	if s.ImageURLs == nil {
		s.ImageURLs = []string{}
	}
}
