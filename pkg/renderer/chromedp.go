// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package renderer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// Chromedp renders pages with chromedp.
type Chromedp struct {
	opts Options
}

// NewChromedp returns a chromedp [Renderer].
func NewChromedp(options ...Option) *Chromedp {
	return &Chromedp{opts: newOptions(options...)}
}

func (r *Chromedp) allocatorOptions() []chromedp.ExecAllocatorOption {
	res := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(r.opts.UserAgent),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if r.opts.NoSandbox {
		res = append(res, chromedp.NoSandbox)
	}
	if r.opts.BrowserBin != "" {
		res = append(res, chromedp.ExecPath(r.opts.BrowserBin))
	}
	return res
}

// Render implements [Renderer]. A new browser is started for every call,
// and stopped before returning.
func (r *Chromedp) Render(ctx context.Context, target string) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	logger := r.opts.Logger.With(slog.String("url", target))

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, r.allocatorOptions()...)
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	idle := newNetworkIdle()
	chromedp.ListenTarget(taskCtx, func(ev any) {
		idle.handle(ev)
		if e, ok := ev.(*fetch.EventRequestPaused); ok {
			go r.interceptRequest(taskCtx, e)
		}
	})

	snapshot := &Snapshot{URL: target}
	awaitPromise := func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}

	actions := []chromedp.Action{network.Enable()}
	if len(r.opts.BlockedResources) > 0 {
		actions = append(actions, fetch.Enable())
	}
	if len(r.opts.Headers) > 0 {
		headers := make(network.Headers, len(r.opts.Headers))
		for k, v := range r.opts.Headers {
			headers[k] = v
		}
		actions = append(actions, network.SetExtraHTTPHeaders(headers))
	}
	actions = append(actions,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		idle.wait(idleDuration),
		chromedp.Evaluate(invokeScript(scrollScript(r.opts.SettleDelay)), nil, awaitPromise),
		chromedp.Evaluate(invokeScript(imageScript), &snapshot.ImageURLs),
		chromedp.OuterHTML("html", &snapshot.HTML, chromedp.ByQuery),
		chromedp.Evaluate(invokeScript(styleScript), &snapshot.Styles),
		chromedp.Location(&snapshot.URL),
	)

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, newRenderError(target, "render page", err)
	}

	if snapshot.URL == "" {
		snapshot.URL = target
	}

	normalizeSnapshot(snapshot)
	logger.Debug("page rendered",
		slog.String("final_url", snapshot.URL),
		slog.Int("images", len(snapshot.ImageURLs)),
		slog.Int("stylesheets", len(snapshot.Styles.ExternalStyles)),
	)
	return snapshot, nil
}

// interceptRequest aborts or continues a paused request.
func (r *Chromedp) interceptRequest(ctx context.Context, e *fetch.EventRequestPaused) {
	c := chromedp.FromContext(ctx)
	if c == nil || c.Target == nil {
		return
	}
	ctx = cdp.WithExecutor(ctx, c.Target)

	var err error
	if r.opts.isBlocked(string(e.ResourceType)) {
		err = fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient).Do(ctx)
	} else {
		err = fetch.ContinueRequest(e.RequestID).Do(ctx)
	}
	if err != nil && ctx.Err() == nil {
		r.opts.Logger.Debug("request interception", slog.Any("err", err))
	}
}

// networkIdle counts in-flight requests from network events.
type networkIdle struct {
	mu           sync.Mutex
	active       int
	lastActivity time.Time
	now          func() time.Time
	tick         time.Duration
}

func newNetworkIdle() *networkIdle {
	return &networkIdle{
		lastActivity: time.Now(),
		now:          time.Now,
		tick:         50 * time.Millisecond,
	}
}

func (n *networkIdle) handle(ev any) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch ev.(type) {
	case *network.EventRequestWillBeSent:
		n.active++
	case *network.EventLoadingFinished, *network.EventLoadingFailed:
		if n.active > 0 {
			n.active--
		}
	default:
		return
	}
	n.lastActivity = n.now()
}

func (n *networkIdle) idleFor() (int, time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.active, n.now().Sub(n.lastActivity)
}

// wait returns an action that blocks until no request was in flight
// for the duration d.
func (n *networkIdle) wait(d time.Duration) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		ticker := time.NewTicker(n.tick)
		defer ticker.Stop()
		for {
			if active, elapsed := n.idleFor(); active == 0 && elapsed >= d {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}
}

var _ Renderer = (*Chromedp)(nil)
