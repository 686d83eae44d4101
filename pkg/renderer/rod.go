// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package renderer

import (
	"context"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"
)

// Rod renders pages with go-rod.
type Rod struct {
	opts Options
}

// NewRod returns a go-rod [Renderer].
func NewRod(options ...Option) *Rod {
	return &Rod{opts: newOptions(options...)}
}

func (r *Rod) launcher(ctx context.Context) *launcher.Launcher {
	l := launcher.New().
		Context(ctx).
		Headless(true).
		NoSandbox(r.opts.NoSandbox)

	if r.opts.BrowserBin != "" {
		l = l.Bin(r.opts.BrowserBin)
	}

	l.Set(flags.Flag("user-agent"), r.opts.UserAgent)
	l.Set(flags.Flag("disable-gpu"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("mute-audio"))
	if r.opts.Stealth {
		l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
		l.Delete(flags.Flag("enable-automation"))
	}

	return l
}

// Render implements [Renderer]. A new browser is launched for every call,
// and killed before returning.
func (r *Rod) Render(ctx context.Context, target string) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	logger := r.opts.Logger.With(slog.String("url", target))

	l := r.launcher(ctx)
	defer l.Cleanup()
	defer l.Kill()

	controlURL, err := l.Launch()
	if err != nil {
		return nil, newRenderError(target, "launch browser", err)
	}
	logger.Debug("browser launched", slog.String("control_url", controlURL))

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, newRenderError(target, "connect browser", err)
	}
	defer func() {
		if err := browser.Close(); err != nil {
			logger.Debug("closing browser", slog.Any("err", err))
		}
	}()

	page, err := r.newPage(browser)
	if err != nil {
		return nil, newRenderError(target, "create page", err)
	}

	if len(r.opts.Headers) > 0 {
		headers := make(proto.NetworkHeaders, len(r.opts.Headers))
		for k, v := range r.opts.Headers {
			headers[k] = gson.New(v)
		}
		if err := (proto.NetworkSetExtraHTTPHeaders{Headers: headers}).Call(page); err != nil {
			logger.Warn("extra headers not set", slog.Any("err", err))
		}
	}

	// Request interception and WaitRequestIdle can't share a page on recent
	// browsers: a page with blocked resources waits for a stable DOM instead.
	var waitIdle func()
	router, err := r.hijack(page)
	if err != nil {
		return nil, newRenderError(target, "intercept requests", err)
	}
	if router != nil {
		defer router.Stop() //nolint:errcheck
	} else {
		waitIdle = page.Context(ctx).WaitRequestIdle(idleDuration, nil, nil, nil)
	}

	p := page.Context(ctx)
	if err := p.Navigate(target); err != nil {
		return nil, newRenderError(target, "navigate", err)
	}

	if waitIdle != nil {
		waitIdle()
	} else {
		if err := p.WaitLoad(); err != nil {
			return nil, newRenderError(target, "wait load", err)
		}
		if err := p.WaitDOMStable(idleDuration, 0.1); err != nil {
			logger.Debug("DOM did not settle", slog.Any("err", err))
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, newRenderError(target, "wait network idle", err)
	}

	if _, err := p.Eval(scrollScript(r.opts.SettleDelay)); err != nil {
		return nil, newRenderError(target, "scroll", err)
	}

	snapshot := &Snapshot{URL: target}

	res, err := p.Eval(imageScript)
	if err != nil {
		return nil, newRenderError(target, "scan images", err)
	}
	if err := res.Value.Unmarshal(&snapshot.ImageURLs); err != nil {
		return nil, newRenderError(target, "scan images", err)
	}

	if snapshot.HTML, err = p.HTML(); err != nil {
		return nil, newRenderError(target, "read document", err)
	}

	res, err = p.Eval(styleScript)
	if err != nil {
		return nil, newRenderError(target, "read styles", err)
	}
	if err := res.Value.Unmarshal(&snapshot.Styles); err != nil {
		return nil, newRenderError(target, "read styles", err)
	}

	if info, err := p.Info(); err == nil && info.URL != "" {
		snapshot.URL = info.URL
	}

	normalizeSnapshot(snapshot)
	logger.Debug("page rendered",
		slog.String("final_url", snapshot.URL),
		slog.Int("images", len(snapshot.ImageURLs)),
		slog.Int("stylesheets", len(snapshot.Styles.ExternalStyles)),
	)
	return snapshot, nil
}

func (r *Rod) newPage(browser *rod.Browser) (*rod.Page, error) {
	if r.opts.Stealth {
		return stealth.Page(browser)
	}
	return browser.Page(proto.TargetCreateTarget{})
}

// hijack aborts the requests of blocked resource types. It returns a nil
// router when nothing is blocked.
func (r *Rod) hijack(page *rod.Page) (*rod.HijackRouter, error) {
	if len(r.opts.BlockedResources) == 0 {
		return nil, nil
	}

	router := page.HijackRequests()
	err := router.Add("*", "", func(ctx *rod.Hijack) {
		if r.opts.isBlocked(string(ctx.Request.Type())) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})
	if err != nil {
		return nil, err
	}
	go router.Run()

	return router, nil
}

var _ Renderer = (*Rod)(nil)
