// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package renderer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"

	"codeberg.org/pageclone/pageclone/pkg/archiver"
)

func TestNew(t *testing.T) {
	tests := []struct {
		engine   string
		expected any
	}{
		{"", &Rod{}},
		{"rod", &Rod{}},
		{"Rod", &Rod{}},
		{"chromedp", &Chromedp{}},
	}

	for _, test := range tests {
		t.Run(test.engine, func(t *testing.T) {
			r, err := New(test.engine)
			require.NoError(t, err)
			require.IsType(t, test.expected, r)
		})
	}

	t.Run("unknown", func(t *testing.T) {
		_, err := New("playwright")
		require.ErrorIs(t, err, ErrUnknownEngine)
		require.EqualError(t, err, `unknown renderer engine: "playwright"`)
	})
}

func TestOptions(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		assert := require.New(t)
		o := newOptions()
		assert.Equal(DefaultUserAgent, o.UserAgent)
		assert.Equal(60*time.Second, o.Timeout)
		assert.Equal(3*time.Second, o.SettleDelay)
		assert.Equal([]string{"font", "media", "websocket"}, o.BlockedResources)
		assert.NotNil(o.Logger)
	})

	t.Run("set", func(t *testing.T) {
		assert := require.New(t)
		o := NewRod(
			WithBrowserBin("/usr/bin/chromium"),
			WithNoSandbox(true),
			WithStealth(true),
			WithUserAgent(""),
			WithTimeout(0),
			WithSettleDelay(0),
			WithBlockedResources([]string{"Image"}),
			WithHeaders(map[string]string{"Accept-Language": "en"}),
			WithLogger(nil),
		).opts

		assert.Equal("/usr/bin/chromium", o.BrowserBin)
		assert.True(o.NoSandbox)
		assert.True(o.Stealth)
		assert.Equal(DefaultUserAgent, o.UserAgent)
		assert.Equal(60*time.Second, o.Timeout)
		assert.Equal(time.Duration(0), o.SettleDelay)
		assert.Equal(map[string]string{"Accept-Language": "en"}, o.Headers)
		assert.NotNil(o.Logger)

		assert.True(o.isBlocked("image"))
		assert.True(o.isBlocked(string(network.ResourceTypeImage)))
		assert.False(o.isBlocked(string(network.ResourceTypeFont)))
	})

	t.Run("blocked", func(t *testing.T) {
		o := newOptions()
		for _, rt := range []network.ResourceType{
			network.ResourceTypeFont,
			network.ResourceTypeMedia,
			network.ResourceTypeWebSocket,
		} {
			require.True(t, o.isBlocked(string(rt)), rt)
		}
		require.False(t, o.isBlocked(string(network.ResourceTypeStylesheet)))
		require.False(t, o.isBlocked(string(network.ResourceTypeImage)))
	})
}

func TestScripts(t *testing.T) {
	assert := require.New(t)
	assert.Contains(scrollScript(3*time.Second), "setTimeout(resolve, 3000)")
	assert.Equal("(() => 1)()", invokeScript("() => 1"))

	for _, s := range []string{imageScript, styleScript, scrollScript(0)} {
		assert.Regexp(`^\(\) => `, s)
	}
	assert.Contains(styleScript, "inlineStyles")
	assert.Contains(styleScript, "externalStyles")
	assert.Contains(styleScript, "sheets")
	assert.Contains(styleScript, "sheet.href || document.baseURI")
}

func TestNormalizeSnapshot(t *testing.T) {
	t.Run("cleanup", func(t *testing.T) {
		s := &Snapshot{
			Styles: archiver.StyleBundle{
				ExternalStyles: []string{"https://example.net/a.css", "", " "},
			},
			ImageURLs: []string{
				"https://example.net/a.png",
				"https://example.net/a.png",
				"",
				"data:image/gif;base64,R0lGODlhAQABAAAAACw=",
				"https://example.net/b.png",
			},
		}
		normalizeSnapshot(s)
		require.Equal(t, []string{"https://example.net/a.css"}, s.Styles.ExternalStyles)
		require.Equal(t, []string{"https://example.net/a.png", "https://example.net/b.png"}, s.ImageURLs)
	})

	t.Run("empty", func(t *testing.T) {
		s := &Snapshot{}
		normalizeSnapshot(s)
		require.Equal(t, []string{}, s.Styles.ExternalStyles)
		require.Equal(t, []string{}, s.ImageURLs)
	})
}

func TestRenderError(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		assert := require.New(t)
		err := newRenderError("https://example.net/", "navigate", context.DeadlineExceeded)
		assert.EqualError(err, "render https://example.net/: navigate: context deadline exceeded")
		assert.True(err.Timeout())
		assert.ErrorIs(err, context.DeadlineExceeded)

		var re *RenderError
		assert.ErrorAs(error(err), &re)
	})

	t.Run("canceled", func(t *testing.T) {
		err := newRenderError("https://example.net/", "navigate", context.Canceled)
		require.Equal(t, "canceled", err.Op)
		require.False(t, err.Timeout())
	})

	t.Run("other", func(t *testing.T) {
		err := newRenderError("https://example.net/", "launch browser", errors.New("no browser"))
		require.EqualError(t, err, "render https://example.net/: launch browser: no browser")
	})
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestNetworkIdle(t *testing.T) {
	newIdle := func() (*networkIdle, *fakeClock) {
		clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
		n := newNetworkIdle()
		n.now = clock.Now
		n.lastActivity = clock.Now()
		n.tick = time.Millisecond
		return n, clock
	}

	t.Run("counter", func(t *testing.T) {
		assert := require.New(t)
		n, clock := newIdle()

		n.handle(&network.EventRequestWillBeSent{})
		n.handle(&network.EventRequestWillBeSent{})
		n.handle(&network.EventLoadingFinished{})
		clock.Add(time.Second)
		active, elapsed := n.idleFor()
		assert.Equal(1, active)
		assert.Equal(time.Second, elapsed)

		n.handle(&network.EventLoadingFailed{})
		n.handle(&network.EventLoadingFailed{})
		active, elapsed = n.idleFor()
		assert.Equal(0, active)
		assert.Equal(time.Duration(0), elapsed)

		// Unrelated events don't count as activity
		clock.Add(time.Second)
		n.handle(&network.EventResponseReceived{})
		_, elapsed = n.idleFor()
		assert.Equal(time.Second, elapsed)
	})

	t.Run("wait", func(t *testing.T) {
		n, clock := newIdle()
		n.handle(&network.EventRequestWillBeSent{})

		done := make(chan error)
		go func() {
			done <- n.wait(500 * time.Millisecond)(context.Background())
		}()

		clock.Add(time.Second)
		select {
		case <-done:
			t.Fatal("wait returned with a request in flight")
		case <-time.After(20 * time.Millisecond):
		}

		n.handle(&network.EventLoadingFinished{})
		clock.Add(time.Second)
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("wait did not return")
		}
	})

	t.Run("canceled", func(t *testing.T) {
		n, _ := newIdle()
		n.handle(&network.EventRequestWillBeSent{})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.ErrorIs(t, n.wait(time.Second)(ctx), context.Canceled)
	})
}
