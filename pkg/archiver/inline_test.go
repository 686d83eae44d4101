// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: MIT

package archiver_test

import (
	"context"
	"strings"
	"testing"

	"github.com/go-shiori/dom"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"

	"codeberg.org/pageclone/pageclone/pkg/archiver"
	. "codeberg.org/pageclone/pageclone/pkg/archiver/testing" //revive:disable:dot-imports
)

func TestInlineAll(t *testing.T) {
	t.Run("page", func(t *testing.T) {
		assert := require.New(t)
		client, mt := NewMockClient()
		mt.RegisterResponder("GET", "https://example.net/a.png", NewFileResponder("a.png"))
		mt.RegisterResponder("GET", "https://example.net/dir/img/lazy.png", NewFileResponder("a.png"))
		mt.RegisterResponder("GET", "https://example.net/bg.png", NewFileResponder("bg.png"))
		mt.RegisterResponder("GET", "https://example.net/broken.png", httpmock.NewStringResponder(404, ""))

		doc := parseFixture(t, "page.html")
		refs, err := archiver.Discover(doc, mustParseURL("https://example.net/dir/page.html"))
		assert.NoError(err)

		arc := newTestArchiver(client, archiver.WithConcurrency(2))
		report := arc.InlineAll(context.Background(), refs)
		assert.Equal(archiver.Report{Total: 4, Inlined: 3, Failed: 1}, report)
		assert.Equal(5, mt.GetCallCountInfo()["GET https://example.net/broken.png"])

		images := dom.GetElementsByTagName(doc, "img")
		assert.Len(images, 3)

		for _, img := range images {
			assert.False(dom.HasAttribute(img, "data-src"))
			assert.False(dom.HasAttribute(img, "data-lazy-src"))
		}
		assert.True(strings.HasPrefix(dom.GetAttribute(images[0], "src"), "data:image/png;base64,"))
		assert.True(strings.HasPrefix(dom.GetAttribute(images[1], "src"), "data:image/png;base64,"))
		assert.Equal("/broken.png", dom.GetAttribute(images[2], "src"))

		style := dom.GetAttribute(dom.QuerySelector(doc, ".hero"), "style")
		assert.True(strings.HasPrefix(style, `background-color: #fff; background-image: url("data:image/png;base64,`), style)
		assert.True(strings.HasSuffix(style, `"); color: red`), style)
	})

	t.Run("srcset", func(t *testing.T) {
		assert := require.New(t)
		client, mt := NewMockClient()
		mt.RegisterResponder("GET", "https://example.net/a.png", NewFileResponder("a.png"))

		doc := parseHTML(t, `<img src="/a.png" srcset="/a-2x.png 2x" data-srcset="/a-3x.png 3x" alt="a">`)
		refs, _ := archiver.Discover(doc, mustParseURL("https://example.net/"))

		report := newTestArchiver(client).InlineAll(context.Background(), refs)
		assert.Equal(1, report.Inlined)

		img := dom.QuerySelector(doc, "img")
		assert.False(dom.HasAttribute(img, "srcset"))
		assert.False(dom.HasAttribute(img, "data-srcset"))
		assert.Equal("a", dom.GetAttribute(img, "alt"))
	})

	t.Run("image size", func(t *testing.T) {
		assert := require.New(t)
		client, mt := NewMockClient()
		mt.RegisterResponder("GET", "https://example.net/a.png", NewFileResponder("a.png"))

		doc := parseHTML(t, `<img src="/a.png" id="a"><img src="/a.png" width="40" id="b"><img src="/a.png" height="30" id="c">`)
		refs, _ := archiver.Discover(doc, mustParseURL("https://example.net/"))

		report := newTestArchiver(client).InlineAll(context.Background(), refs)
		assert.Equal(3, report.Inlined)

		a := dom.QuerySelector(doc, "#a")
		assert.Equal("4", dom.GetAttribute(a, "width"))
		assert.Equal("3", dom.GetAttribute(a, "height"))

		b := dom.QuerySelector(doc, "#b")
		assert.Equal("40", dom.GetAttribute(b, "width"))
		assert.False(dom.HasAttribute(b, "height"))

		c := dom.QuerySelector(doc, "#c")
		assert.False(dom.HasAttribute(c, "width"))
		assert.Equal("30", dom.GetAttribute(c, "height"))
	})

	t.Run("duplicates", func(t *testing.T) {
		assert := require.New(t)
		client, mt := NewMockClient()
		mt.RegisterResponder("GET", "https://example.net/a.png", NewFileResponder("a.png"))

		doc := parseHTML(t, `<img src="/a.png"><img src="a.png"><p style="background:url(https://example.net/a.png#x)"></p>`)
		refs, _ := archiver.Discover(doc, mustParseURL("https://example.net/"))
		assert.Len(refs, 3)

		report := newTestArchiver(client).InlineAll(context.Background(), refs)
		assert.Equal(archiver.Report{Total: 3, Inlined: 3}, report)
		assert.Equal(1, mt.GetTotalCallCount())
	})

	t.Run("empty", func(t *testing.T) {
		client, _ := NewMockClient()
		report := newTestArchiver(client).InlineAll(context.Background(), nil)
		require.Equal(t, archiver.Report{}, report)
	})
}
