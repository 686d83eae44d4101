// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: MIT

package archiver_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"

	"codeberg.org/pageclone/pageclone/pkg/archiver"
	. "codeberg.org/pageclone/pageclone/pkg/archiver/testing" //revive:disable:dot-imports
)

func parseResult(t *testing.T, text string) *goquery.Document {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	require.NoError(t, err)
	return d
}

func TestAssemble(t *testing.T) {
	t.Run("page", func(t *testing.T) {
		assert := require.New(t)
		doc := parseFixture(t, "page.html")

		res, err := archiver.Assemble(doc, "h1 { color: red; }", archiver.AssembleOptions{})
		assert.NoError(err)
		assert.True(strings.HasPrefix(res, "<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"UTF-8\">\n"))
		assert.NotContains(res, "<script")
		assert.NotContains(res, "onclick")
		assert.NotContains(res, "javascript:")

		d := parseResult(t, res)
		assert.Equal("Cloned Page", d.Find("title").Text())
		assert.Equal(1, d.Find("style").Length())
		assert.Equal("h1 { color: red; }", d.Find("style").Text())
		assert.Equal("width=device-width, initial-scale=1.0", d.Find(`meta[name="viewport"]`).AttrOr("content", ""))
		assert.Equal("#", d.Find("a").AttrOr("href", ""))
		assert.Equal(3, d.Find("body img").Length())
		assert.Equal("Hello", d.Find("h1").Text())
	})

	t.Run("options", func(t *testing.T) {
		assert := require.New(t)
		res, err := archiver.Assemble(parseHTML(t, "<p>x</p>"), "", archiver.AssembleOptions{
			Lang:  "pt-BR",
			Title: `Página "clonada" <1>`,
		})
		assert.NoError(err)

		d := parseResult(t, res)
		assert.Equal("pt-BR", d.Find("html").AttrOr("lang", ""))
		assert.Equal(`Página "clonada" <1>`, d.Find("title").Text())
	})

	t.Run("style end tag", func(t *testing.T) {
		assert := require.New(t)
		css := `p::after { content: "</style><script>alert(1)</script>"; }`

		res, err := archiver.Assemble(parseHTML(t, "<p>x</p>"), css, archiver.AssembleOptions{})
		assert.NoError(err)

		d := parseResult(t, res)
		assert.Equal(0, d.Find("script").Length())
		assert.Equal(1, d.Find("style").Length())
		assert.Equal(`p::after { content: "<\/style><script>alert(1)</script>"; }`, d.Find("style").Text())
	})

	t.Run("no script survives", func(t *testing.T) {
		for n := range 6 {
			t.Run(fmt.Sprintf("%d scripts", n), func(t *testing.T) {
				assert := require.New(t)
				b := new(strings.Builder)
				b.WriteString("<html><head>")
				for i := range n {
					if i%3 == 0 {
						fmt.Fprintf(b, `<script src="/s%d.js"></script>`, i)
					}
				}
				b.WriteString("</head><body><div>")
				for i := range n {
					switch i % 3 {
					case 1:
						fmt.Fprintf(b, `<script>var a%d = "</div>";</script>`, i)
					case 2:
						fmt.Fprintf(b, `<section><script type="module">import x%d from "/m.js"</script></section>`, i)
					}
				}
				b.WriteString("</div></body></html>")

				res, err := archiver.Assemble(parseHTML(t, b.String()), "", archiver.AssembleOptions{})
				assert.NoError(err)
				assert.Equal(0, parseResult(t, res).Find("script").Length())
				assert.NotContains(res, "<script")
			})
		}
	})
}

// TestPipeline runs every step on a page with a reachable stylesheet,
// an image and an unreachable image.
func TestPipeline(t *testing.T) {
	assert := require.New(t)
	client, mt := NewMockClient()
	mt.RegisterResponder("GET", "https://example.net/css/style.css", NewFileResponder("style.css"))
	mt.RegisterResponder("GET", "https://example.net/a.png", NewFileResponder("a.png"))
	mt.RegisterResponder("GET", "https://example.net/dir/img/lazy.png", NewFileResponder("a.png"))
	mt.RegisterResponder("GET", "https://example.net/bg.png", NewFileResponder("bg.png"))
	mt.RegisterResponder("GET", "https://example.net/broken.png", httpmock.NewStringResponder(404, ""))

	ctx := context.Background()
	base := mustParseURL("https://example.net/dir/page.html")
	arc := newTestArchiver(client)

	doc := parseFixture(t, "page.html")
	stylesheet := arc.MergeStyles(ctx, archiver.CollectStyles(doc, base))

	refs, err := archiver.Discover(doc, base)
	assert.NoError(err)
	report := arc.InlineAll(ctx, refs)
	assert.Equal(1, report.Failed)

	res, err := archiver.Assemble(doc, stylesheet, archiver.AssembleOptions{})
	assert.NoError(err)

	d := parseResult(t, res)
	assert.Equal(1, d.Find("style").Length())
	assert.Contains(d.Find("style").Text(), "h1 { color: #333; }")
	assert.True(strings.HasPrefix(d.Find(`img[alt="a"]`).AttrOr("src", ""), "data:image/png;base64,"))
	assert.Equal("/broken.png", d.Find(`img[alt="broken"]`).AttrOr("src", ""))
	assert.Equal(0, d.Find("script").Length())
}
