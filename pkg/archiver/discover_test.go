// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: MIT

package archiver_test

import (
	"errors"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"codeberg.org/pageclone/pageclone/pkg/archiver"
)

func parseFixture(t *testing.T, name string) *html.Node {
	t.Helper()
	fd, err := os.Open("test-fixtures/" + name)
	require.NoError(t, err)
	defer fd.Close() //nolint:errcheck

	doc, err := html.Parse(fd)
	require.NoError(t, err)
	return doc
}

func parseHTML(t *testing.T, text string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(text))
	require.NoError(t, err)
	return doc
}

func mustParseURL(s string) *url.URL {
	u, err := url.Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

type refResult struct {
	Kind     archiver.ReferenceKind
	Original string
	URL      string
}

func simplifyRefs(refs []*archiver.Reference) []refResult {
	res := make([]refResult, len(refs))
	for i, r := range refs {
		res[i] = refResult{r.Kind, r.Original, r.URL}
	}
	return res
}

func TestDiscover(t *testing.T) {
	t.Run("page", func(t *testing.T) {
		assert := require.New(t)
		doc := parseFixture(t, "page.html")

		refs, err := archiver.Discover(doc, mustParseURL("https://example.net/dir/page.html"))
		assert.NoError(err)
		assert.Equal([]refResult{
			{archiver.RefImage, "/a.png", "https://example.net/a.png"},
			{archiver.RefImage, "img/lazy.png", "https://example.net/dir/img/lazy.png"},
			{archiver.RefImage, "/broken.png", "https://example.net/broken.png"},
			{archiver.RefBackground, "/bg.png", "https://example.net/bg.png"},
		}, simplifyRefs(refs))

		for _, ref := range refs {
			assert.NotNil(ref.Node)
		}
	})

	tests := []struct {
		name     string
		html     string
		expected []refResult
	}{
		{
			"base href",
			`<head><base href="https://cdn.example.org/assets/"></head><body><img src="x.png"></body>`,
			[]refResult{{archiver.RefImage, "x.png", "https://cdn.example.org/assets/x.png"}},
		},
		{
			"relative base href",
			`<head><base href="/static/"></head><body><img src="x.png"></body>`,
			[]refResult{{archiver.RefImage, "x.png", "https://example.net/static/x.png"}},
		},
		{
			"placeholder name",
			`<img src="/img/blank.gif" data-lazy-src="/real.jpg">`,
			[]refResult{{archiver.RefImage, "/real.jpg", "https://example.net/real.jpg"}},
		},
		{
			"placeholder without fallback",
			`<img src="/img/lazy-load.gif">`,
			[]refResult{{archiver.RefImage, "/img/lazy-load.gif", "https://example.net/img/lazy-load.gif"}},
		},
		{
			"data-src before data-lazy-src",
			`<img data-src="/one.jpg" data-lazy-src="/two.jpg">`,
			[]refResult{{archiver.RefImage, "/one.jpg", "https://example.net/one.jpg"}},
		},
		{
			"real src wins",
			`<img src="/photo.jpg" data-src="/other.jpg">`,
			[]refResult{{archiver.RefImage, "/photo.jpg", "https://example.net/photo.jpg"}},
		},
		{
			"embedded",
			`<img src="data:image/png;base64,AAAA"><p style="background-image: url(data:image/png;base64,AAAA)"></p>`,
			[]refResult{},
		},
		{
			"empty",
			`<img><img src=""><p style="background: none"></p>`,
			[]refResult{},
		},
		{
			"absolute",
			`<img src="https://img.example.com/a.png">`,
			[]refResult{{archiver.RefImage, "https://img.example.com/a.png", "https://img.example.com/a.png"}},
		},
		{
			"body background and image",
			`<body style="background:url(/body.png)"><img style="background-image:url('/under.png')" src="/over.png"></body>`,
			[]refResult{
				{archiver.RefBackground, "/body.png", "https://example.net/body.png"},
				{archiver.RefImage, "/over.png", "https://example.net/over.png"},
				{archiver.RefBackground, "/under.png", "https://example.net/under.png"},
			},
		},
		{
			"head is ignored",
			`<head><link rel="icon" href="/favicon.ico"><meta style="background:url(/x.png)"></head><body></body>`,
			[]refResult{},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert := require.New(t)
			refs, err := archiver.Discover(parseHTML(t, test.html), mustParseURL("https://example.net/page"))
			assert.NoError(err)
			assert.Equal(test.expected, simplifyRefs(refs))
		})
	}

	t.Run("malformed", func(t *testing.T) {
		assert := require.New(t)
		doc := parseHTML(t, `<img src="http://[::1"><img src="/ok.png">`)

		refs, err := archiver.Discover(doc, mustParseURL("https://example.net/"))
		assert.Equal([]refResult{
			{archiver.RefImage, "/ok.png", "https://example.net/ok.png"},
		}, simplifyRefs(refs))

		var refErr *archiver.MalformedReferenceError
		assert.True(errors.As(err, &refErr))
		assert.Equal("http://[::1", refErr.Value)
	})
}
