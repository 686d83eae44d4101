// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: MIT

package archiver

import (
	"net/url"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindBackgroundURL(t *testing.T) {
	tests := []struct {
		style    string
		expected string
		property string
	}{
		{`background-color: #fff; background-image: url('/bg.png'); color: red`, "/bg.png", "background-image"},
		{`background: #000 url(img/bg.png) no-repeat`, "img/bg.png", "background"},
		{`BACKGROUND-IMAGE:url( "a b.png" )`, "a b.png", "background-image"},
		{`background-image: image-set(url("a(1).png") 1x, url(b.png) 2x)`, "a(1).png", "background-image"},
		{`background-image: url("a\"b.png")`, `a"b.png`, "background-image"},
		{`mask: url(m.svg); background: url(b.png)`, "b.png", "background"},
		{`background-image: url(data:image/png;base64,AAAA), url(/next.png)`, "/next.png", "background-image"},
		{`background-image: url(#grad); fill: url(#other)`, "", ""},
		{`content: "background: url(x.png)"; color: red`, "", ""},
		{`background-color: red`, "", ""},
		{``, "", ""},
	}

	for _, test := range tests {
		t.Run(test.style, func(t *testing.T) {
			assert := require.New(t)
			u, ok := findBackgroundURL(test.style)
			if test.expected == "" {
				assert.False(ok)
				return
			}

			assert.True(ok)
			assert.Equal(test.expected, u.Value())
			assert.Equal(test.property, u.Property)
			assert.Equal(u.Raw, test.style[u.Start:u.End])
		})
	}
}

func TestReplaceStyleURL(t *testing.T) {
	assert := require.New(t)

	style := `background-color: #fff; background-image: url('/bg.png') ; color: red`
	u, ok := findBackgroundURL(style)
	assert.True(ok)

	res, ok := replaceStyleURL(style, u, "data:image/png;base64,AAAA")
	assert.True(ok)
	assert.Equal(`background-color: #fff; background-image: url("data:image/png;base64,AAAA") ; color: red`, res)

	// Bytes before and after the token are unchanged
	assert.Equal(style[:u.Start], res[:u.Start])
	assert.Equal(style[u.End:], res[len(res)-len(style)+u.End:])

	// The attribute changed since the scan
	_, ok = replaceStyleURL("color: red", u, "data:,")
	assert.False(ok)
}

func TestAbsolutizeStylesheet(t *testing.T) {
	assert := require.New(t)

	data, err := os.ReadFile("test-fixtures/style.css")
	assert.NoError(err)

	base, _ := url.Parse("https://cdn.example.net/css/style.css")
	res := absolutizeStylesheet(string(data), base)

	assert.Contains(res, `@import "https://cdn.example.net/css/print.css" print;`)
	assert.Contains(res, `.hero { background: url("https://cdn.example.net/img/hero.png") no-repeat; }`)
	assert.Contains(res, `src: url("https://cdn.example.net/css/fonts/body.woff2") format("woff2");`)
	assert.Contains(res, `h1 { color: #333; }`)

	res = absolutizeStylesheet(`a { background: url(data:image/gif;base64,R0lG) } b { fill: url(#x) }`, base)
	assert.Equal(`a { background: url(data:image/gif;base64,R0lG) } b { fill: url(#x) }`, res)
}

func TestSanitizeStyleURL(t *testing.T) {
	tests := [][2]string{
		{`url(a.png)`, "a.png"},
		{`url("a.png")`, "a.png"},
		{`url('a.png')`, "a.png"},
		{` url(  'a b.png'  ) `, "a b.png"},
		{`url("a\)b.png")`, "a)b.png"},
		{`url("a\"")`, `a"`},
	}

	for _, test := range tests {
		t.Run(test[0], func(t *testing.T) {
			require.Equal(t, test[1], sanitizeStyleURL(test[0]))
		})
	}
}
