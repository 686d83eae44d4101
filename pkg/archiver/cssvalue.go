// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: MIT

package archiver

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// styleURL is a url() token found in a declaration list.
// Start and End are byte offsets of the whole token in the source text.
type styleURL struct {
	Property string
	Raw      string
	Start    int
	End      int
}

// Value returns the token's URL without the url() wrapper and quotes.
func (u styleURL) Value() string {
	return sanitizeStyleURL(u.Raw)
}

// scanDeclarationURLs lists every url() token of a declaration list
// (a style attribute value) along with the property it belongs to.
//
// The scan relies on the CSS tokenizer, so parentheses inside strings,
// escaped quotes and nested functions (ie. image-set(url(a.png) 1x))
// don't confuse it.
func scanDeclarationURLs(style string) []styleURL {
	res := []styleURL{}
	lexer := css.NewLexer(parse.NewInputString(style))

	offset := 0
	depth := 0
	property := ""
	expectColon := false
	inValue := false

	for {
		tt, data := lexer.Next()
		if tt == css.ErrorToken {
			break
		}
		start := offset
		offset += len(data)

		switch tt {
		case css.WhitespaceToken, css.CommentToken:
			continue
		case css.IdentToken:
			if depth == 0 && !inValue {
				property = strings.ToLower(string(data))
				expectColon = true
				continue
			}
		case css.ColonToken:
			if depth == 0 && expectColon {
				inValue = true
				expectColon = false
				continue
			}
		case css.SemicolonToken:
			if depth == 0 {
				property = ""
				inValue = false
				expectColon = false
				continue
			}
		case css.FunctionToken, css.LeftParenthesisToken:
			depth++
		case css.RightParenthesisToken:
			if depth > 0 {
				depth--
			}
		case css.URLToken:
			if inValue {
				res = append(res, styleURL{
					Property: property,
					Raw:      string(data),
					Start:    start,
					End:      offset,
				})
			}
		}

		if !inValue {
			expectColon = false
		}
	}

	return res
}

// isBackgroundProperty returns true for declarations that can carry
// a background image.
func isBackgroundProperty(name string) bool {
	return name == "background-image" || name == "background"
}

// findBackgroundURL returns the first url() token of the first background
// declaration holding one. Data URIs and fragment only values are ignored.
func findBackgroundURL(style string) (styleURL, bool) {
	for _, u := range scanDeclarationURLs(style) {
		if !isBackgroundProperty(u.Property) {
			continue
		}
		v := u.Value()
		if v == "" || strings.HasPrefix(v, "#") || IsDataURI(v) {
			continue
		}
		return u, true
	}
	return styleURL{}, false
}

// replaceStyleURL replaces the token located at u's offsets by a url()
// token for uri. Every other byte of style is preserved.
// The replacement only happens when the bytes at the offsets still match
// the original token.
func replaceStyleURL(style string, u styleURL, uri string) (string, bool) {
	if u.Start < 0 || u.End > len(style) || u.Start > u.End || style[u.Start:u.End] != u.Raw {
		return style, false
	}

	var b strings.Builder
	b.Grow(len(style) - len(u.Raw) + len(uri) + 7)
	b.WriteString(style[:u.Start])
	b.WriteString(cssURL(uri))
	b.WriteString(style[u.End:])
	return b.String(), true
}

// absolutizeStylesheet rewrites every url() token and @import string of
// a stylesheet so they are absolute URLs, resolved against base.
// Data URIs and fragments are left as they are.
func absolutizeStylesheet(text string, base *url.URL) string {
	if base == nil {
		return text
	}

	lexer := css.NewLexer(parse.NewInputString(text))
	buf := new(bytes.Buffer)
	buf.Grow(len(text))
	inImport := false

	for {
		tt, data := lexer.Next()
		if tt == css.ErrorToken {
			break
		}

		switch tt {
		case css.AtKeywordToken:
			inImport = bytes.EqualFold(data, []byte("@import"))
		case css.URLToken:
			inImport = false
			if uri, ok := absoluteStyleValue(sanitizeStyleURL(string(data)), base); ok {
				buf.WriteString(cssURL(uri))
				continue
			}
		case css.StringToken:
			if inImport && len(data) >= 2 {
				inImport = false
				if uri, ok := absoluteStyleValue(unescapeCSSString(string(data[1:len(data)-1])), base); ok {
					buf.WriteString(`"` + strings.ReplaceAll(uri, `"`, `%22`) + `"`)
					continue
				}
			}
		case css.WhitespaceToken:
		default:
			inImport = false
		}

		buf.Write(data)
	}

	return buf.String()
}

func absoluteStyleValue(v string, base *url.URL) (string, bool) {
	if v == "" || strings.HasPrefix(v, "#") || IsDataURI(v) {
		return "", false
	}
	uri, err := resolveURL(v, base)
	if err != nil {
		return "", false
	}
	return uri, true
}
