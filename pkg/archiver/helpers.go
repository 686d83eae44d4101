// SPDX-FileCopyrightText: © 2020 Radhi Fadlillah
// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: MIT

package archiver

import (
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/go-shiori/dom"
)

var rxStyleURL = regexp.MustCompile(`(?is)^url\((.*)\)$`)

// URLLogValue is a [slog.LogValuer] for URLs.
// It truncates the string when there too long (ie. data: URLs).
type URLLogValue string

// LogValue implements [slog.LogValuer].
func (s URLLogValue) LogValue() slog.Value {
	if len(s) > 256 {
		return slog.StringValue(string(s)[0:40] + "..." + string(s)[len(s)-40:])
	}

	return slog.StringValue(string(s))
}

type nodeLogValue struct {
	node *html.Node
}

// NodeLogValue is an [slog.LogValuer] for an [*html.Node].
// Its LogValue method renders and truncate the node as HTML.
func NodeLogValue(n *html.Node) slog.LogValuer {
	return &nodeLogValue{n}
}

func (n *nodeLogValue) LogValue() slog.Value {
	if n.node == nil {
		return slog.StringValue("<nil>")
	}
	if n.node.Type == html.TextNode {
		return slog.StringValue(n.node.Data)
	}

	var tagPreview strings.Builder
	tagPreview.WriteString("<")
	tagPreview.WriteString(n.node.Data)

	hasOtherAttributes := false
	for _, attr := range n.node.Attr {
		switch strings.ToLower(attr.Key) {
		case "id", "class", "rel", "name", "type", "role":
			fmt.Fprintf(&tagPreview, ` %s=%q`, attr.Key, attr.Val)
		case "src", "href", "data-src", "data-lazy-src":
			val := attr.Val
			if IsDataURI(val) {
				if v, _, ok := strings.Cut(val, ","); ok {
					val = v + ",***"
				}
			} else if strings.HasPrefix(val, "javascript:") {
				val = "javascript:***"
			}
			fmt.Fprintf(&tagPreview, ` %s=%q`, attr.Key, val)
		default:
			hasOtherAttributes = true
		}
	}
	if hasOtherAttributes {
		tagPreview.WriteString(" ...")
	}

	if n.node.FirstChild == nil {
		tagPreview.WriteString("/")
	}
	tagPreview.WriteString(">")
	return slog.StringValue(tagPreview.String())
}

func requestURI(s string) (uri string) {
	uri, _, _ = strings.Cut(s, "#")
	return
}

// resolveURL resolves a reference against a base URL.
// Absolute URLs and data URIs are returned unchanged.
func resolveURL(uri string, base *url.URL) (string, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return "", ErrSkippedURL
	}
	if IsDataURI(uri) {
		return uri, nil
	}

	tmp, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	if tmp.Scheme != "" {
		return uri, nil
	}
	if base == nil {
		return "", fmt.Errorf("no base URL to resolve %q", uri)
	}

	return base.ResolveReference(tmp).String(), nil
}

// documentBaseURL returns the document's base URL. A <base href> element,
// when present, is resolved against the given URL.
func documentBaseURL(doc *html.Node, base *url.URL) *url.URL {
	res := &url.URL{}
	if base != nil {
		*res = *base
	}

	if baseMeta := dom.QuerySelector(doc, "base[href]"); baseMeta != nil {
		if b := strings.TrimSpace(dom.GetAttribute(baseMeta, "href")); b != "" {
			if buri, err := url.Parse(b); err == nil {
				res = res.ResolveReference(buri)
			}
		}
	}

	return res
}

// sanitizeStyleURL sanitizes the URL in CSS by removing `url()`,
// quotation marks.
func sanitizeStyleURL(uri string) string {
	v := rxStyleURL.ReplaceAllString(strings.TrimSpace(uri), "$1")
	v = strings.TrimSpace(v)

	if n := len(v); n >= 2 && (v[0] == '"' || v[0] == '\'') && v[n-1] == v[0] {
		v = v[1 : n-1]
	}

	return unescapeCSSString(v)
}

// unescapeCSSString removes backslash escapes of non hexadecimal characters,
// (ie. \" or \)). Hexadecimal escapes are rare in URLs and left untouched.
func unescapeCSSString(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && !isHex(s[i+1]) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

// cssURL returns a quoted CSS url() token for the given URL.
func cssURL(uri string) string {
	return `url("` + strings.NewReplacer(`"`, `%22`, "\n", `%0A`).Replace(uri) + `")`
}
