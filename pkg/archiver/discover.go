// SPDX-FileCopyrightText: © 2020 Radhi Fadlillah
// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: MIT

package archiver

import (
	"errors"
	"log/slog"
	"net/url"
	"path"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/go-shiori/dom"
)

// ReferenceKind is the kind of node attribute holding a [Reference].
type ReferenceKind int

const (
	// RefImage is the source of an <img> element.
	RefImage ReferenceKind = iota + 1
	// RefBackground is a background image in a style attribute.
	RefBackground
)

func (k ReferenceKind) String() string {
	switch k {
	case RefImage:
		return "image"
	case RefBackground:
		return "background"
	}
	return "unknown"
}

// LogValue implements [slog.LogValuer].
func (k ReferenceKind) LogValue() slog.Value {
	return slog.StringValue(k.String())
}

// Reference is a network resource referenced by a document node.
// Original is the value as found in the document and URL its absolute
// form.
type Reference struct {
	Node     *html.Node
	Kind     ReferenceKind
	Original string
	URL      string

	token styleURL
}

var rxPlaceholderName = regexp.MustCompile(`(?i)(^(blank|spacer|empty|pixel|transparent|1x1)\.(gif|png|svg)$)|placeholder|lazy`)

// Discover lists, in document order, every image and background image
// reference found in the document's body.
//
// An <img> whose src is missing or is a lazy loading placeholder is read
// from its data-src or data-lazy-src attribute. Values that are already
// data URIs are skipped. Every value is resolved against the document's
// base URL (a <base href> element takes precedence over base).
//
// A reference that can't be resolved is left out of the result and
// reported as a [*MalformedReferenceError] in the returned error, which
// joins all of them. The returned references are valid in every case.
func Discover(doc *html.Node, base *url.URL) ([]*Reference, error) {
	baseURL := documentBaseURL(doc, base)

	root := doc
	if body := dom.QuerySelector(doc, "body"); body != nil {
		root = body
	}

	res := []*Reference{}
	errs := []error{}

	add := func(ref *Reference) {
		uri, err := resolveURL(ref.Original, baseURL)
		if err != nil {
			if !errors.Is(err, ErrSkippedURL) {
				errs = append(errs, &MalformedReferenceError{Value: ref.Original, Err: err})
			}
			return
		}
		ref.URL = uri
		res = append(res, ref)
	}

	nodes := dom.GetElementsByTagName(root, "*")
	if root.Type == html.ElementNode {
		nodes = append([]*html.Node{root}, nodes...)
	}

	for _, node := range nodes {
		if dom.TagName(node) == "img" {
			if src := imageSource(node); src != "" && !IsDataURI(src) && !strings.HasPrefix(src, "#") {
				add(&Reference{Node: node, Kind: RefImage, Original: src})
			}
		}

		if style := dom.GetAttribute(node, "style"); strings.Contains(strings.ToLower(style), "background") {
			if token, ok := findBackgroundURL(style); ok {
				add(&Reference{Node: node, Kind: RefBackground, Original: token.Value(), token: token})
			}
		}
	}

	return res, errors.Join(errs...)
}

// imageSource returns the source of an <img> element. When its src is
// missing or is a placeholder, data-src then data-lazy-src are used
// instead.
func imageSource(node *html.Node) string {
	src := strings.TrimSpace(dom.GetAttribute(node, "src"))
	if !isLazyPlaceholder(src) {
		return src
	}

	for _, attr := range []string{"data-src", "data-lazy-src"} {
		if v := strings.TrimSpace(dom.GetAttribute(node, attr)); v != "" {
			return v
		}
	}
	return src
}

func isLazyPlaceholder(src string) bool {
	if src == "" || IsDataURI(src) {
		return true
	}

	u, err := url.Parse(src)
	if err != nil {
		return false
	}
	return rxPlaceholderName.MatchString(path.Base(u.Path))
}
