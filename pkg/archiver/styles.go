// SPDX-FileCopyrightText: © 2020 Radhi Fadlillah
// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: MIT

package archiver

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/sync/errgroup"

	"github.com/go-shiori/dom"
)

// StyleBundle holds the style materials of a document: the text of its
// <style> elements, the URLs of its linked stylesheets and, when a live
// browser collected it, the text of its @font-face rules and the rules
// of every readable stylesheet.
type StyleBundle struct {
	InlineStyles   string       `json:"inlineStyles"`
	ExternalStyles []string     `json:"externalStyles"`
	FontFaces      string       `json:"fontFaces"`
	Sheets         []StyleSheet `json:"sheets,omitempty"`
}

// StyleSheet is the rule text of one stylesheet, as read from a live
// page. Href is the stylesheet URL, or the document URL for a <style>
// element. URLs in Text are relative to Href.
type StyleSheet struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

// CollectStyles builds a [StyleBundle] out of a parsed document.
// Linked stylesheet URLs are resolved against the document's base URL
// and listed in document order. It never modifies the document.
func CollectStyles(doc *html.Node, base *url.URL) StyleBundle {
	baseURL := documentBaseURL(doc, base)
	res := StyleBundle{ExternalStyles: []string{}}

	inline := []string{}
	for _, node := range dom.QuerySelectorAll(doc, "style, link[href]") {
		switch dom.TagName(node) {
		case "style":
			if text := dom.TextContent(node); strings.TrimSpace(text) != "" {
				inline = append(inline, text)
			}
		case "link":
			if !isStylesheetLink(node) {
				continue
			}
			uri, err := resolveURL(dom.GetAttribute(node, "href"), baseURL)
			if err != nil {
				continue
			}
			res.ExternalStyles = append(res.ExternalStyles, uri)
		}
	}

	res.InlineStyles = strings.Join(inline, "\n")
	return res
}

func isStylesheetLink(node *html.Node) bool {
	isStylesheet := false
	for _, rel := range strings.Fields(dom.GetAttribute(node, "rel")) {
		switch strings.ToLower(rel) {
		case "stylesheet":
			isStylesheet = true
		case "alternate":
			return false
		}
	}
	return isStylesheet
}

// MergeStyles fetches every external stylesheet of a [StyleBundle]
// and concatenates the bundle into one stylesheet: inline styles first,
// then each external stylesheet in bundle order, then the font faces
// and finally the live stylesheets.
//
// A stylesheet that can't be fetched contributes an empty segment and
// never prevents the merge. URLs found in a fetched stylesheet are made
// absolute against that stylesheet's URL, so they remain valid once the
// text is embedded in another document. The same goes for live
// stylesheets, made absolute against their own Href. A live stylesheet
// whose Href was already merged as an external stylesheet is skipped.
func (arc *Archiver) MergeStyles(ctx context.Context, bundle StyleBundle) string {
	segments := make([]string, len(bundle.ExternalStyles))
	ctx = withAcceptContext(ctx, acceptCSSHeader)

	g := new(errgroup.Group)
	g.SetLimit(arc.concurrency)
	for i, uri := range bundle.ExternalStyles {
		g.Go(func() error {
			text, err := arc.fetchStylesheet(ctx, uri)
			if err != nil {
				arc.log().LogAttrs(ctx, slog.LevelWarn, "stylesheet not merged",
					slog.Any("url", URLLogValue(uri)),
					slog.Any("err", err),
				)
				return nil
			}
			segments[i] = text
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	merged := map[string]bool{}
	for i, uri := range bundle.ExternalStyles {
		if segments[i] != "" {
			merged[uri] = true
		}
	}

	parts := make([]string, 0, len(segments)+len(bundle.Sheets)+2)
	parts = append(parts, bundle.InlineStyles)
	parts = append(parts, segments...)
	parts = append(parts, bundle.FontFaces)
	for _, sheet := range bundle.Sheets {
		if strings.TrimSpace(sheet.Text) == "" || merged[sheet.Href] {
			continue
		}
		parts = append(parts, liveStylesheet(sheet))
	}

	return strings.Join(parts, "\n")
}

func (arc *Archiver) fetchStylesheet(ctx context.Context, uri string) (string, error) {
	res, err := arc.Fetch(ctx, uri)
	if err != nil {
		return "", err
	}

	// The merged text ends up in an UTF-8 document. A stylesheet with
	// another declared charset is converted.
	data := res.Data
	if res.Charset != "" && !strings.EqualFold(res.Charset, "utf-8") {
		r, err := charset.NewReaderLabel(res.Charset, bytes.NewReader(data))
		if err == nil {
			if data, err = io.ReadAll(r); err != nil {
				return "", err
			}
		}
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	base, err := url.Parse(res.URL)
	if err != nil {
		return string(data), nil
	}

	return absolutizeStylesheet(string(data), base), nil
}

func liveStylesheet(sheet StyleSheet) string {
	base, err := url.Parse(sheet.Href)
	if err != nil || !base.IsAbs() {
		return sheet.Text
	}
	return absolutizeStylesheet(sheet.Text, base)
}
