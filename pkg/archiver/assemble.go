// SPDX-FileCopyrightText: © 2020 Radhi Fadlillah
// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: MIT

package archiver

import (
	"errors"
	"regexp"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	// DefaultLang is the document language used when none is given.
	DefaultLang = "en"
	// DefaultTitle is the document title used when none is given.
	DefaultTitle = "Cloned Page"
)

var (
	errNoBody = errors.New("document has no body")

	rxStyleEndTag = regexp.MustCompile(`(?i)</(style)`)
)

// AssembleOptions holds the values of the final document skeleton.
type AssembleOptions struct {
	Lang  string
	Title string
}

// Assemble removes every script from the document and returns the final
// HTML text: a fixed skeleton carrying the stylesheet in a single <style>
// element, followed by the document's body.
//
// On top of <script> elements, event handler attributes (on*) are removed
// and javascript: links are neutralized.
func Assemble(doc *html.Node, stylesheet string, opts AssembleOptions) (string, error) {
	if opts.Lang == "" {
		opts.Lang = DefaultLang
	}
	if opts.Title == "" {
		opts.Title = DefaultTitle
	}

	d := goquery.NewDocumentFromNode(doc)
	removeScripts(d)

	body := d.Find("body").First()
	if body.Length() == 0 {
		return "", errNoBody
	}
	bodyHTML, err := goquery.OuterHtml(body)
	if err != nil {
		return "", err
	}

	b := new(strings.Builder)
	b.Grow(len(stylesheet) + len(bodyHTML) + 256)
	b.WriteString("<!DOCTYPE html>\n")
	b.WriteString(`<html lang="` + html.EscapeString(opts.Lang) + "\">\n")
	b.WriteString("<head>\n")
	b.WriteString("<meta charset=\"UTF-8\">\n")
	b.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	b.WriteString("<title>" + html.EscapeString(opts.Title) + "</title>\n")
	b.WriteString("<style>")
	b.WriteString(escapeStyleText(stylesheet))
	b.WriteString("</style>\n")
	b.WriteString("</head>\n")
	b.WriteString(bodyHTML)
	b.WriteString("\n</html>\n")

	return b.String(), nil
}

// removeScripts removes script elements, event handler attributes and
// javascript: links.
func removeScripts(d *goquery.Document) {
	d.Find("script").Remove()

	d.Find("*").Each(func(_ int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			n.Attr = slices.DeleteFunc(n.Attr, func(a html.Attribute) bool {
				return len(a.Key) >= 2 && strings.EqualFold(a.Key[0:2], "on")
			})
		}
	})

	d.Find("[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(href)), "javascript:") {
			s.SetAttr("href", "#")
		}
	})
}

// escapeStyleText prevents a stylesheet from closing its <style> element.
func escapeStyleText(s string) string {
	return rxStyleEndTag.ReplaceAllString(s, `<\/$1`)
}
