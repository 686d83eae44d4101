// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package cssinline applies a stylesheet to an HTML document as inline
// style attributes.
//
// Every rule whose selector matches an element contributes its declarations
// to the element's style attribute, following the cascade: important
// declarations first, then selector specificity, then source order.
// Declarations already present in a style attribute take precedence, unless
// the applied declaration is important and the existing one is not.
//
// Rules that can't be expressed as inline styles (at-rules, pseudo-elements,
// dynamic pseudo-classes, selectors that can't be parsed) are kept in a
// dedicated <style> element, in the document's head.
package cssinline

import (
	"bytes"
	"regexp"
	"slices"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"github.com/go-shiori/dom"
	"golang.org/x/net/html"
)

// RetainedAttr is the attribute of the <style> element holding the
// retained rules.
const RetainedAttr = "data-pageclone-retained"

var rxDynamicPseudo = regexp.MustCompile(`(?i):(hover|focus|focus-within|focus-visible|active|visited|target|link|any-link)\b`)

// Stats holds the counters of one [ApplyNode] call.
type Stats struct {
	Rules    int // qualified rules applied to elements
	Retained int // rules kept in the retained <style> element
	Skipped  int // rules that could not be parsed
	Elements int // elements whose style attribute was set
}

// Apply parses markup, applies the stylesheet and returns the
// rendered document.
// When markup can't be parsed, it's returned unchanged with the error.
func Apply(markup, stylesheet string) (string, error) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return markup, err
	}

	ApplyNode(doc, stylesheet)

	buf := new(bytes.Buffer)
	if err := html.Render(buf, doc); err != nil {
		return markup, err
	}
	return buf.String(), nil
}

// ApplyNode applies the stylesheet to a parsed document.
// Only the body and its descendants receive style attributes. The document's
// own <style> elements are left in place.
func ApplyNode(doc *html.Node, stylesheet string) Stats {
	sheet := compile(stylesheet)
	stats := Stats{
		Rules:    sheet.applied,
		Retained: len(sheet.retained),
		Skipped:  sheet.skipped,
	}

	root := dom.QuerySelector(doc, "body")
	if root != nil && len(sheet.rules) > 0 {
		nodes := append([]*html.Node{root}, dom.GetElementsByTagName(root, "*")...)
		for _, n := range nodes {
			switch n.Data {
			case "script", "style", "template", "noscript":
				continue
			}
			if applyElement(n, sheet.rules) {
				stats.Elements++
			}
		}
	}

	setRetained(doc, sheet.retained)
	return stats
}

// candidate is a declaration matching an element.
type candidate struct {
	decl        *css.Declaration
	specificity cascadia.Specificity
	order       int
	index       int
}

// beats returns true when c takes precedence over other.
func (c candidate) beats(other candidate) bool {
	if c.decl.Important != other.decl.Important {
		return c.decl.Important
	}
	if c.specificity != other.specificity {
		return other.specificity.Less(c.specificity)
	}
	if c.order != other.order {
		return c.order > other.order
	}
	return c.index > other.index
}

func (c candidate) before(other candidate) bool {
	if c.order != other.order {
		return c.order < other.order
	}
	return c.index < other.index
}

// applyElement computes the declarations of a node and merges them
// with its style attribute. It returns false when nothing matched.
func applyElement(n *html.Node, rules []*styleRule) bool {
	winners := map[string]candidate{}
	for _, r := range rules {
		if !r.sel.Match(n) {
			continue
		}
		for i, decl := range r.declarations {
			c := candidate{decl: decl, specificity: r.specificity, order: r.order, index: i}
			prop := strings.ToLower(decl.Property)
			if prev, ok := winners[prop]; !ok || c.beats(prev) {
				winners[prop] = c
			}
		}
	}

	if len(winners) == 0 {
		return false
	}

	existing, err := parseInlineStyle(dom.GetAttribute(n, "style"))
	if err != nil {
		// An attribute we can't read is left as is.
		return false
	}

	applied := make([]string, 0, len(winners))
	for prop := range winners {
		applied = append(applied, prop)
	}
	slices.SortFunc(applied, func(a, b string) int {
		switch {
		case a == b:
			return 0
		case winners[a].before(winners[b]):
			return -1
		}
		return 1
	})

	existingByProp := map[string]*css.Declaration{}
	for _, decl := range existing {
		existingByProp[strings.ToLower(decl.Property)] = decl
	}

	result := make([]string, 0, len(applied)+len(existing))
	for _, prop := range applied {
		decl := winners[prop].decl
		if cur, ok := existingByProp[prop]; ok && (cur.Important || !decl.Important) {
			decl = cur
		}
		result = append(result, formatDeclaration(prop, decl))
	}

	seen := map[string]struct{}{}
	for _, decl := range existing {
		prop := strings.ToLower(decl.Property)
		if _, ok := winners[prop]; ok {
			continue
		}
		if _, ok := seen[prop]; ok {
			continue
		}
		seen[prop] = struct{}{}
		result = append(result, formatDeclaration(prop, existingByProp[prop]))
	}

	dom.SetAttribute(n, "style", strings.Join(result, " "))
	return true
}

func formatDeclaration(prop string, decl *css.Declaration) string {
	res := prop + ": " + decl.Value
	if decl.Important {
		res += " !important"
	}
	return res + ";"
}

// parseInlineStyle parses a style attribute value.
func parseInlineStyle(style string) ([]*css.Declaration, error) {
	style = strings.TrimRight(strings.TrimSpace(style), "; \t\n")
	if style == "" {
		return nil, nil
	}

	decls, err := parser.ParseDeclarations(style + ";")
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(decls, func(d *css.Declaration) bool {
		return d.Property == "" || d.Value == ""
	}), nil
}

// setRetained sets the content of the retained <style> element, creating
// it in the document's head when needed.
func setRetained(doc *html.Node, retained []string) {
	node := dom.QuerySelector(doc, "style["+RetainedAttr+"]")
	if len(retained) == 0 {
		if node != nil {
			node.Parent.RemoveChild(node)
		}
		return
	}

	if node == nil {
		node = dom.CreateElement("style")
		dom.SetAttribute(node, RetainedAttr, "")
		dom.AppendChild(getHead(doc), node)
	}
	dom.SetTextContent(node, strings.Join(retained, "\n"))
}

func getHead(doc *html.Node) *html.Node {
	if head := dom.QuerySelector(doc, "head"); head != nil {
		return head
	}

	head := dom.CreateElement("head")
	if root := dom.DocumentElement(doc); root != nil && root != doc {
		root.InsertBefore(head, root.FirstChild)
	} else {
		// dom.AppendChild ignores non element parents.
		doc.AppendChild(head)
	}
	return head
}
