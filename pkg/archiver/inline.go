// SPDX-FileCopyrightText: © 2020 Radhi Fadlillah
// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: MIT

package archiver

import (
	"context"
	"log/slog"
	"strconv"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/go-shiori/dom"
)

// Report is the outcome of [Archiver.InlineAll].
type Report struct {
	Total   int `json:"total"`
	Inlined int `json:"inlined"`
	Failed  int `json:"failed"`
}

// LogValue implements [slog.LogValuer].
func (r Report) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("total", r.Total),
		slog.Int("inlined", r.Inlined),
		slog.Int("failed", r.Failed),
	)
}

// InlineAll fetches every reference and rewrites its node so it holds
// the resource's data URI instead of the network URL.
//
// Fetches run concurrently, within the archiver's concurrency limit.
// Nodes are only modified once every fetch has finished, one at a time.
// A reference that can't be fetched leaves its node untouched; it's logged
// and counted as failed in the returned [Report].
func (arc *Archiver) InlineAll(ctx context.Context, refs []*Reference) Report {
	report := Report{Total: len(refs)}
	results := make([]*Resource, len(refs))

	ctx = withAcceptContext(ctx, acceptImageHeader)

	g := new(errgroup.Group)
	g.SetLimit(arc.concurrency)
	for i, ref := range refs {
		g.Go(func() error {
			res, err := arc.Fetch(ctx, ref.URL)
			if err != nil {
				arc.log().LogAttrs(ctx, slog.LevelWarn, "resource not inlined",
					slog.Any("kind", ref.Kind),
					slog.Any("node", NodeLogValue(ref.Node)),
					slog.Any("err", err),
				)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	for i, ref := range refs {
		if results[i] != nil && arc.applyReference(ctx, ref, results[i]) {
			report.Inlined++
		} else {
			report.Failed++
		}
	}

	arc.log().LogAttrs(ctx, slog.LevelDebug, "inlining done", slog.Any("report", report))
	return report
}

// applyReference rewrites a reference's node with the resource's data URI.
func (arc *Archiver) applyReference(ctx context.Context, ref *Reference, res *Resource) bool {
	if ref.Node == nil {
		return false
	}

	switch ref.Kind {
	case RefImage:
		dom.SetAttribute(ref.Node, "src", res.DataURI())
		// A remaining network srcset would take precedence over src.
		for _, attr := range []string{"data-src", "data-lazy-src", "srcset", "data-srcset"} {
			dom.RemoveAttribute(ref.Node, attr)
		}
		setImageSize(ref.Node, res)
		return true

	case RefBackground:
		style, ok := replaceStyleURL(dom.GetAttribute(ref.Node, "style"), ref.token, res.DataURI())
		if !ok {
			arc.log().LogAttrs(ctx, slog.LevelWarn, "style attribute changed, background not inlined",
				slog.Any("node", NodeLogValue(ref.Node)),
			)
			return false
		}
		dom.SetAttribute(ref.Node, "style", style)
		return true
	}

	return false
}

// setImageSize gives an image the dimensions of its resource, unless
// the node already sets one of them. It keeps the page layout once the
// image is served from a data URI.
func setImageSize(node *html.Node, res *Resource) {
	if res.Width <= 0 || res.Height <= 0 {
		return
	}
	if dom.HasAttribute(node, "width") || dom.HasAttribute(node, "height") {
		return
	}
	dom.SetAttribute(node, "width", strconv.Itoa(res.Width))
	dom.SetAttribute(node, "height", strconv.Itoa(res.Height))
}
