// SPDX-FileCopyrightText: © 2020 Radhi Fadlillah
// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: MIT

package archiver

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	_ "image/gif"  // GIF decoder
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder

	_ "golang.org/x/image/bmp"  // BMP decoder
	_ "golang.org/x/image/tiff" // TIFF decoder
	_ "golang.org/x/image/webp" // WEBP decoder

	"github.com/gabriel-vasile/mimetype"
)

const (
	acceptImageHeader = "image/webp,image/svg+xml,image/*,*/*;q=0.8"
	acceptCSSHeader   = "text/css,*/*;q=0.1"
)

type (
	ctxReferrerKey struct{}
	ctxAcceptKey   struct{}
)

// WithReferrer returns a context carrying the referrer sent with every
// resource request.
func WithReferrer(ctx context.Context, uri string) context.Context {
	return context.WithValue(ctx, ctxReferrerKey{}, uri)
}

func getReferrerContext(ctx context.Context) string {
	s, _ := ctx.Value(ctxReferrerKey{}).(string)
	return s
}

func withAcceptContext(ctx context.Context, accept string) context.Context {
	return context.WithValue(ctx, ctxAcceptKey{}, accept)
}

func getAcceptContext(ctx context.Context) string {
	s, _ := ctx.Value(ctxAcceptKey{}).(string)
	return s
}

// Fetch retrieves a remote resource and returns it as a [*Resource].
//
// Only http and https URLs are fetched, anything else fails immediately
// with [ErrUnsupportedScheme]. Every attempt is bounded by the archiver's
// timeout; a transport error, a timeout or a non 2xx status is retried after
// a fixed delay until the maximum number of attempts is reached.
// The returned error is then a [*FetchError] holding the last cause.
//
// Successful resources are kept in the [Collector] and concurrent calls for
// the same URL share the same download.
func (arc *Archiver) Fetch(ctx context.Context, uri string) (*Resource, error) {
	uri = requestURI(strings.TrimSpace(uri))

	u, err := url.Parse(uri)
	if err != nil {
		return nil, &FetchError{URL: uri, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &FetchError{URL: uri, Err: fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)}
	}
	if u.Host == "" {
		return nil, &FetchError{URL: uri, Err: fmt.Errorf("no host in %q", uri)}
	}

	if res, ok := arc.collector.Get(uri); ok {
		arc.log().LogAttrs(ctx, levelTrace, "cached resource", slog.Any("url", URLLogValue(uri)))
		return res, nil
	}

	// Any concurrent call for the same URL will wait for the first one to finish.
	result, err, _ := arc.fetchGroup.Do(uri, func() (any, error) {
		if res, ok := arc.collector.Get(uri); ok {
			return res, nil
		}
		res, err := arc.fetchWithRetry(ctx, uri)
		if err != nil {
			return nil, err
		}
		arc.collector.Set(uri, res)
		return res, nil
	})
	arc.fetchGroup.Forget(uri)

	if err != nil {
		return nil, err
	}
	return result.(*Resource), nil
}

func (arc *Archiver) fetchWithRetry(ctx context.Context, uri string) (*Resource, error) {
	log := arc.log().With(slog.Any("url", URLLogValue(uri)))

	var lastErr error
	attempt := 0
	for attempt < arc.maxAttempts {
		attempt++

		res, err := arc.fetchOnce(ctx, uri)
		if err == nil {
			log.LogAttrs(ctx, slog.LevelDebug, "fetched resource",
				slog.Int("attempt", attempt),
				slog.String("type", res.ContentType),
				slog.Int("size", len(res.Data)),
			)
			return res, nil
		}
		lastErr = err

		log.LogAttrs(ctx, slog.LevelWarn, "fetch attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", arc.maxAttempts),
			slog.Any("err", err),
		)

		// The caller gave up, there's no point in trying again.
		if ctx.Err() != nil {
			break
		}
		if attempt == arc.maxAttempts {
			break
		}

		t := time.NewTimer(arc.retryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, &FetchError{URL: uri, Attempts: attempt, Err: lastErr}
		case <-t.C:
		}
	}

	return nil, &FetchError{URL: uri, Attempts: attempt, Err: lastErr}
}

// fetchOnce performs one attempt, bounded by the archiver's timeout.
func (arc *Archiver) fetchOnce(ctx context.Context, uri string) (*Resource, error) {
	if err := arc.fetchSemaphore.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer arc.fetchSemaphore.Release(1)

	ctx, cancel := context.WithTimeout(ctx, arc.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(arc.withArchiverContext(ctx), http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	if accept := getAcceptContext(ctx); accept != "" {
		req.Header.Set("Accept", accept)
	}
	if referrer := getReferrerContext(ctx); referrer != "" {
		req.Header.Set("Referer", referrer)
	}

	rsp, err := arc.collector.Fetch(req)
	if err != nil {
		return nil, err
	}
	defer rsp.Body.Close() //nolint:errcheck

	if rsp.StatusCode/100 != 2 {
		io.Copy(io.Discard, io.LimitReader(rsp.Body, 4096)) //nolint:errcheck
		return nil, StatusError(rsp.StatusCode)
	}

	data, err := io.ReadAll(rsp.Body)
	if err != nil {
		return nil, err
	}

	return newResource(uri, rsp.Header.Get("Content-Type"), data), nil
}

// newResource builds a [*Resource] out of a response content.
// When the content type is missing, it defaults to a generic binary type.
// The non standard "binary/octet-stream" (served by some object storages)
// is replaced by a sniffed type.
func newResource(uri, contentType string, data []byte) *Resource {
	res := &Resource{
		URL:         uri,
		ContentType: defaultContentType,
		Data:        data,
	}

	if contentType = strings.TrimSpace(contentType); contentType != "" {
		if mt, params, err := mime.ParseMediaType(contentType); err == nil {
			res.ContentType = mt
			res.Charset = params["charset"]
		} else {
			mt, _, _ := strings.Cut(contentType, ";")
			res.ContentType = strings.ToLower(strings.TrimSpace(mt))
		}
	}

	if strings.EqualFold(res.ContentType, "binary/octet-stream") {
		sniffed := mimetype.Detect(data)
		mt, params, err := mime.ParseMediaType(sniffed.String())
		if err == nil {
			res.ContentType = mt
			res.Charset = params["charset"]
		}
	}

	// Collect image dimensions
	if strings.HasPrefix(res.ContentType, "image/") && res.ContentType != "image/svg+xml" {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			res.Width = cfg.Width
			res.Height = cfg.Height
		}
	}

	return res
}
