// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package metrics_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"

	"codeberg.org/pageclone/pageclone/internal/metrics"
)

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body, err := io.ReadAll(w.Result().Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics(t *testing.T) {
	t.Run("round tripper", func(t *testing.T) {
		assert := require.New(t)
		m := metrics.New()

		mt := httpmock.NewMockTransport()
		mt.RegisterResponder("GET", "https://example.net/a.png", httpmock.NewStringResponder(200, ""))
		mt.RegisterResponder("GET", "https://example.net/b.png", httpmock.NewStringResponder(404, ""))
		client := &http.Client{Transport: m.RoundTripper(mt)}

		for _, u := range []string{"https://example.net/a.png", "https://example.net/a.png", "https://example.net/b.png"} {
			rsp, err := client.Get(u)
			assert.NoError(err)
			rsp.Body.Close() //nolint:errcheck
		}

		text := scrape(t, m)
		assert.Contains(text, `pageclone_fetch_requests_total{code="200"} 2`)
		assert.Contains(text, `pageclone_fetch_requests_total{code="404"} 1`)
		assert.Contains(text, `pageclone_fetch_request_duration_seconds_count 3`)
	})

	t.Run("clones", func(t *testing.T) {
		assert := require.New(t)
		m := metrics.New()

		m.ObserveClone(3*time.Second, 4, 1, nil)
		m.ObserveClone(time.Second, 0, 0, errors.New("render failed"))

		text := scrape(t, m)
		assert.Contains(text, `pageclone_clones_total{result="success"} 1`)
		assert.Contains(text, `pageclone_clones_total{result="failure"} 1`)
		assert.Contains(text, `pageclone_clone_duration_seconds_count 1`)
		assert.Contains(text, `pageclone_resources_total{result="inlined"} 4`)
		assert.Contains(text, `pageclone_resources_total{result="failed"} 1`)
	})

	t.Run("middleware", func(t *testing.T) {
		m := metrics.New()
		h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/clone", nil))

		require.Contains(t, scrape(t, m), `pageclone_http_requests_total{code="418",method="post"} 1`)
	})
}
