// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package server

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiter(t *testing.T) {
	assert := require.New(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	l := newRateLimiter(1, 2)
	l.now = func() time.Time { return now }

	ok, _ := l.reserve("a")
	assert.True(ok)
	ok, _ = l.reserve("a")
	assert.True(ok)
	ok, wait := l.reserve("a")
	assert.False(ok)
	assert.Equal(time.Second, wait)

	// A denied request doesn't consume a token
	now = now.Add(time.Second)
	ok, _ = l.reserve("a")
	assert.True(ok)

	ok, _ = l.reserve("b")
	assert.True(ok)
	assert.Equal(2, l.size())

	// Idle clients are evicted on the next sweep
	now = now.Add(2 * time.Hour)
	ok, _ = l.reserve("c")
	assert.True(ok)
	assert.Equal(1, l.size())
}

func TestIsJSON(t *testing.T) {
	tests := []struct {
		ct       string
		expected bool
	}{
		{"", true},
		{"application/json", true},
		{"Application/JSON; charset=utf-8", true},
		{"text/plain", false},
		{"multipart/form-data; boundary=x", false},
	}

	for _, test := range tests {
		t.Run(test.ct, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/", nil)
			if test.ct != "" {
				r.Header.Set("Content-Type", test.ct)
			}
			require.Equal(t, test.expected, isJSON(r))
		})
	}
}
