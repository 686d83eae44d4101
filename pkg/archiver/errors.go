// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: MIT

package archiver

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrUnsupportedScheme is returned for URLs that can't be fetched
	// over HTTP. Such URLs are never retried.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")

	// ErrSkippedURL is returned for references that are not worth
	// fetching (empty values, fragments).
	ErrSkippedURL = errors.New("skip processing url")
)

// StatusError is the error of an attempt that received a non 2xx response.
type StatusError int

func (e StatusError) Error() string {
	return "HTTP " + strconv.Itoa(int(e))
}

// FetchError is returned when a resource could not be retrieved after
// exhausting all its attempts. Err holds the last underlying cause.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %d attempt(s): %s", URLLogValue(e.URL).LogValue().String(), e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// MalformedReferenceError is returned when a discovered reference can't be
// resolved against the document's base URL.
type MalformedReferenceError struct {
	Value string
	Err   error
}

func (e *MalformedReferenceError) Error() string {
	return fmt.Sprintf("malformed reference %q: %s", e.Value, e.Err)
}

func (e *MalformedReferenceError) Unwrap() error {
	return e.Err
}
