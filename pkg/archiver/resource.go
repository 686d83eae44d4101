// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: MIT

package archiver

import (
	"bytes"
	"encoding/base64"
	"errors"
	"net/url"
	"strings"
)

const defaultContentType = "application/octet-stream"

var errInvalidDataURI = errors.New("invalid data URI")

// Resource is a fetched remote resource. It's the embeddable form of
// a network reference: its content and type are enough to build a data URI.
type Resource struct {
	URL         string
	ContentType string
	Charset     string
	Data        []byte
	Width       int
	Height      int
}

// MIMEType returns the resource's media type, with its charset parameter
// when there is one.
func (r *Resource) MIMEType() string {
	if r.Charset == "" {
		return r.ContentType
	}
	return r.ContentType + ";charset=" + r.Charset
}

// DataURI returns the resource as a "data:" URI using base64 encoding.
func (r *Resource) DataURI() string {
	ct := r.MIMEType()
	if ct == "" {
		ct = defaultContentType
	}

	var b strings.Builder
	b.Grow(len(ct) + base64.StdEncoding.EncodedLen(len(r.Data)) + 13)
	b.WriteString("data:")
	b.WriteString(ct)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(r.Data))
	return b.String()
}

// IsDataURI returns true when the given value is already in embedded form.
func IsDataURI(s string) bool {
	s = strings.TrimSpace(s)
	return len(s) >= 5 && strings.EqualFold(s[0:5], "data:")
}

// ParseDataURI decodes a "data:" URI and returns its media type and content.
// If the URI defines a "base64" encoding, it's decoded using
// [base64.StdEncoding], otherwise its content is percent-decoded.
// An empty media type defaults to "text/plain;charset=US-ASCII".
func ParseDataURI(uri string) (contentType string, data []byte, err error) {
	if !IsDataURI(uri) {
		return "", nil, errInvalidDataURI
	}

	prefix, payload, found := strings.Cut(strings.TrimSpace(uri), ",")
	if !found {
		return "", nil, errInvalidDataURI
	}
	contentType = prefix[5:]

	isBase64 := false
	if strings.HasSuffix(strings.ToLower(contentType), ";base64") {
		isBase64 = true
		contentType = contentType[:len(contentType)-7]
	}
	if contentType == "" {
		contentType = "text/plain;charset=US-ASCII"
	}

	if !isBase64 {
		p, err := url.PathUnescape(payload)
		if err != nil {
			return "", nil, err
		}
		return contentType, []byte(p), nil
	}

	buf := new(bytes.Buffer)
	if _, err = buf.ReadFrom(base64.NewDecoder(base64.StdEncoding, strings.NewReader(payload))); err != nil {
		return "", nil, err
	}
	return contentType, buf.Bytes(), nil
}
