// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: MIT

// Package testing provides some tools for fixture loading as HTTP mock responses
// and a mocked HTTP client for the archiver.
package testing

import (
	"errors"
	"mime"
	"net/http"
	"os"
	"path"

	"github.com/jarcoal/httpmock"
)

func readFixture(name string) []byte {
	data, err := os.ReadFile(path.Join("test-fixtures", name))
	if err != nil {
		panic(err)
	}
	return data
}

// NewFileResponder returns a mock response for a file in test-fixtures.
// The content-type is set after the file's extension.
func NewFileResponder(name string) httpmock.Responder {
	headers := map[string]string{}
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		headers["content-type"] = ct
	}
	return NewContentResponder(200, headers, name)
}

// NewContentResponder returns a mock response for a file, with extra headers.
func NewContentResponder(status int, headers map[string]string, name string) httpmock.Responder {
	return NewBytesResponder(status, headers, readFixture(name))
}

// NewBytesResponder returns a mock response with the given content and headers.
func NewBytesResponder(status int, headers map[string]string, data []byte) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		rsp := httpmock.NewBytesResponse(status, data)
		for k, v := range headers {
			rsp.Header.Set(k, v)
		}
		rsp.Request = req
		return rsp, nil
	}
}

type errReader int

func (errReader) Read([]byte) (n int, err error) {
	return 0, errors.New("read error")
}

func (errReader) Close() error {
	return nil
}

// NewIOErrorResponder returns a mock response with a faulty body.
func NewIOErrorResponder(status int, headers map[string]string) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		rsp := httpmock.NewBytesResponse(status, []byte{})
		for k, v := range headers {
			rsp.Header.Set(k, v)
		}
		rsp.Request = req
		rsp.Body = errReader(0)
		return rsp, nil
	}
}

// NewMockClient returns an [*http.Client] using a dedicated
// [*httpmock.MockTransport]. Unlike [httpmock.Activate], it doesn't
// replace the default transport, so tests using it can run in parallel.
func NewMockClient() (*http.Client, *httpmock.MockTransport) {
	mt := httpmock.NewMockTransport()
	return &http.Client{Transport: mt}, mt
}
