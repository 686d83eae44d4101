// SPDX-FileCopyrightText: © 2020 Olivier Meunier <olivier@neokraft.net>
// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// Message is used by the server's Msg() method.
type Message struct {
	Status  int     `json:"status"`
	Message string  `json:"message"`
	Errors  []error `json:"-"`
}

// Render converts any value to JSON and sends the response.
func Render(w http.ResponseWriter, r *http.Request, status int, value any) {
	b := &bytes.Buffer{}
	enc := json.NewEncoder(b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		Log(r).Error("encoding error", slog.Any("err", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}
	if status >= 100 {
		w.WriteHeader(status)
	}
	w.Write(b.Bytes()) //nolint:errcheck
}

// Msg sends a JSON formatted message response.
func Msg(w http.ResponseWriter, r *http.Request, message *Message) {
	Render(w, r, message.Status, message)

	if message.Status >= 400 {
		attrs := make([]slog.Attr, 1+len(message.Errors))
		attrs[0] = slog.Int("status", message.Status)
		for i, e := range message.Errors {
			attrs[i+1] = slog.Any("err", e)
		}
		Log(r).LogAttrs(context.Background(), slog.LevelDebug, message.Message, attrs...)
	}
}

// TextMsg sends a JSON formatted message response with a status and a message.
func TextMsg(w http.ResponseWriter, r *http.Request, status int, msg string) {
	Msg(w, r, &Message{
		Status:  status,
		Message: msg,
	})
}

// Err renders an error as a JSON message.
// If the error provides a StatusCode() method, it's used for the response
// status, otherwise the response is a 500 and the error is logged.
func Err(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ StatusCode() int }); ok {
		status = e.StatusCode()
	}

	if status >= 500 {
		Log(r).Error("server error", slog.Int("status", status), slog.Any("err", err))
	}

	msg := http.StatusText(status)
	if status != http.StatusInternalServerError {
		msg = err.Error()
	}

	Msg(w, r, &Message{
		Status:  status,
		Message: msg,
		Errors:  []error{err},
	})
}

// httpError is an error carrying a response status.
type httpError struct {
	status int
	err    error
}

func (e *httpError) Error() string {
	return e.err.Error()
}

func (e *httpError) Unwrap() error {
	return e.err
}

func (e *httpError) StatusCode() int {
	return e.status
}

func newHTTPError(status int, err error) error {
	return &httpError{status: status, err: err}
}
