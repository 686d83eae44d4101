// SPDX-FileCopyrightText: © 2020 Radhi Fadlillah
// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: MIT

package archiver

import (
	"iter"
	"log/slog"
	"maps"
	"net/http"
	"sync"
)

var nullLogger = slog.New(slog.DiscardHandler)

// Collector describes a resource collector.
// Its role is to perform HTTP requests and keep track of the resources
// that were successfully fetched.
// A collector is orchestrated by [Archiver.Fetch].
type Collector interface {
	Get(uri string) (*Resource, bool)
	Set(uri string, res *Resource)
	Fetch(req *http.Request) (*http.Response, error)
}

// DownloadCollector is a [Collector] that keeps fetched resources in memory.
// Its cache is scoped to the collector's lifetime, which usually is one
// document.
type DownloadCollector struct {
	sync.RWMutex
	client    *http.Client
	resources map[string]*Resource
}

// NewDownloadCollector returns a [DownloadCollector].
// The archiver enforces its own timeout on every attempt, the client's
// timeout is left untouched.
func NewDownloadCollector(client *http.Client) *DownloadCollector {
	if client == nil {
		client = http.DefaultClient
	}

	return &DownloadCollector{
		client:    client,
		resources: make(map[string]*Resource),
	}
}

// Get returns the [*Resource] associated with a given URL.
func (c *DownloadCollector) Get(uri string) (res *Resource, ok bool) {
	c.RLock()
	defer c.RUnlock()
	res, ok = c.resources[uri]
	return
}

// Set sets a [*Resource] for a given URL.
func (c *DownloadCollector) Set(uri string, res *Resource) {
	c.Lock()
	defer c.Unlock()
	c.resources[uri] = res
}

// Fetch calls the collector's HTTP client and returns an [*http.Response].
func (c *DownloadCollector) Fetch(req *http.Request) (*http.Response, error) {
	return c.client.Do(req)
}

// Resources returns an [iter.Seq] of all the collected resources.
func (c *DownloadCollector) Resources() iter.Seq[*Resource] {
	c.RLock()
	defer c.RUnlock()
	return maps.Values(maps.Clone(c.resources))
}

// Len returns the number of collected resources.
func (c *DownloadCollector) Len() int {
	c.RLock()
	defer c.RUnlock()
	return len(c.resources)
}
