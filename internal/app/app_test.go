// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"codeberg.org/pageclone/pageclone/configs"
	"codeberg.org/pageclone/pageclone/internal/clone"
	"codeberg.org/pageclone/pageclone/internal/metrics"
)

func TestLogHandler(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		assert := require.New(t)
		buf := new(bytes.Buffer)
		logger := slog.New(newLogHandler(buf, slog.LevelInfo, false, false))
		logger.Debug("hidden")
		logger.Info("hello", slog.String("url", "https://example.net/"))

		var rec map[string]any
		assert.NoError(json.Unmarshal(buf.Bytes(), &rec))
		assert.Equal("hello", rec["msg"])
		assert.Equal("https://example.net/", rec["url"])
	})

	t.Run("console", func(t *testing.T) {
		assert := require.New(t)
		buf := new(bytes.Buffer)
		logger := slog.New(newLogHandler(buf, slog.LevelDebug, false, true))
		logger.Debug("hello", slog.Int("attempt", 2))

		assert.Contains(buf.String(), "hello")
		assert.Contains(buf.String(), "attempt=2")
		assert.NotContains(buf.String(), "\033[")
	})

	t.Run("dev", func(t *testing.T) {
		buf := new(bytes.Buffer)
		slog.New(newLogHandler(buf, slog.LevelInfo, true, false)).Info("hello")
		require.Contains(t, buf.String(), "\033[")
	})
}

func TestAppPreRun(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	t.Run("config file", func(t *testing.T) {
		assert := require.New(t)
		name := filepath.Join(t.TempDir(), "config.toml")
		assert.NoError(os.WriteFile(name, []byte("[renderer]\nengine = \"chromedp\"\n"), 0o600))

		assert.NoError(appPreRun(&appFlags{ConfigFile: name}))
		assert.Equal("chromedp", configs.Config.Renderer.Engine)
	})

	t.Run("invalid", func(t *testing.T) {
		name := filepath.Join(t.TempDir(), "config.toml")
		require.NoError(t, os.WriteFile(name, []byte("[renderer]\nengine = \"netscape\"\n"), 0o600))

		err := appPreRun(&appFlags{ConfigFile: name})
		require.ErrorContains(t, err, "invalid configuration")
	})

	t.Run("missing file", func(t *testing.T) {
		err := appPreRun(&appFlags{ConfigFile: filepath.Join(t.TempDir(), "nope.toml")})
		require.ErrorContains(t, err, "error loading configuration")
	})
}

func TestNewCloner(t *testing.T) {
	configs.InitConfiguration()

	t.Run("engines", func(t *testing.T) {
		for _, engine := range []string{"rod", "chromedp"} {
			configs.Config.Renderer.Engine = engine
			c, err := newCloner(metrics.New())
			require.NoError(t, err)
			require.NotNil(t, c)
		}
	})

	t.Run("unknown engine", func(t *testing.T) {
		configs.Config.Renderer.Engine = "netscape"
		_, err := newCloner(nil)
		require.Error(t, err)
	})

	t.Run("invalid target", func(t *testing.T) {
		configs.InitConfiguration()
		c, err := newCloner(nil)
		require.NoError(t, err)

		_, err = c.Clone(context.Background(), "ftp://example.net/")
		require.ErrorIs(t, err, clone.ErrInvalidTarget)
	})
}

func TestWriteResult(t *testing.T) {
	res := &clone.Result{
		ID:             "0190-test",
		URL:            "https://example.net/",
		HTML:           "<!DOCTYPE html>\n<html><body><p>a & b</p></body></html>",
		TimeTaken:      1.5,
		TotalResources: 3,
		Inlined:        2,
		Failed:         1,
	}

	t.Run("html", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, writeResult(buf, res, false))
		require.Equal(t, res.HTML, buf.String())
	})

	t.Run("json", func(t *testing.T) {
		assert := require.New(t)
		buf := new(bytes.Buffer)
		assert.NoError(writeResult(buf, res, true))
		assert.Contains(buf.String(), `"html": "<!DOCTYPE html>\n<html><body><p>a & b</p></body></html>"`)

		var out clone.Result
		assert.NoError(json.Unmarshal(buf.Bytes(), &out))
		assert.Equal(*res, out)
	})
}
