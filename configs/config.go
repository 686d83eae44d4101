// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package configs contains the application configuration.
//
// The configuration starts with default values, then an optional TOML file
// is read, and finally environment variables prefixed with PAGECLONE_ are
// applied.
package configs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/komkom/toml"
	"golang.org/x/text/language"
)

// EnvPrefix is the prefix of every environment variable.
const EnvPrefix = "PAGECLONE_"

var version = "dev"

// Version returns the application version.
func Version() string {
	return version
}

// Config holds the configuration data.
var Config config

type config struct {
	Main     configMain     `json:"main" envPrefix:"MAIN_"`
	Server   configServer   `json:"server" envPrefix:"SERVER_"`
	Fetcher  configFetcher  `json:"fetcher" envPrefix:"FETCHER_"`
	Renderer configRenderer `json:"renderer" envPrefix:"RENDERER_"`
	Clone    configClone    `json:"clone" envPrefix:"CLONE_"`
}

type configMain struct {
	LogLevel slog.Level `json:"log_level" env:"LOG_LEVEL"`
	DevMode  bool       `json:"dev_mode" env:"DEV_MODE"`
}

type configServer struct {
	Host      string  `json:"host" env:"HOST"`
	Port      int     `json:"port" env:"PORT"`
	RateLimit float64 `json:"rate_limit" env:"RATE_LIMIT"`
	RateBurst int     `json:"rate_burst" env:"RATE_BURST"`

	TrustedProxies []CIDR `json:"trusted_proxies" env:"TRUSTED_PROXIES"`
}

type configFetcher struct {
	MaxAttempts int      `json:"max_attempts" env:"MAX_ATTEMPTS"`
	RetryDelay  Duration `json:"retry_delay" env:"RETRY_DELAY"`
	Timeout     Duration `json:"timeout" env:"TIMEOUT"`
	Concurrency int      `json:"concurrency" env:"CONCURRENCY"`
	DeniedIPs   []CIDR   `json:"denied_ips" env:"DENIED_IPS"`
}

type configRenderer struct {
	Engine           string            `json:"engine" env:"ENGINE"`
	BrowserBin       string            `json:"browser_bin" env:"BROWSER_BIN"`
	NoSandbox        bool              `json:"no_sandbox" env:"NO_SANDBOX"`
	Stealth          bool              `json:"stealth" env:"STEALTH"`
	Timeout          Duration          `json:"timeout" env:"TIMEOUT"`
	SettleDelay      Duration          `json:"settle_delay" env:"SETTLE_DELAY"`
	BlockedResources []string          `json:"blocked_resources" env:"BLOCKED_RESOURCES"`
	Headers          map[string]string `json:"headers"`
}

type configClone struct {
	MaxAttempts    int      `json:"max_attempts" env:"MAX_ATTEMPTS"`
	InitialBackoff Duration `json:"initial_backoff" env:"INITIAL_BACKOFF"`
	MaxBackoff     Duration `json:"max_backoff" env:"MAX_BACKOFF"`
	Lang           string   `json:"lang" env:"LANG"`
	Title          string   `json:"title" env:"TITLE"`
}

// Duration is a [time.Duration] read from text ("10s", "1m30s").
type Duration time.Duration

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Value returns the [time.Duration] value.
func (d Duration) Value() time.Duration {
	return time.Duration(d)
}

// CIDR is an IP network read from text ("10.0.0.0/8").
// A single IP address is a network of one address.
type CIDR struct {
	*net.IPNet
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (c *CIDR) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if !strings.Contains(s, "/") {
		ip := net.ParseIP(s)
		if ip == nil {
			return fmt.Errorf("invalid IP address %q", s)
		}
		bits := 128
		if ip.To4() != nil {
			ip = ip.To4()
			bits = 32
		}
		c.IPNet = &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}
		return nil
	}

	_, n, err := net.ParseCIDR(s)
	if err != nil {
		return err
	}
	c.IPNet = n
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (c CIDR) MarshalText() ([]byte, error) {
	if c.IPNet == nil {
		return []byte{}, nil
	}
	return []byte(c.String()), nil
}

// DeniedNetworks returns the fetcher's denied IP ranges.
func (c configFetcher) DeniedNetworks() []*net.IPNet {
	return cidrNetworks(c.DeniedIPs)
}

func cidrNetworks(list []CIDR) []*net.IPNet {
	res := make([]*net.IPNet, 0, len(list))
	for _, x := range list {
		if x.IPNet != nil {
			res = append(res, x.IPNet)
		}
	}
	return res
}

// TrustedNetworks returns the reverse proxies allowed to set X-Forwarded-For.
func (c configServer) TrustedNetworks() []*net.IPNet {
	return cidrNetworks(c.TrustedProxies)
}

// Addr returns the server's listening address.
func (c configServer) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}

func mustCIDR(s string) CIDR {
	var c CIDR
	if err := c.UnmarshalText([]byte(s)); err != nil {
		panic(err)
	}
	return c
}

// InitConfiguration sets the default values.
func InitConfiguration() {
	Config = config{
		Main: configMain{
			LogLevel: slog.LevelInfo,
		},
		Server: configServer{
			Host:      "127.0.0.1",
			Port:      3000,
			RateLimit: 1,
			RateBurst: 5,
			TrustedProxies: []CIDR{
				mustCIDR("127.0.0.0/8"),
				mustCIDR("::1/128"),
				mustCIDR("10.0.0.0/8"),
				mustCIDR("172.16.0.0/12"),
				mustCIDR("192.168.0.0/16"),
				mustCIDR("fc00::/7"),
			},
		},
		Fetcher: configFetcher{
			MaxAttempts: 5,
			RetryDelay:  Duration(2 * time.Second),
			Timeout:     Duration(10 * time.Second),
			Concurrency: 8,
			DeniedIPs: []CIDR{
				mustCIDR("127.0.0.0/8"),
				mustCIDR("::1/128"),
				mustCIDR("169.254.0.0/16"),
			},
		},
		Renderer: configRenderer{
			Engine:           "rod",
			NoSandbox:        true,
			Timeout:          Duration(60 * time.Second),
			SettleDelay:      Duration(3 * time.Second),
			BlockedResources: []string{"font", "media", "websocket"},
		},
		Clone: configClone{
			MaxAttempts:    3,
			InitialBackoff: Duration(time.Second),
			MaxBackoff:     Duration(30 * time.Second),
			Lang:           "en",
			Title:          "Cloned Page",
		},
	}
}

// LoadConfiguration loads the configuration file, when filename is not
// empty, and then the environment variables.
func LoadConfiguration(filename string) error {
	if filename != "" {
		fd, err := os.Open(filename)
		if err != nil {
			return err
		}
		defer fd.Close() //nolint:errcheck

		if err := loadConfigFile(fd); err != nil {
			return fmt.Errorf("%s: %w", filename, err)
		}
	}

	return loadConfigEnv()
}

// loadConfigFile reads TOML data. The TOML reader produces JSON that is
// decoded into the configuration.
func loadConfigFile(r io.Reader) error {
	dec := json.NewDecoder(toml.New(r))
	if err := dec.Decode(&Config); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func loadConfigEnv() error {
	return env.ParseWithOptions(&Config, env.Options{Prefix: EnvPrefix})
}

// Validate checks the configuration values.
func Validate() error {
	errs := []error{}
	if Config.Fetcher.MaxAttempts < 1 {
		errs = append(errs, errors.New("fetcher.max_attempts must be at least 1"))
	}
	if Config.Fetcher.Concurrency < 1 {
		errs = append(errs, errors.New("fetcher.concurrency must be at least 1"))
	}
	if Config.Fetcher.Timeout <= 0 {
		errs = append(errs, errors.New("fetcher.timeout must be positive"))
	}
	if Config.Clone.MaxAttempts < 1 {
		errs = append(errs, errors.New("clone.max_attempts must be at least 1"))
	}
	if _, err := language.Parse(Config.Clone.Lang); err != nil {
		errs = append(errs, fmt.Errorf("clone.lang: %w", err))
	}
	switch strings.ToLower(Config.Renderer.Engine) {
	case "rod", "chromedp":
	default:
		errs = append(errs, fmt.Errorf("renderer.engine: unknown engine %q", Config.Renderer.Engine))
	}
	return errors.Join(errs...)
}
