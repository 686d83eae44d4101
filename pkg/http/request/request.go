// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package request provides a middleware that identifies an incoming request:
// its remote IP, the client's real IP behind trusted proxies and a request ID.
package request

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"hash/adler32"
	"net"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync/atomic"

	"codeberg.org/pageclone/pageclone/pkg/ctxr"
)

type (
	ctxRemoteIPKey  struct{}
	ctxRealIPKey    struct{}
	ctxRequestIDKey struct{}
)

var (
	// GetRemoteIP returns the request's [http.Request.RemoteAddr] as
	// a [net.IP] without its port.
	GetRemoteIP  = ctxr.Getter[net.IP](ctxRemoteIPKey{})
	withRemoteIP = ctxr.Setter[net.IP](ctxRemoteIPKey{})

	// GetRealIP returns the client's IP address, taken from X-Forwarded-For
	// when the request comes from a trusted proxy.
	// It falls back to [http.Request.RemoteAddr].
	GetRealIP   = ctxr.Getter[net.IP](ctxRealIPKey{})
	CheckRealIP = ctxr.Checker[net.IP](ctxRealIPKey{})
	withRealIP  = ctxr.Setter[net.IP](ctxRealIPKey{})

	// GetReqID returns the request's ID.
	GetReqID   = ctxr.Getter[string](ctxRequestIDKey{})
	CheckReqID = ctxr.Checker[string](ctxRequestIDKey{})
	withReqID  = ctxr.Setter[string](ctxRequestIDKey{})
)

var (
	reqid       uint32
	reqIDPrefix [13]byte
)

func init() {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "localhost"
	}

	var b [6]byte
	rand.Read(b[4:]) //nolint:errcheck
	cs := adler32.New()
	cs.Write([]byte(hostname)) //nolint:errcheck
	copy(b[0:4], cs.Sum(nil))

	reqIDPrefix[8] = '/'
	hex.Encode(reqIDPrefix[0:8], b[0:4])
	hex.Encode(reqIDPrefix[9:], b[4:])
}

// makeRequestID creates request ID.
// A request ID is a string of the form "host-checksum/random-seq",
// where "host-checksum" is an adler32 checksum of the host name (4 bytes),
// "random" is a 2 byte random value and "seq" a sequence number.
func makeRequestID() string {
	var id [22]byte
	copy(id[0:13], reqIDPrefix[:])
	id[13] = '-'

	hex.Encode(id[14:], binary.BigEndian.AppendUint32(nil, atomic.AddUint32(&reqid, 1)))
	return string(id[:])
}

// InitRequest adds the remote IP, the real client IP and a request ID to
// the request's context. X-Forwarded-For is only read when the remote
// address is in one of trustedProxies.
func InitRequest(trustedProxies ...*net.IPNet) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			remoteAddr, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				remoteAddr = r.RemoteAddr
			}
			remoteIP := net.ParseIP(remoteAddr)
			ctx = withRemoteIP(ctx, remoteIP)

			if isTrustedProxy(trustedProxies, remoteIP) {
				for _, ip := range ParseXForwardedFor(r.Header) {
					if isTrustedProxy(trustedProxies, ip) {
						continue
					}
					remoteIP = ip
					break
				}
			}
			ctx = withRealIP(ctx, remoteIP)
			ctx = withReqID(ctx, makeRequestID())

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ParseXForwardedFor returns the valid IP addresses of every
// X-Forwarded-For header, in order.
func ParseXForwardedFor(h http.Header) []net.IP {
	res := []net.IP{}
	for _, value := range h.Values("X-Forwarded-For") {
		for _, part := range strings.Split(value, ",") {
			part = strings.Trim(strings.TrimSpace(part), "[]")
			if ip := net.ParseIP(part); ip != nil {
				res = append(res, ip)
			}
		}
	}
	return res
}

func isTrustedProxy(p []*net.IPNet, ip net.IP) bool {
	if ip == nil {
		return false
	}
	return slices.ContainsFunc(p, func(cidr *net.IPNet) bool {
		return cidr.Contains(ip)
	})
}
