// Package clientip resolves the client address of a request and
// classifies it against reserved and operator-defined private ranges.
//
// The extraction source is an operator choice about the deployment
// environment (direct exposure vs a trusted reverse proxy), not a
// per-request decision.
package clientip

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Source selects where the client IP is read from.
type Source string

const (
	// ConnectInfo reads the TCP peer address. Use when exposed directly.
	ConnectInfo Source = "connect-info"
	// RightmostXForwardedFor reads the last entry of X-Forwarded-For.
	// Only trustworthy behind a reverse proxy that appends it.
	RightmostXForwardedFor Source = "rightmost-x-forwarded-for"
	// XRealIP reads the X-Real-Ip header set by a trusted proxy.
	XRealIP Source = "x-real-ip"
)

type contextKey int

const clientIPKey contextKey = iota

// Middleware resolves the client address per the configured source and
// stores it on the request context for handlers.
func Middleware(source Source) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr, ok := extract(source, r)
			if ok {
				ctx := context.WithValue(r.Context(), clientIPKey, addr)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// FromContext returns the resolved client address, if any.
func FromContext(ctx context.Context) (netip.Addr, bool) {
	addr, ok := ctx.Value(clientIPKey).(netip.Addr)
	return addr, ok
}

// extract applies the configured source to one request.
func extract(source Source, r *http.Request) (netip.Addr, bool) {
	switch source {
	case RightmostXForwardedFor:
		header := r.Header.Get("X-Forwarded-For")
		if header != "" {
			entries := strings.Split(header, ",")
			last := strings.TrimSpace(entries[len(entries)-1])
			if addr, err := netip.ParseAddr(last); err == nil {
				return addr.Unmap(), true
			}
		}
	case XRealIP:
		if v := r.Header.Get("X-Real-Ip"); v != "" {
			if addr, err := netip.ParseAddr(strings.TrimSpace(v)); err == nil {
				return addr.Unmap(), true
			}
		}
	}

	// connect-info, and the fallback for unparseable headers.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// rfc6890 lists the special-purpose address registries of RFC 6890.
// Requests from these ranges are treated as private in mode=auto.
var rfc6890 = mustPrefixes(
	"0.0.0.0/8",          // "this" network
	"10.0.0.0/8",         // private use
	"100.64.0.0/10",      // shared address space (CGN)
	"127.0.0.0/8",        // loopback
	"169.254.0.0/16",     // link local
	"172.16.0.0/12",      // private use
	"192.0.0.0/24",       // IETF protocol assignments
	"192.0.2.0/24",       // TEST-NET-1
	"192.88.99.0/24",     // 6to4 relay anycast
	"192.168.0.0/16",     // private use
	"198.18.0.0/15",      // benchmarking
	"198.51.100.0/24",    // TEST-NET-2
	"203.0.113.0/24",     // TEST-NET-3
	"240.0.0.0/4",        // reserved
	"255.255.255.255/32", // limited broadcast
	"::1/128",            // loopback
	"::/128",             // unspecified
	"::ffff:0:0/96",      // IPv4-mapped
	"64:ff9b::/96",       // IPv4-IPv6 translation
	"100::/64",           // discard only
	"2001::/23",          // IETF protocol assignments
	"2001:2::/48",        // benchmarking
	"2001:db8::/32",      // documentation
	"2001:10::/28",       // ORCHID
	"2002::/16",          // 6to4
	"fc00::/7",           // unique local
	"fe80::/10",          // link local
)

func mustPrefixes(cidrs ...string) []netip.Prefix {
	out := make([]netip.Prefix, len(cidrs))
	for i, c := range cidrs {
		out[i] = netip.MustParsePrefix(c)
	}
	return out
}

// IsPrivate reports whether addr falls in an RFC 6890 reserved range or
// any of the operator-provided extra prefixes.
func IsPrivate(addr netip.Addr, extra []netip.Prefix) bool {
	addr = addr.Unmap()
	for _, p := range rfc6890 {
		if p.Contains(addr) {
			return true
		}
	}
	for _, p := range extra {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
