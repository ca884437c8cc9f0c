package server

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"go.uber.org/zap"

	"github.com/Jyllands-Posten/solrprocessors/internal/config"
)

// proxyTrust decides whether forwarding headers are believed. Only a
// request arriving from a trusted proxy may name another client address.
type proxyTrust struct {
	prefixes []netip.Prefix
}

func newProxyTrust(entries []string, log *zap.Logger) *proxyTrust {
	t := &proxyTrust{}
	for _, entry := range entries {
		prefix, err := config.ParseTrustedProxy(entry)
		if err != nil {
			log.Warn("Ignoring invalid trusted proxy", zap.String("proxy", entry), zap.Error(err))
			continue
		}
		t.prefixes = append(t.prefixes, prefix)
	}
	return t
}

func (t *proxyTrust) trusted(ip string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range t.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// clientIP returns the address requests are attributed to. X-Forwarded-For
// is walked from the right, skipping trusted hops.
func (t *proxyTrust) clientIP(r *http.Request) string {
	remote := r.RemoteAddr
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}
	if len(t.prefixes) == 0 || !t.trusted(remote) {
		return remote
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if i == 0 || !t.trusted(hop) {
				return hop
			}
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return remote
}
