package authhttp

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIPFunc determines the client IP used for rate limiting and flow
// events. An empty result means unknown, and rate limiting fails open.
type ClientIPFunc func(r *http.Request) string

// DefaultClientIP trusts only a public RemoteAddr. Private and loopback
// peers are treated as a proxy and yield "".
func DefaultClientIP() ClientIPFunc {
	return func(r *http.Request) string {
		if a, ok := peerAddr(r); ok && isPublicAddr(a) {
			return a.String()
		}
		return ""
	}
}

// ClientIPFromForwardedHeaders reads CF-Connecting-IP, then the left-most
// X-Forwarded-For entry, when the peer is one of trustedProxies. Otherwise it
// behaves like DefaultClientIP.
func ClientIPFromForwardedHeaders(trustedProxies []netip.Prefix) ClientIPFunc {
	return func(r *http.Request) string {
		peer, ok := peerAddr(r)
		if !ok {
			return ""
		}
		if trusted(peer, trustedProxies) {
			if a, ok := publicHeaderAddr(r.Header.Get("CF-Connecting-IP")); ok {
				return a.String()
			}
			xff := r.Header.Get("X-Forwarded-For")
			if i := strings.IndexByte(xff, ','); i >= 0 {
				xff = xff[:i]
			}
			if a, ok := publicHeaderAddr(xff); ok {
				return a.String()
			}
		}
		if isPublicAddr(peer) {
			return peer.String()
		}
		return ""
	}
}

func trusted(a netip.Addr, prefixes []netip.Prefix) bool {
	for _, p := range prefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

func publicHeaderAddr(v string) (netip.Addr, bool) {
	a, err := netip.ParseAddr(strings.TrimSpace(v))
	if err != nil || !isPublicAddr(a) {
		return netip.Addr{}, false
	}
	return a, true
}

func peerAddr(r *http.Request) (netip.Addr, bool) {
	a, err := netip.ParseAddr(remoteIP(r))
	if err != nil {
		return netip.Addr{}, false
	}
	return a.Unmap(), true
}

// remoteIP is RemoteAddr without its port.
func remoteIP(r *http.Request) string {
	if r == nil || r.RemoteAddr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func isPublicAddr(a netip.Addr) bool {
	if !a.IsValid() {
		return false
	}
	return !(a.IsLoopback() || a.IsPrivate() || a.IsLinkLocalUnicast() ||
		a.IsLinkLocalMulticast() || a.IsMulticast() || a.IsUnspecified())
}
