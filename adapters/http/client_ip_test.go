package authhttp

import (
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultClientIP(t *testing.T) {
	fn := DefaultClientIP()
	r := httptest.NewRequest("GET", "/", nil)

	r.RemoteAddr = "203.0.113.5:443"
	require.Equal(t, "203.0.113.5", fn(r))

	r.RemoteAddr = "10.0.0.7:443"
	require.Empty(t, fn(r))

	r.RemoteAddr = "127.0.0.1:80"
	r.Header.Set("X-Forwarded-For", "203.0.113.5")
	require.Empty(t, fn(r))
}

func TestClientIPFromForwardedHeaders(t *testing.T) {
	fn := ClientIPFromForwardedHeaders([]netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")})

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.1.2.3:5000"
	r.Header.Set("X-Forwarded-For", "198.51.100.4, 10.1.2.3")
	require.Equal(t, "198.51.100.4", fn(r))

	r.Header.Set("CF-Connecting-IP", "198.51.100.9")
	require.Equal(t, "198.51.100.9", fn(r))

	// Untrusted peers cannot spoof headers.
	r.RemoteAddr = "203.0.113.5:5000"
	require.Equal(t, "203.0.113.5", fn(r))

	r.RemoteAddr = "192.168.1.1:5000"
	require.Empty(t, fn(r))
}
