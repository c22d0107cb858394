package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// UnknownClient is the identifier used when no identity can be resolved.
// Every such caller shares one quota.
const UnknownClient = "unknown"

// KeyFunc resolves the client identifier of a request.
type KeyFunc func(r *http.Request) string

// ClientKeyFunc returns a KeyFunc that prefers keyHeader when set, then the
// first X-Forwarded-For hop when trustXFF is true, then the remote address.
func ClientKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		addr := strings.TrimSpace(r.RemoteAddr)
		if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
			return host
		}
		if addr != "" {
			return addr
		}
		return UnknownClient
	}
}
