package httpx

import (
	"net/http"
	"strings"
)

// UnknownClient is the shared bucket for requests whose client identity
// cannot be derived from any trusted header.
const UnknownClient = "unknown"

// ClientIP derives a client identifier for rate limiting from proxy headers.
// It checks X-Forwarded-For (first comma-separated entry), then X-Real-IP,
// then CF-Connecting-IP. A present X-Forwarded-For with a blank first entry
// maps straight to the unknown bucket without consulting the other headers.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
		return UnknownClient
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	if cfIP := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); cfIP != "" {
		return cfIP
	}

	return UnknownClient
}
