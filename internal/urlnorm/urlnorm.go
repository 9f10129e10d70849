// Package urlnorm validates and canonicalizes destination URLs before they
// are persisted. The canonical form is what the service stores, compares,
// and redirects to.
package urlnorm

import (
	"net/url"
	"regexp"
	"strings"
)

// MaxURLLength is the cap on the serialized canonical URL.
const MaxURLLength = 2048

// Validation error codes.
const (
	CodeEmpty         = "EMPTY"
	CodeInvalidURL    = "INVALID_URL"
	CodeInvalidScheme = "INVALID_SCHEME"
	CodeTooLong       = "TOO_LONG"
)

// ValidationError is a user-facing validation failure with a stable
// machine-readable code.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

var schemeRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*:`)

// Normalize validates a raw destination URL and returns its canonical form:
// scheme defaulted to https, host lowercased, default ports stripped, and an
// explicit "/" path when the input has none. Normalize is idempotent on its
// own output.
func Normalize(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", &ValidationError{Code: CodeEmpty, Message: "URL cannot be empty."}
	}

	if !schemeRe.MatchString(trimmed) {
		trimmed = "https://" + trimmed
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", &ValidationError{Code: CodeInvalidURL, Message: "URL is invalid."}
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", &ValidationError{Code: CodeInvalidScheme, Message: "Only http and https URLs are allowed."}
	}
	u.Scheme = scheme

	if u.Host == "" {
		return "", &ValidationError{Code: CodeInvalidURL, Message: "URL is invalid."}
	}

	u.Host = strings.ToLower(u.Host)
	stripDefaultPort(u)

	if u.Path == "" {
		u.Path = "/"
	}

	normalized := u.String()
	if len(normalized) > MaxURLLength {
		return "", &ValidationError{Code: CodeTooLong, Message: "URL is too long."}
	}

	return normalized, nil
}

func stripDefaultPort(u *url.URL) {
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		host := u.Hostname()
		// Hostname strips the brackets from IPv6 literals; restore them.
		if strings.Contains(host, ":") {
			host = "[" + host + "]"
		}
		u.Host = host
	}
}
