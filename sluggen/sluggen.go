// Package sluggen provides slug generation and custom-slug validation.
// Generators should be safe for concurrent use.
package sluggen

import (
	"crypto/rand"
	"errors"
	"strings"
)

// Base58Alphabet excludes the visually ambiguous characters 0, O, I and l.
const Base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// DefaultLength is the slug length used for generated slugs.
const DefaultLength = 7

// MaxCustomSlugLength caps caller-supplied slugs.
const MaxCustomSlugLength = 64

// Validation error codes for custom slugs.
const (
	CodeEmpty           = "EMPTY"
	CodeTooLong         = "TOO_LONG"
	CodeInvalidChars    = "INVALID_CHARS"
	CodeEdgeDash        = "EDGE_DASH"
	CodeConsecutiveDash = "CONSECUTIVE_DASH"
	CodeReserved        = "RESERVED"
)

// reservedSlugs are names that collide with system routes.
var reservedSlugs = map[string]bool{
	"api":       true,
	"admin":     true,
	"health":    true,
	"links":     true,
	"login":     true,
	"signup":    true,
	"dashboard": true,
}

// ValidationError is a user-facing validation failure with a stable
// machine-readable code.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Generator generates URL slugs.
// Implementations should be safe for concurrent use.
type Generator interface {
	Generate(length int) (string, error)
}

// base58Generator implements Generator over the base58 alphabet using a
// cryptographically secure random source. Modulo reduction over 58 symbols
// introduces a negligible bias, acceptable for slug generation.
type base58Generator struct{}

// NewBase58 returns a new base58 slug generator.
func NewBase58() Generator {
	return &base58Generator{}
}

// Generate generates a random base58 string of the specified length.
func (g *base58Generator) Generate(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("length must be positive")
	}

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	for i := range b {
		b[i] = Base58Alphabet[int(b[i])%len(Base58Alphabet)]
	}

	return string(b), nil
}

// NormalizeCustomSlug validates a caller-supplied slug and returns its
// normalized lowercase form.
func NormalizeCustomSlug(input string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(input))

	if normalized == "" {
		return "", &ValidationError{Code: CodeEmpty, Message: "Slug cannot be empty."}
	}

	if len(normalized) > MaxCustomSlugLength {
		return "", &ValidationError{Code: CodeTooLong, Message: "Slug must be 64 characters or fewer."}
	}

	for _, c := range normalized {
		if !isSlugChar(c) {
			return "", &ValidationError{
				Code:    CodeInvalidChars,
				Message: "Slug can only contain lowercase letters, numbers, and dashes.",
			}
		}
	}

	if strings.HasPrefix(normalized, "-") || strings.HasSuffix(normalized, "-") {
		return "", &ValidationError{Code: CodeEdgeDash, Message: "Slug cannot start or end with a dash."}
	}

	if strings.Contains(normalized, "--") {
		return "", &ValidationError{Code: CodeConsecutiveDash, Message: "Slug cannot contain consecutive dashes."}
	}

	if reservedSlugs[normalized] {
		return "", &ValidationError{Code: CodeReserved, Message: "Slug is reserved."}
	}

	return normalized, nil
}

func isSlugChar(c rune) bool {
	switch {
	case c >= 'a' && c <= 'z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '-':
		return true
	default:
		return false
	}
}
