package links

import (
	"time"

	"github.com/google/uuid"
)

// Domain scopes slug uniqueness to a hostname.
type Domain struct {
	ID       uuid.UUID
	Hostname string
}

// Link is the store-of-record representation of a short link.
// Immutable is always true when RedirectType is 301 or 308.
type Link struct {
	ID             uuid.UUID
	DomainID       uuid.UUID
	Slug           string
	DestinationURL string
	RedirectType   int
	Immutable      bool
	Disabled       bool
	ExpiresAt      *time.Time
	CreatedAt      time.Time
}

// Analytics is the per-link click bookkeeping row.
type Analytics struct {
	TotalClicks   int64
	LastClickedAt *time.Time
}

// DefaultRedirectType is used when a request does not specify one.
const DefaultRedirectType = 302

// ValidRedirectType reports whether status is an accepted redirect status.
func ValidRedirectType(status int) bool {
	switch status {
	case 301, 302, 307, 308:
		return true
	}
	return false
}

// SafeRedirectType clamps a stored redirect status to the allowed set,
// defaulting to 302. Cache or store corruption must never produce a
// non-redirect response status.
func SafeRedirectType(status int) int {
	if ValidRedirectType(status) {
		return status
	}
	return DefaultRedirectType
}

// ImmutableRedirectType reports whether status forces the immutable flag.
func ImmutableRedirectType(status int) bool {
	return status == 301 || status == 308
}

// WarnImmutableRedirect is the user-visible warning attached when a 301/308
// redirect forces immutability.
const WarnImmutableRedirect = "Immutable redirect enforced for 301/308."
