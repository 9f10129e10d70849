package links

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UpdateLinkParams carries the fields an update may change. Nil pointers
// leave the column untouched; ClearExpiresAt sets expires_at to NULL.
type UpdateLinkParams struct {
	DestinationURL *string
	RedirectType   *int
	Disabled       *bool
	Immutable      *bool
	ExpiresAt      *ExpiresAtUpdate
}

// ExpiresAtUpdate distinguishes "set to a timestamp" from "clear".
type ExpiresAtUpdate struct {
	Value *time.Time // nil clears the column
}

// ListLinksParams controls cursor pagination for the listing endpoint.
type ListLinksParams struct {
	DomainID uuid.UUID
	Limit    int
	Cursor   uuid.UUID // zero value means first page
}

// Store is the system of record for domains, links and analytics rows.
// Uniqueness of (domain_id, slug) is enforced by the store and is the sole
// mutual-exclusion mechanism for slug collisions.
type Store interface {
	FindDomainByHostname(ctx context.Context, hostname string) (Domain, error)
	FindLinkBySlug(ctx context.Context, domainID uuid.UUID, slug string) (Link, error)
	FindLinkByID(ctx context.Context, id, domainID uuid.UUID) (Link, error)
	ListLinks(ctx context.Context, params ListLinksParams) ([]Link, error)
	CreateLink(ctx context.Context, link Link) (Link, error)
	UpdateLink(ctx context.Context, id uuid.UUID, params UpdateLinkParams) (Link, error)
	DeleteLink(ctx context.Context, id uuid.UUID) error
	CreateAnalyticsRow(ctx context.Context, linkID uuid.UUID) error
	FindAnalyticsRows(ctx context.Context, linkIDs []uuid.UUID) (map[uuid.UUID]Analytics, error)
}
