package links

import (
	"context"

	"github.com/google/uuid"

	"github.com/sundayezeilo/linkhub/internal/errx"
)

const (
	// DefaultListLimit is the page size when the caller does not specify one.
	DefaultListLimit = 20

	// MaxListLimit caps the requested page size.
	MaxListLimit = 100
)

// ListedLink pairs a link with its analytics, preferring the live key-value
// counters over the persisted row.
type ListedLink struct {
	Link      Link
	Analytics *Analytics
}

// ListResult is one page of links plus the cursor for the next page.
type ListResult struct {
	Items      []ListedLink
	NextCursor *uuid.UUID
}

// List returns a page of links for the default domain, newest first. Live
// analytics are read from the key-value store in a single multi-get; links
// absent there fall back to the persisted analytics rows in one batched
// query, best-effort.
func (r *Resolver) List(ctx context.Context, limit int, cursor uuid.UUID) (ListResult, error) {
	const op = "links.Resolver.List"

	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	domainID, err := r.domains.DomainID(ctx)
	if err != nil {
		return ListResult{}, err
	}

	rows, err := r.store.ListLinks(ctx, ListLinksParams{
		DomainID: domainID,
		Limit:    limit + 1, // one extra row decides hasNextPage
		Cursor:   cursor,
	})
	if err != nil {
		return ListResult{}, errx.E(op, errx.KindOf(err), err)
	}

	hasNext := len(rows) > limit
	if hasNext {
		rows = rows[:limit]
	}

	ids := make([]uuid.UUID, len(rows))
	for i, link := range rows {
		ids[i] = link.ID
	}
	live := r.clicks.Snapshot(ctx, ids)

	var missing []uuid.UUID
	for _, id := range ids {
		if _, ok := live[id]; !ok {
			missing = append(missing, id)
		}
	}
	persisted := map[uuid.UUID]Analytics{}
	if len(missing) > 0 {
		if found, err := r.store.FindAnalyticsRows(ctx, missing); err == nil {
			persisted = found
		}
	}

	items := make([]ListedLink, len(rows))
	for i, link := range rows {
		item := ListedLink{Link: link}
		if a, ok := live[link.ID]; ok {
			item.Analytics = &a
		} else if a, ok := persisted[link.ID]; ok {
			item.Analytics = &a
		}
		items[i] = item
	}

	result := ListResult{Items: items}
	if hasNext && len(items) > 0 {
		last := items[len(items)-1].Link.ID
		result.NextCursor = &last
	}
	return result, nil
}
