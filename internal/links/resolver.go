package links

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sundayezeilo/linkhub/internal/errx"
	"github.com/sundayezeilo/linkhub/internal/linkcache"
)

// Resolution outcome sentinels, surfaced through errx kinds.
var (
	ErrLinkNotFound = errors.New("link not found")
	ErrLinkDisabled = errors.New("link is disabled")
	ErrLinkExpired  = errors.New("link has expired")
)

// Redirect is the decision the HTTP boundary turns into a Location response.
type Redirect struct {
	URL    string
	Status int
}

// Resolver is the read path: cache-aside slug lookup, validity evaluation
// and the redirect decision. The store of record is only consulted on a
// cache miss, never when the negative-cache marker is present.
type Resolver struct {
	domains *DomainResolver
	cache   *linkcache.Cache
	store   Store
	clicks  *ClickRecorder
	logger  *slog.Logger
	now     func() time.Time
}

func NewResolver(domains *DomainResolver, cache *linkcache.Cache, store Store, clicks *ClickRecorder, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		domains: domains,
		cache:   cache,
		store:   store,
		clicks:  clicks,
		logger:  logger,
		now:     time.Now,
	}
}

// cacheRecord builds the denormalized cache projection of a link.
func cacheRecord(link Link) linkcache.Record {
	rec := linkcache.Record{
		LinkID:         link.ID.String(),
		DestinationURL: link.DestinationURL,
		RedirectType:   link.RedirectType,
		Disabled:       link.Disabled,
	}
	if link.ExpiresAt != nil {
		iso := link.ExpiresAt.UTC().Format(time.RFC3339)
		rec.ExpiresAt = &iso
	}
	return rec
}

// Resolve maps a slug to its redirect, or fails with NotFound, Gone, or the
// domain-misconfiguration fault. Cache faults degrade to store lookups;
// store lookup faults on the authoritative path are propagated.
func (r *Resolver) Resolve(ctx context.Context, slug string) (Redirect, error) {
	const op = "links.Resolver.Resolve"

	domainID, err := r.domains.DomainID(ctx)
	if err != nil {
		return Redirect{}, err
	}
	domainKey := domainID.String()

	rec, lookup := r.cache.Get(ctx, domainKey, slug)

	switch lookup {
	case linkcache.Missing:
		// Negative-cache fast path: the store must not be touched.
		return Redirect{}, errx.E(op, errx.NotFound, ErrLinkNotFound)

	case linkcache.Miss:
		link, err := r.store.FindLinkBySlug(ctx, domainID, slug)
		if err != nil {
			if errx.KindOf(err) == errx.NotFound {
				bestEffort(ctx, r.logger, "linkcache.setMissing", func() error {
					return r.cache.SetMissing(ctx, domainKey, slug)
				})
				return Redirect{}, errx.E(op, errx.NotFound, ErrLinkNotFound)
			}
			return Redirect{}, errx.E(op, errx.KindOf(err), err)
		}

		rec = cacheRecord(link)
		bestEffort(ctx, r.logger, "linkcache.set", func() error {
			return r.cache.Set(ctx, domainKey, slug, rec)
		})
	}

	if rec.Disabled {
		return Redirect{}, errx.E(op, errx.Gone, ErrLinkDisabled)
	}

	if rec.ExpiresAt != nil {
		expiresAt, err := time.Parse(time.RFC3339, *rec.ExpiresAt)
		// An unparseable expiry is treated like a past one.
		if err != nil || !expiresAt.After(r.now()) {
			return Redirect{}, errx.E(op, errx.Gone, ErrLinkExpired)
		}
	}

	r.clicks.Record(rec.LinkID)

	return Redirect{
		URL:    rec.DestinationURL,
		Status: SafeRedirectType(rec.RedirectType),
	}, nil
}
