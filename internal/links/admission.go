package links

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sundayezeilo/linkhub/internal/errx"
	"github.com/sundayezeilo/linkhub/internal/linkcache"
	"github.com/sundayezeilo/linkhub/internal/ratelimit"
	"github.com/sundayezeilo/linkhub/internal/urlnorm"
	"github.com/sundayezeilo/linkhub/sluggen"
)

// Write-path fault sentinels.
var (
	ErrSlugTaken            = errors.New("slug is already in use")
	ErrSlugGenerationFailed = errors.New("unable to generate a unique slug")
	ErrImmutableLink        = errors.New("immutable links cannot update destination or redirect type")
	ErrSlugChangeNotAllowed = errors.New("slug cannot be updated")
	ErrInvalidRedirectType  = errors.New("redirect type must be 301, 302, 307, or 308")
	ErrInvalidExpiresAt     = errors.New("expiresAt must be a valid RFC 3339 datetime")
)

// RateLimitedError carries the retry-after hint for a denied write.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

const (
	// DefaultSlugMaxAttempts bounds the random-slug collision retry loop.
	DefaultSlugMaxAttempts = 10
)

// CreateRequest carries a create call into the admission pipeline.
type CreateRequest struct {
	DestinationURL string
	Slug           string // optional custom slug
	RedirectType   *int
	ExpiresAt      string // optional, RFC 3339
}

// UpdateRequest carries a partial update. Nil pointers leave fields
// untouched. ClearExpiresAt distinguishes an explicit null from absence.
type UpdateRequest struct {
	DestinationURL *string
	RedirectType   *int
	Disabled       *bool
	ExpiresAt      *string
	ClearExpiresAt bool
	SlugProvided   bool
}

// CreatedLink pairs a persisted link with any admission warnings.
type CreatedLink struct {
	Link     Link
	Warnings []string
}

// Admission is the write path: rate limiting, URL normalization, slug
// validation or generation with bounded collision retry, persistence, and
// cache population.
type Admission struct {
	limiter     *ratelimit.Limiter
	domains     *DomainResolver
	store       Store
	cache       *linkcache.Cache
	slugs       sluggen.Generator
	logger      *slog.Logger
	slugLength  int
	maxAttempts int
}

// AdmissionConfig tunes the admission pipeline.
type AdmissionConfig struct {
	SlugGenerator   sluggen.Generator
	SlugLength      int
	SlugMaxAttempts int
}

func NewAdmission(limiter *ratelimit.Limiter, domains *DomainResolver, store Store, cache *linkcache.Cache, logger *slog.Logger, config *AdmissionConfig) *Admission {
	if config == nil {
		config = &AdmissionConfig{}
	}

	slugs := config.SlugGenerator
	if slugs == nil {
		slugs = sluggen.NewBase58()
	}

	slugLength := config.SlugLength
	if slugLength <= 0 {
		slugLength = sluggen.DefaultLength
	}

	maxAttempts := config.SlugMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultSlugMaxAttempts
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Admission{
		limiter:     limiter,
		domains:     domains,
		store:       store,
		cache:       cache,
		slugs:       slugs,
		logger:      logger,
		slugLength:  slugLength,
		maxAttempts: maxAttempts,
	}
}

// AllowWrite consumes one write-API allowance for the client. Callers check
// it before reading the request body so malformed payloads still count
// against the window.
func (a *Admission) AllowWrite(ctx context.Context, client string) error {
	const op = "links.Admission.AllowWrite"

	if d := a.limiter.Allow(ctx, ratelimit.ScopeWriteAPI, client); !d.Allowed {
		return errx.E(op, errx.RateLimited, &RateLimitedError{RetryAfter: d.RetryAfter})
	}
	return nil
}

// Create admits a new link. Validation faults surface with their specific
// codes; slug collisions on generated slugs retry up to the attempt budget.
func (a *Admission) Create(ctx context.Context, req CreateRequest) (CreatedLink, error) {
	const op = "links.Admission.Create"

	destination, err := urlnorm.Normalize(req.DestinationURL)
	if err != nil {
		return CreatedLink{}, errx.E(op, errx.Invalid, err)
	}

	redirectType := DefaultRedirectType
	if req.RedirectType != nil {
		if !ValidRedirectType(*req.RedirectType) {
			return CreatedLink{}, errx.E(op, errx.Invalid, ErrInvalidRedirectType)
		}
		redirectType = *req.RedirectType
	}

	var expiresAt *time.Time
	if req.ExpiresAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			return CreatedLink{}, errx.E(op, errx.Invalid, ErrInvalidExpiresAt)
		}
		expiresAt = &parsed
	}

	domainID, err := a.domains.DomainID(ctx)
	if err != nil {
		return CreatedLink{}, err
	}

	var warnings []string
	immutable := ImmutableRedirectType(redirectType)
	if immutable {
		warnings = append(warnings, WarnImmutableRedirect)
	}

	base := Link{
		DomainID:       domainID,
		DestinationURL: destination,
		RedirectType:   redirectType,
		Immutable:      immutable,
		ExpiresAt:      expiresAt,
	}

	var created Link
	if req.Slug != "" {
		created, err = a.createWithCustomSlug(ctx, base, req.Slug)
	} else {
		created, err = a.createWithGeneratedSlug(ctx, base)
	}
	if err != nil {
		return CreatedLink{}, err
	}

	// Store-of-record bookkeeping, separate from the cache.
	if err := a.store.CreateAnalyticsRow(ctx, created.ID); err != nil {
		return CreatedLink{}, errx.E(op, errx.KindOf(err), err)
	}

	bestEffort(ctx, a.logger, "linkcache.set", func() error {
		return a.cache.Set(ctx, domainID.String(), created.Slug, cacheRecord(created))
	})

	return CreatedLink{Link: created, Warnings: warnings}, nil
}

// createWithCustomSlug validates the supplied slug and persists exactly
// once; an occupied slug is a conflict, never a retry.
func (a *Admission) createWithCustomSlug(ctx context.Context, base Link, rawSlug string) (Link, error) {
	const op = "links.Admission.createWithCustomSlug"

	slug, err := sluggen.NormalizeCustomSlug(rawSlug)
	if err != nil {
		return Link{}, errx.E(op, errx.Invalid, err)
	}

	_, err = a.store.FindLinkBySlug(ctx, base.DomainID, slug)
	switch {
	case err == nil:
		return Link{}, errx.E(op, errx.Conflict, ErrSlugTaken)
	case errx.KindOf(err) != errx.NotFound:
		return Link{}, errx.E(op, errx.KindOf(err), err)
	}

	base.Slug = slug
	created, err := a.store.CreateLink(ctx, base)
	if err != nil {
		// A concurrent writer can still win the slug between the
		// uniqueness probe and the insert.
		if errx.KindOf(err) == errx.Conflict {
			return Link{}, errx.E(op, errx.Conflict, ErrSlugTaken)
		}
		return Link{}, errx.E(op, errx.KindOf(err), err)
	}
	return created, nil
}

// createWithGeneratedSlug retries fresh random candidates on uniqueness
// conflicts only; any other persistence fault propagates immediately.
func (a *Admission) createWithGeneratedSlug(ctx context.Context, base Link) (Link, error) {
	const op = "links.Admission.createWithGeneratedSlug"

	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		slug, err := a.slugs.Generate(a.slugLength)
		if err != nil {
			return Link{}, errx.E(op, errx.Unavailable, err)
		}

		base.Slug = slug
		created, err := a.store.CreateLink(ctx, base)
		if err == nil {
			return created, nil
		}
		if errx.KindOf(err) != errx.Conflict {
			return Link{}, errx.E(op, errx.KindOf(err), err)
		}

		a.logger.WarnContext(ctx, "slug collision, retrying",
			"attempt", attempt+1, "slug", slug)
	}

	return Link{}, errx.E(op, errx.Internal, ErrSlugGenerationFailed)
}

// Update applies a partial update to an existing link. Immutable links
// reject destination and redirect-type changes; switching to 301/308 forces
// immutability. On any persisted change the cache entry is invalidated and
// repopulated best-effort.
func (a *Admission) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (CreatedLink, error) {
	const op = "links.Admission.Update"

	if req.SlugProvided {
		return CreatedLink{}, errx.E(op, errx.Invalid, ErrSlugChangeNotAllowed)
	}

	if req.RedirectType != nil && !ValidRedirectType(*req.RedirectType) {
		return CreatedLink{}, errx.E(op, errx.Invalid, ErrInvalidRedirectType)
	}

	var expiresUpdate *ExpiresAtUpdate
	switch {
	case req.ClearExpiresAt:
		expiresUpdate = &ExpiresAtUpdate{}
	case req.ExpiresAt != nil:
		parsed, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			return CreatedLink{}, errx.E(op, errx.Invalid, ErrInvalidExpiresAt)
		}
		expiresUpdate = &ExpiresAtUpdate{Value: &parsed}
	}

	var destination *string
	if req.DestinationURL != nil {
		normalized, err := urlnorm.Normalize(*req.DestinationURL)
		if err != nil {
			return CreatedLink{}, errx.E(op, errx.Invalid, err)
		}
		destination = &normalized
	}

	domainID, err := a.domains.DomainID(ctx)
	if err != nil {
		return CreatedLink{}, err
	}

	link, err := a.store.FindLinkByID(ctx, id, domainID)
	if err != nil {
		if errx.KindOf(err) == errx.NotFound {
			return CreatedLink{}, errx.E(op, errx.NotFound, ErrLinkNotFound)
		}
		return CreatedLink{}, errx.E(op, errx.KindOf(err), err)
	}

	if link.Immutable && (destination != nil || req.RedirectType != nil) {
		return CreatedLink{}, errx.E(op, errx.Conflict, ErrImmutableLink)
	}

	var warnings []string
	params := UpdateLinkParams{
		DestinationURL: destination,
		RedirectType:   req.RedirectType,
		Disabled:       req.Disabled,
		ExpiresAt:      expiresUpdate,
	}

	if req.RedirectType != nil && ImmutableRedirectType(*req.RedirectType) && !link.Immutable {
		immutable := true
		params.Immutable = &immutable
		warnings = append(warnings, WarnImmutableRedirect)
	}

	updated, err := a.store.UpdateLink(ctx, link.ID, params)
	if err != nil {
		return CreatedLink{}, errx.E(op, errx.KindOf(err), err)
	}

	// Invalidate before repopulating so a failed set cannot leave a stale
	// positive record behind.
	domainKey := domainID.String()
	bestEffort(ctx, a.logger, "linkcache.invalidate", func() error {
		return a.cache.Invalidate(ctx, domainKey, updated.Slug)
	})
	bestEffort(ctx, a.logger, "linkcache.set", func() error {
		return a.cache.Set(ctx, domainKey, updated.Slug, cacheRecord(updated))
	})

	return CreatedLink{Link: updated, Warnings: warnings}, nil
}

// Delete removes a link and invalidates its cache entry.
func (a *Admission) Delete(ctx context.Context, id uuid.UUID) error {
	const op = "links.Admission.Delete"

	domainID, err := a.domains.DomainID(ctx)
	if err != nil {
		return err
	}

	link, err := a.store.FindLinkByID(ctx, id, domainID)
	if err != nil {
		if errx.KindOf(err) == errx.NotFound {
			return errx.E(op, errx.NotFound, ErrLinkNotFound)
		}
		return errx.E(op, errx.KindOf(err), err)
	}

	if err := a.store.DeleteLink(ctx, link.ID); err != nil {
		return errx.E(op, errx.KindOf(err), err)
	}

	bestEffort(ctx, a.logger, "linkcache.invalidate", func() error {
		return a.cache.Invalidate(ctx, domainID.String(), link.Slug)
	})

	return nil
}
