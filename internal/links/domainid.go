package links

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/sundayezeilo/linkhub/internal/errx"
)

// ErrDomainMissing means the configured hostname has no domain row.
// It maps to HTTP 500 at the boundary: the deployment is misconfigured.
var ErrDomainMissing = errors.New("default domain not configured")

// DomainResolver caches the domain id for the configured default hostname.
// The value is looked up at most once per process lifetime unless Invalidate
// is called. Concurrent first lookups may race; they all compute and store
// the same value, so the race is harmless.
type DomainResolver struct {
	store    Store
	hostname string

	mu     sync.RWMutex
	id     uuid.UUID
	cached bool
}

func NewDomainResolver(store Store, hostname string) *DomainResolver {
	return &DomainResolver{
		store:    store,
		hostname: hostname,
	}
}

// Hostname returns the configured default hostname.
func (r *DomainResolver) Hostname() string {
	return r.hostname
}

// DomainID returns the cached domain id, querying the store on first use.
func (r *DomainResolver) DomainID(ctx context.Context) (uuid.UUID, error) {
	const op = "links.DomainResolver.DomainID"

	r.mu.RLock()
	if r.cached {
		id := r.id
		r.mu.RUnlock()
		return id, nil
	}
	r.mu.RUnlock()

	domain, err := r.store.FindDomainByHostname(ctx, r.hostname)
	if err != nil {
		if errx.KindOf(err) == errx.NotFound {
			return uuid.Nil, errx.E(op, errx.Internal, ErrDomainMissing)
		}
		return uuid.Nil, errx.E(op, errx.KindOf(err), err)
	}

	r.mu.Lock()
	r.id = domain.ID
	r.cached = true
	r.mu.Unlock()

	return domain.ID, nil
}

// Invalidate drops the cached value so the next DomainID call re-queries.
func (r *DomainResolver) Invalidate() {
	r.mu.Lock()
	r.cached = false
	r.id = uuid.Nil
	r.mu.Unlock()
}
