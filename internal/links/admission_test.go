package links

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sundayezeilo/linkhub/internal/errx"
	"github.com/sundayezeilo/linkhub/internal/kv"
	"github.com/sundayezeilo/linkhub/internal/linkcache"
	"github.com/sundayezeilo/linkhub/internal/ratelimit"
	"github.com/sundayezeilo/linkhub/internal/urlnorm"
	"github.com/sundayezeilo/linkhub/sluggen"
)

// seqGen hands out predetermined slugs in order.
type seqGen struct {
	slugs []string
	next  int
}

func (g *seqGen) Generate(int) (string, error) {
	if g.next >= len(g.slugs) {
		return "", errors.New("seqGen exhausted")
	}
	slug := g.slugs[g.next]
	g.next++
	return slug, nil
}

type admissionFixture struct {
	admission *Admission
	mem       *kv.MemoryStore
}

func newTestAdmission(t *testing.T, store *mockStore, config *AdmissionConfig) admissionFixture {
	t.Helper()

	mem := kv.NewMemory()
	logger := discardLogger()

	return admissionFixture{
		admission: NewAdmission(
			ratelimit.New(kv.NewMemory(), 100, time.Minute, logger),
			NewDomainResolver(domainStore(store), testDomain.Hostname),
			store,
			linkcache.New(mem),
			logger,
			config,
		),
		mem: mem,
	}
}

// echoCreate persists the given link by stamping an id and created-at.
func echoCreate(link Link) Link {
	link.ID = uuid.New()
	link.CreatedAt = time.Now().UTC()
	return link
}

func TestCreateGeneratedSlug(t *testing.T) {
	var analyticsRows []uuid.UUID
	store := &mockStore{
		createLink: func(_ context.Context, link Link) (Link, error) {
			return echoCreate(link), nil
		},
		createAnalyticsRow: func(_ context.Context, linkID uuid.UUID) error {
			analyticsRows = append(analyticsRows, linkID)
			return nil
		},
	}

	fx := newTestAdmission(t, store, &AdmissionConfig{
		SlugGenerator: &seqGen{slugs: []string{"gen5678"}},
	})

	created, err := fx.admission.Create(t.Context(), CreateRequest{
		DestinationURL: "Example.COM/Path",
	})
	if err != nil {
		t.Fatalf("Create(): %v", err)
	}

	if created.Link.Slug != "gen5678" {
		t.Errorf("slug = %q, want generated %q", created.Link.Slug, "gen5678")
	}
	if created.Link.DestinationURL != "https://example.com/Path" {
		t.Errorf("destination = %q, want normalized %q", created.Link.DestinationURL, "https://example.com/Path")
	}
	if created.Link.RedirectType != DefaultRedirectType {
		t.Errorf("redirect type = %d, want default %d", created.Link.RedirectType, DefaultRedirectType)
	}
	if created.Link.Immutable {
		t.Error("302 link created immutable")
	}
	if len(created.Warnings) != 0 {
		t.Errorf("warnings = %v, want none", created.Warnings)
	}

	if len(analyticsRows) != 1 || analyticsRows[0] != created.Link.ID {
		t.Errorf("analytics rows = %v, want exactly the created link id", analyticsRows)
	}

	key := linkcache.Key(testDomain.ID.String(), created.Link.Slug)
	if _, err := fx.mem.Get(t.Context(), key); err != nil {
		t.Errorf("cache not populated after create: %v", err)
	}
}

func TestCreatePermanentRedirectForcesImmutable(t *testing.T) {
	store := &mockStore{
		createLink: func(_ context.Context, link Link) (Link, error) {
			return echoCreate(link), nil
		},
	}

	fx := newTestAdmission(t, store, &AdmissionConfig{
		SlugGenerator: &seqGen{slugs: []string{"perm123"}},
	})

	redirectType := 301
	created, err := fx.admission.Create(t.Context(), CreateRequest{
		DestinationURL: "https://example.com",
		RedirectType:   &redirectType,
	})
	if err != nil {
		t.Fatalf("Create(): %v", err)
	}

	if !created.Link.Immutable {
		t.Error("301 link not marked immutable")
	}
	if len(created.Warnings) != 1 || created.Warnings[0] != WarnImmutableRedirect {
		t.Errorf("warnings = %v, want [%q]", created.Warnings, WarnImmutableRedirect)
	}
}

func TestCreateSlugCollisionRetries(t *testing.T) {
	attempts := 0
	store := &mockStore{
		createLink: func(_ context.Context, link Link) (Link, error) {
			attempts++
			if attempts < 3 {
				return Link{}, errx.E("mockStore.CreateLink", errx.Conflict, errors.New("duplicate key"))
			}
			return echoCreate(link), nil
		},
	}

	fx := newTestAdmission(t, store, &AdmissionConfig{
		SlugGenerator: &seqGen{slugs: []string{"take111", "take222", "fresh33"}},
	})

	created, err := fx.admission.Create(t.Context(), CreateRequest{
		DestinationURL: "https://example.com",
	})
	if err != nil {
		t.Fatalf("Create(): %v", err)
	}
	if created.Link.Slug != "fresh33" {
		t.Errorf("slug = %q, want third candidate %q", created.Link.Slug, "fresh33")
	}
	if attempts != 3 {
		t.Errorf("CreateLink attempts = %d, want 3", attempts)
	}
}

func TestCreateSlugGenerationExhausted(t *testing.T) {
	store := &mockStore{
		createLink: func(context.Context, Link) (Link, error) {
			return Link{}, errx.E("mockStore.CreateLink", errx.Conflict, errors.New("duplicate key"))
		},
	}

	slugs := make([]string, 4)
	for i := range slugs {
		slugs[i] = fmt.Sprintf("cand%03d", i)
	}
	fx := newTestAdmission(t, store, &AdmissionConfig{
		SlugGenerator:   &seqGen{slugs: slugs},
		SlugMaxAttempts: 4,
	})

	_, err := fx.admission.Create(t.Context(), CreateRequest{
		DestinationURL: "https://example.com",
	})
	if !errors.Is(err, ErrSlugGenerationFailed) {
		t.Fatalf("Create() error = %v, want ErrSlugGenerationFailed", err)
	}
	if got := errx.KindOf(err); got != errx.Internal {
		t.Errorf("error kind = %s, want Internal", got)
	}
}

func TestCreateCustomSlug(t *testing.T) {
	store := &mockStore{
		findLinkBySlug: func(context.Context, uuid.UUID, string) (Link, error) {
			return Link{}, notFoundErr("mockStore.FindLinkBySlug")
		},
		createLink: func(_ context.Context, link Link) (Link, error) {
			return echoCreate(link), nil
		},
	}

	fx := newTestAdmission(t, store, nil)

	created, err := fx.admission.Create(t.Context(), CreateRequest{
		DestinationURL: "https://example.com",
		Slug:           "  My-Launch  ",
	})
	if err != nil {
		t.Fatalf("Create(): %v", err)
	}
	if created.Link.Slug != "my-launch" {
		t.Errorf("slug = %q, want normalized %q", created.Link.Slug, "my-launch")
	}
}

func TestCreateCustomSlugTaken(t *testing.T) {
	store := &mockStore{
		findLinkBySlug: func(context.Context, uuid.UUID, string) (Link, error) {
			return newTestLink("my-launch"), nil
		},
	}

	fx := newTestAdmission(t, store, nil)

	_, err := fx.admission.Create(t.Context(), CreateRequest{
		DestinationURL: "https://example.com",
		Slug:           "my-launch",
	})
	if !errors.Is(err, ErrSlugTaken) {
		t.Fatalf("Create() error = %v, want ErrSlugTaken", err)
	}
	if got := errx.KindOf(err); got != errx.Conflict {
		t.Errorf("error kind = %s, want Conflict", got)
	}
}

func TestCreateCustomSlugLostRace(t *testing.T) {
	store := &mockStore{
		findLinkBySlug: func(context.Context, uuid.UUID, string) (Link, error) {
			return Link{}, notFoundErr("mockStore.FindLinkBySlug")
		},
		createLink: func(context.Context, Link) (Link, error) {
			// A concurrent writer claimed the slug after the probe.
			return Link{}, errx.E("mockStore.CreateLink", errx.Conflict, errors.New("duplicate key"))
		},
	}

	fx := newTestAdmission(t, store, nil)

	_, err := fx.admission.Create(t.Context(), CreateRequest{
		DestinationURL: "https://example.com",
		Slug:           "contested",
	})
	if !errors.Is(err, ErrSlugTaken) {
		t.Fatalf("Create() error = %v, want ErrSlugTaken (no retry for custom slugs)", err)
	}
}

func TestCreateValidationFailures(t *testing.T) {
	badRedirect := 303

	tests := []struct {
		name     string
		req      CreateRequest
		wantErr  error
		wantCode string
	}{
		{
			name:     "empty destination",
			req:      CreateRequest{DestinationURL: "   "},
			wantCode: "EMPTY",
		},
		{
			name:     "bad scheme",
			req:      CreateRequest{DestinationURL: "javascript:alert(1)"},
			wantCode: "INVALID_SCHEME",
		},
		{
			name:    "unsupported redirect type",
			req:     CreateRequest{DestinationURL: "https://example.com", RedirectType: &badRedirect},
			wantErr: ErrInvalidRedirectType,
		},
		{
			name:    "malformed expiry",
			req:     CreateRequest{DestinationURL: "https://example.com", ExpiresAt: "tomorrow"},
			wantErr: ErrInvalidExpiresAt,
		},
		{
			name:     "reserved slug",
			req:      CreateRequest{DestinationURL: "https://example.com", Slug: "admin"},
			wantCode: "RESERVED",
		},
		{
			name:     "slug with bad characters",
			req:      CreateRequest{DestinationURL: "https://example.com", Slug: "bad/slug"},
			wantCode: "INVALID_CHARS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newTestAdmission(t, &mockStore{}, nil)

			_, err := fx.admission.Create(t.Context(), tt.req)
			if err == nil {
				t.Fatal("Create() succeeded, want validation error")
			}
			if got := errx.KindOf(err); got != errx.Invalid {
				t.Errorf("error kind = %s, want Invalid", got)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v in chain", err, tt.wantErr)
			}
			if tt.wantCode != "" {
				code := validationCode(err)
				if code != tt.wantCode {
					t.Errorf("validation code = %q, want %q", code, tt.wantCode)
				}
			}
		})
	}
}

func validationCode(err error) string {
	var urlErr *urlnorm.ValidationError
	if errors.As(err, &urlErr) {
		return urlErr.Code
	}
	var slugErr *sluggen.ValidationError
	if errors.As(err, &slugErr) {
		return slugErr.Code
	}
	return ""
}

func TestAllowWrite(t *testing.T) {
	logger := discardLogger()
	store := &mockStore{}

	admission := NewAdmission(
		ratelimit.New(kv.NewMemory(), 1, time.Minute, logger),
		NewDomainResolver(domainStore(store), testDomain.Hostname),
		store,
		linkcache.New(kv.NewMemory()),
		logger,
		nil,
	)

	// The first call uses up the single slot for this client.
	if err := admission.AllowWrite(t.Context(), "203.0.113.9"); err != nil {
		t.Fatalf("AllowWrite() under limit: %v", err)
	}

	err := admission.AllowWrite(t.Context(), "203.0.113.9")
	if err == nil {
		t.Fatal("AllowWrite() succeeded, want rate limit rejection")
	}
	if got := errx.KindOf(err); got != errx.RateLimited {
		t.Errorf("error kind = %s, want RateLimited", got)
	}
	var rateErr *RateLimitedError
	if !errors.As(err, &rateErr) {
		t.Fatalf("error = %v, want *RateLimitedError in chain", err)
	}
	if rateErr.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %s, want > 0", rateErr.RetryAfter)
	}
}

func TestUpdateLink(t *testing.T) {
	existing := newTestLink("stable1")

	var gotParams UpdateLinkParams
	store := &mockStore{
		findLinkByID: func(_ context.Context, id, domainID uuid.UUID) (Link, error) {
			if id != existing.ID || domainID != testDomain.ID {
				return Link{}, notFoundErr("mockStore.FindLinkByID")
			}
			return existing, nil
		},
		updateLink: func(_ context.Context, _ uuid.UUID, params UpdateLinkParams) (Link, error) {
			gotParams = params
			updated := existing
			if params.DestinationURL != nil {
				updated.DestinationURL = *params.DestinationURL
			}
			if params.Disabled != nil {
				updated.Disabled = *params.Disabled
			}
			return updated, nil
		},
	}

	fx := newTestAdmission(t, store, nil)

	// Seed a cache entry so the update flow has something to replace.
	cacheKey := linkcache.Key(testDomain.ID.String(), existing.Slug)
	if err := fx.mem.Set(t.Context(), cacheKey, "stale", time.Hour); err != nil {
		t.Fatalf("seeding cache: %v", err)
	}

	destination := "example.org/new"
	disabled := true
	updated, err := fx.admission.Update(t.Context(), existing.ID, UpdateRequest{
		DestinationURL: &destination,
		Disabled:       &disabled,
		ClearExpiresAt: true,
	})
	if err != nil {
		t.Fatalf("Update(): %v", err)
	}

	if updated.Link.DestinationURL != "https://example.org/new" {
		t.Errorf("destination = %q, want normalized %q", updated.Link.DestinationURL, "https://example.org/new")
	}
	if gotParams.ExpiresAt == nil || gotParams.ExpiresAt.Value != nil {
		t.Errorf("expiry update = %+v, want a clear", gotParams.ExpiresAt)
	}

	cached, err := fx.mem.Get(t.Context(), cacheKey)
	if err != nil {
		t.Fatalf("cache entry missing after update: %v", err)
	}
	if cached == "stale" {
		t.Error("cache entry not replaced after update")
	}
}

func TestUpdateRejectsSlugChange(t *testing.T) {
	fx := newTestAdmission(t, &mockStore{}, nil)

	_, err := fx.admission.Update(t.Context(), uuid.New(), UpdateRequest{SlugProvided: true})
	if !errors.Is(err, ErrSlugChangeNotAllowed) {
		t.Fatalf("Update() error = %v, want ErrSlugChangeNotAllowed", err)
	}
	if got := errx.KindOf(err); got != errx.Invalid {
		t.Errorf("error kind = %s, want Invalid", got)
	}
}

func TestUpdateImmutableLink(t *testing.T) {
	existing := newTestLink("locked1")
	existing.RedirectType = 301
	existing.Immutable = true

	store := &mockStore{
		findLinkByID: func(context.Context, uuid.UUID, uuid.UUID) (Link, error) {
			return existing, nil
		},
		updateLink: func(_ context.Context, _ uuid.UUID, params UpdateLinkParams) (Link, error) {
			updated := existing
			if params.Disabled != nil {
				updated.Disabled = *params.Disabled
			}
			return updated, nil
		},
	}

	fx := newTestAdmission(t, store, nil)

	destination := "https://example.org"
	_, err := fx.admission.Update(t.Context(), existing.ID, UpdateRequest{DestinationURL: &destination})
	if !errors.Is(err, ErrImmutableLink) {
		t.Fatalf("Update() error = %v, want ErrImmutableLink", err)
	}
	if got := errx.KindOf(err); got != errx.Conflict {
		t.Errorf("error kind = %s, want Conflict", got)
	}

	// Disabling stays allowed on immutable links.
	disabled := true
	if _, err := fx.admission.Update(t.Context(), existing.ID, UpdateRequest{Disabled: &disabled}); err != nil {
		t.Fatalf("Update() disabling an immutable link: %v", err)
	}
}

func TestUpdateToPermanentRedirectForcesImmutable(t *testing.T) {
	existing := newTestLink("upgrade")

	var gotParams UpdateLinkParams
	store := &mockStore{
		findLinkByID: func(context.Context, uuid.UUID, uuid.UUID) (Link, error) {
			return existing, nil
		},
		updateLink: func(_ context.Context, _ uuid.UUID, params UpdateLinkParams) (Link, error) {
			gotParams = params
			updated := existing
			updated.RedirectType = *params.RedirectType
			updated.Immutable = true
			return updated, nil
		},
	}

	fx := newTestAdmission(t, store, nil)

	redirectType := 308
	updated, err := fx.admission.Update(t.Context(), existing.ID, UpdateRequest{RedirectType: &redirectType})
	if err != nil {
		t.Fatalf("Update(): %v", err)
	}

	if gotParams.Immutable == nil || !*gotParams.Immutable {
		t.Error("update params did not force the immutable flag")
	}
	if len(updated.Warnings) != 1 || updated.Warnings[0] != WarnImmutableRedirect {
		t.Errorf("warnings = %v, want [%q]", updated.Warnings, WarnImmutableRedirect)
	}
}

func TestUpdateMissingLink(t *testing.T) {
	store := &mockStore{
		findLinkByID: func(context.Context, uuid.UUID, uuid.UUID) (Link, error) {
			return Link{}, notFoundErr("mockStore.FindLinkByID")
		},
	}

	fx := newTestAdmission(t, store, nil)

	_, err := fx.admission.Update(t.Context(), uuid.New(), UpdateRequest{})
	if !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("Update() error = %v, want ErrLinkNotFound", err)
	}
}

func TestDeleteLink(t *testing.T) {
	existing := newTestLink("doomed1")

	deleted := false
	store := &mockStore{
		findLinkByID: func(context.Context, uuid.UUID, uuid.UUID) (Link, error) {
			return existing, nil
		},
		deleteLink: func(_ context.Context, id uuid.UUID) error {
			if id != existing.ID {
				t.Fatalf("deleting %s, want %s", id, existing.ID)
			}
			deleted = true
			return nil
		},
	}

	fx := newTestAdmission(t, store, nil)

	cacheKey := linkcache.Key(testDomain.ID.String(), existing.Slug)
	if err := fx.mem.Set(t.Context(), cacheKey, "cached", time.Hour); err != nil {
		t.Fatalf("seeding cache: %v", err)
	}

	if err := fx.admission.Delete(t.Context(), existing.ID); err != nil {
		t.Fatalf("Delete(): %v", err)
	}
	if !deleted {
		t.Error("store delete never called")
	}
	if _, err := fx.mem.Get(t.Context(), cacheKey); err == nil {
		t.Error("cache entry survived delete")
	}
}

func TestDeleteMissingLink(t *testing.T) {
	store := &mockStore{
		findLinkByID: func(context.Context, uuid.UUID, uuid.UUID) (Link, error) {
			return Link{}, notFoundErr("mockStore.FindLinkByID")
		},
	}

	fx := newTestAdmission(t, store, nil)

	err := fx.admission.Delete(t.Context(), uuid.New())
	if !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("Delete() error = %v, want ErrLinkNotFound", err)
	}
	if got := errx.KindOf(err); got != errx.NotFound {
		t.Errorf("error kind = %s, want NotFound", got)
	}
}
