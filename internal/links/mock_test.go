package links

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sundayezeilo/linkhub/internal/errx"
)

// mockStore implements Store with per-method function fields. Unset methods
// fail loudly so tests only exercise the calls they expect.
type mockStore struct {
	findDomainByHostname func(ctx context.Context, hostname string) (Domain, error)
	findLinkBySlug       func(ctx context.Context, domainID uuid.UUID, slug string) (Link, error)
	findLinkByID         func(ctx context.Context, id, domainID uuid.UUID) (Link, error)
	listLinks            func(ctx context.Context, params ListLinksParams) ([]Link, error)
	createLink           func(ctx context.Context, link Link) (Link, error)
	updateLink           func(ctx context.Context, id uuid.UUID, params UpdateLinkParams) (Link, error)
	deleteLink           func(ctx context.Context, id uuid.UUID) error
	createAnalyticsRow   func(ctx context.Context, linkID uuid.UUID) error
	findAnalyticsRows    func(ctx context.Context, linkIDs []uuid.UUID) (map[uuid.UUID]Analytics, error)
}

func (m *mockStore) FindDomainByHostname(ctx context.Context, hostname string) (Domain, error) {
	if m.findDomainByHostname == nil {
		panic("unexpected FindDomainByHostname call")
	}
	return m.findDomainByHostname(ctx, hostname)
}

func (m *mockStore) FindLinkBySlug(ctx context.Context, domainID uuid.UUID, slug string) (Link, error) {
	if m.findLinkBySlug == nil {
		panic("unexpected FindLinkBySlug call")
	}
	return m.findLinkBySlug(ctx, domainID, slug)
}

func (m *mockStore) FindLinkByID(ctx context.Context, id, domainID uuid.UUID) (Link, error) {
	if m.findLinkByID == nil {
		panic("unexpected FindLinkByID call")
	}
	return m.findLinkByID(ctx, id, domainID)
}

func (m *mockStore) ListLinks(ctx context.Context, params ListLinksParams) ([]Link, error) {
	if m.listLinks == nil {
		panic("unexpected ListLinks call")
	}
	return m.listLinks(ctx, params)
}

func (m *mockStore) CreateLink(ctx context.Context, link Link) (Link, error) {
	if m.createLink == nil {
		panic("unexpected CreateLink call")
	}
	return m.createLink(ctx, link)
}

func (m *mockStore) UpdateLink(ctx context.Context, id uuid.UUID, params UpdateLinkParams) (Link, error) {
	if m.updateLink == nil {
		panic("unexpected UpdateLink call")
	}
	return m.updateLink(ctx, id, params)
}

func (m *mockStore) DeleteLink(ctx context.Context, id uuid.UUID) error {
	if m.deleteLink == nil {
		panic("unexpected DeleteLink call")
	}
	return m.deleteLink(ctx, id)
}

func (m *mockStore) CreateAnalyticsRow(ctx context.Context, linkID uuid.UUID) error {
	if m.createAnalyticsRow == nil {
		return nil
	}
	return m.createAnalyticsRow(ctx, linkID)
}

func (m *mockStore) FindAnalyticsRows(ctx context.Context, linkIDs []uuid.UUID) (map[uuid.UUID]Analytics, error) {
	if m.findAnalyticsRows == nil {
		return map[uuid.UUID]Analytics{}, nil
	}
	return m.findAnalyticsRows(ctx, linkIDs)
}

func notFoundErr(op string) error {
	return errx.E(op, errx.NotFound, errors.New("no rows in result set"))
}

func unavailableErr(op string) error {
	return errx.E(op, errx.Unavailable, errors.New("connection refused"))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testDomain is the default domain used across the package tests.
var testDomain = Domain{
	ID:       uuid.MustParse("0192b1c2-0000-7000-8000-000000000001"),
	Hostname: "lnk.example",
}

// domainStore wraps a mockStore so the domain lookup always succeeds.
func domainStore(m *mockStore) *mockStore {
	m.findDomainByHostname = func(_ context.Context, hostname string) (Domain, error) {
		if hostname != testDomain.Hostname {
			return Domain{}, notFoundErr("mockStore.FindDomainByHostname")
		}
		return testDomain, nil
	}
	return m
}

func newTestLink(slug string) Link {
	return Link{
		ID:             uuid.New(),
		DomainID:       testDomain.ID,
		Slug:           slug,
		DestinationURL: "https://example.com/",
		RedirectType:   302,
		CreatedAt:      time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}
