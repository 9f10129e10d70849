package links

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sundayezeilo/linkhub/internal/errx"
	"github.com/sundayezeilo/linkhub/internal/idgen"
)

// dbtx abstracts *pgxpool.Pool for testing.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repo struct {
	db  dbtx
	ids idgen.Generator
}

// RepositoryConfig holds configuration for the repository.
type RepositoryConfig struct {
	IDGenerator idgen.Generator
}

// NewRepository creates the PostgreSQL-backed Store.
func NewRepository(db dbtx, config *RepositoryConfig) Store {
	if config == nil {
		config = &RepositoryConfig{}
	}

	// Default: UUID v7 for insert locality.
	if config.IDGenerator == nil {
		config.IDGenerator = idgen.NewV7(idgen.WithRetries(1))
	}

	return &repo{
		db:  db,
		ids: config.IDGenerator,
	}
}

func mapRepoError(op string, err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return errx.E(op, errx.NotFound, err)

	case isSlugUniqueViolation(err):
		return errx.E(op, errx.Conflict, err)

	default:
		return errx.E(op, errx.Unavailable, err)
	}
}

const linkColumns = "id, domain_id, slug, destination_url, redirect_type, immutable, disabled, expires_at, created_at"

func scanLink(row pgx.Row) (Link, error) {
	var l Link
	err := row.Scan(
		&l.ID,
		&l.DomainID,
		&l.Slug,
		&l.DestinationURL,
		&l.RedirectType,
		&l.Immutable,
		&l.Disabled,
		&l.ExpiresAt,
		&l.CreatedAt,
	)
	return l, err
}

func (r *repo) FindDomainByHostname(ctx context.Context, hostname string) (Domain, error) {
	const op = "links.repo.FindDomainByHostname"

	var d Domain
	err := r.db.QueryRow(ctx,
		"SELECT id, hostname FROM domains WHERE hostname = $1",
		hostname,
	).Scan(&d.ID, &d.Hostname)
	if err != nil {
		return Domain{}, mapRepoError(op, err)
	}
	return d, nil
}

func (r *repo) FindLinkBySlug(ctx context.Context, domainID uuid.UUID, slug string) (Link, error) {
	const op = "links.repo.FindLinkBySlug"

	link, err := scanLink(r.db.QueryRow(ctx,
		"SELECT "+linkColumns+" FROM links WHERE domain_id = $1 AND slug = $2",
		domainID, slug,
	))
	if err != nil {
		return Link{}, mapRepoError(op, err)
	}
	return link, nil
}

func (r *repo) FindLinkByID(ctx context.Context, id, domainID uuid.UUID) (Link, error) {
	const op = "links.repo.FindLinkByID"

	link, err := scanLink(r.db.QueryRow(ctx,
		"SELECT "+linkColumns+" FROM links WHERE id = $1 AND domain_id = $2",
		id, domainID,
	))
	if err != nil {
		return Link{}, mapRepoError(op, err)
	}
	return link, nil
}

func (r *repo) ListLinks(ctx context.Context, params ListLinksParams) ([]Link, error) {
	const op = "links.repo.ListLinks"

	query := "SELECT " + linkColumns + " FROM links WHERE domain_id = $1"
	args := []any{params.DomainID}

	if params.Cursor != uuid.Nil {
		// UUIDv7 ids sort by creation time, so the cursor doubles as a
		// created-at boundary.
		query += " AND id < $2"
		args = append(args, params.Cursor)
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT %d", params.Limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapRepoError(op, err)
	}
	defer rows.Close()

	var result []Link
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, mapRepoError(op, err)
		}
		result = append(result, link)
	}
	if err := rows.Err(); err != nil {
		return nil, mapRepoError(op, err)
	}
	return result, nil
}

func (r *repo) CreateLink(ctx context.Context, link Link) (Link, error) {
	const op = "links.repo.CreateLink"

	if link.ID == uuid.Nil {
		id, err := r.ids.Generate()
		if err != nil {
			return Link{}, errx.E(op, errx.Unavailable, err)
		}
		link.ID = id
	}

	created, err := scanLink(r.db.QueryRow(ctx,
		`INSERT INTO links (id, domain_id, slug, destination_url, redirect_type, immutable, disabled, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+linkColumns,
		link.ID, link.DomainID, link.Slug, link.DestinationURL,
		link.RedirectType, link.Immutable, link.Disabled, link.ExpiresAt,
	))
	if err != nil {
		return Link{}, mapRepoError(op, err)
	}
	return created, nil
}

func (r *repo) UpdateLink(ctx context.Context, id uuid.UUID, params UpdateLinkParams) (Link, error) {
	const op = "links.repo.UpdateLink"

	sets := make([]string, 0, 5)
	args := []any{id}

	addSet := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if params.DestinationURL != nil {
		addSet("destination_url", *params.DestinationURL)
	}
	if params.RedirectType != nil {
		addSet("redirect_type", *params.RedirectType)
	}
	if params.Disabled != nil {
		addSet("disabled", *params.Disabled)
	}
	if params.Immutable != nil {
		addSet("immutable", *params.Immutable)
	}
	if params.ExpiresAt != nil {
		addSet("expires_at", params.ExpiresAt.Value)
	}

	if len(sets) == 0 {
		link, err := scanLink(r.db.QueryRow(ctx,
			"SELECT "+linkColumns+" FROM links WHERE id = $1", id,
		))
		if err != nil {
			return Link{}, mapRepoError(op, err)
		}
		return link, nil
	}

	query := "UPDATE links SET " + strings.Join(sets, ", ") +
		" WHERE id = $1 RETURNING " + linkColumns

	link, err := scanLink(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		return Link{}, mapRepoError(op, err)
	}
	return link, nil
}

func (r *repo) DeleteLink(ctx context.Context, id uuid.UUID) error {
	const op = "links.repo.DeleteLink"

	tag, err := r.db.Exec(ctx, "DELETE FROM links WHERE id = $1", id)
	if err != nil {
		return mapRepoError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return errx.E(op, errx.NotFound, pgx.ErrNoRows)
	}
	return nil
}

func (r *repo) CreateAnalyticsRow(ctx context.Context, linkID uuid.UUID) error {
	const op = "links.repo.CreateAnalyticsRow"

	_, err := r.db.Exec(ctx,
		"INSERT INTO link_analytics (link_id, total_clicks) VALUES ($1, 0)",
		linkID,
	)
	if err != nil {
		return mapRepoError(op, err)
	}
	return nil
}

func (r *repo) FindAnalyticsRows(ctx context.Context, linkIDs []uuid.UUID) (map[uuid.UUID]Analytics, error) {
	const op = "links.repo.FindAnalyticsRows"

	result := make(map[uuid.UUID]Analytics, len(linkIDs))
	if len(linkIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.Query(ctx,
		"SELECT link_id, total_clicks, last_clicked_at FROM link_analytics WHERE link_id = ANY($1)",
		linkIDs,
	)
	if err != nil {
		return nil, mapRepoError(op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var a Analytics
		if err := rows.Scan(&id, &a.TotalClicks, &a.LastClickedAt); err != nil {
			return nil, mapRepoError(op, err)
		}
		result[id] = a
	}
	if err := rows.Err(); err != nil {
		return nil, mapRepoError(op, err)
	}
	return result, nil
}
