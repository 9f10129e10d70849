package links

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/sundayezeilo/linkhub/internal/errx"
	"github.com/sundayezeilo/linkhub/internal/httpx"
	"github.com/sundayezeilo/linkhub/internal/urlnorm"
	"github.com/sundayezeilo/linkhub/sluggen"
)

// httpCreateLinkRequest is the JSON body for creating a link.
type httpCreateLinkRequest struct {
	DestinationURL string `json:"destinationUrl"`
	Slug           string `json:"slug,omitempty"`
	RedirectType   *int   `json:"redirectType,omitempty"`
	ExpiresAt      string `json:"expiresAt,omitempty"`
}

// httpUpdateLinkRequest is the JSON body for a partial update. ExpiresAt is
// raw so an explicit null (clear) can be told apart from absence.
type httpUpdateLinkRequest struct {
	DestinationURL *string         `json:"destinationUrl"`
	RedirectType   *int            `json:"redirectType"`
	Disabled       *bool           `json:"disabled"`
	ExpiresAt      json.RawMessage `json:"expiresAt"`
	Slug           *string         `json:"slug"`
}

// linkResponse is the public representation of a link.
type linkResponse struct {
	ID             string   `json:"id"`
	Slug           string   `json:"slug"`
	ShortURL       string   `json:"shortUrl"`
	DestinationURL string   `json:"destinationUrl"`
	RedirectType   int      `json:"redirectType"`
	Immutable      bool     `json:"immutable"`
	ExpiresAt      *string  `json:"expiresAt"`
	Disabled       bool     `json:"disabled"`
	CreatedAt      string   `json:"createdAt"`
	Warnings       []string `json:"warnings,omitempty"`
}

type analyticsResponse struct {
	TotalClicks   int64   `json:"totalClicks"`
	LastClickedAt *string `json:"lastClickedAt"`
}

type listedLinkResponse struct {
	linkResponse
	Analytics *analyticsResponse `json:"analytics"`
}

type listResponse struct {
	Items      []listedLinkResponse `json:"items"`
	NextCursor *string              `json:"nextCursor"`
}

// Handler provides the HTTP surface for link resolution and administration.
type Handler struct {
	resolver  *Resolver
	admission *Admission
	logger    *slog.Logger
	baseURL   string
}

// HandlerConfig holds configuration for the handler.
type HandlerConfig struct {
	Resolver  *Resolver
	Admission *Admission
	Logger    *slog.Logger
	BaseURL   string // base for short URLs, e.g. "https://lnk.example"
}

// NewHandler creates a new Handler instance.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		resolver:  cfg.Resolver,
		admission: cfg.Admission,
		logger:    logger,
		baseURL:   cfg.BaseURL,
	}
}

func (h *Handler) requestLogger(r *http.Request) *slog.Logger {
	return h.logger.With(
		"request_id", httpx.GetRequestID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
	)
}

func (h *Handler) linkResponse(link Link, warnings []string) linkResponse {
	resp := linkResponse{
		ID:             link.ID.String(),
		Slug:           link.Slug,
		ShortURL:       fmt.Sprintf("%s/%s", h.baseURL, link.Slug),
		DestinationURL: link.DestinationURL,
		RedirectType:   link.RedirectType,
		Immutable:      link.Immutable,
		Disabled:       link.Disabled,
		CreatedAt:      link.CreatedAt.UTC().Format(time.RFC3339),
		Warnings:       warnings,
	}
	if link.ExpiresAt != nil {
		iso := link.ExpiresAt.UTC().Format(time.RFC3339)
		resp.ExpiresAt = &iso
	}
	return resp
}

// Redirect handles GET /{slug}: the resolution pipeline plus the redirect
// response contract.
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	slug := r.PathValue("slug")
	if slug == "" {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Link not found.", nil)
		return
	}

	redirect, err := h.resolver.Resolve(ctx, slug)
	if err != nil {
		h.writeResolveError(ctx, w, logger, err, slug)
		return
	}

	logger.InfoContext(ctx, "slug resolved",
		"slug", slug,
		"status", redirect.Status,
	)

	http.Redirect(w, r, redirect.URL, redirect.Status)
}

func (h *Handler) writeResolveError(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, err error, slug string) {
	kind := errx.KindOf(err)

	switch {
	case kind == errx.NotFound:
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Link not found.", nil)

	case errors.Is(err, ErrLinkDisabled):
		httpx.WriteError(w, http.StatusGone, "disabled", "Link is disabled.", nil)

	case errors.Is(err, ErrLinkExpired):
		httpx.WriteError(w, http.StatusGone, "expired", "Link has expired.", nil)

	case errors.Is(err, ErrDomainMissing):
		logger.ErrorContext(ctx, "default domain not configured", "error", err.Error())
		httpx.WriteError(w, http.StatusInternalServerError, "domain_missing",
			"Default domain not found.", nil)

	default:
		logger.ErrorContext(ctx, "unexpected error resolving link",
			"error", err.Error(),
			"error_kind", kind,
			"operation", errx.OpOf(err),
			"slug", slug,
		)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error",
			"Unable to resolve this link at this time.", nil)
	}
}

// CreateLink handles POST /api/links.
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	// The limiter runs before the body is read so malformed payloads count
	// against the client's window too.
	if err := h.admission.AllowWrite(ctx, httpx.ClientIP(r)); err != nil {
		h.writeAdmissionError(ctx, w, logger, err)
		return
	}

	req, err := httpx.DecodeJSON[httpCreateLinkRequest](r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request", "error", err.Error())
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", err.Error(), nil)
		return
	}

	created, err := h.admission.Create(ctx, CreateRequest{
		DestinationURL: req.DestinationURL,
		Slug:           req.Slug,
		RedirectType:   req.RedirectType,
		ExpiresAt:      req.ExpiresAt,
	})
	if err != nil {
		h.writeAdmissionError(ctx, w, logger, err)
		return
	}

	logger.InfoContext(ctx, "link created",
		"link_id", created.Link.ID.String(),
		"slug", created.Link.Slug,
		"custom_slug", req.Slug != "",
	)

	httpx.WriteJSON(w, http.StatusCreated, h.linkResponse(created.Link, created.Warnings))
}

// UpdateLink handles PATCH /api/links/{id}.
func (h *Handler) UpdateLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Link not found.", nil)
		return
	}

	req, err := httpx.DecodeJSON[httpUpdateLinkRequest](r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request", "error", err.Error())
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", err.Error(), nil)
		return
	}

	update := UpdateRequest{
		DestinationURL: req.DestinationURL,
		RedirectType:   req.RedirectType,
		Disabled:       req.Disabled,
		SlugProvided:   req.Slug != nil,
	}

	if len(req.ExpiresAt) > 0 {
		if string(req.ExpiresAt) == "null" {
			update.ClearExpiresAt = true
		} else {
			var raw string
			if err := json.Unmarshal(req.ExpiresAt, &raw); err != nil {
				httpx.WriteError(w, http.StatusBadRequest, "invalid_expires_at",
					ErrInvalidExpiresAt.Error(), nil)
				return
			}
			update.ExpiresAt = &raw
		}
	}

	updated, err := h.admission.Update(ctx, id, update)
	if err != nil {
		h.writeAdmissionError(ctx, w, logger, err)
		return
	}

	logger.InfoContext(ctx, "link updated",
		"link_id", updated.Link.ID.String(),
		"slug", updated.Link.Slug,
	)

	httpx.WriteJSON(w, http.StatusOK, h.linkResponse(updated.Link, updated.Warnings))
}

// DeleteLink handles DELETE /api/links/{id}.
func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Link not found.", nil)
		return
	}

	if err := h.admission.Delete(ctx, id); err != nil {
		h.writeAdmissionError(ctx, w, logger, err)
		return
	}

	logger.InfoContext(ctx, "link deleted", "link_id", id.String())

	w.WriteHeader(http.StatusNoContent)
}

// ListLinks handles GET /api/links.
func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	cursor := uuid.Nil
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_cursor",
				"cursor must be a link id", nil)
			return
		}
		cursor = parsed
	}

	result, err := h.resolver.List(ctx, limit, cursor)
	if err != nil {
		h.writeAdmissionError(ctx, w, logger, err)
		return
	}

	resp := listResponse{Items: make([]listedLinkResponse, len(result.Items))}
	for i, item := range result.Items {
		entry := listedLinkResponse{linkResponse: h.linkResponse(item.Link, nil)}
		if item.Analytics != nil {
			a := &analyticsResponse{TotalClicks: item.Analytics.TotalClicks}
			if item.Analytics.LastClickedAt != nil {
				iso := item.Analytics.LastClickedAt.UTC().Format(time.RFC3339)
				a.LastClickedAt = &iso
			}
			entry.Analytics = a
		}
		resp.Items[i] = entry
	}
	if result.NextCursor != nil {
		s := result.NextCursor.String()
		resp.NextCursor = &s
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
}

// writeAdmissionError maps write-path faults to their response contract.
func (h *Handler) writeAdmissionError(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := errx.KindOf(err)

	logAttrs := []any{
		"error", err.Error(),
		"error_kind", kind,
		"operation", errx.OpOf(err),
	}

	var rateErr *RateLimitedError
	var urlErr *urlnorm.ValidationError
	var slugErr *sluggen.ValidationError

	switch {
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(rateErr.RetryAfter)))
		httpx.WriteError(w, http.StatusTooManyRequests, "rate_limited",
			"Too many requests. Try again later.", nil)

	case errors.As(err, &urlErr):
		logger.WarnContext(ctx, "invalid destination url", logAttrs...)
		httpx.WriteError(w, http.StatusBadRequest, urlErr.Code, urlErr.Message, nil)

	case errors.As(err, &slugErr):
		logger.WarnContext(ctx, "invalid custom slug", logAttrs...)
		httpx.WriteError(w, http.StatusBadRequest, slugErr.Code, slugErr.Message, nil)

	case errors.Is(err, ErrInvalidRedirectType):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_redirect_type",
			"Redirect type must be 301, 302, 307, or 308.", nil)

	case errors.Is(err, ErrInvalidExpiresAt):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_expires_at",
			"expiresAt must be a valid ISO datetime.", nil)

	case errors.Is(err, ErrSlugChangeNotAllowed):
		httpx.WriteError(w, http.StatusBadRequest, "slug_change_not_allowed",
			"Slug cannot be updated.", nil)

	case errors.Is(err, ErrSlugTaken):
		logger.WarnContext(ctx, "slug conflict", logAttrs...)
		httpx.WriteError(w, http.StatusConflict, "slug_taken",
			"Slug is already in use.", nil)

	case errors.Is(err, ErrImmutableLink):
		logger.WarnContext(ctx, "immutable link rejected update", logAttrs...)
		httpx.WriteError(w, http.StatusConflict, "immutable_link",
			"Immutable links cannot update destination or redirect type.", nil)

	case errors.Is(err, ErrSlugGenerationFailed):
		logger.ErrorContext(ctx, "slug generation exhausted", logAttrs...)
		httpx.WriteError(w, http.StatusInternalServerError, "slug_generation_failed",
			"Unable to generate a unique slug.", nil)

	case errors.Is(err, ErrDomainMissing):
		logger.ErrorContext(ctx, "default domain not configured", logAttrs...)
		httpx.WriteError(w, http.StatusInternalServerError, "domain_missing",
			"Default domain not found.", nil)

	default:
		status := httpx.ErrorKindToStatus(kind)
		code := httpx.ErrorKindToCode(kind)

		message := "Unable to process this request at this time. Please try again."
		switch kind {
		case errx.NotFound:
			message = "Link not found."
		case errx.Invalid:
			message = err.Error()
		}

		if status >= http.StatusInternalServerError {
			logger.ErrorContext(ctx, "unexpected error", logAttrs...)
		} else {
			logger.WarnContext(ctx, "request rejected", logAttrs...)
		}
		httpx.WriteError(w, status, code, message, nil)
	}
}

// retryAfterSeconds rounds a retry-after hint up to whole seconds, with a
// floor of 1 so clients never receive Retry-After: 0.
func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
