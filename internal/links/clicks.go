package links

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/sundayezeilo/linkhub/internal/kv"
)

const (
	// clickTTL bounds how long per-link analytics keys survive without
	// further clicks.
	clickTTL = 90 * 24 * time.Hour

	// clickTimeout caps the detached recording goroutine.
	clickTimeout = 5 * time.Second
)

func clicksKey(linkID string) string      { return "clicks:" + linkID }
func lastClickedKey(linkID string) string { return "lastClickedAt:" + linkID }

// ClickRecorder tracks click counts and last-clicked timestamps in the
// key-value store. Recording is fire-and-forget and never blocks a redirect.
type ClickRecorder struct {
	store  kv.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewClickRecorder(store kv.Store, logger *slog.Logger) *ClickRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClickRecorder{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Record launches a goroutine that increments the click counter and stamps
// the last-clicked time. The caller's context is deliberately not used: the
// redirect response must not wait on, or be cancelled together with, the
// analytics write.
func (c *ClickRecorder) Record(linkID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), clickTimeout)
		defer cancel()

		bestEffort(ctx, c.logger, "clicks.incr", func() error {
			_, err := c.store.Incr(ctx, clicksKey(linkID))
			return err
		})
		bestEffort(ctx, c.logger, "clicks.lastClickedAt", func() error {
			return c.store.Set(ctx, lastClickedKey(linkID),
				c.now().UTC().Format(time.RFC3339), clickTTL)
		})
	}()
}

// Snapshot fetches live click counts and last-clicked timestamps for a set
// of links in one round trip. Missing or unparseable values yield no entry;
// store failures yield an empty map. Callers fall back to the persisted
// analytics rows.
func (c *ClickRecorder) Snapshot(ctx context.Context, linkIDs []uuid.UUID) map[uuid.UUID]Analytics {
	if len(linkIDs) == 0 {
		return nil
	}

	keys := make([]string, 0, len(linkIDs)*2)
	for _, id := range linkIDs {
		keys = append(keys, clicksKey(id.String()))
	}
	for _, id := range linkIDs {
		keys = append(keys, lastClickedKey(id.String()))
	}

	values, err := c.store.MGet(ctx, keys...)
	if err != nil || len(values) != len(keys) {
		if err != nil {
			c.logger.WarnContext(ctx, "analytics snapshot failed", "error", err)
		}
		return nil
	}

	result := make(map[uuid.UUID]Analytics)
	for i, id := range linkIDs {
		var a Analytics
		var have bool

		if v := values[i]; v != nil {
			if n, err := strconv.ParseInt(*v, 10, 64); err == nil {
				a.TotalClicks = n
				have = true
			}
		}
		if v := values[len(linkIDs)+i]; v != nil {
			if t, err := time.Parse(time.RFC3339, *v); err == nil {
				a.LastClickedAt = &t
				have = true
			}
		}

		if have {
			result[id] = a
		}
	}
	return result
}
