package links

import (
	"context"
	"log/slog"
)

// bestEffort runs fn and logs any failure instead of propagating it.
// Cache population, cache invalidation and analytics writes all go through
// here: none of them may break a redirect or a write.
func bestEffort(ctx context.Context, logger *slog.Logger, op string, fn func() error) {
	if err := fn(); err != nil {
		logger.WarnContext(ctx, "best-effort operation failed",
			"op", op,
			"error", err,
		)
	}
}
