// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"log/slog"
	"time"
)

// expiredTokenStore purges refresh tokens past their expiry.
type expiredTokenStore interface {
	DeleteExpiredRefreshTokens(ctx context.Context) (int64, error)
}

// runJanitor purges expired refresh tokens once at start and then every
// interval until ctx is done.
func runJanitor(ctx context.Context, store expiredTokenStore, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		sweepExpiredTokens(ctx, store)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func sweepExpiredTokens(ctx context.Context, store expiredTokenStore) {
	n, err := store.DeleteExpiredRefreshTokens(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("refresh_cleanup_failed", "error", err)
		}
		return
	}
	if n > 0 {
		slog.Info("refresh_tokens_purged", "count", n)
	}
}
