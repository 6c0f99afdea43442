package auth

import (
	"context"
	"time"

	"github.com/akotlyarov/lingua/internal/logger"
	"github.com/akotlyarov/lingua/internal/repository"
)

const (
	defaultSweepInterval = 1 * time.Hour
	defaultRetention     = 30 * 24 * time.Hour // keep expired records around this long for audit
)

// Janitor periodically deletes refresh token records that expired longer than
// the retention window ago. Revoked but unexpired records stay untouched:
// revocation is the audit trail for rotation and logout
type Janitor struct {
	storage  repository.Storage
	logger   logger.Logger
	interval time.Duration

	// How long an expired record is kept before deletion
	retention time.Duration
}

func NewJanitor(storage repository.Storage, l logger.Logger) *Janitor {
	return &Janitor{
		storage:   storage,
		logger:    l,
		interval:  defaultSweepInterval,
		retention: defaultRetention,
	}
}

// Run sweeps on a ticker until the context is cancelled.
// Returns a channel closed after the final sweep finishes
func (j *Janitor) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})
	j.logger.Debug("Starting refresh token janitor", "interval", j.interval, "retention", j.retention)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				j.logger.Debug("Janitor stopped by context")
				return

			case <-ticker.C:
				j.sweep(ctx)
			}
		}
	}()

	return idleStopped
}

func (j *Janitor) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-j.retention)

	deleted, err := j.storage.Refresh().DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("Failed to sweep expired refresh tokens", "error", err)
		return
	}

	if deleted > 0 {
		j.logger.Info("Swept expired refresh tokens", "deleted", deleted, "cutoff", cutoff)
	}
}
