package refresh

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/terra-clan/duewatch/internal/dashboard"
	"github.com/terra-clan/duewatch/internal/models"
)

// Dashboard is the part of dashboard.Service the worker drives
type Dashboard interface {
	Session() models.Session
	Refresh(ctx context.Context) (*models.Snapshot, error)
}

// Refresher re-runs the aggregation cycle periodically while a session is live
type Refresher struct {
	dashboard Dashboard
	interval  time.Duration
}

// NewRefresher creates a new refresh worker
func NewRefresher(d Dashboard, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	return &Refresher{
		dashboard: d,
		interval:  interval,
	}
}

// Start begins the refresh worker in a goroutine
func (r *Refresher) Start(ctx context.Context) {
	go r.run(ctx)
}

func (r *Refresher) run(ctx context.Context) {
	slog.Info("refresh worker started", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("refresh worker stopped")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick refreshes once; it is a no-op without a live session
func (r *Refresher) tick(ctx context.Context) {
	if !r.dashboard.Session().Authenticated {
		slog.Debug("skipping refresh, not authenticated")
		return
	}

	snap, err := r.dashboard.Refresh(ctx)
	switch {
	case errors.Is(err, dashboard.ErrCancelled):
		slog.Debug("scheduled refresh superseded")
	case err != nil:
		slog.Error("scheduled refresh failed", "error", err)
	default:
		slog.Info("scheduled refresh done", "snapshot_id", snap.ID, "missing", len(snap.Missing))
	}
}
