package storage

import (
	"context"
	"sync"

	"github.com/terra-clan/duewatch/internal/models"
)

// MemoryRepository keeps the most recent snapshots in process. It is used
// when no database is configured.
type MemoryRepository struct {
	mu        sync.RWMutex
	snapshots []*models.Snapshot // newest first
	keep      int
}

// NewMemoryRepository retains at most keep snapshots (DefaultRetention if keep <= 0)
func NewMemoryRepository(keep int) *MemoryRepository {
	if keep <= 0 {
		keep = DefaultRetention
	}
	return &MemoryRepository{keep: keep}
}

func (r *MemoryRepository) SaveSnapshot(ctx context.Context, snap *models.Snapshot) error {
	cp := *snap

	r.mu.Lock()
	defer r.mu.Unlock()

	r.snapshots = append([]*models.Snapshot{&cp}, r.snapshots...)
	if len(r.snapshots) > r.keep {
		r.snapshots = r.snapshots[:r.keep]
	}
	return nil
}

func (r *MemoryRepository) LatestSnapshot(ctx context.Context) (*models.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.snapshots) == 0 {
		return nil, nil
	}
	cp := *r.snapshots[0]
	return &cp, nil
}

func (r *MemoryRepository) ListSnapshots(ctx context.Context, limit int) ([]*models.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > len(r.snapshots) {
		limit = len(r.snapshots)
	}
	out := make([]*models.Snapshot, 0, limit)
	for _, s := range r.snapshots[:limit] {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (r *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

func (r *MemoryRepository) Close() error {
	return nil
}
