package storage

import (
	"context"

	"github.com/terra-clan/duewatch/internal/models"
)

// DefaultRetention is how many snapshots a repository keeps unless configured
const DefaultRetention = 10

// Repository defines the interface for snapshot persistence
type Repository interface {
	SaveSnapshot(ctx context.Context, snap *models.Snapshot) error
	// LatestSnapshot returns nil, nil when nothing has been saved
	LatestSnapshot(ctx context.Context) (*models.Snapshot, error)
	ListSnapshots(ctx context.Context, limit int) ([]*models.Snapshot, error)

	// Health
	Ping(ctx context.Context) error
	Close() error
}
