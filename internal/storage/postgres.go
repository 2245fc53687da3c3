package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"github.com/terra-clan/duewatch/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
	keep int
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	Schema       string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
	Migrations   fs.FS
	// Retention caps stored snapshots; older rows are pruned on save
	Retention    int
}

// NewPostgresRepository connects, creates the schema if needed and applies
// pending migrations
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 4
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	schema := cfg.Schema
	if schema == "" {
		schema = "public"
	}
	poolConfig.ConnConfig.RuntimeParams["search_path"] = pq.QuoteIdentifier(schema)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pq.QuoteIdentifier(schema)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema %s: %w", schema, err)
	}

	if cfg.Migrations != nil {
		if err := RunMigrations(ctx, pool, cfg.Migrations); err != nil {
			pool.Close()
			return nil, err
		}
	}

	keep := cfg.Retention
	if keep <= 0 {
		keep = DefaultRetention
	}

	return &PostgresRepository{pool: pool, keep: keep}, nil
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// execer is the part of pgx shared by the pool and a transaction
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// SaveSnapshot stores a completed cycle and prunes snapshots beyond the
// retention limit in the same transaction
func (r *PostgresRepository) SaveSnapshot(ctx context.Context, snap *models.Snapshot) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := insertSnapshot(ctx, tx, snap); err != nil {
			return err
		}
		pruned, err := pruneSnapshots(ctx, tx, r.keep)
		if err != nil {
			return err
		}
		if pruned > 0 {
			slog.Debug("pruned old snapshots", "count", pruned, "keep", r.keep)
		}
		return nil
	})
}

func insertSnapshot(ctx context.Context, db execer, snap *models.Snapshot) error {
	coursesJSON, err := json.Marshal(snap.Courses)
	if err != nil {
		return fmt.Errorf("failed to marshal courses: %w", err)
	}

	missingJSON, err := json.Marshal(snap.Missing)
	if err != nil {
		return fmt.Errorf("failed to marshal missing assignments: %w", err)
	}

	failed := snap.FailedCourses
	if failed == nil {
		failed = []string{}
	}

	query := `
		INSERT INTO snapshots (id, generated_at, courses, missing, failed_courses, assignments_seen)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = db.Exec(ctx, query,
		snap.ID,
		snap.GeneratedAt,
		coursesJSON,
		missingJSON,
		failed,
		snap.AssignmentsSeen,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	return nil
}

const pruneQuery = `
	DELETE FROM snapshots
	WHERE id IN (SELECT id FROM snapshots ORDER BY generated_at DESC OFFSET $1)
`

// pruneSnapshots keeps the newest keep rows and returns how many were deleted
func pruneSnapshots(ctx context.Context, db execer, keep int) (int64, error) {
	tag, err := db.Exec(ctx, pruneQuery, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}

const snapshotColumns = `id, generated_at, courses, missing, failed_courses, assignments_seen`

// LatestSnapshot returns the most recently generated snapshot
func (r *PostgresRepository) LatestSnapshot(ctx context.Context) (*models.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshots ORDER BY generated_at DESC LIMIT 1`

	snap, err := scanSnapshot(r.pool.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots returns up to limit snapshots, newest first
func (r *PostgresRepository) ListSnapshots(ctx context.Context, limit int) ([]*models.Snapshot, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `SELECT ` + snapshotColumns + ` FROM snapshots ORDER BY generated_at DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*models.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, snap)
	}

	return snapshots, rows.Err()
}

func scanSnapshot(row pgx.Row) (*models.Snapshot, error) {
	var snap models.Snapshot
	var coursesJSON, missingJSON []byte

	err := row.Scan(
		&snap.ID,
		&snap.GeneratedAt,
		&coursesJSON,
		&missingJSON,
		&snap.FailedCourses,
		&snap.AssignmentsSeen,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(coursesJSON, &snap.Courses); err != nil {
		return nil, fmt.Errorf("failed to unmarshal courses: %w", err)
	}
	if err := json.Unmarshal(missingJSON, &snap.Missing); err != nil {
		return nil, fmt.Errorf("failed to unmarshal missing assignments: %w", err)
	}

	return &snap, nil
}
