package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/device-capabilities/pkg/capability"
)

const repoLogPrefix = "db:repository"

// Repository provides database access for capability snapshots.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RecordSnapshot stores records unless they match the device's latest snapshot.
func (r *Repository) RecordSnapshot(ctx context.Context, device string, records []capability.Record) error {
	fingerprint := Fingerprint(records)
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("%s - encode snapshot: %w", repoLogPrefix, err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s - begin: %w", repoLogPrefix, err)
	}
	defer tx.Rollback(ctx)

	var latest string
	err = tx.QueryRow(ctx,
		`SELECT fingerprint FROM capability_snapshots
		 WHERE device = $1
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT 1
		 FOR UPDATE`, device).Scan(&latest)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s - read latest fingerprint: %w", repoLogPrefix, err)
	}
	if latest == fingerprint {
		slog.Debug(fmt.Sprintf("%s - %s unchanged, not recording", repoLogPrefix, device))
		return nil
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO capability_snapshots (device, fingerprint, capabilities, capability_count, recorded_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		device, fingerprint, payload, len(records), time.Now().UTC()); err != nil {
		return fmt.Errorf("%s - insert snapshot: %w", repoLogPrefix, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s - commit: %w", repoLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - recorded %d capabilities for %s", repoLogPrefix, len(records), device))
	return nil
}

// LatestSnapshot returns the most recent snapshot of device or ErrNotFound.
func (r *Repository) LatestSnapshot(ctx context.Context, device string) (*Snapshot, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, device, fingerprint, capabilities, recorded_at
		 FROM capability_snapshots
		 WHERE device = $1
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT 1`, device)
	s, err := scanSnapshot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// ListSnapshots returns up to limit snapshots of device, newest first.
func (r *Repository) ListSnapshots(ctx context.Context, device string, limit int) ([]*Snapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, device, fingerprint, capabilities, recorded_at
		 FROM capability_snapshots
		 WHERE device = $1
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT $2`, device, limit)
	if err != nil {
		return nil, fmt.Errorf("%s - list snapshots: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []*Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - list snapshots: %w", repoLogPrefix, err)
	}
	return out, nil
}

func scanSnapshot(row pgx.Row) (*Snapshot, error) {
	var s Snapshot
	var payload []byte
	if err := row.Scan(&s.ID, &s.Device, &s.Fingerprint, &payload, &s.RecordedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%s - scan snapshot: %w", repoLogPrefix, err)
	}
	if err := json.Unmarshal(payload, &s.Capabilities); err != nil {
		return nil, fmt.Errorf("%s - decode snapshot %d: %w", repoLogPrefix, s.ID, err)
	}
	return &s, nil
}
