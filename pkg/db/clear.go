package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearSnapshots deletes the snapshot history of one device, or of every
// device when device is empty. It returns the number of deleted rows.
func ClearSnapshots(ctx context.Context, pool *pgxpool.Pool, device string) (int64, error) {
	if device == "" {
		slog.Info(fmt.Sprintf("%s - Clearing all snapshots", clearLogPrefix))
		tag, err := pool.Exec(ctx, `DELETE FROM capability_snapshots`)
		if err != nil {
			return 0, fmt.Errorf("%s - delete failed: %w", clearLogPrefix, err)
		}
		return tag.RowsAffected(), nil
	}

	slog.Info(fmt.Sprintf("%s - Clearing snapshots of %s", clearLogPrefix, device))
	tag, err := pool.Exec(ctx, `DELETE FROM capability_snapshots WHERE device = $1`, device)
	if err != nil {
		return 0, fmt.Errorf("%s - delete failed: %w", clearLogPrefix, err)
	}
	return tag.RowsAffected(), nil
}
