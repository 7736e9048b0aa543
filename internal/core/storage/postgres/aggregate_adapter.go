package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/streamflix/partwise/internal/core/storage"
)

// AggregateAdapter implements storage.AggregateStore using PostgreSQL.
//
// Rebuilds follow a build-then-swap discipline: a staging table is populated
// out-of-band (snapshot reads only, no locks on viewing_events), then
// published by a rename pair inside one transaction. Readers of the aggregate
// see the fully-old or fully-new contents; event writers never wait.
type AggregateAdapter struct {
	db *sql.DB
}

// NewAggregateAdapter creates a new AggregateAdapter sharing the given connection.
func NewAggregateAdapter(db *sql.DB) *AggregateAdapter {
	return &AggregateAdapter{db: db}
}

// Rebuild recomputes daily distinct-user counts and atomically swaps in the
// result. windowDays > 0 bounds the recompute to recent days; rows older than
// the cutoff carry over from the current aggregate, so the published table is
// always whole. Failure anywhere before the swap leaves the prior aggregate
// untouched and queryable.
func (a *AggregateAdapter) Rebuild(ctx context.Context, windowDays int) (storage.RefreshStats, error) {
	var stats storage.RefreshStats

	// Clear leftovers from a previous crashed rebuild. Harmless when absent.
	if _, err := a.db.ExecContext(ctx, queryDropStagingAggregate); err != nil {
		return stats, fmt.Errorf("aggregate rebuild: drop stale staging: %w", translateError(err))
	}
	if _, err := a.db.ExecContext(ctx, queryDropRetiredAggregate); err != nil {
		return stats, fmt.Errorf("aggregate rebuild: drop retired table: %w", translateError(err))
	}

	if _, err := a.db.ExecContext(ctx, queryCreateStagingAggregate); err != nil {
		return stats, fmt.Errorf("aggregate rebuild: create staging: %w", translateError(err))
	}

	var days int64
	if windowDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -windowDays).Truncate(24 * time.Hour)
		stats.Cutoff = cutoff

		carried, err := a.db.ExecContext(ctx, queryCarryAggregateBeforeCutoff, cutoff)
		if err != nil {
			return stats, fmt.Errorf("aggregate rebuild: carry rows before cutoff: %w", translateError(err))
		}
		n, err := carried.RowsAffected()
		if err != nil {
			return stats, fmt.Errorf("aggregate rebuild: count carried rows: %w", err)
		}
		days += n

		rebuilt, err := a.db.ExecContext(ctx, queryBuildAggregateSinceCutoff, cutoff)
		if err != nil {
			return stats, fmt.Errorf("aggregate rebuild: recompute since cutoff: %w", translateError(err))
		}
		n, err = rebuilt.RowsAffected()
		if err != nil {
			return stats, fmt.Errorf("aggregate rebuild: count rebuilt rows: %w", err)
		}
		days += n
	} else {
		rebuilt, err := a.db.ExecContext(ctx, queryBuildAggregateFull)
		if err != nil {
			return stats, fmt.Errorf("aggregate rebuild: full recompute: %w", translateError(err))
		}
		n, err := rebuilt.RowsAffected()
		if err != nil {
			return stats, fmt.Errorf("aggregate rebuild: count rows: %w", err)
		}
		days = n
	}

	// Publish: retire current, promote staging, drop retired — one transaction.
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("aggregate rebuild: begin swap tx: %w", translateError(err))
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, queryRetireAggregate); err != nil {
		return stats, fmt.Errorf("aggregate rebuild: retire current: %w", translateError(err))
	}
	if _, err := tx.ExecContext(ctx, queryPublishAggregate); err != nil {
		return stats, fmt.Errorf("aggregate rebuild: publish staging: %w", translateError(err))
	}
	if _, err := tx.ExecContext(ctx, queryDropRetiredAggregate); err != nil {
		return stats, fmt.Errorf("aggregate rebuild: drop retired: %w", translateError(err))
	}
	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("aggregate rebuild: commit swap: %w", translateError(err))
	}

	stats.Days = days
	stats.SwappedAt = time.Now().UTC()

	slog.Info("[AggregateAdapter] Rebuilt daily_active_users",
		"days", stats.Days,
		"window_days", windowDays)
	return stats, nil
}

// QueryDays returns aggregate rows for days in [from, to], ascending.
// Point lookups pass from == to.
func (a *AggregateAdapter) QueryDays(ctx context.Context, from, to time.Time) ([]storage.AggregateRow, error) {
	rows, err := a.db.QueryContext(ctx, queryAggregateDays, from, to)
	if err != nil {
		return nil, fmt.Errorf("query daily_active_users: %w", translateError(err))
	}
	defer rows.Close()

	var results []storage.AggregateRow
	for rows.Next() {
		var row storage.AggregateRow
		if err := rows.Scan(&row.Day, &row.DistinctUserCount); err != nil {
			return nil, fmt.Errorf("scan aggregate row: %w", err)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregate rows: %w", err)
	}
	return results, nil
}
