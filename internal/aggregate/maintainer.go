// Package aggregate maintains the daily distinct-user aggregate: it drives
// the build-then-swap rebuild and serves day queries.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/streamflix/partwise/internal/core/storage"
	"github.com/streamflix/partwise/internal/provision"
)

// RefreshResult describes one completed refresh.
type RefreshResult struct {
	RunID     string        `json:"run_id"`
	Days      int64         `json:"days"`
	Windowed  bool          `json:"windowed"`
	Duration  time.Duration `json:"duration"`
	SwappedAt time.Time     `json:"swapped_at"`
}

// Maintainer owns the refresh cadence policy around an AggregateStore.
type Maintainer struct {
	store      storage.AggregateStore
	windowDays int
	timeout    time.Duration
}

// NewMaintainer creates a Maintainer. windowDays > 0 bounds each refresh to
// recent days (older days carry over unchanged); zero means full rebuild.
// timeout bounds one refresh; zero disables the budget.
func NewMaintainer(store storage.AggregateStore, windowDays int, timeout time.Duration) *Maintainer {
	return &Maintainer{store: store, windowDays: windowDays, timeout: timeout}
}

// Refresh recomputes the aggregate and atomically publishes it. Concurrent
// readers see either the pre-refresh or post-refresh contents for any day,
// never a mix, and event writers are never stalled — the store builds out of
// band and swaps in one step. On failure the prior aggregate remains valid
// and queryable.
func (m *Maintainer) Refresh(ctx context.Context) (RefreshResult, error) {
	runID := uuid.NewString()
	started := time.Now()

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	slog.Info("[Aggregate] Refresh starting",
		"run_id", runID,
		"window_days", m.windowDays)

	stats, err := m.store.Rebuild(ctx, m.windowDays)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && m.timeout > 0 {
			return RefreshResult{RunID: runID}, &provision.TimeoutError{
				Op:     "aggregate refresh",
				Budget: m.timeout,
				Err:    err,
			}
		}
		return RefreshResult{RunID: runID}, fmt.Errorf("aggregate refresh: %w", err)
	}

	result := RefreshResult{
		RunID:     runID,
		Days:      stats.Days,
		Windowed:  m.windowDays > 0,
		Duration:  time.Since(started),
		SwappedAt: stats.SwappedAt,
	}

	slog.Info("[Aggregate] Refresh complete",
		"run_id", runID,
		"days", result.Days,
		"duration", result.Duration)
	return result, nil
}

// QueryDays returns aggregate rows for days in [from, to], ascending.
func (m *Maintainer) QueryDays(ctx context.Context, from, to time.Time) ([]storage.AggregateRow, error) {
	return m.store.QueryDays(ctx, from, to)
}
