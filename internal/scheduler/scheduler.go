// Package scheduler runs the periodic jobs: keeping a rolling horizon of
// future partitions materialized and refreshing the daily aggregate.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/streamflix/partwise/internal/aggregate"
	"github.com/streamflix/partwise/internal/provision"
)

// Clock abstracts time for tests.
type Clock func() time.Time

// ProvisionJob keeps partitions materialized from the current month through
// HorizonMonths ahead. Each tick is independent and idempotent: a missed or
// failed run is made whole by the next one.
type ProvisionJob struct {
	Interval      time.Duration
	HorizonMonths int
	MaxParallel   int
	Provisioner   *provision.Provisioner
	Now           Clock
}

// Start runs the job until ctx is cancelled. The first run happens
// immediately, not after the first interval — a fresh deployment must not
// wait a day for its partitions.
func (j *ProvisionJob) Start(ctx context.Context) error {
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	slog.Info("[Scheduler] Starting partition horizon job",
		"interval", j.Interval,
		"horizon_months", j.HorizonMonths,
		"max_parallel", j.MaxParallel)

	j.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			j.runOnce(ctx)
		case <-ctx.Done():
			slog.Info("[Scheduler] Stopping partition horizon job (context cancelled)")
			return nil
		}
	}
}

func (j *ProvisionJob) runOnce(ctx context.Context) {
	runID := uuid.NewString()
	from := j.now()
	to := from.AddDate(0, j.HorizonMonths, 0)

	outcomes, err := j.Provisioner.EnsureHorizon(ctx, from, to, j.MaxParallel)
	created := 0
	for _, o := range outcomes {
		if o.Err == nil && o.Result.Created {
			created++
		}
	}
	if err != nil {
		slog.Error("[Scheduler] Horizon run finished with failures",
			"run_id", runID,
			"months", len(outcomes),
			"created", created,
			"error", err)
		return
	}
	slog.Info("[Scheduler] Horizon run complete",
		"run_id", runID,
		"months", len(outcomes),
		"created", created)
}

func (j *ProvisionJob) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now().UTC()
}

// RefreshJob refreshes the daily aggregate on its own cadence, independent of
// provisioning.
type RefreshJob struct {
	Interval   time.Duration
	Maintainer *aggregate.Maintainer
}

// Start runs the job until ctx is cancelled. On shutdown a final refresh is
// attempted with its own deadline so the aggregate is as fresh as possible
// when the process exits.
func (j *RefreshJob) Start(ctx context.Context) error {
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	slog.Info("[Scheduler] Starting aggregate refresh job", "interval", j.Interval)

	j.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			j.runOnce(ctx)
		case <-ctx.Done():
			slog.Info("[Scheduler] Stopping aggregate refresh job (context cancelled)")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			j.runOnce(shutdownCtx)

			return nil
		}
	}
}

func (j *RefreshJob) runOnce(ctx context.Context) {
	result, err := j.Maintainer.Refresh(ctx)
	if err != nil {
		// The prior aggregate stays valid and queryable; next tick retries.
		slog.Error("[Scheduler] Aggregate refresh failed",
			"run_id", result.RunID,
			"error", err)
		return
	}
	slog.Info("[Scheduler] Aggregate refresh complete",
		"run_id", result.RunID,
		"days", result.Days,
		"duration", result.Duration)
}
