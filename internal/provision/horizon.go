package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/streamflix/partwise/internal/core/plan"
)

// HorizonOutcome pairs one target month with its provisioning result or
// failure. A failed month never blocks the others.
type HorizonOutcome struct {
	Target time.Time `json:"target"`
	Result Result    `json:"result"`
	Err    error     `json:"-"`
}

// EnsureHorizon provisions every month boundary in [from, to], ascending.
// Independent months operate on disjoint partition names, so up to
// maxParallel of them run concurrently; ordering of the returned slice is
// chronological regardless. to before from yields an empty slice, not an
// error.
//
// Outcomes are collected per month; the returned error joins the individual
// failures so one bad month does not hide the rest.
func (p *Provisioner) EnsureHorizon(ctx context.Context, from, to time.Time, maxParallel int) ([]HorizonOutcome, error) {
	steps, err := plan.Steps(from, to, p.opts.Granularity)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return []HorizonOutcome{}, nil
	}
	if maxParallel <= 0 {
		maxParallel = 1
	}

	slog.Info("[Provisioner] Ensuring horizon",
		"from", steps[0],
		"to", steps[len(steps)-1],
		"months", len(steps),
		"max_parallel", maxParallel)

	outcomes := make([]HorizonOutcome, len(steps))

	// A plain group, not WithContext: one month failing must not cancel its
	// siblings. Errors land in the outcome slots instead.
	var g errgroup.Group
	g.SetLimit(maxParallel)

	for i, target := range steps {
		i, target := i, target
		g.Go(func() error {
			result, err := p.Provision(ctx, target)
			outcomes[i] = HorizonOutcome{Target: target, Result: result, Err: err}
			if err != nil {
				slog.Error("[Provisioner] Month failed during horizon run",
					"target", target,
					"partition", result.PartitionName,
					"error", err)
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck // goroutines never return errors

	errs := make([]error, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Result.PartitionName, o.Err))
		}
	}
	return outcomes, errors.Join(errs...)
}
