// Package provision creates monthly partitions of the viewing-events table,
// their country-hash leaves and the per-leaf index set, as one idempotent
// operation per target month.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/streamflix/partwise/internal/core/plan"
	"github.com/streamflix/partwise/internal/core/storage"
)

// Result describes the outcome of one Provision call.
type Result struct {
	PartitionName string    `json:"partition_name"`
	RangeStart    time.Time `json:"range_start"`
	RangeEnd      time.Time `json:"range_end"`

	// Created is false when everything already existed — the idempotent
	// no-op path.
	Created bool `json:"created"`

	// BucketCount is the number of hash leaves under the partition.
	BucketCount int `json:"bucket_count"`

	// CreatedLeaves names the leaves created by this invocation, remainder
	// order. Empty on the no-op path; a subset after repairing an earlier
	// partial failure.
	CreatedLeaves []string `json:"created_leaves,omitempty"`
}

// Options configures a Provisioner. Validation happens once, in New, before
// any storage call — the planner and bucket assigner can only fail on
// configuration, never mid-provision.
type Options struct {
	BaseTable      string
	HashColumn     string
	Granularity    plan.Granularity
	Modulus        int
	Buckets        []plan.Bucket
	IndexTemplates []plan.IndexTemplate

	// OperationTimeout bounds one Provision call end to end. Zero disables
	// the budget.
	OperationTimeout time.Duration
}

// Provisioner orchestrates partition creation against the storage interfaces.
// Safe for concurrent use; per-partition mutual exclusion comes from the
// locker, not from anything in-process, so it holds across replicas too.
type Provisioner struct {
	meta   storage.PartitionMetadata
	ddl    storage.PartitionDDL
	locker storage.PartitionLocker
	opts   Options
	subs   []plan.SubPartitionDescriptor
}

// New validates the partitioning scheme and returns a ready Provisioner.
func New(meta storage.PartitionMetadata, ddl storage.PartitionDDL, locker storage.PartitionLocker, opts Options) (*Provisioner, error) {
	if opts.BaseTable == "" {
		return nil, &plan.ConfigurationError{Reason: "base table name is empty"}
	}
	if opts.HashColumn == "" {
		return nil, &plan.ConfigurationError{Reason: "hash column name is empty"}
	}
	if len(opts.IndexTemplates) == 0 {
		return nil, &plan.ConfigurationError{Reason: "index template set is empty"}
	}
	for _, tmpl := range opts.IndexTemplates {
		if err := tmpl.Validate(); err != nil {
			return nil, err
		}
	}
	if opts.Granularity == "" {
		opts.Granularity = plan.GranularityMonth
	}

	subs, err := plan.AssignBuckets(opts.Modulus, opts.Buckets)
	if err != nil {
		return nil, err
	}

	return &Provisioner{meta: meta, ddl: ddl, locker: locker, opts: opts, subs: subs}, nil
}

// Provision ensures the partition covering target exists with its full leaf
// and index fan-out.
//
// Calling it twice yields Created=true then Created=false, and the physical
// state after the second call equals the state after the first. After a
// PartialProvisionError, re-invocation detects and completes only the missing
// leaves. An "already exists" failure during creation is a benign race
// outcome and is converted to success, never surfaced.
func (p *Provisioner) Provision(ctx context.Context, target time.Time) (Result, error) {
	desc, err := plan.TimePartition(p.opts.BaseTable, target, p.opts.Granularity)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		PartitionName: desc.Name,
		RangeStart:    desc.RangeStart,
		RangeEnd:      desc.RangeEnd,
		BucketCount:   len(p.subs),
	}

	if p.opts.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.OperationTimeout)
		defer cancel()
	}

	// Mutual exclusion scoped to this partition name: two callers targeting
	// the same month serialize here, disjoint months run in parallel.
	release, err := p.locker.AcquirePartitionLock(ctx, desc.Name)
	if err != nil {
		return result, p.classify("acquire partition lock", err)
	}
	defer release()

	parentExists, err := p.meta.PartitionExists(ctx, desc.Name)
	if err != nil {
		return result, p.classify("check partition existence", err)
	}

	missing, err := p.missingLeaves(ctx, desc.Name)
	if err != nil {
		return result, p.classify("check leaf existence", err)
	}

	if parentExists && len(missing) == 0 {
		// Every relation exists, but a crash between leaf and index creation
		// on the final leaf leaves no missing leaf behind to trigger the
		// fan-out below. Verify the index set before declaring a no-op.
		repaired, err := p.repairIndexes(ctx, desc.Name)
		if err != nil {
			return result, err
		}
		if repaired == 0 {
			slog.Debug("[Provisioner] Partition already provisioned",
				"partition", desc.Name,
				"buckets", len(p.subs))
		} else {
			slog.Info("[Provisioner] Repaired missing leaf indexes",
				"partition", desc.Name,
				"indexes", repaired)
		}
		return result, nil
	}

	if !parentExists {
		err := p.ddl.CreateTimePartition(ctx, p.opts.BaseTable, desc, p.opts.HashColumn)
		if err != nil && !errors.Is(err, storage.ErrAlreadyExists) {
			return result, p.classify("create time partition", err)
		}
		// ErrAlreadyExists: a concurrent creator won between the existence
		// read and our DDL. Benign — continue into the leaf fan-out.
	}

	completed := make([]string, 0, len(p.subs))
	for _, sub := range p.subs {
		leaf := plan.LeafName(desc.Name, sub.Remainder)

		if _, isMissing := missing[leaf]; isMissing {
			err := p.ddl.CreateHashLeaf(ctx, desc.Name, leaf, sub.Modulus, sub.Remainder)
			if err != nil && !errors.Is(err, storage.ErrAlreadyExists) {
				return result, &PartialProvisionError{
					PartitionName:   desc.Name,
					CompletedLeaves: completed,
					FailedLeaf:      leaf,
					Err:             p.classify("create leaf", err),
				}
			}
			result.CreatedLeaves = append(result.CreatedLeaves, leaf)
		}

		// Indexes go on every leaf, existing ones included: a crash between
		// leaf and index creation leaves a leaf without its index set, and
		// this pass repairs it. ErrAlreadyExists makes the re-issue free of
		// duplicates.
		for _, tmpl := range p.opts.IndexTemplates {
			err := p.ddl.CreateLeafIndex(ctx, leaf, tmpl)
			if err != nil && !errors.Is(err, storage.ErrAlreadyExists) {
				return result, &PartialProvisionError{
					PartitionName:   desc.Name,
					CompletedLeaves: completed,
					FailedLeaf:      leaf,
					Err:             p.classify("create leaf index", err),
				}
			}
		}

		completed = append(completed, leaf)
	}

	result.Created = true
	slog.Info("[Provisioner] Provisioned partition",
		"partition", desc.Name,
		"range_start", desc.RangeStart,
		"range_end", desc.RangeEnd,
		"buckets", result.BucketCount,
		"created_leaves", len(result.CreatedLeaves))
	return result, nil
}

// repairIndexes checks every template on every leaf and creates the absent
// ones. Returns the number of indexes created. Only runs on the
// everything-exists path, so a fully provisioned partition pays metadata
// reads, never DDL.
func (p *Provisioner) repairIndexes(ctx context.Context, partitionName string) (int, error) {
	repaired := 0
	verified := make([]string, 0, len(p.subs))
	for _, sub := range p.subs {
		leaf := plan.LeafName(partitionName, sub.Remainder)
		for _, tmpl := range p.opts.IndexTemplates {
			exists, err := p.meta.IndexExists(ctx, leaf, tmpl.IndexName(leaf))
			if err != nil {
				return repaired, p.classify("check index existence", err)
			}
			if exists {
				continue
			}
			err = p.ddl.CreateLeafIndex(ctx, leaf, tmpl)
			if err != nil && !errors.Is(err, storage.ErrAlreadyExists) {
				return repaired, &PartialProvisionError{
					PartitionName:   partitionName,
					CompletedLeaves: verified,
					FailedLeaf:      leaf,
					Err:             p.classify("create leaf index", err),
				}
			}
			repaired++
		}
		verified = append(verified, leaf)
	}
	return repaired, nil
}

// missingLeaves returns the set of leaf names under partitionName that do not
// exist yet. Per-leaf existence checks are what make retry after a partial
// failure complete only the gap.
func (p *Provisioner) missingLeaves(ctx context.Context, partitionName string) (map[string]struct{}, error) {
	missing := make(map[string]struct{})
	for _, sub := range p.subs {
		leaf := plan.LeafName(partitionName, sub.Remainder)
		exists, err := p.meta.PartitionExists(ctx, leaf)
		if err != nil {
			return nil, err
		}
		if !exists {
			missing[leaf] = struct{}{}
		}
	}
	return missing, nil
}

// classify translates low-level failures into the provisioning taxonomy.
// Storage sentinels pass through for errors.Is; a dead deadline becomes a
// TimeoutError carrying the configured budget.
func (p *Provisioner) classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && p.opts.OperationTimeout > 0 {
		return &TimeoutError{Op: op, Budget: p.opts.OperationTimeout, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
