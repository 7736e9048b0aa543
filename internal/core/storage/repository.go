package storage

import (
	"context"
	"errors"
	"time"

	v1 "github.com/streamflix/partwise/internal/api/v1"
	"github.com/streamflix/partwise/internal/core/plan"
)

// ErrAlreadyExists reports that a partition or index the DDL tried to create
// is already present. Under concurrent provisioning this is a benign race
// outcome — the provisioner converts it to a no-op, callers never see it.
var ErrAlreadyExists = errors.New("relation already exists")

// ErrUnavailable reports that the storage engine itself is unreachable
// (connection refused, shutdown in progress). Surfaced immediately, no local
// recovery.
var ErrUnavailable = errors.New("storage unavailable")

// PartitionMetadata answers "does this physical partition exist" from live
// storage metadata. Read-only and safe to call concurrently with
// provisioning elsewhere; results are a pre-check, not a synchronization
// point — a concurrent creator can still win the race after a false answer.
type PartitionMetadata interface {
	// PartitionExists queries storage metadata fresh on every call.
	// Existence is never cached across invocations.
	PartitionExists(ctx context.Context, name string) (bool, error)

	// ListPartitions returns partition names matching a SQL LIKE pattern,
	// ascending. Used by external tooling that relies on deterministic names.
	ListPartitions(ctx context.Context, pattern string) ([]string, error)

	// IndexExists reports whether the named index is present on a leaf.
	// Lets the provisioner detect a leaf that was created but lost its
	// index fan-out to a crash, even when every relation already exists.
	IndexExists(ctx context.Context, leafName, indexName string) (bool, error)
}

// PartitionDDL issues the three creation commands the provisioner fans out.
// Each returns ErrAlreadyExists (wrapped) when the relation is already
// present, so that outcome stays distinguishable from real failures.
type PartitionDDL interface {
	// CreateTimePartition creates a range-bounded partition of parent that is
	// itself a container partitioned by hash of hashColumn.
	CreateTimePartition(ctx context.Context, parent string, desc plan.PartitionDescriptor, hashColumn string) error

	// CreateHashLeaf creates one hash bucket under a time partition.
	CreateHashLeaf(ctx context.Context, partitionName, leafName string, modulus, remainder int) error

	// CreateLeafIndex instantiates an index template on one leaf.
	CreateLeafIndex(ctx context.Context, leafName string, tmpl plan.IndexTemplate) error
}

// PartitionLocker provides mutual exclusion scoped to one partition name.
// Two concurrent Provision calls for the same target date must not both
// attempt creation; disjoint names proceed in parallel.
type PartitionLocker interface {
	// AcquirePartitionLock blocks until the lock for name is held and returns
	// a release func. Release must run on every exit path, failure included.
	AcquirePartitionLock(ctx context.Context, name string) (release func(), err error)
}

// AggregateRow is one day of the precomputed daily distinct-user aggregate.
// Rows are created by full rebuild and replaced wholesale — never partially
// mutated.
type AggregateRow struct {
	Day               time.Time `json:"day"`
	DistinctUserCount int64     `json:"distinct_user_count"`
}

// RefreshStats describes one completed aggregate rebuild.
type RefreshStats struct {
	Days      int64
	Cutoff    time.Time // zero when the rebuild was unbounded
	SwappedAt time.Time
}

// AggregateStore maintains and serves the daily distinct-user aggregate.
type AggregateStore interface {
	// Rebuild recomputes the aggregate and atomically swaps it in. Readers
	// during a rebuild see either the fully-old or fully-new contents, never
	// a mix; event writers are never stalled. windowDays > 0 bounds the
	// recompute to recent days, carrying older rows over unchanged.
	Rebuild(ctx context.Context, windowDays int) (RefreshStats, error)

	// QueryDays returns aggregate rows for days in [from, to], ascending.
	QueryDays(ctx context.Context, from, to time.Time) ([]AggregateRow, error)
}

// ErrDuplicate is returned when an event with the same
// (event_id, event_timestamp, country_code) already exists.
var ErrDuplicate = errors.New("event already exists")

// EventStore persists and serves viewing events. The physical router places
// each row by time range then country hash, so the full partition key must be
// present at insert time.
type EventStore interface {
	SaveEvent(ctx context.Context, event *v1.ViewingEvent) error

	// QueryEvents fetches events in [from, to), optionally filtered by
	// country code, ordered by event_timestamp ASC. Filters are shaped so the
	// partition structure prunes irrelevant physical units.
	QueryEvents(ctx context.Context, from, to time.Time, countryCode string, limit int) ([]*v1.ViewingEvent, error)
}
