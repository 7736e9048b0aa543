// Package plan computes the partition layout for the viewing-events table:
// which time partition a timestamp belongs to, how the categorical hash
// buckets underneath it are assigned, and which indexes every leaf carries.
// Everything here is pure — no storage calls, no side effects.
package plan

import (
	"fmt"
	"time"
)

// Granularity is the width of one time partition.
// Only calendar months are supported; the type exists so callers state the
// unit explicitly rather than relying on an implicit default.
type Granularity string

const GranularityMonth Granularity = "month"

// ParseGranularity validates a granularity string from config.
func ParseGranularity(s string) (Granularity, error) {
	if Granularity(s) == GranularityMonth {
		return GranularityMonth, nil
	}
	return "", &ConfigurationError{Reason: fmt.Sprintf("unsupported granularity %q (only %q)", s, GranularityMonth)}
}

// PartitionDescriptor identifies one time partition: its deterministic name
// and the half-open interval [RangeStart, RangeEnd) it covers.
type PartitionDescriptor struct {
	Name       string
	RangeStart time.Time
	RangeEnd   time.Time
}

// TimePartition computes the descriptor for the partition containing ts.
// A timestamp exactly on a boundary belongs to the partition starting at
// that instant, never the preceding one.
//
// Names are a pure function of (baseTable, RangeStart) — external tooling
// lists partitions by this pattern, so the encoding is a durable contract:
// <base>_<year>_<zero-padded month>, e.g. viewing_events_2024_02.
func TimePartition(baseTable string, ts time.Time, g Granularity) (PartitionDescriptor, error) {
	if baseTable == "" {
		return PartitionDescriptor{}, &ConfigurationError{Reason: "base table name is empty"}
	}
	if g != GranularityMonth {
		return PartitionDescriptor{}, &ConfigurationError{Reason: fmt.Sprintf("unsupported granularity %q", g)}
	}

	t := ts.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return PartitionDescriptor{
		Name:       fmt.Sprintf("%s_%04d_%02d", baseTable, start.Year(), int(start.Month())),
		RangeStart: start,
		RangeEnd:   start.AddDate(0, 1, 0),
	}, nil
}

// LeafName returns the deterministic name of one hash bucket under a time
// partition. Bucket index == hash remainder, so the name is stable across
// re-provisioning.
func LeafName(partitionName string, remainder int) string {
	return fmt.Sprintf("%s_p%d", partitionName, remainder)
}

// Steps enumerates every granularity-unit start in [from, to], ascending.
// Returns nil when to precedes from — an empty horizon is not an error.
func Steps(from, to time.Time, g Granularity) ([]time.Time, error) {
	if g != GranularityMonth {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("unsupported granularity %q", g)}
	}

	f, t := from.UTC(), to.UTC()
	if t.Before(f) {
		return nil, nil
	}

	var steps []time.Time
	cur := time.Date(f.Year(), f.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cur.After(t) {
		steps = append(steps, cur)
		cur = cur.AddDate(0, 1, 0)
	}
	return steps, nil
}

// ConfigurationError reports an invalid partitioning scheme: bad granularity,
// empty or ambiguous bucket lists, missing templates. Always raised before
// any storage call and never retried.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "invalid partition configuration: " + e.Reason
}
