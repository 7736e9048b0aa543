package plan

import (
	"fmt"
	"hash/fnv"
)

// SubPartitionDescriptor is one hash bucket under a time partition.
// For a modulus M, remainders 0..M-1 cover the categorical key space
// completely and disjointly; exactly one bucket is the designated default.
type SubPartitionDescriptor struct {
	Name      string
	Modulus   int
	Remainder int
	IsDefault bool
}

// Bucket is one named bucket in the configured scheme.
type Bucket struct {
	Name    string
	Default bool
}

// AssignBuckets maps named buckets onto hash remainders 0..modulus-1 in the
// order given. When there are fewer buckets than remainders, every surplus
// remainder folds into the last bucket, which must be the designated default.
//
// The assignment is positional, not content-based: Postgres routes rows by
// hashing the categorical key, so every value lands in exactly one remainder
// by construction. The explicit default exists for routing schemes that are
// deterministic but not exhaustive.
func AssignBuckets(modulus int, buckets []Bucket) ([]SubPartitionDescriptor, error) {
	if modulus <= 0 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("modulus must be positive, got %d", modulus)}
	}
	if len(buckets) == 0 {
		return nil, &ConfigurationError{Reason: "bucket list is empty"}
	}
	if len(buckets) > modulus {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("%d buckets exceed modulus %d", len(buckets), modulus)}
	}

	defaults := 0
	for _, b := range buckets {
		if b.Name == "" {
			return nil, &ConfigurationError{Reason: "bucket with empty name"}
		}
		if b.Default {
			defaults++
		}
	}
	if defaults > 1 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("%d buckets claim default status, at most one allowed", defaults)}
	}
	if defaults == 1 && !buckets[len(buckets)-1].Default {
		return nil, &ConfigurationError{Reason: "default bucket must be last (it absorbs surplus remainders)"}
	}
	if len(buckets) < modulus && defaults == 0 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("%d buckets under modulus %d require a default bucket for surplus remainders", len(buckets), modulus)}
	}

	descs := make([]SubPartitionDescriptor, 0, modulus)
	for r := 0; r < modulus; r++ {
		i := r
		if i >= len(buckets) {
			i = len(buckets) - 1
		}
		descs = append(descs, SubPartitionDescriptor{
			Name:      buckets[i].Name,
			Modulus:   modulus,
			Remainder: r,
			IsDefault: buckets[i].Default,
		})
	}
	return descs, nil
}

// BucketFor previews which remainder a categorical key hashes to.
// Uses FNV-32a (stdlib, fast, well-distributed). This is a client-side
// estimate for observability only — physical routing is done by the storage
// engine's own hash, which need not agree with this one.
func BucketFor(key string, modulus int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(modulus))
}
