package plan

import (
	"errors"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func countryScheme() []Bucket {
	return []Bucket{
		{Name: "us"},
		{Name: "uk"},
		{Name: "ca"},
		{Name: "au"},
		{Name: "other", Default: true},
	}
}

func TestAssignBuckets_FiveCountries(t *testing.T) {
	descs, err := AssignBuckets(5, countryScheme())
	if err != nil {
		t.Fatalf("AssignBuckets: %v", err)
	}
	if len(descs) != 5 {
		t.Fatalf("got %d descriptors, want 5", len(descs))
	}
	wantNames := []string{"us", "uk", "ca", "au", "other"}
	for r, d := range descs {
		if d.Remainder != r {
			t.Errorf("descs[%d].Remainder = %d", r, d.Remainder)
		}
		if d.Modulus != 5 {
			t.Errorf("descs[%d].Modulus = %d, want 5", r, d.Modulus)
		}
		if d.Name != wantNames[r] {
			t.Errorf("descs[%d].Name = %q, want %q", r, d.Name, wantNames[r])
		}
		if d.IsDefault != (d.Name == "other") {
			t.Errorf("descs[%d].IsDefault = %v for %q", r, d.IsDefault, d.Name)
		}
	}
}

func TestAssignBuckets_SurplusRemaindersFoldIntoDefault(t *testing.T) {
	descs, err := AssignBuckets(8, countryScheme())
	if err != nil {
		t.Fatalf("AssignBuckets: %v", err)
	}
	if len(descs) != 8 {
		t.Fatalf("got %d descriptors, want 8", len(descs))
	}
	for r := 5; r < 8; r++ {
		if descs[r].Name != "other" || !descs[r].IsDefault {
			t.Errorf("remainder %d assigned to %q (default=%v), want default bucket", r, descs[r].Name, descs[r].IsDefault)
		}
	}
}

func TestAssignBuckets_Rejections(t *testing.T) {
	var confErr *ConfigurationError

	cases := []struct {
		name    string
		modulus int
		buckets []Bucket
	}{
		{"empty bucket list", 5, nil},
		{"zero modulus", 0, countryScheme()},
		{"more buckets than remainders", 3, countryScheme()},
		{"two defaults", 5, []Bucket{{Name: "a", Default: true}, {Name: "b", Default: true}}},
		{"default not last", 3, []Bucket{{Name: "a", Default: true}, {Name: "b"}}},
		{"surplus without default", 5, []Bucket{{Name: "a"}, {Name: "b"}}},
		{"unnamed bucket", 2, []Bucket{{Name: ""}, {Name: "b", Default: true}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := AssignBuckets(tc.modulus, tc.buckets)
			if !errors.As(err, &confErr) {
				t.Errorf("err = %v, want ConfigurationError", err)
			}
		})
	}
}

// Exhaustive coverage: for any valid scheme, every remainder 0..M-1 is
// claimed by exactly one bucket — no gaps, no overlaps.
func TestAssignBuckets_ExhaustiveCoverageProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("remainders 0..M-1 covered exactly once", prop.ForAll(
		func(modulus int, named int) bool {
			if named > modulus {
				named = modulus
			}
			buckets := make([]Bucket, named)
			for i := range buckets {
				buckets[i] = Bucket{Name: "b" + strconv.Itoa(i)}
			}
			buckets[named-1].Default = true

			descs, err := AssignBuckets(modulus, buckets)
			if err != nil {
				return false
			}
			claimed := make(map[int]int)
			for _, d := range descs {
				claimed[d.Remainder]++
			}
			for r := 0; r < modulus; r++ {
				if claimed[r] != 1 {
					return false
				}
			}
			return len(claimed) == modulus
		},
		gen.IntRange(1, 64),
		gen.IntRange(1, 64),
	))

	properties.TestingRun(t)
}

func TestBucketFor_Range(t *testing.T) {
	for _, key := range []string{"", "US", "UK", "CA", "AU", "BR", "a-very-long-country-ish-key"} {
		if r := BucketFor(key, 5); r < 0 || r >= 5 {
			t.Errorf("BucketFor(%q, 5) = %d, want [0, 5)", key, r)
		}
	}
}

func TestBucketFor_Determinism(t *testing.T) {
	first := BucketFor("US", 5)
	for i := 0; i < 50; i++ {
		if got := BucketFor("US", 5); got != first {
			t.Fatalf("BucketFor not deterministic: %d vs %d", got, first)
		}
	}
}
