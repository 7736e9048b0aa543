package provision

import (
	"fmt"
	"strings"
	"time"
)

// PartialProvisionError reports that some but not all leaves of a partition
// were created. CompletedLeaves names every bucket that is fully provisioned
// (leaf plus indexes) after the failed call, in remainder order — enough
// detail for a targeted retry. The operation is never rolled back: partition
// creation is coarse and mostly irreversible, and re-invocation completes
// only the missing leaves.
type PartialProvisionError struct {
	PartitionName   string
	CompletedLeaves []string
	FailedLeaf      string
	Err             error
}

func (e *PartialProvisionError) Error() string {
	return fmt.Sprintf("partial provision of %s: %d leaves completed (%s), failed at %s: %v",
		e.PartitionName, len(e.CompletedLeaves), strings.Join(e.CompletedLeaves, ", "), e.FailedLeaf, e.Err)
}

func (e *PartialProvisionError) Unwrap() error { return e.Err }

// TimeoutError reports that one provisioning or refresh operation exceeded
// its configured budget. The system is left in its pre-operation state as far
// as tracking goes; idempotent re-invocation finishes the work later.
type TimeoutError struct {
	Op     string
	Budget time.Duration
	Err    error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s exceeded budget %s: %v", e.Op, e.Budget, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }
