// Package policy contains the pure decision logic bounding recursive
// subtask delegation.
package policy

import "fmt"

// Default ceilings. Configuration, not hardcoded behavior.
const (
	DefaultMaxDepth             = 3
	DefaultMaxSubtasksPerParent = 10
)

// Reason identifies why a delegation request was rejected.
type Reason string

const (
	// ReasonAllowed means the delegation may proceed.
	ReasonAllowed Reason = "allowed"
	// ReasonDepthExceeded means the child would exceed the maximum
	// recursion depth.
	ReasonDepthExceeded Reason = "depth_exceeded"
	// ReasonSubtaskCountExceeded means the parent already has the
	// maximum number of subtasks.
	ReasonSubtaskCountExceeded Reason = "subtask_count_exceeded"
)

// Decision is the outcome of a delegation check.
type Decision struct {
	Allowed bool
	Reason  Reason
	// Detail is a human-readable explanation suitable for feeding back
	// to the model so it can change strategy instead of retrying.
	Detail string
}

// Policy holds the configured delegation ceilings. It has no mutable
// state and is safe to share.
type Policy struct {
	maxDepth             int
	maxSubtasksPerParent int
}

// New creates a Policy. Non-positive limits fall back to defaults.
func New(maxDepth, maxSubtasksPerParent int) *Policy {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if maxSubtasksPerParent <= 0 {
		maxSubtasksPerParent = DefaultMaxSubtasksPerParent
	}
	return &Policy{
		maxDepth:             maxDepth,
		maxSubtasksPerParent: maxSubtasksPerParent,
	}
}

// MaxDepth returns the configured maximum delegation depth.
func (p *Policy) MaxDepth() int { return p.maxDepth }

// MaxSubtasksPerParent returns the configured per-parent subtask ceiling.
func (p *Policy) MaxSubtasksPerParent() int { return p.maxSubtasksPerParent }

// CanDelegate decides whether a task at currentDepth with
// existingSiblings children may create another subtask. Both ceilings
// must pass; depth is checked first since it needs no store lookup.
func (p *Policy) CanDelegate(currentDepth, existingSiblings int) Decision {
	if currentDepth+1 > p.maxDepth {
		return Decision{
			Allowed: false,
			Reason:  ReasonDepthExceeded,
			Detail: fmt.Sprintf("delegation rejected: child would be at depth %d, max is %d; finish this task directly instead of delegating",
				currentDepth+1, p.maxDepth),
		}
	}
	if existingSiblings >= p.maxSubtasksPerParent {
		return Decision{
			Allowed: false,
			Reason:  ReasonSubtaskCountExceeded,
			Detail: fmt.Sprintf("delegation rejected: parent already has %d subtasks, max is %d; consolidate work into existing subtasks",
				existingSiblings, p.maxSubtasksPerParent),
		}
	}
	return Decision{Allowed: true, Reason: ReasonAllowed}
}

// DelegationAvailable reports whether a task at the given depth should
// be offered the delegation tool at all. A task at max depth never sees
// the tool in its catalog.
func (p *Policy) DelegationAvailable(depth int) bool {
	return depth < p.maxDepth
}
