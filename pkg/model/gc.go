package model

import (
	"fmt"
	"time"
)

// GCCandidate is one persisted store version eligible for pruning.
type GCCandidate struct {
	Kind    StoreKind `json:"kind"`
	Version string    `json:"version"`
	Bytes   int64     `json:"bytes"`
}

// GCPlan is the output of the gc plan phase.
type GCPlan struct {
	PlanID    string    `json:"plan_id"`
	CreatedAt time.Time `json:"created_at"`
	// Protected counts versions kept per kind: the active version plus
	// everything inside the retention window.
	Protected map[StoreKind]int `json:"protected"`
	ToDelete  []GCCandidate     `json:"to_delete"`
	// ReclaimableBytes estimates the space freed by running the plan.
	ReclaimableBytes int64 `json:"reclaimable_bytes"`
	RetentionPolicy  RetentionPolicy `json:"retention_policy"`
}

// GCResult is the output of the gc run phase.
type GCResult struct {
	PlanID         string        `json:"plan_id"`
	Deleted        []GCCandidate `json:"deleted"`
	ReclaimedBytes int64         `json:"reclaimed_bytes"`
	CompletedAt    time.Time     `json:"completed_at"`
}

// DefaultRetentionPolicy returns the default retention policy.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		KeepVersions: 5,
		KeepMinAge:   24 * time.Hour,
	}
}

// RetentionPolicy configures which superseded store versions gc may prune.
// A version is protected if it matches ANY of these rules:
// - It is the active version of its kind (never pruned)
// - Within the last N superseded versions of its kind (KeepVersions)
// - Installed within the last duration (KeepMinAge)
type RetentionPolicy struct {
	// KeepVersions keeps at least N superseded versions per store kind,
	// most recent first. These are the versions rollback can restore.
	KeepVersions int `json:"keep_versions"`

	// KeepMinAge protects versions installed within this duration.
	KeepMinAge time.Duration `json:"keep_min_age"`
}

// Validate checks if the retention policy is valid.
func (rp *RetentionPolicy) Validate() error {
	if rp.KeepVersions < 1 {
		return &InvalidRetentionPolicyError{
			Field:  "keep_versions",
			Reason: "must be at least 1 so rollback always has a target",
			Value:  rp.KeepVersions,
		}
	}
	if rp.KeepMinAge < 0 {
		return &InvalidRetentionPolicyError{
			Field:  "keep_min_age",
			Reason: "must be non-negative",
			Value:  rp.KeepMinAge,
		}
	}
	return nil
}

// InvalidRetentionPolicyError is returned when a retention policy is invalid.
type InvalidRetentionPolicyError struct {
	Field  string
	Reason string
	Value  interface{}
}

func (e *InvalidRetentionPolicyError) Error() string {
	return fmt.Sprintf("invalid retention policy: %s %s (got: %v)", e.Field, e.Reason, e.Value)
}
