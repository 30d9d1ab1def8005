package model

import "time"

// AuditAction identifies the type of auditable event.
type AuditAction string

const (
	ActionUpdateReceived  AuditAction = "update_received"
	ActionUpdateVerified  AuditAction = "update_verified"
	ActionUpdateStaged    AuditAction = "update_staged"
	ActionUpdateCommitted AuditAction = "update_committed"
	ActionUpdateFailed    AuditAction = "update_failed"
	ActionRollback        AuditAction = "rollback"
	ActionGCPlan          AuditAction = "gc_plan"
	ActionGCRun           AuditAction = "gc_run"
	ActionStateDirInit    AuditAction = "statedir_init"
)

// AuditRecord is a single line in the audit log (JSONL format). Records
// form a hash chain: each record's hash covers its content plus the hash
// of the record before it, so truncation and edits are detectable.
type AuditRecord struct {
	Timestamp      time.Time      `json:"timestamp"`
	Actor          string         `json:"actor,omitempty"`
	Action         AuditAction    `json:"action"`
	AttemptID      AttemptID      `json:"attempt_id,omitempty"`
	PackageVersion string         `json:"package_version,omitempty"`
	StoreKinds     []StoreKind    `json:"store_kinds,omitempty"`
	Outcome        string         `json:"outcome,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	PrevHash       HashValue      `json:"prev_hash"`
	RecordHash     HashValue      `json:"record_hash"`
}
