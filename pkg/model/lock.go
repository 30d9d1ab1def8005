package model

import "time"

// LockRecord is stored at .quorum/locks/<store_kind>.json while an update
// attempt holds a store kind.
type LockRecord struct {
	StoreKind   StoreKind `json:"store_kind"`
	HolderNonce string    `json:"holder_nonce"`
	AttemptID   AttemptID `json:"attempt_id"`
	AcquiredAt  time.Time `json:"acquired_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	// FencingToken increases monotonically per kind so a stale holder can
	// never override a newer one.
	FencingToken int64  `json:"fencing_token"`
	Purpose      string `json:"purpose,omitempty"`
}

// IsExpired returns true if the lease has expired.
func (l *LockRecord) IsExpired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// LockPolicy configures lease timing parameters.
type LockPolicy struct {
	DefaultLeaseTTL    time.Duration `json:"default_lease_ttl"`
	MaxLeaseTTL        time.Duration `json:"max_lease_ttl"`
	ClockSkewTolerance time.Duration `json:"clock_skew_tolerance"`
}
