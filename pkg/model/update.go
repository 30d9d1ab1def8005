package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// AttemptID is the unique identifier for an update attempt: <unix_ms>-<rand8hex>
type AttemptID string

// NewAttemptID generates a new unique attempt ID.
func NewAttemptID() AttemptID {
	ts := time.Now().UnixMilli()
	var randBytes [4]byte
	if _, err := rand.Read(randBytes[:]); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return AttemptID(fmt.Sprintf("%013d-%s", ts, hex.EncodeToString(randBytes[:])))
}

// ShortID returns the first 8 characters for display.
func (id AttemptID) ShortID() string {
	s := string(id)
	if len(s) >= 8 {
		return s[:8]
	}
	return s
}

// String returns the full attempt ID as string.
func (id AttemptID) String() string {
	return string(id)
}

// AttemptState is the lifecycle stage of an update attempt. Attempts move
// RECEIVED -> VERIFIED -> STAGED -> COMMITTED; any stage may instead end in
// the terminal FAILED. ROLLED_BACK records an operator-initiated reversal
// of a committed attempt.
type AttemptState string

const (
	AttemptReceived   AttemptState = "RECEIVED"
	AttemptVerified   AttemptState = "VERIFIED"
	AttemptStaged     AttemptState = "STAGED"
	AttemptCommitted  AttemptState = "COMMITTED"
	AttemptFailed     AttemptState = "FAILED"
	AttemptRolledBack AttemptState = "ROLLED_BACK"
)

// Terminal reports whether the state ends an attempt's lifecycle.
func (s AttemptState) Terminal() bool {
	switch s {
	case AttemptCommitted, AttemptFailed, AttemptRolledBack:
		return true
	}
	return false
}

// ManifestFormatVersion is the container format generation this build
// reads and writes.
const ManifestFormatVersion = 1

// Manifest is the signed table of contents of an update package.
type Manifest struct {
	FormatVersion  int       `json:"format_version"`
	PackageVersion string    `json:"package_version"`
	CreatedAt      time.Time `json:"created_at"`
	// Entries maps each store kind the package updates to the payload
	// blob that carries its new content.
	Entries map[StoreKind]ManifestEntry `json:"entries"`
}

// ManifestEntry describes one payload blob as stored in the container.
type ManifestEntry struct {
	// Version is the store version installed when this entry commits.
	Version string `json:"version"`
	// SHA512 is the digest of the payload blob exactly as stored
	// (after encoding).
	SHA512 HashValue `json:"sha512"`
	// Size is the stored blob length in bytes.
	Size int64 `json:"size"`
	// Encoding is how the blob is stored, e.g. "gzip".
	Encoding PayloadEncoding `json:"encoding"`
}

// Kinds returns the store kinds the manifest touches, in manifest order.
func (m *Manifest) Kinds() []StoreKind {
	out := make([]StoreKind, 0, len(m.Entries))
	for _, k := range StoreKinds {
		if _, ok := m.Entries[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// StoreVersionInfo is the durable metadata of one installed store version.
type StoreVersionInfo struct {
	Kind StoreKind `json:"kind"`
	// Version is the manifest-declared version string, e.g. "2026.08.1".
	Version string `json:"version"`
	// Checksum is the SHA-256 of the decoded store content document.
	Checksum       HashValue `json:"checksum"`
	PackageVersion string    `json:"package_version,omitempty"`
	InstalledAt    time.Time `json:"installed_at"`
}

// StoreStatus reports one store slot: what is active and what rollback
// could restore.
type StoreStatus struct {
	Kind     StoreKind         `json:"kind"`
	Active   *StoreVersionInfo `json:"active,omitempty"`
	Retained []StoreVersionInfo `json:"retained,omitempty"`
	// RollbackTarget is the version a rollback would restore, if any.
	RollbackTarget string `json:"rollback_target,omitempty"`
}

// UpdateResult is the outcome of one update attempt.
type UpdateResult struct {
	AttemptID      AttemptID    `json:"attempt_id"`
	PackageVersion string       `json:"package_version,omitempty"`
	State          AttemptState `json:"state"`
	StoreKinds     []StoreKind  `json:"store_kinds,omitempty"`
	// Committed maps store kind to the version installed, set only on
	// COMMITTED.
	Committed map[StoreKind]string `json:"committed,omitempty"`
	// FailureClass and Reason identify why a FAILED attempt failed.
	FailureClass string    `json:"failure_class,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	Actor        string    `json:"actor,omitempty"`
	ReceivedAt   time.Time `json:"received_at"`
	CompletedAt  time.Time `json:"completed_at"`
}

// RollbackResult is the outcome of one rollback request.
type RollbackResult struct {
	Kind StoreKind `json:"kind"`
	// Restored is the version now active, empty when the rollback was a
	// no-op because nothing newer had been committed.
	Restored string `json:"restored,omitempty"`
	// Superseded is the version that was active before the rollback.
	Superseded string `json:"superseded,omitempty"`
	NoOp       bool   `json:"no_op"`
}
