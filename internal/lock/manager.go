// Package lock serializes update attempts per store kind across
// processes. A lease is a JSON file created with O_EXCL under the state
// directory; it carries a TTL so a crashed holder never wedges updates,
// and a fencing token so a stale holder cannot override a newer one.
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/quorum-project/quorum/pkg/errclass"
	"github.com/quorum-project/quorum/pkg/fsutil"
	"github.com/quorum-project/quorum/pkg/model"
	"github.com/quorum-project/quorum/pkg/uuidutil"
)

// Manager grants and releases per-kind update leases.
type Manager struct {
	locksDir string
	policy   model.LockPolicy
	mu       sync.Mutex
}

// NewManager creates a lease manager over a locks directory.
func NewManager(locksDir string, policy model.LockPolicy) *Manager {
	return &Manager{locksDir: locksDir, policy: policy}
}

// Acquire takes the lease for one store kind. An expired lease left by a
// crashed holder is reclaimed in place with a higher fencing token; a
// live lease fails with E_LOCK_CONFLICT.
func (m *Manager) Acquire(kind model.StoreKind, attemptID model.AttemptID, purpose string) (*model.LockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lockPath := m.lockPath(kind)
	if err := os.MkdirAll(m.locksDir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock: %w", err)
		}
		prev, readErr := m.readLock(lockPath)
		if readErr != nil {
			return nil, fmt.Errorf("read existing lock: %w", readErr)
		}
		if !prev.IsExpired(time.Now()) {
			return nil, errclass.ErrLockConflict.WithMessagef(
				"store %s is locked by attempt %s until %s",
				kind, prev.AttemptID.ShortID(), prev.ExpiresAt.Format(time.RFC3339))
		}
		// Stale lease: take over with the next fencing token.
		rec := m.newRecord(kind, attemptID, purpose, prev.FencingToken+1)
		if err := m.updateLock(lockPath, rec); err != nil {
			return nil, fmt.Errorf("reclaim lock: %w", err)
		}
		return rec, nil
	}
	defer file.Close()

	rec := m.newRecord(kind, attemptID, purpose, 1)
	if err := m.writeLock(file, rec); err != nil {
		os.Remove(lockPath)
		return nil, err
	}
	return rec, nil
}

// Renew extends a held lease. The caller proves ownership with the
// holder nonce.
func (m *Manager) Renew(kind model.StoreKind, holderNonce string) (*model.LockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lockPath := m.lockPath(kind)
	rec, err := m.readLock(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errclass.ErrLockExpired.WithMessagef("no lease held for %s", kind)
		}
		return nil, fmt.Errorf("read lock: %w", err)
	}
	if rec.IsExpired(time.Now()) {
		return nil, errclass.ErrLockExpired.WithMessagef("lease on %s has expired", kind)
	}
	if rec.HolderNonce != holderNonce {
		return nil, errclass.ErrLockConflict.WithMessagef(
			"lease on %s is held by attempt %s", kind, rec.AttemptID.ShortID())
	}

	rec.ExpiresAt = time.Now().UTC().Add(m.policy.DefaultLeaseTTL)
	if err := m.updateLock(lockPath, rec); err != nil {
		return nil, fmt.Errorf("update lock: %w", err)
	}
	return rec, nil
}

// Release frees a held lease. Releasing an already-free lease is a no-op;
// releasing someone else's lease is a conflict.
func (m *Manager) Release(kind model.StoreKind, holderNonce string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lockPath := m.lockPath(kind)
	rec, err := m.readLock(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read lock: %w", err)
	}
	if rec.HolderNonce != holderNonce {
		return errclass.ErrLockConflict.WithMessagef(
			"lease on %s is held by attempt %s", kind, rec.AttemptID.ShortID())
	}
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock: %w", err)
	}
	return nil
}

// ValidateFencing checks that a fencing token still matches the lease on
// record. Commit persistence runs this last, so a holder whose lease was
// reclaimed can no longer write.
func (m *Manager) ValidateFencing(kind model.StoreKind, token int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.readLock(m.lockPath(kind))
	if err != nil {
		if os.IsNotExist(err) {
			return errclass.ErrLockExpired.WithMessagef("no lease held for %s", kind)
		}
		return fmt.Errorf("read lock: %w", err)
	}
	if rec.FencingToken != token {
		return errclass.ErrLockExpired.WithMessagef(
			"lease on %s was reclaimed (token %d, held %d)", kind, token, rec.FencingToken)
	}
	return nil
}

// Status reports the lease state for one kind.
func (m *Manager) Status(kind model.StoreKind) (model.LockState, *model.LockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.readLock(m.lockPath(kind))
	if err != nil {
		if os.IsNotExist(err) {
			return model.LockStateFree, nil, nil
		}
		return model.LockStateFree, nil, fmt.Errorf("read lock: %w", err)
	}
	if rec.IsExpired(time.Now()) {
		return model.LockStateExpired, rec, nil
	}
	return model.LockStateHeld, rec, nil
}

func (m *Manager) newRecord(kind model.StoreKind, attemptID model.AttemptID, purpose string, token int64) *model.LockRecord {
	now := time.Now().UTC()
	return &model.LockRecord{
		StoreKind:    kind,
		HolderNonce:  uuidutil.NewV4(),
		AttemptID:    attemptID,
		AcquiredAt:   now,
		ExpiresAt:    now.Add(m.policy.DefaultLeaseTTL),
		FencingToken: token,
		Purpose:      purpose,
	}
}

func (m *Manager) lockPath(kind model.StoreKind) string {
	return filepath.Join(m.locksDir, string(kind)+".json")
}

func (m *Manager) readLock(path string) (*model.LockRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec model.LockRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse lock: %w", err)
	}
	return &rec, nil
}

func (m *Manager) writeLock(file *os.File, rec *model.LockRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal lock: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("write lock: %w", err)
	}
	return file.Sync()
}

func (m *Manager) updateLock(path string, rec *model.LockRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal lock: %w", err)
	}
	return fsutil.AtomicWrite(path, data, 0o644)
}
