// Package update runs the signed-package update pipeline: a submitted
// package moves RECEIVED -> VERIFIED -> STAGED -> COMMITTED, every
// transition is audited, and a failure at any stage aborts the attempt
// without touching the active stores. Commits persist to the state
// directory before the in-memory swap, so a reported success is durable.
package update

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/quorum-project/quorum/internal/audit"
	"github.com/quorum-project/quorum/internal/lock"
	"github.com/quorum-project/quorum/internal/pack"
	"github.com/quorum-project/quorum/internal/statedir"
	"github.com/quorum-project/quorum/internal/store"
	"github.com/quorum-project/quorum/pkg/config"
	"github.com/quorum-project/quorum/pkg/errclass"
	"github.com/quorum-project/quorum/pkg/logging"
	"github.com/quorum-project/quorum/pkg/metrics"
	"github.com/quorum-project/quorum/pkg/model"
	"github.com/quorum-project/quorum/pkg/webhook"
)

// Options wires a Manager. Catalog and Audit are required; State and
// Locks are nil for purely in-memory use, Metrics and Webhooks are nil
// when not configured.
type Options struct {
	Catalog     *store.Catalog
	State       *statedir.StateDir
	Locks       *lock.Manager
	Audit       audit.Sink
	VerifyKey   *rsa.PublicKey
	Config      config.UpdateConfig
	Metrics     *metrics.Metrics
	Webhooks    *webhook.Client
	ApplianceID string
}

// Manager owns update intake, rollback, and the durable attempt history.
type Manager struct {
	catalog     *store.Catalog
	state       *statedir.StateDir
	locks       *lock.Manager
	audit       audit.Sink
	verifyKey   *rsa.PublicKey
	cfg         config.UpdateConfig
	metrics     *metrics.Metrics
	webhooks    *webhook.Client
	applianceID string

	mu sync.Mutex
	// inflight marks store kinds owned by a live attempt in this process.
	// Cross-process serialization is the lock manager's job.
	inflight map[model.StoreKind]model.AttemptID

	nowFn func() time.Time
}

// NewManager creates an update manager. Missing optional dependencies
// degrade features (no persistence, no leases, no webhooks) but never
// change pipeline semantics.
func NewManager(opts Options) *Manager {
	m := &Manager{
		catalog:     opts.Catalog,
		state:       opts.State,
		locks:       opts.Locks,
		audit:       opts.Audit,
		verifyKey:   opts.VerifyKey,
		cfg:         opts.Config,
		metrics:     opts.Metrics,
		webhooks:    opts.Webhooks,
		applianceID: opts.ApplianceID,
		inflight:    make(map[model.StoreKind]model.AttemptID),
		nowFn:       time.Now,
	}
	if m.audit == nil {
		m.audit = &audit.MemorySink{}
	}
	return m
}

func (m *Manager) now() time.Time { return m.nowFn().UTC() }

// Submit runs one package through the full pipeline. The returned
// UpdateResult is non-nil even on failure; err carries the errclass the
// result's FailureClass names.
func (m *Manager) Submit(pkgBytes []byte, actor string) (*model.UpdateResult, error) {
	result := &model.UpdateResult{
		AttemptID:  model.NewAttemptID(),
		Actor:      actor,
		ReceivedAt: m.now(),
	}

	if max := m.cfg.MaxPackageBytes; max > 0 && int64(len(pkgBytes)) > max {
		return m.fail(result, errclass.ErrPayloadTooLarge.WithMessagef(
			"package is %d bytes, limit %d", len(pkgBytes), max))
	}

	p, err := pack.Parse(pkgBytes, m.cfg.MaxPayloadBytes)
	if err != nil {
		return m.fail(result, err)
	}
	result.PackageVersion = p.Manifest.PackageVersion
	result.StoreKinds = p.Manifest.Kinds()

	leases, err := m.acquire(result.StoreKinds, result.AttemptID)
	if err != nil {
		return m.fail(result, err)
	}
	defer m.release(leases, result.StoreKinds)

	// RECEIVED: every payload blob matches its manifest digest.
	if err := p.VerifyPayloads(); err != nil {
		return m.fail(result, err)
	}
	result.State = model.AttemptReceived
	m.transition(result, model.ActionUpdateReceived, webhook.EventUpdateReceived, nil)

	// VERIFIED: the manifest signature checks out against the
	// provisioned key. Everything before this point trusted nothing.
	if m.verifyKey == nil {
		return m.fail(result, errclass.ErrKeyInvalid.WithMessage(
			"no update verification key is provisioned"))
	}
	if err := p.VerifySignature(m.verifyKey); err != nil {
		return m.fail(result, err)
	}
	result.State = model.AttemptVerified
	m.transition(result, model.ActionUpdateVerified, webhook.EventUpdateVerified, nil)

	// STAGED: decode, validate, and compile every touched kind. Nothing
	// is mutated yet; a failure here leaves the appliance as it was.
	installedAt := m.now()
	staged := make([]*stagedVersion, 0, len(result.StoreKinds))
	for _, kind := range result.StoreKinds {
		sv, err := stagePayload(p, kind, m.cfg.MaxPayloadBytes, installedAt)
		if err != nil {
			return m.fail(result, err)
		}
		staged = append(staged, sv)
	}
	result.State = model.AttemptStaged
	m.transition(result, model.ActionUpdateStaged, webhook.EventUpdateStaged, stagedDetails(staged))

	// COMMITTED: persist first, swap second. The in-memory swap is one
	// atomic pointer store across all touched kinds.
	if err := m.persist(staged); err != nil {
		return m.fail(result, errclass.ErrStoreSwapFailed.WithMessagef("persist new versions: %v", err))
	}
	for _, l := range leases {
		if err := m.locks.ValidateFencing(l.StoreKind, l.FencingToken); err != nil {
			return m.fail(result, err)
		}
	}
	if err := m.activateMarkers(staged); err != nil {
		return m.fail(result, errclass.ErrStoreSwapFailed.WithMessagef("activate new versions: %v", err))
	}

	updates := make(map[model.StoreKind]*store.StoreVersion, len(staged))
	committed := make(map[model.StoreKind]string, len(staged))
	for _, sv := range staged {
		updates[sv.info.Kind] = &store.StoreVersion{Info: sv.info, Content: sv.content}
		committed[sv.info.Kind] = sv.info.Version
	}
	if err := m.catalog.Commit(updates); err != nil {
		return m.fail(result, errclass.ErrStoreSwapFailed.WithMessagef("swap stores: %v", err))
	}

	result.State = model.AttemptCommitted
	result.Committed = committed
	result.CompletedAt = m.now()
	m.transition(result, model.ActionUpdateCommitted, webhook.EventUpdateCommitted, stagedDetails(staged))
	m.appendAttempt(result)

	m.metrics.RecordUpdateAttempt(string(model.AttemptCommitted), "")
	for _, sv := range staged {
		m.metrics.SetActiveStore(string(sv.info.Kind), sv.info.Version)
		m.metrics.SetRetainedVersions(string(sv.info.Kind), len(m.catalog.Retained(sv.info.Kind)))
	}
	return result, nil
}

// acquire serializes the attempt against in-process and cross-process
// competitors for every touched kind.
func (m *Manager) acquire(kinds []model.StoreKind, id model.AttemptID) ([]*model.LockRecord, error) {
	m.mu.Lock()
	for _, kind := range kinds {
		if holder, busy := m.inflight[kind]; busy {
			m.mu.Unlock()
			return nil, errclass.ErrConcurrentUpdateRejected.WithMessagef(
				"store %s is being updated by attempt %s", kind, holder.ShortID())
		}
	}
	for _, kind := range kinds {
		m.inflight[kind] = id
	}
	m.mu.Unlock()

	if m.locks == nil {
		return nil, nil
	}
	leases := make([]*model.LockRecord, 0, len(kinds))
	for _, kind := range kinds {
		rec, err := m.locks.Acquire(kind, id, "update")
		if err != nil {
			m.release(leases, kinds)
			if errclass.Is(err, errclass.ErrLockConflict) {
				return nil, errclass.ErrConcurrentUpdateRejected.WithMessagef(
					"store %s is locked by another process: %v", kind, err)
			}
			return nil, err
		}
		leases = append(leases, rec)
	}
	return leases, nil
}

// release frees leases and the in-process markers. Safe on partial
// acquisition and after failure at any stage.
func (m *Manager) release(leases []*model.LockRecord, kinds []model.StoreKind) {
	for _, l := range leases {
		if err := m.locks.Release(l.StoreKind, l.HolderNonce); err != nil {
			logging.Warn("release update lease", map[string]any{
				"store_kind": string(l.StoreKind), "error": err.Error(),
			})
		}
	}
	m.mu.Lock()
	for _, kind := range kinds {
		delete(m.inflight, kind)
	}
	m.mu.Unlock()
}

// persist writes every staged version file. Orphan files from a later
// abort are invisible to readers and reaped by gc.
func (m *Manager) persist(staged []*stagedVersion) error {
	if m.state == nil {
		return nil
	}
	for _, sv := range staged {
		if err := m.state.SaveVersion(sv.info, sv.document); err != nil {
			return fmt.Errorf("store %s version %s: %w", sv.info.Kind, sv.info.Version, err)
		}
	}
	return nil
}

// activateMarkers repoints every touched kind's ACTIVE marker at the
// staged version. A failure part-way restores the markers already moved
// so disk state stays consistent with the unswapped catalog.
func (m *Manager) activateMarkers(staged []*stagedVersion) error {
	if m.state == nil {
		return nil
	}
	snap := m.catalog.Snapshot()
	type savedMarker struct {
		kind model.StoreKind
		// version is empty when the kind had never been provisioned.
		version, prevVersion string
	}
	var moved []savedMarker
	restore := func() {
		for _, s := range moved {
			var rerr error
			if s.version == "" {
				rerr = m.state.ClearActive(s.kind)
			} else {
				rerr = m.state.SetActive(s.kind, s.version, s.prevVersion)
			}
			if rerr != nil {
				logging.ErrorErr("restore active marker after failed activation", rerr,
					map[string]any{"store_kind": string(s.kind)})
			}
		}
	}
	for _, sv := range staged {
		s := savedMarker{kind: sv.info.Kind}
		if cur, ok := snap.Get(sv.info.Kind); ok {
			s.version = cur.Info.Version
			s.prevVersion = m.catalog.PrevActiveVersion(sv.info.Kind)
		}
		if err := m.state.SetActive(sv.info.Kind, sv.info.Version, s.version); err != nil {
			restore()
			return err
		}
		moved = append(moved, s)
	}
	return nil
}

// fail finalizes an attempt: one audit record, one attempt history line,
// metrics, webhook. The original error is returned for errclass checks.
func (m *Manager) fail(result *model.UpdateResult, err error) (*model.UpdateResult, error) {
	result.State = model.AttemptFailed
	result.FailureClass = errclass.CodeOf(err)
	result.Reason = err.Error()
	result.CompletedAt = m.now()

	m.auditAppend(&model.AuditRecord{
		Actor:          result.Actor,
		Action:         model.ActionUpdateFailed,
		AttemptID:      result.AttemptID,
		PackageVersion: result.PackageVersion,
		StoreKinds:     result.StoreKinds,
		Outcome:        "failed",
		Reason:         result.Reason,
		Details:        map[string]any{"failure_class": result.FailureClass},
	})
	m.appendAttempt(result)
	m.metrics.RecordUpdateAttempt(string(model.AttemptFailed), result.FailureClass)
	if m.webhooks != nil {
		_ = m.webhooks.SendUpdateEvent(webhook.EventUpdateFailed, m.applianceID, result, true)
	}
	return result, err
}

// transition records one successful stage: audit record plus webhook.
func (m *Manager) transition(result *model.UpdateResult, action model.AuditAction, event webhook.EventType, details map[string]any) {
	m.auditAppend(&model.AuditRecord{
		Actor:          result.Actor,
		Action:         action,
		AttemptID:      result.AttemptID,
		PackageVersion: result.PackageVersion,
		StoreKinds:     result.StoreKinds,
		Outcome:        string(result.State),
		Details:        details,
	})
	if m.webhooks != nil {
		_ = m.webhooks.SendUpdateEvent(event, m.applianceID, result, true)
	}
}

func (m *Manager) auditAppend(rec *model.AuditRecord) {
	rec.Timestamp = m.now()
	if err := m.audit.Append(rec); err != nil {
		logging.ErrorErr("append audit record", err, map[string]any{
			"action": string(rec.Action), "attempt_id": string(rec.AttemptID),
		})
	}
}

func stagedDetails(staged []*stagedVersion) map[string]any {
	versions := make(map[string]string, len(staged))
	for _, sv := range staged {
		versions[string(sv.info.Kind)] = sv.info.Version
	}
	return map[string]any{"versions": versions}
}

// Rollback restores a prior version of one store kind and persists the
// new active marker. An empty target restores the pre-update version.
func (m *Manager) Rollback(kind model.StoreKind, target, actor string) (*model.RollbackResult, error) {
	release, err := m.guardKind(kind)
	if err != nil {
		return nil, err
	}
	defer release()

	res, err := m.catalog.Rollback(kind, target)
	if err != nil {
		return nil, err
	}
	if !res.NoOp {
		if err := m.persistRollback(res); err != nil {
			return nil, err
		}
	}
	m.finishRollback([]*model.RollbackResult{res}, actor)
	return res, nil
}

// RollbackAll restores the pre-update version of every kind that has
// one. Kinds without a rollback target are skipped.
func (m *Manager) RollbackAll(actor string) ([]*model.RollbackResult, error) {
	releases := make([]func(), 0, len(model.StoreKinds))
	for _, kind := range model.StoreKinds {
		release, err := m.guardKind(kind)
		if err != nil {
			for _, r := range releases {
				r()
			}
			return nil, err
		}
		releases = append(releases, release)
	}
	defer func() {
		for _, r := range releases {
			r()
		}
	}()

	results, err := m.catalog.RollbackAll()
	if err != nil {
		return results, err
	}
	for _, res := range results {
		if res.NoOp {
			continue
		}
		if err := m.persistRollback(res); err != nil {
			return results, err
		}
	}
	m.finishRollback(results, actor)
	return results, nil
}

// guardKind serializes a rollback against updates on the same kind.
func (m *Manager) guardKind(kind model.StoreKind) (func(), error) {
	if !kind.Valid() {
		return nil, errclass.ErrNameInvalid.WithMessagef("unknown store kind %q", kind)
	}
	id := model.NewAttemptID()
	m.mu.Lock()
	if holder, busy := m.inflight[kind]; busy {
		m.mu.Unlock()
		return nil, errclass.ErrConcurrentUpdateRejected.WithMessagef(
			"store %s is being updated by attempt %s", kind, holder.ShortID())
	}
	m.inflight[kind] = id
	m.mu.Unlock()

	var lease *model.LockRecord
	if m.locks != nil {
		rec, err := m.locks.Acquire(kind, id, "rollback")
		if err != nil {
			m.mu.Lock()
			delete(m.inflight, kind)
			m.mu.Unlock()
			return nil, err
		}
		lease = rec
	}
	return func() {
		if lease != nil {
			if err := m.locks.Release(kind, lease.HolderNonce); err != nil {
				logging.Warn("release rollback lease", map[string]any{
					"store_kind": string(kind), "error": err.Error(),
				})
			}
		}
		m.mu.Lock()
		delete(m.inflight, kind)
		m.mu.Unlock()
	}, nil
}

// persistRollback repoints the ACTIVE marker at the restored version.
// PrevVersion mirrors the catalog's default target after the rollback,
// so a restart reproduces the same next-rollback behavior; after a
// default rollback that target is the restored version itself, which
// keeps a repeat rollback a no-op.
func (m *Manager) persistRollback(res *model.RollbackResult) error {
	if m.state == nil {
		return nil
	}
	prev := m.catalog.PrevActiveVersion(res.Kind)
	if err := m.state.SetActive(res.Kind, res.Restored, prev); err != nil {
		return errclass.ErrStoreSwapFailed.WithMessagef(
			"persist rollback of %s to %s: %v", res.Kind, res.Restored, err)
	}
	return nil
}

// finishRollback audits, logs history, and notifies for a completed
// rollback request (including no-ops, which are part of the story).
func (m *Manager) finishRollback(results []*model.RollbackResult, actor string) {
	id := model.NewAttemptID()
	kinds := make([]model.StoreKind, 0, len(results))
	restored := make(map[model.StoreKind]string, len(results))
	details := make(map[string]any, len(results))
	noop := true
	for _, res := range results {
		kinds = append(kinds, res.Kind)
		restored[res.Kind] = res.Restored
		d := map[string]any{"restored": res.Restored, "no_op": res.NoOp}
		if res.Superseded != "" {
			d["superseded"] = res.Superseded
		}
		details[string(res.Kind)] = d
		if !res.NoOp {
			noop = false
			m.metrics.RecordRollback(string(res.Kind))
			m.metrics.SetActiveStore(string(res.Kind), res.Restored)
			m.metrics.SetRetainedVersions(string(res.Kind), len(m.catalog.Retained(res.Kind)))
		}
	}

	now := m.now()
	m.auditAppend(&model.AuditRecord{
		Actor:      actor,
		Action:     model.ActionRollback,
		AttemptID:  id,
		StoreKinds: kinds,
		Outcome:    string(model.AttemptRolledBack),
		Details:    details,
	})
	if !noop {
		m.appendAttempt(&model.UpdateResult{
			AttemptID:   id,
			State:       model.AttemptRolledBack,
			StoreKinds:  kinds,
			Committed:   restored,
			Actor:       actor,
			ReceivedAt:  now,
			CompletedAt: now,
		})
	}
	if m.webhooks != nil {
		_ = m.webhooks.SendRollback(m.applianceID, results, true)
	}
}

// Status reports every store slot plus the most recent attempts.
type Status struct {
	Stores   []model.StoreStatus  `json:"stores"`
	Attempts []model.UpdateResult `json:"attempts,omitempty"`
}

// Status returns per-kind store state and up to limit recent attempts,
// newest first. limit <= 0 skips the attempt history.
func (m *Manager) Status(limit int) (*Status, error) {
	st := &Status{}
	for _, kind := range model.StoreKinds {
		st.Stores = append(st.Stores, m.catalog.Status(kind))
	}
	if limit > 0 {
		attempts, err := m.RecentAttempts(limit)
		if err != nil {
			return nil, err
		}
		st.Attempts = attempts
	}
	return st, nil
}

// RecentAttempts reads the attempt history, newest first. Unparseable
// lines are skipped; history is informational, not integrity-bearing.
func (m *Manager) RecentAttempts(limit int) ([]model.UpdateResult, error) {
	if m.state == nil {
		return nil, nil
	}
	data, err := os.ReadFile(m.state.AttemptsLogPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read attempt history: %w", err)
	}

	var out []model.UpdateResult
	start := 0
	for i := 0; i <= len(data); i++ {
		if i != len(data) && data[i] != '\n' {
			continue
		}
		line := data[start:i]
		start = i + 1
		if len(line) == 0 {
			continue
		}
		var res model.UpdateResult
		if err := json.Unmarshal(line, &res); err != nil {
			continue
		}
		out = append(out, res)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ReceivedAt.After(out[j].ReceivedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// appendAttempt records a terminal attempt outcome in attempts.jsonl.
func (m *Manager) appendAttempt(result *model.UpdateResult) {
	if m.state == nil {
		return
	}
	line, err := json.Marshal(result)
	if err != nil {
		logging.ErrorErr("marshal attempt record", err, nil)
		return
	}
	f, err := os.OpenFile(m.state.AttemptsLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logging.ErrorErr("open attempt history", err, nil)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		logging.ErrorErr("append attempt history", err, nil)
	}
}

// LoadPersisted seeds the catalog from the state directory: the ACTIVE
// version of every kind plus its retained rollback candidates. A
// tampered active version is fatal; a tampered retained version is
// skipped with a warning and remains for doctor to report.
func (m *Manager) LoadPersisted() error {
	if m.state == nil {
		return nil
	}
	active := make(map[model.StoreKind]*store.StoreVersion)
	retained := make(map[model.StoreKind][]*store.StoreVersion)
	prevTarget := make(map[model.StoreKind]string)

	for _, kind := range model.StoreKinds {
		marker, err := m.state.Active(kind)
		if err != nil {
			return fmt.Errorf("read active marker for %s: %w", kind, err)
		}
		if marker == nil {
			continue
		}

		av, err := m.loadVersion(kind, marker.Version)
		if err != nil {
			return fmt.Errorf("active store %s version %s: %w", kind, marker.Version, err)
		}
		active[kind] = av
		if marker.PrevVersion != "" {
			prevTarget[kind] = marker.PrevVersion
		}

		infos, err := m.state.ListVersions(kind)
		if err != nil {
			return fmt.Errorf("list persisted versions for %s: %w", kind, err)
		}
		for _, info := range infos {
			if info.Version == marker.Version {
				continue
			}
			rv, err := m.loadVersion(kind, info.Version)
			if err != nil {
				logging.Warn("skip unloadable retained version", map[string]any{
					"store_kind": string(kind), "version": info.Version, "error": err.Error(),
				})
				continue
			}
			retained[kind] = append(retained[kind], rv)
		}
	}

	m.catalog.Seed(active, retained, prevTarget)
	for kind, v := range active {
		m.metrics.SetActiveStore(string(kind), v.Info.Version)
		m.metrics.SetRetainedVersions(string(kind), len(retained[kind]))
	}
	return nil
}

// loadVersion reads one persisted version and compiles its content.
func (m *Manager) loadVersion(kind model.StoreKind, version string) (*store.StoreVersion, error) {
	pv, err := m.state.LoadVersion(kind, version)
	if err != nil {
		return nil, err
	}
	content, err := compileContent(kind, pv.Document)
	if err != nil {
		return nil, err
	}
	return &store.StoreVersion{Info: pv.Info, Content: content}, nil
}
