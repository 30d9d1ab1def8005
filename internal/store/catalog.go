// Package store holds the versioned knowledge stores behind the detection
// engine. All four store kinds live in one immutable VersionSet swapped
// atomically, so a multi-store update is indivisible from a reader's point
// of view: an in-flight evaluation sees either every old version or every
// new one, never a mix.
package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/quorum-project/quorum/pkg/errclass"
	"github.com/quorum-project/quorum/pkg/model"
)

// StoreVersion is one immutable installed version of a knowledge store.
// Content is the compiled store document: *ioc.Set, *ttp.Set, *rules.Set,
// or *anomaly.Model depending on Info.Kind. It is never mutated after
// construction; readers holding an old version keep it alive by reference.
type StoreVersion struct {
	Info    model.StoreVersionInfo
	Content any
}

// VersionSet is an immutable view of every active store version. Detectors
// capture one VersionSet at the start of a record's evaluation and use it
// throughout.
type VersionSet struct {
	versions    map[model.StoreKind]*StoreVersion
	fingerprint string
}

func newVersionSet(versions map[model.StoreKind]*StoreVersion) *VersionSet {
	parts := make([]string, 0, len(versions))
	for kind, v := range versions {
		if v != nil {
			parts = append(parts, string(kind)+"="+v.Info.Version)
		}
	}
	sort.Strings(parts)
	return &VersionSet{versions: versions, fingerprint: strings.Join(parts, ";")}
}

// Get returns the active version of one store kind, or false if that store
// has never been provisioned.
func (s *VersionSet) Get(kind model.StoreKind) (*StoreVersion, bool) {
	v, ok := s.versions[kind]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Fingerprint identifies this exact combination of store versions, e.g.
// "indicators=i-3;rules=r-7". Empty when nothing is provisioned. Verdict
// caching keys on it.
func (s *VersionSet) Fingerprint() string {
	return s.fingerprint
}

// Infos lists the active version metadata in stable kind order.
func (s *VersionSet) Infos() []model.StoreVersionInfo {
	out := make([]model.StoreVersionInfo, 0, len(s.versions))
	for _, kind := range model.StoreKinds {
		if v, ok := s.Get(kind); ok {
			out = append(out, v.Info)
		}
	}
	return out
}

// Catalog owns the active VersionSet and the retained history that
// rollback restores from. Reads are lock-free; commits and rollbacks
// serialize on a writer mutex.
type Catalog struct {
	active atomic.Pointer[VersionSet]

	mu sync.Mutex
	// retained holds superseded versions per kind, newest first, bounded
	// by retain. Entries are unique by version string.
	retained map[model.StoreKind][]*StoreVersion
	// prevActive is the default rollback target per kind: the version
	// that was active before the most recent commit. Nil when the last
	// commit was the first ever for that kind.
	prevActive map[model.StoreKind]*StoreVersion
	retain     int
}

// NewCatalog creates an empty catalog. retain bounds the per-kind rollback
// window; values below 1 are raised to 1 so rollback always has a target
// after a second commit.
func NewCatalog(retain int) *Catalog {
	if retain < 1 {
		retain = 1
	}
	c := &Catalog{
		retained:   make(map[model.StoreKind][]*StoreVersion),
		prevActive: make(map[model.StoreKind]*StoreVersion),
		retain:     retain,
	}
	c.active.Store(newVersionSet(map[model.StoreKind]*StoreVersion{}))
	return c
}

// Snapshot returns the current VersionSet. The returned set is immutable
// and remains valid after subsequent commits.
func (c *Catalog) Snapshot() *VersionSet {
	return c.active.Load()
}

// Commit atomically installs new versions for every kind in updates. All
// kinds swap in one step. Superseded versions enter the retained history
// and become rollback targets.
func (c *Catalog) Commit(updates map[model.StoreKind]*StoreVersion) error {
	if len(updates) == 0 {
		return fmt.Errorf("commit with no store versions")
	}
	for kind, v := range updates {
		if !kind.Valid() {
			return fmt.Errorf("commit unknown store kind %q", kind)
		}
		if v == nil || v.Content == nil {
			return fmt.Errorf("commit nil content for store kind %q", kind)
		}
		if v.Info.Kind != kind {
			return fmt.Errorf("commit kind mismatch: slot %q carries %q", kind, v.Info.Kind)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.active.Load()
	next := make(map[model.StoreKind]*StoreVersion, len(cur.versions)+len(updates))
	for k, v := range cur.versions {
		next[k] = v
	}
	for kind, v := range updates {
		old := next[kind]
		c.prevActive[kind] = old
		if old != nil {
			c.pushRetainedLocked(kind, old)
		}
		next[kind] = v
	}

	c.active.Store(newVersionSet(next))
	return nil
}

// Rollback restores a previously active version of one store kind. With an
// empty target it restores the version active before the last commit; a
// repeat rollback without an intervening commit is a no-op. A non-empty
// target names (or uniquely prefixes) any retained version.
func (c *Catalog) Rollback(kind model.StoreKind, target string) (*model.RollbackResult, error) {
	if !kind.Valid() {
		return nil, errclass.ErrNameInvalid.WithMessagef("unknown store kind %q", kind)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.active.Load()
	curV := cur.versions[kind]

	var tgt *StoreVersion
	if target == "" {
		tgt = c.prevActive[kind]
		if tgt == nil {
			return nil, errclass.ErrRollbackTargetUnavailable.WithMessagef(
				"store %s has no prior version to restore", kind)
		}
	} else {
		var err error
		tgt, err = c.resolveRetainedLocked(kind, target)
		if err != nil {
			return nil, err
		}
	}

	if curV != nil && curV.Info.Version == tgt.Info.Version {
		// Already at the target; repeat rollbacks are no-ops.
		return &model.RollbackResult{Kind: kind, Restored: tgt.Info.Version, NoOp: true}, nil
	}

	next := make(map[model.StoreKind]*StoreVersion, len(cur.versions))
	for k, v := range cur.versions {
		next[k] = v
	}
	next[kind] = tgt

	if curV != nil {
		c.pushRetainedLocked(kind, curV)
	}
	c.removeRetainedLocked(kind, tgt.Info.Version)

	c.active.Store(newVersionSet(next))

	res := &model.RollbackResult{Kind: kind, Restored: tgt.Info.Version}
	if curV != nil {
		res.Superseded = curV.Info.Version
	}
	return res, nil
}

// RollbackAll rolls back every kind that has a default target. Kinds
// without a target are skipped rather than failing the whole request;
// the caller learns what happened from the per-kind results.
func (c *Catalog) RollbackAll() ([]*model.RollbackResult, error) {
	var results []*model.RollbackResult
	for _, kind := range model.StoreKinds {
		c.mu.Lock()
		hasTarget := c.prevActive[kind] != nil
		c.mu.Unlock()
		if !hasTarget {
			continue
		}
		res, err := c.Rollback(kind, "")
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	if len(results) == 0 {
		return nil, errclass.ErrRollbackTargetUnavailable.WithMessage(
			"no store has a prior version to restore")
	}
	return results, nil
}

// Status reports the active and retained versions of one store kind.
func (c *Catalog) Status(kind model.StoreKind) model.StoreStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := model.StoreStatus{Kind: kind}
	if v, ok := c.active.Load().Get(kind); ok {
		info := v.Info
		st.Active = &info
	}
	for _, rv := range c.retained[kind] {
		st.Retained = append(st.Retained, rv.Info)
	}
	if pa := c.prevActive[kind]; pa != nil {
		if st.Active == nil || st.Active.Version != pa.Info.Version {
			st.RollbackTarget = pa.Info.Version
		}
	}
	return st
}

// Retained returns the retained history of one kind, newest first.
func (c *Catalog) Retained(kind model.StoreKind) []*StoreVersion {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*StoreVersion, len(c.retained[kind]))
	copy(out, c.retained[kind])
	return out
}

// Lookup finds a version by exact name among the active and retained
// versions of a kind.
func (c *Catalog) Lookup(kind model.StoreKind, version string) (*StoreVersion, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.active.Load().Get(kind); ok && v.Info.Version == version {
		return v, true
	}
	for _, rv := range c.retained[kind] {
		if rv.Info.Version == version {
			return rv, true
		}
	}
	return nil, false
}

// Seed installs state loaded from disk without creating retention entries:
// used once at open. prevTarget names the default rollback target version
// per kind; it must name the active version or a retained one.
func (c *Catalog) Seed(active map[model.StoreKind]*StoreVersion, retained map[model.StoreKind][]*StoreVersion, prevTarget map[model.StoreKind]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make(map[model.StoreKind]*StoreVersion, len(active))
	for kind, v := range active {
		if v != nil {
			next[kind] = v
		}
	}
	for kind, list := range retained {
		bounded := make([]*StoreVersion, 0, len(list))
		for _, v := range list {
			if v != nil {
				bounded = append(bounded, v)
			}
			if len(bounded) == c.retain {
				break
			}
		}
		c.retained[kind] = bounded
	}
	for kind, version := range prevTarget {
		// After a rollback the default target equals the active version;
		// resolving it keeps a repeat rollback a no-op across restarts.
		if v := next[kind]; v != nil && v.Info.Version == version {
			c.prevActive[kind] = v
			continue
		}
		for _, rv := range c.retained[kind] {
			if rv.Info.Version == version {
				c.prevActive[kind] = rv
				break
			}
		}
	}
	c.active.Store(newVersionSet(next))
}

// PrevActiveVersion returns the default rollback target version, if any.
func (c *Catalog) PrevActiveVersion(kind model.StoreKind) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pa := c.prevActive[kind]; pa != nil {
		return pa.Info.Version
	}
	return ""
}

// pushRetainedLocked prepends v to the kind's retained history, dropping
// duplicates and trimming past the retention bound. Caller holds mu.
func (c *Catalog) pushRetainedLocked(kind model.StoreKind, v *StoreVersion) {
	list := c.retained[kind]
	filtered := make([]*StoreVersion, 0, len(list)+1)
	filtered = append(filtered, v)
	for _, rv := range list {
		if rv.Info.Version != v.Info.Version {
			filtered = append(filtered, rv)
		}
	}
	if len(filtered) > c.retain {
		filtered = filtered[:c.retain]
	}
	c.retained[kind] = filtered
}

// removeRetainedLocked drops a version from the retained history after it
// becomes active again. Caller holds mu.
func (c *Catalog) removeRetainedLocked(kind model.StoreKind, version string) {
	list := c.retained[kind]
	out := list[:0]
	for _, rv := range list {
		if rv.Info.Version != version {
			out = append(out, rv)
		}
	}
	c.retained[kind] = out
}

// resolveRetainedLocked finds a retained version by exact name or unique
// prefix. Caller holds mu.
func (c *Catalog) resolveRetainedLocked(kind model.StoreKind, query string) (*StoreVersion, error) {
	var exact *StoreVersion
	var prefixMatches []*StoreVersion

	candidates := c.retained[kind]
	if cur, ok := c.active.Load().Get(kind); ok {
		candidates = append([]*StoreVersion{cur}, candidates...)
	}
	for _, rv := range candidates {
		if rv.Info.Version == query {
			exact = rv
			break
		}
		if strings.HasPrefix(rv.Info.Version, query) {
			prefixMatches = append(prefixMatches, rv)
		}
	}
	if exact != nil {
		return exact, nil
	}
	switch len(prefixMatches) {
	case 0:
		return nil, errclass.ErrVersionUnknown.WithMessagef(
			"store %s has no retained version %q", kind, query)
	case 1:
		return prefixMatches[0], nil
	}
	names := make([]string, len(prefixMatches))
	for i, rv := range prefixMatches {
		names[i] = rv.Info.Version
	}
	return nil, errclass.ErrVersionUnknown.WithMessagef(
		"version prefix %q is ambiguous for store %s: %s", query, kind, strings.Join(names, ", "))
}
