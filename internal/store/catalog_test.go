package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorum-project/quorum/pkg/errclass"
	"github.com/quorum-project/quorum/pkg/model"
)

type stubContent struct {
	tag string
}

func mkVersion(kind model.StoreKind, version string) *StoreVersion {
	return &StoreVersion{
		Info: model.StoreVersionInfo{
			Kind:        kind,
			Version:     version,
			Checksum:    model.HashValue("deadbeef"),
			InstalledAt: time.Unix(1700000000, 0).UTC(),
		},
		Content: &stubContent{tag: version},
	}
}

func TestEmptyCatalog(t *testing.T) {
	c := NewCatalog(5)

	snap := c.Snapshot()
	assert.Equal(t, "", snap.Fingerprint())
	assert.Empty(t, snap.Infos())

	_, ok := snap.Get(model.StoreIndicators)
	assert.False(t, ok)

	_, err := c.Rollback(model.StoreIndicators, "")
	require.Error(t, err)
	assert.True(t, errclass.Is(err, errclass.ErrRollbackTargetUnavailable))
}

func TestCommitValidation(t *testing.T) {
	c := NewCatalog(5)

	err := c.Commit(nil)
	assert.Error(t, err)

	err = c.Commit(map[model.StoreKind]*StoreVersion{
		model.StoreKind("bogus"): mkVersion("bogus", "v1"),
	})
	assert.Error(t, err)

	err = c.Commit(map[model.StoreKind]*StoreVersion{
		model.StoreIndicators: nil,
	})
	assert.Error(t, err)

	// Version built for one kind placed in another kind's slot.
	err = c.Commit(map[model.StoreKind]*StoreVersion{
		model.StoreRules: mkVersion(model.StoreIndicators, "v1"),
	})
	assert.Error(t, err)
}

func TestCommitAndSnapshot(t *testing.T) {
	c := NewCatalog(5)

	err := c.Commit(map[model.StoreKind]*StoreVersion{
		model.StoreIndicators: mkVersion(model.StoreIndicators, "ioc-1"),
		model.StoreRules:      mkVersion(model.StoreRules, "rules-1"),
	})
	require.NoError(t, err)

	snap := c.Snapshot()
	v, ok := snap.Get(model.StoreIndicators)
	require.True(t, ok)
	assert.Equal(t, "ioc-1", v.Info.Version)

	_, ok = snap.Get(model.StorePatterns)
	assert.False(t, ok)

	assert.Equal(t, "indicators=ioc-1;rules=rules-1", snap.Fingerprint())

	infos := snap.Infos()
	require.Len(t, infos, 2)
	assert.Equal(t, model.StoreIndicators, infos[0].Kind)
	assert.Equal(t, model.StoreRules, infos[1].Kind)
}

func TestSnapshotImmutableAcrossCommits(t *testing.T) {
	c := NewCatalog(5)

	require.NoError(t, c.Commit(map[model.StoreKind]*StoreVersion{
		model.StoreIndicators: mkVersion(model.StoreIndicators, "ioc-1"),
	}))
	old := c.Snapshot()

	require.NoError(t, c.Commit(map[model.StoreKind]*StoreVersion{
		model.StoreIndicators: mkVersion(model.StoreIndicators, "ioc-2"),
	}))

	v, ok := old.Get(model.StoreIndicators)
	require.True(t, ok)
	assert.Equal(t, "ioc-1", v.Info.Version)
	assert.Equal(t, "indicators=ioc-1", old.Fingerprint())

	v, ok = c.Snapshot().Get(model.StoreIndicators)
	require.True(t, ok)
	assert.Equal(t, "ioc-2", v.Info.Version)
}

func TestStatusAfterSupersedingCommit(t *testing.T) {
	c := NewCatalog(5)

	require.NoError(t, c.Commit(map[model.StoreKind]*StoreVersion{
		model.StoreRules: mkVersion(model.StoreRules, "r-1"),
	}))
	require.NoError(t, c.Commit(map[model.StoreKind]*StoreVersion{
		model.StoreRules: mkVersion(model.StoreRules, "r-2"),
	}))

	st := c.Status(model.StoreRules)
	require.NotNil(t, st.Active)
	assert.Equal(t, "r-2", st.Active.Version)
	require.Len(t, st.Retained, 1)
	assert.Equal(t, "r-1", st.Retained[0].Version)
	assert.Equal(t, "r-1", st.RollbackTarget)
}

func TestRollbackDefaultTarget(t *testing.T) {
	c := NewCatalog(5)

	require.NoError(t, c.Commit(map[model.StoreKind]*StoreVersion{
		model.StoreRules: mkVersion(model.StoreRules, "r-1"),
	}))
	require.NoError(t, c.Commit(map[model.StoreKind]*StoreVersion{
		model.StoreRules: mkVersion(model.StoreRules, "r-2"),
	}))

	res, err := c.Rollback(model.StoreRules, "")
	require.NoError(t, err)
	assert.Equal(t, "r-1", res.Restored)
	assert.Equal(t, "r-2", res.Superseded)
	assert.False(t, res.NoOp)

	v, ok := c.Snapshot().Get(model.StoreRules)
	require.True(t, ok)
	assert.Equal(t, "r-1", v.Info.Version)

	// The displaced version is retained so an explicit rollback can
	// roll forward to it again.
	st := c.Status(model.StoreRules)
	require.Len(t, st.Retained, 1)
	assert.Equal(t, "r-2", st.Retained[0].Version)

	// Repeating the rollback with no intervening commit changes nothing.
	res, err = c.Rollback(model.StoreRules, "")
	require.NoError(t, err)
	assert.True(t, res.NoOp)
	assert.Equal(t, "r-1", res.Restored)

	v, ok = c.Snapshot().Get(model.StoreRules)
	require.True(t, ok)
	assert.Equal(t, "r-1", v.Info.Version)
}

func TestRollbackExplicitTarget(t *testing.T) {
	c := NewCatalog(5)

	for i := 1; i <= 3; i++ {
		require.NoError(t, c.Commit(map[model.StoreKind]*StoreVersion{
			model.StoreIndicators: mkVersion(model.StoreIndicators, fmt.Sprintf("2024.0%d", i)),
		}))
	}

	res, err := c.Rollback(model.StoreIndicators, "2024.01")
	require.NoError(t, err)
	assert.Equal(t, "2024.01", res.Restored)
	assert.Equal(t, "2024.03", res.Superseded)

	// Roll forward by naming the newest again.
	res, err = c.Rollback(model.StoreIndicators, "2024.03")
	require.NoError(t, err)
	assert.Equal(t, "2024.03", res.Restored)
	assert.Equal(t, "2024.01", res.Superseded)
}

func TestRollbackTargetResolution(t *testing.T) {
	c := NewCatalog(5)

	require.NoError(t, c.Commit(map[model.StoreKind]*StoreVersion{
		model.StoreRules: mkVersion(model.StoreRules, "release-10"),
	}))
	require.NoError(t, c.Commit(map[model.StoreKind]*StoreVersion{
		model.StoreRules: mkVersion(model.StoreRules, "release-11"),
	}))
	require.NoError(t, c.Commit(map[model.StoreKind]*StoreVersion{
		model.StoreRules: mkVersion(model.StoreRules, "release-20"),
	}))

	// Unique prefix resolves.
	res, err := c.Rollback(model.StoreRules, "release-10")
	require.NoError(t, err)
	assert.Equal(t, "release-10", res.Restored)

	// Ambiguous prefix is rejected with the candidates named.
	_, err = c.Rollback(model.StoreRules, "release-1")
	require.Error(t, err)
	assert.True(t, errclass.Is(err, errclass.ErrVersionUnknown))
	assert.Contains(t, err.Error(), "release-11")

	// Unknown version.
	_, err = c.Rollback(model.StoreRules, "release-99")
	require.Error(t, err)
	assert.True(t, errclass.Is(err, errclass.ErrVersionUnknown))

	// Naming the active version is a no-op, not an error.
	res, err = c.Rollback(model.StoreRules, "release-10")
	require.NoError(t, err)
	assert.True(t, res.NoOp)
}

func TestRetentionBound(t *testing.T) {
	c := NewCatalog(2)

	for i := 1; i <= 5; i++ {
		require.NoError(t, c.Commit(map[model.StoreKind]*StoreVersion{
			model.StorePatterns: mkVersion(model.StorePatterns, fmt.Sprintf("p-%d", i)),
		}))
	}

	retained := c.Retained(model.StorePatterns)
	require.Len(t, retained, 2)
	assert.Equal(t, "p-4", retained[0].Info.Version)
	assert.Equal(t, "p-3", retained[1].Info.Version)

	// Versions past the bound are no longer resolvable.
	_, err := c.Rollback(model.StorePatterns, "p-1")
	require.Error(t, err)
	assert.True(t, errclass.Is(err, errclass.ErrVersionUnknown))
}

func TestRollbackAll(t *testing.T) {
	c := NewCatalog(5)

	_, err := c.RollbackAll()
	require.Error(t, err)
	assert.True(t, errclass.Is(err, errclass.ErrRollbackTargetUnavailable))

	require.NoError(t, c.Commit(map[model.StoreKind]*StoreVersion{
		model.StoreIndicators: mkVersion(model.StoreIndicators, "i-1"),
		model.StoreRules:      mkVersion(model.StoreRules, "r-1"),
	}))
	require.NoError(t, c.Commit(map[model.StoreKind]*StoreVersion{
		model.StoreIndicators: mkVersion(model.StoreIndicators, "i-2"),
	}))

	// Only indicators has a prior version; rules was committed once.
	results, err := c.RollbackAll()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.StoreIndicators, results[0].Kind)
	assert.Equal(t, "i-1", results[0].Restored)
}

func TestLookup(t *testing.T) {
	c := NewCatalog(5)

	require.NoError(t, c.Commit(map[model.StoreKind]*StoreVersion{
		model.StoreRules: mkVersion(model.StoreRules, "r-1"),
	}))
	require.NoError(t, c.Commit(map[model.StoreKind]*StoreVersion{
		model.StoreRules: mkVersion(model.StoreRules, "r-2"),
	}))

	v, ok := c.Lookup(model.StoreRules, "r-2")
	require.True(t, ok)
	assert.Equal(t, "r-2", v.Info.Version)

	v, ok = c.Lookup(model.StoreRules, "r-1")
	require.True(t, ok)
	assert.Equal(t, "r-1", v.Info.Version)

	_, ok = c.Lookup(model.StoreRules, "r-9")
	assert.False(t, ok)
}

func TestSeedRestoresRollbackTarget(t *testing.T) {
	c := NewCatalog(5)

	active := map[model.StoreKind]*StoreVersion{
		model.StoreRules: mkVersion(model.StoreRules, "r-3"),
	}
	retained := map[model.StoreKind][]*StoreVersion{
		model.StoreRules: {
			mkVersion(model.StoreRules, "r-2"),
			mkVersion(model.StoreRules, "r-1"),
		},
	}
	c.Seed(active, retained, map[model.StoreKind]string{model.StoreRules: "r-2"})

	v, ok := c.Snapshot().Get(model.StoreRules)
	require.True(t, ok)
	assert.Equal(t, "r-3", v.Info.Version)

	res, err := c.Rollback(model.StoreRules, "")
	require.NoError(t, err)
	assert.Equal(t, "r-2", res.Restored)
	assert.Equal(t, "r-3", res.Superseded)
}

func TestSeedWithoutPrevTarget(t *testing.T) {
	c := NewCatalog(5)

	c.Seed(map[model.StoreKind]*StoreVersion{
		model.StoreRules: mkVersion(model.StoreRules, "r-1"),
	}, nil, nil)

	// Explicit targets still resolve via retained history (none here).
	_, err := c.Rollback(model.StoreRules, "")
	require.Error(t, err)
	assert.True(t, errclass.Is(err, errclass.ErrRollbackTargetUnavailable))
}

// TestCommitAtomicityUnderReaders hammers Snapshot while a writer swaps
// matched pairs of versions, asserting no reader ever observes a mixed set.
func TestCommitAtomicityUnderReaders(t *testing.T) {
	c := NewCatalog(5)

	commitPair := func(n int) {
		tag := fmt.Sprintf("gen-%d", n)
		err := c.Commit(map[model.StoreKind]*StoreVersion{
			model.StoreIndicators: mkVersion(model.StoreIndicators, tag),
			model.StoreRules:      mkVersion(model.StoreRules, tag),
		})
		require.NoError(t, err)
	}
	commitPair(0)

	done := make(chan struct{})
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap := c.Snapshot()
				iv, ok1 := snap.Get(model.StoreIndicators)
				rv, ok2 := snap.Get(model.StoreRules)
				if !ok1 || !ok2 {
					t.Error("snapshot missing a committed store")
					return
				}
				if iv.Info.Version != rv.Info.Version {
					t.Errorf("torn snapshot: indicators=%s rules=%s",
						iv.Info.Version, rv.Info.Version)
					return
				}
			}
		}()
	}

	for n := 1; n <= 200; n++ {
		commitPair(n)
	}
	close(done)
	wg.Wait()
}
