package update

import (
	"archive/zip"
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorum-project/quorum/internal/audit"
	"github.com/quorum-project/quorum/internal/lock"
	"github.com/quorum-project/quorum/internal/pack"
	"github.com/quorum-project/quorum/internal/statedir"
	"github.com/quorum-project/quorum/internal/store"
	"github.com/quorum-project/quorum/pkg/config"
	"github.com/quorum-project/quorum/pkg/errclass"
	"github.com/quorum-project/quorum/pkg/model"
)

var (
	testKey  = mustKey()
	otherKey = mustKey()
)

func mustKey() *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return key
}

const (
	indicatorsV1 = `{"ips":["10.0.0.8"],"domains":["evil.example"],"processes":["mimikatz.exe"]}`
	indicatorsV2 = `{"ips":["10.0.0.9"],"domains":["evil.example"]}`
	patternsV1   = `{"patterns":[{"id":"T1110","name":"brute force","tactic":"credential-access","tests":[{"field":"message","op":"contains","value":"failed password"}]}]}`
	rulesV1      = `{"rules":[{"id":"R-1","title":"root login","weight":0.8,"where":{"field":"user","op":"equals","value":"root"}}]}`
	anomalyV1    = `{"format":"logistic/1","featurizer_version":1,"dim":10,"mean":[0,0,0,0,0,0,0,0,0,0],"scale":[1,1,1,1,1,1,1,1,1,1],"weights":[0,0,0,0,0,0,0,0,0,0],"intercept":0}`
)

type payloadSpec struct {
	version  string
	document string
}

// buildPackage assembles and signs a container with the given payloads.
func buildPackage(t *testing.T, pkgVersion string, payloads map[model.StoreKind]payloadSpec) []byte {
	t.Helper()
	b := pack.NewBuilder(pkgVersion)
	b.SetCreatedAt(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	for _, kind := range model.StoreKinds {
		spec, ok := payloads[kind]
		if !ok {
			continue
		}
		require.NoError(t, b.AddPayload(kind, spec.version, []byte(spec.document)))
	}
	data, err := b.Build(testKey)
	require.NoError(t, err)
	return data
}

func fullPackage(t *testing.T, pkgVersion string) []byte {
	t.Helper()
	return buildPackage(t, pkgVersion, map[model.StoreKind]payloadSpec{
		model.StoreIndicators:   {version: pkgVersion + "-ioc", document: indicatorsV1},
		model.StorePatterns:     {version: pkgVersion + "-ttp", document: patternsV1},
		model.StoreRules:        {version: pkgVersion + "-rules", document: rulesV1},
		model.StoreAnomalyModel: {version: pkgVersion + "-model", document: anomalyV1},
	})
}

// submitIndicators pushes one indicator store version through the pipeline.
func submitIndicators(t *testing.T, m *Manager, version, document string) {
	t.Helper()
	_, err := m.Submit(buildPackage(t, "pkg-"+version, map[model.StoreKind]payloadSpec{
		model.StoreIndicators: {version: version, document: document},
	}), "operator")
	require.NoError(t, err)
}

// mutateContainer rewrites a built container with one member replaced.
func mutateContainer(t *testing.T, container []byte, member string, mutate func([]byte) []byte) []byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(container), int64(len(container)))
	require.NoError(t, err)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		if f.Name == member {
			data = mutate(data)
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: zip.Store})
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// memManager builds a manager with no state directory: pure pipeline.
func memManager(t *testing.T) (*Manager, *audit.MemorySink) {
	t.Helper()
	sink := &audit.MemorySink{}
	m := NewManager(Options{
		Catalog:   store.NewCatalog(5),
		Audit:     sink,
		VerifyKey: &testKey.PublicKey,
		Config:    config.Default().Update,
	})
	return m, sink
}

// dirManager builds a manager over a real state directory with leases.
func dirManager(t *testing.T) (*Manager, *statedir.StateDir) {
	t.Helper()
	root := t.TempDir()
	sd, err := statedir.Init(root)
	require.NoError(t, err)
	m := managerFor(t, sd)
	return m, sd
}

func managerFor(t *testing.T, sd *statedir.StateDir) *Manager {
	t.Helper()
	cfg := config.Default().Update
	return NewManager(Options{
		Catalog: store.NewCatalog(5),
		State:   sd,
		Locks: lock.NewManager(sd.LocksDir(), model.LockPolicy{
			DefaultLeaseTTL: cfg.LeaseTTLDuration(),
		}),
		Audit:     audit.NewFileAppender(sd.AuditLogPath()),
		VerifyKey: &testKey.PublicKey,
		Config:    cfg,
	})
}

func TestSubmitCommitsAllKinds(t *testing.T) {
	m, sink := memManager(t)

	result, err := m.Submit(fullPackage(t, "2026.08.1"), "operator")
	require.NoError(t, err)

	assert.Equal(t, model.AttemptCommitted, result.State)
	assert.Equal(t, "2026.08.1", result.PackageVersion)
	assert.Len(t, result.Committed, 4)
	assert.Equal(t, "2026.08.1-ioc", result.Committed[model.StoreIndicators])
	assert.False(t, result.CompletedAt.IsZero())

	snap := m.catalog.Snapshot()
	for _, kind := range model.StoreKinds {
		v, ok := snap.Get(kind)
		require.True(t, ok, "kind %s not active", kind)
		assert.NotNil(t, v.Content)
		assert.Equal(t, "2026.08.1", v.Info.PackageVersion)
	}

	assert.Equal(t, []model.AuditAction{
		model.ActionUpdateReceived,
		model.ActionUpdateVerified,
		model.ActionUpdateStaged,
		model.ActionUpdateCommitted,
	}, sink.Actions())
}

func TestSubmitPartialPackage(t *testing.T) {
	m, _ := memManager(t)

	pkg := buildPackage(t, "2026.08.2", map[model.StoreKind]payloadSpec{
		model.StoreIndicators: {version: "i-1", document: indicatorsV1},
		model.StoreRules:      {version: "r-1", document: rulesV1},
	})
	result, err := m.Submit(pkg, "operator")
	require.NoError(t, err)

	assert.Equal(t, []model.StoreKind{model.StoreIndicators, model.StoreRules}, result.StoreKinds)
	snap := m.catalog.Snapshot()
	_, ok := snap.Get(model.StorePatterns)
	assert.False(t, ok)
	_, ok = snap.Get(model.StoreIndicators)
	assert.True(t, ok)
}

func TestSubmitSizeGate(t *testing.T) {
	m, sink := memManager(t)
	m.cfg.MaxPackageBytes = 16

	result, err := m.Submit(fullPackage(t, "2026.08.1"), "operator")
	assert.True(t, errclass.Is(err, errclass.ErrPayloadTooLarge))
	assert.Equal(t, model.AttemptFailed, result.State)
	assert.Equal(t, "E_PAYLOAD_TOO_LARGE", result.FailureClass)
	assert.Equal(t, []model.AuditAction{model.ActionUpdateFailed}, sink.Actions())
}

func TestSubmitGarbageBytes(t *testing.T) {
	m, _ := memManager(t)

	result, err := m.Submit([]byte("not a package"), "operator")
	assert.True(t, errclass.Is(err, errclass.ErrFormatUnsupported))
	assert.Equal(t, model.AttemptFailed, result.State)
	assert.Empty(t, result.StoreKinds)
}

func TestSubmitTamperedPayloadFailsAtReceived(t *testing.T) {
	m, sink := memManager(t)

	pkg := fullPackage(t, "2026.08.1")
	tampered := mutateContainer(t, pkg, pack.PayloadMember(model.StoreIndicators), func(b []byte) []byte {
		out := append([]byte(nil), b...)
		out[0] ^= 0x40
		return out
	})

	result, err := m.Submit(tampered, "operator")
	assert.True(t, errclass.Is(err, errclass.ErrChecksumMismatch),
		"payload tamper must fail the checksum stage, got %v", err)
	assert.Equal(t, "E_CHECKSUM_MISMATCH", result.FailureClass)
	// The attempt never reached RECEIVED: one failure record only.
	assert.Equal(t, []model.AuditAction{model.ActionUpdateFailed}, sink.Actions())

	_, ok := m.catalog.Snapshot().Get(model.StoreIndicators)
	assert.False(t, ok, "tampered package must not touch the stores")
}

func TestSubmitTamperedManifestFailsAtVerified(t *testing.T) {
	m, sink := memManager(t)

	pkg := fullPackage(t, "2026.08.1")
	tampered := mutateContainer(t, pkg, pack.ManifestMember, func(b []byte) []byte {
		return bytes.Replace(b, []byte("2026.08.1"), []byte("2026.08.9"), 1)
	})

	result, err := m.Submit(tampered, "operator")
	assert.True(t, errclass.Is(err, errclass.ErrSignatureInvalid),
		"manifest tamper must fail signature verification, got %v", err)
	assert.Equal(t, model.AttemptFailed, result.State)
	// Payload digests still match the altered manifest's untouched
	// entries, so the attempt reaches RECEIVED before dying at VERIFIED.
	assert.Equal(t, []model.AuditAction{
		model.ActionUpdateReceived,
		model.ActionUpdateFailed,
	}, sink.Actions())
}

func TestSubmitWrongKey(t *testing.T) {
	m, _ := memManager(t)
	m.verifyKey = &otherKey.PublicKey

	result, err := m.Submit(fullPackage(t, "2026.08.1"), "operator")
	assert.True(t, errclass.Is(err, errclass.ErrSignatureInvalid))
	assert.Equal(t, "E_SIGNATURE_INVALID", result.FailureClass)
}

func TestSubmitWithoutKey(t *testing.T) {
	m, sink := memManager(t)
	m.verifyKey = nil

	result, err := m.Submit(fullPackage(t, "2026.08.1"), "operator")
	assert.True(t, errclass.Is(err, errclass.ErrKeyInvalid))
	assert.Equal(t, model.AttemptFailed, result.State)
	assert.Equal(t, []model.AuditAction{
		model.ActionUpdateReceived,
		model.ActionUpdateFailed,
	}, sink.Actions())
}

func TestSubmitInvalidPayloadFailsAtStaged(t *testing.T) {
	m, sink := memManager(t)

	// Rule without a weight: signed and checksummed correctly, still
	// structurally invalid.
	pkg := buildPackage(t, "2026.08.3", map[model.StoreKind]payloadSpec{
		model.StoreRules: {version: "r-bad", document: `{"rules":[{"id":"R-1","title":"x","where":{"field":"user","op":"equals","value":"root"}}]}`},
	})

	result, err := m.Submit(pkg, "operator")
	assert.True(t, errclass.Is(err, errclass.ErrPayloadInvalid))
	assert.Equal(t, "E_PAYLOAD_INVALID", result.FailureClass)
	assert.Equal(t, []model.AuditAction{
		model.ActionUpdateReceived,
		model.ActionUpdateVerified,
		model.ActionUpdateFailed,
	}, sink.Actions())

	_, ok := m.catalog.Snapshot().Get(model.StoreRules)
	assert.False(t, ok)
}

func TestSubmitVersionMismatchRejected(t *testing.T) {
	m, _ := memManager(t)

	pkg := buildPackage(t, "2026.08.4", map[model.StoreKind]payloadSpec{
		model.StoreIndicators: {version: "i-2", document: `{"version":"i-9","ips":["10.0.0.8"]}`},
	})

	_, err := m.Submit(pkg, "operator")
	assert.True(t, errclass.Is(err, errclass.ErrPayloadInvalid))
	assert.Contains(t, err.Error(), "i-9")
}

func TestSubmitRejectsInflightKind(t *testing.T) {
	m, _ := memManager(t)

	m.mu.Lock()
	m.inflight[model.StoreIndicators] = model.NewAttemptID()
	m.mu.Unlock()

	result, err := m.Submit(fullPackage(t, "2026.08.1"), "operator")
	assert.True(t, errclass.Is(err, errclass.ErrConcurrentUpdateRejected))
	assert.Equal(t, "E_CONCURRENT_UPDATE_REJECTED", result.FailureClass)

	// A package touching only unclaimed kinds still goes through.
	pkg := buildPackage(t, "2026.08.2", map[model.StoreKind]payloadSpec{
		model.StoreRules: {version: "r-1", document: rulesV1},
	})
	result, err = m.Submit(pkg, "operator")
	require.NoError(t, err)
	assert.Equal(t, model.AttemptCommitted, result.State)
}

func TestSubmitRejectsForeignLease(t *testing.T) {
	m, sd := dirManager(t)

	// Another process holds the indicators lease.
	foreign := lock.NewManager(sd.LocksDir(), model.LockPolicy{DefaultLeaseTTL: time.Minute})
	_, err := foreign.Acquire(model.StoreIndicators, model.NewAttemptID(), "update")
	require.NoError(t, err)

	result, err := m.Submit(fullPackage(t, "2026.08.1"), "operator")
	assert.True(t, errclass.Is(err, errclass.ErrConcurrentUpdateRejected))
	assert.Equal(t, "E_CONCURRENT_UPDATE_REJECTED", result.FailureClass)
}

func TestSubmitReleasesLeases(t *testing.T) {
	m, _ := dirManager(t)

	_, err := m.Submit(fullPackage(t, "2026.08.1"), "operator")
	require.NoError(t, err)

	for _, kind := range model.StoreKinds {
		state, _, err := m.locks.Status(kind)
		require.NoError(t, err)
		assert.Equal(t, model.LockStateFree, state, "lease on %s must be released", kind)
	}

	// And again after a failure past the acquisition point.
	pkg := fullPackage(t, "2026.08.2")
	tampered := mutateContainer(t, pkg, pack.PayloadMember(model.StoreRules), func(b []byte) []byte {
		out := append([]byte(nil), b...)
		out[0] ^= 0x01
		return out
	})
	_, err = m.Submit(tampered, "operator")
	require.Error(t, err)
	state, _, err := m.locks.Status(model.StoreIndicators)
	require.NoError(t, err)
	assert.Equal(t, model.LockStateFree, state)
}

func TestSubmitPersistsBeforeSwap(t *testing.T) {
	m, sd := dirManager(t)

	result, err := m.Submit(fullPackage(t, "2026.08.1"), "operator")
	require.NoError(t, err)

	for kind, version := range result.Committed {
		assert.True(t, sd.HasVersion(kind, version), "version file for %s missing", kind)
		marker, err := sd.Active(kind)
		require.NoError(t, err)
		require.NotNil(t, marker)
		assert.Equal(t, version, marker.Version)
		assert.Empty(t, marker.PrevVersion)
	}
}

func TestSubmitUpdatesMarkerPrevVersion(t *testing.T) {
	m, sd := dirManager(t)

	submitIndicators(t, m, "i-1", indicatorsV1)
	submitIndicators(t, m, "i-2", indicatorsV2)

	marker, err := sd.Active(model.StoreIndicators)
	require.NoError(t, err)
	assert.Equal(t, "i-2", marker.Version)
	assert.Equal(t, "i-1", marker.PrevVersion)
}

func TestRollbackDefaultAndRepeat(t *testing.T) {
	m, _ := dirManager(t)

	submitIndicators(t, m, "i-1", indicatorsV1)
	submitIndicators(t, m, "i-2", indicatorsV2)

	res, err := m.Rollback(model.StoreIndicators, "", "operator")
	require.NoError(t, err)
	assert.Equal(t, "i-1", res.Restored)
	assert.Equal(t, "i-2", res.Superseded)
	assert.False(t, res.NoOp)

	active, ok := m.catalog.Snapshot().Get(model.StoreIndicators)
	require.True(t, ok)
	assert.Equal(t, "i-1", active.Info.Version)

	again, err := m.Rollback(model.StoreIndicators, "", "operator")
	require.NoError(t, err)
	assert.True(t, again.NoOp)
}

func TestRollbackWithoutTarget(t *testing.T) {
	m, _ := memManager(t)

	_, err := m.Rollback(model.StoreIndicators, "", "operator")
	assert.True(t, errclass.Is(err, errclass.ErrRollbackTargetUnavailable))
}

func TestRollbackUnknownTarget(t *testing.T) {
	m, _ := memManager(t)

	submitIndicators(t, m, "i-1", indicatorsV1)

	_, err := m.Rollback(model.StoreIndicators, "never-installed", "operator")
	assert.True(t, errclass.Is(err, errclass.ErrVersionUnknown))
}

func TestRollbackPersistsMarker(t *testing.T) {
	m, sd := dirManager(t)

	submitIndicators(t, m, "i-1", indicatorsV1)
	submitIndicators(t, m, "i-2", indicatorsV2)

	_, err := m.Rollback(model.StoreIndicators, "", "operator")
	require.NoError(t, err)

	marker, err := sd.Active(model.StoreIndicators)
	require.NoError(t, err)
	assert.Equal(t, "i-1", marker.Version)
	assert.Equal(t, "i-1", marker.PrevVersion)
}

func TestRollbackAllRestoresEveryKind(t *testing.T) {
	m, _ := dirManager(t)

	_, err := m.Submit(buildPackage(t, "p1", map[model.StoreKind]payloadSpec{
		model.StoreIndicators: {version: "i-1", document: indicatorsV1},
		model.StoreRules:      {version: "r-1", document: rulesV1},
	}), "operator")
	require.NoError(t, err)
	_, err = m.Submit(buildPackage(t, "p2", map[model.StoreKind]payloadSpec{
		model.StoreIndicators: {version: "i-2", document: indicatorsV2},
		model.StoreRules:      {version: "r-2", document: rulesV1},
	}), "operator")
	require.NoError(t, err)

	results, err := m.RollbackAll("operator")
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.False(t, res.NoOp)
	}

	snap := m.catalog.Snapshot()
	ind, _ := snap.Get(model.StoreIndicators)
	rul, _ := snap.Get(model.StoreRules)
	assert.Equal(t, "i-1", ind.Info.Version)
	assert.Equal(t, "r-1", rul.Info.Version)
}

func TestRollbackAppendsToHistory(t *testing.T) {
	m, _ := dirManager(t)

	submitIndicators(t, m, "i-1", indicatorsV1)
	submitIndicators(t, m, "i-2", indicatorsV2)
	_, err := m.Rollback(model.StoreIndicators, "", "operator")
	require.NoError(t, err)

	attempts, err := m.RecentAttempts(10)
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	assert.Equal(t, model.AttemptRolledBack, attempts[0].State)
	assert.Equal(t, "i-1", attempts[0].Committed[model.StoreIndicators])
}

func TestStatusReportsStoresAndAttempts(t *testing.T) {
	m, _ := dirManager(t)

	_, err := m.Submit(fullPackage(t, "2026.08.1"), "operator")
	require.NoError(t, err)
	_, err = m.Submit([]byte("garbage"), "operator")
	require.Error(t, err)

	st, err := m.Status(10)
	require.NoError(t, err)
	require.Len(t, st.Stores, len(model.StoreKinds))
	for _, s := range st.Stores {
		require.NotNil(t, s.Active, "kind %s should be active", s.Kind)
	}

	require.Len(t, st.Attempts, 2)
	assert.Equal(t, model.AttemptFailed, st.Attempts[0].State)
	assert.Equal(t, model.AttemptCommitted, st.Attempts[1].State)
}

func TestLoadPersistedRoundTrip(t *testing.T) {
	m, sd := dirManager(t)

	submitIndicators(t, m, "i-1", indicatorsV1)
	submitIndicators(t, m, "i-2", indicatorsV2)

	// A fresh process over the same state directory.
	m2 := managerFor(t, sd)
	require.NoError(t, m2.LoadPersisted())

	active, ok := m2.catalog.Snapshot().Get(model.StoreIndicators)
	require.True(t, ok)
	assert.Equal(t, "i-2", active.Info.Version)
	assert.NotNil(t, active.Content)

	// The rollback window survived the restart.
	res, err := m2.Rollback(model.StoreIndicators, "", "operator")
	require.NoError(t, err)
	assert.Equal(t, "i-1", res.Restored)
}

func TestLoadPersistedRollbackNoOpAcrossRestart(t *testing.T) {
	m, sd := dirManager(t)

	submitIndicators(t, m, "i-1", indicatorsV1)
	submitIndicators(t, m, "i-2", indicatorsV2)
	_, err := m.Rollback(model.StoreIndicators, "", "operator")
	require.NoError(t, err)

	m2 := managerFor(t, sd)
	require.NoError(t, m2.LoadPersisted())

	res, err := m2.Rollback(model.StoreIndicators, "", "operator")
	require.NoError(t, err)
	assert.True(t, res.NoOp, "repeat rollback must stay a no-op across restart")
}

func TestLoadPersistedTamperedActiveFatal(t *testing.T) {
	m, sd := dirManager(t)

	submitIndicators(t, m, "i-1", indicatorsV1)

	path := filepath.Join(sd.StoresDir(), string(model.StoreIndicators), "i-1.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	edited := strings.Replace(string(data), "10.0.0.8", "10.9.9.9", 1)
	require.NotEqual(t, string(data), edited)
	require.NoError(t, os.WriteFile(path, []byte(edited), 0o644))

	m2 := managerFor(t, sd)
	err = m2.LoadPersisted()
	require.Error(t, err)
	assert.True(t, errclass.Is(err, errclass.ErrChecksumMismatch))
}

func TestLoadPersistedTamperedRetainedSkipped(t *testing.T) {
	m, sd := dirManager(t)

	submitIndicators(t, m, "i-1", indicatorsV1)
	submitIndicators(t, m, "i-2", indicatorsV2)

	// Tamper the superseded version, not the active one.
	path := filepath.Join(sd.StoresDir(), string(model.StoreIndicators), "i-1.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	edited := strings.Replace(string(data), "10.0.0.8", "10.9.9.9", 1)
	require.NoError(t, os.WriteFile(path, []byte(edited), 0o644))

	m2 := managerFor(t, sd)
	require.NoError(t, m2.LoadPersisted())

	active, ok := m2.catalog.Snapshot().Get(model.StoreIndicators)
	require.True(t, ok)
	assert.Equal(t, "i-2", active.Info.Version)

	// The tampered version is not offered as a rollback candidate.
	st := m2.catalog.Status(model.StoreIndicators)
	for _, r := range st.Retained {
		assert.NotEqual(t, "i-1", r.Version)
	}
}

func TestSupersededVersionRemainsOnDisk(t *testing.T) {
	m, sd := dirManager(t)

	submitIndicators(t, m, "i-1", indicatorsV1)
	submitIndicators(t, m, "i-2", indicatorsV2)

	assert.True(t, sd.HasVersion(model.StoreIndicators, "i-1"))
	assert.True(t, sd.HasVersion(model.StoreIndicators, "i-2"))
}

func TestAuditChainSurvivesFullPipeline(t *testing.T) {
	m, sd := dirManager(t)

	_, err := m.Submit(fullPackage(t, "2026.08.1"), "operator")
	require.NoError(t, err)
	_, err = m.Submit([]byte("garbage"), "operator")
	require.Error(t, err)

	n, err := audit.VerifyChain(sd.AuditLogPath())
	require.NoError(t, err)
	// Four stage records plus one failure record.
	assert.Equal(t, 5, n)
}
