//go:build conformance

package conformance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorum-project/quorum/internal/pack"
	"github.com/quorum-project/quorum/pkg/errclass"
	"github.com/quorum-project/quorum/pkg/model"
)

// A record whose raw message carries a known bad address yields exactly
// one indicator finding at full score, fused to critical.
func TestScenarioKnownIndicatorHit(t *testing.T) {
	c := provisionAppliance(t)
	ctx := context.Background()

	_, err := c.Submit(ctx, indicatorsPackage(t, "2026.08.1", "i-1", indicatorsDoc), "ops")
	require.NoError(t, err)

	v, err := c.Analyze(ctx, sampleRecord("rec-a", "accepted connection from 203.0.113.7 port 51812"))
	require.NoError(t, err)

	require.Len(t, v.Findings, 1)
	f := v.Findings[0]
	assert.Equal(t, model.DetectorIOC, f.Detector)
	assert.Equal(t, 1.0, f.Score)
	assert.Equal(t, "203.0.113.7", f.Evidence["indicator"])
	assert.Equal(t, model.SeverityCritical, v.Severity)
}

// A single rule hit at weight 0.5 lands in the medium band: below the
// high threshold, above the medium floor.
func TestScenarioSingleRuleHit(t *testing.T) {
	c := provisionAppliance(t)
	ctx := context.Background()

	pkg := buildPackage(t, "2026.08.1", map[model.StoreKind]payloadSpec{
		model.StoreRules: {version: "r-1", document: rulesDoc},
	})
	_, err := c.Submit(ctx, pkg, "ops")
	require.NoError(t, err)

	rec := sampleRecord("rec-b", "session opened")
	rec.StructuredFields = map[string]string{"user": "root"}
	v, err := c.Analyze(ctx, rec)
	require.NoError(t, err)

	require.Len(t, v.Findings, 1)
	assert.Equal(t, model.DetectorRule, v.Findings[0].Detector)
	assert.Equal(t, 0.5, v.Findings[0].Score)
	assert.Equal(t, model.SeverityMedium, v.Severity)
}

// A corrupted package is rejected before any state changes and leaves
// exactly one failed entry in the audit trail.
func TestScenarioCorruptedPackageAudit(t *testing.T) {
	c := provisionAppliance(t)
	ctx := context.Background()

	tampered := mutateContainer(t,
		indicatorsPackage(t, "2026.08.1", "i-1", indicatorsDoc),
		pack.PayloadMember(model.StoreIndicators), flipByte(11))

	res, err := c.Submit(ctx, tampered, "ops")
	require.Error(t, err)
	assert.True(t, errclass.Is(err, errclass.ErrChecksumMismatch))
	assert.Equal(t, model.AttemptFailed, res.State)
	assert.Equal(t, "E_CHECKSUM_MISMATCH", res.FailureClass)
	assert.Empty(t, c.ActiveVersions(ctx))

	records, err := c.AuditLog(ctx, 0)
	require.NoError(t, err)

	// One init record from provisioning, then exactly one failure. The
	// attempt never reached a successful stage, so no stage records.
	require.Len(t, records, 2)
	assert.Equal(t, model.ActionStateDirInit, records[0].Action)

	failed := records[1]
	assert.Equal(t, model.ActionUpdateFailed, failed.Action)
	assert.Equal(t, "failed", failed.Outcome)
	assert.Equal(t, res.AttemptID, failed.AttemptID)
	assert.Equal(t, "E_CHECKSUM_MISMATCH", failed.Details["failure_class"])

	intact, err := c.VerifyAudit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, intact)
}

// A clean submission walks every stage and leaves one audit record per
// stage in order.
func TestScenarioCommittedUpdateAudit(t *testing.T) {
	c := provisionAppliance(t)
	ctx := context.Background()

	res, err := c.Submit(ctx, fullPackage(t, "2026.08.1"), "ops")
	require.NoError(t, err)
	assert.Equal(t, model.AttemptCommitted, res.State)
	assert.Len(t, res.Committed, 4)

	records, err := c.AuditLog(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 5)

	wantActions := []model.AuditAction{
		model.ActionStateDirInit,
		model.ActionUpdateReceived,
		model.ActionUpdateVerified,
		model.ActionUpdateStaged,
		model.ActionUpdateCommitted,
	}
	for i, rec := range records {
		assert.Equal(t, wantActions[i], rec.Action, "record %d", i)
	}
	for _, rec := range records[1:] {
		assert.Equal(t, res.AttemptID, rec.AttemptID)
		assert.Equal(t, "2026.08.1", rec.PackageVersion)
	}
}
