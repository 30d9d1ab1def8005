//go:build conformance

package conformance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quorum-project/quorum/internal/engine"
	"github.com/quorum-project/quorum/pkg/config"
	"github.com/quorum-project/quorum/pkg/model"
)

func finding(kind model.DetectorKind, score float64) model.Finding {
	return model.Finding{Detector: kind, Name: string(kind) + "-finding", Score: score}
}

// The shipped threshold table, pinned value by value.
func TestFusionThresholdTable(t *testing.T) {
	cfg := config.Default().Detection.Fusion

	tests := []struct {
		name     string
		findings []model.Finding
		want     model.Severity
	}{
		{"no findings", nil, model.SeverityNone},
		{"single score at 0.9", []model.Finding{finding(model.DetectorIOC, 0.9)}, model.SeverityCritical},
		{"two kinds at 0.6", []model.Finding{
			finding(model.DetectorTTP, 0.6),
			finding(model.DetectorRule, 0.6),
		}, model.SeverityCritical},
		{"same kind twice at 0.6 is not critical", []model.Finding{
			finding(model.DetectorRule, 0.6),
			finding(model.DetectorRule, 0.65),
		}, model.SeverityMedium},
		{"single score at 0.7", []model.Finding{finding(model.DetectorAnomaly, 0.7)}, model.SeverityHigh},
		{"ttp at 0.5", []model.Finding{finding(model.DetectorTTP, 0.5)}, model.SeverityHigh},
		{"rule at 0.5 is only medium", []model.Finding{finding(model.DetectorRule, 0.5)}, model.SeverityMedium},
		{"single score at 0.4", []model.Finding{finding(model.DetectorRule, 0.4)}, model.SeverityMedium},
		{"single score at 0.39", []model.Finding{finding(model.DetectorAnomaly, 0.39)}, model.SeverityLow},
		{"single score just above zero", []model.Finding{finding(model.DetectorAnomaly, 0.01)}, model.SeverityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, engine.Fuse(tt.findings, cfg))
		})
	}
}

// Raising any finding's score never lowers the fused severity.
func TestFusionMonotonicity(t *testing.T) {
	cfg := config.Default().Detection.Fusion

	// Score lattice crossing every threshold boundary.
	scores := []float64{0, 0.1, 0.39, 0.4, 0.5, 0.6, 0.65, 0.7, 0.89, 0.9, 1.0}
	kinds := model.DetectorKinds

	for _, k1 := range kinds {
		for _, k2 := range kinds {
			for _, s1 := range scores {
				for _, s2 := range scores {
					base := []model.Finding{finding(k1, s1), finding(k2, s2)}
					severity := engine.Fuse(base, cfg)

					// Raise each score one lattice step and compare.
					for i, s := range []float64{s1, s2} {
						for _, higher := range scores {
							if higher <= s {
								continue
							}
							raised := []model.Finding{finding(k1, s1), finding(k2, s2)}
							raised[i].Score = higher
							got := engine.Fuse(raised, cfg)
							if got.Rank() < severity.Rank() {
								t.Fatalf("raising %v/%.2f to %.2f lowered severity %s -> %s",
									raised[i].Detector, s, higher, severity, got)
							}
						}
					}
				}
			}
		}
	}
}

// Adding a finding never lowers the fused severity.
func TestFusionAdditivity(t *testing.T) {
	cfg := config.Default().Detection.Fusion

	base := []model.Finding{finding(model.DetectorRule, 0.45)}
	severity := engine.Fuse(base, cfg)

	for _, kind := range model.DetectorKinds {
		for _, score := range []float64{0.05, 0.45, 0.6, 0.95} {
			grown := append(append([]model.Finding{}, base...), finding(kind, score))
			got := engine.Fuse(grown, cfg)
			assert.GreaterOrEqual(t, got.Rank(), severity.Rank(),
				"adding %s/%.2f must not lower severity", kind, score)
		}
	}
}

// Presentation order: score descending, then ioc > ttp > rule > anomaly,
// then name. Reordering input findings never changes severity.
func TestFindingOrderIndependence(t *testing.T) {
	cfg := config.Default().Detection.Fusion

	findings := []model.Finding{
		finding(model.DetectorAnomaly, 0.55),
		finding(model.DetectorIOC, 0.55),
		finding(model.DetectorRule, 0.8),
		finding(model.DetectorTTP, 0.55),
	}
	want := engine.Fuse(findings, cfg)

	// Rotate through permutations by repeated rotation.
	rotated := append([]model.Finding{}, findings...)
	for i := 0; i < len(findings); i++ {
		rotated = append(rotated[1:], rotated[0])
		assert.Equal(t, want, engine.Fuse(rotated, cfg))
	}

	model.SortFindings(findings)
	assert.Equal(t, 0.8, findings[0].Score)
	assert.Equal(t, model.DetectorIOC, findings[1].Detector)
	assert.Equal(t, model.DetectorTTP, findings[2].Detector)
	assert.Equal(t, model.DetectorAnomaly, findings[3].Detector)
}
