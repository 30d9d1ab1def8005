package anomaly

import (
	"fmt"
	"strconv"

	"github.com/quorum-project/quorum/internal/store"
	"github.com/quorum-project/quorum/pkg/model"
)

// FindingName is the single finding this detector can produce.
const FindingName = "Statistical Anomaly"

// Detector scores records with the active anomaly model. Scores below the
// floor produce no finding at all, so routine traffic stays quiet.
type Detector struct {
	floor float64
}

// NewDetector returns the anomaly-scoring detector. floor is the minimum
// score that becomes a finding.
func NewDetector(floor float64) *Detector {
	return &Detector{floor: floor}
}

// Kind implements the detector capability interface.
func (d *Detector) Kind() model.DetectorKind {
	return model.DetectorAnomaly
}

// Evaluate scores the raw message and reports at most one finding.
func (d *Detector) Evaluate(rec *model.LogRecord, snap *store.VersionSet) ([]model.Finding, error) {
	sv, ok := snap.Get(model.StoreAnomalyModel)
	if !ok {
		return nil, nil
	}
	m, ok := sv.Content.(*Model)
	if !ok {
		return nil, fmt.Errorf("anomaly store %s holds %T, not a compiled model", sv.Info.Version, sv.Content)
	}

	score := m.Score(rec.RawMessage)
	if score < d.floor {
		return nil, nil
	}
	return []model.Finding{{
		Detector: model.DetectorAnomaly,
		Name:     FindingName,
		Score:    score,
		Evidence: map[string]string{
			"model": sv.Info.Version,
			"score": strconv.FormatFloat(score, 'f', 4, 64),
		},
	}}, nil
}
