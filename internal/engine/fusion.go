package engine

import (
	"github.com/quorum-project/quorum/pkg/config"
	"github.com/quorum-project/quorum/pkg/model"
)

// Fuse reduces a record's findings to one severity. The ladder is checked
// top down and the first rung that holds wins:
//
//	critical  any score >= CriticalScore, or findings from two or more
//	          distinct detectors each >= CriticalKindScore
//	high      any score >= HighScore, or a ttp finding >= HighTTPScore
//	medium    any score >= MediumScore
//	low       at least one finding below MediumScore
//	none      no findings at all
//
// Fusion is pure arithmetic over (detector, score) pairs, so identical
// findings always fuse identically.
func Fuse(findings []model.Finding, cfg config.FusionConfig) model.Severity {
	if len(findings) == 0 {
		return model.SeverityNone
	}

	maxScore := 0.0
	maxTTP := 0.0
	kindsAtCombo := make(map[model.DetectorKind]struct{}, 4)
	for _, f := range findings {
		if f.Score > maxScore {
			maxScore = f.Score
		}
		if f.Detector == model.DetectorTTP && f.Score > maxTTP {
			maxTTP = f.Score
		}
		if f.Score >= cfg.CriticalKindScore {
			kindsAtCombo[f.Detector] = struct{}{}
		}
	}

	switch {
	case maxScore >= cfg.CriticalScore || len(kindsAtCombo) >= 2:
		return model.SeverityCritical
	case maxScore >= cfg.HighScore || maxTTP >= cfg.HighTTPScore:
		return model.SeverityHigh
	case maxScore >= cfg.MediumScore:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}
