package rules

import (
	"fmt"
	"strings"

	"github.com/quorum-project/quorum/internal/store"
	"github.com/quorum-project/quorum/pkg/model"
)

// Detector walks every rule's condition tree against a record. Rules are
// independent: each match is its own finding with the rule's weight as
// the score.
type Detector struct{}

// NewDetector returns the rule-evaluating detector.
func NewDetector() *Detector {
	return &Detector{}
}

// Kind implements the detector capability interface.
func (d *Detector) Kind() model.DetectorKind {
	return model.DetectorRule
}

// Evaluate reports one finding per matching rule. Missing fields fail the
// predicate that names them; nothing here returns an error at runtime
// because all syntax was checked at compile time.
func (d *Detector) Evaluate(rec *model.LogRecord, snap *store.VersionSet) ([]model.Finding, error) {
	sv, ok := snap.Get(model.StoreRules)
	if !ok {
		return nil, nil
	}
	set, ok := sv.Content.(*Set)
	if !ok {
		return nil, fmt.Errorf("rule store %s holds %T, not a compiled set", sv.Info.Version, sv.Content)
	}

	var findings []model.Finding
	for i := range set.rules {
		r := &set.rules[i]
		if !r.where.eval(rec.Field) {
			continue
		}
		ev := map[string]string{"rule_id": r.id, "title": r.title}
		if len(r.tags) > 0 {
			ev["tags"] = strings.Join(r.tags, ",")
		}
		findings = append(findings, model.Finding{
			Detector: model.DetectorRule,
			Name:     r.title,
			Score:    r.weight,
			Evidence: ev,
		})
	}
	return findings, nil
}
