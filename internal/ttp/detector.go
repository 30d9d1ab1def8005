package ttp

import (
	"fmt"
	"strings"

	"github.com/quorum-project/quorum/internal/store"
	"github.com/quorum-project/quorum/pkg/model"
)

// Detector evaluates every pattern in the active pattern store against a
// record. All matching patterns report, not just the first: two distinct
// behaviors in one record are two findings.
type Detector struct{}

// NewDetector returns the pattern-matching detector.
func NewDetector() *Detector {
	return &Detector{}
}

// Kind implements the detector capability interface.
func (d *Detector) Kind() model.DetectorKind {
	return model.DetectorTTP
}

// Evaluate runs each pattern's test conjunction over the record. A test
// naming a field the record lacks fails that pattern; it is not an error.
func (d *Detector) Evaluate(rec *model.LogRecord, snap *store.VersionSet) ([]model.Finding, error) {
	sv, ok := snap.Get(model.StorePatterns)
	if !ok {
		return nil, nil
	}
	set, ok := sv.Content.(*Set)
	if !ok {
		return nil, fmt.Errorf("pattern store %s holds %T, not a compiled set", sv.Info.Version, sv.Content)
	}

	var findings []model.Finding
	for i := range set.patterns {
		p := &set.patterns[i]
		if !p.matches(rec) {
			continue
		}
		findings = append(findings, model.Finding{
			Detector: model.DetectorTTP,
			Name:     p.name,
			Score:    p.weight,
			Evidence: p.evidence(),
		})
	}
	return findings, nil
}

func (p *compiledPattern) matches(rec *model.LogRecord) bool {
	for i := range p.tests {
		value, ok := rec.Field(p.tests[i].Field)
		if !ok || !p.tests[i].match(value) {
			return false
		}
	}
	return true
}

func (p *compiledPattern) evidence() map[string]string {
	ev := map[string]string{"ttp_id": p.id}
	if p.tactic != "" {
		ev["tactic"] = p.tactic
	}
	if p.technique != "" {
		ev["technique"] = p.technique
	}
	matched := make([]string, len(p.tests))
	for i := range p.tests {
		matched[i] = p.tests[i].String()
	}
	ev["matched_tests"] = strings.Join(matched, "; ")
	return ev
}
