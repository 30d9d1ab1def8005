package ioc

import (
	"fmt"
	"strings"

	"github.com/quorum-project/quorum/internal/store"
	"github.com/quorum-project/quorum/pkg/model"
)

// Finding names, one per indicator type. Every hit scores 1.0: indicator
// membership is a fact, not a probability.
var findingNames = map[IndicatorType]string{
	TypeIP:      "Known IP Indicator",
	TypeDomain:  "Known Domain Indicator",
	TypeHash:    "Known Hash Indicator",
	TypeProcess: "Known Process Indicator",
}

// Detector matches extracted record atoms against the active indicator
// store. Stateless; all knowledge lives in the snapshot.
type Detector struct{}

// NewDetector returns the indicator-matching detector.
func NewDetector() *Detector {
	return &Detector{}
}

// Kind implements the detector capability interface.
func (d *Detector) Kind() model.DetectorKind {
	return model.DetectorIOC
}

// Evaluate extracts atoms from every record field and reports one finding
// per distinct (type, value, field) hit. With no indicator store in the
// snapshot it reports nothing; the engine accounts for the degraded mode.
func (d *Detector) Evaluate(rec *model.LogRecord, snap *store.VersionSet) ([]model.Finding, error) {
	sv, ok := snap.Get(model.StoreIndicators)
	if !ok {
		return nil, nil
	}
	set, ok := sv.Content.(*Set)
	if !ok {
		return nil, fmt.Errorf("indicator store %s holds %T, not a compiled set", sv.Info.Version, sv.Content)
	}

	var findings []model.Finding
	for _, field := range rec.FieldNames() {
		text, _ := rec.Field(field)
		if text == "" {
			continue
		}
		for _, atom := range Extract(field, text) {
			if d.lookup(set, atom) {
				findings = append(findings, finding(atom))
			}
		}
	}

	// The process field is authored data, not free text: match it whole
	// against process indicators instead of scanning it.
	if proc, ok := rec.StructuredFields["process"]; ok {
		p := strings.ToLower(strings.TrimSpace(proc))
		if p != "" && set.ContainsProcess(p) {
			findings = append(findings, finding(Atom{Type: TypeProcess, Value: p, Field: "process"}))
		}
	}
	return findings, nil
}

func (d *Detector) lookup(set *Set, atom Atom) bool {
	switch atom.Type {
	case TypeIP:
		return set.ContainsIP(atom.Value)
	case TypeDomain:
		return set.ContainsDomain(atom.Value)
	case TypeHash:
		return set.ContainsHash(atom.Value)
	case TypeProcess:
		return set.ContainsProcess(atom.Value)
	}
	return false
}

func finding(atom Atom) model.Finding {
	return model.Finding{
		Detector: model.DetectorIOC,
		Name:     findingNames[atom.Type],
		Score:    1.0,
		Evidence: map[string]string{
			"indicator":      atom.Value,
			"indicator_type": string(atom.Type),
			"field":          atom.Field,
		},
	}
}
