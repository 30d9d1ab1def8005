package detector

import (
	"fmt"

	"github.com/quorum-project/quorum/internal/anomaly"
	"github.com/quorum-project/quorum/internal/ioc"
	"github.com/quorum-project/quorum/internal/rules"
	"github.com/quorum-project/quorum/internal/ttp"
	"github.com/quorum-project/quorum/pkg/model"
)

// Options carries the few tunables detectors take from configuration.
type Options struct {
	// AnomalyFloor is the minimum anomaly score that becomes a finding.
	AnomalyFloor float64
}

// New creates the detector implementing one capability.
func New(kind model.DetectorKind, opts Options) (Detector, error) {
	switch kind {
	case model.DetectorIOC:
		return ioc.NewDetector(), nil
	case model.DetectorTTP:
		return ttp.NewDetector(), nil
	case model.DetectorRule:
		return rules.NewDetector(), nil
	case model.DetectorAnomaly:
		return anomaly.NewDetector(opts.AnomalyFloor), nil
	}
	return nil, fmt.Errorf("unknown detector kind %q", kind)
}

// NewAll creates every detector in evaluation order.
func NewAll(opts Options) []Detector {
	out := make([]Detector, 0, len(model.DetectorKinds))
	for _, kind := range model.DetectorKinds {
		d, err := New(kind, opts)
		if err != nil {
			// DetectorKinds and the switch above are maintained together.
			panic(err)
		}
		out = append(out, d)
	}
	return out
}
