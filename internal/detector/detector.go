// Package detector defines the detection capability interface and the
// factory producing the fixed set of four detectors. Concrete
// implementations live with their store content packages.
package detector

import (
	"github.com/quorum-project/quorum/internal/store"
	"github.com/quorum-project/quorum/pkg/model"
)

// Detector is one independent detection capability. Implementations are
// stateless and safe for concurrent use: all versioned knowledge arrives
// through the snapshot, so one evaluation never sees two store states.
type Detector interface {
	// Kind returns the capability identifier.
	Kind() model.DetectorKind

	// Evaluate inspects one record against one store snapshot. A missing
	// store yields (nil, nil); the engine tracks degraded coverage itself.
	// Errors never carry partial findings.
	Evaluate(rec *model.LogRecord, snap *store.VersionSet) ([]model.Finding, error)
}
