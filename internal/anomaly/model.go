package anomaly

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/quorum-project/quorum/pkg/errclass"
)

// FormatLogistic1 is the only scorer format this binary understands:
// standardized features through a logistic unit.
const FormatLogistic1 = "logistic/1"

// Document is the JSON payload shape for the anomaly model store.
type Document struct {
	Format            string    `json:"format"`
	FeaturizerVersion int       `json:"featurizer_version"`
	Dim               int       `json:"dim"`
	Mean              []float64 `json:"mean"`
	Scale             []float64 `json:"scale"`
	Weights           []float64 `json:"weights"`
	Intercept         float64   `json:"intercept"`
}

// Model is a compiled, immutable anomaly scorer.
type Model struct {
	mean      []float64
	scale     []float64
	weights   []float64
	intercept float64
}

// Compile parses and validates a raw model payload. The model must target
// this binary's featurizer version and carry coefficient vectors of the
// right dimension.
func Compile(payload []byte) (*Model, error) {
	var doc Document
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, errclass.ErrPayloadInvalid.WithMessagef("model payload is not valid JSON: %v", err)
	}

	if doc.Format != FormatLogistic1 {
		return nil, errclass.ErrPayloadInvalid.WithMessagef(
			"model format %q is not supported (want %s)", doc.Format, FormatLogistic1)
	}
	if doc.FeaturizerVersion != FeaturizerVersion {
		return nil, errclass.ErrPayloadInvalid.WithMessagef(
			"model targets featurizer version %d, this build provides %d",
			doc.FeaturizerVersion, FeaturizerVersion)
	}
	if doc.Dim != FeatureDim {
		return nil, errclass.ErrPayloadInvalid.WithMessagef(
			"model dimension %d does not match featurizer dimension %d", doc.Dim, FeatureDim)
	}
	for _, vec := range []struct {
		name string
		vals []float64
	}{{"mean", doc.Mean}, {"scale", doc.Scale}, {"weights", doc.Weights}} {
		if len(vec.vals) != doc.Dim {
			return nil, errclass.ErrPayloadInvalid.WithMessagef(
				"model %s has %d entries, want %d", vec.name, len(vec.vals), doc.Dim)
		}
	}
	for i, s := range doc.Scale {
		if s <= 0 {
			return nil, errclass.ErrPayloadInvalid.WithMessagef(
				"model scale[%d] = %v must be positive", i, s)
		}
	}

	return &Model{
		mean:      doc.Mean,
		scale:     doc.Scale,
		weights:   doc.Weights,
		intercept: doc.Intercept,
	}, nil
}

// Score maps a raw message to an anomaly probability in [0, 1].
func (m *Model) Score(message string) float64 {
	x := Featurize(message)
	z := m.intercept
	for i, v := range x {
		z += m.weights[i] * (v - m.mean[i]) / m.scale[i]
	}
	return sigmoid(z)
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
