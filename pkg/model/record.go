package model

import (
	"sort"
	"time"

	"github.com/quorum-project/quorum/pkg/jsonutil"
)

// LogRecord is one normalized log record handed to the engine by the
// ingest pipeline. The engine treats it as read-only.
type LogRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Host      string    `json:"host,omitempty"`
	// SourceType names the producing log family, e.g. "auth", "syslog".
	SourceType string `json:"source_type,omitempty"`
	RawMessage string `json:"raw_message"`
	// StructuredFields holds parser-extracted key/value pairs such as
	// "process", "user", "src_ip". Values are compared as strings;
	// numeric rule operators parse them on demand.
	StructuredFields map[string]string `json:"structured_fields,omitempty"`
	// ContentHash is the ingest pipeline's hash of the raw content,
	// used for caching and audit correlation.
	ContentHash HashValue `json:"content_hash,omitempty"`
}

// Reserved field names addressing the record's own attributes in rule
// and pattern tests, alongside the parser-extracted structured fields.
const (
	FieldRawMessage = "raw_message"
	FieldHost       = "host"
	FieldSourceType = "source_type"
)

// Field resolves an addressable field: one of the reserved names above or
// a structured field key. Structured fields win a name collision so
// parsers can override the envelope.
func (r *LogRecord) Field(name string) (string, bool) {
	if v, ok := r.StructuredFields[name]; ok {
		return v, true
	}
	switch name {
	case FieldRawMessage:
		return r.RawMessage, true
	case FieldHost:
		if r.Host != "" {
			return r.Host, true
		}
	case FieldSourceType:
		if r.SourceType != "" {
			return r.SourceType, true
		}
	}
	return "", false
}

// FieldNames returns every addressable field of the record in a fixed
// order: raw_message, then host and source_type when set, then structured
// field names ascending. Scanning detectors iterate this so their output
// order is reproducible.
func (r *LogRecord) FieldNames() []string {
	names := make([]string, 0, len(r.StructuredFields)+3)
	names = append(names, FieldRawMessage)
	if r.Host != "" {
		if _, shadowed := r.StructuredFields[FieldHost]; !shadowed {
			names = append(names, FieldHost)
		}
	}
	if r.SourceType != "" {
		if _, shadowed := r.StructuredFields[FieldSourceType]; !shadowed {
			names = append(names, FieldSourceType)
		}
	}
	keys := make([]string, 0, len(r.StructuredFields))
	for k := range r.StructuredFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return append(names, keys...)
}

// Finding is one detector's evidence that a record is suspicious.
type Finding struct {
	Detector DetectorKind `json:"detector"`
	Name     string       `json:"name"`
	// Score is the detector's confidence in [0, 1].
	Score    float64           `json:"score"`
	Evidence map[string]string `json:"evidence,omitempty"`
}

// SortFindings orders findings for presentation: score descending, then
// detector precedence (ioc, ttp, rule, anomaly), then name. The order is
// total, so repeated evaluations serialize identically.
func SortFindings(fs []Finding) {
	sort.SliceStable(fs, func(i, j int) bool {
		if fs[i].Score != fs[j].Score {
			return fs[i].Score > fs[j].Score
		}
		pi, pj := fs[i].Detector.Precedence(), fs[j].Detector.Precedence()
		if pi != pj {
			return pi < pj
		}
		return fs[i].Name < fs[j].Name
	})
}

// Verdict is the engine's fused classification of one record.
type Verdict struct {
	RecordID string    `json:"record_id"`
	Severity Severity  `json:"severity"`
	Findings []Finding `json:"findings"`
	// Warnings lists detectors that could not run, e.g. a store that has
	// never been provisioned. Detection degrades, it does not abort.
	Warnings   []string  `json:"warnings,omitempty"`
	ComputedAt time.Time `json:"computed_at"`
}

// VerdictCore is the timestamp-free portion of a verdict. Two evaluations
// of the same record against the same store versions produce byte-identical
// canonical encodings of their cores.
type VerdictCore struct {
	RecordID string    `json:"record_id"`
	Severity Severity  `json:"severity"`
	Findings []Finding `json:"findings"`
	Warnings []string  `json:"warnings,omitempty"`
}

// Core returns the reproducible portion of the verdict.
func (v *Verdict) Core() VerdictCore {
	return VerdictCore{
		RecordID: v.RecordID,
		Severity: v.Severity,
		Findings: v.Findings,
		Warnings: v.Warnings,
	}
}

// CanonicalBytes serializes the verdict core with sorted keys. Two
// evaluations of one record against one store set compare byte-equal.
func (v *Verdict) CanonicalBytes() ([]byte, error) {
	return jsonutil.CanonicalMarshal(v.Core())
}

// MaxScore returns the highest finding score, or 0 with no findings.
func (v *Verdict) MaxScore() float64 {
	max := 0.0
	for _, f := range v.Findings {
		if f.Score > max {
			max = f.Score
		}
	}
	return max
}
