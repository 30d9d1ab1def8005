package model

// DetectorKind identifies one of the fixed detection capabilities.
type DetectorKind string

const (
	DetectorIOC     DetectorKind = "ioc"
	DetectorTTP     DetectorKind = "ttp"
	DetectorRule    DetectorKind = "rule"
	DetectorAnomaly DetectorKind = "anomaly"
)

// DetectorKinds lists every detector in presentation-precedence order.
var DetectorKinds = []DetectorKind{DetectorIOC, DetectorTTP, DetectorRule, DetectorAnomaly}

// Precedence returns the tie-break rank used when findings share a score.
// Lower sorts first: ioc, then ttp, then rule, then anomaly.
func (k DetectorKind) Precedence() int {
	switch k {
	case DetectorIOC:
		return 0
	case DetectorTTP:
		return 1
	case DetectorRule:
		return 2
	case DetectorAnomaly:
		return 3
	}
	return 4
}

// Valid reports whether k is a known detector kind.
func (k DetectorKind) Valid() bool {
	return k.Precedence() < 4
}

// StoreKind identifies one of the versioned knowledge stores.
type StoreKind string

const (
	StoreIndicators   StoreKind = "indicators"
	StorePatterns     StoreKind = "patterns"
	StoreRules        StoreKind = "rules"
	StoreAnomalyModel StoreKind = "anomaly_model"
)

// StoreKinds lists every store kind in manifest order.
var StoreKinds = []StoreKind{StoreIndicators, StorePatterns, StoreRules, StoreAnomalyModel}

// Valid reports whether k is a known store kind.
func (k StoreKind) Valid() bool {
	switch k {
	case StoreIndicators, StorePatterns, StoreRules, StoreAnomalyModel:
		return true
	}
	return false
}

// Detector returns the detector kind fed by this store.
func (k StoreKind) Detector() DetectorKind {
	switch k {
	case StoreIndicators:
		return DetectorIOC
	case StorePatterns:
		return DetectorTTP
	case StoreRules:
		return DetectorRule
	case StoreAnomalyModel:
		return DetectorAnomaly
	}
	return ""
}

// StoreFor returns the knowledge store backing a detector kind.
func StoreFor(k DetectorKind) StoreKind {
	switch k {
	case DetectorIOC:
		return StoreIndicators
	case DetectorTTP:
		return StorePatterns
	case DetectorRule:
		return StoreRules
	case DetectorAnomaly:
		return StoreAnomalyModel
	}
	return ""
}

// Severity is the fused classification assigned to one record.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityNone     Severity = "none"
)

// Rank orders severities for comparison; higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	case SeverityNone:
		return 0
	}
	return -1
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s.Rank() >= 0
}

// HashValue is a hash digest stored as a lowercase hex string.
type HashValue string

// Short returns the first 12 characters for display.
func (h HashValue) Short() string {
	if len(h) >= 12 {
		return string(h[:12])
	}
	return string(h)
}

// PayloadEncoding describes how a package payload blob is stored.
type PayloadEncoding string

const (
	EncodingNone PayloadEncoding = "none"
	EncodingGzip PayloadEncoding = "gzip"
)

// LockState represents the current state of an update lease.
type LockState string

const (
	LockStateHeld    LockState = "held"
	LockStateExpired LockState = "expired"
	LockStateFree    LockState = "free"
)
