// Package anomaly implements the Anomaly Model store and its detector: a
// fixed featurizer over the raw message plus a versioned logistic scorer
// shipped in update packages. Training happens elsewhere; this package
// only loads and applies models.
package anomaly

import (
	"regexp"
	"unicode"
)

// FeaturizerVersion is the frozen contract between this binary and model
// payloads. A model built against a different featurizer is rejected at
// staging rather than scored wrong at runtime.
const FeaturizerVersion = 1

// FeatureDim is the vector length produced by featurizer version 1.
const FeatureDim = 10

// FeatureNames lists the version-1 features in vector order.
var FeatureNames = []string{
	"has_ip",
	"ip_count",
	"has_port",
	"has_error",
	"has_hex",
	"has_suspicious_cmd",
	"message_length",
	"special_char_ratio",
	"digit_ratio",
	"uppercase_ratio",
}

// Featurizer regexes are part of the frozen version-1 contract: they are
// deliberately syntactic (no address validation) so the feature space
// cannot drift when other extraction code improves.
var (
	ipShapeRe = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	portRe    = regexp.MustCompile(`(?i)\bport\s*[=:]?\s*\d{1,5}\b`)
	errorRe   = regexp.MustCompile(`(?i)\b(?:error|fail|failed|failure|denied|refused|invalid)\b`)
	longHexRe = regexp.MustCompile(`\b[0-9a-fA-F]{16,}\b`)
	suspCmdRe = regexp.MustCompile(`(?i)\b(?:wget|curl|ncat|netcat|base64|powershell|certutil|mshta|rundll32|chmod \+x)\b`)
)

// Featurize maps a raw message to the version-1 feature vector.
func Featurize(message string) []float64 {
	x := make([]float64, FeatureDim)

	ips := ipShapeRe.FindAllString(message, -1)
	if len(ips) > 0 {
		x[0] = 1
	}
	x[1] = float64(len(ips))
	x[2] = boolFeature(portRe.MatchString(message))
	x[3] = boolFeature(errorRe.MatchString(message))
	x[4] = boolFeature(longHexRe.MatchString(message))
	x[5] = boolFeature(suspCmdRe.MatchString(message))

	var total, special, digits, letters, upper int
	for _, r := range message {
		total++
		switch {
		case unicode.IsDigit(r):
			digits++
		case unicode.IsLetter(r):
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		case r != ' ':
			special++
		}
	}
	x[6] = float64(total)
	if total > 0 {
		x[7] = float64(special) / float64(total)
		x[8] = float64(digits) / float64(total)
	}
	if letters > 0 {
		x[9] = float64(upper) / float64(letters)
	}
	return x
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
