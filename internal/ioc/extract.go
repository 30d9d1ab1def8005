package ioc

import (
	"net"
	"regexp"
	"strings"
)

// Extraction candidate patterns. Candidates are syntactic only; IP
// candidates must still survive net.ParseIP, which weeds out timestamps,
// over-long octets, and other colon- or dot-shaped noise.
var (
	ipv4Candidate = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	ipv6Candidate = regexp.MustCompile(`[0-9a-fA-F]*:[0-9a-fA-F:]+`)
	// Hash candidates match inside longer tokens so digests embedded in
	// filenames like dropper_<sha256>.bin are still found. Longest length
	// first: Go alternation is leftmost-preferred.
	hashCandidate = regexp.MustCompile(`(?:[0-9a-fA-F]{64}|[0-9a-fA-F]{40}|[0-9a-fA-F]{32})`)
	// Label-dot-label with an alphabetic TLD, unanchored for scanning.
	// Dotted quads never match it, so the IP and domain passes are disjoint.
	domainCandidate = regexp.MustCompile(`\b(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,63}\b`)

	// Anchored forms used to validate indicator payload entries.
	domainPattern = regexp.MustCompile(`^(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,63}$`)
	hashPattern   = regexp.MustCompile(`^(?:[0-9a-f]{32}|[0-9a-f]{40}|[0-9a-f]{64})$`)
)

// Atom is one extracted lookup candidate: a typed value found in a named
// record field. Values are normalized the same way Set keys are.
type Atom struct {
	Type  IndicatorType
	Value string
	Field string
}

// Extract scans one field value for every atom type. Overlapping
// extractions are all kept: a SHA-256-shaped token that also contains an
// IP-shaped substring yields both atoms. Duplicates of the same
// (type, value) within the field collapse to one atom; order follows scan
// position so output is reproducible.
func Extract(field, text string) []Atom {
	var atoms []Atom
	seen := make(map[IndicatorType]map[string]struct{}, 4)

	add := func(t IndicatorType, value string) {
		if seen[t] == nil {
			seen[t] = make(map[string]struct{})
		}
		if _, dup := seen[t][value]; dup {
			return
		}
		seen[t][value] = struct{}{}
		atoms = append(atoms, Atom{Type: t, Value: value, Field: field})
	}

	for _, cand := range ipv4Candidate.FindAllString(text, -1) {
		if ip := net.ParseIP(cand); ip != nil {
			add(TypeIP, ip.String())
		}
	}
	for _, cand := range ipv6Candidate.FindAllString(text, -1) {
		if ip := net.ParseIP(cand); ip != nil {
			add(TypeIP, ip.String())
		}
	}
	for _, cand := range hashCandidate.FindAllString(text, -1) {
		add(TypeHash, strings.ToLower(cand))
	}
	for _, cand := range domainCandidate.FindAllString(text, -1) {
		add(TypeDomain, NormalizeDomain(cand))
	}
	return atoms
}
