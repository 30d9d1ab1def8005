// Package ioc implements the Indicator Store and its detector: exact
// membership matching of network addresses, domains, file hashes, and
// process names extracted from log records.
package ioc

import (
	"bytes"
	"encoding/json"
	"net"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/quorum-project/quorum/pkg/errclass"
)

// IndicatorType classifies one compromise indicator.
type IndicatorType string

const (
	TypeIP      IndicatorType = "ip"
	TypeDomain  IndicatorType = "domain"
	TypeHash    IndicatorType = "hash"
	TypeProcess IndicatorType = "process"
)

// Document is the JSON payload shape carried inside an update package for
// the indicator store.
type Document struct {
	Version   string   `json:"version,omitempty"`
	IPs       []string `json:"ips,omitempty"`
	Domains   []string `json:"domains,omitempty"`
	Hashes    []string `json:"hashes,omitempty"`
	Processes []string `json:"processes,omitempty"`
}

// Set is a compiled, immutable indicator store version with O(1)
// membership lookups. Keys are normalized: IPs in canonical textual form,
// domains NFC + lower case, hashes and process names lower case.
type Set struct {
	ips       map[string]struct{}
	domains   map[string]struct{}
	hashes    map[string]struct{}
	processes map[string]struct{}
}

// Compile parses and validates a raw indicator payload. Every entry must
// be well-formed for its type; a single bad entry rejects the whole
// payload so a half-usable store never goes live.
func Compile(payload []byte) (*Set, error) {
	var doc Document
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, errclass.ErrPayloadInvalid.WithMessagef("indicator payload is not valid JSON: %v", err)
	}

	s := &Set{
		ips:       make(map[string]struct{}, len(doc.IPs)),
		domains:   make(map[string]struct{}, len(doc.Domains)),
		hashes:    make(map[string]struct{}, len(doc.Hashes)),
		processes: make(map[string]struct{}, len(doc.Processes)),
	}

	for _, raw := range doc.IPs {
		ip := net.ParseIP(strings.TrimSpace(raw))
		if ip == nil {
			return nil, errclass.ErrPayloadInvalid.WithMessagef("indicator %q is not a valid IP address", raw)
		}
		s.ips[ip.String()] = struct{}{}
	}
	for _, raw := range doc.Domains {
		d := NormalizeDomain(raw)
		if !domainPattern.MatchString(d) {
			return nil, errclass.ErrPayloadInvalid.WithMessagef("indicator %q is not a valid domain name", raw)
		}
		s.domains[d] = struct{}{}
	}
	for _, raw := range doc.Hashes {
		h := strings.ToLower(strings.TrimSpace(raw))
		if !hashPattern.MatchString(h) {
			return nil, errclass.ErrPayloadInvalid.WithMessagef("indicator %q is not an MD5, SHA-1, or SHA-256 digest", raw)
		}
		s.hashes[h] = struct{}{}
	}
	for _, raw := range doc.Processes {
		p := strings.ToLower(strings.TrimSpace(raw))
		if p == "" {
			return nil, errclass.ErrPayloadInvalid.WithMessage("empty process indicator")
		}
		s.processes[p] = struct{}{}
	}
	return s, nil
}

// NormalizeDomain lowercases and NFC-normalizes a domain so lookups are
// insensitive to case and Unicode composition form.
func NormalizeDomain(d string) string {
	return norm.NFC.String(strings.ToLower(strings.TrimSpace(d)))
}

// ContainsIP reports membership of a canonical-form IP address.
func (s *Set) ContainsIP(ip string) bool {
	_, ok := s.ips[ip]
	return ok
}

// ContainsDomain reports membership of a normalized domain.
func (s *Set) ContainsDomain(domain string) bool {
	_, ok := s.domains[domain]
	return ok
}

// ContainsHash reports membership of a lowercase hex digest.
func (s *Set) ContainsHash(hash string) bool {
	_, ok := s.hashes[hash]
	return ok
}

// ContainsProcess reports membership of a lowercase process name.
func (s *Set) ContainsProcess(process string) bool {
	_, ok := s.processes[process]
	return ok
}

// Len returns the total indicator count across all types.
func (s *Set) Len() int {
	return len(s.ips) + len(s.domains) + len(s.hashes) + len(s.processes)
}

// CountByType returns per-type indicator counts for status display.
func (s *Set) CountByType() map[IndicatorType]int {
	return map[IndicatorType]int{
		TypeIP:      len(s.ips),
		TypeDomain:  len(s.domains),
		TypeHash:    len(s.hashes),
		TypeProcess: len(s.processes),
	}
}
