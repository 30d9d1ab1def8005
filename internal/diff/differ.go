// Package diff compares two persisted versions of one store kind by
// content: indicators by value within their type, rules and patterns by
// id, the anomaly model by its contract fields.
package diff

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/quorum-project/quorum/internal/statedir"
	"github.com/quorum-project/quorum/pkg/errclass"
	"github.com/quorum-project/quorum/pkg/jsonutil"
	"github.com/quorum-project/quorum/pkg/model"
)

// ChangeType classifies one diffed entry.
type ChangeType string

const (
	ChangeAdded   ChangeType = "added"
	ChangeRemoved ChangeType = "removed"
	ChangeChanged ChangeType = "changed"
)

// Entry is one diffed item: an indicator value, a rule or pattern id,
// or an anomaly model field.
type Entry struct {
	Type ChangeType `json:"type"`
	// Group buckets the entry: an indicator type (ips, domains, hashes,
	// processes), "rule", "pattern", or "model".
	Group string `json:"group"`
	// Key identifies the item inside its group.
	Key string `json:"key"`
	// Old and New carry scalar values where they render compactly.
	Old string `json:"old,omitempty"`
	New string `json:"new,omitempty"`
}

// Result is the content difference between two versions of a kind.
type Result struct {
	Kind         model.StoreKind `json:"kind"`
	FromVersion  string          `json:"from_version,omitempty"`
	ToVersion    string          `json:"to_version"`
	Added        []Entry         `json:"added,omitempty"`
	Removed      []Entry         `json:"removed,omitempty"`
	Changed      []Entry         `json:"changed,omitempty"`
	TotalAdded   int             `json:"total_added"`
	TotalRemoved int             `json:"total_removed"`
	TotalChanged int             `json:"total_changed"`
}

// Differ loads persisted versions and computes content diffs.
type Differ struct {
	state *statedir.StateDir
}

// NewDiffer creates a Differ over a state directory.
func NewDiffer(state *statedir.StateDir) *Differ {
	return &Differ{state: state}
}

// Diff compares fromVersion to toVersion of kind. An empty fromVersion
// diffs from nothing, so every entry shows as added. Both versions are
// checksum-verified on load.
func (d *Differ) Diff(kind model.StoreKind, fromVersion, toVersion string) (*Result, error) {
	if !kind.Valid() {
		return nil, errclass.ErrNameInvalid.WithMessagef("unknown store kind %q", kind)
	}

	var fromDoc []byte
	if fromVersion != "" {
		env, err := d.load(kind, fromVersion)
		if err != nil {
			return nil, err
		}
		fromDoc = env.Document
	}
	toEnv, err := d.load(kind, toVersion)
	if err != nil {
		return nil, err
	}

	result := &Result{Kind: kind, FromVersion: fromVersion, ToVersion: toVersion}
	switch kind {
	case model.StoreIndicators:
		err = diffIndicators(fromDoc, toEnv.Document, result)
	case model.StorePatterns:
		err = diffByID(fromDoc, toEnv.Document, "patterns", "pattern", result)
	case model.StoreRules:
		err = diffByID(fromDoc, toEnv.Document, "rules", "rule", result)
	case model.StoreAnomalyModel:
		err = diffModel(fromDoc, toEnv.Document, result)
	}
	if err != nil {
		return nil, err
	}

	sortEntries(result.Added)
	sortEntries(result.Removed)
	sortEntries(result.Changed)
	result.TotalAdded = len(result.Added)
	result.TotalRemoved = len(result.Removed)
	result.TotalChanged = len(result.Changed)
	return result, nil
}

func (d *Differ) load(kind model.StoreKind, version string) (*statedir.PersistedVersion, error) {
	if !d.state.HasVersion(kind, version) {
		return nil, errclass.ErrVersionUnknown.WithMessagef(
			"no persisted version %s/%s", kind, version)
	}
	return d.state.LoadVersion(kind, version)
}

type indicatorsDoc struct {
	Version   string   `json:"version"`
	IPs       []string `json:"ips"`
	Domains   []string `json:"domains"`
	Hashes    []string `json:"hashes"`
	Processes []string `json:"processes"`
}

func diffIndicators(fromDoc, toDoc []byte, result *Result) error {
	var from, to indicatorsDoc
	if err := parseDoc(fromDoc, &from); err != nil {
		return err
	}
	if err := parseDoc(toDoc, &to); err != nil {
		return err
	}

	groups := []struct {
		name     string
		from, to []string
	}{
		{"ips", from.IPs, to.IPs},
		{"domains", from.Domains, to.Domains},
		{"hashes", from.Hashes, to.Hashes},
		{"processes", from.Processes, to.Processes},
	}
	for _, g := range groups {
		fromSet := toSet(g.from)
		toValues := toSet(g.to)
		for v := range toValues {
			if !fromSet[v] {
				result.Added = append(result.Added, Entry{Type: ChangeAdded, Group: g.name, Key: v})
			}
		}
		for v := range fromSet {
			if !toValues[v] {
				result.Removed = append(result.Removed, Entry{Type: ChangeRemoved, Group: g.name, Key: v})
			}
		}
	}
	return nil
}

// diffByID compares list documents whose entries carry an "id" field.
// Entries present in both versions are compared by canonical bytes, so
// formatting differences never count as changes.
func diffByID(fromDoc, toDoc []byte, listField, group string, result *Result) error {
	from, err := entriesByID(fromDoc, listField)
	if err != nil {
		return err
	}
	to, err := entriesByID(toDoc, listField)
	if err != nil {
		return err
	}

	for id, canon := range to {
		old, ok := from[id]
		switch {
		case !ok:
			result.Added = append(result.Added, Entry{Type: ChangeAdded, Group: group, Key: id})
		case old != canon:
			result.Changed = append(result.Changed, Entry{Type: ChangeChanged, Group: group, Key: id})
		}
	}
	for id := range from {
		if _, ok := to[id]; !ok {
			result.Removed = append(result.Removed, Entry{Type: ChangeRemoved, Group: group, Key: id})
		}
	}
	return nil
}

// entriesByID maps entry id to its canonical JSON rendering.
func entriesByID(doc []byte, listField string) (map[string]string, error) {
	entries := make(map[string]string)
	if doc == nil {
		return entries, nil
	}
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(doc, &outer); err != nil {
		return nil, errclass.ErrPayloadInvalid.WithMessagef("parse document: %v", err)
	}
	var list []json.RawMessage
	if raw, ok := outer[listField]; ok {
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, errclass.ErrPayloadInvalid.WithMessagef("parse %s list: %v", listField, err)
		}
	}
	for i, raw := range list {
		var probe struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil || probe.ID == "" {
			return nil, errclass.ErrPayloadInvalid.WithMessagef("%s entry %d has no id", listField, i)
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errclass.ErrPayloadInvalid.WithMessagef("%s entry %q: %v", listField, probe.ID, err)
		}
		canon, err := jsonutil.CanonicalMarshal(v)
		if err != nil {
			return nil, err
		}
		entries[probe.ID] = string(canon)
	}
	return entries, nil
}

type modelDoc struct {
	Format            string    `json:"format"`
	FeaturizerVersion int       `json:"featurizer_version"`
	Dim               int       `json:"dim"`
	Mean              []float64 `json:"mean"`
	Scale             []float64 `json:"scale"`
	Weights           []float64 `json:"weights"`
	Intercept         float64   `json:"intercept"`
}

func diffModel(fromDoc, toDoc []byte, result *Result) error {
	var to modelDoc
	if err := parseDoc(toDoc, &to); err != nil {
		return err
	}
	if fromDoc == nil {
		result.Added = append(result.Added,
			Entry{Type: ChangeAdded, Group: "model", Key: "format", New: to.Format},
			Entry{Type: ChangeAdded, Group: "model", Key: "featurizer_version", New: strconv.Itoa(to.FeaturizerVersion)},
			Entry{Type: ChangeAdded, Group: "model", Key: "dim", New: strconv.Itoa(to.Dim)},
		)
		return nil
	}
	var from modelDoc
	if err := parseDoc(fromDoc, &from); err != nil {
		return err
	}

	changed := func(key, oldVal, newVal string) {
		result.Changed = append(result.Changed,
			Entry{Type: ChangeChanged, Group: "model", Key: key, Old: oldVal, New: newVal})
	}
	if from.Format != to.Format {
		changed("format", from.Format, to.Format)
	}
	if from.FeaturizerVersion != to.FeaturizerVersion {
		changed("featurizer_version", strconv.Itoa(from.FeaturizerVersion), strconv.Itoa(to.FeaturizerVersion))
	}
	if from.Dim != to.Dim {
		changed("dim", strconv.Itoa(from.Dim), strconv.Itoa(to.Dim))
	}
	if from.Intercept != to.Intercept {
		changed("intercept",
			strconv.FormatFloat(from.Intercept, 'g', -1, 64),
			strconv.FormatFloat(to.Intercept, 'g', -1, 64))
	}
	for _, vec := range []struct {
		key      string
		from, to []float64
	}{
		{"mean", from.Mean, to.Mean},
		{"scale", from.Scale, to.Scale},
		{"weights", from.Weights, to.Weights},
	} {
		if !floatsEqual(vec.from, vec.to) {
			result.Changed = append(result.Changed,
				Entry{Type: ChangeChanged, Group: "model", Key: vec.key})
		}
	}
	return nil
}

func parseDoc(doc []byte, v any) error {
	if doc == nil {
		return nil
	}
	if err := json.Unmarshal(doc, v); err != nil {
		return errclass.ErrPayloadInvalid.WithMessagef("parse document: %v", err)
	}
	return nil
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func floatsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Group != entries[j].Group {
			return entries[i].Group < entries[j].Group
		}
		return entries[i].Key < entries[j].Key
	})
}

// FormatHuman renders the diff for terminal output.
func (r *Result) FormatHuman() string {
	var sb strings.Builder

	from := r.FromVersion
	if from == "" {
		from = "(none)"
	}
	sb.WriteString(fmt.Sprintf("Diff %s %s -> %s\n\n", r.Kind, from, r.ToVersion))

	if r.TotalAdded > 0 {
		sb.WriteString(fmt.Sprintf("Added (%d):\n", r.TotalAdded))
		for _, e := range r.Added {
			sb.WriteString(fmt.Sprintf("  + %s %s\n", e.Group, e.Key))
		}
		sb.WriteString("\n")
	}
	if r.TotalRemoved > 0 {
		sb.WriteString(fmt.Sprintf("Removed (%d):\n", r.TotalRemoved))
		for _, e := range r.Removed {
			sb.WriteString(fmt.Sprintf("  - %s %s\n", e.Group, e.Key))
		}
		sb.WriteString("\n")
	}
	if r.TotalChanged > 0 {
		sb.WriteString(fmt.Sprintf("Changed (%d):\n", r.TotalChanged))
		for _, e := range r.Changed {
			sb.WriteString(fmt.Sprintf("  ~ %s %s", e.Group, e.Key))
			if e.Old != "" || e.New != "" {
				sb.WriteString(fmt.Sprintf(" (%s -> %s)", e.Old, e.New))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	if r.TotalAdded == 0 && r.TotalRemoved == 0 && r.TotalChanged == 0 {
		sb.WriteString("No changes.\n")
	}
	return sb.String()
}
