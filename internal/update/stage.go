package update

import (
	"encoding/json"
	"time"

	"github.com/quorum-project/quorum/internal/anomaly"
	"github.com/quorum-project/quorum/internal/integrity"
	"github.com/quorum-project/quorum/internal/ioc"
	"github.com/quorum-project/quorum/internal/pack"
	"github.com/quorum-project/quorum/internal/rules"
	"github.com/quorum-project/quorum/internal/ttp"
	"github.com/quorum-project/quorum/pkg/errclass"
	"github.com/quorum-project/quorum/pkg/model"
	"github.com/quorum-project/quorum/pkg/nameutil"
)

// stagedVersion is one payload decoded, validated, and compiled, ready
// for the commit step. document is the decoded JSON that persistence
// writes; content is the compiled store the catalog swaps in.
type stagedVersion struct {
	info     model.StoreVersionInfo
	document []byte
	content  any
}

// stagePayload takes one manifest entry from a verified package through
// decode, schema validation, and typed compilation. Nothing here touches
// the catalog or disk; a failure leaves the appliance untouched.
func stagePayload(p *pack.Package, kind model.StoreKind, maxPayloadBytes int64, installedAt time.Time) (*stagedVersion, error) {
	entry, ok := p.Manifest.Entries[kind]
	if !ok {
		return nil, errclass.ErrPayloadInvalid.WithMessagef("manifest has no entry for store kind %q", kind)
	}
	if err := nameutil.ValidateVersion(entry.Version); err != nil {
		return nil, err
	}

	doc, err := p.DecodePayload(kind, maxPayloadBytes)
	if err != nil {
		return nil, err
	}
	if err := validateSchema(kind, doc); err != nil {
		return nil, err
	}

	content, err := compileContent(kind, doc)
	if err != nil {
		return nil, err
	}

	// When the document declares its own version it must agree with the
	// manifest entry, or the operator-visible version would lie about
	// what is loaded.
	if declared := documentVersion(doc); declared != "" && declared != entry.Version {
		return nil, errclass.ErrPayloadInvalid.WithMessagef(
			"payload %s declares version %q but manifest entry says %q", kind, declared, entry.Version)
	}

	checksum, err := integrity.DocumentChecksum(doc)
	if err != nil {
		return nil, errclass.ErrPayloadInvalid.WithMessagef("checksum payload %s: %v", kind, err)
	}

	return &stagedVersion{
		info: model.StoreVersionInfo{
			Kind:           kind,
			Version:        entry.Version,
			Checksum:       checksum,
			PackageVersion: p.Manifest.PackageVersion,
			InstalledAt:    installedAt,
		},
		document: doc,
		content:  content,
	}, nil
}

// compileContent builds the immutable in-memory store for one kind.
func compileContent(kind model.StoreKind, doc []byte) (any, error) {
	switch kind {
	case model.StoreIndicators:
		return ioc.Compile(doc)
	case model.StorePatterns:
		return ttp.Compile(doc)
	case model.StoreRules:
		return rules.Compile(doc)
	case model.StoreAnomalyModel:
		return anomaly.Compile(doc)
	default:
		return nil, errclass.ErrPayloadInvalid.WithMessagef("no compiler for store kind %q", kind)
	}
}

// documentVersion extracts the optional top-level version field of a
// payload document. Model payloads have none; empty means undeclared.
func documentVersion(doc []byte) string {
	var probe struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(doc, &probe); err != nil {
		return ""
	}
	return probe.Version
}
