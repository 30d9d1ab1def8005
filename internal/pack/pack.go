// Package pack reads and writes the update package container: a ZIP
// archive holding a canonical manifest.json, one payload blob per store
// kind, and a detached RSA-PSS signature over the exact manifest bytes.
// The manifest is the only signed member; payload blobs are covered
// transitively through the SHA-512 digests the manifest records.
package pack

import (
	"archive/zip"
	"bytes"
	"crypto/rsa"
	"encoding/json"
	"io"
	"strings"

	"github.com/quorum-project/quorum/internal/compression"
	"github.com/quorum-project/quorum/internal/integrity"
	"github.com/quorum-project/quorum/pkg/errclass"
	"github.com/quorum-project/quorum/pkg/model"
)

const (
	// ManifestMember is the signed table of contents.
	ManifestMember = "manifest.json"
	// SignatureMember holds the raw RSA-PSS signature over ManifestMember.
	SignatureMember = "manifest.sig"

	payloadPrefix = "payloads/"
	payloadSuffix = ".bin"
)

// maxManifestBytes bounds the manifest member; real manifests are under a
// kilobyte.
const maxManifestBytes = 4 << 20

// maxSignatureBytes bounds the signature member; an RSA-3072 PSS
// signature is 384 bytes.
const maxSignatureBytes = 64 << 10

// PayloadMember returns the archive path of a store kind's payload blob.
func PayloadMember(kind model.StoreKind) string {
	return payloadPrefix + string(kind) + payloadSuffix
}

// Package is a parsed update container. ManifestBytes preserves the
// manifest member exactly as stored: signature verification runs over
// these bytes, never over a re-encoding.
type Package struct {
	Manifest      model.Manifest
	ManifestBytes []byte
	Signature     []byte
	// Payloads holds each blob exactly as stored, keyed by store kind.
	// Blobs may still be gzip encoded; DecodePayload reverses that.
	Payloads map[model.StoreKind][]byte
}

// Parse opens container bytes and validates their structure: required
// members present, manifest well formed, exactly one payload per entry.
// maxPayloadBytes bounds each stored blob. Parse does not verify payload
// digests or the signature; those are separate update stages.
func Parse(data []byte, maxPayloadBytes int64) (*Package, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errclass.ErrFormatUnsupported.WithMessagef("not an update package: %v", err)
	}

	members := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		if _, dup := members[f.Name]; dup {
			return nil, errclass.ErrFormatUnsupported.WithMessagef("duplicate member %q", f.Name)
		}
		members[f.Name] = f
	}

	manifestFile, ok := members[ManifestMember]
	if !ok {
		return nil, errclass.ErrFormatUnsupported.WithMessagef("package has no %s", ManifestMember)
	}
	sigFile, ok := members[SignatureMember]
	if !ok {
		return nil, errclass.ErrFormatUnsupported.WithMessagef("package has no %s", SignatureMember)
	}

	manifestBytes, err := readMember(manifestFile, maxManifestBytes)
	if err != nil {
		return nil, err
	}
	sig, err := readMember(sigFile, maxSignatureBytes)
	if err != nil {
		return nil, err
	}

	var manifest model.Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return nil, errclass.ErrPayloadInvalid.WithMessagef("manifest does not parse: %v", err)
	}
	if err := validateManifest(&manifest); err != nil {
		return nil, err
	}

	pkg := &Package{
		Manifest:      manifest,
		ManifestBytes: manifestBytes,
		Signature:     sig,
		Payloads:      make(map[model.StoreKind][]byte, len(manifest.Entries)),
	}

	for kind, entry := range manifest.Entries {
		f, ok := members[PayloadMember(kind)]
		if !ok {
			return nil, errclass.ErrPayloadInvalid.WithMessagef(
				"manifest entry %s has no payload member", kind)
		}
		blob, err := readMember(f, maxPayloadBytes)
		if err != nil {
			return nil, err
		}
		if int64(len(blob)) != entry.Size {
			return nil, errclass.ErrPayloadInvalid.WithMessagef(
				"payload %s is %d bytes, manifest says %d", kind, len(blob), entry.Size)
		}
		pkg.Payloads[kind] = blob
	}

	for name := range members {
		if err := checkMemberName(name, &manifest); err != nil {
			return nil, err
		}
	}
	return pkg, nil
}

// checkMemberName rejects archive members the format does not define.
// A payload without a manifest entry is content smuggling, not just an
// unknown name, and reports as an invalid payload.
func checkMemberName(name string, manifest *model.Manifest) error {
	if name == ManifestMember || name == SignatureMember {
		return nil
	}
	if strings.HasPrefix(name, payloadPrefix) && strings.HasSuffix(name, payloadSuffix) {
		kind := model.StoreKind(strings.TrimSuffix(strings.TrimPrefix(name, payloadPrefix), payloadSuffix))
		if _, ok := manifest.Entries[kind]; ok {
			return nil
		}
		return errclass.ErrPayloadInvalid.WithMessagef("payload member %q has no manifest entry", name)
	}
	return errclass.ErrFormatUnsupported.WithMessagef("unexpected member %q", name)
}

func validateManifest(m *model.Manifest) error {
	if m.FormatVersion != model.ManifestFormatVersion {
		return errclass.ErrFormatUnsupported.WithMessagef(
			"package format_version %d, this build reads %d", m.FormatVersion, model.ManifestFormatVersion)
	}
	if m.PackageVersion == "" {
		return errclass.ErrPayloadInvalid.WithMessage("manifest: package_version is empty")
	}
	if len(m.Entries) == 0 {
		return errclass.ErrPayloadInvalid.WithMessage("manifest: no entries")
	}
	for kind, entry := range m.Entries {
		if !kind.Valid() {
			return errclass.ErrPayloadInvalid.WithMessagef("manifest: unknown store kind %q", kind)
		}
		if entry.Version == "" {
			return errclass.ErrPayloadInvalid.WithMessagef("manifest: entry %s has no version", kind)
		}
		if entry.SHA512 == "" {
			return errclass.ErrPayloadInvalid.WithMessagef("manifest: entry %s has no digest", kind)
		}
		if entry.Size < 0 {
			return errclass.ErrPayloadInvalid.WithMessagef("manifest: entry %s has negative size", kind)
		}
		switch entry.Encoding {
		case model.EncodingNone, model.EncodingGzip, "":
		default:
			return errclass.ErrFormatUnsupported.WithMessagef(
				"manifest: entry %s uses unknown encoding %q", kind, entry.Encoding)
		}
	}
	return nil
}

// readMember extracts one archive member, bounded. ZIP members carry
// their own compression, so the bound is enforced on the inflated bytes.
func readMember(f *zip.File, maxBytes int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, errclass.ErrFormatUnsupported.WithMessagef("open member %q: %v", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxBytes+1))
	if err != nil {
		return nil, errclass.ErrFormatUnsupported.WithMessagef("read member %q: %v", f.Name, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, errclass.ErrPayloadTooLarge.WithMessagef(
			"member %q exceeds %d bytes", f.Name, maxBytes)
	}
	return data, nil
}

// VerifyPayloads checks every stored blob against its manifest digest.
func (p *Package) VerifyPayloads() error {
	for _, kind := range p.Manifest.Kinds() {
		entry := p.Manifest.Entries[kind]
		if err := integrity.VerifyPayloadDigest(kind, p.Payloads[kind], entry.SHA512); err != nil {
			return err
		}
	}
	return nil
}

// VerifySignature checks the detached signature against the manifest
// bytes exactly as they appear in the container.
func (p *Package) VerifySignature(pub *rsa.PublicKey) error {
	return integrity.VerifyManifestSignature(pub, p.ManifestBytes, p.Signature)
}

// DecodePayload returns the decoded (post-encoding) payload document for
// one store kind, bounded by maxBytes.
func (p *Package) DecodePayload(kind model.StoreKind, maxBytes int64) ([]byte, error) {
	blob, ok := p.Payloads[kind]
	if !ok {
		return nil, errclass.ErrPayloadInvalid.WithMessagef("package has no payload for %s", kind)
	}
	return compression.Decode(blob, p.Manifest.Entries[kind].Encoding, maxBytes)
}
