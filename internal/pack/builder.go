package pack

import (
	"archive/zip"
	"bytes"
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/quorum-project/quorum/internal/compression"
	"github.com/quorum-project/quorum/internal/integrity"
	"github.com/quorum-project/quorum/pkg/fsutil"
	"github.com/quorum-project/quorum/pkg/jsonutil"
	"github.com/quorum-project/quorum/pkg/model"
)

// Builder authors update packages. It is the tooling side of the format:
// appliances only ever read containers, the build command and tests write
// them.
type Builder struct {
	packageVersion string
	createdAt      time.Time
	compressor     *compression.Compressor
	payloads       map[model.StoreKind]builderPayload
}

type builderPayload struct {
	version  string
	document []byte
}

// NewBuilder starts a package for the given package version. Payloads are
// gzip encoded unless SetCompressor overrides that.
func NewBuilder(packageVersion string) *Builder {
	return &Builder{
		packageVersion: packageVersion,
		compressor:     compression.NewCompressor(compression.LevelDefault),
		payloads:       make(map[model.StoreKind]builderPayload),
	}
}

// SetCompressor overrides the payload encoding.
func (b *Builder) SetCompressor(c *compression.Compressor) { b.compressor = c }

// SetCreatedAt pins the manifest timestamp; tests use this for
// reproducible containers. Zero means time of Build.
func (b *Builder) SetCreatedAt(t time.Time) { b.createdAt = t }

// AddPayload stages one store kind's decoded JSON document under the
// store version it will install as.
func (b *Builder) AddPayload(kind model.StoreKind, version string, document []byte) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown store kind %q", kind)
	}
	if version == "" {
		return fmt.Errorf("payload %s: version is empty", kind)
	}
	if len(document) == 0 {
		return fmt.Errorf("payload %s: document is empty", kind)
	}
	if _, dup := b.payloads[kind]; dup {
		return fmt.Errorf("payload %s added twice", kind)
	}
	b.payloads[kind] = builderPayload{version: version, document: document}
	return nil
}

// Build encodes payloads, writes the canonical manifest, signs it, and
// returns the finished container bytes.
func (b *Builder) Build(key *rsa.PrivateKey) ([]byte, error) {
	if len(b.payloads) == 0 {
		return nil, fmt.Errorf("package has no payloads")
	}

	createdAt := b.createdAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	manifest := model.Manifest{
		FormatVersion:  model.ManifestFormatVersion,
		PackageVersion: b.packageVersion,
		CreatedAt:      createdAt,
		Entries:        make(map[model.StoreKind]model.ManifestEntry, len(b.payloads)),
	}

	blobs := make(map[model.StoreKind][]byte, len(b.payloads))
	for kind, p := range b.payloads {
		blob, err := b.compressor.Encode(p.document)
		if err != nil {
			return nil, fmt.Errorf("encode payload %s: %w", kind, err)
		}
		blobs[kind] = blob
		manifest.Entries[kind] = model.ManifestEntry{
			Version:  p.version,
			SHA512:   integrity.SHA512Bytes(blob),
			Size:     int64(len(blob)),
			Encoding: b.compressor.Encoding,
		}
	}

	manifestBytes, err := jsonutil.CanonicalMarshal(&manifest)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	sig, err := integrity.SignManifest(key, manifestBytes)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if err := writeMember(zw, ManifestMember, manifestBytes, zip.Deflate); err != nil {
		return nil, err
	}
	if err := writeMember(zw, SignatureMember, sig, zip.Store); err != nil {
		return nil, err
	}
	// Payload blobs carry their own encoding; storing them uncompressed
	// keeps the container digest-stable for a given manifest.
	for _, kind := range manifest.Kinds() {
		if err := writeMember(zw, PayloadMember(kind), blobs[kind], zip.Store); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile builds the container and writes it atomically.
func (b *Builder) WriteFile(path string, key *rsa.PrivateKey) error {
	data, err := b.Build(key)
	if err != nil {
		return err
	}
	return fsutil.AtomicWrite(path, data, 0o644)
}

func writeMember(zw *zip.Writer, name string, data []byte, method uint16) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
	if err != nil {
		return fmt.Errorf("create member %q: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write member %q: %w", name, err)
	}
	return nil
}
