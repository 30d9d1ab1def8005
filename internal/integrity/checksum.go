// Package integrity provides the hash and signature primitives behind
// package verification, store content checksums, and the audit chain.
package integrity

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/quorum-project/quorum/pkg/errclass"
	"github.com/quorum-project/quorum/pkg/jsonutil"
	"github.com/quorum-project/quorum/pkg/model"
)

// SHA256Bytes returns the SHA-256 digest of data as lowercase hex.
func SHA256Bytes(data []byte) model.HashValue {
	sum := sha256.Sum256(data)
	return model.HashValue(hex.EncodeToString(sum[:]))
}

// SHA512Bytes returns the SHA-512 digest of data as lowercase hex.
// Package payload blobs are digested with SHA-512.
func SHA512Bytes(data []byte) model.HashValue {
	sum := sha512.Sum512(data)
	return model.HashValue(hex.EncodeToString(sum[:]))
}

// ComputeContentChecksum computes the SHA-256 checksum of a decoded store
// content document via its canonical JSON form. The checksum is stored in
// StoreVersionInfo and re-verified when a persisted version is loaded.
func ComputeContentChecksum(content any) (model.HashValue, error) {
	data, err := jsonutil.CanonicalMarshal(content)
	if err != nil {
		return "", fmt.Errorf("canonical marshal content: %w", err)
	}
	return SHA256Bytes(data), nil
}

// DocumentChecksum computes the content checksum of a raw JSON document.
// The document is decoded and canonically re-encoded first, so formatting
// differences never change the checksum.
func DocumentChecksum(doc []byte) (model.HashValue, error) {
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return "", errclass.ErrPayloadInvalid.WithMessagef("document does not parse: %v", err)
	}
	return ComputeContentChecksum(v)
}

// VerifyPayloadDigest checks a stored payload blob against its manifest
// entry digest.
func VerifyPayloadDigest(kind model.StoreKind, blob []byte, want model.HashValue) error {
	got := SHA512Bytes(blob)
	if got != want {
		return errclass.ErrChecksumMismatch.WithMessagef(
			"payload %s: digest %s does not match manifest %s", kind, got.Short(), want.Short())
	}
	return nil
}
