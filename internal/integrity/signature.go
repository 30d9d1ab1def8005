package integrity

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"

	"github.com/quorum-project/quorum/pkg/errclass"
)

// pssOptions matches the signer used by the package build tooling:
// RSA-PSS with SHA-256 and maximum salt length.
var pssOptions = &rsa.PSSOptions{
	SaltLength: rsa.PSSSaltLengthAuto,
	Hash:       crypto.SHA256,
}

// SignManifest signs the exact manifest bytes with RSA-PSS/SHA-256.
func SignManifest(key *rsa.PrivateKey, manifestBytes []byte) ([]byte, error) {
	digest := sha256.Sum256(manifestBytes)
	sig, err := rsa.SignPSS(rand.Reader, key, crypto.SHA256, digest[:], pssOptions)
	if err != nil {
		return nil, errclass.ErrKeyInvalid.WithMessagef("sign manifest: %v", err)
	}
	return sig, nil
}

// VerifyManifestSignature checks sig against the exact manifest bytes.
// Any mismatch, including a single flipped manifest byte, fails with
// E_SIGNATURE_INVALID.
func VerifyManifestSignature(pub *rsa.PublicKey, manifestBytes, sig []byte) error {
	digest := sha256.Sum256(manifestBytes)
	if err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, pssOptions); err != nil {
		return errclass.ErrSignatureInvalid.WithMessage("manifest signature verification failed")
	}
	return nil
}
