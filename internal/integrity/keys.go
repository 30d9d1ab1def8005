package integrity

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"

	"github.com/quorum-project/quorum/pkg/errclass"
)

// MinKeyBits is the smallest RSA modulus accepted for update verification.
const MinKeyBits = 2048

// DefaultKeyBits is used by key generation.
const DefaultKeyBits = 3072

// GenerateKeyPair creates an RSA key pair and returns PEM encodings
// (PKCS#8 private, PKIX public).
func GenerateKeyPair(bits int) (privPEM, pubPEM []byte, err error) {
	if bits < MinKeyBits {
		return nil, nil, errclass.ErrKeyInvalid.WithMessagef("key size %d below minimum %d", bits, MinKeyBits)
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, errclass.ErrKeyInvalid.WithMessagef("generate key: %v", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, errclass.ErrKeyInvalid.WithMessagef("encode private key: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, errclass.ErrKeyInvalid.WithMessagef("encode public key: %v", err)
	}

	privPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return privPEM, pubPEM, nil
}

// ParsePrivateKeyPEM accepts PKCS#8 ("PRIVATE KEY") and PKCS#1
// ("RSA PRIVATE KEY") encodings.
func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errclass.ErrKeyInvalid.WithMessage("no PEM block found in private key")
	}

	switch block.Type {
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, errclass.ErrKeyInvalid.WithMessagef("parse PKCS#8 key: %v", err)
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, errclass.ErrKeyInvalid.WithMessage("private key is not RSA")
		}
		return checkPrivate(key)
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, errclass.ErrKeyInvalid.WithMessagef("parse PKCS#1 key: %v", err)
		}
		return checkPrivate(key)
	}
	return nil, errclass.ErrKeyInvalid.WithMessagef("unsupported PEM block %q", block.Type)
}

// ParsePublicKeyPEM accepts PKIX ("PUBLIC KEY") and PKCS#1
// ("RSA PUBLIC KEY") encodings.
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errclass.ErrKeyInvalid.WithMessage("no PEM block found in public key")
	}

	switch block.Type {
	case "PUBLIC KEY":
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, errclass.ErrKeyInvalid.WithMessagef("parse PKIX key: %v", err)
		}
		pub, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, errclass.ErrKeyInvalid.WithMessage("public key is not RSA")
		}
		return checkPublic(pub)
	case "RSA PUBLIC KEY":
		pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, errclass.ErrKeyInvalid.WithMessagef("parse PKCS#1 key: %v", err)
		}
		return checkPublic(pub)
	}
	return nil, errclass.ErrKeyInvalid.WithMessagef("unsupported PEM block %q", block.Type)
}

// LoadPublicKey reads and parses the update verification key from disk.
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errclass.ErrKeyInvalid.WithMessagef("read verify key %s: %v", path, err)
	}
	return ParsePublicKeyPEM(data)
}

// LoadPrivateKey reads and parses a signing key from disk.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errclass.ErrKeyInvalid.WithMessagef("read signing key %s: %v", path, err)
	}
	return ParsePrivateKeyPEM(data)
}

func checkPrivate(key *rsa.PrivateKey) (*rsa.PrivateKey, error) {
	if key.N.BitLen() < MinKeyBits {
		return nil, errclass.ErrKeyInvalid.WithMessagef("key size %d below minimum %d", key.N.BitLen(), MinKeyBits)
	}
	return key, nil
}

func checkPublic(pub *rsa.PublicKey) (*rsa.PublicKey, error) {
	if pub.N.BitLen() < MinKeyBits {
		return nil, errclass.ErrKeyInvalid.WithMessagef("key size %d below minimum %d", pub.N.BitLen(), MinKeyBits)
	}
	return pub, nil
}
