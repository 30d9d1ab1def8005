//go:build conformance

package conformance

import (
	"archive/zip"
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quorum-project/quorum/internal/pack"
	"github.com/quorum-project/quorum/pkg/config"
	"github.com/quorum-project/quorum/pkg/model"
	"github.com/quorum-project/quorum/pkg/quorum"
)

// signKey is the update-authoring key for every conformance package.
var signKey = func() *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return key
}()

const (
	indicatorsDoc = `{"ips":["203.0.113.7","198.51.100.4"],"domains":["evil.example"],"hashes":["d41d8cd98f00b204e9800998ecf8427e"]}`
	patternsDoc   = `{"patterns":[{"id":"T1110","name":"Brute Force","tactic":"credential-access","technique":"T1110","weight":0.65,"tests":[{"field":"raw_message","op":"contains","value":"failed password"}]}]}`
	rulesDoc      = `{"rules":[{"id":"R-100","title":"root shell","weight":0.5,"where":{"field":"user","op":"equals","value":"root"}}]}`
	anomalyDoc    = `{"format":"logistic/1","featurizer_version":1,"dim":10,"mean":[0,0,0,0,0,0,0,0,0,0],"scale":[1,1,1,1,1,1,1,1,1,1],"weights":[0,0,0,0,0,0,0,0,0,0],"intercept":0}`
)

type payloadSpec struct {
	version  string
	document string
}

// buildPackage assembles and signs a container with the given payloads.
func buildPackage(t *testing.T, pkgVersion string, payloads map[model.StoreKind]payloadSpec) []byte {
	t.Helper()
	b := pack.NewBuilder(pkgVersion)
	b.SetCreatedAt(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	for _, kind := range model.StoreKinds {
		spec, ok := payloads[kind]
		if !ok {
			continue
		}
		require.NoError(t, b.AddPayload(kind, spec.version, []byte(spec.document)))
	}
	data, err := b.Build(signKey)
	require.NoError(t, err)
	return data
}

// fullPackage carries all four store kinds.
func fullPackage(t *testing.T, pkgVersion string) []byte {
	t.Helper()
	return buildPackage(t, pkgVersion, map[model.StoreKind]payloadSpec{
		model.StoreIndicators:   {version: pkgVersion + "-ioc", document: indicatorsDoc},
		model.StorePatterns:     {version: pkgVersion + "-ttp", document: patternsDoc},
		model.StoreRules:        {version: pkgVersion + "-rules", document: rulesDoc},
		model.StoreAnomalyModel: {version: pkgVersion + "-model", document: anomalyDoc},
	})
}

func indicatorsPackage(t *testing.T, pkgVersion, storeVersion, document string) []byte {
	t.Helper()
	return buildPackage(t, pkgVersion, map[model.StoreKind]payloadSpec{
		model.StoreIndicators: {version: storeVersion, document: document},
	})
}

// provisionAppliance initializes a state directory, installs the conformance
// verify key, and reopens a ready-to-update client.
func provisionAppliance(t *testing.T) *quorum.Client {
	t.Helper()
	return provisionConfigured(t, nil)
}

func provisionConfigured(t *testing.T, cfg *config.Config) *quorum.Client {
	t.Helper()
	root := t.TempDir()

	c, err := quorum.Init(root, quorum.InitOptions{Actor: "conformance", Config: cfg})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	pubDER, err := x509.MarshalPKIXPublicKey(&signKey.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	require.NoError(t, os.WriteFile(filepath.Join(root, ".quorum", "keys", "update_verify.pem"), pubPEM, 0o644))

	c, err = quorum.Open(root)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// mustForeignKey returns a signing key the appliance does not trust.
func mustForeignKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

// mutateContainer rewrites a built container with one member transformed.
func mutateContainer(t *testing.T, container []byte, member string, mutate func([]byte) []byte) []byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(container), int64(len(container)))
	require.NoError(t, err)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		if f.Name == member {
			data = mutate(data)
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: zip.Store})
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// flipByte flips one bit of the byte at index i.
func flipByte(i int) func([]byte) []byte {
	return func(data []byte) []byte {
		out := append([]byte(nil), data...)
		out[i%len(out)] ^= 0x01
		return out
	}
}

func sampleRecord(id, message string) *model.LogRecord {
	return &model.LogRecord{
		ID:         id,
		Timestamp:  time.Date(2026, 8, 21, 3, 14, 0, 0, time.UTC),
		Host:       "fw-edge-1",
		SourceType: "auth",
		RawMessage: message,
	}
}
