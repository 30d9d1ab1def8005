package ioc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorum-project/quorum/internal/store"
	"github.com/quorum-project/quorum/pkg/model"
)

func catalogWith(t *testing.T, payload string) *store.Catalog {
	t.Helper()
	set, err := Compile([]byte(payload))
	require.NoError(t, err)

	c := store.NewCatalog(3)
	require.NoError(t, c.Commit(map[model.StoreKind]*store.StoreVersion{
		model.StoreIndicators: {
			Info: model.StoreVersionInfo{
				Kind:        model.StoreIndicators,
				Version:     "test-1",
				InstalledAt: time.Unix(1700000000, 0).UTC(),
			},
			Content: set,
		},
	}))
	return c
}

func TestEvaluateWithoutStore(t *testing.T) {
	d := NewDetector()
	rec := &model.LogRecord{ID: "r1", RawMessage: "conn from 203.0.113.7"}

	findings, err := d.Evaluate(rec, store.NewCatalog(3).Snapshot())
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestEvaluateIPHit(t *testing.T) {
	c := catalogWith(t, `{"ips": ["203.0.113.7"]}`)
	d := NewDetector()

	rec := &model.LogRecord{ID: "r1", RawMessage: "denied conn from 203.0.113.7 to 10.0.0.5"}
	findings, err := d.Evaluate(rec, c.Snapshot())
	require.NoError(t, err)

	require.Len(t, findings, 1)
	f := findings[0]
	assert.Equal(t, model.DetectorIOC, f.Detector)
	assert.Equal(t, "Known IP Indicator", f.Name)
	assert.Equal(t, 1.0, f.Score)
	assert.Equal(t, "203.0.113.7", f.Evidence["indicator"])
	assert.Equal(t, "ip", f.Evidence["indicator_type"])
	assert.Equal(t, "raw_message", f.Evidence["field"])
}

func TestEvaluateMatchesCaseInsensitively(t *testing.T) {
	c := catalogWith(t, `{"domains": ["evil.example.com"], "hashes": ["44d88612fea8a8f36de82e1278abb02f"]}`)
	d := NewDetector()

	rec := &model.LogRecord{
		ID:         "r2",
		RawMessage: "GET EVIL.EXAMPLE.COM gave 44D88612FEA8A8F36DE82E1278ABB02F",
	}
	findings, err := d.Evaluate(rec, c.Snapshot())
	require.NoError(t, err)

	require.Len(t, findings, 2)
	names := []string{findings[0].Name, findings[1].Name}
	assert.Contains(t, names, "Known Domain Indicator")
	assert.Contains(t, names, "Known Hash Indicator")
}

func TestEvaluateStructuredFields(t *testing.T) {
	c := catalogWith(t, `{"ips": ["198.51.100.9"]}`)
	d := NewDetector()

	rec := &model.LogRecord{
		ID:         "r3",
		RawMessage: "login failed",
		StructuredFields: map[string]string{
			"src_ip": "198.51.100.9",
			"user":   "svc-backup",
		},
	}
	findings, err := d.Evaluate(rec, c.Snapshot())
	require.NoError(t, err)

	require.Len(t, findings, 1)
	assert.Equal(t, "src_ip", findings[0].Evidence["field"])
}

func TestEvaluateSameValueInTwoFields(t *testing.T) {
	c := catalogWith(t, `{"ips": ["198.51.100.9"]}`)
	d := NewDetector()

	rec := &model.LogRecord{
		ID:               "r4",
		RawMessage:       "blocked 198.51.100.9",
		StructuredFields: map[string]string{"src_ip": "198.51.100.9"},
	}
	findings, err := d.Evaluate(rec, c.Snapshot())
	require.NoError(t, err)

	// One fact per field: the raw message hit and the structured hit are
	// separate findings.
	require.Len(t, findings, 2)
	assert.Equal(t, "raw_message", findings[0].Evidence["field"])
	assert.Equal(t, "src_ip", findings[1].Evidence["field"])
}

func TestEvaluateProcessIndicator(t *testing.T) {
	c := catalogWith(t, `{"processes": ["mimikatz.exe"]}`)
	d := NewDetector()

	rec := &model.LogRecord{
		ID:               "r5",
		RawMessage:       "process started",
		StructuredFields: map[string]string{"process": "MIMIKATZ.EXE"},
	}
	findings, err := d.Evaluate(rec, c.Snapshot())
	require.NoError(t, err)

	require.Len(t, findings, 1)
	assert.Equal(t, "Known Process Indicator", findings[0].Name)
	assert.Equal(t, "mimikatz.exe", findings[0].Evidence["indicator"])
	assert.Equal(t, "process", findings[0].Evidence["field"])
}

func TestEvaluateNoHits(t *testing.T) {
	c := catalogWith(t, `{"ips": ["203.0.113.7"]}`)
	d := NewDetector()

	rec := &model.LogRecord{ID: "r6", RawMessage: "routine heartbeat from 10.0.0.1"}
	findings, err := d.Evaluate(rec, c.Snapshot())
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestEvaluateWrongContentType(t *testing.T) {
	c := store.NewCatalog(3)
	require.NoError(t, c.Commit(map[model.StoreKind]*store.StoreVersion{
		model.StoreIndicators: {
			Info:    model.StoreVersionInfo{Kind: model.StoreIndicators, Version: "bad-1"},
			Content: "not a set",
		},
	}))

	d := NewDetector()
	rec := &model.LogRecord{ID: "r7", RawMessage: "anything"}
	_, err := d.Evaluate(rec, c.Snapshot())
	assert.Error(t, err)
}
