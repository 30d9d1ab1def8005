package diff

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorum-project/quorum/internal/integrity"
	"github.com/quorum-project/quorum/internal/statedir"
	"github.com/quorum-project/quorum/pkg/errclass"
	"github.com/quorum-project/quorum/pkg/model"
)

func newDiffer(t *testing.T) (*Differ, *statedir.StateDir) {
	t.Helper()
	sd, err := statedir.Init(t.TempDir())
	require.NoError(t, err)
	return NewDiffer(sd), sd
}

func save(t *testing.T, sd *statedir.StateDir, kind model.StoreKind, version, document string) {
	t.Helper()
	sum, err := integrity.DocumentChecksum([]byte(document))
	require.NoError(t, err)
	info := model.StoreVersionInfo{
		Kind:        kind,
		Version:     version,
		Checksum:    sum,
		InstalledAt: time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, sd.SaveVersion(info, []byte(document)))
}

func keys(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Group+"/"+e.Key)
	}
	return out
}

func TestDiffIndicators(t *testing.T) {
	d, sd := newDiffer(t)
	save(t, sd, model.StoreIndicators, "i-1",
		`{"ips":["10.0.0.8","192.0.2.1"],"domains":["evil.example"]}`)
	save(t, sd, model.StoreIndicators, "i-2",
		`{"ips":["192.0.2.1","203.0.113.9"],"domains":["evil.example"],"processes":["mimikatz.exe"]}`)

	res, err := d.Diff(model.StoreIndicators, "i-1", "i-2")
	require.NoError(t, err)

	assert.Equal(t, []string{"ips/203.0.113.9", "processes/mimikatz.exe"}, keys(res.Added))
	assert.Equal(t, []string{"ips/10.0.0.8"}, keys(res.Removed))
	assert.Empty(t, res.Changed)
	assert.Equal(t, 2, res.TotalAdded)
	assert.Equal(t, 1, res.TotalRemoved)
}

func TestDiffRulesByID(t *testing.T) {
	d, sd := newDiffer(t)
	save(t, sd, model.StoreRules, "r-1", `{"rules":[
		{"id":"R-1","title":"root login","weight":0.5,"where":{"field":"user","op":"equals","value":"root"}},
		{"id":"R-2","title":"night shift","weight":0.4,"where":{"field":"hour","op":"gte","value":22}}
	]}`)
	save(t, sd, model.StoreRules, "r-2", `{"rules":[
		{"id":"R-1","title":"root login","weight":0.9,"where":{"field":"user","op":"equals","value":"root"}},
		{"id":"R-3","title":"service stop","weight":0.6,"where":{"field":"action","op":"equals","value":"stop"}}
	]}`)

	res, err := d.Diff(model.StoreRules, "r-1", "r-2")
	require.NoError(t, err)

	assert.Equal(t, []string{"rule/R-3"}, keys(res.Added))
	assert.Equal(t, []string{"rule/R-2"}, keys(res.Removed))
	assert.Equal(t, []string{"rule/R-1"}, keys(res.Changed))
}

func TestDiffIgnoresFormatting(t *testing.T) {
	d, sd := newDiffer(t)
	save(t, sd, model.StorePatterns, "p-1",
		`{"patterns":[{"id":"T1110","name":"brute force","tests":[{"field":"raw_message","op":"contains","value":"failed password"}]}]}`)
	// Same content, different key order and whitespace.
	save(t, sd, model.StorePatterns, "p-2",
		`{"patterns": [ {"name":"brute force", "tests":[{"op":"contains","field":"raw_message","value":"failed password"}], "id":"T1110"} ]}`)

	res, err := d.Diff(model.StorePatterns, "p-1", "p-2")
	require.NoError(t, err)

	assert.Empty(t, res.Added)
	assert.Empty(t, res.Removed)
	assert.Empty(t, res.Changed)
	assert.Contains(t, res.FormatHuman(), "No changes.")
}

func TestDiffPatternsByID(t *testing.T) {
	d, sd := newDiffer(t)
	save(t, sd, model.StorePatterns, "p-1",
		`{"patterns":[{"id":"T1110","name":"brute force","tests":[{"field":"raw_message","op":"contains","value":"failed password"}]}]}`)
	save(t, sd, model.StorePatterns, "p-2",
		`{"patterns":[{"id":"T1059","name":"shell spawn","tests":[{"field":"process","op":"equals","value":"sh"}]}]}`)

	res, err := d.Diff(model.StorePatterns, "p-1", "p-2")
	require.NoError(t, err)

	assert.Equal(t, []string{"pattern/T1059"}, keys(res.Added))
	assert.Equal(t, []string{"pattern/T1110"}, keys(res.Removed))
}

func TestDiffModel(t *testing.T) {
	d, sd := newDiffer(t)
	save(t, sd, model.StoreAnomalyModel, "m-1",
		`{"format":"logistic/1","featurizer_version":1,"dim":3,"mean":[0,0,0],"scale":[1,1,1],"weights":[0.1,0.2,0.3],"intercept":-1}`)
	save(t, sd, model.StoreAnomalyModel, "m-2",
		`{"format":"logistic/1","featurizer_version":1,"dim":3,"mean":[0,0,0],"scale":[1,1,1],"weights":[0.4,0.2,0.3],"intercept":-2}`)

	res, err := d.Diff(model.StoreAnomalyModel, "m-1", "m-2")
	require.NoError(t, err)

	assert.Equal(t, []string{"model/intercept", "model/weights"}, keys(res.Changed))
	for _, e := range res.Changed {
		if e.Key == "intercept" {
			assert.Equal(t, "-1", e.Old)
			assert.Equal(t, "-2", e.New)
		}
	}
	assert.Empty(t, res.Added)
	assert.Empty(t, res.Removed)
}

func TestDiffFromNothing(t *testing.T) {
	d, sd := newDiffer(t)
	save(t, sd, model.StoreIndicators, "i-1", `{"ips":["10.0.0.8"],"domains":["evil.example"]}`)

	res, err := d.Diff(model.StoreIndicators, "", "i-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"domains/evil.example", "ips/10.0.0.8"}, keys(res.Added))
	assert.Empty(t, res.Removed)

	save(t, sd, model.StoreAnomalyModel, "m-1",
		`{"format":"logistic/1","featurizer_version":1,"dim":10,"mean":[],"scale":[],"weights":[],"intercept":0}`)
	mres, err := d.Diff(model.StoreAnomalyModel, "", "m-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"model/dim", "model/featurizer_version", "model/format"}, keys(mres.Added))
}

func TestDiffUnknownVersion(t *testing.T) {
	d, sd := newDiffer(t)
	save(t, sd, model.StoreIndicators, "i-1", `{"ips":["10.0.0.8"]}`)

	_, err := d.Diff(model.StoreIndicators, "i-1", "i-9")
	require.Error(t, err)
	assert.True(t, errclass.Is(err, errclass.ErrVersionUnknown))

	_, err = d.Diff(model.StoreIndicators, "i-9", "i-1")
	require.Error(t, err)
	assert.True(t, errclass.Is(err, errclass.ErrVersionUnknown))
}

func TestDiffUnknownKind(t *testing.T) {
	d, _ := newDiffer(t)

	_, err := d.Diff(model.StoreKind("junk"), "", "v1")
	require.Error(t, err)
	assert.True(t, errclass.Is(err, errclass.ErrNameInvalid))
}

func TestDiffTamperedVersionFails(t *testing.T) {
	d, sd := newDiffer(t)
	save(t, sd, model.StoreIndicators, "i-1", `{"ips":["10.0.0.8"]}`)
	save(t, sd, model.StoreIndicators, "i-2", `{"ips":["10.0.0.9"]}`)

	path := sd.VersionPath(model.StoreIndicators, "i-2")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	edited := strings.Replace(string(data), "10.0.0.9", "10.6.6.6", 1)
	require.NoError(t, os.WriteFile(path, []byte(edited), 0o644))

	_, err = d.Diff(model.StoreIndicators, "i-1", "i-2")
	require.Error(t, err)
	assert.True(t, errclass.Is(err, errclass.ErrChecksumMismatch))
}

func TestFormatHuman(t *testing.T) {
	d, sd := newDiffer(t)
	save(t, sd, model.StoreIndicators, "i-1", `{"ips":["10.0.0.8"]}`)
	save(t, sd, model.StoreIndicators, "i-2", `{"ips":["203.0.113.9"]}`)

	res, err := d.Diff(model.StoreIndicators, "i-1", "i-2")
	require.NoError(t, err)

	out := res.FormatHuman()
	assert.Contains(t, out, "Diff indicators i-1 -> i-2")
	assert.Contains(t, out, "+ ips 203.0.113.9")
	assert.Contains(t, out, "- ips 10.0.0.8")
}
