package audit_test

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorum-project/quorum/internal/audit"
	"github.com/quorum-project/quorum/pkg/errclass"
	"github.com/quorum-project/quorum/pkg/model"
)

func readRecords(t *testing.T, path string) []model.AuditRecord {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var records []model.AuditRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec model.AuditRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}
	require.NoError(t, scanner.Err())
	return records
}

func TestFileAppender_AppendCreatesJSONL(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")

	appender := audit.NewFileAppender(logPath)
	err := appender.Append(&model.AuditRecord{
		Actor:          "operator",
		Action:         model.ActionUpdateReceived,
		AttemptID:      "1708300800000-a3f7c1b2",
		PackageVersion: "2025.08",
		StoreKinds:     []model.StoreKind{model.StoreIndicators},
		Outcome:        "ok",
	})
	require.NoError(t, err)

	records := readRecords(t, logPath)
	require.Len(t, records, 1)
	assert.Equal(t, model.ActionUpdateReceived, records[0].Action)
	assert.Equal(t, "operator", records[0].Actor)
	assert.Equal(t, model.HashValue(""), records[0].PrevHash)
	assert.NotEmpty(t, records[0].RecordHash)
	assert.False(t, records[0].Timestamp.IsZero())
}

func TestFileAppender_HashChain(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	appender := audit.NewFileAppender(logPath)

	require.NoError(t, appender.Append(&model.AuditRecord{Action: model.ActionUpdateReceived}))
	require.NoError(t, appender.Append(&model.AuditRecord{Action: model.ActionUpdateVerified}))
	require.NoError(t, appender.Append(&model.AuditRecord{Action: model.ActionUpdateCommitted}))

	records := readRecords(t, logPath)
	require.Len(t, records, 3)
	assert.Equal(t, model.HashValue(""), records[0].PrevHash)
	assert.Equal(t, records[0].RecordHash, records[1].PrevHash)
	assert.Equal(t, records[1].RecordHash, records[2].PrevHash)

	last, err := appender.LastRecordHash()
	require.NoError(t, err)
	assert.Equal(t, records[2].RecordHash, last)
}

func TestFileAppender_ConcurrentAppends(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	appender := audit.NewFileAppender(logPath)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = appender.Append(&model.AuditRecord{Action: model.ActionGCRun})
		}()
	}
	wg.Wait()

	count, err := audit.VerifyChain(logPath)
	require.NoError(t, err)
	assert.Equal(t, 20, count)
}

func TestVerifyChain(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	appender := audit.NewFileAppender(logPath)

	for i := 0; i < 5; i++ {
		require.NoError(t, appender.Append(&model.AuditRecord{Action: model.ActionRollback}))
	}

	count, err := audit.VerifyChain(logPath)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestVerifyChainMissingLog(t *testing.T) {
	count, err := audit.VerifyChain(filepath.Join(t.TempDir(), "absent.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestVerifyChainDetectsEdit(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	appender := audit.NewFileAppender(logPath)

	require.NoError(t, appender.Append(&model.AuditRecord{Action: model.ActionUpdateReceived, Actor: "alice"}))
	require.NoError(t, appender.Append(&model.AuditRecord{Action: model.ActionUpdateCommitted}))

	// Rewrite history: change the actor on the first line.
	raw, err := os.ReadFile(logPath)
	require.NoError(t, err)
	edited := strings.Replace(string(raw), "alice", "mallory", 1)
	require.NoError(t, os.WriteFile(logPath, []byte(edited), 0o644))

	count, err := audit.VerifyChain(logPath)
	require.Error(t, err)
	assert.True(t, errclass.Is(err, errclass.ErrAuditChainBroken))
	assert.Equal(t, 0, count)
}

func TestVerifyChainDetectsTruncationInMiddle(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	appender := audit.NewFileAppender(logPath)

	for i := 0; i < 3; i++ {
		require.NoError(t, appender.Append(&model.AuditRecord{Action: model.ActionGCPlan}))
	}

	// Drop the middle line: the third record now links to a hash that is
	// not its predecessor's.
	raw, err := os.ReadFile(logPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, 3)
	tampered := lines[0] + "\n" + lines[2] + "\n"
	require.NoError(t, os.WriteFile(logPath, []byte(tampered), 0o644))

	count, err := audit.VerifyChain(logPath)
	require.Error(t, err)
	assert.True(t, errclass.Is(err, errclass.ErrAuditChainBroken))
	assert.Equal(t, 1, count)
}

func TestMemorySinkChains(t *testing.T) {
	sink := &audit.MemorySink{}
	require.NoError(t, sink.Append(&model.AuditRecord{Action: model.ActionUpdateReceived}))
	require.NoError(t, sink.Append(&model.AuditRecord{Action: model.ActionUpdateFailed}))

	require.Len(t, sink.Records, 2)
	assert.Equal(t, sink.Records[0].RecordHash, sink.Records[1].PrevHash)
	assert.Equal(t,
		[]model.AuditAction{model.ActionUpdateReceived, model.ActionUpdateFailed},
		sink.Actions())
}

func TestReadReturnsRecordsInOrder(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	appender := audit.NewFileAppender(logPath)

	require.NoError(t, appender.Append(&model.AuditRecord{Action: model.ActionUpdateReceived}))
	require.NoError(t, appender.Append(&model.AuditRecord{Action: model.ActionUpdateVerified}))

	records, err := audit.Read(logPath)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, model.ActionUpdateReceived, records[0].Action)
	assert.Equal(t, model.ActionUpdateVerified, records[1].Action)
}
