// Package audit persists the tamper-evident record of every update,
// rollback, and maintenance action. Records form a hash chain in a JSONL
// file: each record's hash covers its content plus its predecessor's
// hash, so edits and truncation are detectable offline.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/quorum-project/quorum/pkg/jsonutil"
	"github.com/quorum-project/quorum/pkg/model"
)

// Sink receives audit records. The update manager writes through this
// interface so tests can capture records in memory.
type Sink interface {
	Append(rec *model.AuditRecord) error
}

// FileAppender appends hash-chained audit records to a JSONL file. Safe
// for concurrent use in-process (mutex) and across processes (flock).
type FileAppender struct {
	path string
	mu   sync.Mutex
}

// NewFileAppender creates an appender writing to path. The file and its
// directory are created on first append.
func NewFileAppender(path string) *FileAppender {
	return &FileAppender{path: path}
}

// Append chains and writes one record. The record's PrevHash and
// RecordHash are computed here; a zero Timestamp is stamped with the
// current time.
func (a *FileAppender) Append(rec *model.AuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}

	file, err := os.OpenFile(a.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	if err := lockFile(file); err != nil {
		return fmt.Errorf("lock audit log: %w", err)
	}
	defer unlockFile(file)

	prevHash, err := lastRecordHash(file)
	if err != nil {
		return fmt.Errorf("find last record hash: %w", err)
	}

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	rec.PrevHash = prevHash
	hash, err := recordHash(rec)
	if err != nil {
		return fmt.Errorf("compute record hash: %w", err)
	}
	rec.RecordHash = hash

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	if _, err := file.Seek(0, 2); err != nil {
		return fmt.Errorf("seek to end: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync audit log: %w", err)
	}
	return nil
}

// LastRecordHash returns the hash of the newest record, or empty for a
// missing or empty log.
func (a *FileAppender) LastRecordHash() (model.HashValue, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	file, err := os.Open(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	return lastRecordHash(file)
}

// lastRecordHash scans for the newest parseable record. Malformed lines
// are skipped here so one bad line cannot stop all future auditing;
// VerifyChain is where damage gets reported.
func lastRecordHash(file *os.File) (model.HashValue, error) {
	if _, err := file.Seek(0, 0); err != nil {
		return "", fmt.Errorf("seek to start: %w", err)
	}

	var last model.HashValue
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxAuditLine)
	for scanner.Scan() {
		var rec model.AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		last = rec.RecordHash
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan audit log: %w", err)
	}
	return last, nil
}

// maxAuditLine bounds a single audit line; details maps are small.
const maxAuditLine = 1 << 20

// recordHash hashes the canonical encoding of the record with RecordHash
// cleared.
func recordHash(rec *model.AuditRecord) (model.HashValue, error) {
	clone := *rec
	clone.RecordHash = ""

	data, err := jsonutil.CanonicalMarshal(&clone)
	if err != nil {
		return "", fmt.Errorf("canonical marshal: %w", err)
	}
	sum := sha256.Sum256(data)
	return model.HashValue(hex.EncodeToString(sum[:])), nil
}

// MemorySink collects records for tests and dry runs.
type MemorySink struct {
	mu      sync.Mutex
	Records []*model.AuditRecord
}

// Append implements Sink.
func (m *MemorySink) Append(rec *model.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if len(m.Records) > 0 {
		rec.PrevHash = m.Records[len(m.Records)-1].RecordHash
	}
	hash, err := recordHash(rec)
	if err != nil {
		return err
	}
	rec.RecordHash = hash
	m.Records = append(m.Records, rec)
	return nil
}

// Actions returns the appended action names in order, for assertions.
func (m *MemorySink) Actions() []model.AuditAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.AuditAction, len(m.Records))
	for i, rec := range m.Records {
		out[i] = rec.Action
	}
	return out
}
