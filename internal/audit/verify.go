package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/quorum-project/quorum/pkg/errclass"
	"github.com/quorum-project/quorum/pkg/model"
)

// VerifyChain re-reads an audit log and checks every link: each record
// must parse, hash to its own RecordHash, and carry the previous record's
// hash in PrevHash. Returns the number of verified records. A missing log
// verifies as empty; any damage is E_AUDIT_CHAIN_BROKEN naming the first
// bad line.
func VerifyChain(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	var prev model.HashValue
	count := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxAuditLine)
	for scanner.Scan() {
		lineNo := count + 1
		var rec model.AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return count, errclass.ErrAuditChainBroken.WithMessagef(
				"line %d does not parse: %v", lineNo, err)
		}
		if rec.PrevHash != prev {
			return count, errclass.ErrAuditChainBroken.WithMessagef(
				"line %d links to %s, expected %s", lineNo, short(rec.PrevHash), short(prev))
		}
		want, err := recordHash(&rec)
		if err != nil {
			return count, fmt.Errorf("hash line %d: %w", lineNo, err)
		}
		if rec.RecordHash != want {
			return count, errclass.ErrAuditChainBroken.WithMessagef(
				"line %d content does not match its hash", lineNo)
		}
		prev = rec.RecordHash
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("scan audit log: %w", err)
	}
	return count, nil
}

// Read returns every parseable record in order, newest last. Used by the
// CLI to display recent history; verification is VerifyChain's job.
func Read(path string) ([]*model.AuditRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	var records []*model.AuditRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxAuditLine)
	for scanner.Scan() {
		var rec model.AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		records = append(records, &rec)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("scan audit log: %w", err)
	}
	return records, nil
}

func short(h model.HashValue) string {
	if h == "" {
		return "(start)"
	}
	return h.Short()
}
