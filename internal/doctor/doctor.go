// Package doctor runs appliance self-checks: state directory layout,
// verify key, audit chain, persisted store integrity, stale locks,
// leftover temp files, and air-gap posture. Checks only report; nothing
// is repaired.
package doctor

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/quorum-project/quorum/internal/audit"
	"github.com/quorum-project/quorum/internal/integrity"
	"github.com/quorum-project/quorum/internal/lock"
	"github.com/quorum-project/quorum/internal/statedir"
	"github.com/quorum-project/quorum/pkg/model"
)

// Finding represents a detected issue.
type Finding struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Path        string `json:"path,omitempty"`
}

// Result contains doctor check results. Healthy means no finding was
// rated critical.
type Result struct {
	Healthy  bool      `json:"healthy"`
	Findings []Finding `json:"findings"`
}

func (r *Result) add(f Finding) {
	r.Findings = append(r.Findings, f)
	if f.Severity == "critical" {
		r.Healthy = false
	}
}

// Doctor performs appliance health checks over a state directory.
type Doctor struct {
	state *statedir.StateDir
	// verifyKeyPath is where the update verification key should live.
	verifyKeyPath string

	// dialTimeout bounds the strict-mode reachability probes.
	dialTimeout time.Duration
	// dialFn is swappable for tests.
	dialFn func(network, addr string, timeout time.Duration) (net.Conn, error)
}

// NewDoctor creates a doctor for an opened state directory.
func NewDoctor(state *statedir.StateDir, verifyKeyPath string) *Doctor {
	return &Doctor{
		state:         state,
		verifyKeyPath: verifyKeyPath,
		dialTimeout:   3 * time.Second,
		dialFn:        net.DialTimeout,
	}
}

// probeEndpoints are well-known external anycast services. On an
// air-gapped appliance every one of them must be unreachable.
var probeEndpoints = []string{"1.1.1.1:443", "8.8.8.8:53"}

// Check runs all diagnostic checks. Strict mode adds the active probe
// that external endpoints are unreachable; the default stays fully
// offline.
func (d *Doctor) Check(strict bool) (*Result, error) {
	result := &Result{Healthy: true}

	d.checkFormatVersion(result)
	d.checkVerifyKey(result)
	d.checkAuditChain(result)
	d.checkStoreVersions(result)
	d.checkStaleLocks(result)
	d.checkOrphanFiles(result)
	d.checkAirgapPosture(result)
	if strict {
		d.checkExternalUnreachable(result)
	}

	return result, nil
}

func (d *Doctor) checkFormatVersion(result *Result) {
	path := filepath.Join(d.state.Dir(), "format_version")
	data, err := os.ReadFile(path)
	if err != nil {
		result.add(Finding{
			Category:    "format",
			Description: "format_version file missing or unreadable",
			Severity:    "critical",
			Path:        path,
		})
		return
	}

	var version int
	fmt.Sscanf(string(data), "%d", &version)
	if version > statedir.FormatVersion {
		result.add(Finding{
			Category:    "format",
			Description: fmt.Sprintf("format version %d > supported %d", version, statedir.FormatVersion),
			Severity:    "critical",
		})
	}
}

func (d *Doctor) checkVerifyKey(result *Result) {
	if _, err := os.Stat(d.verifyKeyPath); os.IsNotExist(err) {
		result.add(Finding{
			Category:    "key",
			Description: "no update verification key provisioned; updates will be rejected",
			Severity:    "warning",
			Path:        d.verifyKeyPath,
		})
		return
	}
	if _, err := integrity.LoadPublicKey(d.verifyKeyPath); err != nil {
		result.add(Finding{
			Category:    "key",
			Description: fmt.Sprintf("update verification key unusable: %v", err),
			Severity:    "critical",
			Path:        d.verifyKeyPath,
		})
	}
}

func (d *Doctor) checkAuditChain(result *Result) {
	path := d.state.AuditLogPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return // nothing audited yet
	}
	count, err := audit.VerifyChain(path)
	if err != nil {
		result.add(Finding{
			Category:    "audit",
			Description: fmt.Sprintf("audit chain verification failed: %v", err),
			Severity:    "critical",
			Path:        path,
		})
		return
	}
	result.add(Finding{
		Category:    "audit",
		Description: fmt.Sprintf("audit chain intact (%d records)", count),
		Severity:    "info",
		Path:        path,
	})
}

// checkStoreVersions verifies every persisted version loads and matches
// its recorded checksum, and that ACTIVE markers point at files that
// exist. A broken active version is critical; a broken retained one
// only costs a rollback target.
func (d *Doctor) checkStoreVersions(result *Result) {
	for _, kind := range model.StoreKinds {
		marker, err := d.state.Active(kind)
		if err != nil {
			result.add(Finding{
				Category:    "store",
				Description: fmt.Sprintf("cannot read ACTIVE marker for %s: %v", kind, err),
				Severity:    "critical",
			})
			continue
		}

		activeVersion := ""
		if marker != nil {
			activeVersion = marker.Version
			if !d.state.HasVersion(kind, marker.Version) {
				result.add(Finding{
					Category:    "store",
					Description: fmt.Sprintf("ACTIVE marker for %s names missing version %s", kind, marker.Version),
					Severity:    "critical",
				})
			}
			if marker.PrevVersion != "" && !d.state.HasVersion(kind, marker.PrevVersion) {
				result.add(Finding{
					Category:    "store",
					Description: fmt.Sprintf("rollback target %s/%s is missing", kind, marker.PrevVersion),
					Severity:    "warning",
				})
			}
		}

		infos, err := d.state.ListVersions(kind)
		if err != nil {
			result.add(Finding{
				Category:    "store",
				Description: fmt.Sprintf("cannot list versions for %s: %v", kind, err),
				Severity:    "error",
			})
			continue
		}
		for _, info := range infos {
			if _, err := d.state.LoadVersion(kind, info.Version); err != nil {
				severity := "error"
				if info.Version == activeVersion {
					severity = "critical"
				}
				result.add(Finding{
					Category:    "store",
					Description: fmt.Sprintf("version %s/%s does not verify: %v", kind, info.Version, err),
					Severity:    severity,
					Path:        d.state.VersionPath(kind, info.Version),
				})
			}
		}
	}
}

func (d *Doctor) checkStaleLocks(result *Result) {
	mgr := lock.NewManager(d.state.LocksDir(), model.LockPolicy{})
	for _, kind := range model.StoreKinds {
		state, rec, err := mgr.Status(kind)
		if err != nil {
			result.add(Finding{
				Category:    "lock",
				Description: fmt.Sprintf("cannot read lock for %s: %v", kind, err),
				Severity:    "error",
			})
			continue
		}
		if state == model.LockStateExpired {
			result.add(Finding{
				Category:    "lock",
				Description: fmt.Sprintf("expired update lease on %s (since %s); next update reclaims it", kind, rec.ExpiresAt.Format(time.RFC3339)),
				Severity:    "info",
			})
		}
	}
}

// checkOrphanFiles reports leftovers from interrupted operations:
// staging scratch files, atomic-write temp files, and executed-but-kept
// gc plans.
func (d *Doctor) checkOrphanFiles(result *Result) {
	if entries, err := os.ReadDir(d.state.StagingDir()); err == nil {
		for _, entry := range entries {
			result.add(Finding{
				Category:    "staging",
				Description: fmt.Sprintf("orphan staging file: %s", entry.Name()),
				Severity:    "warning",
				Path:        filepath.Join(d.state.StagingDir(), entry.Name()),
			})
		}
	}

	if entries, err := os.ReadDir(d.state.GCDir()); err == nil {
		for _, entry := range entries {
			if !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			result.add(Finding{
				Category:    "gc",
				Description: fmt.Sprintf("pending gc plan: %s", entry.Name()),
				Severity:    "info",
				Path:        filepath.Join(d.state.GCDir(), entry.Name()),
			})
		}
	}

	filepath.Walk(d.state.Dir(), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if strings.HasPrefix(info.Name(), ".quorum-tmp-") {
			result.add(Finding{
				Category:    "tmp",
				Description: fmt.Sprintf("orphan temp file: %s", info.Name()),
				Severity:    "info",
				Path:        path,
			})
		}
		return nil
	})
}

// checkAirgapPosture enumerates non-loopback interfaces that are up and
// addressed. Their presence is not a failure, but an air-gapped
// appliance operator should recognize every one.
func (d *Doctor) checkAirgapPosture(result *Result) {
	ifaces, err := net.Interfaces()
	if err != nil {
		result.add(Finding{
			Category:    "airgap",
			Description: fmt.Sprintf("cannot enumerate network interfaces: %v", err),
			Severity:    "error",
		})
		return
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}
		texts := make([]string, 0, len(addrs))
		for _, a := range addrs {
			texts = append(texts, a.String())
		}
		result.add(Finding{
			Category:    "airgap",
			Description: fmt.Sprintf("non-loopback interface %s is up with %s", iface.Name, strings.Join(texts, ", ")),
			Severity:    "warning",
		})
	}
}

// checkExternalUnreachable actively probes well-known external
// endpoints. Any successful connection means the appliance is not
// air-gapped.
func (d *Doctor) checkExternalUnreachable(result *Result) {
	for _, addr := range probeEndpoints {
		conn, err := d.dialFn("tcp", addr, d.dialTimeout)
		if err != nil {
			continue
		}
		conn.Close()
		result.add(Finding{
			Category:    "airgap",
			Description: fmt.Sprintf("external endpoint %s is reachable; appliance is not air-gapped", addr),
			Severity:    "critical",
		})
	}
}

