// Package gc prunes persisted store versions that retention no longer
// protects. The active version of each kind, its default rollback
// target, everything in the catalog's retained window, and versions
// younger than the minimum age are never pruned. Version files orphaned
// by failed commits fall outside all of those and are reaped here once
// they age out.
//
// Pruning is two-phase: Plan writes an explicit plan file, Run executes
// it after re-checking the protected set, so an update or rollback that
// lands between the phases can never lose a live target.
package gc

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quorum-project/quorum/internal/audit"
	"github.com/quorum-project/quorum/internal/statedir"
	"github.com/quorum-project/quorum/internal/store"
	"github.com/quorum-project/quorum/pkg/fsutil"
	"github.com/quorum-project/quorum/pkg/logging"
	"github.com/quorum-project/quorum/pkg/metrics"
	"github.com/quorum-project/quorum/pkg/model"
	"github.com/quorum-project/quorum/pkg/nameutil"
	"github.com/quorum-project/quorum/pkg/uuidutil"
	"github.com/quorum-project/quorum/pkg/webhook"
)

// Options configures a Collector. State and Catalog are required;
// Audit defaults to an in-memory sink and the rest may be nil.
type Options struct {
	State    *statedir.StateDir
	Catalog  *store.Catalog
	Audit    audit.Sink
	Policy   model.RetentionPolicy
	Metrics  *metrics.Metrics
	Webhooks *webhook.Client
	// ApplianceID tags webhook deliveries.
	ApplianceID string
}

// Collector plans and runs retention pruning over the state directory.
type Collector struct {
	state       *statedir.StateDir
	catalog     *store.Catalog
	audit       audit.Sink
	policy      model.RetentionPolicy
	metrics     *metrics.Metrics
	webhooks    *webhook.Client
	applianceID string
	nowFn       func() time.Time
}

// NewCollector validates the retention policy and returns a Collector.
func NewCollector(opts Options) (*Collector, error) {
	if opts.State == nil {
		return nil, fmt.Errorf("gc: state directory is required")
	}
	if opts.Catalog == nil {
		return nil, fmt.Errorf("gc: catalog is required")
	}
	if err := opts.Policy.Validate(); err != nil {
		return nil, err
	}
	sink := opts.Audit
	if sink == nil {
		sink = &audit.MemorySink{}
	}
	return &Collector{
		state:       opts.State,
		catalog:     opts.Catalog,
		audit:       sink,
		policy:      opts.Policy,
		metrics:     opts.Metrics,
		webhooks:    opts.Webhooks,
		applianceID: opts.ApplianceID,
		nowFn:       time.Now,
	}, nil
}

func (c *Collector) now() time.Time { return c.nowFn().UTC() }

// Plan sweeps every store kind, writes the resulting plan to disk, and
// audits it. The plan names exactly the versions Run may delete.
func (c *Collector) Plan(actor string) (*model.GCPlan, error) {
	plan := &model.GCPlan{
		PlanID:          uuidutil.NewV4(),
		CreatedAt:       c.now(),
		Protected:       make(map[model.StoreKind]int),
		RetentionPolicy: c.policy,
	}

	for _, kind := range model.StoreKinds {
		kept, candidates, err := c.sweepKind(kind)
		if err != nil {
			return nil, fmt.Errorf("sweep %s: %w", kind, err)
		}
		plan.Protected[kind] = kept
		plan.ToDelete = append(plan.ToDelete, candidates...)
	}
	for _, cand := range plan.ToDelete {
		plan.ReclaimableBytes += cand.Bytes
	}

	if err := c.writePlan(plan); err != nil {
		return nil, fmt.Errorf("write gc plan: %w", err)
	}
	c.auditAppend(&model.AuditRecord{
		Actor:   actor,
		Action:  model.ActionGCPlan,
		Outcome: "planned",
		Details: map[string]any{
			"plan_id":           plan.PlanID,
			"to_delete":         len(plan.ToDelete),
			"reclaimable_bytes": plan.ReclaimableBytes,
		},
	})
	return plan, nil
}

// Run executes a previously written plan. The protected set is
// recomputed first and a plan naming a now-protected version is
// rejected whole, so gc cannot race a commit or rollback into deleting
// a live target. Versions already gone are skipped, not errors.
func (c *Collector) Run(planID, actor string) (*model.GCResult, error) {
	plan, err := c.loadPlan(planID)
	if err != nil {
		return nil, err
	}

	protected := make(map[model.StoreKind]map[string]bool, len(model.StoreKinds))
	for _, kind := range model.StoreKinds {
		p, err := c.protectedVersions(kind)
		if err != nil {
			return nil, fmt.Errorf("recompute protected set for %s: %w", kind, err)
		}
		protected[kind] = p
	}
	for _, cand := range plan.ToDelete {
		if protected[cand.Kind][cand.Version] {
			return nil, fmt.Errorf("gc plan %s is stale: %s/%s is now protected, re-plan",
				planID, cand.Kind, cand.Version)
		}
	}

	result := &model.GCResult{PlanID: plan.PlanID}
	for _, cand := range plan.ToDelete {
		if !c.state.HasVersion(cand.Kind, cand.Version) {
			continue
		}
		if err := c.state.RemoveVersion(cand.Kind, cand.Version); err != nil {
			logging.Warn("gc: could not remove version", map[string]any{
				"kind": string(cand.Kind), "version": cand.Version, "error": err.Error(),
			})
			continue
		}
		result.Deleted = append(result.Deleted, cand)
		result.ReclaimedBytes += cand.Bytes
	}
	result.CompletedAt = c.now()

	c.deletePlan(planID)
	c.auditAppend(&model.AuditRecord{
		Actor:   actor,
		Action:  model.ActionGCRun,
		Outcome: "completed",
		Details: map[string]any{
			"plan_id":         plan.PlanID,
			"deleted":         len(result.Deleted),
			"reclaimed_bytes": result.ReclaimedBytes,
		},
	})
	c.updateRetainedMetrics()
	if c.webhooks != nil {
		_ = c.webhooks.SendGCRun(c.applianceID, len(result.Deleted), result.ReclaimedBytes, true)
	}
	return result, nil
}

// Collect is plan-then-run in one call, for the CLI's one-shot mode.
func (c *Collector) Collect(actor string) (*model.GCResult, error) {
	plan, err := c.Plan(actor)
	if err != nil {
		return nil, err
	}
	return c.Run(plan.PlanID, actor)
}

// sweepKind partitions one kind's persisted versions into protected and
// prunable. Returns the protected count and the prune candidates.
func (c *Collector) sweepKind(kind model.StoreKind) (int, []model.GCCandidate, error) {
	infos, err := c.state.ListVersions(kind)
	if err != nil {
		return 0, nil, err
	}
	protected, err := c.protectedVersions(kind)
	if err != nil {
		return 0, nil, err
	}

	cutoff := c.now().Add(-c.policy.KeepMinAge)
	kept := 0
	var candidates []model.GCCandidate
	for _, info := range infos {
		if protected[info.Version] {
			kept++
			continue
		}
		if c.policy.KeepMinAge > 0 && info.InstalledAt.After(cutoff) {
			kept++
			continue
		}
		candidates = append(candidates, model.GCCandidate{
			Kind:    kind,
			Version: info.Version,
			Bytes:   c.versionBytes(kind, info.Version),
		})
	}
	return kept, candidates, nil
}

// protectedVersions unions the catalog's view (active, retained window,
// rollback target) with the on-disk ACTIVE marker, which may be ahead
// of a catalog the caller never seeded.
func (c *Collector) protectedVersions(kind model.StoreKind) (map[string]bool, error) {
	p := make(map[string]bool)
	st := c.catalog.Status(kind)
	if st.Active != nil {
		p[st.Active.Version] = true
	}
	for _, r := range st.Retained {
		p[r.Version] = true
	}
	if st.RollbackTarget != "" {
		p[st.RollbackTarget] = true
	}

	marker, err := c.state.Active(kind)
	if err != nil {
		return nil, err
	}
	if marker != nil {
		if marker.Version != "" {
			p[marker.Version] = true
		}
		if marker.PrevVersion != "" {
			p[marker.PrevVersion] = true
		}
	}
	return p, nil
}

func (c *Collector) versionBytes(kind model.StoreKind, version string) int64 {
	fi, err := os.Stat(c.state.VersionPath(kind, version))
	if err != nil {
		return 0
	}
	return fi.Size()
}

func (c *Collector) planPath(planID string) string {
	return filepath.Join(c.state.GCDir(), planID+".json")
}

func (c *Collector) writePlan(plan *model.GCPlan) error {
	if err := os.MkdirAll(c.state.GCDir(), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.AtomicWrite(c.planPath(plan.PlanID), data, 0o644)
}

func (c *Collector) loadPlan(planID string) (*model.GCPlan, error) {
	// Plan IDs come from operator input; keep them out of path tricks.
	if err := nameutil.ValidateVersion(planID); err != nil {
		return nil, fmt.Errorf("invalid gc plan id %q", planID)
	}
	data, err := os.ReadFile(c.planPath(planID))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("gc plan %s not found (run plan first)", planID)
	}
	if err != nil {
		return nil, fmt.Errorf("read gc plan %s: %w", planID, err)
	}
	var plan model.GCPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse gc plan %s: %w", planID, err)
	}
	return &plan, nil
}

// Plans lists the IDs of pending plans, oldest first.
func (c *Collector) Plans() ([]string, error) {
	entries, err := os.ReadDir(c.state.GCDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		ids = append(ids, name[:len(name)-len(".json")])
	}
	return ids, nil
}

func (c *Collector) deletePlan(planID string) {
	if err := os.Remove(c.planPath(planID)); err != nil && !os.IsNotExist(err) {
		logging.Warn("gc: could not remove executed plan", map[string]any{
			"plan_id": planID, "error": err.Error(),
		})
	}
}

func (c *Collector) updateRetainedMetrics() {
	if c.metrics == nil {
		return
	}
	for _, kind := range model.StoreKinds {
		st := c.catalog.Status(kind)
		c.metrics.SetRetainedVersions(string(kind), len(st.Retained))
	}
}

func (c *Collector) auditAppend(rec *model.AuditRecord) {
	rec.Timestamp = c.now()
	if err := c.audit.Append(rec); err != nil {
		logging.ErrorErr("append audit record", err, map[string]any{
			"action": string(rec.Action),
		})
	}
}
