package quorum

import (
	"context"
	"crypto/rsa"
	"fmt"
	"os"
	"path/filepath"

	"github.com/quorum-project/quorum/internal/audit"
	"github.com/quorum-project/quorum/internal/diff"
	"github.com/quorum-project/quorum/internal/doctor"
	"github.com/quorum-project/quorum/internal/engine"
	"github.com/quorum-project/quorum/internal/gc"
	"github.com/quorum-project/quorum/internal/integrity"
	"github.com/quorum-project/quorum/internal/lock"
	"github.com/quorum-project/quorum/internal/statedir"
	"github.com/quorum-project/quorum/internal/store"
	"github.com/quorum-project/quorum/internal/update"
	"github.com/quorum-project/quorum/pkg/config"
	"github.com/quorum-project/quorum/pkg/errclass"
	"github.com/quorum-project/quorum/pkg/logging"
	"github.com/quorum-project/quorum/pkg/metrics"
	"github.com/quorum-project/quorum/pkg/model"
	"github.com/quorum-project/quorum/pkg/webhook"
)

// Client provides high-level appliance operations over one state
// directory.
type Client struct {
	state    *statedir.StateDir
	cfg      *config.Config
	catalog  *store.Catalog
	detect   *engine.Engine
	updates  *update.Manager
	auditor  *audit.FileAppender
	metrics  *metrics.Metrics
	webhooks *webhook.Client
}

// InitOptions configures state directory initialization.
type InitOptions struct {
	// Actor is recorded in the statedir_init audit record.
	Actor string
	// Config seeds .quorum/config.yaml; nil writes the defaults.
	Config *config.Config
}

// GCOptions configures retention pruning.
type GCOptions struct {
	// DryRun plans without deleting anything.
	DryRun bool
	Actor  string
}

// Init creates a new state directory at path and opens a client on it.
// Fails if one already exists there.
func Init(path string, opts InitOptions) (*Client, error) {
	sd, err := statedir.Init(path)
	if err != nil {
		return nil, fmt.Errorf("quorum init: %w", err)
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := config.Save(sd.Root, cfg); err != nil {
		return nil, fmt.Errorf("quorum init: %w", err)
	}

	c, err := assemble(sd, cfg)
	if err != nil {
		return nil, err
	}
	if err := c.auditor.Append(&model.AuditRecord{
		Actor:   opts.Actor,
		Action:  model.ActionStateDirInit,
		Outcome: "initialized",
		Details: map[string]any{"appliance_id": sd.ApplianceID},
	}); err != nil {
		return nil, fmt.Errorf("quorum init: audit: %w", err)
	}
	return c, nil
}

// Open opens the state directory at or above path and loads the
// persisted store versions into the catalog.
func Open(path string) (*Client, error) {
	sd, err := statedir.Discover(path)
	if err != nil {
		return nil, fmt.Errorf("quorum open: %w", err)
	}
	cfg, err := config.Load(sd.Root)
	if err != nil {
		return nil, fmt.Errorf("quorum open: %w", err)
	}
	return assemble(sd, cfg)
}

// OpenOrInit opens an existing state directory, or initializes a new
// one at path if none exists. This is the entry point for the operator
// controllers, which own their mounted state volume.
func OpenOrInit(path string, opts InitOptions) (*Client, error) {
	dir := filepath.Join(path, statedir.DirName)
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return Open(path)
	}
	return Init(path, opts)
}

func assemble(sd *statedir.StateDir, cfg *config.Config) (*Client, error) {
	logging.Configure(cfg.Logging.Level, cfg.Logging.Format)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}
	var hooks *webhook.Client
	if len(cfg.Webhooks) > 0 {
		hooks = webhook.NewClient(webhook.FromConfig(cfg.Webhooks))
	}

	catalog := store.NewCatalog(cfg.Update.Retention.KeepVersions)
	auditor := audit.NewFileAppender(sd.AuditLogPath())
	locks := lock.NewManager(sd.LocksDir(), model.LockPolicy{
		DefaultLeaseTTL: cfg.Update.LeaseTTLDuration(),
	})

	verifyKey, err := loadVerifyKey(sd, cfg)
	if err != nil {
		return nil, err
	}

	updates := update.NewManager(update.Options{
		Catalog:     catalog,
		State:       sd,
		Locks:       locks,
		Audit:       auditor,
		VerifyKey:   verifyKey,
		Config:      cfg.Update,
		Metrics:     m,
		Webhooks:    hooks,
		ApplianceID: sd.ApplianceID,
	})
	if err := updates.LoadPersisted(); err != nil {
		return nil, fmt.Errorf("load persisted stores: %w", err)
	}

	return &Client{
		state:    sd,
		cfg:      cfg,
		catalog:  catalog,
		detect:   engine.New(catalog, cfg.Detection, engine.WithMetrics(m)),
		updates:  updates,
		auditor:  auditor,
		metrics:  m,
		webhooks: hooks,
	}, nil
}

// loadVerifyKey reads the provisioned update verification key. A
// missing key is not an error here: submissions fail with E_KEY_INVALID
// and doctor reports the gap.
func loadVerifyKey(sd *statedir.StateDir, cfg *config.Config) (*rsa.PublicKey, error) {
	path := sd.VerifyKeyPath(cfg.Update.VerifyKeyPath)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	key, err := integrity.LoadPublicKey(path)
	if err != nil {
		return nil, errclass.ErrKeyInvalid.WithMessagef("verify key %s: %v", path, err)
	}
	return key, nil
}

// Close flushes and stops the webhook worker. The client must not be
// used afterwards.
func (c *Client) Close() error {
	if c.webhooks != nil {
		return c.webhooks.Close()
	}
	return nil
}

// Submit verifies, stages, and commits one update package.
func (c *Client) Submit(_ context.Context, pkgBytes []byte, actor string) (*model.UpdateResult, error) {
	return c.updates.Submit(pkgBytes, actor)
}

// SubmitFile reads a package from disk and submits it.
func (c *Client) SubmitFile(ctx context.Context, path, actor string) (*model.UpdateResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read package %s: %w", path, err)
	}
	return c.Submit(ctx, data, actor)
}

// Watch submits *.qup packages dropped into dir until ctx is done.
func (c *Client) Watch(ctx context.Context, dir, actor string, notify func(update.WatchResult)) error {
	return c.updates.Watch(ctx, dir, actor, notify)
}

// Rollback restores the previous (or an explicitly named retained)
// version of one store kind.
func (c *Client) Rollback(_ context.Context, kind model.StoreKind, target, actor string) (*model.RollbackResult, error) {
	return c.updates.Rollback(kind, target, actor)
}

// RollbackAll restores the previous version of every provisioned kind.
func (c *Client) RollbackAll(_ context.Context, actor string) ([]*model.RollbackResult, error) {
	return c.updates.RollbackAll(actor)
}

// Status reports per-kind store state plus recent update attempts.
func (c *Client) Status(_ context.Context, attempts int) (*update.Status, error) {
	return c.updates.Status(attempts)
}

// History returns terminal update attempts, newest first. Pass
// limit <= 0 for all of them.
func (c *Client) History(_ context.Context, limit int) ([]model.UpdateResult, error) {
	return c.updates.RecentAttempts(limit)
}

// Diff compares two persisted versions of one store kind. An empty
// fromVersion diffs from nothing.
func (c *Client) Diff(_ context.Context, kind model.StoreKind, fromVersion, toVersion string) (*diff.Result, error) {
	return diff.NewDiffer(c.state).Diff(kind, fromVersion, toVersion)
}

// GC plans retention pruning and, unless DryRun is set, runs the plan.
func (c *Client) GC(_ context.Context, opts GCOptions) (*model.GCPlan, *model.GCResult, error) {
	collector, err := c.collector()
	if err != nil {
		return nil, nil, err
	}
	plan, err := collector.Plan(opts.Actor)
	if err != nil {
		return nil, nil, fmt.Errorf("gc plan: %w", err)
	}
	if opts.DryRun {
		return plan, nil, nil
	}
	res, err := collector.Run(plan.PlanID, opts.Actor)
	if err != nil {
		return plan, nil, fmt.Errorf("gc run: %w", err)
	}
	return plan, res, nil
}

// RunGC executes a previously planned gc by ID.
func (c *Client) RunGC(_ context.Context, planID, actor string) (*model.GCResult, error) {
	collector, err := c.collector()
	if err != nil {
		return nil, err
	}
	return collector.Run(planID, actor)
}

func (c *Client) collector() (*gc.Collector, error) {
	return gc.NewCollector(gc.Options{
		State:   c.state,
		Catalog: c.catalog,
		Audit:   c.auditor,
		Policy: model.RetentionPolicy{
			KeepVersions: c.cfg.Update.Retention.KeepVersions,
			KeepMinAge:   c.cfg.Update.Retention.KeepMinAgeDuration(),
		},
		Metrics:     c.metrics,
		Webhooks:    c.webhooks,
		ApplianceID: c.state.ApplianceID,
	})
}

// VerifyAudit checks the audit log hash chain and returns the number of
// verified records.
func (c *Client) VerifyAudit(_ context.Context) (int, error) {
	return audit.VerifyChain(c.state.AuditLogPath())
}

// AuditLog returns the most recent limit audit records in chain order.
// limit <= 0 returns the whole log.
func (c *Client) AuditLog(_ context.Context, limit int) ([]*model.AuditRecord, error) {
	recs, err := audit.Read(c.state.AuditLogPath())
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	return recs, nil
}

// Doctor runs the appliance self-checks.
func (c *Client) Doctor(_ context.Context, strict bool) (*doctor.Result, error) {
	return doctor.NewDoctor(c.state, c.state.VerifyKeyPath(c.cfg.Update.VerifyKeyPath)).Check(strict)
}

// Root returns the directory containing the state directory.
func (c *Client) Root() string { return c.state.Root }

// ApplianceID identifies this state directory in audit records.
func (c *Client) ApplianceID() string { return c.state.ApplianceID }

// Config returns the loaded configuration.
func (c *Client) Config() *config.Config { return c.cfg }

// Metrics exposes the metrics registry, or nil when disabled.
func (c *Client) Metrics() *metrics.Metrics { return c.metrics }
