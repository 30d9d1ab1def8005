// Package engine runs the four detectors against log records and fuses
// their findings into one severity verdict per record. Evaluation is pure:
// the same record against the same store versions always produces the
// same verdict core, which is what makes verdicts cacheable and audits
// reproducible.
package engine

import (
	"runtime"
	"sync"
	"time"

	"github.com/quorum-project/quorum/internal/detector"
	"github.com/quorum-project/quorum/internal/store"
	"github.com/quorum-project/quorum/pkg/config"
	"github.com/quorum-project/quorum/pkg/logging"
	"github.com/quorum-project/quorum/pkg/metrics"
	"github.com/quorum-project/quorum/pkg/model"
)

// Engine evaluates records against the store catalog. Safe for concurrent
// use: each evaluation reads one immutable snapshot.
type Engine struct {
	catalog   *store.Catalog
	detectors []detector.Detector
	fusion    config.FusionConfig
	workers   int
	cache     *verdictCache
	metrics   *metrics.Metrics

	// nowFn stamps ComputedAt; injectable so tests can pin time.
	nowFn func() time.Time
}

// Option tweaks engine construction.
type Option func(*Engine)

// WithClock replaces the wall clock, pinning ComputedAt in tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.nowFn = now }
}

// WithMetrics attaches a metrics registry; nil is allowed and means none.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New builds an engine over a catalog using the detection configuration.
func New(catalog *store.Catalog, cfg config.DetectionConfig, opts ...Option) *Engine {
	e := &Engine{
		catalog:   catalog,
		detectors: detector.NewAll(detector.Options{AnomalyFloor: cfg.AnomalyFloor}),
		fusion:    cfg.Fusion,
		workers:   cfg.BatchWorkers,
		nowFn:     time.Now,
	}
	if e.workers <= 0 {
		e.workers = runtime.NumCPU()
	}
	if cfg.VerdictCacheSize > 0 {
		e.cache = newVerdictCache(cfg.VerdictCacheSize)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Analyze produces the verdict for one record against the current store
// snapshot. Detector problems degrade coverage, they never abort: a store
// that has never been provisioned or a detector that errors is reported
// in verdict.Warnings and the remaining detectors still run.
func (e *Engine) Analyze(rec *model.LogRecord) *model.Verdict {
	snap := e.catalog.Snapshot()

	if e.cache != nil {
		if v, ok := e.cache.get(rec, snap.Fingerprint()); ok {
			e.metrics.RecordCacheHit()
			return v
		}
		e.metrics.RecordCacheMiss()
	}

	verdict := e.evaluate(rec, snap)

	if e.cache != nil {
		e.cache.put(rec, snap.Fingerprint(), verdict)
	}
	return verdict
}

func (e *Engine) evaluate(rec *model.LogRecord, snap *store.VersionSet) *model.Verdict {
	start := time.Now()

	var findings []model.Finding
	var warnings []string

	for _, d := range e.detectors {
		kind := d.Kind()
		if _, ok := snap.Get(model.StoreFor(kind)); !ok {
			warnings = append(warnings, string(kind)+": store not provisioned")
			e.metrics.RecordDegraded(string(kind))
			continue
		}
		fs, err := d.Evaluate(rec, snap)
		if err != nil {
			logging.ErrorErr("detector failed, continuing degraded", err, map[string]any{
				"detector":  string(kind),
				"record_id": rec.ID,
			})
			warnings = append(warnings, string(kind)+": "+err.Error())
			e.metrics.RecordDegraded(string(kind))
			continue
		}
		findings = append(findings, fs...)
	}

	model.SortFindings(findings)
	severity := Fuse(findings, e.fusion)

	byDetector := make(map[string]int, 4)
	for _, f := range findings {
		byDetector[string(f.Detector)]++
	}
	e.metrics.ObserveVerdict(string(severity), time.Since(start), byDetector)

	return &model.Verdict{
		RecordID:   rec.ID,
		Severity:   severity,
		Findings:   findings,
		Warnings:   warnings,
		ComputedAt: e.nowFn().UTC(),
	}
}

// AnalyzeBatch evaluates records concurrently and returns verdicts in
// input order. Records are independent, so a fixed-size worker pool over
// an index queue is all the coordination needed.
func (e *Engine) AnalyzeBatch(recs []*model.LogRecord) []*model.Verdict {
	verdicts := make([]*model.Verdict, len(recs))
	if len(recs) == 0 {
		return verdicts
	}

	workers := e.workers
	if workers > len(recs) {
		workers = len(recs)
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range indexes {
				verdicts[i] = e.Analyze(recs[i])
			}
		}()
	}
	for i := range recs {
		indexes <- i
	}
	close(indexes)
	wg.Wait()
	return verdicts
}

// Snapshot exposes the engine's current store view, mainly for status
// output.
func (e *Engine) Snapshot() *store.VersionSet {
	return e.catalog.Snapshot()
}
