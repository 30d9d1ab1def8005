package quorum

import (
	"context"

	"github.com/quorum-project/quorum/pkg/model"
)

// Analyze evaluates one normalized log record against the active
// knowledge stores and returns its fused verdict. Records never fail
// analysis: a missing store or detector error degrades the verdict and
// is listed in its warnings.
func (c *Client) Analyze(_ context.Context, rec *model.LogRecord) (*model.Verdict, error) {
	verdict := c.detect.Analyze(rec)
	c.notifyCritical(verdict)
	return verdict, nil
}

// AnalyzeBatch evaluates records concurrently and returns verdicts in
// input order.
func (c *Client) AnalyzeBatch(_ context.Context, recs []*model.LogRecord) ([]*model.Verdict, error) {
	verdicts := c.detect.AnalyzeBatch(recs)
	for _, v := range verdicts {
		c.notifyCritical(v)
	}
	return verdicts, nil
}

func (c *Client) notifyCritical(v *model.Verdict) {
	if c.webhooks == nil || v == nil || v.Severity != model.SeverityCritical {
		return
	}
	_ = c.webhooks.SendCriticalVerdict(c.state.ApplianceID, v, true)
}

// StoreStatus reports the active and retained versions of every kind.
func (c *Client) StoreStatus(_ context.Context) []model.StoreStatus {
	statuses := make([]model.StoreStatus, 0, len(model.StoreKinds))
	for _, kind := range model.StoreKinds {
		statuses = append(statuses, c.catalog.Status(kind))
	}
	return statuses
}

// ActiveVersions maps each provisioned kind to its active version.
func (c *Client) ActiveVersions(_ context.Context) map[model.StoreKind]string {
	out := make(map[model.StoreKind]string)
	snap := c.detect.Snapshot()
	for _, info := range snap.Infos() {
		out[info.Kind] = info.Version
	}
	return out
}
