// Package webhook delivers appliance event notifications over HTTP.
// Deliveries are signed with HMAC-SHA256 when a secret is configured, so
// receivers on the management network can authenticate the appliance.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/quorum-project/quorum/pkg/config"
	"github.com/quorum-project/quorum/pkg/logging"
	"github.com/quorum-project/quorum/pkg/model"
)

// EventType identifies an appliance event that can trigger webhooks.
type EventType string

const (
	EventUpdateReceived  EventType = "update.received"
	EventUpdateVerified  EventType = "update.verified"
	EventUpdateStaged    EventType = "update.staged"
	EventUpdateCommitted EventType = "update.committed"
	EventUpdateFailed    EventType = "update.failed"
	EventRollback        EventType = "rollback.completed"
	EventVerdictCritical EventType = "verdict.critical"
	EventGCRun           EventType = "gc.run"
)

// Event is the payload delivered to webhook receivers.
type Event struct {
	Event          EventType         `json:"event"`
	Timestamp      string            `json:"timestamp"`
	ApplianceID    string            `json:"appliance_id,omitempty"`
	AttemptID      model.AttemptID   `json:"attempt_id,omitempty"`
	PackageVersion string            `json:"package_version,omitempty"`
	StoreKinds     []model.StoreKind `json:"store_kinds,omitempty"`
	RecordID       string            `json:"record_id,omitempty"`
	Severity       model.Severity    `json:"severity,omitempty"`
	Error          string            `json:"error,omitempty"`
	Metadata       map[string]any    `json:"metadata,omitempty"`
}

// HookConfig is a single webhook destination.
type HookConfig struct {
	URL     string      `json:"url"`
	Secret  string      `json:"secret,omitempty"`
	Events  []EventType `json:"events"`
	Enabled bool        `json:"enabled"`
}

// Config configures the webhook client.
type Config struct {
	Hooks          []HookConfig  `json:"hooks"`
	Enabled        bool          `json:"enabled"`
	MaxRetries     int           `json:"max_retries"`
	RetryDelay     time.Duration `json:"retry_delay"`
	AsyncQueueSize int           `json:"async_queue_size"`
}

// DefaultConfig returns the default webhook configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:        true,
		MaxRetries:     3,
		RetryDelay:     5 * time.Second,
		AsyncQueueSize: 100,
	}
}

// FromConfig builds a webhook Config from the appliance configuration.
// An empty hook list yields a disabled client.
func FromConfig(hooks []config.WebhookConfig) *Config {
	cfg := DefaultConfig()
	cfg.Enabled = len(hooks) > 0
	for _, h := range hooks {
		events := make([]EventType, 0, len(h.Events))
		for _, e := range h.Events {
			events = append(events, EventType(e))
		}
		if len(events) == 0 {
			events = []EventType{"*"}
		}
		cfg.Hooks = append(cfg.Hooks, HookConfig{
			URL:     h.URL,
			Secret:  h.Secret,
			Events:  events,
			Enabled: true,
		})
	}
	return cfg
}

// Client sends webhook notifications, asynchronously by default.
type Client struct {
	config *Config
	http   *http.Client
	queue  chan *job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	mu     sync.RWMutex
}

type job struct {
	event Event
	hook  HookConfig
}

// NewClient creates a webhook client. A nil cfg uses defaults.
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		config: cfg,
		http:   &http.Client{Timeout: 30 * time.Second},
		queue:  make(chan *job, cfg.AsyncQueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	if cfg.Enabled {
		c.start()
	}
	return c
}

func (c *Client) start() {
	c.once.Do(func() {
		c.wg.Add(1)
		go c.worker()
	})
}

func (c *Client) worker() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			// Drain what was queued before shutdown.
			for {
				select {
				case job := <-c.queue:
					c.send(job)
				default:
					return
				}
			}
		case job := <-c.queue:
			c.send(job)
		}
	}
}

// Send delivers an event to all matching hooks. Async deliveries queue
// and never block the caller; a full queue drops the event with a
// warning.
func (c *Client) Send(event Event, async bool) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.config.Enabled {
		return nil
	}

	var hooks []HookConfig
	for _, hook := range c.config.Hooks {
		if hook.Enabled && matchesEvent(hook, event.Event) {
			hooks = append(hooks, hook)
		}
	}
	if len(hooks) == 0 {
		return nil
	}

	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	if async {
		for _, hook := range hooks {
			select {
			case c.queue <- &job{event: event, hook: hook}:
			default:
				logging.Warn("webhook queue full, dropping event", map[string]any{
					"event": string(event.Event),
					"url":   hook.URL,
				})
			}
		}
		return nil
	}

	var lastErr error
	for _, hook := range hooks {
		if err := c.sendSync(&job{event: event, hook: hook}); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (c *Client) send(job *job) {
	if err := c.sendSync(job); err != nil {
		logging.ErrorErr("webhook delivery failed", err, map[string]any{
			"event": string(job.event.Event),
			"url":   job.hook.URL,
		})
	}
}

func (c *Client) sendSync(job *job) error {
	payload, err := json.Marshal(job.event)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-c.ctx.Done():
				return c.ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		req, err := c.createRequest(job.hook, job.event.Event, payload)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	return lastErr
}

// createRequest deliberately does not bind the client context: queued
// deliveries drain during Close and must not be cut off by the cancel
// that initiated the drain.
func (c *Client) createRequest(hook HookConfig, event EventType, payload []byte) (*http.Request, error) {
	req, err := http.NewRequest(http.MethodPost, hook.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Quorum-Webhook/1.0")
	req.Header.Set("X-Quorum-Event", string(event))
	if hook.Secret != "" {
		req.Header.Set("X-Quorum-Signature", sign(payload, hook.Secret))
	}
	return req, nil
}

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func matchesEvent(hook HookConfig, event EventType) bool {
	for _, e := range hook.Events {
		if e == event || e == "*" {
			return true
		}
	}
	return false
}

// Close stops the background worker after draining queued deliveries.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.config.Enabled {
		return nil
	}
	c.cancel()
	c.wg.Wait()
	return nil
}

// SendUpdateEvent notifies an update attempt transition.
func (c *Client) SendUpdateEvent(event EventType, applianceID string, result *model.UpdateResult, async bool) error {
	return c.Send(Event{
		Event:          event,
		ApplianceID:    applianceID,
		AttemptID:      result.AttemptID,
		PackageVersion: result.PackageVersion,
		StoreKinds:     result.StoreKinds,
		Error:          result.Reason,
	}, async)
}

// SendRollback notifies a completed rollback.
func (c *Client) SendRollback(applianceID string, results []*model.RollbackResult, async bool) error {
	kinds := make([]model.StoreKind, 0, len(results))
	meta := make(map[string]any, len(results))
	for _, r := range results {
		kinds = append(kinds, r.Kind)
		meta[string(r.Kind)] = map[string]any{
			"restored":   r.Restored,
			"superseded": r.Superseded,
			"no_op":      r.NoOp,
		}
	}
	return c.Send(Event{
		Event:       EventRollback,
		ApplianceID: applianceID,
		StoreKinds:  kinds,
		Metadata:    meta,
	}, async)
}

// SendCriticalVerdict notifies a record fused to critical severity.
func (c *Client) SendCriticalVerdict(applianceID string, verdict *model.Verdict, async bool) error {
	return c.Send(Event{
		Event:       EventVerdictCritical,
		ApplianceID: applianceID,
		RecordID:    verdict.RecordID,
		Severity:    verdict.Severity,
		Metadata: map[string]any{
			"findings": len(verdict.Findings),
		},
	}, async)
}

// SendGCRun notifies a completed retention sweep.
func (c *Client) SendGCRun(applianceID string, removed int, freedBytes int64, async bool) error {
	return c.Send(Event{
		Event:       EventGCRun,
		ApplianceID: applianceID,
		Metadata: map[string]any{
			"versions_removed": removed,
			"freed_bytes":      freedBytes,
		},
	}, async)
}
