// Package config provides configuration file support for Quorum.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the appliance configuration, stored at
// .quorum/config.yaml inside the state directory.
type Config struct {
	Detection DetectionConfig `yaml:"detection"`
	Update    UpdateConfig    `yaml:"update"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Webhooks  []WebhookConfig `yaml:"webhooks,omitempty"`
}

// DetectionConfig tunes the engine without changing its semantics.
type DetectionConfig struct {
	Fusion FusionConfig `yaml:"fusion"`
	// AnomalyFloor is the minimum anomaly score that produces a finding.
	AnomalyFloor float64 `yaml:"anomaly_floor"`
	// VerdictCacheSize bounds the engine's verdict cache; 0 disables it.
	VerdictCacheSize int `yaml:"verdict_cache_size"`
	// BatchWorkers caps concurrent evaluations in AnalyzeBatch;
	// 0 means one worker per CPU.
	BatchWorkers int `yaml:"batch_workers"`
}

// FusionConfig holds the severity fusion thresholds. The defaults are the
// calibrated shipping values; field deployments may tighten them.
type FusionConfig struct {
	// CriticalScore: any single finding at or above is critical.
	CriticalScore float64 `yaml:"critical_score"`
	// CriticalKindScore: findings from two or more distinct detectors at
	// or above this score are critical in combination.
	CriticalKindScore float64 `yaml:"critical_kind_score"`
	// HighScore: any single finding at or above is high.
	HighScore float64 `yaml:"high_score"`
	// HighTTPScore: a ttp finding at or above is high even below HighScore.
	HighTTPScore float64 `yaml:"high_ttp_score"`
	// MediumScore: any single finding at or above is medium.
	MediumScore float64 `yaml:"medium_score"`
}

// UpdateConfig tunes package intake limits and update serialization.
type UpdateConfig struct {
	// MaxPackageBytes rejects packages larger than this before decoding.
	MaxPackageBytes int64 `yaml:"max_package_bytes"`
	// MaxPayloadBytes rejects any single decoded payload larger than this.
	MaxPayloadBytes int64 `yaml:"max_payload_bytes"`
	// LeaseTTL bounds how long an update attempt may hold a store kind.
	LeaseTTL string `yaml:"lease_ttl"`
	// VerifyKeyPath locates the update verification public key,
	// relative to the state directory.
	VerifyKeyPath string          `yaml:"verify_key_path"`
	Retention     RetentionConfig `yaml:"retention"`
}

// RetentionConfig configures how many superseded store versions stay
// available for rollback and gc.
type RetentionConfig struct {
	KeepVersions int    `yaml:"keep_versions"`
	KeepMinAge   string `yaml:"keep_min_age"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text
}

// MetricsConfig configures the Prometheus exposition endpoint. The
// listener binds loopback by default; the appliance has no business
// listening on external interfaces.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// WebhookConfig declares one local HTTP sink notified of update and
// verdict events.
type WebhookConfig struct {
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret,omitempty"`
	Events []string `yaml:"events,omitempty"` // empty = all events
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Detection: DetectionConfig{
			Fusion: FusionConfig{
				CriticalScore:     0.9,
				CriticalKindScore: 0.6,
				HighScore:         0.7,
				HighTTPScore:      0.5,
				MediumScore:       0.4,
			},
			AnomalyFloor:     0.5,
			VerdictCacheSize: 1024,
			BatchWorkers:     0,
		},
		Update: UpdateConfig{
			MaxPackageBytes: 64 << 20,
			MaxPayloadBytes: 32 << 20,
			LeaseTTL:        "2m",
			VerifyKeyPath:   "keys/update_verify.pem",
			Retention: RetentionConfig{
				KeepVersions: 5,
				KeepMinAge:   "24h",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
		},
	}
}

// Load loads configuration from .quorum/config.yaml under root.
// Returns default config if file doesn't exist.
func Load(root string) (*Config, error) {
	cfg := Default()
	cfgPath := filepath.Join(root, ".quorum", "config.yaml")

	data, err := os.ReadFile(cfgPath)
	if os.IsNotExist(err) {
		return cfg, nil // No config file is OK, use defaults
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// Save writes configuration to .quorum/config.yaml under root.
func Save(root string, cfg *Config) error {
	cfgPath := filepath.Join(root, ".quorum", "config.yaml")

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(cfgPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// LeaseTTLDuration parses the configured lease duration, falling back to
// the default on malformed input.
func (u *UpdateConfig) LeaseTTLDuration() time.Duration {
	d, err := time.ParseDuration(u.LeaseTTL)
	if err != nil || d <= 0 {
		return 2 * time.Minute
	}
	return d
}

// KeepMinAgeDuration parses the configured retention age.
func (r *RetentionConfig) KeepMinAgeDuration() time.Duration {
	d, err := time.ParseDuration(r.KeepMinAge)
	if err != nil || d < 0 {
		return 24 * time.Hour
	}
	return d
}
