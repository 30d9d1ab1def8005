package config

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Settable configuration keys, addressed as dotted paths into the YAML
// structure. The CLI's 'config get' and 'config set' operate on these.
const (
	KeyAnomalyFloor      = "detection.anomaly_floor"
	KeyVerdictCacheSize  = "detection.verdict_cache_size"
	KeyBatchWorkers      = "detection.batch_workers"
	KeyCriticalScore     = "detection.fusion.critical_score"
	KeyCriticalKindScore = "detection.fusion.critical_kind_score"
	KeyHighScore         = "detection.fusion.high_score"
	KeyHighTTPScore      = "detection.fusion.high_ttp_score"
	KeyMediumScore       = "detection.fusion.medium_score"
	KeyMaxPackageBytes   = "update.max_package_bytes"
	KeyMaxPayloadBytes   = "update.max_payload_bytes"
	KeyLeaseTTL          = "update.lease_ttl"
	KeyVerifyKeyPath     = "update.verify_key_path"
	KeyKeepVersions      = "update.retention.keep_versions"
	KeyKeepMinAge        = "update.retention.keep_min_age"
	KeyLoggingLevel      = "logging.level"
	KeyLoggingFormat     = "logging.format"
	KeyMetricsEnabled    = "metrics.enabled"
	KeyMetricsListen     = "metrics.listen"
)

// Get returns the value at a dotted key, formatted for display.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case KeyAnomalyFloor:
		return formatFloat(c.Detection.AnomalyFloor), nil
	case KeyVerdictCacheSize:
		return strconv.Itoa(c.Detection.VerdictCacheSize), nil
	case KeyBatchWorkers:
		return strconv.Itoa(c.Detection.BatchWorkers), nil
	case KeyCriticalScore:
		return formatFloat(c.Detection.Fusion.CriticalScore), nil
	case KeyCriticalKindScore:
		return formatFloat(c.Detection.Fusion.CriticalKindScore), nil
	case KeyHighScore:
		return formatFloat(c.Detection.Fusion.HighScore), nil
	case KeyHighTTPScore:
		return formatFloat(c.Detection.Fusion.HighTTPScore), nil
	case KeyMediumScore:
		return formatFloat(c.Detection.Fusion.MediumScore), nil
	case KeyMaxPackageBytes:
		return strconv.FormatInt(c.Update.MaxPackageBytes, 10), nil
	case KeyMaxPayloadBytes:
		return strconv.FormatInt(c.Update.MaxPayloadBytes, 10), nil
	case KeyLeaseTTL:
		return c.Update.LeaseTTL, nil
	case KeyVerifyKeyPath:
		return c.Update.VerifyKeyPath, nil
	case KeyKeepVersions:
		return strconv.Itoa(c.Update.Retention.KeepVersions), nil
	case KeyKeepMinAge:
		return c.Update.Retention.KeepMinAge, nil
	case KeyLoggingLevel:
		return c.Logging.Level, nil
	case KeyLoggingFormat:
		return c.Logging.Format, nil
	case KeyMetricsEnabled:
		return strconv.FormatBool(c.Metrics.Enabled), nil
	case KeyMetricsListen:
		return c.Metrics.Listen, nil
	}
	return "", fmt.Errorf("unknown config key %q", key)
}

// Set parses and validates value, then stores it at the dotted key.
func (c *Config) Set(key, value string) error {
	switch key {
	case KeyAnomalyFloor:
		return setScore(&c.Detection.AnomalyFloor, value)
	case KeyVerdictCacheSize:
		return setNonNegativeInt(&c.Detection.VerdictCacheSize, value)
	case KeyBatchWorkers:
		return setNonNegativeInt(&c.Detection.BatchWorkers, value)
	case KeyCriticalScore:
		return setScore(&c.Detection.Fusion.CriticalScore, value)
	case KeyCriticalKindScore:
		return setScore(&c.Detection.Fusion.CriticalKindScore, value)
	case KeyHighScore:
		return setScore(&c.Detection.Fusion.HighScore, value)
	case KeyHighTTPScore:
		return setScore(&c.Detection.Fusion.HighTTPScore, value)
	case KeyMediumScore:
		return setScore(&c.Detection.Fusion.MediumScore, value)
	case KeyMaxPackageBytes:
		return setPositiveInt64(&c.Update.MaxPackageBytes, value)
	case KeyMaxPayloadBytes:
		return setPositiveInt64(&c.Update.MaxPayloadBytes, value)
	case KeyLeaseTTL:
		return setDuration(&c.Update.LeaseTTL, value)
	case KeyVerifyKeyPath:
		c.Update.VerifyKeyPath = value
		return nil
	case KeyKeepVersions:
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("%s must be a positive integer", key)
		}
		c.Update.Retention.KeepVersions = n
		return nil
	case KeyKeepMinAge:
		return setDuration(&c.Update.Retention.KeepMinAge, value)
	case KeyLoggingLevel:
		switch value {
		case "debug", "info", "warn", "error":
			c.Logging.Level = value
			return nil
		}
		return fmt.Errorf("%s must be one of debug, info, warn, error", key)
	case KeyLoggingFormat:
		switch value {
		case "text", "json":
			c.Logging.Format = value
			return nil
		}
		return fmt.Errorf("%s must be text or json", key)
	case KeyMetricsEnabled:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s must be true or false", key)
		}
		c.Metrics.Enabled = b
		return nil
	case KeyMetricsListen:
		c.Metrics.Listen = value
		return nil
	}
	return fmt.Errorf("unknown config key %q", key)
}

// Keys lists every settable key in sorted order.
func Keys() []string {
	keys := []string{
		KeyAnomalyFloor,
		KeyVerdictCacheSize,
		KeyBatchWorkers,
		KeyCriticalScore,
		KeyCriticalKindScore,
		KeyHighScore,
		KeyHighTTPScore,
		KeyMediumScore,
		KeyMaxPackageBytes,
		KeyMaxPayloadBytes,
		KeyLeaseTTL,
		KeyVerifyKeyPath,
		KeyKeepVersions,
		KeyKeepMinAge,
		KeyLoggingLevel,
		KeyLoggingFormat,
		KeyMetricsEnabled,
		KeyMetricsListen,
	}
	sort.Strings(keys)
	return keys
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func setScore(dst *float64, value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f < 0 || f > 1 {
		return fmt.Errorf("value must be a number in [0, 1], got %q", value)
	}
	*dst = f
	return nil
}

func setNonNegativeInt(dst *int, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return fmt.Errorf("value must be a non-negative integer, got %q", value)
	}
	*dst = n
	return nil
}

func setPositiveInt64(dst *int64, value string) error {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n <= 0 {
		return fmt.Errorf("value must be a positive integer, got %q", value)
	}
	*dst = n
	return nil
}

func setDuration(dst *string, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fmt.Errorf("value must be a positive duration like 2m or 24h, got %q", value)
	}
	*dst = value
	return nil
}
