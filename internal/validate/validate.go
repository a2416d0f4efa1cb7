package validate

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/uptimer-dev/uptimer/internal/storage"
)

var v = validator.New(validator.WithRequiredStructEnabled())

var validMonitorTypes = map[storage.MonitorType]bool{
	storage.TypeHTTP: true,
	storage.TypeTCP:  true,
}

var validPayloadTypes = map[string]bool{
	"": true, "json": true, "x-www-form-urlencoded": true, "param": true,
}

// ValidEvents is the closed set of event types a channel may subscribe to.
var ValidEvents = map[string]bool{
	"monitor.down":        true,
	"monitor.up":          true,
	"incident.created":    true,
	"incident.updated":    true,
	"incident.resolved":   true,
	"maintenance.started": true,
	"maintenance.ended":   true,
	"test.ping":           true,
}

// Monitor validates a monitor at registration and update time. The config
// blob is decoded and re-checked here so a probe never runs with a target
// that was never vetted.
func Monitor(m *storage.Monitor) error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(m.Name) > 255 {
		return fmt.Errorf("name must be at most 255 characters")
	}
	if !validMonitorTypes[m.Type] {
		return fmt.Errorf("type must be one of: http, tcp")
	}
	if m.IntervalSec < 20 {
		return fmt.Errorf("interval_sec must be at least 20 seconds")
	}
	if m.IntervalSec > 86400 {
		return fmt.Errorf("interval_sec must be at most 86400 seconds")
	}
	if m.TimeoutMs < 100 {
		return fmt.Errorf("timeout_ms must be at least 100")
	}
	if m.TimeoutMs > 300_000 {
		return fmt.Errorf("timeout_ms must be at most 300000")
	}
	if m.FailuresToDown < 1 {
		return fmt.Errorf("failures_to_down must be at least 1")
	}
	if m.SuccessesToUp < 1 {
		return fmt.Errorf("successes_to_up must be at least 1")
	}
	return MonitorConfig(m.Type, m.Config)
}

// MonitorConfig validates the type-specific config blob.
func MonitorConfig(typ storage.MonitorType, raw json.RawMessage) error {
	switch typ {
	case storage.TypeHTTP:
		var cfg storage.HTTPConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return fmt.Errorf("config must be a valid JSON object")
		}
		if err := v.Struct(&cfg); err != nil {
			return fmt.Errorf("invalid http config: %w", err)
		}
		u, err := url.Parse(cfg.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("url scheme must be http or https")
		}
		if u.Host == "" {
			return fmt.Errorf("url host is required")
		}
		for _, code := range cfg.ExpectedStatus {
			if code < 100 || code > 599 {
				return fmt.Errorf("expected_status codes must be in [100, 599]")
			}
		}
		return nil
	case storage.TypeTCP:
		var cfg storage.TCPConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return fmt.Errorf("config must be a valid JSON object")
		}
		if err := v.Struct(&cfg); err != nil {
			return fmt.Errorf("invalid tcp config: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown monitor type: %s", typ)
	}
}

// Channel validates a notification channel definition.
func Channel(ch *storage.NotificationChannel) error {
	if strings.TrimSpace(ch.Name) == "" {
		return fmt.Errorf("name is required")
	}
	var cfg storage.ChannelConfig
	if err := json.Unmarshal(ch.Config, &cfg); err != nil {
		return fmt.Errorf("config must be a valid JSON object")
	}
	if err := v.Struct(&cfg); err != nil {
		return fmt.Errorf("invalid channel config: %w", err)
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("url scheme must be http or https")
	}
	if !validPayloadTypes[cfg.PayloadType] {
		return fmt.Errorf("payload_type must be one of: json, x-www-form-urlencoded, param")
	}
	if cfg.TimeoutMs < 0 || cfg.TimeoutMs > 60_000 {
		return fmt.Errorf("timeout_ms must be in [0, 60000]")
	}
	if cfg.Signing != nil && cfg.Signing.Enabled && strings.TrimSpace(cfg.Signing.SecretRef) == "" {
		return fmt.Errorf("signing.secret_ref is required when signing is enabled")
	}
	for _, ev := range cfg.EnabledEvents {
		if !ValidEvents[ev] {
			return fmt.Errorf("unknown event type: %s", ev)
		}
	}
	return nil
}
