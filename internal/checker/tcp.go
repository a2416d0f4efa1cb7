package checker

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"time"

	"github.com/uptimer-dev/uptimer/internal/safenet"
	"github.com/uptimer-dev/uptimer/internal/storage"
)

type TCPChecker struct {
	Guard safenet.Guard
}

func (c *TCPChecker) Type() storage.MonitorType { return storage.TypeTCP }

// Check establishes a TCP connection and closes it immediately. No payload
// is exchanged.
func (c *TCPChecker) Check(ctx context.Context, monitor *storage.Monitor) (*Outcome, error) {
	var cfg storage.TCPConfig
	if len(monitor.Config) > 0 {
		if err := json.Unmarshal(monitor.Config, &cfg); err != nil {
			return &Outcome{Status: storage.StatusDown, Error: "invalid_config"}, nil
		}
	}
	if cfg.Host == "" || cfg.Port < 1 || cfg.Port > 65535 {
		return &Outcome{Status: storage.StatusDown, Error: "invalid_config"}, nil
	}

	timeout := time.Duration(monitor.TimeoutMs) * time.Millisecond
	dialer := net.Dialer{Timeout: timeout, Control: c.Guard.Control(cfg.Host)}

	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		reason := classifyDialError(err)
		if reason == "" {
			reason = "connect_error"
		}
		return &Outcome{Status: storage.StatusDown, Error: reason}, nil
	}
	conn.Close()

	return &Outcome{Status: storage.StatusUp, LatencyMs: &elapsed}, nil
}
