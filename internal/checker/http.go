package checker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/uptimer-dev/uptimer/internal/safenet"
	"github.com/uptimer-dev/uptimer/internal/storage"
)

const maxBodyRead = 1 << 20 // 1MB

type HTTPChecker struct {
	Guard safenet.Guard
}

func (c *HTTPChecker) Type() storage.MonitorType { return storage.TypeHTTP }

func (c *HTTPChecker) Check(ctx context.Context, monitor *storage.Monitor) (*Outcome, error) {
	var cfg storage.HTTPConfig
	if len(monitor.Config) > 0 {
		if err := json.Unmarshal(monitor.Config, &cfg); err != nil {
			return &Outcome{Status: storage.StatusDown, Error: "invalid_config"}, nil
		}
	}

	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if cfg.Body != "" {
		bodyReader = strings.NewReader(cfg.Body)
	}

	timeout := time.Duration(monitor.TimeoutMs) * time.Millisecond
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, cfg.URL, bodyReader)
	if err != nil {
		return &Outcome{Status: storage.StatusDown, Error: "invalid_config"}, nil
	}

	// Bypass intermediary caches so each probe hits the origin and the
	// measured body is the uncompressed origin body.
	req.Header.Set("Cache-Control", "no-cache, no-store")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Accept-Encoding", "identity")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	host := req.URL.Hostname()
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: timeout,
			Control: c.Guard.Control(host),
		}).DialContext,
		DisableKeepAlives: true,
	}

	followRedirects := true
	if cfg.FollowRedirects != nil {
		followRedirects = *cfg.FollowRedirects
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
	if !followRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return &Outcome{Status: storage.StatusDown, Error: classifyHTTPError(err)}, nil
	}
	defer resp.Body.Close()
	elapsed := time.Since(start).Milliseconds()

	// The keyword assertion needs the body; elapsed then covers the read.
	var body string
	if cfg.Keyword != "" {
		bodyBytes, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyRead))
		elapsed = time.Since(start).Milliseconds()
		if readErr != nil {
			return &Outcome{Status: storage.StatusDown, LatencyMs: &elapsed, Error: "read_error"}, nil
		}
		body = string(bodyBytes)
	}

	if !statusExpected(resp.StatusCode, cfg.ExpectedStatus) {
		return &Outcome{
			Status:    storage.StatusDown,
			LatencyMs: &elapsed,
			Error:     fmt.Sprintf("http_%d", resp.StatusCode),
		}, nil
	}

	if cfg.Keyword != "" && !strings.Contains(body, cfg.Keyword) {
		return &Outcome{Status: storage.StatusDown, LatencyMs: &elapsed, Error: "assertion_failed"}, nil
	}

	return &Outcome{Status: storage.StatusUp, LatencyMs: &elapsed}, nil
}

// statusExpected applies the configured expected set, defaulting to 2xx.
func statusExpected(code int, expected []int) bool {
	if len(expected) == 0 {
		return code >= 200 && code < 300
	}
	for _, want := range expected {
		if code == want {
			return true
		}
	}
	return false
}

func classifyHTTPError(err error) string {
	if reason := classifyDialError(err); reason != "" {
		return reason
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	var (
		certErr     *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		recordErr   tls.RecordHeaderError
	)
	if errors.As(err, &certErr) || errors.As(err, &unknownAuth) ||
		errors.As(err, &hostErr) || errors.As(err, &recordErr) {
		return "tls_error"
	}
	return "send_error"
}
