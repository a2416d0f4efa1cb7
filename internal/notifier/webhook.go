package notifier

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/uptimer-dev/uptimer/internal/storage"
)

const defaultMessageTemplate = "[{event}] {name} {message}"

// buildRequest constructs the outbound webhook request for one channel. When
// secret is non-empty the body is signed: X-Uptimer-Signature carries
// sha256=<hex(hmac_sha256(secret, "<timestamp>.<raw_body>"))>.
func buildRequest(ctx context.Context, cfg *storage.ChannelConfig, ev Event, channelName, secret string, now int64) (*http.Request, error) {
	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodPost
	}

	vars := templateVars(ev, channelName, now)
	msgTmpl := cfg.MessageTemplate
	if msgTmpl == "" {
		msgTmpl = defaultMessageTemplate
	}
	vars["message"] = renderString(msgTmpl, vars)

	payload := defaultPayload(ev, channelName, vars["message"], now)
	if len(cfg.PayloadTemplate) > 0 {
		rendered, err := renderJSON(cfg.PayloadTemplate, vars)
		if err != nil {
			return nil, fmt.Errorf("render payload template: %w", err)
		}
		payload = rendered
	}

	payloadType := cfg.PayloadType
	if payloadType == "" {
		payloadType = "json"
	}
	// Bodyless methods carry the payload as query params.
	if method == http.MethodGet || method == http.MethodHead {
		payloadType = "param"
	}

	var body string
	var contentType string
	reqURL := cfg.URL

	switch payloadType {
	case "json":
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		body = string(raw)
		contentType = "application/json"
	case "x-www-form-urlencoded":
		body = flattenParams(payload).Encode()
		contentType = "application/x-www-form-urlencoded"
	case "param":
		u, err := url.Parse(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse url: %w", err)
		}
		q := u.Query()
		for k, vs := range flattenParams(payload) {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
		reqURL = u.String()
	default:
		return nil, fmt.Errorf("unknown payload type: %s", payloadType)
	}

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	if secret != "" {
		ts := strconv.FormatInt(now, 10)
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(ts + "." + body))
		req.Header.Set("X-Uptimer-Timestamp", ts)
		req.Header.Set("X-Uptimer-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	return req, nil
}

func templateVars(ev Event, channelName string, now int64) map[string]string {
	ts := ev.Timestamp
	if ts == 0 {
		ts = now
	}
	vars := map[string]string{
		"channel":   channelName,
		"event":     ev.Type,
		"event_id":  ev.Key,
		"timestamp": strconv.FormatInt(ts, 10),
	}
	for k, v := range ev.Payload {
		vars[k] = coerceString(v)
	}
	return vars
}

func defaultPayload(ev Event, channelName, message string, now int64) any {
	ts := ev.Timestamp
	if ts == 0 {
		ts = now
	}
	out := map[string]any{
		"channel":   channelName,
		"event":     ev.Type,
		"event_id":  ev.Key,
		"timestamp": ts,
		"message":   message,
	}
	for k, v := range ev.Payload {
		out[k] = v
	}
	return out
}

// flattenParams coerces a rendered payload into flat string params. Nested
// values are JSON-encoded.
func flattenParams(payload any) url.Values {
	out := url.Values{}
	m, ok := payload.(map[string]any)
	if !ok {
		out.Set("payload", coerceString(payload))
		return out
	}
	for k, v := range m {
		out.Set(k, coerceString(v))
	}
	return out
}

func coerceString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(raw)
	}
}
