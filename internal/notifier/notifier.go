package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/uptimer-dev/uptimer/internal/storage"
)

// Event is a state transition handed to the dispatcher. Key is the
// deterministic dedup identity: dispatching the same Key twice sends at most
// one webhook per channel.
type Event struct {
	Type      string
	Key       string
	Timestamp int64
	Payload   map[string]any
}

// Dispatcher fans an event out to all notification channels with per
// (event_key, channel_id) idempotency.
type Dispatcher struct {
	store       storage.Store
	logger      *slog.Logger
	concurrency int
	timeout     time.Duration

	// Seams for tests.
	LookupEnv func(string) (string, bool)
	Now       func() int64
}

func NewDispatcher(store storage.Store, logger *slog.Logger, concurrency int, defaultTimeout time.Duration) *Dispatcher {
	if concurrency <= 0 {
		concurrency = 5
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 5 * time.Second
	}
	return &Dispatcher{
		store:       store,
		logger:      logger,
		concurrency: concurrency,
		timeout:     defaultTimeout,
		LookupEnv:   os.LookupEnv,
		Now:         func() int64 { return time.Now().Unix() },
	}
}

// Dispatch delivers one event to every channel. A failure on one channel
// never affects the others; every attempted delivery leaves a ledger row.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	channels, err := d.store.ListNotificationChannels(ctx)
	if err != nil {
		d.logger.Error("list notification channels", "event", ev.Type, "error", err)
		return
	}

	g := &errgroup.Group{}
	g.SetLimit(d.concurrency)
	for _, ch := range channels {
		g.Go(func() error {
			d.deliver(ctx, ev, ch)
			return nil
		})
	}
	g.Wait()
}

// SendTest delivers a synthetic test.ping through one channel, bypassing its
// event filter.
func (d *Dispatcher) SendTest(ctx context.Context, channelID int64) error {
	ch, err := d.store.GetNotificationChannel(ctx, channelID)
	if err != nil {
		return err
	}
	ev := Event{
		Type:      "test.ping",
		Key:       fmt.Sprintf("test.ping:%d:%s", channelID, uuid.NewString()),
		Timestamp: d.Now(),
		Payload:   map[string]any{"message": "test notification"},
	}
	d.deliver(ctx, ev, ch)
	del, err := d.store.GetDelivery(ctx, ev.Key, channelID)
	if err != nil {
		return err
	}
	if del.Status != storage.DeliverySuccess {
		return fmt.Errorf("test delivery failed: %s", del.Error)
	}
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event, ch *storage.NotificationChannel) {
	var cfg storage.ChannelConfig
	cfgErr := json.Unmarshal(ch.Config, &cfg)

	// test.ping bypasses the per-channel event filter.
	if cfgErr == nil && len(cfg.EnabledEvents) > 0 && ev.Type != "test.ping" {
		enabled := false
		for _, e := range cfg.EnabledEvents {
			if e == ev.Type {
				enabled = true
				break
			}
		}
		if !enabled {
			return
		}
	}

	del, err := d.store.ClaimDelivery(ctx, ev.Key, ch.ID, d.Now())
	if errors.Is(err, storage.ErrDuplicateDelivery) {
		d.logger.Debug("delivery already claimed", "event_key", ev.Key, "channel_id", ch.ID)
		return
	}
	if err != nil {
		d.logger.Error("claim delivery", "event_key", ev.Key, "channel_id", ch.ID, "error", err)
		return
	}

	if cfgErr != nil {
		d.finalize(ctx, del, storage.DeliveryFailed, nil, "invalid channel config")
		return
	}

	var secret string
	if cfg.Signing != nil && cfg.Signing.Enabled {
		s, ok := d.LookupEnv(cfg.Signing.SecretRef)
		if !ok || s == "" {
			d.finalize(ctx, del, storage.DeliveryFailed, nil, fmt.Sprintf("signing secret %q not set", cfg.Signing.SecretRef))
			return
		}
		secret = s
	}

	timeout := d.timeout
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := buildRequest(reqCtx, &cfg, ev, ch.Name, secret, d.Now())
	if err != nil {
		d.finalize(ctx, del, storage.DeliveryFailed, nil, err.Error())
		return
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		reason := "send failed: " + err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		d.finalize(ctx, del, storage.DeliveryFailed, nil, reason)
		return
	}
	defer resp.Body.Close()

	code := resp.StatusCode
	if code >= 200 && code < 300 {
		d.finalize(ctx, del, storage.DeliverySuccess, &code, "")
		d.logger.Info("webhook delivered", "event_key", ev.Key, "channel_id", ch.ID, "http_status", code)
		return
	}
	d.finalize(ctx, del, storage.DeliveryFailed, &code, fmt.Sprintf("HTTP %d", code))
}

func (d *Dispatcher) finalize(ctx context.Context, del *storage.Delivery, status storage.DeliveryStatus, httpStatus *int, reason string) {
	if err := d.store.FinalizeDelivery(ctx, del.ID, status, httpStatus, reason, d.Now()); err != nil {
		d.logger.Error("finalize delivery", "delivery_id", del.ID, "error", err)
	}
	if status == storage.DeliveryFailed {
		d.logger.Warn("webhook delivery failed", "event_key", del.EventKey, "channel_id", del.ChannelID, "reason", reason)
	}
}
