package statuspage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/uptimer-dev/uptimer/internal/storage"
)

const (
	snapshotKey = "status"

	// Snapshot age thresholds in seconds: serve below fresh, kick off a
	// background recompute at refresh, and never serve beyond maxStale.
	snapshotFreshSec   = 60
	snapshotRefreshSec = 30
	snapshotStaleSec   = 600
)

// Cache is the write-through snapshot cache in front of the aggregator.
// Reads prefer a fresh snapshot; a near-expiry hit triggers a background
// refresh; a failed recompute falls back to a bounded-stale snapshot.
type Cache struct {
	store  storage.Store
	agg    *Aggregator
	logger *slog.Logger

	mu         sync.Mutex
	refreshing bool

	Now func() int64
}

func NewCache(store storage.Store, agg *Aggregator, logger *slog.Logger) *Cache {
	return &Cache{
		store:  store,
		agg:    agg,
		logger: logger,
		Now:    func() int64 { return time.Now().Unix() },
	}
}

// Status returns the snapshot body and its generation time.
func (c *Cache) Status(ctx context.Context) (json.RawMessage, int64, error) {
	now := c.Now()
	snap, err := c.store.GetSnapshot(ctx, snapshotKey)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, 0, err
	}

	if snap != nil {
		age := now - snap.GeneratedAt
		if age < snapshotFreshSec {
			if age >= snapshotRefreshSec {
				c.refreshAsync()
			}
			return snap.Body, snap.GeneratedAt, nil
		}
	}

	body, err := c.rebuild(ctx, now)
	if err != nil {
		// Bounded-stale fallback; unbounded-stale is never served.
		if snap != nil && now-snap.GeneratedAt <= snapshotStaleSec {
			c.logger.Warn("serving stale status snapshot", "age", now-snap.GeneratedAt, "error", err)
			return snap.Body, snap.GeneratedAt, nil
		}
		return nil, 0, err
	}
	return body, now, nil
}

// FreshFor returns how long a response generated at the given time may
// still be cached downstream.
func FreshFor(generatedAt, now int64) int64 {
	remaining := snapshotFreshSec - (now - generatedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (c *Cache) rebuild(ctx context.Context, now int64) (json.RawMessage, error) {
	page, err := c.agg.Build(ctx, now)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(page)
	if err != nil {
		return nil, err
	}
	if err := c.store.UpsertSnapshot(ctx, &storage.Snapshot{Key: snapshotKey, GeneratedAt: now, Body: body}); err != nil {
		c.logger.Error("persist status snapshot", "error", err)
	}
	return body, nil
}

func (c *Cache) refreshAsync() {
	c.mu.Lock()
	if c.refreshing {
		c.mu.Unlock()
		return
	}
	c.refreshing = true
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			c.refreshing = false
			c.mu.Unlock()
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := c.rebuild(ctx, c.Now()); err != nil {
			c.logger.Error("background snapshot refresh", "error", err)
		}
	}()
}
