package statuspage

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uptimer-dev/uptimer/internal/storage"
)

func testStore(t *testing.T) storage.Store {
	t.Helper()
	s, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), 2)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mkMonitor(t *testing.T, s storage.Store, intervalSec int64) *storage.Monitor {
	t.Helper()
	m := &storage.Monitor{
		Name:        "api",
		Type:        storage.TypeHTTP,
		Active:      true,
		IntervalSec: intervalSec,
		TimeoutMs:   5000,
		CreatedAt:   1,
		Config:      json.RawMessage(`{"url":"https://example.com"}`),
	}
	require.NoError(t, s.CreateMonitor(context.Background(), m))
	return m
}

func applyResult(t *testing.T, s storage.Store, app *storage.CheckApplication) {
	t.Helper()
	applied, err := s.ApplyCheck(context.Background(), app)
	require.NoError(t, err)
	require.True(t, applied)
}

func TestUptimeBetweenWithOutage(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	m := mkMonitor(t, s, 60)

	// Healthy probes every 60s across the hour.
	var outageID int64
	for ts := int64(60); ts <= 3540; ts += 60 {
		lat := int64(20)
		app := &storage.CheckApplication{
			Result: &storage.CheckResult{MonitorID: m.ID, CheckedAt: ts, Status: storage.StatusUp, LatencyMs: &lat},
		}
		switch ts {
		case 600:
			app.OpenOutage = &storage.Outage{MonitorID: m.ID, StartedAt: 600, InitialError: "timeout"}
		case 900:
			app.CloseOutage = &storage.OutageClose{OutageID: outageID, EndedAt: 900}
		}
		applyResult(t, s, app)
		if app.OpenOutage != nil {
			outageID = app.OpenOutage.ID
		}
	}

	probe := *m
	probe.CreatedAt = 0
	rep, err := UptimeBetween(ctx, s, &probe, 0, 3600)
	require.NoError(t, err)

	assert.Equal(t, int64(3600), rep.TotalSec)
	assert.Equal(t, int64(300), rep.DowntimeSec)
	assert.Equal(t, int64(0), rep.UnknownSec)
	assert.Equal(t, int64(3300), rep.UptimeSec)
	require.NotNil(t, rep.UptimePct)
	assert.InDelta(t, 91.6667, *rep.UptimePct, 0.001)
}

func TestUptimeBetweenGapsAreUnknown(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	m := mkMonitor(t, s, 60)

	// Probes from 0..960, a silent stretch, then 2000..3540.
	for ts := int64(0); ts <= 960; ts += 60 {
		applyResult(t, s, &storage.CheckApplication{
			Result: &storage.CheckResult{MonitorID: m.ID, CheckedAt: ts, Status: storage.StatusUp},
		})
	}
	for ts := int64(2000); ts <= 3540; ts += 60 {
		applyResult(t, s, &storage.CheckApplication{
			Result: &storage.CheckResult{MonitorID: m.ID, CheckedAt: ts, Status: storage.StatusUp},
		})
	}

	probe := *m
	probe.CreatedAt = 0
	rep, err := UptimeBetween(ctx, s, &probe, 0, 3600)
	require.NoError(t, err)

	// Coverage from the probe at 960 ends at 1080; silence until 2000.
	assert.Equal(t, int64(920), rep.UnknownSec)
	assert.Equal(t, int64(0), rep.DowntimeSec)
	assert.Equal(t, rep.TotalSec, rep.DowntimeSec+rep.UnknownSec+rep.UptimeSec)
}

func TestUptimeBetweenNoResults(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	m := mkMonitor(t, s, 60)

	probe := *m
	probe.CreatedAt = 0
	rep, err := UptimeBetween(ctx, s, &probe, 0, 3600)
	require.NoError(t, err)

	assert.Equal(t, int64(3600), rep.UnknownSec)
	assert.Equal(t, int64(0), rep.UptimeSec)
}

func TestUptimeBetweenClampsToCreation(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	m := mkMonitor(t, s, 60)
	m.CreatedAt = 1800

	rep, err := UptimeBetween(ctx, s, m, 0, 3600)
	require.NoError(t, err)
	assert.Equal(t, int64(1800), rep.TotalSec)
}

func TestAggregatorStaleStateIsUnknown(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	m := mkMonitor(t, s, 60)

	lat := int64(50)
	at := int64(1000)
	applyResult(t, s, &storage.CheckApplication{
		Result: &storage.CheckResult{MonitorID: m.ID, CheckedAt: at, Status: storage.StatusUp, LatencyMs: &lat},
		State: &storage.MonitorState{
			MonitorID: m.ID, Status: storage.StatusUp,
			LastCheckedAt: &at, LastLatencyMs: &lat, ConsecutiveSuccesses: 2,
		},
	})

	agg := NewAggregator(s, discardLogger())

	// Within 2x interval the stored status stands.
	page, err := agg.Build(ctx, 1100)
	require.NoError(t, err)
	require.Len(t, page.Monitors, 1)
	assert.Equal(t, storage.StatusUp, page.Monitors[0].Status)
	assert.NotNil(t, page.Monitors[0].LastLatencyMs)

	// 200s since the last check exceeds 2x60: the state is stale.
	page, err = agg.Build(ctx, 1200)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusUnknown, page.Monitors[0].Status)
	assert.Nil(t, page.Monitors[0].LastLatencyMs, "stale latency must be omitted")
	assert.Equal(t, storage.StatusUnknown, page.OverallStatus)
	assert.Equal(t, 1, page.Summary.Unknown)
}

func TestAggregatorMaintenanceWins(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	m := mkMonitor(t, s, 60)

	at := int64(1000)
	applyResult(t, s, &storage.CheckApplication{
		Result: &storage.CheckResult{MonitorID: m.ID, CheckedAt: at, Status: storage.StatusUp},
		State:  &storage.MonitorState{MonitorID: m.ID, Status: storage.StatusUp, LastCheckedAt: &at},
	})
	require.NoError(t, s.CreateMaintenanceWindow(ctx, &storage.MaintenanceWindow{
		Title: "upgrade", StartsAt: 900, EndsAt: 2000, MonitorIDs: []int64{m.ID},
	}))

	agg := NewAggregator(s, discardLogger())
	page, err := agg.Build(ctx, 1050)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusMaintenance, page.Monitors[0].Status)
	assert.Equal(t, storage.StatusMaintenance, page.OverallStatus)
	assert.Equal(t, BannerMaintenance, page.Banner.Level)
	assert.Equal(t, "upgrade", page.Banner.Title)
}

func TestComputeBanner(t *testing.T) {
	maj := &storage.Incident{Title: "db down", Impact: storage.ImpactMajor, Message: "investigating"}
	min := &storage.Incident{Title: "slow api", Impact: storage.ImpactMinor}
	window := &storage.MaintenanceWindow{Title: "patching"}

	tests := []struct {
		name      string
		incidents []*storage.Incident
		counts    Summary
		active    []*storage.MaintenanceWindow
		wantLevel string
	}{
		{"all up", nil, Summary{Up: 3, Total: 3}, nil, BannerOperational},
		{"major incident", []*storage.Incident{maj}, Summary{Up: 3, Total: 3}, nil, BannerMajorOutage},
		{"minor incident", []*storage.Incident{min}, Summary{Up: 3, Total: 3}, nil, BannerPartialOutage},
		{"minor and major", []*storage.Incident{min, maj}, Summary{Up: 3, Total: 3}, nil, BannerMajorOutage},
		{"incident beats down counts", []*storage.Incident{min}, Summary{Down: 3, Total: 3}, nil, BannerPartialOutage},
		{"one of ten down", nil, Summary{Up: 9, Down: 1, Total: 10}, nil, BannerPartialOutage},
		{"three of ten down", nil, Summary{Up: 7, Down: 3, Total: 10}, nil, BannerMajorOutage},
		{"unknown", nil, Summary{Up: 2, Unknown: 1, Total: 3}, nil, BannerUnknown},
		{"maintenance", nil, Summary{Up: 2, Maintenance: 1, Total: 3}, nil, BannerMaintenance},
		{"active window only", nil, Summary{Up: 3, Total: 3}, []*storage.MaintenanceWindow{window}, BannerMaintenance},
		{"empty", nil, Summary{}, nil, BannerOperational},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeBanner(tt.incidents, tt.counts, tt.active)
			assert.Equal(t, tt.wantLevel, got.Level)
			// Purity: recomputing with the same inputs yields the same banner.
			assert.Equal(t, got, ComputeBanner(tt.incidents, tt.counts, tt.active))
		})
	}
}

func TestSnapshotCache(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	mkMonitor(t, s, 60)

	agg := NewAggregator(s, discardLogger())
	cache := NewCache(s, agg, discardLogger())

	now := int64(10_000)
	cache.Now = func() int64 { return now }

	body, generatedAt, err := cache.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), generatedAt)

	var page StatusPage
	require.NoError(t, json.Unmarshal(body, &page))
	assert.Equal(t, 1, page.Summary.Total)

	// A fresh snapshot is served as-is.
	now = 10_020
	_, generatedAt, err = cache.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), generatedAt)

	// Past the fresh horizon the snapshot is recomputed inline.
	now = 10_700
	_, generatedAt, err = cache.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10_700), generatedAt)
}

func TestFreshFor(t *testing.T) {
	assert.Equal(t, int64(60), FreshFor(1000, 1000))
	assert.Equal(t, int64(10), FreshFor(1000, 1050))
	assert.Equal(t, int64(0), FreshFor(1000, 1100))
}
