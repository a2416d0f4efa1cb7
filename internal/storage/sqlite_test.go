package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), 2)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mkMonitor(t *testing.T, s *SQLiteStore, name string, intervalSec int64) *Monitor {
	t.Helper()
	m := &Monitor{
		Name:        name,
		Type:        TypeHTTP,
		Active:      true,
		IntervalSec: intervalSec,
		TimeoutMs:   5000,
		Config:      []byte(`{"url":"https://example.com/health"}`),
	}
	if err := s.CreateMonitor(context.Background(), m); err != nil {
		t.Fatalf("create monitor: %v", err)
	}
	return m
}

func i64(v int64) *int64 { return &v }

func TestMonitorCRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	m := mkMonitor(t, s, "api", 60)
	if m.ID == 0 {
		t.Fatal("expected assigned id")
	}
	if m.FailuresToDown != 2 || m.SuccessesToUp != 2 {
		t.Fatalf("expected default thresholds 2/2, got %d/%d", m.FailuresToDown, m.SuccessesToUp)
	}

	got, err := s.GetMonitor(ctx, m.ID)
	if err != nil {
		t.Fatalf("get monitor: %v", err)
	}
	if got.Name != "api" || got.Type != TypeHTTP || !got.Active {
		t.Fatalf("unexpected monitor: %+v", got)
	}

	got.Name = "api-v2"
	got.IntervalSec = 120
	if err := s.UpdateMonitor(ctx, got); err != nil {
		t.Fatalf("update monitor: %v", err)
	}
	got, _ = s.GetMonitor(ctx, m.ID)
	if got.Name != "api-v2" || got.IntervalSec != 120 {
		t.Fatalf("update not persisted: %+v", got)
	}

	if _, err := s.GetMonitor(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.SetMonitorActive(ctx, 9999, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListDueMonitors(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := int64(10_000)

	never := mkMonitor(t, s, "never-checked", 60)
	due := mkMonitor(t, s, "due", 60)
	fresh := mkMonitor(t, s, "fresh", 60)
	paused := mkMonitor(t, s, "paused", 60)
	if err := s.SetMonitorActive(ctx, paused.ID, false); err != nil {
		t.Fatalf("pause: %v", err)
	}

	apply := func(m *Monitor, checkedAt int64) {
		_, err := s.ApplyCheck(ctx, &CheckApplication{
			Result: &CheckResult{MonitorID: m.ID, CheckedAt: checkedAt, Status: StatusUp, LatencyMs: i64(12)},
			State:  &MonitorState{MonitorID: m.ID, Status: StatusUp, LastCheckedAt: i64(checkedAt)},
		})
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	apply(due, now-60)   // exactly interval old: due
	apply(fresh, now-10) // checked recently: not due
	apply(paused, now-120)

	got, err := s.ListDueMonitors(ctx, now, 10)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 due monitors, got %d", len(got))
	}
	// Never-checked sorts first (COALESCE to 0), then the stale one.
	if got[0].ID != never.ID || got[1].ID != due.ID {
		t.Fatalf("unexpected order: %d, %d", got[0].ID, got[1].ID)
	}

	got, err = s.ListDueMonitors(ctx, now, 1)
	if err != nil {
		t.Fatalf("list due limit: %v", err)
	}
	if len(got) != 1 || got[0].ID != never.ID {
		t.Fatalf("limit not applied: %+v", got)
	}
}

func TestApplyCheckIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	m := mkMonitor(t, s, "api", 60)

	app := &CheckApplication{
		Result: &CheckResult{MonitorID: m.ID, CheckedAt: 1000, Status: StatusUp, LatencyMs: i64(42)},
		State:  &MonitorState{MonitorID: m.ID, Status: StatusUp, LastCheckedAt: i64(1000), ConsecutiveSuccesses: 1},
	}
	applied, err := s.ApplyCheck(ctx, app)
	if err != nil || !applied {
		t.Fatalf("first apply: applied=%v err=%v", applied, err)
	}

	// Same (monitor_id, checked_at) again: no-op, state untouched.
	dup := &CheckApplication{
		Result: &CheckResult{MonitorID: m.ID, CheckedAt: 1000, Status: StatusDown},
		State:  &MonitorState{MonitorID: m.ID, Status: StatusDown, LastCheckedAt: i64(1000), ConsecutiveFailures: 1},
	}
	applied, err = s.ApplyCheck(ctx, dup)
	if err != nil {
		t.Fatalf("duplicate apply: %v", err)
	}
	if applied {
		t.Fatal("duplicate apply must report applied=false")
	}

	st, err := s.GetMonitorState(ctx, m.ID)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if st.Status != StatusUp || st.ConsecutiveSuccesses != 1 {
		t.Fatalf("state mutated by duplicate apply: %+v", st)
	}

	results, err := s.ListCheckResults(ctx, m.ID, 0, 2000)
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result row, got %d", len(results))
	}
}

func TestApplyCheckOutageLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	m := mkMonitor(t, s, "api", 60)

	// Transition to down opens an outage.
	openApp := &CheckApplication{
		Result:     &CheckResult{MonitorID: m.ID, CheckedAt: 1000, Status: StatusDown, Error: "timeout"},
		State:      &MonitorState{MonitorID: m.ID, Status: StatusDown, LastCheckedAt: i64(1000), LastError: "timeout", ConsecutiveFailures: 2},
		OpenOutage: &Outage{MonitorID: m.ID, StartedAt: 1000, InitialError: "timeout", LastError: "timeout"},
	}
	if _, err := s.ApplyCheck(ctx, openApp); err != nil {
		t.Fatalf("open apply: %v", err)
	}
	if openApp.OpenOutage.ID == 0 {
		t.Fatal("expected outage id assigned")
	}

	open, err := s.GetOpenOutage(ctx, m.ID)
	if err != nil {
		t.Fatalf("get open outage: %v", err)
	}
	if open.ID != openApp.OpenOutage.ID || open.EndedAt != nil {
		t.Fatalf("unexpected open outage: %+v", open)
	}

	// A second open for the same monitor violates the partial unique index.
	second := &CheckApplication{
		Result:     &CheckResult{MonitorID: m.ID, CheckedAt: 1060, Status: StatusDown, Error: "timeout"},
		OpenOutage: &Outage{MonitorID: m.ID, StartedAt: 1060, InitialError: "timeout"},
	}
	if _, err := s.ApplyCheck(ctx, second); err == nil {
		t.Fatal("expected second open outage to fail")
	}

	// While down, the error text on the open outage gets refreshed.
	refresh := &CheckApplication{
		Result:      &CheckResult{MonitorID: m.ID, CheckedAt: 1120, Status: StatusDown, Error: "connect_refused"},
		OutageError: &OutageErrorUpdate{OutageID: open.ID, LastError: "connect_refused"},
	}
	if _, err := s.ApplyCheck(ctx, refresh); err != nil {
		t.Fatalf("refresh apply: %v", err)
	}
	open, _ = s.GetOpenOutage(ctx, m.ID)
	if open.LastError != "connect_refused" || open.InitialError != "timeout" {
		t.Fatalf("error refresh wrong: %+v", open)
	}

	// Recovery closes it.
	closeApp := &CheckApplication{
		Result:      &CheckResult{MonitorID: m.ID, CheckedAt: 1180, Status: StatusUp, LatencyMs: i64(20)},
		State:       &MonitorState{MonitorID: m.ID, Status: StatusUp, LastCheckedAt: i64(1180), ConsecutiveSuccesses: 2},
		CloseOutage: &OutageClose{OutageID: open.ID, EndedAt: 1180},
	}
	if _, err := s.ApplyCheck(ctx, closeApp); err != nil {
		t.Fatalf("close apply: %v", err)
	}
	if _, err := s.GetOpenOutage(ctx, m.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no open outage, got %v", err)
	}

	outages, err := s.ListOutagesOverlapping(ctx, m.ID, 0, 2000)
	if err != nil {
		t.Fatalf("list overlapping: %v", err)
	}
	if len(outages) != 1 || outages[0].EndedAt == nil || *outages[0].EndedAt != 1180 {
		t.Fatalf("unexpected outages: %+v", outages)
	}
}

func TestLatencyStats(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	m := mkMonitor(t, s, "api", 60)

	for i, ms := range []int64{10, 20, 30, 40} {
		_, err := s.ApplyCheck(ctx, &CheckApplication{
			Result: &CheckResult{MonitorID: m.ID, CheckedAt: int64(1000 + i*60), Status: StatusUp, LatencyMs: i64(ms)},
		})
		if err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}
	// A failed check with no latency must not skew the stats.
	if _, err := s.ApplyCheck(ctx, &CheckApplication{
		Result: &CheckResult{MonitorID: m.ID, CheckedAt: 1300, Status: StatusDown, Error: "timeout"},
	}); err != nil {
		t.Fatalf("apply down: %v", err)
	}

	stats, err := s.LatencyStats(ctx, m.ID, 0, 2000)
	if err != nil {
		t.Fatalf("latency stats: %v", err)
	}
	if len(stats.Points) != 4 {
		t.Fatalf("expected 4 points, got %d", len(stats.Points))
	}
	if stats.AvgLatencyMs != 25 {
		t.Fatalf("expected avg 25, got %v", stats.AvgLatencyMs)
	}
	if stats.P95LatencyMs != 40 {
		t.Fatalf("expected p95 40, got %d", stats.P95LatencyMs)
	}
}

func TestPurgeCheckResultsBoundary(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	m := mkMonitor(t, s, "api", 60)

	for _, at := range []int64{100, 200, 300} {
		if _, err := s.ApplyCheck(ctx, &CheckApplication{
			Result: &CheckResult{MonitorID: m.ID, CheckedAt: at, Status: StatusUp, LatencyMs: i64(5)},
		}); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	n, err := s.PurgeCheckResults(ctx, 200)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deleted row, got %d", n)
	}
	left, _ := s.ListCheckResults(ctx, m.ID, 0, 1000)
	if len(left) != 2 || left[0].CheckedAt != 200 {
		t.Fatalf("cutoff row must survive: %+v", left)
	}
}

func TestClaimDeliveryAtMostOnce(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	ch := &NotificationChannel{Name: "ops", Config: []byte(`{"url":"https://hooks.example.com/x"}`)}
	if err := s.CreateNotificationChannel(ctx, ch); err != nil {
		t.Fatalf("create channel: %v", err)
	}

	d, err := s.ClaimDelivery(ctx, "monitor.down:1:1", ch.ID, 1000)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if d.Status != DeliveryPending {
		t.Fatalf("expected pending, got %s", d.Status)
	}

	if _, err := s.ClaimDelivery(ctx, "monitor.down:1:1", ch.ID, 1001); !errors.Is(err, ErrDuplicateDelivery) {
		t.Fatalf("expected ErrDuplicateDelivery, got %v", err)
	}

	// Same event to a second channel is a separate claim.
	ch2 := &NotificationChannel{Name: "backup", Config: []byte(`{"url":"https://hooks.example.com/y"}`)}
	if err := s.CreateNotificationChannel(ctx, ch2); err != nil {
		t.Fatalf("create channel 2: %v", err)
	}
	if _, err := s.ClaimDelivery(ctx, "monitor.down:1:1", ch2.ID, 1002); err != nil {
		t.Fatalf("second channel claim: %v", err)
	}

	code := 200
	if err := s.FinalizeDelivery(ctx, d.ID, DeliverySuccess, &code, "", 1005); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	got, err := s.GetDelivery(ctx, "monitor.down:1:1", ch.ID)
	if err != nil {
		t.Fatalf("get delivery: %v", err)
	}
	if got.Status != DeliverySuccess || got.HTTPStatus == nil || *got.HTTPStatus != 200 || got.FinalizedAt == nil {
		t.Fatalf("unexpected delivery: %+v", got)
	}
}

func TestAcquireLock(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.AcquireLock(ctx, "scheduled-tick", "holder-a", 1000, 120); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	// Contender before expiry is rejected.
	if err := s.AcquireLock(ctx, "scheduled-tick", "holder-b", 1060, 120); !errors.Is(err, ErrLeaseHeld) {
		t.Fatalf("expected ErrLeaseHeld, got %v", err)
	}

	// Same holder renews freely.
	if err := s.AcquireLock(ctx, "scheduled-tick", "holder-a", 1060, 120); err != nil {
		t.Fatalf("renew: %v", err)
	}

	// After expiry anyone can claim.
	if err := s.AcquireLock(ctx, "scheduled-tick", "holder-b", 1180, 120); err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}

	// Release scoped to the holder: a stale holder's release is a no-op.
	if err := s.ReleaseLock(ctx, "scheduled-tick", "holder-a"); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if err := s.AcquireLock(ctx, "scheduled-tick", "holder-c", 1181, 120); !errors.Is(err, ErrLeaseHeld) {
		t.Fatalf("stale release must not free the lease: %v", err)
	}

	if err := s.ReleaseLock(ctx, "scheduled-tick", "holder-b"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := s.AcquireLock(ctx, "scheduled-tick", "holder-c", 1182, 120); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestDailyRollups(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	m := mkMonitor(t, s, "api", 60)

	day := int64(86400)
	for i := int64(0); i < 3; i++ {
		r := &DailyRollup{
			MonitorID:   m.ID,
			DayStartAt:  i * day,
			TotalSec:    day,
			DowntimeSec: 600 * (i + 1),
			UnknownSec:  0,
		}
		r.UptimeSec = r.TotalSec - r.DowntimeSec
		if err := s.UpsertDailyRollup(ctx, r); err != nil {
			t.Fatalf("upsert rollup: %v", err)
		}
	}

	// Upsert replaces rather than duplicating.
	if err := s.UpsertDailyRollup(ctx, &DailyRollup{
		MonitorID: m.ID, DayStartAt: 0, TotalSec: day, DowntimeSec: 0, UptimeSec: day,
	}); err != nil {
		t.Fatalf("re-upsert rollup: %v", err)
	}

	rollups, err := s.ListDailyRollups(ctx, m.ID, 0, 3*day)
	if err != nil {
		t.Fatalf("list rollups: %v", err)
	}
	if len(rollups) != 3 || rollups[0].DowntimeSec != 0 {
		t.Fatalf("unexpected rollups: %+v", rollups)
	}

	sum, err := s.SumDailyRollups(ctx, m.ID, 0, 3*day)
	if err != nil {
		t.Fatalf("sum rollups: %v", err)
	}
	if sum.TotalSec != 3*day || sum.DowntimeSec != 600*2+600*3 {
		t.Fatalf("unexpected sum: %+v", sum)
	}
}

func TestMaintenanceCoverage(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	m := mkMonitor(t, s, "api", 60)

	w := &MaintenanceWindow{
		Title:      "db upgrade",
		StartsAt:   1000,
		EndsAt:     2000,
		MonitorIDs: []int64{m.ID},
	}
	if err := s.CreateMaintenanceWindow(ctx, w); err != nil {
		t.Fatalf("create window: %v", err)
	}

	// Half-open interval: starts_at inclusive, ends_at exclusive.
	cases := []struct {
		at   int64
		want bool
	}{
		{999, false},
		{1000, true},
		{1999, true},
		{2000, false},
	}
	for _, tc := range cases {
		got, err := s.IsMonitorInMaintenance(ctx, m.ID, tc.at)
		if err != nil {
			t.Fatalf("maintenance at %d: %v", tc.at, err)
		}
		if got != tc.want {
			t.Errorf("at %d: got %v, want %v", tc.at, got, tc.want)
		}
	}

	if err := s.CreateMaintenanceWindow(ctx, &MaintenanceWindow{Title: "bad", StartsAt: 500, EndsAt: 500}); err == nil {
		t.Fatal("expected zero-length window to be rejected")
	}

	started, err := s.ListWindowsStartedBetween(ctx, 900, 1000)
	if err != nil {
		t.Fatalf("started between: %v", err)
	}
	if len(started) != 1 || started[0].ID != w.ID {
		t.Fatalf("unexpected started windows: %+v", started)
	}
	ended, err := s.ListWindowsEndedBetween(ctx, 1999, 2100)
	if err != nil {
		t.Fatalf("ended between: %v", err)
	}
	if len(ended) != 1 {
		t.Fatalf("unexpected ended windows: %+v", ended)
	}
}

func TestIncidentLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	m := mkMonitor(t, s, "api", 60)

	inc := &Incident{
		Title:      "elevated error rates",
		Status:     IncidentInvestigating,
		Impact:     ImpactMajor,
		Message:    "looking into it",
		StartedAt:  1000,
		MonitorIDs: []int64{m.ID},
	}
	if err := s.CreateIncident(ctx, inc); err != nil {
		t.Fatalf("create incident: %v", err)
	}

	open, err := s.ListOpenIncidents(ctx, 10)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 1 || open[0].ID != inc.ID {
		t.Fatalf("unexpected open incidents: %+v", open)
	}

	if err := s.InsertIncidentUpdate(ctx, &IncidentUpdate{
		IncidentID: inc.ID, Status: IncidentIdentified, Message: "bad deploy", CreatedAt: 1100,
	}); err != nil {
		t.Fatalf("insert update: %v", err)
	}

	inc.Status = IncidentResolved
	inc.ResolvedAt = i64(1200)
	if err := s.UpdateIncident(ctx, inc); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	open, _ = s.ListOpenIncidents(ctx, 10)
	if len(open) != 0 {
		t.Fatalf("resolved incident still open: %+v", open)
	}

	got, err := s.GetIncident(ctx, inc.ID)
	if err != nil {
		t.Fatalf("get incident: %v", err)
	}
	if got.Status != IncidentResolved || got.ResolvedAt == nil || len(got.MonitorIDs) != 1 {
		t.Fatalf("unexpected incident: %+v", got)
	}

	updates, err := s.ListIncidentUpdates(ctx, inc.ID)
	if err != nil {
		t.Fatalf("list updates: %v", err)
	}
	if len(updates) != 1 || updates[0].Status != IncidentIdentified {
		t.Fatalf("unexpected updates: %+v", updates)
	}
}

func TestSnapshots(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.GetSnapshot(ctx, "status"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.UpsertSnapshot(ctx, &Snapshot{Key: "status", GeneratedAt: 1000, Body: []byte(`{"overall":"up"}`)}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.UpsertSnapshot(ctx, &Snapshot{Key: "status", GeneratedAt: 1060, Body: []byte(`{"overall":"down"}`)}); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	got, err := s.GetSnapshot(ctx, "status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.GeneratedAt != 1060 || string(got.Body) != `{"overall":"down"}` {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

func TestParseStatusDegrades(t *testing.T) {
	if got := ParseStatus("degraded"); got != StatusUnknown {
		t.Fatalf("expected unknown, got %s", got)
	}
	if got := ParseStatus("up"); got != StatusUp {
		t.Fatalf("expected up, got %s", got)
	}
}
