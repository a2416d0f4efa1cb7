package statuspage

import (
	"context"
	"log/slog"

	"github.com/uptimer-dev/uptimer/internal/storage"
)

const (
	heartbeatCount    = 60
	heartbeatLookback = 7 * daySec
	daySec            = 86400
	openIncidentCap   = 10
	upcomingCap       = 5
)

// MonitorView is one monitor's public status-page row.
type MonitorView struct {
	ID            int64               `json:"id"`
	Name          string              `json:"name"`
	Type          storage.MonitorType `json:"type"`
	Status        storage.Status      `json:"status"`
	LastCheckedAt *int64              `json:"last_checked_at,omitempty"`
	LastLatencyMs *int64              `json:"last_latency_ms,omitempty"`
	Heartbeats    []Heartbeat         `json:"heartbeats"`
}

// Heartbeat is one recent check rendered as a timeline segment.
type Heartbeat struct {
	At        int64          `json:"at"`
	Status    storage.Status `json:"status"`
	LatencyMs *int64         `json:"latency_ms,omitempty"`
}

// Summary counts monitors by effective status.
type Summary struct {
	Up          int `json:"up"`
	Down        int `json:"down"`
	Maintenance int `json:"maintenance"`
	Paused      int `json:"paused"`
	Unknown     int `json:"unknown"`
	Total       int `json:"total"`
}

// MaintenanceView splits windows into running and scheduled.
type MaintenanceView struct {
	Active   []*storage.MaintenanceWindow `json:"active"`
	Upcoming []*storage.MaintenanceWindow `json:"upcoming"`
}

// StatusPage is the full public snapshot body.
type StatusPage struct {
	GeneratedAt     int64               `json:"generated_at"`
	OverallStatus   storage.Status      `json:"overall_status"`
	Banner          Banner              `json:"banner"`
	Summary         Summary             `json:"summary"`
	Monitors        []MonitorView       `json:"monitors"`
	ActiveIncidents []*storage.Incident `json:"active_incidents"`
	Maintenance     MaintenanceView     `json:"maintenance_windows"`
}

// Aggregator computes the status page from the store. It holds no state of
// its own; every Build is a pure read.
type Aggregator struct {
	store  storage.Store
	logger *slog.Logger
}

func NewAggregator(store storage.Store, logger *slog.Logger) *Aggregator {
	return &Aggregator{store: store, logger: logger}
}

// Build assembles the status page as of now.
func (a *Aggregator) Build(ctx context.Context, now int64) (*StatusPage, error) {
	monitors, err := a.store.ListActiveMonitors(ctx)
	if err != nil {
		return nil, err
	}
	states, err := a.store.ListMonitorStates(ctx)
	if err != nil {
		return nil, err
	}
	inMaint, err := a.store.MonitorsInMaintenance(ctx, now)
	if err != nil {
		return nil, err
	}

	var summary Summary
	views := make([]MonitorView, 0, len(monitors))
	for _, m := range monitors {
		st := states[m.ID]
		view := MonitorView{ID: m.ID, Name: m.Name, Type: m.Type}
		view.Status = effectiveStatus(m, st, inMaint[m.ID], now)
		if st != nil {
			view.LastCheckedAt = st.LastCheckedAt
			if view.Status != storage.StatusUnknown {
				view.LastLatencyMs = st.LastLatencyMs
			}
		}

		beats, err := a.store.ListRecentCheckResults(ctx, m.ID, now-heartbeatLookback, heartbeatCount)
		if err != nil {
			return nil, err
		}
		view.Heartbeats = make([]Heartbeat, 0, len(beats))
		for _, r := range beats {
			view.Heartbeats = append(view.Heartbeats, Heartbeat{At: r.CheckedAt, Status: r.Status, LatencyMs: r.LatencyMs})
		}

		switch view.Status {
		case storage.StatusUp:
			summary.Up++
		case storage.StatusDown:
			summary.Down++
		case storage.StatusMaintenance:
			summary.Maintenance++
		case storage.StatusPaused:
			summary.Paused++
		default:
			summary.Unknown++
		}
		summary.Total++
		views = append(views, view)
	}

	incidents, err := a.store.ListOpenIncidents(ctx, openIncidentCap)
	if err != nil {
		return nil, err
	}
	active, err := a.store.ListActiveWindows(ctx, now)
	if err != nil {
		return nil, err
	}
	upcoming, err := a.store.ListUpcomingWindows(ctx, now, upcomingCap)
	if err != nil {
		return nil, err
	}

	return &StatusPage{
		GeneratedAt:     now,
		OverallStatus:   overallStatus(summary),
		Banner:          ComputeBanner(incidents, summary, active),
		Summary:         summary,
		Monitors:        views,
		ActiveIncidents: incidents,
		Maintenance:     MaintenanceView{Active: active, Upcoming: upcoming},
	}, nil
}

// effectiveStatus layers maintenance and staleness over the stored status.
// A state older than twice the probe interval no longer proves anything.
func effectiveStatus(m *storage.Monitor, st *storage.MonitorState, inMaintenance bool, now int64) storage.Status {
	if inMaintenance {
		return storage.StatusMaintenance
	}
	if st != nil && (st.Status == storage.StatusPaused || st.Status == storage.StatusMaintenance) {
		return st.Status
	}
	if st == nil || st.LastCheckedAt == nil || now-*st.LastCheckedAt > 2*m.IntervalSec {
		return storage.StatusUnknown
	}
	return st.Status
}

func overallStatus(s Summary) storage.Status {
	switch {
	case s.Down > 0:
		return storage.StatusDown
	case s.Unknown > 0:
		return storage.StatusUnknown
	case s.Maintenance > 0:
		return storage.StatusMaintenance
	case s.Up > 0:
		return storage.StatusUp
	case s.Paused > 0:
		return storage.StatusPaused
	default:
		return storage.StatusUnknown
	}
}

// MonitorUptime pairs a monitor with its uptime totals for the overview.
type MonitorUptime struct {
	MonitorID int64  `json:"monitor_id"`
	Name      string `json:"name"`
	UptimeReport
}

// UptimeOverview sums daily rollups for whole past days and adds a
// live-computed partial for today.
func (a *Aggregator) UptimeOverview(ctx context.Context, now int64, rangeDays int) ([]MonitorUptime, error) {
	monitors, err := a.store.ListActiveMonitors(ctx)
	if err != nil {
		return nil, err
	}
	today := now - now%daySec
	fromDay := today - int64(rangeDays)*daySec

	out := make([]MonitorUptime, 0, len(monitors))
	for _, m := range monitors {
		rep, err := a.rollupUptime(ctx, m, fromDay, today, now)
		if err != nil {
			return nil, err
		}
		out = append(out, MonitorUptime{MonitorID: m.ID, Name: m.Name, UptimeReport: rep})
	}
	return out, nil
}

// MonitorUptimeReport computes one monitor's uptime over the trailing range.
// Short ranges are computed live from check results; ranges of 30 days or
// more sum precomputed rollups for whole past days plus a live partial today.
func (a *Aggregator) MonitorUptimeReport(ctx context.Context, m *storage.Monitor, now int64, rangeSec int64) (UptimeReport, error) {
	if rangeSec < 30*daySec {
		rep, err := UptimeBetween(ctx, a.store, m, now-rangeSec, now)
		if err != nil {
			return UptimeReport{}, err
		}
		return *rep, nil
	}
	today := now - now%daySec
	return a.rollupUptime(ctx, m, today-rangeSec, today, now)
}

func (a *Aggregator) rollupUptime(ctx context.Context, m *storage.Monitor, fromDay, today, now int64) (UptimeReport, error) {
	past, err := a.store.SumDailyRollups(ctx, m.ID, fromDay, today)
	if err != nil {
		return UptimeReport{}, err
	}
	live, err := UptimeBetween(ctx, a.store, m, today, now)
	if err != nil {
		return UptimeReport{}, err
	}

	rep := UptimeReport{
		TotalSec:    past.TotalSec + live.TotalSec,
		DowntimeSec: past.DowntimeSec + live.DowntimeSec,
		UnknownSec:  past.UnknownSec + live.UnknownSec,
		UptimeSec:   past.UptimeSec + live.UptimeSec,
	}
	if rep.TotalSec > 0 {
		pct := 100 * float64(rep.UptimeSec) / float64(rep.TotalSec)
		rep.UptimePct = &pct
	}
	return rep, nil
}
