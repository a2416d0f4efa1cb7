package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicateDelivery is returned when a (event_key, channel_id)
	// delivery has already been claimed.
	ErrDuplicateDelivery = errors.New("storage: delivery already claimed")
	// ErrLeaseHeld is returned when a lock is held by another holder.
	ErrLeaseHeld = errors.New("storage: lease held")
)

// Store defines the complete storage interface.
type Store interface {
	// Monitors
	CreateMonitor(ctx context.Context, m *Monitor) error
	GetMonitor(ctx context.Context, id int64) (*Monitor, error)
	UpdateMonitor(ctx context.Context, m *Monitor) error
	SetMonitorActive(ctx context.Context, id int64, active bool) error
	ListActiveMonitors(ctx context.Context) ([]*Monitor, error)
	// ListDueMonitors returns active monitors whose last check is absent or
	// at least interval_sec old, capped at limit.
	ListDueMonitors(ctx context.Context, now int64, limit int) ([]*Monitor, error)

	// Monitor state (runtime)
	GetMonitorState(ctx context.Context, monitorID int64) (*MonitorState, error)
	ListMonitorStates(ctx context.Context) (map[int64]*MonitorState, error)

	// ApplyCheck persists one probe apply atomically: check result insert,
	// monitor_state upsert, and at most one outage mutation. Re-applying the
	// same (monitor_id, checked_at) is a no-op and returns applied=false.
	ApplyCheck(ctx context.Context, app *CheckApplication) (applied bool, err error)

	// Check results
	ListCheckResults(ctx context.Context, monitorID int64, from, to int64) ([]*CheckResult, error)
	ListRecentCheckResults(ctx context.Context, monitorID int64, since int64, limit int) ([]*CheckResult, error)
	LatencyStats(ctx context.Context, monitorID int64, from, to int64) (*LatencySeries, error)
	PurgeCheckResults(ctx context.Context, before int64) (int64, error)

	// Outages
	GetOpenOutage(ctx context.Context, monitorID int64) (*Outage, error)
	ListOutages(ctx context.Context, monitorID int64, from int64, p Pagination) ([]*Outage, error)
	ListOutagesOverlapping(ctx context.Context, monitorID int64, from, to int64) ([]*Outage, error)

	// Incidents
	CreateIncident(ctx context.Context, inc *Incident) error
	GetIncident(ctx context.Context, id int64) (*Incident, error)
	UpdateIncident(ctx context.Context, inc *Incident) error
	ListIncidents(ctx context.Context, p Pagination) ([]*Incident, error)
	ListOpenIncidents(ctx context.Context, limit int) ([]*Incident, error)
	InsertIncidentUpdate(ctx context.Context, u *IncidentUpdate) error
	ListIncidentUpdates(ctx context.Context, incidentID int64) ([]*IncidentUpdate, error)
	SetIncidentMonitors(ctx context.Context, incidentID int64, monitorIDs []int64) error

	// Maintenance windows
	CreateMaintenanceWindow(ctx context.Context, w *MaintenanceWindow) error
	GetMaintenanceWindow(ctx context.Context, id int64) (*MaintenanceWindow, error)
	UpdateMaintenanceWindow(ctx context.Context, w *MaintenanceWindow) error
	DeleteMaintenanceWindow(ctx context.Context, id int64) error
	ListMaintenanceWindows(ctx context.Context, p Pagination) ([]*MaintenanceWindow, error)
	SetMaintenanceMonitors(ctx context.Context, windowID int64, monitorIDs []int64) error
	IsMonitorInMaintenance(ctx context.Context, monitorID int64, at int64) (bool, error)
	MonitorsInMaintenance(ctx context.Context, at int64) (map[int64]bool, error)
	ListActiveWindows(ctx context.Context, at int64) ([]*MaintenanceWindow, error)
	ListUpcomingWindows(ctx context.Context, at int64, limit int) ([]*MaintenanceWindow, error)
	ListWindowsStartedBetween(ctx context.Context, after, until int64) ([]*MaintenanceWindow, error)
	ListWindowsEndedBetween(ctx context.Context, after, until int64) ([]*MaintenanceWindow, error)

	// Notification channels
	CreateNotificationChannel(ctx context.Context, ch *NotificationChannel) error
	GetNotificationChannel(ctx context.Context, id int64) (*NotificationChannel, error)
	UpdateNotificationChannel(ctx context.Context, ch *NotificationChannel) error
	DeleteNotificationChannel(ctx context.Context, id int64) error
	ListNotificationChannels(ctx context.Context) ([]*NotificationChannel, error)

	// Deliveries
	ClaimDelivery(ctx context.Context, eventKey string, channelID int64, now int64) (*Delivery, error)
	FinalizeDelivery(ctx context.Context, id int64, status DeliveryStatus, httpStatus *int, errMsg string, now int64) error
	GetDelivery(ctx context.Context, eventKey string, channelID int64) (*Delivery, error)

	// Locks
	AcquireLock(ctx context.Context, name, holder string, now, ttlSec int64) error
	ReleaseLock(ctx context.Context, name, holder string) error

	// Daily rollups
	UpsertDailyRollup(ctx context.Context, r *DailyRollup) error
	ListDailyRollups(ctx context.Context, monitorID int64, fromDay, toDay int64) ([]*DailyRollup, error)
	SumDailyRollups(ctx context.Context, monitorID int64, fromDay, toDay int64) (*DailyRollup, error)

	// Snapshots
	UpsertSnapshot(ctx context.Context, s *Snapshot) error
	GetSnapshot(ctx context.Context, key string) (*Snapshot, error)

	// Lifecycle
	Close() error
}

// LatencySeries holds latency aggregates over a time range.
type LatencySeries struct {
	Points       []LatencyPoint `json:"points"`
	AvgLatencyMs float64        `json:"avg_latency_ms"`
	P95LatencyMs int64          `json:"p95_latency_ms"`
}

// LatencyPoint is a single latency sample for charts.
type LatencyPoint struct {
	CheckedAt int64 `json:"t"`
	LatencyMs int64 `json:"ms"`
}
