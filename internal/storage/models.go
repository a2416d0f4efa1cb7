package storage

import "encoding/json"

// MonitorType is the probe protocol for a monitor.
type MonitorType string

const (
	TypeHTTP MonitorType = "http"
	TypeTCP  MonitorType = "tcp"
)

// Status is the closed vocabulary for monitor state and check results.
type Status string

const (
	StatusUp          Status = "up"
	StatusDown        Status = "down"
	StatusMaintenance Status = "maintenance"
	StatusPaused      Status = "paused"
	StatusUnknown     Status = "unknown"
)

// ParseStatus maps a stored value onto the closed vocabulary. Values written
// by older schemas degrade to unknown rather than leaking free-form strings.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusUp, StatusDown, StatusMaintenance, StatusPaused:
		return Status(s)
	default:
		return StatusUnknown
	}
}

// IncidentStatus is the lifecycle state of an operator-authored incident.
type IncidentStatus string

const (
	IncidentInvestigating IncidentStatus = "investigating"
	IncidentIdentified    IncidentStatus = "identified"
	IncidentMonitoring    IncidentStatus = "monitoring"
	IncidentResolved      IncidentStatus = "resolved"
)

func ParseIncidentStatus(s string) IncidentStatus {
	switch IncidentStatus(s) {
	case IncidentIdentified, IncidentMonitoring, IncidentResolved:
		return IncidentStatus(s)
	default:
		return IncidentInvestigating
	}
}

// Impact is the severity of an incident.
type Impact string

const (
	ImpactNone     Impact = "none"
	ImpactMinor    Impact = "minor"
	ImpactMajor    Impact = "major"
	ImpactCritical Impact = "critical"
)

func ParseImpact(s string) Impact {
	switch Impact(s) {
	case ImpactMinor, ImpactMajor, ImpactCritical:
		return Impact(s)
	default:
		return ImpactNone
	}
}

// DeliveryStatus is the state of a webhook delivery attempt.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySuccess DeliveryStatus = "success"
	DeliveryFailed  DeliveryStatus = "failed"
)

// Monitor is a user-registered probe target. All timestamps in this package
// are whole seconds since the Unix epoch.
type Monitor struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Type           MonitorType     `json:"type"`
	Active         bool            `json:"active"`
	IntervalSec    int64           `json:"interval_sec"`
	TimeoutMs      int64           `json:"timeout_ms"`
	FailuresToDown int             `json:"failures_to_down"`
	SuccessesToUp  int             `json:"successes_to_up"`
	Config         json.RawMessage `json:"config"`
	CreatedAt      int64           `json:"created_at"`
}

// HTTPConfig is the decoded config blob for http monitors.
type HTTPConfig struct {
	URL             string            `json:"url" validate:"required,url"`
	Method          string            `json:"method,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	Body            string            `json:"body,omitempty"`
	FollowRedirects *bool             `json:"follow_redirects,omitempty"`
	ExpectedStatus  []int             `json:"expected_status,omitempty"`
	Keyword         string            `json:"keyword,omitempty"`
}

// TCPConfig is the decoded config blob for tcp monitors.
type TCPConfig struct {
	Host string `json:"host" validate:"required"`
	Port int    `json:"port" validate:"required,min=1,max=65535"`
}

// MonitorState holds the runtime state of a monitor; at most one row per monitor.
type MonitorState struct {
	MonitorID            int64  `json:"monitor_id"`
	Status               Status `json:"status"`
	LastCheckedAt        *int64 `json:"last_checked_at,omitempty"`
	LastLatencyMs        *int64 `json:"last_latency_ms,omitempty"`
	LastError            string `json:"last_error,omitempty"`
	ConsecutiveFailures  int    `json:"consecutive_failures"`
	ConsecutiveSuccesses int    `json:"consecutive_successes"`
}

// CheckResult is one row of the append-only probe log.
type CheckResult struct {
	ID        int64  `json:"id"`
	MonitorID int64  `json:"monitor_id"`
	CheckedAt int64  `json:"checked_at"`
	Status    Status `json:"status"`
	LatencyMs *int64 `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Outage is a closed or open downtime interval. EndedAt nil means still open.
type Outage struct {
	ID           int64  `json:"id"`
	MonitorID    int64  `json:"monitor_id"`
	StartedAt    int64  `json:"started_at"`
	EndedAt      *int64 `json:"ended_at,omitempty"`
	InitialError string `json:"initial_error,omitempty"`
	LastError    string `json:"last_error,omitempty"`
}

// Incident is an operator-authored event shown on the status page.
type Incident struct {
	ID         int64          `json:"id"`
	Title      string         `json:"title"`
	Status     IncidentStatus `json:"status"`
	Impact     Impact         `json:"impact"`
	Message    string         `json:"message"`
	StartedAt  int64          `json:"started_at"`
	ResolvedAt *int64         `json:"resolved_at,omitempty"`
	MonitorIDs []int64        `json:"monitor_ids,omitempty"`
}

// IncidentUpdate is an append-only timeline entry within an incident.
type IncidentUpdate struct {
	ID         int64          `json:"id"`
	IncidentID int64          `json:"incident_id"`
	Status     IncidentStatus `json:"status"`
	Message    string         `json:"message"`
	CreatedAt  int64          `json:"created_at"`
}

// MaintenanceWindow is a planned suppression interval. A monitor is in
// maintenance at T iff a linked window has starts_at <= T < ends_at.
type MaintenanceWindow struct {
	ID         int64   `json:"id"`
	Title      string  `json:"title"`
	Message    string  `json:"message,omitempty"`
	StartsAt   int64   `json:"starts_at"`
	EndsAt     int64   `json:"ends_at"`
	CreatedAt  int64   `json:"created_at"`
	MonitorIDs []int64 `json:"monitor_ids,omitempty"`
}

// NotificationChannel is a webhook sink.
type NotificationChannel struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Config    json.RawMessage `json:"config"`
	CreatedAt int64           `json:"created_at"`
}

// ChannelConfig is the decoded config blob for a notification channel.
type ChannelConfig struct {
	URL             string            `json:"url" validate:"required,url"`
	Method          string            `json:"method,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	PayloadType     string            `json:"payload_type,omitempty"` // json, x-www-form-urlencoded, param
	TimeoutMs       int64             `json:"timeout_ms,omitempty"`
	Signing         *SigningConfig    `json:"signing,omitempty"`
	MessageTemplate string            `json:"message_template,omitempty"`
	PayloadTemplate json.RawMessage   `json:"payload_template,omitempty"`
	EnabledEvents   []string          `json:"enabled_events,omitempty"`
}

// SigningConfig enables HMAC-SHA256 request signing. The secret itself is
// resolved from the environment via SecretRef, never stored in the database.
type SigningConfig struct {
	Enabled   bool   `json:"enabled"`
	SecretRef string `json:"secret_ref,omitempty"`
}

// Delivery is one row of the notification idempotency ledger; unique per
// (event_key, channel_id).
type Delivery struct {
	ID          int64          `json:"id"`
	EventKey    string         `json:"event_key"`
	ChannelID   int64          `json:"channel_id"`
	Status      DeliveryStatus `json:"status"`
	HTTPStatus  *int           `json:"http_status,omitempty"`
	Error       string         `json:"error,omitempty"`
	AttemptedAt int64          `json:"attempted_at"`
	FinalizedAt *int64         `json:"finalized_at,omitempty"`
}

// Lock is a named time-bounded lease row.
type Lock struct {
	Name       string `json:"name"`
	Holder     string `json:"holder"`
	AcquiredAt int64  `json:"acquired_at"`
	ExpiresAt  int64  `json:"expires_at"`
}

// DailyRollup holds precomputed per-monitor totals for one UTC day.
type DailyRollup struct {
	MonitorID   int64 `json:"monitor_id"`
	DayStartAt  int64 `json:"day_start_at"`
	TotalSec    int64 `json:"total_sec"`
	DowntimeSec int64 `json:"downtime_sec"`
	UnknownSec  int64 `json:"unknown_sec"`
	UptimeSec   int64 `json:"uptime_sec"`
}

// Snapshot is a precomputed status-page body keyed by a small namespace.
type Snapshot struct {
	Key         string          `json:"key"`
	GeneratedAt int64           `json:"generated_at"`
	Body        json.RawMessage `json:"body"`
}

// OutageClose closes an open outage as part of a check application.
type OutageClose struct {
	OutageID int64
	EndedAt  int64
}

// OutageErrorUpdate refreshes the last_error of an open outage.
type OutageErrorUpdate struct {
	OutageID  int64
	LastError string
}

// CheckApplication is the atomic unit persisted for one probe apply: the
// check result row, the state upsert, and at most one outage mutation are
// durable together or not at all.
type CheckApplication struct {
	Result      *CheckResult
	State       *MonitorState // nil leaves monitor_state untouched
	OpenOutage  *Outage
	CloseOutage *OutageClose
	OutageError *OutageErrorUpdate
}

// Pagination contains parameters for list queries.
type Pagination struct {
	Limit  int   `json:"limit"`
	Cursor int64 `json:"cursor"` // descending id cursor; 0 means from the top
}
