package incident

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/uptimer-dev/uptimer/internal/notifier"
	"github.com/uptimer-dev/uptimer/internal/storage"
)

// EventSink receives incident lifecycle events for webhook fan-out.
type EventSink interface {
	Dispatch(ctx context.Context, ev notifier.Event)
}

// Manager owns the operator-facing incident lifecycle: create, append
// timeline updates, resolve. Every lifecycle step emits exactly one event,
// keyed by the immutable timeline row so retries dedup downstream.
type Manager struct {
	store  storage.Store
	sink   EventSink
	logger *slog.Logger

	Now func() int64
}

func NewManager(store storage.Store, sink EventSink, logger *slog.Logger) *Manager {
	return &Manager{
		store:  store,
		sink:   sink,
		logger: logger,
		Now:    func() int64 { return time.Now().Unix() },
	}
}

// Create opens a new incident with an initial timeline entry.
func (m *Manager) Create(ctx context.Context, inc *storage.Incident) error {
	if strings.TrimSpace(inc.Title) == "" {
		return fmt.Errorf("incident title is required")
	}
	if inc.Status == "" {
		inc.Status = storage.IncidentInvestigating
	}
	if inc.Impact == "" {
		inc.Impact = storage.ImpactNone
	}
	if inc.StartedAt == 0 {
		inc.StartedAt = m.Now()
	}

	if err := m.store.CreateIncident(ctx, inc); err != nil {
		return err
	}
	u := &storage.IncidentUpdate{
		IncidentID: inc.ID,
		Status:     inc.Status,
		Message:    inc.Message,
		CreatedAt:  inc.StartedAt,
	}
	if err := m.store.InsertIncidentUpdate(ctx, u); err != nil {
		return err
	}

	m.emit(ctx, "incident.created", inc, u)
	return nil
}

// AddUpdate appends a timeline entry and moves the incident to the given
// status. A resolved status stamps resolved_at and emits incident.resolved
// instead of incident.updated.
func (m *Manager) AddUpdate(ctx context.Context, incidentID int64, status storage.IncidentStatus, message string) (*storage.Incident, error) {
	inc, err := m.store.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if inc.ResolvedAt != nil {
		return nil, fmt.Errorf("incident %d is already resolved", incidentID)
	}

	now := m.Now()
	u := &storage.IncidentUpdate{
		IncidentID: incidentID,
		Status:     status,
		Message:    message,
		CreatedAt:  now,
	}
	if err := m.store.InsertIncidentUpdate(ctx, u); err != nil {
		return nil, err
	}

	inc.Status = status
	inc.Message = message
	eventType := "incident.updated"
	if status == storage.IncidentResolved {
		inc.ResolvedAt = &now
		eventType = "incident.resolved"
	}
	if err := m.store.UpdateIncident(ctx, inc); err != nil {
		return nil, err
	}

	m.emit(ctx, eventType, inc, u)
	return inc, nil
}

// Resolve is shorthand for an update with resolved status.
func (m *Manager) Resolve(ctx context.Context, incidentID int64, message string) (*storage.Incident, error) {
	return m.AddUpdate(ctx, incidentID, storage.IncidentResolved, message)
}

func (m *Manager) emit(ctx context.Context, eventType string, inc *storage.Incident, u *storage.IncidentUpdate) {
	ev := notifier.Event{
		Type:      eventType,
		Key:       fmt.Sprintf("%s:%d:%d", eventType, inc.ID, u.ID),
		Timestamp: u.CreatedAt,
		Payload: map[string]any{
			"incident_id": inc.ID,
			"title":       inc.Title,
			"status":      string(inc.Status),
			"impact":      string(inc.Impact),
			"message":     u.Message,
		},
	}
	m.logger.Info("incident event", "event", eventType, "incident_id", inc.ID)
	m.sink.Dispatch(ctx, ev)
}
