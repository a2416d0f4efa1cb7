package monitor

import (
	"fmt"
	"strconv"

	"github.com/uptimer-dev/uptimer/internal/checker"
	"github.com/uptimer-dev/uptimer/internal/notifier"
	"github.com/uptimer-dev/uptimer/internal/storage"
)

// Transition is a threshold crossing produced by one probe apply. The outage
// row id is only assigned when the apply is persisted, so the event key is
// derived afterwards via Event.
type Transition struct {
	Type    string
	Monitor *storage.Monitor
	Outage  *storage.Outage // the opened or closed outage, nil for unknown→up
	At      int64
	Error   string
}

// Event converts the transition into a dispatchable notification event. Call
// only after the apply has been persisted.
func (t *Transition) Event() notifier.Event {
	suffix := strconv.FormatInt(t.At, 10)
	if t.Outage != nil {
		suffix = strconv.FormatInt(t.Outage.ID, 10)
	}
	payload := map[string]any{
		"monitor_id": t.Monitor.ID,
		"name":       t.Monitor.Name,
		"timestamp":  t.At,
	}
	if t.Error != "" {
		payload["error"] = t.Error
	}
	if t.Type == "monitor.up" && t.Outage != nil {
		payload["started_at"] = t.Outage.StartedAt
		payload["duration_sec"] = t.At - t.Outage.StartedAt
	}
	return notifier.Event{
		Type:      t.Type,
		Key:       fmt.Sprintf("%s:%d:%s", t.Type, t.Monitor.ID, suffix),
		Timestamp: t.At,
		Payload:   payload,
	}
}

// ApplyOutcome folds one probe outcome into a monitor's persisted state.
// prev and openOutage are the state before the probe (nil when absent);
// the returned application is handed to Store.ApplyCheck as one atomic unit.
//
// Thresholding: F consecutive failures promote up/unknown to down and open
// an outage; S consecutive successes promote down/unknown to up and close
// it. Maintenance freezes counters and suppresses transitions; a paused
// monitor only logs the probe.
func ApplyOutcome(m *storage.Monitor, prev *storage.MonitorState, openOutage *storage.Outage, out *checker.Outcome, now int64, inMaintenance bool) (*storage.CheckApplication, *Transition) {
	if !m.Active {
		return &storage.CheckApplication{
			Result: &storage.CheckResult{
				MonitorID: m.ID,
				CheckedAt: now,
				Status:    storage.StatusPaused,
			},
		}, nil
	}

	s := storage.MonitorState{MonitorID: m.ID, Status: storage.StatusUnknown}
	if prev != nil {
		s = *prev
	}
	s.LastCheckedAt = &now
	s.LastLatencyMs = out.LatencyMs
	s.LastError = out.Error

	if inMaintenance {
		// Counters and outages freeze until the window ends.
		s.Status = storage.StatusMaintenance
		return &storage.CheckApplication{
			Result: &storage.CheckResult{
				MonitorID: m.ID,
				CheckedAt: now,
				Status:    storage.StatusMaintenance,
				LatencyMs: out.LatencyMs,
			},
			State: &s,
		}, nil
	}

	app := &storage.CheckApplication{
		Result: &storage.CheckResult{
			MonitorID: m.ID,
			CheckedAt: now,
			Status:    out.Status,
			LatencyMs: out.LatencyMs,
			Error:     out.Error,
		},
	}

	var tr *Transition
	switch out.Status {
	case storage.StatusUp:
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0
		if s.Status != storage.StatusUp && s.ConsecutiveSuccesses >= m.SuccessesToUp {
			wasDown := s.Status == storage.StatusDown || s.Status == storage.StatusUnknown
			s.Status = storage.StatusUp
			if openOutage != nil {
				app.CloseOutage = &storage.OutageClose{OutageID: openOutage.ID, EndedAt: now}
			}
			// A monitor resuming after maintenance or a pause was never in
			// an outage; announcing a recovery there would be noise.
			if openOutage != nil || wasDown {
				tr = &Transition{Type: "monitor.up", Monitor: m, Outage: openOutage, At: now}
			}
		}
	default:
		s.ConsecutiveFailures++
		s.ConsecutiveSuccesses = 0
		if s.Status == storage.StatusDown {
			if openOutage != nil && out.Error != "" && out.Error != openOutage.LastError {
				app.OutageError = &storage.OutageErrorUpdate{OutageID: openOutage.ID, LastError: out.Error}
			}
		} else if s.ConsecutiveFailures >= m.FailuresToDown {
			s.Status = storage.StatusDown
			app.OpenOutage = &storage.Outage{
				MonitorID:    m.ID,
				StartedAt:    now,
				InitialError: out.Error,
				LastError:    out.Error,
			}
			tr = &Transition{Type: "monitor.down", Monitor: m, Outage: app.OpenOutage, At: now, Error: out.Error}
		}
	}

	app.State = &s
	return app, tr
}
