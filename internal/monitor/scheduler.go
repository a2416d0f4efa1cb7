package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/uptimer-dev/uptimer/internal/checker"
	"github.com/uptimer-dev/uptimer/internal/notifier"
	"github.com/uptimer-dev/uptimer/internal/storage"
	"github.com/uptimer-dev/uptimer/internal/validate"
)

const tickLockName = "scheduled-tick"

// EventSink receives transition events for webhook fan-out.
type EventSink interface {
	Dispatch(ctx context.Context, ev notifier.Event)
}

// Options bounds the work one tick may do.
type Options struct {
	TickIntervalSec  int64 // lease ttl is twice this
	MaxPerTick       int
	ProbeConcurrency int
	RetentionDays    int
}

func (o *Options) defaults() {
	if o.TickIntervalSec <= 0 {
		o.TickIntervalSec = 60
	}
	if o.MaxPerTick <= 0 {
		o.MaxPerTick = 200
	}
	if o.ProbeConcurrency <= 0 {
		o.ProbeConcurrency = 5
	}
	if o.RetentionDays <= 0 {
		o.RetentionDays = 90
	}
}

// Scheduler runs the periodic probe tick: lease, select due monitors, fan
// out probes, apply outcomes, hand transitions to the notifier, and do daily
// retention plus rollups. All cross-instance coordination goes through the
// store; the only in-memory state is tick bookkeeping.
type Scheduler struct {
	store    storage.Store
	registry *checker.Registry
	sink     EventSink
	logger   *slog.Logger
	opts     Options
	holder   string

	mu            sync.Mutex
	lastTick      int64
	lastRollupDay int64
}

func NewScheduler(store storage.Store, registry *checker.Registry, sink EventSink, opts Options, logger *slog.Logger) *Scheduler {
	opts.defaults()
	return &Scheduler{
		store:    store,
		registry: registry,
		sink:     sink,
		logger:   logger,
		opts:     opts,
		holder:   uuid.NewString(),
	}
}

// Tick performs one scheduling pass at the given instant. It claims the
// tick lease or does nothing; notification fan-out is awaited before the
// lease is released.
func (s *Scheduler) Tick(ctx context.Context, now int64) error {
	// The lease tolerates same-holder renewal, so overlapping ticks in one
	// process need their own guard.
	if !s.mu.TryLock() {
		s.logger.Debug("tick skipped, previous tick still running")
		return nil
	}
	defer s.mu.Unlock()

	err := s.store.AcquireLock(ctx, tickLockName, s.holder, now, 2*s.opts.TickIntervalSec)
	if errors.Is(err, storage.ErrLeaseHeld) {
		s.logger.Debug("tick skipped, lease held elsewhere")
		return nil
	}
	if err != nil {
		return fmt.Errorf("acquire tick lease: %w", err)
	}
	defer s.store.ReleaseLock(context.WithoutCancel(ctx), tickLockName, s.holder)

	due, err := s.store.ListDueMonitors(ctx, now, s.opts.MaxPerTick)
	if err != nil {
		return fmt.Errorf("list due monitors: %w", err)
	}
	inMaint, err := s.store.MonitorsInMaintenance(ctx, now)
	if err != nil {
		return fmt.Errorf("monitors in maintenance: %w", err)
	}

	var notifyWG sync.WaitGroup
	g := &errgroup.Group{}
	g.SetLimit(s.opts.ProbeConcurrency)
	for _, m := range due {
		g.Go(func() error {
			s.checkOne(ctx, m, now, inMaint[m.ID], &notifyWG)
			return nil
		})
	}
	g.Wait()

	s.emitMaintenanceEvents(ctx, now, &notifyWG)
	s.maybeRollup(ctx, now)

	// All webhook fan-out completes before the lease goes back.
	notifyWG.Wait()

	if len(due) > 0 {
		s.logger.Info("tick complete", "due", len(due), "at", now)
	}
	return nil
}

func (s *Scheduler) checkOne(ctx context.Context, m *storage.Monitor, now int64, inMaintenance bool, notifyWG *sync.WaitGroup) {
	out := s.probe(ctx, m)
	if ctx.Err() != nil {
		// Tick cancelled mid-probe: discard, the monitor becomes due again.
		return
	}

	prev, err := s.store.GetMonitorState(ctx, m.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Error("get monitor state", "monitor_id", m.ID, "error", err)
		return
	}
	openOutage, err := s.store.GetOpenOutage(ctx, m.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Error("get open outage", "monitor_id", m.ID, "error", err)
		return
	}

	app, tr := ApplyOutcome(m, prev, openOutage, out, now, inMaintenance)
	applied, err := s.store.ApplyCheck(ctx, app)
	if err != nil {
		s.logger.Error("apply check", "monitor_id", m.ID, "error", err)
		return
	}
	if !applied || tr == nil {
		return
	}

	ev := tr.Event()
	s.logger.Info("monitor transition", "monitor_id", m.ID, "event", ev.Type, "error", tr.Error)
	notifyWG.Add(1)
	go func() {
		defer notifyWG.Done()
		s.sink.Dispatch(ctx, ev)
	}()
}

// probe re-validates the target and runs the protocol check. Validation
// failures and checker plumbing errors surface as down outcomes, never as
// missing records.
func (s *Scheduler) probe(ctx context.Context, m *storage.Monitor) *checker.Outcome {
	if !m.Active {
		return &checker.Outcome{Status: storage.StatusPaused}
	}
	// Config may have changed since admission; reject SSRF-ish targets
	// before dialing.
	if err := validate.MonitorConfig(m.Type, m.Config); err != nil {
		s.logger.Warn("monitor config rejected", "monitor_id", m.ID, "error", err)
		return &checker.Outcome{Status: storage.StatusDown, Error: "invalid_config"}
	}
	c, err := s.registry.Get(m.Type)
	if err != nil {
		s.logger.Error("no checker for monitor", "monitor_id", m.ID, "type", m.Type)
		return &checker.Outcome{Status: storage.StatusDown, Error: "unsupported_type"}
	}
	out, err := c.Check(ctx, m)
	if err != nil {
		s.logger.Error("checker failed", "monitor_id", m.ID, "error", err)
		return &checker.Outcome{Status: storage.StatusDown, Error: "checker_error"}
	}
	return out
}

// emitMaintenanceEvents announces windows that opened or closed since the
// previous tick.
func (s *Scheduler) emitMaintenanceEvents(ctx context.Context, now int64, notifyWG *sync.WaitGroup) {
	last := s.lastTick
	s.lastTick = now
	if last == 0 {
		last = now - s.opts.TickIntervalSec
	}

	started, err := s.store.ListWindowsStartedBetween(ctx, last, now)
	if err != nil {
		s.logger.Error("list started windows", "error", err)
	}
	ended, err := s.store.ListWindowsEndedBetween(ctx, last, now)
	if err != nil {
		s.logger.Error("list ended windows", "error", err)
	}

	dispatch := func(ev notifier.Event) {
		notifyWG.Add(1)
		go func() {
			defer notifyWG.Done()
			s.sink.Dispatch(ctx, ev)
		}()
	}
	for _, w := range started {
		dispatch(notifier.Event{
			Type:      "maintenance.started",
			Key:       fmt.Sprintf("maintenance.started:%d:%d", w.ID, w.StartsAt),
			Timestamp: now,
			Payload: map[string]any{
				"window_id": w.ID,
				"title":     w.Title,
				"starts_at": w.StartsAt,
				"ends_at":   w.EndsAt,
			},
		})
	}
	for _, w := range ended {
		dispatch(notifier.Event{
			Type:      "maintenance.ended",
			Key:       fmt.Sprintf("maintenance.ended:%d:%d", w.ID, w.EndsAt),
			Timestamp: now,
			Payload: map[string]any{
				"window_id": w.ID,
				"title":     w.Title,
				"starts_at": w.StartsAt,
				"ends_at":   w.EndsAt,
			},
		})
	}
}
