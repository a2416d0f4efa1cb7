package monitor

import (
	"context"

	"github.com/uptimer-dev/uptimer/internal/statuspage"
	"github.com/uptimer-dev/uptimer/internal/storage"
)

const daySec = 86400

func utcDayStart(t int64) int64 { return t - t%daySec }

// maybeRollup runs retention and prior-day rollups when the clock has
// crossed a UTC day boundary since the last tick that checked. The first
// tick of the process only records the current day.
func (s *Scheduler) maybeRollup(ctx context.Context, now int64) {
	day := utcDayStart(now)
	if s.lastRollupDay == 0 {
		s.lastRollupDay = day
		return
	}
	if day == s.lastRollupDay {
		return
	}

	cutoff := now - int64(s.opts.RetentionDays)*daySec
	deleted, err := s.store.PurgeCheckResults(ctx, cutoff)
	if err != nil {
		s.logger.Error("purge check results", "error", err)
	} else if deleted > 0 {
		s.logger.Info("purged check results", "deleted", deleted, "before", cutoff)
	}

	// Catch up every whole day since the last observed boundary; upserts
	// make re-running a day harmless.
	for d := s.lastRollupDay; d < day; d += daySec {
		if err := s.rollupDay(ctx, d); err != nil {
			s.logger.Error("daily rollup", "day_start", d, "error", err)
			return
		}
	}
	s.lastRollupDay = day
}

// rollupDay precomputes per-monitor uptime totals for [dayStart, dayStart+86400).
func (s *Scheduler) rollupDay(ctx context.Context, dayStart int64) error {
	monitors, err := s.store.ListActiveMonitors(ctx)
	if err != nil {
		return err
	}
	for _, m := range monitors {
		rep, err := statuspage.UptimeBetween(ctx, s.store, m, dayStart, dayStart+daySec)
		if err != nil {
			return err
		}
		if rep.TotalSec == 0 {
			continue
		}
		err = s.store.UpsertDailyRollup(ctx, &storage.DailyRollup{
			MonitorID:   m.ID,
			DayStartAt:  dayStart,
			TotalSec:    rep.TotalSec,
			DowntimeSec: rep.DowntimeSec,
			UnknownSec:  rep.UnknownSec,
			UptimeSec:   rep.UptimeSec,
		})
		if err != nil {
			return err
		}
	}
	s.logger.Info("daily rollup complete", "day_start", dayStart, "monitors", len(monitors))
	return nil
}
