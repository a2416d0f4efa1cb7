package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *SQLiteStore) UpsertDailyRollup(ctx context.Context, r *DailyRollup) error {
	_, err := s.writeDB.ExecContext(ctx, `
		INSERT INTO monitor_daily_rollups (monitor_id, day_start_at, total_sec, downtime_sec, unknown_sec, uptime_sec)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (monitor_id, day_start_at) DO UPDATE SET
			total_sec = excluded.total_sec,
			downtime_sec = excluded.downtime_sec,
			unknown_sec = excluded.unknown_sec,
			uptime_sec = excluded.uptime_sec`,
		r.MonitorID, r.DayStartAt, r.TotalSec, r.DowntimeSec, r.UnknownSec, r.UptimeSec)
	if err != nil {
		return fmt.Errorf("upsert daily rollup: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListDailyRollups(ctx context.Context, monitorID int64, fromDay, toDay int64) ([]*DailyRollup, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT monitor_id, day_start_at, total_sec, downtime_sec, unknown_sec, uptime_sec
		FROM monitor_daily_rollups
		WHERE monitor_id = ? AND day_start_at >= ? AND day_start_at < ?
		ORDER BY day_start_at`, monitorID, fromDay, toDay)
	if err != nil {
		return nil, fmt.Errorf("list daily rollups: %w", err)
	}
	defer rows.Close()

	var out []*DailyRollup
	for rows.Next() {
		var r DailyRollup
		if err := rows.Scan(&r.MonitorID, &r.DayStartAt, &r.TotalSec, &r.DowntimeSec, &r.UnknownSec, &r.UptimeSec); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// SumDailyRollups totals whole-day rollups for [fromDay, toDay).
func (s *SQLiteStore) SumDailyRollups(ctx context.Context, monitorID int64, fromDay, toDay int64) (*DailyRollup, error) {
	var r DailyRollup
	r.MonitorID = monitorID
	err := s.readDB.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_sec), 0), COALESCE(SUM(downtime_sec), 0),
		       COALESCE(SUM(unknown_sec), 0), COALESCE(SUM(uptime_sec), 0)
		FROM monitor_daily_rollups
		WHERE monitor_id = ? AND day_start_at >= ? AND day_start_at < ?`,
		monitorID, fromDay, toDay).Scan(&r.TotalSec, &r.DowntimeSec, &r.UnknownSec, &r.UptimeSec)
	if err != nil {
		return nil, fmt.Errorf("sum daily rollups: %w", err)
	}
	return &r, nil
}

func (s *SQLiteStore) UpsertSnapshot(ctx context.Context, snap *Snapshot) error {
	_, err := s.writeDB.ExecContext(ctx, `
		INSERT INTO public_snapshots (key, generated_at, body)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			generated_at = excluded.generated_at,
			body = excluded.body`,
		snap.Key, snap.GeneratedAt, string(snap.Body))
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context, key string) (*Snapshot, error) {
	var snap Snapshot
	var body string
	err := s.readDB.QueryRowContext(ctx, `
		SELECT key, generated_at, body FROM public_snapshots WHERE key = ?`, key).
		Scan(&snap.Key, &snap.GeneratedAt, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	snap.Body = []byte(body)
	return &snap, nil
}
