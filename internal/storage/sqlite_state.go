package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func scanMonitorState(row scanner) (*MonitorState, error) {
	var st MonitorState
	var status string
	var lastChecked, lastLatency sql.NullInt64
	err := row.Scan(&st.MonitorID, &status, &lastChecked, &lastLatency, &st.LastError,
		&st.ConsecutiveFailures, &st.ConsecutiveSuccesses)
	if err != nil {
		return nil, err
	}
	st.Status = ParseStatus(status)
	st.LastCheckedAt = int64Ptr(lastChecked)
	st.LastLatencyMs = int64Ptr(lastLatency)
	return &st, nil
}

const stateCols = `monitor_id, status, last_checked_at, last_latency_ms, last_error,
	consecutive_failures, consecutive_successes`

func (s *SQLiteStore) GetMonitorState(ctx context.Context, monitorID int64) (*MonitorState, error) {
	row := s.readDB.QueryRowContext(ctx, `SELECT `+stateCols+` FROM monitor_state WHERE monitor_id = ?`, monitorID)
	st, err := scanMonitorState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return st, err
}

func (s *SQLiteStore) ListMonitorStates(ctx context.Context) (map[int64]*MonitorState, error) {
	rows, err := s.readDB.QueryContext(ctx, `SELECT `+stateCols+` FROM monitor_state`)
	if err != nil {
		return nil, fmt.Errorf("list monitor states: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]*MonitorState)
	for rows.Next() {
		st, err := scanMonitorState(rows)
		if err != nil {
			return nil, err
		}
		out[st.MonitorID] = st
	}
	return out, rows.Err()
}

// ApplyCheck persists one probe apply in a single transaction. The unique
// index on (monitor_id, checked_at) makes re-application a no-op: if the
// check result row already exists, nothing else is touched.
func (s *SQLiteStore) ApplyCheck(ctx context.Context, app *CheckApplication) (bool, error) {
	if app == nil || app.Result == nil {
		return false, fmt.Errorf("apply check: missing result")
	}

	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("apply check begin: %w", err)
	}
	defer tx.Rollback()

	r := app.Result
	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO check_results (monitor_id, checked_at, status, latency_ms, error)
		VALUES (?, ?, ?, ?, ?)`,
		r.MonitorID, r.CheckedAt, string(r.Status), nullInt64(r.LatencyMs), r.Error)
	if err != nil {
		return false, fmt.Errorf("insert check result: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}
	r.ID, _ = res.LastInsertId()

	if app.OpenOutage != nil {
		o := app.OpenOutage
		res, err := tx.ExecContext(ctx, `
			INSERT INTO outages (monitor_id, started_at, initial_error, last_error)
			VALUES (?, ?, ?, ?)`,
			o.MonitorID, o.StartedAt, o.InitialError, o.LastError)
		if err != nil {
			return false, fmt.Errorf("open outage: %w", err)
		}
		o.ID, _ = res.LastInsertId()
	}
	if app.CloseOutage != nil {
		_, err := tx.ExecContext(ctx, `UPDATE outages SET ended_at = ? WHERE id = ? AND ended_at IS NULL`,
			app.CloseOutage.EndedAt, app.CloseOutage.OutageID)
		if err != nil {
			return false, fmt.Errorf("close outage: %w", err)
		}
	}
	if app.OutageError != nil {
		_, err := tx.ExecContext(ctx, `UPDATE outages SET last_error = ? WHERE id = ? AND ended_at IS NULL`,
			app.OutageError.LastError, app.OutageError.OutageID)
		if err != nil {
			return false, fmt.Errorf("update outage error: %w", err)
		}
	}

	if app.State != nil {
		st := app.State
		_, err := tx.ExecContext(ctx, `
			INSERT INTO monitor_state (monitor_id, status, last_checked_at, last_latency_ms, last_error, consecutive_failures, consecutive_successes)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (monitor_id) DO UPDATE SET
				status = excluded.status,
				last_checked_at = excluded.last_checked_at,
				last_latency_ms = excluded.last_latency_ms,
				last_error = excluded.last_error,
				consecutive_failures = excluded.consecutive_failures,
				consecutive_successes = excluded.consecutive_successes`,
			st.MonitorID, string(st.Status), nullInt64(st.LastCheckedAt), nullInt64(st.LastLatencyMs),
			st.LastError, st.ConsecutiveFailures, st.ConsecutiveSuccesses)
		if err != nil {
			return false, fmt.Errorf("upsert monitor state: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("apply check commit: %w", err)
	}
	return true, nil
}
