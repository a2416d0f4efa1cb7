package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const windowCols = `id, title, message, starts_at, ends_at, created_at`

func scanWindow(row scanner) (*MaintenanceWindow, error) {
	var w MaintenanceWindow
	if err := row.Scan(&w.ID, &w.Title, &w.Message, &w.StartsAt, &w.EndsAt, &w.CreatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *SQLiteStore) CreateMaintenanceWindow(ctx context.Context, w *MaintenanceWindow) error {
	if w.StartsAt >= w.EndsAt {
		return fmt.Errorf("maintenance window: starts_at must precede ends_at")
	}
	if w.CreatedAt == 0 {
		w.CreatedAt = time.Now().Unix()
	}
	res, err := s.writeDB.ExecContext(ctx, `
		INSERT INTO maintenance_windows (title, message, starts_at, ends_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		w.Title, w.Message, w.StartsAt, w.EndsAt, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert maintenance window: %w", err)
	}
	w.ID, _ = res.LastInsertId()
	if len(w.MonitorIDs) > 0 {
		return s.SetMaintenanceMonitors(ctx, w.ID, w.MonitorIDs)
	}
	return nil
}

func (s *SQLiteStore) GetMaintenanceWindow(ctx context.Context, id int64) (*MaintenanceWindow, error) {
	row := s.readDB.QueryRowContext(ctx, `SELECT `+windowCols+` FROM maintenance_windows WHERE id = ?`, id)
	w, err := scanWindow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	w.MonitorIDs, err = s.windowMonitorIDs(ctx, id)
	return w, err
}

func (s *SQLiteStore) UpdateMaintenanceWindow(ctx context.Context, w *MaintenanceWindow) error {
	if w.StartsAt >= w.EndsAt {
		return fmt.Errorf("maintenance window: starts_at must precede ends_at")
	}
	res, err := s.writeDB.ExecContext(ctx, `
		UPDATE maintenance_windows SET title = ?, message = ?, starts_at = ?, ends_at = ? WHERE id = ?`,
		w.Title, w.Message, w.StartsAt, w.EndsAt, w.ID)
	if err != nil {
		return fmt.Errorf("update maintenance window: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteMaintenanceWindow(ctx context.Context, id int64) error {
	res, err := s.writeDB.ExecContext(ctx, `DELETE FROM maintenance_windows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete maintenance window: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListMaintenanceWindows(ctx context.Context, p Pagination) ([]*MaintenanceWindow, error) {
	cursor := p.Cursor
	if cursor <= 0 {
		cursor = int64(1)<<62 - 1
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT `+windowCols+` FROM maintenance_windows WHERE id < ? ORDER BY id DESC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("list maintenance windows: %w", err)
	}
	defer rows.Close()
	return collectWindows(rows)
}

func (s *SQLiteStore) SetMaintenanceMonitors(ctx context.Context, windowID int64, monitorIDs []int64) error {
	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set maintenance monitors begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM maintenance_monitors WHERE window_id = ?`, windowID); err != nil {
		return fmt.Errorf("clear maintenance monitors: %w", err)
	}
	for _, mid := range monitorIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO maintenance_monitors (window_id, monitor_id) VALUES (?, ?)`, windowID, mid); err != nil {
			return fmt.Errorf("link maintenance monitor: %w", err)
		}
	}
	return tx.Commit()
}

// IsMonitorInMaintenance reports whether any linked window covers the
// instant at (starts_at <= at < ends_at).
func (s *SQLiteStore) IsMonitorInMaintenance(ctx context.Context, monitorID int64, at int64) (bool, error) {
	var n int
	err := s.readDB.QueryRowContext(ctx, `
		SELECT count(*) FROM maintenance_windows w
		JOIN maintenance_monitors mm ON mm.window_id = w.id
		WHERE mm.monitor_id = ? AND w.starts_at <= ? AND ? < w.ends_at`,
		monitorID, at, at).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("maintenance check: %w", err)
	}
	return n > 0, nil
}

// MonitorsInMaintenance returns the set of monitor IDs covered by any
// active window at the given instant.
func (s *SQLiteStore) MonitorsInMaintenance(ctx context.Context, at int64) (map[int64]bool, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT DISTINCT mm.monitor_id FROM maintenance_windows w
		JOIN maintenance_monitors mm ON mm.window_id = w.id
		WHERE w.starts_at <= ? AND ? < w.ends_at`, at, at)
	if err != nil {
		return nil, fmt.Errorf("monitors in maintenance: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListActiveWindows(ctx context.Context, at int64) ([]*MaintenanceWindow, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT `+windowCols+` FROM maintenance_windows
		WHERE starts_at <= ? AND ? < ends_at ORDER BY starts_at`, at, at)
	if err != nil {
		return nil, fmt.Errorf("list active windows: %w", err)
	}
	defer rows.Close()
	return collectWindows(rows)
}

func (s *SQLiteStore) ListUpcomingWindows(ctx context.Context, at int64, limit int) ([]*MaintenanceWindow, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT `+windowCols+` FROM maintenance_windows
		WHERE starts_at > ? ORDER BY starts_at LIMIT ?`, at, limit)
	if err != nil {
		return nil, fmt.Errorf("list upcoming windows: %w", err)
	}
	defer rows.Close()
	return collectWindows(rows)
}

func (s *SQLiteStore) ListWindowsStartedBetween(ctx context.Context, after, until int64) ([]*MaintenanceWindow, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT `+windowCols+` FROM maintenance_windows
		WHERE starts_at > ? AND starts_at <= ? ORDER BY starts_at`, after, until)
	if err != nil {
		return nil, fmt.Errorf("list started windows: %w", err)
	}
	defer rows.Close()
	return collectWindows(rows)
}

func (s *SQLiteStore) ListWindowsEndedBetween(ctx context.Context, after, until int64) ([]*MaintenanceWindow, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT `+windowCols+` FROM maintenance_windows
		WHERE ends_at > ? AND ends_at <= ? ORDER BY ends_at`, after, until)
	if err != nil {
		return nil, fmt.Errorf("list ended windows: %w", err)
	}
	defer rows.Close()
	return collectWindows(rows)
}

func (s *SQLiteStore) windowMonitorIDs(ctx context.Context, windowID int64) ([]int64, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT monitor_id FROM maintenance_monitors WHERE window_id = ? ORDER BY monitor_id`, windowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func collectWindows(rows *sql.Rows) ([]*MaintenanceWindow, error) {
	var out []*MaintenanceWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
