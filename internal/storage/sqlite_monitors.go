package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const monitorCols = `m.id, m.name, m.type, m.active, m.interval_sec, m.timeout_ms,
	m.failures_to_down, m.successes_to_up, m.config, m.created_at`

func scanMonitor(row scanner) (*Monitor, error) {
	var m Monitor
	var typ, config string
	err := row.Scan(&m.ID, &m.Name, &typ, &m.Active, &m.IntervalSec, &m.TimeoutMs,
		&m.FailuresToDown, &m.SuccessesToUp, &config, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.Type = MonitorType(typ)
	m.Config = []byte(config)
	if strings.TrimSpace(config) == "" {
		m.Config = []byte("{}")
	}
	return &m, nil
}

func (s *SQLiteStore) CreateMonitor(ctx context.Context, m *Monitor) error {
	if m.FailuresToDown <= 0 {
		m.FailuresToDown = 2
	}
	if m.SuccessesToUp <= 0 {
		m.SuccessesToUp = 2
	}
	if m.CreatedAt == 0 {
		m.CreatedAt = time.Now().Unix()
	}
	if len(m.Config) == 0 {
		m.Config = []byte("{}")
	}
	res, err := s.writeDB.ExecContext(ctx, `
		INSERT INTO monitors (name, type, active, interval_sec, timeout_ms, failures_to_down, successes_to_up, config, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Name, string(m.Type), boolToInt(m.Active), m.IntervalSec, m.TimeoutMs,
		m.FailuresToDown, m.SuccessesToUp, string(m.Config), m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert monitor: %w", err)
	}
	m.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) GetMonitor(ctx context.Context, id int64) (*Monitor, error) {
	row := s.readDB.QueryRowContext(ctx, `SELECT `+monitorCols+` FROM monitors m WHERE m.id = ?`, id)
	m, err := scanMonitor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

func (s *SQLiteStore) UpdateMonitor(ctx context.Context, m *Monitor) error {
	res, err := s.writeDB.ExecContext(ctx, `
		UPDATE monitors SET name = ?, type = ?, active = ?, interval_sec = ?, timeout_ms = ?,
			failures_to_down = ?, successes_to_up = ?, config = ?
		WHERE id = ?`,
		m.Name, string(m.Type), boolToInt(m.Active), m.IntervalSec, m.TimeoutMs,
		m.FailuresToDown, m.SuccessesToUp, string(m.Config), m.ID)
	if err != nil {
		return fmt.Errorf("update monitor: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) SetMonitorActive(ctx context.Context, id int64, active bool) error {
	res, err := s.writeDB.ExecContext(ctx, `UPDATE monitors SET active = ? WHERE id = ?`, boolToInt(active), id)
	if err != nil {
		return fmt.Errorf("set monitor active: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListActiveMonitors(ctx context.Context) ([]*Monitor, error) {
	rows, err := s.readDB.QueryContext(ctx, `SELECT `+monitorCols+` FROM monitors m WHERE m.active = 1 ORDER BY m.id`)
	if err != nil {
		return nil, fmt.Errorf("list active monitors: %w", err)
	}
	defer rows.Close()
	return collectMonitors(rows)
}

// ListDueMonitors selects active monitors with no recorded check or whose
// last check is at least interval_sec old, oldest-checked first.
func (s *SQLiteStore) ListDueMonitors(ctx context.Context, now int64, limit int) ([]*Monitor, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT `+monitorCols+`
		FROM monitors m
		LEFT JOIN monitor_state ms ON ms.monitor_id = m.id
		WHERE m.active = 1
		  AND (ms.last_checked_at IS NULL OR ? - ms.last_checked_at >= m.interval_sec)
		ORDER BY COALESCE(ms.last_checked_at, 0), m.id
		LIMIT ?`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due monitors: %w", err)
	}
	defer rows.Close()
	return collectMonitors(rows)
}

func collectMonitors(rows *sql.Rows) ([]*Monitor, error) {
	var out []*Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
