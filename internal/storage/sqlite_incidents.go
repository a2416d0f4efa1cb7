package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const incidentCols = `id, title, status, impact, message, started_at, resolved_at`

func scanIncident(row scanner) (*Incident, error) {
	var inc Incident
	var status, impact string
	var resolved sql.NullInt64
	if err := row.Scan(&inc.ID, &inc.Title, &status, &impact, &inc.Message, &inc.StartedAt, &resolved); err != nil {
		return nil, err
	}
	inc.Status = ParseIncidentStatus(status)
	inc.Impact = ParseImpact(impact)
	inc.ResolvedAt = int64Ptr(resolved)
	return &inc, nil
}

func (s *SQLiteStore) CreateIncident(ctx context.Context, inc *Incident) error {
	if inc.StartedAt == 0 {
		inc.StartedAt = time.Now().Unix()
	}
	res, err := s.writeDB.ExecContext(ctx, `
		INSERT INTO incidents (title, status, impact, message, started_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		inc.Title, string(inc.Status), string(inc.Impact), inc.Message, inc.StartedAt, nullInt64(inc.ResolvedAt))
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	inc.ID, _ = res.LastInsertId()
	if len(inc.MonitorIDs) > 0 {
		return s.SetIncidentMonitors(ctx, inc.ID, inc.MonitorIDs)
	}
	return nil
}

func (s *SQLiteStore) GetIncident(ctx context.Context, id int64) (*Incident, error) {
	row := s.readDB.QueryRowContext(ctx, `SELECT `+incidentCols+` FROM incidents WHERE id = ?`, id)
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	inc.MonitorIDs, err = s.incidentMonitorIDs(ctx, id)
	return inc, err
}

func (s *SQLiteStore) UpdateIncident(ctx context.Context, inc *Incident) error {
	res, err := s.writeDB.ExecContext(ctx, `
		UPDATE incidents SET title = ?, status = ?, impact = ?, message = ?, resolved_at = ?
		WHERE id = ?`,
		inc.Title, string(inc.Status), string(inc.Impact), inc.Message, nullInt64(inc.ResolvedAt), inc.ID)
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListIncidents(ctx context.Context, p Pagination) ([]*Incident, error) {
	cursor := p.Cursor
	if cursor <= 0 {
		cursor = int64(1)<<62 - 1
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT `+incidentCols+` FROM incidents WHERE id < ? ORDER BY id DESC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()
	return collectIncidents(rows)
}

func (s *SQLiteStore) ListOpenIncidents(ctx context.Context, limit int) ([]*Incident, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT `+incidentCols+` FROM incidents
		WHERE resolved_at IS NULL ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list open incidents: %w", err)
	}
	defer rows.Close()
	return collectIncidents(rows)
}

func (s *SQLiteStore) InsertIncidentUpdate(ctx context.Context, u *IncidentUpdate) error {
	if u.CreatedAt == 0 {
		u.CreatedAt = time.Now().Unix()
	}
	res, err := s.writeDB.ExecContext(ctx, `
		INSERT INTO incident_updates (incident_id, status, message, created_at)
		VALUES (?, ?, ?, ?)`,
		u.IncidentID, string(u.Status), u.Message, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert incident update: %w", err)
	}
	u.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) ListIncidentUpdates(ctx context.Context, incidentID int64) ([]*IncidentUpdate, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT id, incident_id, status, message, created_at
		FROM incident_updates WHERE incident_id = ? ORDER BY id`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list incident updates: %w", err)
	}
	defer rows.Close()

	var out []*IncidentUpdate
	for rows.Next() {
		var u IncidentUpdate
		var status string
		if err := rows.Scan(&u.ID, &u.IncidentID, &status, &u.Message, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Status = ParseIncidentStatus(status)
		out = append(out, &u)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SetIncidentMonitors(ctx context.Context, incidentID int64, monitorIDs []int64) error {
	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set incident monitors begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM incident_monitors WHERE incident_id = ?`, incidentID); err != nil {
		return fmt.Errorf("clear incident monitors: %w", err)
	}
	for _, mid := range monitorIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO incident_monitors (incident_id, monitor_id) VALUES (?, ?)`, incidentID, mid); err != nil {
			return fmt.Errorf("link incident monitor: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) incidentMonitorIDs(ctx context.Context, incidentID int64) ([]int64, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT monitor_id FROM incident_monitors WHERE incident_id = ? ORDER BY monitor_id`, incidentID)
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

func collectIncidents(rows *sql.Rows) ([]*Incident, error) {
	var out []*Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}
