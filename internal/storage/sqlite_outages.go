package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const outageCols = `id, monitor_id, started_at, ended_at, initial_error, last_error`

func scanOutage(row scanner) (*Outage, error) {
	var o Outage
	var ended sql.NullInt64
	if err := row.Scan(&o.ID, &o.MonitorID, &o.StartedAt, &ended, &o.InitialError, &o.LastError); err != nil {
		return nil, err
	}
	o.EndedAt = int64Ptr(ended)
	return &o, nil
}

func (s *SQLiteStore) GetOpenOutage(ctx context.Context, monitorID int64) (*Outage, error) {
	row := s.readDB.QueryRowContext(ctx, `
		SELECT `+outageCols+` FROM outages WHERE monitor_id = ? AND ended_at IS NULL`, monitorID)
	o, err := scanOutage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

// ListOutages returns outages starting at or after from, newest first, with
// a descending id cursor.
func (s *SQLiteStore) ListOutages(ctx context.Context, monitorID int64, from int64, p Pagination) ([]*Outage, error) {
	cursor := p.Cursor
	if cursor <= 0 {
		cursor = int64(1)<<62 - 1
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT `+outageCols+` FROM outages
		WHERE monitor_id = ? AND started_at >= ? AND id < ?
		ORDER BY id DESC LIMIT ?`, monitorID, from, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("list outages: %w", err)
	}
	defer rows.Close()
	return collectOutages(rows)
}

// ListOutagesOverlapping returns outages that intersect [from, to), open
// outages included, in started_at order.
func (s *SQLiteStore) ListOutagesOverlapping(ctx context.Context, monitorID int64, from, to int64) ([]*Outage, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT `+outageCols+` FROM outages
		WHERE monitor_id = ? AND started_at < ? AND (ended_at IS NULL OR ended_at > ?)
		ORDER BY started_at`, monitorID, to, from)
	if err != nil {
		return nil, fmt.Errorf("list overlapping outages: %w", err)
	}
	defer rows.Close()
	return collectOutages(rows)
}

func collectOutages(rows *sql.Rows) ([]*Outage, error) {
	var out []*Outage
	for rows.Next() {
		o, err := scanOutage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
