package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

func scanCheckResult(row scanner) (*CheckResult, error) {
	var r CheckResult
	var status string
	var latency sql.NullInt64
	if err := row.Scan(&r.ID, &r.MonitorID, &r.CheckedAt, &status, &latency, &r.Error); err != nil {
		return nil, err
	}
	r.Status = ParseStatus(status)
	r.LatencyMs = int64Ptr(latency)
	return &r, nil
}

const resultCols = `id, monitor_id, checked_at, status, latency_ms, error`

// ListCheckResults returns results within [from, to) in chronological order.
func (s *SQLiteStore) ListCheckResults(ctx context.Context, monitorID int64, from, to int64) ([]*CheckResult, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT `+resultCols+` FROM check_results
		WHERE monitor_id = ? AND checked_at >= ? AND checked_at < ?
		ORDER BY checked_at`, monitorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list check results: %w", err)
	}
	defer rows.Close()
	return collectResults(rows)
}

// ListRecentCheckResults returns up to limit results since the given time,
// newest first reversed to chronological order for rendering.
func (s *SQLiteStore) ListRecentCheckResults(ctx context.Context, monitorID int64, since int64, limit int) ([]*CheckResult, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT `+resultCols+` FROM check_results
		WHERE monitor_id = ? AND checked_at >= ?
		ORDER BY checked_at DESC LIMIT ?`, monitorID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent check results: %w", err)
	}
	defer rows.Close()

	out, err := collectResults(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// LatencyStats aggregates latency samples within [from, to). Results without
// a latency (hard failures) are excluded from the series.
func (s *SQLiteStore) LatencyStats(ctx context.Context, monitorID int64, from, to int64) (*LatencySeries, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT checked_at, latency_ms FROM check_results
		WHERE monitor_id = ? AND checked_at >= ? AND checked_at < ? AND latency_ms IS NOT NULL
		ORDER BY checked_at`, monitorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("latency stats: %w", err)
	}
	defer rows.Close()

	series := &LatencySeries{Points: []LatencyPoint{}}
	var sum int64
	for rows.Next() {
		var p LatencyPoint
		if err := rows.Scan(&p.CheckedAt, &p.LatencyMs); err != nil {
			return nil, err
		}
		series.Points = append(series.Points, p)
		sum += p.LatencyMs
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if n := len(series.Points); n > 0 {
		series.AvgLatencyMs = float64(sum) / float64(n)
		sorted := make([]int64, n)
		for i, p := range series.Points {
			sorted[i] = p.LatencyMs
		}
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		idx := (n*95 + 99) / 100
		if idx > 0 {
			idx--
		}
		series.P95LatencyMs = sorted[idx]
	}
	return series, nil
}

func (s *SQLiteStore) PurgeCheckResults(ctx context.Context, before int64) (int64, error) {
	res, err := s.writeDB.ExecContext(ctx, `DELETE FROM check_results WHERE checked_at < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("purge check results: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func collectResults(rows *sql.Rows) ([]*CheckResult, error) {
	var out []*CheckResult
	for rows.Next() {
		r, err := scanCheckResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
