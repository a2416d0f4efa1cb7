package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/uptimer-dev/uptimer/internal/httputil"
	"github.com/uptimer-dev/uptimer/internal/statuspage"
	"github.com/uptimer-dev/uptimer/internal/storage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus serves the cached status-page snapshot. The Cache-Control
// max-age reflects the snapshot's remaining freshness so downstream caches
// expire in step with the snapshot itself.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	body, generatedAt, err := s.cache.Status(r.Context())
	if err != nil {
		s.logger.Error("status snapshot", "error", err)
		writeError(w, http.StatusServiceUnavailable, "status temporarily unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", statuspage.FreshFor(generatedAt, s.Now())))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (s *Server) handleMonitorLatency(w http.ResponseWriter, r *http.Request) {
	m, ok := s.monitorFromPath(w, r)
	if !ok {
		return
	}

	now := s.Now()
	rangeSec := parseRange(r, "24h")
	series, err := s.store.LatencyStats(r.Context(), m.ID, now-rangeSec, now)
	if err != nil {
		s.logger.Error("latency stats", "monitor_id", m.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get latency stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"monitor_id":     m.ID,
		"from":           now - rangeSec,
		"to":             now,
		"points":         series.Points,
		"avg_latency_ms": series.AvgLatencyMs,
		"p95_latency_ms": series.P95LatencyMs,
	})
}

func (s *Server) handleMonitorUptime(w http.ResponseWriter, r *http.Request) {
	m, ok := s.monitorFromPath(w, r)
	if !ok {
		return
	}

	now := s.Now()
	rangeSec := parseRange(r, "24h")
	rep, err := s.agg.MonitorUptimeReport(r.Context(), m, now, rangeSec)
	if err != nil {
		s.logger.Error("uptime report", "monitor_id", m.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute uptime")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"monitor_id":   m.ID,
		"from":         now - rangeSec,
		"to":           now,
		"total_sec":    rep.TotalSec,
		"downtime_sec": rep.DowntimeSec,
		"unknown_sec":  rep.UnknownSec,
		"uptime_sec":   rep.UptimeSec,
		"uptime_pct":   rep.UptimePct,
	})
}

func (s *Server) handleMonitorOutages(w http.ResponseWriter, r *http.Request) {
	m, ok := s.monitorFromPath(w, r)
	if !ok {
		return
	}

	now := s.Now()
	rangeSec := parseRange(r, "30d")
	p := httputil.ParsePagination(r)
	outages, err := s.store.ListOutages(r.Context(), m.ID, now-rangeSec, p)
	if err != nil {
		s.logger.Error("list outages", "monitor_id", m.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list outages")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"monitor_id":  m.ID,
		"outages":     outages,
		"next_cursor": nextCursor(len(outages), p.Limit, func(i int) int64 { return outages[i].ID }),
	})
}

func (s *Server) handleAnalyticsUptime(w http.ResponseWriter, r *http.Request) {
	rangeSec := parseRange(r, "30d")
	out, err := s.agg.UptimeOverview(r.Context(), s.Now(), int(rangeSec/daySec))
	if err != nil {
		s.logger.Error("uptime overview", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute uptime overview")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"range_days": rangeSec / daySec,
		"monitors":   out,
	})
}

func (s *Server) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	p := httputil.ParsePagination(r)
	incidents, err := s.store.ListIncidents(r.Context(), p)
	if err != nil {
		s.logger.Error("list incidents", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list incidents")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"incidents":   incidents,
		"next_cursor": nextCursor(len(incidents), p.Limit, func(i int) int64 { return incidents[i].ID }),
	})
}

func (s *Server) handleListMaintenance(w http.ResponseWriter, r *http.Request) {
	p := httputil.ParsePagination(r)
	windows, err := s.store.ListMaintenanceWindows(r.Context(), p)
	if err != nil {
		s.logger.Error("list maintenance windows", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list maintenance windows")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"maintenance_windows": windows,
		"next_cursor":         nextCursor(len(windows), p.Limit, func(i int) int64 { return windows[i].ID }),
	})
}

func (s *Server) monitorFromPath(w http.ResponseWriter, r *http.Request) (*storage.Monitor, bool) {
	id, err := httputil.ParseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	m, err := s.store.GetMonitor(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "monitor not found")
			return nil, false
		}
		s.logger.Error("get monitor", "monitor_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get monitor")
		return nil, false
	}
	return m, true
}

// nextCursor returns the id of the last row when the page came back full,
// zero otherwise. Lists paginate by descending id.
func nextCursor(n, limit int, id func(int) int64) int64 {
	if n == 0 || n < limit {
		return 0
	}
	return id(n - 1)
}
