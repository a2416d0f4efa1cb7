package api

import (
	"encoding/json"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

const daySec = 86400

// parseRange maps the range query parameter onto trailing window seconds.
// Unrecognized or absent values fall back to the endpoint's default.
func parseRange(r *http.Request, def string) int64 {
	if sec, ok := rangeSeconds(r.URL.Query().Get("range")); ok {
		return sec
	}
	sec, _ := rangeSeconds(def)
	return sec
}

func rangeSeconds(v string) (int64, bool) {
	switch v {
	case "24h":
		return daySec, true
	case "7d":
		return 7 * daySec, true
	case "30d":
		return 30 * daySec, true
	case "90d":
		return 90 * daySec, true
	default:
		return 0, false
	}
}
