package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gluk-w/claworc/log-viewer/internal/history"
)

func GetTailHistory(w http.ResponseWriter, r *http.Request) {
	if History == nil {
		writeError(w, http.StatusServiceUnavailable, "History not initialized")
		return
	}

	q := r.URL.Query()
	opts := history.QueryOptions{
		Host:   q.Get("host"),
		Path:   q.Get("path"),
		Reason: q.Get("reason"),
	}
	if v := q.Get("port"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 65535 {
			writeError(w, http.StatusBadRequest, "Invalid port")
			return
		}
		opts.Port = n
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid since timestamp (use RFC3339)")
			return
		}
		opts.Since = &t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid until timestamp (use RFC3339)")
			return
		}
		opts.Until = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid offset")
			return
		}
		opts.Offset = n
	}

	res, err := History.Query(opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query history")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func PurgeTailHistory(w http.ResponseWriter, r *http.Request) {
	if History == nil {
		writeError(w, http.StatusServiceUnavailable, "History not initialized")
		return
	}

	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid days parameter")
			return
		}
		days = n
	}

	deleted, err := History.PurgeOlderThan(days)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to purge history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"deleted":        deleted,
		"retention_days": History.RetentionDays(),
	})
}
