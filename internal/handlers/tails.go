package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gluk-w/claworc/log-viewer/internal/logviewer"
	"github.com/gluk-w/claworc/log-viewer/internal/sshconn"
	"github.com/gluk-w/claworc/log-viewer/internal/sshmanager"
)

type startTailRequest struct {
	logviewer.CredentialRequest
	Path string `json:"path"`
}

// StartTail answers 202 once the tail loop is running. Connection and command
// failures arrive later as an error event on the events websocket.
func StartTail(w http.ResponseWriter, r *http.Request) {
	if !serviceReady(w) {
		return
	}
	var req startTailRequest
	if !decodeBody(w, r, &req) {
		return
	}
	creds, savedPath, err := req.Resolve()
	if err != nil {
		writeFailure(w, err)
		return
	}
	path := strings.TrimSpace(req.Path)
	if path == "" {
		path = savedPath
	}

	s, err := Service.StartTail(creds, path)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"session_id": s.ID,
		"host":       s.Endpoint.Host,
		"port":       s.Endpoint.Port,
		"path":       s.Path,
	})
}

// StopTail stops by endpoint (?host=&port=) or by remote path (?path=).
func StopTail(w http.ResponseWriter, r *http.Request) {
	if !serviceReady(w) {
		return
	}
	q := r.URL.Query()
	var key logviewer.StopKey
	if host := q.Get("host"); host != "" {
		port := 0
		if v := q.Get("port"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 65535 {
				writeError(w, http.StatusBadRequest, "Invalid port")
				return
			}
			port = n
		}
		ep := sshconn.NewEndpoint(host, port)
		key.Endpoint = &ep
	} else {
		key.Path = q.Get("path")
	}

	res, err := Service.StopTail(key)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func ListTails(w http.ResponseWriter, r *http.Request) {
	if !serviceReady(w) {
		return
	}
	writeJSON(w, http.StatusOK, Service.ActiveTails())
}

// GetTailEvents returns the recorded lifecycle events of one endpoint,
// optionally only the last ?limit= of them.
func GetTailEvents(w http.ResponseWriter, r *http.Request) {
	if EventLog == nil {
		writeError(w, http.StatusServiceUnavailable, "Event log not initialized")
		return
	}
	port, err := strconv.Atoi(chi.URLParam(r, "port"))
	if err != nil || port < 1 || port > 65535 {
		writeError(w, http.StatusBadRequest, "Invalid port")
		return
	}
	ep := sshconn.NewEndpoint(chi.URLParam(r, "host"), port)

	var events []sshmanager.Event
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		events = EventLog.Recent(ep, n)
	} else {
		events = EventLog.Events(ep)
	}
	if events == nil {
		events = []sshmanager.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"host":   ep.Host,
		"port":   ep.Port,
		"events": events,
	})
}
