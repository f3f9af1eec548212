package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/gluk-w/claworc/log-viewer/internal/database"
	"github.com/gluk-w/claworc/log-viewer/internal/history"
	"github.com/gluk-w/claworc/log-viewer/internal/logviewer"
	"github.com/gluk-w/claworc/log-viewer/internal/sshconn"
	"github.com/gluk-w/claworc/log-viewer/internal/sshmanager"
)

// Set by main before the router is served.
var (
	Service  *logviewer.Service
	Hub      *sshmanager.Hub
	EventLog *sshmanager.EventLog
	History  *history.Recorder

	// EventBuffer is the per-websocket event queue length.
	EventBuffer = sshmanager.DefaultSubscriberBuffer

	// OriginPatterns lists the cross-origin hosts allowed to open the events
	// websocket.
	OriginPatterns []string
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeFailure reports err with the status its kind maps to. The body carries
// the kind so the presentation layer can tell failure classes apart.
func writeFailure(w http.ResponseWriter, err error) {
	body := map[string]string{"detail": err.Error()}
	if k := sshconn.KindOf(err); k != sshconn.KindNone {
		body["kind"] = string(k)
	}
	writeJSON(w, statusFor(err), body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, database.ErrNotFound), errors.Is(err, sshmanager.ErrNotActive):
		return http.StatusNotFound
	case errors.Is(err, logviewer.ErrNoStopKey):
		return http.StatusBadRequest
	}
	switch sshconn.KindOf(err) {
	case sshconn.KindInvalidCredentials:
		return http.StatusBadRequest
	case sshconn.KindHostRestricted:
		return http.StatusForbidden
	case sshconn.KindRateLimited:
		return http.StatusTooManyRequests
	case sshconn.KindDecode:
		return http.StatusUnprocessableEntity
	case sshconn.KindUnreachable:
		return http.StatusGatewayTimeout
	case sshconn.KindHandshakeFailed, sshconn.KindAuthRejected, sshconn.KindCommandRejected, sshconn.KindStream, sshconn.KindEOF:
		return http.StatusBadGateway
	case sshconn.KindCancelled:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// decodeBody accepts only application/json bodies, so that a cross-site form
// or text/plain post cannot reach a handler without a CORS preflight.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mt != "application/json" {
		writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func serviceReady(w http.ResponseWriter) bool {
	if Service == nil {
		writeError(w, http.StatusServiceUnavailable, "Log service not initialized")
		return false
	}
	return true
}
