package handlers

import (
	"net/http"
	"strings"

	"github.com/gluk-w/claworc/log-viewer/internal/logviewer"
)

type readLogRequest struct {
	logviewer.CredentialRequest
	Path   string `json:"path"`
	Follow bool   `json:"follow"`
}

type discoverRequest struct {
	logviewer.CredentialRequest
	Dirs []string `json:"dirs"`
}

// SSHConnectionTest answers 200 whether or not the connection succeeded; the
// outcome is in the body.
func SSHConnectionTest(w http.ResponseWriter, r *http.Request) {
	if !serviceReady(w) {
		return
	}
	var req logviewer.CredentialRequest
	if !decodeBody(w, r, &req) {
		return
	}
	creds, _, err := req.Resolve()
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Service.TestConnection(r.Context(), creds))
}

func ReadRemoteLog(w http.ResponseWriter, r *http.Request) {
	if !serviceReady(w) {
		return
	}
	var req readLogRequest
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

	content, err := Service.ReadNow(r.Context(), creds, path, req.Follow)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"content":    content.Content,
		"file_name":  content.FileName,
		"line_count": content.LineCount,
	})
}

func DiscoverLogs(w http.ResponseWriter, r *http.Request) {
	if !serviceReady(w) {
		return
	}
	var req discoverRequest
	if !decodeBody(w, r, &req) {
		return
	}
	creds, _, err := req.Resolve()
	if err != nil {
		writeFailure(w, err)
		return
	}
	files, err := Service.DiscoverLogs(r.Context(), creds, req.Dirs)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}
