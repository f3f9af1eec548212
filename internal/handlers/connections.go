package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gluk-w/claworc/log-viewer/internal/logviewer"
)

func connectionID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "Invalid connection ID")
		return 0, false
	}
	return uint(id), true
}

func ListConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := logviewer.ListConnections()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list connections")
		return
	}
	writeJSON(w, http.StatusOK, conns)
}

func GetConnection(w http.ResponseWriter, r *http.Request) {
	id, ok := connectionID(w, r)
	if !ok {
		return
	}
	c, err := logviewer.GetConnection(id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func CreateConnection(w http.ResponseWriter, r *http.Request) {
	var in logviewer.ConnectionInput
	if !decodeBody(w, r, &in) {
		return
	}
	c, err := logviewer.CreateConnection(in)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func UpdateConnection(w http.ResponseWriter, r *http.Request) {
	id, ok := connectionID(w, r)
	if !ok {
		return
	}
	var in logviewer.ConnectionInput
	if !decodeBody(w, r, &in) {
		return
	}
	c, err := logviewer.UpdateConnection(id, in)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func DeleteConnection(w http.ResponseWriter, r *http.Request) {
	id, ok := connectionID(w, r)
	if !ok {
		return
	}
	if err := logviewer.DeleteConnection(id); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
