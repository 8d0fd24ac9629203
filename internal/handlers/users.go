// Per-user endpoints under /api/v1/users/{userID}. Each handler is a thin
// shim: decode the request, call the intent router, encode the result.
// Status codes reflect transport-level problems only; intent outcomes are
// carried in the result body so chat gateways treat both paths the same.
package handlers

import (
	"io"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/sshbridge/sshbridge/internal/config"
	"github.com/sshbridge/sshbridge/internal/intents"
	"github.com/sshbridge/sshbridge/internal/middleware"
	"github.com/sshbridge/sshbridge/internal/sshsession"
)

// API bundles the dependencies the HTTP layer needs.
type API struct {
	Intents  *intents.Router
	Sessions *sshsession.Manager
}

type connectRequest struct {
	Method string `json:"method"`
}

type textRequest struct {
	Text string `json:"text"`
}

type commandRequest struct {
	Command string `json:"command"`
}

// Connect starts the credential dialogue (POST, body {"method": "password"|"key"}).
func (a *API) Connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, a.Intents.Connect(middleware.UserID(r), req.Method))
}

// Cancel aborts the credential dialogue.
func (a *API) Cancel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Intents.CancelDialogue(middleware.UserID(r)))
}

// SubmitText feeds one chat message into the dialogue/execute routing.
func (a *API) SubmitText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, a.Intents.SubmitText(r.Context(), middleware.UserID(r), req.Text))
}

// Execute runs a shell command on the user's session.
func (a *API) Execute(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, a.Intents.ExecuteCommand(r.Context(), middleware.UserID(r), req.Command))
}

// Disconnect closes the user's session.
func (a *API) Disconnect(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Intents.Disconnect(middleware.UserID(r)))
}

// Status reports the user's session details.
func (a *API) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Intents.Status(middleware.UserID(r)))
}

// ListFiles lists the session's working directory.
func (a *API) ListFiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Intents.ListFiles(r.Context(), middleware.UserID(r)))
}

// Upload accepts a multipart form with a "file" part and an optional "path"
// field. With no path the file lands in the working directory under its
// original name. During the key-collection step the content is routed to the
// dialogue instead.
func (a *API) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(config.Cfg.MaxFileSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file part")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, config.Cfg.MaxFileSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read file")
		return
	}
	if int64(len(data)) > config.Cfg.MaxFileSize {
		writeError(w, http.StatusRequestEntityTooLarge, "file exceeds maximum size")
		return
	}

	name := r.FormValue("path")
	if name == "" {
		name = filepath.Base(header.Filename)
	}
	writeJSON(w, http.StatusOK, a.Intents.SubmitFile(r.Context(), middleware.UserID(r), data, name))
}

// Download streams a remote file back to the caller (GET ?path=...).
func (a *API) Download(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "missing path parameter")
		return
	}
	res := a.Intents.DownloadFrom(r.Context(), middleware.UserID(r), path)
	if !res.OK {
		writeJSON(w, http.StatusOK, res)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+res.Filename+"\"")
	w.WriteHeader(http.StatusOK)
	w.Write(res.Payload)
}

// Monitors lists the available monitoring templates.
func (a *API) Monitors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Intents.MonitorNames())
}

// RunMonitor executes one named monitoring template.
func (a *API) RunMonitor(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	writeJSON(w, http.StatusOK, a.Intents.Monitor(r.Context(), middleware.UserID(r), name))
}
