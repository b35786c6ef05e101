package rest

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/soundrift/drivecache/internal/catalog"
	"github.com/soundrift/drivecache/internal/engine"
	"github.com/soundrift/drivecache/internal/logctx"
	"github.com/soundrift/drivecache/internal/offline"
	"github.com/soundrift/drivecache/internal/provider"
	"github.com/soundrift/drivecache/internal/telemetry"
)

// DownloadRequest is the wire shape for one file to download. When URL is
// empty the handler resolves a fresh one through the file's provider.
type DownloadRequest struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	URL      string         `json:"url,omitempty"`
	MimeType string         `json:"mimeType,omitempty"`
	Source   catalog.Source `json:"source"`
}

type batchRequest struct {
	Files         []DownloadRequest `json:"files"`
	MaxConcurrent int               `json:"maxConcurrent,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// Handler exposes the offline cache manager over HTTP for the UI process.
type Handler struct {
	username      string
	password      string
	manager       *offline.Manager
	drives        map[catalog.Source]provider.Drive
	telemetry     *telemetry.Telemetry
	maxConcurrent int
}

// NewHandler creates a new cache API handler.
func NewHandler(
	username, password string,
	manager *offline.Manager,
	drives map[catalog.Source]provider.Drive,
	tel *telemetry.Telemetry,
	defaultMaxConcurrent int,
) *Handler {
	if defaultMaxConcurrent < 1 {
		defaultMaxConcurrent = 1
	}

	return &Handler{
		username:      username,
		password:      password,
		manager:       manager,
		drives:        drives,
		telemetry:     tel,
		maxConcurrent: defaultMaxConcurrent,
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(h.telemetry.HTTPLogging)
	r.Use(h.basicAuthMiddleware)

	r.Get("/files", h.handleListFiles)
	r.Get("/files/{id}/path", h.handleLocalPath)
	r.Delete("/files/{id}", h.handleDelete)

	r.Post("/downloads", h.handleDownload)
	r.Post("/downloads/batch", h.handleBatchDownload)

	r.Get("/tasks", h.handleTasks)
	r.Get("/tasks/active", h.handleActiveTasks)

	r.Get("/providers/{source}/files", h.handleListRemote)

	return r
}

// handleListFiles returns the reconciled offline file list.
func (h *Handler) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.manager.Files(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error(), "")

		return
	}

	if files == nil {
		files = []catalog.File{}
	}

	h.writeJSON(w, http.StatusOK, files)
}

func (h *Handler) handleLocalPath(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	path, ok := h.manager.LocalPath(r.Context(), id)
	if !ok {
		h.writeError(w, http.StatusNotFound, "file is not cached", "")

		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"id": id, "localPath": path})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	deleted, err := h.manager.Delete(r.Context(), id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error(), "")

		return
	}

	if !deleted {
		h.writeError(w, http.StatusNotFound, "file is not cached", "")

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", "")

		return
	}

	engineReq, err := h.toEngineRequest(r, req)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "")

		return
	}

	localPath, err := h.manager.Download(r.Context(), engineReq, nil)
	if err != nil {
		h.writeDownloadError(w, err)

		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID, "localPath": localPath})
}

func (h *Handler) handleBatchDownload(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", "")

		return
	}

	requests := make([]engine.Request, 0, len(req.Files))

	for _, f := range req.Files {
		engineReq, err := h.toEngineRequest(r, f)
		if err != nil {
			logger.Warn("skipping unresolvable batch entry", "file_id", f.ID, "err", err)

			continue
		}

		requests = append(requests, engineReq)
	}

	maxConcurrent := req.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = h.maxConcurrent
	}

	result := h.manager.DownloadAll(r.Context(), requests, maxConcurrent)

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleTasks(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.manager.Tasks())
}

func (h *Handler) handleActiveTasks(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]int{"active": h.manager.ActiveDownloadCount()})
}

func (h *Handler) handleListRemote(w http.ResponseWriter, r *http.Request) {
	source := catalog.Source(chi.URLParam(r, "source"))

	drive, ok := h.drives[source]
	if !ok {
		h.writeError(w, http.StatusNotFound, "unknown provider", "")

		return
	}

	files, err := drive.List(r.Context(), r.URL.Query().Get("parent"))
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err.Error(), "")

		return
	}

	h.writeJSON(w, http.StatusOK, files)
}

// toEngineRequest validates a wire request and resolves a download URL
// through the provider when the caller did not supply one.
func (h *Handler) toEngineRequest(r *http.Request, req DownloadRequest) (engine.Request, error) {
	if req.ID == "" || req.Name == "" {
		return engine.Request{}, errors.New("id and name are required")
	}

	if !req.Source.Valid() {
		return engine.Request{}, errors.New("unknown source")
	}

	url := req.URL
	if url == "" {
		drive, ok := h.drives[req.Source]
		if !ok {
			return engine.Request{}, errors.New("no client configured for source")
		}

		resolved, err := drive.DownloadURL(r.Context(), req.ID)
		if err != nil {
			return engine.Request{}, err
		}

		url = resolved
	}

	return engine.Request{
		ID:       req.ID,
		Name:     req.Name,
		URL:      url,
		MimeType: req.MimeType,
		Source:   req.Source,
	}, nil
}

func (h *Handler) writeDownloadError(w http.ResponseWriter, err error) {
	var dlErr *engine.DownloadError
	if !errors.As(err, &dlErr) {
		h.writeError(w, http.StatusInternalServerError, err.Error(), "")

		return
	}

	status := http.StatusInternalServerError

	switch dlErr.Kind {
	case engine.KindNetwork:
		status = http.StatusBadGateway
	case engine.KindStorage:
		status = http.StatusInsufficientStorage
	}

	h.writeError(w, status, dlErr.Reason, string(dlErr.Kind))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, kind string) {
	h.writeJSON(w, status, errorResponse{Error: message, Kind: kind})
}

func (h *Handler) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.username == "" && h.password == "" {
			next.ServeHTTP(w, r)

			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(h.username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(h.password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="drivecache"`)
			h.writeError(w, http.StatusUnauthorized, "unauthorized", "")

			return
		}

		next.ServeHTTP(w, r)
	})
}
