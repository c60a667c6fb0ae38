package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/multifs-backend/interfaces"
	"github.com/ruteri/multifs-backend/meta"
)

// maxBodySize is the maximum allowed request body size (32MB).
const maxBodySize = 32 * 1024 * 1024

// HandlerConfig contains the dependencies and options of the request handler.
type HandlerConfig struct {
	Manager *meta.Manager
	Log     *slog.Logger

	// DefaultSpecs are descriptors prepended to every reconfiguration
	// request, typically loaded from the server configuration file.
	DefaultSpecs []interfaces.ResourceSpec

	// AllowHidden permits operations on dot-prefixed paths. When unset such
	// requests are rejected with 400.
	AllowHidden bool
}

// Handler processes HTTP requests for the contents API. All content paths
// are drive-prefixed; routing to the owning backend happens in the meta
// manager.
type Handler struct {
	manager      *meta.Manager
	log          *slog.Logger
	defaultSpecs []interfaces.ResourceSpec
	allowHidden  bool
}

// NewHandler creates a new HTTP request handler.
func NewHandler(cfg *HandlerConfig) *Handler {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		manager:      cfg.Manager,
		log:          log,
		defaultSpecs: cfg.DefaultSpecs,
		allowHidden:  cfg.AllowHidden,
	}
}

// requestPath extracts the content path from the request: the URL wildcard
// when present, otherwise the path query parameter. The query form carries
// paths that do not survive URL routing, such as names with '?' or '#'.
func requestPath(r *http.Request) string {
	p := chi.URLParam(r, "*")
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	if p == "" {
		p = r.URL.Query().Get("path")
	}
	return strings.TrimSuffix(p, "/")
}

// checkHidden rejects hidden paths unless the server allows them.
func (h *Handler) checkHidden(r *http.Request, p string) error {
	if h.allowHidden {
		return nil
	}
	hidden, err := h.manager.IsHidden(r.Context(), p)
	if err != nil {
		return err
	}
	if hidden {
		return fmt.Errorf("%w: %s", interfaces.ErrHiddenNotAllowed, p)
	}
	return nil
}

// writeError maps manager errors onto HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, interfaces.ErrUnknownDrive),
		errors.Is(err, interfaces.ErrNotFound),
		errors.Is(err, interfaces.ErrCheckpointNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, interfaces.ErrCrossDrive),
		errors.Is(err, interfaces.ErrHiddenNotAllowed),
		errors.Is(err, interfaces.ErrInvalidResourceURI):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, interfaces.ErrExists):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.log.Error("Request failed", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// HandleGetResources returns the currently registered resources.
//
// URL format: GET /api/resources
func (h *Handler) HandleGetResources(w http.ResponseWriter, r *http.Request) {
	resources := h.manager.Resources()
	if resources == nil {
		resources = []interfaces.Resource{}
	}
	h.writeJSON(w, http.StatusOK, resources)
}

// HandleReconfigureResources replaces the registered resource set with the
// configured defaults plus the posted descriptors, and returns the
// resulting resources. On failure the previous set stays in effect.
//
// URL format: POST /api/resources
// Request body: JSON array of resource descriptors, each with a url field.
func (h *Handler) HandleReconfigureResources(w http.ResponseWriter, r *http.Request) {
	var posted []interfaces.ResourceSpec
	body := http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(body).Decode(&posted); err != nil {
		if errors.Is(err, interfaces.ErrInvalidResourceURI) {
			h.writeError(w, err)
			return
		}
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	specs := make([]interfaces.ResourceSpec, 0, len(h.defaultSpecs)+len(posted))
	specs = append(specs, h.defaultSpecs...)
	specs = append(specs, posted...)

	resources, err := h.manager.Reconfigure(r.Context(), specs)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resources)
}

// HandleGetContents returns the model at the drive-prefixed path. Content
// is included unless content=0 is passed.
//
// URL format: GET /api/contents/{path} or GET /api/contents/?path={path}
func (h *Handler) HandleGetContents(w http.ResponseWriter, r *http.Request) {
	p := requestPath(r)
	if err := h.checkHidden(r, p); err != nil {
		h.writeError(w, err)
		return
	}

	includeContent := r.URL.Query().Get("content") != "0"
	model, err := h.manager.Get(r.Context(), p, includeContent)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, model)
}

// HandleSaveContents writes the posted model at the drive-prefixed path. A
// model of type directory creates a directory.
//
// URL format: PUT /api/contents/{path}
// Request body: JSON content model.
func (h *Handler) HandleSaveContents(w http.ResponseWriter, r *http.Request) {
	p := requestPath(r)
	if err := h.checkHidden(r, p); err != nil {
		h.writeError(w, err)
		return
	}

	var model interfaces.ContentModel
	body := http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(body).Decode(&model); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	saved, err := h.manager.Save(r.Context(), p, &model)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, saved)
}

// HandleRenameContents moves the entry at the URL path to the path given in
// the request body. Both must belong to the same drive.
//
// URL format: PATCH /api/contents/{path}
// Request body: {"path": "<new drive-prefixed path>"}
func (h *Handler) HandleRenameContents(w http.ResponseWriter, r *http.Request) {
	oldPath := requestPath(r)

	var req struct {
		Path string `json:"path"`
	}
	body := http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil || req.Path == "" {
		http.Error(w, "Missing target path in request body", http.StatusBadRequest)
		return
	}

	if err := h.checkHidden(r, oldPath); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.checkHidden(r, req.Path); err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.manager.Rename(r.Context(), oldPath, req.Path); err != nil {
		h.writeError(w, err)
		return
	}

	model, err := h.manager.Get(r.Context(), req.Path, false)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, model)
}

// HandleDeleteContents removes the file or empty directory at the path.
//
// URL format: DELETE /api/contents/{path}
func (h *Handler) HandleDeleteContents(w http.ResponseWriter, r *http.Request) {
	p := requestPath(r)
	if err := h.checkHidden(r, p); err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.manager.Delete(r.Context(), p); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCreateCheckpoint snapshots the file at the path.
//
// URL format: POST /api/checkpoints/{path}
func (h *Handler) HandleCreateCheckpoint(w http.ResponseWriter, r *http.Request) {
	p := requestPath(r)
	if err := h.checkHidden(r, p); err != nil {
		h.writeError(w, err)
		return
	}

	cp, err := h.manager.CreateCheckpoint(r.Context(), p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, cp)
}

// HandleListCheckpoints returns the checkpoints recorded for the path,
// oldest first.
//
// URL format: GET /api/checkpoints/{path}
func (h *Handler) HandleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	p := requestPath(r)
	if err := h.checkHidden(r, p); err != nil {
		h.writeError(w, err)
		return
	}

	checkpoints, err := h.manager.ListCheckpoints(r.Context(), p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if checkpoints == nil {
		checkpoints = []interfaces.Checkpoint{}
	}
	h.writeJSON(w, http.StatusOK, checkpoints)
}

// HandleRestoreCheckpoint replaces the file at the path with the
// checkpointed state.
//
// URL format: PUT /api/checkpoints/{checkpoint_id}/{path}
func (h *Handler) HandleRestoreCheckpoint(w http.ResponseWriter, r *http.Request) {
	p := requestPath(r)
	checkpointID := chi.URLParam(r, "checkpoint_id")
	if err := h.checkHidden(r, p); err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.manager.RestoreCheckpoint(r.Context(), p, checkpointID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeleteCheckpoint removes one checkpoint of the path.
//
// URL format: DELETE /api/checkpoints/{checkpoint_id}/{path}
func (h *Handler) HandleDeleteCheckpoint(w http.ResponseWriter, r *http.Request) {
	p := requestPath(r)
	checkpointID := chi.URLParam(r, "checkpoint_id")
	if err := h.checkHidden(r, p); err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.manager.DeleteCheckpoint(r.Context(), p, checkpointID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
