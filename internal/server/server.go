// Package server exposes a sketchkv.Store over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jcalabro/sketchkv"
	"github.com/jcalabro/sketchkv/internal/archive"
	"github.com/jcalabro/sketchkv/internal/command"
)

type JSON map[string]any

// Archiver is the subset of archive.Archive used by the archive routes.
type Archiver interface {
	Export(ctx context.Context, keys []string) (archive.Export, error)
	Import(ctx context.Context, id string) ([]string, error)
	List(ctx context.Context) ([]archive.Export, error)
	Delete(ctx context.Context, id string) error
}

// Handler holds the dependencies of the HTTP handlers. archive may be nil,
// in which case the archive routes answer 503.
type Handler struct {
	store      *sketchkv.Store
	dispatcher *command.Dispatcher
	archive    Archiver
}

// NewRouter returns a router serving store.
func NewRouter(store *sketchkv.Store, dispatcher *command.Dispatcher, arch Archiver) *mux.Router {
	r := mux.NewRouter()
	RegisterRoutes(r, store, dispatcher, arch)
	return r
}

func RegisterRoutes(r *mux.Router, store *sketchkv.Store, dispatcher *command.Dispatcher, arch Archiver) {
	h := &Handler{store: store, dispatcher: dispatcher, archive: arch}

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/v1/command", h.PostCommand).Methods(http.MethodPost)

	// Keys
	r.HandleFunc("/v1/keys", h.ListKeys).Methods(http.MethodGet)
	r.HandleFunc("/v1/keys/{key}", h.GetKey).Methods(http.MethodGet)
	r.HandleFunc("/v1/keys/{key}", h.DeleteKey).Methods(http.MethodDelete)

	// Archive
	r.HandleFunc("/v1/archive", h.ListExports).Methods(http.MethodGet)
	r.HandleFunc("/v1/archive/export", h.PostExport).Methods(http.MethodPost)
	r.HandleFunc("/v1/archive/import/{id}", h.PostImport).Methods(http.MethodPost)
	r.HandleFunc("/v1/archive/{id}", h.DeleteExport).Methods(http.MethodDelete)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, sketchkv.ErrKeyNotFound), errors.Is(err, archive.ErrExportNotFound):
		status = http.StatusNotFound
	case command.IsClientError(err):
		status = http.StatusBadRequest
	default:
		log.Printf("request failed: %v", err)
	}
	writeJSON(w, status, JSON{"error": err.Error()})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, JSON{"status": "ok"})
}

// PostCommand runs {"args": ["BF.ADD", "key", "item"]} and replies with
// {"result": ...}.
func (h *Handler) PostCommand(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Args []string `json:"args"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, JSON{"error": "invalid json"})
		return
	}
	if len(req.Args) == 0 {
		writeJSON(w, http.StatusBadRequest, JSON{"error": "args required"})
		return
	}
	result, err := h.dispatcher.Execute(r.Context(), req.Args)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, JSON{"result": result})
}

func (h *Handler) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys := h.store.Keys()
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, JSON{"keys": keys})
}

func (h *Handler) GetKey(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	debug, err := h.store.Debug(key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, JSON{"key": key, "type": h.store.Type(key).String(), "debug": debug})
}

func (h *Handler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if !h.store.Del(key) {
		writeJSON(w, http.StatusNotFound, JSON{"error": "key not found"})
		return
	}
	writeJSON(w, http.StatusOK, JSON{"deleted": key})
}

func (h *Handler) ListExports(w http.ResponseWriter, r *http.Request) {
	if !h.archiveEnabled(w) {
		return
	}
	exports, err := h.archive.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, JSON{"exports": exports})
}

// PostExport archives {"keys": [...]}, or every key when the body is empty.
func (h *Handler) PostExport(w http.ResponseWriter, r *http.Request) {
	if !h.archiveEnabled(w) {
		return
	}
	var req struct {
		Keys []string `json:"keys"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, JSON{"error": "invalid json"})
			return
		}
	}
	exp, err := h.archive.Export(r.Context(), req.Keys)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, exp)
}

func (h *Handler) PostImport(w http.ResponseWriter, r *http.Request) {
	if !h.archiveEnabled(w) {
		return
	}
	keys, err := h.archive.Import(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, JSON{"keys": keys})
}

func (h *Handler) DeleteExport(w http.ResponseWriter, r *http.Request) {
	if !h.archiveEnabled(w) {
		return
	}
	id := mux.Vars(r)["id"]
	if err := h.archive.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, JSON{"deleted": id})
}

func (h *Handler) archiveEnabled(w http.ResponseWriter) bool {
	if h.archive == nil {
		writeJSON(w, http.StatusServiceUnavailable, JSON{"error": "archive disabled"})
		return false
	}
	return true
}
