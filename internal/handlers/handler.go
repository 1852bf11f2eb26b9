package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/eldtechnologies/chatmood/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db     store.DataStore
	driver string
	redis  *store.RedisStore // nil when dedup is process-local
}

// NewHandler creates a new Handler. driver names the store in health output.
func NewHandler(db store.DataStore, driver string, redis *store.RedisStore) *Handler {
	return &Handler{db: db, driver: driver, redis: redis}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
