package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/apilens/apilens/internal/domain"
	"github.com/apilens/apilens/internal/usecase"
)

// Handlers holds dependencies for the admin HTTP API.
type Handlers struct {
	explorer *usecase.Explorer
	logger   *slog.Logger
}

// NewHandlers creates a new Handlers struct.
func NewHandlers(explorer *usecase.Explorer, logger *slog.Logger) *Handlers {
	return &Handlers{
		explorer: explorer,
		logger:   logger.With("component", "httpapi_handler"),
	}
}

// RegisterRoutes sets up the admin API routes.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/introspect", h.handleIntrospect)
	mux.HandleFunc("GET /api/schemas", h.handleListSchemas)
	mux.HandleFunc("GET /api/schemas/{id}", h.handleGetSchema)
	mux.HandleFunc("DELETE /api/schemas/{id}", h.handleDeleteSchema)
	mux.HandleFunc("GET /api/stats", h.handleStats)
}

// IntrospectRequest defines the expected JSON body for POST /api/introspect.
// Protocol is optional; when empty the explorer auto-detects from the URL.
type IntrospectRequest struct {
	URL      string            `json:"url"`
	Protocol string            `json:"protocol,omitempty"`
	SpecURL  string            `json:"specUrl,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// handleIntrospect implements POST /api/introspect. Recoverable
// introspection failures come back as 200 with success=false, matching the
// connector contract; only configuration misuse and internal faults map to
// error statuses.
func (h *Handlers) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	var req IntrospectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Failed to decode introspect request body", slog.Any("error", err))
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if req.URL == "" {
		http.Error(w, "Missing 'url' field in request body", http.StatusBadRequest)
		return
	}

	h.logger.Info("Received introspect request",
		slog.String("url", req.URL),
		slog.String("protocol", req.Protocol))

	cfg := usecase.ConnectorConfig{
		URL:             req.URL,
		SpecURL:         req.SpecURL,
		Headers:         req.Headers,
		FollowRedirects: true,
	}
	result, err := h.explorer.Introspect(r.Context(), cfg, domain.Protocol(req.Protocol))
	if err != nil {
		h.logger.Error("Introspection failed",
			slog.String("url", req.URL),
			slog.Any("error", err))
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// handleListSchemas implements GET /api/schemas with optional name,
// protocol, source, search, limit and offset query parameters.
func (h *Handlers) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := domain.SchemaQuery{
		Name:     params.Get("name"),
		Protocol: domain.Protocol(params.Get("protocol")),
		Source:   params.Get("source"),
		Search:   params.Get("search"),
	}

	var err error
	if q.Limit, err = intParam(params.Get("limit")); err != nil {
		http.Error(w, "Invalid 'limit' query parameter", http.StatusBadRequest)
		return
	}
	if q.Offset, err = intParam(params.Get("offset")); err != nil {
		http.Error(w, "Invalid 'offset' query parameter", http.StatusBadRequest)
		return
	}

	result, err := h.explorer.QuerySchemas(r.Context(), q)
	if err != nil {
		h.logger.Error("Failed to query schemas", slog.Any("error", err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// handleGetSchema implements GET /api/schemas/{id}.
func (h *Handlers) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	schema, err := h.explorer.GetSchema(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to retrieve schema", slog.String("id", id), slog.Any("error", err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if schema == nil {
		http.Error(w, fmt.Sprintf("Schema not found: %s", id), http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, schema)
}

// handleDeleteSchema implements DELETE /api/schemas/{id}.
func (h *Handlers) handleDeleteSchema(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	removed, err := h.explorer.DeleteSchema(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to delete schema", slog.String("id", id), slog.Any("error", err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !removed {
		http.Error(w, fmt.Sprintf("Schema not found: %s", id), http.StatusNotFound)
		return
	}
	h.logger.Info("Deleted schema", slog.String("id", id))
	w.WriteHeader(http.StatusNoContent)
}

// handleStats implements GET /api/stats.
func (h *Handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.explorer.StorageStats(r.Context())
	if err != nil {
		h.logger.Error("Failed to read storage stats", slog.Any("error", err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response body", slog.Any("error", err))
	}
}

func statusForError(err error) int {
	switch domain.CodeOf(err) {
	case domain.ErrCodeConfiguration, domain.ErrCodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
