package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/replay-browser/internal/decoder"
	"github.com/replay-browser/internal/domain"
	"github.com/replay-browser/internal/ingest"
	"github.com/replay-browser/internal/service"
	"github.com/replay-browser/internal/websocket"
)

// maxUploadSize bounds synchronous replay uploads.
const maxUploadSize = 64 << 20

// Handler provides HTTP handlers for the replay API
type Handler struct {
	consumer *ingest.Consumer
	decoder  *decoder.Decoder
	store    ingest.ReplayStore
	service  *service.LeaderboardService
	hub      *websocket.Hub
	logger   *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	consumer *ingest.Consumer,
	dec *decoder.Decoder,
	store ingest.ReplayStore,
	svc *service.LeaderboardService,
	hub *websocket.Hub,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		consumer: consumer,
		decoder:  dec,
		store:    store,
		service:  svc,
		hub:      hub,
		logger:   logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ParseRequest asks for a replay source to be ingested.
type ParseRequest struct {
	Source string `json:"source"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Ingestion
		r.Route("/replays", func(r chi.Router) {
			r.Post("/parse", h.ParseReplay)
			r.Post("/upload", h.UploadReplay)
			r.Get("/", h.FindReplays)
			r.Get("/{replayID}", h.GetReplay)
		})

		// Leaderboards
		r.Get("/leaderboards", h.GetLeaderboards)

		// Privacy
		r.Delete("/players/{playerGUID}", h.EraseProfile)

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// ParseReplay enqueues a replay source and reports whether this request won
// the drain. The source is queued either way; "busy" just means an earlier
// drain is still running and will pick it up.
func (h *Handler) ParseReplay(w http.ResponseWriter, r *http.Request) {
	var req ParseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if req.Source == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	h.consumer.Enqueue(req.Source)

	if h.consumer.RequestDrain() {
		go h.consumer.Drain(context.Background())
		h.writeJSON(w, http.StatusAccepted, APIResponse{
			Success: true,
			Data:    map[string]string{"status": "accepted"},
		})
		return
	}

	h.writeSuccess(w, map[string]string{"status": "busy"})
}

// UploadReplay decodes and stores a replay document synchronously. Decode
// failures are returned verbatim so the uploader can fix the document.
func (h *Handler) UploadReplay(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadSize))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	replay, err := h.decoder.Decode(data)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := h.store.Save(r.Context(), replay)
	if err != nil {
		h.logger.Error("failed to store uploaded replay", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}
	replay.ID = id

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    replay,
	})
}

// GetReplay returns a stored replay by ID
func (h *Handler) GetReplay(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "replayID"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	replay, err := h.service.GetReplay(r.Context(), id)
	if err != nil {
		if domain.IsNotFoundError(err) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to get replay", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, replay)
}

// FindReplays searches replays by server and participant
func (h *Handler) FindReplays(w http.ResponseWriter, r *http.Request) {
	serverID := r.URL.Query().Get("server")
	playerGUID, err := uuid.Parse(r.URL.Query().Get("player"))
	if serverID == "" || err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	replays, err := h.service.FindReplays(r.Context(), serverID, playerGUID)
	if err != nil {
		h.logger.Error("failed to find replays", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, replays)
}

// GetLeaderboards returns ranked leaderboards for the requested statistics
func (h *Handler) GetLeaderboards(w http.ResponseWriter, r *http.Request) {
	var requested []string
	if stats := r.URL.Query().Get("stats"); stats != "" {
		requested = strings.Split(stats, ",")
	}

	data, err := h.service.ComputeLeaderboardData(r.Context(), requested)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownStatistic) {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		h.logger.Error("failed to compute leaderboards", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, data)
}

// EraseProfile redacts a player's stored records
func (h *Handler) EraseProfile(w http.ResponseWriter, r *http.Request) {
	playerGUID, err := uuid.Parse(chi.URLParam(r, "playerGUID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if err := h.service.EraseProfile(r.Context(), playerGUID); err != nil {
		if domain.IsNotFoundError(err) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to erase profile", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, map[string]string{"status": "erased"})
}
