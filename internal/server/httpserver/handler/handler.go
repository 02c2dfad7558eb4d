package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/russellb/corosync/internal/infra/buildinfo"
	"github.com/russellb/corosync/internal/ipc"
	"github.com/russellb/corosync/internal/telemetry/logger"
)

// StatusFunc returns the current core status. Implementations usually run
// ipc.Core.Status on the event loop.
type StatusFunc func(ctx context.Context) (ipc.Status, error)

// StatsSource exposes the object database.
type StatsSource interface {
	Snapshot(ctx context.Context, prefix string) (map[string]string, error)
}

// Config holds the handler's collaborators.
type Config struct {
	Status StatusFunc
	Stats  StatsSource // optional
	Logger *slog.Logger
}

// Handler is the operator HTTP handler.
type Handler struct {
	status  StatusFunc
	stats   StatsSource
	logger  *slog.Logger
	started time.Time
	mux     *http.ServeMux
}

// New creates a Handler.
func New(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &Handler{
		status:  cfg.Status,
		stats:   cfg.Stats,
		logger:  cfg.Logger,
		started: time.Now(),
		mux:     http.NewServeMux(),
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /healthz", h.handleHealth)
	h.mux.HandleFunc("GET /readyz", h.handleReady)
	h.mux.HandleFunc("GET /v1/status", h.handleStatus)
	h.mux.HandleFunc("GET /v1/stats", h.handleStats)
}

// Response is the JSON envelope of every reply.
type Response struct {
	RequestID string `json:"request_id,omitempty"`
	Data      any    `json:"data,omitempty"`
	Error     *Error `json:"error,omitempty"`
}

// Error describes a failed request.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(Response{RequestID: requestID(r), Data: data}); err != nil {
		logger.With(r.Context(), h.logger).Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{
		RequestID: requestID(r),
		Error:     &Error{Code: code, Message: message},
	})
}

// requestID returns the id set by the RequestID middleware.
func requestID(r *http.Request) string {
	if id := logger.RequestIDFromContext(r.Context()); id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}

func (h *Handler) currentStatus(ctx context.Context) (ipc.Status, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return h.status(ctx)
}

func (h *Handler) uptime() string {
	return time.Since(h.started).Truncate(time.Second).String()
}

func version() string {
	return buildinfo.Get().Version
}
