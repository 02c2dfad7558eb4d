package httpserver

import (
	"log/slog"
	"net/http"

	"connectrpc.com/connect"

	"github.com/russellb/corosync/internal/server/httpserver/handler"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Handler serves probes, status and admin RPC.
	Handler *handler.Handler

	// Metrics serves /metrics. Optional.
	Metrics http.Handler

	// AdminAllowList restricts status and admin routes to these IPs and
	// CIDR blocks. Empty means no restriction.
	AdminAllowList []string

	// RateLimit is the per-IP request rate of status and admin routes.
	// Zero disables it.
	RateLimit int

	Logger *slog.Logger
}

// DefaultRouterConfig returns default router configuration.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		AdminAllowList: []string{"127.0.0.1", "::1"},
		RateLimit:      50,
	}
}

// NewRouter builds the operator mux.
func NewRouter(cfg *RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := cfg.Handler

	base := []Middleware{RequestID(), Recover(logger)}

	protected := append([]Middleware{}, base...)
	protected = append(protected, NetworkACL(&NetworkACLConfig{
		AllowList: cfg.AdminAllowList,
		Logger:    logger,
	}))
	if cfg.RateLimit > 0 {
		protected = append(protected, RateLimit(cfg.RateLimit))
	}
	protected = append(protected, AccessLog(logger))

	mux := http.NewServeMux()

	mux.Handle("GET /healthz", Chain(h, base...))
	mux.Handle("GET /readyz", Chain(h, base...))

	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", Chain(cfg.Metrics, base...))
	}

	mux.Handle("GET /v1/status", Chain(h, protected...))
	mux.Handle("GET /v1/stats", Chain(h, protected...))

	path, admin := handler.NewAdminHandler(h,
		connect.WithInterceptors(NewLoggingInterceptor(logger)),
		recoverHandler(logger),
	)
	mux.Handle(path, Chain(admin, protected...))

	return mux
}
