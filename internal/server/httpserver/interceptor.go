package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/connect"
)

// LoggingInterceptor logs admin RPC calls.
type LoggingInterceptor struct {
	logger *slog.Logger
}

// NewLoggingInterceptor creates a new logging interceptor.
func NewLoggingInterceptor(logger *slog.Logger) *LoggingInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingInterceptor{logger: logger}
}

// WrapUnary implements connect.Interceptor.
func (i *LoggingInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		start := time.Now()
		resp, err := next(ctx, req)

		attrs := []any{
			"method", req.Spec().Procedure,
			"peer", req.Peer().Addr,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if err != nil {
			i.logger.Warn("admin rpc failed", append(attrs, "code", connect.CodeOf(err), "error", err)...)
		} else {
			i.logger.Debug("admin rpc", attrs...)
		}
		return resp, err
	}
}

// WrapStreamingClient implements connect.Interceptor.
func (i *LoggingInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

// WrapStreamingHandler implements connect.Interceptor.
func (i *LoggingInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return next
}

// recoverHandler turns a handler panic into an internal error.
func recoverHandler(logger *slog.Logger) connect.HandlerOption {
	return connect.WithRecover(func(_ context.Context, spec connect.Spec, _ http.Header, p any) error {
		logger.Error("panic in admin rpc", "method", spec.Procedure, "panic", p)
		return connect.NewError(connect.CodeInternal, fmt.Errorf("internal error"))
	})
}
