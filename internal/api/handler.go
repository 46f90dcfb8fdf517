package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/analystchat/analystchat/internal/archive"
	"github.com/analystchat/analystchat/internal/auth"
	"github.com/analystchat/analystchat/internal/chat"
	"github.com/analystchat/analystchat/internal/config"
	"github.com/analystchat/analystchat/internal/conversation"
	"github.com/analystchat/analystchat/internal/observability"
	"github.com/analystchat/analystchat/internal/render"
)

type ReadinessCheck func(ctx context.Context) error

// ChatService is the interaction loop behind the session routes.
type ChatService interface {
	NewSession(ctx context.Context) (*conversation.State, error)
	Ask(ctx context.Context, sessionID, question string) (chat.Turn, error)
	SelectSuggestion(ctx context.Context, sessionID, key string) (chat.Turn, error)
	Reset(ctx context.Context, sessionID string) error
	Transcript(ctx context.Context, sessionID string) (chat.Transcript, error)
	DeleteSession(ctx context.Context, sessionID string) error
	RunSQL(ctx context.Context, sessionID string, messageIndex int) ([]render.Element, error)
	Archive(ctx context.Context, sessionID string) (archive.Result, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Chat              ChatService
	UI                http.Handler
}

type route struct {
	pattern string
	role    string
	handle  func(deps Dependencies, w http.ResponseWriter, r *http.Request)
}

var sessionRoutes = []route{
	{"POST /v1/sessions", auth.RoleAnalystUser, handleCreateSession},
	{"GET /v1/sessions/{id}", auth.RoleAnalystUser, handleGetSession},
	{"DELETE /v1/sessions/{id}", auth.RoleAnalystUser, handleDeleteSession},
	{"POST /v1/sessions/{id}/messages", auth.RoleAnalystUser, handleAsk},
	{"POST /v1/sessions/{id}/suggestions", auth.RoleAnalystUser, handleSuggestion},
	{"POST /v1/sessions/{id}/reset", auth.RoleAnalystUser, handleReset},
	{"POST /v1/sessions/{id}/messages/{index}/sql", auth.RoleSQLRunner, handleRunSQL},
	{"POST /v1/sessions/{id}/archive", auth.RoleAnalystUser, handleArchive},
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protect := protection(cfg, deps)
	for _, rt := range sessionRoutes {
		handle := rt.handle
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if deps.Chat == nil {
				writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat service is not configured", false, nil)
				return
			}
			handle(deps, w, r)
		})
		mux.Handle(rt.pattern, protect(auth.RequireRole(rt.role, inner)))
	}

	if deps.UI != nil {
		mux.Handle("GET /{path...}", deps.UI)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func protection(cfg config.Config, deps Dependencies) func(http.Handler) http.Handler {
	if !cfg.Auth.Required {
		return func(next http.Handler) http.Handler { return next }
	}
	if deps.AuthMiddleware == nil {
		if deps.Logger != nil {
			deps.Logger.Error("auth required but auth middleware missing")
		}
		return func(http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		}
	}
	return deps.AuthMiddleware
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
