package observability

import (
	"context"
	"io"
	"log/slog"

	"github.com/analystchat/analystchat/internal/config"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

// NewLogger builds the process logger. Every line carries the deployment
// shape (which warehouse answers SQL, where sessions live, which semantic
// model is queried) so logs from mixed fleets can be told apart.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{Level: cfg.Observability.LogLevel}
	var handler slog.Handler = slog.NewTextHandler(writer, opts)
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
		slog.String("warehouse_engine", cfg.Warehouse.Engine),
		slog.String("session_backend", cfg.Session.Backend),
		slog.String("semantic_model", semanticModelFile(cfg.SemanticModel)),
	)
}

// SessionLogger scopes a logger to one chat session and the request's trace.
func SessionLogger(ctx context.Context, logger *slog.Logger, sessionID string) *slog.Logger {
	attrs := []any{slog.String("session_id", sessionID)}
	if traceID := TraceIDFromContext(ctx); traceID != "" {
		attrs = append(attrs, slog.String("trace_id", traceID))
	}
	return logger.With(attrs...)
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	traceID, _ := ctx.Value(traceIDKey).(string)
	return traceID
}

func semanticModelFile(model config.SemanticModelConfig) string {
	if model.File == "" {
		return ""
	}
	return "@" + model.Database + "." + model.Schema + "." + model.Stage + "/" + model.File
}
