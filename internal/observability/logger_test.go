package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/analystchat/analystchat/internal/config"
)

func TestNewLoggerCarriesDeploymentAttributes(t *testing.T) {
	cfg, err := config.Load("analystchat-api", func(key string) (string, bool) {
		values := map[string]string{
			"ANALYSTCHAT_PROFILE":            "test",
			"ANALYSTCHAT_SESSION_BACKEND":    "redis",
			"ANALYSTCHAT_SESSION_REDIS_ADDR": "localhost:6379",
		}
		value, ok := values[key]
		return value, ok
	})
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}

	var buf bytes.Buffer
	logger := NewLogger(cfg, &buf)
	ctx := ContextWithTraceID(context.Background(), "trace-7")
	SessionLogger(ctx, logger, "s-1").Warn("analyst request failed")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	want := map[string]string{
		"service":          "analystchat-api",
		"profile":          "test",
		"warehouse_engine": "duckdb",
		"session_backend":  "redis",
		"semantic_model":   "@KYOTO_PORTA_CORTEX_SEARCH_ANALYST_DOCS.PORTA_ANALYST.DOCS_STAGE/porta_analyst_semantic_model.yaml",
		"session_id":       "s-1",
		"trace_id":         "trace-7",
	}
	for key, value := range want {
		if line[key] != value {
			t.Fatalf("%s = %v, want %q", key, line[key], value)
		}
	}
}

func TestNewLoggerRespectsLevel(t *testing.T) {
	cfg, err := config.Load("analystchat-api", func(key string) (string, bool) {
		if key == "ANALYSTCHAT_PROFILE" {
			return "test", true
		}
		return "", false
	})
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	var buf bytes.Buffer
	NewLogger(cfg, &buf).Info("dropped below warn")
	if buf.Len() != 0 {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}
