package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/analystchat/analystchat/internal/storage"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	EngineDuckDB   = "duckdb"
	EnginePostgres = "postgres"

	SessionBackendMemory   = "memory"
	SessionBackendRedis    = "redis"
	SessionBackendPostgres = "postgres"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Analyst       AnalystConfig
	SemanticModel SemanticModelConfig
	Warehouse     WarehouseConfig
	ObjectStore   ObjectStoreConfig
	Session       SessionConfig
	Archive       ArchiveConfig
	Render        RenderConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type AnalystConfig struct {
	BaseURL       string
	Token         string
	TokenType     string
	Timeout       time.Duration
	HistoryWindow int
	Debug         bool
}

type SemanticModelConfig struct {
	Database string
	Schema   string
	Stage    string
	File     string
}

type WarehouseConfig struct {
	Engine          string
	DuckDBPath      string
	Datasets        []storage.Dataset
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
	RowLimit        int
}

type ObjectStoreConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Prefix          string
}

type SessionConfig struct {
	Backend        string
	TTL            time.Duration
	RedisAddr      string
	RedisUsername  string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string
	DSN            string
	PurgeInterval  time.Duration
}

// ArchiveConfig controls transcript uploads to the object store.
type ArchiveConfig struct {
	Enabled bool
}

type RenderConfig struct {
	CacheResults bool
	CacheSize    int
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("ANALYSTCHAT_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid ANALYSTCHAT_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	var datasets string
	steps := []error{
		applyString(lookup, "ANALYSTCHAT_SERVICE_NAME", &cfg.Service.Name),
		applyString(lookup, "ANALYSTCHAT_HTTP_ADDR", &cfg.HTTP.Address),
		applyDuration(lookup, "ANALYSTCHAT_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout),
		applyDuration(lookup, "ANALYSTCHAT_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout),
		applyDuration(lookup, "ANALYSTCHAT_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout),

		applyString(lookup, "ANALYSTCHAT_ANALYST_BASE_URL", &cfg.Analyst.BaseURL),
		applyString(lookup, "ANALYSTCHAT_ANALYST_TOKEN", &cfg.Analyst.Token),
		applyString(lookup, "ANALYSTCHAT_ANALYST_TOKEN_TYPE", &cfg.Analyst.TokenType),
		applyDuration(lookup, "ANALYSTCHAT_ANALYST_TIMEOUT", &cfg.Analyst.Timeout),
		applyInt(lookup, "ANALYSTCHAT_ANALYST_HISTORY_WINDOW", &cfg.Analyst.HistoryWindow),
		applyBool(lookup, "ANALYSTCHAT_ANALYST_DEBUG", &cfg.Analyst.Debug),

		applyString(lookup, "ANALYSTCHAT_SEMANTIC_MODEL_DATABASE", &cfg.SemanticModel.Database),
		applyString(lookup, "ANALYSTCHAT_SEMANTIC_MODEL_SCHEMA", &cfg.SemanticModel.Schema),
		applyString(lookup, "ANALYSTCHAT_SEMANTIC_MODEL_STAGE", &cfg.SemanticModel.Stage),
		applyString(lookup, "ANALYSTCHAT_SEMANTIC_MODEL_FILE", &cfg.SemanticModel.File),

		applyString(lookup, "ANALYSTCHAT_WAREHOUSE_ENGINE", &cfg.Warehouse.Engine),
		applyString(lookup, "ANALYSTCHAT_WAREHOUSE_DUCKDB_PATH", &cfg.Warehouse.DuckDBPath),
		applyString(lookup, "ANALYSTCHAT_WAREHOUSE_DATASETS", &datasets),
		applyString(lookup, "ANALYSTCHAT_WAREHOUSE_DSN", &cfg.Warehouse.DSN),
		applyInt(lookup, "ANALYSTCHAT_WAREHOUSE_MAX_OPEN_CONNS", &cfg.Warehouse.MaxOpenConns),
		applyInt(lookup, "ANALYSTCHAT_WAREHOUSE_MAX_IDLE_CONNS", &cfg.Warehouse.MaxIdleConns),
		applyDuration(lookup, "ANALYSTCHAT_WAREHOUSE_CONN_MAX_IDLE_TIME", &cfg.Warehouse.ConnMaxIdleTime),
		applyDuration(lookup, "ANALYSTCHAT_WAREHOUSE_CONN_MAX_LIFETIME", &cfg.Warehouse.ConnMaxLifetime),
		applyDuration(lookup, "ANALYSTCHAT_WAREHOUSE_QUERY_TIMEOUT", &cfg.Warehouse.QueryTimeout),
		applyInt(lookup, "ANALYSTCHAT_WAREHOUSE_ROW_LIMIT", &cfg.Warehouse.RowLimit),

		applyString(lookup, "ANALYSTCHAT_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint),
		applyString(lookup, "ANALYSTCHAT_OBJECTSTORE_REGION", &cfg.ObjectStore.Region),
		applyString(lookup, "ANALYSTCHAT_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket),
		applyString(lookup, "ANALYSTCHAT_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID),
		applyString(lookup, "ANALYSTCHAT_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey),
		applyBool(lookup, "ANALYSTCHAT_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL),
		applyString(lookup, "ANALYSTCHAT_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix),

		applyString(lookup, "ANALYSTCHAT_SESSION_BACKEND", &cfg.Session.Backend),
		applyDuration(lookup, "ANALYSTCHAT_SESSION_TTL", &cfg.Session.TTL),
		applyString(lookup, "ANALYSTCHAT_SESSION_REDIS_ADDR", &cfg.Session.RedisAddr),
		applyString(lookup, "ANALYSTCHAT_SESSION_REDIS_USERNAME", &cfg.Session.RedisUsername),
		applyString(lookup, "ANALYSTCHAT_SESSION_REDIS_PASSWORD", &cfg.Session.RedisPassword),
		applyInt(lookup, "ANALYSTCHAT_SESSION_REDIS_DB", &cfg.Session.RedisDB),
		applyString(lookup, "ANALYSTCHAT_SESSION_REDIS_KEY_PREFIX", &cfg.Session.RedisKeyPrefix),
		applyString(lookup, "ANALYSTCHAT_SESSION_DSN", &cfg.Session.DSN),
		applyDuration(lookup, "ANALYSTCHAT_SESSION_PURGE_INTERVAL", &cfg.Session.PurgeInterval),
		applyBool(lookup, "ANALYSTCHAT_ARCHIVE_ENABLED", &cfg.Archive.Enabled),

		applyBool(lookup, "ANALYSTCHAT_RENDER_CACHE_RESULTS", &cfg.Render.CacheResults),
		applyInt(lookup, "ANALYSTCHAT_RENDER_CACHE_SIZE", &cfg.Render.CacheSize),

		applyBool(lookup, "ANALYSTCHAT_LOG_JSON", &cfg.Observability.LogJSON),
		applyLogLevel(lookup, "ANALYSTCHAT_LOG_LEVEL", &cfg.Observability.LogLevel),
		applyBool(lookup, "ANALYSTCHAT_AUTH_REQUIRED", &cfg.Auth.Required),
		applyString(lookup, "ANALYSTCHAT_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys),
	}
	for _, err := range steps {
		if err != nil {
			return Config{}, err
		}
	}

	parsed, err := storage.ParseDatasets(datasets)
	if err != nil {
		return Config{}, fmt.Errorf("invalid ANALYSTCHAT_WAREHOUSE_DATASETS: %w", err)
	}
	cfg.Warehouse.Datasets = parsed
	cfg.Warehouse.Engine = strings.ToLower(cfg.Warehouse.Engine)
	cfg.Session.Backend = strings.ToLower(cfg.Session.Backend)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if c.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	if c.Analyst.HistoryWindow < 1 {
		return fmt.Errorf("invalid ANALYSTCHAT_ANALYST_HISTORY_WINDOW: must be at least 1, got %d", c.Analyst.HistoryWindow)
	}
	switch c.Warehouse.Engine {
	case EngineDuckDB:
	case EnginePostgres:
		if c.Warehouse.DSN == "" {
			return fmt.Errorf("ANALYSTCHAT_WAREHOUSE_DSN is required for the postgres engine")
		}
	default:
		return fmt.Errorf("invalid ANALYSTCHAT_WAREHOUSE_ENGINE: %q", c.Warehouse.Engine)
	}
	switch c.Session.Backend {
	case SessionBackendMemory:
	case SessionBackendRedis:
		if c.Session.RedisAddr == "" {
			return fmt.Errorf("ANALYSTCHAT_SESSION_REDIS_ADDR is required for the redis backend")
		}
	case SessionBackendPostgres:
		if c.Session.DSN == "" {
			return fmt.Errorf("ANALYSTCHAT_SESSION_DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("invalid ANALYSTCHAT_SESSION_BACKEND: %q", c.Session.Backend)
	}
	if c.Warehouse.RowLimit < 0 {
		return fmt.Errorf("invalid ANALYSTCHAT_WAREHOUSE_ROW_LIMIT: must be zero or positive, got %d", c.Warehouse.RowLimit)
	}
	if c.Archive.Enabled && (c.ObjectStore.Endpoint == "" || c.ObjectStore.Bucket == "") {
		return fmt.Errorf("ANALYSTCHAT_ARCHIVE_ENABLED requires ANALYSTCHAT_OBJECTSTORE_ENDPOINT and ANALYSTCHAT_OBJECTSTORE_BUCKET")
	}
	if c.Render.CacheResults && c.Render.CacheSize < 1 {
		return fmt.Errorf("invalid ANALYSTCHAT_RENDER_CACHE_SIZE: must be positive when caching is enabled")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "analystchat-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Analyst: AnalystConfig{
			TokenType:     "KEYPAIR_JWT",
			Timeout:       30 * time.Second,
			HistoryWindow: 5,
			Debug:         true,
		},
		SemanticModel: SemanticModelConfig{
			Database: "KYOTO_PORTA_CORTEX_SEARCH_ANALYST_DOCS",
			Schema:   "PORTA_ANALYST",
			Stage:    "DOCS_STAGE",
			File:     "porta_analyst_semantic_model.yaml",
		},
		Warehouse: WarehouseConfig{
			Engine:          EngineDuckDB,
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
			RowLimit:        10000,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:        "localhost:9000",
			Region:          "us-east-1",
			Bucket:          "analystchat",
			AccessKeyID:     "minio",
			SecretAccessKey: "miniostorage",
		},
		Session: SessionConfig{
			Backend:        SessionBackendMemory,
			TTL:            12 * time.Hour,
			RedisKeyPrefix: "analystchat:session:",
			PurgeInterval:  10 * time.Minute,
		},
		Render: RenderConfig{
			CacheResults: false,
			CacheSize:    256,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.Analyst.Debug = false
		cfg.ObjectStore.UseSSL = true
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
