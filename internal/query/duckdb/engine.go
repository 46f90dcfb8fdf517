package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/analystchat/analystchat/internal/query"
	"github.com/analystchat/analystchat/internal/storage"
)

type Config struct {
	// Path is the database file; empty opens an in-memory database.
	Path         string
	Datasets     []storage.Dataset
	Store        storage.ObjectStore
	QueryTimeout time.Duration
}

// Session is a long-lived DuckDB database that the analyst's SQL runs against.
// Datasets are downloaded once at Open and exposed as views.
type Session struct {
	db           *sql.DB
	workDir      string
	queryTimeout time.Duration
}

func Open(ctx context.Context, cfg Config) (*Session, error) {
	if len(cfg.Datasets) > 0 && cfg.Store == nil {
		return nil, fmt.Errorf("object store is required to load datasets")
	}

	db, err := sql.Open("duckdb", strings.TrimSpace(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	// An in-memory database lives on a single connection.
	db.SetMaxOpenConns(1)

	s := &Session{db: db, queryTimeout: cfg.QueryTimeout}
	if err := db.PingContext(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	if len(cfg.Datasets) == 0 {
		return s, nil
	}

	workDir, err := os.MkdirTemp("", "analystchat-datasets-")
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("create dataset dir: %w", err)
	}
	s.workDir = workDir

	names := make([]string, 0, len(cfg.Datasets))
	grouped := map[string][]string{}
	for index, dataset := range cfg.Datasets {
		localPath, err := s.download(ctx, cfg.Store, dataset, index)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		if _, seen := grouped[dataset.Name]; !seen {
			names = append(names, dataset.Name)
		}
		grouped[dataset.Name] = append(grouped[dataset.Name], localPath)
	}
	for _, name := range names {
		viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`, quoteIdent(name), quoteStringArray(grouped[name]))
		if _, err := db.ExecContext(ctx, viewSQL); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("create view for dataset %q: %w", name, err)
		}
	}
	return s, nil
}

func (s *Session) download(ctx context.Context, store storage.ObjectStore, dataset storage.Dataset, index int) (string, error) {
	reader, err := store.Get(ctx, dataset.ObjectKey)
	if err != nil {
		return "", fmt.Errorf("get dataset %q: %w", dataset.Name, err)
	}
	localPath := filepath.Join(s.workDir, fmt.Sprintf("%s_%d.parquet", sanitizeFileComponent(dataset.Name), index))
	if err := writeFile(localPath, reader); err != nil {
		_ = reader.Close()
		return "", fmt.Errorf("write dataset %q: %w", dataset.Name, err)
	}
	if err := reader.Close(); err != nil {
		return "", fmt.Errorf("close dataset object %q: %w", dataset.ObjectKey, err)
	}
	return localPath, nil
}

func (s *Session) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	if s == nil || s.db == nil {
		return query.Result{}, fmt.Errorf("duckdb session is not open")
	}
	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}
	return query.Execute(ctx, s.db, request)
}

func (s *Session) HealthCheck(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("duckdb session is not open")
	}
	return s.db.PingContext(ctx)
}

func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	var err error
	if s.db != nil {
		err = s.db.Close()
	}
	if s.workDir != "" {
		_ = os.RemoveAll(s.workDir)
	}
	return err
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "dataset"
	}
	return value
}

func writeFile(path string, reader io.Reader) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
