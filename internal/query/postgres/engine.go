package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/analystchat/analystchat/internal/query"
)

// Engine runs analyst SQL against a Postgres-compatible warehouse. Every
// statement runs inside a read-only transaction that is rolled back.
type Engine struct {
	DB           *sql.DB
	QueryTimeout time.Duration
}

func NewEngine(db *sql.DB, queryTimeout time.Duration) *Engine {
	return &Engine{DB: db, QueryTimeout: queryTimeout}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	if e == nil || e.DB == nil {
		return query.Result{}, fmt.Errorf("warehouse db is required")
	}
	if e.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.QueryTimeout)
		defer cancel()
	}
	tx, err := e.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return query.Result{}, fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return query.Execute(ctx, tx, request)
}

func (e *Engine) HealthCheck(ctx context.Context) error {
	if e == nil || e.DB == nil {
		return fmt.Errorf("warehouse db is required")
	}
	return e.DB.PingContext(ctx)
}

func (e *Engine) Close() error {
	if e == nil || e.DB == nil {
		return nil
	}
	return e.DB.Close()
}
