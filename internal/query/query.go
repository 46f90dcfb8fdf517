package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Request struct {
	SQL      string
	RowLimit int
}

// Result is the tabular outcome of one statement.
type Result struct {
	Columns  []string
	Rows     [][]any
	Duration time.Duration
}

// Engine executes SQL produced by the analyst against a data session.
type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

var ErrNotReadOnly = errors.New("only read-only SELECT/WITH queries are allowed")

// Preparer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Preparer interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Execute runs a single read-only statement on db and collects every row. A
// positive RowLimit wraps the statement in an outer LIMIT. The statement is
// prepared before it runs, so drivers refuse anything that is not exactly one
// statement.
func Execute(ctx context.Context, db Preparer, request Request) (Result, error) {
	if db == nil {
		return Result{}, fmt.Errorf("database is required")
	}
	sqlText := StripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return Result{}, fmt.Errorf("sql is required")
	}
	if !IsReadOnly(sqlText) {
		return Result{}, ErrNotReadOnly
	}
	if err := CheckSingleStatement(sqlText); err != nil {
		return Result{}, err
	}
	if request.RowLimit > 0 {
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, request.RowLimit)
	}

	start := time.Now()
	stmt, err := db.PrepareContext(ctx, sqlText)
	if err != nil {
		return Result{}, fmt.Errorf("prepare query: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate rows: %w", err)
	}

	return Result{
		Columns:  columns,
		Rows:     resultRows,
		Duration: time.Since(start),
	}, nil
}

func IsReadOnly(sqlText string) bool {
	normalized := strings.ToLower(strings.TrimSpace(sqlText))
	if normalized == "" {
		return false
	}
	return strings.HasPrefix(normalized, "select") || strings.HasPrefix(normalized, "with")
}

// CheckSingleStatement rejects text with a statement separator or unbalanced
// parentheses outside string literals, quoted identifiers and comments. A
// closing parenthesis without a match would escape the row limit wrapper.
func CheckSingleStatement(sqlText string) error {
	depth := 0
	for i := 0; i < len(sqlText); i++ {
		switch c := sqlText[i]; {
		case c == '\'' || c == '"':
			end := strings.IndexByte(sqlText[i+1:], c)
			if end < 0 {
				return fmt.Errorf("%w: unterminated quote", ErrNotReadOnly)
			}
			i += end + 1
		case c == '-' && strings.HasPrefix(sqlText[i:], "--"):
			end := strings.IndexByte(sqlText[i:], '\n')
			if end < 0 {
				return nil
			}
			i += end
		case c == '/' && strings.HasPrefix(sqlText[i:], "/*"):
			end := strings.Index(sqlText[i+2:], "*/")
			if end < 0 {
				return fmt.Errorf("%w: unterminated comment", ErrNotReadOnly)
			}
			i += end + 3
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				return fmt.Errorf("%w: unbalanced parentheses", ErrNotReadOnly)
			}
		case c == ';':
			return fmt.Errorf("%w: multiple statements", ErrNotReadOnly)
		}
	}
	if depth != 0 {
		return fmt.Errorf("%w: unbalanced parentheses", ErrNotReadOnly)
	}
	return nil
}

func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		case interface{ Float64() float64 }:
			normalized[i] = typed.Float64()
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
