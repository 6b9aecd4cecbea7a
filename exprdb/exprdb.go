// Package exprdb persists simplified normal forms in a SQLite database so
// repeated runs over the same expressions skip the rewriting fixed point.
// Rows are keyed by the reconstruction form of the input expression.
package exprdb

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"

	"github.com/H0K5/miasm"
)

//go:embed schema.sql
var schemaSQL string

// Cache is a durable map from expressions to their simplified normal form.
type Cache struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the cache database at path. Applies WAL mode and
// the schema; safe to call on an existing database.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite supports a single writer; keep one connection to avoid
	// SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Cache{db: db, logger: slog.Default()}, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Get returns the cached normal form for expr, if present.
func (c *Cache) Get(ctx context.Context, expr miasm.Expr) (miasm.Expr, bool, error) {
	var normal string
	err := c.db.QueryRowContext(ctx, `
		SELECT normal FROM normal_forms WHERE expr = ?
	`, miasm.ExprRepr(expr)).Scan(&normal)
	if err == sql.ErrNoRows {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("query normal form: %w", err)
	}

	out, err := miasm.ParseExpr(normal)
	if err != nil {
		return nil, false, fmt.Errorf("corrupt normal form for %s: %w", expr, err)
	}
	return out, true, nil
}

// Put stores normal as the normal form of expr, replacing any previous row.
func (c *Cache) Put(ctx context.Context, expr, normal miasm.Expr) error {
	if a, b := miasm.ExprSize(expr), miasm.ExprSize(normal); a != b {
		return fmt.Errorf("normal form size %d does not match expression size %d", b, a)
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO normal_forms (expr, hash, normal) VALUES (?, ?, ?)
	`, miasm.ExprRepr(expr), fmt.Sprintf("%016x", miasm.ExprHash(expr)), miasm.ExprRepr(normal))
	if err != nil {
		return fmt.Errorf("store normal form: %w", err)
	}
	return nil
}

// Simplify returns the simplified form of expr, consulting and populating
// the cache. A nil simplifier uses the base rule set.
func (c *Cache) Simplify(ctx context.Context, s *miasm.Simplifier, expr miasm.Expr) (miasm.Expr, error) {
	if out, ok, err := c.Get(ctx, expr); err != nil {
		return nil, err
	} else if ok {
		c.logger.Debug("normal form cache hit", "expr", expr.String())
		return out, nil
	}

	if s == nil {
		s = miasm.NewSimplifier()
	}
	out := s.Simplify(expr)
	if err := c.Put(ctx, expr, out); err != nil {
		return nil, err
	}
	c.logger.Debug("normal form cached", "expr", expr.String(), "normal", out.String())
	return out, nil
}

// Len returns the number of cached normal forms.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM normal_forms`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count normal forms: %w", err)
	}
	return n, nil
}
