package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/lifedrop-api/internal/geo"
	"github.com/jwalitptl/lifedrop-api/pkg/errors"
)

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db *sqlx.DB
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *sqlx.DB) BaseRepository {
	return BaseRepository{db: db}
}

// GetDB returns the database instance
func (r *BaseRepository) GetDB() *sqlx.DB {
	return r.db
}

// WithTx executes a function within a transaction
func (r *BaseRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const (
	pqUniqueViolation = "23505"
	pqCheckViolation  = "23514"
	pqForeignKey      = "23503"
)

// mapError turns driver errors into application errors for entity.
func mapError(entity string, err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NotFound(entity, err)
	}
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return errors.Conflict(fmt.Sprintf("%s already exists", entity), err)
		case pqCheckViolation:
			return errors.Conflict(fmt.Sprintf("%s violates constraint %s", entity, pqErr.Constraint), err)
		case pqForeignKey:
			return errors.BadRequest(fmt.Sprintf("%s references a missing record", entity), err)
		}
	}
	return err
}

// where collects AND-ed conditions written with ? placeholders. Queries are
// rebound to $n with sqlx before execution.
type where struct {
	clauses []string
	args    []interface{}
}

func (w *where) add(clause string, args ...interface{}) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// addBox keeps rows inside b. Rows without coordinates can only match through
// the city fallback, so they are kept only when they are in city.
func (w *where) addBox(b *geo.Box, city string) {
	inside := "(latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?)"
	if city == "" {
		w.add(inside, b.MinLat, b.MaxLat, b.MinLng, b.MaxLng)
		return
	}
	w.add("("+inside+" OR ((latitude IS NULL OR longitude IS NULL) AND city = ?))",
		b.MinLat, b.MaxLat, b.MinLng, b.MaxLng, city)
}

// prefixed qualifies a comma separated column list with a table alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func rowsAffected(res sql.Result, entity string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return errors.NotFound(entity, nil)
	}
	return nil
}
