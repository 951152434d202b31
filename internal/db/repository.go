package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	apperrors "github.com/kimhsiao/taskin/backend/internal/errors"
	"github.com/kimhsiao/taskin/backend/internal/models"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Repository is the Entity Store: CRUD for tasks, projects, categories and
// teams plus persistence for the change log, sync metadata and conflict log.
//
// A Repository returned by InTx is bound to that transaction. Code running
// inside InTx must only use the transaction-bound Repository: the database
// has a single connection, so touching the outer handle would block.
type Repository struct {
	db *sql.DB
	q  querier
	tx *sql.Tx

	// Prepared statement cache for frequently used reads, shared with
	// transaction-bound copies.
	stmtCache *sync.Map // map[string]*sql.Stmt

	clock func() time.Time
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		db:        db,
		q:         db,
		stmtCache: &sync.Map{},
		clock:     time.Now,
	}
}

// SetClock overrides the time source used for created/updated timestamps.
func (r *Repository) SetClock(clock func() time.Time) {
	r.clock = clock
}

// Now returns the repository's current time.
func (r *Repository) Now() models.Timestamp {
	return models.NewTimestamp(r.clock())
}

// InTransaction reports whether r is bound to a transaction.
func (r *Repository) InTransaction() bool {
	return r.tx != nil
}

func (r *Repository) ready() error {
	if r == nil || r.db == nil {
		return apperrors.New(apperrors.ErrNotInitialized, "repository is not initialized")
	}
	return nil
}

// InTx runs fn inside a transaction and commits when fn returns nil. Nested
// calls join the outer transaction.
func (r *Repository) InTx(ctx context.Context, fn func(tx *Repository) error) error {
	if err := r.ready(); err != nil {
		return err
	}
	if r.tx != nil {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to begin transaction", err)
	}
	bound := &Repository{db: r.db, q: tx, tx: tx, stmtCache: r.stmtCache, clock: r.clock}

	if err := fn(bound); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to commit transaction", err)
	}
	return nil
}

// PrepareStmt gets or creates a prepared statement from cache.
func (r *Repository) PrepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := r.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	// If already stored by another goroutine, use existing
	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}
	return stmt, nil
}

// queryRow runs a single-row read through the statement cache. Inside a
// transaction only already-cached statements are reused, since preparing
// needs the connection the transaction holds.
func (r *Repository) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	if r.tx != nil {
		if cached, ok := r.stmtCache.Load(query); ok {
			return r.tx.StmtContext(ctx, cached.(*sql.Stmt)).QueryRowContext(ctx, args...)
		}
		return r.tx.QueryRowContext(ctx, query, args...)
	}
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return r.db.QueryRowContext(ctx, query, args...)
	}
	return stmt.QueryRowContext(ctx, args...)
}

// Close closes all cached prepared statements.
func (r *Repository) Close() error {
	if r.tx != nil {
		return nil
	}
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		if err := value.(*sql.Stmt).Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.stmtCache.Delete(key)
		return true
	})
	return firstErr
}

// wrapDBError maps driver errors onto application error codes.
func wrapDBError(message string, err error) error {
	if err == nil {
		return nil
	}
	if isConstraintError(err) {
		return apperrors.Wrap(apperrors.ErrConstraint, message, err)
	}
	return apperrors.Wrap(apperrors.ErrDatabase, message, err)
}

func isConstraintError(err error) bool {
	var se *sqlite.Error
	if stderrors.As(err, &se) {
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return strings.Contains(err.Error(), "constraint failed")
}

func notFound(kind string, id models.UUID) error {
	return apperrors.Newf(apperrors.ErrNotFound, "%s %s not found", kind, id)
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// visibleTo restricts rows to the owner or a team the user belongs to.
const visibleTo = `(t.user_id = ? OR t.team_id IN (SELECT team_id FROM team_members WHERE user_id = ?))`

type rowScanner interface {
	Scan(dest ...interface{}) error
}
