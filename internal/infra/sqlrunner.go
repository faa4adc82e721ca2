package infra

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// SQLExecutor is the query surface repositories depend on. Every statement
// must open with a "--sql <uuid>" marker line.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

// SQLDatabase is an SQLExecutor that can also run a function inside a
// transaction. InTx commits when fn returns nil and rolls back otherwise.
type SQLDatabase interface {
	SQLExecutor
	InTx(ctx context.Context, fn func(tx SQLExecutor) error) error
	// InLockedTx serializes callers on key for the whole transaction and
	// calls onCommitFailure, still holding the lock, if COMMIT fails.
	InLockedTx(ctx context.Context, key int64, fn func(tx SQLExecutor) error, onCommitFailure func(error)) error
}

const (
	markerPrefix = "--sql "
	// Statements slower than this are logged at warn.
	slowStatement = 250 * time.Millisecond
)

var (
	errEmptyStatement = errors.New("sql: empty statement")
	errMissingMarker  = errors.New("sql: marker missing or invalid")
)

// statement is a query split into its marker and the SQL sent to the server.
type statement struct {
	marker string
	body   string
}

func parseStatement(query string) (statement, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return statement{}, errEmptyStatement
	}
	head, body, _ := strings.Cut(query, "\n")
	id, ok := strings.CutPrefix(strings.TrimSpace(head), markerPrefix)
	if !ok || len(id) != 36 || strings.ToLower(id) != id {
		return statement{}, errMissingMarker
	}
	if _, err := uuid.Parse(id); err != nil {
		return statement{}, errMissingMarker
	}
	return statement{marker: id, body: body}, nil
}

// SQLRunner validates statement markers and logs each round trip under its
// marker so slow or failing queries can be traced back to source.
type SQLRunner struct {
	Pool   *pgxpool.Pool
	Logger zerolog.Logger

	db SQLExecutor // *pgxpool.Pool, *pgxpool.Conn or pgx.Tx
	tx bool
}

func NewSQLRunner(pool *pgxpool.Pool, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{Pool: pool, Logger: logger, db: pool}
}

func (r *SQLRunner) trace(stmt statement, op string, start time.Time, err error) {
	elapsed := time.Since(start)
	var ev *zerolog.Event
	switch {
	case err != nil && !IsNoRows(err):
		ev = r.Logger.Error().Err(err)
	case elapsed >= slowStatement:
		ev = r.Logger.Warn()
	default:
		ev = r.Logger.Debug()
	}
	ev.Str("sql", stmt.marker).
		Str("op", op).
		Bool("tx", r.tx).
		Dur("duration", elapsed).
		Msg("statement")
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	stmt, err := parseStatement(query)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	start := time.Now()
	tag, err := r.db.Exec(ctx, stmt.body, args...)
	r.trace(stmt, "exec", start, err)
	return tag, err
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	stmt, err := parseStatement(query)
	if err != nil {
		return failedRow{err: err}
	}
	return &tracedRow{
		row:    r.db.QueryRow(ctx, stmt.body, args...),
		runner: r,
		stmt:   stmt,
		start:  time.Now(),
	}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	stmt, err := parseStatement(query)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := r.db.Query(ctx, stmt.body, args...)
	if err != nil {
		r.trace(stmt, "query", start, err)
		return nil, err
	}
	return &tracedRows{Rows: rows, runner: r, stmt: stmt, start: start}, nil
}

// InTx runs fn in a read-committed transaction. The executor handed to fn
// traces statements the same way as the pool.
func (r *SQLRunner) InTx(ctx context.Context, fn func(tx SQLExecutor) error) error {
	if r.Pool == nil {
		return errors.New("sql: runner has no pool")
	}
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	return r.run(ctx, tx, fn, nil)
}

const (
	qAdvisoryLock = `--sql ded49548-ea1f-442e-ae82-f1f35b5dd207
select pg_advisory_lock($1::bigint);`
	qAdvisoryUnlock = `--sql d3d7a7fe-8ea2-4953-b52a-d5d0311f7904
select pg_advisory_unlock($1::bigint);`
)

// InLockedTx is InTx under a session-level advisory lock on key. The lock is
// taken before BEGIN and released after COMMIT or ROLLBACK, so it outlives a
// failed commit: onCommitFailure runs while other holders of key still wait.
func (r *SQLRunner) InLockedTx(ctx context.Context, key int64, fn func(tx SQLExecutor) error, onCommitFailure func(error)) (err error) {
	if r.Pool == nil {
		return errors.New("sql: runner has no pool")
	}
	conn, err := r.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	session := &SQLRunner{Logger: r.Logger, db: conn}
	if _, err := session.Exec(ctx, qAdvisoryLock, key); err != nil {
		return fmt.Errorf("advisory lock %d: %w", key, err)
	}
	defer func() {
		if _, unlockErr := session.Exec(context.WithoutCancel(ctx), qAdvisoryUnlock, key); unlockErr != nil {
			// A session that may still hold the lock must not go back to the pool.
			r.Logger.Error().Err(unlockErr).Int64("key", key).Msg("sql advisory unlock failed")
			_ = conn.Hijack().Close(context.WithoutCancel(ctx))
		}
	}()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	return r.run(ctx, tx, fn, onCommitFailure)
}

func (r *SQLRunner) run(ctx context.Context, tx pgx.Tx, fn func(tx SQLExecutor) error, onCommitFailure func(error)) (err error) {
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			r.Logger.Error().Err(rbErr).Msg("sql rollback failed")
		}
	}()

	if err = fn(&SQLRunner{Logger: r.Logger, db: tx, tx: true}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		err = fmt.Errorf("commit tx: %w", err)
		if onCommitFailure != nil {
			onCommitFailure(err)
		}
		return err
	}
	return nil
}

// IsNoRows reports whether err means a query matched nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

type tracedRow struct {
	row    pgx.Row
	runner *SQLRunner
	stmt   statement
	start  time.Time
}

func (t *tracedRow) Scan(dest ...any) error {
	err := t.row.Scan(dest...)
	t.runner.trace(t.stmt, "query_row", t.start, err)
	return err
}

type tracedRows struct {
	pgx.Rows
	runner *SQLRunner
	stmt   statement
	start  time.Time
	closed bool
}

func (t *tracedRows) Close() {
	t.Rows.Close()
	if t.closed {
		return
	}
	t.closed = true
	t.runner.trace(t.stmt, "query", t.start, t.Rows.Err())
}

type failedRow struct{ err error }

func (f failedRow) Scan(...any) error { return f.err }

var _ SQLDatabase = (*SQLRunner)(nil)
