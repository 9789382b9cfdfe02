// Package ledger applies the point-moving transactions: redeeming an item
// and approving or rejecting a listing. Each operation runs in one database
// transaction that either fully commits or leaves no trace.
package ledger

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sethvargo/go-retry"

	"github.com/dukerupert/rewear/internal/database"
	"github.com/dukerupert/rewear/internal/metrics"
)

const (
	DefaultMaxRetries = 3
	DefaultTxTimeout  = 5 * time.Second

	retryBase   = 10 * time.Millisecond
	retryJitter = 5 * time.Millisecond

	minLockWait = 10 * time.Millisecond
)

type Config struct {
	// MaxRetries is how many times a transaction is re-run after a
	// transient store conflict before giving up with ErrConflict.
	MaxRetries int
	// TxTimeout bounds one operation including its retries.
	TxTimeout time.Duration
}

type Ledger struct {
	db         *sqlx.DB
	maxRetries uint64
	txTimeout  time.Duration
	postgres   bool
	logger     *slog.Logger
}

func New(db *sqlx.DB, cfg Config, logger *slog.Logger) *Ledger {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = DefaultTxTimeout
	}
	return &Ledger{
		db:         db,
		maxRetries: uint64(cfg.MaxRetries),
		txTimeout:  cfg.TxTimeout,
		postgres:   database.IsPostgres(db),
		logger:     logger,
	}
}

type txFunc func(ctx context.Context, tx *sqlx.Tx) error

// run executes fn in its own transaction, re-running it from scratch on
// transient conflicts. The transaction is detached from the caller's
// cancellation: once started it commits or rolls back within txTimeout even
// if the client goes away. Running out of time counts as a conflict.
func (l *Ledger) run(ctx context.Context, op string, fn txFunc) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.txTimeout)
	defer cancel()

	attempt := 0
	backoff := retry.WithMaxRetries(l.maxRetries, retry.WithJitter(retryJitter, retry.NewExponential(retryBase)))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := l.inTx(ctx, l.lockWait(ctx, attempt), fn)
		if err != nil && database.IsTransient(err) {
			metrics.ObserveLedgerRetry(op)
			l.logger.Warn("ledger conflict", "op", op, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil && (database.IsTransient(err) || errors.Is(err, context.DeadlineExceeded)) {
		err = fmt.Errorf("%w: %s gave up after %d attempts: %w", ErrConflict, op, attempt, err)
	}

	metrics.ObserveLedger(op, KindOf(err).String())
	return err
}

// lockWait splits the time left before ctx's deadline evenly over the
// attempts that remain.
func (l *Ledger) lockWait(ctx context.Context, attempt int) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return database.BusyTimeout
	}
	remaining := int64(l.maxRetries) + 2 - int64(attempt)
	if remaining < 1 {
		remaining = 1
	}
	return max(time.Until(deadline)/time.Duration(remaining), minLockWait)
}

func (l *Ledger) inTx(ctx context.Context, lockWait time.Duration, fn txFunc) error {
	conn, err := l.db.Connx(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Close()

	if !l.postgres {
		if err := database.SetBusyTimeout(ctx, conn, lockWait); err != nil {
			return err
		}
		defer l.restoreBusyTimeout(conn)
	}

	tx, err := conn.BeginTxx(ctx, l.txOptions())
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// restoreBusyTimeout puts the pooled connection back to the default wait.
// A connection that cannot be reset is discarded.
func (l *Ledger) restoreBusyTimeout(conn *sqlx.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := database.SetBusyTimeout(ctx, conn, database.BusyTimeout); err != nil {
		l.logger.Warn("reset busy timeout", "error", err)
		conn.Raw(func(any) error { return driver.ErrBadConn })
	}
}

// SQLite serializes writers through _txlock=immediate; Postgres needs
// SERIALIZABLE plus row locks for the same guarantee.
func (l *Ledger) txOptions() *sql.TxOptions {
	if l.postgres {
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return nil
}

func (l *Ledger) forUpdate() string {
	if l.postgres {
		return " FOR UPDATE"
	}
	return ""
}

func expectOneRow(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
