// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package txutil runs functions inside database transactions and retries
// them when the database asks for it.
package txutil

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"storj.io/common/sync2"

	"github.com/mozilla/marketplace/private/tagsql"
)

var mon = monkit.Package()

const (
	maxAttempts = 10
	maxBackoff  = time.Second
)

// WithTx calls fn inside a transaction that is committed when fn returns
// nil and rolled back otherwise. fn is called again when postgres reports a
// serialization failure or sqlite reports a busy database, so any effect
// it has outside the transaction must be safe to repeat.
func WithTx(ctx context.Context, db tagsql.DB, opts *sql.TxOptions, fn func(context.Context, tagsql.Tx) error) (err error) {
	defer mon.Task()(&ctx)(&err)

	backoff := 10 * time.Millisecond
	for attempt := 1; ; attempt++ {
		err = attemptTx(ctx, db, opts, fn)
		if err == nil || attempt >= maxAttempts || !Retryable(err) {
			mon.IntVal("transaction_attempts").Observe(int64(attempt))
			return err
		}

		mon.Counter("transaction_retries").Inc(1)
		if !sync2.Sleep(ctx, backoff) {
			return errs.Combine(err, ctx.Err())
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func attemptTx(ctx context.Context, db tagsql.DB, opts *sql.TxOptions, fn func(context.Context, tagsql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return errs.Wrap(err)
	}
	if err := fn(ctx, tx); err != nil {
		return errs.Combine(err, tx.Rollback())
	}
	return errs.Wrap(tx.Commit())
}

// Retryable reports whether err asks for the transaction to be run again.
func Retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure and deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
