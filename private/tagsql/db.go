// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

// Package tagsql implements a thin wrapper over database/sql that
// rewrites placeholders for the underlying implementation and tracks
// queries with monkit.
package tagsql

import (
	"context"
	"database/sql"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"github.com/mozilla/marketplace/private/dbutil"
)

var mon = monkit.Package()

// Error is the default tagsql errs class.
var Error = errs.Class("tagsql")

// Queryer runs queries with `?` placeholders.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// DB is an interface for *sql.DB-like databases.
type DB interface {
	Queryer

	Implementation() dbutil.Implementation
	BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error)
	PingContext(ctx context.Context) error
	Close() error
}

// Tx is an interface for *sql.Tx-like transactions.
type Tx interface {
	Queryer

	Commit() error
	Rollback() error
}

// Open opens the database url, e.g. postgres://... or sqlite3:///path.
func Open(ctx context.Context, databaseURL string) (_ DB, err error) {
	defer mon.Task()(&ctx)(&err)

	driver, source, impl, err := dbutil.SplitConnStr(databaseURL)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	if impl == dbutil.Sqlite3 {
		// sqlite allows a single writer.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, Error.Wrap(errs.Combine(err, db.Close()))
	}

	return Wrap(db, impl), nil
}

// Wrap turns a *sql.DB into a DB.
func Wrap(db *sql.DB, impl dbutil.Implementation) DB {
	return &sqlDB{db: db, impl: impl}
}

type sqlDB struct {
	db   *sql.DB
	impl dbutil.Implementation
}

func (s *sqlDB) Implementation() dbutil.Implementation { return s.impl }

func (s *sqlDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, dbutil.Rebind(s.impl, query), args...)
}

func (s *sqlDB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, dbutil.Rebind(s.impl, query), args...)
}

func (s *sqlDB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, dbutil.Rebind(s.impl, query), args...)
}

func (s *sqlDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: tx, impl: s.impl}, nil
}

func (s *sqlDB) PingContext(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *sqlDB) Close() error { return s.db.Close() }
