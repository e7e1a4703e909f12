// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package migrate applies numbered schema steps to a database and records
// the applied versions in a table.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strconv"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/mozilla/marketplace/private/dbutil/txutil"
	"github.com/mozilla/marketplace/private/tagsql"
)

var (
	mon = monkit.Package()

	// Error is the default migrate errs class.
	Error = errs.Class("migrate")
	// ErrOutdated is returned when the database is behind the migration.
	ErrOutdated = errs.Class("schema outdated")
)

var tableName = regexp.MustCompile(`^[a-z_]+$`)

// Migration is an ordered list of steps applied to DB. Applied versions
// are stored in Table.
//
// Steps only change the database. Packages in storage are reconciled by
// the guard chore.
type Migration struct {
	Table string
	DB    tagsql.DB
	Steps []*Step
}

// Step is one schema change. Versions start at 0 and increase by step.
type Step struct {
	Version     int
	Description string
	Action      Action
}

// Action changes the database inside the transaction of its step.
type Action interface {
	Run(ctx context.Context, log *zap.Logger, tx tagsql.Tx) error
}

// Validate checks the table name and the order of the steps.
func (migration *Migration) Validate() error {
	if !tableName.MatchString(migration.Table) {
		return Error.New("invalid table name %q", migration.Table)
	}
	for i := 1; i < len(migration.Steps); i++ {
		if migration.Steps[i].Version <= migration.Steps[i-1].Version {
			return Error.New("step %d does not follow step %d",
				migration.Steps[i].Version, migration.Steps[i-1].Version)
		}
	}
	return nil
}

// Latest returns the version of the last step, -1 without steps.
func (migration *Migration) Latest() int {
	if len(migration.Steps) == 0 {
		return -1
	}
	return migration.Steps[len(migration.Steps)-1].Version
}

// Run applies the steps the database has not seen yet, each in its own
// transaction.
func (migration *Migration) Run(ctx context.Context, log *zap.Logger) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := migration.Validate(); err != nil {
		return err
	}
	if migration.DB == nil {
		return Error.New("no database")
	}

	current, err := migration.Current(ctx)
	if err != nil {
		return err
	}
	created := current < 0

	for _, step := range migration.Steps {
		if step.Version <= current {
			continue
		}

		stepLog := log.Named(strconv.Itoa(step.Version))
		if !created {
			stepLog.Info(step.Description)
		}

		err := txutil.WithTx(ctx, migration.DB, nil, func(ctx context.Context, tx tagsql.Tx) error {
			if err := step.Action.Run(ctx, stepLog, tx); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO `+migration.Table+` (version, description, applied_at) VALUES (?, ?, ?)`,
				step.Version, step.Description, time.Now().UTC().Format(time.RFC3339Nano))
			return err
		})
		if err != nil {
			return Error.New("step %d (%s): %v", step.Version, step.Description, err)
		}
	}

	if created {
		log.Info("database created", zap.Int("version", migration.Latest()))
	} else {
		log.Info("database up to date", zap.Int("version", migration.Latest()))
	}
	return nil
}

// Current returns the latest applied version, -1 for an empty database.
func (migration *Migration) Current(ctx context.Context) (_ int, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := migration.Validate(); err != nil {
		return -1, err
	}
	_, err = migration.DB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migration.Table+` (
		version INTEGER NOT NULL,
		description TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`)
	if err != nil {
		return -1, Error.New("creating version table: %v", err)
	}

	var version sql.NullInt64
	err = migration.DB.QueryRowContext(ctx, `SELECT MAX(version) FROM `+migration.Table).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !version.Valid) {
		return -1, nil
	}
	if err != nil {
		return -1, Error.Wrap(err)
	}
	return int(version.Int64), nil
}

// Check fails with ErrOutdated when the database lacks a step.
func (migration *Migration) Check(ctx context.Context, log *zap.Logger) (err error) {
	defer mon.Task()(&ctx)(&err)

	current, err := migration.Current(ctx)
	if err != nil {
		return err
	}
	if current < migration.Latest() {
		return ErrOutdated.New("database is at %d, expected %d", current, migration.Latest())
	}
	log.Debug("database version is up to date", zap.Int("version", current))
	return nil
}

// SQL is a list of statements run in order.
type SQL []string

// Run implements Action.
func (statements SQL) Run(ctx context.Context, log *zap.Logger, tx tagsql.Tx) error {
	for _, query := range statements {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return errs.Wrap(err)
		}
	}
	return nil
}

// Func is a step written in Go.
type Func func(ctx context.Context, log *zap.Logger, tx tagsql.Tx) error

// Run implements Action.
func (fn Func) Run(ctx context.Context, log *zap.Logger, tx tagsql.Tx) error {
	return fn(ctx, log, tx)
}
