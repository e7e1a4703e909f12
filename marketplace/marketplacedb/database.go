// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package marketplacedb implements the marketplace databases on sqlite3
// and postgres.
package marketplacedb

import (
	"context"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx driver.
	_ "github.com/mattn/go-sqlite3"    // registers the sqlite3 driver.
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/mozilla/marketplace/marketplace"
	"github.com/mozilla/marketplace/marketplace/activity"
	"github.com/mozilla/marketplace/marketplace/apps"
	"github.com/mozilla/marketplace/marketplace/reviewers"
	"github.com/mozilla/marketplace/marketplace/tasks"
	"github.com/mozilla/marketplace/private/dbutil"
	"github.com/mozilla/marketplace/private/tagsql"
)

var (
	mon = monkit.Package()

	// Error is the default marketplacedb errs class.
	Error = errs.Class("marketplacedb")
)

// DB implements marketplace.DB.
type DB struct {
	log  *zap.Logger
	db   tagsql.DB
	impl dbutil.Implementation
}

var _ marketplace.DB = (*DB)(nil)

// Open connects to the database at databaseURL.
func Open(ctx context.Context, log *zap.Logger, databaseURL string) (_ *DB, err error) {
	defer mon.Task()(&ctx)(&err)

	db, err := tagsql.Open(ctx, databaseURL)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	log.Debug("connected", zap.Stringer("implementation", db.Implementation()))

	return &DB{log: log, db: db, impl: db.Implementation()}, nil
}

// MigrateToLatest creates or updates the schema.
func (db *DB) MigrateToLatest(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	return Error.Wrap(db.migration().Run(ctx, db.log.Named("migrate")))
}

// CheckVersion fails when the schema is not up to date.
func (db *DB) CheckVersion(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	return Error.Wrap(db.migration().Check(ctx, db.log))
}

// Close closes the database.
func (db *DB) Close() error { return Error.Wrap(db.db.Close()) }

// Apps returns the app records.
func (db *DB) Apps() apps.DB { return &appsDB{db: db} }

// Activity returns the activity log.
func (db *DB) Activity() activity.DB { return &activityDB{db: db} }

// Reviewers returns the review queues.
func (db *DB) Reviewers() reviewers.DB { return &reviewersDB{db: db} }

// Tasks returns the job queue.
func (db *DB) Tasks() tasks.DB { return &tasksDB{db: db} }

type appsDB struct {
	db *DB
}

func (a *appsDB) Webapps() apps.Webapps   { return &webapps{db: a.db} }
func (a *appsDB) Versions() apps.Versions { return &versions{db: a.db} }
func (a *appsDB) Files() apps.Files       { return &files{db: a.db} }
func (a *appsDB) Uploads() apps.Uploads   { return &uploads{db: a.db} }
func (a *appsDB) Previews() apps.Previews { return &previews{db: a.db} }
