// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package marketplacedbtest runs tests against every supported database.
package marketplacedbtest

// This package should be referenced only in test files!

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"

	"github.com/mozilla/marketplace/marketplace"
	"github.com/mozilla/marketplace/marketplace/marketplacedb"
	"github.com/mozilla/marketplace/private/dbutil/pgutil"
	"github.com/mozilla/marketplace/private/dbutil/pgutil/pgtest"
)

// Database describes a test database.
type Database struct {
	Name    string
	URL     string
	Message string
}

// Databases returns the databases tests run against. An empty URL is
// created per test.
func Databases() []Database {
	return []Database{
		{Name: "Sqlite3"},
		{
			Name:    "Postgres",
			URL:     *pgtest.ConnStr,
			Message: "Postgres flag missing, example: -postgres-test-db=" + pgtest.DefaultConnStr + " or use MARKETPLACE_POSTGRES_TEST environment variable.",
		},
	}
}

// SchemaName returns a schema name for a test. Postgres limits schema
// names to 64 bytes and the random suffix takes 17.
func SchemaName(testname string) string {
	if len(testname) > 40 {
		testname = testname[:40]
	}
	return strings.ToLower(testname)
}

// tempDB is a marketplace.DB that drops its schema when closed.
type tempDB struct {
	*marketplacedb.DB
	temp *pgutil.TempSchema
}

// Close closes the database and drops the schema.
func (db *tempDB) Close() error {
	return errs.Combine(db.DB.Close(), db.temp.Close())
}

// CreateDB opens a fresh, migrated database for a test.
func CreateDB(ctx *testcontext.Context, log *zap.Logger, name string, dbInfo Database) (marketplace.DB, error) {
	if dbInfo.Name == "Sqlite3" {
		db, err := marketplacedb.Open(ctx, log.Named("db"), "sqlite3://"+filepath.ToSlash(ctx.File("marketplace.db")))
		if err != nil {
			return nil, err
		}
		if err := migrate(ctx, db); err != nil {
			return nil, errs.Combine(err, db.Close())
		}
		return db, nil
	}

	temp, err := pgutil.OpenUnique(ctx, dbInfo.URL, SchemaName(name))
	if err != nil {
		return nil, err
	}
	db, err := marketplacedb.Open(ctx, log.Named("db"), temp.ConnStr)
	if err != nil {
		return nil, errs.Combine(err, temp.Close())
	}
	wrapped := &tempDB{DB: db, temp: temp}
	if err := migrate(ctx, wrapped); err != nil {
		return nil, errs.Combine(err, wrapped.Close())
	}
	return wrapped, nil
}

func migrate(ctx context.Context, db marketplace.DB) error {
	return db.MigrateToLatest(ctx)
}

// Run runs test against every supported database. Databases without a
// connection string are skipped.
func Run(t *testing.T, test func(ctx *testcontext.Context, t *testing.T, db marketplace.DB)) {
	for _, dbInfo := range Databases() {
		dbInfo := dbInfo
		t.Run(dbInfo.Name, func(t *testing.T) {
			t.Parallel()

			ctx := testcontext.New(t)

			if dbInfo.Name != "Sqlite3" && dbInfo.URL == "" {
				t.Skipf("Database %s connection string not provided. %s", dbInfo.Name, dbInfo.Message)
			}

			db, err := CreateDB(ctx, zaptest.NewLogger(t), t.Name(), dbInfo)
			if err != nil {
				t.Fatal(err)
			}
			defer ctx.Check(db.Close)

			test(ctx, t, db)
		})
	}
}
