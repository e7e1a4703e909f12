// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package migrate_test

import (
	"context"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"

	"github.com/mozilla/marketplace/private/migrate"
	"github.com/mozilla/marketplace/private/tagsql"
)

func TestMigration(t *testing.T) {
	ctx := testcontext.New(t)

	db, err := tagsql.Open(ctx, "sqlite3://"+ctx.File("migrate.db"))
	require.NoError(t, err)
	defer ctx.Check(db.Close)

	log := zaptest.NewLogger(t)

	m := &migrate.Migration{
		Table: "versions",
		DB:    db,
		Steps: []*migrate.Step{
			{
				Version:     0,
				Description: "Initial setup",
				Action: migrate.SQL{
					`CREATE TABLE apps (id int)`,
					`INSERT INTO apps (id) VALUES (1)`,
				},
			},
		},
	}

	version, err := m.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, -1, version)
	require.True(t, migrate.ErrOutdated.Has(m.Check(ctx, log)))

	require.NoError(t, m.Run(ctx, log))
	require.NoError(t, m.Check(ctx, log))

	m.Steps = append(m.Steps, &migrate.Step{
		Version:     1,
		Description: "Add second app",
		Action: migrate.Func(func(ctx context.Context, log *zap.Logger, tx tagsql.Tx) error {
			_, err := tx.ExecContext(ctx, `INSERT INTO apps (id) VALUES (?)`, 2)
			return err
		}),
	})
	require.True(t, migrate.ErrOutdated.Has(m.Check(ctx, log)))

	require.NoError(t, m.Run(ctx, log))
	// running again is a no-op
	require.NoError(t, m.Run(ctx, log))

	version, err = m.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM apps`).Scan(&count))
	assert.Equal(t, 2, count)

	var description string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT description FROM versions WHERE version = 1`).Scan(&description))
	assert.Equal(t, "Add second app", description)
}

func TestFailedStep(t *testing.T) {
	ctx := testcontext.New(t)

	db, err := tagsql.Open(ctx, "sqlite3://"+ctx.File("migrate.db"))
	require.NoError(t, err)
	defer ctx.Check(db.Close)

	m := &migrate.Migration{
		Table: "versions",
		DB:    db,
		Steps: []*migrate.Step{
			{Version: 0, Description: "Broken", Action: migrate.SQL{
				`CREATE TABLE apps (id int)`,
				`INSERT INTO missing (id) VALUES (1)`,
			}},
		},
	}
	require.Error(t, m.Run(ctx, zaptest.NewLogger(t)))

	version, err := m.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, -1, version, "failed steps are rolled back")
}

func TestValidate(t *testing.T) {
	require.Error(t, (&migrate.Migration{Table: "bad-name!"}).Validate())
	require.Error(t, (&migrate.Migration{
		Table: "versions",
		Steps: []*migrate.Step{{Version: 1}, {Version: 1}},
	}).Validate())

	m := &migrate.Migration{
		Table: "versions",
		Steps: []*migrate.Step{{Version: 0}, {Version: 2}},
	}
	require.NoError(t, m.Validate())
	assert.Equal(t, 2, m.Latest())
	assert.Equal(t, -1, (&migrate.Migration{Table: "versions"}).Latest())
}
