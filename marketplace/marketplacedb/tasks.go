// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package marketplacedb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/zeebo/errs"

	"github.com/mozilla/marketplace/marketplace/tasks"
	"github.com/mozilla/marketplace/private/dbutil"
	"github.com/mozilla/marketplace/private/dbutil/txutil"
	"github.com/mozilla/marketplace/private/tagsql"
)

// tasksDB implements tasks.DB.
type tasksDB struct {
	db *DB
}

var _ tasks.DB = (*tasksDB)(nil)

const jobColumns = `id, kind, payload, state, attempts, max_retries, run_at, last_error, created_at`

func scanJob(row interface{ Scan(...interface{}) error }) (tasks.Job, error) {
	var job tasks.Job
	var state string
	err := row.Scan(&job.ID, &job.Kind, &job.Payload, &state, &job.Attempts, &job.MaxRetries, &job.RunAt, &job.LastError, &job.CreatedAt)
	job.State = tasks.State(state)
	job.RunAt = job.RunAt.UTC()
	job.CreatedAt = job.CreatedAt.UTC()
	return job, err
}

// Insert adds a job and returns its id.
func (t *tasksDB) Insert(ctx context.Context, job tasks.Job) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)

	if job.Payload == nil {
		job.Payload = []byte{}
	}
	var id int64
	err = t.db.db.QueryRowContext(ctx, `
		INSERT INTO jobs (kind, payload, state, attempts, max_retries, run_at, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		job.Kind, job.Payload, string(job.State), job.Attempts, job.MaxRetries, job.RunAt.UTC(), job.LastError, job.CreatedAt.UTC(),
	).Scan(&id)
	return id, Error.Wrap(err)
}

// Get returns a job.
func (t *tasksDB) Get(ctx context.Context, id int64) (_ tasks.Job, err error) {
	defer mon.Task()(&ctx)(&err)

	job, err := scanJob(t.db.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return tasks.Job{}, tasks.ErrNotFound.New("%d", id)
	}
	return job, Error.Wrap(err)
}

// Claim leases up to limit pending jobs due at now. A job is only returned
// when this call moved its attempt count, so two workers never claim the
// same lease.
func (t *tasksDB) Claim(ctx context.Context, now time.Time, lease time.Duration, limit int) (_ []tasks.Job, err error) {
	defer mon.Task()(&ctx)(&err)

	now = now.UTC()
	query := `
		SELECT ` + jobColumns + ` FROM jobs
		WHERE state = ? AND run_at <= ?
		ORDER BY run_at, id
		LIMIT ?`
	if t.db.impl == dbutil.Postgres {
		query += ` FOR UPDATE SKIP LOCKED`
	}

	var claimed []tasks.Job
	err = txutil.WithTx(ctx, t.db.db, nil, func(ctx context.Context, tx tagsql.Tx) (err error) {
		claimed = claimed[:0]

		var due []tasks.Job
		rows, err := tx.QueryContext(ctx, query, string(tasks.Pending), now, limit)
		if err != nil {
			return err
		}
		for rows.Next() {
			job, err := scanJob(rows)
			if err != nil {
				return errs.Combine(err, rows.Close())
			}
			due = append(due, job)
		}
		if err := errs.Combine(rows.Err(), rows.Close()); err != nil {
			return err
		}

		for _, job := range due {
			runAt := now.Add(lease)
			result, err := tx.ExecContext(ctx, `
				UPDATE jobs SET attempts = ?, run_at = ?
				WHERE id = ? AND state = ? AND attempts = ? AND run_at <= ?`,
				job.Attempts+1, runAt, job.ID, string(tasks.Pending), job.Attempts, now)
			if err != nil {
				return err
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return err
			}
			if affected == 0 {
				continue
			}
			job.Attempts++
			job.RunAt = runAt
			claimed = append(claimed, job)
		}
		return nil
	})
	return claimed, Error.Wrap(err)
}

// Complete marks a job done.
func (t *tasksDB) Complete(ctx context.Context, id int64) (err error) {
	defer mon.Task()(&ctx)(&err)

	result, err := t.db.db.ExecContext(ctx, `UPDATE jobs SET state = ? WHERE id = ?`, string(tasks.Done), id)
	if err != nil {
		return Error.Wrap(err)
	}
	return requireAffected(result, tasks.ErrNotFound.New("%d", id))
}

// Reschedule makes a job due again at runAt with a new payload.
func (t *tasksDB) Reschedule(ctx context.Context, id int64, runAt time.Time, payload []byte, lastError string) (err error) {
	defer mon.Task()(&ctx)(&err)

	if payload == nil {
		payload = []byte{}
	}
	result, err := t.db.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, run_at = ?, payload = ?, last_error = ? WHERE id = ?`,
		string(tasks.Pending), runAt.UTC(), payload, lastError, id)
	if err != nil {
		return Error.Wrap(err)
	}
	return requireAffected(result, tasks.ErrNotFound.New("%d", id))
}

// Fail marks a job failed.
func (t *tasksDB) Fail(ctx context.Context, id int64, lastError string) (err error) {
	defer mon.Task()(&ctx)(&err)

	result, err := t.db.db.ExecContext(ctx, `UPDATE jobs SET state = ?, last_error = ? WHERE id = ?`, string(tasks.Failed), lastError, id)
	if err != nil {
		return Error.Wrap(err)
	}
	return requireAffected(result, tasks.ErrNotFound.New("%d", id))
}

// Count returns the number of jobs in a state.
func (t *tasksDB) Count(ctx context.Context, state tasks.State) (_ int, err error) {
	defer mon.Task()(&ctx)(&err)

	var count int
	err = t.db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE state = ?`, string(state)).Scan(&count)
	return count, Error.Wrap(err)
}
