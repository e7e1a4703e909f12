// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package marketplacedb

import (
	"context"
	"time"

	"github.com/mozilla/marketplace/marketplace/reviewers"
)

// reviewersDB implements reviewers.DB.
type reviewersDB struct {
	db *DB
}

var _ reviewers.DB = (*reviewersDB)(nil)

// Add puts an app in the queue.
func (r *reviewersDB) Add(ctx context.Context, queue reviewers.Queue, appID int64) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	result, err := r.db.db.ExecContext(ctx, `
		INSERT INTO review_queues (queue, app_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT (queue, app_id) DO NOTHING`,
		string(queue), appID, time.Now().UTC())
	if err != nil {
		return false, Error.Wrap(err)
	}
	affected, err := result.RowsAffected()
	return affected > 0, Error.Wrap(err)
}

// Has reports whether the app is in the queue.
func (r *reviewersDB) Has(ctx context.Context, queue reviewers.Queue, appID int64) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	var count int
	err = r.db.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM review_queues WHERE queue = ? AND app_id = ?`,
		string(queue), appID).Scan(&count)
	return count > 0, Error.Wrap(err)
}

// Remove takes an app out of the queue.
func (r *reviewersDB) Remove(ctx context.Context, queue reviewers.Queue, appID int64) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = r.db.db.ExecContext(ctx, `DELETE FROM review_queues WHERE queue = ? AND app_id = ?`, string(queue), appID)
	return Error.Wrap(err)
}

// List returns the apps in the queue, oldest first.
func (r *reviewersDB) List(ctx context.Context, queue reviewers.Queue) (_ []int64, err error) {
	defer mon.Task()(&ctx)(&err)

	return queryInt64s(ctx, r.db.db, `
		SELECT app_id FROM review_queues WHERE queue = ?
		ORDER BY created_at, app_id`, string(queue))
}
