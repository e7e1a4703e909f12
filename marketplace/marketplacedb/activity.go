// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package marketplacedb

import (
	"context"
	"strings"
	"time"

	"github.com/zeebo/errs"

	"github.com/mozilla/marketplace/marketplace/activity"
)

// activityDB implements activity.DB.
type activityDB struct {
	db *DB
}

var _ activity.DB = (*activityDB)(nil)

// Insert adds an entry and returns it with its id.
func (a *activityDB) Insert(ctx context.Context, entry activity.Entry) (_ activity.Entry, err error) {
	defer mon.Task()(&ctx)(&err)

	entry.CreatedAt = entry.CreatedAt.UTC()
	err = a.db.db.QueryRowContext(ctx, `
		INSERT INTO activity_log (action, app_id, version_id, details, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		entry.Action, entry.AppID, entry.VersionID, entry.Details, entry.CreatedAt,
	).Scan(&entry.ID)
	return entry, Error.Wrap(err)
}

// ListForApp returns the entries of an app, oldest first.
func (a *activityDB) ListForApp(ctx context.Context, appID int64) (_ []activity.Entry, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := a.db.db.QueryContext(ctx, `
		SELECT id, action, app_id, version_id, details, created_at
		FROM activity_log WHERE app_id = ?
		ORDER BY created_at, id`, appID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(rows.Close())) }()

	var entries []activity.Entry
	for rows.Next() {
		var entry activity.Entry
		if err := rows.Scan(&entry.ID, &entry.Action, &entry.AppID, &entry.VersionID, &entry.Details, &entry.CreatedAt); err != nil {
			return nil, Error.Wrap(err)
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	return entries, Error.Wrap(rows.Err())
}

// DeleteOlderThan removes entries created before the given time unless
// their action is in keep.
func (a *activityDB) DeleteOlderThan(ctx context.Context, before time.Time, keep []activity.Action) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)

	query := `DELETE FROM activity_log WHERE created_at < ?`
	args := []interface{}{before.UTC()}
	if len(keep) > 0 {
		placeholders := make([]string, len(keep))
		for i, action := range keep {
			placeholders[i] = "?"
			args = append(args, action)
		}
		query += ` AND action NOT IN (` + strings.Join(placeholders, ", ") + `)`
	}

	result, err := a.db.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	deleted, err := result.RowsAffected()
	return deleted, Error.Wrap(err)
}
