// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package marketplacedb

import (
	"context"
	"database/sql"
	"time"

	"github.com/zeebo/errs"

	"github.com/mozilla/marketplace/private/tagsql"
)

// requireAffected returns notFound when result changed no rows.
func requireAffected(result sql.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return Error.Wrap(err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

// queryInt64s returns the first column of every row.
func queryInt64s(ctx context.Context, db tagsql.Queryer, query string, args ...interface{}) (_ []int64, err error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(rows.Close())) }()

	var values []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, Error.Wrap(err)
		}
		values = append(values, v)
	}
	return values, Error.Wrap(rows.Err())
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
