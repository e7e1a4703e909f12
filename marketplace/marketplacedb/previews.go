// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package marketplacedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/zeebo/errs"

	"github.com/mozilla/marketplace/marketplace/apps"
)

// previews implements apps.Previews.
type previews struct {
	db *DB
}

var _ apps.Previews = (*previews)(nil)

const previewColumns = `id, app_id, filetype, thumbtype, position, sizes, created_at, modified_at`

func scanPreview(row interface{ Scan(...interface{}) error }) (*apps.Preview, error) {
	var preview apps.Preview
	var sizes string
	err := row.Scan(&preview.ID, &preview.AppID, &preview.Filetype, &preview.Thumbtype, &preview.Position,
		&sizes, &preview.CreatedAt, &preview.ModifiedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sizes), &preview.Sizes); err != nil {
		return nil, err
	}
	preview.CreatedAt = preview.CreatedAt.UTC()
	preview.ModifiedAt = preview.ModifiedAt.UTC()
	return &preview, nil
}

// Insert adds a preview and returns its id.
func (p *previews) Insert(ctx context.Context, preview *apps.Preview) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)

	sizes, err := json.Marshal(preview.Sizes)
	if err != nil {
		return 0, Error.Wrap(err)
	}

	var id int64
	err = p.db.db.QueryRowContext(ctx, `
		INSERT INTO previews (app_id, filetype, thumbtype, position, sizes, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		preview.AppID, preview.Filetype, preview.Thumbtype, preview.Position, string(sizes),
		preview.CreatedAt.UTC(), preview.ModifiedAt.UTC(),
	).Scan(&id)
	return id, Error.Wrap(err)
}

// Get returns a preview.
func (p *previews) Get(ctx context.Context, id int64) (_ *apps.Preview, err error) {
	defer mon.Task()(&ctx)(&err)

	preview, err := scanPreview(p.db.db.QueryRowContext(ctx, `SELECT `+previewColumns+` FROM previews WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apps.ErrNotFound.New("preview %d", id)
	}
	return preview, Error.Wrap(err)
}

// Update saves every mutable field of the preview.
func (p *previews) Update(ctx context.Context, preview *apps.Preview) (err error) {
	defer mon.Task()(&ctx)(&err)

	sizes, err := json.Marshal(preview.Sizes)
	if err != nil {
		return Error.Wrap(err)
	}

	result, err := p.db.db.ExecContext(ctx, `
		UPDATE previews SET filetype = ?, thumbtype = ?, position = ?, sizes = ?, modified_at = ?
		WHERE id = ?`,
		preview.Filetype, preview.Thumbtype, preview.Position, string(sizes), preview.ModifiedAt.UTC(), preview.ID)
	if err != nil {
		return Error.Wrap(err)
	}
	return requireAffected(result, apps.ErrNotFound.New("preview %d", preview.ID))
}

// ListForApp returns the previews of an app ordered by position.
func (p *previews) ListForApp(ctx context.Context, appID int64) (_ []*apps.Preview, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := p.db.db.QueryContext(ctx, `SELECT `+previewColumns+` FROM previews WHERE app_id = ? ORDER BY position, id`, appID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(rows.Close())) }()

	var list []*apps.Preview
	for rows.Next() {
		preview, err := scanPreview(rows)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		list = append(list, preview)
	}
	return list, Error.Wrap(rows.Err())
}
