// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package marketplacedb

import (
	"context"
	"database/sql"
	"errors"

	"storj.io/common/uuid"

	"github.com/mozilla/marketplace/marketplace/apps"
)

// uploads implements apps.Uploads.
type uploads struct {
	db *DB
}

var _ apps.Uploads = (*uploads)(nil)

// Insert adds an upload.
func (u *uploads) Insert(ctx context.Context, upload *apps.FileUpload) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = u.db.db.ExecContext(ctx, `
		INSERT INTO file_uploads (uuid, path, name, hash, valid, validation, task_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		upload.UUID, upload.Path, upload.Name, upload.Hash, upload.Valid, upload.Validation, upload.TaskError, upload.CreatedAt.UTC())
	return Error.Wrap(err)
}

// Get returns an upload.
func (u *uploads) Get(ctx context.Context, id uuid.UUID) (_ *apps.FileUpload, err error) {
	defer mon.Task()(&ctx)(&err)

	var upload apps.FileUpload
	err = u.db.db.QueryRowContext(ctx, `
		SELECT uuid, path, name, hash, valid, validation, task_error, created_at
		FROM file_uploads WHERE uuid = ?`, id,
	).Scan(&upload.UUID, &upload.Path, &upload.Name, &upload.Hash, &upload.Valid, &upload.Validation, &upload.TaskError, &upload.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apps.ErrNotFound.New("upload %s", id)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	upload.CreatedAt = upload.CreatedAt.UTC()
	return &upload, nil
}

// Update saves every mutable field of the upload.
func (u *uploads) Update(ctx context.Context, upload *apps.FileUpload) (err error) {
	defer mon.Task()(&ctx)(&err)

	result, err := u.db.db.ExecContext(ctx, `
		UPDATE file_uploads SET path = ?, name = ?, hash = ?, valid = ?, validation = ?, task_error = ?
		WHERE uuid = ?`,
		upload.Path, upload.Name, upload.Hash, upload.Valid, upload.Validation, upload.TaskError, upload.UUID)
	if err != nil {
		return Error.Wrap(err)
	}
	return requireAffected(result, apps.ErrNotFound.New("upload %s", upload.UUID))
}
