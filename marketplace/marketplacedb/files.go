// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package marketplacedb

import (
	"context"
	"database/sql"
	"errors"

	"github.com/zeebo/errs"

	"github.com/mozilla/marketplace/marketplace/apps"
	"github.com/mozilla/marketplace/marketplace/status"
)

// files implements apps.Files.
type files struct {
	db *DB
}

var _ apps.Files = (*files)(nil)

const fileColumns = `id, version_id, filename, size, hash, status, created_at, modified_at`

func scanFile(row interface{ Scan(...interface{}) error }) (*apps.File, error) {
	var file apps.File
	err := row.Scan(&file.ID, &file.VersionID, &file.Filename, &file.Size, &file.Hash, &file.Status, &file.CreatedAt, &file.ModifiedAt)
	if err != nil {
		return nil, err
	}
	file.CreatedAt = file.CreatedAt.UTC()
	file.ModifiedAt = file.ModifiedAt.UTC()
	return &file, nil
}

// Insert adds a file and returns its id.
func (f *files) Insert(ctx context.Context, file *apps.File) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)

	var id int64
	err = f.db.db.QueryRowContext(ctx, `
		INSERT INTO files (version_id, filename, size, hash, status, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		file.VersionID, file.Filename, file.Size, file.Hash, file.Status, file.CreatedAt.UTC(), file.ModifiedAt.UTC(),
	).Scan(&id)
	return id, Error.Wrap(err)
}

// Get returns a file.
func (f *files) Get(ctx context.Context, id int64) (_ *apps.File, err error) {
	defer mon.Task()(&ctx)(&err)

	file, err := scanFile(f.db.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apps.ErrNotFound.New("file %d", id)
	}
	return file, Error.Wrap(err)
}

// Update saves every mutable field of the file.
func (f *files) Update(ctx context.Context, file *apps.File) (err error) {
	defer mon.Task()(&ctx)(&err)

	result, err := f.db.db.ExecContext(ctx, `
		UPDATE files SET filename = ?, size = ?, hash = ?, status = ?, modified_at = ?
		WHERE id = ?`,
		file.Filename, file.Size, file.Hash, file.Status, file.ModifiedAt.UTC(), file.ID)
	if err != nil {
		return Error.Wrap(err)
	}
	return requireAffected(result, apps.ErrNotFound.New("file %d", file.ID))
}

// Delete removes a file record.
func (f *files) Delete(ctx context.Context, id int64) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = f.db.db.ExecContext(ctx, `DELETE FROM file_validations WHERE file_id = ?`, id)
	if err != nil {
		return Error.Wrap(err)
	}
	_, err = f.db.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	return Error.Wrap(err)
}

// ListForVersion returns the files of a version, latest first.
func (f *files) ListForVersion(ctx context.Context, versionID int64) (_ []*apps.File, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := f.db.db.QueryContext(ctx, `
		SELECT `+fileColumns+` FROM files WHERE version_id = ?
		ORDER BY created_at DESC, id DESC`, versionID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(rows.Close())) }()

	var list []*apps.File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		list = append(list, file)
	}
	return list, Error.Wrap(rows.Err())
}

// FindByName returns the file of an app with the given stored name.
func (f *files) FindByName(ctx context.Context, appID int64, filename string) (_ *apps.File, err error) {
	defer mon.Task()(&ctx)(&err)

	file, err := scanFile(f.db.db.QueryRowContext(ctx, `
		SELECT f.id, f.version_id, f.filename, f.size, f.hash, f.status, f.created_at, f.modified_at
		FROM files f
		JOIN app_versions v ON v.id = f.version_id
		WHERE v.app_id = ? AND f.filename = ?
		ORDER BY f.id DESC
		LIMIT 1`, appID, filename))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apps.ErrNotFound.New("file %q of app %d", filename, appID)
	}
	return file, Error.Wrap(err)
}

// ListHidden returns the files of non-deleted versions that are disabled
// or belong to a disabled app.
func (f *files) ListHidden(ctx context.Context) (_ []apps.FileRef, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := f.db.db.QueryContext(ctx, `
		SELECT v.app_id, f.id, f.version_id, f.filename, f.size, f.hash, f.status, f.created_at, f.modified_at
		FROM files f
		JOIN app_versions v ON v.id = f.version_id
		JOIN webapps w ON w.id = v.app_id
		WHERE v.deleted = ?
			AND (f.status = ? OR w.status = ? OR w.disabled_by_user = ?)
		ORDER BY f.id`,
		false, status.Disabled, status.Disabled, true)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(rows.Close())) }()

	var refs []apps.FileRef
	for rows.Next() {
		var ref apps.FileRef
		var file apps.File
		err := rows.Scan(&ref.AppID, &file.ID, &file.VersionID, &file.Filename, &file.Size, &file.Hash, &file.Status, &file.CreatedAt, &file.ModifiedAt)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		file.CreatedAt = file.CreatedAt.UTC()
		file.ModifiedAt = file.ModifiedAt.UTC()
		ref.File = &file
		refs = append(refs, ref)
	}
	return refs, Error.Wrap(rows.Err())
}

// Validation returns the validation result of a file.
func (f *files) Validation(ctx context.Context, fileID int64) (_ *apps.FileValidation, err error) {
	defer mon.Task()(&ctx)(&err)

	var v apps.FileValidation
	err = f.db.db.QueryRowContext(ctx, `
		SELECT file_id, valid, errors, warnings, notices, validation, created_at
		FROM file_validations WHERE file_id = ?`, fileID,
	).Scan(&v.FileID, &v.Valid, &v.Errors, &v.Warnings, &v.Notices, &v.Validation, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apps.ErrNotFound.New("validation of file %d", fileID)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	v.CreatedAt = v.CreatedAt.UTC()
	return &v, nil
}

// SaveValidation stores the validation result of a file.
func (f *files) SaveValidation(ctx context.Context, v *apps.FileValidation) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = f.db.db.ExecContext(ctx, `
		INSERT INTO file_validations (file_id, valid, errors, warnings, notices, validation, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (file_id) DO UPDATE SET
			valid = excluded.valid, errors = excluded.errors, warnings = excluded.warnings,
			notices = excluded.notices, validation = excluded.validation, created_at = excluded.created_at`,
		v.FileID, v.Valid, v.Errors, v.Warnings, v.Notices, v.Validation, v.CreatedAt.UTC())
	return Error.Wrap(err)
}

// DeleteValidations removes every stored validation result.
func (f *files) DeleteValidations(ctx context.Context) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)

	result, err := f.db.db.ExecContext(ctx, `DELETE FROM file_validations`)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	deleted, err := result.RowsAffected()
	return deleted, Error.Wrap(err)
}
