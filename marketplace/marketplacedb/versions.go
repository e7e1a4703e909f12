// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package marketplacedb

import (
	"context"
	"database/sql"
	"errors"

	"github.com/zeebo/errs"

	"github.com/mozilla/marketplace/marketplace/apps"
)

// versions implements apps.Versions.
type versions struct {
	db *DB
}

var _ apps.Versions = (*versions)(nil)

const versionColumns = `
	id, app_id, version, version_int, developer_name, release_notes,
	supported_locales, nomination, deleted, created_at, modified_at`

func scanVersion(row interface{ Scan(...interface{}) error }) (*apps.Version, error) {
	var version apps.Version
	var nomination sql.NullTime
	err := row.Scan(
		&version.ID, &version.AppID, &version.Version, &version.VersionInt, &version.DeveloperName, &version.ReleaseNotes,
		&version.SupportedLocales, &nomination, &version.Deleted, &version.CreatedAt, &version.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	version.Nomination = timePtr(nomination)
	version.CreatedAt = version.CreatedAt.UTC()
	version.ModifiedAt = version.ModifiedAt.UTC()
	return &version, nil
}

// Insert adds a version and returns its id.
func (v *versions) Insert(ctx context.Context, version *apps.Version) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)

	var id int64
	err = v.db.db.QueryRowContext(ctx, `
		INSERT INTO app_versions (
			app_id, version, version_int, developer_name, release_notes,
			supported_locales, nomination, deleted, created_at, modified_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		version.AppID, version.Version, version.VersionInt, version.DeveloperName, version.ReleaseNotes,
		version.SupportedLocales, nullTime(version.Nomination), version.Deleted, version.CreatedAt.UTC(), version.ModifiedAt.UTC(),
	).Scan(&id)
	return id, Error.Wrap(err)
}

// Get returns a version, including deleted versions.
func (v *versions) Get(ctx context.Context, id int64) (_ *apps.Version, err error) {
	defer mon.Task()(&ctx)(&err)

	version, err := scanVersion(v.db.db.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM app_versions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apps.ErrNotFound.New("version %d", id)
	}
	return version, Error.Wrap(err)
}

// Update saves every mutable field of the version.
func (v *versions) Update(ctx context.Context, version *apps.Version) (err error) {
	defer mon.Task()(&ctx)(&err)

	result, err := v.db.db.ExecContext(ctx, `
		UPDATE app_versions SET
			version = ?, version_int = ?, developer_name = ?, release_notes = ?,
			supported_locales = ?, nomination = ?, deleted = ?, modified_at = ?
		WHERE id = ?`,
		version.Version, version.VersionInt, version.DeveloperName, version.ReleaseNotes,
		version.SupportedLocales, nullTime(version.Nomination), version.Deleted, version.ModifiedAt.UTC(),
		version.ID,
	)
	if err != nil {
		return Error.Wrap(err)
	}
	return requireAffected(result, apps.ErrNotFound.New("version %d", version.ID))
}

// ListForApp returns the versions of an app, latest first.
func (v *versions) ListForApp(ctx context.Context, appID int64, includeDeleted bool) (_ []*apps.Version, err error) {
	defer mon.Task()(&ctx)(&err)

	query := `SELECT ` + versionColumns + ` FROM app_versions WHERE app_id = ?`
	args := []interface{}{appID}
	if !includeDeleted {
		query += ` AND deleted = ?`
		args = append(args, false)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := v.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(rows.Close())) }()

	var list []*apps.Version
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		list = append(list, version)
	}
	return list, Error.Wrap(rows.Err())
}

// Manifest returns the manifest stored for a version.
func (v *versions) Manifest(ctx context.Context, versionID int64) (_ string, err error) {
	defer mon.Task()(&ctx)(&err)

	var manifest string
	err = v.db.db.QueryRowContext(ctx, `SELECT manifest FROM app_manifests WHERE version_id = ?`, versionID).Scan(&manifest)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apps.ErrNotFound.New("manifest of version %d", versionID)
	}
	return manifest, Error.Wrap(err)
}

// SetManifest stores the manifest of a version.
func (v *versions) SetManifest(ctx context.Context, versionID int64, manifest string) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = v.db.db.ExecContext(ctx, `
		INSERT INTO app_manifests (version_id, manifest) VALUES (?, ?)
		ON CONFLICT (version_id) DO UPDATE SET manifest = excluded.manifest`,
		versionID, manifest)
	return Error.Wrap(err)
}

// Features returns the feature profile of a version.
func (v *versions) Features(ctx context.Context, versionID int64) (_ apps.Features, err error) {
	defer mon.Task()(&ctx)(&err)

	var signature string
	err = v.db.db.QueryRowContext(ctx, `SELECT signature FROM app_features WHERE version_id = ?`, versionID).Scan(&signature)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apps.ErrNotFound.New("features of version %d", versionID)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return apps.ParseSignature(signature)
}

// SetFeatures stores the feature profile of a version.
func (v *versions) SetFeatures(ctx context.Context, versionID int64, features apps.Features) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = v.db.db.ExecContext(ctx, `
		INSERT INTO app_features (version_id, signature) VALUES (?, ?)
		ON CONFLICT (version_id) DO UPDATE SET signature = excluded.signature`,
		versionID, features.Signature())
	return Error.Wrap(err)
}
