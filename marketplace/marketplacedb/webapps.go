// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package marketplacedb

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/zeebo/errs"

	"github.com/mozilla/marketplace/marketplace/apps"
	"github.com/mozilla/marketplace/private/dbutil/txutil"
	"github.com/mozilla/marketplace/private/tagsql"
)

// webapps implements apps.Webapps.
type webapps struct {
	db *DB
}

var _ apps.Webapps = (*webapps)(nil)

const webappColumns = `
	id, guid, slug, name, status, highest_status, disabled_by_user,
	is_packaged, manifest_url, app_domain, default_locale, icon_type, icon_hash,
	premium_type, publish_type, enable_new_regions, support_email, support_url,
	categories, device_types, current_version_id, latest_version_id,
	created_at, modified_at`

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func splitInts(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	var values []int
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func splitStrings(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func scanWebapp(row interface{ Scan(...interface{}) error }) (*apps.Webapp, error) {
	var app apps.Webapp
	var categories, deviceTypes string
	err := row.Scan(
		&app.ID, &app.GUID, &app.Slug, &app.Name, &app.Status, &app.HighestStatus, &app.DisabledByUser,
		&app.IsPackaged, &app.ManifestURL, &app.AppDomain, &app.DefaultLocale, &app.IconType, &app.IconHash,
		&app.PremiumType, &app.PublishType, &app.EnableNewRegions, &app.SupportEmail, &app.SupportURL,
		&categories, &deviceTypes, &app.CurrentVersionID, &app.LatestVersionID,
		&app.CreatedAt, &app.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	app.Categories = splitStrings(categories)
	app.DeviceTypes, err = splitInts(deviceTypes)
	if err != nil {
		return nil, err
	}
	app.CreatedAt = app.CreatedAt.UTC()
	app.ModifiedAt = app.ModifiedAt.UTC()
	return &app, nil
}

// Insert adds an app and returns its id.
func (w *webapps) Insert(ctx context.Context, app *apps.Webapp) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)

	var id int64
	err = w.db.db.QueryRowContext(ctx, `
		INSERT INTO webapps (
			guid, slug, name, status, highest_status, disabled_by_user,
			is_packaged, manifest_url, app_domain, default_locale, icon_type, icon_hash,
			premium_type, publish_type, enable_new_regions, support_email, support_url,
			categories, device_types, current_version_id, latest_version_id,
			created_at, modified_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		app.GUID, app.Slug, app.Name, app.Status, app.HighestStatus, app.DisabledByUser,
		app.IsPackaged, app.ManifestURL, app.AppDomain, app.DefaultLocale, app.IconType, app.IconHash,
		app.PremiumType, app.PublishType, app.EnableNewRegions, app.SupportEmail, app.SupportURL,
		strings.Join(app.Categories, ","), joinInts(app.DeviceTypes), app.CurrentVersionID, app.LatestVersionID,
		app.CreatedAt.UTC(), app.ModifiedAt.UTC(),
	).Scan(&id)
	return id, Error.Wrap(err)
}

// Get returns an app, including deleted apps.
func (w *webapps) Get(ctx context.Context, id int64) (_ *apps.Webapp, err error) {
	defer mon.Task()(&ctx)(&err)

	app, err := scanWebapp(w.db.db.QueryRowContext(ctx, `SELECT `+webappColumns+` FROM webapps WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apps.ErrNotFound.New("app %d", id)
	}
	return app, Error.Wrap(err)
}

// Update saves every mutable field of the app.
func (w *webapps) Update(ctx context.Context, app *apps.Webapp) (err error) {
	defer mon.Task()(&ctx)(&err)

	result, err := w.db.db.ExecContext(ctx, `
		UPDATE webapps SET
			slug = ?, name = ?, status = ?, highest_status = ?, disabled_by_user = ?,
			is_packaged = ?, manifest_url = ?, app_domain = ?, default_locale = ?, icon_type = ?, icon_hash = ?,
			premium_type = ?, publish_type = ?, enable_new_regions = ?, support_email = ?, support_url = ?,
			categories = ?, device_types = ?, current_version_id = ?, latest_version_id = ?,
			modified_at = ?
		WHERE id = ?`,
		app.Slug, app.Name, app.Status, app.HighestStatus, app.DisabledByUser,
		app.IsPackaged, app.ManifestURL, app.AppDomain, app.DefaultLocale, app.IconType, app.IconHash,
		app.PremiumType, app.PublishType, app.EnableNewRegions, app.SupportEmail, app.SupportURL,
		strings.Join(app.Categories, ","), joinInts(app.DeviceTypes), app.CurrentVersionID, app.LatestVersionID,
		app.ModifiedAt.UTC(), app.ID,
	)
	if err != nil {
		return Error.Wrap(err)
	}
	return requireAffected(result, apps.ErrNotFound.New("app %d", app.ID))
}

// List returns the ids of the apps matching filter.
func (w *webapps) List(ctx context.Context, filter apps.Filter) (_ []int64, err error) {
	defer mon.Task()(&ctx)(&err)

	var where []string
	var args []interface{}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, s)
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.Hosted {
		where = append(where, "is_packaged = ?")
		args = append(args, false)
	}
	if filter.Packaged {
		where = append(where, "is_packaged = ?")
		args = append(args, true)
	}
	if filter.NotDisabledByUser {
		where = append(where, "disabled_by_user = ?")
		args = append(args, false)
	}
	if filter.NewRegions {
		where = append(where, "enable_new_regions = ?")
		args = append(args, true)
	}
	if filter.NoNewRegions {
		where = append(where, "enable_new_regions = ?")
		args = append(args, false)
	}
	if len(filter.NotExcludedFrom) > 0 {
		placeholders := make([]string, len(filter.NotExcludedFrom))
		for i, region := range filter.NotExcludedFrom {
			placeholders[i] = "?"
			args = append(args, region)
		}
		where = append(where, "id NOT IN (SELECT app_id FROM webapp_excluded_regions WHERE region IN ("+strings.Join(placeholders, ", ")+"))")
	}

	query := `SELECT id FROM webapps`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id`

	return queryInt64s(ctx, w.db.db, query, args...)
}

// Names returns the translated names of an app.
func (w *webapps) Names(ctx context.Context, id int64) (_ map[string]string, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := w.db.db.QueryContext(ctx, `SELECT locale, name FROM webapp_names WHERE app_id = ?`, id)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(rows.Close())) }()

	names := map[string]string{}
	for rows.Next() {
		var locale, name string
		if err := rows.Scan(&locale, &name); err != nil {
			return nil, Error.Wrap(err)
		}
		names[locale] = name
	}
	return names, Error.Wrap(rows.Err())
}

// SetNames replaces the translated names of an app.
func (w *webapps) SetNames(ctx context.Context, id int64, names map[string]string) (err error) {
	defer mon.Task()(&ctx)(&err)

	return Error.Wrap(txutil.WithTx(ctx, w.db.db, nil, func(ctx context.Context, tx tagsql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM webapp_names WHERE app_id = ?`, id); err != nil {
			return err
		}
		for locale, name := range names {
			_, err := tx.ExecContext(ctx, `INSERT INTO webapp_names (app_id, locale, name) VALUES (?, ?, ?)`, id, locale, name)
			if err != nil {
				return err
			}
		}
		return nil
	}))
}

// Authors returns the email addresses of the developers of an app.
func (w *webapps) Authors(ctx context.Context, id int64) (_ []string, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := w.db.db.QueryContext(ctx, `SELECT email FROM webapp_authors WHERE app_id = ? ORDER BY email`, id)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(rows.Close())) }()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, Error.Wrap(err)
		}
		emails = append(emails, email)
	}
	return emails, Error.Wrap(rows.Err())
}

// AddAuthor adds a developer to an app.
func (w *webapps) AddAuthor(ctx context.Context, id int64, email string) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = w.db.db.ExecContext(ctx, `
		INSERT INTO webapp_authors (app_id, email) VALUES (?, ?)
		ON CONFLICT (app_id, email) DO NOTHING`, id, email)
	return Error.Wrap(err)
}

// ExcludedRegions returns the regions an app is excluded from.
func (w *webapps) ExcludedRegions(ctx context.Context, id int64) (_ []int, err error) {
	defer mon.Task()(&ctx)(&err)

	ids, err := queryInt64s(ctx, w.db.db, `SELECT region FROM webapp_excluded_regions WHERE app_id = ? ORDER BY region`, id)
	if err != nil {
		return nil, err
	}
	regions := make([]int, len(ids))
	for i, v := range ids {
		regions[i] = int(v)
	}
	return regions, nil
}

// ExcludeRegion excludes an app from a region.
func (w *webapps) ExcludeRegion(ctx context.Context, id int64, region int) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	result, err := w.db.db.ExecContext(ctx, `
		INSERT INTO webapp_excluded_regions (app_id, region) VALUES (?, ?)
		ON CONFLICT (app_id, region) DO NOTHING`, id, region)
	if err != nil {
		return false, Error.Wrap(err)
	}
	affected, err := result.RowsAffected()
	return affected > 0, Error.Wrap(err)
}
