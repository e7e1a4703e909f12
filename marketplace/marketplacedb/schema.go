// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package marketplacedb

import (
	"strings"

	"github.com/mozilla/marketplace/private/dbutil"
	"github.com/mozilla/marketplace/private/migrate"
)

// VersionTable is the table that stores the schema version.
const VersionTable = "versions_marketplace"

// dialect rewrites the column types of a statement for the implementation.
func (db *DB) dialect(statements ...string) migrate.SQL {
	var replacer *strings.Replacer
	if db.impl == dbutil.Postgres {
		replacer = strings.NewReplacer(
			"{id}", "BIGSERIAL PRIMARY KEY",
			"{timestamp}", "TIMESTAMP WITH TIME ZONE",
			"{bytes}", "BYTEA",
		)
	} else {
		replacer = strings.NewReplacer(
			"{id}", "INTEGER PRIMARY KEY AUTOINCREMENT",
			"{timestamp}", "TIMESTAMP",
			"{bytes}", "BLOB",
		)
	}
	out := make(migrate.SQL, 0, len(statements))
	for _, statement := range statements {
		out = append(out, replacer.Replace(statement))
	}
	return out
}

func (db *DB) migration() *migrate.Migration {
	return &migrate.Migration{
		Table: VersionTable,
		DB:    db.db,
		Steps: []*migrate.Step{
			{
				Description: "Initial setup",
				Version:     0,
				Action: db.dialect(
					`CREATE TABLE webapps (
						id {id},
						guid {bytes} NOT NULL,
						slug TEXT NOT NULL,
						name TEXT NOT NULL,
						status INTEGER NOT NULL,
						highest_status INTEGER NOT NULL,
						disabled_by_user BOOLEAN NOT NULL,
						is_packaged BOOLEAN NOT NULL,
						manifest_url TEXT NOT NULL,
						app_domain TEXT NOT NULL,
						default_locale TEXT NOT NULL,
						premium_type INTEGER NOT NULL,
						publish_type INTEGER NOT NULL,
						enable_new_regions BOOLEAN NOT NULL,
						support_email TEXT NOT NULL,
						support_url TEXT NOT NULL,
						categories TEXT NOT NULL,
						device_types TEXT NOT NULL,
						current_version_id BIGINT NOT NULL,
						latest_version_id BIGINT NOT NULL,
						created_at {timestamp} NOT NULL,
						modified_at {timestamp} NOT NULL
					)`,
					`CREATE INDEX webapps_status_index ON webapps (status)`,
					`CREATE TABLE webapp_names (
						app_id BIGINT NOT NULL REFERENCES webapps (id) ON DELETE CASCADE,
						locale TEXT NOT NULL,
						name TEXT NOT NULL,
						PRIMARY KEY (app_id, locale)
					)`,
					`CREATE TABLE webapp_authors (
						app_id BIGINT NOT NULL REFERENCES webapps (id) ON DELETE CASCADE,
						email TEXT NOT NULL,
						PRIMARY KEY (app_id, email)
					)`,
					`CREATE TABLE webapp_excluded_regions (
						app_id BIGINT NOT NULL REFERENCES webapps (id) ON DELETE CASCADE,
						region INTEGER NOT NULL,
						PRIMARY KEY (app_id, region)
					)`,
					`CREATE TABLE app_versions (
						id {id},
						app_id BIGINT NOT NULL REFERENCES webapps (id) ON DELETE CASCADE,
						version TEXT NOT NULL,
						version_int BIGINT NOT NULL,
						developer_name TEXT NOT NULL,
						release_notes TEXT NOT NULL,
						supported_locales TEXT NOT NULL,
						nomination {timestamp},
						deleted BOOLEAN NOT NULL,
						created_at {timestamp} NOT NULL,
						modified_at {timestamp} NOT NULL
					)`,
					`CREATE INDEX app_versions_app_id_index ON app_versions (app_id)`,
					`CREATE TABLE app_manifests (
						version_id BIGINT PRIMARY KEY REFERENCES app_versions (id) ON DELETE CASCADE,
						manifest TEXT NOT NULL
					)`,
					`CREATE TABLE app_features (
						version_id BIGINT PRIMARY KEY REFERENCES app_versions (id) ON DELETE CASCADE,
						signature TEXT NOT NULL
					)`,
					`CREATE TABLE files (
						id {id},
						version_id BIGINT NOT NULL REFERENCES app_versions (id) ON DELETE CASCADE,
						filename TEXT NOT NULL,
						size BIGINT NOT NULL,
						hash TEXT NOT NULL,
						status INTEGER NOT NULL,
						created_at {timestamp} NOT NULL,
						modified_at {timestamp} NOT NULL
					)`,
					`CREATE INDEX files_version_id_index ON files (version_id)`,
					`CREATE TABLE file_validations (
						file_id BIGINT PRIMARY KEY REFERENCES files (id) ON DELETE CASCADE,
						valid BOOLEAN NOT NULL,
						errors INTEGER NOT NULL,
						warnings INTEGER NOT NULL,
						notices INTEGER NOT NULL,
						validation TEXT NOT NULL,
						created_at {timestamp} NOT NULL
					)`,
					`CREATE TABLE file_uploads (
						uuid {bytes} PRIMARY KEY,
						path TEXT NOT NULL,
						name TEXT NOT NULL,
						hash TEXT NOT NULL,
						valid BOOLEAN NOT NULL,
						validation TEXT NOT NULL,
						task_error TEXT NOT NULL,
						created_at {timestamp} NOT NULL
					)`,
					`CREATE TABLE activity_log (
						id {id},
						action INTEGER NOT NULL,
						app_id BIGINT NOT NULL,
						version_id BIGINT NOT NULL,
						details TEXT NOT NULL,
						created_at {timestamp} NOT NULL
					)`,
					`CREATE INDEX activity_log_app_id_index ON activity_log (app_id)`,
					`CREATE INDEX activity_log_created_at_index ON activity_log (created_at)`,
					`CREATE TABLE review_queues (
						queue TEXT NOT NULL,
						app_id BIGINT NOT NULL,
						created_at {timestamp} NOT NULL,
						PRIMARY KEY (queue, app_id)
					)`,
					`CREATE TABLE jobs (
						id {id},
						kind TEXT NOT NULL,
						payload {bytes} NOT NULL,
						state TEXT NOT NULL,
						attempts INTEGER NOT NULL,
						max_retries INTEGER NOT NULL,
						run_at {timestamp} NOT NULL,
						last_error TEXT NOT NULL,
						created_at {timestamp} NOT NULL
					)`,
					`CREATE INDEX jobs_state_run_at_index ON jobs (state, run_at)`,
				),
			},
			{
				Description: "Add app icons and previews",
				Version:     1,
				Action: db.dialect(
					`ALTER TABLE webapps ADD COLUMN icon_type TEXT NOT NULL DEFAULT ''`,
					`ALTER TABLE webapps ADD COLUMN icon_hash TEXT NOT NULL DEFAULT ''`,
					`CREATE TABLE previews (
						id {id},
						app_id BIGINT NOT NULL REFERENCES webapps (id) ON DELETE CASCADE,
						filetype TEXT NOT NULL,
						thumbtype TEXT NOT NULL,
						position INTEGER NOT NULL,
						sizes TEXT NOT NULL,
						created_at {timestamp} NOT NULL,
						modified_at {timestamp} NOT NULL
					)`,
					`CREATE INDEX previews_app_id_index ON previews (app_id)`,
				),
			},
		},
	}
}
