// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package apps

import (
	"context"

	"storj.io/common/uuid"

	"github.com/mozilla/marketplace/marketplace/status"
)

// DB contains access to the app records.
//
// architecture: Database
type DB interface {
	// Webapps returns the app records.
	Webapps() Webapps
	// Versions returns the version records.
	Versions() Versions
	// Files returns the file records.
	Files() Files
	// Uploads returns the upload records.
	Uploads() Uploads
	// Previews returns the preview image records.
	Previews() Previews
}

// Filter selects apps for background jobs.
type Filter struct {
	// Statuses limits to apps in one of the statuses.
	Statuses []status.Status
	// Hosted limits to hosted apps.
	Hosted bool
	// Packaged limits to packaged apps.
	Packaged bool
	// NotDisabledByUser skips apps disabled by their developer.
	NotDisabledByUser bool
	// NewRegions limits to apps that are added to new regions.
	NewRegions bool
	// NoNewRegions limits to apps that opted out of new regions.
	NoNewRegions bool
	// NotExcludedFrom skips apps excluded from any of the regions.
	NotExcludedFrom []int
}

// Webapps stores apps.
type Webapps interface {
	// Insert adds an app and returns its id.
	Insert(ctx context.Context, app *Webapp) (int64, error)
	// Get returns an app, including deleted apps.
	Get(ctx context.Context, id int64) (*Webapp, error)
	// Update saves every mutable field of the app.
	Update(ctx context.Context, app *Webapp) error
	// List returns the ids of the apps matching filter.
	List(ctx context.Context, filter Filter) ([]int64, error)

	// Names returns the translated names of an app.
	Names(ctx context.Context, id int64) (map[string]string, error)
	// SetNames replaces the translated names of an app.
	SetNames(ctx context.Context, id int64, names map[string]string) error

	// Authors returns the email addresses of the developers of an app.
	Authors(ctx context.Context, id int64) ([]string, error)
	// AddAuthor adds a developer to an app.
	AddAuthor(ctx context.Context, id int64, email string) error

	// ExcludedRegions returns the regions an app is excluded from.
	ExcludedRegions(ctx context.Context, id int64) ([]int, error)
	// ExcludeRegion excludes an app from a region. It reports whether the
	// exclusion is new.
	ExcludeRegion(ctx context.Context, id int64, region int) (bool, error)
}

// Versions stores versions and their manifests and features.
type Versions interface {
	// Insert adds a version and returns its id.
	Insert(ctx context.Context, version *Version) (int64, error)
	// Get returns a version, including deleted versions.
	Get(ctx context.Context, id int64) (*Version, error)
	// Update saves every mutable field of the version.
	Update(ctx context.Context, version *Version) error
	// ListForApp returns the versions of an app, latest first.
	ListForApp(ctx context.Context, appID int64, includeDeleted bool) ([]*Version, error)

	// Manifest returns the manifest stored for a version.
	Manifest(ctx context.Context, versionID int64) (string, error)
	// SetManifest stores the manifest of a version.
	SetManifest(ctx context.Context, versionID int64, manifest string) error

	// Features returns the feature profile of a version.
	Features(ctx context.Context, versionID int64) (Features, error)
	// SetFeatures stores the feature profile of a version.
	SetFeatures(ctx context.Context, versionID int64, features Features) error
}

// Files stores files and their validation results.
type Files interface {
	// Insert adds a file and returns its id.
	Insert(ctx context.Context, file *File) (int64, error)
	// Get returns a file.
	Get(ctx context.Context, id int64) (*File, error)
	// Update saves every mutable field of the file.
	Update(ctx context.Context, file *File) error
	// Delete removes a file record.
	Delete(ctx context.Context, id int64) error
	// ListForVersion returns the files of a version, latest first.
	ListForVersion(ctx context.Context, versionID int64) ([]*File, error)
	// FindByName returns the file of an app with the given stored name.
	FindByName(ctx context.Context, appID int64, filename string) (*File, error)
	// ListHidden returns the files that must not be publicly served: files
	// that are disabled or belong to a disabled app.
	ListHidden(ctx context.Context) ([]FileRef, error)

	// Validation returns the validation result of a file.
	Validation(ctx context.Context, fileID int64) (*FileValidation, error)
	// SaveValidation stores the validation result of a file.
	SaveValidation(ctx context.Context, validation *FileValidation) error
	// DeleteValidations removes every stored validation result.
	DeleteValidations(ctx context.Context) (int64, error)
}

// Uploads stores file uploads.
type Uploads interface {
	// Insert adds an upload.
	Insert(ctx context.Context, upload *FileUpload) error
	// Get returns an upload.
	Get(ctx context.Context, id uuid.UUID) (*FileUpload, error)
	// Update saves every mutable field of the upload.
	Update(ctx context.Context, upload *FileUpload) error
}

// Previews stores the preview images of apps.
type Previews interface {
	// Insert adds a preview and returns its id.
	Insert(ctx context.Context, preview *Preview) (int64, error)
	// Get returns a preview.
	Get(ctx context.Context, id int64) (*Preview, error)
	// Update saves every mutable field of the preview.
	Update(ctx context.Context, preview *Preview) error
	// ListForApp returns the previews of an app ordered by position.
	ListForApp(ctx context.Context, appID int64) ([]*Preview, error)
}
