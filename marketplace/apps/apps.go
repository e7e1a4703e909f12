// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package apps implements the life cycle of apps, their versions and their
// stored files.
package apps

import (
	"time"

	"storj.io/common/uuid"

	"github.com/mozilla/marketplace/marketplace/status"
)

// PremiumType describes how an app is paid for.
type PremiumType int

// Premium types.
const (
	Free         PremiumType = 0
	Premium      PremiumType = 1
	PremiumInApp PremiumType = 2
	FreeInApp    PremiumType = 3
	OtherInApp   PremiumType = 4
)

// PublishType describes what happens after an app is approved.
type PublishType int

// Publish types.
const (
	PublishImmediate PublishType = 0
	PublishHidden    PublishType = 1
	PublishPrivate   PublishType = 2
)

// AppType is the kind of an app as reported to clients.
type AppType int

// App types.
const (
	Hosted     AppType = 1
	Packaged   AppType = 2
	Privileged AppType = 3
)

// Webapp is an app listed on the marketplace.
type Webapp struct {
	ID               int64
	GUID             uuid.UUID
	Slug             string
	Name             string
	Status           status.Status
	HighestStatus    status.Status
	DisabledByUser   bool
	IsPackaged       bool
	ManifestURL      string
	AppDomain        string
	DefaultLocale    string
	IconType         string
	IconHash         string
	PremiumType      PremiumType
	PublishType      PublishType
	EnableNewRegions bool
	SupportEmail     string
	SupportURL       string
	Categories       []string
	DeviceTypes      []int
	CurrentVersionID int64
	LatestVersionID  int64
	CreatedAt        time.Time
	ModifiedAt       time.Time
}

// IsDisabled reports whether the app is disabled by an admin or its
// developer.
func (app *Webapp) IsDisabled() bool {
	return app.Status == status.Disabled || app.DisabledByUser
}

// IsDeleted reports whether the app is deleted.
func (app *Webapp) IsDeleted() bool { return app.Status == status.Deleted }

// IsApproved reports whether the app passed review.
func (app *Webapp) IsApproved() bool { return status.ApprovedSet.Contains(app.Status) }

// IsPublic reports whether the app is public and not disabled.
func (app *Webapp) IsPublic() bool {
	return app.Status == status.Public && !app.DisabledByUser
}

// IsPremium reports whether the app costs money up front.
func (app *Webapp) IsPremium() bool {
	return app.PremiumType == Premium || app.PremiumType == PremiumInApp
}

// IsFullyComplete reports whether the submission details are filled in.
func (app *Webapp) IsFullyComplete() bool {
	return app.Name != "" &&
		(app.SupportEmail != "" || app.SupportURL != "") &&
		len(app.DeviceTypes) > 0 &&
		len(app.Categories) > 0
}

// Version is one submitted package or manifest of an app.
type Version struct {
	ID               int64
	AppID            int64
	Version          string
	VersionInt       int64
	DeveloperName    string
	ReleaseNotes     string
	SupportedLocales string
	Nomination       *time.Time
	Deleted          bool
	CreatedAt        time.Time
	ModifiedAt       time.Time
}

// File is the stored package of a version.
type File struct {
	ID         int64
	VersionID  int64
	Filename   string
	Size       int64
	Hash       string
	Status     status.Status
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// FileUpload is a file uploaded for validation before it becomes a
// version.
type FileUpload struct {
	UUID       uuid.UUID
	Path       string
	Name       string
	Hash       string
	Valid      bool
	Validation string
	TaskError  string
	CreatedAt  time.Time
}

// Processed reports whether the upload has been validated.
func (upload *FileUpload) Processed() bool {
	return upload.Valid || upload.Validation != ""
}

// FileValidation is the stored validation result of a file.
type FileValidation struct {
	FileID     int64
	Valid      bool
	Errors     int
	Warnings   int
	Notices    int
	Validation string
	CreatedAt  time.Time
}

// FileRef is a file together with the ids of its owners.
type FileRef struct {
	AppID int64
	File  *File
}
