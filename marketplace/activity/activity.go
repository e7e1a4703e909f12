// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package activity records the app activity log.
package activity

import (
	"context"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

var (
	mon = monkit.Package()

	// Error is the default activity errs class.
	Error = errs.Class("activity")
)

// Action identifies a logged event.
type Action int

// Logged actions.
const (
	CreateApp              Action = 1
	ChangeStatus           Action = 12
	AddVersion             Action = 16
	DeleteVersion          Action = 18
	ApproveVersion         Action = 21
	Escalate               Action = 23
	ManifestUpdated        Action = 52
	RereviewManifestChange Action = 70
	RereviewManifestFetch  Action = 71
	EscalateBlocklisted    Action = 110
)

var names = map[Action]string{
	CreateApp:              "create_app",
	ChangeStatus:           "change_status",
	AddVersion:             "add_version",
	DeleteVersion:          "delete_version",
	ApproveVersion:         "approve_version",
	Escalate:               "escalate",
	ManifestUpdated:        "manifest_updated",
	RereviewManifestChange: "rereview_manifest_change",
	RereviewManifestFetch:  "rereview_manifest_fetch",
	EscalateBlocklisted:    "escalate_blocklisted",
}

// Keep lists the actions that are never garbage collected.
var Keep = []Action{ApproveVersion, Escalate, RereviewManifestChange, RereviewManifestFetch, EscalateBlocklisted}

// String returns the action name.
func (action Action) String() string {
	if name, ok := names[action]; ok {
		return name
	}
	return "unknown"
}

// Entry is a single activity log row.
type Entry struct {
	ID        int64
	Action    Action
	AppID     int64
	VersionID int64
	Details   string
	CreatedAt time.Time
}

// DB stores the activity log.
//
// architecture: Database
type DB interface {
	// Insert adds an entry and returns it with its id.
	Insert(ctx context.Context, entry Entry) (Entry, error)
	// ListForApp returns the entries of an app, oldest first.
	ListForApp(ctx context.Context, appID int64) ([]Entry, error)
	// DeleteOlderThan removes entries created before the given time
	// unless their action is in keep.
	DeleteOlderThan(ctx context.Context, before time.Time, keep []Action) (int64, error)
}

// Service writes the activity log.
//
// architecture: Service
type Service struct {
	log *zap.Logger
	db  DB
	now func() time.Time
}

// NewService creates a new activity service.
func NewService(log *zap.Logger, db DB) *Service {
	return &Service{log: log, db: db, now: time.Now}
}

// Log records action for an app. versionID may be zero.
func (service *Service) Log(ctx context.Context, action Action, appID, versionID int64, details string) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = service.db.Insert(ctx, Entry{
		Action:    action,
		AppID:     appID,
		VersionID: versionID,
		Details:   details,
		CreatedAt: service.now().UTC(),
	})
	if err != nil {
		return Error.Wrap(err)
	}
	service.log.Debug("activity",
		zap.Stringer("action", action),
		zap.Int64("app", appID),
		zap.Int64("version", versionID))
	return nil
}

// ForApp returns the log of an app.
func (service *Service) ForApp(ctx context.Context, appID int64) (_ []Entry, err error) {
	defer mon.Task()(&ctx)(&err)
	entries, err := service.db.ListForApp(ctx, appID)
	return entries, Error.Wrap(err)
}

// DeleteOlderThan removes entries older than age, except kept actions.
func (service *Service) DeleteOlderThan(ctx context.Context, age time.Duration) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)
	count, err := service.db.DeleteOlderThan(ctx, service.now().Add(-age).UTC(), Keep)
	return count, Error.Wrap(err)
}
