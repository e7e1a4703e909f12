// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package reviewers manages the review queues apps are placed in after
// submission problems.
package reviewers

import (
	"context"
	"encoding/json"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/mozilla/marketplace/marketplace/activity"
)

var (
	mon = monkit.Package()

	// Error is the default reviewers errs class.
	Error = errs.Class("reviewers")
)

// Queue names a review queue.
type Queue string

// Review queues.
const (
	Rereview   Queue = "rereview"
	Escalation Queue = "escalation"
)

// DB stores queue membership.
//
// architecture: Database
type DB interface {
	// Add puts an app in the queue. It reports whether the app was added.
	Add(ctx context.Context, queue Queue, appID int64) (bool, error)
	// Has reports whether the app is in the queue.
	Has(ctx context.Context, queue Queue, appID int64) (bool, error)
	// Remove takes an app out of the queue.
	Remove(ctx context.Context, queue Queue, appID int64) error
	// List returns the apps in the queue, oldest first.
	List(ctx context.Context, queue Queue) ([]int64, error)
}

// Service adds and removes apps from review queues.
//
// architecture: Service
type Service struct {
	log      *zap.Logger
	db       DB
	activity *activity.Service
}

// NewService creates a new review queue service.
func NewService(log *zap.Logger, db DB, activity *activity.Service) *Service {
	return &Service{log: log, db: db, activity: activity}
}

// Flag puts an app in the re-review queue and logs event with the
// optional message.
func (service *Service) Flag(ctx context.Context, appID, versionID int64, event activity.Action, message string) (err error) {
	defer mon.Task()(&ctx)(&err)

	added, err := service.db.Add(ctx, Rereview, appID)
	if err != nil {
		return Error.Wrap(err)
	}
	service.log.Info("flagged for re-review",
		zap.Int64("app", appID),
		zap.Stringer("event", event),
		zap.Bool("new", added))

	return Error.Wrap(service.activity.Log(ctx, event, appID, versionID, comments(message)))
}

// InRereview reports whether an app waits for re-review.
func (service *Service) InRereview(ctx context.Context, appID int64) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)
	in, err := service.db.Has(ctx, Rereview, appID)
	return in, Error.Wrap(err)
}

// Escalate puts an app in the escalation queue.
func (service *Service) Escalate(ctx context.Context, appID, versionID int64, event activity.Action, message string) (err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := service.db.Add(ctx, Escalation, appID); err != nil {
		return Error.Wrap(err)
	}
	return Error.Wrap(service.activity.Log(ctx, event, appID, versionID, comments(message)))
}

// InEscalation reports whether an app is escalated.
func (service *Service) InEscalation(ctx context.Context, appID int64) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)
	in, err := service.db.Has(ctx, Escalation, appID)
	return in, Error.Wrap(err)
}

// RemoveApp takes a deleted app out of every queue.
func (service *Service) RemoveApp(ctx context.Context, appID int64) (err error) {
	defer mon.Task()(&ctx)(&err)
	return Error.Wrap(errs.Combine(
		service.db.Remove(ctx, Rereview, appID),
		service.db.Remove(ctx, Escalation, appID),
	))
}

// List returns the apps in a queue.
func (service *Service) List(ctx context.Context, queue Queue) (_ []int64, err error) {
	defer mon.Task()(&ctx)(&err)
	ids, err := service.db.List(ctx, queue)
	return ids, Error.Wrap(err)
}

func comments(message string) string {
	if message == "" {
		return ""
	}
	data, err := json.Marshal(map[string]string{"comments": message})
	if err != nil {
		return message
	}
	return string(data)
}
