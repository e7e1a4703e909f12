// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package gc removes stale signed packages, staged files, exports and
// activity entries.
package gc

import (
	"context"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/sync2"

	"github.com/mozilla/marketplace/marketplace/activity"
	"github.com/mozilla/marketplace/marketplace/apps"
	"github.com/mozilla/marketplace/storage"
)

var (
	mon = monkit.Package()

	// Error is the default gc errs class.
	Error = errs.Class("gc")
)

// Config contains the garbage collection settings.
type Config struct {
	Interval          time.Duration `help:"how often garbage is collected" releaseDefault:"24h" devDefault:"1h" testDefault:"1m"`
	SignedReviewerAge time.Duration `help:"age after which packages signed for reviewers are removed" default:"1h"`
	TmpAge            time.Duration `help:"age after which staged and extracted files are removed" default:"1h"`
	ActivityAge       time.Duration `help:"age after which activity entries are removed" default:"2160h"`
	DumpedAppsAge     time.Duration `help:"age after which exported app documents are removed" default:"720h"`
}

// Chore collects garbage.
//
// architecture: Chore
type Chore struct {
	log      *zap.Logger
	apps     *apps.Service
	activity *activity.Service
	config   Config
	Loop     *sync2.Cycle

	now func() time.Time
}

// NewChore creates a new garbage collection chore.
func NewChore(log *zap.Logger, appService *apps.Service, activityService *activity.Service, config Config) *Chore {
	return &Chore{
		log:      log,
		apps:     appService,
		activity: activityService,
		config:   config,
		Loop:     sync2.NewCycle(config.Interval),
		now:      time.Now,
	}
}

// SetNow replaces the clock.
func (chore *Chore) SetNow(now func() time.Time) { chore.now = now }

// Run the garbage collection loop.
func (chore *Chore) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	return chore.Loop.Run(ctx, func(ctx context.Context) error {
		if err := chore.RunOnce(ctx); err != nil {
			chore.log.Error("garbage collection failed", zap.Error(err))
		}
		return nil
	})
}

// RunOnce collects garbage once.
func (chore *Chore) RunOnce(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	var group errs.Group

	removed, err := chore.removeOlder(ctx, apps.SignedReviewerPrefix, chore.config.SignedReviewerAge)
	group.Add(err)
	chore.log.Info("removed old apps signed for reviewers", zap.Int("files", removed))

	removed, err = chore.removeOlder(ctx, apps.TmpPrefix, chore.config.TmpAge)
	group.Add(err)
	chore.log.Info("removed old staged files", zap.Int("files", removed))

	removed, err = chore.removeOlder(ctx, apps.DumpedPrefix, chore.config.DumpedAppsAge)
	group.Add(err)
	chore.log.Info("removed old exports", zap.Int("files", removed))

	deleted, err := chore.activity.DeleteOlderThan(ctx, chore.config.ActivityAge)
	group.Add(err)
	chore.log.Info("removed old activity entries", zap.Int64("entries", deleted))

	return group.Err()
}

// removeOlder deletes the private files under prefix last modified before
// age.
func (chore *Chore) removeOlder(ctx context.Context, prefix string, age time.Duration) (int, error) {
	cutoff := chore.now().Add(-age)

	var stale []string
	err := chore.apps.Private().Walk(ctx, prefix, func(info storage.Info) error {
		if info.Modified.Before(cutoff) {
			stale = append(stale, info.Path)
		}
		return nil
	})
	if err != nil {
		return 0, Error.Wrap(err)
	}

	var group errs.Group
	removed := 0
	for _, path := range stale {
		chore.log.Debug("removing", zap.String("path", path))
		if err := chore.apps.Private().Delete(ctx, path); err != nil {
			group.Add(err)
			continue
		}
		removed++
	}
	return removed, Error.Wrap(group.Err())
}

// CleanupValidations removes every stored file validation result.
func (chore *Chore) CleanupValidations(ctx context.Context) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)

	deleted, err := chore.apps.DB().Files().DeleteValidations(ctx)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	chore.log.Info("removed validation results", zap.Int64("results", deleted))
	return deleted, nil
}

// Close stops the chore.
func (chore *Chore) Close() error {
	chore.Loop.Close()
	return nil
}
