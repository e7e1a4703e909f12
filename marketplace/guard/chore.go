// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package guard keeps disabled files out of public storage.
package guard

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/sync2"

	"github.com/mozilla/marketplace/marketplace/apps"
	"github.com/mozilla/marketplace/storage"
)

var (
	mon = monkit.Package()

	// Error is the default guard errs class.
	Error = errs.Class("guard")
)

// Config contains the guard settings.
type Config struct {
	Interval time.Duration `help:"how often disabled files are moved between storage tiers" releaseDefault:"1h" devDefault:"5m" testDefault:"1m"`
}

// Chore hides the files of disabled apps and versions and unhides guarded
// files that are no longer disabled.
//
// architecture: Chore
type Chore struct {
	log  *zap.Logger
	apps *apps.Service
	Loop *sync2.Cycle
}

// NewChore creates a new guard chore.
func NewChore(log *zap.Logger, service *apps.Service, config Config) *Chore {
	return &Chore{
		log:  log,
		apps: service,
		Loop: sync2.NewCycle(config.Interval),
	}
}

// Run the guard loop.
func (chore *Chore) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	return chore.Loop.Run(ctx, func(ctx context.Context) error {
		if err := chore.RunOnce(ctx); err != nil {
			chore.log.Error("guarding files failed", zap.Error(err))
		}
		return nil
	})
}

// RunOnce hides and unhides files once.
func (chore *Chore) RunOnce(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	hidden, err := chore.apps.DB().Files().ListHidden(ctx)
	if err != nil {
		return Error.Wrap(err)
	}
	return errs.Combine(chore.hide(ctx, hidden), chore.unhide(ctx, hidden))
}

func (chore *Chore) hide(ctx context.Context, hidden []apps.FileRef) error {
	var group errs.Group
	for _, ref := range hidden {
		if err := chore.apps.HideDisabledFile(ctx, ref.AppID, ref.File); err != nil {
			chore.log.Error("hiding file failed", zap.Int64("app", ref.AppID), zap.Int64("file", ref.File.ID), zap.Error(err))
			group.Add(err)
		}
	}
	return group.Err()
}

func (chore *Chore) unhide(ctx context.Context, hidden []apps.FileRef) error {
	keep := make(map[int64]bool, len(hidden))
	for _, ref := range hidden {
		keep[ref.File.ID] = true
	}

	// moving files while walking is not safe for every backend
	type guarded struct {
		appID    int64
		filename string
	}
	var found []guarded
	err := chore.apps.Private().Walk(ctx, apps.GuardedPrefix, func(info storage.Info) error {
		rel := strings.TrimPrefix(info.Path, apps.GuardedPrefix+"/")
		dir, filename, ok := strings.Cut(rel, "/")
		if !ok || strings.Contains(filename, "/") {
			return nil
		}
		appID, err := strconv.ParseInt(dir, 10, 64)
		if err != nil {
			return nil
		}
		found = append(found, guarded{appID: appID, filename: filename})
		return nil
	})
	if err != nil {
		return Error.Wrap(err)
	}

	var group errs.Group
	for _, g := range found {
		log := chore.log.With(zap.Int64("app", g.appID), zap.String("filename", g.filename))

		file, err := chore.apps.DB().Files().FindByName(ctx, g.appID, g.filename)
		if err != nil {
			if apps.ErrNotFound.Has(err) {
				log.Warn("guarded file has no record")
				continue
			}
			group.Add(err)
			continue
		}
		if keep[file.ID] {
			continue
		}

		log.Info("unhiding file", zap.Int64("file", file.ID))
		if err := chore.apps.UnhideDisabledFile(ctx, g.appID, file); err != nil {
			log.Error("unhiding file failed", zap.Error(err))
			group.Add(err)
		}
	}
	return group.Err()
}

// Close stops the chore.
func (chore *Chore) Close() error {
	chore.Loop.Close()
	return nil
}
