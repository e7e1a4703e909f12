// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package lifecycle runs the long lived parts of a peer and closes them in
// reverse order of registration.
package lifecycle

import (
	"context"
	"errors"
	"runtime/pprof"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/common/errs2"
)

var mon = monkit.Package()

// Error is the class of close failures.
var Error = errs.Class("lifecycle")

// Item is a part of a peer. Items without Run are only closed.
type Item struct {
	Name  string
	Run   func(ctx context.Context) error
	Close func() error
}

// Group is an ordered set of items.
type Group struct {
	log   *zap.Logger
	items []Item
}

// NewGroup creates an empty group.
func NewGroup(log *zap.Logger) *Group {
	return &Group{log: log}
}

// Add registers item. Items are closed in reverse order of registration.
func (group *Group) Add(item Item) {
	group.items = append(group.items, item)
}

// Names returns the names of the items that run.
func (group *Group) Names() []string {
	var names []string
	for _, item := range group.items {
		if item.Run != nil {
			names = append(names, item.Name)
		}
	}
	return names
}

// Run starts every runnable item on g. An item stopping because ctx was
// canceled is not a failure.
func (group *Group) Run(ctx context.Context, g *errgroup.Group) {
	defer mon.Task()(&ctx)(nil)

	for _, item := range group.items {
		item := item
		if item.Run == nil {
			continue
		}
		g.Go(func() (err error) {
			log := group.log.With(zap.String("item", item.Name))
			pprof.Do(ctx, pprof.Labels("item", item.Name), func(ctx context.Context) {
				log.Debug("starting")
				err = item.Run(ctx)
				if errors.Is(ctx.Err(), context.Canceled) {
					err = errs2.IgnoreCanceled(err)
				}
				if err != nil {
					log.Error("stopped", zap.Error(err))
					return
				}
				log.Debug("stopped")
			})
			return err
		})
	}
}

// Close closes every item, last registered first, and returns the failures
// labeled with the item names.
func (group *Group) Close() error {
	var failures errs.Group
	for i := len(group.items) - 1; i >= 0; i-- {
		item := group.items[i]
		if item.Close == nil {
			continue
		}
		if err := item.Close(); err != nil {
			group.log.Warn("close failed", zap.String("item", item.Name), zap.Error(err))
			failures.Add(Error.New("%s: %v", item.Name, err))
		}
	}
	return failures.Err()
}
