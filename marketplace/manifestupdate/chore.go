// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package manifestupdate

import (
	"context"

	"go.uber.org/zap"

	"storj.io/common/sync2"
)

// Chore periodically queues the refresh of every hosted manifest.
//
// architecture: Chore
type Chore struct {
	log     *zap.Logger
	service *Service
	Loop    *sync2.Cycle
}

// NewChore creates a new manifest refresh chore.
func NewChore(log *zap.Logger, service *Service, config Config) *Chore {
	return &Chore{
		log:     log,
		service: service,
		Loop:    sync2.NewCycle(config.Interval),
	}
}

// Run the manifest refresh loop.
func (chore *Chore) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	return chore.Loop.Run(ctx, func(ctx context.Context) error {
		if err := chore.service.QueueAll(ctx); err != nil {
			chore.log.Error("queueing manifest updates failed", zap.Error(err))
		}
		return nil
	})
}

// Close stops the chore.
func (chore *Chore) Close() error {
	chore.Loop.Close()
	return nil
}
