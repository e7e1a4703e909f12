// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package testmarket starts a marketplace peer for tests.
package testmarket

// This package should be referenced only in test files!

import (
	"testing"

	"github.com/spf13/pflag"
	"go.uber.org/zap/zaptest"

	"storj.io/common/cfgstruct"
	"storj.io/common/testcontext"

	"github.com/mozilla/marketplace/marketplace"
	"github.com/mozilla/marketplace/marketplace/marketplacedb/marketplacedbtest"
	"github.com/mozilla/marketplace/marketplace/minifest"
)

// Reconfigure changes the configuration before the peer is created.
type Reconfigure func(config *marketplace.Config)

// Config returns the test configuration with storage in dir.
func Config(dir string) *marketplace.Config {
	var config marketplace.Config
	cfgstruct.Bind(pflag.NewFlagSet("", pflag.PanicOnError), &config,
		cfgstruct.UseTestDefaults(),
		cfgstruct.ConfDir(dir),
	)
	return &config
}

// Run runs test with a peer on every supported database. The task queue
// runs jobs when they are enqueued and mail is only recorded.
func Run(t *testing.T, reconfigure Reconfigure, test func(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer)) {
	marketplacedbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db marketplace.DB) {
		log := zaptest.NewLogger(t)

		config := Config(ctx.Dir("market"))
		if reconfigure != nil {
			reconfigure(config)
		}

		public, private, err := marketplace.OpenStorage(config.Storage)
		if err != nil {
			t.Fatal(err)
		}
		cache, err := minifest.NewLRUCache(config.Minifest.Cache.Size)
		if err != nil {
			t.Fatal(err)
		}

		peer, err := marketplace.New(log, db, public, private, cache, config)
		if err != nil {
			t.Fatal(err)
		}
		defer ctx.Check(peer.Close)

		test(ctx, t, peer)
	})
}
