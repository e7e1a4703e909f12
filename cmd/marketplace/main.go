// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/cfgstruct"
	"storj.io/common/fpath"
	"storj.io/common/process"

	"github.com/mozilla/marketplace/marketplace"
	"github.com/mozilla/marketplace/marketplace/marketplacedb"
	"github.com/mozilla/marketplace/marketplace/minifest"
)

// Marketplace defines the marketplace process configuration.
type Marketplace struct {
	Database string `help:"marketplace database connection string" releaseDefault:"postgres://" devDefault:"sqlite3://$CONFDIR/marketplace.db"`

	marketplace.Config
}

var (
	rootCmd = &cobra.Command{
		Use:   "marketplace",
		Short: "Marketplace app submission pipeline",
	}
	setupCmd = &cobra.Command{
		Use:         "setup",
		Short:       "Create config files",
		RunE:        cmdSetup,
		Annotations: map[string]string{"type": "setup"},
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the task worker and the chores",
		RunE:  cmdRun,
	}
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE:  cmdMigrate,
	}

	confDir string

	runCfg   Marketplace
	setupCfg Marketplace
)

func init() {
	defaultConfDir := fpath.ApplicationDir("mozilla", "marketplace")
	cfgstruct.SetupFlag(zap.L(), rootCmd, &confDir, "config-dir", defaultConfDir, "main directory for marketplace configuration")
	defaults := cfgstruct.DefaultsFlag(rootCmd)

	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(migrateCmd)
	for _, cmd := range toolCmds {
		rootCmd.AddCommand(cmd)
	}

	process.Bind(setupCmd, &setupCfg, defaults, cfgstruct.ConfDir(confDir), cfgstruct.SetupMode())
	process.Bind(runCmd, &runCfg, defaults, cfgstruct.ConfDir(confDir))
	process.Bind(migrateCmd, &runCfg, defaults, cfgstruct.ConfDir(confDir))
	for _, cmd := range toolCmds {
		process.Bind(cmd, &runCfg, defaults, cfgstruct.ConfDir(confDir))
	}
	bindToolFlags()
}

func cmdSetup(cmd *cobra.Command, args []string) (err error) {
	setupDir, err := filepath.Abs(confDir)
	if err != nil {
		return err
	}

	valid, _ := fpath.IsValidSetupDir(setupDir)
	if !valid {
		return fmt.Errorf("marketplace configuration already exists (%v)", setupDir)
	}

	err = os.MkdirAll(setupDir, 0700)
	if err != nil {
		return err
	}

	return process.SaveConfig(cmd, filepath.Join(setupDir, "config.yaml"))
}

func cmdRun(cmd *cobra.Command, args []string) (err error) {
	ctx, _ := process.Ctx(cmd)
	log := zap.L()

	return withPeer(cmd, func(peer *marketplace.Peer) error {
		if err := peer.DB.CheckVersion(ctx); err != nil {
			log.Error("failed database version check", zap.Error(err))
			return err
		}
		return peer.Run(ctx)
	})
}

func cmdMigrate(cmd *cobra.Command, args []string) (err error) {
	ctx, _ := process.Ctx(cmd)
	log := zap.L()

	db, err := marketplacedb.Open(ctx, log.Named("db"), runCfg.Database)
	if err != nil {
		return errs.New("error connecting to the marketplace database: %+v", err)
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	if err := db.MigrateToLatest(ctx); err != nil {
		return errs.New("error creating tables for the marketplace database: %+v", err)
	}
	log.Info("database migrated")
	return nil
}

// withPeer opens the database, storage and cache and runs fn with a peer.
func withPeer(cmd *cobra.Command, fn func(peer *marketplace.Peer) error) (err error) {
	ctx, _ := process.Ctx(cmd)
	log := zap.L()

	db, err := marketplacedb.Open(ctx, log.Named("db"), runCfg.Database)
	if err != nil {
		return errs.New("error connecting to the marketplace database: %+v", err)
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	public, private, err := marketplace.OpenStorage(runCfg.Storage)
	if err != nil {
		return errs.New("error opening storage: %+v", err)
	}

	cache, err := minifest.OpenCache(ctx, log.Named("minifest:cache"), runCfg.Minifest.Cache)
	if err != nil {
		return errs.New("error opening the mini-manifest cache: %+v", err)
	}

	peer, err := marketplace.New(log, db, public, private, cache, &runCfg.Config)
	if err != nil {
		return errs.Combine(err, cache.Close())
	}
	defer func() { err = errs.Combine(err, peer.Close()) }()

	return fn(peer)
}

func main() {
	logger, _, _ := process.NewLogger("marketplace")
	zap.ReplaceGlobals(logger)

	process.Exec(rootCmd)
}
