// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package marketplace wires the app submission pipeline into a single
// process.
package marketplace

import (
	"context"
	"runtime/pprof"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mozilla/marketplace/marketplace/activity"
	"github.com/mozilla/marketplace/marketplace/apps"
	"github.com/mozilla/marketplace/marketplace/developers"
	"github.com/mozilla/marketplace/marketplace/dumpapps"
	"github.com/mozilla/marketplace/marketplace/fetch"
	"github.com/mozilla/marketplace/marketplace/gc"
	"github.com/mozilla/marketplace/marketplace/guard"
	"github.com/mozilla/marketplace/marketplace/mail"
	"github.com/mozilla/marketplace/marketplace/manifestupdate"
	"github.com/mozilla/marketplace/marketplace/media"
	"github.com/mozilla/marketplace/marketplace/minifest"
	"github.com/mozilla/marketplace/marketplace/reviewers"
	"github.com/mozilla/marketplace/marketplace/signing"
	"github.com/mozilla/marketplace/marketplace/tasks"
	"github.com/mozilla/marketplace/marketplace/validation"
	"github.com/mozilla/marketplace/private/lifecycle"
	"github.com/mozilla/marketplace/storage"
	"github.com/mozilla/marketplace/storage/filestore"
	"github.com/mozilla/marketplace/storage/s3store"
)

var mon = monkit.Package()

// DB is the master database of the marketplace.
//
// architecture: Master Database
type DB interface {
	// MigrateToLatest creates or updates the schema.
	MigrateToLatest(ctx context.Context) error
	// CheckVersion fails when the schema is not up to date.
	CheckVersion(ctx context.Context) error
	// Close closes the database.
	Close() error

	// Apps returns the app records.
	Apps() apps.DB
	// Activity returns the activity log.
	Activity() activity.DB
	// Reviewers returns the review queues.
	Reviewers() reviewers.DB
	// Tasks returns the job queue.
	Tasks() tasks.DB
}

// StorageConfig selects where the storage tiers live. A tier uses its
// bucket when one is configured and the local directory otherwise.
type StorageConfig struct {
	PublicDir  string `help:"directory of the public storage tier" default:"$CONFDIR/storage/public"`
	PrivateDir string `help:"directory of the private storage tier" default:"$CONFDIR/storage/private"`
	Public     s3store.Config
	Private    s3store.Config
}

// Config is the global configuration of the marketplace.
type Config struct {
	Storage        StorageConfig
	Tasks          tasks.Config
	Apps           apps.Config
	Validation     validation.Config
	Fetch          fetch.Config
	Media          media.Config
	Signing        signing.Config
	Mail           mail.Config
	Developers     developers.Config
	ManifestUpdate manifestupdate.Config
	Minifest       minifest.Config
	Guard          guard.Config
	GC             gc.Config
}

// OpenTier opens one storage tier.
func OpenTier(dir string, bucket s3store.Config) (storage.Storage, error) {
	if bucket.Bucket != "" {
		store, err := s3store.New(bucket)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	store, err := filestore.NewAt(dir)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// OpenStorage opens the public and private storage tiers.
func OpenStorage(config StorageConfig) (public, private storage.Storage, err error) {
	public, err = OpenTier(config.PublicDir, config.Public)
	if err != nil {
		return nil, nil, err
	}
	private, err = OpenTier(config.PrivateDir, config.Private)
	if err != nil {
		return nil, nil, err
	}
	return public, private, nil
}

// Peer is the marketplace background process.
type Peer struct {
	Log *zap.Logger
	DB  DB

	Services *lifecycle.Group

	Storage struct {
		Public  storage.Storage
		Private storage.Storage
	}

	Activity  *activity.Service
	Reviewers *reviewers.Service
	Tasks     *tasks.Service
	Apps      *apps.Service
	Validator *validation.Validator
	Fetcher   *fetch.Fetcher
	Signer    *signing.Signer
	Media     *media.Service

	Mail struct {
		Sender  mail.Sender
		Service *mail.Service
	}

	Developers *developers.Service

	ManifestUpdate struct {
		Service *manifestupdate.Service
		Chore   *manifestupdate.Chore
	}

	Minifest *minifest.Service
	Guard    *guard.Chore
	GC       *gc.Chore
	Dumper   *dumpapps.Dumper
}

// New creates a new marketplace peer. cache keeps the mini-manifests.
func New(log *zap.Logger, db DB, public, private storage.Storage, cache minifest.Cache, config *Config) (_ *Peer, err error) {
	peer := &Peer{
		Log:      log,
		DB:       db,
		Services: lifecycle.NewGroup(log.Named("services")),
	}
	peer.Storage.Public = public
	peer.Storage.Private = private

	{ // setup activity log and review queues
		peer.Activity = activity.NewService(log.Named("activity"), db.Activity())
		peer.Reviewers = reviewers.NewService(log.Named("reviewers"), db.Reviewers(), peer.Activity)
	}

	{ // setup task worker
		peer.Tasks = tasks.NewService(log.Named("tasks"), db.Tasks(), config.Tasks)
		peer.Services.Add(lifecycle.Item{
			Name:  "tasks",
			Run:   peer.Tasks.Run,
			Close: peer.Tasks.Close,
		})
	}

	{ // setup mail
		peer.Mail.Sender, err = mail.NewSender(config.Mail)
		if err != nil {
			return nil, errs.Combine(err, peer.Close())
		}
		peer.Mail.Service, err = mail.New(log.Named("mail"), peer.Mail.Sender)
		if err != nil {
			return nil, errs.Combine(err, peer.Close())
		}
	}

	{ // setup apps
		peer.Apps = apps.NewService(log.Named("apps"), db.Apps(), public, private,
			peer.Activity, peer.Reviewers, peer.Mail.Service, peer.Tasks, config.Apps)

		peer.Signer = signing.NewSigner(log.Named("signing"), peer.Apps, config.Signing)
		peer.Apps.SetSigner(peer.Signer)
	}

	{ // setup validation and fetching
		peer.Validator, err = validation.NewValidator(log.Named("validation"), config.Validation)
		if err != nil {
			return nil, errs.Combine(err, peer.Close())
		}
		peer.Fetcher = fetch.NewFetcher(log.Named("fetch"), config.Fetch)
	}

	{ // setup icons and previews
		peer.Media = media.NewService(log.Named("media"), peer.Apps, peer.Fetcher, peer.Tasks, config.Media)
		peer.Apps.AddCreateListener(peer.Media)
	}

	{ // setup submission tasks
		peer.Developers = developers.NewService(log.Named("developers"),
			peer.Apps, peer.Validator, peer.Fetcher, peer.Mail.Service, peer.Tasks, config.Developers)
	}

	{ // setup manifest refresh
		peer.ManifestUpdate.Service = manifestupdate.NewService(log.Named("manifestupdate"),
			peer.Apps, peer.Reviewers, peer.Fetcher, peer.Developers, peer.Mail.Service, peer.Tasks,
			config.Mail, config.ManifestUpdate)
		peer.ManifestUpdate.Chore = manifestupdate.NewChore(log.Named("manifestupdate:chore"),
			peer.ManifestUpdate.Service, config.ManifestUpdate)
		peer.Services.Add(lifecycle.Item{
			Name:  "manifestupdate:chore",
			Run:   peer.ManifestUpdate.Chore.Run,
			Close: peer.ManifestUpdate.Chore.Close,
		})
	}

	{ // setup mini-manifests
		peer.Minifest = minifest.NewService(log.Named("minifest"), peer.Apps, cache, config.Minifest)
		peer.Apps.AddListener(peer.Minifest)
		peer.Services.Add(lifecycle.Item{
			Name:  "minifest",
			Close: peer.Minifest.Close,
		})
	}

	{ // setup chores
		peer.Guard = guard.NewChore(log.Named("guard"), peer.Apps, config.Guard)
		peer.Services.Add(lifecycle.Item{
			Name:  "guard",
			Run:   peer.Guard.Run,
			Close: peer.Guard.Close,
		})

		peer.GC = gc.NewChore(log.Named("gc"), peer.Apps, peer.Activity, config.GC)
		peer.Services.Add(lifecycle.Item{
			Name:  "gc",
			Run:   peer.GC.Run,
			Close: peer.GC.Close,
		})

		peer.Dumper = dumpapps.NewDumper(log.Named("dumpapps"), peer.Apps)
	}

	return peer, nil
}

// Run runs the task worker and the chores until ctx is canceled or one of
// them fails.
func (peer *Peer) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	group, ctx := errgroup.WithContext(ctx)
	peer.Log.Info("starting", zap.Strings("services", peer.Services.Names()))

	pprof.Do(ctx, pprof.Labels("subsystem", "marketplace"), func(ctx context.Context) {
		peer.Services.Run(ctx, group)

		pprof.Do(ctx, pprof.Labels("name", "subsystem-wait"), func(ctx context.Context) {
			err = group.Wait()
		})
	})
	return err
}

// Close closes all the resources.
func (peer *Peer) Close() error {
	return peer.Services.Close()
}
