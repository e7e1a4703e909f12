// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package minifest builds the mini-manifests devices use to install
// packaged apps.
package minifest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/mozilla/marketplace/marketplace/apps"
	"github.com/mozilla/marketplace/storage"
)

var (
	mon = monkit.Package()

	// Error is the default minifest errs class.
	Error = errs.Class("minifest")
	// ErrNotPackaged is returned for hosted apps.
	ErrNotPackaged = errs.Class("not packaged")
)

// Config contains the mini-manifest settings.
type Config struct {
	SiteURL string `help:"public site url package paths are relative to" default:"https://marketplace.firefox.com"`
	Cache   CacheConfig
}

// Service builds and caches mini-manifests.
//
// architecture: Service
type Service struct {
	log    *zap.Logger
	apps   *apps.Service
	cache  Cache
	config Config
}

var _ apps.Listener = (*Service)(nil)

// NewService creates a new mini-manifest service.
func NewService(log *zap.Logger, appService *apps.Service, cache Cache, config Config) *Service {
	return &Service{
		log:    log,
		apps:   appService,
		cache:  cache,
		config: config,
	}
}

type miniManifest struct {
	Name         string      `json:"name"`
	Version      string      `json:"version"`
	Size         int64       `json:"size"`
	ReleaseNotes string      `json:"release_notes,omitempty"`
	PackagePath  string      `json:"package_path"`
	Developer    interface{} `json:"developer,omitempty"`
	Icons        interface{} `json:"icons,omitempty"`
	Locales      interface{} `json:"locales,omitempty"`
}

func cacheKey(appID int64) string {
	return fmt.Sprintf("1:webapp:%d:manifest", appID)
}

// Get returns the mini-manifest of the current version of a packaged app
// and its etag. force rebuilds the cached document.
func (service *Service) Get(ctx context.Context, app *apps.Webapp, force bool) (_ Entry, err error) {
	defer mon.Task()(&ctx)(&err)

	if !app.IsPackaged {
		return Entry{}, ErrNotPackaged.New("app %d", app.ID)
	}

	key := cacheKey(app.ID)
	if !force {
		entry, ok, err := service.cache.Get(ctx, key)
		if err != nil {
			service.log.Warn("mini-manifest cache lookup failed", zap.Int64("app", app.ID), zap.Error(err))
		} else if ok {
			mon.Counter("minifest_cache_hits").Inc(1)
			return entry, nil
		}
	}

	version, err := service.apps.CurrentVersion(ctx, app)
	if err != nil {
		return Entry{}, err
	}
	if version == nil {
		return Entry{}, apps.ErrNotFound.New("app %d has no current version", app.ID)
	}
	file, err := service.apps.VersionFile(ctx, version.ID)
	if err != nil {
		return Entry{}, err
	}
	if file == nil {
		return Entry{}, apps.ErrNotFound.New("version %d has no file", version.ID)
	}

	signed, err := service.apps.SignIfPackaged(ctx, app, version.ID, false)
	if err != nil {
		return Entry{}, err
	}
	packagePath := strings.TrimRight(service.config.SiteURL, "/") +
		fmt.Sprintf("/downloads/file/%d/%s", file.ID, file.Filename)

	entry, err := service.build(ctx, app, version, service.apps.Public(), signed, packagePath)
	if err != nil {
		return Entry{}, err
	}

	if err := service.cache.Set(ctx, key, entry); err != nil {
		service.log.Warn("mini-manifest cache update failed", zap.Int64("app", app.ID), zap.Error(err))
	}
	service.log.Info("updated cached mini manifest", zap.Int64("app", app.ID), zap.String("etag", entry.ETag))
	return entry, nil
}

// GetForReviewer returns the mini-manifest reviewers install a version
// with. The package is signed with the reviewer certificate and the
// result is never cached.
func (service *Service) GetForReviewer(ctx context.Context, app *apps.Webapp, versionID int64) (_ Entry, err error) {
	defer mon.Task()(&ctx)(&err)

	if !app.IsPackaged {
		return Entry{}, ErrNotPackaged.New("app %d", app.ID)
	}

	version, err := service.apps.GetVersion(ctx, versionID)
	if err != nil {
		return Entry{}, err
	}
	if version.AppID != app.ID {
		return Entry{}, apps.ErrNotFound.New("version %d of app %d", versionID, app.ID)
	}

	signed, err := service.apps.SignIfPackaged(ctx, app, version.ID, true)
	if err != nil {
		return Entry{}, err
	}
	packagePath := strings.TrimRight(service.config.SiteURL, "/") +
		fmt.Sprintf("/reviewers/signed/%d/%d", app.ID, version.ID)

	return service.build(ctx, app, version, service.apps.Private(), signed, packagePath)
}

func (service *Service) build(ctx context.Context, app *apps.Webapp, version *apps.Version, store storage.Storage, signed, packagePath string) (_ Entry, err error) {
	m, err := service.apps.ManifestJSON(ctx, app, version.ID)
	if err != nil {
		return Entry{}, err
	}
	info, err := store.Stat(ctx, signed)
	if err != nil {
		return Entry{}, Error.Wrap(err)
	}

	data, err := json.Marshal(miniManifest{
		Name:         m.String("name"),
		Version:      version.Version,
		Size:         info.Size,
		ReleaseNotes: version.ReleaseNotes,
		PackagePath:  packagePath,
		Developer:    m["developer"],
		Icons:        m["icons"],
		Locales:      m["locales"],
	})
	if err != nil {
		return Entry{}, Error.Wrap(err)
	}

	sum := sha256.Sum256(data)
	return Entry{Manifest: string(data), ETag: hex.EncodeToString(sum[:])}, nil
}

// Invalidate drops the cached mini-manifest of an app.
func (service *Service) Invalidate(ctx context.Context, appID int64) (err error) {
	defer mon.Task()(&ctx)(&err)
	return service.cache.Delete(ctx, cacheKey(appID))
}

// VersionChanged rebuilds the cached mini-manifest of a packaged app.
func (service *Service) VersionChanged(ctx context.Context, appID int64) {
	log := service.log.With(zap.Int64("app", appID))

	app, err := service.apps.Get(ctx, appID)
	if err != nil {
		log.Error("loading app failed", zap.Error(err))
		return
	}
	if !app.IsPackaged {
		return
	}

	if _, err := service.Get(ctx, app, true); err != nil {
		log.Warn("rebuilding mini manifest failed", zap.Error(err))
		if err := service.Invalidate(ctx, appID); err != nil {
			log.Error("invalidating mini manifest failed", zap.Error(err))
		}
	}
}

// Close releases the cache.
func (service *Service) Close() error {
	return service.cache.Close()
}
