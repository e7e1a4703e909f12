// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package apps

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/memory"

	"github.com/mozilla/marketplace/marketplace/activity"
	"github.com/mozilla/marketplace/marketplace/mail"
	"github.com/mozilla/marketplace/marketplace/manifest"
	"github.com/mozilla/marketplace/marketplace/reviewers"
	"github.com/mozilla/marketplace/marketplace/tasks"
	"github.com/mozilla/marketplace/storage"
)

var (
	mon = monkit.Package()

	// Error is the default apps errs class.
	Error = errs.Class("apps")
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errs.Class("not found")
	// ErrInvalid is returned when an operation does not apply to the app.
	ErrInvalid = errs.Class("invalid operation")
)

// TaskUpdateSupportedLocales is the job kind refreshing the supported
// locales of a version.
const TaskUpdateSupportedLocales = "update_supported_locales"

// maxDeveloperName is the longest stored developer name.
const maxDeveloperName = 255

// Config contains the app life cycle settings.
type Config struct {
	NFSLagDelay        time.Duration `help:"delay before reading files just written to shared storage" default:"3s" testDefault:"0s"`
	BlocklistedPackage string        `help:"private storage path of the package served for blocklisted apps" default:"blocklisted/blocklisted.zip"`
	UnzipLimit         memory.Size   `help:"maximum uncompressed size of a packaged app" default:"1GiB"`
	DeletionEmail      string        `help:"staff address notified about deleted apps" default:"marketplace-staff+deletions@mozilla.org"`
	SiteURL            string        `help:"public site url used in deletion notices" default:"https://marketplace.firefox.com"`
}

// Signer signs packaged app versions.
type Signer interface {
	// Sign signs the package of a version and returns the signed path.
	Sign(ctx context.Context, versionID int64, reviewer, resign bool) (string, error)
}

// Listener is notified about version changes of apps.
type Listener interface {
	// VersionChanged is called after the current version of an app changed.
	VersionChanged(ctx context.Context, appID int64)
}

// CreateListener is notified about new apps.
type CreateListener interface {
	// AppCreated is called after an app and its first file were stored.
	AppCreated(ctx context.Context, app *Webapp, file *File)
}

// Service implements the app, version and file life cycle.
//
// architecture: Service
type Service struct {
	log       *zap.Logger
	db        DB
	public    storage.Storage
	private   storage.Storage
	activity  *activity.Service
	reviewers *reviewers.Service
	mail      *mail.Service
	tasks     *tasks.Service
	config    Config

	signer          Signer
	listeners       []Listener
	createListeners []CreateListener
	now             func() time.Time
}

// NewService creates a new app service and registers its tasks.
func NewService(log *zap.Logger, db DB, public, private storage.Storage, activity *activity.Service, reviewers *reviewers.Service, mailer *mail.Service, queue *tasks.Service, config Config) *Service {
	service := &Service{
		log:       log,
		db:        db,
		public:    public,
		private:   private,
		activity:  activity,
		reviewers: reviewers,
		mail:      mailer,
		tasks:     queue,
		config:    config,
		now:       time.Now,
	}
	queue.Register(TaskUpdateSupportedLocales, service.handleUpdateSupportedLocales)
	queue.Register(TaskDeletePreviewFiles, service.handleDeletePreviewFiles)
	return service
}

// SetSigner sets the signer used for packaged apps.
func (service *Service) SetSigner(signer Signer) { service.signer = signer }

// AddListener registers a version change listener.
func (service *Service) AddListener(listener Listener) {
	service.listeners = append(service.listeners, listener)
}

// AddCreateListener registers a listener for new apps.
func (service *Service) AddCreateListener(listener CreateListener) {
	service.createListeners = append(service.createListeners, listener)
}

// SetNow replaces the clock.
func (service *Service) SetNow(now func() time.Time) { service.now = now }

// DB returns the app records.
func (service *Service) DB() DB { return service.db }

// Public returns the public storage tier.
func (service *Service) Public() storage.Storage { return service.public }

// Private returns the private storage tier.
func (service *Service) Private() storage.Storage { return service.private }

// Get returns an app.
func (service *Service) Get(ctx context.Context, id int64) (_ *Webapp, err error) {
	defer mon.Task()(&ctx)(&err)
	return service.db.Webapps().Get(ctx, id)
}

// GetVersion returns a version.
func (service *Service) GetVersion(ctx context.Context, id int64) (_ *Version, err error) {
	defer mon.Task()(&ctx)(&err)
	return service.db.Versions().Get(ctx, id)
}

// GetFile returns a file.
func (service *Service) GetFile(ctx context.Context, id int64) (_ *File, err error) {
	defer mon.Task()(&ctx)(&err)
	return service.db.Files().Get(ctx, id)
}

// Versions returns the non-deleted versions of an app, latest first.
func (service *Service) Versions(ctx context.Context, appID int64) (_ []*Version, err error) {
	defer mon.Task()(&ctx)(&err)
	return service.db.Versions().ListForApp(ctx, appID, false)
}

// LatestVersion returns the newest non-deleted version of an app or nil.
func (service *Service) LatestVersion(ctx context.Context, appID int64) (_ *Version, err error) {
	defer mon.Task()(&ctx)(&err)
	versions, err := service.Versions(ctx, appID)
	if err != nil || len(versions) == 0 {
		return nil, err
	}
	return versions[0], nil
}

// CurrentVersion returns the current version of an app or nil. Deleted
// apps have no current version.
func (service *Service) CurrentVersion(ctx context.Context, app *Webapp) (_ *Version, err error) {
	defer mon.Task()(&ctx)(&err)
	if app.IsDeleted() || app.CurrentVersionID == 0 {
		return nil, nil
	}
	return service.db.Versions().Get(ctx, app.CurrentVersionID)
}

// VersionFile returns the latest file of a version or nil.
func (service *Service) VersionFile(ctx context.Context, versionID int64) (_ *File, err error) {
	defer mon.Task()(&ctx)(&err)
	files, err := service.db.Files().ListForVersion(ctx, versionID)
	if err != nil || len(files) == 0 {
		return nil, err
	}
	return files[0], nil
}

// Names returns the translated names of an app.
func (service *Service) Names(ctx context.Context, appID int64) (_ map[string]string, err error) {
	defer mon.Task()(&ctx)(&err)
	return service.db.Webapps().Names(ctx, appID)
}

// Authors returns the developer addresses of an app.
func (service *Service) Authors(ctx context.Context, appID int64) (_ []string, err error) {
	defer mon.Task()(&ctx)(&err)
	return service.db.Webapps().Authors(ctx, appID)
}

// VersionManifest returns the manifest stored for a version.
func (service *Service) VersionManifest(ctx context.Context, versionID int64) (_ manifest.Manifest, err error) {
	defer mon.Task()(&ctx)(&err)
	raw, err := service.db.Versions().Manifest(ctx, versionID)
	if err != nil {
		return nil, err
	}
	m, err := manifest.Decode([]byte(raw))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return m, nil
}

// ManifestJSON returns the manifest of the latest file of an app, or of
// the given version. Apps without files return an empty manifest.
func (service *Service) ManifestJSON(ctx context.Context, app *Webapp, versionID int64) (_ manifest.Manifest, err error) {
	defer mon.Task()(&ctx)(&err)

	if versionID == 0 {
		latest, err := service.LatestVersion(ctx, app.ID)
		if err != nil {
			return nil, err
		}
		if latest == nil {
			return manifest.Manifest{}, nil
		}
		versionID = latest.ID
	}

	m, err := service.VersionManifest(ctx, versionID)
	if err == nil {
		return m, nil
	}
	if !ErrNotFound.Has(err) {
		return nil, err
	}

	file, err := service.VersionFile(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return manifest.Manifest{}, nil
	}
	service.log.Info("loading manifest from storage", zap.Int64("app", app.ID), zap.Int64("file", file.ID))
	return service.readManifest(ctx, service.fileStorage(file), FilePath(app.ID, file))
}

func (service *Service) readManifest(ctx context.Context, store storage.Storage, path string) (_ manifest.Manifest, err error) {
	defer mon.Task()(&ctx)(&err)

	r, err := store.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() { err = errs.Combine(err, r.Close()) }()

	m, _, err := manifest.Load(r, r.Size(), service.config.UnzipLimit.Int64())
	return m, err
}

func (service *Service) notifyVersionChanged(ctx context.Context, appID int64) {
	for _, listener := range service.listeners {
		listener.VersionChanged(ctx, appID)
	}
}

type supportedLocalesPayload struct {
	AppID  int64 `json:"app_id"`
	Latest bool  `json:"latest"`
}

func (service *Service) handleUpdateSupportedLocales(ctx context.Context, payload []byte) error {
	var args supportedLocalesPayload
	if err := json.Unmarshal(payload, &args); err != nil {
		return Error.Wrap(err)
	}
	app, err := service.Get(ctx, args.AppID)
	if err != nil {
		return err
	}
	_, err = service.UpdateSupportedLocales(ctx, app, args.Latest, nil)
	return err
}
