// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package apps

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"storj.io/common/uuid"

	"github.com/mozilla/marketplace/marketplace/activity"
	"github.com/mozilla/marketplace/marketplace/mail"
	"github.com/mozilla/marketplace/marketplace/manifest"
	"github.com/mozilla/marketplace/marketplace/regions"
	"github.com/mozilla/marketplace/marketplace/status"
	"github.com/mozilla/marketplace/storage"
)

// DomainFromURL returns the lowercase scheme and host of rawURL.
func DomainFromURL(rawURL string) (string, error) {
	if rawURL == "" {
		return "", ErrInvalid.New("URL was empty")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", ErrInvalid.Wrap(err)
	}
	return parsed.Scheme + "://" + strings.ToLower(parsed.Host), nil
}

// CreateFromUpload creates a new app with its first version from a
// validated upload.
func (service *Service) CreateFromUpload(ctx context.Context, upload *FileUpload, packaged bool, authors ...string) (_ *Webapp, err error) {
	defer mon.Task()(&ctx)(&err)

	data, err := service.parseUpload(ctx, upload, nil)
	if err != nil {
		return nil, err
	}

	guid, err := uuid.New()
	if err != nil {
		return nil, Error.Wrap(err)
	}

	now := service.now().UTC()
	app := &Webapp{
		GUID:             guid,
		Status:           status.Null,
		HighestStatus:    status.Null,
		IsPackaged:       packaged,
		DefaultLocale:    manifest.DefaultLanguage,
		EnableNewRegions: true,
		CreatedAt:        now,
		ModifiedAt:       now,
	}
	if manifest.FindLanguage(data.DefaultLocale) == data.DefaultLocale && data.DefaultLocale != "" {
		app.DefaultLocale = data.DefaultLocale
	}
	app.Name = data.Name[data.DefaultLocale]
	app.Slug = manifest.Slugify(app.Name)

	if packaged {
		app.AppDomain = data.Origin
	} else {
		app.ManifestURL = upload.Name
		app.AppDomain, err = DomainFromURL(upload.Name)
		if err != nil {
			return nil, err
		}
	}

	app.ID, err = service.db.Webapps().Insert(ctx, app)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	names := map[string]string{}
	for locale, name := range data.Name {
		if lang := manifest.FindLanguage(locale); lang != "" && name != "" {
			names[lang] = name
		}
	}
	if app.Name != "" {
		names[app.DefaultLocale] = app.Name
	}
	if err := service.db.Webapps().SetNames(ctx, app.ID, names); err != nil {
		return nil, Error.Wrap(err)
	}
	for _, author := range authors {
		if err := service.db.Webapps().AddAuthor(ctx, app.ID, author); err != nil {
			return nil, Error.Wrap(err)
		}
	}

	version, err := service.VersionFromUpload(ctx, upload, app)
	if err != nil {
		return nil, err
	}

	if err := service.activity.Log(ctx, activity.CreateApp, app.ID, 0, ""); err != nil {
		return nil, Error.Wrap(err)
	}
	service.log.Debug("new app", zap.Int64("app", app.ID), zap.Stringer("upload", upload.UUID))

	created, err := service.Get(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	if len(service.createListeners) > 0 {
		file, err := service.VersionFile(ctx, version.ID)
		if err != nil {
			return nil, err
		}
		for _, listener := range service.createListeners {
			listener.AppCreated(ctx, created, file)
		}
	}
	return service.Get(ctx, app.ID)
}

// Save stores the changed fields of an app and applies the side effects
// of status and disabled changes.
func (service *Service) Save(ctx context.Context, app *Webapp) (err error) {
	defer mon.Task()(&ctx)(&err)

	old, err := service.Get(ctx, app.ID)
	if err != nil {
		return err
	}
	return service.saveApp(ctx, old, app)
}

func (service *Service) saveApp(ctx context.Context, old, app *Webapp) error {
	if old.Status != app.Status && !status.ExcludedSet.Contains(app.Status) && app.Status != status.Blocked {
		app.HighestStatus = app.Status
	}
	app.ModifiedAt = service.now().UTC()
	if err := service.db.Webapps().Update(ctx, app); err != nil {
		return Error.Wrap(err)
	}

	if err := service.watchStatus(ctx, old, app); err != nil {
		return err
	}
	return service.watchDisabled(ctx, old, app)
}

func (service *Service) watchStatus(ctx context.Context, old, app *Webapp) error {
	if old.Status == app.Status {
		return nil
	}
	service.log.Info("status changed",
		zap.Int64("app", app.ID),
		zap.Stringer("from", old.Status),
		zap.Stringer("to", app.Status))

	if app.Status != status.Pending {
		return nil
	}
	latest, err := service.LatestVersion(ctx, app.ID)
	if err != nil {
		return err
	}
	if latest == nil {
		service.log.Debug("missing version, no nomination set", zap.Int64("app", app.ID))
		return nil
	}
	now := service.now().UTC()
	latest.Nomination = &now
	return Error.Wrap(service.db.Versions().Update(ctx, latest))
}

func (service *Service) watchDisabled(ctx context.Context, old, app *Webapp) error {
	wasDisabled, isDisabled := old.IsDisabled(), app.IsDisabled()
	if wasDisabled == isDisabled {
		return nil
	}

	versions, err := service.Versions(ctx, app.ID)
	if err != nil {
		return err
	}
	for _, version := range versions {
		files, err := service.db.Files().ListForVersion(ctx, version.ID)
		if err != nil {
			return Error.Wrap(err)
		}
		for _, file := range files {
			if isDisabled {
				err = service.HideDisabledFile(ctx, app.ID, file)
			} else {
				err = service.UnhideDisabledFile(ctx, app.ID, file)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// SetStatus changes the status of an app.
func (service *Service) SetStatus(ctx context.Context, app *Webapp, newStatus status.Status) (err error) {
	defer mon.Task()(&ctx)(&err)
	app.Status = newStatus
	return service.Save(ctx, app)
}

// SetDisabledByUser changes whether the developer disabled the app.
func (service *Service) SetDisabledByUser(ctx context.Context, app *Webapp, disabled bool) (err error) {
	defer mon.Task()(&ctx)(&err)
	app.DisabledByUser = disabled
	return service.Save(ctx, app)
}

// UpdateStatus recomputes the status of an app from the statuses of its
// files.
func (service *Service) UpdateStatus(ctx context.Context, app *Webapp) (err error) {
	defer mon.Task()(&ctx)(&err)

	if app.IsDeleted() || app.Status == status.Blocked {
		return nil
	}

	change := func(to status.Status, reason string) error {
		old := *app
		app.Status = to
		service.log.Info("update app status",
			zap.Int64("app", app.ID),
			zap.Stringer("from", old.Status),
			zap.Stringer("to", to),
			zap.String("reason", reason))
		if err := service.saveApp(ctx, &old, app); err != nil {
			return err
		}
		return Error.Wrap(service.activity.Log(ctx, activity.ChangeStatus, app.ID, 0, to.String()))
	}

	versions, err := service.Versions(ctx, app.ID)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		return change(status.Null, "no versions")
	}

	var hasFiles, hasPublic, hasApproved, hasPending bool
	for _, version := range versions {
		files, err := service.db.Files().ListForVersion(ctx, version.ID)
		if err != nil {
			return Error.Wrap(err)
		}
		for _, file := range files {
			hasFiles = true
			switch file.Status {
			case status.Public:
				hasPublic = true
			case status.Approved:
				hasApproved = true
			case status.Pending:
				hasPending = true
			}
		}
	}
	if !hasFiles {
		return change(status.Null, "no versions with files")
	}

	if !app.IsFullyComplete() {
		return nil
	}

	if !hasPublic && hasApproved {
		return change(status.Approved, "has approved but no public files")
	}
	if !hasPublic && hasPending && app.Status != status.Pending {
		return change(status.Pending, "has pending but no public files")
	}
	return nil
}

// PublicVersion returns the newest version whose files are all public.
// Apps that are not approved have none.
func (service *Service) PublicVersion(ctx context.Context, app *Webapp) (_ *Version, err error) {
	defer mon.Task()(&ctx)(&err)

	if !app.IsApproved() {
		return nil, nil
	}
	versions, err := service.Versions(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	for _, version := range versions {
		public, err := service.allFilesHave(ctx, version.ID, status.Public)
		if err != nil {
			return nil, err
		}
		if public {
			return version, nil
		}
	}
	return nil, nil
}

// UpdateVersion recomputes the current and latest versions of an app.
// ignore is a version being deleted that must not be used. It reports
// whether anything changed.
func (service *Service) UpdateVersion(ctx context.Context, app *Webapp, ignore int64) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	current, err := service.PublicVersion(ctx, app)
	if err != nil {
		return false, err
	}
	var currentID int64
	if current != nil {
		currentID = current.ID
	}

	versions, err := service.Versions(ctx, app.ID)
	if err != nil {
		return false, err
	}
	var latestID int64
	for _, version := range versions {
		if version.ID != ignore {
			latestID = version.ID
			break
		}
	}

	changed, currentChanged := false, false
	if app.CurrentVersionID != currentID && (ignore == 0 || currentID != ignore) {
		service.log.Info("current version changed",
			zap.Int64("app", app.ID),
			zap.Int64("from", app.CurrentVersionID),
			zap.Int64("to", currentID))
		app.CurrentVersionID = currentID
		changed, currentChanged = true, true
	}
	if app.LatestVersionID != latestID {
		app.LatestVersionID = latestID
		changed = true
	}
	if !changed {
		return false, nil
	}

	app.ModifiedAt = service.now().UTC()
	if err := service.db.Webapps().Update(ctx, app); err != nil {
		service.log.Error("could not save version changes", zap.Int64("app", app.ID), zap.Error(err))
		return false, Error.Wrap(err)
	}
	if currentChanged {
		service.notifyVersionChanged(ctx, app.ID)
	}
	return true, nil
}

// DeleteOptions describes who deleted an app and why.
type DeleteOptions struct {
	By     string
	Notes  string
	Reason string
}

// Delete marks an app deleted and removes it from the review queues.
// Staff are notified by email and the preview images are removed in the
// background.
func (service *Service) Delete(ctx context.Context, app *Webapp, opts DeleteOptions) (err error) {
	defer mon.Task()(&ctx)(&err)

	if app.IsDeleted() {
		return nil
	}
	service.log.Debug("deleting app", zap.Int64("app", app.ID))

	old, err := service.Get(ctx, app.ID)
	if err != nil {
		return err
	}
	authors, err := service.Authors(ctx, app.ID)
	if err != nil {
		return err
	}
	notice := &mail.AppDeleted{
		ID:        app.ID,
		GUID:      app.GUID.String(),
		Slug:      app.Slug,
		App:       app.Name,
		URL:       strings.TrimSuffix(service.config.SiteURL, "/") + "/app/" + app.Slug + "/",
		DeletedBy: opts.By,
		Authors:   authors,
		Notes:     opts.Notes,
		Reason:    opts.Reason,
	}

	app.Status = status.Deleted
	app.Slug = strconv.FormatInt(app.ID, 10)
	app.AppDomain = ""
	app.CurrentVersionID = 0
	if err := service.saveApp(ctx, old, app); err != nil {
		return err
	}
	if err := service.reviewers.RemoveApp(ctx, app.ID); err != nil {
		return Error.Wrap(err)
	}

	if service.config.DeletionEmail != "" {
		if err := service.mail.SendRendered(ctx, []string{service.config.DeletionEmail}, notice); err != nil {
			service.log.Warn("deletion notice not sent", zap.Int64("app", app.ID), zap.Error(err))
		}
	}
	return service.queueDeletePreviewFiles(ctx, app.ID)
}

// Undelete restores a deleted app to its highest status.
func (service *Service) Undelete(ctx context.Context, app *Webapp) (err error) {
	defer mon.Task()(&ctx)(&err)

	if !app.IsDeleted() {
		return nil
	}
	app.Status = app.HighestStatus
	if app.Slug == strconv.FormatInt(app.ID, 10) && app.Name != "" {
		app.Slug = manifest.Slugify(app.Name)
	}
	return service.Save(ctx, app)
}

// RegionIDs returns the regions an app is listed in.
func (service *Service) RegionIDs(ctx context.Context, app *Webapp, restOfWorld bool) (_ []int, err error) {
	defer mon.Task()(&ctx)(&err)

	excluded, err := service.db.Webapps().ExcludedRegions(ctx, app.ID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	skip := map[int]bool{}
	for _, id := range excluded {
		skip[id] = true
	}

	var ids []int
	for _, id := range regions.IDs(restOfWorld) {
		if !skip[id] {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

// ExcludeRegion excludes an app from a region. It reports whether the
// exclusion is new.
func (service *Service) ExcludeRegion(ctx context.Context, app *Webapp, region int) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)
	if _, ok := regions.ByID(region); !ok {
		return false, ErrInvalid.New("unknown region %d", region)
	}
	created, err := service.db.Webapps().ExcludeRegion(ctx, app.ID, region)
	return created, Error.Wrap(err)
}

// IsPremiumTypeUpgrade reports whether moving the app to premiumType
// needs a new review.
func (app *Webapp) IsPremiumTypeUpgrade(premiumType PremiumType) bool {
	switch app.PremiumType {
	case Free:
		return premiumType != Free && premiumType >= Free && premiumType <= OtherInApp
	case FreeInApp:
		return premiumType == Premium || premiumType == PremiumInApp || premiumType == OtherInApp
	}
	return false
}

// SignIfPackaged signs a version of a packaged app. A zero versionID
// signs the current version. Hosted apps return an empty path.
func (service *Service) SignIfPackaged(ctx context.Context, app *Webapp, versionID int64, reviewer bool) (_ string, err error) {
	defer mon.Task()(&ctx)(&err)

	if !app.IsPackaged {
		return "", nil
	}
	if versionID == 0 {
		versionID = app.CurrentVersionID
	}
	if versionID == 0 {
		return "", ErrInvalid.New("app %d has no current version", app.ID)
	}
	if service.signer == nil {
		return "", ErrInvalid.New("no signer configured")
	}
	return service.signer.Sign(ctx, versionID, reviewer, false)
}

// CreateBlocklistedVersion replaces a packaged app with the blocklisted
// package and blocks it.
func (service *Service) CreateBlocklistedVersion(ctx context.Context, app *Webapp) (_ *Version, err error) {
	defer mon.Task()(&ctx)(&err)

	if !app.IsPackaged {
		return nil, ErrInvalid.New("only packaged apps can be blocklisted")
	}

	version := &Version{AppID: app.ID, Version: "blocklisted"}
	if err := service.createVersion(ctx, version); err != nil {
		return nil, err
	}

	now := service.now().UTC()
	file := &File{
		VersionID:  version.ID,
		Filename:   GenerateFilename(app, version.Version, ""),
		Status:     status.Blocked,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	dst := FilePath(app.ID, file)
	if err := storage.Copy(ctx, service.private, service.config.BlocklistedPackage, service.fileStorage(file), dst); err != nil {
		return nil, Error.Wrap(err)
	}
	service.log.Info("copied blocklisted app", zap.Int64("app", app.ID), zap.String("path", dst))

	file.Hash, file.Size, err = hashStored(ctx, service.fileStorage(file), dst)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	file.ID, err = service.db.Files().Insert(ctx, file)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	m, err := service.readManifest(ctx, service.fileStorage(file), dst)
	if err != nil {
		return nil, err
	}
	if err := service.db.Versions().SetManifest(ctx, version.ID, m.JSON()); err != nil {
		return nil, Error.Wrap(err)
	}

	if _, err := service.SignIfPackaged(ctx, app, version.ID, false); err != nil {
		return nil, err
	}

	old, err := service.Get(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	app.Status = status.Blocked
	app.CurrentVersionID = version.ID
	app.LatestVersionID = version.ID
	if err := service.saveApp(ctx, old, app); err != nil {
		return nil, err
	}
	service.notifyVersionChanged(ctx, app.ID)
	return version, nil
}
