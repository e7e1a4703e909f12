// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package apps

import (
	"context"
	"sort"
	"strconv"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/mozilla/marketplace/marketplace/activity"
	"github.com/mozilla/marketplace/marketplace/manifest"
	"github.com/mozilla/marketplace/marketplace/status"
	"github.com/mozilla/marketplace/marketplace/tasks"
)

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// createVersion stores a new version together with its empty feature
// profile.
func (service *Service) createVersion(ctx context.Context, version *Version) (err error) {
	now := service.now().UTC()
	version.CreatedAt = now
	version.ModifiedAt = now
	version.VersionInt = VersionInt(version.Version)

	version.ID, err = service.db.Versions().Insert(ctx, version)
	if err != nil {
		return Error.Wrap(err)
	}
	return Error.Wrap(service.db.Versions().SetFeatures(ctx, version.ID, Features{}))
}

// parseUpload reads and parses the manifest of an upload.
func (service *Service) parseUpload(ctx context.Context, upload *FileUpload, app *Webapp) (_ *manifest.Data, err error) {
	m, err := service.readManifest(ctx, service.private, upload.Path)
	if err != nil {
		return nil, err
	}
	fallback := manifest.DefaultLanguage
	if app != nil && app.DefaultLocale != "" {
		fallback = app.DefaultLocale
	}
	return manifest.Parse(m, fallback)
}

// VersionFromUpload creates a new version of app from a validated upload.
func (service *Service) VersionFromUpload(ctx context.Context, upload *FileUpload, app *Webapp) (_ *Version, err error) {
	defer mon.Task()(&ctx)(&err)

	data, err := service.parseUpload(ctx, upload, app)
	if err != nil {
		return nil, err
	}

	version := &Version{
		AppID:         app.ID,
		Version:       data.Version,
		DeveloperName: truncate(data.DeveloperName, maxDeveloperName),
	}
	if err := service.createVersion(ctx, version); err != nil {
		return nil, err
	}
	service.log.Info("new version", zap.Int64("app", app.ID), zap.Int64("version", version.ID), zap.String("number", version.Version))

	if err := service.db.Versions().SetManifest(ctx, version.ID, data.Manifest.JSON()); err != nil {
		return nil, Error.Wrap(err)
	}

	if _, err := service.FileFromUpload(ctx, upload, app, version); err != nil {
		return nil, err
	}

	_, err = service.tasks.Enqueue(ctx, TaskUpdateSupportedLocales,
		supportedLocalesPayload{AppID: app.ID, Latest: true},
		tasks.Options{Delay: service.config.NFSLagDelay})
	if err != nil {
		return nil, Error.Wrap(err)
	}

	// the previous pending version has to be seen before it is disabled
	if err := service.InheritNomination(ctx, app, version); err != nil {
		return nil, err
	}
	if err := service.DisableOldFiles(ctx, version); err != nil {
		return nil, err
	}

	if err := service.private.Delete(ctx, upload.Path); err != nil {
		return nil, Error.Wrap(err)
	}

	if app.IsPackaged && app.Status == status.Blocked {
		err := service.reviewers.Escalate(ctx, app.ID, version.ID, activity.EscalateBlocklisted, "")
		if err != nil {
			return nil, Error.Wrap(err)
		}
	}
	return version, nil
}

// DisableOldFiles disables the pending files of older versions.
func (service *Service) DisableOldFiles(ctx context.Context, version *Version) (err error) {
	defer mon.Task()(&ctx)(&err)

	versions, err := service.db.Versions().ListForApp(ctx, version.AppID, false)
	if err != nil {
		return Error.Wrap(err)
	}
	for _, old := range versions {
		if old.ID >= version.ID {
			continue
		}
		files, err := service.db.Files().ListForVersion(ctx, old.ID)
		if err != nil {
			return Error.Wrap(err)
		}
		for _, file := range files {
			if file.Status != status.Pending {
				continue
			}
			if err := service.SetFileStatus(ctx, file, status.Disabled); err != nil {
				return err
			}
		}
	}
	return nil
}

// DeleteVersion soft deletes a version and hides its file.
func (service *Service) DeleteVersion(ctx context.Context, version *Version) (err error) {
	defer mon.Task()(&ctx)(&err)

	app, err := service.Get(ctx, version.AppID)
	if err != nil {
		return err
	}
	service.log.Info("version deleted", zap.Int64("app", app.ID), zap.Int64("version", version.ID))

	if err := service.activity.Log(ctx, activity.DeleteVersion, app.ID, version.ID, version.Version); err != nil {
		return Error.Wrap(err)
	}

	version.Deleted = true
	version.ModifiedAt = service.now().UTC()
	if err := service.db.Versions().Update(ctx, version); err != nil {
		return Error.Wrap(err)
	}

	file, err := service.VersionFile(ctx, version.ID)
	if err != nil {
		return err
	}
	if file == nil {
		return nil
	}

	file.Status = status.Disabled
	file.ModifiedAt = service.now().UTC()
	if err := service.db.Files().Update(ctx, file); err != nil {
		return Error.Wrap(err)
	}
	if err := service.HideDisabledFile(ctx, app.ID, file); err != nil {
		return err
	}

	if app.IsPackaged {
		signed := SignedPath(app.ID, file.Filename)
		reviewer := SignedReviewerPath(app.ID, file.Filename)
		service.log.Info("unlinking signed files", zap.String("signed", signed), zap.String("reviewer", reviewer))
		if err := errs.Combine(service.public.Delete(ctx, signed), service.private.Delete(ctx, reviewer)); err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}

// IsVersionPublic reports whether a version is served to users: it is
// not deleted, its app is public and all of its files are public.
func (service *Service) IsVersionPublic(ctx context.Context, version *Version) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	if version.Deleted {
		return false, nil
	}
	app, err := service.Get(ctx, version.AppID)
	if err != nil {
		return false, err
	}
	if !app.IsPublic() {
		return false, nil
	}
	return service.allFilesHave(ctx, version.ID, status.Public)
}

func (service *Service) allFilesHave(ctx context.Context, versionID int64, want status.Status) (bool, error) {
	files, err := service.db.Files().ListForVersion(ctx, versionID)
	if err != nil {
		return false, Error.Wrap(err)
	}
	if len(files) == 0 {
		return false, nil
	}
	for _, file := range files {
		if file.Status != want {
			return false, nil
		}
	}
	return true, nil
}

// IsPrivileged reports whether a version of a packaged app declares the
// privileged type.
func (service *Service) IsPrivileged(ctx context.Context, app *Webapp, version *Version) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	if !app.IsPackaged {
		return false, nil
	}
	file, err := service.VersionFile(ctx, version.ID)
	if err != nil || file == nil {
		return false, err
	}
	m, err := service.ManifestJSON(ctx, app, version.ID)
	if err != nil {
		return false, err
	}
	return m.String("type") == "privileged", nil
}

// InheritNomination gives a new version of a packaged app the nomination
// date of a still pending previous version, or the current time when the
// app is already approved.
func (service *Service) InheritNomination(ctx context.Context, app *Webapp, version *Version) (err error) {
	defer mon.Task()(&ctx)(&err)

	if !app.IsPackaged {
		return nil
	}

	versions, err := service.db.Versions().ListForApp(ctx, app.ID, false)
	if err != nil {
		return Error.Wrap(err)
	}
	others := versions[:0:0]
	for _, other := range versions {
		if other.ID != version.ID {
			others = append(others, other)
		}
	}
	sort.SliceStable(others, func(i, k int) bool {
		a, b := others[i].Nomination, others[k].Nomination
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.After(*b)
	})

	if len(others) > 0 {
		file, err := service.VersionFile(ctx, others[0].ID)
		if err != nil {
			return err
		}
		if file != nil && file.Status == status.Pending {
			service.log.Debug("inheriting nomination from prior pending version", zap.Int64("app", app.ID))
			version.Nomination = others[0].Nomination
			return Error.Wrap(service.db.Versions().Update(ctx, version))
		}
	}

	if app.IsApproved() && version.Nomination == nil {
		service.log.Debug("setting nomination date to now for new version", zap.Int64("app", app.ID))
		now := service.now().UTC()
		version.Nomination = &now
		return Error.Wrap(service.db.Versions().Update(ctx, version))
	}
	return nil
}

// String formats a version for logs.
func (version *Version) String() string {
	return version.Version + " (" + strconv.FormatInt(version.ID, 10) + ")"
}
