// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package apps

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/mozilla/marketplace/marketplace/activity"
	"github.com/mozilla/marketplace/marketplace/manifest"
	"github.com/mozilla/marketplace/storage"
)

// NameChanges describes how the names of an app changed.
type NameChanges struct {
	Added   string
	Deleted string
	Updated string
}

// Any reports whether any name changed.
func (changes NameChanges) Any() bool {
	return changes.Added != "" || changes.Deleted != "" || changes.Updated != ""
}

// UpdateNames makes the translated names of an app match newNames. Locales
// are normalized to supported languages. Translations missing from
// newNames or set to an empty name are removed, except for the default
// locale.
func (service *Service) UpdateNames(ctx context.Context, app *Webapp, newNames map[string]string) (_ NameChanges, err error) {
	defer mon.Task()(&ctx)(&err)

	oldNames, err := service.Names(ctx, app.ID)
	if err != nil {
		return NameChanges{}, err
	}

	keys := make([]string, 0, len(newNames))
	for locale := range newNames {
		keys = append(keys, locale)
	}
	sort.Strings(keys)

	names := make(map[string]string, len(keys))
	for _, key := range keys {
		if lang := manifest.FindLanguage(key); lang != "" {
			if _, ok := names[lang]; !ok {
				names[lang] = newNames[key]
			}
		}
	}
	for locale := range oldNames {
		if _, ok := names[locale]; !ok {
			names[locale] = ""
		}
	}

	locales := make([]string, 0, len(names))
	for locale := range names {
		locales = append(locales, locale)
	}
	sort.Strings(locales)

	updated := make(map[string]string, len(oldNames))
	for locale, name := range oldNames {
		updated[locale] = name
	}

	var added, deleted, changed []string
	for _, locale := range locales {
		name := names[locale]
		oldName, exists := oldNames[locale]
		switch {
		case !exists && name != "":
			added = append(added, fmt.Sprintf("%q (%s).", name, locale))
			updated[locale] = name
		case exists && name == "":
			if strings.EqualFold(locale, app.DefaultLocale) {
				continue
			}
			deleted = append(deleted, fmt.Sprintf("%q (%s).", oldName, locale))
			delete(updated, locale)
		case exists && name != oldName:
			changed = append(changed, fmt.Sprintf("%q -> %q (%s).", oldName, name, locale))
			updated[locale] = name
		}
	}

	changes := NameChanges{
		Added:   strings.Join(added, " "),
		Deleted: strings.Join(deleted, " "),
		Updated: strings.Join(changed, " "),
	}
	if !changes.Any() {
		return changes, nil
	}

	if err := service.db.Webapps().SetNames(ctx, app.ID, updated); err != nil {
		return NameChanges{}, Error.Wrap(err)
	}
	if name, ok := updated[app.DefaultLocale]; ok && name != app.Name {
		app.Name = name
		if err := service.Save(ctx, app); err != nil {
			return NameChanges{}, err
		}
	}
	return changes, nil
}

// UpdateDefaultLocale changes the default locale of an app when locale is
// a supported language different from the current one.
func (service *Service) UpdateDefaultLocale(ctx context.Context, app *Webapp, locale string) (oldLocale, newLocale string, changed bool, err error) {
	defer mon.Task()(&ctx)(&err)

	lang := manifest.FindLanguage(locale)
	if lang == "" || lang == app.DefaultLocale {
		return app.DefaultLocale, app.DefaultLocale, false, nil
	}

	oldLocale = app.DefaultLocale
	app.DefaultLocale = lang
	if names, err := service.Names(ctx, app.ID); err == nil {
		if name, ok := names[lang]; ok && name != "" {
			app.Name = name
		}
	} else {
		return "", "", false, err
	}
	if err := service.Save(ctx, app); err != nil {
		return "", "", false, err
	}
	return oldLocale, lang, true, nil
}

// UpdateSupportedLocales refreshes the supported locales of the latest or
// current version from its manifest. A nil m reads the stored manifest.
// It reports whether the locales changed.
func (service *Service) UpdateSupportedLocales(ctx context.Context, app *Webapp, latest bool, m manifest.Manifest) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	var version *Version
	if latest {
		version, err = service.LatestVersion(ctx, app.ID)
	} else {
		version, err = service.CurrentVersion(ctx, app)
	}
	if err != nil || version == nil {
		return false, err
	}

	if m == nil {
		file, err := service.VersionFile(ctx, version.ID)
		if err != nil {
			return false, err
		}
		if file == nil {
			return false, nil
		}
		m, err = service.ManifestJSON(ctx, app, version.ID)
		if err != nil {
			return false, err
		}
	}

	supported := strings.Join(m.SupportedLocales(), ",")
	if supported == version.SupportedLocales {
		return false, nil
	}

	service.log.Info("updating supported locales",
		zap.Int64("app", app.ID),
		zap.Int64("version", version.ID),
		zap.String("from", version.SupportedLocales),
		zap.String("to", supported))
	version.SupportedLocales = supported
	version.ModifiedAt = service.now().UTC()
	return true, Error.Wrap(service.db.Versions().Update(ctx, version))
}

// UpdateNameFromPackageManifest refreshes the names of a packaged app from
// the manifest of its current version.
func (service *Service) UpdateNameFromPackageManifest(ctx context.Context, app *Webapp) (err error) {
	defer mon.Task()(&ctx)(&err)

	if !app.IsPackaged || app.CurrentVersionID == 0 {
		return nil
	}
	m, err := service.ManifestJSON(ctx, app, app.CurrentVersionID)
	if err != nil {
		return err
	}
	data, err := manifest.Parse(m, app.DefaultLocale)
	if err != nil {
		return Error.Wrap(err)
	}
	_, err = service.UpdateNames(ctx, app, data.Name)
	return err
}

// ManifestUpdated stores a refetched hosted manifest as the new content of
// the latest version of an app.
func (service *Service) ManifestUpdated(ctx context.Context, app *Webapp, upload *FileUpload) (err error) {
	defer mon.Task()(&ctx)(&err)

	data, err := service.parseUpload(ctx, upload, app)
	if err != nil {
		return err
	}

	version, err := service.LatestVersion(ctx, app.ID)
	if err != nil {
		return err
	}
	if version == nil {
		return ErrInvalid.New("app %d has no version", app.ID)
	}

	version.Version = data.Version
	version.VersionInt = VersionInt(data.Version)
	version.DeveloperName = truncate(data.DeveloperName, maxDeveloperName)
	version.ModifiedAt = service.now().UTC()
	if err := service.db.Versions().Update(ctx, version); err != nil {
		return Error.Wrap(err)
	}
	if err := service.db.Versions().SetManifest(ctx, version.ID, data.Manifest.JSON()); err != nil {
		return Error.Wrap(err)
	}

	file, err := service.VersionFile(ctx, version.ID)
	if err != nil {
		return err
	}
	if file == nil {
		return ErrInvalid.New("version %d has no file", version.ID)
	}

	upload.Path = manifest.NFD(upload.Path)
	updated := *file
	updated.Filename = GenerateFilename(app, version.Version, ".webapp")
	updated.Hash, updated.Size, err = hashStored(ctx, service.private, upload.Path)
	if err != nil {
		return Error.Wrap(err)
	}
	if err := service.saveFile(ctx, file, &updated); err != nil {
		return err
	}

	dst := FilePath(app.ID, &updated)
	service.log.Info("copying updated manifest", zap.String("src", upload.Path), zap.String("dst", dst))
	if err := storage.Copy(ctx, service.private, upload.Path, service.fileStorage(&updated), dst); err != nil {
		return Error.Wrap(err)
	}

	return Error.Wrap(service.activity.Log(ctx, activity.ManifestUpdated, app.ID, version.ID, ""))
}
