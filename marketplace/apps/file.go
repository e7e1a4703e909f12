// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package apps

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"path"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/mozilla/marketplace/marketplace/manifest"
	"github.com/mozilla/marketplace/marketplace/status"
	"github.com/mozilla/marketplace/marketplace/validation"
	"github.com/mozilla/marketplace/storage"
)

// GenerateHash returns the "sha256:<hex>" digest of everything in r.
func GenerateHash(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", Error.Wrap(err)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}

// hashStored returns the digest and size of a stored file.
func hashStored(ctx context.Context, store storage.Storage, path string) (hash string, size int64, err error) {
	r, err := store.Open(ctx, path)
	if err != nil {
		return "", 0, err
	}
	defer func() { err = errs.Combine(err, r.Close()) }()

	hash, err = GenerateHash(r)
	return hash, r.Size(), err
}

// fileStorage returns the tier a file lives on given its status.
func (service *Service) fileStorage(file *File) storage.Storage {
	if file.Status == status.Disabled {
		return service.private
	}
	return service.public
}

// OpenFile opens the stored package of a file.
func (service *Service) OpenFile(ctx context.Context, appID int64, file *File) (_ storage.Reader, err error) {
	defer mon.Task()(&ctx)(&err)
	return service.fileStorage(file).Open(ctx, FilePath(appID, file))
}

// ExtractFile returns the named entry of the package of a packaged app
// file. Missing entries fail with manifest.ErrNotInArchive.
func (service *Service) ExtractFile(ctx context.Context, appID int64, file *File, name string) (_ []byte, err error) {
	defer mon.Task()(&ctx)(&err)

	r, err := service.OpenFile(ctx, appID, file)
	if err != nil {
		return nil, err
	}
	defer func() { err = errs.Combine(err, r.Close()) }()

	archive, err := manifest.OpenZip(r, r.Size(), service.config.UnzipLimit.Int64())
	if err != nil {
		return nil, err
	}
	return archive.Extract(name)
}

func (service *Service) moveIfExists(ctx context.Context, src storage.Storage, srcPath string, dst storage.Storage, dstPath string, msg string) error {
	exists, err := storage.Exists(ctx, src, srcPath)
	if err != nil || !exists {
		return err
	}
	service.log.Info(msg, zap.String("src", srcPath), zap.String("dst", dstPath))
	return storage.Move(ctx, src, srcPath, dst, dstPath)
}

// HideDisabledFile moves a file from public storage to the guarded path.
func (service *Service) HideDisabledFile(ctx context.Context, appID int64, file *File) (err error) {
	defer mon.Task()(&ctx)(&err)
	if file.Filename == "" {
		return nil
	}
	err = service.moveIfExists(ctx,
		service.public, ApprovedPath(appID, file.Filename),
		service.private, GuardedPath(appID, file.Filename),
		"moving disabled file")
	if err == nil {
		mon.Counter("files_hidden").Inc(1)
	}
	return Error.Wrap(err)
}

// UnhideDisabledFile moves a file from the guarded path back to public
// storage.
func (service *Service) UnhideDisabledFile(ctx context.Context, appID int64, file *File) (err error) {
	defer mon.Task()(&ctx)(&err)
	if file.Filename == "" {
		return nil
	}
	err = service.moveIfExists(ctx,
		service.private, GuardedPath(appID, file.Filename),
		service.public, ApprovedPath(appID, file.Filename),
		"moving undisabled file")
	if err == nil {
		mon.Counter("files_unhidden").Inc(1)
	}
	return Error.Wrap(err)
}

// SetFileStatus changes the status of a file, moving it between storage
// tiers, and updates the status and versions of its app.
func (service *Service) SetFileStatus(ctx context.Context, file *File, newStatus status.Status) (err error) {
	defer mon.Task()(&ctx)(&err)

	updated := *file
	updated.Status = newStatus
	if err := service.saveFile(ctx, file, &updated); err != nil {
		return err
	}
	*file = updated
	return nil
}

// saveFile stores a changed file and applies the side effects of the
// change.
func (service *Service) saveFile(ctx context.Context, old, file *File) error {
	version, err := service.db.Versions().Get(ctx, file.VersionID)
	if err != nil {
		return err
	}

	file.ModifiedAt = service.now().UTC()
	if err := service.db.Files().Update(ctx, file); err != nil {
		return Error.Wrap(err)
	}

	switch {
	case file.Status == status.Disabled && old.Status != status.Disabled:
		err = service.HideDisabledFile(ctx, version.AppID, file)
	case old.Status == status.Disabled && file.Status != status.Disabled:
		err = service.UnhideDisabledFile(ctx, version.AppID, file)
	}
	if err != nil {
		service.log.Error("storage move failed, restoring file record",
			zap.Int64("file", file.ID),
			zap.Int64("app", version.AppID),
			zap.String("path", FilePath(version.AppID, old)),
			zap.Stringer("from", old.Status),
			zap.Stringer("to", file.Status),
			zap.Error(err))
		restored := *old
		restored.ModifiedAt = file.ModifiedAt
		return errs.Combine(err, Error.Wrap(service.db.Files().Update(ctx, &restored)))
	}

	if old.Hash != file.Hash {
		service.log.Info("hash changed for file",
			zap.Int64("file", file.ID),
			zap.Int64("app", version.AppID),
			zap.String("from", old.Hash),
			zap.String("to", file.Hash))
	}

	return service.refreshApp(ctx, version.AppID, 0)
}

// refreshApp recomputes the status and versions of an app after one of
// its files changed.
func (service *Service) refreshApp(ctx context.Context, appID, ignoreVersion int64) error {
	app, err := service.Get(ctx, appID)
	if err != nil {
		if ErrNotFound.Has(err) {
			return nil
		}
		return err
	}
	if err := service.UpdateStatus(ctx, app); err != nil {
		return err
	}
	_, err = service.UpdateVersion(ctx, app, ignoreVersion)
	return err
}

// DeleteFile removes a file record and its stored packages.
func (service *Service) DeleteFile(ctx context.Context, file *File) (err error) {
	defer mon.Task()(&ctx)(&err)

	version, err := service.db.Versions().Get(ctx, file.VersionID)
	if err != nil {
		return err
	}
	if err := service.db.Files().Delete(ctx, file.ID); err != nil {
		return Error.Wrap(err)
	}

	if file.Filename != "" {
		var group errs.Group
		for _, p := range []string{
			ApprovedPath(version.AppID, file.Filename),
			GuardedPath(version.AppID, file.Filename),
			SignedPath(version.AppID, file.Filename),
		} {
			service.log.Info("removing file", zap.String("path", p), zap.Int64("file", file.ID))
			group.Add(service.public.Delete(ctx, p), service.private.Delete(ctx, p))
		}
		if err := group.Err(); err != nil {
			return Error.Wrap(err)
		}
	}

	return service.refreshApp(ctx, version.AppID, version.ID)
}

// FileFromUpload creates the file of a new version from an upload and
// copies the upload into place.
func (service *Service) FileFromUpload(ctx context.Context, upload *FileUpload, app *Webapp, version *Version) (_ *File, err error) {
	defer mon.Task()(&ctx)(&err)

	upload.Path = manifest.NFD(upload.Path)
	info, err := service.private.Stat(ctx, upload.Path)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	now := service.now().UTC()
	file := &File{
		VersionID:  version.ID,
		Filename:   GenerateFilename(app, version.Version, path.Ext(upload.Path)),
		Size:       info.Size,
		Hash:       upload.Hash,
		Status:     status.Pending,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	if file.Hash == "" {
		file.Hash, _, err = hashStored(ctx, service.private, upload.Path)
		if err != nil {
			return nil, Error.Wrap(err)
		}
	}

	file.ID, err = service.db.Files().Insert(ctx, file)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	service.log.Debug("new file", zap.Int64("file", file.ID), zap.Stringer("upload", upload.UUID))

	err = storage.Copy(ctx, service.private, upload.Path, service.public, ApprovedPath(app.ID, file.Filename))
	if err != nil {
		return nil, Error.Wrap(err)
	}

	if upload.Validation != "" {
		if err := service.SaveFileValidation(ctx, file, upload.Validation); err != nil {
			return nil, err
		}
	}

	if err := service.refreshApp(ctx, app.ID, 0); err != nil {
		return nil, err
	}
	return file, nil
}

// SaveFileValidation stores a validation result for a file.
func (service *Service) SaveFileValidation(ctx context.Context, file *File, raw string) (err error) {
	defer mon.Task()(&ctx)(&err)

	result, err := validation.ParseResult(raw)
	if err != nil {
		return Error.Wrap(err)
	}
	if result == nil {
		result = &validation.Result{}
	}
	return Error.Wrap(service.db.Files().SaveValidation(ctx, &FileValidation{
		FileID:     file.ID,
		Valid:      result.Errors == 0,
		Errors:     result.Errors,
		Warnings:   result.Warnings,
		Notices:    result.Notices,
		Validation: raw,
		CreatedAt:  service.now().UTC(),
	}))
}
