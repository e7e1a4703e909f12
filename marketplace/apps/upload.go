// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package apps

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"path"

	"go.uber.org/zap"

	"storj.io/common/uuid"

	"github.com/mozilla/marketplace/marketplace/validation"
	"github.com/mozilla/marketplace/storage"
)

// NewUpload creates an empty upload record.
func (service *Service) NewUpload(ctx context.Context) (_ *FileUpload, err error) {
	defer mon.Task()(&ctx)(&err)

	id, err := uuid.New()
	if err != nil {
		return nil, Error.Wrap(err)
	}
	upload := &FileUpload{UUID: id, CreatedAt: service.now().UTC()}
	if err := service.db.Uploads().Insert(ctx, upload); err != nil {
		return nil, Error.Wrap(err)
	}
	return upload, nil
}

// GetUpload returns an upload.
func (service *Service) GetUpload(ctx context.Context, id uuid.UUID) (_ *FileUpload, err error) {
	defer mon.Task()(&ctx)(&err)
	return service.db.Uploads().Get(ctx, id)
}

// AddFile stores the uploaded content in a temporary path on private
// storage and records its name and hash. name is the original file name
// or the manifest url.
func (service *Service) AddFile(ctx context.Context, upload *FileUpload, content io.Reader, name string) (err error) {
	defer mon.Task()(&ctx)(&err)

	id, err := uuid.New()
	if err != nil {
		return Error.Wrap(err)
	}
	loc := path.Join(TempPrefix, hex.EncodeToString(id[:]))
	if ext := path.Ext(name); validExtension(ext) {
		loc += ext
	}

	h := sha256.New()
	size, err := storage.Save(ctx, service.private, loc, io.TeeReader(content, h))
	if err != nil {
		return Error.Wrap(err)
	}
	service.log.Info("upload stored", zap.String("name", name), zap.Int64("size", size), zap.String("path", loc))

	upload.Path = loc
	upload.Name = name
	upload.Hash = "sha256:" + hex.EncodeToString(h.Sum(nil))
	return service.SaveUpload(ctx, upload)
}

// SaveUpload stores the upload. An upload whose validation has no errors
// becomes valid.
func (service *Service) SaveUpload(ctx context.Context, upload *FileUpload) (err error) {
	defer mon.Task()(&ctx)(&err)

	if upload.Validation != "" {
		result, err := validation.ParseResult(upload.Validation)
		if err != nil {
			service.log.Error("invalid validation json", zap.Stringer("upload", upload.UUID), zap.Error(err))
		} else if result.Errors == 0 {
			upload.Valid = true
		}
	}
	return Error.Wrap(service.db.Uploads().Update(ctx, upload))
}

// OpenUpload opens the stored content of an upload.
func (service *Service) OpenUpload(ctx context.Context, upload *FileUpload) (_ storage.Reader, err error) {
	defer mon.Task()(&ctx)(&err)
	if upload.Path == "" {
		return nil, ErrInvalid.New("upload %s has no file", upload.UUID)
	}
	return service.private.Open(ctx, upload.Path)
}
