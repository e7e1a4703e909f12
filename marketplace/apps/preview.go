// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package apps

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mozilla/marketplace/marketplace/tasks"
)

// TaskDeletePreviewFiles is the job kind removing the stored images of a
// preview.
const TaskDeletePreviewFiles = "delete_preview_files"

// PreviewSizes are the pixel dimensions of the stored preview images.
type PreviewSizes struct {
	Thumbnail []int `json:"thumbnail,omitempty"`
	Image     []int `json:"image,omitempty"`
}

// Preview is a screenshot of an app.
type Preview struct {
	ID         int64
	AppID      int64
	Filetype   string
	Thumbtype  string
	Position   int
	Sizes      PreviewSizes
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// ThumbnailPath is the public path of the thumbnail.
func (preview *Preview) ThumbnailPath() string { return PreviewThumbnailPath(preview.ID) }

// ImagePath is the public path of the full size image.
func (preview *Preview) ImagePath() string { return PreviewImagePath(preview.ID) }

// Previews returns the previews of an app ordered by position.
func (service *Service) Previews(ctx context.Context, appID int64) (_ []*Preview, err error) {
	defer mon.Task()(&ctx)(&err)
	return service.db.Previews().ListForApp(ctx, appID)
}

type previewFilesPayload struct {
	PreviewID int64 `json:"preview_id"`
}

// queueDeletePreviewFiles schedules the removal of the images of every
// preview of an app.
func (service *Service) queueDeletePreviewFiles(ctx context.Context, appID int64) error {
	previews, err := service.Previews(ctx, appID)
	if err != nil {
		return err
	}
	for _, preview := range previews {
		_, err := service.tasks.Enqueue(ctx, TaskDeletePreviewFiles, previewFilesPayload{PreviewID: preview.ID}, tasks.Options{})
		if err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}

func (service *Service) handleDeletePreviewFiles(ctx context.Context, payload []byte) error {
	var args previewFilesPayload
	if err := tasks.Decode(payload, &args); err != nil {
		return err
	}
	service.DeletePreviewFiles(ctx, args.PreviewID)
	return nil
}

// DeletePreviewFiles removes the thumbnail and the full image of a
// preview from public storage. Failures are logged.
func (service *Service) DeletePreviewFiles(ctx context.Context, previewID int64) {
	defer mon.Task()(&ctx)(nil)

	service.log.Info("removing preview files", zap.Int64("preview", previewID))
	for _, path := range []string{PreviewThumbnailPath(previewID), PreviewImagePath(previewID)} {
		if err := service.public.Delete(ctx, path); err != nil {
			service.log.Error("error deleting preview file", zap.String("path", path), zap.Error(err))
		}
	}
}
