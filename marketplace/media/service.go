// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package media stores the icons and previews of apps resized to the
// marketplace sizes.
package media

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"image"
	"io"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/memory"
	"storj.io/common/uuid"

	"github.com/mozilla/marketplace/marketplace/apps"
	"github.com/mozilla/marketplace/marketplace/fetch"
	"github.com/mozilla/marketplace/marketplace/tasks"
	"github.com/mozilla/marketplace/storage"
)

var (
	mon = monkit.Package()

	// Error is the default media errs class.
	Error = errs.Class("media")
	// ErrInvalidImage is returned for content that cannot be used as an
	// icon or preview. The message is meant for developers.
	ErrInvalidImage = errs.Class("invalid image")
)

// Job kinds.
const (
	TaskFetchIcon     = "fetch_icon"
	TaskResizePreview = "resize_preview"
)

// IconType is the content type of every stored icon.
const IconType = "image/png"

// Config contains the image settings.
type Config struct {
	MaxIconSize  memory.Size `help:"maximum size of an icon" default:"4MiB"`
	MaxImageSize memory.Size `help:"maximum size of a preview image" default:"4MiB"`
	MaxPixels    int         `help:"maximum number of pixels of a decoded image" default:"40000000"`
}

// Service fetches, checks and resizes app images.
//
// architecture: Service
type Service struct {
	log     *zap.Logger
	apps    *apps.Service
	fetcher *fetch.Fetcher
	tasks   *tasks.Service
	config  Config

	now func() time.Time
}

// NewService creates a new media service and registers its tasks.
func NewService(log *zap.Logger, appService *apps.Service, fetcher *fetch.Fetcher, queue *tasks.Service, config Config) *Service {
	service := &Service{
		log:     log,
		apps:    appService,
		fetcher: fetcher,
		tasks:   queue,
		config:  config,
		now:     time.Now,
	}
	queue.Register(TaskFetchIcon, service.handleFetchIcon)
	queue.Register(TaskResizePreview, service.handleResizePreview)
	return service
}

// SetNow replaces the clock.
func (service *Service) SetNow(now func() time.Time) { service.now = now }

// AppCreated queues the icon of a new app.
func (service *Service) AppCreated(ctx context.Context, app *apps.Webapp, file *apps.File) {
	if file == nil {
		return
	}
	if err := service.QueueFetchIcon(ctx, app.ID, file.ID); err != nil {
		service.log.Error("could not queue icon fetch", zap.Int64("app", app.ID), zap.Error(err))
	}
}

type fetchIconPayload struct {
	AppID  int64 `json:"app_id"`
	FileID int64 `json:"file_id"`
}

// QueueFetchIcon schedules storing the icon named by the manifest of file.
func (service *Service) QueueFetchIcon(ctx context.Context, appID, fileID int64) (err error) {
	defer mon.Task()(&ctx)(&err)
	_, err = service.tasks.Enqueue(ctx, TaskFetchIcon, fetchIconPayload{AppID: appID, FileID: fileID}, tasks.Options{})
	return Error.Wrap(err)
}

func (service *Service) handleFetchIcon(ctx context.Context, payload []byte) error {
	var args fetchIconPayload
	if err := tasks.Decode(payload, &args); err != nil {
		return err
	}
	return service.FetchIcon(ctx, args.AppID, args.FileID)
}

// FetchIcon stores the biggest icon of the manifest of file. The icon is
// read from a data URL, from the package of packaged apps or from the
// app domain. When no icon can be stored the icon type is cleared.
func (service *Service) FetchIcon(ctx context.Context, appID, fileID int64) (err error) {
	defer mon.Task()(&ctx)(&err)

	app, err := service.apps.Get(ctx, appID)
	if err != nil {
		return err
	}
	file, err := service.apps.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	m, err := service.apps.ManifestJSON(ctx, app, file.VersionID)
	if err != nil {
		return err
	}

	iconURL := BiggestIcon(m.Object("icons"))
	if iconURL == "" {
		service.log.Info("no icon in manifest", zap.Int64("app", app.ID))
		return service.setIcon(ctx, app, "", "")
	}

	content, err := service.iconContent(ctx, app, file, iconURL)
	if err == nil {
		err = service.SaveIcon(ctx, app, content)
	}
	if err != nil {
		mon.Counter("icon_failures").Inc(1)
		service.log.Info("icon not stored", zap.Int64("app", app.ID), zap.Int64("file", file.ID), zap.Error(err))
		return service.setIcon(ctx, app, "", "")
	}
	return nil
}

// BiggestIcon returns the icon of the largest integer size.
func BiggestIcon(icons map[string]interface{}) string {
	best, found := -1, ""
	for key, value := range icons {
		size, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		src, ok := value.(string)
		if !ok || src == "" || size <= best {
			continue
		}
		best, found = size, src
	}
	return found
}

func (service *Service) iconContent(ctx context.Context, app *apps.Webapp, file *apps.File, iconURL string) ([]byte, error) {
	switch {
	case strings.HasPrefix(iconURL, "data:image"):
		_, data, ok := strings.Cut(iconURL, "base64,")
		if !ok {
			return nil, ErrInvalidImage.New("Icon data URLs must be base64 encoded.")
		}
		content, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, ErrInvalidImage.New("Icon data URL could not be decoded.")
		}
		return content, nil
	case app.IsPackaged:
		return service.apps.ExtractFile(ctx, app.ID, file, strings.TrimPrefix(iconURL, "/"))
	default:
		base, err := url.Parse(app.AppDomain + "/")
		if err != nil {
			return nil, Error.Wrap(err)
		}
		ref, err := url.Parse(iconURL)
		if err != nil {
			return nil, ErrInvalidImage.New("Icon URL is not valid.")
		}
		return service.fetcher.FetchContent(ctx, base.ResolveReference(ref).String(), service.config.MaxIconSize.Int64())
	}
}

// UploadIcon checks that content is a square icon of at least
// MinIconSize pixels and stores it.
func (service *Service) UploadIcon(ctx context.Context, app *apps.Webapp, content []byte) (err error) {
	defer mon.Task()(&ctx)(&err)

	img, err := service.decode(content, service.config.MaxIconSize)
	if err != nil {
		return err
	}
	if err := CheckIcon(img); err != nil {
		return err
	}
	return service.saveIcon(ctx, app, content, img)
}

// SaveIcon stores content resized to every icon size and records the
// icon type and hash of app.
func (service *Service) SaveIcon(ctx context.Context, app *apps.Webapp, content []byte) (err error) {
	defer mon.Task()(&ctx)(&err)

	img, err := service.decode(content, service.config.MaxIconSize)
	if err != nil {
		return err
	}
	return service.saveIcon(ctx, app, content, img)
}

func (service *Service) saveIcon(ctx context.Context, app *apps.Webapp, content []byte, img *Image) error {
	public := service.apps.Public()
	for _, size := range IconSizes {
		encoded, err := EncodePNG(Resize(img, image.Pt(size, size)))
		if err != nil {
			return err
		}
		iconPath := apps.IconPath(app.ID, size)
		if err := public.Delete(ctx, iconPath); err != nil {
			return Error.Wrap(err)
		}
		if _, err := storage.Save(ctx, public, iconPath, bytes.NewReader(encoded)); err != nil {
			return Error.Wrap(err)
		}
	}

	sum := md5.Sum(content)
	service.log.Info("icon stored", zap.Int64("app", app.ID), zap.String("source", img.MimeType()))
	return service.setIcon(ctx, app, IconType, hex.EncodeToString(sum[:])[:8])
}

func (service *Service) setIcon(ctx context.Context, app *apps.Webapp, iconType, hash string) error {
	current, err := service.apps.Get(ctx, app.ID)
	if err != nil {
		return err
	}
	current.IconType, current.IconHash = iconType, hash
	if err := service.apps.Save(ctx, current); err != nil {
		return err
	}
	app.IconType, app.IconHash = iconType, hash
	return nil
}

func (service *Service) decode(content []byte, limit memory.Size) (*Image, error) {
	if int64(len(content)) > limit.Int64() {
		return nil, ErrInvalidImage.New("Images must be smaller than %s.", limit)
	}
	return Decode(content, service.config.MaxPixels)
}

type resizePreviewPayload struct {
	PreviewID int64  `json:"preview_id"`
	Source    string `json:"source"`
}

// AddPreview checks content, records a preview at position and queues
// the resize of its images.
func (service *Service) AddPreview(ctx context.Context, app *apps.Webapp, content []byte, position int) (_ *apps.Preview, err error) {
	defer mon.Task()(&ctx)(&err)

	img, err := service.decode(content, service.config.MaxImageSize)
	if err != nil {
		return nil, err
	}
	if err := CheckPreview(img); err != nil {
		return nil, err
	}

	now := service.now().UTC()
	preview := &apps.Preview{
		AppID:      app.ID,
		Filetype:   img.MimeType(),
		Position:   position,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	preview.ID, err = service.apps.DB().Previews().Insert(ctx, preview)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	id, err := uuid.New()
	if err != nil {
		return nil, Error.Wrap(err)
	}
	source := path.Join(apps.TmpPrefix, "preview", id.String())
	if _, err := storage.Save(ctx, service.apps.Private(), source, bytes.NewReader(content)); err != nil {
		return nil, Error.Wrap(err)
	}

	_, err = service.tasks.Enqueue(ctx, TaskResizePreview, resizePreviewPayload{PreviewID: preview.ID, Source: source}, tasks.Options{})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return service.apps.DB().Previews().Get(ctx, preview.ID)
}

func (service *Service) handleResizePreview(ctx context.Context, payload []byte) error {
	var args resizePreviewPayload
	if err := tasks.Decode(payload, &args); err != nil {
		return err
	}
	return service.ResizePreview(ctx, args.PreviewID, args.Source)
}

// ResizePreview stores the thumbnail and the full image of a preview
// from the private source file and removes the source.
func (service *Service) ResizePreview(ctx context.Context, previewID int64, source string) (err error) {
	defer mon.Task()(&ctx)(&err)

	preview, err := service.apps.DB().Previews().Get(ctx, previewID)
	if err != nil {
		return err
	}
	content, err := service.readSource(ctx, source)
	if err != nil {
		return err
	}
	img, err := Decode(content, service.config.MaxPixels)
	if err != nil {
		return err
	}

	size := img.Size()
	thumbnail := Resize(img, orient(ThumbnailBox, size))
	full := Resize(img, orient(FullBox, size))
	for _, stored := range []struct {
		path string
		img  image.Image
	}{
		{preview.ThumbnailPath(), thumbnail},
		{preview.ImagePath(), full},
	} {
		encoded, err := EncodePNG(stored.img)
		if err != nil {
			return err
		}
		if _, err := storage.Save(ctx, service.apps.Public(), stored.path, bytes.NewReader(encoded)); err != nil {
			return Error.Wrap(err)
		}
	}

	thumbSize, fullSize := thumbnail.Bounds().Size(), full.Bounds().Size()
	preview.Thumbtype = IconType
	preview.Sizes = apps.PreviewSizes{
		Thumbnail: []int{thumbSize.X, thumbSize.Y},
		Image:     []int{fullSize.X, fullSize.Y},
	}
	preview.ModifiedAt = service.now().UTC()
	if err := service.apps.DB().Previews().Update(ctx, preview); err != nil {
		return Error.Wrap(err)
	}

	if err := service.apps.Private().Delete(ctx, source); err != nil {
		service.log.Warn("preview source not removed", zap.String("path", source), zap.Error(err))
	}
	service.log.Info("preview resized", zap.Int64("preview", preview.ID), zap.Int64("app", preview.AppID))
	return nil
}

func (service *Service) readSource(ctx context.Context, source string) (_ []byte, err error) {
	r, err := service.apps.Private().Open(ctx, source)
	if err != nil {
		return nil, err
	}
	defer func() { err = errs.Combine(err, r.Close()) }()

	content, err := io.ReadAll(io.LimitReader(r, service.config.MaxImageSize.Int64()+1))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return content, nil
}
