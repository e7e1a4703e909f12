// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package developers runs the background work of app submission:
// validating uploads and files, fetching hosted manifests and applying
// region changes.
package developers

import (
	"bytes"
	"context"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/uuid"

	"github.com/mozilla/marketplace/marketplace/apps"
	"github.com/mozilla/marketplace/marketplace/fetch"
	"github.com/mozilla/marketplace/marketplace/mail"
	"github.com/mozilla/marketplace/marketplace/tasks"
	"github.com/mozilla/marketplace/marketplace/validation"
)

var (
	mon = monkit.Package()

	// Error is the default developers errs class.
	Error = errs.Class("developers")
)

// Job kinds registered by the service.
const (
	TaskValidator     = "validator"
	TaskFileValidator = "file_validator"
	TaskFetchManifest = "fetch_manifest"
	TaskRegionExclude = "region_exclude"
	TaskRegionEmail   = "region_email"
)

// chunkSize is the number of apps handled by one region job.
const chunkSize = 100

// Config contains the submission settings.
type Config struct {
	ValidateApps bool   `help:"run the validator on uploads and files" default:"true"`
	SiteURL      string `help:"public site url used in developer links" default:"https://marketplace.firefox.com"`
}

// Service runs submission tasks.
//
// architecture: Service
type Service struct {
	log       *zap.Logger
	apps      *apps.Service
	validator *validation.Validator
	fetcher   *fetch.Fetcher
	mail      *mail.Service
	tasks     *tasks.Service
	config    Config
}

// NewService creates a new submission service and registers its tasks.
func NewService(log *zap.Logger, appService *apps.Service, validator *validation.Validator, fetcher *fetch.Fetcher, mailService *mail.Service, queue *tasks.Service, config Config) *Service {
	service := &Service{
		log:       log,
		apps:      appService,
		validator: validator,
		fetcher:   fetcher,
		mail:      mailService,
		tasks:     queue,
		config:    config,
	}
	queue.Register(TaskValidator, service.handleValidator)
	queue.Register(TaskFileValidator, service.handleFileValidator)
	queue.Register(TaskFetchManifest, service.handleFetchManifest)
	queue.Register(TaskRegionExclude, service.handleRegionExclude)
	queue.Register(TaskRegionEmail, service.handleRegionEmail)
	return service
}

type validatorPayload struct {
	Upload string `json:"upload"`
	URL    string `json:"url,omitempty"`
}

type fileValidatorPayload struct {
	File int64 `json:"file"`
}

type fetchManifestPayload struct {
	URL    string `json:"url"`
	Upload string `json:"upload"`
}

type regionsPayload struct {
	Apps    []int64 `json:"apps"`
	Regions []int   `json:"regions"`
}

// QueueValidation schedules the validation of an upload.
func (service *Service) QueueValidation(ctx context.Context, upload *apps.FileUpload, url string) (err error) {
	defer mon.Task()(&ctx)(&err)
	_, err = service.tasks.Enqueue(ctx, TaskValidator, validatorPayload{Upload: upload.UUID.String(), URL: url}, tasks.Options{})
	return Error.Wrap(err)
}

// QueueFileValidation schedules the validation of a stored file.
func (service *Service) QueueFileValidation(ctx context.Context, fileID int64) (err error) {
	defer mon.Task()(&ctx)(&err)
	_, err = service.tasks.Enqueue(ctx, TaskFileValidator, fileValidatorPayload{File: fileID}, tasks.Options{})
	return Error.Wrap(err)
}

// QueueFetchManifest schedules downloading a hosted manifest into an
// upload.
func (service *Service) QueueFetchManifest(ctx context.Context, url string, upload *apps.FileUpload) (err error) {
	defer mon.Task()(&ctx)(&err)
	_, err = service.tasks.Enqueue(ctx, TaskFetchManifest, fetchManifestPayload{URL: url, Upload: upload.UUID.String()}, tasks.Options{})
	return Error.Wrap(err)
}

// ValidateUpload validates an upload and stores the result, merged with
// any preliminary result already on the upload. Failures are kept as the
// task error of the upload.
func (service *Service) ValidateUpload(ctx context.Context, id uuid.UUID, url string) (err error) {
	defer mon.Task()(&ctx)(&err)

	if !service.config.ValidateApps {
		return nil
	}
	log := service.log.With(zap.Stringer("upload", id))
	log.Info("validating app")

	upload, err := service.apps.GetUpload(ctx, id)
	if err != nil {
		if apps.ErrNotFound.Has(err) {
			log.Info("upload does not exist")
			return nil
		}
		return err
	}

	result, err := service.validateUpload(ctx, upload, url)
	if err != nil {
		upload.TaskError = err.Error()
		return errs.Combine(err, service.apps.SaveUpload(ctx, upload))
	}

	upload.Validation = result.JSON()
	return service.apps.SaveUpload(ctx, upload)
}

func (service *Service) validateUpload(ctx context.Context, upload *apps.FileUpload, url string) (_ *validation.Result, err error) {
	r, err := service.apps.OpenUpload(ctx, upload)
	if err != nil {
		return nil, err
	}
	defer func() { err = errs.Combine(err, r.Close()) }()

	result, err := service.validator.Validate(ctx, r, r.Size(), url)
	if err != nil {
		return nil, err
	}

	prelim, err := validation.ParseResult(upload.Validation)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return validation.Merge(result, prelim), nil
}

// ValidateFile validates a stored file and saves the result.
func (service *Service) ValidateFile(ctx context.Context, fileID int64) (_ *apps.FileValidation, err error) {
	defer mon.Task()(&ctx)(&err)

	if !service.config.ValidateApps {
		return nil, nil
	}
	log := service.log.With(zap.Int64("file", fileID))
	log.Info("validating file")

	file, err := service.apps.GetFile(ctx, fileID)
	if err != nil {
		if apps.ErrNotFound.Has(err) {
			log.Info("file does not exist")
			return nil, nil
		}
		return nil, err
	}
	version, err := service.apps.GetVersion(ctx, file.VersionID)
	if err != nil {
		return nil, err
	}
	app, err := service.apps.Get(ctx, version.AppID)
	if err != nil {
		return nil, err
	}

	result, err := service.validateFile(ctx, app, file)
	if err != nil {
		return nil, err
	}
	if err := service.apps.SaveFileValidation(ctx, file, result.JSON()); err != nil {
		return nil, err
	}
	return service.apps.DB().Files().Validation(ctx, file.ID)
}

func (service *Service) validateFile(ctx context.Context, app *apps.Webapp, file *apps.File) (_ *validation.Result, err error) {
	r, err := service.apps.OpenFile(ctx, app.ID, file)
	if err != nil {
		return nil, err
	}
	defer func() { err = errs.Combine(err, r.Close()) }()

	return service.validator.Validate(ctx, r, r.Size(), app.ManifestURL)
}

// FetchManifest downloads a hosted manifest into an upload and validates
// it. Download problems are stored as a failed preliminary validation.
func (service *Service) FetchManifest(ctx context.Context, url string, id uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)

	service.log.Info("fetching manifest", zap.String("url", url))
	upload, err := service.apps.GetUpload(ctx, id)
	if err != nil {
		return err
	}

	content, problems, err := service.fetcher.Fetch(ctx, url)
	if len(problems) > 0 || err != nil {
		existing, perr := validation.ParseResult(upload.Validation)
		if perr != nil {
			return Error.Wrap(perr)
		}
		messages := problems
		if err != nil {
			service.log.Error("failed to fetch manifest", zap.String("url", url), zap.Error(err))
			messages = append(messages, fetch.Message(err))
		}
		upload.Validation = validation.Failed(existing, messages...).JSON()
		if err := service.apps.SaveUpload(ctx, upload); err != nil {
			return err
		}
	}
	if err != nil {
		if fetch.ErrFetch.Has(err) {
			return nil
		}
		return err
	}

	if err := service.apps.AddFile(ctx, upload, bytes.NewReader(content), url); err != nil {
		return err
	}
	return service.ValidateUpload(ctx, upload.UUID, url)
}

func (service *Service) handleValidator(ctx context.Context, payload []byte) error {
	var args validatorPayload
	if err := tasks.Decode(payload, &args); err != nil {
		return err
	}
	id, err := uuid.FromString(args.Upload)
	if err != nil {
		return Error.Wrap(err)
	}
	return service.ValidateUpload(ctx, id, args.URL)
}

func (service *Service) handleFileValidator(ctx context.Context, payload []byte) error {
	var args fileValidatorPayload
	if err := tasks.Decode(payload, &args); err != nil {
		return err
	}
	_, err := service.ValidateFile(ctx, args.File)
	return err
}

func (service *Service) handleFetchManifest(ctx context.Context, payload []byte) error {
	var args fetchManifestPayload
	if err := tasks.Decode(payload, &args); err != nil {
		return err
	}
	id, err := uuid.FromString(args.Upload)
	if err != nil {
		return Error.Wrap(err)
	}
	return service.FetchManifest(ctx, args.URL, id)
}
