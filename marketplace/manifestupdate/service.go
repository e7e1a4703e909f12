// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package manifestupdate refreshes the manifests of hosted apps and sends
// changed apps back to review.
package manifestupdate

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/mozilla/marketplace/marketplace/activity"
	"github.com/mozilla/marketplace/marketplace/apps"
	"github.com/mozilla/marketplace/marketplace/developers"
	"github.com/mozilla/marketplace/marketplace/fetch"
	"github.com/mozilla/marketplace/marketplace/mail"
	"github.com/mozilla/marketplace/marketplace/manifest"
	"github.com/mozilla/marketplace/marketplace/reviewers"
	"github.com/mozilla/marketplace/marketplace/status"
	"github.com/mozilla/marketplace/marketplace/tasks"
	"github.com/mozilla/marketplace/marketplace/validation"
)

var (
	mon = monkit.Package()

	// Error is the default manifestupdate errs class.
	Error = errs.Class("manifest update")
)

// TaskUpdateManifests is the job kind refreshing a batch of manifests.
const TaskUpdateManifests = "update_manifests"

const (
	// notifyAfter is the failed fetch count at which developers are mailed.
	notifyAfter = 3
	// rereviewAfter is the failed fetch count at which an app is flagged.
	rereviewAfter = 4
)

// Config contains the manifest refresh settings.
type Config struct {
	Interval   time.Duration `help:"how often hosted manifests are refreshed" releaseDefault:"24h" devDefault:"1h" testDefault:"1m"`
	BatchSize  int           `help:"number of apps refreshed by one job" default:"50"`
	RetryDelay time.Duration `help:"delay before apps whose manifest could not be fetched are tried again" default:"1h"`
	MaxRetries int           `help:"number of times a batch with failed fetches is retried" default:"5"`
}

// Service refreshes hosted manifests.
//
// architecture: Service
type Service struct {
	log        *zap.Logger
	apps       *apps.Service
	reviewers  *reviewers.Service
	fetcher    *fetch.Fetcher
	developers *developers.Service
	mail       *mail.Service
	tasks      *tasks.Service
	mailConfig mail.Config
	config     Config
}

// NewService creates a new manifest refresh service and registers its task.
func NewService(log *zap.Logger, appService *apps.Service, reviewerService *reviewers.Service, fetcher *fetch.Fetcher, developerService *developers.Service, mailService *mail.Service, queue *tasks.Service, mailConfig mail.Config, config Config) *Service {
	service := &Service{
		log:        log,
		apps:       appService,
		reviewers:  reviewerService,
		fetcher:    fetcher,
		developers: developerService,
		mail:       mailService,
		tasks:      queue,
		mailConfig: mailConfig,
		config:     config,
	}
	queue.Register(TaskUpdateManifests, service.handleUpdateManifests)
	return service
}

type updatePayload struct {
	IDs       []int64       `json:"ids"`
	CheckHash bool          `json:"check_hash"`
	Retries   map[int64]int `json:"retries,omitempty"`
}

// Queue schedules the refresh of the given apps in batches.
func (service *Service) Queue(ctx context.Context, ids []int64, checkHash bool) (err error) {
	defer mon.Task()(&ctx)(&err)

	size := service.config.BatchSize
	if size <= 0 {
		size = len(ids)
	}
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		payload := updatePayload{IDs: ids[start:end], CheckHash: checkHash}
		if _, err := service.tasks.Enqueue(ctx, TaskUpdateManifests, payload, tasks.Options{MaxRetries: service.config.MaxRetries}); err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}

// QueueAll schedules the refresh of every hosted app that may change.
func (service *Service) QueueAll(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	ids, err := service.apps.DB().Webapps().List(ctx, apps.Filter{
		Statuses:          status.ValidSet,
		Hosted:            true,
		NotDisabledByUser: true,
	})
	if err != nil {
		return Error.Wrap(err)
	}
	service.log.Info("queueing manifest updates", zap.Int("apps", len(ids)))
	return service.Queue(ctx, ids, true)
}

func (service *Service) handleUpdateManifests(ctx context.Context, data []byte) error {
	var payload updatePayload
	if err := tasks.Decode(data, &payload); err != nil {
		return err
	}
	if payload.Retries == nil {
		payload.Retries = map[int64]int{}
	}

	err := service.UpdateManifests(ctx, payload.IDs, payload.CheckHash, payload.Retries)
	if len(payload.Retries) == 0 {
		return err
	}

	retry := updatePayload{CheckHash: payload.CheckHash, Retries: payload.Retries}
	for id := range payload.Retries {
		retry.IDs = append(retry.IDs, id)
	}
	sort.Slice(retry.IDs, func(i, k int) bool { return retry.IDs[i] < retry.IDs[k] })

	service.log.Info("retrying manifest updates",
		zap.Int64s("apps", retry.IDs),
		zap.Duration("after", service.config.RetryDelay))
	return tasks.Retry(service.config.RetryDelay, retry,
		errs.Combine(Error.New("%d manifests could not be fetched", len(retry.IDs)), err))
}

// UpdateManifests refreshes the manifests of the given apps. failed holds
// the number of failed fetches per app and is updated in place; apps left
// in it should be tried again later.
func (service *Service) UpdateManifests(ctx context.Context, ids []int64, checkHash bool, failed map[int64]int) (err error) {
	defer mon.Task()(&ctx)(&err)

	service.log.Info("updating manifests", zap.Int("apps", len(ids)))

	var group errs.Group
	for _, id := range ids {
		if err := service.updateManifest(ctx, id, checkHash, failed); err != nil {
			service.log.Error("manifest update failed", zap.Int64("app", id), zap.Error(err))
			group.Add(err)
		}
	}
	return group.Err()
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return "sha256:" + hex.EncodeToString(sum[:])
}

func (service *Service) updateManifest(ctx context.Context, id int64, checkHash bool, failed map[int64]int) (err error) {
	defer mon.Task()(&ctx)(&err)

	app, err := service.apps.Get(ctx, id)
	if err != nil {
		if apps.ErrNotFound.Has(err) {
			service.log.Info("app does not exist", zap.Int64("app", id))
			delete(failed, id)
			return nil
		}
		return err
	}
	log := service.log.With(zap.Int64("app", app.ID))
	log.Info("fetching webapp manifest")

	version, err := service.apps.LatestVersion(ctx, app.ID)
	if err != nil {
		return err
	}
	var file *apps.File
	if version != nil {
		file, err = service.apps.VersionFile(ctx, version.ID)
		if err != nil {
			return err
		}
	}
	if file == nil {
		log.Info("ignoring, no existing file")
		return nil
	}

	content, err := service.fetchManifest(ctx, app.ManifestURL)
	if err != nil {
		return service.fetchFailed(ctx, log, app, failed, fmt.Sprintf(
			"Failed to get manifest from %s. Error: %s", app.ManifestURL, fetch.Message(err)))
	}
	delete(failed, app.ID)

	if checkHash {
		if file.Hash == contentHash(content) {
			log.Info("manifest the same")
			return nil
		}
		log.Info("manifest different")
	}

	upload, err := service.apps.NewUpload(ctx)
	if err != nil {
		return err
	}
	if err := service.apps.AddFile(ctx, upload, bytes.NewReader(content), app.ManifestURL); err != nil {
		return err
	}
	if err := service.developers.ValidateUpload(ctx, upload.UUID, app.ManifestURL); err != nil {
		return err
	}
	upload, err = service.apps.GetUpload(ctx, upload.UUID)
	if err != nil {
		return err
	}

	result, err := validation.ParseResult(upload.Validation)
	if err != nil {
		return Error.Wrap(err)
	}
	if result == nil {
		log.Info("validation has no result", zap.Stringer("upload", upload.UUID))
	} else if result.Errors > 0 {
		return service.validationFailed(ctx, log, app, upload, result)
	}

	old, err := service.apps.ManifestJSON(ctx, app, 0)
	if err != nil {
		return err
	}
	updated, err := manifest.Decode(content)
	if err != nil {
		return Error.Wrap(err)
	}

	if err := service.apps.ManifestUpdated(ctx, app, upload); err != nil {
		log.Error("failed to create version", zap.Error(err))
	}

	changes, rereview, err := service.compare(ctx, app, version, old, updated)
	if err != nil {
		return err
	}

	if _, err := service.apps.UpdateSupportedLocales(ctx, app, true, updated); err != nil {
		return err
	}

	if rereview {
		msg := strings.Join(changes, " ")
		log.Info("(Re-review) " + msg)
		if app.IsApproved() {
			return Error.Wrap(service.reviewers.Flag(ctx, app.ID, 0, activity.RereviewManifestChange, msg))
		}
	}
	return nil
}

// fetchManifest downloads a manifest. Any problem with the response is an
// error.
func (service *Service) fetchManifest(ctx context.Context, url string) ([]byte, error) {
	content, problems, err := service.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if len(problems) > 0 {
		return nil, fetch.ErrFetch.New("%s", strings.Join(problems, " "))
	}
	return content, nil
}

func (service *Service) fetchFailed(ctx context.Context, log *zap.Logger, app *apps.Webapp, failed map[int64]int, msg string) error {
	mon.Counter("manifest_fetch_failures").Inc(1)

	failed[app.ID]++
	switch count := failed[app.ID]; {
	case count == notifyAfter:
		log.Info(msg, zap.Int("failures", count))
		return service.NotifyDevelopersOfFailure(ctx, app, "Validation errors:\n"+msg, false)
	case count >= rereviewAfter:
		log.Info("(Re-review) "+msg, zap.Int("failures", count))
		delete(failed, app.ID)
		if app.IsApproved() {
			return Error.Wrap(service.reviewers.Flag(ctx, app.ID, 0, activity.RereviewManifestFetch, msg))
		}
	default:
		log.Info(msg, zap.Int("failures", count))
	}
	return nil
}

func (service *Service) validationFailed(ctx context.Context, log *zap.Logger, app *apps.Webapp, upload *apps.FileUpload, result *validation.Result) error {
	var msg strings.Builder
	msg.WriteString("Validation errors:\n")
	for _, message := range result.ErrorMessages() {
		fmt.Fprintf(&msg, "* %s\n", message)
	}
	fmt.Fprintf(&msg, "\nValidation Result:\n%s/developers/upload/%s", service.mailConfig.SiteURL, upload.UUID)

	log.Info("(Re-review) " + msg.String())
	if !app.IsApproved() {
		return nil
	}
	return errs.Combine(
		service.NotifyDevelopersOfFailure(ctx, app, msg.String(), true),
		Error.Wrap(service.reviewers.Flag(ctx, app.ID, 0, activity.RereviewManifestChange, msg.String())),
	)
}

// compare applies the name and locale changes of a refreshed manifest and
// describes them. A changed default locale is described but does not need
// a new review on its own.
func (service *Service) compare(ctx context.Context, app *apps.Webapp, previous *apps.Version, old, updated manifest.Manifest) (changes []string, rereview bool, err error) {
	if len(old) > 0 && old.String("name") != updated.String("name") {
		rereview = true
		changes = append(changes, fmt.Sprintf("Manifest name changed from %q to %q.",
			old.String("name"), updated.String("name")))
	}

	latest, err := service.apps.LatestVersion(ctx, app.ID)
	if err != nil {
		return nil, false, err
	}
	if latest != nil && previous.DeveloperName != latest.DeveloperName {
		rereview = true
		changes = append(changes, fmt.Sprintf("Developer name changed from %q to %q.",
			previous.DeveloperName, latest.DeveloperName))
	}

	names := map[string]string{}
	for locale, value := range updated.LocaleProperties("name", app.DefaultLocale) {
		if name, ok := value.(string); ok {
			names[locale] = name
		}
	}

	if locale := updated.String("default_locale"); locale != "" {
		oldLocale, newLocale, changed, err := service.apps.UpdateDefaultLocale(ctx, app, locale)
		if err != nil {
			return nil, false, err
		}
		if changed {
			changes = append(changes, fmt.Sprintf("Default locale changed from %q to %q.", oldLocale, newLocale))
		}
	}

	crud, err := service.apps.UpdateNames(ctx, app, names)
	if err != nil {
		return nil, false, err
	}
	if crud.Added != "" {
		rereview = true
		changes = append(changes, "Locales added: "+crud.Added)
	}
	if crud.Updated != "" {
		rereview = true
		changes = append(changes, "Locales updated: "+crud.Updated)
	}
	return changes, rereview, nil
}

// NotifyDevelopersOfFailure mails the developers of an approved app that
// its manifest could not be updated. Apps already waiting for re-review are
// skipped.
func (service *Service) NotifyDevelopersOfFailure(ctx context.Context, app *apps.Webapp, message string, hasLink bool) (err error) {
	defer mon.Task()(&ctx)(&err)

	if !app.IsApproved() {
		return nil
	}
	inRereview, err := service.reviewers.InRereview(ctx, app.ID)
	if err != nil || inRereview {
		return Error.Wrap(err)
	}

	authors, err := service.apps.Authors(ctx, app.ID)
	if err != nil {
		return Error.Wrap(err)
	}
	return Error.Wrap(service.mail.SendRendered(ctx, authors, &mail.ManifestFailure{
		App:          app.Name,
		ErrorMessage: message,
		HasLink:      hasLink,
		SiteURL:      service.mailConfig.SiteURL,
		SupportEmail: service.mailConfig.SupportEmail,
	}))
}
