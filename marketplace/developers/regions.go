// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package developers

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/mozilla/marketplace/marketplace/apps"
	"github.com/mozilla/marketplace/marketplace/mail"
	"github.com/mozilla/marketplace/marketplace/regions"
	"github.com/mozilla/marketplace/marketplace/tasks"
)

func chunked(ids []int64, size int) [][]int64 {
	var chunks [][]int64
	for len(ids) > size {
		chunks = append(chunks, ids[:size:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}
	return chunks
}

func regionNames(ids []int) ([]string, error) {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		region, ok := regions.ByID(id)
		if !ok {
			return nil, Error.New("unknown region %d", id)
		}
		names = append(names, region.Name)
	}
	sort.Strings(names)
	return names, nil
}

// ExcludeNewRegion excludes the apps that opted out of new regions from
// the given regions. The work is queued in chunks.
func (service *Service) ExcludeNewRegion(ctx context.Context, regionIDs []int) (err error) {
	defer mon.Task()(&ctx)(&err)

	ids, err := service.apps.DB().Webapps().List(ctx, apps.Filter{
		NoNewRegions:    true,
		NotExcludedFrom: regionIDs,
	})
	if err != nil {
		return Error.Wrap(err)
	}
	return service.queueChunks(ctx, TaskRegionExclude, ids, regionIDs)
}

// SendNewRegionEmails tells the developers of apps added to new regions
// about them. The work is queued in chunks.
func (service *Service) SendNewRegionEmails(ctx context.Context, regionIDs []int) (err error) {
	defer mon.Task()(&ctx)(&err)

	ids, err := service.apps.DB().Webapps().List(ctx, apps.Filter{
		NewRegions:      true,
		NotExcludedFrom: regionIDs,
	})
	if err != nil {
		return Error.Wrap(err)
	}
	return service.queueChunks(ctx, TaskRegionEmail, ids, regionIDs)
}

func (service *Service) queueChunks(ctx context.Context, kind string, ids []int64, regionIDs []int) error {
	for _, chunk := range chunked(ids, chunkSize) {
		_, err := service.tasks.Enqueue(ctx, kind, regionsPayload{Apps: chunk, Regions: regionIDs}, tasks.Options{})
		if err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}

// RegionExclude excludes every app from every region. Existing
// exclusions are kept.
func (service *Service) RegionExclude(ctx context.Context, ids []int64, regionIDs []int) (err error) {
	defer mon.Task()(&ctx)(&err)

	names, err := regionNames(regionIDs)
	if err != nil {
		return err
	}
	service.log.Info("excluding new regions", zap.Int("apps", len(ids)), zap.String("regions", strings.Join(names, ", ")))

	for _, id := range ids {
		app, err := service.apps.Get(ctx, id)
		if err != nil {
			return err
		}
		for _, region := range regionIDs {
			if _, err := service.apps.ExcludeRegion(ctx, app, region); err != nil {
				return err
			}
		}
	}
	return nil
}

// RegionEmail emails the developers of every app about new regions.
func (service *Service) RegionEmail(ctx context.Context, ids []int64, regionIDs []int) (err error) {
	defer mon.Task()(&ctx)(&err)

	names, err := regionNames(regionIDs)
	if err != nil {
		return err
	}
	service.log.Info("emailing developers about new regions", zap.Int("apps", len(ids)), zap.String("regions", mail.JoinNames(names)))

	for _, id := range ids {
		app, err := service.apps.Get(ctx, id)
		if err != nil {
			return err
		}
		authors, err := service.apps.Authors(ctx, id)
		if err != nil {
			return err
		}
		devURL := strings.TrimSuffix(service.config.SiteURL, "/") + "/developers/app/" + app.Slug + "/edit#details"
		if err := service.mail.SendRendered(ctx, authors, mail.NewNewRegions(app.Name, names, devURL)); err != nil {
			return err
		}
	}
	return nil
}

func (service *Service) handleRegionExclude(ctx context.Context, payload []byte) error {
	var args regionsPayload
	if err := tasks.Decode(payload, &args); err != nil {
		return err
	}
	return service.RegionExclude(ctx, args.Apps, args.Regions)
}

func (service *Service) handleRegionEmail(ctx context.Context, payload []byte) error {
	var args regionsPayload
	if err := tasks.Decode(payload, &args); err != nil {
		return err
	}
	return service.RegionEmail(ctx, args.Apps, args.Regions)
}
