// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package dumpapps exports the public listing data of apps.
package dumpapps

import (
	"bytes"
	"context"
	"encoding/json"
	"path"
	"strconv"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/mozilla/marketplace/marketplace/apps"
	"github.com/mozilla/marketplace/marketplace/regions"
	"github.com/mozilla/marketplace/marketplace/status"
	"github.com/mozilla/marketplace/storage"
)

var (
	mon = monkit.Package()

	// Error is the default dumpapps errs class.
	Error = errs.Class("dumpapps")
)

// IndexPath is where the export index is written.
var IndexPath = path.Join(apps.DumpedPrefix, "index.yaml")

// Document is the exported form of an app.
type Document struct {
	ID            int64             `json:"id"`
	GUID          string            `json:"guid"`
	Slug          string            `json:"slug"`
	Name          map[string]string `json:"name"`
	DefaultLocale string            `json:"default_locale"`
	Status        string            `json:"status"`
	IsPackaged    bool              `json:"is_packaged"`
	ManifestURL   string            `json:"manifest_url,omitempty"`
	AppDomain     string            `json:"app_domain,omitempty"`
	PremiumType   int               `json:"premium_type"`
	Categories    []string          `json:"categories"`
	DeviceTypes   []int             `json:"device_types"`
	Regions       []string          `json:"regions"`
	SupportEmail  string            `json:"support_email,omitempty"`
	SupportURL    string            `json:"support_url,omitempty"`
	Version       *VersionDocument  `json:"current_version,omitempty"`
	Created       time.Time         `json:"created"`
	Modified      time.Time         `json:"last_updated"`
}

// VersionDocument is the exported form of the current version.
type VersionDocument struct {
	Version          string `json:"version"`
	DeveloperName    string `json:"developer_name"`
	ReleaseNotes     string `json:"release_notes,omitempty"`
	SupportedLocales string `json:"supported_locales,omitempty"`
}

// Index lists the documents of an export.
type Index struct {
	Created time.Time    `yaml:"created"`
	Count   int          `yaml:"count"`
	Apps    []IndexEntry `yaml:"apps"`
}

// IndexEntry is one exported app.
type IndexEntry struct {
	ID   int64  `yaml:"id"`
	Slug string `yaml:"slug"`
	Path string `yaml:"path"`
}

// Dumper writes app documents to private storage.
//
// architecture: Service
type Dumper struct {
	log  *zap.Logger
	apps *apps.Service

	now func() time.Time
}

// NewDumper creates a new app exporter.
func NewDumper(log *zap.Logger, service *apps.Service) *Dumper {
	return &Dumper{log: log, apps: service, now: time.Now}
}

// DocumentPath is the path of the document of an app, grouped by
// thousands.
func DocumentPath(appID int64) string {
	return path.Join(apps.DumpedPrefix, "apps",
		strconv.FormatInt(appID/1000, 10),
		strconv.FormatInt(appID, 10)+".json")
}

// DumpAll exports every listed app.
func (dumper *Dumper) DumpAll(ctx context.Context) (_ *Index, err error) {
	defer mon.Task()(&ctx)(&err)

	ids, err := dumper.apps.DB().Webapps().List(ctx, apps.Filter{
		Statuses:          status.ApprovedSet,
		NotDisabledByUser: true,
	})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return dumper.Dump(ctx, ids)
}

// Dump exports the given apps and writes the index. Missing apps are
// skipped.
func (dumper *Dumper) Dump(ctx context.Context, ids []int64) (_ *Index, err error) {
	defer mon.Task()(&ctx)(&err)

	if len(ids) > 0 {
		dumper.log.Info("dumping apps", zap.Int64("first", ids[0]), zap.Int64("last", ids[len(ids)-1]), zap.Int("count", len(ids)))
	}

	index := &Index{Created: dumper.now().UTC()}
	for _, id := range ids {
		entry, ok, err := dumper.dump(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			index.Apps = append(index.Apps, entry)
		}
	}
	index.Count = len(index.Apps)

	data, err := yaml.Marshal(index)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if _, err := storage.Save(ctx, dumper.apps.Private(), IndexPath, bytes.NewReader(data)); err != nil {
		return nil, Error.Wrap(err)
	}
	return index, nil
}

func (dumper *Dumper) dump(ctx context.Context, id int64) (_ IndexEntry, _ bool, err error) {
	app, err := dumper.apps.Get(ctx, id)
	if err != nil {
		if apps.ErrNotFound.Has(err) {
			dumper.log.Info("webapp does not exist", zap.Int64("app", id))
			return IndexEntry{}, false, nil
		}
		return IndexEntry{}, false, err
	}

	doc, err := dumper.Document(ctx, app)
	if err != nil {
		return IndexEntry{}, false, err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return IndexEntry{}, false, Error.Wrap(err)
	}

	target := DocumentPath(app.ID)
	dumper.log.Debug("dumping app", zap.Int64("app", app.ID), zap.String("path", target))
	if _, err := storage.Save(ctx, dumper.apps.Private(), target, bytes.NewReader(data)); err != nil {
		return IndexEntry{}, false, Error.Wrap(err)
	}
	return IndexEntry{ID: app.ID, Slug: app.Slug, Path: target}, true, nil
}

// Document builds the export document of an app.
func (dumper *Dumper) Document(ctx context.Context, app *apps.Webapp) (_ *Document, err error) {
	defer mon.Task()(&ctx)(&err)

	names, err := dumper.apps.Names(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	regionIDs, err := dumper.apps.RegionIDs(ctx, app, true)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		ID:            app.ID,
		GUID:          app.GUID.String(),
		Slug:          app.Slug,
		Name:          names,
		DefaultLocale: app.DefaultLocale,
		Status:        app.Status.String(),
		IsPackaged:    app.IsPackaged,
		ManifestURL:   app.ManifestURL,
		AppDomain:     app.AppDomain,
		PremiumType:   int(app.PremiumType),
		Categories:    append([]string{}, app.Categories...),
		DeviceTypes:   append([]int{}, app.DeviceTypes...),
		Regions:       []string{},
		SupportEmail:  app.SupportEmail,
		SupportURL:    app.SupportURL,
		Created:       app.CreatedAt,
		Modified:      app.ModifiedAt,
	}
	for _, id := range regionIDs {
		if region, ok := regions.ByID(id); ok {
			doc.Regions = append(doc.Regions, region.Slug)
		}
	}

	version, err := dumper.apps.CurrentVersion(ctx, app)
	if err != nil {
		return nil, err
	}
	if version != nil {
		doc.Version = &VersionDocument{
			Version:          version.Version,
			DeveloperName:    version.DeveloperName,
			ReleaseNotes:     version.ReleaseNotes,
			SupportedLocales: version.SupportedLocales,
		}
	}
	return doc, nil
}
