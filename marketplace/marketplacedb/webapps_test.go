// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package marketplacedb_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"
	"storj.io/common/testrand"

	"github.com/mozilla/marketplace/marketplace"
	"github.com/mozilla/marketplace/marketplace/apps"
	"github.com/mozilla/marketplace/marketplace/marketplacedb/marketplacedbtest"
	"github.com/mozilla/marketplace/marketplace/status"
)

func insertApp(ctx *testcontext.Context, t *testing.T, db marketplace.DB, app apps.Webapp) int64 {
	now := time.Now()
	app.GUID = testrand.UUID()
	app.DefaultLocale = "en-US"
	app.CreatedAt, app.ModifiedAt = now, now
	id, err := db.Apps().Webapps().Insert(ctx, &app)
	require.NoError(t, err)
	return id
}

func TestWebapps(t *testing.T) {
	marketplacedbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db marketplace.DB) {
		webapps := db.Apps().Webapps()

		hosted := insertApp(ctx, t, db, apps.Webapp{Name: "Hosted", Status: status.Public, EnableNewRegions: true,
			Categories: []string{"games", "music"}, DeviceTypes: []int{1, 2}})
		packaged := insertApp(ctx, t, db, apps.Webapp{Name: "Packaged", Status: status.Public, IsPackaged: true})
		pending := insertApp(ctx, t, db, apps.Webapp{Name: "Pending", Status: status.Pending, EnableNewRegions: true})
		disabled := insertApp(ctx, t, db, apps.Webapp{Name: "Disabled", Status: status.Public, DisabledByUser: true})

		app, err := webapps.Get(ctx, hosted)
		require.NoError(t, err)
		assert.Equal(t, "Hosted", app.Name)
		assert.Equal(t, []string{"games", "music"}, app.Categories)
		assert.Equal(t, []int{1, 2}, app.DeviceTypes)

		_, err = webapps.Get(ctx, disabled+1000)
		require.Error(t, err)
		assert.True(t, apps.ErrNotFound.Has(err))

		list := func(filter apps.Filter) []int64 {
			ids, err := webapps.List(ctx, filter)
			require.NoError(t, err)
			return ids
		}
		assert.Equal(t, []int64{hosted, packaged, pending, disabled}, list(apps.Filter{}))
		assert.Equal(t, []int64{hosted, packaged, disabled}, list(apps.Filter{Statuses: status.ApprovedSet}))
		assert.Equal(t, []int64{hosted, pending}, list(apps.Filter{Statuses: status.ValidSet, Hosted: true, NotDisabledByUser: true}))
		assert.Equal(t, []int64{packaged}, list(apps.Filter{Packaged: true}))
		assert.Equal(t, []int64{hosted, pending}, list(apps.Filter{NewRegions: true}))
		assert.Equal(t, []int64{packaged, disabled}, list(apps.Filter{NoNewRegions: true}))

		added, err := webapps.ExcludeRegion(ctx, hosted, 7)
		require.NoError(t, err)
		assert.True(t, added)
		added, err = webapps.ExcludeRegion(ctx, hosted, 7)
		require.NoError(t, err)
		assert.False(t, added)
		assert.Equal(t, []int64{pending}, list(apps.Filter{NewRegions: true, NotExcludedFrom: []int{7, 8}}))

		excluded, err := webapps.ExcludedRegions(ctx, hosted)
		require.NoError(t, err)
		assert.Equal(t, []int{7}, excluded)

		require.NoError(t, webapps.SetNames(ctx, hosted, map[string]string{"en-US": "Hosted", "fr": "Hébergée"}))
		require.NoError(t, webapps.SetNames(ctx, hosted, map[string]string{"en-US": "Hosted", "de": "Gehostet"}))
		names, err := webapps.Names(ctx, hosted)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"en-US": "Hosted", "de": "Gehostet"}, names)

		require.NoError(t, webapps.AddAuthor(ctx, hosted, "b@example.com"))
		require.NoError(t, webapps.AddAuthor(ctx, hosted, "a@example.com"))
		authors, err := webapps.Authors(ctx, hosted)
		require.NoError(t, err)
		assert.Equal(t, []string{"a@example.com", "b@example.com"}, authors)
	})
}

func TestFiles(t *testing.T) {
	marketplacedbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db marketplace.DB) {
		appID := insertApp(ctx, t, db, apps.Webapp{Name: "App", Status: status.Public})
		otherID := insertApp(ctx, t, db, apps.Webapp{Name: "Other", Status: status.Disabled})

		now := time.Now()
		addFile := func(appID int64, version, filename string, fileStatus status.Status) *apps.File {
			versionID, err := db.Apps().Versions().Insert(ctx, &apps.Version{
				AppID: appID, Version: version, VersionInt: apps.VersionInt(version),
				CreatedAt: now, ModifiedAt: now,
			})
			require.NoError(t, err)
			file := &apps.File{VersionID: versionID, Filename: filename, Status: fileStatus, CreatedAt: now, ModifiedAt: now}
			file.ID, err = db.Apps().Files().Insert(ctx, file)
			require.NoError(t, err)
			return file
		}

		public := addFile(appID, "1.0", "app-1.0.webapp", status.Public)
		off := addFile(appID, "2.0", "app-2.0.webapp", status.Disabled)
		other := addFile(otherID, "1.0", "other-1.0.webapp", status.Public)

		found, err := db.Apps().Files().FindByName(ctx, appID, "app-1.0.webapp")
		require.NoError(t, err)
		assert.Equal(t, public.ID, found.ID)

		_, err = db.Apps().Files().FindByName(ctx, otherID, "app-1.0.webapp")
		require.Error(t, err)
		assert.True(t, apps.ErrNotFound.Has(err))

		hidden, err := db.Apps().Files().ListHidden(ctx)
		require.NoError(t, err)
		require.Len(t, hidden, 2)
		assert.Equal(t, appID, hidden[0].AppID)
		assert.Equal(t, off.ID, hidden[0].File.ID)
		assert.Equal(t, otherID, hidden[1].AppID)
		assert.Equal(t, other.ID, hidden[1].File.ID)
	})
}

func TestUploads(t *testing.T) {
	marketplacedbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db marketplace.DB) {
		uploads := db.Apps().Uploads()

		upload := &apps.FileUpload{UUID: testrand.UUID(), Name: "app.zip", CreatedAt: time.Now()}
		require.NoError(t, uploads.Insert(ctx, upload))

		got, err := uploads.Get(ctx, upload.UUID)
		require.NoError(t, err)
		assert.Equal(t, "app.zip", got.Name)
		assert.False(t, got.Processed())

		got.Valid = true
		got.Validation = `{"errors": 0}`
		got.Path = "addons/temp/app.zip"
		require.NoError(t, uploads.Update(ctx, got))

		got, err = uploads.Get(ctx, upload.UUID)
		require.NoError(t, err)
		assert.True(t, got.Processed())
		assert.Equal(t, "addons/temp/app.zip", got.Path)

		_, err = uploads.Get(ctx, testrand.UUID())
		require.Error(t, err)
		assert.True(t, apps.ErrNotFound.Has(err))

		require.Error(t, uploads.Update(ctx, &apps.FileUpload{UUID: testrand.UUID()}))
	})
}
