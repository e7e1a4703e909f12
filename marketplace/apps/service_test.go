// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package apps_test

import (
	"bytes"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"

	"github.com/mozilla/marketplace/marketplace"
	"github.com/mozilla/marketplace/marketplace/activity"
	"github.com/mozilla/marketplace/marketplace/apps"
	"github.com/mozilla/marketplace/marketplace/mail"
	"github.com/mozilla/marketplace/marketplace/status"
	"github.com/mozilla/marketplace/marketplace/testmarket"
	"github.com/mozilla/marketplace/storage"
)

const hostedManifest = `{
	"name": "Hosted App",
	"version": "1.0",
	"developer": {"name": "Dev"},
	"locales": {"de": {"name": "Gehostet"}}
}`

func packagedManifest(version string) string {
	return `{"name": "Packaged App", "version": "` + version + `", "developer": {"name": "Dev"}, "launch_path": "/index.html"}`
}

func newVersion(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer, app *apps.Webapp, version string) *apps.Version {
	upload := testmarket.Upload(ctx, t, peer, testmarket.Package(t, packagedManifest(version), nil), "app.zip")
	created, err := peer.Apps.VersionFromUpload(ctx, upload, app)
	require.NoError(t, err)
	created, err = peer.Apps.GetVersion(ctx, created.ID)
	require.NoError(t, err)
	return created
}

func exists(ctx *testcontext.Context, t *testing.T, store storage.Storage, path string) bool {
	ok, err := storage.Exists(ctx, store, path)
	require.NoError(t, err)
	return ok
}

func TestHostedAppLifecycle(t *testing.T) {
	testmarket.Run(t, nil, func(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer) {
		app := testmarket.CreateHostedApp(ctx, t, peer, "https://Example.com/manifest.webapp", hostedManifest)
		assert.Equal(t, status.Null, app.Status)
		assert.Equal(t, "Hosted App", app.Name)
		assert.Equal(t, "hosted-app", app.Slug)
		assert.Equal(t, "https://example.com", app.AppDomain)
		assert.Equal(t, "en-US", app.DefaultLocale)
		assert.True(t, app.EnableNewRegions)
		assert.False(t, app.IsPackaged)

		names, err := peer.Apps.Names(ctx, app.ID)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"en-US": "Hosted App", "de": "Gehostet"}, names)

		authors, err := peer.Apps.Authors(ctx, app.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{testmarket.Author}, authors)

		file := testmarket.LatestFile(ctx, t, peer, app.ID)
		assert.Equal(t, "hosted-app-1.0.webapp", file.Filename)
		assert.Equal(t, status.Pending, file.Status)
		assert.True(t, strings.HasPrefix(file.Hash, "sha256:"))
		assert.True(t, exists(ctx, t, peer.Storage.Public, apps.ApprovedPath(app.ID, file.Filename)))

		validation, err := peer.Apps.DB().Files().Validation(ctx, file.ID)
		require.NoError(t, err)
		assert.True(t, validation.Valid)

		entries, err := peer.Activity.ForApp(ctx, app.ID)
		require.NoError(t, err)
		require.NotEmpty(t, entries)
		assert.Equal(t, activity.CreateApp, entries[len(entries)-1].Action)

		app = testmarket.Complete(ctx, t, peer, app)
		assert.Equal(t, status.Pending, app.Status)
		latest, err := peer.Apps.LatestVersion(ctx, app.ID)
		require.NoError(t, err)
		assert.NotNil(t, latest.Nomination)
		assert.Equal(t, latest.ID, app.LatestVersionID)
		assert.Zero(t, app.CurrentVersionID)

		app = testmarket.Approve(ctx, t, peer, app)
		assert.Equal(t, status.Public, app.Status)
		assert.Equal(t, status.Public, app.HighestStatus)

		public, err := peer.Apps.IsVersionPublic(ctx, latest)
		require.NoError(t, err)
		assert.True(t, public)

		m, err := peer.Apps.ManifestJSON(ctx, app, 0)
		require.NoError(t, err)
		assert.Equal(t, "Hosted App", m.String("name"))
	})
}

func TestDisabledFilesAreGuarded(t *testing.T) {
	testmarket.Run(t, nil, func(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer) {
		app := testmarket.CreateHostedApp(ctx, t, peer, "https://example.com/manifest.webapp", hostedManifest)
		app = testmarket.Approve(ctx, t, peer, testmarket.Complete(ctx, t, peer, app))
		file := testmarket.LatestFile(ctx, t, peer, app.ID)

		approved := apps.ApprovedPath(app.ID, file.Filename)
		guarded := apps.GuardedPath(app.ID, file.Filename)

		require.NoError(t, peer.Apps.SetDisabledByUser(ctx, app, true))
		assert.False(t, exists(ctx, t, peer.Storage.Public, approved))
		assert.True(t, exists(ctx, t, peer.Storage.Private, guarded))

		require.NoError(t, peer.Apps.SetDisabledByUser(ctx, app, false))
		assert.True(t, exists(ctx, t, peer.Storage.Public, approved))
		assert.False(t, exists(ctx, t, peer.Storage.Private, guarded))

		require.NoError(t, peer.Apps.SetFileStatus(ctx, file, status.Disabled))
		assert.True(t, exists(ctx, t, peer.Storage.Private, guarded))

		r, err := peer.Apps.OpenFile(ctx, app.ID, file)
		require.NoError(t, err)
		require.NoError(t, r.Close())

		app, err = peer.Apps.Get(ctx, app.ID)
		require.NoError(t, err)
		assert.Zero(t, app.CurrentVersionID)
	})
}

func TestPackagedVersions(t *testing.T) {
	testmarket.Run(t, nil, func(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer) {
		app := testmarket.CreatePackagedApp(ctx, t, peer, packagedManifest("1.0"))
		assert.True(t, app.IsPackaged)
		app = testmarket.Approve(ctx, t, peer, testmarket.Complete(ctx, t, peer, app))
		first := app.CurrentVersionID

		second := newVersion(ctx, t, peer, app, "2.0")
		require.NotNil(t, second.Nomination, "approved apps nominate new versions")

		app, err := peer.Apps.Get(ctx, app.ID)
		require.NoError(t, err)
		assert.Equal(t, first, app.CurrentVersionID)
		assert.Equal(t, second.ID, app.LatestVersionID)

		third := newVersion(ctx, t, peer, app, "3.0")
		require.NotNil(t, third.Nomination)
		assert.WithinDuration(t, *second.Nomination, *third.Nomination, time.Second)

		secondFile, err := peer.Apps.VersionFile(ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, status.Disabled, secondFile.Status)
		assert.True(t, exists(ctx, t, peer.Storage.Private, apps.GuardedPath(app.ID, secondFile.Filename)))

		firstFile, err := peer.Apps.VersionFile(ctx, first)
		require.NoError(t, err)
		assert.Equal(t, status.Public, firstFile.Status)

		privileged, err := peer.Apps.IsPrivileged(ctx, app, third)
		require.NoError(t, err)
		assert.False(t, privileged)

		require.NoError(t, peer.Apps.DeleteVersion(ctx, third))
		thirdFile, err := peer.Apps.VersionFile(ctx, third.ID)
		require.NoError(t, err)
		assert.Equal(t, status.Disabled, thirdFile.Status)

		versions, err := peer.Apps.Versions(ctx, app.ID)
		require.NoError(t, err)
		for _, version := range versions {
			assert.NotEqual(t, third.ID, version.ID)
		}

		entries, err := peer.Activity.ForApp(ctx, app.ID)
		require.NoError(t, err)
		var deleted bool
		for _, entry := range entries {
			deleted = deleted || entry.Action == activity.DeleteVersion
		}
		assert.True(t, deleted)
	})
}

func TestDeleteUndelete(t *testing.T) {
	testmarket.Run(t, nil, func(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer) {
		app := testmarket.CreateHostedApp(ctx, t, peer, "https://example.com/manifest.webapp", hostedManifest)
		app = testmarket.Approve(ctx, t, peer, testmarket.Complete(ctx, t, peer, app))

		require.NoError(t, peer.Apps.Delete(ctx, app, apps.DeleteOptions{By: "admin@example.com"}))
		app, err := peer.Apps.Get(ctx, app.ID)
		require.NoError(t, err)
		assert.Equal(t, status.Deleted, app.Status)
		assert.Equal(t, status.Public, app.HighestStatus)
		assert.Equal(t, strconv.FormatInt(app.ID, 10), app.Slug)
		assert.Empty(t, app.AppDomain)
		assert.Zero(t, app.CurrentVersionID)

		current, err := peer.Apps.CurrentVersion(ctx, app)
		require.NoError(t, err)
		assert.Nil(t, current)

		require.NoError(t, peer.Apps.Undelete(ctx, app))
		app, err = peer.Apps.Get(ctx, app.ID)
		require.NoError(t, err)
		assert.Equal(t, status.Public, app.Status)
		assert.Equal(t, "hosted-app", app.Slug)
	})
}

func TestBlocklistedVersion(t *testing.T) {
	testmarket.Run(t, nil, func(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer) {
		blocklisted := testmarket.Package(t, `{"name": "Blocked", "version": "blocklisted", "developer": {"name": "Mozilla"}}`, nil)
		_, err := storage.Save(ctx, peer.Storage.Private, apps.DefaultBlocklistedZip, bytes.NewReader(blocklisted))
		require.NoError(t, err)

		hosted := testmarket.CreateHostedApp(ctx, t, peer, "https://example.com/manifest.webapp", hostedManifest)
		_, err = peer.Apps.CreateBlocklistedVersion(ctx, hosted)
		require.Error(t, err)
		assert.True(t, apps.ErrInvalid.Has(err))

		app := testmarket.CreatePackagedApp(ctx, t, peer, packagedManifest("1.0"))
		app = testmarket.Approve(ctx, t, peer, testmarket.Complete(ctx, t, peer, app))

		version, err := peer.Apps.CreateBlocklistedVersion(ctx, app)
		require.NoError(t, err)

		app, err = peer.Apps.Get(ctx, app.ID)
		require.NoError(t, err)
		assert.Equal(t, status.Blocked, app.Status)
		assert.Equal(t, version.ID, app.CurrentVersionID)
		assert.Equal(t, version.ID, app.LatestVersionID)

		file, err := peer.Apps.VersionFile(ctx, version.ID)
		require.NoError(t, err)
		assert.Equal(t, status.Blocked, file.Status)
		assert.Equal(t, int64(len(blocklisted)), file.Size)
		assert.True(t, exists(ctx, t, peer.Storage.Public, apps.SignedPath(app.ID, file.Filename)))

		newVersion(ctx, t, peer, app, "2.0")
		escalated, err := peer.Reviewers.InEscalation(ctx, app.ID)
		require.NoError(t, err)
		assert.True(t, escalated)
	})
}

func TestUpdateNames(t *testing.T) {
	testmarket.Run(t, nil, func(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer) {
		app := testmarket.CreateHostedApp(ctx, t, peer, "https://example.com/manifest.webapp", hostedManifest)

		changes, err := peer.Apps.UpdateNames(ctx, app, map[string]string{
			"de":    "",
			"fr":    "Hébergé",
			"en-US": "New Name",
		})
		require.NoError(t, err)
		assert.Equal(t, `"Hébergé" (fr).`, changes.Added)
		assert.Equal(t, `"Gehostet" (de).`, changes.Deleted)
		assert.Equal(t, `"Hosted App" -> "New Name" (en-US).`, changes.Updated)

		app, err = peer.Apps.Get(ctx, app.ID)
		require.NoError(t, err)
		assert.Equal(t, "New Name", app.Name)

		changes, err = peer.Apps.UpdateNames(ctx, app, map[string]string{"en-US": "", "fr": "Hébergé"})
		require.NoError(t, err)
		assert.False(t, changes.Any())

		_, newLocale, changed, err := peer.Apps.UpdateDefaultLocale(ctx, app, "fr")
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, "fr", newLocale)
		assert.Equal(t, "Hébergé", app.Name)
	})
}

func TestUpdateNamesDroppedLocale(t *testing.T) {
	testmarket.Run(t, nil, func(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer) {
		app := testmarket.CreateHostedApp(ctx, t, peer, "https://example.com/manifest.webapp", hostedManifest)

		// de is gone from the manifest and pt_BR is spelled with an underscore
		changes, err := peer.Apps.UpdateNames(ctx, app, map[string]string{
			"en-US": "Hosted App",
			"pt_BR": "Hospedado",
			"xx-YY": "Unsupported",
		})
		require.NoError(t, err)
		assert.Equal(t, `"Hospedado" (pt-BR).`, changes.Added)
		assert.Equal(t, `"Gehostet" (de).`, changes.Deleted)
		assert.Empty(t, changes.Updated)

		names, err := peer.Apps.Names(ctx, app.ID)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"en-US": "Hosted App", "pt-BR": "Hospedado"}, names)

		// the default locale is never removed
		changes, err = peer.Apps.UpdateNames(ctx, app, map[string]string{})
		require.NoError(t, err)
		assert.Equal(t, `"Hospedado" (pt-BR).`, changes.Deleted)

		names, err = peer.Apps.Names(ctx, app.ID)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"en-US": "Hosted App"}, names)
	})
}

func TestRegions(t *testing.T) {
	testmarket.Run(t, nil, func(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer) {
		app := testmarket.CreateHostedApp(ctx, t, peer, "https://example.com/manifest.webapp", hostedManifest)

		all, err := peer.Apps.RegionIDs(ctx, app, true)
		require.NoError(t, err)
		require.NotEmpty(t, all)

		created, err := peer.Apps.ExcludeRegion(ctx, app, all[0])
		require.NoError(t, err)
		assert.True(t, created)
		created, err = peer.Apps.ExcludeRegion(ctx, app, all[0])
		require.NoError(t, err)
		assert.False(t, created)

		_, err = peer.Apps.ExcludeRegion(ctx, app, -1)
		require.Error(t, err)

		remaining, err := peer.Apps.RegionIDs(ctx, app, true)
		require.NoError(t, err)
		assert.Equal(t, all[1:], remaining)
	})
}

func TestDeleteNotifiesAndRemovesPreviews(t *testing.T) {
	testmarket.Run(t, nil, func(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer) {
		app := testmarket.CreateHostedApp(ctx, t, peer, "https://example.com/manifest.webapp", hostedManifest)
		app = testmarket.Approve(ctx, t, peer, testmarket.Complete(ctx, t, peer, app))

		var previews []*apps.Preview
		for position := 0; position < 2; position++ {
			preview := &apps.Preview{AppID: app.ID, Filetype: "image/png", Thumbtype: "image/png", Position: position}
			id, err := peer.DB.Apps().Previews().Insert(ctx, preview)
			require.NoError(t, err)
			preview.ID = id
			previews = append(previews, preview)

			for _, path := range []string{preview.ThumbnailPath(), preview.ImagePath()} {
				_, err := storage.Save(ctx, peer.Storage.Public, path, strings.NewReader("png"))
				require.NoError(t, err)
			}
		}

		sender, ok := peer.Mail.Sender.(*mail.SimulatedSender)
		require.True(t, ok)
		mailed := len(sender.Sent())

		err := peer.Apps.Delete(ctx, app, apps.DeleteOptions{
			By:     "admin@example.com",
			Notes:  "duplicate listing",
			Reason: "no longer maintained",
		})
		require.NoError(t, err)

		sent := sender.Sent()
		require.Len(t, sent, mailed+1)
		notice := sent[mailed]
		assert.Equal(t, []string{"marketplace-staff+deletions@mozilla.org"}, notice.To)
		assert.Equal(t, "Deleting App hosted-app ("+strconv.FormatInt(app.ID, 10)+")", notice.Subject)
		assert.Contains(t, notice.Body, "App: Hosted App")
		assert.Contains(t, notice.Body, "URL: https://marketplace.firefox.com/app/hosted-app/")
		assert.Contains(t, notice.Body, "DELETED BY: admin@example.com")
		assert.Contains(t, notice.Body, "AUTHORS: "+testmarket.Author)
		assert.Contains(t, notice.Body, "NOTES: duplicate listing")
		assert.Contains(t, notice.Body, "REASON GIVEN BY USER FOR DELETION: no longer maintained")

		for _, preview := range previews {
			for _, path := range []string{preview.ThumbnailPath(), preview.ImagePath()} {
				exists, err := storage.Exists(ctx, peer.Storage.Public, path)
				require.NoError(t, err)
				assert.False(t, exists, path)
			}
		}

		// deleting twice neither mails nor fails
		require.NoError(t, peer.Apps.Delete(ctx, app, apps.DeleteOptions{}))
		assert.Len(t, sender.Sent(), mailed+1)
	})
}
