// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package developers_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"

	"github.com/mozilla/marketplace/marketplace"
	"github.com/mozilla/marketplace/marketplace/mail"
	"github.com/mozilla/marketplace/marketplace/regions"
	"github.com/mozilla/marketplace/marketplace/testmarket"
	"github.com/mozilla/marketplace/marketplace/validation"
)

const manifestJSON = `{"name": "Hosted App", "version": "1.0", "developer": {"name": "Dev"}}`

func manifestServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/manifest.webapp":
			w.Header().Set("Content-Type", "application/x-web-app-manifest+json")
			_, _ = w.Write([]byte(manifestJSON))
		case "/wrong-type.webapp":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(manifestJSON))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestFetchManifest(t *testing.T) {
	testmarket.Run(t, nil, func(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer) {
		server := manifestServer(t)
		defer server.Close()

		upload, err := peer.Apps.NewUpload(ctx)
		require.NoError(t, err)
		require.NoError(t, peer.Developers.QueueFetchManifest(ctx, server.URL+"/manifest.webapp", upload))

		upload, err = peer.Apps.GetUpload(ctx, upload.UUID)
		require.NoError(t, err)
		assert.True(t, upload.Valid, upload.Validation)
		assert.Equal(t, server.URL+"/manifest.webapp", upload.Name)
		assert.True(t, strings.HasPrefix(upload.Hash, "sha256:"))

		result, err := validation.ParseResult(upload.Validation)
		require.NoError(t, err)
		assert.Equal(t, "Hosted App", result.Metadata["name"])

		upload, err = peer.Apps.NewUpload(ctx)
		require.NoError(t, err)
		require.NoError(t, peer.Developers.FetchManifest(ctx, server.URL+"/wrong-type.webapp", upload.UUID))
		upload, err = peer.Apps.GetUpload(ctx, upload.UUID)
		require.NoError(t, err)
		assert.False(t, upload.Valid)
		result, err = validation.ParseResult(upload.Validation)
		require.NoError(t, err)
		require.NotEmpty(t, result.ErrorMessages())
		assert.Contains(t, strings.Join(result.ErrorMessages(), "\n"), "Content-Type")

		upload, err = peer.Apps.NewUpload(ctx)
		require.NoError(t, err)
		require.NoError(t, peer.Developers.FetchManifest(ctx, server.URL+"/missing.webapp", upload.UUID))
		upload, err = peer.Apps.GetUpload(ctx, upload.UUID)
		require.NoError(t, err)
		assert.False(t, upload.Valid)
		assert.True(t, upload.Processed())
		assert.Empty(t, upload.Path)
	})
}

func TestValidateFile(t *testing.T) {
	testmarket.Run(t, nil, func(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer) {
		app := testmarket.CreateHostedApp(ctx, t, peer, "https://example.com/manifest.webapp", manifestJSON)
		file := testmarket.LatestFile(ctx, t, peer, app.ID)

		require.NoError(t, peer.Developers.QueueFileValidation(ctx, file.ID))

		result, err := peer.Developers.ValidateFile(ctx, file.ID)
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.True(t, result.Valid)
		assert.Zero(t, result.Errors)
		assert.Equal(t, 1, result.Warnings)

		result, err = peer.Developers.ValidateFile(ctx, file.ID+1000)
		require.NoError(t, err)
		assert.Nil(t, result)
	})
}

func TestValidationDisabled(t *testing.T) {
	testmarket.Run(t, func(config *marketplace.Config) {
		config.Developers.ValidateApps = false
	}, func(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer) {
		upload, err := peer.Apps.NewUpload(ctx)
		require.NoError(t, err)
		require.NoError(t, peer.Apps.AddFile(ctx, upload, strings.NewReader(`{"version": 1}`), "manifest.webapp"))
		require.NoError(t, peer.Developers.QueueValidation(ctx, upload, ""))

		upload, err = peer.Apps.GetUpload(ctx, upload.UUID)
		require.NoError(t, err)
		assert.False(t, upload.Processed())
	})
}

func TestNewRegions(t *testing.T) {
	testmarket.Run(t, nil, func(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer) {
		region, ok := regions.BySlug("fr")
		require.True(t, ok)

		optedOut := testmarket.CreateHostedApp(ctx, t, peer, "https://a.example.com/manifest.webapp", manifestJSON)
		optedOut.EnableNewRegions = false
		require.NoError(t, peer.Apps.Save(ctx, optedOut))

		optedIn := testmarket.CreateHostedApp(ctx, t, peer, "https://b.example.com/manifest.webapp",
			`{"name": "Listed App", "developer": {"name": "Dev"}}`)

		require.NoError(t, peer.Developers.ExcludeNewRegion(ctx, []int{region.ID}))

		ids, err := peer.Apps.RegionIDs(ctx, optedOut, true)
		require.NoError(t, err)
		assert.NotContains(t, ids, region.ID)
		ids, err = peer.Apps.RegionIDs(ctx, optedIn, true)
		require.NoError(t, err)
		assert.Contains(t, ids, region.ID)

		require.NoError(t, peer.Developers.SendNewRegionEmails(ctx, []int{region.ID}))

		sender, ok := peer.Mail.Sender.(*mail.SimulatedSender)
		require.True(t, ok)
		sent := sender.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, []string{testmarket.Author}, sent[0].To)
		assert.Equal(t, "Listed App: France region added to the Firefox Marketplace", sent[0].Subject)
		assert.Contains(t, sent[0].Body, "/developers/app/listed-app/edit#details")

		require.Error(t, peer.Developers.RegionExclude(ctx, []int64{optedIn.ID}, []int{-1}))
	})
}
