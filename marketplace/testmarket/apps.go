// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package testmarket

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"

	"github.com/mozilla/marketplace/marketplace"
	"github.com/mozilla/marketplace/marketplace/apps"
	"github.com/mozilla/marketplace/marketplace/status"
)

// Author is the developer address apps are created with.
const Author = "dev@example.com"

// Package returns a zip archive holding manifest.webapp and the given
// extra files.
func Package(t *testing.T, manifestJSON string, files map[string]string) []byte {
	var buf bytes.Buffer
	archive := zip.NewWriter(&buf)
	w, err := archive.Create("manifest.webapp")
	require.NoError(t, err)
	_, err = w.Write([]byte(manifestJSON))
	require.NoError(t, err)
	for name, content := range files {
		w, err := archive.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, archive.Close())
	return buf.Bytes()
}

// Upload stores content as a validated upload. name is the manifest url
// of hosted apps or the file name of packages.
func Upload(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer, content []byte, name string) *apps.FileUpload {
	upload, err := peer.Apps.NewUpload(ctx)
	require.NoError(t, err)
	require.NoError(t, peer.Apps.AddFile(ctx, upload, bytes.NewReader(content), name))

	url := ""
	if !bytes.HasPrefix(content, []byte("PK")) {
		url = name
	}
	require.NoError(t, peer.Developers.ValidateUpload(ctx, upload.UUID, url))

	upload, err = peer.Apps.GetUpload(ctx, upload.UUID)
	require.NoError(t, err)
	require.True(t, upload.Valid, upload.Validation)
	return upload
}

// CreateHostedApp creates a hosted app from a manifest served at
// manifestURL.
func CreateHostedApp(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer, manifestURL, manifestJSON string) *apps.Webapp {
	upload := Upload(ctx, t, peer, []byte(manifestJSON), manifestURL)
	app, err := peer.Apps.CreateFromUpload(ctx, upload, false, Author)
	require.NoError(t, err)
	return app
}

// CreatePackagedApp creates a packaged app.
func CreatePackagedApp(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer, manifestJSON string) *apps.Webapp {
	upload := Upload(ctx, t, peer, Package(t, manifestJSON, map[string]string{"index.html": "<html></html>"}), "app.zip")
	app, err := peer.Apps.CreateFromUpload(ctx, upload, true, Author)
	require.NoError(t, err)
	return app
}

// Complete fills in the submission details and recomputes the status,
// which nominates the app.
func Complete(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer, app *apps.Webapp) *apps.Webapp {
	app.SupportEmail = "support@example.com"
	app.Categories = []string{"games"}
	app.DeviceTypes = []int{1}
	require.NoError(t, peer.Apps.Save(ctx, app))
	require.NoError(t, peer.Apps.UpdateStatus(ctx, app))

	app, err := peer.Apps.Get(ctx, app.ID)
	require.NoError(t, err)
	return app
}

// Approve makes the app and the files of its latest version public.
func Approve(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer, app *apps.Webapp) *apps.Webapp {
	require.NoError(t, peer.Apps.SetStatus(ctx, app, status.Public))

	latest, err := peer.Apps.LatestVersion(ctx, app.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	files, err := peer.Apps.DB().Files().ListForVersion(ctx, latest.ID)
	require.NoError(t, err)
	for _, file := range files {
		require.NoError(t, peer.Apps.SetFileStatus(ctx, file, status.Public))
	}

	app, err = peer.Apps.Get(ctx, app.ID)
	require.NoError(t, err)
	require.Equal(t, latest.ID, app.CurrentVersionID)
	return app
}

// LatestFile returns the file of the latest version of an app.
func LatestFile(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer, appID int64) *apps.File {
	latest, err := peer.Apps.LatestVersion(ctx, appID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	file, err := peer.Apps.VersionFile(ctx, latest.ID)
	require.NoError(t, err)
	require.NotNil(t, file)
	return file
}
