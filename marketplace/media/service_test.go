// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package media_test

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storj.io/common/memory"
	"storj.io/common/testcontext"

	"github.com/mozilla/marketplace/marketplace"
	"github.com/mozilla/marketplace/marketplace/apps"
	"github.com/mozilla/marketplace/marketplace/media"
	"github.com/mozilla/marketplace/marketplace/testmarket"
	"github.com/mozilla/marketplace/storage"
)

// iconHost serves a hosted manifest and its icon.
type iconHost struct {
	*httptest.Server

	mu       sync.Mutex
	manifest string
	icon     []byte
}

func newIconHost(icon []byte) *iconHost {
	host := &iconHost{icon: icon}
	host.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host.mu.Lock()
		defer host.mu.Unlock()
		switch r.URL.Path {
		case "/manifest.webapp":
			w.Header().Set("Content-Type", "application/x-web-app-manifest+json")
			_, _ = w.Write([]byte(host.manifest))
		case "/img/icon-128.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(host.icon)
		default:
			http.NotFound(w, r)
		}
	}))
	host.manifest = `{
		"name": "Icon App",
		"version": "1.0",
		"developer": {"name": "Dev"},
		"icons": {"16": "/img/missing.png", "128": "/img/icon-128.png"}
	}`
	return host
}

func hostedApp(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer, host *iconHost) *apps.Webapp {
	app := testmarket.CreateHostedApp(ctx, t, peer, host.URL+"/manifest.webapp", host.manifest)
	app, err := peer.Apps.Get(ctx, app.ID)
	require.NoError(t, err)
	return app
}

func readImage(ctx *testcontext.Context, t *testing.T, store storage.Storage, path string) image.Point {
	r, err := store.Open(ctx, path)
	require.NoError(t, err)
	defer ctx.Check(r.Close)
	content, err := io.ReadAll(r)
	require.NoError(t, err)
	img, err := media.Decode(content, 0)
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MimeType())
	return img.Size()
}

func requireIcons(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer, app *apps.Webapp, source []byte) {
	sum := md5.Sum(source)
	assert.Equal(t, media.IconType, app.IconType)
	assert.Equal(t, hex.EncodeToString(sum[:])[:8], app.IconHash)
	for _, size := range media.IconSizes {
		assert.Equal(t, image.Pt(size, size), readImage(ctx, t, peer.Storage.Public, apps.IconPath(app.ID, size)))
	}
}

func requireNoIcons(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer, app *apps.Webapp) {
	assert.Empty(t, app.IconType)
	assert.Empty(t, app.IconHash)
	for _, size := range media.IconSizes {
		exists, err := storage.Exists(ctx, peer.Storage.Public, apps.IconPath(app.ID, size))
		require.NoError(t, err)
		assert.False(t, exists)
	}
}

func TestHostedIcon(t *testing.T) {
	testmarket.Run(t, nil, func(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer) {
		icon := encodePNG(t, 256, 256)
		host := newIconHost(icon)
		defer host.Close()

		app := hostedApp(ctx, t, peer, host)
		requireIcons(ctx, t, peer, app, icon)
	})
}

func TestHostedIconOversized(t *testing.T) {
	testmarket.Run(t, func(config *marketplace.Config) {
		config.Media.MaxIconSize = 2 * memory.KiB
	}, func(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer) {
		icon := encodePNG(t, 256, 256)
		require.Greater(t, len(icon), 2*memory.KiB.Int())
		host := newIconHost(icon)
		defer host.Close()

		app := hostedApp(ctx, t, peer, host)
		requireNoIcons(ctx, t, peer, app)
	})
}

func TestHostedIconInvalid(t *testing.T) {
	testmarket.Run(t, nil, func(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer) {
		host := newIconHost([]byte("<html>not an icon</html>"))
		defer host.Close()

		app := hostedApp(ctx, t, peer, host)
		requireNoIcons(ctx, t, peer, app)

		// a fixed icon is picked up when the fetch is queued again
		icon := encodeJPEG(t, 128, 128)
		host.mu.Lock()
		host.icon = icon
		host.mu.Unlock()

		file := testmarket.LatestFile(ctx, t, peer, app.ID)
		require.NoError(t, peer.Media.QueueFetchIcon(ctx, app.ID, file.ID))
		app, err := peer.Apps.Get(ctx, app.ID)
		require.NoError(t, err)
		requireIcons(ctx, t, peer, app, icon)
	})
}

func TestPackagedIcon(t *testing.T) {
	testmarket.Run(t, nil, func(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer) {
		icon := encodePNG(t, 128, 128)
		manifestJSON := `{"name": "Packaged", "version": "1.0", "developer": {"name": "Dev"},
			"launch_path": "/index.html", "icons": {"128": "/icons/128.png"}}`
		upload := testmarket.Upload(ctx, t, peer, testmarket.Package(t, manifestJSON, map[string]string{
			"icons/128.png": string(icon),
		}), "app.zip")
		app, err := peer.Apps.CreateFromUpload(ctx, upload, true, testmarket.Author)
		require.NoError(t, err)
		requireIcons(ctx, t, peer, app, icon)

		missing := testmarket.CreatePackagedApp(ctx, t, peer, strings.Replace(manifestJSON, "/icons/128.png", "/icons/none.png", 1))
		requireNoIcons(ctx, t, peer, missing)
	})
}

func TestDataURLIcon(t *testing.T) {
	testmarket.Run(t, nil, func(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer) {
		icon := encodePNG(t, 64, 64)
		manifestJSON := `{"name": "Data App", "version": "1.0", "developer": {"name": "Dev"},
			"icons": {"64": "data:image/png;base64,` + base64.StdEncoding.EncodeToString(icon) + `"}}`

		app := testmarket.CreateHostedApp(ctx, t, peer, "https://example.com/manifest.webapp", manifestJSON)
		assert.Equal(t, media.IconType, app.IconType)
		// small icons are stored without enlarging them
		assert.Equal(t, image.Pt(64, 64), readImage(ctx, t, peer.Storage.Public, apps.IconPath(app.ID, 128)))
		assert.Equal(t, image.Pt(32, 32), readImage(ctx, t, peer.Storage.Public, apps.IconPath(app.ID, 32)))

		noIcons := testmarket.CreateHostedApp(ctx, t, peer, "https://example.org/manifest.webapp",
			`{"name": "Plain", "version": "1.0", "developer": {"name": "Dev"}}`)
		requireNoIcons(ctx, t, peer, noIcons)
	})
}

func TestUploadIcon(t *testing.T) {
	testmarket.Run(t, func(config *marketplace.Config) {
		config.Media.MaxIconSize = 64 * memory.KiB
		config.Media.MaxPixels = 1000 * 1000
	}, func(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer) {
		app := testmarket.CreateHostedApp(ctx, t, peer, "https://example.com/manifest.webapp",
			`{"name": "Plain", "version": "1.0", "developer": {"name": "Dev"}}`)

		for name, content := range map[string][]byte{
			"not square": encodePNG(t, 128, 200),
			"too small":  encodePNG(t, 64, 64),
			"garbage":    []byte("GIF89a"),
			"oversized":  append(encodePNG(t, 128, 128), make([]byte, 64*memory.KiB.Int())...),
			"too many":   encodePNG(t, 1001, 1001),
		} {
			err := peer.Media.UploadIcon(ctx, app, content)
			require.Error(t, err, name)
			assert.True(t, media.ErrInvalidImage.Has(err), name)
		}
		requireNoIcons(ctx, t, peer, app)

		icon := encodePNG(t, 128, 128)
		require.NoError(t, peer.Media.UploadIcon(ctx, app, icon))
		app, err := peer.Apps.Get(ctx, app.ID)
		require.NoError(t, err)
		requireIcons(ctx, t, peer, app, icon)
	})
}

func TestPreviews(t *testing.T) {
	testmarket.Run(t, nil, func(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer) {
		app := testmarket.CreateHostedApp(ctx, t, peer, "https://example.com/manifest.webapp",
			`{"name": "Plain", "version": "1.0", "developer": {"name": "Dev"}}`)

		_, err := peer.Media.AddPreview(ctx, app, encodePNG(t, 300, 300), 0)
		require.Error(t, err)
		assert.True(t, media.ErrInvalidImage.Has(err))

		portrait, err := peer.Media.AddPreview(ctx, app, encodeJPEG(t, 640, 960), 0)
		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", portrait.Filetype)
		assert.Equal(t, "image/png", portrait.Thumbtype)
		assert.Equal(t, []int{100, 150}, portrait.Sizes.Thumbnail)
		assert.Equal(t, []int{640, 960}, portrait.Sizes.Image)
		assert.Equal(t, image.Pt(100, 150), readImage(ctx, t, peer.Storage.Public, portrait.ThumbnailPath()))
		assert.Equal(t, image.Pt(640, 960), readImage(ctx, t, peer.Storage.Public, portrait.ImagePath()))

		landscape, err := peer.Media.AddPreview(ctx, app, encodePNG(t, 1200, 800), 1)
		require.NoError(t, err)
		assert.Equal(t, []int{150, 100}, landscape.Sizes.Thumbnail)
		assert.Equal(t, []int{1050, 700}, landscape.Sizes.Image)
		assert.Equal(t, image.Pt(1050, 700), readImage(ctx, t, peer.Storage.Public, landscape.ImagePath()))

		previews, err := peer.Apps.Previews(ctx, app.ID)
		require.NoError(t, err)
		require.Len(t, previews, 2)
		assert.Equal(t, portrait.ID, previews[0].ID)
		assert.Equal(t, landscape.ID, previews[1].ID)

		var sources []string
		require.NoError(t, peer.Storage.Private.Walk(ctx, apps.TmpPrefix, func(info storage.Info) error {
			sources = append(sources, info.Path)
			return nil
		}))
		assert.Empty(t, sources)

		require.NoError(t, peer.Apps.Delete(ctx, app, apps.DeleteOptions{By: "admin@example.com"}))
		for _, preview := range previews {
			exists, err := storage.Exists(ctx, peer.Storage.Public, preview.ThumbnailPath())
			require.NoError(t, err)
			assert.False(t, exists)
		}
	})
}
