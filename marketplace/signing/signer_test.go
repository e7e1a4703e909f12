// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package signing_test

import (
	"archive/zip"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"

	"github.com/mozilla/marketplace/marketplace"
	"github.com/mozilla/marketplace/marketplace/apps"
	"github.com/mozilla/marketplace/marketplace/signing"
	"github.com/mozilla/marketplace/marketplace/testmarket"
	"github.com/mozilla/marketplace/storage"
)

const packaged = `{"name": "Packaged App", "version": "1.0", "developer": {"name": "Dev"}, "launch_path": "/index.html"}`

type signingServer struct {
	*httptest.Server

	mu         sync.Mutex
	fail       bool
	signatures []string
}

func newSigningServer(t *testing.T) *signingServer {
	server := &signingServer{}
	server.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/1.0/sign_app" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		server.mu.Lock()
		defer server.mu.Unlock()
		if server.fail {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}

		file, _, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(file)
		assert.NoError(t, err)
		server.signatures = append(server.signatures, string(data))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"zigbert.rsa": base64.StdEncoding.EncodeToString([]byte("pkcs7")),
		})
	}))
	return server
}

func (server *signingServer) calls() int {
	server.mu.Lock()
	defer server.mu.Unlock()
	return len(server.signatures)
}

func (server *signingServer) setFail(fail bool) {
	server.mu.Lock()
	defer server.mu.Unlock()
	server.fail = fail
}

func readSigned(ctx *testcontext.Context, t *testing.T, store storage.Storage, path string) map[string]string {
	r, err := store.Open(ctx, path)
	require.NoError(t, err)
	defer ctx.Check(r.Close)

	archive, err := zip.NewReader(r, r.Size())
	require.NoError(t, err)

	files := map[string]string{}
	for _, file := range archive.File {
		rc, err := file.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		files[file.Name] = string(data)
	}
	require.NotEmpty(t, archive.File)
	assert.Equal(t, signing.PKCS7Path, archive.File[0].Name)
	return files
}

func TestSign(t *testing.T) {
	testmarket.Run(t, nil, func(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer) {
		server := newSigningServer(t)
		defer server.Close()

		signer := signing.NewSigner(zaptest.NewLogger(t), peer.Apps, signing.Config{
			Server:          server.URL,
			ReviewerServer:  server.URL,
			Timeout:         10 * time.Second,
			OmitPerFileSigs: true,
		})

		// approval copies the package unsigned since the peer has no server
		app := testmarket.CreatePackagedApp(ctx, t, peer, packaged)
		app = testmarket.Approve(ctx, t, peer, testmarket.Complete(ctx, t, peer, app))
		file := testmarket.LatestFile(ctx, t, peer, app.ID)

		path, err := signer.Sign(ctx, app.CurrentVersionID, false, false)
		require.NoError(t, err)
		assert.Equal(t, apps.SignedPath(app.ID, file.Filename), path)
		assert.Zero(t, server.calls(), "existing packages are reused")

		path, err = signer.Sign(ctx, app.CurrentVersionID, false, true)
		require.NoError(t, err)
		assert.Equal(t, 1, server.calls())

		files := readSigned(ctx, t, peer.Storage.Public, path)
		assert.Equal(t, "pkcs7", files[signing.PKCS7Path])
		assert.Equal(t, packaged, files["manifest.webapp"])
		assert.Contains(t, files[signing.ManifestPath], "Name: index.html\n")
		assert.Contains(t, files[signing.SignaturePath], "SHA256-Digest-Manifest: ")
		assert.NotContains(t, files[signing.SignaturePath], "Name: ")

		var ids struct {
			ID      string `json:"id"`
			Version int64  `json:"version"`
		}
		require.NoError(t, json.Unmarshal([]byte(files[signing.IDsPath]), &ids))
		assert.Equal(t, app.GUID.String(), ids.ID)
		assert.Equal(t, app.CurrentVersionID, ids.Version)

		path, err = signer.Sign(ctx, app.CurrentVersionID, true, false)
		require.NoError(t, err)
		assert.Equal(t, apps.SignedReviewerPath(app.ID, file.Filename), path)
		assert.Equal(t, 2, server.calls())

		files = readSigned(ctx, t, peer.Storage.Private, path)
		require.NoError(t, json.Unmarshal([]byte(files[signing.IDsPath]), &ids))
		assert.Equal(t, "reviewer-"+app.GUID.String()+"-"+strconv.FormatInt(app.CurrentVersionID, 10), ids.ID)

		exists, err := storage.Exists(ctx, peer.Storage.Public, path)
		require.NoError(t, err)
		assert.False(t, exists, "reviewer packages stay private")

		server.setFail(true)
		_, err = signer.Sign(ctx, app.CurrentVersionID, true, true)
		require.Error(t, err)
		exists, err = storage.Exists(ctx, peer.Storage.Private, path)
		require.NoError(t, err)
		assert.False(t, exists, "failed signing removes the package")

		hosted := testmarket.CreateHostedApp(ctx, t, peer, "https://example.com/manifest.webapp",
			`{"name": "Hosted", "developer": {"name": "Dev"}}`)
		_, err = signer.Sign(ctx, hosted.LatestVersionID, false, false)
		require.Error(t, err)
		assert.True(t, signing.ErrSigning.Has(err))
		assert.True(t, strings.Contains(err.Error(), "Not packaged"))
	})
}

func TestSignWithoutServer(t *testing.T) {
	testmarket.Run(t, nil, func(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer) {
		app := testmarket.CreatePackagedApp(ctx, t, peer, packaged)
		version, err := peer.Apps.LatestVersion(ctx, app.ID)
		require.NoError(t, err)

		path, err := peer.Signer.Sign(ctx, version.ID, true, false)
		require.NoError(t, err)

		file := testmarket.LatestFile(ctx, t, peer, app.ID)
		info, err := peer.Storage.Private.Stat(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, file.Size, info.Size)
	})
}
