// Copyright (C) 2021 Storj Labs, Inc.
// See LICENSE for copying information.

package s3store

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"

	"github.com/mozilla/marketplace/storage"
)

func TestKeys(t *testing.T) {
	store, err := New(Config{Endpoint: "localhost:9000", Bucket: "apps", Prefix: "/private/"})
	require.NoError(t, err)

	key, err := store.key("guarded-addons/1/app-1.0.zip")
	require.NoError(t, err)
	assert.Equal(t, "private/guarded-addons/1/app-1.0.zip", key)
	assert.Equal(t, "guarded-addons/1/app-1.0.zip", store.path(key))

	_, err = store.key("../escape")
	require.True(t, storage.ErrInvalidPath.Has(err))

	_, err = New(Config{Bucket: "apps"})
	require.Error(t, err)
}

// TestLive runs against a real bucket, e.g.
// MARKETPLACE_TEST_S3=localhost:9000 MARKETPLACE_TEST_S3_BUCKET=test.
func TestLive(t *testing.T) {
	endpoint := os.Getenv("MARKETPLACE_TEST_S3")
	if endpoint == "" {
		t.Skip("MARKETPLACE_TEST_S3 not set")
	}

	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store, err := New(Config{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("MARKETPLACE_TEST_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("MARKETPLACE_TEST_S3_SECRET_KEY"),
		Bucket:    os.Getenv("MARKETPLACE_TEST_S3_BUCKET"),
		Prefix:    "s3store-test",
	})
	require.NoError(t, err)

	_, err = storage.Save(ctx, store, "addons/1/app.webapp", bytes.NewReader([]byte(`{"name":"x"}`)))
	require.NoError(t, err)

	r, err := store.Open(ctx, "addons/1/app.webapp")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, `{"name":"x"}`, string(data))

	var paths []string
	require.NoError(t, store.Walk(ctx, "addons", func(info storage.Info) error {
		paths = append(paths, info.Path)
		return nil
	}))
	assert.Contains(t, paths, "addons/1/app.webapp")

	require.NoError(t, store.Delete(ctx, "addons/1/app.webapp"))
	_, err = store.Stat(ctx, "addons/1/app.webapp")
	require.True(t, storage.ErrNotFound.Has(err))
}
