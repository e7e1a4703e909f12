// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package manifestupdate_test

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"

	"github.com/mozilla/marketplace/marketplace"
	"github.com/mozilla/marketplace/marketplace/activity"
	"github.com/mozilla/marketplace/marketplace/apps"
	"github.com/mozilla/marketplace/marketplace/mail"
	"github.com/mozilla/marketplace/marketplace/tasks"
	"github.com/mozilla/marketplace/marketplace/testmarket"
)

const original = `{"name": "Hosted App", "version": "1.0", "developer": {"name": "Dev"}}`

type manifestHost struct {
	*httptest.Server

	mu      sync.Mutex
	content string
	broken  bool
}

func newManifestHost() *manifestHost {
	host := &manifestHost{content: original}
	host.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host.mu.Lock()
		defer host.mu.Unlock()
		if host.broken || r.URL.Path != "/manifest.webapp" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/x-web-app-manifest+json")
		_, _ = w.Write([]byte(host.content))
	}))
	return host
}

func (host *manifestHost) set(content string, broken bool) {
	host.mu.Lock()
	defer host.mu.Unlock()
	host.content, host.broken = content, broken
}

func actions(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer, appID int64) []activity.Action {
	entries, err := peer.Activity.ForApp(ctx, appID)
	require.NoError(t, err)
	var list []activity.Action
	for _, entry := range entries {
		list = append(list, entry.Action)
	}
	return list
}

func approvedApp(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer, host *manifestHost) *apps.Webapp {
	app := testmarket.CreateHostedApp(ctx, t, peer, host.URL+"/manifest.webapp", original)
	return testmarket.Approve(ctx, t, peer, testmarket.Complete(ctx, t, peer, app))
}

func TestUpdateManifests(t *testing.T) {
	testmarket.Run(t, nil, func(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer) {
		host := newManifestHost()
		defer host.Close()

		app := approvedApp(ctx, t, peer, host)
		before := testmarket.LatestFile(ctx, t, peer, app.ID)
		service := peer.ManifestUpdate.Service

		failed := map[int64]int{}
		require.NoError(t, service.UpdateManifests(ctx, []int64{app.ID}, true, failed))
		assert.Empty(t, failed)
		assert.Equal(t, before.Hash, testmarket.LatestFile(ctx, t, peer, app.ID).Hash)
		in, err := peer.Reviewers.InRereview(ctx, app.ID)
		require.NoError(t, err)
		assert.False(t, in, "unchanged manifests are skipped")

		host.set(`{"name": "Renamed App", "version": "1.0", "developer": {"name": "Dev"}}`, false)
		require.NoError(t, service.UpdateManifests(ctx, []int64{app.ID}, true, failed))

		after := testmarket.LatestFile(ctx, t, peer, app.ID)
		assert.NotEqual(t, before.Hash, after.Hash)
		in, err = peer.Reviewers.InRereview(ctx, app.ID)
		require.NoError(t, err)
		assert.True(t, in)
		assert.Contains(t, actions(ctx, t, peer, app.ID), activity.RereviewManifestChange)

		m, err := peer.Apps.ManifestJSON(ctx, app, 0)
		require.NoError(t, err)
		assert.Equal(t, "Renamed App", m.String("name"))

		// missing apps are ignored
		require.NoError(t, service.UpdateManifests(ctx, []int64{app.ID + 1000}, true, failed))
	})
}

func TestFetchFailures(t *testing.T) {
	testmarket.Run(t, nil, func(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer) {
		host := newManifestHost()
		defer host.Close()

		app := approvedApp(ctx, t, peer, host)
		service := peer.ManifestUpdate.Service

		sender, ok := peer.Mail.Sender.(*mail.SimulatedSender)
		require.True(t, ok)
		mailed := len(sender.Sent())

		host.set(original, true)
		failed := map[int64]int{}
		for i := 1; i <= 2; i++ {
			require.NoError(t, service.UpdateManifests(ctx, []int64{app.ID}, true, failed))
			assert.Equal(t, i, failed[app.ID])
		}
		assert.Len(t, sender.Sent(), mailed)

		require.NoError(t, service.UpdateManifests(ctx, []int64{app.ID}, true, failed))
		assert.Equal(t, 3, failed[app.ID])
		sent := sender.Sent()
		require.Len(t, sent, mailed+1)
		assert.Equal(t, []string{testmarket.Author}, sent[mailed].To)
		assert.Contains(t, sent[mailed].Subject, `"Hosted App"`)
		assert.Contains(t, sent[mailed].Body, host.URL+"/manifest.webapp")

		in, err := peer.Reviewers.InRereview(ctx, app.ID)
		require.NoError(t, err)
		assert.False(t, in)

		require.NoError(t, service.UpdateManifests(ctx, []int64{app.ID}, true, failed))
		assert.NotContains(t, failed, app.ID)
		in, err = peer.Reviewers.InRereview(ctx, app.ID)
		require.NoError(t, err)
		assert.True(t, in)
		assert.Contains(t, actions(ctx, t, peer, app.ID), activity.RereviewManifestFetch)

		// a later success clears the count
		failed[app.ID] = 2
		host.set(original, false)
		require.NoError(t, service.UpdateManifests(ctx, []int64{app.ID}, true, failed))
		assert.Empty(t, failed)
	})
}

func TestQueueAll(t *testing.T) {
	testmarket.Run(t, nil, func(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer) {
		host := newManifestHost()
		defer host.Close()

		approvedApp(ctx, t, peer, host)
		host.set(original, true)

		pending, err := peer.DB.Tasks().Count(ctx, tasks.Pending)
		require.NoError(t, err)

		// the batch runs eagerly and is rescheduled for the failed fetch
		require.NoError(t, peer.ManifestUpdate.Service.QueueAll(ctx))

		after, err := peer.DB.Tasks().Count(ctx, tasks.Pending)
		require.NoError(t, err)
		assert.Equal(t, pending+1, after)
	})
}

func TestDefaultLocaleChange(t *testing.T) {
	testmarket.Run(t, nil, func(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer) {
		host := newManifestHost()
		defer host.Close()

		localized := `{"name": "Hosted App", "version": "1.0", "developer": {"name": "Dev"},
			"locales": {"de": {"name": "Hosted App"}}}`
		host.set(localized, false)
		app := testmarket.CreateHostedApp(ctx, t, peer, host.URL+"/manifest.webapp", localized)
		app = testmarket.Approve(ctx, t, peer, testmarket.Complete(ctx, t, peer, app))

		host.set(`{"name": "Hosted App", "version": "1.0", "developer": {"name": "Dev"},
			"default_locale": "de", "locales": {"de": {"name": "Hosted App"}}}`, false)
		require.NoError(t, peer.ManifestUpdate.Service.UpdateManifests(ctx, []int64{app.ID}, true, map[int64]int{}))

		app, err := peer.Apps.Get(ctx, app.ID)
		require.NoError(t, err)
		assert.Equal(t, "de", app.DefaultLocale)

		in, err := peer.Reviewers.InRereview(ctx, app.ID)
		require.NoError(t, err)
		assert.False(t, in, "a new default locale alone does not need a review")
		assert.NotContains(t, actions(ctx, t, peer, app.ID), activity.RereviewManifestChange)
	})
}

func TestDroppedLocale(t *testing.T) {
	testmarket.Run(t, nil, func(ctx *testcontext.Context, t *testing.T, peer *marketplace.Peer) {
		host := newManifestHost()
		defer host.Close()

		localized := `{"name": "Hosted App", "version": "1.0", "developer": {"name": "Dev"},
			"locales": {"de": {"name": "Gehostet"}}}`
		host.set(localized, false)
		app := testmarket.CreateHostedApp(ctx, t, peer, host.URL+"/manifest.webapp", localized)
		app = testmarket.Approve(ctx, t, peer, testmarket.Complete(ctx, t, peer, app))

		names, err := peer.Apps.Names(ctx, app.ID)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"en-US": "Hosted App", "de": "Gehostet"}, names)

		host.set(original, false)
		require.NoError(t, peer.ManifestUpdate.Service.UpdateManifests(ctx, []int64{app.ID}, true, map[int64]int{}))

		names, err = peer.Apps.Names(ctx, app.ID)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"en-US": "Hosted App"}, names)

		in, err := peer.Reviewers.InRereview(ctx, app.ID)
		require.NoError(t, err)
		assert.False(t, in, "removed translations do not need a review")
	})
}
