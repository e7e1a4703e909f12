// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package apps_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mozilla/marketplace/marketplace/apps"
	"github.com/mozilla/marketplace/marketplace/status"
)

func TestGenerateFilename(t *testing.T) {
	hosted := &apps.Webapp{Slug: "My App"}
	packaged := &apps.Webapp{Slug: "my-app", IsPackaged: true}

	assert.Equal(t, "my-app-1.0.webapp", apps.GenerateFilename(hosted, "1.0", ".zip"))
	assert.Equal(t, "my-app-1-2.webapp", apps.GenerateFilename(hosted, "1/2", ""))
	assert.Equal(t, "my-app-1.0.zip", apps.GenerateFilename(packaged, "1.0", ""))
	assert.Equal(t, "my-app-2.0.zip", apps.GenerateFilename(packaged, "2.0", ".zip"))
	assert.Equal(t, "app-1.0.webapp", apps.GenerateFilename(&apps.Webapp{}, "1.0", ""))
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "app.signed.zip", apps.SignedName("app.zip"))
	assert.Equal(t, "app.signed", apps.SignedName("app"))

	assert.Equal(t, "addons/7/a.zip", apps.ApprovedPath(7, "a.zip"))
	assert.Equal(t, "guarded-addons/7/a.zip", apps.GuardedPath(7, "a.zip"))
	assert.Equal(t, "signed-apps/7/a.signed.zip", apps.SignedPath(7, "a.zip"))
	assert.Equal(t, "signed-apps-reviewer/7/a.signed.zip", apps.SignedReviewerPath(7, "a.zip"))

	file := &apps.File{Filename: "a.zip", Status: status.Public}
	assert.Equal(t, "addons/7/a.zip", apps.FilePath(7, file))
	assert.Equal(t, ".zip", file.Extension())
	file.Status = status.Disabled
	assert.Equal(t, "guarded-addons/7/a.zip", apps.FilePath(7, file))

	assert.Equal(t, "addon_icons/0/7-32.png", apps.IconPath(7, 32))
	assert.Equal(t, "addon_icons/12/12345-128.png", apps.IconPath(12345, 128))
	assert.Equal(t, "previews/thumbs/3/3001.png", apps.PreviewThumbnailPath(3001))
	assert.Equal(t, "previews/full/3/3001.png", apps.PreviewImagePath(3001))
}

func TestVersionInt(t *testing.T) {
	for _, tt := range []struct {
		version  string
		expected int64
	}{
		{"1.0", 100000002000100},
		{"1.2.3a4pre5", 102030000040005},
		{"*", 9900000002000100},
		{"abc", 0},
		{"", 0},
		{"99999999999999999999.0", 0},
	} {
		assert.Equal(t, tt.expected, apps.VersionInt(tt.version), tt.version)
	}

	assert.Less(t, apps.VersionInt("1.0b1"), apps.VersionInt("1.0"))
	assert.Less(t, apps.VersionInt("1.0a1"), apps.VersionInt("1.0b1"))
	assert.Less(t, apps.VersionInt("1.0pre1"), apps.VersionInt("1.0"))
	assert.Less(t, apps.VersionInt("1.9"), apps.VersionInt("1.10"))
}

func TestFeatures(t *testing.T) {
	empty := apps.Features{}
	assert.Equal(t, "0.54.9", empty.Signature())

	features := apps.Features{"apps": true, "udpsocket": true}
	signature := features.Signature()

	parsed, err := apps.ParseSignature(signature)
	require.NoError(t, err)
	assert.Equal(t, []string{"apps", "udpsocket"}, parsed.Names())
	assert.True(t, parsed.Has("apps"))
	assert.False(t, parsed.Has("pay"))

	_, err = apps.ParseSignature("zz.54.9")
	require.Error(t, err)
	_, err = apps.ParseSignature("1.54")
	require.Error(t, err)
}

func TestPremiumTypeUpgrade(t *testing.T) {
	free := &apps.Webapp{PremiumType: apps.Free}
	assert.True(t, free.IsPremiumTypeUpgrade(apps.Premium))
	assert.True(t, free.IsPremiumTypeUpgrade(apps.FreeInApp))
	assert.False(t, free.IsPremiumTypeUpgrade(apps.Free))

	freeInApp := &apps.Webapp{PremiumType: apps.FreeInApp}
	assert.True(t, freeInApp.IsPremiumTypeUpgrade(apps.PremiumInApp))
	assert.False(t, freeInApp.IsPremiumTypeUpgrade(apps.Free))

	premium := &apps.Webapp{PremiumType: apps.Premium}
	assert.False(t, premium.IsPremiumTypeUpgrade(apps.PremiumInApp))
}

func TestDomainFromURL(t *testing.T) {
	domain, err := apps.DomainFromURL("https://Example.COM/manifest.webapp")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", domain)

	_, err = apps.DomainFromURL("")
	require.Error(t, err)
	assert.True(t, apps.ErrInvalid.Has(err))
}
