// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package apps

import (
	"path"
	"strconv"
	"strings"

	"github.com/mozilla/marketplace/marketplace/manifest"
	"github.com/mozilla/marketplace/marketplace/status"
)

// Storage path prefixes.
const (
	AddonsPrefix          = "addons"
	GuardedPrefix         = "guarded-addons"
	SignedPrefix          = "signed-apps"
	SignedReviewerPrefix  = "signed-apps-reviewer"
	TempPrefix            = "addons/temp"
	TmpPrefix             = "tmp"
	DumpedPrefix          = "dumped-apps"
	IconsPrefix           = "addon_icons"
	PreviewsPrefix        = "previews"
	DefaultBlocklistedZip = "blocklisted/blocklisted.zip"
)

// Extensions are the accepted upload extensions.
var Extensions = []string{".webapp", ".json", ".zip"}

func validExtension(ext string) bool {
	for _, valid := range Extensions {
		if ext == valid {
			return true
		}
	}
	return false
}

// GenerateFilename returns the stored name of a file: the slug, the
// version and the extension. Hosted apps always use ".webapp"; packaged
// apps use ext or ".zip".
func GenerateFilename(app *Webapp, version, ext string) string {
	if !app.IsPackaged {
		ext = ".webapp"
	} else if ext == "" {
		ext = ".zip"
	}
	slug := manifest.Slugify(app.Slug)
	if slug == "" {
		slug = "app"
	}
	version = strings.ReplaceAll(version, "/", "-")
	return manifest.NFD(slug + "-" + version + ext)
}

// SignedName inserts "signed" before the extension of filename.
func SignedName(filename string) string {
	i := strings.LastIndex(filename, ".")
	if i < 0 {
		return filename + ".signed"
	}
	return filename[:i] + ".signed" + filename[i:]
}

func appDir(prefix string, appID int64) string {
	return path.Join(prefix, strconv.FormatInt(appID, 10))
}

// ApprovedPath is the path of a file that may be served publicly.
func ApprovedPath(appID int64, filename string) string {
	return path.Join(appDir(AddonsPrefix, appID), filename)
}

// GuardedPath is the path of a disabled file.
func GuardedPath(appID int64, filename string) string {
	return path.Join(appDir(GuardedPrefix, appID), filename)
}

// SignedPath is the path of the publicly signed package.
func SignedPath(appID int64, filename string) string {
	return path.Join(appDir(SignedPrefix, appID), SignedName(filename))
}

// SignedReviewerPath is the path of the package signed for reviewers.
func SignedReviewerPath(appID int64, filename string) string {
	return path.Join(appDir(SignedReviewerPrefix, appID), SignedName(filename))
}

// FilePath is where the file currently lives.
func FilePath(appID int64, file *File) string {
	if file.Status == status.Disabled {
		return GuardedPath(appID, file.Filename)
	}
	return ApprovedPath(appID, file.Filename)
}

// Extension returns the extension of the file name.
func (file *File) Extension() string {
	return path.Ext(file.Filename)
}

func shardDir(prefix string, id int64) string {
	return path.Join(prefix, strconv.FormatInt(id/1000, 10))
}

// IconPath is the public path of the app icon resized to size pixels.
func IconPath(appID int64, size int) string {
	return path.Join(shardDir(IconsPrefix, appID), strconv.FormatInt(appID, 10)+"-"+strconv.Itoa(size)+".png")
}

// PreviewThumbnailPath is the public path of the preview thumbnail.
func PreviewThumbnailPath(previewID int64) string {
	return path.Join(shardDir(path.Join(PreviewsPrefix, "thumbs"), previewID), strconv.FormatInt(previewID, 10)+".png")
}

// PreviewImagePath is the public path of the full size preview.
func PreviewImagePath(previewID int64) string {
	return path.Join(shardDir(path.Join(PreviewsPrefix, "full"), previewID), strconv.FormatInt(previewID, 10)+".png")
}
