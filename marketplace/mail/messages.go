// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package mail

import (
	"fmt"
	"sort"
	"strings"
)

// ManifestFailure tells developers that a manifest update failed.
type ManifestFailure struct {
	App          string
	ErrorMessage string
	HasLink      bool
	SiteURL      string
	SupportEmail string
}

// Template implements Template.
func (*ManifestFailure) Template() string { return "manifest_failure" }

// Subject implements Template.
func (msg *ManifestFailure) Subject() string {
	return fmt.Sprintf(`Issue with your app "%s" on the Firefox Marketplace`, msg.App)
}

// NewRegions tells developers that their app became available in new
// regions.
type NewRegions struct {
	App     string
	Names   []string
	Regions string
	DevURL  string
}

// NewNewRegions formats the region names of the message.
func NewNewRegions(app string, names []string, devURL string) *NewRegions {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return &NewRegions{App: app, Names: sorted, Regions: JoinNames(sorted), DevURL: devURL}
}

// Template implements Template.
func (*NewRegions) Template() string { return "new_regions" }

// Subject implements Template.
func (msg *NewRegions) Subject() string {
	if len(msg.Names) == 1 {
		return fmt.Sprintf("%s: %s region added to the Firefox Marketplace", msg.App, msg.Names[0])
	}
	return fmt.Sprintf("%s: New regions added to the Firefox Marketplace", msg.App)
}

// JoinNames joins names as "a", "a and b" or "a, b, and c".
func JoinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	}
	parts := append([]string(nil), names...)
	parts[len(parts)-1] = "and " + parts[len(parts)-1]
	return strings.Join(parts, ", ")
}

// AppDeleted tells staff that an app was deleted.
type AppDeleted struct {
	ID        int64
	GUID      string
	Slug      string
	App       string
	URL       string
	DeletedBy string
	Authors   []string
	Notes     string
	Reason    string
}

// Template implements Template.
func (*AppDeleted) Template() string { return "app_deleted" }

// Subject implements Template.
func (msg *AppDeleted) Subject() string {
	return fmt.Sprintf("Deleting App %s (%d)", msg.Slug, msg.ID)
}
