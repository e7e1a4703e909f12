// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package regions lists the store regions apps can be excluded from.
package regions

import (
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/errs"
)

// Error is the default regions errs class.
var Error = errs.Class("regions")

// Region is a store region.
type Region struct {
	ID   int
	Slug string
	Name string
	// Special regions are reviewed separately.
	Special bool
}

// RestOfWorld covers every country without its own region.
var RestOfWorld = Region{ID: 1, Slug: "restofworld", Name: "Rest of World"}

var all = []Region{
	RestOfWorld,
	{ID: 2, Slug: "us", Name: "United States"},
	{ID: 4, Slug: "uk", Name: "United Kingdom"},
	{ID: 7, Slug: "br", Name: "Brazil"},
	{ID: 8, Slug: "es", Name: "Spain"},
	{ID: 9, Slug: "co", Name: "Colombia"},
	{ID: 10, Slug: "ve", Name: "Venezuela"},
	{ID: 11, Slug: "pl", Name: "Poland"},
	{ID: 12, Slug: "mx", Name: "Mexico"},
	{ID: 13, Slug: "hu", Name: "Hungary"},
	{ID: 14, Slug: "de", Name: "Germany"},
	{ID: 15, Slug: "me", Name: "Montenegro"},
	{ID: 16, Slug: "rs", Name: "Serbia"},
	{ID: 17, Slug: "gr", Name: "Greece"},
	{ID: 18, Slug: "uy", Name: "Uruguay"},
	{ID: 19, Slug: "pe", Name: "Peru"},
	{ID: 20, Slug: "it", Name: "Italy"},
	{ID: 21, Slug: "cl", Name: "Chile"},
	{ID: 22, Slug: "ar", Name: "Argentina"},
	{ID: 23, Slug: "sv", Name: "El Salvador"},
	{ID: 24, Slug: "cr", Name: "Costa Rica"},
	{ID: 25, Slug: "pa", Name: "Panama"},
	{ID: 26, Slug: "ec", Name: "Ecuador"},
	{ID: 27, Slug: "gt", Name: "Guatemala"},
	{ID: 28, Slug: "ni", Name: "Nicaragua"},
	{ID: 29, Slug: "in", Name: "India"},
	{ID: 30, Slug: "bd", Name: "Bangladesh"},
	{ID: 31, Slug: "cn", Name: "China", Special: true},
	{ID: 32, Slug: "jp", Name: "Japan"},
	{ID: 33, Slug: "fr", Name: "France"},
}

var (
	byID   = map[int]Region{}
	bySlug = map[string]Region{}
)

func init() {
	for _, region := range all {
		byID[region.ID] = region
		bySlug[region.Slug] = region
	}
	bySlug["worldwide"] = RestOfWorld
	bySlug["gb"] = bySlug["uk"]
}

// All returns every region ordered by id.
func All() []Region {
	regions := append([]Region(nil), all...)
	sort.Slice(regions, func(i, k int) bool { return regions[i].ID < regions[k].ID })
	return regions
}

// ByID looks up a region.
func ByID(id int) (Region, bool) {
	region, ok := byID[id]
	return region, ok
}

// BySlug looks up a region by slug or alias.
func BySlug(slug string) (Region, bool) {
	region, ok := bySlug[strings.ToLower(slug)]
	return region, ok
}

// IDs returns the sorted region ids. Rest of World is included only when
// restOfWorld is set.
func IDs(restOfWorld bool) []int {
	var ids []int
	for _, region := range all {
		if region.ID == RestOfWorld.ID && !restOfWorld {
			continue
		}
		ids = append(ids, region.ID)
	}
	sort.Ints(ids)
	return ids
}

// SpecialIDs returns the ids of regions reviewed separately.
func SpecialIDs() []int {
	var ids []int
	for _, region := range all {
		if region.Special {
			ids = append(ids, region.ID)
		}
	}
	sort.Ints(ids)
	return ids
}

// List is a comma separated list of regions usable as a flag value.
type List []Region

// Set implements pflag.Value.
func (list *List) Set(value string) error {
	var parsed List
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		region, ok := BySlug(part)
		if !ok {
			id, err := strconv.Atoi(part)
			if err == nil {
				region, ok = ByID(id)
			}
		}
		if !ok {
			return Error.New("unknown region %q", part)
		}
		parsed = append(parsed, region)
	}
	*list = parsed
	return nil
}

// String implements pflag.Value.
func (list List) String() string {
	slugs := make([]string, 0, len(list))
	for _, region := range list {
		slugs = append(slugs, region.Slug)
	}
	return strings.Join(slugs, ",")
}

// Type implements pflag.Value.
func (List) Type() string { return "regions" }

// IDs returns the region ids of the list.
func (list List) IDs() []int {
	ids := make([]int, 0, len(list))
	for _, region := range list {
		ids = append(ids, region.ID)
	}
	return ids
}
