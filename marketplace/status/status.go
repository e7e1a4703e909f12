// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package status defines the review status codes shared by apps and files.
package status

import (
	"github.com/zeebo/errs"
)

// Status is the review status of an app or a file.
type Status int

const (
	// Null is an app that has not finished submission.
	Null Status = 0
	// Pending is waiting for review.
	Pending Status = 2
	// Public is reviewed and listed.
	Public Status = 4
	// Disabled is taken down by an admin.
	Disabled Status = 5
	// Deleted is removed by the developer.
	Deleted Status = 11
	// Rejected failed review.
	Rejected Status = 12
	// Approved is reviewed but waiting for the developer to publish.
	Approved Status = 13
	// Blocked is replaced by the blocklisted package.
	Blocked Status = 15
)

var apiNames = map[Status]string{
	Null:     "incomplete",
	Pending:  "pending",
	Public:   "public",
	Disabled: "disabled",
	Deleted:  "deleted",
	Rejected: "rejected",
	Approved: "waiting",
	Blocked:  "blocked",
}

// String returns the api name of the status.
func (s Status) String() string {
	if name, ok := apiNames[s]; ok {
		return name
	}
	return "unknown"
}

// Known returns whether s is one of the defined statuses.
func (s Status) Known() bool {
	_, ok := apiNames[s]
	return ok
}

// Parse returns the status for an api name.
func Parse(name string) (Status, error) {
	for status, api := range apiNames {
		if api == name {
			return status, nil
		}
	}
	return Null, errs.New("unknown status %q", name)
}

// Set is a set of statuses.
type Set []Status

// Contains returns whether s is in the set.
func (set Set) Contains(s Status) bool {
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}

var (
	// ApprovedSet are statuses of apps that passed review.
	ApprovedSet = Set{Public, Approved}
	// Unreviewed is the status of apps in the review queue.
	Unreviewed = Pending
	// ValidSet are statuses of apps that are live or on their way.
	ValidSet = Set{Pending, Public, Approved}
	// ExcludedSet are statuses of apps that are never listed.
	ExcludedSet = Set{Disabled, Deleted, Rejected}
)
