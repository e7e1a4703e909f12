// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package apps

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

var versionRE = regexp.MustCompile(`^(?P<major>\d+|\*)\.?(?P<minor1>\d+|\*)?\.?(?P<minor2>\d+|\*)?\.?(?P<minor3>\d+|\*)?(?P<alpha>[a|b]?)(?P<alpha_ver>\d*)(?P<pre>pre)?(?P<pre_ver>\d)?`)

// VersionInt converts a version string into an integer that sorts like
// the version. Unparseable versions and versions too large to represent
// return 0.
func VersionInt(version string) int64 {
	match := versionRE.FindStringSubmatch(version)
	if match == nil {
		return 0
	}
	group := func(name string) string {
		return match[versionRE.SubexpIndex(name)]
	}
	number := func(name string) string {
		value := group(name)
		switch value {
		case "":
			return "00"
		case "*":
			return "99"
		}
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return "99999999999999999999"
		}
		return fmt.Sprintf("%02d", n)
	}

	alpha := "02"
	switch group("alpha") {
	case "a":
		alpha = "00"
	case "b":
		alpha = "01"
	}
	pre := "01"
	if group("pre") != "" {
		pre = "00"
	}

	digits := number("major") + number("minor1") + number("minor2") + number("minor3") +
		alpha + number("alpha_ver") + pre + number("pre_ver")

	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n >= math.MaxInt64 {
		return 0
	}
	return n
}
