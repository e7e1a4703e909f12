// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package manifest

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NFD returns s in canonical decomposition form.
func NFD(s string) string {
	return norm.NFD.String(s)
}

// Slugify converts s into a lowercase ascii slug.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range norm.NFKD.String(s) {
		switch {
		case r > unicode.MaxASCII:
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(unicode.ToLower(r))
		case r == '-' || unicode.IsSpace(r):
			dash = true
		}
	}
	return b.String()
}
