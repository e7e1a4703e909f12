// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package manifest

import (
	"archive/zip"
	"bytes"
	"io"
	"regexp"
	"strings"

	"github.com/zeebo/errs"
)

// ErrNotInArchive is returned when a requested entry is missing.
var ErrNotInArchive = errs.Class("not in archive")

// DefaultUnzipLimit is the largest accepted uncompressed size.
const DefaultUnzipLimit = 1 << 30

var signedRE = regexp.MustCompile(`^META-INF/(\w+)\.(rsa|sf)$`)

// IsZip reports whether r starts with a zip local file header.
func IsZip(r io.ReaderAt, size int64) bool {
	if size < 4 {
		return false
	}
	var magic [4]byte
	if _, err := r.ReadAt(magic[:], 0); err != nil {
		return false
	}
	return bytes.Equal(magic[:], []byte("PK\x03\x04"))
}

// SafeUnzip reads packaged app archives while rejecting unsafe entries.
type SafeUnzip struct {
	reader *zip.Reader
	limit  int64
}

// OpenZip opens and validates an archive. A non-positive limit uses
// DefaultUnzipLimit.
func OpenZip(r io.ReaderAt, size int64, limit int64) (*SafeUnzip, error) {
	if limit <= 0 {
		limit = DefaultUnzipLimit
	}
	reader, err := zip.NewReader(r, size)
	if err != nil {
		return nil, ErrInvalid.New("Invalid or corrupt archive.")
	}

	z := &SafeUnzip{reader: reader, limit: limit}
	if err := z.validate(); err != nil {
		return nil, err
	}
	return z, nil
}

func (z *SafeUnzip) validate() error {
	var total uint64
	for _, f := range z.reader.File {
		if strings.Contains(f.Name, "..") || strings.HasPrefix(f.Name, "/") {
			return ErrInvalid.New("Invalid archive: unsafe path %q.", f.Name)
		}
		if f.UncompressedSize64 > uint64(z.limit) {
			return ErrInvalid.New("File exceeding size limit in archive: %s", f.Name)
		}
		total += f.UncompressedSize64
		if total > uint64(z.limit) {
			return ErrInvalid.New("Total archive size exceeds limit.")
		}
	}
	return nil
}

// Names returns the archive entry names.
func (z *SafeUnzip) Names() []string {
	names := make([]string, 0, len(z.reader.File))
	for _, f := range z.reader.File {
		names = append(names, f.Name)
	}
	return names
}

// Extract returns the contents of the named entry.
func (z *SafeUnzip) Extract(name string) (_ []byte, err error) {
	for _, f := range z.reader.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, Error.Wrap(err)
		}
		defer func() { err = errs.Combine(err, rc.Close()) }()

		data, err := io.ReadAll(io.LimitReader(rc, int64(f.UncompressedSize64)+1))
		if err != nil {
			return nil, ErrInvalid.New("Invalid or corrupt archive.")
		}
		if uint64(len(data)) != f.UncompressedSize64 {
			return nil, ErrInvalid.New("File exceeding size limit in archive: %s", f.Name)
		}
		return data, nil
	}
	return nil, ErrNotInArchive.New("%s", name)
}

// IsSigned reports whether the archive contains both signature files.
func (z *SafeUnzip) IsSigned() bool {
	var rsa, sf bool
	for _, f := range z.reader.File {
		match := signedRE.FindStringSubmatch(f.Name)
		if match == nil {
			continue
		}
		switch match[2] {
		case "rsa":
			rsa = true
		case "sf":
			sf = true
		}
	}
	return rsa && sf
}
