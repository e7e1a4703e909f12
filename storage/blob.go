// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package storage defines the storage tiers packages are kept in.
package storage

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

var mon = monkit.Package()

var (
	// Error is the default storage errs class.
	Error = errs.Class("storage")
	// ErrNotFound is returned when the path does not exist.
	ErrNotFound = errs.Class("file not found")
	// ErrInvalidPath is returned when a path escapes the storage root.
	ErrInvalidPath = errs.Class("invalid path")
)

// Reader is an interface that groups Read, ReadAt, Seek and Close.
type Reader interface {
	io.Reader
	io.ReaderAt
	io.Seeker
	io.Closer
	// Size returns the size of the file.
	Size() int64
}

// Writer is a file being written.
type Writer interface {
	io.Writer
	// Cancel discards the file.
	Cancel() error
	// Commit ensures that the file is readable by others.
	Commit() error
	// Size returns how much has been written so far.
	Size() int64
}

// Info describes a stored file.
type Info struct {
	Path     string
	Size     int64
	Modified time.Time
}

// Storage is a tier of file storage addressed by slash separated paths.
type Storage interface {
	// Create creates a new file that becomes visible on Commit.
	Create(ctx context.Context, path string) (Writer, error)
	// Open opens the file at path.
	Open(ctx context.Context, path string) (Reader, error)
	// Stat returns information about the file at path.
	Stat(ctx context.Context, path string) (Info, error)
	// Delete deletes the file at path. Deleting a missing file is not an error.
	Delete(ctx context.Context, path string) error
	// Walk calls fn for every file under prefix.
	Walk(ctx context.Context, prefix string, fn func(Info) error) error
}

// CleanPath validates p and returns it in canonical form.
func CleanPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") {
		return "", ErrInvalidPath.New("%q", p)
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return "", ErrInvalidPath.New("%q", p)
		}
	}
	return path.Clean(p), nil
}

// Exists returns whether the file at path exists.
func Exists(ctx context.Context, store Storage, path string) (bool, error) {
	_, err := store.Stat(ctx, path)
	if ErrNotFound.Has(err) {
		return false, nil
	}
	return err == nil, err
}

// Save writes everything from r into path.
func Save(ctx context.Context, store Storage, path string, r io.Reader) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)

	w, err := store.Create(ctx, path)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(w, r)
	if err != nil {
		return n, Error.Wrap(errs.Combine(err, w.Cancel()))
	}
	return n, w.Commit()
}

// Copy copies srcPath on src to dstPath on dst.
func Copy(ctx context.Context, src Storage, srcPath string, dst Storage, dstPath string) (err error) {
	defer mon.Task()(&ctx)(&err)

	r, err := src.Open(ctx, srcPath)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, r.Close()) }()

	_, err = Save(ctx, dst, dstPath, r)
	return err
}

// Move copies srcPath on src to dstPath on dst and removes the source.
func Move(ctx context.Context, src Storage, srcPath string, dst Storage, dstPath string) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := Copy(ctx, src, srcPath, dst, dstPath); err != nil {
		return err
	}
	return src.Delete(ctx, srcPath)
}
