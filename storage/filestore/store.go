// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package filestore implements a storage tier in a local directory.
package filestore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"github.com/mozilla/marketplace/storage"
)

var mon = monkit.Package()

// Error is the default filestore error class.
var Error = errs.Class("filestore error")

// tempDir holds files that are not committed yet.
const tempDir = ".tmp"

var _ storage.Storage = (*Store)(nil)

// Store implements a storage tier in a directory.
type Store struct {
	root string
}

// NewAt creates a new disk store in the specified directory.
func NewAt(root string) (*Store, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if err := os.MkdirAll(filepath.Join(root, tempDir), 0700); err != nil {
		return nil, Error.Wrap(err)
	}
	return &Store{root: root}, nil
}

// Root returns the directory of the store.
func (store *Store) Root() string { return store.root }

func (store *Store) local(p string) (string, error) {
	clean, err := storage.CleanPath(p)
	if err != nil {
		return "", err
	}
	if clean == tempDir || strings.HasPrefix(clean, tempDir+"/") {
		return "", storage.ErrInvalidPath.New("%q", p)
	}
	return filepath.Join(store.root, filepath.FromSlash(clean)), nil
}

// Open opens the file at path.
func (store *Store) Open(ctx context.Context, path string) (_ storage.Reader, err error) {
	defer mon.Task()(&ctx)(&err)

	local, err := store.local(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(local)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrNotFound.New("%s", path)
		}
		return nil, Error.Wrap(err)
	}
	return newReader(file), nil
}

// Stat returns information about the file at path.
func (store *Store) Stat(ctx context.Context, path string) (_ storage.Info, err error) {
	defer mon.Task()(&ctx)(&err)

	local, err := store.local(path)
	if err != nil {
		return storage.Info{}, err
	}

	info, err := os.Stat(local)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.Info{}, storage.ErrNotFound.New("%s", path)
		}
		return storage.Info{}, Error.Wrap(err)
	}
	if info.IsDir() {
		return storage.Info{}, storage.ErrNotFound.New("%s is a directory", path)
	}

	return storage.Info{Path: path, Size: info.Size(), Modified: info.ModTime()}, nil
}

// Delete deletes the file at path.
func (store *Store) Delete(ctx context.Context, path string) (err error) {
	defer mon.Task()(&ctx)(&err)

	local, err := store.local(path)
	if err != nil {
		return err
	}

	err = os.Remove(local)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return Error.Wrap(err)
}

// Create creates a new file that is moved to path on Commit.
func (store *Store) Create(ctx context.Context, path string) (_ storage.Writer, err error) {
	defer mon.Task()(&ctx)(&err)

	local, err := store.local(path)
	if err != nil {
		return nil, err
	}

	file, err := os.CreateTemp(filepath.Join(store.root, tempDir), "file-*.partial")
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return newWriter(local, file), nil
}

// Walk calls fn for every file under prefix, in lexical order.
func (store *Store) Walk(ctx context.Context, prefix string, fn func(storage.Info) error) (err error) {
	defer mon.Task()(&ctx)(&err)

	start := store.root
	if prefix != "" {
		start, err = store.local(prefix)
		if err != nil {
			return err
		}
	}

	err = filepath.WalkDir(start, func(local string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(store.root, local)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if entry.IsDir() {
			if rel == tempDir {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}
		return fn(storage.Info{Path: rel, Size: info.Size(), Modified: info.ModTime()})
	})
	return Error.Wrap(err)
}
