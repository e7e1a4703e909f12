// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package filestore

import (
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/errs"
)

// reader implements storage.Reader on top of a file.
type reader struct {
	*os.File
}

func newReader(file *os.File) *reader {
	return &reader{file}
}

// Size returns how large is the file.
func (r *reader) Size() int64 {
	stat, err := r.Stat()
	if err != nil {
		return 0
	}
	return stat.Size()
}

// writer writes into a temporary file that is renamed on commit.
type writer struct {
	target string

	*os.File
}

func newWriter(target string, file *os.File) *writer {
	return &writer{target, file}
}

// Cancel discards the file.
func (w *writer) Cancel() error {
	err := w.File.Close()
	removeErr := os.Remove(w.File.Name())
	return Error.Wrap(errs.Combine(err, removeErr))
}

// Commit moves the file to the target location.
func (w *writer) Commit() (err error) {
	if err := w.File.Sync(); err != nil {
		return Error.Wrap(errs.Combine(err, w.Cancel()))
	}
	if err := w.File.Close(); err != nil {
		return Error.Wrap(errs.Combine(err, os.Remove(w.File.Name())))
	}
	if err := os.MkdirAll(filepath.Dir(w.target), 0700); err != nil {
		return Error.Wrap(errs.Combine(err, os.Remove(w.File.Name())))
	}
	if err := os.Rename(w.File.Name(), w.target); err != nil {
		return Error.Wrap(errs.Combine(err, os.Remove(w.File.Name())))
	}
	return nil
}

// Size returns how much has been written so far.
func (w *writer) Size() int64 {
	p, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0
	}
	return p
}
