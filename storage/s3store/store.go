// Copyright (C) 2021 Storj Labs, Inc.
// See LICENSE for copying information.

// Package s3store implements a storage tier in an S3 compatible bucket.
package s3store

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"github.com/mozilla/marketplace/storage"
)

var mon = monkit.Package()

// Error is the default s3store errs class.
var Error = errs.Class("s3store")

// Config configures the bucket the tier lives in.
type Config struct {
	Endpoint  string `help:"S3 endpoint (host:port)" default:""`
	AccessKey string `help:"S3 access key" default:""`
	SecretKey string `help:"S3 secret key" default:""`
	Bucket    string `help:"bucket holding the files" default:""`
	Prefix    string `help:"key prefix inside the bucket" default:""`
	Secure    bool   `help:"use https to reach the endpoint" default:"true"`
}

var _ storage.Storage = (*Store)(nil)

// Store implements storage.Storage on an S3 bucket.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// New connects to the bucket described by config.
func New(config Config) (*Store, error) {
	if config.Endpoint == "" || config.Bucket == "" {
		return nil, Error.New("endpoint and bucket are required")
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.Secure,
	})
	if err != nil {
		return nil, Error.Wrap(err)
	}

	return &Store{
		client: client,
		bucket: config.Bucket,
		prefix: strings.Trim(config.Prefix, "/"),
	}, nil
}

func (store *Store) key(p string) (string, error) {
	clean, err := storage.CleanPath(p)
	if err != nil {
		return "", err
	}
	if store.prefix == "" {
		return clean, nil
	}
	return store.prefix + "/" + clean, nil
}

func (store *Store) path(key string) string {
	if store.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, store.prefix+"/")
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

// Open opens the object at path.
func (store *Store) Open(ctx context.Context, path string) (_ storage.Reader, err error) {
	defer mon.Task()(&ctx)(&err)

	key, err := store.key(path)
	if err != nil {
		return nil, err
	}

	object, err := store.client.GetObject(ctx, store.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, Error.Wrap(err)
	}

	info, err := object.Stat()
	if err != nil {
		closeErr := object.Close()
		if isNotFound(err) {
			return nil, storage.ErrNotFound.New("%s", path)
		}
		return nil, Error.Wrap(errs.Combine(err, closeErr))
	}

	return &reader{Object: object, size: info.Size}, nil
}

// Stat returns information about the object at path.
func (store *Store) Stat(ctx context.Context, path string) (_ storage.Info, err error) {
	defer mon.Task()(&ctx)(&err)

	key, err := store.key(path)
	if err != nil {
		return storage.Info{}, err
	}

	info, err := store.client.StatObject(ctx, store.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return storage.Info{}, storage.ErrNotFound.New("%s", path)
		}
		return storage.Info{}, Error.Wrap(err)
	}

	return storage.Info{Path: path, Size: info.Size, Modified: info.LastModified}, nil
}

// Delete removes the object at path.
func (store *Store) Delete(ctx context.Context, path string) (err error) {
	defer mon.Task()(&ctx)(&err)

	key, err := store.key(path)
	if err != nil {
		return err
	}

	err = store.client.RemoveObject(ctx, store.bucket, key, minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return Error.Wrap(err)
	}
	return nil
}

// Create buffers the object in a temporary file and uploads it on Commit.
func (store *Store) Create(ctx context.Context, path string) (_ storage.Writer, err error) {
	defer mon.Task()(&ctx)(&err)

	key, err := store.key(path)
	if err != nil {
		return nil, err
	}

	file, err := os.CreateTemp("", "s3store-*.partial")
	if err != nil {
		return nil, Error.Wrap(err)
	}

	return &writer{ctx: ctx, store: store, key: key, File: file}, nil
}

// Walk lists every object under prefix.
func (store *Store) Walk(ctx context.Context, prefix string, fn func(storage.Info) error) (err error) {
	defer mon.Task()(&ctx)(&err)

	listPrefix := store.prefix
	if prefix != "" {
		listPrefix, err = store.key(prefix)
		if err != nil {
			return err
		}
	}
	if listPrefix != "" {
		listPrefix += "/"
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for object := range store.client.ListObjects(ctx, store.bucket, minio.ListObjectsOptions{
		Prefix:    listPrefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return Error.Wrap(object.Err)
		}
		err := fn(storage.Info{
			Path:     store.path(object.Key),
			Size:     object.Size,
			Modified: object.LastModified,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// reader adapts a minio object to storage.Reader.
type reader struct {
	*minio.Object
	size int64
}

func (r *reader) Size() int64 { return r.size }

// writer stages the object on disk until Commit.
type writer struct {
	ctx   context.Context
	store *Store
	key   string

	*os.File
}

func (w *writer) Size() int64 {
	p, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0
	}
	return p
}

func (w *writer) Cancel() error {
	return Error.Wrap(errs.Combine(w.File.Close(), os.Remove(w.File.Name())))
}

func (w *writer) Commit() (err error) {
	defer func() { err = errs.Combine(err, w.Cancel()) }()

	size := w.Size()
	if _, err := w.File.Seek(0, io.SeekStart); err != nil {
		return Error.Wrap(err)
	}

	_, err = w.store.client.PutObject(w.ctx, w.store.bucket, w.key, w.File, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return Error.Wrap(err)
}
