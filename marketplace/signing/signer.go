// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package signing signs packaged apps through a signing server.
package signing

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/mozilla/marketplace/marketplace/apps"
	"github.com/mozilla/marketplace/marketplace/fetch"
	"github.com/mozilla/marketplace/storage"
)

var (
	mon = monkit.Package()

	// Error is the default signing errs class.
	Error = errs.Class("signing")
	// ErrSigning is returned when a package could not be signed.
	ErrSigning = errs.Class("signing failed")
)

// Config contains the signing server settings.
type Config struct {
	Server          string        `help:"signing server for public packages, empty copies packages unsigned" default:""`
	ReviewerServer  string        `help:"signing server for reviewer packages, empty copies packages unsigned" default:""`
	Timeout         time.Duration `help:"timeout of a signing request" default:"60s"`
	RetryMax        int           `help:"how many times a failing signing request is retried" default:"2" testDefault:"0"`
	OmitPerFileSigs bool          `help:"leave the per file sections out of the signature" default:"true"`
}

// Signer signs packaged app versions.
type Signer struct {
	log    *zap.Logger
	apps   *apps.Service
	config Config
	client *retryablehttp.Client
}

// NewSigner creates a new signer.
func NewSigner(log *zap.Logger, service *apps.Service, config Config) *Signer {
	client := retryablehttp.NewClient()
	client.RetryMax = config.RetryMax
	client.HTTPClient.Timeout = config.Timeout
	client.Logger = fetch.NewLeveledLogger(log)

	return &Signer{
		log:    log,
		apps:   service,
		config: config,
		client: client,
	}
}

type ids struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`
}

// Sign signs the package of a version and returns the path of the signed
// package. Reviewer packages go to private storage with an id that does
// not collide with the public app. An existing signed package is reused
// unless resign is set.
func (signer *Signer) Sign(ctx context.Context, versionID int64, reviewer, resign bool) (_ string, err error) {
	defer mon.Task()(&ctx)(&err)

	version, err := signer.apps.GetVersion(ctx, versionID)
	if err != nil {
		return "", err
	}
	app, err := signer.apps.Get(ctx, version.AppID)
	if err != nil {
		return "", err
	}
	log := signer.log.With(zap.Int64("app", app.ID), zap.Int64("version", versionID))
	log.Info("signing version")

	if !app.IsPackaged {
		log.Error("attempt to sign a non-packaged app")
		return "", ErrSigning.New("Not packaged")
	}
	file, err := signer.apps.VersionFile(ctx, versionID)
	if err != nil {
		return "", err
	}
	if file == nil {
		log.Error("attempt to sign an app with no files in version")
		return "", ErrSigning.New("No file")
	}

	path, dst := apps.SignedPath(app.ID, file.Filename), signer.apps.Public()
	id := ids{ID: app.GUID.String(), Version: versionID}
	if reviewer {
		path, dst = apps.SignedReviewerPath(app.ID, file.Filename), signer.apps.Private()
		id.ID = "reviewer-" + app.GUID.String() + "-" + strconv.FormatInt(versionID, 10)
	}

	exists, err := storage.Exists(ctx, dst, path)
	if err != nil {
		return "", Error.Wrap(err)
	}
	if exists && !resign {
		log.Info("already signed app exists")
		return path, nil
	}

	rawIDs, err := json.Marshal(id)
	if err != nil {
		return "", Error.Wrap(err)
	}

	err = signer.signApp(ctx, app.ID, file, dst, path, rawIDs, reviewer)
	if err != nil {
		log.Info("signing failed", zap.Error(err))
		return "", errs.Combine(err, dst.Delete(ctx, path))
	}
	mon.Counter("signings").Inc(1)
	log.Info("signing complete", zap.String("path", path))
	return path, nil
}

func (signer *Signer) endpoint(reviewer bool) string {
	server := signer.config.Server
	if reviewer {
		server = signer.config.ReviewerServer
	}
	if server == "" {
		return ""
	}
	return server + "/1.0/sign_app"
}

func (signer *Signer) signApp(ctx context.Context, appID int64, file *apps.File, dst storage.Storage, path string, rawIDs []byte, reviewer bool) (err error) {
	defer mon.Task()(&ctx)(&err)

	src, err := signer.apps.OpenFile(ctx, appID, file)
	if err != nil {
		return ErrSigning.Wrap(err)
	}
	defer func() { err = errs.Combine(err, src.Close()) }()

	endpoint := signer.endpoint(reviewer)
	if endpoint == "" {
		signer.log.Info("not signing the app, no signing server is active")
		_, err := storage.Save(ctx, dst, path, src)
		return ErrSigning.Wrap(err)
	}

	archive, err := zip.NewReader(src, src.Size())
	if err != nil {
		signer.log.Error("archive extraction failed", zap.Error(err))
		return ErrSigning.New("Archive extraction failed. Bad archive?")
	}
	jar, err := NewJar(archive, rawIDs, signer.config.OmitPerFileSigs)
	if err != nil {
		signer.log.Error("archive extraction failed", zap.Error(err))
		return ErrSigning.New("Archive extraction failed. Bad archive?")
	}

	pkcs7, err := signer.post(ctx, endpoint, jar.Signature())
	if err != nil {
		return err
	}

	w, err := dst.Create(ctx, path)
	if err != nil {
		return ErrSigning.Wrap(err)
	}
	if err := jar.WriteSigned(w, archive, pkcs7); err != nil {
		signer.log.Error("app signing failed", zap.Error(err))
		return errs.Combine(ErrSigning.New("App signing failed"), w.Cancel())
	}
	return ErrSigning.Wrap(w.Commit())
}

// post sends the signature file to the signing server and returns the
// decoded PKCS7 signature.
func (signer *Signer) post(ctx context.Context, endpoint string, signature []byte) (_ []byte, err error) {
	defer mon.Task()(&ctx)(&err)

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "zigbert.sf")
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if _, err := part.Write(signature); err != nil {
		return nil, Error.Wrap(err)
	}
	if err := form.Close(); err != nil {
		return nil, Error.Wrap(err)
	}

	request, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, body.Bytes())
	if err != nil {
		return nil, Error.Wrap(err)
	}
	request.Header.Set("Content-Type", form.FormDataContentType())

	signer.log.Info("calling signing service", zap.String("endpoint", endpoint))
	response, err := signer.client.Do(request)
	if err != nil {
		signer.log.Error("posting to app signing failed", zap.Error(err))
		return nil, ErrSigning.New("Posting to app signing failed")
	}
	defer func() { err = errs.Combine(err, response.Body.Close()) }()

	if response.StatusCode != http.StatusOK {
		signer.log.Error("posting to app signing failed", zap.String("status", response.Status))
		return nil, ErrSigning.New("Posting to app signing failed: %s", http.StatusText(response.StatusCode))
	}

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, ErrSigning.Wrap(err)
	}
	var reply map[string]string
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, ErrSigning.New("Posting to app signing failed: invalid response")
	}
	pkcs7, err := base64.StdEncoding.DecodeString(reply["zigbert.rsa"])
	if err != nil || len(pkcs7) == 0 {
		return nil, ErrSigning.New("Posting to app signing failed: invalid signature")
	}
	return pkcs7, nil
}
