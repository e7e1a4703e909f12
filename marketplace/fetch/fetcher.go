// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package fetch downloads hosted app manifests.
package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"storj.io/common/memory"

	"github.com/mozilla/marketplace/marketplace/manifest"
)

var (
	mon = monkit.Package()

	// Error is the default fetch errs class.
	Error = errs.Class("fetch")
	// ErrFetch is returned when no usable manifest could be downloaded.
	// The message is meant for developers.
	ErrFetch = errs.Class("manifest fetch")
	// ErrTooLarge is returned when a response exceeds the size limit.
	ErrTooLarge = errs.Class("response too large")
)

const contentTypeURL = "https://developer.mozilla.org/docs/Web/Apps/Manifest#Serving_manifests"

// Config contains the fetcher settings.
type Config struct {
	MaxSize   memory.Size   `help:"maximum size of a fetched manifest" default:"2MiB"`
	Timeout   time.Duration `help:"timeout for a single manifest request" default:"30s"`
	RetryMax  int           `help:"how many times a failing request is retried" default:"2" testDefault:"0"`
	HostRate  float64       `help:"maximum requests per second to a single host" default:"2"`
	UserAgent string        `help:"user agent sent with manifest requests" default:"Mozilla/5.0 (Mobile; rv:18.0) Gecko/18.0 Firefox/18.0"`
}

// Fetcher downloads manifests with retries and per host rate limits.
type Fetcher struct {
	log    *zap.Logger
	config Config
	client *retryablehttp.Client

	mu    sync.Mutex
	hosts map[string]*rate.Limiter
}

// NewFetcher creates a new manifest fetcher.
func NewFetcher(log *zap.Logger, config Config) *Fetcher {
	client := retryablehttp.NewClient()
	client.RetryMax = config.RetryMax
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = config.Timeout
	client.Logger = NewLeveledLogger(log)

	return &Fetcher{
		log:    log,
		config: config,
		client: client,
		hosts:  map[string]*rate.Limiter{},
	}
}

// Fetch downloads the manifest at manifestURL. Problems that do not
// prevent using the content are returned as messages; anything else is
// an ErrFetch error.
func (fetcher *Fetcher) Fetch(ctx context.Context, manifestURL string) (content []byte, problems []string, err error) {
	defer mon.Task()(&ctx)(&err)

	response, err := fetcher.get(ctx, manifestURL)
	if err != nil {
		mon.Counter("fetch_failures").Inc(1)
		fetcher.log.Info("manifest fetch failed", zap.String("url", manifestURL), zap.Error(err))
		return nil, nil, ErrFetch.New("No manifest was found at that URL. Check the address and try again.")
	}
	defer func() { err = errs.Combine(err, response.Body.Close()) }()

	maxSize := fetcher.config.MaxSize.Int64()
	content, err = io.ReadAll(io.LimitReader(response.Body, maxSize+1))
	if err != nil {
		mon.Counter("fetch_failures").Inc(1)
		return nil, nil, ErrFetch.New("No manifest was found at that URL. Check the address and try again.")
	}
	if int64(len(content)) > maxSize {
		return nil, nil, ErrFetch.New("Your manifest must be less than %d bytes.", maxSize)
	}

	problems = checkContentType(response.Header.Get("Content-Type"))

	if !utf8.Valid(content) {
		return nil, problems, ErrFetch.New("Your manifest file was not encoded as valid UTF-8.")
	}
	return manifest.StripBOM(content), problems, nil
}

// FetchContent downloads url, such as an icon, and fails with ErrTooLarge
// when the body is larger than maxSize.
func (fetcher *Fetcher) FetchContent(ctx context.Context, url string, maxSize int64) (_ []byte, err error) {
	defer mon.Task()(&ctx)(&err)

	response, err := fetcher.get(ctx, url)
	if err != nil {
		mon.Counter("fetch_content_failures").Inc(1)
		return nil, err
	}
	defer func() { err = errs.Combine(err, response.Body.Close()) }()

	content, err := io.ReadAll(io.LimitReader(response.Body, maxSize+1))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if int64(len(content)) > maxSize {
		return nil, ErrTooLarge.New("%s is larger than %d bytes", url, maxSize)
	}
	return content, nil
}

func (fetcher *Fetcher) get(ctx context.Context, manifestURL string) (*http.Response, error) {
	parsed, err := url.Parse(manifestURL)
	if err != nil || parsed.Host == "" {
		return nil, Error.New("invalid url %q", manifestURL)
	}
	if err := fetcher.limiter(parsed.Host).Wait(ctx); err != nil {
		return nil, Error.Wrap(err)
	}

	request, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	request.Header.Set("User-Agent", fetcher.config.UserAgent)

	response, err := fetcher.client.Do(request)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		_ = response.Body.Close()
		return nil, Error.New("unexpected status %d", response.StatusCode)
	}
	return response, nil
}

func (fetcher *Fetcher) limiter(host string) *rate.Limiter {
	fetcher.mu.Lock()
	defer fetcher.mu.Unlock()

	limiter, ok := fetcher.hosts[host]
	if !ok {
		limit := rate.Inf
		if fetcher.config.HostRate > 0 {
			limit = rate.Limit(fetcher.config.HostRate)
		}
		limiter = rate.NewLimiter(limit, 1)
		fetcher.hosts[host] = limiter
	}
	return limiter
}

func checkContentType(header string) []string {
	var problems []string
	if !strings.HasPrefix(header, manifest.ContentType) {
		problems = append(problems, fmt.Sprintf(
			`Manifests must be served with the HTTP header "Content-Type: %s". See %s for more information.`,
			manifest.ContentType, contentTypeURL))
	}
	if _, params, err := mime.ParseMediaType(header); err == nil {
		if charset, ok := params["charset"]; ok && !strings.EqualFold(charset, "utf-8") {
			problems = append(problems, "The manifest's encoding does not match the charset provided in the HTTP Content-Type.")
		}
	}
	return problems
}

// Message returns the developer facing text of an ErrFetch error.
func Message(err error) string {
	if ErrFetch.Has(err) {
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			if inner := unwrapper.Unwrap(); inner != nil {
				return inner.Error()
			}
		}
	}
	return err.Error()
}

// LeveledLogger sends retryablehttp logs to zap.
type LeveledLogger struct {
	log *zap.SugaredLogger
}

// NewLeveledLogger wraps log for retryablehttp clients.
func NewLeveledLogger(log *zap.Logger) LeveledLogger {
	return LeveledLogger{log: log.Sugar()}
}

func (l LeveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, keysAndValues...)
}

func (l LeveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l LeveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l LeveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warnw(msg, keysAndValues...)
}
