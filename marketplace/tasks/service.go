// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"

	"storj.io/common/sync2"
)

var mon = monkit.Package()

// Config contains the worker settings.
type Config struct {
	Interval    time.Duration `help:"how often to poll for due jobs" default:"5s" testDefault:"100ms"`
	Concurrency int           `help:"number of jobs run at the same time" default:"4"`
	BatchSize   int           `help:"number of jobs claimed per poll" default:"16"`
	Lease       time.Duration `help:"time after which an unfinished job is run again" default:"10m"`
	MaxRetries  int           `help:"default number of retries for a job" default:"3"`
	Eager       bool          `help:"run jobs inline when they are enqueued" default:"false" testDefault:"true"`
}

// Service enqueues jobs and runs them with registered handlers.
//
// architecture: Chore
type Service struct {
	log    *zap.Logger
	db     DB
	config Config

	mu       sync.RWMutex
	handlers map[string]Handler

	Loop    *sync2.Cycle
	limiter *sync2.Limiter
	now     func() time.Time
}

// NewService creates a new task service.
func NewService(log *zap.Logger, db DB, config Config) *Service {
	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Service{
		log:      log,
		db:       db,
		config:   config,
		handlers: map[string]Handler{},
		Loop:     sync2.NewCycle(config.Interval),
		limiter:  sync2.NewLimiter(concurrency),
		now:      time.Now,
	}
}

// SetNow replaces the clock.
func (service *Service) SetNow(now func() time.Time) {
	service.now = now
}

// Register sets the handler for a job kind.
func (service *Service) Register(kind string, handler Handler) {
	service.mu.Lock()
	defer service.mu.Unlock()
	service.handlers[kind] = handler
}

func (service *Service) handler(kind string) (Handler, bool) {
	service.mu.RLock()
	defer service.mu.RUnlock()
	handler, ok := service.handlers[kind]
	return handler, ok
}

// Enqueue stores a job. In eager mode the first attempt runs before
// Enqueue returns and its failure only shows in the job state.
func (service *Service) Enqueue(ctx context.Context, kind string, payload interface{}, opts Options) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)

	data, err := json.Marshal(payload)
	if err != nil {
		return 0, Error.Wrap(err)
	}

	maxRetries := service.config.MaxRetries
	if opts.MaxRetries > 0 {
		maxRetries = opts.MaxRetries
	}

	now := service.now().UTC()
	job := Job{
		Kind:       kind,
		Payload:    data,
		State:      Pending,
		MaxRetries: maxRetries,
		RunAt:      now.Add(opts.Delay),
		CreatedAt:  now,
	}
	if service.config.Eager {
		job.Attempts = 1
		job.RunAt = now.Add(service.config.Lease)
	}

	job.ID, err = service.db.Insert(ctx, job)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	service.log.Debug("enqueued", zap.String("kind", kind), zap.Int64("job", job.ID))

	if service.config.Eager {
		service.process(ctx, job)
	}
	return job.ID, nil
}

// Get returns a job.
func (service *Service) Get(ctx context.Context, id int64) (_ Job, err error) {
	defer mon.Task()(&ctx)(&err)
	return service.db.Get(ctx, id)
}

// Run polls for due jobs until the context is canceled.
func (service *Service) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	defer service.limiter.Wait()

	return service.Loop.Run(ctx, func(ctx context.Context) error {
		if err := service.RunOnce(ctx); err != nil {
			service.log.Error("task worker failed", zap.Error(err))
		}
		return nil
	})
}

// RunOnce claims the due jobs and waits until they are processed.
func (service *Service) RunOnce(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	jobs, err := service.db.Claim(ctx, service.now().UTC(), service.config.Lease, service.config.BatchSize)
	if err != nil {
		return Error.Wrap(err)
	}

	var wg sync.WaitGroup
	for _, job := range jobs {
		job := job
		wg.Add(1)
		started := service.limiter.Go(ctx, func() {
			defer wg.Done()
			service.process(ctx, job)
		})
		if !started {
			wg.Done()
			return ctx.Err()
		}
	}
	wg.Wait()
	return nil
}

// Close stops the worker.
func (service *Service) Close() error {
	service.Loop.Close()
	return nil
}

func (service *Service) process(ctx context.Context, job Job) {
	log := service.log.With(zap.String("kind", job.Kind), zap.Int64("job", job.ID), zap.Int("attempt", job.Attempts))

	handler, ok := service.handler(job.Kind)
	if !ok {
		log.Error("no handler for job")
		service.record(ctx, log, service.db.Fail(ctx, job.ID, "no handler registered"))
		return
	}

	err := service.call(ctx, handler, job.Payload)
	if err == nil {
		mon.Counter("jobs_done").Inc(1)
		service.record(ctx, log, service.db.Complete(ctx, job.ID))
		return
	}

	retry, ok := AsRetry(err)
	if !ok || job.Attempts > job.MaxRetries {
		mon.Counter("jobs_failed").Inc(1)
		log.Error("job failed", zap.Error(err))
		service.record(ctx, log, service.db.Fail(ctx, job.ID, err.Error()))
		return
	}

	payload := job.Payload
	if retry.Payload != nil {
		payload, err = json.Marshal(retry.Payload)
		if err != nil {
			service.record(ctx, log, service.db.Fail(ctx, job.ID, err.Error()))
			return
		}
	}
	mon.Counter("jobs_retried").Inc(1)
	log.Info("job retry scheduled", zap.Duration("after", retry.After), zap.Error(retry.Err))
	service.record(ctx, log, service.db.Reschedule(ctx, job.ID, service.now().UTC().Add(retry.After), payload, retry.Error()))
}

func (service *Service) call(ctx context.Context, handler Handler, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Error.New("panic: %v", r)
		}
	}()
	return handler(ctx, payload)
}

func (service *Service) record(ctx context.Context, log *zap.Logger, err error) {
	if err != nil && ctx.Err() == nil {
		log.Error("unable to record job state", zap.Error(err))
	}
}

// Decode unmarshals a job payload.
func Decode(payload []byte, v interface{}) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return Error.New("invalid payload: %v", err)
	}
	return nil
}

// String implements fmt.Stringer.
func (job Job) String() string {
	return fmt.Sprintf("%s#%d", job.Kind, job.ID)
}
