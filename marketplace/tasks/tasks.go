// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package tasks implements a durable background job queue stored in the
// database.
package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/zeebo/errs"
)

var (
	// Error is the default tasks errs class.
	Error = errs.Class("tasks")
	// ErrNotFound is returned when a job does not exist.
	ErrNotFound = errs.Class("job not found")
)

// State is the state of a job.
type State string

// Job states.
const (
	Pending State = "pending"
	Done    State = "done"
	Failed  State = "failed"
)

// Job is a queued unit of work.
type Job struct {
	ID         int64
	Kind       string
	Payload    []byte
	State      State
	Attempts   int
	MaxRetries int
	RunAt      time.Time
	LastError  string
	CreatedAt  time.Time
}

// DB stores jobs.
//
// architecture: Database
type DB interface {
	// Insert adds a job and returns its id.
	Insert(ctx context.Context, job Job) (int64, error)
	// Get returns a job.
	Get(ctx context.Context, id int64) (Job, error)
	// Claim leases up to limit pending jobs due at now. Claimed jobs have
	// their attempt count increased and become due again after lease.
	Claim(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]Job, error)
	// Complete marks a job done.
	Complete(ctx context.Context, id int64) error
	// Reschedule makes a job due again at runAt with a new payload.
	Reschedule(ctx context.Context, id int64, runAt time.Time, payload []byte, lastError string) error
	// Fail marks a job failed.
	Fail(ctx context.Context, id int64, lastError string) error
	// Count returns the number of jobs in a state.
	Count(ctx context.Context, state State) (int, error)
}

// Handler runs a job payload.
type Handler func(ctx context.Context, payload []byte) error

// Options changes how a job is scheduled.
type Options struct {
	// Delay postpones the first run.
	Delay time.Duration
	// MaxRetries overrides the configured retry limit when positive.
	MaxRetries int
}

// RetryError asks the queue to run the job again.
type RetryError struct {
	After   time.Duration
	Payload interface{}
	Err     error
}

// Error implements error.
func (err *RetryError) Error() string {
	if err.Err == nil {
		return "retry"
	}
	return "retry: " + err.Err.Error()
}

// Unwrap returns the cause.
func (err *RetryError) Unwrap() error { return err.Err }

// Retry returns an error that reschedules the job after the given
// duration. A non-nil payload replaces the stored payload.
func Retry(after time.Duration, payload interface{}, cause error) error {
	return &RetryError{After: after, Payload: payload, Err: cause}
}

// AsRetry extracts a RetryError.
func AsRetry(err error) (*RetryError, bool) {
	var retry *RetryError
	ok := errors.As(err, &retry)
	return retry, ok
}
