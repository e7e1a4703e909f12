// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package tasks_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/errs"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"

	"github.com/mozilla/marketplace/marketplace"
	"github.com/mozilla/marketplace/marketplace/marketplacedb/marketplacedbtest"
	"github.com/mozilla/marketplace/marketplace/tasks"
)

type counter struct {
	N int `json:"n"`
}

func newService(t *testing.T, db marketplace.DB, eager bool, now time.Time) *tasks.Service {
	service := tasks.NewService(zaptest.NewLogger(t), db.Tasks(), tasks.Config{
		Interval:    time.Minute,
		Concurrency: 2,
		BatchSize:   10,
		Lease:       10 * time.Minute,
		MaxRetries:  2,
		Eager:       eager,
	})
	service.SetNow(func() time.Time { return now })
	return service
}

func TestEagerRetry(t *testing.T) {
	marketplacedbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db marketplace.DB) {
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		service := newService(t, db, true, now)

		var seen []int
		service.Register("count", func(ctx context.Context, payload []byte) error {
			var args counter
			if err := tasks.Decode(payload, &args); err != nil {
				return err
			}
			seen = append(seen, args.N)
			return tasks.Retry(time.Hour, counter{N: args.N + 1}, errs.New("again"))
		})

		id, err := service.Enqueue(ctx, "count", counter{N: 1}, tasks.Options{})
		require.NoError(t, err)
		assert.Equal(t, []int{1}, seen)

		job, err := service.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, tasks.Pending, job.State)
		assert.Equal(t, 1, job.Attempts)
		assert.Equal(t, 2, job.MaxRetries)
		assert.Equal(t, "retry: again", job.LastError)
		assert.JSONEq(t, `{"n": 2}`, string(job.Payload))
		assert.WithinDuration(t, now.Add(time.Hour), job.RunAt, time.Second)

		// not due yet
		require.NoError(t, service.RunOnce(ctx))
		assert.Equal(t, []int{1}, seen)

		now = now.Add(2 * time.Hour)
		service.SetNow(func() time.Time { return now })
		require.NoError(t, service.RunOnce(ctx))
		assert.Equal(t, []int{1, 2}, seen)

		job, err = service.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, tasks.Pending, job.State)
		assert.Equal(t, 2, job.Attempts)

		now = now.Add(2 * time.Hour)
		service.SetNow(func() time.Time { return now })
		require.NoError(t, service.RunOnce(ctx))
		assert.Equal(t, []int{1, 2, 3}, seen)

		job, err = service.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, tasks.Failed, job.State)

		failed, err := db.Tasks().Count(ctx, tasks.Failed)
		require.NoError(t, err)
		assert.Equal(t, 1, failed)
	})
}

func TestWorker(t *testing.T) {
	marketplacedbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db marketplace.DB) {
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		service := newService(t, db, false, now)

		done := 0
		service.Register("ok", func(ctx context.Context, payload []byte) error {
			done++
			return nil
		})
		service.Register("broken", func(ctx context.Context, payload []byte) error {
			return errs.New("broken")
		})
		service.Register("panic", func(ctx context.Context, payload []byte) error {
			panic("boom")
		})

		ok, err := service.Enqueue(ctx, "ok", nil, tasks.Options{})
		require.NoError(t, err)
		delayed, err := service.Enqueue(ctx, "ok", nil, tasks.Options{Delay: time.Hour})
		require.NoError(t, err)
		broken, err := service.Enqueue(ctx, "broken", nil, tasks.Options{MaxRetries: 5})
		require.NoError(t, err)
		panicked, err := service.Enqueue(ctx, "panic", nil, tasks.Options{})
		require.NoError(t, err)
		unknown, err := service.Enqueue(ctx, "unknown", nil, tasks.Options{})
		require.NoError(t, err)

		// enqueue never runs jobs outside eager mode
		assert.Zero(t, done)

		require.NoError(t, service.RunOnce(ctx))
		assert.Equal(t, 1, done)

		for id, expected := range map[int64]tasks.State{
			ok:       tasks.Done,
			delayed:  tasks.Pending,
			broken:   tasks.Failed,
			panicked: tasks.Failed,
			unknown:  tasks.Failed,
		} {
			job, err := service.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, expected, job.State, job.String())
		}

		job, err := service.Get(ctx, broken)
		require.NoError(t, err)
		assert.Equal(t, 5, job.MaxRetries)
		assert.Contains(t, job.LastError, "broken")

		job, err = service.Get(ctx, panicked)
		require.NoError(t, err)
		assert.Contains(t, job.LastError, "panic: boom")

		job, err = service.Get(ctx, unknown)
		require.NoError(t, err)
		assert.Equal(t, "no handler registered", job.LastError)

		_, err = service.Get(ctx, 1<<40)
		require.Error(t, err)
		assert.True(t, tasks.ErrNotFound.Has(err))
	})
}

func TestRun(t *testing.T) {
	marketplacedbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db marketplace.DB) {
		service := tasks.NewService(zaptest.NewLogger(t), db.Tasks(), tasks.Config{
			Interval:    time.Millisecond,
			Concurrency: 1,
			BatchSize:   10,
			Lease:       time.Minute,
			MaxRetries:  1,
		})

		ran := make(chan struct{}, 1)
		service.Register("signal", func(ctx context.Context, payload []byte) error {
			ran <- struct{}{}
			return nil
		})
		_, err := service.Enqueue(ctx, "signal", nil, tasks.Options{})
		require.NoError(t, err)

		ctx.Go(func() error { return service.Run(ctx) })
		defer ctx.Check(service.Close)

		select {
		case <-ran:
		case <-time.After(10 * time.Second):
			t.Fatal("job did not run")
		}
	})
}

func TestRetryError(t *testing.T) {
	cause := errs.New("cause")
	err := tasks.Retry(time.Minute, nil, cause)

	retry, ok := tasks.AsRetry(errs.Wrap(err))
	require.True(t, ok)
	assert.Equal(t, time.Minute, retry.After)
	assert.ErrorIs(t, retry, cause)

	_, ok = tasks.AsRetry(cause)
	assert.False(t, ok)

	assert.Equal(t, "retry", tasks.Retry(0, nil, nil).Error())
}
