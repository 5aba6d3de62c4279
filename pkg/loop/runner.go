// Package loop runs large batch jobs as a sequence of short chunks whose size
// adapts to keep every chunk near a target duration.
package loop

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/blobgc/internal/logger"
)

// Task is a unit of batch work processed chunk by chunk.
type Task interface {
	// IsDone reports whether there is no work left.
	IsDone() bool

	// RunChunk processes up to size items. A chunk must be atomic: on error
	// it must leave no partial effects so it can be re-run.
	RunChunk(ctx context.Context, size int) error
}

// Observer is notified after every successful chunk.
type Observer func(size int, elapsed time.Duration)

// RetryHook is notified before a transient chunk failure is retried.
type RetryHook func(attempt int, err error)

// Runner drives a Task to completion.
type Runner struct {
	policy   Policy
	name     string
	observer Observer
	onRetry  RetryHook
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

// Result summarises a completed run.
type Result struct {
	Chunks   int
	Retries  int
	LastSize int
	Elapsed  time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithObserver registers a per-chunk callback (metrics, progress).
func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observer = o }
}

// WithRetryHook registers a callback run before every retry.
func WithRetryHook(h RetryHook) Option {
	return func(r *Runner) { r.onRetry = h }
}

// WithClock replaces the wall clock and the sleeper. Used by tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Runner) {
		r.now = now
		r.sleep = sleep
	}
}

// NewRunner creates a Runner. name is used in log lines only.
func NewRunner(name string, p Policy, opts ...Option) *Runner {
	p.ApplyDefaults()
	r := &Runner{
		policy: p,
		name:   name,
		sleep:  sleepCtx,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run calls task.RunChunk until task.IsDone. It stops at a chunk boundary if
// ctx is cancelled and returns ctx.Err().
func (r *Runner) Run(ctx context.Context, task Task) (Result, error) {
	start := r.now()
	size := r.policy.clamp(r.policy.InitialSize)
	res := Result{}

	for !task.IsDone() {
		if err := ctx.Err(); err != nil {
			res.Elapsed = r.now().Sub(start)
			return res, err
		}

		if res.Chunks > 0 && r.policy.Cooldown > 0 {
			if err := r.sleep(ctx, r.policy.Cooldown); err != nil {
				res.Elapsed = r.now().Sub(start)
				return res, err
			}
		}

		elapsed, retries, err := r.runChunk(ctx, task, size)
		res.Retries += retries
		if err != nil {
			res.Elapsed = r.now().Sub(start)
			return res, fmt.Errorf("chunk %d (size %d): %w", res.Chunks+1, size, err)
		}

		res.Chunks++
		res.LastSize = size
		if r.observer != nil {
			r.observer(size, elapsed)
		}

		next := NextSize(size, elapsed, r.policy)
		if next != size {
			logger.DebugCtx(ctx, "loop: resized chunk",
				"loop", r.name, "from", size, logger.KeyChunkSize, next, logger.DurationMs(elapsed))
		}
		size = next
	}

	res.Elapsed = r.now().Sub(start)
	return res, nil
}

// runChunk executes one chunk, retrying transient failures. The elapsed
// time is that of the last attempt.
func (r *Runner) runChunk(ctx context.Context, task Task, size int) (time.Duration, int, error) {
	var elapsed time.Duration
	retries, err := r.Do(ctx, func(ctx context.Context) error {
		t0 := r.now()
		err := task.RunChunk(ctx, size)
		elapsed = r.now().Sub(t0)
		return err
	})
	return elapsed, retries, err
}

// Do runs fn, retrying transient failures with the policy backoff up to
// MaxRetries times. It returns the number of retries made. Use it for work
// that must not be repeated as part of a whole chunk.
func (r *Runner) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return attempt, nil
		}
		if !IsTransient(err) || attempt >= r.policy.MaxRetries || ctx.Err() != nil {
			return attempt, err
		}

		delay := r.policy.backoff(attempt + 1)
		if r.onRetry != nil {
			r.onRetry(attempt+1, err)
		}
		logger.WarnCtx(ctx, "loop: transient failure, retrying",
			"loop", r.name, logger.KeyAttempt, attempt+1, "delay", delay, logger.Err(err))
		if err := r.sleep(ctx, delay); err != nil {
			return attempt, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
