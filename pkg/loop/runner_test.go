package loop

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when a chunk reports work or the runner sleeps.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

// countingTask consumes `total` items; each item costs perItem on the clock.
type countingTask struct {
	clock     *fakeClock
	remaining int
	perItem   time.Duration
	sizes     []int
	failures  []error
}

func (t *countingTask) IsDone() bool { return t.remaining <= 0 }

func (t *countingTask) RunChunk(_ context.Context, size int) error {
	t.sizes = append(t.sizes, size)
	if len(t.failures) > 0 {
		err := t.failures[0]
		t.failures = t.failures[1:]
		return err
	}
	n := min(size, t.remaining)
	t.remaining -= n
	t.clock.now = t.clock.now.Add(time.Duration(n) * t.perItem)
	return nil
}

func newTestRunner(clock *fakeClock, p Policy, opts ...Option) *Runner {
	return NewRunner("test", p, append([]Option{WithClock(clock.Now, clock.Sleep)}, opts...)...)
}

func TestRunnerProcessesEverything(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	task := &countingTask{clock: clock, remaining: 1234, perItem: time.Millisecond}

	res, err := newTestRunner(clock, testPolicy()).Run(context.Background(), task)
	require.NoError(t, err)

	assert.True(t, task.IsDone())
	assert.Equal(t, len(task.sizes), res.Chunks)
	assert.Zero(t, res.Retries)
	sum := 0
	for _, s := range task.sizes {
		sum += s
	}
	assert.GreaterOrEqual(t, sum, 1234)
}

func TestRunnerAdaptsSize(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	// 100ms per item: a chunk of 100 takes 10s and must shrink until it fits
	task := &countingTask{clock: clock, remaining: 500, perItem: 100 * time.Millisecond}

	var observed []int
	_, err := newTestRunner(clock, testPolicy(), WithObserver(func(size int, _ time.Duration) {
		observed = append(observed, size)
	})).Run(context.Background(), task)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(task.sizes), 3)
	assert.Equal(t, []int{100, 50, 25}, task.sizes[:3])
	assert.Equal(t, task.sizes, observed)
}

func TestRunnerGrowsFastChunks(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	task := &countingTask{clock: clock, remaining: 10_000, perItem: time.Microsecond}

	_, err := newTestRunner(clock, testPolicy()).Run(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, []int{100, 150, 225, 337, 505, 757, 1000}, task.sizes[:7])
}

func TestRunnerRetriesTransient(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	boom := errors.New("deadlock detected")
	task := &countingTask{clock: clock, remaining: 10, perItem: time.Millisecond,
		failures: []error{Transient(boom), Transient(boom)}}

	var attempts []int
	hook := WithRetryHook(func(attempt int, err error) {
		assert.ErrorIs(t, err, boom)
		attempts = append(attempts, attempt)
	})

	res, err := newTestRunner(clock, testPolicy(), hook).Run(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Retries)
	assert.Equal(t, []int{1, 2}, attempts)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, clock.sleeps)
	assert.True(t, task.IsDone())
}

func TestRunnerEscalatesAfterMaxRetries(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	boom := errors.New("throttled")
	task := &countingTask{clock: clock, remaining: 10, perItem: time.Millisecond,
		failures: []error{Transient(boom), Transient(boom), Transient(boom)}}

	_, err := newTestRunner(clock, testPolicy()).Run(context.Background(), task)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, IsTransient(err))
	assert.Len(t, task.sizes, 3)
	assert.True(t, strings.HasPrefix(err.Error(), "chunk 1 (size "), "callers add the loop name: %v", err)
}

func TestRunnerDoesNotRetryPermanent(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	boom := errors.New("integrity violation")
	task := &countingTask{clock: clock, remaining: 10, perItem: time.Millisecond, failures: []error{boom}}

	_, err := newTestRunner(clock, testPolicy()).Run(context.Background(), task)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, task.sizes, 1)
	assert.Empty(t, clock.sleeps)
}

func TestRunnerStopsOnCancel(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	ctx, cancel := context.WithCancel(context.Background())
	task := &cancellingTask{cancel: cancel}

	res, err := newTestRunner(clock, testPolicy()).Run(ctx, task)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, res.Chunks)
	assert.Equal(t, 1, task.calls)
}

type cancellingTask struct {
	cancel context.CancelFunc
	calls  int
}

func (t *cancellingTask) IsDone() bool { return false }
func (t *cancellingTask) RunChunk(context.Context, int) error {
	t.calls++
	t.cancel()
	return nil
}

func TestRunnerCooldown(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := testPolicy()
	p.Cooldown = 50 * time.Millisecond
	p.InitialSize = 10
	p.MaxSize = 10
	task := &countingTask{clock: clock, remaining: 30, perItem: time.Millisecond}

	res, err := newTestRunner(clock, p).Run(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Chunks)
	assert.Equal(t, []time.Duration{p.Cooldown, p.Cooldown}, clock.sleeps)
}

func TestRunnerNothingToDo(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	task := &countingTask{clock: clock}

	res, err := newTestRunner(clock, testPolicy()).Run(context.Background(), task)
	require.NoError(t, err)
	assert.Zero(t, res.Chunks)
	assert.Empty(t, task.sizes)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("x")))
	assert.Nil(t, Transient(nil))

	wrapped := errors.Join(errors.New("ctx"), Transient(errors.New("x")))
	assert.True(t, IsTransient(wrapped))
}

func TestRunnerDo(t *testing.T) {
	unavailable := errors.New("503 service unavailable")
	tests := []struct {
		name        string
		failures    []error
		wantRetries int
		wantErr     bool
	}{
		{"succeeds at once", nil, 0, false},
		{"recovers after transient failures", []error{Transient(unavailable), Transient(unavailable)}, 2, false},
		{"escalates after max retries", []error{Transient(unavailable), Transient(unavailable), Transient(unavailable)}, 2, true},
		{"permanent failure is not retried", []error{unavailable}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{now: time.Unix(0, 0)}
			failures := tt.failures
			calls := 0
			retries, err := newTestRunner(clock, testPolicy()).Do(context.Background(), func(context.Context) error {
				calls++
				if len(failures) > 0 {
					err := failures[0]
					failures = failures[1:]
					return err
				}
				return nil
			})

			assert.Equal(t, tt.wantRetries, retries)
			assert.Equal(t, retries+1, calls)
			assert.Len(t, clock.sleeps, tt.wantRetries)
			if tt.wantErr {
				assert.ErrorIs(t, err, unavailable)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
