package gc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/blobgc/internal/bufpool"
	"github.com/marmos91/blobgc/internal/logger"
	"github.com/marmos91/blobgc/internal/telemetry"
	"github.com/marmos91/blobgc/pkg/blobstore"
	"github.com/marmos91/blobgc/pkg/catalog"
	"github.com/marmos91/blobgc/pkg/loop"
	"github.com/marmos91/blobgc/pkg/metrics"
	"github.com/marmos91/blobgc/pkg/refgraph"
)

// Collector runs garbage collection over a catalog and its blob backends.
// A Collector may run many times; each Run recomputes its candidate sets
// from scratch.
type Collector struct {
	catalog        catalog.Store
	blobs          *blobstore.Store
	refs           *refgraph.Introspector
	cfg            Config
	metrics        metrics.GCMetrics
	now            func() time.Time
	loopOpts       []loop.Option
	upstreamMirror bool
	buffers        *bufpool.Pool // compare buffers
}

// Option configures a Collector.
type Option func(*Collector)

// WithMetrics records run metrics. A nil m disables them.
func WithMetrics(m metrics.GCMetrics) Option {
	return func(c *Collector) { c.metrics = m }
}

// WithClock replaces the host clock used for the skew check and durations.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// WithLoopOptions passes extra options to every chunk loop runner.
func WithLoopOptions(opts ...loop.Option) Option {
	return func(c *Collector) { c.loopOpts = append(c.loopOpts, opts...) }
}

// WithUpstreamMirror declares that the blob stores mirror an upstream
// deployment, so catalog rows without bytes are expected and not reported.
func WithUpstreamMirror(on bool) Option {
	return func(c *Collector) { c.upstreamMirror = on }
}

// New creates a Collector. Zero fields of cfg take their defaults.
func New(cat catalog.Store, blobs *blobstore.Store, cfg Config, opts ...Option) *Collector {
	cfg.ApplyDefaults()
	c := &Collector{
		catalog: cat,
		blobs:   blobs,
		refs:    refgraph.New(cat, cfg.ReferenceDenylist),
		cfg:     cfg,
		now:     time.Now,
		buffers: bufpool.For(cfg.CompareBufferSize.Int()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the effective configuration.
func (c *Collector) Config() Config {
	return c.cfg
}

// run holds the state of a single Run.
type run struct {
	*Collector
	stats *Stats

	// cutoffs derived from the catalog clock
	aliasCutoff   time.Time
	contentCutoff time.Time
	orphanCutoff  time.Time
}

// Run executes the configured phases in order. The returned Stats are
// filled even when Run fails, up to the failing phase.
//
// Merge, expire and both prune phases abort the run on failure because later
// phases rely on them. Sweep failures are logged and do not fail the run.
// Errors wrapping ErrIntegrityViolation must be surfaced to an operator.
func (c *Collector) Run(ctx context.Context) (*Stats, error) {
	phases, err := ParsePhases(c.cfg.Phases)
	if err != nil {
		return nil, err
	}

	r := &run{
		Collector: c,
		stats: &Stats{
			RunID:     uuid.NewString(),
			StartedAt: c.now(),
			DryRun:    c.cfg.DryRun,
		},
	}

	ctx, span := telemetry.StartRunSpan(ctx, r.stats.RunID, telemetry.DryRun(c.cfg.DryRun))
	defer span.End()
	lc := logger.NewLogContext(r.stats.RunID).WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
	ctx = logger.WithContext(ctx, lc)

	logger.InfoCtx(ctx, "GC: run started", "phases", fmt.Sprint(phases), logger.KeyDryRun, c.cfg.DryRun)

	err = r.execute(ctx, phases)
	r.stats.Duration = c.now().Sub(r.stats.StartedAt)

	if err != nil {
		telemetry.RecordError(ctx, err)
		logger.ErrorCtx(ctx, "GC: run failed", logger.DurationMs(r.stats.Duration), logger.Err(err))
		return r.stats, err
	}

	logger.InfoCtx(ctx, "GC: run complete",
		logger.DurationMs(r.stats.Duration),
		"aliases_repointed", r.stats.Merge.AliasesRepointed,
		"aliases_expired", r.stats.Expire.AliasesExpired,
		"aliases_deleted", r.stats.PruneAliases.AliasesDeleted,
		"contents_deleted", r.stats.PruneContents.ContentsDeleted,
		"blobs_deleted", r.stats.PruneContents.BlobsDeleted,
		"orphans_deleted", r.stats.Sweep.OrphansDeleted,
		"missing_bytes", r.stats.Sweep.MissingBytes)
	return r.stats, nil
}

func (r *run) execute(ctx context.Context, phases []Phase) error {
	if err := r.catalog.HealthCheck(ctx); err != nil {
		return fmt.Errorf("catalog health check: %w", err)
	}
	if err := r.blobs.HealthCheck(ctx); err != nil {
		return fmt.Errorf("blob store health check: %w", err)
	}

	if r.cfg.RunLock {
		release, err := r.catalog.AcquireRunLock(ctx, r.cfg.RunLockKey)
		if err != nil {
			return fmt.Errorf("acquire run lock: %w", err)
		}
		defer release()
	}

	dbNow, err := r.checkClock(ctx)
	if err != nil {
		return err
	}
	r.aliasCutoff = dbNow.Add(-r.cfg.AliasGrace())
	r.contentCutoff = dbNow.Add(-r.cfg.ContentGrace())
	r.orphanCutoff = dbNow.Add(-r.cfg.OrphanGrace())

	for _, p := range phases {
		err := r.runPhase(ctx, p)
		if err == nil {
			continue
		}
		if p == PhaseSweep && ctx.Err() == nil {
			continue
		}
		return fmt.Errorf("%s: %w", p, err)
	}

	if n := r.stats.PruneContents.BlobErrors; n > 0 {
		return fmt.Errorf("%s: %w: %d content ids", PhasePruneContents, ErrBlobsLeft, n)
	}
	return nil
}

// checkClock compares the host clock with the catalog clock. Grace periods
// are measured on the catalog clock while object creation times come from
// the host, so a large skew would move every age gate.
func (r *run) checkClock(ctx context.Context) (time.Time, error) {
	dbNow, err := r.catalog.Now(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("read catalog clock: %w", err)
	}
	local := r.now()

	skew := local.Sub(dbNow)
	if skew < 0 {
		skew = -skew
	}
	r.stats.ClockSkew = skew

	if r.cfg.MaxClockSkew >= 0 && skew > r.cfg.MaxClockSkew {
		return time.Time{}, fmt.Errorf("%w: host %s, catalog %s (skew %s > %s)",
			ErrClockSkew, local.Format(time.RFC3339), dbNow.Format(time.RFC3339), skew, r.cfg.MaxClockSkew)
	}
	logger.DebugCtx(ctx, "GC: clock check passed", "skew", skew)
	return dbNow, nil
}

// phaseRun accumulates loop results for one phase.
type phaseRun struct {
	*run
	phase   Phase
	chunks  int
	retries int
}

// newRunner creates a chunk loop runner wired to the phase metrics.
func (p *phaseRun) newRunner(name string) *loop.Runner {
	phase := string(p.phase)
	opts := []loop.Option{
		loop.WithObserver(func(size int, elapsed time.Duration) {
			metrics.ObserveChunk(p.metrics, phase, size, elapsed)
		}),
		loop.WithRetryHook(func(int, error) {
			metrics.RecordRetry(p.metrics, phase)
		}),
	}
	opts = append(opts, p.loopOpts...)
	return loop.NewRunner(name, p.cfg.Loop, opts...)
}

// drive runs task to completion.
func (p *phaseRun) drive(ctx context.Context, name string, task loop.Task) error {
	phase := string(p.phase)
	res, err := p.newRunner(name).Run(ctx, task)
	p.chunks += res.Chunks
	p.retries += res.Retries
	// execute prefixes the phase; only sub-loops add their own name
	if err != nil && name != phase {
		err = fmt.Errorf("%s: %w", strings.TrimPrefix(name, phase+"."), err)
	}
	return err
}

func (r *run) runPhase(ctx context.Context, phase Phase) error {
	ctx = logger.PhaseContext(ctx, string(phase))
	ctx, span := telemetry.StartPhaseSpan(ctx, string(phase))
	defer span.End()

	p := &phaseRun{run: r, phase: phase}
	start := r.now()
	logger.DebugCtx(ctx, "GC: phase started")

	var err error
	switch phase {
	case PhaseMerge:
		err = p.merge(ctx)
	case PhaseExpire:
		err = p.expire(ctx)
	case PhasePruneAliases:
		err = p.pruneAliases(ctx)
	case PhasePruneContents:
		err = p.pruneContents(ctx)
	case PhaseSweep:
		err = p.sweep(ctx)
	default:
		err = fmt.Errorf("unknown phase %q", phase)
	}

	elapsed := r.now().Sub(start)
	res := PhaseResult{Phase: phase, Duration: elapsed, Chunks: p.chunks, Retries: p.retries}
	metrics.ObservePhase(r.metrics, string(phase), elapsed, err)

	if err != nil {
		res.Error = err.Error()
		telemetry.RecordError(ctx, err)
		if errors.Is(err, ErrIntegrityViolation) {
			logger.ErrorCtx(ctx, "GC: INTEGRITY VIOLATION, aborting run", logger.Err(err))
		} else {
			logger.ErrorCtx(ctx, "GC: phase failed", logger.DurationMs(elapsed), logger.KeyChunks, p.chunks, logger.Err(err))
		}
	} else {
		logger.InfoCtx(ctx, "GC: phase complete", logger.DurationMs(elapsed), logger.KeyChunks, p.chunks)
	}
	r.stats.Phases = append(r.stats.Phases, res)
	return err
}

// windowTask walks [next, end) in windows of the chunk size. fn must leave
// no partial effects when it fails so the window can be retried.
type windowTask struct {
	next int64
	end  int64
	fn   func(ctx context.Context, w catalog.IDRange) error
}

func (t *windowTask) IsDone() bool { return t.next >= t.end }

func (t *windowTask) RunChunk(ctx context.Context, size int) error {
	w := catalog.IDRange{Lo: t.next, Hi: min(t.next+int64(size), t.end)}
	if err := t.fn(ctx, w); err != nil {
		return fmt.Errorf("window %s: %w", w, err)
	}
	t.next = w.Hi
	return nil
}

// aliasWindows returns a windowTask over the whole alias table, or nil when
// the table is empty.
func (p *phaseRun) aliasWindows(ctx context.Context, fn func(ctx context.Context, w catalog.IDRange) error) (*windowTask, error) {
	bounds, ok, err := p.catalog.AliasIDBounds(ctx)
	if err != nil {
		return nil, fmt.Errorf("alias id bounds: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &windowTask{next: bounds.Lo, end: bounds.Hi, fn: fn}, nil
}
