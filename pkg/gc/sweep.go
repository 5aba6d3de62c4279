package gc

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/marmos91/blobgc/internal/logger"
	"github.com/marmos91/blobgc/internal/telemetry"
	"github.com/marmos91/blobgc/pkg/blobstore"
	"github.com/marmos91/blobgc/pkg/catalog"
	"github.com/marmos91/blobgc/pkg/metrics"
)

// sweep merge-joins every backend partition against the content ids of the
// catalog. Objects without a row are deleted once older than the orphan
// grace period. Rows without bytes on the primary backend (and on no other
// backend) are reported, never repaired.
//
// A failing partition is logged and skipped. Only cancellation stops the
// sweep early.
func (p *phaseRun) sweep(ctx context.Context) error {
	st := &p.stats.Sweep
	for i, b := range p.blobs.Backends() {
		parts, err := b.Partitions(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			st.Failures++
			logger.ErrorCtx(ctx, "GC: failed to list partitions", logger.Backend(b.Name()), logger.Err(err))
			continue
		}

		for _, part := range parts {
			if err := p.sweepPartition(ctx, b, i == 0, part); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				st.Failures++
				logger.ErrorCtx(ctx, "GC: sweep of partition failed",
					logger.Backend(b.Name()), logger.KeyContainer, part.Name, logger.Err(err))
				continue
			}
			st.Partitions++
		}
	}

	metrics.RecordAffected(p.metrics, string(PhaseSweep), "orphans_deleted", st.OrphansDeleted)
	logger.InfoCtx(ctx, "GC: swept orphans",
		"scanned", st.Scanned, "orphans", st.OrphansFound, "deleted", st.OrphansDeleted,
		"too_young", st.OrphansTooYoung, "missing_bytes", st.MissingBytes,
		logger.KeyDryRun, p.cfg.DryRun, "failures", st.Failures)

	if st.Failures > 0 {
		return fmt.Errorf("sweep: %d partition(s) failed", st.Failures)
	}
	return nil
}

func (p *phaseRun) sweepPartition(ctx context.Context, b blobstore.Backend, primary bool, part blobstore.Partition) error {
	ctx, span := telemetry.StartSpan(ctx, "gc.sweep.partition")
	span.SetAttributes(telemetry.Backend(b.Name()), telemetry.Container(part.Name))
	defer span.End()

	next, stop := iter.Pull2(b.Scan(ctx, part))
	defer stop()

	task := &sweepTask{
		p:       p,
		backend: b,
		primary: primary,
		part:    part,
		next:    next,
		after:   part.Lo - 1,
		lastID:  part.Lo - 1,
	}
	err := p.drive(ctx, "sweep."+b.Name()+"."+part.Name, task)
	logger.DebugCtx(ctx, "GC: swept partition",
		logger.Backend(b.Name()), logger.KeyContainer, part.Name, "scanned", task.scanned)
	return err
}

// sweepTask walks a partition listing and the catalog in lock step. Each
// chunk pages up to size content rows and consumes the objects up to the
// last of them.
type sweepTask struct {
	p       *phaseRun
	backend blobstore.Backend
	primary bool
	part    blobstore.Partition

	next    func() (blobstore.Object, error, bool)
	pending *blobstore.Object // lookahead object not consumed yet
	scanErr error
	drained bool
	lastID  int64

	after   int64 // last content id consumed
	done    bool
	scanned int
}

func (t *sweepTask) IsDone() bool { return t.done }

// peek returns the next object without consuming it. A listing error is
// sticky so a retried chunk fails the same way.
func (t *sweepTask) peek() (*blobstore.Object, error) {
	if t.pending != nil || t.drained {
		return t.pending, nil
	}
	if t.scanErr != nil {
		return nil, t.scanErr
	}

	obj, err, ok := t.next()
	switch {
	case !ok:
		t.drained = true
		return nil, nil
	case err != nil:
		t.scanErr = fmt.Errorf("scan %s: %w", t.part.Name, err)
		return nil, t.scanErr
	case obj.ID <= t.lastID:
		t.scanErr = fmt.Errorf("scan %s: id %d after %d: %w", t.part.Name, obj.ID, t.lastID, blobstore.ErrOutOfOrder)
		return nil, t.scanErr
	}
	t.lastID = obj.ID
	t.pending = &obj
	return t.pending, nil
}

func (t *sweepTask) RunChunk(ctx context.Context, size int) error {
	rows, err := t.p.catalog.ContentsAfter(ctx, t.after, t.part.Hi, size)
	if err != nil {
		return fmt.Errorf("page contents after %d: %w", t.after, err)
	}

	// Objects below bound are settled by this page of rows.
	bound := t.part.Hi
	last := len(rows) < size
	if !last {
		bound = rows[len(rows)-1].ID + 1
	}

	i := 0
	for {
		obj, err := t.peek()
		if err != nil {
			return err
		}
		if obj != nil && obj.ID >= bound {
			obj = nil
		}
		if obj == nil && i >= len(rows) {
			break
		}

		switch {
		case obj != nil && (i >= len(rows) || obj.ID < rows[i].ID):
			t.orphan(ctx, *obj)
			t.pending = nil
			t.scanned++
		case obj != nil && obj.ID == rows[i].ID:
			t.pending = nil
			t.scanned++
			i++
		default:
			t.missing(ctx, rows[i])
			i++
		}
	}

	if last {
		t.done = true
	} else {
		t.after = rows[len(rows)-1].ID
	}
	return nil
}

// orphan handles an object with no content row.
func (t *sweepTask) orphan(ctx context.Context, obj blobstore.Object) {
	st := &t.p.stats.Sweep
	if !obj.CreatedAt.Before(t.p.orphanCutoff) {
		st.OrphansTooYoung++
		logger.DebugCtx(ctx, "GC: orphan too young, keeping",
			logger.Backend(t.backend.Name()), logger.KeyKey, obj.Key, logger.KeyAge, t.age(obj.CreatedAt))
		return
	}

	st.OrphansFound++
	if t.p.cfg.DryRun {
		logger.InfoCtx(ctx, "GC: would delete orphan",
			logger.Backend(t.backend.Name()), logger.KeyKey, obj.Key, logger.ContentID(obj.ID), logger.KeyDryRun, true)
		return
	}

	err := t.backend.Delete(ctx, obj.ID)
	switch {
	case err == nil:
		st.OrphansDeleted++
		logger.InfoCtx(ctx, "GC: deleted orphan",
			logger.Backend(t.backend.Name()), logger.KeyKey, obj.Key, logger.ContentID(obj.ID))
	case errors.Is(err, blobstore.ErrNotFound):
		logger.DebugCtx(ctx, "GC: orphan already gone", logger.Backend(t.backend.Name()), logger.KeyKey, obj.Key)
	default:
		st.Errors++
		logger.WarnCtx(ctx, "GC: failed to delete orphan",
			logger.Backend(t.backend.Name()), logger.KeyKey, obj.Key, logger.Err(err))
	}
}

// missing handles a content row with no object on this backend. Only rows
// absent from the primary backend are checked, since replicas may lag.
func (t *sweepTask) missing(ctx context.Context, row catalog.Content) {
	if !t.primary || !row.CreatedAt.Before(t.p.orphanCutoff) {
		return
	}

	st := &t.p.stats.Sweep
	ok, err := t.p.blobs.ExistsElsewhere(ctx, row.ID, t.backend.Name())
	if err != nil {
		st.Errors++
		logger.WarnCtx(ctx, "GC: failed to check replica", logger.ContentID(row.ID), logger.Err(err))
		return
	}
	if ok {
		return
	}

	if t.p.upstreamMirror {
		logger.DebugCtx(ctx, "GC: content not mirrored yet", logger.ContentID(row.ID))
		return
	}
	st.MissingBytes++
	metrics.RecordIntegrityWarning(t.p.metrics, "missing_bytes")
	logger.ErrorCtx(ctx, "GC: content has no bytes on any backend",
		logger.ContentID(row.ID), logger.KeySHA1, row.SHA1, logger.KeyFilesize, row.Filesize)
}

func (t *sweepTask) age(created time.Time) time.Duration {
	return t.p.orphanCutoff.Add(t.p.cfg.OrphanGrace()).Sub(created)
}
