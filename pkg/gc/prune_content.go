package gc

import (
	"context"
	"fmt"

	"github.com/marmos91/blobgc/internal/logger"
	"github.com/marmos91/blobgc/pkg/loop"
	"github.com/marmos91/blobgc/pkg/metrics"
)

// pruneContents deletes content rows no alias points at, then their bytes.
//
// The candidate list is materialised once: no alias may legally start
// pointing at content that is already unreferenced. DeleteContents still
// re-checks inside its transaction and returns the ids it removed; only
// those have their bytes deleted, after the commit. Byte deletes are retried
// on transient backend errors. One that still fails leaves an orphan that
// the sweep reclaims later, and the run reports ErrBlobsLeft.
func (p *phaseRun) pruneContents(ctx context.Context) error {
	ids, err := p.catalog.UnreferencedContentIDs(ctx, p.contentCutoff)
	if err != nil {
		return fmt.Errorf("list unreferenced contents: %w", err)
	}

	st := &p.stats.PruneContents
	st.Candidates = len(ids)
	if len(ids) == 0 {
		logger.InfoCtx(ctx, "GC: no unreferenced contents")
		return nil
	}

	task := &pruneContentTask{p: p, ids: ids, blobs: p.newRunner("prune_contents.blobs")}
	err = p.drive(ctx, string(PhasePruneContents), task)

	metrics.RecordAffected(p.metrics, string(PhasePruneContents), "contents_deleted", st.ContentsDeleted)
	metrics.RecordAffected(p.metrics, string(PhasePruneContents), "blobs_deleted", st.BlobsDeleted)
	logger.InfoCtx(ctx, "GC: pruned contents",
		logger.KeyCount, st.ContentsDeleted, "candidates", st.Candidates,
		"blobs_deleted", st.BlobsDeleted, "blob_errors", st.BlobErrors)
	return err
}

type pruneContentTask struct {
	p     *phaseRun
	ids   []int64
	next  int
	blobs *loop.Runner // retries byte deletes
}

func (t *pruneContentTask) IsDone() bool { return t.next >= len(t.ids) }

func (t *pruneContentTask) RunChunk(ctx context.Context, size int) error {
	batch := t.ids[t.next:min(t.next+size, len(t.ids))]
	deleted, err := t.p.catalog.DeleteContents(ctx, batch)
	if err != nil {
		return fmt.Errorf("delete contents: %w", err)
	}
	t.next += len(batch)

	st := &t.p.stats.PruneContents
	st.ContentsDeleted += len(deleted)
	if skipped := len(batch) - len(deleted); skipped > 0 {
		logger.DebugCtx(ctx, "GC: contents referenced again or already gone", logger.KeyCount, skipped)
	}

	for _, id := range deleted {
		retries, err := t.blobs.Do(ctx, func(ctx context.Context) error {
			n, err := t.p.blobs.DeleteEverywhere(ctx, id)
			st.BlobsDeleted += n
			return err
		})
		t.p.retries += retries
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			st.BlobErrors++
			logger.ErrorCtx(ctx, "GC: failed to delete blob, leaving it to the sweep",
				logger.ContentID(id), logger.KeyAttempt, retries+1, logger.Err(err))
		}
	}
	return nil
}
