package gc

import (
	"context"
	"fmt"

	"github.com/marmos91/blobgc/internal/logger"
	"github.com/marmos91/blobgc/pkg/catalog"
	"github.com/marmos91/blobgc/pkg/metrics"
)

// pruneAliases deletes aliases older than the grace period that are
// content-less or expired and that no discovered column references.
//
// The referenced set is built per window so memory stays bounded by the
// chunk size. DeleteAliases re-checks every reference inside its
// transaction; a reference that appeared concurrently surfaces as a
// transient foreign key error and the window is recomputed. Rows of
// denylisted tables are deleted together with the alias they point at.
func (p *phaseRun) pruneAliases(ctx context.Context) error {
	graph, err := p.refs.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discover referencing columns: %w", err)
	}
	cols := graph.Referencing
	p.stats.References = len(cols)
	for _, col := range cols {
		logger.DebugCtx(ctx, "GC: alias referenced from", logger.KeyTable, col.Table, logger.KeyColumn, col.Column)
	}
	for _, col := range graph.Detached {
		logger.DebugCtx(ctx, "GC: alias rows detached from", logger.KeyTable, col.Table, logger.KeyColumn, col.Column)
	}

	st := &p.stats.PruneAliases
	var countedHi int64 // windows below this were already counted
	task, err := p.aliasWindows(ctx, func(ctx context.Context, w catalog.IDRange) error {
		candidates, err := p.catalog.AliasPruneCandidates(ctx, w, p.aliasCutoff)
		if err != nil {
			return fmt.Errorf("list prune candidates: %w", err)
		}
		if len(candidates) == 0 {
			return nil
		}

		referenced, err := p.refs.BuildReferencedAliasIDSet(ctx, cols, w)
		if err != nil {
			return err
		}
		remaining := make([]int64, 0, len(candidates))
		for _, id := range candidates {
			if !referenced.Has(id) {
				remaining = append(remaining, id)
			}
		}

		// A retried window is counted once.
		if w.Hi > countedHi {
			st.Candidates += len(candidates)
			st.Referenced += len(candidates) - len(remaining)
			countedHi = w.Hi
		}
		if len(remaining) == 0 {
			return nil
		}

		deleted, err := p.catalog.DeleteAliases(ctx, remaining, p.aliasCutoff, cols, graph.Detached)
		if err != nil {
			return fmt.Errorf("delete aliases: %w", err)
		}
		st.AliasesDeleted += deleted
		metrics.RecordAffected(p.metrics, string(PhasePruneAliases), "aliases_deleted", int(deleted))
		return nil
	})
	if err != nil || task == nil {
		return err
	}

	err = p.drive(ctx, string(PhasePruneAliases), task)
	logger.InfoCtx(ctx, "GC: pruned aliases",
		logger.KeyCount, st.AliasesDeleted, "candidates", st.Candidates, "referenced", st.Referenced,
		"columns", len(cols), "detached_columns", len(graph.Detached))
	return err
}
