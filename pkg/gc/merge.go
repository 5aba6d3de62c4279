package gc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/marmos91/blobgc/internal/logger"
	"github.com/marmos91/blobgc/pkg/blobstore"
	"github.com/marmos91/blobgc/pkg/catalog"
	"github.com/marmos91/blobgc/pkg/metrics"
)

// mergePlan is a verified duplicate group: every alias of secondaries will
// be repointed at primary.
type mergePlan struct {
	key         catalog.HashKey
	primary     int64
	secondaries []int64
}

// merge repoints aliases of byte-identical duplicates at the newest row.
//
// All groups are verified before any alias moves, so an integrity violation
// anywhere leaves the catalog untouched. Secondary rows become unreferenced
// and are removed by the content pruner.
func (p *phaseRun) merge(ctx context.Context) error {
	verify := &verifyTask{p: p}
	if err := p.drive(ctx, "merge.verify", verify); err != nil {
		return err
	}

	st := &p.stats.Merge
	st.Groups += len(verify.plans)
	st.GroupsSkipped += verify.skipped
	st.Compared += verify.compared

	if len(verify.plans) == 0 {
		logger.InfoCtx(ctx, "GC: no duplicate groups to merge", "skipped", verify.skipped)
		return nil
	}

	repoint := &repointTask{p: p, plans: verify.plans}
	err := p.drive(ctx, "merge.repoint", repoint)
	st.AliasesRepointed += repoint.moved
	metrics.RecordAffected(p.metrics, string(PhaseMerge), "aliases_repointed", int(repoint.moved))

	logger.InfoCtx(ctx, "GC: merged duplicates",
		"groups", len(verify.plans), "skipped", verify.skipped, "aliases_repointed", repoint.moved)
	return err
}

// verifyTask pages duplicate keys and proves each group byte-identical.
type verifyTask struct {
	p        *phaseRun
	after    catalog.HashKey
	done     bool
	plans    []mergePlan
	skipped  int
	compared int
}

func (t *verifyTask) IsDone() bool { return t.done }

func (t *verifyTask) RunChunk(ctx context.Context, size int) error {
	keys, err := t.p.catalog.DuplicateHashes(ctx, t.after, size)
	if err != nil {
		return fmt.Errorf("list duplicate hashes: %w", err)
	}

	var (
		plans    []mergePlan
		skipped  int
		compared int
	)
	for _, key := range keys {
		plan, n, ok, err := t.p.verifyGroup(ctx, key)
		if err != nil {
			return err
		}
		compared += n
		if !ok {
			skipped++
			continue
		}
		plans = append(plans, plan)
	}

	t.plans = append(t.plans, plans...)
	t.skipped += skipped
	t.compared += compared
	if len(keys) < size {
		t.done = true
	} else {
		t.after = keys[len(keys)-1]
	}
	return nil
}

// verifyGroup loads the rows of key and compares every secondary that has
// bytes against the primary. ok is false when the group must be skipped.
func (p *phaseRun) verifyGroup(ctx context.Context, key catalog.HashKey) (plan mergePlan, compared int, ok bool, err error) {
	contents, err := p.catalog.ContentsByHash(ctx, key)
	if err != nil {
		return plan, 0, false, fmt.Errorf("contents of %s: %w", key, err)
	}
	if len(contents) < 2 {
		// merged or pruned since the key was listed
		return plan, 0, false, nil
	}

	primary := contents[0].ID
	exists, err := p.blobs.ExistsAnywhere(ctx, primary)
	if err != nil {
		return plan, 0, false, fmt.Errorf("check primary %d: %w", primary, err)
	}
	if !exists {
		logger.InfoCtx(ctx, "GC: duplicate group not yet synced, skipping",
			logger.KeySHA1, key.SHA1, logger.KeyFilesize, key.Filesize, logger.KeyPrimary, primary)
		return plan, 0, false, nil
	}

	plan = mergePlan{key: key, primary: primary}
	for _, c := range contents[1:] {
		same, offset, found, err := p.compareContents(ctx, primary, c.ID)
		if err != nil {
			return plan, compared, false, err
		}
		if found {
			compared++
			if !same {
				ie := &IntegrityError{Key: key, Primary: primary, Secondary: c.ID, Offset: offset}
				metrics.RecordIntegrityWarning(p.metrics, "hash_collision")
				logger.ErrorCtx(ctx, "GC: duplicate contents differ",
					logger.KeySHA1, key.SHA1, logger.KeyFilesize, key.Filesize,
					logger.KeyPrimary, primary, logger.ContentID(c.ID), "offset", offset)
				return plan, compared, false, ie
			}
		} else {
			logger.DebugCtx(ctx, "GC: duplicate has no bytes, merging without compare", logger.ContentID(c.ID))
		}
		plan.secondaries = append(plan.secondaries, c.ID)
	}
	return plan, compared, true, nil
}

// compareContents streams secondary against primary. found is false when
// the secondary has no bytes on any backend.
func (p *phaseRun) compareContents(ctx context.Context, primary, secondary int64) (same bool, offset int64, found bool, err error) {
	sec, _, err := p.blobs.OpenAny(ctx, secondary)
	if errors.Is(err, blobstore.ErrNotFound) {
		return false, 0, false, nil
	}
	if err != nil {
		return false, 0, false, fmt.Errorf("open content %d: %w", secondary, err)
	}
	defer closeQuietly(sec)

	prim, _, err := p.blobs.OpenAny(ctx, primary)
	if err != nil {
		return false, 0, true, fmt.Errorf("open content %d: %w", primary, err)
	}
	defer closeQuietly(prim)

	same, offset, err = compareStreams(prim, sec, p.buffers)
	if err != nil {
		return false, offset, true, fmt.Errorf("compare contents %d and %d: %w", primary, secondary, err)
	}
	return same, offset, true, nil
}

func closeQuietly(c io.Closer) {
	_ = c.Close()
}

// repointTask moves aliases group by group. Each group commits on its own,
// and repointing an already merged group is a no-op, so a retried chunk
// resumes at the group that failed.
type repointTask struct {
	p     *phaseRun
	plans []mergePlan
	next  int
	moved int64
}

func (t *repointTask) IsDone() bool { return t.next >= len(t.plans) }

func (t *repointTask) RunChunk(ctx context.Context, size int) error {
	end := min(t.next+size, len(t.plans))
	for ; t.next < end; t.next++ {
		plan := t.plans[t.next]
		n, err := t.p.catalog.RepointAliases(ctx, plan.secondaries, plan.primary)
		if err != nil {
			return fmt.Errorf("repoint aliases of %s to %d: %w", plan.key, plan.primary, err)
		}
		t.moved += n
		if n > 0 {
			logger.DebugCtx(ctx, "GC: repointed aliases",
				logger.KeySHA1, plan.key.SHA1, logger.KeyPrimary, plan.primary, logger.KeyCount, n)
		}
	}
	return nil
}
