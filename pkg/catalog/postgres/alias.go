package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/marmos91/blobgc/pkg/catalog"
)

// AliasIDBounds implements catalog.Store.
func (s *Store) AliasIDBounds(ctx context.Context) (catalog.IDRange, bool, error) {
	if err := s.checkOpen(); err != nil {
		return catalog.IDRange{}, false, err
	}
	var lo, hi *int64
	if err := s.pool.QueryRow(ctx, `SELECT min(id), max(id) FROM blob_alias`).Scan(&lo, &hi); err != nil {
		return catalog.IDRange{}, false, wrap("alias id bounds", err)
	}
	if lo == nil || hi == nil {
		return catalog.IDRange{}, false, nil
	}
	return catalog.IDRange{Lo: *lo, Hi: *hi + 1}, true, nil
}

// ExpireAliases implements catalog.Store.
func (s *Store) ExpireAliases(ctx context.Context, r catalog.IDRange, cutoff time.Time) (int64, error) {
	var n int64
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE blob_alias SET content_id = NULL
			WHERE id >= $1 AND id < $2
			  AND content_id IS NOT NULL
			  AND expires_at < $3`,
			r.Lo, r.Hi, cutoff,
		)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	return n, wrap("expire aliases", err)
}

// AliasPruneCandidates implements catalog.Store.
func (s *Store) AliasPruneCandidates(ctx context.Context, r catalog.IDRange, cutoff time.Time) ([]int64, error) {
	ids, err := s.queryIDs(ctx, `
		SELECT id
		FROM blob_alias
		WHERE id >= $1 AND id < $2
		  AND created_at < $3
		  AND (content_id IS NULL OR expires_at < $3)
		ORDER BY id`,
		r.Lo, r.Hi, cutoff,
	)
	return ids, wrap("alias prune candidates", err)
}

// DeleteAliases implements catalog.Store. Every known referencing column
// becomes a NOT EXISTS guard; a reference through a column created since
// discovery surfaces as a transient foreign key violation.
//
// With detach columns the eligible aliases are locked first, then the
// detach rows pointing at them are deleted, then the aliases themselves.
// The row locks make concurrent inserts referencing a locked alias wait for
// the commit and then fail their own foreign key check.
func (s *Store) DeleteAliases(ctx context.Context, ids []int64, cutoff time.Time, refs, detach []catalog.Column) (int64, error) {
	var n int64
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if len(detach) > 0 {
			rows, err := tx.Query(ctx, lockAliasesQuery(refs), ids, cutoff)
			if err != nil {
				return err
			}
			locked, err := pgx.CollectRows(rows, pgx.RowTo[int64])
			if err != nil {
				return err
			}
			if len(locked) == 0 {
				return nil
			}
			ids = locked
			for _, col := range detach {
				if _, err := tx.Exec(ctx, detachQuery(col), ids); err != nil {
					return fmt.Errorf("detach %s: %w", col, err)
				}
			}
		}

		tag, err := tx.Exec(ctx, deleteAliasesQuery(refs), ids, cutoff)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	return n, wrap("delete aliases", err)
}

// pruneCondition is the WHERE clause shared by the lock and the delete of
// prunable aliases aliased as a. $1 is the id array and $2 the cutoff.
func pruneCondition(refs []catalog.Column) string {
	var b strings.Builder
	b.WriteString(`
		WHERE a.id = ANY($1)
		  AND a.created_at < $2
		  AND (a.content_id IS NULL OR a.expires_at < $2)`)
	for _, col := range refs {
		table := pgx.Identifier{col.Table}.Sanitize()
		column := pgx.Identifier{col.Column}.Sanitize()
		fmt.Fprintf(&b, `
		  AND NOT EXISTS (SELECT 1 FROM %s r WHERE r.%s = a.id)`, table, column)
	}
	return b.String()
}

func deleteAliasesQuery(refs []catalog.Column) string {
	return `
		DELETE FROM blob_alias a` + pruneCondition(refs)
}

func lockAliasesQuery(refs []catalog.Column) string {
	return `
		SELECT a.id FROM blob_alias a` + pruneCondition(refs) + `
		ORDER BY a.id
		FOR UPDATE OF a`
}

func detachQuery(col catalog.Column) string {
	return fmt.Sprintf(`DELETE FROM %s WHERE %s = ANY($1)`,
		pgx.Identifier{col.Table}.Sanitize(), pgx.Identifier{col.Column}.Sanitize())
}
