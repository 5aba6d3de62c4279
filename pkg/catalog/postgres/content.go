package postgres

import (
	"context"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/marmos91/blobgc/pkg/catalog"
)

// DuplicateHashes implements catalog.Store.
func (s *Store) DuplicateHashes(ctx context.Context, after catalog.HashKey, limit int) ([]catalog.HashKey, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT sha1, filesize
		FROM blob_content
		WHERE (sha1, filesize) > ($1, $2)
		GROUP BY sha1, filesize
		HAVING count(*) > 1
		ORDER BY sha1, filesize
		LIMIT $3`,
		after.SHA1, after.Filesize, limit,
	)
	if err != nil {
		return nil, wrap("duplicate hashes", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowToStructByPos[catalog.HashKey])
	return keys, wrap("duplicate hashes", err)
}

func scanContent(row pgx.CollectableRow) (catalog.Content, error) {
	var c catalog.Content
	err := row.Scan(&c.ID, &c.SHA1, &c.Filesize, &c.CreatedAt)
	return c, err
}

// ContentsByHash implements catalog.Store.
func (s *Store) ContentsByHash(ctx context.Context, key catalog.HashKey) ([]catalog.Content, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, sha1, filesize, created_at
		FROM blob_content
		WHERE sha1 = $1 AND filesize = $2
		ORDER BY created_at DESC, id DESC`,
		key.SHA1, key.Filesize,
	)
	if err != nil {
		return nil, wrap("contents by hash", err)
	}
	out, err := pgx.CollectRows(rows, scanContent)
	return out, wrap("contents by hash", err)
}

// RepointAliases implements catalog.Store.
func (s *Store) RepointAliases(ctx context.Context, from []int64, to int64) (int64, error) {
	var n int64
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE blob_alias SET content_id = $1
			WHERE content_id = ANY($2)`,
			to, from,
		)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	return n, wrap("repoint aliases", err)
}

// UnreferencedContentIDs implements catalog.Store.
func (s *Store) UnreferencedContentIDs(ctx context.Context, cutoff time.Time) ([]int64, error) {
	ids, err := s.queryIDs(ctx, `
		SELECT c.id
		FROM blob_content c
		LEFT JOIN blob_alias a ON a.content_id = c.id
		WHERE a.id IS NULL AND c.created_at < $1
		ORDER BY c.id`,
		cutoff,
	)
	return ids, wrap("unreferenced contents", err)
}

// DeleteContents implements catalog.Store.
func (s *Store) DeleteContents(ctx context.Context, ids []int64) ([]int64, error) {
	var deleted []int64
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			DELETE FROM blob_content c
			WHERE c.id = ANY($1)
			  AND NOT EXISTS (SELECT 1 FROM blob_alias a WHERE a.content_id = c.id)
			RETURNING c.id`,
			ids,
		)
		if err != nil {
			return err
		}
		deleted, err = pgx.CollectRows(rows, pgx.RowTo[int64])
		return err
	})
	if err != nil {
		return nil, wrap("delete contents", err)
	}
	slices.Sort(deleted)
	return deleted, nil
}

// ContentsAfter implements catalog.Store.
func (s *Store) ContentsAfter(ctx context.Context, after, before int64, limit int) ([]catalog.Content, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, sha1, filesize, created_at
		FROM blob_content
		WHERE id > $1 AND id < $2
		ORDER BY id
		LIMIT $3`,
		after, before, limit,
	)
	if err != nil {
		return nil, wrap("contents after", err)
	}
	out, err := pgx.CollectRows(rows, scanContent)
	return out, wrap("contents after", err)
}
