package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/marmos91/blobgc/pkg/catalog"
)

// foreignKeysQuery lists single column foreign keys in the current schema
// whose referenced column is ($1, $2). Multi-column keys are excluded: they
// cannot be checked value by value.
const foreignKeysQuery = `
	SELECT kcu.table_name::text, kcu.column_name::text
	FROM information_schema.referential_constraints rc
	JOIN information_schema.key_column_usage kcu
	  ON kcu.constraint_schema = rc.constraint_schema
	 AND kcu.constraint_name = rc.constraint_name
	JOIN information_schema.key_column_usage ref
	  ON ref.constraint_schema = rc.unique_constraint_schema
	 AND ref.constraint_name = rc.unique_constraint_name
	 AND ref.ordinal_position = kcu.position_in_unique_constraint
	WHERE rc.constraint_schema = current_schema()
	  AND ref.table_name = $1
	  AND ref.column_name = $2
	  AND (
	    SELECT count(*)
	    FROM information_schema.key_column_usage k2
	    WHERE k2.constraint_schema = rc.constraint_schema
	      AND k2.constraint_name = rc.constraint_name
	  ) = 1
	GROUP BY kcu.table_name, kcu.column_name
	ORDER BY kcu.table_name, kcu.column_name`

// ForeignKeysTo implements catalog.Store.
func (s *Store) ForeignKeysTo(ctx context.Context, table, column string) ([]catalog.Column, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, foreignKeysQuery, table, column)
	if err != nil {
		return nil, wrap("foreign keys", err)
	}
	cols, err := pgx.CollectRows(rows, pgx.RowToStructByPos[catalog.Column])
	return cols, wrap("foreign keys", err)
}

// ReferencedIDs implements catalog.Store.
func (s *Store) ReferencedIDs(ctx context.Context, col catalog.Column, r catalog.IDRange) ([]int64, error) {
	query := fmt.Sprintf(`
		SELECT DISTINCT %[2]s
		FROM %[1]s
		WHERE %[2]s >= $1 AND %[2]s < $2
		ORDER BY 1`,
		pgx.Identifier{col.Table}.Sanitize(),
		pgx.Identifier{col.Column}.Sanitize(),
	)
	ids, err := s.queryIDs(ctx, query, r.Lo, r.Hi)
	return ids, wrap(fmt.Sprintf("referenced ids of %s", col), err)
}
