// Package refgraph discovers which catalog columns reference alias rows and
// answers "is this alias still referenced" for windows of alias ids.
package refgraph

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/marmos91/blobgc/internal/logger"
	"github.com/marmos91/blobgc/pkg/catalog"
)

// Source is the part of the catalog the introspector needs.
type Source interface {
	ForeignKeysTo(ctx context.Context, table, column string) ([]catalog.Column, error)
	ReferencedIDs(ctx context.Context, col catalog.Column, r catalog.IDRange) ([]int64, error)
}

// Introspector discovers referencing columns and builds referenced id sets.
type Introspector struct {
	src      Source
	denylist map[string]struct{}
}

// New creates an introspector. Tables in denylist (denormalised or
// statistical copies that must not keep aliases alive) are ignored.
func New(src Source, denylist []string) *Introspector {
	deny := make(map[string]struct{}, len(denylist))
	for _, t := range denylist {
		deny[t] = struct{}{}
	}
	return &Introspector{src: src, denylist: deny}
}

// Graph is the set of foreign key columns into blob_alias.id, split by
// whether they keep an alias alive.
type Graph struct {
	// Referencing columns keep every alias they point at.
	Referencing []catalog.Column
	// Detached columns belong to denylisted tables. Their rows are removed
	// together with the alias they point at.
	Detached []catalog.Column
}

// Discover returns every single column foreign key into blob_alias.id,
// split into referencing and denylisted columns, each sorted by table then
// column.
func (i *Introspector) Discover(ctx context.Context) (Graph, error) {
	cols, err := i.src.ForeignKeysTo(ctx, catalog.AliasTable, catalog.IDColumn)
	if err != nil {
		return Graph{}, fmt.Errorf("discover references to %s.%s: %w", catalog.AliasTable, catalog.IDColumn, err)
	}

	var g Graph
	for _, c := range cols {
		if _, denied := i.denylist[c.Table]; denied {
			logger.DebugCtx(ctx, "ignoring denylisted reference", logger.KeyTable, c.Table, logger.KeyColumn, c.Column)
			g.Detached = append(g.Detached, c)
			continue
		}
		g.Referencing = append(g.Referencing, c)
	}
	g.Referencing = sortColumns(g.Referencing)
	g.Detached = sortColumns(g.Detached)
	return g, nil
}

// DiscoverReferencingColumns returns every single column foreign key into
// blob_alias.id outside the denylist, sorted by table then column.
func (i *Introspector) DiscoverReferencingColumns(ctx context.Context) ([]catalog.Column, error) {
	g, err := i.Discover(ctx)
	if err != nil {
		return nil, err
	}
	return g.Referencing, nil
}

func sortColumns(cols []catalog.Column) []catalog.Column {
	if cols == nil {
		return []catalog.Column{}
	}
	slices.SortFunc(cols, func(a, b catalog.Column) int {
		return cmp.Or(cmp.Compare(a.Table, b.Table), cmp.Compare(a.Column, b.Column))
	})
	return slices.Compact(cols)
}

// BuildReferencedAliasIDSet unions the alias ids referenced from cols that
// fall in window. Pass catalog.All for the full set.
func (i *Introspector) BuildReferencedAliasIDSet(ctx context.Context, cols []catalog.Column, window catalog.IDRange) (catalog.IDSet, error) {
	set := catalog.IDSet{}
	if window.Empty() {
		return set, nil
	}
	for _, c := range cols {
		ids, err := i.src.ReferencedIDs(ctx, c, window)
		if err != nil {
			return nil, fmt.Errorf("referenced ids of %s in %s: %w", c, window, err)
		}
		set.Add(ids...)
	}
	return set, nil
}
