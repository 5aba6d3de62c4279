package catalogtest

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/marmos91/blobgc/pkg/catalog"
	"github.com/marmos91/blobgc/pkg/loop"
)

// Fixture seeds a catalog under test. Implementations fail the test on error.
type Fixture interface {
	AddContent(sha1 string, filesize int64, created time.Time) int64
	AddAlias(a catalog.Alias) int64

	// AddReference inserts a row into col.Table whose col.Column points at
	// aliasID, creating the foreign key if needed.
	AddReference(col catalog.Column, aliasID int64)
}

// StoreFactory creates a fresh, empty catalog and its fixture for each test.
type StoreFactory func(t *testing.T) (catalog.Store, Fixture)

// RunConformanceSuite runs the full conformance test suite against the
// provided factory. Each test gets a fresh catalog.
func RunConformanceSuite(t *testing.T, factory StoreFactory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s catalog.Store, f Fixture)
	}{
		{"Now", testNow},
		{"DuplicateHashes", testDuplicateHashes},
		{"ContentsByHash", testContentsByHash},
		{"RepointAliases", testRepointAliases},
		{"AliasIDBounds", testAliasIDBounds},
		{"ExpireAliases", testExpireAliases},
		{"ForeignKeys", testForeignKeys},
		{"PruneAliases", testPruneAliases},
		{"DeleteAliasesForeignKeyRace", testDeleteAliasesForeignKeyRace},
		{"DeleteAliasesDetach", testDeleteAliasesDetach},
		{"PruneContents", testPruneContents},
		{"ContentsAfter", testContentsAfter},
		{"RunLock", testRunLock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, f := factory(t)
			tt.fn(t, s, f)
		})
	}
}

var (
	base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	refAvatar = catalog.Column{Table: "profiles", Column: "avatar_id"}
	refCover  = catalog.Column{Table: "profiles", Column: "cover_id"}
	refAttach = catalog.Column{Table: "attachments", Column: "alias_id"}
	refStats  = catalog.Column{Table: "download_stats", Column: "alias_id"}
)

func sha(c byte) string {
	b := make([]byte, 40)
	for i := range b {
		b[i] = c
	}
	return string(b)
}

func ptr[T any](v T) *T { return &v }

func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

func testNow(t *testing.T, s catalog.Store, _ Fixture) {
	now, err := s.Now(t.Context())
	if err != nil {
		t.Fatalf("Now() failed: %v", err)
	}
	if now.IsZero() {
		t.Fatal("Now() returned zero time")
	}
}

func testDuplicateHashes(t *testing.T, s catalog.Store, f Fixture) {
	ctx := t.Context()

	for _, k := range []catalog.HashKey{
		{SHA1: sha('a'), Filesize: 10},
		{SHA1: sha('a'), Filesize: 10},
		{SHA1: sha('a'), Filesize: 11}, // same hash, different size: no group
		{SHA1: sha('b'), Filesize: 5},
		{SHA1: sha('b'), Filesize: 5},
		{SHA1: sha('b'), Filesize: 5},
		{SHA1: sha('c'), Filesize: 1},
		{SHA1: sha('d'), Filesize: 7},
		{SHA1: sha('d'), Filesize: 7},
	} {
		f.AddContent(k.SHA1, k.Filesize, base)
	}

	var all []catalog.HashKey
	after := catalog.HashKey{}
	for {
		page, err := s.DuplicateHashes(ctx, after, 2)
		if err != nil {
			t.Fatalf("DuplicateHashes() failed: %v", err)
		}
		if len(page) > 2 {
			t.Fatalf("page of %d exceeds limit 2", len(page))
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
		after = page[len(page)-1]
	}

	want := []catalog.HashKey{
		{SHA1: sha('a'), Filesize: 10},
		{SHA1: sha('b'), Filesize: 5},
		{SHA1: sha('d'), Filesize: 7},
	}
	if !slices.Equal(all, want) {
		t.Fatalf("DuplicateHashes() = %v, want %v", all, want)
	}
}

func testContentsByHash(t *testing.T, s catalog.Store, f Fixture) {
	key := catalog.HashKey{SHA1: sha('e'), Filesize: 3}
	older := f.AddContent(key.SHA1, key.Filesize, base.Add(-time.Hour))
	newer := f.AddContent(key.SHA1, key.Filesize, base)
	f.AddContent(sha('f'), 3, base)

	rows, err := s.ContentsByHash(t.Context(), key)
	if err != nil {
		t.Fatalf("ContentsByHash() failed: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != newer || rows[1].ID != older {
		t.Fatalf("ContentsByHash() = %v, want [%d %d]", rows, newer, older)
	}
	if !rows[0].CreatedAt.Equal(base) || rows[0].SHA1 != key.SHA1 || rows[0].Filesize != 3 {
		t.Fatalf("unexpected row %+v", rows[0])
	}
}

func testRepointAliases(t *testing.T, s catalog.Store, f Fixture) {
	ctx := t.Context()

	primary := f.AddContent(sha('a'), 1, base)
	dup1 := f.AddContent(sha('a'), 1, base.Add(-time.Hour))
	dup2 := f.AddContent(sha('a'), 1, base.Add(-2*time.Hour))
	other := f.AddContent(sha('b'), 1, base)

	f.AddAlias(catalog.Alias{ContentID: ptr(dup1), Filename: "a1", CreatedAt: base})
	f.AddAlias(catalog.Alias{ContentID: ptr(dup2), Filename: "a2", CreatedAt: base})
	f.AddAlias(catalog.Alias{ContentID: ptr(other), Filename: "a3", CreatedAt: base})
	f.AddAlias(catalog.Alias{ContentID: ptr(primary), Filename: "a4", CreatedAt: base})

	n, err := s.RepointAliases(ctx, []int64{dup1, dup2}, primary)
	if err != nil {
		t.Fatalf("RepointAliases() failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("RepointAliases() moved %d aliases, want 2", n)
	}

	// Moved aliases no longer keep the duplicates alive, the untouched one
	// still keeps its content alive.
	ids, err := s.UnreferencedContentIDs(ctx, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("UnreferencedContentIDs() failed: %v", err)
	}
	if !slices.Equal(ids, []int64{dup1, dup2}) {
		t.Fatalf("unreferenced after repoint = %v, want [%d %d]", ids, dup1, dup2)
	}
}

func testAliasIDBounds(t *testing.T, s catalog.Store, f Fixture) {
	ctx := t.Context()

	if _, ok, err := s.AliasIDBounds(ctx); err != nil || ok {
		t.Fatalf("AliasIDBounds() on empty table = ok %v, err %v", ok, err)
	}

	first := f.AddAlias(catalog.Alias{Filename: "x", CreatedAt: base})
	f.AddAlias(catalog.Alias{Filename: "y", CreatedAt: base})
	last := f.AddAlias(catalog.Alias{Filename: "z", CreatedAt: base})

	r, ok, err := s.AliasIDBounds(ctx)
	if err != nil || !ok {
		t.Fatalf("AliasIDBounds() = ok %v, err %v", ok, err)
	}
	if r.Lo != first || r.Hi != last+1 {
		t.Fatalf("AliasIDBounds() = %s, want [%d, %d)", r, first, last+1)
	}
}

func testExpireAliases(t *testing.T, s catalog.Store, f Fixture) {
	ctx := t.Context()
	cutoff := base.Add(-days(7))

	c := f.AddContent(sha('a'), 1, base.Add(-days(30)))
	expired := f.AddAlias(catalog.Alias{ContentID: ptr(c), ExpiresAt: ptr(cutoff.Add(-time.Hour)), CreatedAt: base.Add(-days(30))})
	recent := f.AddAlias(catalog.Alias{ContentID: ptr(c), ExpiresAt: ptr(cutoff.Add(time.Hour)), CreatedAt: base.Add(-days(30))})
	never := f.AddAlias(catalog.Alias{ContentID: ptr(c), CreatedAt: base.Add(-days(30))})
	outside := f.AddAlias(catalog.Alias{ContentID: ptr(c), ExpiresAt: ptr(cutoff.Add(-time.Hour)), CreatedAt: base.Add(-days(30))})

	n, err := s.ExpireAliases(ctx, catalog.IDRange{Lo: expired, Hi: outside}, cutoff)
	if err != nil {
		t.Fatalf("ExpireAliases() failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("ExpireAliases() = %d, want 1", n)
	}

	// Idempotent.
	n, err = s.ExpireAliases(ctx, catalog.IDRange{Lo: expired, Hi: outside}, cutoff)
	if err != nil || n != 0 {
		t.Fatalf("second ExpireAliases() = %d, %v; want 0, nil", n, err)
	}

	ids, err := s.AliasPruneCandidates(ctx, catalog.All, base)
	if err != nil {
		t.Fatalf("AliasPruneCandidates() failed: %v", err)
	}
	// Against base: expired is content-less, recent and outside expired
	// before it, never does not expire.
	want := []int64{expired, recent, outside}
	if !slices.Equal(ids, want) {
		t.Fatalf("AliasPruneCandidates() = %v, want %v (never=%d)", ids, want, never)
	}
}

func testForeignKeys(t *testing.T, s catalog.Store, f Fixture) {
	ctx := t.Context()

	a1 := f.AddAlias(catalog.Alias{Filename: "1", CreatedAt: base})
	a2 := f.AddAlias(catalog.Alias{Filename: "2", CreatedAt: base})
	a3 := f.AddAlias(catalog.Alias{Filename: "3", CreatedAt: base})

	f.AddReference(refAvatar, a1)
	f.AddReference(refAvatar, a1)
	f.AddReference(refCover, a3)
	f.AddReference(refAttach, a2)

	cols, err := s.ForeignKeysTo(ctx, catalog.AliasTable, catalog.IDColumn)
	if err != nil {
		t.Fatalf("ForeignKeysTo() failed: %v", err)
	}
	want := []catalog.Column{refAttach, refAvatar, refCover}
	if !slices.Equal(cols, want) {
		t.Fatalf("ForeignKeysTo() = %v, want %v", cols, want)
	}

	ids, err := s.ReferencedIDs(ctx, refAvatar, catalog.All)
	if err != nil {
		t.Fatalf("ReferencedIDs() failed: %v", err)
	}
	if !slices.Equal(ids, []int64{a1}) {
		t.Fatalf("ReferencedIDs(avatar) = %v, want [%d]", ids, a1)
	}

	ids, err = s.ReferencedIDs(ctx, refAttach, catalog.IDRange{Lo: a3, Hi: a3 + 1})
	if err != nil {
		t.Fatalf("ReferencedIDs() failed: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("ReferencedIDs(attach, window) = %v, want none", ids)
	}
}

func testPruneAliases(t *testing.T, s catalog.Store, f Fixture) {
	ctx := t.Context()
	cutoff := base.Add(-days(7))
	old := base.Add(-days(30))

	c := f.AddContent(sha('a'), 1, old)
	detached := f.AddAlias(catalog.Alias{Filename: "detached", CreatedAt: old})
	young := f.AddAlias(catalog.Alias{Filename: "young", CreatedAt: base})
	live := f.AddAlias(catalog.Alias{ContentID: ptr(c), Filename: "live", CreatedAt: old})
	expired := f.AddAlias(catalog.Alias{ContentID: ptr(c), ExpiresAt: ptr(old), Filename: "expired", CreatedAt: old})
	referenced := f.AddAlias(catalog.Alias{Filename: "referenced", CreatedAt: old})
	f.AddReference(refAvatar, referenced)

	candidates, err := s.AliasPruneCandidates(ctx, catalog.All, cutoff)
	if err != nil {
		t.Fatalf("AliasPruneCandidates() failed: %v", err)
	}
	want := []int64{detached, expired, referenced}
	if !slices.Equal(candidates, want) {
		t.Fatalf("AliasPruneCandidates() = %v, want %v", candidates, want)
	}

	// Ineligible ids passed in are re-checked and skipped.
	n, err := s.DeleteAliases(ctx, []int64{detached, young, live, expired, referenced}, cutoff, []catalog.Column{refAvatar}, nil)
	if err != nil {
		t.Fatalf("DeleteAliases() failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("DeleteAliases() = %d, want 2", n)
	}

	r, ok, err := s.AliasIDBounds(ctx)
	if err != nil || !ok {
		t.Fatalf("AliasIDBounds() = ok %v, err %v", ok, err)
	}
	left, err := s.AliasPruneCandidates(ctx, r, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("AliasPruneCandidates() failed: %v", err)
	}
	if !slices.Equal(left, []int64{young, referenced}) {
		t.Fatalf("remaining content-less aliases = %v, want [%d %d]", left, young, referenced)
	}
}

func testDeleteAliasesForeignKeyRace(t *testing.T, s catalog.Store, f Fixture) {
	ctx := t.Context()
	old := base.Add(-days(30))

	a := f.AddAlias(catalog.Alias{Filename: "raced", CreatedAt: old})
	f.AddReference(refAttach, a)

	// The caller did not know about the referencing column: the catalog's
	// own foreign key must refuse the delete with a retryable error.
	_, err := s.DeleteAliases(ctx, []int64{a}, base, nil, nil)
	if err == nil {
		t.Fatal("DeleteAliases() of a referenced alias succeeded")
	}
	if !loop.IsTransient(err) {
		t.Fatalf("DeleteAliases() error %v is not transient", err)
	}
}

func testDeleteAliasesDetach(t *testing.T, s catalog.Store, f Fixture) {
	ctx := t.Context()
	old := base.Add(-days(30))

	counted := f.AddAlias(catalog.Alias{Filename: "counted", CreatedAt: old})
	young := f.AddAlias(catalog.Alias{Filename: "young", CreatedAt: base})
	kept := f.AddAlias(catalog.Alias{Filename: "kept", CreatedAt: old})
	f.AddReference(refStats, counted)
	f.AddReference(refStats, young)
	f.AddReference(refStats, kept)
	f.AddReference(refAvatar, kept)

	refs := []catalog.Column{refAvatar}
	detach := []catalog.Column{refStats}
	n, err := s.DeleteAliases(ctx, []int64{counted, young, kept}, base.Add(-days(7)), refs, detach)
	if err != nil {
		t.Fatalf("DeleteAliases() with detach columns failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("DeleteAliases() = %d, want 1", n)
	}

	// Only the rows of the deleted alias are gone from the detached table.
	left, err := s.ReferencedIDs(ctx, refStats, catalog.All)
	if err != nil {
		t.Fatalf("ReferencedIDs() failed: %v", err)
	}
	if !slices.Equal(left, []int64{young, kept}) {
		t.Fatalf("ReferencedIDs(stats) = %v, want [%d %d]", left, young, kept)
	}

	// Without detach the remaining stats row blocks the delete.
	_, err = s.DeleteAliases(ctx, []int64{young}, base.Add(time.Hour), nil, nil)
	if !loop.IsTransient(err) {
		t.Fatalf("DeleteAliases() without detach = %v, want transient error", err)
	}
}

func testPruneContents(t *testing.T, s catalog.Store, f Fixture) {
	ctx := t.Context()
	cutoff := base.Add(-days(1))
	old := base.Add(-days(30))

	orphan := f.AddContent(sha('a'), 1, old)
	used := f.AddContent(sha('b'), 1, old)
	young := f.AddContent(sha('c'), 1, base)
	later := f.AddContent(sha('d'), 1, old)
	f.AddAlias(catalog.Alias{ContentID: ptr(used), CreatedAt: old})

	ids, err := s.UnreferencedContentIDs(ctx, cutoff)
	if err != nil {
		t.Fatalf("UnreferencedContentIDs() failed: %v", err)
	}
	if !slices.Equal(ids, []int64{orphan, later}) {
		t.Fatalf("UnreferencedContentIDs() = %v, want [%d %d]", ids, orphan, later)
	}

	// An alias appears after the candidate list was materialised.
	f.AddAlias(catalog.Alias{ContentID: ptr(later), CreatedAt: base})

	deleted, err := s.DeleteContents(ctx, []int64{orphan, used, later, young + 1000})
	if err != nil {
		t.Fatalf("DeleteContents() failed: %v", err)
	}
	if !slices.Equal(deleted, []int64{orphan}) {
		t.Fatalf("DeleteContents() = %v, want [%d]", deleted, orphan)
	}

	deleted, err = s.DeleteContents(ctx, []int64{orphan})
	if err != nil || len(deleted) != 0 {
		t.Fatalf("second DeleteContents() = %v, %v; want none", deleted, err)
	}
}

func testContentsAfter(t *testing.T, s catalog.Store, f Fixture) {
	ctx := t.Context()

	var ids []int64
	for i := 0; i < 5; i++ {
		ids = append(ids, f.AddContent(sha('a'+byte(i)), int64(i), base))
	}

	page, err := s.ContentsAfter(ctx, 0, ids[4], 3)
	if err != nil {
		t.Fatalf("ContentsAfter() failed: %v", err)
	}
	if len(page) != 3 || page[0].ID != ids[0] || page[2].ID != ids[2] {
		t.Fatalf("ContentsAfter(first page) = %v", page)
	}

	page, err = s.ContentsAfter(ctx, page[2].ID, ids[4], 3)
	if err != nil {
		t.Fatalf("ContentsAfter() failed: %v", err)
	}
	if len(page) != 1 || page[0].ID != ids[3] {
		t.Fatalf("ContentsAfter(second page) = %v, want [%d]", page, ids[3])
	}
	if !page[0].CreatedAt.Equal(base) {
		t.Fatalf("ContentsAfter() created_at = %v, want %v", page[0].CreatedAt, base)
	}
}

func testRunLock(t *testing.T, s catalog.Store, _ Fixture) {
	ctx := t.Context()
	const key = 4242

	release, err := s.AcquireRunLock(ctx, key)
	if err != nil {
		t.Fatalf("AcquireRunLock() failed: %v", err)
	}

	if _, err := s.AcquireRunLock(ctx, key); !errors.Is(err, catalog.ErrLocked) {
		t.Fatalf("second AcquireRunLock() = %v, want ErrLocked", err)
	}

	release()
	release() // idempotent

	release2, err := s.AcquireRunLock(ctx, key)
	if err != nil {
		t.Fatalf("AcquireRunLock() after release failed: %v", err)
	}
	release2()

	if err := s.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck() failed: %v", err)
	}
}
