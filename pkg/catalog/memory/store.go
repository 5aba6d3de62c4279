// Package memory provides an in-memory catalog for testing. It mirrors the
// transactional guarantees of the Postgres catalog: every mutating method
// is atomic and re-checks its preconditions.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/marmos91/blobgc/pkg/catalog"
)

// Store is an in-memory implementation of catalog.Store.
type Store struct {
	mu       sync.Mutex
	contents map[int64]catalog.Content
	aliases  map[int64]catalog.Alias
	refs     map[catalog.Column]map[int64]int // column -> alias id -> count
	nextID   int64
	now      func() time.Time
	locked   map[int64]bool
	faults   map[string][]error
	closed   bool

	// BeforeDeleteAliases, when set, runs before DeleteAliases takes the
	// lock. Used to simulate a reference created concurrently.
	BeforeDeleteAliases func(ids []int64)
}

var _ catalog.Store = (*Store)(nil)

// New creates an empty catalog whose clock is time.Now.
func New() *Store {
	return &Store{
		contents: make(map[int64]catalog.Content),
		aliases:  make(map[int64]catalog.Alias),
		refs:     make(map[catalog.Column]map[int64]int),
		nextID:   1,
		now:      time.Now,
		locked:   make(map[int64]bool),
		faults:   make(map[string][]error),
	}
}

// SetNow fixes the catalog clock.
func (s *Store) SetNow(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = func() time.Time { return t }
}

// FailNext makes the next call of the named method return err. Calls queue.
func (s *Store) FailNext(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[method] = append(s.faults[method], err)
}

func (s *Store) fault(method string) error {
	if s.closed {
		return catalog.ErrClosed
	}
	q := s.faults[method]
	if len(q) == 0 {
		return nil
	}
	s.faults[method] = q[1:]
	return q[0]
}

func (s *Store) allocID() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// AddContent inserts a content row and returns its id.
func (s *Store) AddContent(sha1 string, filesize int64, created time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.allocID()
	s.contents[id] = catalog.Content{ID: id, SHA1: sha1, Filesize: filesize, CreatedAt: created}
	return id
}

// AddAlias inserts an alias row and returns its id. A zero a.ID is
// allocated.
func (s *Store) AddAlias(a catalog.Alias) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == 0 {
		a.ID = s.allocID()
	} else if a.ID >= s.nextID {
		s.nextID = a.ID + 1
	}
	s.aliases[a.ID] = a
	return a.ID
}

// AddReference records a row of col pointing at aliasID, declaring col as a
// foreign key to blob_alias.id.
func (s *Store) AddReference(col catalog.Column, aliasID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addReferenceLocked(col, aliasID)
}

func (s *Store) addReferenceLocked(col catalog.Column, aliasID int64) {
	m, ok := s.refs[col]
	if !ok {
		m = make(map[int64]int)
		s.refs[col] = m
	}
	m[aliasID]++
}

// Content returns a content row.
func (s *Store) Content(id int64) (catalog.Content, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contents[id]
	return c, ok
}

// Alias returns an alias row.
func (s *Store) Alias(id int64) (catalog.Alias, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.aliases[id]
	return a, ok
}

// ContentIDs returns every content id, ascending.
func (s *Store) ContentIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.contents)
}

// AliasIDs returns every alias id, ascending.
func (s *Store) AliasIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.aliases)
}

func sortedKeys[V any](m map[int64]V) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Now implements catalog.Store.
func (s *Store) Now(context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("Now"); err != nil {
		return time.Time{}, err
	}
	return s.now(), nil
}

// DuplicateHashes implements catalog.Store.
func (s *Store) DuplicateHashes(_ context.Context, after catalog.HashKey, limit int) ([]catalog.HashKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("DuplicateHashes"); err != nil {
		return nil, err
	}

	counts := make(map[catalog.HashKey]int)
	for _, c := range s.contents {
		counts[c.Key()]++
	}
	var keys []catalog.HashKey
	for k, n := range counts {
		if n > 1 && compareKeys(k, after) > 0 {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, compareKeys)
	if len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

func compareKeys(a, b catalog.HashKey) int {
	if c := cmp.Compare(a.SHA1, b.SHA1); c != 0 {
		return c
	}
	return cmp.Compare(a.Filesize, b.Filesize)
}

// ContentsByHash implements catalog.Store.
func (s *Store) ContentsByHash(_ context.Context, key catalog.HashKey) ([]catalog.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ContentsByHash"); err != nil {
		return nil, err
	}

	var out []catalog.Content
	for _, c := range s.contents {
		if c.Key() == key {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b catalog.Content) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

// RepointAliases implements catalog.Store.
func (s *Store) RepointAliases(_ context.Context, from []int64, to int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("RepointAliases"); err != nil {
		return 0, err
	}
	if _, ok := s.contents[to]; !ok {
		return 0, errForeignKey("blob_alias.content_id", to)
	}

	var n int64
	for id, a := range s.aliases {
		if a.ContentID != nil && slices.Contains(from, *a.ContentID) {
			target := to
			a.ContentID = &target
			s.aliases[id] = a
			n++
		}
	}
	return n, nil
}

// AliasIDBounds implements catalog.Store.
func (s *Store) AliasIDBounds(context.Context) (catalog.IDRange, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("AliasIDBounds"); err != nil {
		return catalog.IDRange{}, false, err
	}
	if len(s.aliases) == 0 {
		return catalog.IDRange{}, false, nil
	}
	ids := sortedKeys(s.aliases)
	return catalog.IDRange{Lo: ids[0], Hi: ids[len(ids)-1] + 1}, true, nil
}

// ExpireAliases implements catalog.Store.
func (s *Store) ExpireAliases(_ context.Context, r catalog.IDRange, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ExpireAliases"); err != nil {
		return 0, err
	}

	var n int64
	for id, a := range s.aliases {
		if r.Contains(id) && a.ContentID != nil && a.ExpiresAt != nil && a.ExpiresAt.Before(cutoff) {
			a.ContentID = nil
			s.aliases[id] = a
			n++
		}
	}
	return n, nil
}

// ForeignKeysTo implements catalog.Store. Only references to blob_alias.id
// are modelled.
func (s *Store) ForeignKeysTo(_ context.Context, table, column string) ([]catalog.Column, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ForeignKeysTo"); err != nil {
		return nil, err
	}
	if table != catalog.AliasTable || column != catalog.IDColumn {
		return nil, nil
	}

	cols := make([]catalog.Column, 0, len(s.refs))
	for c := range s.refs {
		cols = append(cols, c)
	}
	slices.SortFunc(cols, func(a, b catalog.Column) int {
		if c := cmp.Compare(a.Table, b.Table); c != 0 {
			return c
		}
		return cmp.Compare(a.Column, b.Column)
	})
	return cols, nil
}

// ReferencedIDs implements catalog.Store.
func (s *Store) ReferencedIDs(_ context.Context, col catalog.Column, r catalog.IDRange) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ReferencedIDs"); err != nil {
		return nil, err
	}

	var ids []int64
	for id, n := range s.refs[col] {
		if n > 0 && r.Contains(id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func pruneEligible(a catalog.Alias, cutoff time.Time) bool {
	if !a.CreatedAt.Before(cutoff) {
		return false
	}
	return a.ContentID == nil || (a.ExpiresAt != nil && a.ExpiresAt.Before(cutoff))
}

// AliasPruneCandidates implements catalog.Store.
func (s *Store) AliasPruneCandidates(_ context.Context, r catalog.IDRange, cutoff time.Time) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("AliasPruneCandidates"); err != nil {
		return nil, err
	}

	var ids []int64
	for id, a := range s.aliases {
		if r.Contains(id) && pruneEligible(a, cutoff) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// DeleteAliases implements catalog.Store.
func (s *Store) DeleteAliases(_ context.Context, ids []int64, cutoff time.Time, refs, detach []catalog.Column) (int64, error) {
	if hook := s.BeforeDeleteAliases; hook != nil {
		hook(ids)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("DeleteAliases"); err != nil {
		return 0, err
	}

	// Columns that still block the delete: everything but detach.
	blocking := slices.DeleteFunc(s.columnsLocked(), func(c catalog.Column) bool {
		return slices.Contains(detach, c)
	})

	var doomed []int64
	for _, id := range ids {
		a, ok := s.aliases[id]
		if !ok || !pruneEligible(a, cutoff) {
			continue
		}
		if s.referencedLocked(id, refs) {
			continue
		}
		if s.referencedLocked(id, blocking) {
			// a reference through a column the caller did not know about
			return 0, errForeignKey("blob_alias.id", id)
		}
		doomed = append(doomed, id)
	}

	for _, id := range doomed {
		for _, col := range detach {
			delete(s.refs[col], id)
		}
		delete(s.aliases, id)
	}
	return int64(len(doomed)), nil
}

// referencedLocked reports whether aliasID is referenced from one of cols.
func (s *Store) referencedLocked(aliasID int64, cols []catalog.Column) bool {
	for _, col := range cols {
		if s.refs[col][aliasID] > 0 {
			return true
		}
	}
	return false
}

func (s *Store) columnsLocked() []catalog.Column {
	cols := make([]catalog.Column, 0, len(s.refs))
	for col := range s.refs {
		cols = append(cols, col)
	}
	return cols
}

// UnreferencedContentIDs implements catalog.Store.
func (s *Store) UnreferencedContentIDs(_ context.Context, cutoff time.Time) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("UnreferencedContentIDs"); err != nil {
		return nil, err
	}

	used := s.usedContentLocked()
	var ids []int64
	for id, c := range s.contents {
		if !used.Has(id) && c.CreatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *Store) usedContentLocked() catalog.IDSet {
	used := catalog.IDSet{}
	for _, a := range s.aliases {
		if a.ContentID != nil {
			used.Add(*a.ContentID)
		}
	}
	return used
}

// DeleteContents implements catalog.Store.
func (s *Store) DeleteContents(_ context.Context, ids []int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("DeleteContents"); err != nil {
		return nil, err
	}

	used := s.usedContentLocked()
	var deleted []int64
	for _, id := range ids {
		if _, ok := s.contents[id]; !ok || used.Has(id) {
			continue
		}
		delete(s.contents, id)
		deleted = append(deleted, id)
	}
	slices.Sort(deleted)
	return deleted, nil
}

// ContentsAfter implements catalog.Store.
func (s *Store) ContentsAfter(_ context.Context, after, before int64, limit int) ([]catalog.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ContentsAfter"); err != nil {
		return nil, err
	}

	var out []catalog.Content
	for id, c := range s.contents {
		if id > after && id < before {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b catalog.Content) int { return cmp.Compare(a.ID, b.ID) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AcquireRunLock implements catalog.Store.
func (s *Store) AcquireRunLock(_ context.Context, key int64) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("AcquireRunLock"); err != nil {
		return nil, err
	}
	if s.locked[key] {
		return nil, catalog.ErrLocked
	}
	s.locked[key] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.locked, key)
			s.mu.Unlock()
		})
	}, nil
}

// HealthCheck implements catalog.Store.
func (s *Store) HealthCheck(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fault("HealthCheck")
}

// Close implements catalog.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
