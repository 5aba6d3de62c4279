// Package catalog defines the metadata catalog the garbage collector
// reconciles against physical storage: content rows (one per unique byte
// sequence) and alias rows (user visible files pointing at content).
package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Table and column names of the catalog schema.
const (
	ContentTable = "blob_content"
	AliasTable   = "blob_alias"
	IDColumn     = "id"
)

var (
	// ErrLocked is returned by AcquireRunLock when another run holds the lock.
	ErrLocked = errors.New("catalog run lock is held by another process")

	// ErrClosed is returned by operations on a closed catalog.
	ErrClosed = errors.New("catalog is closed")
)

// Content is a blob_content row. Rows with equal (SHA1, Filesize) must hold
// identical bytes.
type Content struct {
	ID        int64
	SHA1      string
	Filesize  int64
	CreatedAt time.Time
}

// Key returns the deduplication key of the row.
func (c Content) Key() HashKey {
	return HashKey{SHA1: c.SHA1, Filesize: c.Filesize}
}

// Alias is a blob_alias row. A nil ContentID means the alias expired and
// was detached from its bytes. A nil ExpiresAt never expires.
type Alias struct {
	ID         int64
	ContentID  *int64
	Filename   string
	Mimetype   string
	Restricted bool
	ExpiresAt  *time.Time
	CreatedAt  time.Time
}

// HashKey identifies a group of content rows claiming the same bytes. The
// zero value sorts before every real key.
type HashKey struct {
	SHA1     string
	Filesize int64
}

func (k HashKey) String() string {
	return fmt.Sprintf("%s/%d", k.SHA1, k.Filesize)
}

// IDRange is the half-open primary key window [Lo, Hi).
type IDRange struct {
	Lo int64
	Hi int64
}

// All is the window covering every id.
var All = IDRange{Lo: 0, Hi: math.MaxInt64}

// Empty reports whether the range holds no ids.
func (r IDRange) Empty() bool { return r.Hi <= r.Lo }

// Contains reports whether id falls in the range.
func (r IDRange) Contains(id int64) bool { return id >= r.Lo && id < r.Hi }

func (r IDRange) String() string {
	return fmt.Sprintf("[%d, %d)", r.Lo, r.Hi)
}

// Column is a (table, column) pair.
type Column struct {
	Table  string
	Column string
}

func (c Column) String() string {
	return c.Table + "." + c.Column
}

// IDSet is a set of row ids.
type IDSet map[int64]struct{}

// Add inserts ids into the set.
func (s IDSet) Add(ids ...int64) {
	for _, id := range ids {
		s[id] = struct{}{}
	}
}

// Has reports whether id is in the set.
func (s IDSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// Store is the catalog as seen by the garbage collector. Every mutating
// method runs in its own transaction and re-checks its preconditions inside
// it, so a candidate list computed earlier can never cause an unsafe delete.
//
// Errors that are safe to retry (serialization failures, deadlocks, lock
// timeouts, foreign key races, dropped connections) satisfy
// loop.IsTransient.
type Store interface {
	// Now returns the catalog's clock.
	Now(ctx context.Context) (time.Time, error)

	// DuplicateHashes pages through keys held by more than one content row,
	// in ascending key order, strictly after after.
	DuplicateHashes(ctx context.Context, after HashKey, limit int) ([]HashKey, error)

	// ContentsByHash returns the content rows of a key, newest first.
	ContentsByHash(ctx context.Context, key HashKey) ([]Content, error)

	// RepointAliases moves every alias of the from rows to to in a single
	// transaction and returns the number of aliases moved.
	RepointAliases(ctx context.Context, from []int64, to int64) (int64, error)

	// AliasIDBounds returns the window [min(id), max(id)+1) of the alias
	// table. ok is false when the table is empty.
	AliasIDBounds(ctx context.Context) (r IDRange, ok bool, err error)

	// ExpireAliases nulls content_id on aliases in r that still point at
	// content and expired before cutoff.
	ExpireAliases(ctx context.Context, r IDRange, cutoff time.Time) (int64, error)

	// ForeignKeysTo lists the single column foreign keys in the current
	// schema that reference table.column.
	ForeignKeysTo(ctx context.Context, table, column string) ([]Column, error)

	// ReferencedIDs returns the distinct values of col falling in r.
	ReferencedIDs(ctx context.Context, col Column, r IDRange) ([]int64, error)

	// AliasPruneCandidates returns aliases in r created before cutoff that
	// are content-less or expired before cutoff, ascending.
	AliasPruneCandidates(ctx context.Context, r IDRange, cutoff time.Time) ([]int64, error)

	// DeleteAliases deletes those of ids that still match the prune
	// condition for cutoff and are not referenced from any of refs. Rows of
	// detach pointing at a deleted alias are deleted in the same
	// transaction. Returns the number of aliases deleted.
	DeleteAliases(ctx context.Context, ids []int64, cutoff time.Time, refs, detach []Column) (int64, error)

	// UnreferencedContentIDs returns, ascending, the content rows no alias
	// points at that were created before cutoff.
	UnreferencedContentIDs(ctx context.Context, cutoff time.Time) ([]int64, error)

	// DeleteContents deletes those of ids that no alias points at and
	// returns the ids actually deleted.
	DeleteContents(ctx context.Context, ids []int64) ([]int64, error)

	// ContentsAfter pages content rows with after < id < before, ascending.
	ContentsAfter(ctx context.Context, after, before int64, limit int) ([]Content, error)

	// AcquireRunLock takes the exclusive GC run lock identified by key.
	// Returns ErrLocked if another session holds it.
	AcquireRunLock(ctx context.Context, key int64) (release func(), err error)

	// HealthCheck verifies the catalog is reachable.
	HealthCheck(ctx context.Context) error

	Close() error
}
