// Package blobstore defines the physical byte stores addressed by content id
// and composes them into a single view used by the garbage collector.
package blobstore

import (
	"context"
	"errors"
	"io"
	"iter"
	"math"
	"time"
)

var (
	// ErrNotFound is returned when no object exists for a content id.
	ErrNotFound = errors.New("blob not found")

	// ErrStoreClosed is returned by operations on a closed backend.
	ErrStoreClosed = errors.New("blob store is closed")

	// ErrOutOfOrder is yielded by Scan when a listing is not in ascending id
	// order; the merge join against the catalog cannot proceed past it.
	ErrOutOfOrder = errors.New("listing out of order")
)

// Object is one physical blob found while scanning a backend.
type Object struct {
	// ID is the content id parsed from the object's location.
	ID int64

	// Key is the backend specific location (relative path or object key).
	Key string

	// Size in bytes.
	Size int64

	// CreatedAt is the best available creation timestamp for the object.
	CreatedAt time.Time
}

// Partition is an independently scannable slice of a backend covering the
// content ids in [Lo, Hi).
type Partition struct {
	Name string
	Lo   int64
	Hi   int64
}

// Contains reports whether id falls in the partition.
func (p Partition) Contains(id int64) bool {
	return id >= p.Lo && id < p.Hi
}

// Whole is the partition covering every id.
func Whole(name string) Partition {
	return Partition{Name: name, Lo: 0, Hi: math.MaxInt64}
}

// Backend is one physical store of blobs keyed by content id.
//
// Implementations must make Delete idempotent: deleting an absent id returns
// ErrNotFound and has no other effect.
type Backend interface {
	// Name identifies the backend in logs and metrics ("local", "remote").
	Name() string

	Exists(ctx context.Context, id int64) (bool, error)

	// Open streams the bytes of id. Returns ErrNotFound if absent.
	Open(ctx context.Context, id int64) (io.ReadCloser, error)

	// Delete removes id. Returns ErrNotFound if it was already absent.
	Delete(ctx context.Context, id int64) error

	// Partitions lists the scannable partitions in ascending id order.
	Partitions(ctx context.Context) ([]Partition, error)

	// Scan yields the objects of a partition in ascending id order. Objects
	// that do not look like blobs are skipped. A non-nil error ends the scan.
	Scan(ctx context.Context, p Partition) iter.Seq2[Object, error]

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	Close() error
}
