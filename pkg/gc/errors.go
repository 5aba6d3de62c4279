package gc

import (
	"errors"
	"fmt"

	"github.com/marmos91/blobgc/pkg/catalog"
)

var (
	// ErrIntegrityViolation is returned when two content rows share a
	// (sha1, filesize) key but hold different bytes. It aborts the run and is
	// never resolved automatically.
	ErrIntegrityViolation = errors.New("integrity violation")

	// ErrClockSkew is returned when the local clock and the catalog clock
	// disagree by more than the configured tolerance.
	ErrClockSkew = errors.New("clock skew between host and catalog")

	// ErrBlobsLeft is returned after a run in which some bytes of deleted
	// content rows could not be removed. Every phase still ran; the next
	// sweep reclaims the bytes once they pass the orphan grace period.
	ErrBlobsLeft = errors.New("blobs of deleted contents left behind")
)

// IntegrityError describes a duplicate group whose bytes differ.
type IntegrityError struct {
	Key       catalog.HashKey
	Primary   int64
	Secondary int64
	Offset    int64 // first differing byte
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation: contents %d and %d share key %s but differ at byte %d",
		e.Primary, e.Secondary, e.Key, e.Offset)
}

func (e *IntegrityError) Unwrap() error {
	return ErrIntegrityViolation
}
