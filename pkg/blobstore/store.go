package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/marmos91/blobgc/internal/logger"
)

// Store composes the enabled backends. The first backend is the primary
// copy (the local filesystem in production); the others hold replicas.
type Store struct {
	backends []Backend
}

// NewStore composes backends in priority order. Nil backends are skipped so
// callers can pass an optional remote backend unconditionally.
func NewStore(backends ...Backend) *Store {
	s := &Store{}
	for _, b := range backends {
		if b != nil {
			s.backends = append(s.backends, b)
		}
	}
	return s
}

// Backends returns the composed backends in priority order.
func (s *Store) Backends() []Backend {
	return s.backends
}

// ExistsAnywhere reports whether id is present on at least one backend.
func (s *Store) ExistsAnywhere(ctx context.Context, id int64) (bool, error) {
	return s.existsExcept(ctx, id, "")
}

// ExistsElsewhere reports whether id is present on a backend other than skip.
func (s *Store) ExistsElsewhere(ctx context.Context, id int64, skip string) (bool, error) {
	return s.existsExcept(ctx, id, skip)
}

func (s *Store) existsExcept(ctx context.Context, id int64, skip string) (bool, error) {
	for _, b := range s.backends {
		if b.Name() == skip {
			continue
		}
		ok, err := b.Exists(ctx, id)
		if err != nil {
			return false, fmt.Errorf("%s: exists %d: %w", b.Name(), id, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// OpenAny opens id from the first backend holding it and reports which one.
func (s *Store) OpenAny(ctx context.Context, id int64) (io.ReadCloser, string, error) {
	for _, b := range s.backends {
		rc, err := b.Open(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("%s: open %d: %w", b.Name(), id, err)
		}
		return rc, b.Name(), nil
	}
	return nil, "", ErrNotFound
}

// DeleteEverywhere removes id from every backend. Absence on a backend is
// success. Returns how many backends actually held the blob.
func (s *Store) DeleteEverywhere(ctx context.Context, id int64) (int, error) {
	deleted := 0
	var errs []error
	for _, b := range s.backends {
		err := b.Delete(ctx, id)
		switch {
		case err == nil:
			deleted++
		case errors.Is(err, ErrNotFound):
			logger.DebugCtx(ctx, "blob already absent", logger.Backend(b.Name()), logger.ContentID(id))
		default:
			errs = append(errs, fmt.Errorf("%s: delete %d: %w", b.Name(), id, err))
		}
	}
	return deleted, errors.Join(errs...)
}

// HealthCheck checks every backend.
func (s *Store) HealthCheck(ctx context.Context) error {
	var errs []error
	for _, b := range s.backends {
		if err := b.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every backend.
func (s *Store) Close() error {
	var errs []error
	for _, b := range s.backends {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
		}
	}
	return errors.Join(errs...)
}
