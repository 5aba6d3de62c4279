// Package memory provides an in-memory blob backend for testing.
package memory

import (
	"bytes"
	"cmp"
	"context"
	"io"
	"iter"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/marmos91/blobgc/pkg/blobstore"
)

type object struct {
	data    []byte
	created time.Time
}

// Store is an in-memory implementation of blobstore.Backend.
type Store struct {
	mu         sync.RWMutex
	name       string
	objects    map[int64]object
	partitions []blobstore.Partition
	now        func() time.Time
	closed     bool

	// FailExists, when set, is returned by Exists. Used to simulate an
	// unreachable backend.
	FailExists error
}

var _ blobstore.Backend = (*Store)(nil)

// New creates an empty in-memory backend with a single partition.
func New(name string) *Store {
	return &Store{
		name:       name,
		objects:    make(map[int64]object),
		partitions: []blobstore.Partition{blobstore.Whole(name)},
		now:        time.Now,
	}
}

// SetPartitions replaces the partition list, e.g. to mimic remote containers.
func (s *Store) SetPartitions(p ...blobstore.Partition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partitions = p
}

// Put stores a copy of data for id, created now.
func (s *Store) Put(id int64, data []byte) {
	s.PutAt(id, data, s.now())
}

// PutAt stores a copy of data for id with an explicit creation time.
func (s *Store) PutAt(id int64, data []byte, created time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[id] = object{data: bytes.Clone(data), created: created}
}

// Has reports whether id is stored, bypassing error injection.
func (s *Store) Has(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[id]
	return ok
}

// IDs returns the stored ids in ascending order.
func (s *Store) IDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.objects))
	for id := range s.objects {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Name implements blobstore.Backend.
func (s *Store) Name() string { return s.name }

// Exists implements blobstore.Backend.
func (s *Store) Exists(_ context.Context, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, blobstore.ErrStoreClosed
	}
	if s.FailExists != nil {
		return false, s.FailExists
	}
	_, ok := s.objects[id]
	return ok, nil
}

// Open implements blobstore.Backend.
func (s *Store) Open(_ context.Context, id int64) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, blobstore.ErrStoreClosed
	}
	obj, ok := s.objects[id]
	if !ok {
		return nil, blobstore.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(obj.data))), nil
}

// Delete implements blobstore.Backend.
func (s *Store) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return blobstore.ErrStoreClosed
	}
	if _, ok := s.objects[id]; !ok {
		return blobstore.ErrNotFound
	}
	delete(s.objects, id)
	return nil
}

// Partitions implements blobstore.Backend.
func (s *Store) Partitions(context.Context) ([]blobstore.Partition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, blobstore.ErrStoreClosed
	}
	return slices.Clone(s.partitions), nil
}

// Scan implements blobstore.Backend over a snapshot of the partition.
func (s *Store) Scan(_ context.Context, p blobstore.Partition) iter.Seq2[blobstore.Object, error] {
	return func(yield func(blobstore.Object, error) bool) {
		s.mu.RLock()
		if s.closed {
			s.mu.RUnlock()
			yield(blobstore.Object{}, blobstore.ErrStoreClosed)
			return
		}
		var snapshot []blobstore.Object
		for id, obj := range s.objects {
			if p.Contains(id) {
				snapshot = append(snapshot, blobstore.Object{
					ID:        id,
					Key:       p.Name + "/" + strconv.FormatInt(id, 10),
					Size:      int64(len(obj.data)),
					CreatedAt: obj.created,
				})
			}
		}
		s.mu.RUnlock()

		slices.SortFunc(snapshot, func(a, b blobstore.Object) int { return cmp.Compare(a.ID, b.ID) })
		for _, obj := range snapshot {
			if !yield(obj, nil) {
				return
			}
		}
	}
}

// HealthCheck implements blobstore.Backend.
func (s *Store) HealthCheck(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return blobstore.ErrStoreClosed
	}
	return nil
}

// Close implements blobstore.Backend.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
