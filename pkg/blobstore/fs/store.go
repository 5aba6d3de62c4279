// Package fs provides the local filesystem blob backend. Blobs live under a
// root directory at a path derived from their content id.
package fs

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"iter"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/marmos91/blobgc/internal/logger"
	"github.com/marmos91/blobgc/pkg/blobstore"
)

// Config holds configuration for the filesystem backend.
type Config struct {
	// Root is the directory holding the blob tree.
	Root string

	// IgnoreDirs are top level directories under Root that never hold
	// committed blobs (upload staging, lost+found).
	IgnoreDirs []string

	// Layout maps ids to relative paths. Defaults to blobstore.HexLayout.
	Layout blobstore.Layout

	// Name overrides the backend name. Defaults to "local".
	Name string
}

// DefaultIgnoreDirs are skipped when no IgnoreDirs are configured.
var DefaultIgnoreDirs = []string{"incoming", "lost+found"}

// Store is the filesystem implementation of blobstore.Backend.
type Store struct {
	mu     sync.RWMutex
	root   string
	ignore map[string]struct{}
	layout blobstore.Layout
	name   string
	closed bool
}

var _ blobstore.Backend = (*Store)(nil)

// New creates a filesystem backend rooted at cfg.Root, which must exist.
func New(cfg Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, errors.New("root path is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", cfg.Root, err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %q is not a directory", root)
	}

	ignoreDirs := cfg.IgnoreDirs
	if ignoreDirs == nil {
		ignoreDirs = DefaultIgnoreDirs
	}
	ignore := make(map[string]struct{}, len(ignoreDirs))
	for _, d := range ignoreDirs {
		ignore[d] = struct{}{}
	}

	layout := cfg.Layout
	if layout == nil {
		layout = blobstore.HexLayout{}
	}
	name := cfg.Name
	if name == "" {
		name = "local"
	}

	return &Store{root: root, ignore: ignore, layout: layout, name: name}, nil
}

// Name implements blobstore.Backend.
func (s *Store) Name() string { return s.name }

// Root returns the absolute root directory.
func (s *Store) Root() string { return s.root }

// Path returns the absolute filesystem path of id.
func (s *Store) Path(id int64) string {
	return filepath.Join(s.root, filepath.FromSlash(s.layout.Path(id)))
}

func (s *Store) checkOpen() error {
	if s.closed {
		return blobstore.ErrStoreClosed
	}
	return nil
}

// Exists implements blobstore.Backend.
func (s *Store) Exists(_ context.Context, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return false, err
	}

	info, err := os.Stat(s.Path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// Open implements blobstore.Backend.
func (s *Store) Open(_ context.Context, id int64) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.Path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, blobstore.ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// Write stores data for id atomically (temporary file, then rename). The GC
// never writes; this mirrors the upload path for tooling and tests.
func (s *Store) Write(_ context.Context, id int64, r io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	path := s.Path(id)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

// Delete implements blobstore.Backend. Empty parent directories are pruned.
func (s *Store) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	path := s.Path(id)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return blobstore.ErrNotFound
		}
		return err
	}
	s.cleanEmptyDirs(filepath.Dir(path))
	return nil
}

// cleanEmptyDirs removes empty directories up to the root.
func (s *Store) cleanEmptyDirs(dir string) {
	for dir != s.root && strings.HasPrefix(dir, s.root+string(filepath.Separator)) {
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}
}

// Partitions implements blobstore.Backend. The local tree is one partition.
func (s *Store) Partitions(context.Context) ([]blobstore.Partition, error) {
	return []blobstore.Partition{blobstore.Whole(s.name)}, nil
}

// Scan implements blobstore.Backend. The tree is walked in lexical order,
// which matches id order for the default layout; a regression yields
// blobstore.ErrOutOfOrder and ends the scan.
//
// For a blobstore.OrderedLayout, ids at or above OrderedBelow are collected
// during the walk and listed last, sorted. They are all larger than any id
// the walk yields in place.
func (s *Store) Scan(ctx context.Context, p blobstore.Partition) iter.Seq2[blobstore.Object, error] {
	return func(yield func(blobstore.Object, error) bool) {
		// the lock is not held across yields: callers delete while scanning
		s.mu.RLock()
		err := s.checkOpen()
		s.mu.RUnlock()
		if err != nil {
			yield(blobstore.Object{}, err)
			return
		}

		wideFrom := int64(math.MaxInt64)
		if ol, ok := s.layout.(blobstore.OrderedLayout); ok {
			wideFrom = ol.OrderedBelow()
		}
		var wide []wideEntry

		last := int64(-1)
		stopped := false
		walkErr := filepath.WalkDir(s.root, func(path string, d iofs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			rel, err := filepath.Rel(s.root, path)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				if path == s.root {
					return nil
				}
				if _, skip := s.ignore[rel]; skip {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || strings.HasSuffix(rel, ".tmp") {
				return nil
			}

			id, ok := s.layout.Parse(rel)
			if !ok {
				logger.DebugCtx(ctx, "skipping non-blob file", logger.Backend(s.name), logger.KeyPath, rel)
				return nil
			}
			if !p.Contains(id) {
				return nil
			}
			if id >= wideFrom {
				if len(wide) == 0 {
					logger.WarnCtx(ctx, "ids exceed the ordered range of the layout, listing them after the walk",
						logger.Backend(s.name), logger.ContentID(id), "ordered_below", wideFrom)
				}
				wide = append(wide, wideEntry{id: id, rel: rel, path: path})
				return nil
			}
			if id <= last {
				stopped = true
				yield(blobstore.Object{}, fmt.Errorf("%w: %s (id %d) after id %d", blobstore.ErrOutOfOrder, rel, id, last))
				return filepath.SkipAll
			}
			last = id

			info, err := d.Info()
			if err != nil {
				if os.IsNotExist(err) {
					// removed concurrently
					return nil
				}
				return err
			}

			obj := blobstore.Object{
				ID:        id,
				Key:       rel,
				Size:      info.Size(),
				CreatedAt: createdAt(path, info),
			}
			if !yield(obj, nil) {
				stopped = true
				return filepath.SkipAll
			}
			return nil
		})
		if stopped {
			return
		}
		if walkErr != nil {
			yield(blobstore.Object{}, walkErr)
			return
		}

		slices.SortFunc(wide, func(a, b wideEntry) int { return cmp.Compare(a.id, b.id) })
		for _, e := range wide {
			if err := ctx.Err(); err != nil {
				yield(blobstore.Object{}, err)
				return
			}
			info, err := os.Lstat(e.path)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				yield(blobstore.Object{}, err)
				return
			}
			obj := blobstore.Object{
				ID:        e.id,
				Key:       e.rel,
				Size:      info.Size(),
				CreatedAt: createdAt(e.path, info),
			}
			if !yield(obj, nil) {
				return
			}
		}
	}
}

// wideEntry is a file whose id is past the ordered range of the layout.
type wideEntry struct {
	id   int64
	rel  string
	path string
}

// HealthCheck implements blobstore.Backend.
func (s *Store) HealthCheck(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	f, err := os.Open(s.root)
	if err != nil {
		return fmt.Errorf("open root: %w", err)
	}
	defer f.Close()
	if _, err := f.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read root: %w", err)
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
