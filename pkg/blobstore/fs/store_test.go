package fs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/blobgc/pkg/blobstore"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{Root: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func put(t *testing.T, s *Store, id int64, data string) {
	t.Helper()
	require.NoError(t, s.Write(context.Background(), id, strings.NewReader(data)))
}

func scanAll(t *testing.T, s *Store) ([]blobstore.Object, error) {
	t.Helper()
	var objs []blobstore.Object
	for obj, err := range s.Scan(context.Background(), blobstore.Whole(s.Name())) {
		if err != nil {
			return objs, err
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

func TestNewValidatesRoot(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{Root: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	_, err = New(Config{Root: file})
	assert.Error(t, err)
}

func TestLayoutOnDisk(t *testing.T) {
	s := newTestStore(t)
	put(t, s, 0x1a2b3c4d, "hello")

	_, err := os.Stat(filepath.Join(s.Root(), "1a", "2b", "3c", "4d"))
	require.NoError(t, err)
	assert.Equal(t, "local", s.Name())
}

func TestExistsOpenDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	put(t, s, 42, "payload")

	ok, err := s.Exists(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := s.Open(ctx, 42)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "payload", string(data))

	require.NoError(t, s.Delete(ctx, 42))
	ok, err = s.Exists(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)

	// empty parents are pruned up to the root
	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.ErrorIs(t, s.Delete(ctx, 42), blobstore.ErrNotFound)
	_, err = s.Open(ctx, 42)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestDeleteKeepsNonEmptyParents(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	put(t, s, 0x100, "a")
	put(t, s, 0x101, "b")

	require.NoError(t, s.Delete(ctx, 0x100))
	ok, err := s.Exists(ctx, 0x101)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestScanOrderAndFiltering(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []int64{0x300, 0x2, 0x10000, 0x1ff} {
		put(t, s, id, "x")
	}

	// noise the scan must ignore
	require.NoError(t, os.MkdirAll(filepath.Join(s.Root(), "incoming", "00", "00", "00"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "incoming", "00", "00", "00", "05"), []byte("upload"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(s.Root(), "lost+found"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "lost+found", "junk"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "README"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "00", "00", "03", "00.abc.tmp"), nil, 0644))

	objs, err := scanAll(t, s)
	require.NoError(t, err)

	var ids []int64
	for _, o := range objs {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []int64{0x2, 0x1ff, 0x300, 0x10000}, ids)
	assert.Equal(t, "00/00/00/02", objs[0].Key)
	assert.Equal(t, int64(1), objs[0].Size)
	assert.WithinDuration(t, time.Now(), objs[0].CreatedAt, time.Minute)
}

func TestScanPartitionBounds(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []int64{1, 5, 9} {
		put(t, s, id, "x")
	}

	var ids []int64
	for obj, err := range s.Scan(context.Background(), blobstore.Partition{Name: "p", Lo: 2, Hi: 9}) {
		require.NoError(t, err)
		ids = append(ids, obj.ID)
	}
	assert.Equal(t, []int64{5}, ids)
}

func TestScanListsWideIDsLast(t *testing.T) {
	s := newTestStore(t)
	// 9 and 10 digit ids share directories with 8 digit ones
	for _, id := range []int64{0x100000001, 0x10000001, 0x1000000000, 0x100000000, 0x10000000, 0x5} {
		put(t, s, id, "x")
	}

	objs, err := scanAll(t, s)
	require.NoError(t, err)

	var ids []int64
	for _, o := range objs {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []int64{0x5, 0x10000000, 0x10000001, 0x100000000, 0x100000001, 0x1000000000}, ids)
	assert.Equal(t, "10/00/00/000", objs[3].Key)
	assert.Equal(t, int64(1), objs[3].Size)
}

func TestScanWideIDsRespectPartition(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []int64{0x7, 0x100000000, 0x200000000} {
		put(t, s, id, "x")
	}

	var ids []int64
	for obj, err := range s.Scan(context.Background(), blobstore.Partition{Name: "p", Lo: 0x100000000, Hi: 0x200000000}) {
		require.NoError(t, err)
		ids = append(ids, obj.ID)
	}
	assert.Equal(t, []int64{0x100000000}, ids)
}

// decimalLayout stores ids unpadded, so "10" sorts before "9".
type decimalLayout struct{}

func (decimalLayout) Path(id int64) string { return "d/" + strconv.FormatInt(id, 10) }

func (decimalLayout) Parse(rel string) (int64, bool) {
	name, ok := strings.CutPrefix(rel, "d/")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(name, 10, 64)
	return id, err == nil
}

func TestScanDetectsOutOfOrderLayout(t *testing.T) {
	s, err := New(Config{Root: t.TempDir(), Layout: decimalLayout{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	put(t, s, 10, "big")
	put(t, s, 9, "small")

	objs, err := scanAll(t, s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, blobstore.ErrOutOfOrder))
	require.Len(t, objs, 1)
	assert.Equal(t, int64(10), objs[0].ID)
}

func TestScanAllowsDeleteWhileIterating(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, id := range []int64{1, 2, 3} {
		put(t, s, id, "x")
	}

	seen := 0
	for obj, err := range s.Scan(ctx, blobstore.Whole("local")) {
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, obj.ID))
		seen++
	}
	assert.Equal(t, 3, seen)
}

func TestScanEarlyBreak(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []int64{1, 2, 3} {
		put(t, s, id, "x")
	}
	n := 0
	for range s.Scan(context.Background(), blobstore.Whole("local")) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.Exists(ctx, 1)
	assert.ErrorIs(t, err, blobstore.ErrStoreClosed)
	assert.ErrorIs(t, s.Delete(ctx, 1), blobstore.ErrStoreClosed)
	assert.ErrorIs(t, s.HealthCheck(ctx), blobstore.ErrStoreClosed)
	_, err = scanAll(t, s)
	assert.ErrorIs(t, err, blobstore.ErrStoreClosed)
}

func TestHealthCheck(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.HealthCheck(context.Background()))
}
