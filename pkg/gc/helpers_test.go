package gc

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/blobgc/pkg/blobstore"
	blobmem "github.com/marmos91/blobgc/pkg/blobstore/memory"
	"github.com/marmos91/blobgc/pkg/catalog"
	catmem "github.com/marmos91/blobgc/pkg/catalog/memory"
	"github.com/marmos91/blobgc/pkg/loop"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time {
	return t0.Add(-time.Duration(n) * 24 * time.Hour)
}

func ptr[T any](v T) *T { return &v }

func sha1Hex(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// testEnv is a catalog with a local and a remote backend, all in memory,
// frozen at t0.
type testEnv struct {
	t      *testing.T
	cat    *catmem.Store
	local  *blobmem.Store
	remote *blobmem.Store
	blobs  *blobstore.Store
	cfg    Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cat := catmem.New()
	cat.SetNow(t0)
	local := blobmem.New("local")
	remote := blobmem.New("remote")

	cfg := DefaultConfig()
	cfg.Loop = loop.Policy{MinSize: 1, MaxSize: 3, InitialSize: 2, MaxRetries: 2}
	return &testEnv{
		t:      t,
		cat:    cat,
		local:  local,
		remote: remote,
		blobs:  blobstore.NewStore(local, remote),
		cfg:    cfg,
	}
}

func (e *testEnv) collector(opts ...Option) *Collector {
	frozen := func() time.Time { return t0 }
	noSleep := func(context.Context, time.Duration) error { return nil }
	base := []Option{
		WithClock(frozen),
		WithLoopOptions(loop.WithClock(frozen, noSleep)),
	}
	return New(e.cat, e.blobs, e.cfg, append(base, opts...)...)
}

func (e *testEnv) run(opts ...Option) *Stats {
	e.t.Helper()
	stats, err := e.collector(opts...).Run(context.Background())
	if err != nil {
		e.t.Fatalf("Run() error = %v", err)
	}
	return stats
}

// content adds a content row for data and stores its bytes locally.
func (e *testEnv) content(data []byte, created time.Time) int64 {
	id := e.cat.AddContent(sha1Hex(data), int64(len(data)), created)
	e.local.PutAt(id, data, created)
	return id
}

// rowOnly adds a content row under an explicit key without any bytes.
func (e *testEnv) rowOnly(sha string, size int64, created time.Time) int64 {
	return e.cat.AddContent(sha, size, created)
}

func (e *testEnv) alias(contentID int64, created time.Time) int64 {
	return e.cat.AddAlias(catalog.Alias{
		ContentID: ptr(contentID),
		Filename:  "file.bin",
		Mimetype:  "application/octet-stream",
		CreatedAt: created,
	})
}

func (e *testEnv) expiringAlias(contentID int64, created, expires time.Time) int64 {
	return e.cat.AddAlias(catalog.Alias{
		ContentID: ptr(contentID),
		Filename:  "file.bin",
		ExpiresAt: ptr(expires),
		CreatedAt: created,
	})
}

func (e *testEnv) aliasContent(id int64) *int64 {
	e.t.Helper()
	a, ok := e.cat.Alias(id)
	if !ok {
		e.t.Fatalf("alias %d missing", id)
	}
	return a.ContentID
}

func (e *testEnv) hasContent(id int64) bool {
	_, ok := e.cat.Content(id)
	return ok
}

func (e *testEnv) hasAlias(id int64) bool {
	_, ok := e.cat.Alias(id)
	return ok
}

// recordingMetrics captures metric calls.
type recordingMetrics struct {
	mu       sync.Mutex
	phases   map[string]error
	affected map[string]int
	chunks   int
	retries  int
	warnings map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		phases:   map[string]error{},
		affected: map[string]int{},
		warnings: map[string]int{},
	}
}

func (m *recordingMetrics) ObservePhase(phase string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phases[phase] = err
}

func (m *recordingMetrics) RecordAffected(phase, kind string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.affected[phase+"/"+kind] += n
}

func (m *recordingMetrics) ObserveChunk(string, int, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks++
}

func (m *recordingMetrics) RecordRetry(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries++
}

func (m *recordingMetrics) RecordIntegrityWarning(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnings[kind]++
}
