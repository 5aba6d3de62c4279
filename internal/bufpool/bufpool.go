// Package bufpool recycles the fixed size read buffers used when comparing
// blob streams byte for byte.
//
// A merge may compare thousands of duplicate groups, each reading two
// streams through buffers of the configured compare size (up to 64MiB).
// Pooling them keeps the heap flat across groups.
//
// # Usage
//
//	pool := bufpool.For(size)
//	buf := pool.Get()
//	defer pool.Put(buf)
package bufpool

import (
	"sync"
)

// Pool hands out byte slices of exactly one size.
type Pool struct {
	size int
	pool sync.Pool
}

// New creates a pool of buffers of size bytes. Sizes below 1 are raised
// to 1.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{size: size}
	p.pool.New = func() any {
		buf := make([]byte, p.size)
		return &buf
	}
	return p
}

// Size returns the length of the buffers handed out by p.
func (p *Pool) Size() int {
	return p.size
}

// Get returns a buffer of exactly Size bytes. Its contents are undefined.
//
// The caller should call Put when finished with the buffer.
func (p *Pool) Get() []byte {
	buf := *p.pool.Get().(*[]byte)
	return buf[:p.size]
}

// Put returns buf to the pool. Buffers that did not come from this pool
// (different capacity) are dropped and left to the garbage collector.
func (p *Pool) Put(buf []byte) {
	if cap(buf) != p.size {
		return
	}
	full := buf[:p.size]
	p.pool.Put(&full)
}

// =============================================================================
// Shared Pools
// =============================================================================

var shared sync.Map // int -> *Pool

// For returns the process wide pool for size, creating it on first use.
// Collectors configured with the same compare size share buffers.
func For(size int) *Pool {
	if p, ok := shared.Load(size); ok {
		return p.(*Pool)
	}
	p, _ := shared.LoadOrStore(size, New(size))
	return p.(*Pool)
}
