package gc

import (
	"bytes"
	"errors"
	"io"

	"github.com/marmos91/blobgc/internal/bufpool"
)

// compareStreams reads a and b in lock step using two buffers from pool and
// reports whether they hold the same bytes. When they differ, offset is the
// first differing byte (or the length of the shorter stream).
func compareStreams(a, b io.Reader, pool *bufpool.Pool) (equal bool, offset int64, err error) {
	bufA := pool.Get()
	defer pool.Put(bufA)
	bufB := pool.Get()
	defer pool.Put(bufB)

	for {
		na, errA := io.ReadFull(a, bufA)
		if errA != nil && !isEOF(errA) {
			return false, offset, errA
		}
		nb, errB := io.ReadFull(b, bufB)
		if errB != nil && !isEOF(errB) {
			return false, offset, errB
		}

		n := min(na, nb)
		if !bytes.Equal(bufA[:n], bufB[:n]) {
			return false, offset + int64(firstDiff(bufA[:n], bufB[:n])), nil
		}
		if na != nb {
			return false, offset + int64(n), nil
		}
		offset += int64(n)

		// a short read on both sides of the same length means both ended
		if errA != nil || errB != nil {
			return true, offset, nil
		}
	}
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

func firstDiff(a, b []byte) int {
	for i := range a {
		if a[i] != b[i] {
			return i
		}
	}
	return len(a)
}
