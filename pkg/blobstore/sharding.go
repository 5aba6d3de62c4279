package blobstore

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Layout maps a content id to a relative, slash separated path on a
// filesystem backend and back.
type Layout interface {
	Path(id int64) string
	Parse(rel string) (int64, bool)
}

// OrderedLayout is a Layout whose lexical path order follows id order for
// ids below OrderedBelow. Scans list the ids at or above it separately.
type OrderedLayout interface {
	Layout
	OrderedBelow() int64
}

// HexLayout stores id as its zero padded 8 digit hex form split into four
// directory levels: id 0x1a2b3c4d lives at 1a/2b/3c/4d. Ids above 32 bits
// keep the extra digits in the last component, so lexical order stops
// matching numeric order past that point.
type HexLayout struct{}

var _ OrderedLayout = HexLayout{}

// OrderedBelow implements OrderedLayout.
func (HexLayout) OrderedBelow() int64 { return 1 << 32 }

// Path implements Layout.
func (HexLayout) Path(id int64) string {
	h := fmt.Sprintf("%08x", id)
	return h[0:2] + "/" + h[2:4] + "/" + h[4:6] + "/" + h[6:]
}

// Parse implements Layout.
func (HexLayout) Parse(rel string) (int64, bool) {
	parts := strings.Split(rel, "/")
	if len(parts) != 4 {
		return 0, false
	}
	for _, p := range parts[:3] {
		if len(p) != 2 {
			return 0, false
		}
	}
	if len(parts[3]) < 2 {
		return 0, false
	}
	joined := strings.Join(parts, "")
	for _, r := range joined {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(joined, 16, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Sharder derives remote object locations from content ids. Implementations
// must match the naming used by the upload path exactly.
type Sharder interface {
	// Container names the container (top level key prefix) holding id.
	Container(id int64) string

	// Key is the full object key of id.
	Key(id int64) string

	// Range reports the id range covered by a container name. ok is false
	// for names this sharder does not own.
	Range(container string) (lo, hi int64, ok bool)

	// Parse recovers the id from an object key inside container.
	Parse(container, key string) (int64, bool)
}

// RangeSharder partitions ids into containers of Size consecutive ids named
// Prefix followed by the decimal container number. Keys are
// "<container>/<decimal id>".
type RangeSharder struct {
	Prefix string
	Size   int64
}

// NewRangeSharder validates and builds a RangeSharder.
func NewRangeSharder(prefix string, size int64) (RangeSharder, error) {
	if size <= 0 {
		return RangeSharder{}, fmt.Errorf("container size must be positive, got %d", size)
	}
	if strings.Contains(prefix, "/") {
		return RangeSharder{}, fmt.Errorf("container prefix %q must not contain '/'", prefix)
	}
	return RangeSharder{Prefix: prefix, Size: size}, nil
}

// Container implements Sharder.
func (s RangeSharder) Container(id int64) string {
	return s.Prefix + strconv.FormatInt(id/s.Size, 10)
}

// Key implements Sharder.
func (s RangeSharder) Key(id int64) string {
	return s.Container(id) + "/" + strconv.FormatInt(id, 10)
}

// Range implements Sharder.
func (s RangeSharder) Range(container string) (int64, int64, bool) {
	rest, found := strings.CutPrefix(container, s.Prefix)
	if !found || rest == "" {
		return 0, 0, false
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n < 0 || strconv.FormatInt(n, 10) != rest {
		return 0, 0, false
	}
	if n > math.MaxInt64/s.Size-1 {
		return 0, 0, false
	}
	return n * s.Size, (n + 1) * s.Size, true
}

// Parse implements Sharder.
func (s RangeSharder) Parse(container, key string) (int64, bool) {
	name, found := strings.CutPrefix(key, container+"/")
	if !found {
		return 0, false
	}
	id, err := strconv.ParseInt(name, 10, 64)
	if err != nil || id < 0 || strconv.FormatInt(id, 10) != name {
		return 0, false
	}
	if s.Container(id) != container {
		return 0, false
	}
	return id, true
}
