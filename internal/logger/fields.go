package logger

import (
	"log/slog"
	"time"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements for log aggregation and querying.
const (
	// ========================================================================
	// Run & Tracing
	// ========================================================================
	KeyRunID   = "run_id"
	KeyPhase   = "phase"
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// ========================================================================
	// Catalog
	// ========================================================================
	KeyContentID = "content_id" // blob_content.id
	KeyAliasID   = "alias_id"   // blob_alias.id
	KeySHA1      = "sha1"       // content hash (hex)
	KeyFilesize  = "filesize"   // content size in bytes
	KeyPrimary   = "primary"    // surviving content id of a duplicate group
	KeyTable     = "table"
	KeyColumn    = "column"
	KeyRangeLo   = "range_lo"
	KeyRangeHi   = "range_hi"

	// ========================================================================
	// Storage Backends
	// ========================================================================
	KeyBackend   = "backend"   // local, remote
	KeyBucket    = "bucket"    // S3 bucket
	KeyContainer = "container" // remote container (top-level key prefix)
	KeyKey       = "key"       // object key
	KeyPath      = "path"      // local filesystem path
	KeyRegion    = "region"
	KeyAttempt   = "attempt"
	KeyAge       = "age"

	// ========================================================================
	// Chunked Loop
	// ========================================================================
	KeyChunkSize = "chunk_size"
	KeyChunks    = "chunks"

	// ========================================================================
	// Outcome
	// ========================================================================
	KeyCount      = "count"
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyDryRun     = "dry_run"
)

// Err returns a slog.Attr for an error. A nil error yields an empty attr.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ContentID returns a slog.Attr for a content row id
func ContentID(id int64) slog.Attr {
	return slog.Int64(KeyContentID, id)
}

// AliasID returns a slog.Attr for an alias row id
func AliasID(id int64) slog.Attr {
	return slog.Int64(KeyAliasID, id)
}

// Backend returns a slog.Attr naming a storage backend
func Backend(name string) slog.Attr {
	return slog.String(KeyBackend, name)
}

// Count returns a slog.Attr for a number of affected items
func Count(n int) slog.Attr {
	return slog.Int(KeyCount, n)
}

// ChunkSize returns a slog.Attr for the current chunk size
func ChunkSize(n int) slog.Attr {
	return slog.Int(KeyChunkSize, n)
}

// DurationMs returns a slog.Attr for an elapsed duration in milliseconds
func DurationMs(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMs, float64(d.Microseconds())/1000.0)
}
