package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for GC spans.
const (
	AttrRunID     = "gc.run_id"
	AttrPhase     = "gc.phase"
	AttrDryRun    = "gc.dry_run"
	AttrChunkSize = "gc.chunk_size"
	AttrAffected  = "gc.affected"
	AttrBackend   = "storage.backend"
	AttrContainer = "storage.container"
	AttrContentID = "catalog.content_id"
)

// RunID returns an attribute for the GC run id
func RunID(id string) attribute.KeyValue {
	return attribute.String(AttrRunID, id)
}

// Phase returns an attribute for a GC phase name
func Phase(name string) attribute.KeyValue {
	return attribute.String(AttrPhase, name)
}

// DryRun returns an attribute flagging a dry run
func DryRun(on bool) attribute.KeyValue {
	return attribute.Bool(AttrDryRun, on)
}

// ChunkSize returns an attribute for a chunk size
func ChunkSize(n int) attribute.KeyValue {
	return attribute.Int(AttrChunkSize, n)
}

// Affected returns an attribute for the number of rows or objects touched
func Affected(n int64) attribute.KeyValue {
	return attribute.Int64(AttrAffected, n)
}

// Backend returns an attribute naming a storage backend
func Backend(name string) attribute.KeyValue {
	return attribute.String(AttrBackend, name)
}

// Container returns an attribute naming a remote container
func Container(name string) attribute.KeyValue {
	return attribute.String(AttrContainer, name)
}

// ContentID returns an attribute for a content row id
func ContentID(id int64) attribute.KeyValue {
	return attribute.Int64(AttrContentID, id)
}

// StartRunSpan starts the root span of a GC run.
func StartRunSpan(ctx context.Context, runID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "gc.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(append([]attribute.KeyValue{RunID(runID)}, attrs...)...),
	)
}

// StartPhaseSpan starts a span for one GC phase.
func StartPhaseSpan(ctx context.Context, phase string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "gc."+phase,
		trace.WithAttributes(append([]attribute.KeyValue{Phase(phase)}, attrs...)...),
	)
}
