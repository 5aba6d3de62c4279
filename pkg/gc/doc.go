// Package gc implements the content-addressable blob garbage collector.
//
// A run reconciles the catalog (blob_content and blob_alias rows) against the
// bytes held by the configured backends. Phases run in a fixed order because
// each depends on the invariants established by the previous one:
//
//	merge          -> repoint aliases of byte-identical duplicates at one survivor
//	expire         -> null content_id on aliases expired past the grace period
//	prune_aliases  -> delete content-less or expired aliases nothing references
//	prune_contents -> delete content rows no alias points at, then their bytes
//	sweep          -> delete orphaned bytes, report rows without bytes
//
// Every destructive step is gated by a grace period computed from the
// catalog clock, and every catalog mutation runs through the adaptive chunk
// loop in pkg/loop so transactions stay short on very large tables.
//
// Usage:
//
//	c := gc.New(catalogStore, blobstore.NewStore(local, remote), cfg)
//	stats, err := c.Run(ctx)
//	if errors.Is(err, gc.ErrIntegrityViolation) {
//		// two rows share a hash but hold different bytes
//	}
package gc
