package gc

import "time"

// Stats summarises a run. Counters only include work that was committed.
type Stats struct {
	RunID      string        `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
	ClockSkew  time.Duration `json:"clock_skew" yaml:"clock_skew"`
	DryRun     bool          `json:"dry_run" yaml:"dry_run"`
	References int           `json:"referencing_columns" yaml:"referencing_columns"`

	Merge         MergeStats        `json:"merge" yaml:"merge"`
	Expire        ExpireStats       `json:"expire" yaml:"expire"`
	PruneAliases  PruneAliasStats   `json:"prune_aliases" yaml:"prune_aliases"`
	PruneContents PruneContentStats `json:"prune_contents" yaml:"prune_contents"`
	Sweep         SweepStats        `json:"sweep" yaml:"sweep"`
	Phases        []PhaseResult     `json:"phases" yaml:"phases"`
}

// MergeStats counts duplicate merging.
type MergeStats struct {
	Groups           int   `json:"groups" yaml:"groups"`
	GroupsSkipped    int   `json:"groups_skipped" yaml:"groups_skipped"` // primary bytes not synced yet
	Compared         int   `json:"compared" yaml:"compared"`
	AliasesRepointed int64 `json:"aliases_repointed" yaml:"aliases_repointed"`
}

// ExpireStats counts alias expiry.
type ExpireStats struct {
	AliasesExpired int64 `json:"aliases_expired" yaml:"aliases_expired"`
}

// PruneAliasStats counts alias pruning.
type PruneAliasStats struct {
	Candidates     int   `json:"candidates" yaml:"candidates"`
	Referenced     int   `json:"referenced" yaml:"referenced"`
	AliasesDeleted int64 `json:"aliases_deleted" yaml:"aliases_deleted"`
}

// PruneContentStats counts content pruning.
type PruneContentStats struct {
	Candidates      int `json:"candidates" yaml:"candidates"`
	ContentsDeleted int `json:"contents_deleted" yaml:"contents_deleted"`
	BlobsDeleted    int `json:"blobs_deleted" yaml:"blobs_deleted"`
	BlobErrors      int `json:"blob_errors" yaml:"blob_errors"`
}

// SweepStats counts the orphan sweep.
type SweepStats struct {
	Partitions      int `json:"partitions" yaml:"partitions"`
	Scanned         int `json:"scanned" yaml:"scanned"`
	OrphansFound    int `json:"orphans_found" yaml:"orphans_found"` // old enough to delete
	OrphansDeleted  int `json:"orphans_deleted" yaml:"orphans_deleted"`
	OrphansTooYoung int `json:"orphans_too_young" yaml:"orphans_too_young"`
	MissingBytes    int `json:"missing_bytes" yaml:"missing_bytes"`
	Errors          int `json:"errors" yaml:"errors"`     // per object failures, logged
	Failures        int `json:"failures" yaml:"failures"` // partitions abandoned
}

// PhaseResult records how one phase ended.
type PhaseResult struct {
	Phase    Phase         `json:"phase" yaml:"phase"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Chunks   int           `json:"chunks" yaml:"chunks"`
	Retries  int           `json:"retries" yaml:"retries"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Mutations reports the number of catalog rows and objects a run changed.
func (s *Stats) Mutations() int64 {
	return s.Merge.AliasesRepointed +
		s.Expire.AliasesExpired +
		s.PruneAliases.AliasesDeleted +
		int64(s.PruneContents.ContentsDeleted) +
		int64(s.PruneContents.BlobsDeleted) +
		int64(s.Sweep.OrphansDeleted)
}
