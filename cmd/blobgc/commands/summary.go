package commands

import (
	"strconv"
	"time"

	"github.com/marmos91/blobgc/pkg/gc"
)

// summaryPairs flattens the counters of a run into key/value rows.
func summaryPairs(s *gc.Stats) [][2]string {
	itoa := strconv.Itoa
	i64 := func(n int64) string { return strconv.FormatInt(n, 10) }

	return [][2]string{
		{"Run ID", s.RunID},
		{"Started", s.StartedAt.UTC().Format(time.RFC3339)},
		{"Duration", s.Duration.Round(time.Millisecond).String()},
		{"Dry run", strconv.FormatBool(s.DryRun)},
		{"Clock skew", s.ClockSkew.Round(time.Millisecond).String()},
		{"Referencing columns", itoa(s.References)},
		{"Duplicate groups", itoa(s.Merge.Groups)},
		{"Groups not synced", itoa(s.Merge.GroupsSkipped)},
		{"Aliases repointed", i64(s.Merge.AliasesRepointed)},
		{"Aliases expired", i64(s.Expire.AliasesExpired)},
		{"Aliases deleted", i64(s.PruneAliases.AliasesDeleted)},
		{"Contents deleted", itoa(s.PruneContents.ContentsDeleted)},
		{"Blobs deleted", itoa(s.PruneContents.BlobsDeleted)},
		{"Blob delete errors", itoa(s.PruneContents.BlobErrors)},
		{"Objects scanned", itoa(s.Sweep.Scanned)},
		{"Orphans found", itoa(s.Sweep.OrphansFound)},
		{"Orphans deleted", itoa(s.Sweep.OrphansDeleted)},
		{"Orphans too young", itoa(s.Sweep.OrphansTooYoung)},
		{"Missing bytes", itoa(s.Sweep.MissingBytes)},
		{"Sweep errors", itoa(s.Sweep.Errors)},
		{"Partitions failed", itoa(s.Sweep.Failures)},
	}
}

// phaseTable renders per-phase results.
type phaseTable []gc.PhaseResult

func (p phaseTable) Headers() []string {
	return []string{"PHASE", "DURATION", "CHUNKS", "RETRIES", "RESULT"}
}

func (p phaseTable) Rows() [][]string {
	rows := make([][]string, 0, len(p))
	for _, r := range p {
		result := "ok"
		if r.Error != "" {
			result = r.Error
		}
		rows = append(rows, []string{
			string(r.Phase),
			r.Duration.Round(time.Millisecond).String(),
			strconv.Itoa(r.Chunks),
			strconv.Itoa(r.Retries),
			result,
		})
	}
	return rows
}
