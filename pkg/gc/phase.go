package gc

import (
	"fmt"
	"slices"
	"strings"
)

// Phase names one step of a run.
type Phase string

const (
	PhaseMerge         Phase = "merge"
	PhaseExpire        Phase = "expire"
	PhasePruneAliases  Phase = "prune_aliases"
	PhasePruneContents Phase = "prune_contents"
	PhaseSweep         Phase = "sweep"
)

// AllPhases lists every phase in execution order.
var AllPhases = []Phase{PhaseMerge, PhaseExpire, PhasePruneAliases, PhasePruneContents, PhaseSweep}

// ParsePhases parses phase names and returns them in execution order
// regardless of the order given. An empty input selects every phase.
func ParsePhases(names []string) ([]Phase, error) {
	if len(names) == 0 {
		return slices.Clone(AllPhases), nil
	}

	want := make(map[Phase]bool, len(names))
	for _, n := range names {
		p := Phase(strings.ToLower(strings.TrimSpace(n)))
		if !slices.Contains(AllPhases, p) {
			return nil, fmt.Errorf("unknown phase %q (valid: %s)", n, phaseList())
		}
		want[p] = true
	}

	out := make([]Phase, 0, len(want))
	for _, p := range AllPhases {
		if want[p] {
			out = append(out, p)
		}
	}
	return out, nil
}

func phaseList() string {
	s := make([]string, len(AllPhases))
	for i, p := range AllPhases {
		s[i] = string(p)
	}
	return strings.Join(s, ", ")
}
