package pipeline

import "fmt"

// RepairKind names an automatic repair strategy.
type RepairKind string

const (
	// RepairRateWait pauses before retrying the same query after a
	// rate-limited response.
	RepairRateWait RepairKind = "rate_wait"

	// RepairStripLabels removes the wikibase:label SERVICE block, the
	// most common timeout culprit on large result sets.
	RepairStripLabels RepairKind = "strip_label_service"

	// RepairHalveLimit cuts the LIMIT in half, flooring at one row.
	RepairHalveLimit RepairKind = "halve_limit"
)

// Repair is one applied repair.
type Repair struct {
	Kind    RepairKind
	Attempt int
	Detail  string
}

func (r Repair) String() string {
	return fmt.Sprintf("%s (attempt %d): %s", r.Kind, r.Attempt, r.Detail)
}

// repairLog is an append-only record of applied repairs. Append returns
// a new log; existing references are never mutated, so a Result handed
// to a caller cannot change under it.
type repairLog struct {
	entries []Repair
}

func newRepairLog() repairLog {
	return repairLog{}
}

func (l repairLog) Append(r Repair) repairLog {
	entries := make([]Repair, 0, len(l.entries)+1)
	entries = append(entries, l.entries...)
	entries = append(entries, r)
	return repairLog{entries: entries}
}

// Names renders the log for inclusion in a Result.
func (l repairLog) Names() []string {
	out := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.String())
	}
	return out
}
