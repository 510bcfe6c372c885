// Package scheduler maintains the per-core free/busy map derived from the
// LRMS discovery result and mints/releases opaque slot handles on request
// (spec.md §4.2). Two variants are implemented: continuous (flat
// per-node core arrays) and torus (5-D BG/Q sub-block allocator).
package scheduler

// CoreState is the occupancy of one core.
type CoreState int

const (
	CoreFree CoreState = iota
	CoreBusy
)

// Scheduler is the common operation set shared by both variants. Slot is
// opaque outside the scheduler that minted it and the launch method that
// interprets it (spec.md §3, "Slot (opaque)").
type Scheduler interface {
	// Allocate reserves coresRequested cores, grouped into processes of
	// coresPerProcess each, and returns the minted slot. ok is false when
	// no such allocation currently fits (spec.md §4.2: "If no such run
	// exists, return NONE").
	Allocate(coresRequested, coresPerProcess int) (slot any, ok bool)

	// Release returns the cores held by slot to the free pool. slot must
	// be a value previously returned by Allocate on this Scheduler.
	Release(slot any)

	// FreeCores returns the current count of FREE cores, for diagnostics
	// and invariant testing.
	FreeCores() int

	// TotalCores returns the fixed total core count of the allocation.
	TotalCores() int
}

// historyWriter is implemented by schedulers that keep a bounded
// slot-history snapshot log for the updater to persist (spec.md §4.2,
// §6 "the slot-history field is capped at 4 MiB").
type historyWriter interface {
	History() []HistoryEntry
}

// HistoryEntry is one compact snapshot appended on every allocate and
// every release.
type HistoryEntry struct {
	Action string // "allocate" | "release"
	Slot   any
}

// History returns the bounded history of a scheduler that tracks one, or
// nil for a scheduler that does not.
func History(s Scheduler) []HistoryEntry {
	if hw, ok := s.(historyWriter); ok {
		return hw.History()
	}
	return nil
}
