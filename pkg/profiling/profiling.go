// Package profiling provides the pilot's event-counter sink: a thin
// wrapper over an io.Writer-backed slog.Logger plus a counter map,
// constructed once in main rather than accessed as a package-level global
// (spec.md §9 design note, replacing the original agent's global
// profiling calls and TIME_ZERO). Only main records through it; the
// supervisor and pipeline stages are not given a Sink and record no
// profiling events.
package profiling

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

// Event names the profiling points a Sink can record, mirroring the
// original agent's profiler tags (spec.md §4.5-§4.9).
type Event string

const (
	EventCUNew             Event = "cu_new"
	EventCUAllocating      Event = "cu_allocating"
	EventCUStagingInput    Event = "cu_staging_input"
	EventCUExecuting       Event = "cu_executing"
	EventCUStagingOutput   Event = "cu_staging_output"
	EventCUDone            Event = "cu_done"
	EventCUFailed          Event = "cu_failed"
	EventCUCanceled        Event = "cu_canceled"
	EventSlotAllocated     Event = "slot_allocated"
	EventSlotReleased      Event = "slot_released"
	EventLauncherConstruct Event = "launcher_construct"
	EventSpawn             Event = "spawn"
)

// Sink logs profiling events and keeps a running count per Event.
type Sink struct {
	log    *slog.Logger
	zero   time.Time
	mu     sync.Mutex
	counts map[Event]int
}

// New builds a Sink writing structured JSON lines to w, timestamped
// relative to TimeZero (spec.md §9: "a single TIME_ZERO fixed at pilot
// launch, not wall-clock time, so profiles from different pilots align").
func New(w io.Writer, timeZero time.Time) *Sink {
	return &Sink{
		log:    slog.New(slog.NewJSONHandler(w, nil)),
		zero:   timeZero,
		counts: make(map[Event]int),
	}
}

// Record logs one profiling event with its offset from TimeZero and the
// UID it concerns, and bumps that event's running count.
func (s *Sink) Record(ev Event, uid string, now time.Time) {
	s.mu.Lock()
	s.counts[ev]++
	count := s.counts[ev]
	s.mu.Unlock()

	s.log.Info("profile",
		"event", string(ev),
		"uid", uid,
		"offset_s", now.Sub(s.zero).Seconds(),
		"count", count,
	)
}

// Counts returns a snapshot of every event's running count.
func (s *Sink) Counts() map[Event]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Event]int, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}
