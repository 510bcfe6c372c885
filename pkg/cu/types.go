// Package cu models compute units: the user-submitted tasks the pilot
// agent stages, schedules, launches, and reports on (spec.md §3).
package cu

import "time"

// ProcessType distinguishes a plain POSIX process launch from an MPI one;
// it selects which launch method family the exec worker asks for (§4.5).
type ProcessType string

const (
	ProcessTypePOSIX ProcessType = "POSIX"
	ProcessTypeMPI   ProcessType = "MPI"
)

// ThreadType distinguishes plain threading from OpenMP, carried through to
// launch methods that size per-process core reservations.
type ThreadType string

const (
	ThreadTypePOSIX  ThreadType = "POSIX"
	ThreadTypeOpenMP ThreadType = "OpenMP"
)

// Description is the immutable, user-submitted definition of a compute
// unit (spec.md §3, "CU description (input)").
type Description struct {
	UID         string
	Executable  string
	Arguments   []string
	Environment map[string]string

	CPUProcesses   int
	CPUThreads     int
	CPUProcessType ProcessType
	CPUThreadType  ThreadType
	GPUProcesses   int

	PreExec  []string
	PostExec []string

	Stdout string // optional override path
	Stderr string // optional override path

	InputStaging  []*Directive
	OutputStaging []*Directive

	Tags map[string]string
}

// TotalCoreCount is the number of cores this CU needs from the scheduler,
// combining process and thread counts the way the exec worker does before
// calling Allocate (§4.5 step 2).
func (d *Description) TotalCoreCount() int {
	threads := d.CPUThreads
	if threads <= 0 {
		threads = 1
	}
	return d.CPUProcesses * threads
}

// IsMPI reports whether this CU should be handed to the MPI launch method
// rather than the plain task launch method (§4.5 step 2).
func (d *Description) IsMPI() bool {
	return d.CPUProcessType == ProcessTypeMPI
}

// Record is the mutable runtime state the agent tracks for a CU as it
// moves through the pipeline (spec.md §3, "CU record (runtime)").
type Record struct {
	Description *Description

	State State

	// Slot is opaque to everything except the scheduler that minted it and
	// the launch method that accepts it (spec.md §3 "Slot (opaque)").
	Slot any

	ProcHandle any // set by the spawner; opaque poll()/kill() handle

	StartedAt  time.Time
	FinishedAt time.Time
	ExitCode   int

	StdoutTail string
	StderrTail string

	Workdir     string
	StdoutFile  string
	StderrFile  string

	// FTWOutputStatus flags that out-of-band (file-transfer-worker) output
	// directives are pending, per §4.5 step 3.
	FTWOutputStatus string

	// History is the ordered, timestamped sequence of states observed for
	// this CU, used to check invariant 4/7 (state history is a prefix of a
	// topological walk) and written back to the store by the updater.
	History []StateTransition

	// CancelRequested is set by the exec worker when it drains a
	// cancel_unit command naming this CU (§4.5 step 1, §5 "Cancellation").
	CancelRequested bool
}

// StateTransition records one observed state change with a monotonic
// timestamp, matching spec.md §3 invariant 4.
type StateTransition struct {
	State State
	At    time.Time
}

// NewRecord creates a fresh runtime record for a newly-admitted CU,
// recording the initial NEW transition.
func NewRecord(desc *Description, now time.Time) *Record {
	r := &Record{Description: desc, State: StateNew}
	r.recordTransition(StateNew, now)
	return r
}

func (r *Record) recordTransition(s State, at time.Time) {
	r.History = append(r.History, StateTransition{State: s, At: at})
}

// TransitionTo moves the record to a new state, appending to History. It
// does not validate the transition against the state machine; pipeline
// stages go through Advance, which checks State.CanTransitionTo first and
// returns an error instead of applying an invalid transition.
func (r *Record) TransitionTo(s State, at time.Time) {
	r.State = s
	r.recordTransition(s, at)
}

// DirectiveAction names the agent-side action taken to satisfy a staging
// directive (spec.md §3 "Directive").
type DirectiveAction string

const (
	ActionLink     DirectiveAction = "LINK"
	ActionCopy     DirectiveAction = "COPY"
	ActionMove     DirectiveAction = "MOVE"
	ActionTransfer DirectiveAction = "TRANSFER"
)

// DirectiveState is the lifecycle of a single staging directive.
type DirectiveState string

const (
	DirectivePending   DirectiveState = "PENDING"
	DirectiveExecuting DirectiveState = "EXECUTING"
	DirectiveDone      DirectiveState = "DONE"
	DirectiveFailed    DirectiveState = "FAILED"
)

// Directive is one input or output staging instruction (spec.md §3).
// Source and Target are URLs: "file://", "staging://" (relative to the
// pilot's staging area), or a bare absolute path.
type Directive struct {
	Source string
	Target string
	Action DirectiveAction
	State  DirectiveState
}
