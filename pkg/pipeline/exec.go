package pipeline

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/hpc-pilot/agent/pkg/cu"
	"github.com/hpc-pilot/agent/pkg/launch"
	"github.com/hpc-pilot/agent/pkg/scheduler"
	"github.com/hpc-pilot/agent/pkg/spawner"
	"github.com/hpc-pilot/agent/pkg/store"
)

// Spawner is the subset of spawner.POPENSpawner the exec worker depends
// on, narrowed so tests can substitute a fake child process.
type Spawner interface {
	Spawn(t spawner.Task) (spawner.Handle, error)
}

// running tracks one CU between its spawn and its finalize (spec.md
// §4.5 steps 4-5).
type running struct {
	rec    *cu.Record
	handle spawner.Handle
	slot   any
}

// ExecWorker is the C6 worker. Admit only moves a CU into its ALLOCATING
// waiting state and routes it to stage-in or straight to the execution
// queue; the scheduler itself is touched nowhere outside this worker's
// own RunOnce/spawnNext/finalize, so Allocate/Release always run on the
// same goroutine and never contend with another caller (spec.md §4.5
// step 2, §5).
type ExecWorker struct {
	in       *Queue[*cu.Record] // admitted CUs ready to spawn (no slot yet)
	stageIn  *Queue[*cu.Record] // admitted CUs that still need input staging
	stageOut *Queue[*cu.Record]
	updates  *Queue[UpdateRequest]

	sched    scheduler.Scheduler
	methods  map[bool]launch.Method // keyed by cu.Description.IsMPI()
	spawn    Spawner
	nodeList []string

	coresPerNode int
	sandbox      string
	maxTailBytes int

	runningSet []*running
}

// ExecConfig bundles the construction-time collaborators an ExecWorker
// needs; NodeList and CoresPerNode come from the same LRMS discovery
// result the scheduler was built from (spec.md §4.2, §9).
type ExecConfig struct {
	Scheduler    scheduler.Scheduler
	TaskMethod   launch.Method
	MPIMethod    launch.Method
	Spawn        Spawner
	NodeList     []string
	CoresPerNode int
	Sandbox      string
	MaxTailBytes int
}

// NewExec builds the C6 worker. execQueue receives CUs ready to spawn;
// stageInQueue receives newly-admitted CUs that still need their input
// directives run before they can spawn (Admit routes between the two;
// neither holds a scheduler slot yet).
func NewExec(execQueue, stageInQueue, stageOutQueue *Queue[*cu.Record], updates *Queue[UpdateRequest], cfg ExecConfig) *ExecWorker {
	maxTail := cfg.MaxTailBytes
	if maxTail <= 0 {
		maxTail = 64 * 1024
	}
	return &ExecWorker{
		in: execQueue, stageIn: stageInQueue, stageOut: stageOutQueue, updates: updates,
		sched: cfg.Scheduler,
		methods: map[bool]launch.Method{
			false: cfg.TaskMethod,
			true:  cfg.MPIMethod,
		},
		spawn: cfg.Spawn, nodeList: cfg.NodeList, coresPerNode: cfg.CoresPerNode,
		sandbox: cfg.Sandbox, maxTailBytes: maxTail,
	}
}

// Admit moves a PENDING_EXECUTION CU into ALLOCATING — its named
// "admitted, awaiting the execution queue" state — and routes it to
// stage-in or straight to the execution queue (spec.md §4.5 step 2).
// This performs no scheduler call: the CU holds no slot yet, so a CU
// whose stage-in fails afterward reaches a terminal state having never
// acquired one (spec.md §3 invariant 3, §8 S5). Real allocation happens
// only in spawnNext, once a CU is popped off the execution queue. ok is
// false only if rec is not actually in PENDING_EXECUTION.
func (w *ExecWorker) Admit(rec *cu.Record, now time.Time) (ok bool) {
	if err := cu.Advance(rec, cu.StateAllocating, now); err != nil {
		w.failRecord(rec, now, err)
		return false
	}
	w.pushUpdate(rec)

	if len(rec.Description.InputStaging) > 0 && w.stageIn != nil {
		w.stageIn.Push(rec)
	} else {
		w.in.Push(rec)
	}
	return true
}

// RunOnce drives one iteration of the worker's cooperative loop (spec.md
// §4.5 step 1): spawn one newly-ready CU, then poll every running child
// once. Returns whether either sub-step did work.
func (w *ExecWorker) RunOnce(now time.Time) (didWork bool) {
	if w.spawnNext(now) {
		didWork = true
	}
	if w.pollRunning(now) {
		didWork = true
	}
	return didWork
}

// ListRunning returns the UIDs of CUs currently spawned and being
// polled, for diagnostics and tests.
func (w *ExecWorker) ListRunning() []string {
	uids := make([]string, len(w.runningSet))
	for i, r := range w.runningSet {
		uids[i] = r.rec.Description.UID
	}
	return uids
}

// HandleCancel marks the running CU with uid as cancel-requested and
// kills its child immediately (spec.md §4.5 step 1, §5 "Cancellation").
// A CU that is not in the running set is left untouched.
func (w *ExecWorker) HandleCancel(uid string) {
	for _, r := range w.runningSet {
		if r.rec.Description.UID == uid {
			r.rec.CancelRequested = true
			_ = r.handle.Kill()
			return
		}
	}
}

func (w *ExecWorker) spawnNext(now time.Time) bool {
	rec, ok := w.in.TryPop()
	if !ok {
		return false
	}

	desc := rec.Description

	if rec.Slot == nil {
		slot, fits := w.sched.Allocate(desc.TotalCoreCount(), processCoreCount(desc))
		if !fits {
			// No capacity right now; leave the CU's state untouched and
			// retry it on a later pass rather than losing it.
			w.in.Push(rec)
			return false
		}
		rec.Slot = slot
	}

	if rec.State == cu.StateAllocating {
		_ = cu.Advance(rec, cu.StateExecuting, now)
	}

	method := w.methods[desc.IsMPI()]
	workdir := w.workdir(desc.UID)
	result, err := method.Construct(launch.Request{
		CU:           desc,
		Slot:         rec.Slot,
		NodeList:     w.nodeList,
		CoresPerNode: w.coresPerNode,
		ScriptHop:    filepath.Join(workdir, desc.UID+".sh"),
	})
	if err != nil {
		w.sched.Release(rec.Slot)
		w.failRecord(rec, now, err)
		return true
	}

	task := spawner.Task{
		UID:         desc.UID,
		OuterCmd:    result.OuterCmd,
		InnerCmd:    result.InnerCmd,
		HasInner:    result.HasInner,
		PreExec:     desc.PreExec,
		PostExec:    desc.PostExec,
		Environment: desc.Environment,
		Workdir:     workdir,
		StdoutFile:  stdoutPath(desc, workdir),
		StderrFile:  stderrPath(desc, workdir),
	}

	handle, err := w.spawn.Spawn(task)
	if err != nil {
		w.sched.Release(rec.Slot)
		w.failRecord(rec, now, err)
		return true
	}

	rec.ProcHandle = handle
	rec.Workdir = workdir
	rec.StdoutFile = task.StdoutFile
	rec.StderrFile = task.StderrFile
	rec.StartedAt = now
	w.pushUpdate(rec)

	w.runningSet = append(w.runningSet, &running{rec: rec, handle: handle, slot: rec.Slot})
	return true
}

func (w *ExecWorker) pollRunning(now time.Time) bool {
	if len(w.runningSet) == 0 {
		return false
	}
	var stillRunning []*running
	didWork := false
	for _, r := range w.runningSet {
		code, exited := r.handle.Poll()
		if !exited {
			stillRunning = append(stillRunning, r)
			continue
		}
		didWork = true
		w.finalize(r, code, now)
	}
	w.runningSet = stillRunning
	return didWork
}

// finalize implements spec.md §4.5 step 5: release the slot, capture
// bounded tails, and route the CU onward to stage-out or directly to a
// terminal state.
func (w *ExecWorker) finalize(r *running, exitCode int, now time.Time) {
	rec := r.rec
	w.sched.Release(r.slot)
	rec.FinishedAt = now
	rec.ExitCode = exitCode

	if tail, err := spawner.TailBytes(rec.StdoutFile, w.maxTailBytes); err == nil {
		rec.StdoutTail = tail
	}
	if tail, err := spawner.TailBytes(rec.StderrFile, w.maxTailBytes); err == nil {
		rec.StderrTail = tail
	}

	switch {
	case rec.CancelRequested:
		_ = cu.Advance(rec, cu.StateCanceled, now)
		w.pushUpdate(rec)
		return
	case exitCode != 0:
		_ = cu.Advance(rec, cu.StateFailed, now)
		w.pushUpdate(rec)
		return
	}

	if len(rec.Description.OutputStaging) > 0 {
		if err := cu.Advance(rec, cu.StateStagingOutput, now); err == nil {
			if w.stageOut != nil {
				w.stageOut.Push(rec)
			}
			w.pushUpdate(rec)
			return
		}
	}

	_ = cu.Advance(rec, cu.StateDone, now)
	w.pushUpdate(rec)
}

func (w *ExecWorker) failRecord(rec *cu.Record, now time.Time, err error) {
	rec.StderrTail = err.Error()
	_ = cu.Advance(rec, cu.StateFailed, now)
	w.pushUpdate(rec)
}

func (w *ExecWorker) workdir(uid string) string {
	return filepath.Join(w.sandbox, uid)
}

func (w *ExecWorker) pushUpdate(rec *cu.Record) {
	if w.updates == nil {
		return
	}
	w.updates.Push(UpdateRequest{
		Collection: store.CollectionUnits,
		Query:      store.Query{"uid": rec.Description.UID},
		Update: store.Update{"$set": store.Fields{
			"state":    string(rec.State),
			"exitcode": rec.ExitCode,
		}},
	})
}

func processCoreCount(desc *cu.Description) int {
	threads := desc.CPUThreads
	if threads <= 0 {
		threads = 1
	}
	return threads
}

func stdoutPath(desc *cu.Description, workdir string) string {
	if desc.Stdout != "" {
		return desc.Stdout
	}
	return filepath.Join(workdir, fmt.Sprintf("%s.out", desc.UID))
}

func stderrPath(desc *cu.Description, workdir string) string {
	if desc.Stderr != "" {
		return desc.Stderr
	}
	return filepath.Join(workdir, fmt.Sprintf("%s.err", desc.UID))
}
