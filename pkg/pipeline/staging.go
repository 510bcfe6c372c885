package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/hpc-pilot/agent/pkg/cu"
	"github.com/hpc-pilot/agent/pkg/store"
)

// Stager performs the filesystem side effect named by a directive's
// action (spec.md §4.6). TRANSFER is delegated to the external
// file-transfer collaborator and always fails locally: the core only
// produces/consumes its directive, never performs the movement itself
// (spec.md §1 Non-goals).
type Stager interface {
	Link(source, target string) error
	Copy(source, target string) error
	Move(source, target string) error
}

// OSStager implements Stager against the real filesystem.
type OSStager struct{}

func (OSStager) Link(source, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if _, err := os.Lstat(target); err == nil {
		return nil // already materialized: link is idempotent (spec.md §8 property 8)
	}
	return os.Symlink(source, target)
}

func (OSStager) Copy(source, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func (OSStager) Move(source, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.Rename(source, target)
}

// ErrTransferNotImplemented is returned for TRANSFER directives: they are
// the file-transfer collaborator's responsibility, not the core's
// (spec.md §1 Non-goals, §4.6).
var ErrTransferNotImplemented = fmt.Errorf("pipeline: TRANSFER directives are handled out-of-band by the file-transfer collaborator")

// ApplyDirective resolves and dispatches one directive by its Action
// (spec.md §4.6 step 2), mutating its State in place.
func ApplyDirective(s Stager, d *cu.Directive, sandbox string) error {
	source, srcScheme := cu.ResolvePath(d.Source, sandbox)
	target, dstScheme := cu.ResolvePath(d.Target, sandbox)
	if srcScheme == cu.SchemeUnhandled || dstScheme == cu.SchemeUnhandled {
		d.State = cu.DirectiveFailed
		return fmt.Errorf("pipeline: unhandled scheme in directive %s -> %s", d.Source, d.Target)
	}

	var err error
	switch d.Action {
	case cu.ActionLink:
		err = s.Link(source, target)
	case cu.ActionCopy:
		err = s.Copy(source, target)
	case cu.ActionMove:
		err = s.Move(source, target)
	case cu.ActionTransfer:
		err = ErrTransferNotImplemented
	default:
		err = fmt.Errorf("pipeline: unknown directive action %q", d.Action)
	}

	if err != nil {
		d.State = cu.DirectiveFailed
		return err
	}
	d.State = cu.DirectiveDone
	return nil
}

// StagingWorker implements the identical shape shared by the stage-in and
// stage-out workers (spec.md §4.6): pop one CU, run its directives in
// order, stop on first failure, and push onward on success.
type StagingWorker struct {
	name       string
	in         *Queue[*cu.Record]
	out        *Queue[*cu.Record]
	updates    *Queue[UpdateRequest]
	stager     Stager
	sandbox    string
	sleep      time.Duration
	entryState cu.State
	failState  cu.State
	doneState  cu.State

	// directivesOf selects which directive list (input or output) this
	// worker instance drains.
	directivesOf func(*cu.Record) []*cu.Directive
}

// NewStageIn builds the C5 worker: drains InputStaging, pushes onto the
// execution queue on success, fails the CU on first directive failure
// (spec.md §4.6, §7 "StagingFailure").
func NewStageIn(in, execQueue *Queue[*cu.Record], updates *Queue[UpdateRequest], stager Stager, sandbox string, sleep time.Duration) *StagingWorker {
	return &StagingWorker{
		name: "stagein", in: in, out: execQueue, updates: updates,
		stager: stager, sandbox: sandbox, sleep: sleep,
		entryState: cu.StateStagingInput, failState: cu.StateFailed, doneState: cu.StateExecuting,
		directivesOf: func(r *cu.Record) []*cu.Directive { return r.Description.InputStaging },
	}
}

// NewStageOut builds the C7 worker: drains OutputStaging, pushes onto the
// update queue either way (spec.md §4.6: "DONE-with-error" policy for
// output failures, rather than failing the whole pipeline).
func NewStageOut(in, updateOnlyOut *Queue[*cu.Record], updates *Queue[UpdateRequest], stager Stager, sandbox string, sleep time.Duration) *StagingWorker {
	return &StagingWorker{
		name: "stageout", in: in, out: updateOnlyOut, updates: updates,
		stager: stager, sandbox: sandbox, sleep: sleep,
		entryState: cu.StateStagingOutput, failState: cu.StateDone, doneState: cu.StateDone,
		directivesOf: func(r *cu.Record) []*cu.Directive { return r.Description.OutputStaging },
	}
}

// RunOnce drains one iteration of the worker loop: pop a CU or report
// idle (spec.md §4.6 step 1). The caller's supervising goroutine sleeps
// for w.sleep between idle iterations.
func (w *StagingWorker) RunOnce(now time.Time) (didWork bool) {
	rec, ok := w.in.TryPop()
	if !ok {
		return false
	}
	w.process(rec, now)
	return true
}

func (w *StagingWorker) process(rec *cu.Record, now time.Time) {
	if rec.State.CanTransitionTo(w.entryState) {
		_ = cu.Advance(rec, w.entryState, now)
	}

	for _, d := range w.directivesOf(rec) {
		if d.State == cu.DirectiveDone {
			continue
		}
		if rec.CancelRequested {
			_ = cu.Advance(rec, cu.StateCanceled, now)
			w.pushUpdate(rec)
			return
		}
		d.State = cu.DirectiveExecuting
		if err := ApplyDirective(w.stager, d, w.sandbox); err != nil {
			_ = cu.Advance(rec, w.failState, now)
			w.pushUpdate(rec)
			return
		}
	}

	if rec.State.CanTransitionTo(w.doneState) {
		_ = cu.Advance(rec, w.doneState, now)
	}
	if w.out != nil {
		w.out.Push(rec)
	}
	w.pushUpdate(rec)
}

func (w *StagingWorker) pushUpdate(rec *cu.Record) {
	if w.updates == nil {
		return
	}
	w.updates.Push(UpdateRequest{
		Collection: store.CollectionUnits,
		Query:      store.Query{"uid": rec.Description.UID},
		Update:     store.Update{"$set": store.Fields{"state": string(rec.State)}},
	})
}
