// Package supervisor runs the agent's top-level control loop: it drains
// the pilot document's command channel, admits newly-submitted CUs into
// the execution pipeline, enforces the walltime budget, and watches the
// pipeline workers for fatal conditions (spec.md §4.9, "Agent supervisor
// (orchestrator)").
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hpc-pilot/agent/pkg/config"
	"github.com/hpc-pilot/agent/pkg/cu"
	"github.com/hpc-pilot/agent/pkg/pipeline"
	"github.com/hpc-pilot/agent/pkg/store"
)

// Worker is the cooperative poll-or-sleep loop shape every pipeline
// stage exposes (spec.md §4.5 step 1, §4.6 step 1): RunOnce does one
// unit of work if any is available and reports whether it did.
type Worker interface {
	RunOnce(now time.Time) (didWork bool)
}

// Supervisor owns the pilot's lifecycle: command dispatch, CU admission,
// walltime, and the goroutines driving each pipeline stage.
type Supervisor struct {
	st  store.Store
	cfg *config.Config
	exe *pipeline.ExecWorker

	stages []namedWorker

	startedAt time.Time
	state     cu.PilotState

	// admitted holds the UIDs already handed to Admit.
	admitted map[string]bool

	stopCh chan struct{}
	doneCh chan struct{}
	wg     sync.WaitGroup

	fatalMu sync.Mutex
	fatal   error
}

type namedWorker struct {
	name string
	w    Worker
}

// New builds a Supervisor. exe is given directly (not just as a Worker)
// because command dispatch needs ExecWorker.Admit and HandleCancel,
// beyond the common RunOnce loop every stage shares.
func New(st store.Store, cfg *config.Config, exe *pipeline.ExecWorker, stageIn, stageOut Worker) *Supervisor {
	return &Supervisor{
		st:  st,
		cfg: cfg,
		exe: exe,
		stages: []namedWorker{
			{"stage-in", stageIn},
			{"exec", exe},
			{"stage-out", stageOut},
		},
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		state:    cu.PilotLaunching,
		admitted: make(map[string]bool),
	}
}

// Run blocks until the pilot reaches a terminal state: walltime
// expiry, a cancel_pilot command, a fatal worker error, or ctx
// cancellation. It returns the pilot's final state.
func (s *Supervisor) Run(ctx context.Context) cu.PilotState {
	s.startedAt = time.Now()
	s.state = cu.PilotActive
	slog.Info("pilot active", "pilot_id", s.cfg.PilotID, "runtime_minutes", s.cfg.RuntimeMinutes)

	for _, st := range s.stages {
		s.wg.Add(1)
		go s.driveStage(ctx, st.name, st.w)
	}

	pollInterval := s.cfg.DBPollInterval()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	defer func() {
		close(s.stopCh)
		s.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return s.finish(cu.PilotCanceled)
		case <-ticker.C:
			if state, done := s.tick(ctx); done {
				return s.finish(state)
			}
		}
	}
}

// tick performs one supervisor poll pass: command dispatch, admission,
// walltime check (spec.md §4.9). done is true once the pilot has
// reached a terminal condition.
func (s *Supervisor) tick(ctx context.Context) (cu.PilotState, bool) {
	if terminal, ok := s.dispatchCommands(ctx); ok {
		return terminal, true
	}

	s.admitPending(ctx)

	if s.cfg.RuntimeMinutes > 0 && time.Since(s.startedAt) >= s.cfg.Runtime() {
		slog.Warn("walltime exceeded", "pilot_id", s.cfg.PilotID)
		return cu.PilotDone, true
	}

	if err := s.fatalErr(); err != nil {
		slog.Error("fatal pipeline error, shutting down", "error", err)
		return cu.PilotFailed, true
	}

	return "", false
}

// dispatchCommands drains the pilot document's pending command array
// (spec.md §4.9 "Command dispatch"): cancel_pilot ends the loop,
// cancel_unit marks a running CU cancel-requested and kills its child,
// keep_alive is a no-op heartbeat acknowledgement.
func (s *Supervisor) dispatchCommands(ctx context.Context) (cu.PilotState, bool) {
	doc, err := s.st.FindAndModify(ctx,
		store.CollectionName(s.cfg.SessionID, store.CollectionPilots),
		store.Query{"uid": s.cfg.PilotID},
		store.Update{"$set": store.Fields{"cmd": []any{}}},
		store.Fields{"cmd": 1},
	)
	if err != nil {
		slog.Error("command poll failed", "error", err)
		return "", false
	}
	rawCmds, _ := doc["cmd"].([]any)
	for _, raw := range rawCmds {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["cmd"].(string)
		arg, _ := m["arg"].(string)
		switch name {
		case store.CmdCancelPilot:
			return cu.PilotCanceled, true
		case store.CmdCancelUnit:
			s.exe.HandleCancel(arg)
		case store.CmdKeepAlive:
			// acknowledged implicitly by having polled
		}
	}
	return "", false
}

// admitPending claims units still in PENDING_EXECUTION and moves them into
// ALLOCATING, routing each to stage-in or the execution queue (spec.md
// §4.2, §4.5 step 2). This never touches the scheduler: Admit only
// performs the state transition and the routing decision, so it fails
// only when a unit's stored state is not actually PENDING_EXECUTION. Real
// slot allocation happens later, inside the exec worker's own goroutine,
// once a unit is popped off the execution queue (spec.md §5).
func (s *Supervisor) admitPending(ctx context.Context) {
	cur, err := s.st.Find(ctx,
		store.CollectionName(s.cfg.SessionID, store.CollectionUnits),
		store.Query{"state": string(cu.StatePendingExecution)},
	)
	if err != nil {
		slog.Error("pending-unit poll failed", "error", err)
		return
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var doc map[string]any
		if err := cur.Decode(&doc); err != nil {
			slog.Error("decode pending unit", "error", err)
			continue
		}
		rec := recordFromDocument(doc)
		if s.admitted[rec.Description.UID] {
			// Already admitted by a previous tick; the stored state still
			// reads PENDING_EXECUTION until the updater flushes.
			continue
		}
		s.admitted[rec.Description.UID] = true
		if !s.exe.Admit(rec, time.Now()) {
			// Record was not actually in PENDING_EXECUTION; skip it.
			continue
		}
	}
	if err := cur.Err(); err != nil {
		slog.Error("pending-unit cursor", "error", err)
	}
}

func (s *Supervisor) finish(state cu.PilotState) cu.PilotState {
	s.state = state
	slog.Info("pilot finished", "pilot_id", s.cfg.PilotID, "state", state)
	return state
}

// driveStage runs one pipeline worker's poll-or-sleep loop until the
// supervisor stops (spec.md §4.5 step 1, §4.6 step 1): busy-loop while
// RunOnce finds work, otherwise sleep QueuePollSleeptime.
func (s *Supervisor) driveStage(ctx context.Context, name string, w Worker) {
	defer s.wg.Done()
	sleep := s.cfg.Derived.QueuePollSleeptime
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		if !w.RunOnce(time.Now()) {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-time.After(sleep):
			}
		}
	}
}

// ReportFatal records a fatal pipeline error (e.g. the updater's store
// going unreachable past its retry budget, spec.md §7
// "StoreUnreachable"), causing Run to exit on the next tick.
func (s *Supervisor) ReportFatal(err error) {
	s.fatalMu.Lock()
	defer s.fatalMu.Unlock()
	if s.fatal == nil {
		s.fatal = err
	}
}

func (s *Supervisor) fatalErr() error {
	s.fatalMu.Lock()
	defer s.fatalMu.Unlock()
	return s.fatal
}

// WatchFatal forwards errors from an Updater's Fatal channel into the
// supervisor (spec.md §4.7, §4.9).
func (s *Supervisor) WatchFatal(ctx context.Context, ch <-chan error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case err, ok := <-ch:
			if ok {
				s.ReportFatal(err)
			}
		case <-ctx.Done():
		case <-s.stopCh:
		}
	}()
}

// recordFromDocument builds a Record from a raw unit document as decoded
// by the store's Cursor (a map[string]any keyed by the same field names
// store.UnitDocument's bson tags use, spec.md §6). Decoding into a plain
// map rather than the typed struct keeps this working against both the
// in-memory store's cursor and a real Mongo cursor's bson.M result.
func recordFromDocument(doc map[string]any) *cu.Record {
	uid, _ := doc["uid"].(string)
	if uid == "" {
		// A unit document is expected to carry its own uid, but a
		// malformed seed or a pre-assignment race should never wedge
		// admission on an empty description UID.
		uid = uuid.NewString()
	}
	desc := &cu.Description{UID: uid}

	description, _ := doc["description"].(map[string]any)
	if exe, ok := description["executable"].(string); ok {
		desc.Executable = exe
	}
	if args, ok := description["arguments"].([]any); ok {
		for _, a := range args {
			if s, ok := a.(string); ok {
				desc.Arguments = append(desc.Arguments, s)
			}
		}
	}
	if p, ok := description["cpu_processes"].(float64); ok {
		desc.CPUProcesses = int(p)
	}
	if t, ok := description["cpu_threads"].(float64); ok {
		desc.CPUThreads = int(t)
	}
	if pt, ok := description["cpu_process_type"].(string); ok && pt == string(cu.ProcessTypeMPI) {
		desc.CPUProcessType = cu.ProcessTypeMPI
	}
	desc.InputStaging = directivesFromDocs(rawDirectives(doc["Agent_Input_Directives"]))
	desc.OutputStaging = directivesFromDocs(rawDirectives(doc["Agent_Output_Directives"]))

	rec := cu.NewRecord(desc, time.Now())
	rec.State = cu.StatePendingExecution
	return rec
}

// rawDirectives normalizes a cursor-decoded directive list, which arrives
// as []any (each element a map[string]any) rather than the typed
// []map[string]any store.UnitDocument uses.
func rawDirectives(v any) []map[string]any {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func directivesFromDocs(docs []map[string]any) []*cu.Directive {
	out := make([]*cu.Directive, 0, len(docs))
	for _, m := range docs {
		d := &cu.Directive{State: cu.DirectivePending}
		if v, ok := m["source"].(string); ok {
			d.Source = v
		}
		if v, ok := m["target"].(string); ok {
			d.Target = v
		}
		if v, ok := m["action"].(string); ok {
			d.Action = cu.DirectiveAction(v)
		}
		out = append(out, d)
	}
	return out
}
