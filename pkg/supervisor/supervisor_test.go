package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpc-pilot/agent/pkg/config"
	"github.com/hpc-pilot/agent/pkg/cu"
	"github.com/hpc-pilot/agent/pkg/launch"
	"github.com/hpc-pilot/agent/pkg/pipeline"
	"github.com/hpc-pilot/agent/pkg/scheduler"
	"github.com/hpc-pilot/agent/pkg/spawner"
	"github.com/hpc-pilot/agent/pkg/store"
)

type noopMethod struct{}

func (noopMethod) Construct(req launch.Request) (launch.Result, error) {
	return launch.Result{OuterCmd: "/bin/true"}, nil
}

type fakeHandle struct{ exited bool }

func (h *fakeHandle) Poll() (int, bool) { return 0, h.exited }
func (h *fakeHandle) Kill() error       { h.exited = true; return nil }

type fakeSpawner struct{}

func (fakeSpawner) Spawn(t spawner.Task) (spawner.Handle, error) {
	return &fakeHandle{exited: true}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		PilotID:         "pilot.0000",
		SessionID:       "rp.session.test",
		RuntimeMinutes:  0,
		DBPollSleeptime: 0.01,
		Derived: config.Derived{
			QueuePollSleeptime: 5 * time.Millisecond,
		},
	}
}

func TestSupervisor_AdmitsPendingUnitAndRunsToDone(t *testing.T) {
	st := store.NewMemoryStore()
	cfg := testConfig()

	st.Seed(store.CollectionName(cfg.SessionID, store.CollectionUnits), map[string]any{
		"uid":   "unit.0001",
		"state": string(cu.StatePendingExecution),
		"description": map[string]any{
			"executable":    "/bin/true",
			"cpu_processes": float64(1),
			"cpu_threads":   float64(1),
		},
	})
	st.Seed(store.CollectionName(cfg.SessionID, store.CollectionPilots), map[string]any{
		"uid": cfg.PilotID,
		"cmd": []any{},
	})

	sched := scheduler.NewContinuous([]string{"node0"}, 4)
	execQ := pipeline.NewQueue[*cu.Record]()
	stageInQ := pipeline.NewQueue[*cu.Record]()
	stageOutQ := pipeline.NewQueue[*cu.Record]()
	updates := pipeline.NewQueue[pipeline.UpdateRequest]()

	exe := pipeline.NewExec(execQ, stageInQ, stageOutQ, updates, pipeline.ExecConfig{
		Scheduler:    sched,
		TaskMethod:   noopMethod{},
		MPIMethod:    noopMethod{},
		Spawn:        fakeSpawner{},
		NodeList:     []string{"node0"},
		CoresPerNode: 4,
		Sandbox:      t.TempDir(),
	})
	stageIn := pipeline.NewStageIn(stageInQ, execQ, updates, pipeline.OSStager{}, t.TempDir(), time.Millisecond)
	stageOut := pipeline.NewStageOut(stageOutQ, nil, updates, pipeline.OSStager{}, t.TempDir(), time.Millisecond)

	sup := New(st, cfg, exe, stageIn, stageOut)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	done := make(chan cu.PilotState, 1)
	go func() { done <- sup.Run(ctx) }()

	// The unit should be admitted, spawned (it exits immediately), and
	// its slot released back to the scheduler well before ctx expires.
	require.Eventually(t, func() bool {
		return sched.FreeCores() == 4
	}, time.Second, 10*time.Millisecond)

	state := <-done
	assert.Equal(t, cu.PilotCanceled, state) // ctx deadline, no cancel_pilot command seeded
}

func TestSupervisor_CancelPilotCommandStopsLoop(t *testing.T) {
	st := store.NewMemoryStore()
	cfg := testConfig()
	cfg.DBPollSleeptime = 0.01

	st.Seed(store.CollectionName(cfg.SessionID, store.CollectionPilots), map[string]any{
		"uid": cfg.PilotID,
		"cmd": []any{map[string]any{"cmd": store.CmdCancelPilot, "arg": ""}},
	})

	sched := scheduler.NewContinuous([]string{"node0"}, 4)
	execQ := pipeline.NewQueue[*cu.Record]()
	stageInQ := pipeline.NewQueue[*cu.Record]()
	stageOutQ := pipeline.NewQueue[*cu.Record]()
	updates := pipeline.NewQueue[pipeline.UpdateRequest]()

	exe := pipeline.NewExec(execQ, stageInQ, stageOutQ, updates, pipeline.ExecConfig{
		Scheduler: sched, TaskMethod: noopMethod{}, MPIMethod: noopMethod{}, Spawn: fakeSpawner{},
		NodeList: []string{"node0"}, CoresPerNode: 4, Sandbox: t.TempDir(),
	})
	stageIn := pipeline.NewStageIn(stageInQ, execQ, updates, pipeline.OSStager{}, t.TempDir(), time.Millisecond)
	stageOut := pipeline.NewStageOut(stageOutQ, nil, updates, pipeline.OSStager{}, t.TempDir(), time.Millisecond)

	sup := New(st, cfg, exe, stageIn, stageOut)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	state := sup.Run(ctx)
	require.Equal(t, cu.PilotCanceled, state)
}

func TestSupervisor_FatalErrorStopsLoop(t *testing.T) {
	st := store.NewMemoryStore()
	cfg := testConfig()

	st.Seed(store.CollectionName(cfg.SessionID, store.CollectionPilots), map[string]any{
		"uid": cfg.PilotID,
		"cmd": []any{},
	})

	sched := scheduler.NewContinuous([]string{"node0"}, 4)
	execQ := pipeline.NewQueue[*cu.Record]()
	stageInQ := pipeline.NewQueue[*cu.Record]()
	stageOutQ := pipeline.NewQueue[*cu.Record]()
	updates := pipeline.NewQueue[pipeline.UpdateRequest]()
	exe := pipeline.NewExec(execQ, stageInQ, stageOutQ, updates, pipeline.ExecConfig{
		Scheduler: sched, TaskMethod: noopMethod{}, MPIMethod: noopMethod{}, Spawn: fakeSpawner{},
		NodeList: []string{"node0"}, CoresPerNode: 4, Sandbox: t.TempDir(),
	})
	stageIn := pipeline.NewStageIn(stageInQ, execQ, updates, pipeline.OSStager{}, t.TempDir(), time.Millisecond)
	stageOut := pipeline.NewStageOut(stageOutQ, nil, updates, pipeline.OSStager{}, t.TempDir(), time.Millisecond)

	sup := New(st, cfg, exe, stageIn, stageOut)
	sup.ReportFatal(assertErr{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	state := sup.Run(ctx)
	require.Equal(t, cu.PilotFailed, state)
}

// S6: walltime expiry ends the pilot in DONE, not FAILED or CANCELED. Run
// drives the real ticker, which would need a minute-granularity
// RuntimeMinutes to expire naturally, so this exercises tick directly
// with a backdated startedAt instead.
func TestSupervisor_WalltimeExpiryEndsInDone(t *testing.T) {
	st := store.NewMemoryStore()
	cfg := testConfig()
	cfg.RuntimeMinutes = 1

	st.Seed(store.CollectionName(cfg.SessionID, store.CollectionPilots), map[string]any{
		"uid": cfg.PilotID,
		"cmd": []any{},
	})

	sched := scheduler.NewContinuous([]string{"node0"}, 4)
	execQ := pipeline.NewQueue[*cu.Record]()
	stageInQ := pipeline.NewQueue[*cu.Record]()
	stageOutQ := pipeline.NewQueue[*cu.Record]()
	updates := pipeline.NewQueue[pipeline.UpdateRequest]()
	exe := pipeline.NewExec(execQ, stageInQ, stageOutQ, updates, pipeline.ExecConfig{
		Scheduler: sched, TaskMethod: noopMethod{}, MPIMethod: noopMethod{}, Spawn: fakeSpawner{},
		NodeList: []string{"node0"}, CoresPerNode: 4, Sandbox: t.TempDir(),
	})
	stageIn := pipeline.NewStageIn(stageInQ, execQ, updates, pipeline.OSStager{}, t.TempDir(), time.Millisecond)
	stageOut := pipeline.NewStageOut(stageOutQ, nil, updates, pipeline.OSStager{}, t.TempDir(), time.Millisecond)

	sup := New(st, cfg, exe, stageIn, stageOut)
	sup.startedAt = time.Now().Add(-2 * time.Minute)
	sup.state = cu.PilotActive

	state, done := sup.tick(context.Background())
	require.True(t, done)
	assert.Equal(t, cu.PilotDone, state)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
