// Package e2e drives the pipeline packages together against a Fork LRMS
// allocation, a continuous scheduler, and an in-memory coordination
// store — no real batch system or Mongo deployment required (spec.md
// §4, full pilot lifecycle scenarios).
package e2e

import (
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpc-pilot/agent/pkg/cu"
	"github.com/hpc-pilot/agent/pkg/launch"
	"github.com/hpc-pilot/agent/pkg/lrms"
	"github.com/hpc-pilot/agent/pkg/pipeline"
	"github.com/hpc-pilot/agent/pkg/scheduler"
	"github.com/hpc-pilot/agent/pkg/spawner"
)

// harness wires one exec worker plus stage-in/stage-out against a Fork
// allocation, with no supervisor: tests drive RunOnce/Admit directly so
// scenario assertions are deterministic instead of racing a poll loop.
type harness struct {
	t         *testing.T
	sched     scheduler.Scheduler
	exec      *pipeline.ExecWorker
	stageIn   *pipeline.StagingWorker
	stageOut  *pipeline.StagingWorker
	execQ     *pipeline.Queue[*cu.Record]
	stageInQ  *pipeline.Queue[*cu.Record]
	stageOutQ *pipeline.Queue[*cu.Record]
	updates   *pipeline.Queue[pipeline.UpdateRequest]
	sandbox   string
}

func newHarness(t *testing.T, cores int) *harness {
	res, err := lrms.Discover("FORK", lrms.OSEnvironment{}, cores)
	require.NoError(t, err)

	names := make([]string, len(res.Nodes))
	for i, n := range res.Nodes {
		names[i] = n.Name
	}
	sched := scheduler.NewContinuous(names, res.CoresPerNode)

	taskMethod, err := launch.New("FORK", exec.LookPath)
	require.NoError(t, err)

	sandbox := t.TempDir()
	execQ := pipeline.NewQueue[*cu.Record]()
	stageInQ := pipeline.NewQueue[*cu.Record]()
	stageOutQ := pipeline.NewQueue[*cu.Record]()
	updates := pipeline.NewQueue[pipeline.UpdateRequest]()

	exe := pipeline.NewExec(execQ, stageInQ, stageOutQ, updates, pipeline.ExecConfig{
		Scheduler:    sched,
		TaskMethod:   taskMethod,
		MPIMethod:    taskMethod,
		Spawn:        spawner.New(),
		NodeList:     names,
		CoresPerNode: res.CoresPerNode,
		Sandbox:      sandbox,
	})
	stageIn := pipeline.NewStageIn(stageInQ, execQ, updates, pipeline.OSStager{}, sandbox, time.Millisecond)
	stageOut := pipeline.NewStageOut(stageOutQ, nil, updates, pipeline.OSStager{}, sandbox, time.Millisecond)

	return &harness{
		t: t, sched: sched, exec: exe, stageIn: stageIn, stageOut: stageOut,
		execQ: execQ, stageInQ: stageInQ, stageOutQ: stageOutQ, updates: updates, sandbox: sandbox,
	}
}

// drive runs every stage's RunOnce in round-robin until none of them
// report work done for a few consecutive passes, or the deadline hits.
func (h *harness) drive(deadline time.Duration) {
	end := time.Now().Add(deadline)
	idle := 0
	for time.Now().Before(end) {
		did := false
		if h.stageIn.RunOnce(time.Now()) {
			did = true
		}
		if h.exec.RunOnce(time.Now()) {
			did = true
		}
		if h.stageOut.RunOnce(time.Now()) {
			did = true
		}
		if did {
			idle = 0
		} else {
			idle++
			if idle > 20 {
				time.Sleep(5 * time.Millisecond)
			}
		}
		time.Sleep(time.Millisecond)
	}
}

func newUnit(uid, executable string, args []string) *cu.Record {
	desc := &cu.Description{
		UID:          uid,
		Executable:   executable,
		Arguments:    args,
		CPUProcesses: 1,
		CPUThreads:   1,
	}
	rec := cu.NewRecord(desc, time.Unix(0, 0))
	rec.State = cu.StatePendingExecution
	return rec
}

// S1: a single local serial CU runs to DONE.
func TestS1_SingleLocalSerialCU(t *testing.T) {
	h := newHarness(t, 2)
	rec := newUnit("unit.s1", "/bin/echo", []string{"hello"})

	require.True(t, h.exec.Admit(rec, time.Now()))
	h.drive(2 * time.Second)

	assert.Equal(t, cu.StateDone, rec.State)
	assert.Equal(t, 0, rec.ExitCode)
	assert.Equal(t, 2, h.sched.FreeCores())
}

// S2: two CUs compete for a 2-core allocation sized for only one of them
// at a time; both eventually finish and cores are never double-allocated.
func TestS2_TwoCUsCompeteForSlots(t *testing.T) {
	h := newHarness(t, 2)
	a := newUnit("unit.s2a", "/bin/echo", []string{"a"})
	a.Description.CPUProcesses = 2
	b := newUnit("unit.s2b", "/bin/echo", []string{"b"})
	b.Description.CPUProcesses = 2

	require.True(t, h.exec.Admit(a, time.Now()))
	require.True(t, h.exec.Admit(b, time.Now()))
	// Admit never allocates, so both a and b reach the execution queue
	// holding no slot; only one of them can spawn at a time since
	// cores=2 and each needs both, so spawnNext requeues whichever CU
	// doesn't fit until the other finishes and releases.

	h.drive(2 * time.Second)

	assert.Equal(t, cu.StateDone, a.State)
	assert.Equal(t, cu.StateDone, b.State)
	assert.Equal(t, 2, h.sched.FreeCores())
}

// S3: an MPI CU picks the MPI method and still completes; the continuous
// scheduler's per-process core grouping is exercised end to end.
func TestS3_MPICUCompletes(t *testing.T) {
	h := newHarness(t, 4)
	rec := newUnit("unit.s3", "/bin/echo", []string{"mpi"})
	rec.Description.CPUProcessType = cu.ProcessTypeMPI
	rec.Description.CPUProcesses = 4

	require.True(t, h.exec.Admit(rec, time.Now()))
	h.drive(2 * time.Second)

	assert.Equal(t, cu.StateDone, rec.State)
	assert.Equal(t, 4, h.sched.FreeCores())
}

// S4: cancellation mid-run kills the child and the CU lands in CANCELED.
func TestS4_CancelMidRun(t *testing.T) {
	h := newHarness(t, 2)
	rec := newUnit("unit.s4", "/bin/sleep", []string{"30"})

	require.True(t, h.exec.Admit(rec, time.Now()))
	h.exec.RunOnce(time.Now()) // spawn it

	require.Eventually(t, func() bool {
		return len(h.exec.ListRunning()) == 1
	}, time.Second, 5*time.Millisecond)

	h.exec.HandleCancel("unit.s4")
	h.drive(2 * time.Second)

	assert.Equal(t, cu.StateCanceled, rec.State)
	assert.Equal(t, 2, h.sched.FreeCores())
}

// S5: a missing input file fails stage-in, and the CU never reaches the
// execution queue.
func TestS5_StageInFailureFailsCU(t *testing.T) {
	h := newHarness(t, 2)
	rec := newUnit("unit.s5", "/bin/echo", []string{"never runs"})
	rec.Description.InputStaging = []*cu.Directive{
		{Source: "file://" + filepath.Join(h.sandbox, "does-not-exist.dat"), Target: "staging://in.dat", Action: cu.ActionCopy},
	}

	require.True(t, h.exec.Admit(rec, time.Now()))
	assert.Equal(t, 1, h.stageInQ.Len())
	assert.Equal(t, 0, h.execQ.Len())

	h.drive(2 * time.Second)

	assert.Equal(t, cu.StateFailed, rec.State)
	assert.Equal(t, 0, h.execQ.Len())
	assert.Equal(t, 2, h.sched.FreeCores())
}

