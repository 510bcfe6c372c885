package launch

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpc-pilot/agent/pkg/cu"
	"github.com/hpc-pilot/agent/pkg/scheduler"
)

func fakeLookup(available map[string]string) PathLookup {
	return func(name string) (string, error) {
		if path, ok := available[name]; ok {
			return path, nil
		}
		return "", fmt.Errorf("not found: %s", name)
	}
}

func TestLookup_UnknownMethod(t *testing.T) {
	_, err := Lookup("CONDOR_SSH")
	require.Error(t, err)
}

func TestNew_LauncherUnavailable(t *testing.T) {
	_, err := New("APRUN", fakeLookup(nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLauncherUnavailable))
}

func TestFork_Construct(t *testing.T) {
	m, err := New("FORK", fakeLookup(nil))
	require.NoError(t, err)

	res, err := m.Construct(Request{CU: &cu.Description{Executable: "/bin/echo", Arguments: []string{"hi"}}})
	require.NoError(t, err)
	assert.Equal(t, `/bin/echo "hi"`, res.OuterCmd)
	assert.False(t, res.HasInner)
}

func TestMPIRun_Construct(t *testing.T) {
	m, err := New("MPIRUN", fakeLookup(map[string]string{"mpirun": "/usr/bin/mpirun"}))
	require.NoError(t, err)

	sched := scheduler.NewContinuous([]string{"n0", "n1"}, 4)
	slot, ok := sched.Allocate(4, 1)
	require.True(t, ok)

	res, err := m.Construct(Request{
		CU:   &cu.Description{Executable: "/bin/app"},
		Slot: slot,
	})
	require.NoError(t, err)
	assert.Contains(t, res.OuterCmd, "/usr/bin/mpirun -np 4 -host")
	assert.Contains(t, res.OuterCmd, "/bin/app")
}

func TestIBRun_OffsetComputation(t *testing.T) {
	// spec.md §8 S3: 3 nodes of 16 cores, cpu_processes=32.
	m, err := New("IBRUN", fakeLookup(map[string]string{"ibrun": "/opt/apps/ibrun"}))
	require.NoError(t, err)

	sched := scheduler.NewContinuous([]string{"n0", "n1", "n2"}, 16)
	slot, ok := sched.Allocate(32, 1)
	require.True(t, ok)

	res, err := m.Construct(Request{
		CU:           &cu.Description{Executable: "/bin/app", CPUProcesses: 32},
		Slot:         slot,
		NodeList:     []string{"n0", "n1", "n2"},
		CoresPerNode: 16,
	})
	require.NoError(t, err)
	assert.Contains(t, res.OuterCmd, "ibrun -n 32 -o 0 /bin/app")
}

func TestIBRun_TACCTasksPerNodeOverride(t *testing.T) {
	m, err := New("IBRUN", fakeLookup(map[string]string{"ibrun": "/opt/apps/ibrun"}))
	require.NoError(t, err)

	sched := scheduler.NewContinuous([]string{"n0", "n1"}, 16)
	slot, ok := sched.Allocate(16, 1)
	require.True(t, ok)

	res, err := m.Construct(Request{
		CU: &cu.Description{
			Executable:   "/bin/app",
			CPUProcesses: 16,
			PreExec:      []string{"export TACC_TASKS_PER_NODE=8"},
		},
		Slot:         slot,
		NodeList:     []string{"n0", "n1"},
		CoresPerNode: 16,
	})
	require.NoError(t, err)
	assert.Contains(t, res.OuterCmd, "ibrun -n 16 -o 0 /bin/app")
}

func TestRunJob_RequiresTorusSlot(t *testing.T) {
	m, err := New("RUNJOB", fakeLookup(map[string]string{"runjob": "/bgsys/bin/runjob"}))
	require.NoError(t, err)

	_, err = m.Construct(Request{CU: &cu.Description{}, Slot: "not-a-torus-slot"})
	require.Error(t, err)
}

func TestORTE_FiltersReservedEnvVars(t *testing.T) {
	m, err := New("ORTE", fakeLookup(map[string]string{"orterun": "/usr/bin/orterun"}))
	require.NoError(t, err)

	sched := scheduler.NewContinuous([]string{"n0"}, 4)
	slot, ok := sched.Allocate(2, 1)
	require.True(t, ok)

	res, err := m.Construct(Request{
		CU: &cu.Description{
			Executable: "/bin/app",
			Environment: map[string]string{
				"OMPI_MCA_btl": "tcp",
				"OPAL_PREFIX":  "/opt",
				"PMIX_RANK":    "0",
				"MY_APP_VAR":   "1",
			},
		},
		Slot: slot,
	})
	require.NoError(t, err)
	assert.Contains(t, res.OuterCmd, "-x MY_APP_VAR")
	assert.NotContains(t, res.OuterCmd, "OMPI_MCA_btl")
	assert.NotContains(t, res.OuterCmd, "OPAL_PREFIX")
	assert.NotContains(t, res.OuterCmd, "PMIX_RANK")
}
