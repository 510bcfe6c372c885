package launch

import (
	"fmt"

	"github.com/hpc-pilot/agent/pkg/scheduler"
)

// runJobMethod is the BG/Q native launcher (spec.md §4.3):
// `runjob --ranks-per-node R --block B --corner C --shape AxBxCxDxE
// --exe EXE --args …`. It demands cores % cores_per_node == 0.
type runJobMethod struct {
	path string
}

func newRunJob(lookup PathLookup) (Method, error) {
	path, err := resolve(lookup, "runjob")
	if err != nil {
		return nil, err
	}
	return &runJobMethod{path: path}, nil
}

func (m *runJobMethod) Construct(req Request) (Result, error) {
	ts, ok := req.Slot.(*scheduler.TorusSlot)
	if !ok {
		return Result{}, fmt.Errorf("launch: runjob requires a torus slot, got %T", req.Slot)
	}

	if req.CU.CPUProcesses%req.CoresPerNode != 0 {
		return Result{}, fmt.Errorf("launch: runjob: cpu_processes %d not a multiple of cores_per_node %d",
			req.CU.CPUProcesses, req.CoresPerNode)
	}
	numNodes := scheduler.ShapeNodeCount(ts.Shape)
	ranksPerNode := req.CU.CPUProcesses / numNodes

	corner := fmt.Sprintf("%d,%d,%d,%d,%d", ts.Corner.A, ts.Corner.B, ts.Corner.C, ts.Corner.D, ts.Corner.E)
	shape := fmt.Sprintf("%dx%dx%dx%dx%d", ts.Shape.A, ts.Shape.B, ts.Shape.C, ts.Shape.D, ts.Shape.E)

	outer := fmt.Sprintf("%s --ranks-per-node %d --block %s --corner %s --shape %s --exe %s",
		m.path, ranksPerNode, req.BlockID, corner, shape, req.CU.Executable)
	if args := QuoteArgs(req.CU.Arguments); args != "" {
		outer += " --args " + args
	}

	return Result{OuterCmd: outer}, nil
}
