package launch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hpc-pilot/agent/pkg/scheduler"
)

// ibrunMethod wraps TACC's mpirun shim: `ibrun -n N -o OFFSET exec args`
// (spec.md §4.3).
//
// OFFSET preserves a deliberately unmodified quirk of the original
// implementation (spec.md §9, "Open question — TACC IBRUN offset"): for
// every node in the full LRMS node list, in order, if that node appears
// in the slot, each of its core_map groups contributes
// (core_map[0] / len(core_map)) + index to a candidate list, where index
// is the node's position in the full list times cores-per-node; the
// offset actually used is the minimum of that list. The integer division
// of a core index by a process's core count is surprising and may be a
// bug in the source system, but is preserved rather than "fixed".
type ibrunMethod struct {
	path string
}

func newIBRun(lookup PathLookup) (Method, error) {
	path, err := resolve(lookup, "ibrun")
	if err != nil {
		return nil, err
	}
	return &ibrunMethod{path: path}, nil
}

func (m *ibrunMethod) Construct(req Request) (Result, error) {
	cs, ok := req.Slot.(*scheduler.ContinuousSlot)
	if !ok {
		return Result{}, fmt.Errorf("launch: ibrun requires a continuous slot, got %T", req.Slot)
	}

	cpn := req.CoresPerNode
	if tacc := taccTasksPerNode(req.CU.PreExec); tacc > 0 {
		cpn = tacc
	}

	slotByUID := make(map[string]scheduler.SlotNode, len(cs.Nodes))
	for _, sn := range cs.Nodes {
		slotByUID[sn.UID] = sn
	}

	var offsets []int
	index := 0
	for _, nodeName := range req.NodeList {
		if sn, ok := slotByUID[nodeName]; ok {
			for _, group := range sn.CoreMap {
				if len(group) == 0 {
					continue
				}
				offsets = append(offsets, group[0]/len(group)+index)
			}
		}
		index += cpn
	}
	if len(offsets) == 0 {
		return Result{}, fmt.Errorf("launch: ibrun: slot nodes not found in node list")
	}
	offset := offsets[0]
	for _, o := range offsets[1:] {
		if o < offset {
			offset = o
		}
	}

	n := req.CU.CPUProcesses

	cmd := req.CU.Executable
	if args := QuoteArgs(req.CU.Arguments); args != "" {
		cmd = fmt.Sprintf("%s %s", cmd, args)
	}

	outer := fmt.Sprintf("%s -n %d -o %d %s", m.path, n, offset, cmd)
	return Result{OuterCmd: outer}, nil
}

// taccTasksPerNode scans pre_exec lines for a "TACC_TASKS_PER_NODE=N"
// assignment, mirroring the original's override of cores_per_node when a
// site-specific task count is set ahead of launch.
func taccTasksPerNode(preExec []string) int {
	const prefix = "TACC_TASKS_PER_NODE="
	for _, line := range preExec {
		if idx := strings.Index(line, prefix); idx != -1 {
			if n, err := strconv.Atoi(line[idx+len(prefix):]); err == nil {
				return n
			}
		}
	}
	return 0
}
