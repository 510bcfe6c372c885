package lrms

import "strconv"

// Torque reads the node list from PBS_NODEFILE; cores-per-node comes from
// PBS_NUM_PPN when set, else from SAGA_PPN, else is derived from how many
// times the first host repeats in the file (spec.md §6). PBS_NCPUS and
// PBS_NUM_NODES are not read.
func detectTorque(env Environment, _ int) (*Result, error) {
	nodefile := env.Getenv("PBS_NODEFILE")
	if nodefile == "" {
		return nil, missingVar("PBS_NODEFILE")
	}
	data, err := env.ReadFile(nodefile)
	if err != nil {
		return nil, missingVar("PBS_NODEFILE")
	}
	lines := parseHostLines(data)
	if len(lines) == 0 {
		return nil, missingVar("PBS_NODEFILE")
	}
	order, counts := countRuns(lines)

	cpn := counts[order[0]]
	if ppn := env.Getenv("PBS_NUM_PPN"); ppn != "" {
		if v, err := strconv.Atoi(ppn); err == nil && v > 0 {
			cpn = v
		}
	} else if ppn := env.Getenv("SAGA_PPN"); ppn != "" {
		if v, err := strconv.Atoi(ppn); err == nil && v > 0 {
			cpn = v
		}
	}

	return &Result{
		Nodes:        newNodes(order, cpn),
		CoresPerNode: cpn,
	}, nil
}
