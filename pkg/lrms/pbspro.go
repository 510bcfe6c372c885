package lrms

import "strconv"

// PBSPro requires PBS_NODEFILE plus explicit sizing variables, unlike
// plain Torque (spec.md §6).
func detectPBSPro(env Environment, _ int) (*Result, error) {
	nodefile := env.Getenv("PBS_NODEFILE")
	if nodefile == "" {
		return nil, missingVar("PBS_NODEFILE")
	}
	for _, name := range []string{"NUM_PPN", "NODE_COUNT", "NUM_PES", "PBS_JOBID"} {
		if env.Getenv(name) == "" {
			return nil, missingVar(name)
		}
	}

	data, err := env.ReadFile(nodefile)
	if err != nil {
		return nil, missingVar("PBS_NODEFILE")
	}
	lines := parseHostLines(data)
	order, _ := countRuns(lines)

	cpn, err := strconv.Atoi(env.Getenv("NUM_PPN"))
	if err != nil || cpn <= 0 {
		return nil, missingVar("NUM_PPN")
	}

	return &Result{
		Nodes:        newNodes(order, cpn),
		CoresPerNode: cpn,
	}, nil
}
