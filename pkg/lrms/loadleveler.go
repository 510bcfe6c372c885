package lrms

import "strconv"

// LoadLeveler reads LOADL_HOSTFILE for the node list and requires a
// positive LOADL_TOTAL_TASKS (spec.md §6). Cores-per-node is the number of
// hostfile lines naming the first host.
func detectLoadLeveler(env Environment, _ int) (*Result, error) {
	hostfile := env.Getenv("LOADL_HOSTFILE")
	if hostfile == "" {
		return nil, missingVar("LOADL_HOSTFILE")
	}
	totalTasksStr := env.Getenv("LOADL_TOTAL_TASKS")
	if totalTasksStr == "" {
		return nil, missingVar("LOADL_TOTAL_TASKS")
	}
	totalTasks, err := strconv.Atoi(totalTasksStr)
	if err != nil || totalTasks <= 0 {
		return nil, missingVar("LOADL_TOTAL_TASKS")
	}

	data, err := env.ReadFile(hostfile)
	if err != nil {
		return nil, missingVar("LOADL_HOSTFILE")
	}
	order, counts := countRuns(parseHostLines(data))
	if len(order) == 0 {
		return nil, missingVar("LOADL_HOSTFILE")
	}

	cpn := counts[order[0]]
	if cpn == 0 {
		cpn = totalTasks / len(order)
	}
	if cpn == 0 {
		cpn = 1
	}

	return &Result{
		Nodes:        newNodes(order, cpn),
		CoresPerNode: cpn,
	}, nil
}
