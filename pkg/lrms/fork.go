package lrms

// Fork has no batch system underneath it: the whole "allocation" is the
// local machine, sized from the agent's own configured core count
// (spec.md §6, Fork row: no required or optional environment variables).
func detectFork(_ Environment, requestedCores int) (*Result, error) {
	if requestedCores <= 0 {
		requestedCores = 1
	}
	return &Result{
		Nodes:        newNodes([]string{"localhost"}, requestedCores),
		CoresPerNode: requestedCores,
	}, nil
}
