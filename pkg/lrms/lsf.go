package lrms

import "strings"

// LSF reads LSB_DJOB_HOSTFILE for the node list (one line per slot) and
// LSB_MCPU_HOSTS ("host1 n1 host2 n2 …") for per-node core counts
// (spec.md §6).
func detectLSF(env Environment, _ int) (*Result, error) {
	hostfile := env.Getenv("LSB_DJOB_HOSTFILE")
	if hostfile == "" {
		return nil, missingVar("LSB_DJOB_HOSTFILE")
	}
	mcpu := env.Getenv("LSB_MCPU_HOSTS")
	if mcpu == "" {
		return nil, missingVar("LSB_MCPU_HOSTS")
	}

	data, err := env.ReadFile(hostfile)
	if err != nil {
		return nil, missingVar("LSB_DJOB_HOSTFILE")
	}
	order, _ := countRuns(parseHostLines(data))
	if len(order) == 0 {
		return nil, missingVar("LSB_DJOB_HOSTFILE")
	}

	perHost := map[string]int{}
	fields := strings.Fields(mcpu)
	for i := 0; i+1 < len(fields); i += 2 {
		perHost[fields[i]] = atoiOrZero(fields[i+1])
	}

	cpn := perHost[order[0]]
	if cpn == 0 {
		cpn = 1
	}

	return &Result{
		Nodes:        newNodes(order, cpn),
		CoresPerNode: cpn,
	}, nil
}
