package lrms

// SGE reads PE_HOSTFILE, whose lines are "host slots queue processors"
// (spec.md §6); only the first two columns matter here.
func detectSGE(env Environment, _ int) (*Result, error) {
	hostfile := env.Getenv("PE_HOSTFILE")
	if hostfile == "" {
		return nil, missingVar("PE_HOSTFILE")
	}
	data, err := env.ReadFile(hostfile)
	if err != nil {
		return nil, missingVar("PE_HOSTFILE")
	}

	var names []string
	cpn := 0
	for _, line := range parseHostLines(data) {
		fields := splitFields(line)
		if len(fields) < 2 {
			continue
		}
		names = append(names, fields[0])
		if n := atoiOrZero(fields[1]); n > cpn {
			cpn = n
		}
	}
	if len(names) == 0 {
		return nil, missingVar("PE_HOSTFILE")
	}
	if cpn == 0 {
		cpn = 1
	}

	return &Result{
		Nodes:        newNodes(names, cpn),
		CoresPerNode: cpn,
	}, nil
}
