package launch

import "fmt"

// aprunMethod is the Cray ALPS launcher: `aprun -n N exec args`
// (spec.md §4.3).
type aprunMethod struct {
	path string
}

func newAprun(lookup PathLookup) (Method, error) {
	path, err := resolve(lookup, "aprun")
	if err != nil {
		return nil, err
	}
	return &aprunMethod{path: path}, nil
}

func (m *aprunMethod) Construct(req Request) (Result, error) {
	hosts, err := perHostProcessCounts(req.Slot)
	if err != nil {
		return Result{}, err
	}
	n := totalProcesses(hosts)

	cmd := req.CU.Executable
	if args := QuoteArgs(req.CU.Arguments); args != "" {
		cmd = fmt.Sprintf("%s %s", cmd, args)
	}

	outer := fmt.Sprintf("%s -n %d %s", m.path, n, cmd)
	return Result{OuterCmd: outer}, nil
}
