package launch

import "fmt"

// ccmRunMethod wraps a command for Cray's Cluster Compatibility Mode:
// `ccmrun …` (spec.md §4.3).
type ccmRunMethod struct {
	path string
}

func newCCMRun(lookup PathLookup) (Method, error) {
	path, err := resolve(lookup, "ccmrun")
	if err != nil {
		return nil, err
	}
	return &ccmRunMethod{path: path}, nil
}

func (m *ccmRunMethod) Construct(req Request) (Result, error) {
	cmd := req.CU.Executable
	if args := QuoteArgs(req.CU.Arguments); args != "" {
		cmd = fmt.Sprintf("%s %s", cmd, args)
	}
	return Result{OuterCmd: fmt.Sprintf("%s %s", m.path, cmd)}, nil
}

// mpiRunCCMRunMethod composes ccmrun with an inner mpirun invocation: CCM
// mode requires the MPI launch itself to also go through ccmrun
// (spec.md §4.3, "CCMRUN / MPIRUN_CCMRUN | ccmrun … and combined").
type mpiRunCCMRunMethod struct {
	ccmPath    string
	mpirunPath string
}

func newMPIRunCCMRun(lookup PathLookup) (Method, error) {
	ccmPath, err := resolve(lookup, "ccmrun")
	if err != nil {
		return nil, err
	}
	mpirunPath, err := resolve(lookup, "mpirun")
	if err != nil {
		return nil, err
	}
	return &mpiRunCCMRunMethod{ccmPath: ccmPath, mpirunPath: mpirunPath}, nil
}

func (m *mpiRunCCMRunMethod) Construct(req Request) (Result, error) {
	hosts, err := perHostProcessCounts(req.Slot)
	if err != nil {
		return Result{}, err
	}
	n := totalProcesses(hosts)
	hostList := hostListRepeated(hosts)

	cmd := req.CU.Executable
	if args := QuoteArgs(req.CU.Arguments); args != "" {
		cmd = fmt.Sprintf("%s %s", cmd, args)
	}

	outer := fmt.Sprintf("%s %s -np %d -host %s %s", m.ccmPath, m.mpirunPath, n, hostList, cmd)
	return Result{OuterCmd: outer}, nil
}
