package launch

import "fmt"

// mpiRunMethod covers MPIRUN, MPIRUN_RSH, and MPIEXEC: all three emit the
// same `<binary> -np N -host h1,…,hN exec args` shape and differ only in
// which binary they resolve (spec.md §4.3).
type mpiRunMethod struct {
	binaryName string
	path       string
}

// newMPIRunFamily returns a Constructor for one of the mpirun-shaped
// binaries, parameterized by the executable name it looks up.
func newMPIRunFamily(binaryName string) Constructor {
	return func(lookup PathLookup) (Method, error) {
		path, err := resolve(lookup, binaryName)
		if err != nil {
			return nil, err
		}
		return &mpiRunMethod{binaryName: binaryName, path: path}, nil
	}
}

func (m *mpiRunMethod) Construct(req Request) (Result, error) {
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

	outer := fmt.Sprintf("%s -np %d -host %s %s", m.path, n, hostList, cmd)
	return Result{OuterCmd: outer}, nil
}
