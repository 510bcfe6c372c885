package launch

import (
	"fmt"
	"sort"
	"strings"
)

// orteMethod is Open MPI's ORTE launcher: `orterun -np N -host … -x
// VAR…`. It strips OMPI_/OPAL_/PMIX_ variables from the CU's environment
// before forwarding the rest via -x, since those are reinjected by
// orterun itself and would otherwise leak the agent's own runtime state
// into the sub-agent launch (spec.md §4.3).
type orteMethod struct {
	path string
}

func newORTE(lookup PathLookup) (Method, error) {
	path, err := resolve(lookup, "orterun")
	if err != nil {
		return nil, err
	}
	return &orteMethod{path: path}, nil
}

// orteLibMethod is the library-linked variant of ORTE: it emits the same
// -np/-host/-x command line as ORTE, but with the fixed command name
// "orte-lib-run" instead of a resolved orterun path; no executable is
// looked up at configure time (spec.md §4.3, "ORTE / ORTE_LIB").
type orteLibMethod struct{}

func newORTELib(_ PathLookup) (Method, error) {
	return orteLibMethod{}, nil
}

func filteredEnvFlags(env map[string]string) string {
	var names []string
	for k := range env {
		if isORTEReservedVar(k) {
			continue
		}
		names = append(names, k)
	}
	sort.Strings(names)

	var parts []string
	for _, k := range names {
		parts = append(parts, fmt.Sprintf("-x %s", k))
	}
	return strings.Join(parts, " ")
}

func isORTEReservedVar(name string) bool {
	for _, prefix := range []string{"OMPI_", "OPAL_", "PMIX_"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func (m *orteMethod) Construct(req Request) (Result, error) {
	hosts, err := perHostProcessCounts(req.Slot)
	if err != nil {
		return Result{}, err
	}
	n := totalProcesses(hosts)
	hostList := hostListRepeated(hosts)
	envFlags := filteredEnvFlags(req.CU.Environment)

	cmd := req.CU.Executable
	if args := QuoteArgs(req.CU.Arguments); args != "" {
		cmd = fmt.Sprintf("%s %s", cmd, args)
	}

	outer := fmt.Sprintf("%s -np %d -host %s", m.path, n, hostList)
	if envFlags != "" {
		outer += " " + envFlags
	}
	outer += " " + cmd

	return Result{OuterCmd: outer}, nil
}

func (orteLibMethod) Construct(req Request) (Result, error) {
	hosts, err := perHostProcessCounts(req.Slot)
	if err != nil {
		return Result{}, err
	}
	n := totalProcesses(hosts)
	hostList := hostListRepeated(hosts)
	envFlags := filteredEnvFlags(req.CU.Environment)

	cmd := req.CU.Executable
	if args := QuoteArgs(req.CU.Arguments); args != "" {
		cmd = fmt.Sprintf("%s %s", cmd, args)
	}

	outer := fmt.Sprintf("orte-lib-run -np %d -host %s", n, hostList)
	if envFlags != "" {
		outer += " " + envFlags
	}
	outer += " " + cmd

	return Result{OuterCmd: outer}, nil
}
