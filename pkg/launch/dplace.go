package launch

import (
	"fmt"

	"github.com/hpc-pilot/agent/pkg/scheduler"
)

// dplaceMethod binds the child to a core range via SGI's dplace:
// `dplace -c lo-hi exec args` (spec.md §4.3).
type dplaceMethod struct {
	path string
}

func newDPlace(lookup PathLookup) (Method, error) {
	path, err := resolve(lookup, "dplace")
	if err != nil {
		return nil, err
	}
	return &dplaceMethod{path: path}, nil
}

func (m *dplaceMethod) Construct(req Request) (Result, error) {
	lo, hi, err := coreRange(req.Slot)
	if err != nil {
		return Result{}, err
	}

	cmd := req.CU.Executable
	if args := QuoteArgs(req.CU.Arguments); args != "" {
		cmd = fmt.Sprintf("%s %s", cmd, args)
	}

	outer := fmt.Sprintf("%s -c %d-%d %s", m.path, lo, hi, cmd)
	return Result{OuterCmd: outer}, nil
}

// mpiRunDPlaceMethod composes mpirun with dplace binding per rank
// (spec.md §4.3, "DPLACE / MPIRUN_DPLACE").
type mpiRunDPlaceMethod struct {
	mpirunPath string
	dplacePath string
}

func newMPIRunDPlace(lookup PathLookup) (Method, error) {
	mpirunPath, err := resolve(lookup, "mpirun")
	if err != nil {
		return nil, err
	}
	dplacePath, err := resolve(lookup, "dplace")
	if err != nil {
		return nil, err
	}
	return &mpiRunDPlaceMethod{mpirunPath: mpirunPath, dplacePath: dplacePath}, nil
}

func (m *mpiRunDPlaceMethod) Construct(req Request) (Result, error) {
	hosts, err := perHostProcessCounts(req.Slot)
	if err != nil {
		return Result{}, err
	}
	n := totalProcesses(hosts)
	lo, hi, err := coreRange(req.Slot)
	if err != nil {
		return Result{}, err
	}

	cmd := req.CU.Executable
	if args := QuoteArgs(req.CU.Arguments); args != "" {
		cmd = fmt.Sprintf("%s %s", cmd, args)
	}

	outer := fmt.Sprintf("%s -np %d %s -c %d-%d %s", m.mpirunPath, n, m.dplacePath, lo, hi, cmd)
	return Result{OuterCmd: outer}, nil
}

// coreRange returns the lowest and highest core index allocated anywhere
// in slot, the "lo-hi" range dplace expects.
func coreRange(slot any) (lo, hi int, err error) {
	cs, ok := slot.(*scheduler.ContinuousSlot)
	if !ok {
		return 0, 0, fmt.Errorf("launch: dplace requires a continuous slot, got %T", slot)
	}
	first := true
	for _, n := range cs.Nodes {
		for _, g := range n.CoreMap {
			for _, c := range g {
				if first {
					lo, hi = c, c
					first = false
					continue
				}
				if c < lo {
					lo = c
				}
				if c > hi {
					hi = c
				}
			}
		}
	}
	if first {
		return 0, 0, fmt.Errorf("launch: dplace: slot has no cores")
	}
	return lo, hi, nil
}
