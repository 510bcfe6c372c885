package launch

import (
	"fmt"

	"github.com/hpc-pilot/agent/pkg/scheduler"
)

// perHostProcessCounts walks a continuous slot and returns, in slot node
// order, each host's name paired with the number of process groups
// (CoreMap entries) allocated to it — i.e. how many MPI ranks that host
// should run.
func perHostProcessCounts(slot any) ([]hostCount, error) {
	cs, ok := slot.(*scheduler.ContinuousSlot)
	if !ok {
		return nil, fmt.Errorf("launch: slot is not a continuous slot (%T)", slot)
	}
	out := make([]hostCount, 0, len(cs.Nodes))
	for _, n := range cs.Nodes {
		out = append(out, hostCount{Name: n.Name, Count: len(n.CoreMap)})
	}
	return out, nil
}

type hostCount struct {
	Name  string
	Count int
}

// totalProcesses sums Count over hosts.
func totalProcesses(hosts []hostCount) int {
	n := 0
	for _, h := range hosts {
		n += h.Count
	}
	return n
}

// hostListRepeated renders "h1,h1,h2" style host lists with each host
// repeated once per process it hosts, the form mpirun -host expects.
func hostListRepeated(hosts []hostCount) string {
	var out []string
	for _, h := range hosts {
		for i := 0; i < h.Count; i++ {
			out = append(out, h.Name)
		}
	}
	s := ""
	for i, h := range out {
		if i > 0 {
			s += ","
		}
		s += h
	}
	return s
}
