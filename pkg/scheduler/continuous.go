package scheduler

import "sync"

// ContinuousNode is one node's core array, in the order the LRMS adapter
// discovered it (spec.md §4.2, "continuous variant").
type ContinuousNode struct {
	Name  string
	UID   string
	Cores []CoreState
}

// SlotNode is one node's contribution to a minted continuous slot
// (spec.md §3, "Continuous" slot shape). CoreMap groups the node's
// allocated cores into per-process chunks of CoresPerProcess cores each,
// the shape launch methods such as IBRUN walk to compute offsets.
type SlotNode struct {
	Name    string
	UID     string
	CoreMap [][]int
}

// ContinuousSlot is the opaque handle returned by ContinuousScheduler.
// Allocate.
type ContinuousSlot struct {
	Nodes        []SlotNode
	CoresPerNode int
	GPUsPerNode  int
}

// ContinuousScheduler implements the flat per-node packing policy of
// spec.md §4.2. All reads and writes are confined to the calling
// goroutine's critical section; the mutex exists only to make misuse
// (concurrent access from more than the exec worker) fail safely rather
// than corrupt the map, matching the single-owner confinement described
// in spec.md §5.
type ContinuousScheduler struct {
	mu           sync.Mutex
	nodes        []ContinuousNode
	coresPerNode int
	history      []HistoryEntry
	historyBytes int
}

// maxHistoryBytes bounds the serialized slot-history log (spec.md §6:
// "the slot-history field is capped at 4 MiB").
const maxHistoryBytes = 4 * 1024 * 1024

// NewContinuous builds a scheduler over nodes, each with coresPerNode
// cores, all initially FREE.
func NewContinuous(nodeNames []string, coresPerNode int) *ContinuousScheduler {
	nodes := make([]ContinuousNode, len(nodeNames))
	for i, name := range nodeNames {
		nodes[i] = ContinuousNode{
			Name:  name,
			UID:   name,
			Cores: make([]CoreState, coresPerNode),
		}
	}
	return &ContinuousScheduler{nodes: nodes, coresPerNode: coresPerNode}
}

func (s *ContinuousScheduler) TotalCores() int {
	return len(s.nodes) * s.coresPerNode
}

func (s *ContinuousScheduler) FreeCores() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.freeCoresLocked()
}

func (s *ContinuousScheduler) freeCoresLocked() int {
	n := 0
	for _, node := range s.nodes {
		for _, c := range node.Cores {
			if c == CoreFree {
				n++
			}
		}
	}
	return n
}

// Allocate implements spec.md §4.2's two-branch packing policy:
// single-node search when the request fits in one node, else a
// whole-allocation virtual-vector search spanning node boundaries.
func (s *ContinuousScheduler) Allocate(coresRequested, coresPerProcess int) (any, bool) {
	if coresRequested <= 0 {
		return nil, false
	}
	if coresPerProcess <= 0 {
		coresPerProcess = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var picks []corePick
	if coresRequested <= s.coresPerNode {
		picks = s.findSingleNodeRun(coresRequested)
	} else {
		picks = s.findSpanningRun(coresRequested)
	}
	if picks == nil {
		return nil, false
	}

	for _, p := range picks {
		s.nodes[p.nodeIdx].Cores[p.coreIdx] = CoreBusy
	}

	slot := s.materializeSlot(picks, coresPerProcess)
	s.appendHistory(HistoryEntry{Action: "allocate", Slot: slot})
	return slot, true
}

type corePick struct {
	nodeIdx int
	coreIdx int
}

// findSingleNodeRun implements step 1: first node (in LRMS order) with a
// contiguous FREE run of the requested length, searched left-to-right.
func (s *ContinuousScheduler) findSingleNodeRun(n int) []corePick {
	for ni, node := range s.nodes {
		for start := 0; start+n <= len(node.Cores); start++ {
			if allFree(node.Cores[start : start+n]) {
				picks := make([]corePick, n)
				for i := 0; i < n; i++ {
					picks[i] = corePick{nodeIdx: ni, coreIdx: start + i}
				}
				return picks
			}
		}
	}
	return nil
}

// findSpanningRun implements step 2: concatenate every node's cores into
// one virtual vector in node order, find the first contiguous FREE run of
// the requested length, and materialize it as possibly-partial first and
// last nodes plus full middle nodes.
func (s *ContinuousScheduler) findSpanningRun(n int) []corePick {
	var all []corePick
	for ni, node := range s.nodes {
		for ci := range node.Cores {
			all = append(all, corePick{nodeIdx: ni, coreIdx: ci})
		}
	}
	for start := 0; start+n <= len(all); start++ {
		ok := true
		for _, p := range all[start : start+n] {
			if s.nodes[p.nodeIdx].Cores[p.coreIdx] != CoreFree {
				ok = false
				break
			}
		}
		if ok {
			out := make([]corePick, n)
			copy(out, all[start:start+n])
			return out
		}
	}
	return nil
}

func allFree(cores []CoreState) bool {
	for _, c := range cores {
		if c != CoreFree {
			return false
		}
	}
	return true
}

// materializeSlot groups picks by node (preserving node order) and then
// chunks each node's core indices into coresPerProcess-sized groups to
// populate SlotNode.CoreMap.
func (s *ContinuousScheduler) materializeSlot(picks []corePick, coresPerProcess int) *ContinuousSlot {
	byNode := map[int][]int{}
	var order []int
	for _, p := range picks {
		if _, seen := byNode[p.nodeIdx]; !seen {
			order = append(order, p.nodeIdx)
		}
		byNode[p.nodeIdx] = append(byNode[p.nodeIdx], p.coreIdx)
	}

	slotNodes := make([]SlotNode, 0, len(order))
	for _, ni := range order {
		cores := byNode[ni]
		var coreMap [][]int
		for i := 0; i < len(cores); i += coresPerProcess {
			end := i + coresPerProcess
			if end > len(cores) {
				end = len(cores)
			}
			group := make([]int, end-i)
			copy(group, cores[i:end])
			coreMap = append(coreMap, group)
		}
		slotNodes = append(slotNodes, SlotNode{
			Name:    s.nodes[ni].Name,
			UID:     s.nodes[ni].UID,
			CoreMap: coreMap,
		})
	}

	return &ContinuousSlot{
		Nodes:        slotNodes,
		CoresPerNode: s.coresPerNode,
	}
}

// Release marks every core named by slot FREE and appends a compact
// history snapshot (spec.md §4.2).
func (s *ContinuousScheduler) Release(slot any) {
	cs, ok := slot.(*ContinuousSlot)
	if !ok || cs == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nodeByName := make(map[string]int, len(s.nodes))
	for i, n := range s.nodes {
		nodeByName[n.UID] = i
	}

	for _, sn := range cs.Nodes {
		ni, ok := nodeByName[sn.UID]
		if !ok {
			continue
		}
		for _, group := range sn.CoreMap {
			for _, ci := range group {
				if ci >= 0 && ci < len(s.nodes[ni].Cores) {
					s.nodes[ni].Cores[ci] = CoreFree
				}
			}
		}
	}

	s.appendHistory(HistoryEntry{Action: "release", Slot: slot})
}

// appendHistory enforces the 4 MiB cap by overwriting the last entry
// once the budget is exhausted (spec.md §4.2: "overwrite-last when full").
func (s *ContinuousScheduler) appendHistory(e HistoryEntry) {
	size := estimateHistoryEntrySize(e)
	if s.historyBytes+size > maxHistoryBytes && len(s.history) > 0 {
		s.history[len(s.history)-1] = e
		return
	}
	s.history = append(s.history, e)
	s.historyBytes += size
}

func (s *ContinuousScheduler) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// estimateHistoryEntrySize is a cheap, allocation-free proxy for the
// serialized size of an entry: enough cores in a real allocation to make
// the 4 MiB cap meaningful without marshaling on every release.
func estimateHistoryEntrySize(e HistoryEntry) int {
	cs, ok := e.Slot.(*ContinuousSlot)
	if !ok || cs == nil {
		return 64
	}
	n := 0
	for _, sn := range cs.Nodes {
		for _, g := range sn.CoreMap {
			n += len(g)
		}
	}
	return 64 + n*8
}
