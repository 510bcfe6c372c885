package scheduler

import (
	"sync"

	"github.com/hpc-pilot/agent/pkg/lrms"
)

// SupportedSubBlockSizes are the node counts a BG/Q sub-block may take
// (spec.md §3, "Slot (opaque)" torus shape).
var SupportedSubBlockSizes = []int{1, 2, 4, 8, 16, 32, 64, 128, 256, 512}

// subBlockShapes maps a supported node count to the (A,B,C,D,E) shape the
// allocator reports for it. The table grows each dimension in turn as the
// size doubles, the conventional BG/Q sub-block factoring.
var subBlockShapes = map[int]lrms.Coord{
	1:   {A: 1, B: 1, C: 1, D: 1, E: 1},
	2:   {A: 2, B: 1, C: 1, D: 1, E: 1},
	4:   {A: 2, B: 2, C: 1, D: 1, E: 1},
	8:   {A: 2, B: 2, C: 2, D: 1, E: 1},
	16:  {A: 2, B: 2, C: 2, D: 2, E: 1},
	32:  {A: 2, B: 2, C: 2, D: 2, E: 2},
	64:  {A: 4, B: 2, C: 2, D: 2, E: 2},
	128: {A: 4, B: 4, C: 2, D: 2, E: 2},
	256: {A: 4, B: 4, C: 4, D: 2, E: 2},
	512: {A: 4, B: 4, C: 4, D: 4, E: 2},
}

func isSupportedSubBlockSize(n int) bool {
	for _, s := range SupportedSubBlockSizes {
		if s == n {
			return true
		}
	}
	return false
}

// TorusSlot is the opaque handle returned by TorusScheduler.Allocate
// (spec.md §3, torus slot shape).
type TorusSlot struct {
	Corner lrms.Coord
	Shape  lrms.Coord
	// nodeIndices names the torus nodes covered by this slot, in block
	// order, so Release can free exactly those entries without having to
	// re-derive them from Corner/Shape against an irregular board layout.
	nodeIndices []int
}

// TorusScheduler implements the BG/Q sub-block allocator of spec.md §4.2.
type TorusScheduler struct {
	mu           sync.Mutex
	block        []lrms.TorusNode
	coresPerNode int
	history      []HistoryEntry
	historyBytes int
}

// NewTorus builds a scheduler over the nodes of block, each contributing
// coresPerNode cores to the total.
func NewTorus(block []lrms.TorusNode, coresPerNode int) *TorusScheduler {
	nodes := make([]lrms.TorusNode, len(block))
	copy(nodes, block)
	return &TorusScheduler{block: nodes, coresPerNode: coresPerNode}
}

func (s *TorusScheduler) TotalCores() int {
	return len(s.block) * s.coresPerNode
}

func (s *TorusScheduler) FreeCores() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, node := range s.block {
		if node.Status == lrms.TorusFree {
			n++
		}
	}
	return n * s.coresPerNode
}

// Allocate implements spec.md §4.2's torus policy: round the request up
// to a whole number of nodes, reject unsupported sizes, then scan the
// block in fixed-size windows for the first all-FREE window.
func (s *TorusScheduler) Allocate(coresRequested, _ int) (any, bool) {
	if coresRequested <= 0 || s.coresPerNode <= 0 {
		return nil, false
	}
	numNodes := (coresRequested + s.coresPerNode - 1) / s.coresPerNode
	if !isSupportedSubBlockSize(numNodes) {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for start := 0; start+numNodes <= len(s.block); start += numNodes {
		window := s.block[start : start+numNodes]
		if allTorusFree(window) {
			indices := make([]int, numNodes)
			for i, n := range window {
				indices[i] = n.Index
				s.block[start+i].Status = lrms.TorusBusy
			}
			slot := &TorusSlot{
				Corner:      window[0].Coord,
				Shape:       subBlockShapes[numNodes],
				nodeIndices: indices,
			}
			s.appendHistory(HistoryEntry{Action: "allocate", Slot: slot})
			return slot, true
		}
	}
	return nil, false
}

func allTorusFree(nodes []lrms.TorusNode) bool {
	for _, n := range nodes {
		if n.Status != lrms.TorusFree {
			return false
		}
	}
	return true
}

// Release frees the nodeCount-sized window named by slot (spec.md §4.2:
// "compute offset from corner; free shape-node-count consecutive
// entries").
func (s *TorusScheduler) Release(slot any) {
	ts, ok := slot.(*TorusSlot)
	if !ok || ts == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byIndex := make(map[int]int, len(s.block))
	for i, n := range s.block {
		byIndex[n.Index] = i
	}
	for _, idx := range ts.nodeIndices {
		if pos, ok := byIndex[idx]; ok {
			s.block[pos].Status = lrms.TorusFree
		}
	}
	s.appendHistory(HistoryEntry{Action: "release", Slot: slot})
}

func (s *TorusScheduler) appendHistory(e HistoryEntry) {
	size := 64 + len(e.Slot.(*TorusSlot).nodeIndices)*8
	if s.historyBytes+size > maxHistoryBytes && len(s.history) > 0 {
		s.history[len(s.history)-1] = e
		return
	}
	s.history = append(s.history, e)
	s.historyBytes += size
}

func (s *TorusScheduler) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// ShapeNodeCount returns the number of nodes a given shape occupies,
// the product of its five dimensions.
func ShapeNodeCount(shape lrms.Coord) int {
	return shape.A * shape.B * shape.C * shape.D * shape.E
}
