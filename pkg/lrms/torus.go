package lrms

// Coord is a 5-D torus coordinate (A,B,C,D,E), the address space BG/Q
// blocks are laid out in (spec.md §3, "Torus node").
type Coord struct {
	A, B, C, D, E int
}

// TorusStatus is the occupancy of one torus node.
type TorusStatus int

const (
	TorusFree TorusStatus = iota
	TorusBusy
)

// TorusNode is one node of a BG/Q torus block (spec.md §3).
type TorusNode struct {
	Index  int
	Coord  Coord
	Name   string
	Status TorusStatus
}

// TorusBlock is the ordered sequence of torus nodes making up the
// allocated BG/Q block, as discovered from LOADL_BG_BLOCK/LOADL_BG_SIZE
// and the board-list query (spec.md §4.1).
type TorusBlock struct {
	BlockID string
	Shape   Coord
	Nodes   []TorusNode
}
