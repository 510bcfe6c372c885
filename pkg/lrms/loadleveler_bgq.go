package lrms

import (
	"fmt"
	"strconv"
	"strings"
)

// bgqCoresPerNode is fixed by the BG/Q compute card: 16 cores, 4-way
// hardware threads not modeled here (spec.md §3 treats cores_per_node as
// the scheduling unit).
const bgqCoresPerNode = 16

// detectLoadLevelerBGQ reads LOADL_BG_BLOCK/LOADL_BG_SIZE/LOADL_JOB_NAME
// and additionally queries the batch scheduler's job-listing command for
// the block's shape and board list, populating a TorusBlock (spec.md
// §4.1: "for LoadLevelerBGQ — additionally parses the block shape and
// board list from the batch scheduler's job-listing command").
func detectLoadLevelerBGQ(env Environment, _ int) (*Result, error) {
	blockID := env.Getenv("LOADL_BG_BLOCK")
	if blockID == "" {
		return nil, missingVar("LOADL_BG_BLOCK")
	}
	sizeStr := env.Getenv("LOADL_BG_SIZE")
	if sizeStr == "" {
		return nil, missingVar("LOADL_BG_SIZE")
	}
	jobName := env.Getenv("LOADL_JOB_NAME")
	if jobName == "" {
		return nil, missingVar("LOADL_JOB_NAME")
	}
	size, err := strconv.Atoi(sizeStr)
	if err != nil || size <= 0 {
		return nil, missingVar("LOADL_BG_SIZE")
	}

	out, err := env.Run("llq", "-l", jobName)
	if err != nil {
		return nil, fmt.Errorf("%w: llq -l %s: %v", ErrMisconfiguredEnvironment, jobName, err)
	}
	shape, boards, err := parseBGQJobListing(out)
	if err != nil {
		return nil, err
	}

	nodes := make([]TorusNode, 0, size)
	for i, board := range boards {
		nodes = append(nodes, TorusNode{
			Index: i,
			Coord: coordFromIndex(i, shape),
			Name:  board,
		})
	}

	block := &TorusBlock{BlockID: blockID, Shape: shape, Nodes: nodes}

	return &Result{
		Nodes:        newNodes(boards, bgqCoresPerNode),
		CoresPerNode: bgqCoresPerNode,
		Torus:        block,
	}, nil
}

// parseBGQJobListing extracts "bg_shape: AxBxCxDxE" and
// "bg_board_list: b1,b2,…" lines from an llq -l listing.
func parseBGQJobListing(out []byte) (Coord, []string, error) {
	var shape Coord
	var boards []string
	haveShape := false

	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "bg_shape:"):
			dims := strings.Split(strings.TrimSpace(strings.TrimPrefix(line, "bg_shape:")), "x")
			if len(dims) != 5 {
				return shape, nil, fmt.Errorf("%w: malformed bg_shape line %q", ErrMisconfiguredEnvironment, line)
			}
			vals := make([]int, 5)
			for i, d := range dims {
				vals[i] = atoiOrZero(d)
			}
			shape = Coord{A: vals[0], B: vals[1], C: vals[2], D: vals[3], E: vals[4]}
			haveShape = true
		case strings.HasPrefix(line, "bg_board_list:"):
			list := strings.TrimSpace(strings.TrimPrefix(line, "bg_board_list:"))
			for _, b := range strings.Split(list, ",") {
				b = strings.TrimSpace(b)
				if b != "" {
					boards = append(boards, b)
				}
			}
		}
	}

	if !haveShape || len(boards) == 0 {
		return shape, nil, fmt.Errorf("%w: llq listing missing bg_shape/bg_board_list", ErrMisconfiguredEnvironment)
	}
	return shape, boards, nil
}

// coordFromIndex derives a node's 5-D coordinate from its linear index in
// row-major (A,B,C,D,E) order within the given block shape.
func coordFromIndex(idx int, shape Coord) Coord {
	dims := [5]int{shape.A, shape.B, shape.C, shape.D, shape.E}
	coords := [5]int{}
	for d := 4; d >= 0; d-- {
		n := dims[d]
		if n <= 0 {
			n = 1
		}
		coords[d] = idx % n
		idx /= n
	}
	return Coord{A: coords[0], B: coords[1], C: coords[2], D: coords[3], E: coords[4]}
}
