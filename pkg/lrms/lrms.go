// Package lrms discovers the compute resources allocated to the pilot by
// reading the batch scheduler's environment variables (spec.md §4.1, §6).
// The adapter is pure with respect to its inputs and runs once at startup.
package lrms

import "fmt"

// CoreState is the occupancy of a single core slot in a Node's core array.
type CoreState int

const (
	CoreFree CoreState = iota
	CoreBusy
)

// LFS describes a node-local filesystem allocation, when the batch system
// reports one.
type LFS struct {
	Path string
	Size int64
}

// Node is one allocated compute node (spec.md §3, "Node").
type Node struct {
	Name  string
	UID   string
	Cores []CoreState
	GPUs  int
	LFS   LFS
}

// Environment abstracts environment-variable and batch-command access so
// every variant can be tested without touching the real OS environment or
// shelling out (spec.md §4.1 "pure w.r.t. its inputs").
type Environment interface {
	// Getenv returns the value of key, or "" if unset, mirroring os.Getenv.
	Getenv(key string) string
	// ReadFile returns the contents of a hostfile-style path.
	ReadFile(path string) ([]byte, error)
	// Run executes a batch-system query command (used only by
	// LoadLevelerBGQ to list block boards) and returns its stdout.
	Run(name string, args ...string) ([]byte, error)
}

// Result is what every LRMS variant produces (spec.md §4.1).
type Result struct {
	Nodes        []Node
	CoresPerNode int
	GPUsPerNode  int

	// Torus is populated only by LoadLevelerBGQ.
	Torus *TorusBlock
}

// TotalCores returns the sum of CoresPerNode over all discovered nodes.
func (r *Result) TotalCores() int {
	return len(r.Nodes) * r.CoresPerNode
}

// Detector discovers (node_list, cores_per_node) for one LRMS variant.
// requestedCores is the agent's configured core count; only Fork (which
// has no batch-system hostfile to size itself from) uses it directly, but
// every variant receives it so AllocationTooSmall can be checked uniformly
// in Discover.
type Detector interface {
	Detect(env Environment, requestedCores int) (*Result, error)
}

// DetectorFunc adapts a plain function to the Detector interface.
type DetectorFunc func(env Environment, requestedCores int) (*Result, error)

func (f DetectorFunc) Detect(env Environment, requestedCores int) (*Result, error) {
	return f(env, requestedCores)
}

var registry = map[string]Detector{
	"Fork":           DetectorFunc(detectFork),
	"Torque":         DetectorFunc(detectTorque),
	"PBSPro":         DetectorFunc(detectPBSPro),
	"Slurm":          DetectorFunc(detectSlurm),
	"SGE":            DetectorFunc(detectSGE),
	"LSF":            DetectorFunc(detectLSF),
	"LoadLeveler":    DetectorFunc(detectLoadLeveler),
	"LoadLevelerBGQ": DetectorFunc(detectLoadLevelerBGQ),
}

// Lookup resolves a configured LRMS variant name to its Detector.
func Lookup(name string) (Detector, error) {
	d, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("lrms: unknown variant %q", name)
	}
	return d, nil
}

// Discover runs the named variant's Detector against env and enforces the
// AllocationTooSmall check common to every variant (spec.md §4.1).
func Discover(name string, env Environment, requestedCores int) (*Result, error) {
	d, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	res, err := d.Detect(env, requestedCores)
	if err != nil {
		return nil, err
	}
	if res.TotalCores() < requestedCores {
		return nil, fmt.Errorf("%w: allocation has %d cores, %d requested",
			ErrAllocationTooSmall, res.TotalCores(), requestedCores)
	}
	return res, nil
}

func newNodes(names []string, coresPerNode int) []Node {
	nodes := make([]Node, len(names))
	for i, name := range names {
		nodes[i] = Node{
			Name:  name,
			UID:   fmt.Sprintf("node.%04d", i),
			Cores: make([]CoreState, coresPerNode),
		}
	}
	return nodes
}
