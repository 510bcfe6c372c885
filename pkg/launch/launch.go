// Package launch translates an allocated slot plus a CU description into
// a concrete command line for a site-specific parallel launcher (spec.md
// §4.3). Each of the ~13 dialects resolves its launcher executable by
// path lookup at configure time, not at spawn time, so a missing launcher
// fails the pilot immediately with a clear cause.
package launch

import (
	"errors"
	"fmt"

	"github.com/hpc-pilot/agent/pkg/cu"
)

// ErrLauncherUnavailable means the launch method's backing executable was
// not found on PATH at configure time (spec.md §4.3 "Discovery").
var ErrLauncherUnavailable = errors.New("launch: launcher executable unavailable")

// PathLookup resolves a launcher's executable name to an absolute path,
// abstracting exec.LookPath so tests can script PATH without touching the
// real filesystem.
type PathLookup func(name string) (string, error)

// Request bundles everything a Method needs to build a command line.
type Request struct {
	CU *cu.Description

	// Slot is the opaque handle minted by the scheduler; each Method
	// type-asserts it to the shape it understands
	// (*scheduler.ContinuousSlot or *scheduler.TorusSlot).
	Slot any

	// NodeList is the full LRMS-discovered node order (not just the
	// nodes in Slot), needed by methods such as IBRUN whose offset
	// arithmetic walks every allocated node (spec.md §9).
	NodeList []string

	CoresPerNode int

	// ScriptHop is the path to the generated launch script; SSH-style
	// methods invoke it as the remote command.
	ScriptHop string

	// BlockID names the BG/Q block the torus slot was carved from, used
	// only by RUNJOB.
	BlockID string
}

// Result is what Method.Construct produces (spec.md §4.3).
type Result struct {
	// OuterCmd is executed on the spawn host.
	OuterCmd string
	// InnerCmd, when HasInner is true, is written into the generated
	// launch script; OuterCmd is then expected to invoke that script.
	InnerCmd string
	HasInner bool
}

// Method is the common operation every launch dialect exposes.
type Method interface {
	Construct(req Request) (Result, error)
}

// Constructor builds a Method, resolving its launcher executable via
// lookup. It returns ErrLauncherUnavailable if the executable cannot be
// found (spec.md §4.3 "Discovery").
type Constructor func(lookup PathLookup) (Method, error)

var registry = map[string]Constructor{
	"FORK":          newFork,
	"SSH":           newSSH,
	"MPIRUN":        newMPIRunFamily("mpirun"),
	"MPIRUN_RSH":    newMPIRunFamily("mpirun_rsh"),
	"MPIEXEC":       newMPIRunFamily("mpiexec"),
	"APRUN":         newAprun,
	"CCMRUN":        newCCMRun,
	"MPIRUN_CCMRUN": newMPIRunCCMRun,
	"DPLACE":        newDPlace,
	"MPIRUN_DPLACE": newMPIRunDPlace,
	"IBRUN":         newIBRun,
	"POE":           newPOE,
	"RUNJOB":        newRunJob,
	"ORTE":          newORTE,
	"ORTE_LIB":      newORTELib,
}

// Lookup resolves a configured launch method name to its Constructor.
func Lookup(name string) (Constructor, error) {
	c, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("launch: unknown launch method %q", name)
	}
	return c, nil
}

// New resolves and constructs the named launch method in one call.
func New(name string, lookup PathLookup) (Method, error) {
	c, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return c(lookup)
}

func resolve(lookup PathLookup, name string) (string, error) {
	path, err := lookup(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrLauncherUnavailable, name, err)
	}
	return path, nil
}
