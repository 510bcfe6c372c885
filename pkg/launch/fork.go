package launch

import "fmt"

// forkMethod is the degenerate launch method: the outer command is just
// the executable and its arguments, run directly (spec.md §4.3).
type forkMethod struct{}

func newFork(_ PathLookup) (Method, error) {
	return forkMethod{}, nil
}

func (forkMethod) Construct(req Request) (Result, error) {
	cmd := req.CU.Executable
	if args := QuoteArgs(req.CU.Arguments); args != "" {
		cmd = fmt.Sprintf("%s %s", cmd, args)
	}
	return Result{OuterCmd: cmd}, nil
}
