package launch

import "fmt"

// poeMethod is IBM LSF's POE launcher. It communicates the host list
// through the LSB_MCPU_HOSTS environment variable rather than a flag
// (spec.md §4.3: `LSB_MCPU_HOSTS="h N …" poe exec args`).
type poeMethod struct {
	path string
}

func newPOE(lookup PathLookup) (Method, error) {
	path, err := resolve(lookup, "poe")
	if err != nil {
		return nil, err
	}
	return &poeMethod{path: path}, nil
}

func (m *poeMethod) Construct(req Request) (Result, error) {
	hosts, err := perHostProcessCounts(req.Slot)
	if err != nil {
		return Result{}, err
	}

	mcpu := ""
	for i, h := range hosts {
		if i > 0 {
			mcpu += " "
		}
		mcpu += fmt.Sprintf("%s %d", h.Name, h.Count)
	}

	cmd := req.CU.Executable
	if args := QuoteArgs(req.CU.Arguments); args != "" {
		cmd = fmt.Sprintf("%s %s", cmd, args)
	}

	outer := fmt.Sprintf(`LSB_MCPU_HOSTS="%s" %s %s`, mcpu, m.path, cmd)
	return Result{OuterCmd: outer}, nil
}
