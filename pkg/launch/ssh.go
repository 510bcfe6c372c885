package launch

import (
	"fmt"
	"os"
)

// sshMethod runs the generated launch script on the first host of the
// slot over ssh (spec.md §4.3: "ssh HOST script"). The original detects
// an ssh→rsh symlink to decide whether -o StrictHostKeyChecking=no is
// accepted; we detect the same thing by reading the symlink target of the
// resolved ssh path.
type sshMethod struct {
	sshPath string
	isRsh   bool
}

func newSSH(lookup PathLookup) (Method, error) {
	path, err := resolve(lookup, "ssh")
	if err != nil {
		return nil, err
	}
	isRsh := isRshSymlink(path)
	return &sshMethod{sshPath: path, isRsh: isRsh}, nil
}

// isRshSymlink reports whether the resolved "ssh" binary is actually a
// symlink to rsh, as happens on some Cray login nodes.
func isRshSymlink(path string) bool {
	target, err := os.Readlink(path)
	if err != nil {
		return false
	}
	return target == "rsh" || target == "/usr/bin/rsh"
}

func (m *sshMethod) Construct(req Request) (Result, error) {
	hosts, err := perHostProcessCounts(req.Slot)
	if err != nil {
		return Result{}, err
	}
	if len(hosts) == 0 {
		return Result{}, fmt.Errorf("launch: ssh: slot has no nodes")
	}
	host := hosts[0].Name

	var outer string
	if m.isRsh {
		outer = fmt.Sprintf("%s %s %s", m.sshPath, host, req.ScriptHop)
	} else {
		outer = fmt.Sprintf("%s -o StrictHostKeyChecking=no %s %s", m.sshPath, host, req.ScriptHop)
	}

	return Result{OuterCmd: outer}, nil
}
