package lrms

import (
	"strconv"
	"strings"
)

// Slurm parses the compact SLURM_NODELIST hostlist syntax
// (e.g. "node[001-003,007]") plus the per-node core count from
// SLURM_CPUS_ON_NODE (spec.md §6).
func detectSlurm(env Environment, _ int) (*Result, error) {
	for _, name := range []string{"SLURM_NODELIST", "SLURM_NPROCS", "SLURM_NNODES", "SLURM_CPUS_ON_NODE"} {
		if env.Getenv(name) == "" {
			return nil, missingVar(name)
		}
	}

	names, err := expandSlurmNodelist(env.Getenv("SLURM_NODELIST"))
	if err != nil {
		return nil, err
	}

	cpn, err := strconv.Atoi(env.Getenv("SLURM_CPUS_ON_NODE"))
	if err != nil || cpn <= 0 {
		return nil, missingVar("SLURM_CPUS_ON_NODE")
	}

	return &Result{
		Nodes:        newNodes(names, cpn),
		CoresPerNode: cpn,
	}, nil
}

// expandSlurmNodelist expands a SLURM hostlist of the form
// "prefix[001-003,007],other" into individual hostnames. It handles the
// common bracketed-range grammar; a bare comma-separated list of full
// names (no brackets) is also accepted.
func expandSlurmNodelist(spec string) ([]string, error) {
	var out []string
	for _, group := range splitTopLevel(spec) {
		open := strings.Index(group, "[")
		if open == -1 {
			out = append(out, group)
			continue
		}
		closeIdx := strings.LastIndex(group, "]")
		if closeIdx == -1 || closeIdx < open {
			return nil, missingVar("SLURM_NODELIST")
		}
		prefix := group[:open]
		body := group[open+1 : closeIdx]
		for _, part := range strings.Split(body, ",") {
			if dash := strings.Index(part, "-"); dash != -1 {
				lo, hi := part[:dash], part[dash+1:]
				loN, err1 := strconv.Atoi(lo)
				hiN, err2 := strconv.Atoi(hi)
				if err1 != nil || err2 != nil {
					return nil, missingVar("SLURM_NODELIST")
				}
				width := len(lo)
				for n := loN; n <= hiN; n++ {
					out = append(out, prefix+padNumber(n, width))
				}
			} else {
				out = append(out, prefix+part)
			}
		}
	}
	return out, nil
}

// splitTopLevel splits on commas that are not inside a bracketed range.
func splitTopLevel(spec string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range spec {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, spec[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, spec[start:])
	return parts
}

func padNumber(n, width int) string {
	s := strconv.Itoa(n)
	for len(s) < width {
		s = "0" + s
	}
	return s
}
