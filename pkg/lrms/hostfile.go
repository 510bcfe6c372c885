package lrms

import (
	"strconv"
	"strings"
)

func splitFields(line string) []string {
	return strings.Fields(line)
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// parseHostLines splits hostfile contents into non-blank, trimmed lines,
// the common shape of PBS_NODEFILE/PE_HOSTFILE/LOADL_HOSTFILE-style files.
func parseHostLines(data []byte) []string {
	var lines []string
	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(raw)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// countRuns collapses a hostfile with one line per slot (a host repeated
// once per core) into an ordered list of (host, count) pairs, preserving
// first-seen order the way LRMS-order determinism requires (spec.md §4.2).
func countRuns(hosts []string) ([]string, map[string]int) {
	var order []string
	counts := make(map[string]int)
	for _, h := range hosts {
		fields := strings.Fields(h)
		name := fields[0]
		if _, seen := counts[name]; !seen {
			order = append(order, name)
		}
		counts[name]++
	}
	return order, counts
}
