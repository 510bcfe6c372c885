package launch

import "strings"

// QuoteArg applies the single quoting rule shared by every launch method
// (spec.md §4.3, "Argument quoting"): empty arguments are dropped, each
// remaining argument is double-quoted after escaping embedded double
// quotes, and an argument already wrapped in single quotes is passed
// verbatim (the caller has taken responsibility for its own quoting).
func QuoteArg(arg string) (quoted string, keep bool) {
	if arg == "" {
		return "", false
	}
	if len(arg) >= 2 && arg[0] == '\'' && arg[len(arg)-1] == '\'' {
		return arg, true
	}
	escaped := strings.ReplaceAll(arg, `"`, `\"`)
	return `"` + escaped + `"`, true
}

// QuoteArgs joins args per QuoteArg's rule, dropping empty arguments and
// separating survivors with a single space.
func QuoteArgs(args []string) string {
	var parts []string
	for _, a := range args {
		if q, keep := QuoteArg(a); keep {
			parts = append(parts, q)
		}
	}
	return strings.Join(parts, " ")
}
