package cu

import "strings"

// Scheme identifies how a Directive's Source or Target URL should be
// resolved to a local path (spec.md §4.6).
type Scheme string

const (
	SchemeFile      Scheme = "file"
	SchemeStaging   Scheme = "staging"
	SchemePlain     Scheme = "plain" // bare absolute or relative path, no "://"
	SchemeUnhandled Scheme = "unhandled"
)

const (
	prefixFile    = "file://"
	prefixStaging = "staging://"
)

// ParseScheme classifies a staging URL. Any scheme other than file:// and
// staging:// is out of scope for the agent (spec.md §7 Non-goals: "no
// remote file movement implementation, only staging directives") and is
// reported as SchemeUnhandled so the stage-in/out worker can fail the
// directive rather than silently drop it.
func ParseScheme(url string) Scheme {
	switch {
	case strings.HasPrefix(url, prefixFile):
		return SchemeFile
	case strings.HasPrefix(url, prefixStaging):
		return SchemeStaging
	case strings.Contains(url, "://"):
		return SchemeUnhandled
	default:
		return SchemePlain
	}
}

// ResolvePath strips a recognized scheme prefix from url, returning the
// local filesystem path it names. staging:// paths are resolved relative
// to sandbox; file:// and plain paths are returned as-is (already
// absolute, or interpreted relative to the CU's own working directory by
// the caller).
func ResolvePath(url, sandbox string) (path string, scheme Scheme) {
	scheme = ParseScheme(url)
	switch scheme {
	case SchemeFile:
		return strings.TrimPrefix(url, prefixFile), scheme
	case SchemeStaging:
		rel := strings.TrimPrefix(strings.TrimPrefix(url, prefixStaging), "/")
		return joinSandbox(sandbox, rel), scheme
	default:
		return url, scheme
	}
}

func joinSandbox(sandbox, rel string) string {
	if sandbox == "" {
		return rel
	}
	if strings.HasSuffix(sandbox, "/") {
		return sandbox + rel
	}
	return sandbox + "/" + rel
}
