package catalog

import (
	"regexp"
	"strings"
)

// refPattern matches compose interpolation: ${VAR}, ${VAR:-d}, ${VAR-d},
// ${VAR:?msg}, and ${VAR?msg}.
var refPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?:(:?[-?])([^}]*))?\}`)

// interpolation describes one compose environment value.
type interpolation struct {
	value    string // value with every reference replaced by its default
	hasRefs  bool   // at least one ${...} reference
	required bool   // some reference has no default
}

// interpolate resolves compose references against nothing: each reference
// is replaced by its declared default.  A reference without a default makes
// the variable required, and the value unusable.  `$$` is a literal `$`.
func interpolate(s string) interpolation {
	const escaped = "\x00"
	s = strings.ReplaceAll(s, "$$", escaped)

	var out interpolation
	s = refPattern.ReplaceAllStringFunc(s, func(ref string) string {
		out.hasRefs = true
		m := refPattern.FindStringSubmatch(ref)
		op, def := m[2], m[3]
		switch op {
		case ":-", "-":
			return def
		default:
			out.required = true
			return ""
		}
	})
	out.value = strings.ReplaceAll(s, escaped, "$")
	return out
}
