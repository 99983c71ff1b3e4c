package icinga

import (
	"fmt"
	"strings"
)

// StateFilter is the result of parsing the free-text tail of a status
// command into state predicates and name tokens.
type StateFilter struct {
	// States are compiled state filter expressions, OR-ed when queried.
	States []string
	// Names are the leftover tokens, used for name matching.
	Names []string
	// Invalid lists state keywords that exist but do not apply to the
	// requested kind (e.g. "down" on a service status command).
	Invalid []string
	// All is set when the "all" keyword was present: no default problem
	// predicate is applied.
	All bool
	// Problems is set when the "problems" keyword was present: problem
	// objects are requested regardless of acknowledgement/downtime.
	Problems bool
}

type stateKeyword struct {
	kind  ObjectKind
	state int
}

// Keyword table in the order users encounter them in help output.
var stateKeywords = map[string]stateKeyword{
	"up":          {KindHost, HostUp},
	"down":        {KindHost, HostDown},
	"unreachable": {KindHost, HostUnreachable},
	"ok":          {KindService, ServiceOK},
	"warning":     {KindService, ServiceWarning},
	"critical":    {KindService, ServiceCritical},
	"unknown":     {KindService, ServiceUnknown},
}

var stateAliases = map[string]string{
	"unreach": "unreachable",
	"warn":    "warning",
	"crit":    "critical",
}

// ParseStateFilter splits a status-command message into state filters and
// name tokens for the given object kind. When neither states, names, nor
// the "all" keyword are present, a default "is a problem" predicate is
// returned (host.state != 0 or service.state != 0).
func ParseStateFilter(kind ObjectKind, message string) StateFilter {
	var result StateFilter

	for _, token := range strings.Fields(message) {
		word := strings.ToLower(token)
		if alias, ok := stateAliases[word]; ok {
			word = alias
		}

		switch word {
		case "all":
			result.All = true
			continue
		case "problems":
			result.Problems = true
			continue
		}

		keyword, ok := stateKeywords[word]
		if !ok {
			result.Names = append(result.Names, token)
			continue
		}

		if keyword.kind != kind {
			if !contains(result.Invalid, word) {
				result.Invalid = append(result.Invalid, word)
			}
			continue
		}

		expr := fmt.Sprintf("%s.state == %d", strings.ToLower(string(kind)), keyword.state)
		if !contains(result.States, expr) {
			result.States = append(result.States, expr)
		}
	}

	if len(result.States) == 0 && !result.All && len(result.Names) == 0 {
		result.States = append(result.States, ProblemStateFilter(kind))
	}

	return result
}

// ProblemStateFilter returns the "is a problem" predicate for a kind.
func ProblemStateFilter(kind ObjectKind) string {
	if kind.IsServiceScoped() {
		return "service.state != 0"
	}
	return "host.state != 0"
}

// IsProblemFilter reports whether states consists solely of the default
// problem predicate, used to phrase "no problematic objects found"
// responses.
func IsProblemFilter(states []string) bool {
	return len(states) == 1 &&
		(states[0] == "host.state != 0" || states[0] == "service.state != 0")
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}
