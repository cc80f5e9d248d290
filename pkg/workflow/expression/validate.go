package expression

import (
	"regexp"
	"slices"

	"github.com/tombee/stepflow/pkg/template"
)

// Matches steps.id in expr-lang syntax. Step ids may contain hyphens.
var exprStepPattern = regexp.MustCompile(`\bsteps\.([a-zA-Z_][a-zA-Z0-9_-]*)`)

// StepReferences returns the sorted, unique step ids an expression refers
// to, either through {{step.output}} references or steps.id access.
func StepReferences(expression string) []string {
	set := make(map[string]bool)
	for _, ref := range template.References(expression) {
		if !ref.Named {
			set[ref.Root()] = true
		}
	}
	for _, m := range exprStepPattern.FindAllStringSubmatch(expression, -1) {
		set[m[1]] = true
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
