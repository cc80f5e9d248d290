package workflow

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/tombee/stepflow/pkg/template"
	"github.com/tombee/stepflow/pkg/value"
	"github.com/tombee/stepflow/pkg/workflow/expression"
)

// Severity grades a lint issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a problem found by Lint. Unlike Validate, lint findings do not
// prevent a program from running.
type Issue struct {
	Severity  Severity `json:"severity" yaml:"severity"`
	StepIndex int      `json:"step_index" yaml:"step_index"`
	StepID    string   `json:"step_id" yaml:"step_id"`
	Field     string   `json:"field,omitempty" yaml:"field,omitempty"`
	Message   string   `json:"message" yaml:"message"`
}

func (i Issue) String() string {
	loc := i.StepID
	if i.Field != "" {
		loc += "." + i.Field
	}
	return fmt.Sprintf("%s: %s: %s", i.Severity, loc, i.Message)
}

// Lint checks a program against an action registry: unknown modules,
// references to unknown or later steps, and expression syntax. When types
// is set, property paths on references are checked against the declared
// output types.
func (p *Program) Lint(reg *Registry, types *value.Registry) []Issue {
	var issues []Issue
	add := func(sev Severity, idx int, field, format string, args ...any) {
		issues = append(issues, Issue{
			Severity:  sev,
			StepIndex: idx,
			StepID:    p.Steps[idx].ID,
			Field:     field,
			Message:   fmt.Sprintf(format, args...),
		})
	}

	steps := p.BoundSteps(reg)
	index := make(map[string]int, len(steps))
	for i, s := range steps {
		index[s.ID] = i
	}

	for i := range steps {
		step := &steps[i]
		action, known := reg.Get(step.ModuleID)
		if !known {
			add(SeverityWarning, i, "module", "unknown module %s; the step will be skipped", step.ModuleID)
		}

		inputs := make(map[string]InputDefinition)
		if known {
			for _, in := range action.Inputs() {
				inputs[in.ID] = in
			}
		}

		keys := make([]string, 0, len(step.Parameters))
		for k := range step.Parameters {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			if IsPolicyParameter(key) {
				continue
			}
			raw, ok := step.Parameters[key].(string)
			if !ok {
				continue
			}

			if in, ok := inputs[key]; ok && in.Expression {
				if err := expression.Check(raw); err != nil {
					add(SeverityError, i, key, "invalid expression: %v", err)
				}
				for _, id := range expression.StepReferences(raw) {
					if _, ok := index[id]; !ok {
						add(SeverityError, i, key, "expression references unknown step %s", id)
					}
				}
				continue
			}

			for _, ref := range template.References(raw) {
				if ref.Named {
					continue
				}
				target, ok := index[ref.Root()]
				if !ok {
					add(SeverityError, i, key, "reference %s names unknown step %s", ref.Raw, ref.Root())
					continue
				}
				if target >= i && !enclosesLoop(steps, target, i) {
					add(SeverityWarning, i, key, "reference %s names a step that has not run yet", ref.Raw)
				}
				if types != nil {
					if msg := checkReferenceType(reg, types, &steps[target], ref, inputs[key]); msg != "" {
						add(SeverityWarning, i, key, "%s", msg)
					}
				}
			}
		}
	}
	return issues
}

// enclosesLoop reports whether the loop start at start contains pos, in
// which case referencing the loop's own outputs is fine.
func enclosesLoop(steps []Step, start, pos int) bool {
	b := steps[start].Block
	if b == nil || b.Type != BlockStart || !b.Loop {
		return false
	}
	end := FindBlockEnd(steps, start, b.PairingID)
	return start < pos && (end < 0 || pos <= end)
}

func checkReferenceType(reg *Registry, types *value.Registry, target *Step, ref template.Reference, input InputDefinition) string {
	if len(ref.Path) < 2 {
		return fmt.Sprintf("reference %s has no output name", ref.Raw)
	}
	action, ok := reg.Get(target.ModuleID)
	if !ok {
		return ""
	}

	outputs := action.Outputs(target)
	idx := slices.IndexFunc(outputs, func(o OutputDefinition) bool { return o.ID == ref.Path[1] })
	if idx < 0 {
		// skipped failures record error and success on any step
		if len(outputs) == 0 || ref.Path[1] == "error" || ref.Path[1] == "success" {
			return ""
		}
		return fmt.Sprintf("step %s has no output %s (outputs: %s)",
			target.ID, ref.Path[1], strings.Join(OutputIDs(outputs), ", "))
	}

	typeID := outputs[idx].TypeID
	for _, prop := range ref.Path[2:] {
		if t := types.PropertyType(typeID, prop); t != nil {
			typeID = t.ID
			continue
		}
		switch {
		case typeID == value.TypeAny, typeID == value.TypeList, typeID == value.TypeDictionary:
			// element and key types are only known at runtime
			typeID = value.TypeAny
		case typeID == value.TypeString && isIndexOrSlice(prop):
		default:
			return fmt.Sprintf("reference %s: %s has no property %s", ref.Raw, types.Type(typeID).Name, prop)
		}
	}

	if len(input.Accepted) > 0 && typeID != value.TypeAny && !slices.Contains(input.Accepted, typeID) &&
		!types.IsTypeOrAnyPropertyAccepted(typeID, input.Accepted) {
		return fmt.Sprintf("reference %s has type %s, input accepts %s",
			ref.Raw, types.Type(typeID).Name, strings.Join(input.Accepted, ", "))
	}
	return ""
}

func isIndexOrSlice(prop string) bool {
	if strings.Contains(prop, ":") {
		return true
	}
	_, err := strconv.Atoi(prop)
	return err == nil
}
