package workflow

import (
	"github.com/tombee/stepflow/pkg/template"
	"github.com/tombee/stepflow/pkg/value"
)

// Resolve resolves a parameter literal against the current outputs and
// named variables. A pure {{step.output}} or [[name]] reference yields the
// recorded value itself, walking any further path parts as properties.
// Text mixing literals and references yields a String with Null rendered
// as empty text. Anything else is returned as its literal value.
func (ec *ExecutionContext) Resolve(raw any) value.Value {
	s, ok := raw.(string)
	if !ok {
		return value.From(raw)
	}

	ref, kind := template.Classify(s)
	switch kind {
	case template.KindMagic, template.KindNamed:
		return ec.Lookup(ref)
	}
	// Render also unescapes text whose only openers are escaped.
	return value.String(ec.Render(s))
}

// Render substitutes every reference in s with the string form of its value.
func (ec *ExecutionContext) Render(s string) string {
	if !template.HasReference(s) {
		return s
	}
	return template.Render(template.Parse(s), func(ref template.Reference) string {
		return ec.Lookup(ref).AsString()
	})
}

// Lookup resolves a single reference. Unresolvable references are Null.
func (ec *ExecutionContext) Lookup(ref template.Reference) value.Value {
	if ref.Named {
		if len(ref.Path) == 0 {
			return value.Null
		}
		v, ok := ec.Named[ref.Path[0]]
		if !ok {
			return value.Null
		}
		if len(ref.Path) == 1 {
			return v
		}
		return value.Walk(v, ref.Path[1:])
	}

	if len(ref.Path) < 2 {
		return value.Null
	}
	v, ok := ec.StepOutputs[ref.Path[0]][ref.Path[1]]
	if !ok {
		return value.Null
	}
	if len(ref.Path) == 2 {
		return v
	}
	return value.Walk(v, ref.Path[2:])
}

// resolveParameters fills Magic for every parameter that contains a
// reference. Parameters named in skip are left for the action to
// interpret, which is how expression inputs keep their raw text.
func (ec *ExecutionContext) resolveParameters(skip map[string]bool) {
	for key, raw := range ec.Parameters {
		if skip[key] {
			continue
		}
		s, ok := raw.(string)
		if !ok || !template.HasReference(s) {
			continue
		}
		ec.Magic[key] = ec.Resolve(s)
	}
}
