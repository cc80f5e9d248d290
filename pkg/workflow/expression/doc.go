// Package expression evaluates condition and arithmetic expressions for
// stepflow steps.
//
// It uses the expr-lang/expr library. Before evaluation, template
// references such as {{check.count}} or [[total]] are replaced with expr
// literals of their resolved values, so expressions can mix both styles:
//
//	{{check.count}} > 3 && [[mode]] == "strict"
//	steps.check.count > 3 && vars.mode == "strict"
//	has(vars.tags, "urgent")
//
// The environment exposes recorded step outputs under "steps", named
// variables under "vars" and, for convenience, each named variable at the
// top level when its name does not collide with a builtin.
//
// Custom functions: has(collection, element) and its alias includes(),
// length(collection). The expr library reserves "contains" as a string
// operator.
//
// Compiled programs are cached by the Evaluator.
package expression
