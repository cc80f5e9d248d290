// Package workflow implements the stepflow execution engine.
//
// A program is a flat, ordered list of steps. Block constructs such as loops
// and branches are expressed with paired start/end marker steps that share a
// pairing id. The executor walks the list with a program counter, resolves
// each step's parameters against upstream outputs and named variables, runs
// the step's action and interprets the result: outputs are recorded, control
// signals move the program counter, and failures are handled by the step's
// error policy.
package workflow
