// Package nezvm implements a virtual machine for parsing expression
// grammars compiled to the MiniNez bytecode format.
//
// A MiniNez program is a flat array of fixed-width instructions operating
// against one input buffer and one explicit stack. There is no recursive
// descent in the host language: Call and Ret instructions implement
// grammar rule invocation, and Alt/Succ/Fail instructions implement the
// ordered-choice backtracking that distinguishes a PEG from a regular
// grammar. The instruction set has no notion of captures; a match either
// succeeds at a final input position or fails outright.
//
// The three exported building blocks are a Context (owns the input buffer,
// the stack, and the three constant pools produced by loading), a Program
// (the decoded instruction array), and Execute (runs a Program against a
// Context to produce a Result). LoadBytes and Load decode the wire format
// described in the package's loader.go into a Program, populating the
// Context's pools as a side effect.
package nezvm
