package nezvm

// Result is the outcome of running a Program against a Context.
type Result struct {
	// Matched reports whether the grammar's top-level rule accepted the
	// input, i.e. whether execution reached Exit(1) rather than Exit(0).
	Matched bool

	// Pos is the input position execution stopped at: how far a
	// successful match consumed. A failed match that reaches the synthetic
	// Exit(0) reports the position saved in the initial failure frame,
	// which is 0.
	Pos int
}
