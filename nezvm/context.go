package nezvm

import (
	"log"
	"os"

	"github.com/chronos-tachyon/mininez/byteset"
)

// DefaultStackCapacity bounds the depth of a Context's stack when Options
// omits one, matching the original interpreter's fixed CONTEXT_MAX_STACK_LENGTH.
const DefaultStackCapacity = 1024

// Options configures a Context. A nil Options is equivalent to the zero
// value: default stack capacity, no trace logging.
type Options struct {
	// StackCapacity bounds the number of frames the VM stack may hold.
	// Zero or negative means DefaultStackCapacity.
	StackCapacity int

	// Trace, when non-nil, receives one line per executed instruction
	// plus one line per Label instruction encountered, in the style of
	// the original interpreter's debug trace.
	Trace *log.Logger
}

// Context owns one input buffer, its VM stack, and the three constant
// pools a loaded Program refers to by index. A Context is good for at
// most one call to Execute; running a second Program (or the same one
// again) against it returns ErrContextReused.
type Context struct {
	input []byte // original bytes plus one appended NUL sentinel
	pos   int

	names   []string
	sets    []byteset.Matcher
	strings [][]byte
	version byte

	entries  []stackEntry
	curFail  int
	capacity int

	trace    *log.Logger
	executed bool
}

// NewContext wraps input for execution. The input is copied and a NUL
// sentinel is appended, so reading the byte at the current position is
// always in bounds: Any and NByte use a compare against that byte as their
// end-of-input check, while Byte, Set, OSet and RSet also compare the
// position against the sentinel's index so they never consume the sentinel.
func NewContext(input []byte, opts *Options) *Context {
	capacity := DefaultStackCapacity
	var trace *log.Logger
	if opts != nil {
		if opts.StackCapacity > 0 {
			capacity = opts.StackCapacity
		}
		trace = opts.Trace
	}
	buf := make([]byte, len(input)+1)
	copy(buf, input)
	return &Context{
		input:    buf,
		capacity: capacity,
		trace:    trace,
	}
}

// NewContextFromFile reads path and wraps its contents as in NewContext. A
// read failure is returned as a *LoadError wrapping the I/O error.
func NewContextFromFile(path string, opts *Options) (*Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Err: err, Offset: 0}
	}
	return NewContext(data, opts), nil
}

// Pos returns the input position Execute last stopped at. Before the
// first Execute call it is zero.
func (ctx *Context) Pos() int { return ctx.pos }

// Names, Sets, and Strings expose the constant pools a Load call
// populated, mainly so a disassembler or diagnostic tool can render them.
func (ctx *Context) Names() []string         { return ctx.names }
func (ctx *Context) Sets() []byteset.Matcher { return ctx.sets }
func (ctx *Context) Strings() [][]byte       { return ctx.strings }

// Version returns the bytecode file's version byte, as recorded by the
// most recent Load/LoadBytes call. The format is not known to be versioned
// in a way that changes decoding, so the loader accepts any value here
// without comparing it against an expected constant.
func (ctx *Context) Version() byte { return ctx.version }

func (ctx *Context) stringAt(idx, pc, pos int) ([]byte, error) {
	if idx < 0 || idx >= len(ctx.strings) {
		return nil, &FatalRuntimeError{Err: ErrPoolIndexRange, PC: pc, Pos: pos}
	}
	return ctx.strings[idx], nil
}

func (ctx *Context) setAt(idx, pc, pos int) (byteset.Matcher, error) {
	if idx < 0 || idx >= len(ctx.sets) {
		return nil, &FatalRuntimeError{Err: ErrPoolIndexRange, PC: pc, Pos: pos}
	}
	return ctx.sets[idx], nil
}
