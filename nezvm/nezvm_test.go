package nezvm

import (
	"errors"
	"testing"
	"testing/quick"

	"github.com/chronos-tachyon/mininez/byteset"
)

func mustLoad(t *testing.T, ctx *Context, asm *Assembler) *Program {
	t.Helper()
	data, err := asm.Encode()
	if err != nil {
		t.Fatalf("%s: Encode: %v", t.Name(), err)
	}
	prog, err := LoadBytes(ctx, data, "")
	if err != nil {
		t.Fatalf("%s: LoadBytes: %v", t.Name(), err)
	}
	return prog
}

func run(t *testing.T, input string, asm *Assembler) Result {
	t.Helper()
	ctx := NewContext([]byte(input), nil)
	prog := mustLoad(t, ctx, asm)
	res, err := Execute(ctx, prog)
	if err != nil {
		t.Fatalf("%s: Execute: %v", t.Name(), err)
	}
	return res
}

// S1 - single byte match.
func TestScenario_SingleByteMatch(t *testing.T) {
	asm := func() *Assembler { return NewAssembler().Byte('a').Ret() }
	if res := run(t, "a", asm()); !res.Matched || res.Pos != 1 {
		t.Errorf("%s: got %+v, want matched pos=1", t.Name(), res)
	}
}

// S2 - failure.
func TestScenario_Failure(t *testing.T) {
	asm := func() *Assembler { return NewAssembler().Byte('a').Ret() }
	if res := run(t, "b", asm()); res.Matched {
		t.Errorf("%s: got %+v, want no match", t.Name(), res)
	}
}

// S3 - ordered choice falls through: 'a' / 'b'.
func TestScenario_OrderedChoice(t *testing.T) {
	build := func() *Assembler {
		return NewAssembler().
			Alt("L1").
			Byte('a').
			Succ().
			Jump("L2").
			Mark("L1").Byte('b').
			Mark("L2").Ret()
	}

	if res := run(t, "a", build()); !res.Matched || res.Pos != 1 {
		t.Errorf(`%s: input "a": got %+v, want matched pos=1`, t.Name(), res)
	}
	if res := run(t, "b", build()); !res.Matched || res.Pos != 1 {
		t.Errorf(`%s: input "b": got %+v, want matched pos=1`, t.Name(), res)
	}
	if res := run(t, "c", build()); res.Matched {
		t.Errorf(`%s: input "c": got %+v, want no match`, t.Name(), res)
	}
}

// S4 - greedy class.
func TestScenario_GreedyClass(t *testing.T) {
	digits := byteset.Ranges(byteset.Range{Lo: '0', Hi: '9'})
	build := func() *Assembler { return NewAssembler().RSet(digits).Ret() }
	if res := run(t, "123abc", build()); !res.Matched || res.Pos != 3 {
		t.Errorf("%s: got %+v, want matched pos=3", t.Name(), res)
	}
}

// S5 - zero-progress guarded: *-style loop over an empty alternative
// terminates rather than looping forever.
func TestScenario_ZeroProgressGuarded(t *testing.T) {
	build := func() *Assembler {
		return NewAssembler().
			Mark("loop").Alt("exit").
			Nop().
			Skip("loop").
			Mark("exit").Ret()
	}
	for _, input := range []string{"", "anything"} {
		res := run(t, input, build())
		if !res.Matched || res.Pos != 0 {
			t.Errorf("%s: input %q: got %+v, want matched pos=0", t.Name(), input, res)
		}
	}
}

// S6 - call/return.
func TestScenario_CallReturn(t *testing.T) {
	build := func() *Assembler {
		return NewAssembler().
			Call("R").
			Call("R").
			Ret().
			Mark("R").Byte('x').Ret()
	}
	if res := run(t, "xx", build()); !res.Matched || res.Pos != 2 {
		t.Errorf(`%s: input "xx": got %+v, want matched pos=2`, t.Name(), res)
	}
	if res := run(t, "x", build()); res.Matched {
		t.Errorf(`%s: input "x": got %+v, want no match`, t.Name(), res)
	}
}

func TestExecute_ContextReused(t *testing.T) {
	ctx := NewContext([]byte("a"), nil)
	prog := mustLoad(t, ctx, NewAssembler().Byte('a').Ret())
	if _, err := Execute(ctx, prog); err != nil {
		t.Fatalf("%s: first Execute: %v", t.Name(), err)
	}
	if _, err := Execute(ctx, prog); !errors.Is(err, ErrContextReused) {
		t.Errorf("%s: second Execute: got %v, want ErrContextReused", t.Name(), err)
	}
}

func TestExecute_StackOverflow(t *testing.T) {
	asm := NewAssembler()
	for i := 0; i < 8; i++ {
		asm.Alt("never")
	}
	asm.Fail().Mark("never").Ret()

	ctx := NewContext([]byte(""), &Options{StackCapacity: 4})
	prog := mustLoad(t, ctx, asm)
	_, err := Execute(ctx, prog)
	var rerr *FatalRuntimeError
	if !errors.As(err, &rerr) || !errors.Is(err, ErrStackOverflow) {
		t.Fatalf("%s: got %v, want FatalRuntimeError wrapping ErrStackOverflow", t.Name(), err)
	}
}

func TestLoadBytes_BadMagic(t *testing.T) {
	data, err := NewAssembler().Ret().Encode()
	if err != nil {
		t.Fatalf("%s: Encode: %v", t.Name(), err)
	}
	data[0] = 'X'
	ctx := NewContext(nil, nil)
	if _, err := LoadBytes(ctx, data, ""); !errors.Is(err, ErrBadMagic) {
		t.Errorf("%s: got %v, want ErrBadMagic", t.Name(), err)
	}
}

func TestLoadBytes_Truncated(t *testing.T) {
	data, err := NewAssembler().Byte('a').Ret().Encode()
	if err != nil {
		t.Fatalf("%s: Encode: %v", t.Name(), err)
	}
	ctx := NewContext(nil, nil)
	if _, err := LoadBytes(ctx, data[:len(data)-1], ""); !errors.Is(err, ErrTruncated) {
		t.Errorf("%s: got %v, want ErrTruncated", t.Name(), err)
	}
}

func TestLoadBytes_LegacyJumpBitRejected(t *testing.T) {
	data, err := NewAssembler().Byte('a').Ret().Encode()
	if err != nil {
		t.Fatalf("%s: Encode: %v", t.Name(), err)
	}
	// Instructions are the last 3 bytes: Byte-opcode, 'a', Ret-opcode.
	byteOpIdx := len(data) - 3
	data[byteOpIdx] |= 0x80
	ctx := NewContext(nil, nil)
	if _, err := LoadBytes(ctx, data, ""); !errors.Is(err, ErrLegacyJumpBit) {
		t.Errorf("%s: got %v, want ErrLegacyJumpBit", t.Name(), err)
	}
}

func TestLoadBytes_ReservedFieldNonZero(t *testing.T) {
	data, err := NewAssembler().Ret().Encode()
	if err != nil {
		t.Fatalf("%s: Encode: %v", t.Name(), err)
	}
	// The last byte is the Ret opcode; the two bytes before it are
	// symbolTableSize, preceded by the two of tagTableSize. Either one
	// nonzero is a LoadError; this sets symbolTableSize's low byte.
	data[len(data)-2] = 0x01
	ctx := NewContext(nil, nil)
	if _, err := LoadBytes(ctx, data, ""); !errors.Is(err, ErrReservedNonZero) {
		t.Errorf("%s: got %v, want ErrReservedNonZero", t.Name(), err)
	}
}

func TestLoadBytes_BranchTargetOutOfRange(t *testing.T) {
	asm := NewAssembler()
	asm.Jump("nowhere")
	asm.Mark("nowhere").Ret()
	data, err := asm.Encode()
	if err != nil {
		t.Fatalf("%s: Encode: %v", t.Name(), err)
	}
	// The Jump's 24-bit displacement is the 3 bytes right after its
	// opcode byte, which is the first instruction byte in this program.
	headerLen := len(data) - 4 /* Jump op + 3-byte disp */ - 1 /* Ret op */
	data[headerLen+1] = 0xff
	data[headerLen+2] = 0xff
	data[headerLen+3] = 0xff
	ctx := NewContext(nil, nil)
	if _, err := LoadBytes(ctx, data, ""); !errors.Is(err, ErrBranchTargetRange) {
		t.Errorf("%s: got %v, want ErrBranchTargetRange", t.Name(), err)
	}
}

func TestLoadBytes_RoundTrip(t *testing.T) {
	builders := []func() *Assembler{
		func() *Assembler { return NewAssembler().Byte('a').Ret() },
		func() *Assembler {
			return NewAssembler().
				Alt("L1").Byte('a').Succ().Jump("L2").
				Mark("L1").Byte('b').
				Mark("L2").Ret()
		},
		func() *Assembler {
			digits := byteset.Ranges(byteset.Range{Lo: '0', Hi: '9'})
			return NewAssembler().RSet(digits).Str([]byte("end")).Ret()
		},
	}

	for i, build := range builders {
		data, err := build().Encode()
		if err != nil {
			t.Fatalf("%s[%d]: Encode: %v", t.Name(), i, err)
		}
		ctx := NewContext(nil, nil)
		prog, err := LoadBytes(ctx, data, "")
		if err != nil {
			t.Fatalf("%s[%d]: LoadBytes: %v", t.Name(), i, err)
		}
		again := EncodeProgram(ctx, prog)
		if !bytesEqual(data, again) {
			t.Errorf("%s[%d]: round trip mismatch:\n  original: % x\n  re-encoded: % x", t.Name(), i, data, again)
		}
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// quickRun is like run but reports failures through the bool return value
// instead of t.Fatalf, since testing/quick's generated-input functions run
// in the same goroutine as the test and a FailNow there would abort the
// whole property check instead of just the one trial.
func quickRun(t *testing.T, input string, asm *Assembler) (Result, bool) {
	data, err := asm.Encode()
	if err != nil {
		t.Logf("Encode: %v", err)
		return Result{}, false
	}
	ctx := NewContext([]byte(input), nil)
	prog, err := LoadBytes(ctx, data, "")
	if err != nil {
		t.Logf("LoadBytes: %v", err)
		return Result{}, false
	}
	res, err := Execute(ctx, prog)
	if err != nil {
		t.Logf("Execute: %v", err)
		return Result{}, false
	}
	return res, true
}

// TestProperty_PosWithinInputBounds checks invariant 2: 0 <= pos <=
// input_size holds for the result of any execution, for any input.
func TestProperty_PosWithinInputBounds(t *testing.T) {
	digits := byteset.Ranges(byteset.Range{Lo: '0', Hi: '9'})
	prop := func(input string) bool {
		res, ok := quickRun(t, input, NewAssembler().RSet(digits).Ret())
		if !ok {
			return false
		}
		return res.Pos >= 0 && res.Pos <= len(input)
	}
	if err := quick.Check(prop, nil); err != nil {
		t.Error(err)
	}
}

// TestProperty_CallReturnSymmetry checks invariant 4: after Ret, control
// resumes at the index pushed by the matching Call, by exercising a
// two-level Call/Call/Ret grammar against arbitrary input and comparing
// the observed outcome to the grammar's own semantics ("xx" prefix).
func TestProperty_CallReturnSymmetry(t *testing.T) {
	build := func() *Assembler {
		return NewAssembler().
			Call("R").
			Call("R").
			Ret().
			Mark("R").Byte('x').Ret()
	}
	prop := func(input string) bool {
		res, ok := quickRun(t, input, build())
		if !ok {
			return false
		}
		wantMatch := len(input) >= 2 && input[0] == 'x' && input[1] == 'x'
		if res.Matched != wantMatch {
			return false
		}
		if wantMatch && res.Pos != 2 {
			return false
		}
		return true
	}
	if err := quick.Check(prop, nil); err != nil {
		t.Error(err)
	}
}

// TestProperty_Idempotent checks invariant 6: running Execute twice
// against freshly built Contexts with identical input yields identical
// results.
func TestProperty_Idempotent(t *testing.T) {
	build := func() *Assembler {
		return NewAssembler().
			Alt("L1").Byte('a').Succ().Jump("L2").
			Mark("L1").Byte('b').
			Mark("L2").Ret()
	}
	prop := func(input string) bool {
		r1, ok1 := quickRun(t, input, build())
		r2, ok2 := quickRun(t, input, build())
		return ok1 && ok2 && r1 == r2
	}
	if err := quick.Check(prop, nil); err != nil {
		t.Error(err)
	}
}

// TestProperty_StackDepthBound checks invariant 3: a program pushing n Alt
// frames succeeds iff n is within the Context's stack capacity, and fails
// with ErrStackOverflow otherwise, for n drawn from a broad range.
func TestProperty_StackDepthBound(t *testing.T) {
	const capacity = 16
	prop := func(n uint8) bool {
		count := int(n)%32 + 1 // keep the assembler small while covering both sides of capacity
		asm := NewAssembler()
		for i := 0; i < count; i++ {
			asm.Alt("end")
		}
		for i := 0; i < count; i++ {
			asm.Succ()
		}
		asm.Mark("end").Ret()

		data, err := asm.Encode()
		if err != nil {
			t.Logf("Encode: %v", err)
			return false
		}
		ctx := NewContext(nil, &Options{StackCapacity: capacity})
		prog, err := LoadBytes(ctx, data, "")
		if err != nil {
			t.Logf("LoadBytes: %v", err)
			return false
		}
		_, err = Execute(ctx, prog)

		// Execute pushes a sentinel failure frame and the initial call
		// frame before the program's own Alt frames, so count Alts only
		// fit when count+2 <= capacity.
		if count+2 <= capacity {
			return err == nil
		}
		return errors.Is(err, ErrStackOverflow)
	}
	if err := quick.Check(prop, nil); err != nil {
		t.Error(err)
	}
}
