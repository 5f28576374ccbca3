package nezvm

import (
	"bytes"
	"fmt"

	"github.com/chronos-tachyon/mininez/byteset"
)

// Assembler builds a MiniNez bytecode file one instruction at a time,
// resolving named jump targets to the absolute instruction indices the
// wire format expects.
//
// A two-pass relaxation assembler earns its complexity when instructions'
// encoded length depends on the value of their own operand, which makes
// label resolution a fixed-point problem: an item's position depends on
// earlier items' final lengths, which can depend on later labels. Every
// instruction in this VM has a length fixed by its opcode alone, and every
// branch target is an absolute index rather than a relative offset, so a
// label's position is just the count of instructions emitted before it.
// One pass to record label positions and one pass to emit bytes are
// enough; no iteration to a fixed point is needed.
type Assembler struct {
	items   []asmItem
	pending []string

	names   []string
	sets    []byteset.Matcher
	strings [][]byte
}

type asmItem struct {
	labels      []string
	op          OpCode
	arg         int32
	aux         int32
	targetLabel string
}

// NewAssembler returns an empty Assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Mark attaches name to whatever instruction is emitted next, so a later
// Alt/Jump/Skip/Call can target it.
func (a *Assembler) Mark(name string) *Assembler {
	a.pending = append(a.pending, name)
	return a
}

func (a *Assembler) emit(it asmItem) *Assembler {
	it.labels = a.pending
	a.pending = nil
	a.items = append(a.items, it)
	return a
}

func (a *Assembler) internString(lit []byte) int32 {
	for i, s := range a.strings {
		if bytes.Equal(s, lit) {
			return int32(i)
		}
	}
	a.strings = append(a.strings, append([]byte(nil), lit...))
	return int32(len(a.strings) - 1)
}

func (a *Assembler) internSet(m byteset.Matcher) int32 {
	a.sets = append(a.sets, m)
	return int32(len(a.sets) - 1)
}

func (a *Assembler) internName(name string) int32 {
	for i, n := range a.names {
		if n == name {
			return int32(i)
		}
	}
	a.names = append(a.names, name)
	return int32(len(a.names) - 1)
}

func (a *Assembler) Nop() *Assembler   { return a.emit(asmItem{op: OpNop}) }
func (a *Assembler) Fail() *Assembler  { return a.emit(asmItem{op: OpFail}) }
func (a *Assembler) Succ() *Assembler  { return a.emit(asmItem{op: OpSucc}) }
func (a *Assembler) Ret() *Assembler   { return a.emit(asmItem{op: OpRet}) }
func (a *Assembler) Pos() *Assembler   { return a.emit(asmItem{op: OpPos}) }
func (a *Assembler) Back() *Assembler  { return a.emit(asmItem{op: OpBack}) }
func (a *Assembler) Any() *Assembler   { return a.emit(asmItem{op: OpAny}) }

func (a *Assembler) Exit(code byte) *Assembler  { return a.emit(asmItem{op: OpExit, arg: int32(code)}) }
func (a *Assembler) Byte(b byte) *Assembler     { return a.emit(asmItem{op: OpByte, arg: int32(b)}) }
func (a *Assembler) NByte(b byte) *Assembler    { return a.emit(asmItem{op: OpNByte, arg: int32(b)}) }

func (a *Assembler) Alt(target string) *Assembler  { return a.emit(asmItem{op: OpAlt, targetLabel: target}) }
func (a *Assembler) Jump(target string) *Assembler { return a.emit(asmItem{op: OpJump, targetLabel: target}) }
func (a *Assembler) Skip(target string) *Assembler { return a.emit(asmItem{op: OpSkip, targetLabel: target}) }
func (a *Assembler) Call(target string) *Assembler {
	return a.emit(asmItem{op: OpCall, targetLabel: target, aux: 0})
}

func (a *Assembler) Str(lit []byte) *Assembler {
	return a.emit(asmItem{op: OpStr, arg: a.internString(lit)})
}
func (a *Assembler) NStr(lit []byte) *Assembler {
	return a.emit(asmItem{op: OpNStr, arg: a.internString(lit)})
}
func (a *Assembler) OStr(lit []byte) *Assembler {
	return a.emit(asmItem{op: OpOStr, arg: a.internString(lit)})
}

func (a *Assembler) Set(m byteset.Matcher) *Assembler {
	return a.emit(asmItem{op: OpSet, arg: a.internSet(m)})
}
func (a *Assembler) OSet(m byteset.Matcher) *Assembler {
	return a.emit(asmItem{op: OpOSet, arg: a.internSet(m)})
}
func (a *Assembler) RSet(m byteset.Matcher) *Assembler {
	return a.emit(asmItem{op: OpRSet, arg: a.internSet(m)})
}

// NonTerminal emits a diagnostic Label instruction naming a rule, for
// trace output; it does not affect control flow.
func (a *Assembler) NonTerminal(name string) *Assembler {
	return a.emit(asmItem{op: OpLabel, arg: a.internName(name)})
}

// Encode resolves every Mark/target pair and serializes the result to the
// MiniNez wire format.
func (a *Assembler) Encode() ([]byte, error) {
	positions := make(map[string]int, len(a.items))
	pos := 0
	for _, it := range a.items {
		for _, lbl := range it.labels {
			positions[lbl] = pos
		}
		pos++
	}
	if len(a.pending) > 0 {
		return nil, fmt.Errorf("nezvm: dangling label(s) with no following instruction: %v", a.pending)
	}

	var buf bytes.Buffer
	writeHeader(&buf, len(a.items), a.names, a.sets, a.strings)

	for _, it := range a.items {
		arg := it.arg
		if op := it.op; op == OpAlt || op == OpJump || op == OpSkip || op == OpCall {
			target, ok := positions[it.targetLabel]
			if !ok {
				return nil, fmt.Errorf("nezvm: undefined label %q", it.targetLabel)
			}
			arg = int32(target)
		}
		writeInstructionOperand(&buf, it.op, arg, it.aux)
	}
	return buf.Bytes(), nil
}
