package nezvm

import (
	"bytes"
	"encoding/binary"

	"github.com/chronos-tachyon/mininez/byteset"
)

func writeU24(buf *bytes.Buffer, v uint32) {
	buf.WriteByte(byte(v >> 16))
	buf.WriteByte(byte(v >> 8))
	buf.WriteByte(byte(v))
}

func writePooledString(buf *bytes.Buffer, s []byte) {
	var lenBytes [2]byte
	binary.BigEndian.PutUint16(lenBytes[:], uint16(len(s)))
	buf.Write(lenBytes[:])
	buf.Write(s)
	buf.WriteByte(0)
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

// writeHeader writes everything up to and including the symbol table size
// field: magic, version, instruction count, the two discarded fields, and
// the three constant pools.
func writeHeader(buf *bytes.Buffer, instCount int, names []string, sets []byteset.Matcher, strs [][]byte) {
	buf.Write(wireMagic[:])
	buf.WriteByte(0) // version
	writeU16(buf, uint16(instCount))
	writeU16(buf, 0) // memoSize
	writeU16(buf, 0) // jumpTableSize

	writeU16(buf, uint16(len(names)))
	for _, n := range names {
		writePooledString(buf, []byte(n))
	}

	writeU16(buf, uint16(len(sets)))
	for _, s := range sets {
		bitmap := byteset.EncodeBitmap(s)
		buf.Write(bitmap[:])
	}

	writeU16(buf, uint16(len(strs)))
	for _, s := range strs {
		writePooledString(buf, s)
	}

	writeU16(buf, 0) // tagTableSize
	writeU16(buf, 0) // symbolTableSize
}

func writeInstructionOperand(buf *bytes.Buffer, op OpCode, arg, aux int32) {
	buf.WriteByte(wireOpcodeByte(op))
	switch op.info().Operand {
	case operandNone:
	case operandByteValue, operandExitCode:
		buf.WriteByte(byte(arg))
	case operandPoolIndex, operandNameIndex:
		writeU16(buf, uint16(arg))
	case operandDisplacement:
		writeU24(buf, uint32(arg))
	case operandCallTarget:
		writeU24(buf, uint32(arg))
		writeU16(buf, uint16(aux))
	}
}

// EncodeProgram serializes a decoded Program and the pools attached to ctx
// back into the wire format LoadBytes parses. It exists for the
// load/store round-trip property: decoding bytes and re-encoding the
// result must reproduce the input modulo the legacy has-jump bit already
// being clear.
func EncodeProgram(ctx *Context, prog *Program) []byte {
	var buf bytes.Buffer
	writeHeader(&buf, len(prog.Instructions)-2, ctx.names, ctx.sets, ctx.strings)
	for i := 2; i < len(prog.Instructions); i++ {
		inst := prog.Instructions[i]
		arg := inst.Arg
		switch inst.Op {
		case OpAlt, OpJump, OpSkip, OpCall:
			arg -= 2
		}
		writeInstructionOperand(&buf, inst.Op, arg, inst.Aux)
	}
	return buf.Bytes()
}
