package nezvm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/chronos-tachyon/mininez/byteset"
)

var wireMagic = [3]byte{'N', 'e', 'z'}

// legacyOpcodes maps the five wire bytes that have no modern primary slot
// to the OpCode they decode to. Every other byte in [0,15] maps directly
// to OpCode(byte); everything else is ErrUnknownOpcode.
var legacyOpcodes = map[byte]OpCode{
	16:  OpNStr,
	20:  OpOStr,
	21:  OpOSet,
	25:  OpRSet,
	127: OpLabel,
}

// wireOpcodeByte is legacyOpcodes inverted, used by the encoders.
func wireOpcodeByte(op OpCode) byte {
	switch op {
	case OpNStr:
		return 16
	case OpOStr:
		return 20
	case OpOSet:
		return 21
	case OpRSet:
		return 25
	case OpLabel:
		return 127
	default:
		return byte(op)
	}
}

func decodeOpcodeByte(b byte) (OpCode, error) {
	if b&0x80 != 0 {
		return 0, ErrLegacyJumpBit
	}
	if b <= 15 {
		return OpCode(b), nil
	}
	if op, ok := legacyOpcodes[b]; ok {
		return op, nil
	}
	return 0, ErrUnknownOpcode
}

// cursor is a forward-only reader over a bytecode file's bytes.
type cursor struct {
	data []byte
	pos  int
}

func (c *cursor) remaining() int { return len(c.data) - c.pos }

func (c *cursor) need(n int) error {
	if c.remaining() < n {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, c.pos, c.remaining())
	}
	return nil
}

func (c *cursor) u8() (byte, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	b := c.data[c.pos]
	c.pos++
	return b, nil
}

func (c *cursor) u16be() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(c.data[c.pos:])
	c.pos += 2
	return v, nil
}

func (c *cursor) u24be() (uint32, error) {
	if err := c.need(3); err != nil {
		return 0, err
	}
	v := uint32(c.data[c.pos])<<16 | uint32(c.data[c.pos+1])<<8 | uint32(c.data[c.pos+2])
	c.pos += 3
	return v, nil
}

func (c *cursor) bytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *cursor) skip(n int) error {
	if err := c.need(n); err != nil {
		return err
	}
	c.pos += n
	return nil
}

// readPooledString reads a (u16 len, len bytes, 1 NUL) entry. The trailing
// byte is skipped unconditionally rather than required to be zero.
func readPooledString(c *cursor) ([]byte, error) {
	n, err := c.u16be()
	if err != nil {
		return nil, err
	}
	b, err := c.bytes(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	if err := c.skip(1); err != nil {
		return nil, err
	}
	return out, nil
}

type rawInstruction struct {
	Op  OpCode
	Arg int32
	Aux int32
}

func decodeInstruction(c *cursor) (rawInstruction, error) {
	b, err := c.u8()
	if err != nil {
		return rawInstruction{}, err
	}
	op, err := decodeOpcodeByte(b)
	if err != nil {
		return rawInstruction{}, err
	}
	inst := rawInstruction{Op: op, Aux: -1}
	switch op.info().Operand {
	case operandNone:
	case operandByteValue, operandExitCode:
		v, err := c.u8()
		if err != nil {
			return rawInstruction{}, err
		}
		inst.Arg = int32(v)
	case operandPoolIndex, operandNameIndex:
		v, err := c.u16be()
		if err != nil {
			return rawInstruction{}, err
		}
		inst.Arg = int32(v)
	case operandDisplacement:
		v, err := c.u24be()
		if err != nil {
			return rawInstruction{}, err
		}
		inst.Arg = int32(v)
	case operandCallTarget:
		v, err := c.u24be()
		if err != nil {
			return rawInstruction{}, err
		}
		inst.Arg = int32(v)
		nt, err := c.u16be()
		if err != nil {
			return rawInstruction{}, err
		}
		inst.Aux = int32(nt)
	}
	return inst, nil
}

// Load reads path and decodes it as described by LoadBytes. A read failure
// is returned as a *LoadError wrapping the I/O error.
func Load(ctx *Context, path string, startName string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Err: err, Offset: 0}
	}
	return LoadBytes(ctx, data, startName)
}

// LoadBytes decodes a MiniNez bytecode file, populating ctx's constant
// pools and returning the resulting Program. startName is accepted for
// symmetry with other loaders in the ecosystem but is not consulted: this
// instruction set always begins execution at the first user instruction,
// since it carries no symbol table mapping rule names to entry points.
func LoadBytes(ctx *Context, data []byte, startName string) (*Program, error) {
	_ = startName
	c := &cursor{data: data}

	magic, err := c.bytes(3)
	if err != nil {
		return nil, &LoadError{Err: err, Offset: c.pos}
	}
	if !bytes.Equal(magic, wireMagic[:]) {
		return nil, &LoadError{Err: ErrBadMagic, Offset: 0}
	}

	version, err := c.u8()
	if err != nil {
		return nil, &LoadError{Err: err, Offset: c.pos}
	}

	instCount, err := c.u16be()
	if err != nil {
		return nil, &LoadError{Err: err, Offset: c.pos}
	}

	if _, err := c.u16be(); err != nil { // memoSize, discarded
		return nil, &LoadError{Err: err, Offset: c.pos}
	}
	if _, err := c.u16be(); err != nil { // jumpTableSize, discarded
		return nil, &LoadError{Err: err, Offset: c.pos}
	}

	nameCount, err := c.u16be()
	if err != nil {
		return nil, &LoadError{Err: err, Offset: c.pos}
	}
	names := make([]string, nameCount)
	for i := range names {
		s, err := readPooledString(c)
		if err != nil {
			return nil, &LoadError{Err: err, Offset: c.pos}
		}
		names[i] = string(s)
	}

	setCount, err := c.u16be()
	if err != nil {
		return nil, &LoadError{Err: err, Offset: c.pos}
	}
	sets := make([]byteset.Matcher, setCount)
	for i := range sets {
		raw, err := c.bytes(byteset.BitmapSize)
		if err != nil {
			return nil, &LoadError{Err: err, Offset: c.pos}
		}
		m, err := byteset.DecodeBitmap(raw)
		if err != nil {
			return nil, &LoadError{Err: err, Offset: c.pos}
		}
		sets[i] = m.Optimize()
	}

	strCount, err := c.u16be()
	if err != nil {
		return nil, &LoadError{Err: err, Offset: c.pos}
	}
	strs := make([][]byte, strCount)
	for i := range strs {
		s, err := readPooledString(c)
		if err != nil {
			return nil, &LoadError{Err: err, Offset: c.pos}
		}
		strs[i] = s
	}

	tagTableSize, err := c.u16be()
	if err != nil {
		return nil, &LoadError{Err: err, Offset: c.pos}
	}
	if tagTableSize != 0 {
		return nil, &LoadError{Err: ErrReservedNonZero, Offset: c.pos - 2}
	}
	symbolTableSize, err := c.u16be()
	if err != nil {
		return nil, &LoadError{Err: err, Offset: c.pos}
	}
	if symbolTableSize != 0 {
		return nil, &LoadError{Err: ErrReservedNonZero, Offset: c.pos - 2}
	}

	total := int(instCount) + 2
	instructions := make([]Instruction, total)
	instructions[0] = Instruction{Op: OpExit, Arg: 0, Aux: -1}
	instructions[1] = Instruction{Op: OpExit, Arg: 1, Aux: -1}

	for i := 2; i < total; i++ {
		raw, err := decodeInstruction(c)
		if err != nil {
			return nil, &LoadError{Err: err, Offset: c.pos}
		}
		inst := Instruction{Op: raw.Op, Arg: raw.Arg, Aux: raw.Aux}
		switch raw.Op {
		case OpAlt, OpJump, OpSkip, OpCall:
			target := int(raw.Arg) + 2
			if target < 0 || target >= total {
				return nil, &LoadError{Err: ErrBranchTargetRange, Offset: c.pos}
			}
			inst.Arg = int32(target)
		}
		instructions[i] = inst
	}

	ctx.names = names
	ctx.sets = sets
	ctx.strings = strs
	ctx.version = version

	return &Program{Instructions: instructions}, nil
}
