package nezvm

// Instruction is one decoded VM instruction. Arg holds whatever the
// opcode's single operand means for it: a literal byte, an exit code, a
// pool index, or a branch target already rewritten to an absolute index
// into Program.Instructions. Aux holds Call's non-terminal name index,
// kept so EncodeProgram can write it back; execution and Disassemble
// ignore it. Aux is -1 for every other opcode.
type Instruction struct {
	Op  OpCode
	Arg int32
	Aux int32
}

// Program is a fully decoded, ready-to-run instruction array. Index 0 and
// 1 are always the synthetic Exit(0) and Exit(1) instructions that every
// MiniNez bytecode file's real program starts execution after; see
// loader.go.
type Program struct {
	Instructions []Instruction
}
