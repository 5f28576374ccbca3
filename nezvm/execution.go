package nezvm

import "fmt"

// Execute runs program against ctx until it reaches one of the two
// synthetic Exit instructions at the head of the program, and returns the
// resulting Result. ctx may not be reused afterward.
//
// This is a straight port of the original dispatch-loop structure: one
// switch over the current opcode, explicit PC and Pos locals, and the
// stack operations factored into Context methods so each opcode's case
// reads as the one branch its semantics actually need. Go has no
// computed-goto, so unlike a classic threaded interpreter this relies on
// the switch compiling to a jump table, which it does for a dense,
// contiguous set of integer cases like OpCode's.
func Execute(ctx *Context, program *Program) (Result, error) {
	if ctx.executed {
		return Result{}, ErrContextReused
	}
	ctx.executed = true

	inst := program.Instructions
	if len(inst) < 2 {
		return Result{}, &FatalRuntimeError{Err: fmt.Errorf("program has no instructions")}
	}

	ctx.entries = make([]stackEntry, 0, 64)
	ctx.curFail = -1
	ctx.pos = 0

	if err := ctx.pushFail(0, 0); err != nil {
		return Result{}, err
	}
	if err := ctx.pushCall(1); err != nil {
		return Result{}, err
	}

	pc := 2
	pos := 0
	end := len(ctx.input) - 1 // index of the NUL sentinel

	for {
		in := inst[pc]

		if ctx.trace != nil {
			ctx.trace.Printf("[%d] %s (pos:%d)", pc, in.Op, pos)
		}

		switch in.Op {
		case OpExit:
			ctx.pos = pos
			return Result{Matched: in.Arg == 1, Pos: pos}, nil

		case OpNop:
			pc++

		case OpFail:
			var err error
			pos, pc, err = ctx.doFail()
			if err != nil {
				return Result{}, err
			}

		case OpAlt:
			if err := ctx.pushFail(pos, int(in.Arg)); err != nil {
				return Result{}, err
			}
			pc++

		case OpSucc:
			if err := ctx.doSucc(); err != nil {
				return Result{}, err
			}
			pc++

		case OpJump:
			pc = int(in.Arg)

		case OpCall:
			if err := ctx.pushCall(pc + 1); err != nil {
				return Result{}, err
			}
			pc = int(in.Arg)

		case OpRet:
			ret, err := ctx.popCall()
			if err != nil {
				return Result{}, err
			}
			pc = ret

		case OpPos:
			if err := ctx.pushPos(pos); err != nil {
				return Result{}, err
			}
			pc++

		case OpBack:
			p, err := ctx.popPos()
			if err != nil {
				return Result{}, err
			}
			pos = p
			pc++

		case OpSkip:
			if ctx.curFail < 0 || ctx.curFail >= len(ctx.entries) {
				return Result{}, &FatalRuntimeError{Err: ErrEmptyStack, PC: pc, Pos: pos}
			}
			if ctx.entries[ctx.curFail].pos == pos {
				var err error
				pos, pc, err = ctx.doFail()
				if err != nil {
					return Result{}, err
				}
			} else {
				ctx.entries[ctx.curFail].pos = pos
				pc = int(in.Arg)
			}

		case OpByte:
			if pos < end && ctx.input[pos] == byte(in.Arg) {
				pos++
				pc++
			} else {
				var err error
				pos, pc, err = ctx.doFail()
				if err != nil {
					return Result{}, err
				}
			}

		case OpNByte:
			if ctx.input[pos] == byte(in.Arg) {
				var err error
				pos, pc, err = ctx.doFail()
				if err != nil {
					return Result{}, err
				}
			} else {
				pc++
			}

		case OpAny:
			if ctx.input[pos] != 0 {
				pos++
				pc++
			} else {
				var err error
				pos, pc, err = ctx.doFail()
				if err != nil {
					return Result{}, err
				}
			}

		case OpStr:
			s, err := ctx.stringAt(int(in.Arg), pc, pos)
			if err != nil {
				return Result{}, err
			}
			if matchPrefix(ctx.input, pos, s) {
				pos += len(s)
				pc++
			} else {
				pos, pc, err = ctx.doFail()
				if err != nil {
					return Result{}, err
				}
			}

		case OpNStr:
			s, err := ctx.stringAt(int(in.Arg), pc, pos)
			if err != nil {
				return Result{}, err
			}
			if matchPrefix(ctx.input, pos, s) {
				pos, pc, err = ctx.doFail()
				if err != nil {
					return Result{}, err
				}
			} else {
				pc++
			}

		case OpOStr:
			s, err := ctx.stringAt(int(in.Arg), pc, pos)
			if err != nil {
				return Result{}, err
			}
			if matchPrefix(ctx.input, pos, s) {
				pos += len(s)
			}
			pc++

		case OpSet:
			m, err := ctx.setAt(int(in.Arg), pc, pos)
			if err != nil {
				return Result{}, err
			}
			if pos < end && m.Match(ctx.input[pos]) {
				pos++
				pc++
			} else {
				pos, pc, err = ctx.doFail()
				if err != nil {
					return Result{}, err
				}
			}

		case OpOSet:
			m, err := ctx.setAt(int(in.Arg), pc, pos)
			if err != nil {
				return Result{}, err
			}
			if pos < end && m.Match(ctx.input[pos]) {
				pos++
			}
			pc++

		case OpRSet:
			m, err := ctx.setAt(int(in.Arg), pc, pos)
			if err != nil {
				return Result{}, err
			}
			for pos < end && m.Match(ctx.input[pos]) {
				pos++
			}
			pc++

		case OpLabel:
			if ctx.trace != nil {
				name := "?"
				if int(in.Arg) >= 0 && int(in.Arg) < len(ctx.names) {
					name = ctx.names[in.Arg]
				}
				ctx.trace.Printf("rule %s @pc=%d pos=%d", name, pc, pos)
			}
			pc++

		default:
			return Result{}, &FatalRuntimeError{Err: fmt.Errorf("%w: %v", ErrUnknownOpcode, in.Op), PC: pc, Pos: pos}
		}
	}
}

// matchPrefix reports whether s occurs at input[pos:] without reading the
// trailing NUL sentinel as part of the match.
func matchPrefix(input []byte, pos int, s []byte) bool {
	if pos < 0 || pos+len(s) > len(input)-1 {
		return false
	}
	for i, b := range s {
		if input[pos+i] != b {
			return false
		}
	}
	return true
}
