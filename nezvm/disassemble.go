package nezvm

import (
	"fmt"
	"io"
	"sort"
)

type progLabel struct {
	Offset int
	Name   string
}

func findLabel(labels []progLabel, idx int) string {
	for _, l := range labels {
		if l.Offset == idx {
			return l.Name
		}
	}
	return fmt.Sprintf(".L@%d", idx)
}

// Disassemble writes a human-readable listing of p to w, using ctx's
// pools to render string, set, and name operands. It synthesizes local
// labels (.L0, .L1, ...) for every branch target.
func (p *Program) Disassemble(ctx *Context, w io.Writer) (int, error) {
	total := 0
	write := func(format string, args ...interface{}) error {
		n, err := fmt.Fprintf(w, format, args...)
		total += n
		return err
	}

	if err := write("%%names %d\n", len(ctx.names)); err != nil {
		return total, err
	}
	for i, n := range ctx.names {
		if err := write("%%name %d %q\n", i, n); err != nil {
			return total, err
		}
	}
	if err := write("%%sets %d\n", len(ctx.sets)); err != nil {
		return total, err
	}
	for i, s := range ctx.sets {
		if err := write("%%set %d %s\n", i, s.String()); err != nil {
			return total, err
		}
	}
	if err := write("%%strings %d\n", len(ctx.strings)); err != nil {
		return total, err
	}
	for i, s := range ctx.strings {
		if err := write("%%string %d %s\n", i, quoteBytes(s)); err != nil {
			return total, err
		}
	}
	if err := write("\n"); err != nil {
		return total, err
	}

	needed := make(map[int]bool)
	for _, in := range p.Instructions[2:] {
		switch in.Op {
		case OpAlt, OpJump, OpSkip, OpCall:
			needed[int(in.Arg)] = true
		}
	}
	var labels []progLabel
	for idx := range needed {
		labels = append(labels, progLabel{Offset: idx})
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].Offset < labels[j].Offset })
	for i := range labels {
		labels[i].Name = fmt.Sprintf(".L%d", i)
	}

	for idx := 2; idx < len(p.Instructions); idx++ {
		if needed[idx] {
			if err := write("%s:\n", findLabel(labels, idx)); err != nil {
				return total, err
			}
		}
		in := p.Instructions[idx]
		if err := write("\t%s", in.Op); err != nil {
			return total, err
		}
		switch in.Op.info().Operand {
		case operandByteValue:
			if err := write(" %s", quoteByte(byte(in.Arg))); err != nil {
				return total, err
			}
		case operandExitCode:
			if err := write(" %d", in.Arg); err != nil {
				return total, err
			}
		case operandPoolIndex, operandNameIndex:
			if err := write(" %d", in.Arg); err != nil {
				return total, err
			}
		case operandDisplacement:
			if err := write(" %s", findLabel(labels, int(in.Arg))); err != nil {
				return total, err
			}
		case operandCallTarget:
			if err := write(" %s", findLabel(labels, int(in.Arg))); err != nil {
				return total, err
			}
		}
		if err := write("\n"); err != nil {
			return total, err
		}
	}
	return total, nil
}
