package nezvm

import (
	"bytes"
	"regexp"
	"testing"

	"github.com/renstrom/dedent"
	"github.com/sergi/go-diff/diffmatchpatch"
)

var reNL = regexp.MustCompile(`(?m)^`)

func diff(l, r string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(l, r, false)
	pretty := dmp.DiffPrettyText(diffs)
	return reNL.ReplaceAllLiteralString(pretty, "\t")
}

func TestProgram_Disassemble(t *testing.T) {
	asm := NewAssembler().
		Alt("L1").Byte('a').Succ().Jump("L2").
		Mark("L1").Byte('b').
		Mark("L2").Ret()

	data, err := asm.Encode()
	if err != nil {
		t.Fatalf("%s: Encode: %v", t.Name(), err)
	}
	ctx := NewContext(nil, nil)
	prog, err := LoadBytes(ctx, data, "")
	if err != nil {
		t.Fatalf("%s: LoadBytes: %v", t.Name(), err)
	}

	var buf bytes.Buffer
	if _, err := prog.Disassemble(ctx, &buf); err != nil {
		t.Fatalf("%s: Disassemble: %v", t.Name(), err)
	}

	expected := dedent.Dedent(`
		%names 0
		%sets 0
		%strings 0

			Alt .L0
			Byte 'a'
			Succ
			Jump .L1
		.L0:
			Byte 'b'
		.L1:
			Ret
		`)[1:]
	actual := buf.String()
	if actual != expected {
		t.Errorf("%s: wrong output:\n%s", t.Name(), diff(expected, actual))
	}
}
