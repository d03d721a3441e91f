package compiler

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"rvgen/pkg/ast"
)

// generate renders n with a fresh generator and returns the text.
func generate(t *testing.T, n ast.Node, ctx Context, opts ...Option) (string, *Generator) {
	t.Helper()
	var sb strings.Builder
	g := NewGenerator(&sb, opts...)
	g.Generate(n, ctx)
	return sb.String(), g
}

func TestGenerateSnippets(t *testing.T) {
	tests := []struct {
		name string
		node ast.Node
		ctx  Context
		want string
	}{
		{"int constant", ast.IntConst(5), Context{}, "\tli\tt0, 5\n"},
		{"negative constant", ast.IntConst(-12), Context{}, "\tli\tt0, -12\n"},
		{"string constant", ast.StringConst(3, "x"), Context{}, "\tla\tt0, .SC3\n"},
		{"return value", ast.ReturnValue(), Context{ArgReg: 2}, "\tmv\tt0, a2\n"},
		{"global ref", ast.GlobalRef("x"), Context{}, "\tlw\tt0, x\n"},
		{"param ref", ast.Param("p", 1), Context{}, "\tlw\tt0, 12(fp)\n"},
		{"local ref", ast.LocalRef("l", 3), Context{}, "\tlw\tt0, 20(fp)\n"},
		{
			"array ref",
			ast.ArrayRef("arr", ast.IntConst(2)),
			Context{},
			"\t#--ArrayReference--\n\tli\tt0, 2\n\tslli\tt0, t0, 2\n\tla\tt1, arr\n\tadd\tt1, t1, t0\n\tlw\tt0, 0(t1)\n",
		},
		{
			"addition",
			ast.Add(ast.IntConst(1), ast.IntConst(2)),
			Context{},
			"\t#--Binary OP Expression: (+)--\n" +
				"\tli\tt0, 1\n\taddi\tsp, sp, -4\n\tsw\tt0, 0(sp)\n" +
				"\tli\tt0, 2\n\tlw\tt1, 0(sp)\n\taddi\tsp, sp, 4\n" +
				"\tadd\tt0, t1, t0\n",
		},
		{
			"subtraction",
			ast.Sub(ast.GlobalRef("a"), ast.GlobalRef("b")),
			Context{},
			"\t#--Binary OP Expression: (-)--\n" +
				"\tlw\tt0, a\n\taddi\tsp, sp, -4\n\tsw\tt0, 0(sp)\n" +
				"\tlw\tt0, b\n\tlw\tt1, 0(sp)\n\taddi\tsp, sp, 4\n" +
				"\tsub\tt0, t1, t0\n",
		},
		{
			"assign global",
			ast.Assign("x", ast.Global, 0, ast.IntConst(7)),
			Context{},
			"\t#--assignment--\n\tli\tt0, 7\n\tsw\tt0, x, t1\n",
		},
		{
			"assign param",
			ast.Assign("p", ast.Parameter, 0, ast.IntConst(7)),
			Context{},
			"\t#--assignment--\n\tli\tt0, 7\n\tsw\tt0, 8(fp)\n",
		},
		{
			"assign local",
			ast.Assign("l", ast.Local, 5, ast.IntConst(7)),
			Context{},
			"\t#--assignment--\n\tli\tt0, 7\n\tsw\tt0, 28(fp)\n",
		},
		{
			"assign array element",
			ast.AssignIndex("arr", ast.IntConst(1), ast.IntConst(9)),
			Context{},
			"\t#--assignment--\n\tli\tt0, 9\n\t#--Array--\n" +
				"\taddi\tsp, sp, -4\n\tsw\tt0, 0(sp)\n" +
				"\tli\tt0, 1\n\tslli\tt0, t0, 2\n\tla\tt1, arr\n\tadd\tt1, t1, t0\n" +
				"\tlw\tt0, 0(sp)\n\taddi\tsp, sp, 4\n\tsw\tt0, 0(t1)\n",
		},
		{"global decl", ast.DeclGlobal("x"), Context{}, "x:\t.word\t0\n"},
		{"array decl", ast.DeclArray("arr", 10), Context{}, "arr:\t.space\t40\n"},
		{"string decl", ast.DeclString("s", "hi\n"), Context{}, "s:\t.string\t\"hi\\n\"\n\t.align\t2\n"},
		{"param decl", ast.DeclParam("p", 2), Context{}, "\tsw\ta2, 16(fp)\n"},
		{"local decl", ast.DeclLocal("l", 4), Context{}, "\tsw\ta4, 24(fp)\n"},
		{"local decl past a5", ast.DeclLocal("l", 6), Context{}, ""},
		{
			"call",
			ast.Call("f", ast.IntConst(1), ast.IntConst(2)),
			Context{},
			"\t#--funcall to f--\n\tli\tt0, 1\n\tmv\ta0, t0\n\tli\tt0, 2\n\tmv\ta1, t0\n\tjal\tf\n",
		},
		{"call without arguments", ast.Call("readInt"), Context{}, "\t#--funcall to readInt--\n\tjal\treadInt\n"},
		{
			"relational with target",
			ast.Compare(ast.OpGreater, ast.IntConst(1), ast.IntConst(2)),
			Context{Target: 7},
			"\t# Relational Expression (op 62,>)\n" +
				"\tli\tt0, 1\n\taddi\tsp, sp, -4\n\tsw\tt0, 0(sp)\n" +
				"\tli\tt0, 2\n\tlw\tt1, 0(sp)\n\taddi\tsp, sp, 4\n" +
				"\tbgt\tt1, t0, .LL7\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, g := generate(t, tt.node, tt.ctx)
			if got != tt.want {
				t.Errorf("generated:\n%q\nwant:\n%q", got, tt.want)
			}
			if err := g.Err(); err != nil {
				t.Errorf("unexpected diagnostics: %v", err)
			}
		})
	}
}

func TestRelationalBranches(t *testing.T) {
	tests := []struct {
		op   ast.Operator
		want string
	}{
		{ast.OpEqual, "\tbeq\tt1, t0, .LL9\n"},
		{ast.OpNotEqual, "\tbne\tt1, t0, .LL9\n"},
		{ast.OpGreater, "\tbgt\tt1, t0, .LL9\n"},
		{ast.OpLess, "\tblt\tt1, t0, .LL9\n"},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			got, _ := generate(t, ast.Compare(tt.op, ast.GlobalRef("a"), ast.IntConst(0)), Context{Target: 9})
			if !strings.HasSuffix(got, tt.want) {
				t.Errorf("output ends %q, want suffix %q", got, tt.want)
			}
		})
	}
}

func TestRelationalOperandsGetNoTarget(t *testing.T) {
	// A return value inside a comparison reads a0, whatever the argument
	// register of the surrounding context is.
	got, _ := generate(t, ast.Compare(ast.OpEqual, ast.ReturnValue(), ast.IntConst(0)), Context{ArgReg: 3, Target: 4})
	if !strings.Contains(got, "\tmv\tt0, a0\n") {
		t.Errorf("left operand should read a0:\n%s", got)
	}
}

func TestWhileLoopLayout(t *testing.T) {
	loop := ast.While(
		ast.Compare(ast.OpLess, ast.GlobalRef("i"), ast.IntConst(10)),
		ast.Assign("i", ast.Global, 0, ast.Add(ast.GlobalRef("i"), ast.IntConst(1))),
	)
	got, g := generate(t, loop, Context{})

	for _, want := range []string{
		"\t#--While loop--\n\tb\t.LL101\n.LL100:\n\t#--body--\n",
		"\t#--condition--\n.LL101:\n",
		"\tblt\tt1, t0, .LL100\n\t#--endloop--\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
	if body, cond := strings.Index(got, "sw\tt0, i, t1"), strings.Index(got, ".LL101:"); body > cond {
		t.Error("body should come before the condition")
	}
	if issued := g.Labels().Issued(); len(issued) != 2 || issued[0] != 100 || issued[1] != 101 {
		t.Errorf("labels = %v, want [100 101]", issued)
	}
}

func TestIfThenElseLayout(t *testing.T) {
	stmt := ast.If(
		ast.Compare(ast.OpEqual, ast.GlobalRef("x"), ast.IntConst(0)),
		ast.Call("thenCall"),
		ast.Call("elseCall"),
	)
	got, _ := generate(t, stmt, Context{})

	for _, want := range []string{
		"\t#--ifthenelse--\n",
		"\tbeq\tt1, t0, .LL100\n\t#--elsepart--\n",
		"\tjal\telseCall\n\tb\t.LL101\n.LL100:\n\t#--ifpart--\n",
		"\tjal\tthenCall\n.LL101:\n\t#--endif--\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
	if strings.Index(got, "elseCall") > strings.Index(got, "thenCall") {
		t.Error("else part should be emitted before the then part")
	}
}

func TestIfWithoutElse(t *testing.T) {
	stmt := ast.If(ast.Compare(ast.OpLess, ast.GlobalRef("x"), ast.IntConst(0)), ast.Call("neg"), nil)
	got, _ := generate(t, stmt, Context{})
	want := "\t#--elsepart--\n\tb\t.LL101\n.LL100:\n"
	if !strings.Contains(got, want) {
		t.Errorf("missing %q in:\n%s", want, got)
	}
}

func TestLabelsAreDistinct(t *testing.T) {
	// Nested loops and conditionals must never reuse a label.
	inner := ast.While(ast.Compare(ast.OpLess, ast.GlobalRef("j"), ast.IntConst(3)),
		ast.If(ast.Compare(ast.OpEqual, ast.GlobalRef("j"), ast.IntConst(1)), ast.Call("a"), ast.Call("b")),
	)
	outer := ast.While(ast.Compare(ast.OpLess, ast.GlobalRef("i"), ast.IntConst(3)), inner,
		ast.If(ast.Compare(ast.OpGreater, ast.GlobalRef("i"), ast.IntConst(1)), ast.Call("c"), nil),
	)
	got, g := generate(t, outer, Context{})

	issued := g.Labels().Issued()
	if len(issued) != 8 {
		t.Fatalf("issued %d labels, want 8", len(issued))
	}
	seen := make(map[int]bool)
	for _, id := range issued {
		if seen[id] {
			t.Errorf("label %d issued twice", id)
		}
		seen[id] = true
		def := LabelName(id) + ":\n"
		if n := strings.Count(got, def); n != 1 {
			t.Errorf("label %s defined %d times", LabelName(id), n)
		}
	}
}

func TestArgumentContextThreading(t *testing.T) {
	call := ast.Call("f", ast.ReturnValue(), ast.ReturnValue(), ast.IntConst(3))
	got, _ := generate(t, call, Context{})
	want := "\tmv\tt0, a0\n\tmv\ta0, t0\n" +
		"\tmv\tt0, a1\n\tmv\ta1, t0\n" +
		"\tli\tt0, 3\n\tmv\ta2, t0\n\tjal\tf\n"
	if !strings.HasSuffix(got, want) {
		t.Errorf("generated:\n%q\nwant suffix:\n%q", got, want)
	}

	// A call resets the argument position for the statement after it.
	var sb strings.Builder
	g := NewGenerator(&sb)
	g.Generate(ast.List(ast.Call("f", ast.IntConst(1)), ast.Call("g", ast.IntConst(2))), Context{})
	if strings.Count(sb.String(), "\tmv\ta0, t0\n") != 2 || strings.Contains(sb.String(), "a1") {
		t.Errorf("second call should use a0 again:\n%s", sb.String())
	}
}

func TestFunctionFrame(t *testing.T) {
	fn := ast.Func("sum", ast.List(ast.DeclParam("a", 0), ast.DeclParam("b", 1)), nil,
		ast.Call("printInt", ast.Add(ast.Param("a", 0), ast.Param("b", 1))),
	)
	got, _ := generate(t, fn, Context{})

	prologue := "\t#--FUNCTION--\nsum:\n\taddi\tsp, sp, -128\n\tsw\tfp, 4(sp)\n\tsw\tra, 0(sp)\n\tmv\tfp, sp\n"
	if !strings.HasPrefix(got, prologue) {
		t.Errorf("prologue:\n%q\nwant prefix:\n%q", got, prologue)
	}
	for i := 0; i < NumArgRegs; i++ {
		spill := fmt.Sprintf("\tsw\ta%d, %d(sp)\n", i, SlotOffset(i))
		if !strings.Contains(got, spill) {
			t.Errorf("missing spill %q", spill)
		}
	}
	params := "\tsw\ta0, 8(fp)\n\tsw\ta1, 12(fp)\n"
	if !strings.Contains(got, params) {
		t.Errorf("missing parameter stores %q", params)
	}
	epilogue := "\tmv\tsp, fp\n\tlw\tfp, 4(sp)\n\tlw\tra, 0(sp)\n\taddi\tsp, sp, 128\n\tret\n\n"
	if !strings.HasSuffix(got, epilogue) {
		t.Errorf("epilogue:\n%q\nwant suffix:\n%q", got, epilogue)
	}
	if strings.Index(got, params) > strings.Index(got, "jal\tprintInt") {
		t.Error("parameter stores should precede the body")
	}
}

func TestProgramLayout(t *testing.T) {
	root := ast.NewProgram(
		ast.List(ast.DeclGlobal("x"), ast.DeclArray("arr", 3)),
		ast.Func("f", nil, nil, ast.Call("printInt", ast.GlobalRef("x"))),
		ast.List(
			ast.Assign("x", ast.Global, 0, ast.IntConst(1)),
			ast.Call("printStr", ast.StringConst(0, "hello")),
			ast.Call("f"),
		),
	)
	strs, err := StringsFromTree(root)
	if err != nil {
		t.Fatalf("StringsFromTree: %v", err)
	}
	got, g := generate(t, root, Context{}, WithStrings(strs))
	if err := g.Err(); err != nil {
		t.Fatalf("unexpected diagnostics: %v", err)
	}

	order := []string{
		"\t.data\n",
		".SC0:\t.string\t\"hello\"\n",
		"x:\t.word\t0\n",
		"arr:\t.space\t12\n",
		"\t.text\nprogram:\n",
		"\tsw\tt0, x, t1\n",
		"\tjal\tf\n",
		"\tli\ta0, 0\n\tli\ta7, 93\n\tecall\n",
		"f:\n",
		"printStr:\n\tli\ta7, 4\n\tecall\n\tret\n",
		"printInt:\n\tli\ta7, 1\n\tecall\n\tret\n",
		"readInt:\n\tli\ta7, 5\n\tecall\n\tret\n",
	}
	last := -1
	for _, want := range order {
		i := strings.Index(got, want)
		if i < 0 {
			t.Fatalf("missing %q in:\n%s", want, got)
		}
		if i < last {
			t.Errorf("%q is out of order", want)
		}
		last = i
	}
	if g.Visited() != ast.Count(root) {
		t.Errorf("Visited = %d, want %d", g.Visited(), ast.Count(root))
	}
}

func TestStringGlobalLoadsAddress(t *testing.T) {
	root := ast.NewProgram(ast.DeclString("greet", "hey"), nil,
		ast.Call("printStr", ast.GlobalRef("greet")),
	)
	got, _ := generate(t, root, Context{})
	if !strings.Contains(got, "\tla\tt0, greet\n") {
		t.Errorf("string global should be loaded with la:\n%s", got)
	}
}

type strayNode struct{ ast.Link }

func (*strayNode) Kind() ast.Kind { return ast.Kind(99) }

func TestDiagnostics(t *testing.T) {
	args := make([]ast.Node, 7)
	for i := range args {
		args[i] = ast.IntConst(i)
	}

	tests := []struct {
		name string
		node ast.Node
		ctx  Context
		kind ErrorKind
	}{
		{"unknown arithmetic operator", &ast.BinaryExpr{Op: '*', Left: ast.IntConst(1), Right: ast.IntConst(2)}, Context{}, ErrUnknownOperator},
		{"unknown relational operator", ast.Compare('%', ast.IntConst(1), ast.IntConst(2)), Context{Target: 5}, ErrUnknownOperator},
		{"relational without target", ast.Compare(ast.OpLess, ast.IntConst(1), ast.IntConst(2)), Context{}, ErrNoBranchTarget},
		{"long constant", &ast.Constant{Type: ast.Long, Value: 1}, Context{}, ErrUnknownType},
		{"long variable", &ast.VarDecl{Name: "l", Type: ast.Long}, Context{}, ErrUnknownType},
		{"bad reference storage", &ast.VarRef{Name: "v", Storage: ast.StorageKind(9)}, Context{}, ErrUnknownStorage},
		{"bad assignment storage", &ast.Assignment{Name: "v", Storage: ast.StorageKind(9), Value: ast.IntConst(1)}, Context{}, ErrUnknownStorage},
		{"string array", &ast.VarDecl{Name: "s", Type: ast.String, Storage: ast.GlobalArray}, Context{}, ErrUnknownStorage},
		{"seventh argument", ast.Call("f", args...), Context{}, ErrTooManyArgs},
		{"return value past a5", ast.ReturnValue(), Context{ArgReg: 6}, ErrTooManyArgs},
		{"parameter slot past a5", ast.DeclParam("p", 6), Context{}, ErrTooManyArgs},
		{"local slot past the frame", ast.DeclLocal("l", NumSlots), Context{}, ErrTooManyArgs},
		{"unknown node", &strayNode{}, Context{}, ErrUnknownNode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, g := generate(t, tt.node, tt.ctx)
			err := g.Err()
			if err == nil {
				t.Fatal("expected a diagnostic")
			}
			var cerr *CodegenError
			if !errors.As(err, &cerr) {
				t.Fatalf("error %v is not a *CodegenError", err)
			}
			if cerr.Kind != tt.kind {
				t.Errorf("kind = %v, want %v", cerr.Kind, tt.kind)
			}
			if !strings.Contains(got, "#!! "+cerr.Message+"\n") {
				t.Errorf("output lacks the diagnostic marker:\n%s", got)
			}
			if len(g.Errors()) != 1 {
				t.Errorf("recorded %d diagnostics, want 1", len(g.Errors()))
			}
		})
	}
}

func TestTooManyArgumentsKeepsGoing(t *testing.T) {
	args := make([]ast.Node, 7)
	for i := range args {
		args[i] = ast.IntConst(i)
	}
	got, _ := generate(t, ast.Call("f", args...), Context{})
	if strings.Contains(got, "\tmv\ta6") {
		t.Error("no register beyond a5 may be used")
	}
	if !strings.Contains(got, "\tmv\ta5, t0\n") || !strings.HasSuffix(got, "\tjal\tf\n") {
		t.Errorf("the call should still be emitted:\n%s", got)
	}
}

func TestDiagnosticsDoNotStopGeneration(t *testing.T) {
	stmts := ast.List(
		ast.Assign("x", ast.Global, 0, &ast.BinaryExpr{Op: '/', Left: ast.IntConst(4), Right: ast.IntConst(2)}),
		ast.Call("printInt", ast.IntConst(1)),
	)
	got, g := generate(t, stmts, Context{})
	if len(g.Errors()) != 1 {
		t.Fatalf("diagnostics = %v", g.Errors())
	}
	if !strings.HasSuffix(got, "\tjal\tprintInt\n") {
		t.Errorf("statement after the bad one is missing:\n%s", got)
	}
}

type stubData struct {
	text string
	err  error
}

func (s stubData) WriteDataSection(w io.Writer) error {
	if s.err != nil {
		return s.err
	}
	_, err := io.WriteString(w, s.text)
	return err
}

func TestDataSectionCollaborator(t *testing.T) {
	root := ast.NewProgram(nil, nil, nil)

	got, g := generate(t, root, Context{}, WithStrings(stubData{text: "MARK:\t.word\t1\n"}))
	if err := g.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "#--string constants--\nMARK:\t.word\t1\n\t.align\t2\n") {
		t.Errorf("data section text not placed after the header:\n%s", got)
	}

	_, g = generate(t, root, Context{}, WithStrings(stubData{err: errors.New("disk full")}))
	errs := g.Errors()
	if len(errs) != 1 || errs[0].Kind != ErrDataSection {
		t.Errorf("errors = %v, want one data section error", errs)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestWriteErrorIsReported(t *testing.T) {
	g := NewGenerator(failingWriter{})
	g.Generate(ast.IntConst(1), Context{})
	err := g.Err()
	if err == nil || !strings.Contains(err.Error(), "write assembly") {
		t.Errorf("Err = %v, want a write error", err)
	}
}

func FuzzGenerateNoPanic(f *testing.F) {
	f.Add(3, 4, byte('+'), byte('<'), uint8(0), uint8(0), uint8(2))
	f.Add(-1, 0, byte('*'), byte('?'), uint8(9), uint8(7), uint8(9))
	f.Fuzz(func(t *testing.T, a, b int, op, rel byte, storage, typ, argReg uint8) {
		left := &ast.Constant{Type: ast.ValueType(typ % 6), Value: a}
		ref := &ast.VarRef{Name: "v", Storage: ast.StorageKind(storage % 6), Slot: int(argReg % 8)}
		if ref.Storage == ast.GlobalArray {
			ref.Index = ast.IntConst(b)
		}
		root := ast.NewProgram(nil, nil, ast.List(
			ast.Assign("v", ast.StorageKind(storage%6), int(argReg%8), &ast.BinaryExpr{Op: ast.Operator(op), Left: left, Right: ref}),
			ast.While(&ast.RelationalExpr{Op: ast.Operator(rel), Left: ast.IntConst(a), Right: ast.ReturnValue()}),
		))
		var sb strings.Builder
		g := NewGenerator(&sb)
		g.Generate(root, Context{ArgReg: int(argReg % 8)})
		if g.Visited() != ast.Count(root) {
			t.Errorf("Visited = %d, want %d", g.Visited(), ast.Count(root))
		}
	})
}
