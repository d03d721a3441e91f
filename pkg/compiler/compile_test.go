package compiler

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"rvgen/pkg/ast"
)

func TestCompileRejectsInvalidTrees(t *testing.T) {
	args := make([]ast.Node, 7)
	for i := range args {
		args[i] = ast.IntConst(i)
	}
	shared := ast.IntConst(1)

	tests := []struct {
		name string
		root ast.Node
		want string
	}{
		{"nil tree", nil, "tree is empty"},
		{"statement as root", ast.Call("f"), "want Program"},
		{"seven arguments", ast.NewProgram(nil, nil, ast.Call("f", args...)), "more than 6 arguments"},
		{"expression as statement", ast.NewProgram(nil, nil, ast.IntConst(1)), "is not allowed as a statement"},
		{"condition is not relational", ast.NewProgram(nil, nil, ast.While(ast.IntConst(1))), "is not allowed as a relational condition"},
		{"shared node", ast.NewProgram(nil, nil, ast.Call("f", ast.Add(shared, shared))), "already part of the tree"},
		{"slot out of range", ast.NewProgram(nil, nil, ast.Assign("p", ast.Parameter, 6, ast.IntConst(1))), "frame slot 6"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Compile(tt.root)
			if res != nil {
				t.Errorf("an invalid tree must produce no output, got:\n%s", res.Assembly)
			}
			if !errors.Is(err, ErrInvalidTree) {
				t.Fatalf("err = %v, want ErrInvalidTree", err)
			}
			var serr *ast.StructureError
			if !errors.As(err, &serr) {
				t.Errorf("err = %v, want a *ast.StructureError inside", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestCompileReturnsDiagnosticsWithOutput(t *testing.T) {
	root := ast.NewProgram(nil, nil, ast.List(
		ast.Assign("x", ast.Global, 0, &ast.Constant{Type: ast.Long, Value: 3}),
		ast.Call("printInt", ast.IntConst(1)),
	))
	res, err := Compile(root, WithAssemble())
	if err == nil {
		t.Fatal("expected a diagnostic")
	}
	if errors.Is(err, ErrInvalidTree) {
		t.Errorf("diagnostics are not validation failures: %v", err)
	}
	if res == nil {
		t.Fatal("result should be returned together with diagnostics")
	}
	if !strings.Contains(res.Assembly, "#!! ") {
		t.Errorf("assembly lacks the marker:\n%s", res.Assembly)
	}
	if res.Program != nil {
		t.Error("output with diagnostics must not be assembled")
	}
}

func TestCompileOptions(t *testing.T) {
	loop := ast.NewProgram(nil, nil, ast.While(ast.Compare(ast.OpLess, ast.GlobalRef("i"), ast.IntConst(3))))

	res, err := Compile(loop, WithLabelBase(500))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(res.Labels) != 2 || res.Labels[0] != 500 || res.Labels[1] != 501 {
		t.Errorf("Labels = %v, want [500 501]", res.Labels)
	}
	if !strings.Contains(res.Assembly, ".LL500:") {
		t.Errorf("assembly does not use the label base:\n%s", res.Assembly)
	}
	if res.Visited != ast.Count(loop) {
		t.Errorf("Visited = %d, want %d", res.Visited, ast.Count(loop))
	}

	table := NewStringTable()
	table.Add("from the table")
	res, err = Compile(ast.NewProgram(nil, nil, ast.Call("printStr", ast.StringConst(0, "ignored"))), WithStrings(table))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !strings.Contains(res.Assembly, `.SC0:	.string	"from the table"`) {
		t.Errorf("WithStrings table not used:\n%s", res.Assembly)
	}
}

func TestCompileStringConflict(t *testing.T) {
	root := ast.NewProgram(nil, nil, ast.List(
		ast.Call("printStr", ast.StringConst(0, "one")),
		ast.Call("printStr", ast.StringConst(0, "two")),
	))
	res, err := Compile(root)
	if res != nil || !errors.Is(err, ErrInvalidTree) {
		t.Errorf("Compile = %v, %v; want nil and ErrInvalidTree", res, err)
	}
}

func TestCompileAssembles(t *testing.T) {
	res, err := Compile(ast.NewProgram(ast.DeclGlobal("x"), nil,
		ast.Assign("x", ast.Global, 0, ast.IntConst(1)),
	), WithAssemble())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if res.Program == nil {
		t.Fatal("Program is nil")
	}
	if _, ok := res.Program.Symbols["x"]; !ok {
		t.Error("symbol x missing from the assembled program")
	}
	if res.Program.Entry != res.Program.Symbols["program"] {
		t.Errorf("entry = 0x%X, want the program label", res.Program.Entry)
	}
}

func TestCompileEmptyProgram(t *testing.T) {
	res, err := Compile(ast.NewProgram(nil, nil, nil), WithAssemble())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if res.Visited != 1 {
		t.Errorf("Visited = %d, want 1", res.Visited)
	}
	if !strings.Contains(res.Assembly, "program:\n\tli\ta0, 0\n\tli\ta7, 93\n\tecall\n") {
		t.Errorf("empty program should only exit:\n%s", res.Assembly)
	}
}

// sampleTree builds a small program whose shape depends on n.
func sampleTree(n int) ast.Node {
	return ast.NewProgram(
		ast.List(ast.DeclGlobal("i"), ast.DeclArray("buf", n+1)),
		ast.Func("show", ast.DeclParam("v", 0), nil, ast.Call("printInt", ast.Param("v", 0))),
		ast.List(
			ast.While(ast.Compare(ast.OpLess, ast.GlobalRef("i"), ast.IntConst(n)),
				ast.AssignIndex("buf", ast.GlobalRef("i"), ast.GlobalRef("i")),
				ast.If(ast.Compare(ast.OpEqual, ast.GlobalRef("i"), ast.IntConst(1)), ast.Call("show", ast.GlobalRef("i")), nil),
				ast.Assign("i", ast.Global, 0, ast.Add(ast.GlobalRef("i"), ast.IntConst(1))),
			),
			ast.Call("printStr", ast.StringConst(0, fmt.Sprintf("done %d\n", n))),
		),
	)
}

func TestCompileConcurrently(t *testing.T) {
	want := make([]string, 8)
	for i := range want {
		res, err := Compile(sampleTree(i))
		if err != nil {
			t.Fatalf("Compile(%d): %v", i, err)
		}
		want[i] = res.Assembly
	}

	for i := range want {
		i := i
		t.Run(fmt.Sprintf("tree-%d", i), func(t *testing.T) {
			t.Parallel()
			for rep := 0; rep < 20; rep++ {
				res, err := Compile(sampleTree(i))
				if err != nil {
					t.Fatalf("Compile: %v", err)
				}
				if res.Assembly != want[i] {
					t.Fatalf("output differs between runs")
				}
			}
		})
	}
}

func TestGenerateToleratesEmptySlots(t *testing.T) {
	// The generator is also usable without validation; empty slots must
	// not crash it.
	nodes := []ast.Node{
		&ast.Program{},
		&ast.Function{Name: "f"},
		&ast.FunctionCall{Name: "f"},
		&ast.Argument{},
		&ast.Assignment{Name: "x"},
		&ast.Assignment{Name: "a", Storage: ast.GlobalArray},
		&ast.WhileLoop{},
		&ast.IfThenElse{},
		&ast.BinaryExpr{Op: ast.OpAdd},
		&ast.RelationalExpr{Op: ast.OpLess},
		&ast.VarRef{Name: "a", Storage: ast.GlobalArray},
		&ast.StatementBlock{},
	}
	for _, n := range nodes {
		t.Run(n.Kind().String(), func(t *testing.T) {
			var sb strings.Builder
			NewGenerator(&sb).Generate(n, Context{})
		})
	}
}
