package compiler

import (
	"fmt"
	"io"
	"testing"

	"rvgen/pkg/ast"
)

// longProgram builds a main body of n counting loops.
func longProgram(n int) ast.Node {
	stmts := make([]ast.Node, 0, n)
	for i := 0; i < n; i++ {
		stmts = append(stmts, ast.While(ast.Compare(ast.OpLess, ast.GlobalRef("i"), ast.IntConst(i)),
			ast.Assign("i", ast.Global, 0, ast.Add(ast.GlobalRef("i"), ast.IntConst(1))),
			ast.Call("printInt", ast.GlobalRef("i")),
		))
	}
	return ast.NewProgram(ast.DeclGlobal("i"), nil, ast.List(stmts...))
}

func BenchmarkGenerate(b *testing.B) {
	for _, n := range []int{10, 100, 1000} {
		root := longProgram(n)
		b.Run(fmt.Sprintf("loops=%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				g := NewGenerator(io.Discard)
				g.Generate(root, Context{})
				if err := g.Err(); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkCompileAndAssemble(b *testing.B) {
	root := longProgram(200)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Compile(root, WithAssemble()); err != nil {
			b.Fatal(err)
		}
	}
}
