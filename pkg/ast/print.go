package ast

import (
	"fmt"
	"io"
	"strings"
)

const indentWidth = 3

// Fprint writes a depth-indented dump of the tree rooted at n. Lists are
// printed at the depth of their first element.
func Fprint(w io.Writer, n Node) error {
	p := &printer{w: w}
	p.list(n, 0)
	return p.err
}

// Sprint returns the dump produced by Fprint.
func Sprint(n Node) string {
	var sb strings.Builder
	_ = Fprint(&sb, n)
	return sb.String()
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(level int, format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, "%s"+format, append([]any{strings.Repeat(" ", level*indentWidth)}, args...)...)
}

func (p *printer) section(level int, name string) {
	p.printf(level, "--%s--\n", name)
}

func (p *printer) list(n Node, level int) {
	for ; n != nil; n = Next(n) {
		p.node(n, level)
	}
}

func (p *printer) node(n Node, level int) {
	switch n := n.(type) {
	case *Program:
		p.printf(level, "Whole Program AST:\n")
		p.section(level+1, "globalvars")
		p.list(n.Globals, level+1)
		p.section(level+1, "functions")
		p.list(n.Functions, level+1)
		p.section(level+1, "program")
		p.list(n.Main, level+1)
	case *VarDecl:
		switch n.Type {
		case Int:
			if n.Storage == GlobalArray {
				p.printf(level, "Variable declaration (%s) type int array size %d\n", n.Name, n.Size)
			} else {
				p.printf(level, "Variable declaration (%s) type int\n", n.Name)
			}
		case Long:
			p.printf(level, "Variable declaration (%s) type long\n", n.Name)
		case String:
			p.printf(level, "Variable declaration (%s) type string\n", n.Name)
		default:
			p.printf(level, "Variable declaration (%s) type unknown (%d)\n", n.Name, int(n.Type))
		}
	case *Function:
		p.printf(level, "Function def (%s)\n", n.Name)
		p.section(level+1, "params")
		p.list(n.Params, level+1)
		p.section(level+1, "locals")
		p.list(n.Locals, level+1)
		p.section(level+1, "body")
		p.list(n.Body, level+1)
	case *StatementBlock:
		p.printf(level, "Statement block\n")
		p.list(n.Statements, level+1)
	case *FunctionCall:
		p.printf(level, "Function call (%s)\n", n.Name)
		p.list(n.Args, level+1)
	case *Argument:
		p.printf(level, "Funcall argument\n")
		p.list(n.Expr, level+1)
	case *Assignment:
		if n.Storage == GlobalArray {
			p.printf(level, "Assignment to (%s) array var\n", n.Name)
			p.section(level+1, "index")
			p.list(n.Index, level+1)
		} else {
			p.printf(level, "Assignment to (%s) simple var\n", n.Name)
		}
		p.section(level+1, "right hand side")
		p.list(n.Value, level+1)
	case *WhileLoop:
		p.printf(level, "While loop\n")
		p.list(n.Cond, level+1)
		p.section(level+1, "body")
		p.list(n.Body, level+1)
	case *IfThenElse:
		p.printf(level, "If then\n")
		p.list(n.Cond, level+1)
		p.section(level+1, "ifpart")
		p.list(n.Then, level+1)
		p.section(level+1, "elsepart")
		p.list(n.Else, level+1)
	case *BinaryExpr:
		p.printf(level, "Expression (op %d,%c)\n", int(n.Op), rune(n.Op))
		p.list(n.Left, level+1)
		p.list(n.Right, level+1)
	case *RelationalExpr:
		p.printf(level, "Relational Expression (op %d,%c)\n", int(n.Op), rune(n.Op))
		p.list(n.Left, level+1)
		p.list(n.Right, level+1)
	case *VarRef:
		if n.Storage == GlobalArray {
			p.printf(level, "Variable ref (%s) array ref\n", n.Name)
			p.list(n.Index, level+1)
		} else {
			p.printf(level, "Variable ref (%s)\n", n.Name)
		}
	case *Constant:
		switch n.Type {
		case Int:
			p.printf(level, "Int Constant = %d\n", n.Value)
		case String:
			p.printf(level, "String Constant = (%s)\n", n.Text)
		case ReturnVal:
			p.printf(level, "Return Value\n")
		default:
			p.printf(level, "Unknown Constant\n")
		}
	default:
		p.printf(level, "Unknown AST node!\n")
	}
}
