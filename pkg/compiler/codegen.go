package compiler

import (
	"errors"
	"fmt"
	"io"

	"rvgen/pkg/ast"
)

const (
	// WordSize is the size in bytes of an int and of every frame slot.
	WordSize = 4
	// FrameSize is the fixed stack frame of every generated function:
	// ra at 0, the caller's fp at 4, a0..a5 at 8..28, further locals up to 124.
	FrameSize = 128
	// NumArgRegs is the number of argument registers a0..a5.
	NumArgRegs = ast.MaxArgs
	// NumSlots is the number of word slots in a frame after ra and fp.
	NumSlots = ast.MaxSlots
)

// SlotOffset is the frame-pointer offset of parameter or local slot i.
func SlotOffset(slot int) int {
	return (slot + 2) * WordSize
}

// Context carries what a node needs to know about where it sits.
//
// ArgReg is the argument register the current call argument goes to (and
// the register a return-value constant reads). Target is the label a
// relational expression branches to when it holds; 0 means no target.
type Context struct {
	ArgReg int
	Target int
}

// Generator walks an AST and writes RISC-V assembly text.
type Generator struct {
	out     io.Writer
	werr    error
	data    DataSection
	labels  *Labels
	errs    []*CodegenError
	visited int

	// stringGlobals records globals declared with string type; a
	// reference to one loads its address rather than its first word.
	stringGlobals map[string]bool
}

// NewGenerator returns a generator writing to w.
func NewGenerator(w io.Writer, opts ...Option) *Generator {
	return newGenerator(w, newConfig(opts))
}

func newGenerator(w io.Writer, cfg config) *Generator {
	return &Generator{
		out:           w,
		data:          cfg.data,
		labels:        NewLabels(cfg.labelBase),
		stringGlobals: make(map[string]bool),
	}
}

// Errors returns the diagnostics recorded so far.
func (g *Generator) Errors() []*CodegenError {
	out := make([]*CodegenError, len(g.errs))
	copy(out, g.errs)
	return out
}

// Err joins the recorded diagnostics and any write error into one error.
func (g *Generator) Err() error {
	errs := make([]error, 0, len(g.errs)+1)
	for _, e := range g.errs {
		errs = append(errs, e)
	}
	if g.werr != nil {
		errs = append(errs, fmt.Errorf("write assembly: %w", g.werr))
	}
	return errors.Join(errs...)
}

// Visited is the number of nodes rendered so far.
func (g *Generator) Visited() int { return g.visited }

// Labels returns the label allocator of this generator.
func (g *Generator) Labels() *Labels { return g.labels }

func (g *Generator) line(format string, args ...any) {
	if g.werr != nil {
		return
	}
	_, g.werr = fmt.Fprintf(g.out, format+"\n", args...)
}

func (g *Generator) comment(text string) {
	g.line("\t#--%s--", text)
}

// fail records a diagnostic and leaves a marker in the output so the
// problem is visible in the listing too.
func (g *Generator) fail(kind ErrorKind, n ast.Node, format string, args ...any) {
	e := &CodegenError{Kind: kind, Message: fmt.Sprintf(format, args...), Node: n}
	g.errs = append(g.errs, e)
	g.line("#!! %s", e.Message)
}

func (g *Generator) push() {
	g.line("\taddi\tsp, sp, -%d", WordSize)
	g.line("\tsw\tt0, 0(sp)")
}

// popT1 pops the saved left operand into t1.
func (g *Generator) popT1() {
	g.line("\tlw\tt1, 0(sp)")
	g.line("\taddi\tsp, sp, %d", WordSize)
}

// Generate renders n and every sibling after it. Each node gets the
// context returned by the node before it, which is how an argument list
// walks through a0..a5.
func (g *Generator) Generate(n ast.Node, ctx Context) {
	for ; n != nil; n = ast.Next(n) {
		ctx = g.node(n, ctx)
	}
}

func (g *Generator) node(n ast.Node, ctx Context) Context {
	g.visited++
	switch n := n.(type) {
	case *ast.Program:
		g.program(n)
	case *ast.VarDecl:
		g.varDecl(n)
	case *ast.Function:
		g.function(n)
	case *ast.StatementBlock:
		g.Generate(n.Statements, ctx)
	case *ast.FunctionCall:
		g.comment("funcall to " + n.Name)
		g.Generate(n.Args, Context{})
		g.line("\tjal\t%s", n.Name)
		ctx.ArgReg = 0
	case *ast.Argument:
		g.Generate(n.Expr, Context{ArgReg: ctx.ArgReg})
		if ctx.ArgReg >= NumArgRegs {
			g.fail(ErrTooManyArgs, n, "argument %d has no register (only a0..a%d)", ctx.ArgReg, NumArgRegs-1)
		} else {
			g.line("\tmv\ta%d, t0", ctx.ArgReg)
		}
		ctx.ArgReg++
	case *ast.Assignment:
		g.assignment(n)
	case *ast.WhileLoop:
		g.whileLoop(n, ctx)
	case *ast.IfThenElse:
		g.ifThenElse(n, ctx)
	case *ast.BinaryExpr:
		g.binary(n, ctx)
	case *ast.RelationalExpr:
		g.relational(n, ctx)
	case *ast.VarRef:
		g.varRef(n)
	case *ast.Constant:
		g.constant(n, ctx)
	default:
		g.fail(ErrUnknownNode, n, "unknown AST node %T", n)
	}
	return ctx
}

func (g *Generator) program(n *ast.Program) {
	g.line("#\n# RISC-V assembly output\n#")
	g.line("\n#\n# data section\n#\n\t.data\n#--string constants--")
	if g.data != nil {
		if err := g.data.WriteDataSection(g.out); err != nil {
			g.fail(ErrDataSection, n, "data section: %v", err)
		}
	}
	g.line("\t.align\t2")
	g.line("\n#--Globals Declarations--")
	g.Generate(n.Globals, Context{})

	g.line("\n\n#\n# Program Instructions\n#")
	g.line("\t.text\nprogram:")
	g.Generate(n.Main, Context{})
	g.line("\tli\ta0, 0\n\tli\ta7, 93\n\tecall")

	g.line("\n#\n# Functions\n#\n")
	g.Generate(n.Functions, Context{})

	g.line("\n#\n# Library functions\n#\n")
	g.line("# Print a null-terminated string: arg: a0 == string address")
	g.line("printStr:\n\tli\ta7, 4\n\tecall\n\tret")
	g.line("\n# Print a decimal integer: arg: a0 == value")
	g.line("printInt:\n\tli\ta7, 1\n\tecall\n\tret")
	g.line("\n# Read in a decimal integer: return: a0 == value")
	g.line("readInt:\n\tli\ta7, 5\n\tecall\n\tret")
}

func (g *Generator) varDecl(n *ast.VarDecl) {
	switch n.Type {
	case ast.Int:
		switch n.Storage {
		case ast.Global:
			g.line("%s:\t.word\t0", n.Name)
		case ast.GlobalArray:
			g.line("%s:\t.space\t%d", n.Name, n.Size*WordSize)
		case ast.Parameter, ast.Local:
			g.storeArg(n)
		default:
			g.fail(ErrUnknownStorage, n, "unknown storage kind %d for variable %s", int(n.Storage), n.Name)
		}
	case ast.String:
		switch n.Storage {
		case ast.Global:
			g.stringGlobals[n.Name] = true
			g.line("%s:\t.string\t%s", n.Name, quoteAsm(n.Text))
			g.line("\t.align\t2")
		case ast.Parameter, ast.Local:
			g.storeArg(n)
		default:
			g.fail(ErrUnknownStorage, n, "string variable %s cannot have %s storage", n.Name, n.Storage)
		}
	default:
		g.fail(ErrUnknownType, n, "unknown variable type %s for %s", n.Type, n.Name)
	}
}

// storeArg spills the incoming argument register of a parameter or local
// into its frame slot. Locals past a5 have no register and emit nothing.
func (g *Generator) storeArg(n *ast.VarDecl) {
	if n.Storage == ast.Local && n.Slot >= NumArgRegs && n.Slot < NumSlots {
		return
	}
	if n.Slot < 0 || n.Slot >= NumArgRegs {
		g.fail(ErrTooManyArgs, n, "frame slot %d of %s has no argument register", n.Slot, n.Name)
		return
	}
	g.line("\tsw\ta%d, %d(fp)", n.Slot, SlotOffset(n.Slot))
}

func (g *Generator) function(n *ast.Function) {
	g.comment("FUNCTION")
	g.line("%s:", n.Name)
	g.line("\taddi\tsp, sp, -%d", FrameSize)
	g.line("\tsw\tfp, 4(sp)")
	g.line("\tsw\tra, 0(sp)")
	g.line("\tmv\tfp, sp")
	for i := 0; i < NumArgRegs; i++ {
		g.line("\tsw\ta%d, %d(sp)", i, SlotOffset(i))
	}
	g.Generate(n.Params, Context{})
	g.Generate(n.Locals, Context{})
	g.Generate(n.Body, Context{})
	g.line("\tmv\tsp, fp")
	g.line("\tlw\tfp, 4(sp)")
	g.line("\tlw\tra, 0(sp)")
	g.line("\taddi\tsp, sp, %d", FrameSize)
	g.line("\tret\n")
}

func (g *Generator) assignment(n *ast.Assignment) {
	g.comment("assignment")
	g.Generate(n.Value, Context{})
	switch n.Storage {
	case ast.Global:
		g.line("\tsw\tt0, %s, t1", n.Name)
	case ast.Parameter, ast.Local:
		g.line("\tsw\tt0, %d(fp)", SlotOffset(n.Slot))
	case ast.GlobalArray:
		g.comment("Array")
		// The index expression uses t0 too, so the value waits on the stack.
		g.push()
		g.Generate(n.Index, Context{})
		g.elementAddress(n.Name)
		g.line("\tlw\tt0, 0(sp)")
		g.line("\taddi\tsp, sp, %d", WordSize)
		g.line("\tsw\tt0, 0(t1)")
	default:
		g.fail(ErrUnknownStorage, n, "unknown storage kind %d in assignment to %s", int(n.Storage), n.Name)
	}
}

// elementAddress turns the index in t0 into the element address in t1.
func (g *Generator) elementAddress(name string) {
	g.line("\tslli\tt0, t0, 2")
	g.line("\tla\tt1, %s", name)
	g.line("\tadd\tt1, t1, t0")
}

// whileLoop emits the condition at the bottom: jump to the test first,
// and the test branches back to the body while it holds.
func (g *Generator) whileLoop(n *ast.WhileLoop, ctx Context) {
	body := g.labels.Next()
	cond := g.labels.Next()
	g.comment("While loop")
	g.line("\tb\t%s", LabelName(cond))
	g.line("%s:", LabelName(body))
	g.comment("body")
	g.Generate(n.Body, ctx)
	g.comment("condition")
	g.line("%s:", LabelName(cond))
	g.Generate(n.Cond, Context{Target: body})
	g.comment("endloop")
}

// ifThenElse places the else part on the fall-through path of the
// condition and the then part behind the branch target.
func (g *Generator) ifThenElse(n *ast.IfThenElse, ctx Context) {
	then := g.labels.Next()
	end := g.labels.Next()
	g.comment("ifthenelse")
	g.Generate(n.Cond, Context{Target: then})
	g.comment("elsepart")
	g.Generate(n.Else, ctx)
	g.line("\tb\t%s", LabelName(end))
	g.line("%s:", LabelName(then))
	g.comment("ifpart")
	g.Generate(n.Then, ctx)
	g.line("%s:", LabelName(end))
	g.comment("endif")
}

func (g *Generator) binary(n *ast.BinaryExpr, ctx Context) {
	g.comment(fmt.Sprintf("Binary OP Expression: (%c)", rune(n.Op)))
	g.Generate(n.Left, ctx)
	g.push()
	g.Generate(n.Right, ctx)
	g.popT1()
	switch n.Op {
	case ast.OpAdd:
		g.line("\tadd\tt0, t1, t0")
	case ast.OpSub:
		g.line("\tsub\tt0, t1, t0")
	default:
		g.fail(ErrUnknownOperator, n, "unknown arithmetic operator %q", rune(n.Op))
	}
}

var branchOps = map[ast.Operator]string{
	ast.OpEqual:    "beq",
	ast.OpNotEqual: "bne",
	ast.OpGreater:  "bgt",
	ast.OpLess:     "blt",
}

func (g *Generator) relational(n *ast.RelationalExpr, ctx Context) {
	g.line("\t# Relational Expression (op %d,%c)", int(n.Op), rune(n.Op))
	g.Generate(n.Left, Context{})
	g.push()
	g.Generate(n.Right, Context{})
	g.popT1()
	op, ok := branchOps[n.Op]
	switch {
	case !ok:
		g.fail(ErrUnknownOperator, n, "unknown relational operator %q", rune(n.Op))
	case ctx.Target == 0:
		g.fail(ErrNoBranchTarget, n, "comparison (op %c) outside a loop or if condition", rune(n.Op))
	default:
		g.line("\t%s\tt1, t0, %s", op, LabelName(ctx.Target))
	}
}

func (g *Generator) varRef(n *ast.VarRef) {
	switch n.Storage {
	case ast.Global:
		if g.stringGlobals[n.Name] {
			g.line("\tla\tt0, %s", n.Name)
		} else {
			g.line("\tlw\tt0, %s", n.Name)
		}
	case ast.Parameter, ast.Local:
		g.line("\tlw\tt0, %d(fp)", SlotOffset(n.Slot))
	case ast.GlobalArray:
		g.comment("ArrayReference")
		g.Generate(n.Index, Context{})
		g.elementAddress(n.Name)
		g.line("\tlw\tt0, 0(t1)")
	default:
		g.fail(ErrUnknownStorage, n, "unknown storage kind %d in reference to %s", int(n.Storage), n.Name)
	}
}

func (g *Generator) constant(n *ast.Constant, ctx Context) {
	switch n.Type {
	case ast.Int:
		g.line("\tli\tt0, %d", n.Value)
	case ast.String:
		g.line("\tla\tt0, %s", StringLabel(n.Value))
	case ast.ReturnVal:
		if ctx.ArgReg >= NumArgRegs {
			g.fail(ErrTooManyArgs, n, "return value read from a%d, past a%d", ctx.ArgReg, NumArgRegs-1)
			return
		}
		g.line("\tmv\tt0, a%d", ctx.ArgReg)
	default:
		g.fail(ErrUnknownType, n, "constant of unsupported type %s", n.Type)
	}
}
