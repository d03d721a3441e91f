package ast

import (
	"errors"
	"fmt"
)

// MaxArgs is the number of argument registers; calls and parameter lists
// cannot go beyond it.
const MaxArgs = 6

// MaxSlots is the number of word slots a 128-byte frame has after the saved
// ra and fp. Locals may use any of them; parameters only the first MaxArgs.
const MaxSlots = 30

// StructureError reports a node whose shape does not fit its place in the
// tree.
type StructureError struct {
	Path string
	Msg  string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}

type slotClass int

const (
	classGlobalDecls slotClass = iota
	classParamDecls
	classLocalDecls
	classFunctions
	classStatements
	classExpr
	classCond
	classArgs
)

func (c slotClass) String() string {
	switch c {
	case classGlobalDecls:
		return "global declaration"
	case classParamDecls:
		return "parameter declaration"
	case classLocalDecls:
		return "local declaration"
	case classFunctions:
		return "function definition"
	case classStatements:
		return "statement"
	case classExpr:
		return "expression"
	case classCond:
		return "relational condition"
	case classArgs:
		return "call argument"
	}
	return "node"
}

// Validate checks that root is a Program whose nodes all sit in slots that
// accept their kind. Every problem found is returned, joined, as
// *StructureError values. Unknown operators, value types and storage kinds
// are not checked here; the generator reports those.
func Validate(root Node) error {
	v := &validator{seen: make(map[Node]bool)}
	prog, ok := root.(*Program)
	switch {
	case root == nil || (ok && prog == nil):
		v.fail("program", "tree is empty")
		return errors.Join(v.errs...)
	case !ok:
		v.fail("program", "root is %s, want Program", root.Kind())
		return errors.Join(v.errs...)
	}
	v.seen[prog] = true
	if Next(prog) != nil {
		v.fail("program", "program root has a sibling")
	}
	v.list(prog.Globals, "program.globals", classGlobalDecls)
	v.list(prog.Functions, "program.functions", classFunctions)
	v.list(prog.Main, "program.main", classStatements)
	return errors.Join(v.errs...)
}

type validator struct {
	seen map[Node]bool
	errs []error
}

func (v *validator) fail(path, format string, args ...any) {
	v.errs = append(v.errs, &StructureError{Path: path, Msg: fmt.Sprintf(format, args...)})
}

// list checks every element of the sibling chain starting at n.
func (v *validator) list(n Node, path string, class slotClass) {
	i := 0
	for ; n != nil; n = Next(n) {
		at := fmt.Sprintf("%s[%d]", path, i)
		if v.seen[n] {
			v.fail(at, "%s node is already part of the tree (shared node or cyclic list)", n.Kind())
			return
		}
		v.seen[n] = true
		if class == classArgs && i == MaxArgs {
			v.fail(at, "call has more than %d arguments", MaxArgs)
		}
		if class == classParamDecls && i == MaxArgs {
			v.fail(at, "more than %d parameter declarations", MaxArgs)
		}
		v.node(n, at, class)
		i++
	}
}

// single checks a slot that holds exactly one node.
func (v *validator) single(n Node, path string, class slotClass, required bool) {
	if n == nil {
		if required {
			v.fail(path, "missing %s", class)
		}
		return
	}
	if Next(n) != nil {
		v.fail(path, "%s slot holds a list", class)
	}
	if v.seen[n] {
		v.fail(path, "%s node is already part of the tree (shared node or cyclic list)", n.Kind())
		return
	}
	v.seen[n] = true
	v.node(n, path, class)
}

func (v *validator) node(n Node, path string, class slotClass) {
	if !accepts(class, n) {
		v.fail(path, "%s is not allowed as a %s", n.Kind(), class)
		return
	}
	switch n := n.(type) {
	case *VarDecl:
		if n.Name == "" {
			v.fail(path, "declaration without a name")
		}
		switch class {
		case classGlobalDecls:
			if n.Storage == Parameter || n.Storage == Local {
				v.fail(path, "%s storage in the global declarations", n.Storage)
			}
			if n.Storage == GlobalArray && n.Size <= 0 {
				v.fail(path, "array %q has size %d", n.Name, n.Size)
			}
		case classParamDecls, classLocalDecls:
			if n.Storage == Global || n.Storage == GlobalArray {
				v.fail(path, "%s storage in a parameter or local list", n.Storage)
			}
			v.slot(n.Storage, n.Slot, path)
		}
	case *Function:
		if n.Name == "" {
			v.fail(path, "function without a name")
		}
		v.list(n.Params, path+".params", classParamDecls)
		v.list(n.Locals, path+".locals", classLocalDecls)
		v.list(n.Body, path+".body", classStatements)
	case *StatementBlock:
		v.list(n.Statements, path+".statements", classStatements)
	case *FunctionCall:
		if n.Name == "" {
			v.fail(path, "call without a function name")
		}
		v.list(n.Args, path+".args", classArgs)
	case *Argument:
		v.single(n.Expr, path+".expr", classExpr, true)
	case *Assignment:
		v.target(n.Name, n.Storage, n.Slot, n.Index, path)
		v.single(n.Value, path+".value", classExpr, true)
	case *WhileLoop:
		v.single(n.Cond, path+".cond", classCond, true)
		v.list(n.Body, path+".body", classStatements)
	case *IfThenElse:
		v.single(n.Cond, path+".cond", classCond, true)
		v.list(n.Then, path+".then", classStatements)
		v.list(n.Else, path+".else", classStatements)
	case *BinaryExpr:
		v.single(n.Left, path+".left", classExpr, true)
		v.single(n.Right, path+".right", classExpr, true)
	case *RelationalExpr:
		v.single(n.Left, path+".left", classExpr, true)
		v.single(n.Right, path+".right", classExpr, true)
	case *VarRef:
		v.target(n.Name, n.Storage, n.Slot, n.Index, path)
	}
}

// target checks the addressing fields shared by VarRef and Assignment.
func (v *validator) target(name string, storage StorageKind, slot int, index Node, path string) {
	switch storage {
	case Global, GlobalArray:
		if name == "" {
			v.fail(path, "%s variable without a name", storage)
		}
	case Parameter, Local:
		v.slot(storage, slot, path)
	}
	switch storage {
	case GlobalArray:
		v.single(index, path+".index", classExpr, true)
	case Global, Parameter, Local:
		if index != nil {
			v.fail(path, "index on %s variable %q", storage, name)
		}
	}
}

// slot checks a frame slot index. Parameters arrive in a0..a5, so only
// locals reach past the sixth slot.
func (v *validator) slot(storage StorageKind, slot int, path string) {
	limit := MaxSlots
	if storage == Parameter {
		limit = MaxArgs
	}
	if slot < 0 || slot >= limit {
		v.fail(path, "frame slot %d out of range 0..%d", slot, limit-1)
	}
}

func accepts(class slotClass, n Node) bool {
	switch class {
	case classGlobalDecls, classParamDecls, classLocalDecls:
		return n.Kind() == KindVarDecl
	case classFunctions:
		return n.Kind() == KindFunction
	case classStatements:
		switch n.Kind() {
		case KindFunctionCall, KindAssignment, KindWhileLoop, KindIfThenElse, KindStatementBlock:
			return true
		}
	case classExpr:
		switch n.Kind() {
		case KindBinaryExpr, KindVarRef, KindConstant:
			return true
		}
	case classCond:
		return n.Kind() == KindRelationalExpr
	case classArgs:
		return n.Kind() == KindArgument
	}
	return false
}
