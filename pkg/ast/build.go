package ast

// List chains nodes through their Next links and returns the head.
// Nil entries are skipped. Any list already hanging off the last node is
// preserved.
func List(nodes ...Node) Node {
	var head, tail Node
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if head == nil {
			head = n
		} else {
			SetNext(tail, n)
		}
		tail = n
		for Next(tail) != nil {
			tail = Next(tail)
		}
	}
	return head
}

func NewProgram(globals, functions, main Node) *Program {
	return &Program{Globals: globals, Functions: functions, Main: main}
}

func IntConst(v int) *Constant { return &Constant{Type: Int, Value: v} }

// StringConst refers to entry index of the string table.
func StringConst(index int, text string) *Constant {
	return &Constant{Type: String, Value: index, Text: text}
}

func ReturnValue() *Constant { return &Constant{Type: ReturnVal} }

func GlobalRef(name string) *VarRef { return &VarRef{Name: name, Storage: Global} }

func ArrayRef(name string, index Node) *VarRef {
	return &VarRef{Name: name, Storage: GlobalArray, Index: index}
}

func Param(name string, slot int) *VarRef {
	return &VarRef{Name: name, Storage: Parameter, Slot: slot}
}

func LocalRef(name string, slot int) *VarRef {
	return &VarRef{Name: name, Storage: Local, Slot: slot}
}

func Add(left, right Node) *BinaryExpr { return &BinaryExpr{Op: OpAdd, Left: left, Right: right} }

func Sub(left, right Node) *BinaryExpr { return &BinaryExpr{Op: OpSub, Left: left, Right: right} }

func Compare(op Operator, left, right Node) *RelationalExpr {
	return &RelationalExpr{Op: op, Left: left, Right: right}
}

// Call builds a FunctionCall wrapping each expression in an Argument.
func Call(name string, args ...Node) *FunctionCall {
	wrapped := make([]Node, 0, len(args))
	for _, a := range args {
		wrapped = append(wrapped, &Argument{Expr: a})
	}
	return &FunctionCall{Name: name, Args: List(wrapped...)}
}

// Assign stores value into a global, parameter or local. storage must not
// be GlobalArray; use AssignIndex for arrays.
func Assign(name string, storage StorageKind, slot int, value Node) *Assignment {
	return &Assignment{Name: name, Storage: storage, Slot: slot, Value: value}
}

func AssignIndex(name string, index, value Node) *Assignment {
	return &Assignment{Name: name, Storage: GlobalArray, Value: value, Index: index}
}

func While(cond Node, body ...Node) *WhileLoop {
	return &WhileLoop{Cond: cond, Body: List(body...)}
}

func If(cond, then, els Node) *IfThenElse {
	return &IfThenElse{Cond: cond, Then: then, Else: els}
}

func DeclGlobal(name string) *VarDecl { return &VarDecl{Name: name} }

func DeclArray(name string, size int) *VarDecl {
	return &VarDecl{Name: name, Storage: GlobalArray, Size: size}
}

func DeclString(name, text string) *VarDecl {
	return &VarDecl{Name: name, Type: String, Text: text}
}

func DeclParam(name string, slot int) *VarDecl {
	return &VarDecl{Name: name, Storage: Parameter, Slot: slot}
}

func DeclLocal(name string, slot int) *VarDecl {
	return &VarDecl{Name: name, Storage: Local, Slot: slot}
}

func Func(name string, params, locals Node, body ...Node) *Function {
	return &Function{Name: name, Params: params, Locals: locals, Body: List(body...)}
}
