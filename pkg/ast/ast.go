// Package ast defines the abstract syntax tree handed to the code generator.
//
// Every node kind is its own struct type. Child subtrees live in named
// fields (the fixed "slots" of each kind) and list contexts such as
// declarations, statements, parameters and call arguments are chained
// through the embedded Link.
package ast

import "fmt"

// Kind discriminates the node types.
type Kind int

const (
	KindProgram Kind = iota
	KindVarDecl
	KindFunction
	KindStatementBlock
	KindFunctionCall
	KindArgument
	KindAssignment
	KindWhileLoop
	KindIfThenElse
	KindBinaryExpr
	KindRelationalExpr
	KindVarRef
	KindConstant
)

var kindNames = [...]string{
	KindProgram:        "Program",
	KindVarDecl:        "VarDecl",
	KindFunction:       "Function",
	KindStatementBlock: "StatementBlock",
	KindFunctionCall:   "FunctionCall",
	KindArgument:       "Argument",
	KindAssignment:     "Assignment",
	KindWhileLoop:      "WhileLoop",
	KindIfThenElse:     "IfThenElse",
	KindBinaryExpr:     "BinaryExpr",
	KindRelationalExpr: "RelationalExpr",
	KindVarRef:         "VarRef",
	KindConstant:       "Constant",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a kind name back to its Kind.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), true
		}
	}
	return 0, false
}

// ValueType is the declared type of a variable or the literal kind of a
// constant. The zero value is Int.
type ValueType int

const (
	Int ValueType = iota
	Long
	String
	ReturnVal
)

func (t ValueType) String() string {
	switch t {
	case Int:
		return "int"
	case Long:
		return "long"
	case String:
		return "string"
	case ReturnVal:
		return "retval"
	}
	return fmt.Sprintf("ValueType(%d)", int(t))
}

// StorageKind says where a named value lives. The zero value is Global.
type StorageKind int

const (
	Global StorageKind = iota
	GlobalArray
	Parameter
	Local
)

func (s StorageKind) String() string {
	switch s {
	case Global:
		return "global"
	case GlobalArray:
		return "array"
	case Parameter:
		return "param"
	case Local:
		return "local"
	}
	return fmt.Sprintf("StorageKind(%d)", int(s))
}

// Operator is the character code of a binary or relational operator.
type Operator rune

const (
	OpAdd      Operator = '+'
	OpSub      Operator = '-'
	OpEqual    Operator = '='
	OpNotEqual Operator = '!'
	OpGreater  Operator = '>'
	OpLess     Operator = '<'
)

func (o Operator) String() string { return string(rune(o)) }

// Node is implemented by every AST node type in this package.
type Node interface {
	Kind() Kind
	link() *Link
}

// Link is embedded in every node. Next is the following element of the
// list the node belongs to, or nil at the end of the list.
type Link struct {
	Next Node
}

func (l *Link) link() *Link { return l }

// Next returns the sibling following n, or nil.
func Next(n Node) Node {
	if n == nil {
		return nil
	}
	return n.link().Next
}

// SetNext links sib after n.
func SetNext(n, sib Node) {
	n.link().Next = sib
}

// Program is the tree root.
type Program struct {
	Link
	Globals   Node // VarDecl list
	Functions Node // Function list
	Main      Node // statement list
}

// VarDecl declares a global, a global array, a parameter or a local.
//
//	int x;        VarDecl{Name: "x"}
//	int a[10];    VarDecl{Name: "a", Storage: GlobalArray, Size: 10}
//	f(int p, ...) VarDecl{Name: "p", Storage: Parameter, Slot: 0}
type VarDecl struct {
	Link
	Name    string
	Type    ValueType
	Storage StorageKind
	Slot    int    // parameter/local index
	Size    int    // element count of a global array
	Text    string // initial text of a global string
}

// Function is a function definition.
type Function struct {
	Link
	Name   string
	Params Node // VarDecl list
	Body   Node // statement list
	Locals Node // VarDecl list
}

// StatementBlock wraps a statement list. The generator never sees one in
// practice; it is kept for the tree dump.
type StatementBlock struct {
	Link
	Statements Node
}

// FunctionCall calls Name with the Argument list Args.
type FunctionCall struct {
	Link
	Name string
	Args Node
}

// Argument is one element of a call's argument list.
type Argument struct {
	Link
	Expr Node
}

// Assignment stores Value into the named variable. Index is set only for
// GlobalArray targets.
type Assignment struct {
	Link
	Name    string
	Storage StorageKind
	Slot    int
	Value   Node
	Index   Node
}

// WhileLoop repeats Body while Cond holds.
type WhileLoop struct {
	Link
	Cond Node
	Body Node
}

// IfThenElse runs Then when Cond holds and Else otherwise.
type IfThenElse struct {
	Link
	Cond Node
	Then Node
	Else Node
}

// BinaryExpr is Left Op Right for an arithmetic operator.
type BinaryExpr struct {
	Link
	Op    Operator
	Left  Node
	Right Node
}

// RelationalExpr is Left Op Right for a comparison. It produces no value;
// it branches when true.
type RelationalExpr struct {
	Link
	Op    Operator
	Left  Node
	Right Node
}

// VarRef reads a variable. Index is set only for GlobalArray references.
type VarRef struct {
	Link
	Name    string
	Storage StorageKind
	Slot    int
	Index   Node
}

// Constant is an int literal, a string literal (Value indexes the string
// table, Text holds the literal) or the current return value.
type Constant struct {
	Link
	Type  ValueType
	Value int
	Text  string
}

func (*Program) Kind() Kind        { return KindProgram }
func (*VarDecl) Kind() Kind        { return KindVarDecl }
func (*Function) Kind() Kind       { return KindFunction }
func (*StatementBlock) Kind() Kind { return KindStatementBlock }
func (*FunctionCall) Kind() Kind   { return KindFunctionCall }
func (*Argument) Kind() Kind       { return KindArgument }
func (*Assignment) Kind() Kind     { return KindAssignment }
func (*WhileLoop) Kind() Kind      { return KindWhileLoop }
func (*IfThenElse) Kind() Kind     { return KindIfThenElse }
func (*BinaryExpr) Kind() Kind     { return KindBinaryExpr }
func (*RelationalExpr) Kind() Kind { return KindRelationalExpr }
func (*VarRef) Kind() Kind         { return KindVarRef }
func (*Constant) Kind() Kind       { return KindConstant }

// New returns an empty node of the given kind: int type, global storage,
// zero value, no text, no children and no sibling. It returns nil for an
// unknown kind.
func New(kind Kind) Node {
	switch kind {
	case KindProgram:
		return &Program{}
	case KindVarDecl:
		return &VarDecl{}
	case KindFunction:
		return &Function{}
	case KindStatementBlock:
		return &StatementBlock{}
	case KindFunctionCall:
		return &FunctionCall{}
	case KindArgument:
		return &Argument{}
	case KindAssignment:
		return &Assignment{}
	case KindWhileLoop:
		return &WhileLoop{}
	case KindIfThenElse:
		return &IfThenElse{}
	case KindBinaryExpr:
		return &BinaryExpr{}
	case KindRelationalExpr:
		return &RelationalExpr{}
	case KindVarRef:
		return &VarRef{}
	case KindConstant:
		return &Constant{}
	}
	return nil
}

// Children returns the child slots of n in canonical order. Empty slots
// are returned as nil so that slot positions stay fixed per kind.
func Children(n Node) []Node {
	switch n := n.(type) {
	case *Program:
		return []Node{n.Globals, n.Functions, n.Main}
	case *Function:
		return []Node{n.Params, n.Body, n.Locals}
	case *StatementBlock:
		return []Node{n.Statements}
	case *FunctionCall:
		return []Node{n.Args}
	case *Argument:
		return []Node{n.Expr}
	case *Assignment:
		return []Node{n.Value, n.Index}
	case *WhileLoop:
		return []Node{n.Cond, n.Body}
	case *IfThenElse:
		return []Node{n.Cond, n.Then, n.Else}
	case *BinaryExpr:
		return []Node{n.Left, n.Right}
	case *RelationalExpr:
		return []Node{n.Left, n.Right}
	case *VarRef:
		return []Node{n.Index}
	}
	return nil
}

// Siblings returns n and every node chained after it.
func Siblings(n Node) []Node {
	var out []Node
	for ; n != nil; n = Next(n) {
		out = append(out, n)
	}
	return out
}

// Len returns the length of the list starting at n.
func Len(n Node) int {
	count := 0
	for ; n != nil; n = Next(n) {
		count++
	}
	return count
}
