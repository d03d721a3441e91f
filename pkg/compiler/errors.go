package compiler

import (
	"errors"
	"fmt"

	"rvgen/pkg/ast"
)

// ErrInvalidTree wraps structural validation failures from Compile.
var ErrInvalidTree = errors.New("invalid tree")

// ErrorKind classifies a code generation diagnostic.
type ErrorKind int

const (
	ErrUnknownType ErrorKind = iota + 1
	ErrUnknownStorage
	ErrUnknownOperator
	ErrTooManyArgs
	ErrNoBranchTarget
	ErrUnknownNode
	ErrDataSection
)

func (k ErrorKind) String() string {
	switch k {
	case ErrUnknownType:
		return "unknown type"
	case ErrUnknownStorage:
		return "unknown storage"
	case ErrUnknownOperator:
		return "unknown operator"
	case ErrTooManyArgs:
		return "too many arguments"
	case ErrNoBranchTarget:
		return "no branch target"
	case ErrUnknownNode:
		return "unknown node"
	case ErrDataSection:
		return "data section"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// CodegenError is a problem found while rendering a node. Generation goes
// on after one; the output carries a "#!!" marker where it happened.
type CodegenError struct {
	Kind    ErrorKind
	Message string
	Node    ast.Node
}

func (e *CodegenError) Error() string {
	if e.Node == nil {
		return "codegen: " + e.Message
	}
	return fmt.Sprintf("codegen: %s (in %s)", e.Message, e.Node.Kind())
}
