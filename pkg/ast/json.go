package ast

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"unicode/utf8"
)

// jsonNode is the on-disk form of a node. List slots are JSON arrays;
// single-node slots are objects.
type jsonNode struct {
	Kind    string `json:"kind"`
	Name    string `json:"name,omitempty"`
	Type    string `json:"type,omitempty"`
	Storage string `json:"storage,omitempty"`
	Slot    int    `json:"slot,omitempty"`
	Size    int    `json:"size,omitempty"`
	Value   int    `json:"value,omitempty"`
	Text    string `json:"text,omitempty"`
	Op      string `json:"op,omitempty"`

	Globals    []*jsonNode `json:"globals,omitempty"`
	Functions  []*jsonNode `json:"functions,omitempty"`
	Main       []*jsonNode `json:"main,omitempty"`
	Params     []*jsonNode `json:"params,omitempty"`
	Locals     []*jsonNode `json:"locals,omitempty"`
	Body       []*jsonNode `json:"body,omitempty"`
	Statements []*jsonNode `json:"statements,omitempty"`
	Args       []*jsonNode `json:"args,omitempty"`
	Then       []*jsonNode `json:"then,omitempty"`
	Else       []*jsonNode `json:"else,omitempty"`

	Expr  *jsonNode `json:"expr,omitempty"`
	Rhs   *jsonNode `json:"rhs,omitempty"`
	Index *jsonNode `json:"index,omitempty"`
	Cond  *jsonNode `json:"cond,omitempty"`
	Left  *jsonNode `json:"left,omitempty"`
	Right *jsonNode `json:"right,omitempty"`
}

// Decode reads a JSON encoded tree. A top-level array decodes as a sibling
// list, the form Encode writes for a node that has siblings.
func Decode(r io.Reader) (Node, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode ast: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
		var list []*jsonNode
		if err := dec.Decode(&list); err != nil {
			return nil, fmt.Errorf("decode ast: %w", err)
		}
		return fromJSONList(list)
	}
	var root jsonNode
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("decode ast: %w", err)
	}
	return fromJSON(&root)
}

// Encode writes n (and its siblings, if it has any, as a JSON array) in the
// form Decode accepts.
func Encode(w io.Writer, n Node) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if Next(n) != nil {
		return enc.Encode(toJSONList(n))
	}
	return enc.Encode(toJSON(n))
}

func fromJSONList(in []*jsonNode) (Node, error) {
	nodes := make([]Node, 0, len(in))
	for _, j := range in {
		n, err := fromJSON(j)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return List(nodes...), nil
}

func fromJSON(j *jsonNode) (Node, error) {
	if j == nil {
		return nil, nil
	}
	kind, ok := ParseKind(j.Kind)
	if !ok {
		return nil, fmt.Errorf("unknown node kind %q", j.Kind)
	}
	typ, err := parseValueType(j.Type)
	if err != nil {
		return nil, err
	}
	storage, err := parseStorage(j.Storage)
	if err != nil {
		return nil, err
	}
	var op Operator
	if j.Op != "" {
		r, size := utf8.DecodeRuneInString(j.Op)
		if size != len(j.Op) {
			return nil, fmt.Errorf("operator %q is not a single character", j.Op)
		}
		op = Operator(r)
	}

	// d collects the first decode error of the child slots.
	var d decodeState
	var n Node
	switch kind {
	case KindProgram:
		n = &Program{Globals: d.list(j.Globals), Functions: d.list(j.Functions), Main: d.list(j.Main)}
	case KindVarDecl:
		n = &VarDecl{Name: j.Name, Type: typ, Storage: storage, Slot: j.Slot, Size: j.Size, Text: j.Text}
	case KindFunction:
		n = &Function{Name: j.Name, Params: d.list(j.Params), Body: d.list(j.Body), Locals: d.list(j.Locals)}
	case KindStatementBlock:
		n = &StatementBlock{Statements: d.list(j.Statements)}
	case KindFunctionCall:
		n = &FunctionCall{Name: j.Name, Args: d.list(j.Args)}
	case KindArgument:
		n = &Argument{Expr: d.one(j.Expr)}
	case KindAssignment:
		n = &Assignment{Name: j.Name, Storage: storage, Slot: j.Slot, Value: d.one(j.Rhs), Index: d.one(j.Index)}
	case KindWhileLoop:
		n = &WhileLoop{Cond: d.one(j.Cond), Body: d.list(j.Body)}
	case KindIfThenElse:
		n = &IfThenElse{Cond: d.one(j.Cond), Then: d.list(j.Then), Else: d.list(j.Else)}
	case KindBinaryExpr:
		n = &BinaryExpr{Op: op, Left: d.one(j.Left), Right: d.one(j.Right)}
	case KindRelationalExpr:
		n = &RelationalExpr{Op: op, Left: d.one(j.Left), Right: d.one(j.Right)}
	case KindVarRef:
		n = &VarRef{Name: j.Name, Storage: storage, Slot: j.Slot, Index: d.one(j.Index)}
	case KindConstant:
		n = &Constant{Type: typ, Value: j.Value, Text: j.Text}
	default:
		return nil, fmt.Errorf("unknown node kind %q", j.Kind)
	}
	if d.err != nil {
		return nil, d.err
	}
	return n, nil
}

type decodeState struct {
	err error
}

func (d *decodeState) one(j *jsonNode) Node {
	if d.err != nil {
		return nil
	}
	n, err := fromJSON(j)
	if err != nil {
		d.err = err
	}
	return n
}

func (d *decodeState) list(in []*jsonNode) Node {
	if d.err != nil {
		return nil
	}
	n, err := fromJSONList(in)
	if err != nil {
		d.err = err
	}
	return n
}

func parseValueType(s string) (ValueType, error) {
	for _, t := range []ValueType{Int, Long, String, ReturnVal} {
		if s == t.String() {
			return t, nil
		}
	}
	if s == "" {
		return Int, nil
	}
	return 0, fmt.Errorf("unknown value type %q", s)
}

func parseStorage(s string) (StorageKind, error) {
	for _, k := range []StorageKind{Global, GlobalArray, Parameter, Local} {
		if s == k.String() {
			return k, nil
		}
	}
	if s == "" {
		return Global, nil
	}
	return 0, fmt.Errorf("unknown storage kind %q", s)
}

func toJSONList(n Node) []*jsonNode {
	var out []*jsonNode
	for ; n != nil; n = Next(n) {
		out = append(out, toJSON(n))
	}
	return out
}

func toJSON(n Node) *jsonNode {
	if n == nil {
		return nil
	}
	j := &jsonNode{Kind: n.Kind().String()}
	switch n := n.(type) {
	case *Program:
		j.Globals, j.Functions, j.Main = toJSONList(n.Globals), toJSONList(n.Functions), toJSONList(n.Main)
	case *VarDecl:
		j.Name, j.Slot, j.Size, j.Text = n.Name, n.Slot, n.Size, n.Text
		j.Type, j.Storage = n.Type.String(), n.Storage.String()
	case *Function:
		j.Name = n.Name
		j.Params, j.Body, j.Locals = toJSONList(n.Params), toJSONList(n.Body), toJSONList(n.Locals)
	case *StatementBlock:
		j.Statements = toJSONList(n.Statements)
	case *FunctionCall:
		j.Name = n.Name
		j.Args = toJSONList(n.Args)
	case *Argument:
		j.Expr = toJSON(n.Expr)
	case *Assignment:
		j.Name, j.Storage, j.Slot = n.Name, n.Storage.String(), n.Slot
		j.Rhs, j.Index = toJSON(n.Value), toJSON(n.Index)
	case *WhileLoop:
		j.Cond, j.Body = toJSON(n.Cond), toJSONList(n.Body)
	case *IfThenElse:
		j.Cond, j.Then, j.Else = toJSON(n.Cond), toJSONList(n.Then), toJSONList(n.Else)
	case *BinaryExpr:
		j.Op, j.Left, j.Right = n.Op.String(), toJSON(n.Left), toJSON(n.Right)
	case *RelationalExpr:
		j.Op, j.Left, j.Right = n.Op.String(), toJSON(n.Left), toJSON(n.Right)
	case *VarRef:
		j.Name, j.Storage, j.Slot = n.Name, n.Storage.String(), n.Slot
		j.Index = toJSON(n.Index)
	case *Constant:
		j.Type, j.Value, j.Text = n.Type.String(), n.Value, n.Text
	}
	return j
}
