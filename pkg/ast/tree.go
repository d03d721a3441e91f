package ast

// Walk calls fn for every node reachable from root through child slots and
// sibling links: a node, then its children slot by slot, then its
// siblings. The traversal keeps its own stack, so long
// statement lists do not grow the Go call stack. Returning false from fn
// skips the node's children (siblings are still visited).
func Walk(root Node, fn func(Node) bool) {
	stack := []Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == nil {
			continue
		}
		// Sibling goes underneath the children so the whole subtree of n
		// is finished first.
		stack = append(stack, Next(n))
		if !fn(n) {
			continue
		}
		kids := Children(n)
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, kids[i])
		}
	}
}

// Count returns the number of nodes reachable from root.
func Count(root Node) int {
	total := 0
	Walk(root, func(Node) bool {
		total++
		return true
	})
	return total
}

// Release tears the tree down: every child slot and sibling link is
// cleared and string payloads are dropped, so no node keeps any other
// node alive. It runs on an explicit work list and is safe for sibling
// chains of any length. The tree must not be used afterwards.
func Release(root Node) {
	work := []Node{root}
	for len(work) > 0 {
		n := work[len(work)-1]
		work = work[:len(work)-1]
		if n == nil {
			continue
		}
		work = append(work, Children(n)...)
		work = append(work, Next(n))
		SetNext(n, nil)
		detach(n)
	}
}

func detach(n Node) {
	switch n := n.(type) {
	case *Program:
		n.Globals, n.Functions, n.Main = nil, nil, nil
	case *VarDecl:
		n.Name, n.Text = "", ""
	case *Function:
		n.Name = ""
		n.Params, n.Body, n.Locals = nil, nil, nil
	case *StatementBlock:
		n.Statements = nil
	case *FunctionCall:
		n.Name = ""
		n.Args = nil
	case *Argument:
		n.Expr = nil
	case *Assignment:
		n.Name = ""
		n.Value, n.Index = nil, nil
	case *WhileLoop:
		n.Cond, n.Body = nil, nil
	case *IfThenElse:
		n.Cond, n.Then, n.Else = nil, nil, nil
	case *BinaryExpr:
		n.Left, n.Right = nil, nil
	case *RelationalExpr:
		n.Left, n.Right = nil, nil
	case *VarRef:
		n.Name = ""
		n.Index = nil
	case *Constant:
		n.Text = ""
	}
}
