package expr

import (
	"strings"

	"github.com/meow-stack/actiondeck/internal/types"
)

// Node is a parsed expression. The set of implementations is closed.
type Node interface {
	node()
	// String renders the node back to source-like text for error messages.
	String() string
}

// Literal is a constant value.
type Literal struct {
	Value types.Value
}

// NameRef is a bare identifier resolved through the scope.
type NameRef struct {
	Name string
}

// Attribute is X.Name on a mapping.
type Attribute struct {
	X    Node
	Name string
}

// Index is X[Key].
type Index struct {
	X   Node
	Key Node
}

// Compare is a possibly chained comparison: Left Ops[0] Rights[0] Ops[1] ...
type Compare struct {
	Left   Node
	Ops    []string
	Rights []Node
}

// BoolOp is a chain of and/or operands.
type BoolOp struct {
	Op       string
	Operands []Node
}

// UnaryOp is `not X`.
type UnaryOp struct {
	X Node
}

// Call invokes one of the allowed functions.
type Call struct {
	Func string
	Args []Node
}

// SequenceLiteral is [a, b, ...].
type SequenceLiteral struct {
	Items []Node
}

// MappingLiteral is {k: v, ...}.
type MappingLiteral struct {
	Keys   []Node
	Values []Node
}

func (*Literal) node()         {}
func (*NameRef) node()         {}
func (*Attribute) node()       {}
func (*Index) node()           {}
func (*Compare) node()         {}
func (*BoolOp) node()          {}
func (*UnaryOp) node()         {}
func (*Call) node()            {}
func (*SequenceLiteral) node() {}
func (*MappingLiteral) node()  {}

func (n *Literal) String() string {
	if s, ok := n.Value.AsString(); ok {
		return quote(s)
	}
	if n.Value.IsNull() {
		return "null"
	}
	return n.Value.String()
}

func (n *NameRef) String() string   { return n.Name }
func (n *Attribute) String() string { return n.X.String() + "." + n.Name }
func (n *Index) String() string     { return n.X.String() + "[" + n.Key.String() + "]" }
func (n *UnaryOp) String() string   { return "not " + n.X.String() }

func (n *Compare) String() string {
	var sb strings.Builder
	sb.WriteString(n.Left.String())
	for i, op := range n.Ops {
		sb.WriteString(" " + op + " ")
		sb.WriteString(n.Rights[i].String())
	}
	return sb.String()
}

func (n *BoolOp) String() string {
	return joinNodes(n.Operands, " "+n.Op+" ")
}

func (n *Call) String() string {
	return n.Func + "(" + joinNodes(n.Args, ", ") + ")"
}

func (n *SequenceLiteral) String() string {
	return "[" + joinNodes(n.Items, ", ") + "]"
}

func (n *MappingLiteral) String() string {
	parts := make([]string, len(n.Keys))
	for i := range n.Keys {
		parts[i] = n.Keys[i].String() + ": " + n.Values[i].String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func joinNodes(nodes []Node, sep string) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return strings.Join(parts, sep)
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), "'", `\'`) + "'"
}
