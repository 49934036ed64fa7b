package expr

import (
	"fmt"
	"strings"

	deckerr "github.com/meow-stack/actiondeck/internal/errors"
	"github.com/meow-stack/actiondeck/internal/types"
)

// Scope resolves top-level names.
type Scope interface {
	Lookup(name string) (types.Value, bool)
}

// MapScope is a Scope backed by an ordered map.
type MapScope struct {
	*types.Map
}

// Lookup implements Scope.
func (s MapScope) Lookup(name string) (types.Value, bool) {
	return s.Get(name)
}

type evaluator struct {
	src   string
	scope Scope
	fs    FS
}

func (e *evaluator) eval(n Node) (types.Value, error) {
	switch n := n.(type) {
	case *Literal:
		return n.Value, nil

	case *NameRef:
		v, ok := e.scope.Lookup(n.Name)
		if !ok {
			return types.Null(), deckerr.ExprUnresolved(e.src, n.Name)
		}
		return v, nil

	case *Attribute:
		x, err := e.eval(n.X)
		if err != nil {
			return types.Null(), err
		}
		m := x.Map()
		if m == nil {
			return types.Null(), deckerr.ExprUnresolved(e.src, n.String()).
				WithDetail("reason", fmt.Sprintf("%s has no attribute %q", x.Kind(), n.Name))
		}
		v, ok := m.Get(n.Name)
		if !ok {
			return types.Null(), deckerr.ExprUnresolved(e.src, n.String())
		}
		return v, nil

	case *Index:
		return e.evalIndex(n)

	case *Compare:
		return e.evalCompare(n)

	case *BoolOp:
		var last types.Value
		for _, operand := range n.Operands {
			v, err := e.eval(operand)
			if err != nil {
				return types.Null(), err
			}
			last = v
			if n.Op == "and" && !v.Truthy() {
				return v, nil
			}
			if n.Op == "or" && v.Truthy() {
				return v, nil
			}
		}
		return last, nil

	case *UnaryOp:
		v, err := e.eval(n.X)
		if err != nil {
			return types.Null(), err
		}
		return types.Bool(!v.Truthy()), nil

	case *Call:
		return e.evalCall(n)

	case *SequenceLiteral:
		items := make([]types.Value, len(n.Items))
		for i, item := range n.Items {
			v, err := e.eval(item)
			if err != nil {
				return types.Null(), err
			}
			items[i] = v
		}
		return types.Sequence(items...), nil

	case *MappingLiteral:
		m := types.NewMap()
		for i := range n.Keys {
			k, err := e.eval(n.Keys[i])
			if err != nil {
				return types.Null(), err
			}
			ks, ok := k.AsString()
			if !ok {
				return types.Null(), e.fail(fmt.Errorf("mapping keys must be strings, got %s", k.Kind()))
			}
			v, err := e.eval(n.Values[i])
			if err != nil {
				return types.Null(), err
			}
			m.Set(ks, v)
		}
		return types.Mapping(m), nil
	}
	return types.Null(), deckerr.ExprDisallowed(e.src, fmt.Sprintf("%T", n))
}

func (e *evaluator) fail(err error) error {
	return deckerr.ExprEval(e.src, err)
}

func (e *evaluator) evalIndex(n *Index) (types.Value, error) {
	x, err := e.eval(n.X)
	if err != nil {
		return types.Null(), err
	}
	key, err := e.eval(n.Key)
	if err != nil {
		return types.Null(), err
	}

	switch x.Kind() {
	case types.KindMapping:
		ks, ok := key.AsString()
		if !ok {
			return types.Null(), e.fail(fmt.Errorf("mapping index must be a string, got %s", key.Kind()))
		}
		v, ok := x.Map().Get(ks)
		if !ok {
			return types.Null(), deckerr.ExprUnresolved(e.src, n.String())
		}
		return v, nil

	case types.KindSequence, types.KindString:
		i, ok := key.AsInt()
		if !ok {
			return types.Null(), e.fail(fmt.Errorf("%s index must be an integer, got %s", x.Kind(), key.Kind()))
		}
		var size int
		var runes []rune
		if x.Kind() == types.KindString {
			s, _ := x.AsString()
			runes = []rune(s)
			size = len(runes)
		} else {
			size = len(x.Items())
		}
		if i < 0 {
			i += size
		}
		if i < 0 || i >= size {
			return types.Null(), deckerr.ExprUnresolved(e.src, n.String()).
				WithDetail("reason", "index out of range")
		}
		if runes != nil {
			return types.String(string(runes[i])), nil
		}
		return x.Items()[i], nil
	}
	return types.Null(), e.fail(fmt.Errorf("%s is not indexable", x.Kind()))
}

func (e *evaluator) evalCompare(n *Compare) (types.Value, error) {
	left, err := e.eval(n.Left)
	if err != nil {
		return types.Null(), err
	}
	for i, op := range n.Ops {
		right, err := e.eval(n.Rights[i])
		if err != nil {
			return types.Null(), err
		}
		ok, err := e.compare(op, left, right)
		if err != nil {
			return types.Null(), err
		}
		if !ok {
			return types.Bool(false), nil
		}
		left = right
	}
	return types.Bool(true), nil
}

func (e *evaluator) compare(op string, a, b types.Value) (bool, error) {
	switch op {
	case "==":
		return a.Equal(b), nil
	case "!=":
		return !a.Equal(b), nil
	case "in":
		return e.contains(b, a)
	case "not in":
		ok, err := e.contains(b, a)
		return !ok, err
	}

	if an, ok := a.AsNumber(); ok {
		if bn, ok := b.AsNumber(); ok {
			switch op {
			case "<":
				return an < bn, nil
			case ">":
				return an > bn, nil
			case "<=":
				return an <= bn, nil
			case ">=":
				return an >= bn, nil
			}
		}
	}
	if as, ok := a.AsString(); ok {
		if bs, ok := b.AsString(); ok {
			c := strings.Compare(as, bs)
			switch op {
			case "<":
				return c < 0, nil
			case ">":
				return c > 0, nil
			case "<=":
				return c <= 0, nil
			case ">=":
				return c >= 0, nil
			}
		}
	}
	return false, e.fail(fmt.Errorf("'%s' not supported between %s and %s", op, a.Kind(), b.Kind()))
}

func (e *evaluator) contains(container, item types.Value) (bool, error) {
	switch container.Kind() {
	case types.KindString:
		s, _ := container.AsString()
		sub, ok := item.AsString()
		if !ok {
			return false, e.fail(fmt.Errorf("'in <string>' requires string as left operand, not %s", item.Kind()))
		}
		return strings.Contains(s, sub), nil
	case types.KindSequence:
		for _, el := range container.Items() {
			if el.Equal(item) {
				return true, nil
			}
		}
		return false, nil
	case types.KindMapping:
		k, ok := item.AsString()
		if !ok {
			return false, nil
		}
		return container.Map().Has(k), nil
	}
	return false, e.fail(fmt.Errorf("argument of type %s is not a container", container.Kind()))
}

func (e *evaluator) evalCall(n *Call) (types.Value, error) {
	arg, err := e.eval(n.Args[0])
	if err != nil {
		return types.Null(), err
	}
	switch n.Func {
	case "len":
		size, err := arg.Len()
		if err != nil {
			return types.Null(), e.fail(err)
		}
		return types.Int(size), nil
	case "empty":
		return types.Bool(arg.IsEmpty()), nil
	case "exists":
		p, ok := arg.AsString()
		if !ok {
			return types.Null(), e.fail(fmt.Errorf("exists() requires a string path, got %s", arg.Kind()))
		}
		return types.Bool(p != "" && e.fs.Exists(p)), nil
	}
	return types.Null(), deckerr.ExprDisallowed(e.src, fmt.Sprintf("call of %s()", n.Func))
}
