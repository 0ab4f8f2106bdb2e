package expr

import (
	"fmt"
	"strconv"
	"strings"
)

type node interface {
	eval(lookup Lookup) (bool, error)
}

type orNode struct{ left, right node }

func (n orNode) eval(lookup Lookup) (bool, error) {
	ok, err := n.left.eval(lookup)
	if err != nil || ok {
		return ok, err
	}
	return n.right.eval(lookup)
}

type andNode struct{ left, right node }

func (n andNode) eval(lookup Lookup) (bool, error) {
	ok, err := n.left.eval(lookup)
	if err != nil || !ok {
		return false, err
	}
	return n.right.eval(lookup)
}

type notNode struct{ inner node }

func (n notNode) eval(lookup Lookup) (bool, error) {
	ok, err := n.inner.eval(lookup)
	return !ok, err
}

type truthyNode struct{ ident string }

func (n truthyNode) eval(lookup Lookup) (bool, error) {
	value, ok := lookup(n.ident)
	return ok && truthy(value), nil
}

type compareNode struct {
	ident string
	op    tokenKind
	lit   token
}

func (n compareNode) eval(lookup Lookup) (bool, error) {
	value, _ := lookup(n.ident)

	var equal bool
	switch n.lit.kind {
	case tokenNull:
		equal = value == nil
	case tokenBool:
		got, _ := value.(bool)
		equal = got == (n.lit.raw == "true")
	case tokenNumber:
		want, err := strconv.ParseFloat(n.lit.raw, 64)
		if err != nil {
			return false, fmt.Errorf("expr: invalid number %q", n.lit.raw)
		}
		got, ok := number(value)
		switch n.op {
		case tokenLt:
			return ok && got < want, nil
		case tokenLte:
			return ok && got <= want, nil
		case tokenGt:
			return ok && got > want, nil
		case tokenGte:
			return ok && got >= want, nil
		}
		equal = ok && got == want
	case tokenString:
		equal = text(value) == n.lit.raw
	}

	switch n.op {
	case tokenEq:
		return equal, nil
	case tokenNeq:
		return !equal, nil
	default:
		return false, fmt.Errorf("expr: unsupported operator for %q", n.ident)
	}
}

func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return strings.TrimSpace(v) != ""
	case float64:
		return v != 0
	case int:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}

func number(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func text(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
