package query

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kartikbazzad/bunstore/storage"
)

// Matches evaluates filter against doc's field values. An empty filter
// (the zero-child And Parse produces for an absent filter) matches every
// document.
func Matches(doc *storage.Document, filter Node) bool {
	if filter == nil {
		return true
	}
	return evalNode(doc, filter)
}

func evalNode(doc *storage.Document, n Node) bool {
	switch v := n.(type) {
	case *Leaf:
		return evalLeaf(doc, v)
	case *And:
		for _, child := range v.Children {
			if !evalNode(doc, child) {
				return false
			}
		}
		return true
	case *Or:
		for _, child := range v.Children {
			if evalNode(doc, child) {
				return true
			}
		}
		return false
	case *Not:
		return !evalNode(doc, v.Child)
	default:
		return false
	}
}

func evalLeaf(doc *storage.Document, leaf *Leaf) bool {
	path := strings.Split(leaf.Field, ".")
	value, present := doc.Get(path)
	// Relational operators never order a null (or absent) value.
	ordered := present && value != nil && leaf.Operand != nil

	switch leaf.Operator {
	case OpExists:
		want, _ := leaf.Operand.(bool)
		return present == want
	case OpEq:
		return present && valueEqual(value, leaf.Operand)
	case OpNe:
		return !present || !valueEqual(value, leaf.Operand)
	case OpLt:
		return ordered && compareValues(value, leaf.Operand) < 0
	case OpLte:
		return ordered && compareValues(value, leaf.Operand) <= 0
	case OpGt:
		return ordered && compareValues(value, leaf.Operand) > 0
	case OpGte:
		return ordered && compareValues(value, leaf.Operand) >= 0
	case OpIn:
		return present && matchesIn(value, leaf.Operand)
	case OpNin:
		return !present || !matchesIn(value, leaf.Operand)
	case OpRegex:
		return present && matchesRegex(value, leaf.Operand)
	default:
		return false
	}
}

// matchesIn is true if any operand element equals value, or, when value
// is itself a list, any of its elements appears in operand.
func matchesIn(value, operand interface{}) bool {
	list, ok := operand.([]interface{})
	if !ok {
		return false
	}
	if elems, isList := value.([]interface{}); isList {
		for _, v := range elems {
			for _, want := range list {
				if valueEqual(v, want) {
					return true
				}
			}
		}
		return false
	}
	for _, want := range list {
		if valueEqual(value, want) {
			return true
		}
	}
	return false
}

func matchesRegex(value, operand interface{}) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	pattern, ok := operand.(string)
	if !ok {
		return false
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

// valueEqual implements $eq: null equals only null; numbers compare
// numerically regardless of int64/float64 representation; everything
// else compares by Go equality after normalising numeric types.
func valueEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	default:
		return a == b
	}
}

// compareValues returns <0, 0, >0 using a SQL-like ordering: numbers
// numerically, strings by Unicode code point, bools false<true, timestamps
// chronologically. null never compares less or greater than anything
// (relational operators on null are always false, enforced by the nil
// checks in evalLeaf rather than here).
func compareValues(a, b interface{}) int {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
		return 0
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			if av == bv {
				return 0
			}
			if !av {
				return -1
			}
			return 1
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			switch {
			case av.Before(bv):
				return -1
			case av.After(bv):
				return 1
			default:
				return 0
			}
		}
	}
	return 0
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case storage.Decimal:
		f, err := strconv.ParseFloat(string(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
