package mvcc

import "golang.org/x/exp/constraints"

// CompareOp is the closed set of predicate operators the filter kernel
// supports.
type CompareOp int

const (
	OpEqual CompareOp = iota
	OpLess
	OpGreater
	OpLessEqual
	OpGreaterEqual
)

// Filter is a single-column, single-operator predicate: column OP constant.
// Constant is a single-valued Vector (its value at index 0 is compared) of
// the same physical type as the column being filtered.
type Filter struct {
	Op       CompareOp
	Constant *Vector
}

// ordered is the set of Go types filterSelection specializes over, standing
// in for the original's C++ template instantiation across physical types.
type ordered interface {
	constraints.Integer | constraints.Float
}

func compare[T ordered](op CompareOp, a, b T) bool {
	switch op {
	case OpEqual:
		return a == b
	case OpLess:
		return a < b
	case OpGreater:
		return a > b
	case OpLessEqual:
		return a <= b
	case OpGreaterEqual:
		return a >= b
	default:
		return false
	}
}

// selectOrdered refines candidates (the incoming candidate set; nil means
// every position in data is a candidate) to those where data[i] op constant
// holds and nulls[i] (if nulls is non-nil) is false, appending survivors to
// sel in order.
func selectOrdered[T ordered](data []T, nulls []bool, op CompareOp, constant T, candidates, sel []int) []int {
	if candidates == nil {
		for i, v := range data {
			if nulls != nil && nulls[i] {
				continue
			}
			if compare(op, v, constant) {
				sel = append(sel, i)
			}
		}
		return sel
	}
	for _, i := range candidates {
		if nulls != nil && nulls[i] {
			continue
		}
		if compare(op, data[i], constant) {
			sel = append(sel, i)
		}
	}
	return sel
}

func compareString(op CompareOp, a, b string) bool {
	switch op {
	case OpEqual:
		return a == b
	case OpLess:
		return a < b
	case OpGreater:
		return a > b
	case OpLessEqual:
		return a <= b
	case OpGreaterEqual:
		return a >= b
	default:
		return false
	}
}

func selectString(data []string, nulls []bool, op CompareOp, constant string, candidates, sel []int) []int {
	if candidates == nil {
		for i, v := range data {
			if nulls != nil && nulls[i] {
				continue
			}
			if compareString(op, v, constant) {
				sel = append(sel, i)
			}
		}
		return sel
	}
	for _, i := range candidates {
		if nulls != nil && nulls[i] {
			continue
		}
		if compareString(op, data[i], constant) {
			sel = append(sel, i)
		}
	}
	return sel
}

// hasNulls reports whether any entry of nulls is set; when none is, Select
// passes a nil mask so the inner loop skips the per-row null lookup. The
// null-free and null-aware cases share one loop per physical type, and the
// operator is dispatched per comparison rather than per loop.
func hasNulls(nulls []bool) bool {
	for _, n := range nulls {
		if n {
			return true
		}
	}
	return false
}

// Select refines candidates (the incoming selection; nil means every row of
// v is a candidate) to the positions where f holds against f.Constant,
// dispatching to a type-specialized inner loop per v's physical type rather
// than boxing every comparison through an interface, matching the original
// kernel's template-per-type approach. The returned slice's length is the
// approved count.
func (f Filter) Select(v *Vector, candidates []int) ([]int, error) {
	switch f.Op {
	case OpEqual, OpLess, OpGreater, OpLessEqual, OpGreaterEqual:
	default:
		return nil, ErrNotImplemented
	}
	if v.typ != f.Constant.typ {
		return nil, ErrInvalidType
	}

	var nulls []bool
	if hasNulls(v.nulls) {
		nulls = v.nulls
	}

	capacity := v.Length()
	if candidates != nil {
		capacity = len(candidates)
	}
	sel := make([]int, 0, capacity)

	switch v.typ {
	case PhysicalInt8:
		return selectOrdered(v.int8s, nulls, f.Op, f.Constant.int8s[0], candidates, sel), nil
	case PhysicalInt16:
		return selectOrdered(v.int16s, nulls, f.Op, f.Constant.int16s[0], candidates, sel), nil
	case PhysicalInt32:
		return selectOrdered(v.int32s, nulls, f.Op, f.Constant.int32s[0], candidates, sel), nil
	case PhysicalInt64:
		return selectOrdered(v.int64s, nulls, f.Op, f.Constant.int64s[0], candidates, sel), nil
	case PhysicalFloat32:
		return selectOrdered(v.float32s, nulls, f.Op, f.Constant.float32s[0], candidates, sel), nil
	case PhysicalFloat64:
		return selectOrdered(v.float64s, nulls, f.Op, f.Constant.float64s[0], candidates, sel), nil
	case PhysicalVarchar:
		return selectString(v.strs, nulls, f.Op, f.Constant.strs[0], candidates, sel), nil
	default:
		return nil, ErrInvalidType
	}
}
