// Package dml implements the DML execution core (spec §4.8): INSERT,
// UPDATE, DELETE, SELECT, the fixed (tag_class, operator) update dispatch
// table, and the per-model write-batch escalation hook into the fractal
// task manager.
package dml

import (
	"fmt"
	"math"

	skyerrors "github.com/skyenginedb/skyengine/pkg/errors"
	"github.com/skyenginedb/skyengine/pkg/queryast"
	"github.com/skyenginedb/skyengine/pkg/types"
)

// applyAssign implements the fixed (tag_class, operator) dispatch table of
// spec §4.8. It returns the new value for the field, or an error that sets
// the caller's rollback flag.
func applyAssign(current types.Datacell, field types.Field, op queryast.Operator, literal types.Datacell) (types.Datacell, error) {
	targetTag := cellTagOf(field)

	if current.IsNull() && op != queryast.OpAssign {
		return types.Datacell{}, skyerrors.NewQueryError(skyerrors.KindQExecDmlValidationError, "only = may set a null field")
	}

	switch targetTag.Class {
	case types.ClassBool:
		if op != queryast.OpAssign {
			return types.Datacell{}, illegalOp(targetTag.Class, op)
		}
		v, ok := literal.Bool()
		if !ok {
			return types.Datacell{}, typeMismatch("Bool", literal)
		}
		return types.NewBool(v), nil

	case types.ClassUnsignedInt:
		return dispatchUint(current, targetTag, op, literal)

	case types.ClassSignedInt:
		return dispatchSint(current, targetTag, op, literal)

	case types.ClassFloat:
		return dispatchFloat(current, targetTag, op, literal)

	case types.ClassBin:
		return dispatchBin(current, op, literal)

	case types.ClassStr:
		return dispatchStr(current, op, literal)

	case types.ClassList:
		return dispatchList(current, op, literal)

	default:
		return types.Datacell{}, illegalOp(targetTag.Class, op)
	}
}

func cellTagOf(f types.Field) types.Tag {
	if len(f.Layers) == 0 {
		return types.Tag{}
	}
	return f.Layers[0].Tag
}

func illegalOp(class types.TagClass, op queryast.Operator) error {
	return skyerrors.NewQueryError(skyerrors.KindQExecDmlValidationError,
		fmt.Sprintf("operator %d is not defined for %s", op, class))
}

func typeMismatch(want string, got types.Datacell) error {
	return skyerrors.NewQueryError(skyerrors.KindQExecDmlValidationError,
		fmt.Sprintf("expected a %s literal, got %s", want, got.Tag.Class))
}

func dispatchUint(current types.Datacell, tag types.Tag, op queryast.Operator, literal types.Datacell) (types.Datacell, error) {
	lit, ok := literal.Uint()
	if !ok {
		return types.Datacell{}, typeMismatch("UInt", literal)
	}
	if op == queryast.OpAssign {
		if !uintFits(lit, tag.Selector) {
			return types.Datacell{}, rangeErr()
		}
		return types.NewUint(lit, tag.Selector), nil
	}
	cur, _ := current.Uint()
	var out uint64
	var carry bool
	switch op {
	case queryast.OpAddAssign:
		out = cur + lit
		carry = out < cur
	case queryast.OpSubAssign:
		carry = lit > cur
		out = cur - lit
	case queryast.OpMulAssign:
		out = cur * lit
		carry = cur != 0 && out/cur != lit
	case queryast.OpDivAssign:
		if lit == 0 {
			return types.Datacell{}, skyerrors.NewQueryError(skyerrors.KindQExecDmlValidationError, "division by zero")
		}
		out = cur / lit
	default:
		return types.Datacell{}, illegalOp(tag.Class, op)
	}
	if carry || !uintFits(out, tag.Selector) {
		return types.Datacell{}, overflowErr()
	}
	return types.NewUint(out, tag.Selector), nil
}

func dispatchSint(current types.Datacell, tag types.Tag, op queryast.Operator, literal types.Datacell) (types.Datacell, error) {
	lit, ok := literal.Sint()
	if !ok {
		return types.Datacell{}, typeMismatch("SInt", literal)
	}
	if op == queryast.OpAssign {
		if !sintFits(lit, tag.Selector) {
			return types.Datacell{}, rangeErr()
		}
		return types.NewSint(lit, tag.Selector), nil
	}
	cur, _ := current.Sint()
	var out int64
	switch op {
	case queryast.OpAddAssign:
		out = cur + lit
		if (lit > 0 && out < cur) || (lit < 0 && out > cur) {
			return types.Datacell{}, overflowErr()
		}
	case queryast.OpSubAssign:
		out = cur - lit
		if (lit < 0 && out < cur) || (lit > 0 && out > cur) {
			return types.Datacell{}, overflowErr()
		}
	case queryast.OpMulAssign:
		out = cur * lit
		if (cur == -1 && lit == math.MinInt64) || (cur != 0 && out/cur != lit) {
			return types.Datacell{}, overflowErr()
		}
	case queryast.OpDivAssign:
		if lit == 0 {
			return types.Datacell{}, skyerrors.NewQueryError(skyerrors.KindQExecDmlValidationError, "division by zero")
		}
		if cur == math.MinInt64 && lit == -1 {
			return types.Datacell{}, overflowErr()
		}
		out = cur / lit
	default:
		return types.Datacell{}, illegalOp(tag.Class, op)
	}
	if !sintFits(out, tag.Selector) {
		return types.Datacell{}, overflowErr()
	}
	return types.NewSint(out, tag.Selector), nil
}

func dispatchFloat(current types.Datacell, tag types.Tag, op queryast.Operator, literal types.Datacell) (types.Datacell, error) {
	lit, ok := literal.Float()
	if !ok {
		return types.Datacell{}, typeMismatch("Float", literal)
	}
	if op == queryast.OpAssign {
		if !floatFits(lit, tag.Selector) {
			return types.Datacell{}, rangeErr()
		}
		return types.NewFloat(lit, tag.Selector), nil
	}
	cur, _ := current.Float()
	var out float64
	switch op {
	case queryast.OpAddAssign:
		out = cur + lit
	case queryast.OpSubAssign:
		out = cur - lit
	case queryast.OpMulAssign:
		out = cur * lit
	case queryast.OpDivAssign:
		if lit == 0 {
			return types.Datacell{}, skyerrors.NewQueryError(skyerrors.KindQExecDmlValidationError, "division by zero")
		}
		out = cur / lit
	default:
		return types.Datacell{}, illegalOp(tag.Class, op)
	}
	return types.NewFloat(out, tag.Selector), nil
}

func dispatchBin(current types.Datacell, op queryast.Operator, literal types.Datacell) (types.Datacell, error) {
	lit, ok := literal.Bin()
	if !ok {
		return types.Datacell{}, typeMismatch("Bin", literal)
	}
	switch op {
	case queryast.OpAssign:
		return types.NewBin(lit), nil
	case queryast.OpAddAssign:
		cur, _ := current.Bin()
		return types.NewBin(append(append([]byte{}, cur...), lit...)), nil
	default:
		return types.Datacell{}, illegalOp(types.ClassBin, op)
	}
}

func dispatchStr(current types.Datacell, op queryast.Operator, literal types.Datacell) (types.Datacell, error) {
	lit, ok := literal.Str()
	if !ok {
		return types.Datacell{}, typeMismatch("Str", literal)
	}
	switch op {
	case queryast.OpAssign:
		return types.NewStr(lit), nil
	case queryast.OpAddAssign:
		cur, _ := current.Str()
		return types.NewStr(cur + lit), nil
	default:
		return types.Datacell{}, illegalOp(types.ClassStr, op)
	}
}

func dispatchList(current types.Datacell, op queryast.Operator, literal types.Datacell) (types.Datacell, error) {
	if op != queryast.OpAddAssign {
		return types.Datacell{}, illegalOp(types.ClassList, op)
	}
	elems, _ := current.List()
	if len(elems) > 0 && elems[0].Tag.Class != literal.Tag.Class {
		return types.Datacell{}, typeMismatch(elems[0].Tag.Class.String(), literal)
	}
	return types.NewList(append(append([]types.Datacell{}, elems...), literal)), nil
}

func rangeErr() error {
	return skyerrors.NewQueryError(skyerrors.KindQExecDmlValidationError, "literal out of the declared type's range")
}

func overflowErr() error {
	return skyerrors.NewQueryError(skyerrors.KindQExecDmlValidationError, "arithmetic overflow")
}

func uintFits(v uint64, sel types.Selector) bool {
	switch sel {
	case types.SelectorUInt8:
		return v <= math.MaxUint8
	case types.SelectorUInt16:
		return v <= math.MaxUint16
	case types.SelectorUInt32:
		return v <= math.MaxUint32
	default:
		return true
	}
}

func sintFits(v int64, sel types.Selector) bool {
	switch sel {
	case types.SelectorSInt8:
		return v >= math.MinInt8 && v <= math.MaxInt8
	case types.SelectorSInt16:
		return v >= math.MinInt16 && v <= math.MaxInt16
	case types.SelectorSInt32:
		return v >= math.MinInt32 && v <= math.MaxInt32
	default:
		return true
	}
}

func floatFits(v float64, sel types.Selector) bool {
	if sel == types.SelectorFloat32 {
		return !math.IsInf(float64(float32(v)), 0) || math.IsInf(v, 0)
	}
	return true
}
