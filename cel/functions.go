package cel

import (
	"strings"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
)

// helperFunctions declares the allow-listed functions available to rule
// authors beyond CEL's builtins. The set is fixed: rule packs cannot
// extend it, which is what keeps operator-authored conditions unable to
// reach anything outside the context.
func helperFunctions() []celgo.EnvOption {
	return []celgo.EnvOption{
		lenFunction(),
		containsFunction(),
		inRangeFunction(),
	}
}

// len(x) returns the size of a string, list or map. CEL's builtin for
// this is size(); len is declared as well because most rule authors
// reach for it first.
func lenFunction() celgo.EnvOption {
	sized := func(v ref.Val) ref.Val {
		s, ok := v.(traits.Sizer)
		if !ok {
			return types.NewErr("len: %s has no size", v.Type().TypeName())
		}
		return s.Size()
	}
	return celgo.Function("len",
		celgo.Overload("len_string",
			[]*celgo.Type{celgo.StringType}, celgo.IntType,
			celgo.UnaryBinding(sized)),
		celgo.Overload("len_list",
			[]*celgo.Type{celgo.ListType(celgo.DynType)}, celgo.IntType,
			celgo.UnaryBinding(sized)),
		celgo.Overload("len_map",
			[]*celgo.Type{celgo.MapType(celgo.DynType, celgo.DynType)}, celgo.IntType,
			celgo.UnaryBinding(sized)),
	)
}

// contains(c, item) tests membership: substring for strings, element
// for lists, key for maps.
func containsFunction() celgo.EnvOption {
	member := func(lhs, rhs ref.Val) ref.Val {
		c, ok := lhs.(traits.Container)
		if !ok {
			return types.NewErr("contains: %s is not a container", lhs.Type().TypeName())
		}
		return c.Contains(rhs)
	}
	return celgo.Function("contains",
		celgo.Overload("contains_string_string",
			[]*celgo.Type{celgo.StringType, celgo.StringType}, celgo.BoolType,
			celgo.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
				h, ok1 := lhs.Value().(string)
				n, ok2 := rhs.Value().(string)
				if !ok1 || !ok2 {
					return types.NewErr("contains: expected strings")
				}
				return types.Bool(strings.Contains(h, n))
			})),
		celgo.Overload("contains_list_dyn",
			[]*celgo.Type{celgo.ListType(celgo.DynType), celgo.DynType}, celgo.BoolType,
			celgo.BinaryBinding(member)),
		celgo.Overload("contains_map_dyn",
			[]*celgo.Type{celgo.MapType(celgo.DynType, celgo.DynType), celgo.DynType}, celgo.BoolType,
			celgo.BinaryBinding(member)),
	)
}

// in_range(v, lo, hi) is an inclusive range test for ints and doubles.
func inRangeFunction() celgo.EnvOption {
	intRange := func(args ...ref.Val) ref.Val {
		v, ok1 := args[0].Value().(int64)
		lo, ok2 := args[1].Value().(int64)
		hi, ok3 := args[2].Value().(int64)
		if !ok1 || !ok2 || !ok3 {
			return types.NewErr("in_range: expected ints")
		}
		return types.Bool(v >= lo && v <= hi)
	}
	doubleRange := func(args ...ref.Val) ref.Val {
		v, ok1 := args[0].Value().(float64)
		lo, ok2 := args[1].Value().(float64)
		hi, ok3 := args[2].Value().(float64)
		if !ok1 || !ok2 || !ok3 {
			return types.NewErr("in_range: expected doubles")
		}
		return types.Bool(v >= lo && v <= hi)
	}
	return celgo.Function("in_range",
		celgo.Overload("in_range_int_int_int",
			[]*celgo.Type{celgo.IntType, celgo.IntType, celgo.IntType}, celgo.BoolType,
			celgo.FunctionBinding(intRange)),
		celgo.Overload("in_range_double_double_double",
			[]*celgo.Type{celgo.DoubleType, celgo.DoubleType, celgo.DoubleType}, celgo.BoolType,
			celgo.FunctionBinding(doubleRange)),
	)
}
