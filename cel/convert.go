package cel

// This file converts between verdict's type system and CEL's.
// celType translates schema declarations when building an environment;
// refValToValue interprets the value an evaluation produced.

import (
	"fmt"
	"time"

	"github.com/fundscope/verdict"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types/ref"
)

// celType converts a verdict schema type to a CEL type.
func celType(t verdict.Type) (*celgo.Type, error) {
	switch v := t.(type) {
	case verdict.String:
		return celgo.StringType, nil
	case verdict.Int:
		return celgo.IntType, nil
	case verdict.Float:
		return celgo.DoubleType, nil
	case verdict.Bool:
		return celgo.BoolType, nil
	case verdict.Any:
		return celgo.DynType, nil
	case verdict.Duration:
		return celgo.DurationType, nil
	case verdict.Timestamp:
		return celgo.TimestampType, nil
	case verdict.List:
		elem, err := celType(v.ValueType)
		if err != nil {
			return nil, fmt.Errorf("list value type: %w", err)
		}
		return celgo.ListType(elem), nil
	case verdict.Map:
		key, err := celType(v.KeyType)
		if err != nil {
			return nil, fmt.Errorf("map key type: %w", err)
		}
		val, err := celType(v.ValueType)
		if err != nil {
			return nil, fmt.Errorf("map value type: %w", err)
		}
		return celgo.MapType(key, val), nil
	case nil:
		return celgo.DynType, nil
	default:
		return nil, fmt.Errorf("unsupported type %v", t)
	}
}

// refValToValue converts a CEL evaluation result to a verdict Value.
func refValToValue(v ref.Val) (verdict.Value, error) {
	if v == nil {
		return verdict.Value{}, fmt.Errorf("evaluation produced no value")
	}

	native := v.Value()
	switch n := native.(type) {
	case bool:
		return verdict.Value{Val: n, Type: verdict.Bool{}}, nil
	case int64:
		return verdict.Value{Val: n, Type: verdict.Int{}}, nil
	case uint64:
		return verdict.Value{Val: int64(n), Type: verdict.Int{}}, nil
	case float64:
		return verdict.Value{Val: n, Type: verdict.Float{}}, nil
	case string:
		return verdict.Value{Val: n, Type: verdict.String{}}, nil
	case time.Duration:
		return verdict.Value{Val: n, Type: verdict.Duration{}}, nil
	case time.Time:
		return verdict.Value{Val: n, Type: verdict.Timestamp{}}, nil
	case []any:
		return verdict.Value{Val: n, Type: verdict.List{ValueType: verdict.Any{}}}, nil
	case map[string]any:
		return verdict.Value{Val: n, Type: verdict.Map{KeyType: verdict.String{}, ValueType: verdict.Any{}}}, nil
	default:
		return verdict.Value{Val: native, Type: verdict.Any{}}, nil
	}
}
