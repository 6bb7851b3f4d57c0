package executor

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	language "github.com/hanpama/countergraph/internal/language"
	schema "github.com/hanpama/countergraph/internal/schema"
)

// coerceVariableValues coerces raw variable input against the operation's
// variable definitions. Variables the operation does not declare are dropped.
func coerceVariableValues(
	s *schema.Schema,
	operation *language.OperationDefinition,
	variableValues map[string]any,
) (map[string]any, error) {
	coerced := make(map[string]any)
	for _, varDef := range operation.VariableDefinitions {
		name := varDef.Variable
		t := varDef.Type
		val, ok := variableValues[name]
		if !ok {
			if v2, ok2 := variableValues[strings.TrimPrefix(name, "$")]; ok2 {
				val = v2
				ok = true
			}
		}
		if !ok {
			if varDef.DefaultValue != nil {
				val = language.ValueToGo(varDef.DefaultValue, nil)
			} else if t.NonNull {
				return nil, fmt.Errorf("Variable \"$%s\" of required type \"%s\" was not provided.", name, t.String())
			} else {
				continue
			}
		}
		if val == nil && t.NonNull {
			return nil, fmt.Errorf("Variable \"$%s\" of non-null type \"%s\" must not be null.", name, t.String())
		}
		cv, err := coerceValue(s, val, typeRefFromAST(t))
		if err != nil {
			return nil, fmt.Errorf("Variable \"$%s\" got invalid value: %v", name, err)
		}
		coerced[name] = cv
	}
	return coerced, nil
}

// coerceArgumentValues coerces the arguments of field against fieldDef,
// applying defaults. It records an error and reports false when an argument
// cannot be coerced.
func coerceArgumentValues(state *executionState, fieldDef *schema.Field, field *language.Field, path Path) (map[string]any, bool) {
	coerced := make(map[string]any)
	ok := true
	for _, argDef := range fieldDef.Arguments {
		name := argDef.Name
		arg := field.Arguments.ForName(name)
		present := arg != nil
		var val any
		if present {
			if arg.Value.Kind == language.Variable {
				val, present = state.variableValues[arg.Value.Raw]
			} else {
				val = language.ValueToGo(arg.Value, state.variableValues)
			}
		}
		if !present {
			if argDef.DefaultValue != nil {
				coerced[name] = argDef.DefaultValue
			} else if schema.IsNonNull(argDef.Type) {
				state.addError(fmt.Sprintf("Argument %q of required type %q was not provided.", name, argDef.Type.String()), field, path)
				ok = false
			}
			continue
		}
		cv, err := coerceValue(state.schema, val, argDef.Type)
		if err != nil {
			state.addError(fmt.Sprintf("Argument %q has invalid value: %v", name, err), field, path)
			ok = false
			continue
		}
		coerced[name] = cv
	}
	return coerced, ok
}

// coerceValue coerces a value to the specified GraphQL type
func coerceValue(s *schema.Schema, value any, targetType *schema.TypeRef) (any, error) {
	if schema.IsNonNull(targetType) {
		if value == nil {
			return nil, fmt.Errorf("cannot provide null for non-null type %s", targetType.String())
		}
		return coerceValue(s, value, schema.Unwrap(targetType))
	}

	if value == nil {
		return nil, nil
	}

	if schema.IsList(targetType) {
		return coerceListValue(s, value, targetType)
	}

	namedType := schema.GetNamedType(targetType)
	switch namedType {
	case "Int":
		return coerceToInt(value)
	case "Float":
		return coerceToFloat(value)
	case "String":
		return coerceToString(value)
	case "Boolean":
		return coerceToBoolean(value)
	case "ID":
		return coerceToID(value)
	}

	typ := s.Types[namedType]
	if typ == nil {
		return value, nil
	}
	switch typ.Kind {
	case schema.TypeKindInputObject:
		return coerceInputObject(s, value, typ)
	case schema.TypeKindEnum:
		return coerceEnum(value, typ)
	default:
		// custom scalars pass through
		return value, nil
	}
}

// coerceListValue coerces a value to a list
func coerceListValue(s *schema.Schema, value any, listType *schema.TypeRef) (any, error) {
	innerType := schema.Unwrap(listType)
	if slice, ok := value.([]any); ok {
		coercedSlice := make([]any, len(slice))
		for i, item := range slice {
			coercedItem, err := coerceValue(s, item, innerType)
			if err != nil {
				return nil, err
			}
			coercedSlice[i] = coercedItem
		}
		return coercedSlice, nil
	}

	// Single value becomes a list of one
	coercedItem, err := coerceValue(s, value, innerType)
	if err != nil {
		return nil, err
	}
	return []any{coercedItem}, nil
}

func coerceInputObject(s *schema.Schema, value any, typ *schema.Type) (any, error) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object for %s, got %T", typ.Name, value)
	}
	out := make(map[string]any, len(typ.InputFields))
	known := make(map[string]struct{}, len(typ.InputFields))
	for _, field := range typ.InputFields {
		known[field.Name] = struct{}{}
		v, present := obj[field.Name]
		if !present {
			if field.DefaultValue != nil {
				out[field.Name] = field.DefaultValue
			} else if schema.IsNonNull(field.Type) {
				return nil, fmt.Errorf("required field '%s' of %s was not provided", field.Name, typ.Name)
			}
			continue
		}
		cv, err := coerceValue(s, v, field.Type)
		if err != nil {
			return nil, fmt.Errorf("field '%s' of %s: %w", field.Name, typ.Name, err)
		}
		out[field.Name] = cv
	}
	for name := range obj {
		if _, ok := known[name]; !ok {
			return nil, fmt.Errorf("field '%s' is not defined by %s", name, typ.Name)
		}
	}
	return out, nil
}

func coerceEnum(value any, typ *schema.Type) (any, error) {
	name, ok := value.(string)
	if ok {
		for _, ev := range typ.EnumValues {
			if ev.Name == name {
				return name, nil
			}
		}
	}
	return nil, fmt.Errorf("value %v is not a member of enum %s", value, typ.Name)
}

func coerceToInt(value any) (any, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		if v >= math.MinInt32 && v <= math.MaxInt32 {
			return int(v), nil
		}
	case float64:
		if v == math.Trunc(v) && v >= math.MinInt32 && v <= math.MaxInt32 {
			return int(v), nil
		}
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to Int", value, value)
}

func coerceToFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to Float", value, value)
}

func coerceToString(value any) (any, error) {
	if v, ok := value.(string); ok {
		return v, nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to String", value, value)
}

func coerceToBoolean(value any) (any, error) {
	if v, ok := value.(bool); ok {
		return v, nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to Boolean", value, value)
}

func coerceToID(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10), nil
		}
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to ID", value, value)
}
