package language

import "strconv"

// ValueToGo converts a constant AST value into a plain Go value. Variables
// resolve through vars; missing variables become nil.
func ValueToGo(value *Value, vars map[string]any) any {
	if value == nil {
		return nil
	}
	switch value.Kind {
	case Variable:
		return vars[value.Raw]
	case IntValue:
		iv, err := strconv.Atoi(value.Raw)
		if err != nil {
			return value.Raw
		}
		return iv
	case FloatValue:
		fv, _ := strconv.ParseFloat(value.Raw, 64)
		return fv
	case StringValue, BlockValue, EnumValue:
		return value.Raw
	case BooleanValue:
		return value.Raw == "true"
	case NullValue:
		return nil
	case ListValue:
		out := make([]any, len(value.Children))
		for i, c := range value.Children {
			out[i] = ValueToGo(c.Value, vars)
		}
		return out
	case ObjectValue:
		m := make(map[string]any, len(value.Children))
		for _, c := range value.Children {
			m[c.Name] = ValueToGo(c.Value, vars)
		}
		return m
	default:
		return nil
	}
}
