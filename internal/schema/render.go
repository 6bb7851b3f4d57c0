package schema

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Render produces SDL for the user-defined part of the schema. Prelude types,
// prelude directives and double-underscore meta fields are omitted. Types and
// directives are sorted by name; fields keep declaration order.
func Render(s *Schema) string {
	if s == nil {
		return ""
	}
	var b strings.Builder

	typeNames := make([]string, 0, len(s.Types))
	for name, typ := range s.Types {
		if typ.BuiltIn {
			continue
		}
		typeNames = append(typeNames, name)
	}
	sort.Strings(typeNames)

	for _, name := range typeNames {
		typ := s.Types[name]
		switch typ.Kind {
		case TypeKindScalar:
			renderScalar(&b, typ)
		case TypeKindEnum:
			renderEnum(&b, typ)
		case TypeKindInputObject:
			renderInputObject(&b, s, typ)
		case TypeKindObject:
			renderComposite(&b, s, "type", typ)
		case TypeKindInterface:
			renderComposite(&b, s, "interface", typ)
		case TypeKindUnion:
			renderUnion(&b, typ)
		}
	}

	directiveNames := make([]string, 0, len(s.Directives))
	for name, d := range s.Directives {
		if d.BuiltIn {
			continue
		}
		directiveNames = append(directiveNames, name)
	}
	sort.Strings(directiveNames)
	for _, name := range directiveNames {
		renderDirective(&b, s, s.Directives[name])
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func renderDescription(b *strings.Builder, indent, desc string) {
	if desc == "" {
		return
	}
	if !strings.Contains(desc, "\n") {
		b.WriteString(indent)
		b.WriteString(strconv.Quote(desc))
		b.WriteString("\n")
		return
	}
	b.WriteString(indent + "\"\"\"\n")
	for _, line := range strings.Split(desc, "\n") {
		b.WriteString(indent)
		b.WriteString(strings.ReplaceAll(line, `"""`, `\"""`))
		b.WriteString("\n")
	}
	b.WriteString(indent + "\"\"\"\n")
}

func renderDeprecation(b *strings.Builder, deprecated bool, reason string) {
	if !deprecated {
		return
	}
	b.WriteString(" @deprecated")
	if reason != "" {
		b.WriteString("(reason: ")
		b.WriteString(strconv.Quote(reason))
		b.WriteString(")")
	}
}

func renderScalar(b *strings.Builder, typ *Type) {
	renderDescription(b, "", typ.Description)
	b.WriteString("scalar ")
	b.WriteString(typ.Name)
	if typ.SpecifiedByURL != nil {
		b.WriteString(" @specifiedBy(url: ")
		b.WriteString(strconv.Quote(*typ.SpecifiedByURL))
		b.WriteString(")")
	}
	b.WriteString("\n\n")
}

func renderEnum(b *strings.Builder, typ *Type) {
	renderDescription(b, "", typ.Description)
	b.WriteString("enum " + typ.Name + " {\n")
	for _, val := range typ.EnumValues {
		renderDescription(b, "  ", val.Description)
		b.WriteString("  " + val.Name)
		renderDeprecation(b, val.IsDeprecated, val.DeprecationReason)
		b.WriteString("\n")
	}
	b.WriteString("}\n\n")
}

func renderInputObject(b *strings.Builder, s *Schema, typ *Type) {
	renderDescription(b, "", typ.Description)
	b.WriteString("input " + typ.Name)
	if typ.OneOf {
		b.WriteString(" @oneOf")
	}
	b.WriteString(" {\n")
	for _, field := range typ.InputFields {
		renderDescription(b, "  ", field.Description)
		b.WriteString("  ")
		renderInputValue(b, s, field)
		renderDeprecation(b, field.IsDeprecated, field.DeprecationReason)
		b.WriteString("\n")
	}
	b.WriteString("}\n\n")
}

func renderComposite(b *strings.Builder, s *Schema, keyword string, typ *Type) {
	renderDescription(b, "", typ.Description)
	b.WriteString(keyword + " " + typ.Name)
	if len(typ.Interfaces) > 0 {
		b.WriteString(" implements ")
		b.WriteString(strings.Join(typ.Interfaces, " & "))
	}
	b.WriteString(" {\n")
	for _, field := range typ.Fields {
		if strings.HasPrefix(field.Name, "__") {
			continue
		}
		renderField(b, s, field)
	}
	b.WriteString("}\n\n")
}

func renderUnion(b *strings.Builder, typ *Type) {
	renderDescription(b, "", typ.Description)
	b.WriteString("union " + typ.Name + " = ")
	b.WriteString(strings.Join(typ.PossibleTypes, " | "))
	b.WriteString("\n\n")
}

func renderField(b *strings.Builder, s *Schema, field *Field) {
	renderDescription(b, "  ", field.Description)
	b.WriteString("  " + field.Name)
	renderArguments(b, s, field.Arguments)
	b.WriteString(": ")
	b.WriteString(field.Type.String())
	renderDeprecation(b, field.IsDeprecated, field.DeprecationReason)
	b.WriteString("\n")
}

func renderArguments(b *strings.Builder, s *Schema, args []*InputValue) {
	if len(args) == 0 {
		return
	}
	b.WriteString("(")
	for i, arg := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		renderInputValue(b, s, arg)
	}
	b.WriteString(")")
}

func renderInputValue(b *strings.Builder, s *Schema, v *InputValue) {
	b.WriteString(v.Name)
	b.WriteString(": ")
	b.WriteString(v.Type.String())
	if v.DefaultValue != nil {
		b.WriteString(" = ")
		b.WriteString(s.FormatValue(v.Type, v.DefaultValue))
	}
}

func renderDirective(b *strings.Builder, s *Schema, directive *Directive) {
	renderDescription(b, "", directive.Description)
	b.WriteString("directive @" + directive.Name)
	renderArguments(b, s, directive.Arguments)
	if directive.IsRepeatable {
		b.WriteString(" repeatable")
	}
	b.WriteString(" on ")
	b.WriteString(strings.Join(directive.Locations, " | "))
	b.WriteString("\n\n")
}

// FormatValue renders a Go input value of type t as a GraphQL literal.
func (s *Schema) FormatValue(t *TypeRef, value any) string {
	if value == nil {
		return "null"
	}
	if IsList(t) {
		if items, ok := value.([]any); ok {
			inner := t
			if inner.Kind == TypeRefKindNonNull {
				inner = inner.OfType
			}
			parts := make([]string, len(items))
			for i, item := range items {
				parts[i] = s.FormatValue(inner.OfType, item)
			}
			return "[" + strings.Join(parts, ", ") + "]"
		}
	}
	named := s.Types[t.GetNamedType()]
	if named != nil && named.Kind == TypeKindEnum {
		if v, ok := value.(string); ok {
			return v
		}
	}
	if named != nil && named.Kind == TypeKindInputObject {
		if obj, ok := value.(map[string]any); ok {
			parts := make([]string, 0, len(obj))
			for _, f := range named.InputFields {
				if v, ok := obj[f.Name]; ok {
					parts = append(parts, f.Name+": "+s.FormatValue(f.Type, v))
				}
			}
			return "{" + strings.Join(parts, ", ") + "}"
		}
	}
	return FormatValue(value)
}

// FormatValue renders an untyped Go value as a GraphQL literal.
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = FormatValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + FormatValue(v[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprint(v)
	}
}
