package schema

import (
	"errors"
	"fmt"
	"sort"

	language "github.com/hanpama/countergraph/internal/language"
)

// IntegrityError reports a malformed schema description. It is only produced
// at startup and must stop the process.
type IntegrityError struct {
	Source string
	Err    error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("schema %s: %v", e.Source, e.Err)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// Load validates sdl and builds the executable schema from it.
func Load(name, sdl string) (*Schema, error) {
	src, err := language.LoadSchema(name, sdl)
	if err != nil {
		return nil, &IntegrityError{Source: name, Err: err}
	}
	if src.Query == nil {
		return nil, &IntegrityError{Source: name, Err: errors.New("missing query root type")}
	}
	return FromAST(src), nil
}

// FromAST converts a validated gqlparser schema.
func FromAST(src *language.Schema) *Schema {
	s := NewSchema(src.Description)
	s.ast = src
	if src.Query != nil {
		s.SetQueryType(src.Query.Name)
	}
	if src.Mutation != nil {
		s.SetMutationType(src.Mutation.Name)
	}
	if src.Subscription != nil {
		s.SetSubscriptionType(src.Subscription.Name)
	}

	for _, def := range src.Types {
		t := buildType(def)
		if t.Kind == TypeKindInterface {
			t.PossibleTypes = implementations(src, def.Name)
		}
		s.AddType(t)
	}

	names := make([]string, 0, len(src.Directives))
	for name := range src.Directives {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s.AddDirective(buildDirective(src.Directives[name]))
	}
	return s
}

// implementations lists the object types implementing iface, sorted by name.
func implementations(src *language.Schema, iface string) []string {
	var out []string
	for _, def := range src.PossibleTypes[iface] {
		if def.Kind == language.Object {
			out = append(out, def.Name)
		}
	}
	sort.Strings(out)
	return out
}

func buildType(def *language.Definition) *Type {
	t := NewType(def.Name, TypeKind(def.Kind), def.Description)
	t.BuiltIn = def.BuiltIn
	t.OneOf = def.Directives.ForName("oneOf") != nil
	if d := def.Directives.ForName("specifiedBy"); d != nil {
		if arg := d.Arguments.ForName("url"); arg != nil && arg.Value != nil {
			url := arg.Value.Raw
			t.SpecifiedByURL = &url
		}
	}

	switch t.Kind {
	case TypeKindObject, TypeKindInterface:
		t.Interfaces = append(t.Interfaces, def.Interfaces...)
		for _, fd := range def.Fields {
			t.AddField(buildField(fd))
		}
	case TypeKindInputObject:
		for _, fd := range def.Fields {
			in := NewInputValue(fd.Name, fd.Description, buildTypeRef(fd.Type)).
				SetDefault(language.ValueToGo(fd.DefaultValue, nil))
			if ok, reason := deprecation(fd.Directives); ok {
				in.Deprecate(reason)
			}
			t.AddInputField(in)
		}
	case TypeKindEnum:
		for _, ev := range def.EnumValues {
			v := &EnumValue{Name: ev.Name, Description: ev.Description}
			if ok, reason := deprecation(ev.Directives); ok {
				v.IsDeprecated, v.DeprecationReason = true, reason
			}
			t.EnumValues = append(t.EnumValues, v)
		}
	}
	if t.Kind == TypeKindUnion {
		t.PossibleTypes = append(t.PossibleTypes, def.Types...)
	}
	return t
}

func buildField(fd *language.FieldDefinition) *Field {
	f := NewField(fd.Name, fd.Description, buildTypeRef(fd.Type))
	if ok, reason := deprecation(fd.Directives); ok {
		f.Deprecate(reason)
	}
	for _, ad := range fd.Arguments {
		f.AddArgument(buildArgument(ad))
	}
	return f
}

func buildArgument(ad *language.ArgumentDefinition) *InputValue {
	in := NewInputValue(ad.Name, ad.Description, buildTypeRef(ad.Type)).
		SetDefault(language.ValueToGo(ad.DefaultValue, nil))
	if ok, reason := deprecation(ad.Directives); ok {
		in.Deprecate(reason)
	}
	return in
}

func buildDirective(dd *language.DirectiveDefinition) *Directive {
	d := &Directive{
		Name:         dd.Name,
		Description:  dd.Description,
		IsRepeatable: dd.IsRepeatable,
		BuiltIn:      dd.Position != nil && dd.Position.Src != nil && dd.Position.Src.BuiltIn,
	}
	for _, loc := range dd.Locations {
		d.Locations = append(d.Locations, string(loc))
	}
	for _, ad := range dd.Arguments {
		d.Arguments = append(d.Arguments, buildArgument(ad))
	}
	return d
}

func buildTypeRef(t *language.Type) *TypeRef {
	if t == nil {
		return nil
	}
	var ref *TypeRef
	if t.Elem != nil {
		ref = ListType(buildTypeRef(t.Elem))
	} else {
		ref = NamedType(t.NamedType)
	}
	if t.NonNull {
		ref = NonNullType(ref)
	}
	return ref
}

func deprecation(dirs language.DirectiveList) (bool, string) {
	d := dirs.ForName("deprecated")
	if d == nil {
		return false, ""
	}
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return true, arg.Value.Raw
	}
	return true, "No longer supported"
}

// ----- constructors -----

func NewSchema(description string) *Schema {
	return &Schema{
		Types:       make(map[string]*Type),
		Directives:  make(map[string]*Directive),
		Description: description,
	}
}

func (s *Schema) SetQueryType(name string) *Schema        { s.QueryType = name; return s }
func (s *Schema) SetMutationType(name string) *Schema     { s.MutationType = name; return s }
func (s *Schema) SetSubscriptionType(name string) *Schema { s.SubscriptionType = name; return s }
func (s *Schema) AddType(t *Type) *Schema                 { s.Types[t.Name] = t; return s }
func (s *Schema) AddDirective(d *Directive) *Schema       { s.Directives[d.Name] = d; return s }

func NewType(name string, kind TypeKind, description string) *Type {
	return &Type{Name: name, Kind: kind, Description: description}
}

func (t *Type) AddField(f *Field) *Type            { t.Fields = append(t.Fields, f); return t }
func (t *Type) AddInputField(v *InputValue) *Type  { t.InputFields = append(t.InputFields, v); return t }
func (t *Type) AddPossibleType(name string) *Type { t.PossibleTypes = append(t.PossibleTypes, name); return t }

func NewField(name, description string, typ *TypeRef) *Field {
	return &Field{Name: name, Description: description, Type: typ}
}

func (f *Field) AddArgument(a *InputValue) *Field { f.Arguments = append(f.Arguments, a); return f }

func (f *Field) Deprecate(reason string) *Field {
	f.IsDeprecated, f.DeprecationReason = true, reason
	return f
}

func NewInputValue(name, description string, typ *TypeRef) *InputValue {
	return &InputValue{Name: name, Description: description, Type: typ}
}

func (v *InputValue) SetDefault(value any) *InputValue { v.DefaultValue = value; return v }

func (v *InputValue) Deprecate(reason string) *InputValue {
	v.IsDeprecated, v.DeprecationReason = true, reason
	return v
}
