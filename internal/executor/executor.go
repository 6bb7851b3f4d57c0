package executor

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	language "github.com/hanpama/countergraph/internal/language"
	schema "github.com/hanpama/countergraph/internal/schema"
	validation "github.com/hanpama/countergraph/internal/validation"
)

type Path []PathElement

type PathElement any

// executionState holds the state of a single operation run.
type executionState struct {
	runtime        Runtime
	schema         *schema.Schema
	document       *language.QueryDocument
	variableValues map[string]any
	context        context.Context
	errors         []GraphQLError
}

type Executor struct {
	runtime Runtime
	schema  *schema.Schema
}

func New(runtime Runtime, schema *schema.Schema) *Executor {
	return &Executor{runtime: runtime, schema: schema}
}

// Schema returns the schema the executor was built with.
func (e *Executor) Schema() *schema.Schema { return e.schema }

// Execute runs a query or mutation. Subscriptions are rejected; they are
// driven one event at a time through ExecuteEvent.
func (e *Executor) Execute(ctx context.Context, req *validation.Request) *ExecutionResult {
	if req.Kind == language.Subscription {
		return errorResult("subscription operations must be sent over a streaming transport")
	}
	return e.run(ctx, req)
}

// ExecuteEvent runs a subscription's selection set once against the
// subscription root type. Each call observes the state current at that time.
func (e *Executor) ExecuteEvent(ctx context.Context, req *validation.Request) *ExecutionResult {
	if req.Kind != language.Subscription {
		return errorResult(fmt.Sprintf("%s operation is not a subscription", req.Kind))
	}
	return e.run(ctx, req)
}

func (e *Executor) run(ctx context.Context, req *validation.Request) *ExecutionResult {
	operation := req.Operation
	if operation == nil {
		return errorResult("operation not found")
	}

	coercedVariableValues, err := coerceVariableValues(e.schema, operation, req.Variables)
	if err != nil {
		return errorResult(err.Error())
	}

	rootType := e.schema.RootType(operation.Operation)
	if rootType == nil {
		return errorResult(fmt.Sprintf("root type not found for %s operation", operation.Operation))
	}

	state := &executionState{
		runtime:        e.runtime,
		schema:         e.schema,
		document:       req.Document,
		variableValues: coercedVariableValues,
		context:        ctx,
		errors:         []GraphQLError{},
	}

	// Root fields, mutations included, run one after another in document order.
	data := executeSelectionSet(state, rootType, operation.SelectionSet, nil, Path{})
	return &ExecutionResult{Data: data, Errors: state.errors}
}

func errorResult(message string) *ExecutionResult {
	return &ExecutionResult{Errors: []GraphQLError{{Message: message}}}
}

// executeSelectionSet executes a selection set. It returns nil when a
// non-null child nulled the object.
func executeSelectionSet(state *executionState, objectType *schema.Type, selectionSet language.SelectionSet, objectValue any, path Path) map[string]any {
	groupedFields := collectFields(state, objectType, selectionSet)
	resultMap := make(map[string]any)

	for _, collectedField := range groupedFields.orderedFields() {
		responseName := collectedField.ResponseName
		fields := collectedField.Fields
		fieldPath := appendPath(path, responseName)

		if fields[0].Name == "__typename" {
			resultMap[responseName] = objectType.Name
			continue
		}

		fieldDef := objectType.Field(fields[0].Name)
		if fieldDef == nil {
			state.addError(fmt.Sprintf("Cannot query field %q on type %q.", fields[0].Name, objectType.Name), fields[0], fieldPath)
			continue
		}

		fieldResult := executeField(state, objectType, fieldDef, objectValue, fields, fieldPath)

		if schema.IsNonNull(fieldDef.Type) && isNullish(fieldResult) {
			if len(path) > 0 {
				return nil
			}
			// Root level: keep going but write nil
			resultMap[responseName] = nil
			continue
		}

		if isNullish(fieldResult) {
			resultMap[responseName] = nil
		} else {
			resultMap[responseName] = fieldResult
		}
	}

	return resultMap
}

func executeField(state *executionState, objectType *schema.Type, fieldDef *schema.Field, objectValue any, fields []*language.Field, path Path) any {
	field := fields[0]
	argumentValues, ok := coerceArgumentValues(state, fieldDef, field, path)
	if !ok {
		return nil
	}
	resolvedValue, err := resolveField(state, objectType.Name, field.Name, objectValue, argumentValues)
	if err != nil {
		state.addResolverError(err, field, path)
		return nil
	}
	return completeValue(state, fieldDef.Type, fields, resolvedValue, path)
}

func resolveField(state *executionState, objectType, fieldName string, source any, args map[string]any) (any, error) {
	if err := state.context.Err(); err != nil {
		return nil, err
	}
	return state.runtime.ResolveSync(state.context, objectType, fieldName, source, args)
}

// completeValue completes a value
func completeValue(state *executionState, fieldType *schema.TypeRef, fields []*language.Field, result any, path Path) any {
	if schema.IsNonNull(fieldType) {
		if isNullish(result) {
			if !state.hasErrorAtPath(path) {
				state.addError(fmt.Sprintf("Cannot return null for non-nullable field %s.", pathToString(path)), fields[0], path)
			}
			return nil
		}
		completed := completeValue(state, schema.Unwrap(fieldType), fields, result, path)
		if isNullish(completed) {
			// Error already recorded at original path; propagate only
			return nil
		}
		return completed
	}

	if isNullish(result) {
		return nil
	}

	if schema.IsList(fieldType) {
		return completeListValue(state, fieldType, fields, result, path)
	}
	namedType := schema.GetNamedType(fieldType)
	typeObj := state.schema.Types[namedType]
	if typeObj == nil {
		state.addError(fmt.Sprintf("Unknown type: %s", namedType), fields[0], path)
		return nil
	}

	switch typeObj.Kind {
	case schema.TypeKindScalar, schema.TypeKindEnum:
		serialized, err := state.runtime.SerializeLeafValue(state.context, namedType, result)
		if err != nil {
			state.addError(err.Error(), fields[0], path)
			return nil
		}
		return serialized
	case schema.TypeKindObject:
		return completeObjectValue(state, typeObj, fields, result, path)
	case schema.TypeKindInterface, schema.TypeKindUnion:
		return completeAbstractValue(state, namedType, fields, result, path)
	default:
		state.addError(fmt.Sprintf("Cannot complete value of unexpected type: %s", typeObj.Kind), fields[0], path)
		return nil
	}
}

// completeListValue completes a list value
func completeListValue(state *executionState, listType *schema.TypeRef, fields []*language.Field, result any, path Path) any {
	var items []any
	if direct, ok := result.([]any); ok {
		items = direct
	} else {
		rv := reflect.ValueOf(result)
		if rv.Kind() != reflect.Slice {
			state.addError(fmt.Sprintf("Expected list value, got %T", result), fields[0], path)
			return nil
		}
		items = make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			items[i] = rv.Index(i).Interface()
		}
	}

	inner := schema.Unwrap(listType)
	completed := make([]any, len(items))
	for i, item := range items {
		v := completeValue(state, inner, fields, item, appendPath(path, i))
		if schema.IsNonNull(inner) && isNullish(v) {
			return nil
		}
		completed[i] = v
	}
	return completed
}

func completeObjectValue(state *executionState, objectType *schema.Type, fields []*language.Field, result any, path Path) any {
	sub := mergeSelectionSets(fields)
	return executeSelectionSet(state, objectType, sub, result, path)
}

func completeAbstractValue(state *executionState, abstractTypeName string, fields []*language.Field, result any, path Path) any {
	typeName, err := state.runtime.ResolveType(state.context, abstractTypeName, result)
	if err != nil {
		state.addError(err.Error(), fields[0], path)
		return nil
	}
	objectType := state.schema.Types[typeName]
	if objectType == nil || objectType.Kind != schema.TypeKindObject {
		state.addError(fmt.Sprintf("Abstract type %s must resolve to an Object type at runtime. Got: %s", abstractTypeName, typeName), fields[0], path)
		return nil
	}
	return completeObjectValue(state, objectType, fields, result, path)
}

func pathToString(path Path) string {
	result := ""
	for i, elem := range path {
		switch v := elem.(type) {
		case string:
			if i > 0 {
				result += "."
			}
			result += v
		case int:
			result += fmt.Sprintf("[%d]", v)
		}
	}
	return result
}

func appendPath(path Path, elem PathElement) Path {
	newPath := make(Path, len(path)+1)
	copy(newPath, path)
	newPath[len(path)] = elem
	return newPath
}

func typeRefFromAST(t *language.Type) *schema.TypeRef {
	if t == nil {
		return nil
	}
	if t.NonNull {
		return schema.NonNullType(typeRefFromAST(&language.Type{NamedType: t.NamedType, Elem: t.Elem}))
	}
	if t.NamedType != "" {
		return schema.NamedType(t.NamedType)
	}
	if t.Elem != nil {
		return schema.ListType(typeRefFromAST(t.Elem))
	}
	return nil
}

func (state *executionState) addError(message string, field *language.Field, path Path) {
	state.errors = append(state.errors, GraphQLError{
		Message:   message,
		Locations: fieldLocations(field),
		Path:      path,
	})
}

// addResolverError records err, keeping the message and extensions of a
// *GraphQLError returned by the runtime.
func (state *executionState) addResolverError(err error, field *language.Field, path Path) {
	ge := GraphQLError{Message: err.Error()}
	var fe *GraphQLError
	if errors.As(err, &fe) {
		ge.Message = fe.Message
		ge.Extensions = fe.Extensions
	}
	ge.Locations = fieldLocations(field)
	ge.Path = path
	state.errors = append(state.errors, ge)
}

// hasErrorAtPath reports whether an error with the given path already exists.
func (state *executionState) hasErrorAtPath(path Path) bool {
	for _, err := range state.errors {
		if reflect.DeepEqual(err.Path, path) {
			return true
		}
	}
	return false
}

func fieldLocations(field *language.Field) []Location {
	if field == nil || field.Position == nil {
		return nil
	}
	return []Location{{Line: field.Position.Line, Column: field.Position.Column}}
}

// mergeSelectionSets merges selection sets from multiple fields
func mergeSelectionSets(fields []*language.Field) language.SelectionSet {
	var merged language.SelectionSet
	for _, f := range fields {
		merged = append(merged, f.SelectionSet...)
	}
	return merged
}

// isNullish returns true for nil interfaces and typed nils (map, slice, ptr, interface)
func isNullish(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
