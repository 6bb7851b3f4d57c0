package executor

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	language "github.com/hanpama/countergraph/internal/language"
	schema "github.com/hanpama/countergraph/internal/schema"
	validation "github.com/hanpama/countergraph/internal/validation"
)

// ignoreLocations drops source positions from error comparisons.
var ignoreLocations = cmpopts.IgnoreFields(GraphQLError{}, "Locations")

// mustParseQuery parses a GraphQL query and fails the test on error.
func mustParseQuery(t *testing.T, q string) *language.QueryDocument {
	t.Helper()
	d, err := language.ParseQuery(q)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return d
}

// mustRequest builds a request without schema validation, so hand-built
// schemas can be exercised.
func mustRequest(t *testing.T, q, operationName string, variables map[string]any) *validation.Request {
	t.Helper()
	req, err := validation.NewRequest(mustParseQuery(t, q), operationName, variables)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	return req
}

func requireResult(t *testing.T, want, got *ExecutionResult) {
	t.Helper()
	if diff := cmp.Diff(want, got, ignoreLocations); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}
}

func newSchemaWithQueryType(query *schema.Type, additional ...*schema.Type) *schema.Schema {
	sch := schema.NewSchema("")
	if query != nil {
		sch.SetQueryType(query.Name)
		sch.AddType(query)
	}
	for _, name := range []string{"String", "Int", "Float", "Boolean", "ID"} {
		sch.AddType(newScalarType(name))
	}
	for _, t := range additional {
		sch.AddType(t)
	}
	return sch
}

func newObjectType(name string, fields ...*schema.Field) *schema.Type {
	t := schema.NewType(name, schema.TypeKindObject, "")
	for _, field := range fields {
		t.AddField(field)
	}
	return t
}

func newScalarType(name string) *schema.Type {
	return schema.NewType(name, schema.TypeKindScalar, "")
}
