package language

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseQuerySyntaxErrorIsLocated(t *testing.T) {
	_, err := ParseQuery("query { counter { count }")
	require.Error(t, err)
	ge := AsError(err)
	require.NotEmpty(t, ge.Message)
	require.NotEmpty(t, ge.Locations)
}

func TestValidateReportsEveryViolation(t *testing.T) {
	s, err := LoadSchema("test.graphql", `type Query { a: Int, b(x: Int!): Int }`)
	require.NoError(t, err)
	doc, err := ParseQuery("{ nope b(x: \"str\") }")
	require.NoError(t, err)
	errs := Validate(s, doc)
	require.GreaterOrEqual(t, len(errs), 2)
}

func TestValueToGo(t *testing.T) {
	doc, err := ParseQuery(`{ f(a: 3, b: [1, "x", true], c: {k: null}, d: $v) }`)
	require.NoError(t, err)
	args := doc.Operations[0].SelectionSet[0].(*Field).Arguments
	vars := map[string]any{"v": 9}
	require.Equal(t, 3, ValueToGo(args.ForName("a").Value, vars))
	require.Equal(t, []any{1, "x", true}, ValueToGo(args.ForName("b").Value, vars))
	require.Equal(t, map[string]any{"k": nil}, ValueToGo(args.ForName("c").Value, vars))
	require.Equal(t, 9, ValueToGo(args.ForName("d").Value, vars))
}
