package schema

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	language "github.com/hanpama/countergraph/internal/language"
)

const testSDL = `
"A shared counter."
type Counter {
  "The current value."
  count: Int!
  old: Int @deprecated(reason: "use count")
}

type Query {
  counter: Counter!
}

type Mutation {
  increment(by: Int = 1): Counter
}

enum Mode {
  FAST
  SLOW @deprecated
}

input Filter {
  mode: Mode = FAST
  tags: [String!]
}
`

func TestLoadBuildsExecutableSchema(t *testing.T) {
	s, err := Load("test.graphql", testSDL)
	require.NoError(t, err)
	require.Equal(t, "Query", s.QueryType)
	require.Equal(t, "Mutation", s.MutationType)
	require.Empty(t, s.SubscriptionType)
	require.Nil(t, s.RootType(language.Subscription))
	require.NotNil(t, s.AST())

	counter := s.Types["Counter"]
	require.Equal(t, TypeKindObject, counter.Kind)
	require.Equal(t, "A shared counter.", counter.Description)
	require.False(t, counter.BuiltIn)
	require.Equal(t, "Int!", counter.Field("count").Type.String())
	require.True(t, counter.Field("old").IsDeprecated)
	require.Equal(t, "use count", counter.Field("old").DeprecationReason)

	by := s.GetMutationType().Field("increment").Argument("by")
	require.NotNil(t, by)
	require.Equal(t, 1, by.DefaultValue)
	require.Equal(t, "Int", by.Type.String())

	mode := s.Types["Mode"]
	require.Len(t, mode.EnumValues, 2)
	require.True(t, mode.EnumValues[1].IsDeprecated)

	filter := s.Types["Filter"]
	require.Equal(t, "FAST", filter.InputFields[0].DefaultValue)
	require.Equal(t, "[String!]", filter.InputFields[1].Type.String())

	require.True(t, s.Types["Int"].BuiltIn)
	require.True(t, s.Types["__Schema"].BuiltIn)
	require.True(t, s.Directives["skip"].BuiltIn)
}

func TestLoadRejectsMalformedSchema(t *testing.T) {
	for name, sdl := range map[string]string{
		"unknown type": `type Query { counter: Missing }`,
		"syntax":       `type Query {`,
		"no query":     `type Counter { count: Int }`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load("bad.graphql", sdl)
			var ie *IntegrityError
			require.True(t, errors.As(err, &ie), "got %v", err)
			require.Equal(t, "bad.graphql", ie.Source)
		})
	}
}

func TestRenderSkipsPrelude(t *testing.T) {
	s, err := Load("render.graphql", `
"A shared counter."
type Counter {
  count: Int!
}

type Query {
  "Reads the current counter."
  counter: Counter!
}

type Mutation {
  increment(by: Int = 1): Counter
}
`)
	require.NoError(t, err)
	want := `"A shared counter."
type Counter {
  count: Int!
}

type Mutation {
  increment(by: Int = 1): Counter
}

type Query {
  "Reads the current counter."
  counter: Counter!
}
`
	if diff := cmp.Diff(want, Render(s)); diff != "" {
		t.Fatalf("render mismatch (-want +got):\n%s", diff)
	}
}

func TestTypeRefHelpers(t *testing.T) {
	ref := NonNullType(ListType(NonNullType(NamedType("Int"))))
	require.Equal(t, "[Int!]!", ref.String())
	require.True(t, IsNonNull(ref))
	require.True(t, IsList(ref))
	require.Equal(t, "Int", GetNamedType(ref))
	require.Equal(t, "[Int!]", Unwrap(ref).String())
}

func TestFormatValueUsesInputTypes(t *testing.T) {
	s, err := Load("test.graphql", testSDL)
	require.NoError(t, err)
	filter := s.Types["Filter"]
	require.Equal(t, "FAST", s.FormatValue(filter.InputFields[0].Type, "FAST"))
	require.Equal(t, `["a", "b"]`, s.FormatValue(filter.InputFields[1].Type, []any{"a", "b"}))
	require.Equal(t, `{mode: SLOW}`, s.FormatValue(NamedType("Filter"), map[string]any{"mode": "SLOW"}))
	require.Equal(t, "1", s.FormatValue(NamedType("Int"), 1))
	require.Equal(t, "null", s.FormatValue(NamedType("Int"), nil))
}

func TestLoadResolvesPossibleTypes(t *testing.T) {
	s, err := Load("abstract.graphql", `
interface Node { id: ID! }
type Counter implements Node { id: ID! count: Int! }
type Snapshot implements Node { id: ID! taken: Int! }
type Tally { count: Int! }
union Reading = Tally | Counter
type Query { node: Node reading: Reading }
`)
	require.NoError(t, err)
	require.Equal(t, []string{"Counter", "Snapshot"}, s.Types["Node"].PossibleTypes)
	require.Equal(t, []string{"Tally", "Counter"}, s.Types["Reading"].PossibleTypes)
	require.Empty(t, s.Types["Counter"].PossibleTypes)
	require.Equal(t, []string{"Node"}, s.Types["Counter"].Interfaces)
}
