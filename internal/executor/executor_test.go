package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	schema "github.com/hanpama/countergraph/internal/schema"
)

// Pattern: Result comparison
func TestExecute_OperationSelection_Result(t *testing.T) {
	sch := newSchemaWithQueryType(newObjectType("Query",
		schema.NewField("a", "", schema.NamedType("String")),
		schema.NewField("b", "", schema.NamedType("String")),
	))
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.a": NewMockValueResolver("A"),
		"Query.b": NewMockValueResolver("B"),
	})
	exec := New(rt, sch)

	t.Run("Inline operation", func(t *testing.T) {
		got := exec.Execute(context.Background(), mustRequest(t, "{ a }", "", nil))
		requireResult(t, &ExecutionResult{Data: map[string]any{"a": "A"}, Errors: []GraphQLError{}}, got)
	})

	t.Run("Named operation provided", func(t *testing.T) {
		got := exec.Execute(context.Background(), mustRequest(t, "query Foo { a } query Bar { b }", "Bar", nil))
		requireResult(t, &ExecutionResult{Data: map[string]any{"b": "B"}, Errors: []GraphQLError{}}, got)
	})

	t.Run("Aliases and typename", func(t *testing.T) {
		got := exec.Execute(context.Background(), mustRequest(t, "{ x: a y: a __typename }", "", nil))
		requireResult(t, &ExecutionResult{Data: map[string]any{"x": "A", "y": "A", "__typename": "Query"}, Errors: []GraphQLError{}}, got)
	})

	t.Run("Missing root type", func(t *testing.T) {
		got := exec.Execute(context.Background(), mustRequest(t, "mutation { a }", "", nil))
		require.Nil(t, got.Data)
		require.Len(t, got.Errors, 1)
	})
}

func TestExecute_Subscription_Routing(t *testing.T) {
	sch := newSchemaWithQueryType(newObjectType("Query", schema.NewField("a", "", schema.NamedType("String"))),
		newObjectType("Subscription", schema.NewField("tick", "", schema.NonNullType(schema.NamedType("Int")))),
	)
	sch.SetSubscriptionType("Subscription")
	n := 0
	rt := NewMockRuntime(map[string]MockResolver{
		"Subscription.tick": func(ctx context.Context, source any, args map[string]any) (any, error) {
			n++
			return n, nil
		},
	})
	exec := New(rt, sch)
	req := mustRequest(t, "subscription { tick }", "", nil)

	got := exec.Execute(context.Background(), req)
	require.Nil(t, got.Data)
	require.Len(t, got.Errors, 1)
	require.Empty(t, rt.GetCalls())

	requireResult(t, &ExecutionResult{Data: map[string]any{"tick": 1}, Errors: []GraphQLError{}}, exec.ExecuteEvent(context.Background(), req))
	requireResult(t, &ExecutionResult{Data: map[string]any{"tick": 2}, Errors: []GraphQLError{}}, exec.ExecuteEvent(context.Background(), req))

	got = exec.ExecuteEvent(context.Background(), mustRequest(t, "{ a }", "", nil))
	require.Nil(t, got.Data)
	require.Len(t, got.Errors, 1)
}

// Pattern: Result comparison
func TestCompleteValue_NonNull_Propagation_Result(t *testing.T) {
	sch := newSchemaWithQueryType(
		newObjectType("Query",
			schema.NewField("obj", "", schema.NonNullType(schema.NamedType("Obj"))),
			schema.NewField("maybe", "", schema.NamedType("Obj")),
		),
		newObjectType("Obj",
			schema.NewField("a", "", schema.NonNullType(schema.NamedType("String"))),
			schema.NewField("b", "", schema.NamedType("String")),
		),
	)

	t.Run("Resolver error nulls nearest nullable parent", func(t *testing.T) {
		rt := NewMockRuntime(map[string]MockResolver{
			"Query.obj":   NewMockValueResolver(map[string]any{"b": "B"}),
			"Query.maybe": NewMockValueResolver(map[string]any{"b": "B"}),
			"Obj.a":       NewMockErrorResolver(fmt.Errorf("boom")),
		})
		got := New(rt, sch).Execute(context.Background(), mustRequest(t, "{ maybe { a b } }", "", nil))
		requireResult(t, &ExecutionResult{
			Data:   map[string]any{"maybe": nil},
			Errors: []GraphQLError{{Message: "boom", Path: Path{"maybe", "a"}}},
		}, got)
	})

	t.Run("Root non-null field writes null", func(t *testing.T) {
		rt := NewMockRuntime(map[string]MockResolver{
			"Query.obj": NewMockValueResolver(map[string]any{}),
			"Obj.a":     NewMockValueResolver(nil),
		})
		got := New(rt, sch).Execute(context.Background(), mustRequest(t, "{ obj { a b } }", "", nil))
		requireResult(t, &ExecutionResult{
			Data:   map[string]any{"obj": nil},
			Errors: []GraphQLError{{Message: "Cannot return null for non-nullable field obj.a.", Path: Path{"obj", "a"}}},
		}, got)
	})

	t.Run("Nullable field error keeps siblings", func(t *testing.T) {
		rt := NewMockRuntime(map[string]MockResolver{
			"Query.obj": NewMockValueResolver(map[string]any{"a": "A"}),
			"Obj.b":     NewMockErrorResolver(fmt.Errorf("nope")),
		})
		got := New(rt, sch).Execute(context.Background(), mustRequest(t, "{ obj { a b } }", "", nil))
		requireResult(t, &ExecutionResult{
			Data:   map[string]any{"obj": map[string]any{"a": "A", "b": nil}},
			Errors: []GraphQLError{{Message: "nope", Path: Path{"obj", "b"}}},
		}, got)
	})
}

// Pattern: Result comparison
func TestCompleteValue_List_Result(t *testing.T) {
	sch := newSchemaWithQueryType(newObjectType("Query",
		schema.NewField("list", "", schema.ListType(schema.NamedType("String"))),
		schema.NewField("strict", "", schema.ListType(schema.NonNullType(schema.NamedType("String")))),
		schema.NewField("typed", "", schema.ListType(schema.NamedType("Int"))),
		schema.NewField("bad", "", schema.ListType(schema.NamedType("Int"))),
	))
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.list":   NewMockValueResolver([]any{"a", nil, "c"}),
		"Query.strict": NewMockValueResolver([]any{"a", nil}),
		"Query.typed":  NewMockValueResolver([]int{1, 2}),
		"Query.bad":    NewMockValueResolver(3),
	})
	got := New(rt, sch).Execute(context.Background(), mustRequest(t, "{ list strict typed bad }", "", nil))
	requireResult(t, &ExecutionResult{
		Data: map[string]any{
			"list":   []any{"a", nil, "c"},
			"strict": nil,
			"typed":  []any{1, 2},
			"bad":    nil,
		},
		Errors: []GraphQLError{
			{Message: "Cannot return null for non-nullable field strict[1].", Path: Path{"strict", 1}},
			{Message: "Expected list value, got int", Path: Path{"bad"}},
		},
	}, got)
}

// Pattern: Result comparison
func TestCompleteValue_Abstract_Result(t *testing.T) {
	named := schema.NewType("Named", schema.TypeKindInterface, "").
		AddField(schema.NewField("name", "", schema.NamedType("String"))).
		AddPossibleType("Dog")
	sch := newSchemaWithQueryType(
		newObjectType("Query", schema.NewField("pet", "", schema.NamedType("Named"))),
		named,
		newObjectType("Dog",
			schema.NewField("name", "", schema.NamedType("String")),
			schema.NewField("barks", "", schema.NamedType("Boolean")),
		),
	)
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.pet": NewMockValueResolver(map[string]any{"__typename": "Dog", "name": "Rex", "barks": true}),
	})
	got := New(rt, sch).Execute(context.Background(), mustRequest(t,
		"{ pet { name ... on Dog { barks } ...N __typename } } fragment N on Named { name }", "", nil))
	requireResult(t, &ExecutionResult{
		Data:   map[string]any{"pet": map[string]any{"name": "Rex", "barks": true, "__typename": "Dog"}},
		Errors: []GraphQLError{},
	}, got)
}

// Pattern: Calls comparison
func TestMutation_Serial_Evaluation_Order_Calls(t *testing.T) {
	sch := newSchemaWithQueryType(newObjectType("Query"),
		newObjectType("Mutation",
			schema.NewField("m1", "", schema.NamedType("String")),
			schema.NewField("m2", "", schema.NamedType("String")),
			schema.NewField("m3", "", schema.NamedType("String")),
		),
	)
	sch.SetMutationType("Mutation")
	rt := NewMockRuntime(map[string]MockResolver{
		"Mutation.m1": NewMockValueResolver("1"),
		"Mutation.m2": NewMockErrorResolver(fmt.Errorf("boom")),
		"Mutation.m3": NewMockValueResolver("3"),
	})

	got := New(rt, sch).Execute(context.Background(), mustRequest(t, "mutation { m3 m1 m2 }", "", nil))
	requireResult(t, &ExecutionResult{
		Data:   map[string]any{"m1": "1", "m2": nil, "m3": "3"},
		Errors: []GraphQLError{{Message: "boom", Path: Path{"m2"}}},
	}, got)

	wantCalls := []Call{
		{ObjectType: "Mutation", Field: "m3", Args: map[string]any{}},
		{ObjectType: "Mutation", Field: "m1", Args: map[string]any{}},
		{ObjectType: "Mutation", Field: "m2", Args: map[string]any{}},
	}
	if diff := cmp.Diff(wantCalls, rt.GetCalls()); diff != "" {
		t.Fatalf("Runtime calls mismatch (-want +got):\n%s", diff)
	}
}

func TestFieldError_Extensions_And_Locations(t *testing.T) {
	sch := newSchemaWithQueryType(newObjectType("Query", schema.NewField("a", "", schema.NamedType("String"))))
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.a": NewMockErrorResolver(fmt.Errorf("wrapped: %w", NewFieldError("bad input", map[string]any{"code": "ARGUMENT_ERROR"}))),
	})
	got := New(rt, sch).Execute(context.Background(), mustRequest(t, "{\n  a\n}", "", nil))
	require.Equal(t, map[string]any{"a": nil}, got.Data)
	require.Equal(t, []GraphQLError{{
		Message:    "bad input",
		Locations:  []Location{{Line: 2, Column: 3}},
		Path:       Path{"a"},
		Extensions: map[string]any{"code": "ARGUMENT_ERROR"},
	}}, got.Errors)
}

// Pattern: Calls comparison
func TestArguments_Defaults_And_Variables_Calls(t *testing.T) {
	add := schema.NewField("add", "", schema.NamedType("Int")).
		AddArgument(schema.NewInputValue("by", "", schema.NamedType("Int")).SetDefault(1))
	sch := newSchemaWithQueryType(newObjectType("Query", add))
	rt := NewMockRuntime(map[string]MockResolver{"Query.add": NewMockValueResolver(0)})
	exec := New(rt, sch)

	for _, q := range []struct {
		query string
		vars  map[string]any
	}{
		{"{ add }", nil},
		{"{ add(by: 4) }", nil},
		{"{ add(by: null) }", nil},
		{"query($n: Int) { add(by: $n) }", map[string]any{"n": float64(7)}},
		{"query($n: Int) { add(by: $n) }", nil},
		{"query($n: Int = 9) { add(by: $n) }", nil},
	} {
		res := exec.Execute(context.Background(), mustRequest(t, q.query, "", q.vars))
		require.Empty(t, res.Errors, q.query)
	}

	wantArgs := []map[string]any{
		{"by": 1},
		{"by": 4},
		{"by": nil},
		{"by": 7},
		{"by": 1},
		{"by": 9},
	}
	calls := rt.GetCalls()
	require.Len(t, calls, len(wantArgs))
	for i, c := range calls {
		require.Equal(t, wantArgs[i], c.Args, "call %d", i)
	}
}

func TestArguments_InvalidVariable_Result(t *testing.T) {
	add := schema.NewField("add", "", schema.NamedType("Int")).
		AddArgument(schema.NewInputValue("by", "", schema.NonNullType(schema.NamedType("Int"))))
	sch := newSchemaWithQueryType(newObjectType("Query", add))
	rt := NewMockRuntime(nil)
	exec := New(rt, sch)

	res := exec.Execute(context.Background(), mustRequest(t, "query($n: Int!) { add(by: $n) }", "", map[string]any{"n": 1.5}))
	require.Nil(t, res.Data)
	require.Len(t, res.Errors, 1)

	res = exec.Execute(context.Background(), mustRequest(t, "query($n: Int!) { add(by: $n) }", "", nil))
	require.Nil(t, res.Data)
	require.Len(t, res.Errors, 1)
	require.Empty(t, rt.GetCalls())
}

func TestExecute_CancelledContext(t *testing.T) {
	sch := newSchemaWithQueryType(newObjectType("Query", schema.NewField("a", "", schema.NamedType("String"))))
	rt := NewMockRuntime(map[string]MockResolver{"Query.a": NewMockValueResolver("A")})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := New(rt, sch).Execute(ctx, mustRequest(t, "{ a }", "", nil))
	require.Equal(t, map[string]any{"a": nil}, got.Data)
	require.Len(t, got.Errors, 1)
	require.True(t, errors.Is(ctx.Err(), context.Canceled))
	require.Equal(t, context.Canceled.Error(), got.Errors[0].Message)
	require.Empty(t, rt.GetCalls())
}
