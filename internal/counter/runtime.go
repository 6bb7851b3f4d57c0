// Package counter binds the counter schema to the state store.
package counter

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	executor "github.com/hanpama/countergraph/internal/executor"
	schema "github.com/hanpama/countergraph/internal/schema"
	store "github.com/hanpama/countergraph/internal/store"
)

//go:embed schema.graphql
var SDL string

// SchemaName is the source name reported in schema load errors.
const SchemaName = "counter.graphql"

// ArgumentErrorMessage is reported for a non-positive increment.
const ArgumentErrorMessage = "Cannot increment by zero or a negative number."

// LoadSchema loads the embedded counter schema.
func LoadSchema() (*schema.Schema, error) {
	return schema.Load(SchemaName, SDL)
}

type fieldKey struct {
	objectType string
	field      string
}

func (k fieldKey) String() string { return k.objectType + "." + k.field }

type resolver func(ctx context.Context, source any, args map[string]any) (any, error)

// Runtime resolves counter fields against a Store.
type Runtime struct {
	store *store.Store
	table map[fieldKey]resolver
}

var _ executor.Runtime = (*Runtime)(nil)

// NewRuntime returns a Runtime reading and mutating st.
func NewRuntime(st *store.Store) *Runtime {
	r := &Runtime{store: st}
	r.table = map[fieldKey]resolver{
		{"Query", "counter"}:        r.read,
		{"Mutation", "increment"}:   r.increment,
		{"Mutation", "reset"}:       r.reset,
		{"Subscription", "counter"}: r.read,
		{"Counter", "count"}:        count,
	}
	return r
}

func (r *Runtime) ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error) {
	fn, ok := r.table[fieldKey{objectType, field}]
	if !ok {
		return nil, fmt.Errorf("no resolver for %s.%s", objectType, field)
	}
	return fn(ctx, source, args)
}

func (r *Runtime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	return "", fmt.Errorf("counter schema has no abstract type %s", abstractType)
}

func (r *Runtime) SerializeLeafValue(ctx context.Context, typeName string, value any) (any, error) {
	switch typeName {
	case "Int":
		if v, ok := value.(int); ok {
			if v < math.MinInt32 || v > math.MaxInt32 {
				return nil, fmt.Errorf("Int cannot represent non 32-bit signed integer value: %d", v)
			}
			return v, nil
		}
	case "String", "ID":
		if v, ok := value.(string); ok {
			return v, nil
		}
	case "Boolean":
		if v, ok := value.(bool); ok {
			return v, nil
		}
	case "Float":
		if v, ok := value.(float64); ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%s cannot represent value: %v", typeName, value)
}

// fields lists the "Type.field" keys of the dispatch table, sorted.
func (r *Runtime) fields() []string {
	out := make([]string, 0, len(r.table))
	for k := range r.table {
		out = append(out, k.String())
	}
	sort.Strings(out)
	return out
}

// Check verifies that every field of every non-prelude object type has a
// resolver and that every resolver belongs to a schema field.
func (r *Runtime) Check(s *schema.Schema) error {
	var problems []string
	seen := make(map[fieldKey]bool, len(r.table))
	for _, typ := range s.Types {
		if typ.BuiltIn || typ.Kind != schema.TypeKindObject {
			continue
		}
		for _, f := range typ.Fields {
			if strings.HasPrefix(f.Name, "__") {
				continue
			}
			k := fieldKey{typ.Name, f.Name}
			seen[k] = true
			if _, ok := r.table[k]; !ok {
				problems = append(problems, "no resolver for "+k.String())
			}
		}
	}
	for k := range r.table {
		if !seen[k] {
			problems = append(problems, "resolver for unknown field "+k.String())
		}
	}
	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return &schema.IntegrityError{Source: SchemaName, Err: errors.New(strings.Join(problems, "; "))}
}

func (r *Runtime) read(context.Context, any, map[string]any) (any, error) {
	return r.store.Read(), nil
}

func (r *Runtime) increment(_ context.Context, _ any, args map[string]any) (any, error) {
	var by *int
	if v, ok := args["by"].(int); ok {
		by = &v
	}
	c, err := r.store.Increment(by)
	if errors.Is(err, store.ErrInvalidArgument) {
		return nil, executor.NewFieldError(ArgumentErrorMessage, map[string]any{"code": "ARGUMENT_ERROR"})
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *Runtime) reset(context.Context, any, map[string]any) (any, error) {
	return r.store.Reset(), nil
}

func count(_ context.Context, source any, _ map[string]any) (any, error) {
	c, ok := source.(store.Counter)
	if !ok {
		return nil, fmt.Errorf("expected store.Counter, got %T", source)
	}
	return c.Count, nil
}
