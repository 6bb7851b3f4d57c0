package executor

import (
	"context"
)

// Runtime is the host integration surface used by the Executor to resolve
// fields, pick concrete types for abstract values and serialize leaves.
//
// General contract
//   - The Executor walks the selection set depth-first and calls ResolveSync
//     once per field instance, in document order. Root mutation fields are
//     therefore resolved serially.
//   - Errors returned from any method are converted into located GraphQL
//     errors. Return a *GraphQLError to control the message and extensions.
//     If the field's return type is Non-Null the Executor propagates the null
//     up to the nearest nullable ancestor.
//   - Implementations must be safe for concurrent use; one Runtime serves
//     every connection.
//   - Implementations must not mutate source or args values.
//
// Object/field identifiers
//   - objectType is the GraphQL type name (e.g. "Counter").
//   - field is the GraphQL field name on that type (e.g. "count").
//   - For root fields, objectType is the root type name and source is nil.
//   - args holds argument values already coerced and defaulted.
type Runtime interface {
	// ResolveSync resolves a field value. Return (nil, nil) to produce a
	// GraphQL null for nullable fields.
	ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error)

	// ResolveType returns the concrete object type name for a value of an
	// interface or union type.
	ResolveType(ctx context.Context, abstractType string, value any) (string, error)

	// SerializeLeafValue serializes a scalar or enum value into a JSON-safe
	// Go value. Enums serialize to their symbolic name.
	SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error)
}
