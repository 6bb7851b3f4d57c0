// Package executor runs validated GraphQL operations against a Runtime.
//
// # Overview
//
// The executor walks the selected operation depth-first:
//   - Variables are coerced against the operation's variable definitions.
//     A coercion failure stops execution with a single request error.
//   - The root object type is picked from the operation kind.
//   - Fields are collected per object (honoring aliases, fragments, @skip and
//     @include), grouped by response name, and resolved in document order
//     through Runtime.ResolveSync.
//   - Values are completed per the GraphQL rules for Non-Null, lists, leaves,
//     objects and abstract types.
//
// # Errors and Partial Success
//
// Errors are accumulated as located GraphQL errors (message, locations and
// path). A failing nullable field becomes null and its siblings still run. A
// failing Non-Null field nulls its nearest nullable ancestor; at the root the
// field itself is written as null.
//
// # Subscriptions
//
// Execute refuses subscription operations. A subscription's selection set is
// evaluated once per event through ExecuteEvent, which reads whatever the
// runtime reports at that moment.
package executor
