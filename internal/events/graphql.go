package events

import "time"

// GraphQLStart is emitted before executing a GraphQL operation.
type GraphQLStart struct {
	Transport     string
	Query         string
	OperationName string
	OperationType string
}

// GraphQLFinish is emitted after executing a GraphQL operation.
type GraphQLFinish struct {
	Transport     string
	Query         string
	OperationName string
	OperationType string
	// Rejected is true when the request failed parsing or validation and no
	// resolver ran.
	Rejected bool
	Errors   []error
	Duration time.Duration
}
