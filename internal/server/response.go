package server

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	eventbus "github.com/hanpama/countergraph/internal/eventbus"
	events "github.com/hanpama/countergraph/internal/events"
	executor "github.com/hanpama/countergraph/internal/executor"
	language "github.com/hanpama/countergraph/internal/language"
	validation "github.com/hanpama/countergraph/internal/validation"
)

// Location is a line/column position in the request source.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Error is one entry of a response's errors list.
type Error struct {
	Message    string         `json:"message"`
	Locations  []Location     `json:"locations,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Response is the envelope written for every operation result. A rejected
// response never ran and is written without a data entry.
type Response struct {
	Data     any
	Errors   []Error
	Rejected bool
}

func (r Response) MarshalJSON() ([]byte, error) {
	if r.Rejected {
		return json.Marshal(struct {
			Errors []Error `json:"errors"`
		}{r.Errors})
	}
	return json.Marshal(struct {
		Data   any     `json:"data"`
		Errors []Error `json:"errors,omitempty"`
	}{r.Data, r.Errors})
}

func requestError(message string) Response {
	return Response{Rejected: true, Errors: []Error{{Message: message}}}
}

func fromResult(res *executor.ExecutionResult) Response {
	out := Response{Data: res.Data}
	if len(res.Errors) == 0 {
		return out
	}
	out.Errors = make([]Error, len(res.Errors))
	for i, e := range res.Errors {
		se := Error{Message: e.Message, Extensions: e.Extensions}
		for _, l := range e.Locations {
			se.Locations = append(se.Locations, Location{Line: l.Line, Column: l.Column})
		}
		if len(e.Path) > 0 {
			se.Path = make([]any, len(e.Path))
			for j, pe := range e.Path {
				se.Path[j] = pe
			}
		}
		out.Errors[i] = se
	}
	return out
}

func fromErrorList(list language.ErrorList) Response {
	out := Response{Rejected: true, Errors: make([]Error, len(list))}
	for i, e := range list {
		se := Error{Message: e.Message, Extensions: e.Extensions}
		for _, l := range e.Locations {
			se.Locations = append(se.Locations, Location{Line: l.Line, Column: l.Column})
		}
		out.Errors[i] = se
	}
	return out
}

// operations validates and runs requests on behalf of both transports.
type operations struct {
	exec *executor.Executor
}

// prepare validates p. When the request is rejected the returned response
// describes why and req is nil.
func (o operations) prepare(ctx context.Context, transport string, p validation.Params) (*validation.Request, *Response) {
	req, err := validation.Validate(o.exec.Schema(), p)
	if err == nil {
		return req, nil
	}
	var verr *validation.Error
	var res Response
	if errors.As(err, &verr) {
		res = fromErrorList(verr.List)
	} else {
		res = requestError(err.Error())
	}
	eventbus.Publish(ctx, events.GraphQLStart{Transport: transport, Query: p.Query, OperationName: p.OperationName})
	eventbus.Publish(ctx, events.GraphQLFinish{
		Transport:     transport,
		Query:         p.Query,
		OperationName: p.OperationName,
		Rejected:      true,
		Errors:        []error{err},
	})
	return nil, &res
}

// execute runs a query or mutation.
func (o operations) execute(ctx context.Context, transport string, req *validation.Request) Response {
	opType := string(req.Kind)
	start := time.Now()
	eventbus.Publish(ctx, events.GraphQLStart{Transport: transport, Query: req.Query, OperationName: req.OperationName, OperationType: opType})
	result := o.exec.Execute(ctx, req)
	errs := make([]error, len(result.Errors))
	for i := range result.Errors {
		errs[i] = result.Errors[i]
	}
	eventbus.Publish(ctx, events.GraphQLFinish{
		Transport:     transport,
		Query:         req.Query,
		OperationName: req.OperationName,
		OperationType: opType,
		Errors:        errs,
		Duration:      time.Since(start),
	})
	return fromResult(result)
}
