// Package validation turns request source text into a validated request, or a
// located error set describing why it cannot run.
package validation

import (
	"fmt"
	"strings"

	language "github.com/hanpama/countergraph/internal/language"
	schema "github.com/hanpama/countergraph/internal/schema"
)

// Kind distinguishes errors raised before execution.
type Kind int

const (
	// KindSyntax means the source could not be parsed.
	KindSyntax Kind = iota + 1
	// KindValidation means the document parsed but does not fit the schema.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindSyntax:
		return "syntax"
	case KindValidation:
		return "validation"
	}
	return "unknown"
}

// Error carries every problem found in a rejected request. No resolver runs
// for a request that produced an Error.
type Error struct {
	Kind Kind
	List language.ErrorList
}

func (e *Error) Error() string {
	if len(e.List) == 0 {
		return e.Kind.String() + " error"
	}
	msg := e.List[0].Message
	if len(e.List) > 1 {
		msg = fmt.Sprintf("%s (and %d more)", msg, len(e.List)-1)
	}
	return e.Kind.String() + " error: " + msg
}

// Params is the raw request as received by a transport.
type Params struct {
	Query         string
	OperationName string
	Variables     map[string]any
}

// Request is a parsed, validated operation ready for execution. It must not
// be modified once returned.
type Request struct {
	Kind          language.Operation
	Query         string
	OperationName string
	Variables     map[string]any
	Document      *language.QueryDocument
	Operation     *language.OperationDefinition
}

// executableKeywords are the names that may start an executable definition.
var executableKeywords = map[string]bool{
	"query":        true,
	"mutation":     true,
	"subscription": true,
	"fragment":     true,
}

// Validate parses p.Query and checks it against s.
func Validate(s *schema.Schema, p Params) (*Request, error) {
	if strings.TrimSpace(p.Query) == "" {
		return nil, &Error{Kind: KindSyntax, List: language.ErrorList{
			{Message: "Syntax Error: Unexpected <EOF>", Locations: []language.Location{{Line: 1, Column: 1}}},
		}}
	}

	doc, err := language.ParseQuery(p.Query)
	if err != nil {
		if name, loc, ok := language.LeadingName(p.Query); ok && !executableKeywords[name] {
			return nil, &Error{Kind: KindValidation, List: language.ErrorList{{
				Message:   fmt.Sprintf("Unknown operation kind %q.", name),
				Locations: []language.Location{loc},
			}}}
		}
		return nil, &Error{Kind: KindSyntax, List: language.ErrorList{language.AsError(err)}}
	}

	if s.AST() != nil {
		if errs := language.Validate(s.AST(), doc); len(errs) > 0 {
			for _, e := range errs {
				if e.Rule == "" {
					continue
				}
				if e.Extensions == nil {
					e.Extensions = map[string]any{}
				}
				e.Extensions["rule"] = e.Rule
			}
			return nil, &Error{Kind: KindValidation, List: errs}
		}
	}

	req, err := NewRequest(doc, p.OperationName, p.Variables)
	if err != nil {
		return nil, err
	}
	req.Query = p.Query
	if s.RootType(req.Kind) == nil {
		return nil, validationError(req.Operation.Position,
			fmt.Sprintf("Schema is not configured to execute %s operation.", req.Kind))
	}
	return req, nil
}

// NewRequest selects the operation to run from an already checked document.
func NewRequest(doc *language.QueryDocument, operationName string, variables map[string]any) (*Request, error) {
	var op *language.OperationDefinition
	switch {
	case len(doc.Operations) == 0:
		return nil, validationError(nil, "Must provide an operation.")
	case operationName == "" && len(doc.Operations) > 1:
		return nil, validationError(nil, "Must provide operation name if query contains multiple operations.")
	case operationName == "":
		op = doc.Operations[0]
	default:
		op = doc.Operations.ForName(operationName)
		if op == nil {
			return nil, validationError(nil, fmt.Sprintf("Unknown operation named %q.", operationName))
		}
	}
	if variables == nil {
		variables = map[string]any{}
	}
	return &Request{
		Kind:          op.Operation,
		OperationName: operationName,
		Variables:     variables,
		Document:      doc,
		Operation:     op,
	}, nil
}

func validationError(pos *language.Position, message string) *Error {
	e := &language.Error{Message: message}
	if pos != nil {
		e.Locations = []language.Location{{Line: pos.Line, Column: pos.Column}}
	}
	return &Error{Kind: KindValidation, List: language.ErrorList{e}}
}
