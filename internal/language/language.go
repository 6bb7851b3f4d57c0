package language

import (
	"errors"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/lexer"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"
)

// ParseQuery parses an executable document. Syntax failures are returned as *Error.
func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// LeadingName returns the first non-comment token of source when it is a Name.
func LeadingName(source string) (string, Location, bool) {
	lex := lexer.New(&ast.Source{Input: source})
	for {
		tok, err := lex.ReadToken()
		if err != nil {
			return "", Location{}, false
		}
		switch tok.Kind {
		case lexer.Comment:
			continue
		case lexer.Name:
			return tok.Value, Location{Line: tok.Pos.Line, Column: tok.Pos.Column}, true
		}
		return "", Location{}, false
	}
}

// LoadSchema parses and validates SDL, prepending the GraphQL prelude
// (builtin scalars, directives and introspection types).
func LoadSchema(name, sdl string) (*Schema, error) {
	s, err := gqlparser.LoadSchema(&ast.Source{Name: name, Input: sdl})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Validate runs the default validation rules and reports all violations.
func Validate(s *Schema, doc *QueryDocument) ErrorList {
	return validator.ValidateWithRules(s, doc, nil)
}

// AsError converts err into a located GraphQL error.
func AsError(err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	return &Error{Message: err.Error()}
}
