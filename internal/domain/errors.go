package domain

import (
	"errors"
	"fmt"
)

var (
	ErrFileNotFound         = errors.New("source file not found")
	ErrNotFound             = errors.New("not found")
	ErrDuplicateName        = errors.New("duplicate name")
	ErrGeneratedCodeInvalid = errors.New("generated code invalid")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrAlreadyExists        = errors.New("already exists")
	ErrUnsupported          = errors.New("unsupported")
	ErrParse                = errors.New("parse error")
	ErrSimulation           = errors.New("simulation failed")
)

// ParseError reports the first syntax error in a source text. Line and Column are 1-based.
type ParseError struct {
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %d:%d: %s", e.Line, e.Column, e.Message)
}

func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}
