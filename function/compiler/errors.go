package compiler

import (
	"errors"
	"fmt"
)

var (
	ErrCompile         = errors.New("expression failed to compile")
	ErrEmptyExpression = errors.New("expression is empty")
	ErrNoRoutine       = errors.New("compiled program defines no routine")
)

// CompileError reports an expression that cannot be compiled. Line and Col are relative
// to the expression text; both are 0 when the failure has no position.
type CompileError struct {
	Text string
	Line int
	Col  int
	Msg  string
	Err  error
}

func (e *CompileError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: line %d:%d: %s", ErrCompile, e.Line, e.Col, e.Msg)
	}
	return fmt.Sprintf("%s: %s", ErrCompile, e.Msg)
}

func (e *CompileError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCompile}
	}
	return []error{ErrCompile, e.Err}
}
