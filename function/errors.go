package function

import (
	"errors"
	"fmt"
)

var (
	ErrNoHost        = errors.New("expression has no data host for this call")
	ErrRoutineNil    = errors.New("routine function is nil")
	ErrRoutineFailed = errors.New("expression raised an error")
	ErrUnsupported   = errors.New("unsupported value type")
)

// RuntimeError is an error raised while a routine runs. Line is relative to the user's
// expression text, 0 when unknown.
type RuntimeError struct {
	Line int
	Msg  string
	Err  error
}

func (e *RuntimeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s at line %d: %s", ErrRoutineFailed, e.Line, e.Msg)
	}
	return fmt.Sprintf("%s: %s", ErrRoutineFailed, e.Msg)
}

func (e *RuntimeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRoutineFailed}
	}
	return []error{ErrRoutineFailed, e.Err}
}
