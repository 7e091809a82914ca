package tools

import (
	"errors"
	"fmt"
)

// ErrSealed is returned by Register once the registry serves requests.
var ErrSealed = errors.New("tools: registry is sealed")

// DuplicateNameError is returned when a name is registered twice.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("tools: duplicate tool name %q", e.Name)
}

// UnknownToolError is returned when a call names a tool that is not registered.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("tools: unknown tool %q", e.Name)
}

// InvocationError wraps any failure raised while invoking a handler:
// argument mismatches, handler errors and recovered panics.
type InvocationError struct {
	Tool string
	Err  error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("tools: %s: %v", e.Tool, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// Message returns the handler's own error text without the tool prefix.
func (e *InvocationError) Message() string {
	if e.Err == nil {
		return "invocation failed"
	}
	return e.Err.Error()
}
