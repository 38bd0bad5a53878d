package runtime

import (
	"errors"
	"fmt"
)

// ErrorKind classifies where in the plug lifecycle an error was produced.
type ErrorKind string

const (
	// KindValidation marks field-level validation failures.
	KindValidation ErrorKind = "validation"
	// KindBinding marks values that could not be coerced to a parameter type.
	KindBinding ErrorKind = "binding"
	// KindInvocation marks faults raised by the target operation itself.
	KindInvocation ErrorKind = "invocation"
	// KindRegistration marks invalid plug declarations found at startup.
	KindRegistration ErrorKind = "registration"
)

// PlugError is the canonical error type produced by the engine.
// Binding and invocation errors never escape Executor.Execute; they are
// captured in a Result. Registration errors are returned at startup.
type PlugError struct {
	Kind    ErrorKind
	Plug    string
	Param   string
	Message string
	Cause   error
}

func (e *PlugError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		if msg == "" {
			msg = e.Cause.Error()
		} else {
			msg = msg + ": " + e.Cause.Error()
		}
	}
	switch {
	case e.Plug != "" && e.Param != "":
		return fmt.Sprintf("[%s] %s (plug: %s, param: %s)", e.Kind, msg, e.Plug, e.Param)
	case e.Plug != "":
		return fmt.Sprintf("[%s] %s (plug: %s)", e.Kind, msg, e.Plug)
	default:
		return fmt.Sprintf("[%s] %s", e.Kind, msg)
	}
}

// Unwrap returns the underlying cause for errors.Is and errors.As
func (e *PlugError) Unwrap() error {
	return e.Cause
}

func newBindingError(plug, param string, cause error) *PlugError {
	return &PlugError{
		Kind:    KindBinding,
		Plug:    plug,
		Param:   param,
		Message: fmt.Sprintf("cannot bind parameter %q", param),
		Cause:   cause,
	}
}

func newInvocationError(plug string, cause error) *PlugError {
	return &PlugError{
		Kind:  KindInvocation,
		Plug:  plug,
		Cause: cause,
	}
}

func newRegistrationError(plug string, format string, args ...any) *PlugError {
	return &PlugError{
		Kind:    KindRegistration,
		Plug:    plug,
		Message: fmt.Sprintf(format, args...),
	}
}

// IsKind reports whether err is a *PlugError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *PlugError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Kind == kind
}

// unwrapInvocation strips exactly one invocation wrapper added by the
// dispatch layer and returns the original cause.
func unwrapInvocation(err error) error {
	var pe *PlugError
	if errors.As(err, &pe) && pe.Kind == KindInvocation && pe.Cause != nil {
		return pe.Cause
	}
	return err
}

// PanicError carries a value recovered from a panicking plug operation.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	if err, ok := e.Value.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", e.Value)
}

func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}
