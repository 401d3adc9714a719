// Package configerrors provides the structured error taxonomy used when loading
// experiment configurations. Every error carries a category, the keys it is
// about, the value that was found and the constraint that value violated, so a
// user can fix an entire parameter file in one pass.
//
// # Overview
//
// The configerrors package extends Go's standard error handling with:
//   - Error categorization through ErrorType (parse, type, range, cross_field, ...)
//   - Field scoping: each error names the offending key or keys
//   - Aggregation of many field errors into a single List
//   - Error wrapping with cause preservation
//
// # Basic Usage
//
//	// A single field failed coercion
//	err := configerrors.NewTypeError("batch_size", "sixty-four", "integer")
//
//	// A relationship between fields is broken
//	err := configerrors.NewCrossFieldError("freeze_epochs <= epochs",
//	    configerrors.FieldValue{Field: "freeze_epochs", Value: 150},
//	    configerrors.FieldValue{Field: "epochs", Value: 100})
//
//	// Accumulate, then collect into a List
//	var errs error
//	errs = multierr.Append(errs, err)
//	if list := configerrors.Collect(errs); list != nil {
//	    return nil, list
//	}
//
// # Error Types
//
// ParseError is fatal and is never aggregated with other errors: when the
// document cannot be read as a key/value mapping there is nothing to validate.
// All other categories are collected and returned together.
package configerrors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorType represents the category of a configuration error.
type ErrorType string

const (
	// ErrorTypeParse represents a document that is not a key/value mapping
	ErrorTypeParse ErrorType = "parse"
	// ErrorTypeType represents a value that cannot be coerced to its declared type
	ErrorTypeType ErrorType = "type"
	// ErrorTypeRange represents a value outside its documented range or vocabulary
	ErrorTypeRange ErrorType = "range"
	// ErrorTypeCrossField represents a broken relationship between fields
	ErrorTypeCrossField ErrorType = "cross_field"
	// ErrorTypeUnknownKey represents a key that is not part of the schema
	ErrorTypeUnknownKey ErrorType = "unknown_key"
	// ErrorTypeFile represents a failure to read or write a configuration file
	ErrorTypeFile ErrorType = "file"
	// ErrorTypeInternal represents internal errors
	ErrorTypeInternal ErrorType = "internal"
)

// Missing is the Value recorded for a required key that is absent from the document.
var Missing = missingValue{}

type missingValue struct{}

func (missingValue) String() string { return "<missing>" }

// FieldValue pairs a key with the value found for it.
type FieldValue struct {
	Field string
	Value interface{}
}

// Error represents a single configuration problem.
//
// Fields:
//   - Type: Categorizes the error
//   - Fields: The keys the error is about (one, or several for cross-field errors)
//   - Value: The value found (for cross-field errors see Details)
//   - Expected: The constraint that was violated, in user-facing words
//   - Message: Optional free-form description, used when there is no constraint
//   - Cause: The underlying error that caused this error
//   - Details: Key-value pairs providing additional context
//   - Stack: Call stack at the point of creation (New and Wrap only)
type Error struct {
	Type     ErrorType
	Fields   []string
	Value    interface{}
	Expected string
	Message  string
	Cause    error
	Details  map[string]interface{}
	Stack    []StackFrame
}

// StackFrame represents a single frame in the call stack.
type StackFrame struct {
	Function string // Fully qualified function name
	File     string // Source file path
	Line     int    // Line number in source file
}

// Error implements the error interface.
//
//	type: batch_size: got "abc", expected integer
//	cross_field: freeze_epochs=150, epochs=100: expected freeze_epochs <= epochs
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Type))
	b.WriteString(": ")

	switch {
	case e.Type == ErrorTypeCrossField:
		for i, f := range e.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%s", f, formatValue(e.Details[f]))
		}
		b.WriteString(": ")
	case len(e.Fields) > 0:
		b.WriteString(strings.Join(e.Fields, ", "))
		b.WriteString(": ")
	}

	switch {
	case e.Message != "":
		b.WriteString(e.Message)
	case e.Type == ErrorTypeCrossField:
		b.WriteString("expected ")
		b.WriteString(e.Expected)
	default:
		fmt.Fprintf(&b, "got %s, expected %s", formatValue(e.Value), e.Expected)
	}

	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Field returns the first key the error is about, or "" for document-level errors.
func (e *Error) Field() string {
	if len(e.Fields) == 0 {
		return ""
	}
	return e.Fields[0]
}

// WithDetail adds a key-value detail to the error. Calls can be chained.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new document-level error with the given type and message,
// capturing the call stack at the point of creation.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error, preserving it as the cause. If the error is
// already a structured Error its stack trace is preserved. Returns nil if the
// input error is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// NewParseError reports a structurally malformed document.
func NewParseError(cause error) *Error {
	return &Error{
		Type:    ErrorTypeParse,
		Message: "document is not a valid key/value mapping",
		Cause:   cause,
		Stack:   captureStack(2),
	}
}

// NewTypeError reports a value for field that could not be coerced to expected.
// Pass Missing as value for an absent required key.
func NewTypeError(field string, value interface{}, expected string) *Error {
	return &Error{
		Type:     ErrorTypeType,
		Fields:   []string{field},
		Value:    value,
		Expected: expected,
	}
}

// NewRangeError reports a coerced value for field that violates expected.
func NewRangeError(field string, value interface{}, expected string) *Error {
	return &Error{
		Type:     ErrorTypeRange,
		Fields:   []string{field},
		Value:    value,
		Expected: expected,
	}
}

// NewCrossFieldError reports a broken relationship between two or more fields.
// The found values are recorded in Details under each field name.
func NewCrossFieldError(expected string, values ...FieldValue) *Error {
	e := &Error{
		Type:     ErrorTypeCrossField,
		Fields:   make([]string, 0, len(values)),
		Expected: expected,
	}
	for _, fv := range values {
		e.Fields = append(e.Fields, fv.Field)
		e.WithDetail(fv.Field, fv.Value)
	}
	return e
}

// NewUnknownKeyError reports a key that is not part of the schema.
func NewUnknownKeyError(key string, value interface{}) *Error {
	return &Error{
		Type:     ErrorTypeUnknownKey,
		Fields:   []string{key},
		Value:    value,
		Expected: "a recognized key",
	}
}

// IsType reports whether err is, or contains, an error of the given type.
// For a List every entry is inspected.
func IsType(err error, errType ErrorType) bool {
	var list *List
	if errors.As(err, &list) {
		return len(list.ByType(errType)) > 0
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

// captureStack captures the current call stack up to maxFrames deep,
// skipping the specified number of frames from the top.
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
