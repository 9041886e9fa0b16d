package model

import (
	"fmt"
	"strings"
)

// Format identifies the input syntax a ParseError refers to
type Format string

const (
	FormatUBL     Format = "UBL"
	FormatCII     Format = "CII"
	FormatPDF     Format = "PDF"
	FormatJSON    Format = "JSON"
	FormatUnknown Format = "UNKNOWN"
)

// ParseError represents parsing errors with format context
type ParseError struct {
	Format  Format
	Field   string
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Format, e.Field, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Format, e.Field, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// NewParseError creates a new parse error
func NewParseError(format Format, field, message string, cause error) *ParseError {
	return &ParseError{
		Format:  format,
		Field:   field,
		Message: message,
		Cause:   cause,
	}
}

// Violation is one failed business rule, e.g. BT-1 or BR-CO-15
type Violation struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError carries every violated rule of one invoice
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages(), "; ")
}

// Messages returns the violation messages in detection order
func (e *ValidationError) Messages() []string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Message)
	}
	return msgs
}

// HasRule reports whether rule is among the violations
func (e *ValidationError) HasRule(rule string) bool {
	for _, v := range e.Violations {
		if v.Rule == rule {
			return true
		}
	}
	return false
}

// NewValidationError creates a validation error from collected violations
func NewValidationError(violations []Violation) *ValidationError {
	return &ValidationError{Violations: violations}
}

// ExtractionError represents extraction failures
type ExtractionError struct {
	Method  string
	Message string
	Cause   error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("extraction failed [%s]: %s (%v)", e.Method, e.Message, e.Cause)
	}
	return fmt.Sprintf("extraction failed [%s]: %s", e.Method, e.Message)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

// NewExtractionError creates a new extraction error
func NewExtractionError(method, message string, cause error) *ExtractionError {
	return &ExtractionError{
		Method:  method,
		Message: message,
		Cause:   cause,
	}
}
