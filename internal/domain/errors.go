package domain

import (
	"errors"
	"fmt"
)

// ErrorCode is the machine-readable classification of a failure. Callers
// branch on the code rather than matching message strings.
type ErrorCode string

const (
	ErrCodeConnection     ErrorCode = "connection"
	ErrCodeAuthentication ErrorCode = "authentication"
	ErrCodeSchemaParsing  ErrorCode = "schema_parsing"
	ErrCodeValidation     ErrorCode = "validation"
	ErrCodeConfiguration  ErrorCode = "configuration"
	ErrCodeConnector      ErrorCode = "connector"
	ErrCodeIntrospection  ErrorCode = "introspection"
	ErrCodeStorage        ErrorCode = "storage"
	// ErrCodeCodeGeneration is reserved for downstream generators; nothing
	// in this module produces it.
	ErrCodeCodeGeneration ErrorCode = "code_generation"
)

// Error is a classified failure. Code identifies the failure class, Message
// describes the specific occurrence, and Err optionally carries the cause.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewConnectionError classifies a network or transport failure.
func NewConnectionError(message string, err error) *Error {
	return &Error{Code: ErrCodeConnection, Message: message, Err: err}
}

// NewAuthenticationError classifies a 401/403-class rejection.
func NewAuthenticationError(message string, err error) *Error {
	return &Error{Code: ErrCodeAuthentication, Message: message, Err: err}
}

// NewSchemaParsingError classifies a malformed or unparseable spec body.
func NewSchemaParsingError(message string, err error) *Error {
	return &Error{Code: ErrCodeSchemaParsing, Message: message, Err: err}
}

// NewValidationError classifies a spec that parsed but is missing required
// fields.
func NewValidationError(message string, err error) *Error {
	return &Error{Code: ErrCodeValidation, Message: message, Err: err}
}

// NewConfigurationError classifies bad caller-supplied configuration.
func NewConfigurationError(message string, err error) *Error {
	return &Error{Code: ErrCodeConfiguration, Message: message, Err: err}
}

// NewConnectorError classifies a connector-internal fault.
func NewConnectorError(message string, err error) *Error {
	return &Error{Code: ErrCodeConnector, Message: message, Err: err}
}

// NewIntrospectionError wraps an unexpected failure inside the introspect
// pipeline, keeping the original error's message reachable via Unwrap.
func NewIntrospectionError(message string, err error) *Error {
	return &Error{Code: ErrCodeIntrospection, Message: message, Err: err}
}

// NewStorageError classifies a storage backend operation failure.
func NewStorageError(message string, err error) *Error {
	return &Error{Code: ErrCodeStorage, Message: message, Err: err}
}

// CodeOf extracts the classification code from err, unwrapping as needed.
// It returns the empty code when err carries no classification.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given classification code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
