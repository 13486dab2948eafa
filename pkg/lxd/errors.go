package lxd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// APIError is an error envelope returned by the server.
type APIError struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int `json:"-"          yaml:"-"`
	// Code is the error_code field of the envelope.
	Code    int    `json:"error_code" yaml:"error_code"`
	Message string `json:"error"      yaml:"error"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s (code: %d)", e.Message, e.Code)
}

// ValidationError reports a payload that does not match its schema. Path
// names the offending field using JSON names, e.g. "metadata.name".
type ValidationError struct {
	Path   string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	path := e.Path
	if path == "" {
		path = "(root)"
	}

	return fmt.Sprintf("invalid payload at %s: %s", path, e.Reason)
}

// ConnectionError is a failure to reach the server: refused connection,
// TLS handshake failure, connection reset.
type ConnectionError struct {
	Method string
	URL    string
	Err    error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: connection failed: %v", e.Method, e.URL, e.Err)
}

// Unwrap returns the underlying network error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// TimeoutKind tells which deadline elapsed.
type TimeoutKind string

const (
	// TimeoutRequest means no response arrived for a single request.
	TimeoutRequest TimeoutKind = "request"
	// TimeoutOperation means an operation did not finish in time. The
	// operation keeps running on the server.
	TimeoutOperation TimeoutKind = "operation"
)

// TimeoutError reports an elapsed deadline.
type TimeoutError struct {
	Kind        TimeoutKind
	OperationID string
	Err         error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	if e.OperationID != "" {
		return fmt.Sprintf("%s timeout waiting for operation %s", e.Kind, e.OperationID)
	}

	return fmt.Sprintf("%s timeout", e.Kind)
}

// Unwrap returns the context error, so errors.Is(err, context.DeadlineExceeded) holds.
func (e *TimeoutError) Unwrap() error {
	if e.Err == nil {
		return context.DeadlineExceeded
	}

	return e.Err
}

// OperationFailedError is returned when an operation ends in failure.
type OperationFailedError struct {
	OperationID string
	Code        int
	Message     string
	Operation   *Operation
}

// Error implements the error interface.
func (e *OperationFailedError) Error() string {
	return fmt.Sprintf("operation %s failed: %s (code: %d)", e.OperationID, e.Message, e.Code)
}

// NewOperationFailedError builds the failure error from a terminal operation.
func NewOperationFailedError(op *Operation) *OperationFailedError {
	code, message := op.ErrorDetail()

	return &OperationFailedError{
		OperationID: op.ID,
		Code:        code,
		Message:     message,
		Operation:   op,
	}
}

// OperationCancelled is returned when an operation ended by cancellation.
// It is an outcome rather than a fault; callers that cancelled on purpose
// usually check for it with IsCancelled.
type OperationCancelled struct {
	OperationID string
	Operation   *Operation
}

// Error implements the error interface.
func (e *OperationCancelled) Error() string {
	return fmt.Sprintf("operation %s was cancelled", e.OperationID)
}

// Static errors for err113 compliance.
var (
	ErrConfigRequired           = errors.New("config is required")
	ErrEndpointRequired         = errors.New("endpoint is required")
	ErrSessionClosed            = errors.New("session closed")
	ErrUnsupportedAPIVersion    = errors.New("unsupported API version")
	ErrEventsUnavailable        = errors.New("events channel unavailable")
	ErrInvalidOperationRef      = errors.New("invalid operation reference")
	ErrUnexpectedResponseType   = errors.New("unexpected response type")
	ErrIncompleteKeyPair        = errors.New("client certificate and key must be given together")
	ErrInvalidServerCertificate = errors.New("server certificate is not valid PEM")
	ErrSkipTLSOnlyInDev         = errors.New("skipping TLS verification is only allowed in development environments")
	ErrUnsupportedResourceType  = errors.New("unsupported resource type")
	ErrUnsupportedOperationType = errors.New("unsupported operation type")
	ErrInvalidBatchData         = errors.New("invalid data type for batch operation")
)

// IsNotFound checks if the error is a not found API error.
func IsNotFound(err error) bool {
	return hasAPICode(err, http.StatusNotFound)
}

// IsForbidden checks if the error is a forbidden API error.
func IsForbidden(err error) bool {
	return hasAPICode(err, http.StatusForbidden)
}

// IsConflict checks if the error is a conflict API error.
func IsConflict(err error) bool {
	return hasAPICode(err, http.StatusConflict)
}

func hasAPICode(err error, code int) bool {
	apiErr := &APIError{}
	if errors.As(err, &apiErr) {
		return apiErr.Code == code || apiErr.StatusCode == code
	}

	return false
}

// IsConnectionFailure checks if the server could not be reached.
func IsConnectionFailure(err error) bool {
	connErr := &ConnectionError{}

	return errors.As(err, &connErr)
}

// IsTimeout checks if a request or operation deadline elapsed.
func IsTimeout(err error) bool {
	timeoutErr := &TimeoutError{}

	return errors.As(err, &timeoutErr)
}

// IsValidation checks if a payload failed schema validation.
func IsValidation(err error) bool {
	validationErr := &ValidationError{}

	return errors.As(err, &validationErr)
}

// IsOperationFailed checks if an operation ended in failure.
func IsOperationFailed(err error) bool {
	failedErr := &OperationFailedError{}

	return errors.As(err, &failedErr)
}

// IsCancelled checks if an operation ended by cancellation.
func IsCancelled(err error) bool {
	cancelledErr := &OperationCancelled{}

	return errors.As(err, &cancelledErr)
}
