package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Base error types
var (
	ErrNotFound         = errors.New("not found")
	ErrTimeout          = errors.New("timeout")
	ErrInvalidInput     = errors.New("invalid input")
	ErrConnectionFailed = errors.New("connection failed")
	ErrUnknownLocation  = errors.New("unknown location")
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeFilter     ErrorType = "filter"
	ErrorTypeTransport  ErrorType = "transport"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeInternal   ErrorType = "internal"
)

// ResolveError is a structured error for profile resolution and probing.
type ResolveError struct {
	Type      ErrorType
	Op        string // Operation that failed (e.g., "snmp_get", "evaluate_filter")
	Profile   string // Profile label if applicable
	Address   string // Agent address if applicable
	Err       error  // Underlying error
	Timestamp time.Time
	Retryable bool
}

func (e *ResolveError) Error() string {
	switch {
	case e.Profile != "" && e.Address != "":
		return fmt.Sprintf("%s failed for profile %s on %s: %v", e.Op, e.Profile, e.Address, e.Err)
	case e.Address != "":
		return fmt.Sprintf("%s failed on %s: %v", e.Op, e.Address, e.Err)
	case e.Profile != "":
		return fmt.Sprintf("%s failed for profile %s: %v", e.Op, e.Profile, e.Err)
	default:
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface
func (e *ResolveError) Is(target error) bool {
	if target == nil {
		return false
	}

	switch target {
	case ErrNotFound:
		return e.Type == ErrorTypeNotFound
	case ErrTimeout:
		return e.Type == ErrorTypeTimeout
	case ErrConnectionFailed:
		return e.Type == ErrorTypeTransport || e.Type == ErrorTypeTimeout
	case ErrInvalidInput:
		if e.Type == ErrorTypeValidation || e.Type == ErrorTypeFilter {
			return true
		}
	}

	return errors.Is(e.Err, target)
}

// NewResolveError creates a new ResolveError
func NewResolveError(errorType ErrorType, op string, err error) *ResolveError {
	return &ResolveError{
		Type:      errorType,
		Op:        op,
		Err:       err,
		Timestamp: time.Now(),
		Retryable: isRetryable(errorType),
	}
}

// WithProfile adds the profile label to the error
func (e *ResolveError) WithProfile(label string) *ResolveError {
	e.Profile = label
	return e
}

// TagProfile records label on err when it is a ResolveError that does not
// name a profile yet. Other errors are returned unchanged.
func TagProfile(err error, label string) error {
	var resErr *ResolveError
	if errors.As(err, &resErr) && resErr.Profile == "" {
		resErr.WithProfile(label)
	}
	return err
}

// WithAddress adds the agent address to the error
func (e *ResolveError) WithAddress(address string) *ResolveError {
	e.Address = address
	return e
}

func isRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeTransport, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

// Helper functions

// WrapTransportError wraps a probe transport failure, classifying timeouts.
func WrapTransportError(op, address string, err error) error {
	if err == nil {
		return nil
	}
	return NewResolveError(ClassifyTransportError(err), op, err).WithAddress(address)
}

// WrapFilterError wraps a filter-expression parse or evaluation failure.
func WrapFilterError(expression string, err error) error {
	if err == nil {
		return nil
	}
	return NewResolveError(ErrorTypeFilter, "evaluate_filter", fmt.Errorf("expression %q: %w", expression, err))
}

// ClassifyTransportError distinguishes timeouts from other transport failures.
func ClassifyTransportError(err error) ErrorType {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return ErrorTypeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTypeTimeout
	}
	// gosnmp reports exhausted retries as a plain error string.
	if strings.Contains(strings.ToLower(err.Error()), "request timeout") {
		return ErrorTypeTimeout
	}
	return ErrorTypeTransport
}

// IsTransportError reports whether err came from the probe transport.
func IsTransportError(err error) bool {
	var resErr *ResolveError
	if errors.As(err, &resErr) {
		return resErr.Type == ErrorTypeTransport || resErr.Type == ErrorTypeTimeout
	}
	return false
}

// IsRetryableError checks if an error should be retried
func IsRetryableError(err error) bool {
	var resErr *ResolveError
	if errors.As(err, &resErr) {
		return resErr.Retryable
	}

	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrConnectionFailed)
}

// TypeOf returns the error category, or ErrorTypeInternal for untyped errors.
func TypeOf(err error) ErrorType {
	var resErr *ResolveError
	if errors.As(err, &resErr) {
		return resErr.Type
	}
	return ErrorTypeInternal
}
