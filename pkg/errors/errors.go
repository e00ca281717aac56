package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeTransient represents network errors worth retrying (timeouts, 5xx, resets)
	ErrorTypeTransient ErrorType = "transient"
	// ErrorTypeBlocked represents anti-scraping responses (rate limit, CAPTCHA, bot detection)
	ErrorTypeBlocked ErrorType = "blocked"
	// ErrorTypeExtraction represents page parsing errors
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeStatus represents an unexpected upstream HTTP status; not retryable
	ErrorTypeStatus ErrorType = "status"
	// ErrorTypeStore represents storage errors
	ErrorTypeStore ErrorType = "store"
	// ErrorTypeConflict represents a lost idempotent-insert race; treated as success by callers
	ErrorTypeConflict ErrorType = "conflict"
	// ErrorTypeDelivery represents notification delivery errors
	ErrorTypeDelivery ErrorType = "delivery"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// DealError represents an engine-specific error
type DealError struct {
	Type    ErrorType
	Source  string
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *DealError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Source, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Source, e.Message)
}

// Unwrap returns the underlying error
func (e *DealError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is worth retrying within the same tick
func (e *DealError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeTransient:
		return true
	case ErrorTypeStore:
		return true
	default:
		return false
	}
}

// New creates a new DealError
func New(errType ErrorType, source, message string, err error) *DealError {
	return &DealError{
		Type:    errType,
		Source:  source,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewTransient creates a new transient fetch error
func NewTransient(source, message string, err error) *DealError {
	return New(ErrorTypeTransient, source, message, err)
}

// NewBlocked creates a new blocked error
func NewBlocked(source, message string) *DealError {
	return New(ErrorTypeBlocked, source, message, nil)
}

// NewExtraction creates a new extraction error
func NewExtraction(source, message string, err error) *DealError {
	return New(ErrorTypeExtraction, source, message, err)
}

// NewStatus creates a new unexpected-status error
func NewStatus(source string, code int) *DealError {
	return New(ErrorTypeStatus, source, fmt.Sprintf("unexpected status code %d", code), nil)
}

// NewStore creates a new store error
func NewStore(source, message string, err error) *DealError {
	return New(ErrorTypeStore, source, message, err)
}

// NewConflict creates a new conflict error
func NewConflict(source, message string) *DealError {
	return New(ErrorTypeConflict, source, message, nil)
}

// NewDelivery creates a new delivery error
func NewDelivery(source, message string, err error) *DealError {
	return New(ErrorTypeDelivery, source, message, err)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *DealError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// isType reports whether err carries the given error type
func isType(err error, t ErrorType) bool {
	var de *DealError
	if errors.As(err, &de) {
		return de.Type == t
	}
	return false
}

// IsTransient reports whether err is a transient fetch error
func IsTransient(err error) bool {
	return isType(err, ErrorTypeTransient)
}

// IsBlocked reports whether err is an anti-scraping block
func IsBlocked(err error) bool {
	return isType(err, ErrorTypeBlocked)
}

// IsConflict reports whether err is a lost dedup race
func IsConflict(err error) bool {
	return isType(err, ErrorTypeConflict)
}

// IsStatus reports whether err is an unexpected upstream status
func IsStatus(err error) bool {
	return isType(err, ErrorTypeStatus)
}
