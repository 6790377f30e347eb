package rtc

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCategory groups call errors by the kind of remediation they call for.
type ErrorCategory string

const (
	// ErrorCategoryConfiguration covers deployment problems, e.g. no usable
	// transport or an SFU that refuses room creation.
	ErrorCategoryConfiguration ErrorCategory = "configuration_issue"
	ErrorCategoryNetwork       ErrorCategory = "network_connectivity"
	ErrorCategoryClient        ErrorCategory = "client_configuration"
	ErrorCategoryUnknown       ErrorCategory = "unknown"
)

type ErrorCode string

const (
	ErrorCodeMissingTransport       ErrorCode = "MISSING_RTC_TRANSPORT"
	ErrorCodeInsufficientCapacity   ErrorCode = "INSUFFICIENT_CAPACITY"
	ErrorCodeRoomCreationRestricted ErrorCode = "SFU_ROOM_CREATION_RESTRICTED"
	ErrorCodeOpenIDToken            ErrorCode = "FAILED_TO_GET_OPEN_ID_TOKEN"
	ErrorCodeSFUConfig              ErrorCode = "FAILED_TO_GET_SFU_CONFIG"
	ErrorCodeUnknown                ErrorCode = "UNKNOWN_ERROR"
)

// CallError is a classified, user-presentable call failure.
type CallError struct {
	Code     ErrorCode
	Category ErrorCategory
	Message  string
	Cause    error
}

func (e *CallError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CallError) Unwrap() error {
	return e.Cause
}

func NewTransportMissingError(domain string) *CallError {
	return &CallError{
		Code:     ErrorCodeMissingTransport,
		Category: ErrorCategoryConfiguration,
		Message:  fmt.Sprintf("no usable transport advertised by %s", domain),
	}
}

func NewInsufficientCapacityError(cause error) *CallError {
	return &CallError{
		Code:     ErrorCodeInsufficientCapacity,
		Category: ErrorCategoryConfiguration,
		Message:  "SFU has insufficient capacity for this call",
		Cause:    cause,
	}
}

func NewSFURoomCreationRestrictedError(cause error) *CallError {
	return &CallError{
		Code:     ErrorCodeRoomCreationRestricted,
		Category: ErrorCategoryConfiguration,
		Message:  "SFU refused to create the room",
		Cause:    cause,
	}
}

func NewOpenIDTokenError(cause error) *CallError {
	return &CallError{
		Code:     ErrorCodeOpenIDToken,
		Category: ErrorCategoryConfiguration,
		Message:  "could not obtain an OpenID token",
		Cause:    cause,
	}
}

func NewSFUConfigError(cause error) *CallError {
	return &CallError{
		Code:     ErrorCodeSFUConfig,
		Category: ErrorCategoryNetwork,
		Message:  "could not obtain SFU connection parameters",
		Cause:    cause,
	}
}

func NewUnknownCallError(cause error) *CallError {
	return &CallError{
		Code:     ErrorCodeUnknown,
		Category: ErrorCategoryUnknown,
		Message:  "call failed",
		Cause:    cause,
	}
}

// AsCallError unwraps err to a CallError if one is in its chain.
func AsCallError(err error) (*CallError, bool) {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// ConnectionStatusError is a transport-level connect failure that carries
// an HTTP status code from the SFU negotiation.
type ConnectionStatusError struct {
	Status int
	Reason string
}

func (e *ConnectionStatusError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("connection failed with status %d: %s", e.Status, e.Reason)
	}
	return fmt.Sprintf("connection failed with status %d", e.Status)
}
