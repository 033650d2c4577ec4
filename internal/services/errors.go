package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external service error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrQuotaExceeded = errors.New("quota exceeded")
	ErrForbidden     = errors.New("forbidden")
	ErrUnauthorized  = errors.New("unauthorized")
)

// ErrorKind is the stable classification of an error used in logs and metrics.
type ErrorKind string

const (
	ErrorKindExternal      ErrorKind = "external"
	ErrorKindValidation    ErrorKind = "validation"
	ErrorKindConfiguration ErrorKind = "configuration"
	ErrorKindNotFound      ErrorKind = "not_found"
	ErrorKindTimeout       ErrorKind = "timeout"
	ErrorKindTransient     ErrorKind = "transient"
	ErrorKindQuota         ErrorKind = "quota"
	ErrorKindForbidden     ErrorKind = "forbidden"
	ErrorKindUnauthorized  ErrorKind = "unauthorized"
	ErrorKindUnknown       ErrorKind = "unknown"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// UserError carries a message that is safe to show to API clients verbatim.
type UserError struct {
	Marker  error
	Message string
	Cause   error
}

func (e *UserError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *UserError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Marker != nil {
		out = append(out, e.Marker)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

// NewUserError tags message with marker. The message is returned by Message unchanged.
func NewUserError(marker error, message string) error {
	return &UserError{Marker: marker, Message: message}
}

// Message returns the client-facing text for err: the UserError message when
// one is present, otherwise the full error string.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr.Message
	}
	return err.Error()
}

// ErrorDetails summarizes an error for logs and persisted failure state.
type ErrorDetails struct {
	Kind    ErrorKind
	Message string
	Hint    string
}

// Details classifies err by its marker.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Message: Message(err)}
	switch {
	case errors.Is(err, ErrValidation):
		details.Kind, details.Hint = ErrorKindValidation, "check request parameters"
	case errors.Is(err, ErrQuotaExceeded):
		details.Kind, details.Hint = ErrorKindQuota, "user must upgrade plan or wait for the next period"
	case errors.Is(err, ErrNotFound):
		details.Kind, details.Hint = ErrorKindNotFound, "verify the referenced record exists"
	case errors.Is(err, ErrForbidden):
		details.Kind, details.Hint = ErrorKindForbidden, "record belongs to another user"
	case errors.Is(err, ErrUnauthorized):
		details.Kind, details.Hint = ErrorKindUnauthorized, "supply a valid bearer token"
	case errors.Is(err, ErrConfiguration):
		details.Kind, details.Hint = ErrorKindConfiguration, "check API keys and config file"
	case errors.Is(err, ErrTimeout):
		details.Kind, details.Hint = ErrorKindTimeout, "provider did not finish in time; retry the session"
	case errors.Is(err, ErrExternalTool):
		details.Kind, details.Hint = ErrorKindExternal, "check provider status and credentials"
	case errors.Is(err, ErrTransient):
		details.Kind, details.Hint = ErrorKindTransient, "retry later"
	default:
		details.Kind, details.Hint = ErrorKindUnknown, "check logs for details"
	}
	return details
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
