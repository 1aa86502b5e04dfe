package analysis

import (
	"errors"
	"fmt"
	"time"
)

// ServiceError is a non-2xx response from the analysis service.
type ServiceError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *ServiceError) Error() string {
	s := fmt.Sprintf("analysis service error: status=%d", e.StatusCode)
	if e.Code != "" {
		s += " code=" + e.Code
	}
	if e.RequestID != "" {
		s += " request_id=" + e.RequestID
	}
	if e.Message != "" {
		s += " message=" + e.Message
	}
	return s
}

// BadRequestError indicates the service rejected the file or parameters.
type BadRequestError struct{ *ServiceError }

func (e *BadRequestError) Error() string { return fmt.Sprintf("bad request: %s", e.ServiceError.Error()) }

// RateLimitError indicates 429 responses and may include a Retry-After.
type RateLimitError struct {
	*ServiceError
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: wait about %ds before retrying: %s", int(e.RetryAfter.Seconds()), e.ServiceError.Error())
	}
	return fmt.Sprintf("rate limited: %s", e.ServiceError.Error())
}

// ServerError indicates 5xx errors from the service.
type ServerError struct{ *ServiceError }

func (e *ServerError) Error() string { return fmt.Sprintf("service failure: %s", e.ServiceError.Error()) }

// UnreachableError indicates the service could not be contacted at all.
type UnreachableError struct {
	Host string
	Err  error
}

func (e *UnreachableError) Error() string {
	if e == nil {
		return "unreachable"
	}
	if e.Host != "" {
		return fmt.Sprintf("analysis service unreachable at %s: %v", e.Host, e.Err)
	}
	return fmt.Sprintf("analysis service unreachable: %v", e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// UserMessage renders an analysis failure for display.
func UserMessage(err error) string {
	var (
		bad  *BadRequestError
		rl   *RateLimitError
		srv  *ServerError
		down *UnreachableError
		se   *ServiceError
	)
	switch {
	case errors.As(err, &bad):
		if bad.Message != "" {
			return "The analysis service rejected the request: " + bad.Message
		}
		return "The analysis service rejected the request."
	case errors.As(err, &rl):
		return "The analysis service is busy. Please try again shortly."
	case errors.As(err, &srv):
		return "The analysis service failed. Please try again."
	case errors.As(err, &down):
		return "The analysis service could not be reached."
	case errors.As(err, &se) && se.Message != "":
		return se.Message
	}
	return "Analysis failed. Please try again."
}
