package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"

	openai "github.com/sashabaranov/go-openai"
)

// ErrorKind classifies a completion failure.
type ErrorKind string

const (
	KindUnauthorized   ErrorKind = "unauthorized"
	KindRateLimited    ErrorKind = "rate_limited"
	KindNetworkFailure ErrorKind = "network_failure"
	KindOther          ErrorKind = "other"
)

// ServiceError is returned for every failed call to the completion service.
type ServiceError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Message == "" && e.Err != nil {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *ServiceError) Unwrap() error { return e.Err }

// KindOf returns the kind of a *ServiceError anywhere in err's chain, or
// KindOther.
func KindOf(err error) ErrorKind {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindOther
}

func classify(err error) error {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ServiceError{Kind: kindForStatus(apiErr.HTTPStatusCode), Message: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ServiceError{Kind: kindForStatus(reqErr.HTTPStatusCode), Message: reqErr.Error(), Err: err}
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return &ServiceError{Kind: KindNetworkFailure, Message: err.Error(), Err: err}
	}
	return &ServiceError{Kind: KindOther, Message: err.Error(), Err: err}
}

func kindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindUnauthorized
	case http.StatusTooManyRequests:
		return KindRateLimited
	default:
		return KindOther
	}
}
