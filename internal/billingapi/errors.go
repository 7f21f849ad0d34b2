package billingapi

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a request produced no data.
type FailureKind string

const (
	KindUnauthorized FailureKind = "unauthorized"
	KindForbidden    FailureKind = "forbidden"
	KindNotFound     FailureKind = "not_found"
	KindServerError  FailureKind = "server_error"
	KindHTTPError    FailureKind = "http_error"
	KindRequestError FailureKind = "request_error"
	KindUnexpected   FailureKind = "unexpected"
	KindValidation   FailureKind = "validation"
)

// FetchError is returned by Fetch for every failed call.
type FetchError struct {
	Kind     FailureKind
	Endpoint string
	Status   int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s (status %d): %v", e.Kind, e.Endpoint, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Endpoint, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err, or "" if err is not a FetchError.
func KindOf(err error) FailureKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

func kindForStatus(status int) FailureKind {
	switch status {
	case 401:
		return KindUnauthorized
	case 403:
		return KindForbidden
	case 404:
		return KindNotFound
	case 500:
		return KindServerError
	default:
		return KindHTTPError
	}
}
