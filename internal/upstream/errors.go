package upstream

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies upstream failures.
type Kind string

const (
	KindInvalidInput Kind = "invalid_input"
	KindAuth         Kind = "auth"
	KindRateLimited  Kind = "rate_limited"
	KindTransient    Kind = "transient"
	KindPermanent    Kind = "permanent"
)

// Error is a classified upstream failure. Status is zero for transport errors.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Body    any
	Err     error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the caller may try the request again later.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransient || e.Kind == KindRateLimited
}

// MapStatus classifies an HTTP status with an optional upstream detail.
func MapStatus(status int, detail string) *Error {
	msg := friendlyMessage(detail, status)
	kind := KindPermanent
	switch {
	case status == 400:
		kind = KindInvalidInput
	case status == 401 || status == 403:
		kind = KindAuth
	case status == 429:
		kind = KindRateLimited
	case status >= 500 && status < 600:
		kind = KindTransient
	}
	return &Error{Kind: kind, Status: status, Message: msg}
}

// KindOf returns the Kind of an upstream error, or empty when err is not one.
func KindOf(err error) Kind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return ""
}

func friendlyMessage(detail string, status int) string {
	if text := strings.TrimSpace(detail); text != "" {
		return text
	}
	switch status {
	case 0:
		return "Upstream API unreachable"
	case 408:
		return "Upstream request timed out"
	}
	return fmt.Sprintf("Upstream request failed with status %d", status)
}
