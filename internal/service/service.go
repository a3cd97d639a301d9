// Package service implements the Integritas stamping, status, verification
// and health operations on top of the upstream client.
package service

import (
	"errors"
	"os"
	"time"

	"go.uber.org/zap"

	"integritas-mcp/internal/envelope"
	"integritas-mcp/internal/upstream"
)

// Upstream endpoints.
const (
	PathStampHash   = "/v1/timestamp/post"
	PathStampUpload = "/v1/timestamp/one-shot"
	PathStampStatus = "/v1/uid/status/%s"
	PathVerify      = "/v1/verify/post-lite-pdf"
)

// Options configures a Service.
type Options struct {
	HealthURL       string
	PollInterval    time.Duration
	PollMaxAttempts int
	Version         string
	Logger          *zap.Logger
}

// Service runs tool operations against the Integritas API.
type Service struct {
	up              *upstream.Client
	logger          *zap.Logger
	healthURL       string
	pollInterval    time.Duration
	pollMaxAttempts int
	version         string
	started         time.Time
}

// New constructs a Service.
func New(up *upstream.Client, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	if opts.PollMaxAttempts <= 0 {
		opts.PollMaxAttempts = 12
	}
	return &Service{
		up:              up,
		logger:          logger,
		healthURL:       opts.HealthURL,
		pollInterval:    opts.PollInterval,
		pollMaxAttempts: opts.PollMaxAttempts,
		version:         opts.Version,
		started:         time.Now(),
	}
}

// errorCode picks the envelope error code for err.
func errorCode(err error) string {
	switch upstream.KindOf(err) {
	case upstream.KindInvalidInput:
		return envelope.CodeInvalidInput
	case upstream.KindAuth:
		return envelope.CodeAuth
	case upstream.KindRateLimited:
		return envelope.CodeRateLimited
	case upstream.KindTransient:
		return envelope.CodeUpstreamUnavailable
	case upstream.KindPermanent:
		return envelope.CodeUpstreamError
	}
	if errors.Is(err, os.ErrNotExist) {
		return envelope.CodeNotFound
	}
	if errors.Is(err, errInvalidInput) {
		return envelope.CodeInvalidInput
	}
	return envelope.CodeLocalIO
}

var errInvalidInput = errors.New("invalid input")

type inputError struct{ msg string }

func (e *inputError) Error() string        { return e.msg }
func (e *inputError) Is(target error) bool { return target == errInvalidInput }

func invalidInput(msg string) error { return &inputError{msg: msg} }

func failed(kind, requestID string, err error) envelope.ToolResponse {
	var details any
	var ue *upstream.Error
	if errors.As(err, &ue) {
		d := map[string]any{"kind": string(ue.Kind)}
		if ue.Status > 0 {
			d["status"] = ue.Status
		}
		if ue.Body != nil {
			d["body"] = ue.Body
		}
		details = d
	}
	msg := err.Error()
	if ue != nil {
		msg = ue.Message
	}
	return envelope.Respond(requestID, envelope.Failure(kind, errorCode(err), msg, details))
}
