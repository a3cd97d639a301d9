// Package envelope defines the versioned tool result envelope returned by
// every Integritas tool, along with the helpers that build and validate it.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"integritas-mcp/internal/schema"
	"integritas-mcp/internal/util"
)

// SchemaURI names the JSON Schema external validators check envelopes against.
const SchemaURI = schema.ToolResultURI

// Result kinds used for routing and analytics.
const (
	KindStampResult  = "integritas/stamp_result@v1"
	KindVerifyResult = "integritas/verify_result@v1"
	KindStampStatus  = "integritas/stamp_status@v1"
)

// Status is the coarse lifecycle state of a tool result.
type Status string

const (
	StatusFinalized Status = "finalized"
	StatusPending   Status = "pending"
	StatusFailed    Status = "failed"
	StatusUnknown   Status = "unknown"
)

// Valid reports whether s is one of the allowed labels.
func (s Status) Valid() bool {
	switch s {
	case StatusFinalized, StatusPending, StatusFailed, StatusUnknown:
		return true
	}
	return false
}

// ParseStatus converts a label into a Status, rejecting anything outside the
// allowed set.
func ParseStatus(label string) (Status, error) {
	s := Status(label)
	if !s.Valid() {
		return "", fmt.Errorf("invalid status %q", label)
	}
	return s, nil
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var label string
	if err := json.Unmarshal(b, &label); err != nil {
		return err
	}
	parsed, err := ParseStatus(label)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Link relations rendered by clients.
const (
	RelProof        = "proof"
	RelDownload     = "download"
	RelView         = "view"
	RelVerification = "verification"
)

// Link is a renderable hyperlink.
type Link struct {
	Rel   string `json:"rel"`
	Href  string `json:"href"`
	Label string `json:"label,omitempty"`
}

// ErrorInfo is the structured error carried by failed results.
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Envelope is the ToolResultEnvelopeV1 record.
type Envelope struct {
	Kind       string            `json:"kind"`
	Summary    string            `json:"summary,omitempty"`
	Status     Status            `json:"status,omitempty"`
	IDs        map[string]string `json:"ids,omitempty"`
	Timestamps map[string]string `json:"timestamps,omitempty"`
	Links      []Link            `json:"links,omitempty"`
	Data       any               `json:"data,omitempty"`
	Error      *ErrorInfo        `json:"error,omitempty"`
	Schema     string            `json:"$schema,omitempty"`
}

// Validate checks the envelope's structural rules.
func (e Envelope) Validate() error {
	var errs []error
	if e.Kind == "" {
		errs = append(errs, errors.New("kind is required"))
	}
	if e.Status != "" && !e.Status.Valid() {
		errs = append(errs, fmt.Errorf("invalid status %q", e.Status))
	}
	for name, ts := range e.Timestamps {
		if _, ok := util.ParseTimestamp(ts); !ok {
			errs = append(errs, fmt.Errorf("timestamp %s is not ISO-8601: %q", name, ts))
		}
	}
	for i, link := range e.Links {
		if link.Rel == "" {
			errs = append(errs, fmt.Errorf("links[%d]: rel is required", i))
		}
		u, err := url.Parse(link.Href)
		if err != nil || !u.IsAbs() {
			errs = append(errs, fmt.Errorf("links[%d]: href must be an absolute URI", i))
		}
	}
	if e.Error != nil && e.Error.Message == "" {
		errs = append(errs, errors.New("error.message is required"))
	}
	if e.Schema != "" && e.Schema != SchemaURI {
		errs = append(errs, fmt.Errorf("unexpected $schema %q", e.Schema))
	}
	return errors.Join(errs...)
}

// ValidateJSON validates a raw envelope document against the embedded schema.
func ValidateJSON(doc []byte) error {
	return schema.Validate(schema.ToolResult, doc)
}

// ToolResponse is the standard response of the stamping and verification tools.
type ToolResponse struct {
	RequestID         string   `json:"requestId"`
	Summary           string   `json:"summary,omitempty"`
	StructuredContent Envelope `json:"structuredContent"`
}

// Respond wraps env for requestID, lifting its summary to the top level.
func Respond(requestID string, env Envelope) ToolResponse {
	if requestID == "" {
		requestID = "unknown"
	}
	return ToolResponse{RequestID: requestID, Summary: env.Summary, StructuredContent: env}
}
