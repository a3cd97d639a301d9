package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"integritas-mcp/internal/credentials"
	"integritas-mcp/internal/envelope"
	"integritas-mcp/internal/schema"
	"integritas-mcp/internal/service"
)

const (
	healthDescription = "Liveness: quick, in-process check (no network)."

	readyDescription = "Readiness: probes the Integritas API health endpoint and reports ok, degraded or down with latency."

	stampDataDescription = `Stamp a file or a hash on the Minima blockchain via the Integritas one-shot API.

Input:
  - file_url: Presigned URL (recommended)
  - file_path: Server-accessible local path
  - file_hash: sha3-256 hash of the file
Output:
  - status, uid, stamped_at, proof_url, summary`

	stampHashDescription = `Submit a content hash to the Integritas API. The response shows whether the request was accepted;
use stamp_status to confirm it is on chain.

Input:
  - hash: sha3-256 hex (with/without 0x) or base64. Normalized to lowercase hex.
Output:
  - uid, stamped_at, summary`

	stampStatusDescription = `Check the blockchain status for a list of UIDs. Pending UIDs are polled until they are on chain or the poll limit is reached.

Input:
  - uids: UIDs returned by stamp_hash or stamp_data
Output:
  - one result per UID, in request order`

	verifyDataDescription = `Verify data on the Minima blockchain using a proof file.

Input:
  - file_url: Presigned URL (recommended)
  - file_path: Server-accessible local path
Output:
  - result, block_number, nfttxnid, txpow_id, transactionid, matched_hash, verification_url, summary`
)

// Builtins returns every Integritas tool.
func Builtins(svc *service.Service, store *credentials.Store) []Tool {
	return []Tool{
		&HealthTool{svc: svc},
		&ReadyTool{svc: svc},
		&StampDataTool{svc: svc},
		&StampHashTool{svc: svc},
		&StampStatusTool{svc: svc},
		&VerifyDataTool{svc: svc},
		&SetAPIKeyTool{store: store},
		&GetAPIKeyTool{store: store},
		&ClearAPIKeyTool{store: store},
	}
}

func envelopeResult(resp envelope.ToolResponse) Result {
	return Result{
		Payload: resp,
		Summary: resp.Summary,
		Failed:  resp.StructuredContent.Status == envelope.StatusFailed,
	}
}

type HealthTool struct{ svc *service.Service }

func (t *HealthTool) Name() string           { return "health" }
func (t *HealthTool) Description() string    { return healthDescription }
func (t *HealthTool) Schema() map[string]any { return schema.Map(schema.EmptyInput) }

func (t *HealthTool) Execute(ctx context.Context, input json.RawMessage, meta Meta) (Result, error) {
	if err := decodeInput(schema.EmptyInput, input, nil); err != nil {
		return Result{}, err
	}
	h := t.svc.SelfHealth()
	return Result{Payload: h, Summary: h.Summary}, nil
}

type ReadyTool struct{ svc *service.Service }

func (t *ReadyTool) Name() string           { return "ready" }
func (t *ReadyTool) Description() string    { return readyDescription }
func (t *ReadyTool) Schema() map[string]any { return schema.Map(schema.ReadyInput) }

func (t *ReadyTool) Execute(ctx context.Context, input json.RawMessage, meta Meta) (Result, error) {
	var args struct {
		APIKey string `json:"api_key"`
	}
	if err := decodeInput(schema.ReadyInput, input, &args); err != nil {
		return Result{}, err
	}
	report := t.svc.Ready(ctx, meta.RequestID, args.APIKey)
	return Result{Payload: report, Summary: report.Summary, Failed: report.Status == "down"}, nil
}

type StampDataTool struct{ svc *service.Service }

func (t *StampDataTool) Name() string           { return "stamp_data" }
func (t *StampDataTool) Description() string    { return stampDataDescription }
func (t *StampDataTool) Schema() map[string]any { return schema.Map(schema.StampDataInput) }

func (t *StampDataTool) Execute(ctx context.Context, input json.RawMessage, meta Meta) (Result, error) {
	var req service.StampDataRequest
	if err := decodeInput(schema.StampDataInput, input, &req); err != nil {
		return Result{}, err
	}
	return envelopeResult(t.svc.StampData(ctx, req, meta.RequestID)), nil
}

type StampHashTool struct{ svc *service.Service }

func (t *StampHashTool) Name() string           { return "stamp_hash" }
func (t *StampHashTool) Description() string    { return stampHashDescription }
func (t *StampHashTool) Schema() map[string]any { return schema.Map(schema.StampHashInput) }

func (t *StampHashTool) Execute(ctx context.Context, input json.RawMessage, meta Meta) (Result, error) {
	var args struct {
		Hash   string `json:"hash"`
		APIKey string `json:"api_key"`
	}
	if err := decodeInput(schema.StampHashInput, input, &args); err != nil {
		return Result{}, err
	}
	return envelopeResult(t.svc.StampHash(ctx, args.Hash, meta.RequestID, args.APIKey)), nil
}

type StampStatusTool struct{ svc *service.Service }

func (t *StampStatusTool) Name() string           { return "stamp_status" }
func (t *StampStatusTool) Description() string    { return stampStatusDescription }
func (t *StampStatusTool) Schema() map[string]any { return schema.Map(schema.StampStatusInput) }

func (t *StampStatusTool) Execute(ctx context.Context, input json.RawMessage, meta Meta) (Result, error) {
	var req service.StampStatusRequest
	if err := decodeInput(schema.StampStatusInput, input, &req); err != nil {
		return Result{}, err
	}
	return envelopeResult(t.svc.StampStatus(ctx, req, meta.RequestID)), nil
}

type VerifyDataTool struct{ svc *service.Service }

func (t *VerifyDataTool) Name() string           { return "verify_data" }
func (t *VerifyDataTool) Description() string    { return verifyDataDescription }
func (t *VerifyDataTool) Schema() map[string]any { return schema.Map(schema.VerifyDataInput) }

func (t *VerifyDataTool) Execute(ctx context.Context, input json.RawMessage, meta Meta) (Result, error) {
	var req service.VerifyDataRequest
	if err := decodeInput(schema.VerifyDataInput, input, &req); err != nil {
		return Result{}, err
	}
	return envelopeResult(t.svc.VerifyData(ctx, req, meta.RequestID)), nil
}

// AuthResult is returned by the API key tools.
type AuthResult struct {
	OK      bool   `json:"ok"`
	Summary string `json:"summary"`
	Preview string `json:"preview,omitempty"`
}

type SetAPIKeyTool struct{ store *credentials.Store }

func (t *SetAPIKeyTool) Name() string { return "auth_set_api_key" }
func (t *SetAPIKeyTool) Description() string {
	return "Save the Integritas API key for this session and, when available, in the OS keyring."
}
func (t *SetAPIKeyTool) Schema() map[string]any { return schema.Map(schema.SetAPIKeyInput) }

func (t *SetAPIKeyTool) Execute(ctx context.Context, input json.RawMessage, meta Meta) (Result, error) {
	var args struct {
		APIKey string `json:"api_key"`
	}
	if err := decodeInput(schema.SetAPIKeyInput, input, &args); err != nil {
		return Result{}, err
	}
	key := strings.TrimSpace(args.APIKey)
	persisted, err := t.store.Set(key)
	if err != nil {
		res := AuthResult{OK: false, Summary: err.Error()}
		return Result{Payload: res, Summary: res.Summary, Failed: true}, nil
	}
	summary := "API key saved securely."
	if !persisted {
		summary = "API key saved for this session (keyring unavailable)."
	}
	res := AuthResult{OK: true, Summary: summary, Preview: credentials.Mask(key)}
	return Result{Payload: res, Summary: res.Summary}, nil
}

type GetAPIKeyTool struct{ store *credentials.Store }

func (t *GetAPIKeyTool) Name() string { return "auth_get_api_key" }
func (t *GetAPIKeyTool) Description() string {
	return "Report whether an Integritas API key is configured, showing only its last four characters."
}
func (t *GetAPIKeyTool) Schema() map[string]any { return schema.Map(schema.EmptyInput) }

func (t *GetAPIKeyTool) Execute(ctx context.Context, input json.RawMessage, meta Meta) (Result, error) {
	if err := decodeInput(schema.EmptyInput, input, nil); err != nil {
		return Result{}, err
	}
	key, source := t.store.Lookup()
	res := AuthResult{OK: key != "", Summary: "No API key found."}
	if key != "" {
		res.Summary = fmt.Sprintf("API key is configured (source: %s).", source)
		res.Preview = credentials.Mask(key)
	}
	return Result{Payload: res, Summary: res.Summary}, nil
}

type ClearAPIKeyTool struct{ store *credentials.Store }

func (t *ClearAPIKeyTool) Name() string { return "auth_clear_api_key" }
func (t *ClearAPIKeyTool) Description() string {
	return "Remove the Integritas API key from memory and the OS keyring."
}
func (t *ClearAPIKeyTool) Schema() map[string]any { return schema.Map(schema.EmptyInput) }

func (t *ClearAPIKeyTool) Execute(ctx context.Context, input json.RawMessage, meta Meta) (Result, error) {
	if err := decodeInput(schema.EmptyInput, input, nil); err != nil {
		return Result{}, err
	}
	t.store.Clear()
	res := AuthResult{OK: true, Summary: "API key cleared from memory and keyring."}
	return Result{Payload: res, Summary: res.Summary}, nil
}
