package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"integritas-mcp/internal/credentials"
	"integritas-mcp/internal/envelope"
	"integritas-mcp/internal/events"
	"integritas-mcp/internal/service"
	"integritas-mcp/internal/upstream"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Emit(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) Close() error { return nil }

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func newFixture(t *testing.T, handler http.Handler) (*Dispatcher, *recorder, *credentials.Store) {
	t.Helper()
	keyring.MockInit()
	t.Setenv(credentials.EnvAPIKey, "")
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := credentials.NewStore("", credentials.OSKeyring(), nil)
	up := upstream.New(upstream.Options{BaseURL: srv.URL, Keys: store})
	svc := service.New(up, service.Options{HealthURL: srv.URL + "/health"})
	rec := &recorder{}
	return NewDispatcher(NewRegistry(Builtins(svc, store)...), rec, nil), rec, store
}

func TestRegistryNames(t *testing.T) {
	d, _, _ := newFixture(t, http.NotFoundHandler())
	assert.Equal(t, []string{
		"auth_clear_api_key", "auth_get_api_key", "auth_set_api_key",
		"health", "ready", "stamp_data", "stamp_hash", "stamp_status", "verify_data",
	}, d.tools.Names())

	defs := d.tools.MCPTools()
	require.Len(t, defs, 9)
	assert.Equal(t, "auth_clear_api_key", defs[0].Name)
	assert.NotEmpty(t, defs[0].RawInputSchema)
}

func TestDispatcherEmitsLifecycle(t *testing.T) {
	d, rec, _ := newFixture(t, http.NotFoundHandler())

	res, record, err := d.Call(context.Background(), "health", nil, Meta{RequestID: "req-h"})
	require.NoError(t, err)
	assert.Equal(t, "health", res.ToolName)
	assert.Equal(t, "MCP server is alive", res.Summary)
	assert.Equal(t, "success", record.Status)
	assert.Equal(t, "req-h", record.RequestID)
	assert.Equal(t, []events.Type{events.ToolCallStarted, events.ToolCallFinished}, rec.types())
}

func TestDispatcherUnknownTool(t *testing.T) {
	d, rec, _ := newFixture(t, http.NotFoundHandler())
	_, _, err := d.Call(context.Background(), "nope", nil, Meta{})
	require.ErrorIs(t, err, ErrUnknownTool)
	assert.Equal(t, []events.Type{events.ToolCallFailed}, rec.types())
}

func TestDispatcherRejectsInvalidArguments(t *testing.T) {
	d, rec, _ := newFixture(t, http.NotFoundHandler())

	_, record, err := d.Call(context.Background(), "stamp_hash", json.RawMessage(`{"hash": 12}`), Meta{})
	require.ErrorIs(t, err, ErrInvalidArguments)
	assert.Equal(t, "error", record.Status)
	assert.Equal(t, []events.Type{events.ToolCallStarted, events.ToolCallFailed}, rec.types())

	_, _, err = d.Call(context.Background(), "stamp_data", json.RawMessage(`{}`), Meta{})
	require.ErrorIs(t, err, ErrInvalidArguments)

	_, _, err = d.Call(context.Background(), "health", json.RawMessage(`{"extra":true}`), Meta{})
	require.ErrorIs(t, err, ErrInvalidArguments)
}

func TestDispatcherRedactsInput(t *testing.T) {
	d, rec, _ := newFixture(t, http.NotFoundHandler())
	_, record, err := d.Call(context.Background(), "auth_set_api_key", json.RawMessage(`{"api_key":"supersecret-123"}`), Meta{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"api_key": "[REDACTED]"}, record.Input)

	started := rec.events[0].Payload.(events.ToolCallStartedPayload)
	doc, _ := json.Marshal(started.Input)
	assert.NotContains(t, string(doc), "supersecret")

	finished := rec.events[1].Payload.(events.ToolCallFinishedPayload)
	assert.NotContains(t, finished.Preview, "supersecret")
}

func TestAuthTools(t *testing.T) {
	d, _, store := newFixture(t, http.NotFoundHandler())
	ctx := context.Background()

	res, _, err := d.Call(ctx, "auth_get_api_key", nil, Meta{})
	require.NoError(t, err)
	assert.False(t, res.Payload.(AuthResult).OK)

	res, _, err = d.Call(ctx, "auth_set_api_key", json.RawMessage(`{"api_key":"abcdefgh1234"}`), Meta{})
	require.NoError(t, err)
	set := res.Payload.(AuthResult)
	assert.True(t, set.OK)
	assert.True(t, strings.HasSuffix(set.Preview, "1234"))
	assert.Equal(t, "abcdefgh1234", store.Resolve())

	res, _, err = d.Call(ctx, "auth_get_api_key", nil, Meta{})
	require.NoError(t, err)
	assert.Equal(t, "API key is configured (source: memory).", res.Summary)

	_, _, err = d.Call(ctx, "auth_set_api_key", json.RawMessage(`{"api_key":"short"}`), Meta{})
	require.ErrorIs(t, err, ErrInvalidArguments)

	res, _, err = d.Call(ctx, "auth_clear_api_key", nil, Meta{})
	require.NoError(t, err)
	assert.True(t, res.Payload.(AuthResult).OK)
	assert.Empty(t, store.Resolve())
}

func TestStampHashToolUsesStoredKey(t *testing.T) {
	d, _, store := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "stored-key-1", r.Header.Get("x-api-key"))
		assert.Equal(t, "req-s", r.Header.Get("x-request-id"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":{"uid":"0xU"}}`)
	}))
	_, err := store.Set("stored-key-1")
	require.NoError(t, err)

	res, record, err := d.Call(WithRequestID(context.Background(), "req-s"), "stamp_hash", json.RawMessage(`{"hash":"0xaabb"}`), Meta{})
	require.NoError(t, err)
	resp := res.Payload.(envelope.ToolResponse)
	assert.Equal(t, "req-s", resp.RequestID)
	assert.Equal(t, "0xU", resp.StructuredContent.IDs["uid"])
	assert.Equal(t, "success", record.Status)
}

func TestFailedEnvelopeIsNotAnError(t *testing.T) {
	d, rec, _ := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	res, record, err := d.Call(context.Background(), "stamp_hash", json.RawMessage(`{"hash":"aabb"}`), Meta{})
	require.NoError(t, err)
	assert.True(t, res.Failed)
	assert.Equal(t, "failed", record.Status)
	resp := res.Payload.(envelope.ToolResponse)
	assert.Equal(t, envelope.CodeAuth, resp.StructuredContent.Error.Code)
	assert.Equal(t, events.ToolCallFinished, rec.types()[1])
}

func TestToMCPResult(t *testing.T) {
	out := toMCPResult(Result{Payload: AuthResult{OK: true, Summary: "s"}, Summary: "s"})
	assert.False(t, out.IsError)
	assert.Equal(t, AuthResult{OK: true, Summary: "s"}, out.StructuredContent)
	require.Len(t, out.Content, 1)
}

func TestDecodeInputWrapsSentinel(t *testing.T) {
	err := decodeInput("missing_schema", json.RawMessage(`{}`), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidArguments))
}

type envelopeTool struct{ env envelope.Envelope }

func (t envelopeTool) Name() string           { return "fixed" }
func (t envelopeTool) Description() string    { return "returns a fixed envelope" }
func (t envelopeTool) Schema() map[string]any { return map[string]any{"type": "object"} }
func (t envelopeTool) Execute(ctx context.Context, input json.RawMessage, meta Meta) (Result, error) {
	return Result{Payload: envelope.Respond(meta.RequestID, t.env)}, nil
}

func TestDispatcherWarnsOnInvalidEnvelope(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	bad := envelope.Envelope{Kind: envelope.KindStampResult, Links: []envelope.Link{{Rel: envelope.RelProof, Href: "relative/path"}}}
	d := NewDispatcher(NewRegistry(envelopeTool{env: bad}), nil, zap.New(core))

	_, _, err := d.Call(context.Background(), "fixed", nil, Meta{})
	require.NoError(t, err)
	require.Equal(t, 1, logs.FilterMessage("envelope_invalid").Len())

	good := envelope.Envelope{Kind: envelope.KindStampResult, Status: envelope.StatusPending}
	d = NewDispatcher(NewRegistry(envelopeTool{env: good}), nil, zap.New(core))
	_, _, err = d.Call(context.Background(), "fixed", nil, Meta{})
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("envelope_invalid").Len())
}
