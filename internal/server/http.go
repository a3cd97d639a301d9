package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"integritas-mcp/internal/envelope"
	"integritas-mcp/internal/schema"
	"integritas-mcp/internal/service"
	"integritas-mcp/internal/upstream"
)

const maxBodyBytes = 1 << 20

// Handler builds the HTTP surface for transport: the MCP endpoint, health
// probes and the REST facade, behind the bearer guard when a token is set.
// The returned func shuts the MCP transport down.
func (s *Server) Handler(transport, baseURL string) (http.Handler, func(context.Context) error, error) {
	mux := http.NewServeMux()
	var shutdown func(context.Context) error

	switch transport {
	case TransportSSE:
		sse := mcpserver.NewSSEServer(s.mcp, mcpserver.WithBaseURL(baseURL))
		mux.Handle("/sse", sse)
		mux.Handle("/message", sse)
		shutdown = sse.Shutdown
	case TransportHTTP:
		streamable := mcpserver.NewStreamableHTTPServer(s.mcp)
		mux.Handle("/mcp", streamable)
		shutdown = streamable.Shutdown
	default:
		return nil, nil, fmt.Errorf("unsupported http transport %q", transport)
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /v1/timestamp/post", s.handleStampHash)
	mux.HandleFunc("POST /v1/timestamp/status", s.handleStampStatus)

	return BearerGuard(mux, s.deps.AccessToken), shutdown, nil
}

// BearerGuard requires "Authorization: Bearer <token>" on every request
// except /healthz. An empty token disables the guard.
func BearerGuard(next http.Handler, token string) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
			w.Header().Set("WWW-Authenticate", `Bearer realm="mcp"`)
			http.Error(w, "missing bearer", http.StatusUnauthorized)
			return
		}
		provided := strings.TrimSpace(auth[7:])
		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Service.SelfHealth())
}

func (s *Server) handleStampHash(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Hash string `json:"hash"`
	}
	if !s.decodeBody(w, r, schema.StampHashInput, &body) {
		return
	}
	requestID := requestIDFromHeader(r)
	resp := s.deps.Service.StampHash(r.Context(), body.Hash, requestID, r.Header.Get("x-api-key"))
	env := resp.StructuredContent
	writeJSON(w, httpStatus(env), stampHashResponse{
		UID:          env.IDs["uid"],
		StampedAt:    env.Timestamps["stamped_at"],
		ToolResponse: resp,
	})
}

// stampHashResponse keeps the flat uid/stamped_at fields REST clients read
// next to the full tool response.
type stampHashResponse struct {
	UID       string `json:"uid,omitempty"`
	StampedAt string `json:"stamped_at,omitempty"`
	envelope.ToolResponse
}

func (s *Server) handleStampStatus(w http.ResponseWriter, r *http.Request) {
	var body service.StampStatusRequest
	if !s.decodeBody(w, r, schema.StampStatusInput, &body) {
		return
	}
	results := s.deps.Service.Statuses(r.Context(), body.UIDs, requestIDFromHeader(r), r.Header.Get("x-api-key"))
	if results == nil {
		results = []service.StampStatusResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": results})
}

// decodeBody validates the request body against name and decodes it into v.
// It writes a 422 response and returns false when the body is invalid.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, name schema.Name, v any) bool {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err == nil {
		err = schema.Validate(name, data)
	}
	if err == nil {
		err = json.Unmarshal(data, v)
	}
	if err != nil {
		s.deps.Logger.Debug("rest_invalid_body", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": map[string]string{"code": envelope.CodeInvalidInput, "message": err.Error()},
		})
		return false
	}
	return true
}

func requestIDFromHeader(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("x-request-id")); id != "" {
		return id
	}
	return upstream.NewRequestID()
}

// httpStatus maps a failed envelope to a REST status code.
func httpStatus(env envelope.Envelope) int {
	if env.Error == nil {
		return http.StatusOK
	}
	switch env.Error.Code {
	case envelope.CodeInvalidInput:
		return http.StatusUnprocessableEntity
	case envelope.CodeAuth:
		return http.StatusUnauthorized
	case envelope.CodeRateLimited:
		return http.StatusTooManyRequests
	case envelope.CodeUpstreamUnavailable, envelope.CodeTimeout:
		return http.StatusServiceUnavailable
	case envelope.CodeNotFound:
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
