// Package upstream talks to the Integritas HTTP API.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"integritas-mcp/internal/util"
)

const (
	bodyPreviewBytes = 2000
	maxResponseBytes = 32 << 20
	userAgent        = "integritas-mcp"
)

// KeySource resolves the API key used when a call does not carry its own.
type KeySource interface {
	Resolve() string
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RPS        float64
	Keys       KeySource
	Logger     *zap.Logger
	HTTPClient *http.Client
}

// Client is a goroutine-safe Integritas API client.
type Client struct {
	base    string
	http    *retryablehttp.Client
	limiter *rate.Limiter
	keys    KeySource
	logger  *zap.Logger
}

// New constructs a Client.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	client := retryablehttp.NewClient()
	client.RetryMax = opts.MaxRetries
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = leveledLogger{logger.Sugar()}
	if opts.HTTPClient != nil {
		// Shallow copy; the caller's client keeps its own timeout.
		hc := *opts.HTTPClient
		client.HTTPClient = &hc
	}
	if opts.Timeout > 0 {
		client.HTTPClient.Timeout = opts.Timeout
	}

	var limiter *rate.Limiter
	if opts.RPS > 0 {
		burst := int(opts.RPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}

	return &Client{
		base:    strings.TrimRight(opts.BaseURL, "/"),
		http:    client,
		limiter: limiter,
		keys:    opts.Keys,
		logger:  logger,
	}
}

// NewRequestID returns a fresh correlation id.
func NewRequestID() string {
	return "integritas-mcp-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Headers builds the standard request headers. A non-empty apiKey wins over
// the resolved key.
func (c *Client) Headers(requestID, apiKey string) map[string]string {
	headers := map[string]string{}
	key := strings.TrimSpace(apiKey)
	if key == "" && c.keys != nil {
		key = c.keys.Resolve()
	}
	if key != "" {
		headers["x-api-key"] = key
	}
	if requestID == "" {
		requestID = NewRequestID()
	}
	headers["x-request-id"] = requestID
	return headers
}

// Response is a fully read upstream response.
type Response struct {
	Status  int
	Header  http.Header
	Body    []byte
	Latency time.Duration
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode upstream response: %w", err)
	}
	return nil
}

// Map decodes the body as a JSON object, returning nil when it is not one.
func (r *Response) Map() map[string]any {
	var m map[string]any
	if err := json.Unmarshal(r.Body, &m); err != nil {
		return nil
	}
	return m
}

// Err maps a non-2xx response to an *Error carrying the upstream message.
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}
	detail := ""
	if m := r.Map(); m != nil {
		for _, key := range []string{"message", "detail", "error"} {
			if s, ok := m[key].(string); ok && s != "" {
				detail = s
				break
			}
		}
	} else {
		detail = util.Abbreviate(strings.TrimSpace(string(r.Body)), 200)
	}
	e := MapStatus(r.Status, detail)
	e.Body = r.preview()
	return e
}

func (r *Response) preview() any {
	ctype := strings.ToLower(r.Header.Get("Content-Type"))
	if strings.Contains(ctype, "json") {
		var v any
		if err := json.Unmarshal(r.Body, &v); err == nil {
			return util.RedactValue(v)
		}
	}
	return util.RedactSecrets(util.Abbreviate(string(r.Body), bodyPreviewBytes))
}

// Upload is a file sent as multipart form data.
type Upload struct {
	FieldName   string
	Filename    string
	ContentType string
	Data        []byte
}

// GetJSON issues a GET against the API base.
func (c *Client) GetJSON(ctx context.Context, path string, headers map[string]string) (*Response, error) {
	return c.do(ctx, http.MethodGet, c.url(path), nil, "", headers)
}

// PostJSON issues a JSON POST against the API base.
func (c *Client) PostJSON(ctx context.Context, path string, body any, headers map[string]string) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, c.url(path), payload, "application/json", headers)
}

// PostMultipart uploads a file against the API base.
func (c *Client) PostMultipart(ctx context.Context, path string, upload Upload, headers map[string]string) (*Response, error) {
	payload, contentType, err := encodeMultipart(upload)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, c.url(path), payload, contentType, headers)
}

// Fetch downloads an arbitrary URL, typically a user supplied file_url.
func (c *Client) Fetch(ctx context.Context, rawURL string) (Upload, error) {
	resp, err := c.do(ctx, http.MethodGet, rawURL, nil, "", nil)
	if err != nil {
		return Upload{}, err
	}
	if !resp.OK() {
		return Upload{}, &Error{
			Kind:    MapStatus(resp.Status, "").Kind,
			Status:  resp.Status,
			Message: fmt.Sprintf("Could not fetch file_url (%d)", resp.Status),
		}
	}
	ctype := resp.Header.Get("Content-Type")
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	name := rawURL
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	return Upload{
		FieldName:   "file",
		Filename:    util.SafeBasename(name, "upload.bin"),
		ContentType: ctype,
		Data:        resp.Body,
	}, nil
}

// Probe hits an absolute URL and reports the status and latency.
func (c *Client) Probe(ctx context.Context, rawURL string, headers map[string]string) (*Response, error) {
	return c.do(ctx, http.MethodGet, rawURL, nil, "", headers)
}

func (c *Client) url(path string) string {
	return c.base + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) do(ctx context.Context, method, target string, body []byte, contentType string, headers map[string]string) (*Response, error) {
	if strings.HasPrefix(target, "/") {
		return nil, &Error{Kind: KindPermanent, Message: "Upstream base URL is not configured (set MINIMA_API_BASE)"}
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, transportError(err)
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	request, err := retryablehttp.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, &Error{Kind: KindInvalidInput, Message: fmt.Sprintf("invalid request: %v", err), Err: err}
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", userAgent)
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		request.Header.Set(k, v)
	}

	c.logger.Info("upstream_request",
		zap.String("method", method),
		zap.String("url", target),
		zap.Any("headers", util.RedactHeaders(headers)),
	)
	start := time.Now()
	resp, err := c.http.Do(request)
	if err != nil {
		c.logger.Warn("upstream_transport_error", zap.String("url", target), zap.Error(err))
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError(err)
	}
	out := &Response{Status: resp.StatusCode, Header: resp.Header, Body: data, Latency: time.Since(start)}
	c.logger.Info("upstream_response",
		zap.Int("status", out.Status),
		zap.String("url", target),
		zap.Int64("latency_ms", out.Latency.Milliseconds()),
		zap.Any("body", out.preview()),
	)
	return out, nil
}

func transportError(err error) *Error {
	msg := "Upstream API unreachable"
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		msg = "Upstream request timed out"
	case errors.Is(err, context.Canceled):
		msg = "Upstream request canceled"
	}
	return &Error{Kind: KindTransient, Message: msg, Err: err}
}

func encodeMultipart(upload Upload) ([]byte, string, error) {
	field := upload.FieldName
	if field == "" {
		field = "file"
	}
	filename := upload.Filename
	if filename == "" {
		filename = "upload.bin"
	}
	ctype := upload.ContentType
	if ctype == "" {
		ctype = "application/octet-stream"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(field), escapeQuotes(filename)))
	h.Set("Content-Type", ctype)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("build multipart: %w", err)
	}
	if _, err := part.Write(upload.Data); err != nil {
		return nil, "", fmt.Errorf("build multipart: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("build multipart: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }

// leveledLogger adapts zap to retryablehttp's LeveledLogger.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
