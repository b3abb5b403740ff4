package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/GearConnect-Official/gearconnect-landing/internal/apperr"
	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/observability"
	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/requestctx"
)

const (
	idempotencyHeader = "Idempotency-Key"
	maxResponseSize   = 4 << 20
)

// ErrInvalidPath is returned for paths that are not rooted backend paths.
var ErrInvalidPath = errors.New("backend: invalid path")

// HTTPClient is satisfied by *http.Client.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Client calls the GearConnect backend with a caller-supplied bearer token.
// It never retries.
type Client struct {
	base    *url.URL
	http    HTTPClient
	metrics *observability.Metrics
}

type Option func(*Client)

func WithHTTPClient(client HTTPClient) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(c *Client) { c.metrics = metrics }
}

// NewClient returns a client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, errors.New("backend: base url is required")
	}
	base, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("backend: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend: unsupported scheme %q", base.Scheme)
	}
	base.Path = strings.TrimRight(base.Path, "/")

	c := &Client{
		base: base,
		// Per-call deadlines come from the caller's context.
		http: &http.Client{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// BaseURL returns the backend root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Request describes one backend call.
type Request struct {
	// Op names the call for metrics and spans, e.g. "contact.create".
	Op     string
	Method string
	Path   string
	Query  url.Values
	Token  string
	Body   any
}

// Response is a successful (2xx) backend response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if r == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return errors.New("backend: empty response body")
	}
	return json.Unmarshal(r.Body, v)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	if msg := apperr.BackendMessage(e.Body); msg != "" {
		return fmt.Sprintf("backend: status %d: %s", e.Status, msg)
	}
	return fmt.Sprintf("backend: status %d", e.Status)
}

// Normalized converts the response into the error shown to browsers.
func (e *StatusError) Normalized() *apperr.Error {
	normalized := apperr.Normalize(e.Status, e.Body)
	normalized.Err = e
	return normalized
}

// Do performs req. Non-2xx statuses yield *StatusError; transport failures
// yield *apperr.Error of kind Timeout or Unreachable.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	op := req.Op
	if op == "" {
		op = strings.ToLower(req.Method) + " " + req.Path
	}
	ctx, span := observability.Tracer().Start(ctx, "backend "+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.Path),
		),
	)
	defer span.End()

	logger := requestctx.Logger(ctx).With(zap.String("backend_op", op))
	start := time.Now()

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		classified := classifyTransport(ctx, err)
		c.metrics.ObserveBackend(op, apperr.KindOf(classified).String(), time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.KindOf(classified).String())
		logger.Warn("backend call failed", zap.String("kind", apperr.KindOf(classified).String()), zap.Error(err))
		return nil, classified
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		classified := classifyTransport(ctx, err)
		c.metrics.ObserveBackend(op, apperr.KindOf(classified).String(), time.Since(start))
		span.RecordError(err)
		return nil, classified
	}

	latency := time.Since(start)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.metrics.ObserveBackend(op, fmt.Sprintf("http_%d", resp.StatusCode), latency)
		if resp.StatusCode >= 500 {
			span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		}
		logger.Info("backend returned error status",
			zap.Int("backend_status", resp.StatusCode),
			zap.Duration("latency", latency),
		)
		return nil, &StatusError{Status: resp.StatusCode, Body: body}
	}

	c.metrics.ObserveBackend(op, "success", latency)
	logger.Debug("backend call completed", zap.Int("backend_status", resp.StatusCode), zap.Duration("latency", latency))
	return &Response{Status: resp.StatusCode, Header: resp.Header.Clone(), Body: body}, nil
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	target, err := c.resolve(req.Path, req.Query)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if req.Body != nil {
		switch v := req.Body.(type) {
		case []byte:
			body = bytes.NewReader(v)
		case json.RawMessage:
			body = bytes.NewReader(v)
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("backend: encode body: %w", err)
			}
			body = bytes.NewReader(encoded)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}
	if isWrite(req.Method) {
		httpReq.Header.Set(idempotencyHeader, ulid.Make().String())
	}
	if id := requestctx.TraceID(ctx); id != "" {
		observability.InjectTrace(ctx, httpReq.Header)
	}
	return httpReq, nil
}

// resolve joins path onto the base URL. Only rooted relative paths are
// accepted so callers cannot redirect requests to another host.
func (c *Client) resolve(path string, query url.Values) (string, error) {
	if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") || strings.Contains(path, "://") {
		return "", fmt.Errorf("%w %q", ErrInvalidPath, path)
	}
	for _, segment := range strings.Split(path, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w %q", ErrInvalidPath, path)
		}
	}
	u := *c.base
	u.Path = c.base.Path + path
	u.RawPath = ""
	u.RawQuery = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// classifyTransport maps network failures to Timeout or Unreachable.
func classifyTransport(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperr.Timeout(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperr.Timeout(err)
	}
	if errors.Is(err, context.Canceled) {
		return apperr.New(apperr.KindUnknown, "Request canceled.", err)
	}
	// Refused connections, DNS failures and resets all mean the backend is unreachable.
	return apperr.Unreachable(err)
}
