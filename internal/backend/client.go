package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"LegalMind/internal/cache"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	PathProcess      = "/external/process"
	PathProcessAudio = "/external/process-audio"
	PathHealth       = "/"

	DefaultTimeout = 30 * time.Second
)

// Request is a fully composed backend call.
type Request struct {
	Path   string
	Body   []byte
	Header http.Header
}

// Client is the HTTP transport to the LegalMind backend.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	duration   metric.Float64Histogram
	health     *cache.TTL[bool]
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) { c.tracer = tracer }
}

func WithMeter(meter metric.Meter) Option {
	return func(c *Client) {
		h, err := meter.Float64Histogram(
			"http.client.request.duration",
			metric.WithDescription("HTTP request duration in milliseconds"),
		)
		if err == nil {
			c.duration = h
		}
	}
}

// WithHealthTTL memoizes health check results.
func WithHealthTTL(ttl time.Duration) Option {
	return func(c *Client) { c.health = cache.New[bool](ttl) }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		tracer:  otel.Tracer("legalmind/backend"),
		health:  cache.New[bool](0),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c
}

// Process sends a text (and optional attachment) request.
func (c *Client) Process(ctx context.Context, req Request) (*ChatResponse, error) {
	body, err := c.do(ctx, http.MethodPost, req)
	if err != nil {
		return nil, err
	}

	var resp ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal response")
	}
	return &resp, nil
}

// ProcessAudio sends a multipart audio request.
func (c *Client) ProcessAudio(ctx context.Context, req Request) (*AudioResponse, error) {
	body, err := c.do(ctx, http.MethodPost, req)
	if err != nil {
		return nil, err
	}

	var resp AudioResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal audio response")
	}
	return &resp, nil
}

// Health reports whether the backend is up. Any failure counts as down.
func (c *Client) Health(ctx context.Context) bool {
	key := cache.GenerateKey(c.baseURL, PathHealth)
	if healthy, ok := c.health.Get(key); ok {
		return healthy
	}

	healthy := c.ping(ctx)
	c.health.Set(key, healthy)
	return healthy
}

func (c *Client) ping(ctx context.Context) bool {
	body, err := c.do(ctx, http.MethodGet, Request{Path: PathHealth})
	if err != nil {
		c.logger.Warn("health check failed", "error", err)
		return false
	}
	var resp HealthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.Warn("health check returned invalid body", "error", err)
		return false
	}
	return resp.Status == HealthyStatus
}

func (c *Client) do(ctx context.Context, method string, req Request) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "backend "+method+" "+req.Path)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()

	var reader io.Reader
	if req.Body != nil {
		reader = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+req.Path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &NetworkError{Op: "failed to send request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &NetworkError{Op: "failed to read response", Err: err}
	}

	elapsed := time.Since(start)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if c.duration != nil {
		c.duration.Record(ctx, float64(elapsed.Milliseconds()),
			metric.WithAttributes(attribute.String("path", req.Path)))
	}
	c.logger.Debug("backend call", "method", method, "path", req.Path, "status", resp.StatusCode, "duration_ms", elapsed.Milliseconds())

	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, resp.Status)
		return nil, CheckAuth(&StatusError{Code: resp.StatusCode, Body: string(body)})
	}

	return body, nil
}
