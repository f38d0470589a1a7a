package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"voxjob/internal/domain"
	"voxjob/internal/ports"
)

const (
	HeaderUserID     = "X-User-ID"
	HeaderAPIVersion = "X-API-Version"
)

// Config controls backend connection settings.
type Config struct {
	BaseURL        string
	InstallationID string
	APIVersion     string
	Timeout        time.Duration
}

// Client implements ports.Transport over HTTP.
type Client struct {
	cfg        Config
	httpClient *http.Client
	metrics    ports.JobMetrics
	logger     *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithMetrics records request latency and failures.
func WithMetrics(metrics ports.JobMetrics) Option {
	return func(c *Client) {
		if metrics != nil {
			c.metrics = metrics
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8000"
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.APIVersion == "" {
		cfg.APIVersion = "1.0.0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		metrics:    ports.NopMetrics{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends one request and returns the decoded JSON payload regardless of HTTP status.
func (c *Client) Do(ctx context.Context, req ports.Request) (json.RawMessage, error) {
	started := time.Now()
	payload, err := c.do(ctx, req)
	c.metrics.RequestObserved(metricEndpoint(req.Endpoint), time.Since(started), err != nil)
	if err != nil {
		c.logger.Debug("backend request failed",
			slog.String("method", req.Method),
			slog.String("endpoint", req.Endpoint),
			slog.String("error", err.Error()),
		)
		return nil, domain.NewFailure(domain.FailureTransport, fmt.Sprintf("request failed: %v", err), err)
	}
	return payload, nil
}

func (c *Client) do(ctx context.Context, req ports.Request) (json.RawMessage, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+req.Endpoint, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set(HeaderUserID, c.cfg.InstallationID)
	httpReq.Header.Set(HeaderAPIVersion, c.cfg.APIVersion)
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	raw = bytes.TrimSpace(raw)
	if !json.Valid(raw) {
		return nil, fmt.Errorf("malformed response (HTTP %d): %s", resp.StatusCode, truncate(string(raw), 120))
	}

	c.logger.Debug("backend request",
		slog.String("method", method),
		slog.String("endpoint", req.Endpoint),
		slog.Int("status_code", resp.StatusCode),
	)
	return json.RawMessage(raw), nil
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case *ports.MultipartBody:
		if b == nil {
			return nil, "", nil
		}
		return encodeMultipart(b)
	case ports.MultipartBody:
		return encodeMultipart(&b)
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("encode json body: %w", err)
		}
		return bytes.NewReader(encoded), "application/json", nil
	}
}

func encodeMultipart(body *ports.MultipartBody) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for key, value := range body.Fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", key, err)
		}
	}

	if body.FileField != "" {
		name := body.FileName
		if name == "" {
			name = body.FileField
		}
		part, err := writer.CreateFormFile(body.FileField, name)
		if err != nil {
			return nil, "", fmt.Errorf("create form file: %w", err)
		}
		if _, err := part.Write(body.File); err != nil {
			return nil, "", fmt.Errorf("write form file: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

// metricEndpoint collapses per-task status paths into one label.
func metricEndpoint(endpoint string) string {
	if strings.HasPrefix(endpoint, ports.StatusEndpoint) {
		return ports.StatusEndpoint + ":task"
	}
	return endpoint
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
