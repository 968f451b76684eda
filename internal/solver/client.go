// Package solver is the client for the collaborator service that extracts
// questions from documents and answers them.
package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qps-ai/client/internal/metrics"
	"github.com/qps-ai/client/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Collaborator endpoints.
const (
	UploadPath = "/upload"
	SolvePath  = "/solve"
	HealthPath = "/health"
)

// RequestIDHeader carries a per-request UUID for correlating logs.
const RequestIDHeader = "X-Request-ID"

const maxResponseBytes = 8 << 20

// Config holds the connection settings for the collaborator service.
type Config struct {
	BaseURL           string
	RequestTimeout    time.Duration // solve and health calls, 0 = no timeout
	UploadTimeout     time.Duration // extraction calls, 0 = no timeout
	RequestsPerSecond float64       // 0 = unlimited
	Burst             int
}

// Client talks to the collaborator service. It performs no retries and no
// caching; every call is a fresh request.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	requestTimeout time.Duration
	uploadTimeout  time.Duration
	limiter        *rate.Limiter
	metrics        *metrics.Metrics
	log            zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics records request metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a client for the service at cfg.BaseURL.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing service url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("service url must be an absolute http(s) url: %q", cfg.BaseURL)
	}

	c := &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:     &http.Client{},
		requestTimeout: cfg.RequestTimeout,
		uploadTimeout:  cfg.UploadTimeout,
		log:            zerolog.Nop(),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalized service URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type uploadResponse struct {
	Questions *[]string `json:"questions"`
}

type solveRequest struct {
	Questions []string `json:"questions"`
}

type solveResponse struct {
	Answer *string `json:"answer"`
}

type healthResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

// ExtractQuestions uploads doc as multipart field "file" and returns the
// extracted questions in service order. Empty and duplicate entries are kept.
func (c *Client) ExtractQuestions(ctx context.Context, doc *models.Document) ([]string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(doc.Name)))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, &Error{Op: ErrUpload, Kind: ErrTransport, Err: err}
	}
	if _, err := part.Write(doc.Data); err != nil {
		return nil, &Error{Op: ErrUpload, Kind: ErrTransport, Err: err}
	}
	if err := writer.Close(); err != nil {
		return nil, &Error{Op: ErrUpload, Kind: ErrTransport, Err: err}
	}

	respBody, err := c.do(ctx, ErrUpload, "upload", c.uploadTimeout, http.MethodPost, UploadPath, writer.FormDataContentType(), body.Bytes())
	if err != nil {
		return nil, err
	}

	var resp uploadResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &Error{Op: ErrUpload, Kind: ErrProtocol, Err: fmt.Errorf("decoding upload response: %w", err)}
	}
	if resp.Questions == nil {
		return nil, &Error{Op: ErrUpload, Kind: ErrProtocol, Err: fmt.Errorf("upload response has no questions field")}
	}

	questions := *resp.Questions
	if questions == nil {
		questions = []string{}
	}
	return questions, nil
}

// SolveQuestion asks the service to answer a single question. The wire
// format is a list; exactly one element is sent.
func (c *Client) SolveQuestion(ctx context.Context, question string) (string, error) {
	if question == "" {
		return "", ErrEmptyQuestion
	}

	payload, err := json.Marshal(solveRequest{Questions: []string{question}})
	if err != nil {
		return "", &Error{Op: ErrSolve, Kind: ErrTransport, Err: err}
	}

	respBody, err := c.do(ctx, ErrSolve, "solve", c.requestTimeout, http.MethodPost, SolvePath, "application/json", payload)
	if err != nil {
		return "", err
	}

	var resp solveResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", &Error{Op: ErrSolve, Kind: ErrProtocol, Err: fmt.Errorf("decoding solve response: %w", err)}
	}
	if resp.Answer == nil {
		return "", &Error{Op: ErrSolve, Kind: ErrProtocol, Err: fmt.Errorf("solve response has no answer field")}
	}
	if *resp.Answer == "" {
		return "", &Error{Op: ErrSolve, Kind: ErrProtocol, Err: fmt.Errorf("solve response has an empty answer")}
	}
	return *resp.Answer, nil
}

// Health pings the service and returns its reported status.
func (c *Client) Health(ctx context.Context) (string, error) {
	ctx, cancel := withTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+HealthPath, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, uuid.New().String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("health request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("health request: unexpected status %d", resp.StatusCode)
	}

	var health healthResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&health); err != nil {
		return "", fmt.Errorf("decoding health response: %w", err)
	}
	return health.Status, nil
}

// do sends one request and returns the body of a 2xx response. Every
// failure is returned as *Error tagged with op.
func (c *Client) do(ctx context.Context, op error, opName string, timeout time.Duration, method, path, contentType string, body []byte) ([]byte, error) {
	requestID := uuid.New().String()
	log := c.log.With().Str("op", opName).Str("request_id", requestID).Logger()
	start := time.Now()

	fail := func(e *Error) ([]byte, error) {
		c.metrics.ObserveServiceRequest(opName, e.outcome(), time.Since(start))
		log.Warn().Err(e).Dur("elapsed", time.Since(start)).Msg("collaborator request failed")
		return nil, e
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fail(&Error{Op: op, Kind: ErrTransport, Err: fmt.Errorf("waiting for rate limiter: %w", err)})
		}
	}

	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fail(&Error{Op: op, Kind: ErrTransport, Err: err})
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)

	log.Debug().Int("bytes", len(body)).Msg("sending collaborator request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(&Error{Op: op, Kind: ErrTransport, Err: err})
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fail(&Error{Op: op, Kind: ErrTransport, Status: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)})
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(&Error{Op: op, Kind: ErrService, Status: resp.StatusCode, Detail: parseDetail(respBody)})
	}

	c.metrics.ObserveServiceRequest(opName, "ok", time.Since(start))
	log.Debug().Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).Msg("collaborator request complete")
	return respBody, nil
}

// parseDetail extracts a string "detail" field from an error body. Any other
// shape yields "" so the caller falls back to the generic message.
func parseDetail(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err != nil || len(er.Detail) == 0 {
		return ""
	}
	var detail string
	if err := json.Unmarshal(er.Detail, &detail); err != nil {
		return ""
	}
	return strings.TrimSpace(detail)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
