package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bsewire/internal/models"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the default per-request HTTP timeout.
	DefaultTimeout = 50 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 10

	// noRecordMsg is the upstream's normal empty-day response.
	noRecordMsg = "No Record found"
)

// Client is the upstream BSE announcements API client. One shared instance
// serves all per-day requests.
type Client struct {
	url        string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
	timeout    time.Duration
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewClient creates a new BSE announcements API client.
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		url:     url,
		timeout: DefaultTimeout,
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	if c.logger == nil {
		c.logger = arbor.NewLogger()
	}

	return c
}

// BuildPayload copies the template and injects the per-day fields. tradedt is
// YYYYMMDD of day; hr/min/sec are zero-padded from ref.
func BuildPayload(template map[string]any, day, ref time.Time) map[string]any {
	payload := make(map[string]any, len(template)+4)
	for k, v := range template {
		payload[k] = v
	}
	payload["tradedt"] = day.Format("20060102")
	payload["hr"] = fmt.Sprintf("%02d", ref.Hour())
	payload["min"] = fmt.Sprintf("%02d", ref.Minute())
	payload["sec"] = fmt.Sprintf("%02d", ref.Second())
	return payload
}

// FetchDay issues one POST for a single trading day. It returns the decoded
// records and whether a failure is retryable. The upstream's "No Record
// found" object is a normal empty day, not an error.
func (c *Client) FetchDay(ctx context.Context, payload map[string]any) ([]models.RawAnnouncement, bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, false, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode payload: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response: %w", err)
	}

	return decodeDayResponse(data)
}

// decodeDayResponse parses a day response with content-type tolerance: a JSON
// array of records, the "No Record found" object, or an anomaly.
func decodeDayResponse(data []byte) ([]models.RawAnnouncement, bool, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, true, fmt.Errorf("empty response body")
	}

	if trimmed[0] == '[' {
		var records []models.RawAnnouncement
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, true, fmt.Errorf("failed to decode record array: %w", err)
		}
		return records, false, nil
	}

	var obj struct {
		ErrorMsg string `json:"Error_Msg"`
	}
	if err := json.Unmarshal(trimmed, &obj); err == nil && obj.ErrorMsg == noRecordMsg {
		return nil, false, nil
	}

	return nil, true, fmt.Errorf("unexpected response shape")
}
