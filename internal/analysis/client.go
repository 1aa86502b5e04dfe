package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KaramelBytes/stagewise/internal/results"
)

const maxResponseBytes = 32 << 20

// Client talks to an HTTP analysis service exposing `{family}/perform`.
type Client struct {
	httpClient       *http.Client
	baseURL          string
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	logger           *zap.Logger
}

// NewClient allows customizing HTTP timeout and retry/backoff behavior.
func NewClient(baseURL string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration) *Client {
	if httpTimeout <= 0 {
		httpTimeout = 120 * time.Second
	}
	if retryMax <= 0 {
		retryMax = 3
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 4 * time.Second
	}
	return &Client{
		httpClient:       &http.Client{Timeout: httpTimeout},
		baseURL:          strings.TrimRight(baseURL, "/"),
		retryMaxAttempts: retryMax,
		retryBaseDelay:   baseDelay,
		retryMaxDelay:    maxDelay,
		logger:           zap.NewNop(),
	}
}

// WithLogger sets the logger used for retry diagnostics.
func (c *Client) WithLogger(l *zap.Logger) *Client {
	if l != nil {
		c.logger = l
	}
	return c
}

func (c *Client) endpoint(family string) string {
	return c.baseURL + "/" + family + "/perform"
}

// Analyze uploads the file and parameters, retrying 429/5xx responses and
// transient network failures. Cancelling ctx aborts both the in-flight
// request and any backoff wait.
func (c *Client) Analyze(ctx context.Context, req Request, progress ProgressFunc) (results.Raw, error) {
	if c.baseURL == "" {
		return nil, errors.New("analysis service URL is not configured")
	}
	if req.Family == "" {
		return nil, errors.New("analysis family cannot be empty")
	}
	body, contentType, err := encodeMultipart(req)
	if err != nil {
		return nil, err
	}
	report(progress, ProgressRequestBuilt)

	endpoint := c.endpoint(req.Family)
	backoff := c.retryBaseDelay
	var lastErr error
	for attempt := 1; attempt <= c.retryMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", contentType)
		httpReq.Header.Set("Accept", "application/json")
		httpReq.Header.Set("X-Request-Id", uuid.NewString())
		report(progress, ProgressSent)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if isRetryableNetErr(err) && attempt < c.retryMaxAttempts {
				lastErr = err
				c.logger.Debug("analysis request failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
				if err := sleepCtx(ctx, c.capped(withJitter(backoff))); err != nil {
					return nil, err
				}
				backoff *= 2
				continue
			}
			return nil, &UnreachableError{Host: c.baseURL, Err: err}
		}

		raw, wait, err := c.readResponse(resp, progress)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !retryable(err) || attempt == c.retryMaxAttempts {
			break
		}
		if wait <= 0 {
			wait = c.capped(withJitter(backoff))
			backoff *= 2
		}
		c.logger.Debug("analysis service returned retryable status", zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
		if err := sleepCtx(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// readResponse consumes one response. The duration is the server's
// Retry-After hint, if any.
func (c *Client) readResponse(resp *http.Response, progress ProgressFunc) (results.Raw, time.Duration, error) {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		svcErr := &ServiceError{StatusCode: resp.StatusCode, RequestID: extractRequestID(resp)}
		svcErr.Code, svcErr.Message = errorFields(body)
		err := classifyServiceError(svcErr, resp)
		var rl *RateLimitError
		if errors.As(err, &rl) {
			return nil, rl.RetryAfter, err
		}
		if resp.StatusCode >= 500 {
			return nil, retryAfter(resp), err
		}
		return nil, 0, err
	}
	report(progress, ProgressReceived)
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	raw := results.Raw{}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, 0, fmt.Errorf("decode response: %w", err)
		}
	}
	report(progress, ProgressDecoded)
	return raw, 0, nil
}

func (c *Client) capped(d time.Duration) time.Duration {
	if c.retryMaxDelay > 0 && d > c.retryMaxDelay {
		return c.retryMaxDelay
	}
	return d
}

func encodeMultipart(req Request) ([]byte, string, error) {
	params, err := json.Marshal(req.Params)
	if err != nil {
		return nil, "", fmt.Errorf("marshal params: %w", err)
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	name := req.FileName
	if name == "" {
		name = "upload"
	}
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, "", fmt.Errorf("build multipart: %w", err)
	}
	if _, err := fw.Write(req.Data); err != nil {
		return nil, "", fmt.Errorf("build multipart: %w", err)
	}
	if err := mw.WriteField("params", string(params)); err != nil {
		return nil, "", fmt.Errorf("build multipart: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("build multipart: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

// errorFields reads `{"error":{"code","message"}}`, `{"code","message"}` or
// the `{"detail": ...}` shape some services return.
func errorFields(body []byte) (code, message string) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", strings.TrimSpace(string(body))
	}
	src := raw
	if v, ok := raw["error"].(map[string]any); ok {
		src = v
	} else if v, ok := raw["error"].(string); ok {
		message = v
	}
	if v, ok := src["code"].(string); ok {
		code = v
	}
	if v, ok := src["message"].(string); ok {
		message = v
	}
	if v, ok := raw["detail"].(string); ok && message == "" {
		message = v
	}
	return code, message
}

func classifyServiceError(e *ServiceError, resp *http.Response) error {
	sc := e.StatusCode
	switch {
	case sc == http.StatusTooManyRequests:
		return &RateLimitError{ServiceError: e, RetryAfter: retryAfter(resp)}
	case sc == http.StatusBadRequest || sc == http.StatusUnprocessableEntity || sc == http.StatusRequestEntityTooLarge:
		return &BadRequestError{ServiceError: e}
	case sc >= 500 && sc <= 599:
		return &ServerError{ServiceError: e}
	}
	return e
}

func retryable(err error) bool {
	var rl *RateLimitError
	var srv *ServerError
	return errors.As(err, &rl) || errors.As(err, &srv)
}

func isRetryableNetErr(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return false
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET)
}

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := parseRetryAfterSeconds(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// parseRetryAfterSeconds tries to interpret Retry-After header value as seconds or HTTP date.
func parseRetryAfterSeconds(v string) (int, error) {
	if s, err := strconv.Atoi(v); err == nil {
		return s, nil
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return int(d.Seconds()), nil
	}
	return 0, fmt.Errorf("invalid Retry-After: %q", v)
}

// extractRequestID pulls a best-effort request ID from common headers.
func extractRequestID(resp *http.Response) string {
	if resp == nil {
		return ""
	}
	for _, k := range []string{"X-Request-Id", "X-Correlation-Id", "X-Amzn-Requestid"} {
		if v := resp.Header.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// withJitter returns a backoff duration with +/- 20% jitter applied.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 500 * time.Millisecond
	}
	f := 0.8 + rand.Float64()*0.4
	out := time.Duration(float64(d) * f)
	if out <= 0 {
		return d
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
