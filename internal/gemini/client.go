package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrQuotaExceeded matches API errors caused by backend rate limits or exhausted quota.
var ErrQuotaExceeded = errors.New("gemini quota exceeded")

type APIError struct {
	HTTPStatus int
	Code       int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini error: http=%d status=%s message=%s", e.HTTPStatus, e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	if target == ErrQuotaExceeded {
		return e.HTTPStatus == http.StatusTooManyRequests || e.Status == "RESOURCE_EXHAUSTED"
	}
	return false
}

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewClient(apiKey, baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log.Named("gemini"),
	}
}

// GenerateContent performs one generateContent call. Non-2xx answers become *APIError.
func (c *Client) GenerateContent(ctx context.Context, model string, payload *Request) (*Response, error) {
	fullURL := c.baseURL + "/v1beta/models/" + url.PathEscape(model) + ":generateContent"

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post gemini: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := parseAPIError(resp.StatusCode, rawBody)
		c.log.Warn("generateContent failed",
			zap.String("model", model),
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncateBody(rawBody)),
		)
		return nil, apiErr
	}

	var out Response
	if err := json.Unmarshal(rawBody, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w (body=%s)", err, truncateBody(rawBody))
	}

	c.log.Debug("generateContent done",
		zap.String("model", model),
		zap.Int("candidates", len(out.Candidates)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return &out, nil
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{HTTPStatus: status}
	var envelope struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Status = envelope.Error.Status
		apiErr.Message = envelope.Error.Message
		return apiErr
	}
	apiErr.Message = truncateBody(body)
	return apiErr
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
