package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yeremiapane/kitchen-display/models"
)

// RemoteError is a non-2xx answer from the feed server.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("feed server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("feed server returned %d: %s", e.StatusCode, e.Message)
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// HTTPClient pulls snapshots from and sends commands to the feed server.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, token string, client *http.Client) *HTTPClient {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: client,
	}
}

// FetchSnapshot -> GET /admin/kitchen/orders
func (c *HTTPClient) FetchSnapshot(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	if err := c.do(ctx, http.MethodGet, "/admin/kitchen/orders", nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// ConfirmStatus -> PATCH /admin/orders/:id/status
func (c *HTTPClient) ConfirmStatus(ctx context.Context, id uint, status models.Status) error {
	body := map[string]models.Status{"status": status}
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/admin/orders/%d/status", id), body, nil)
}

// ConfirmPriority -> PATCH /admin/orders/:id/priority
func (c *HTTPClient) ConfirmPriority(ctx context.Context, id uint, priority models.Priority) error {
	body := map[string]models.Priority{"priority": priority}
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/admin/orders/%d/priority", id), body, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil {
			msg = env.Message
		}
		return &RemoteError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
