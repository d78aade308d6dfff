package registration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APIError is a non-field failure reported by the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("register: %d %s", e.Status, e.Message)
}

// APIClient creates users through POST {BaseURL}/api/register.
type APIClient struct {
	BaseURL string
	HTTP    *http.Client
}

func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
}

func (c *APIClient) CreateUser(ctx context.Context, req Request) (*Account, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/register", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("register: read response: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &APIError{Status: res.StatusCode, Message: strings.TrimSpace(string(raw))}
	}

	if res.StatusCode >= 200 && res.StatusCode < 300 && env.Success {
		var acc Account
		if err := json.Unmarshal(env.Data, &acc); err != nil {
			return nil, fmt.Errorf("register: decode account: %w", err)
		}
		return &acc, nil
	}

	var fields map[string]string
	if len(env.Error) > 0 && json.Unmarshal(env.Error, &fields) == nil && len(fields) > 0 {
		return nil, &FieldErrors{Fields: fields}
	}
	return nil, &APIError{Status: res.StatusCode, Message: env.Message}
}

var _ Creator = (*APIClient)(nil)
