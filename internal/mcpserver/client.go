package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the Sentra API.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	APIKey string // Optional bearer token forwarded on every request
}

// SentraClient is a pure HTTP client for the Sentra API.
type SentraClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewSentraClient creates a new client for the Sentra API.
func NewSentraClient(cfg Config) *SentraClient {
	return &SentraClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *SentraClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil {
			if apiErr.Message != "" {
				return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
			}
			if apiErr.Error != "" {
				return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Error)
			}
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// ListAlerts lists fraud alerts, optionally filtered by status.
func (c *SentraClient) ListAlerts(ctx context.Context, status string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/api/v1/alerts", q, nil)
}

// GetTransaction returns a scored transaction by ID.
func (c *SentraClient) GetTransaction(ctx context.Context, id string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/api/v1/transactions/"+id, nil, nil)
}

// GetUserTransactions returns recent transactions for a user, newest first.
func (c *SentraClient) GetUserTransactions(ctx context.Context, userID string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/api/v1/users/"+userID+"/transactions", q, nil)
}

// GetStats returns aggregate fraud statistics.
func (c *SentraClient) GetStats(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/api/v1/stats", nil, nil)
}

// ReviewAlert moves an alert to a new review status.
func (c *SentraClient) ReviewAlert(ctx context.Context, alertID, status string) (json.RawMessage, error) {
	body := map[string]string{"status": status}
	return c.doRequest(ctx, http.MethodPatch, "/api/v1/alerts/"+alertID+"/status", nil, body)
}

// ScoreTransaction submits a transaction for fraud scoring.
func (c *SentraClient) ScoreTransaction(ctx context.Context, tx map[string]any) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/api/v1/transactions", nil, tx)
}
