package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient wraps http.Client with timeout
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// newHTTPClient creates a new HTTP client with timeout
func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// apiError is a non-2xx response.
type apiError struct {
	Status int
	Code   string `json:"code"`
	Msg    string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("status %d: %s: %s", e.Status, e.Code, e.Msg)
}

// do sends body as JSON and decodes a 2xx response into out.
func (c *HTTPClient) do(ctx context.Context, method, path, token string, body, out any) error {
	var r io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != StatusOK && resp.StatusCode != StatusCreated {
		apiErr := &apiError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func (c *HTTPClient) login(ctx context.Context, username, password string) (Session, error) {
	var s Session
	err := c.do(ctx, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	}, &s)
	return s, err
}

func (c *HTTPClient) createRound(ctx context.Context, token string, start, end time.Time) (Round, error) {
	var r Round
	err := c.do(ctx, http.MethodPost, "/api/rounds", token, map[string]time.Time{
		"start": start,
		"end":   end,
	}, &r)
	return r, err
}

func (c *HTTPClient) tap(ctx context.Context, token, roundID string) (TapResult, error) {
	var t TapResult
	err := c.do(ctx, http.MethodPost, "/api/rounds/tap", token, map[string]string{"roundId": roundID}, &t)
	return t, err
}

func (c *HTTPClient) round(ctx context.Context, roundID string) (Round, error) {
	var body struct {
		Round Round `json:"round"`
	}
	err := c.do(ctx, http.MethodGet, "/api/rounds/"+roundID, "", nil, &body)
	return body.Round, err
}

func (c *HTTPClient) health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", "", nil, nil)
}
