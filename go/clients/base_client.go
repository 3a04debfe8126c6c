package clients

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrTransport marks failures that happened before a well-formed response was read:
// dial errors, timeouts, non-2xx statuses and truncated bodies.
var ErrTransport = errors.New("transport failure")

// StatusError is returned when the remote answered with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned status code: %d, response: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrTransport }

// BaseClient is the HTTP transport shared by the API clients. It satisfies the
// HTTPClient interface of the JSON-RPC client.
type BaseClient struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

func NewBaseClient(baseURL string) *BaseClient {
	return &BaseClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers: make(map[string]string),
	}
}

func (c *BaseClient) BaseURL() string {
	return c.baseURL
}

func (c *BaseClient) SetHeader(key, value string) {
	c.headers[key] = value
}

func (c *BaseClient) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

// Do sends req with the configured headers. Non-2xx answers are returned as
// a *StatusError and the response body is consumed.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w: %w", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		responseBody, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(responseBody)}
	}

	return resp, nil
}

func (c *BaseClient) CloseIdleConnections() {
	c.client.CloseIdleConnections()
}
