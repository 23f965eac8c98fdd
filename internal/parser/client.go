package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"finsight/internal/document"
)

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_service.go -package=mocks finsight/internal/parser Service

// Service is the contract for the external structural PDF parser.
type Service interface {
	// Parse submits a document and returns its ordered pages.
	Parse(ctx context.Context, path string) (document.Parsed, error)
}

// Client talks to the structural parsing service over HTTP. The service
// receives a file path and responds with typed page items (heading/text/table).
type Client struct {
	BaseURL string
	APIKey  string
	client  *http.Client
}

// NewClient creates a parser client. Parse calls are long-running (the service
// renders the whole PDF), so the HTTP client gets a generous timeout.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Minute},
	}
}

// parseRequest is the request payload for the parse endpoint.
type parseRequest struct {
	FilePath   string `json:"file_path"`
	ResultType string `json:"result_type"`
	Language   string `json:"language"`
}

// parseResponse is the response from the parse endpoint.
type parseResponse struct {
	Pages document.Parsed `json:"pages"`
}

// Parse submits the document at path and returns its pages.
// An empty page list is treated as a failed parse.
func (c *Client) Parse(ctx context.Context, path string) (document.Parsed, error) {
	url := fmt.Sprintf("%s/v1/parse", c.BaseURL)

	payload := parseRequest{
		FilePath:   path,
		ResultType: "json",
		Language:   "en",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed parseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(parsed.Pages) == 0 {
		return nil, fmt.Errorf("no content extracted from %s", path)
	}

	return parsed.Pages, nil
}
