package analyst

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

type Config struct {
	BaseURL   string
	Token     string
	TokenType string
	Timeout   time.Duration
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

type Client struct {
	baseURL   string
	token     string
	tokenType string
	client    *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		token:     strings.TrimSpace(cfg.Token),
		tokenType: strings.TrimSpace(cfg.TokenType),
		client:    httpClient,
	}, nil
}

// SendMessage performs a single POST. There is no retry: any failure is
// returned to the caller as is.
func (c *Client) SendMessage(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("marshal analyst request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+MessagePath, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("build analyst request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.tokenType != "" {
		httpReq.Header.Set("X-Snowflake-Authorization-Token-Type", c.tokenType)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("request analyst message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read analyst response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Response{}, &RemoteRequestError{StatusCode: resp.StatusCode, RawBody: string(rawRespBody)}
	}

	var parsed Response
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return Response{}, &DecodeError{RawBody: string(rawRespBody), Err: err}
	}
	if len(parsed.Message.Content) == 0 {
		return Response{}, &DecodeError{RawBody: string(rawRespBody), Err: ErrEmptyReply}
	}
	parsed.Raw = json.RawMessage(rawRespBody)
	return parsed, nil
}
