package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/vinlotto-backend/pkg/errors"
)

const (
	accessTokenHeader       = "X-Shopify-Access-Token"
	responseBodyReadLimit   = 2048
	defaultTimeout          = 15 * time.Second
	userErrorsDetailsMaxLen = 5
)

var (
	errEndpointRequired    = errors.New("storefront endpoint is required")
	errAccessTokenRequired = errors.New("storefront access token is required")
)

// Client talks to the storefront admin GraphQL API.
type Client struct {
	httpClient  *http.Client
	endpoint    string
	accessToken string
	locationID  string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLocationID sets the inventory location used when zeroing stock.
func WithLocationID(locationID string) Option {
	return func(c *Client) {
		c.locationID = strings.TrimSpace(locationID)
	}
}

// NewClient builds a client for the given GraphQL endpoint.
func NewClient(endpoint, accessToken string, timeout time.Duration, opts ...Option) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errEndpointRequired
	}
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, errAccessTokenRequired
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &Client{
		httpClient:  &http.Client{Timeout: timeout},
		endpoint:    endpoint,
		accessToken: accessToken,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

type userError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// do executes one GraphQL operation and decodes data into out.
func (c *Client) do(ctx context.Context, operation, query string, variables map[string]any, out any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "storefront client not configured")
	}
	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal "+operation+" request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build "+operation+" request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(accessTokenHeader, c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute "+operation+" request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), operation+" request failed")
	}

	var envelope graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode "+operation+" response")
	}
	if len(envelope.Errors) > 0 {
		messages := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			messages = append(messages, e.Message)
		}
		return pkgerrors.New(pkgerrors.CodeDependency, operation+" failed: "+strings.Join(messages, "; "))
	}
	if out == nil {
		return nil
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return pkgerrors.New(pkgerrors.CodeDependency, operation+" returned no data")
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode "+operation+" data")
	}
	return nil
}

// checkUserErrors turns mutation userErrors into a non-retryable conflict.
func checkUserErrors(operation string, errs []userError) error {
	if len(errs) == 0 {
		return nil
	}
	messages := make([]string, 0, len(errs))
	for i, e := range errs {
		if i == userErrorsDetailsMaxLen {
			break
		}
		messages = append(messages, e.Message)
	}
	return pkgerrors.New(pkgerrors.CodeConflict, operation+" rejected: "+strings.Join(messages, "; ")).
		WithDetails(map[string]any{"user_errors": messages})
}

// numericID returns the trailing numeric part of a global id.
func numericID(gid string) string {
	if idx := strings.LastIndex(gid, "/"); idx >= 0 {
		return gid[idx+1:]
	}
	return gid
}
