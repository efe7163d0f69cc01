package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storefront-commerce-api/internal/models"
)

const jsonAPIMediaType = "application/vnd.api+json"

// Upstream operation names reported to the Observer
const (
	OperationToken       = "oauth_token"
	OperationSKUs        = "list_skus"
	OperationSKUListSKUs = "list_sku_list_skus"
	OperationIntrospect  = "oauth_introspect"
)

// ErrMalformedResponse marks a 2xx upstream response whose body could not be decoded
var ErrMalformedResponse = errors.New("malformed upstream response")

// ResponseError is returned when the upstream answers with a non-2xx status
type ResponseError struct {
	StatusCode int
	Body       []byte
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Detail())
}

// APIErrors parses the body as a JSON:API error document, nil when it is not one
func (e *ResponseError) APIErrors() []models.APIError {
	var doc models.Document
	if err := json.Unmarshal(e.Body, &doc); err != nil {
		return nil
	}
	return doc.Errors
}

// Detail is the most useful description of the upstream failure: the joined
// JSON:API error details, the compact JSON body, or the raw text
func (e *ResponseError) Detail() string {
	if details := models.ErrorDetails(e.APIErrors()); details != "" {
		return details
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, e.Body); err == nil {
		return compact.String()
	}
	return strings.TrimSpace(string(e.Body))
}

// Observer receives one callback per upstream call
type Observer interface {
	ObserveUpstreamCall(ctx context.Context, operation string, statusCode int, duration time.Duration, err error)
}

// TokenRequest is the client-credentials grant sent to the OAuth endpoint
type TokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Scope        string `json:"scope"`
}

// TokenResponse is the OAuth endpoint's answer. ExpiresIn is nil when the
// field was absent.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   *int64 `json:"expires_in"`
	Scope       string `json:"scope"`
	CreatedAt   int64  `json:"created_at"`
}

// Lifetime returns expires_in in seconds, zero when it was absent
func (r *TokenResponse) Lifetime() int64 {
	if r.ExpiresIn == nil {
		return 0
	}
	return *r.ExpiresIn
}

// IntrospectionResponse describes a token as seen by /oauth/introspect
type IntrospectionResponse struct {
	Active  bool   `json:"active"`
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Scope   string `json:"scope"`
}

// Client talks to the Commerce Layer OAuth and JSON:API endpoints
type Client struct {
	authURL     string
	baseURL     string
	tokenClient *http.Client
	apiClient   *http.Client
	observer    Observer
}

// NewClient creates a Commerce Layer client. Tokens are requested from
// authURL, catalog calls go to baseURL.
func NewClient(authURL, baseURL string, tokenTimeout, apiTimeout time.Duration) *Client {
	return &Client{
		authURL: authURL,
		baseURL: strings.TrimRight(baseURL, "/"),
		tokenClient: &http.Client{
			Timeout: tokenTimeout,
		},
		apiClient: &http.Client{
			Timeout: apiTimeout,
		},
	}
}

// SetObserver registers the upstream call observer
func (c *Client) SetObserver(observer Observer) {
	c.observer = observer
}

// RequestToken performs a client-credentials grant
func (c *Client) RequestToken(ctx context.Context, tokenReq TokenRequest) (*TokenResponse, error) {
	if tokenReq.GrantType == "" {
		tokenReq.GrantType = "client_credentials"
	}

	jsonData, err := json.Marshal(tokenReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	slog.Debug("Requesting Commerce Layer token", "scope", tokenReq.Scope)

	body, err := c.do(ctx, c.tokenClient, req, OperationToken)
	if err != nil {
		return nil, err
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w: %v", ErrMalformedResponse, err)
	}

	return &tokenResp, nil
}

// IntrospectToken asks the organization's /oauth/introspect endpoint whether
// accessToken is still active
func (c *Client) IntrospectToken(ctx context.Context, accessToken string) (*IntrospectionResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/oauth/introspect", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	body, err := c.do(ctx, c.tokenClient, req, OperationIntrospect)
	if err != nil {
		return nil, err
	}

	var introspection IntrospectionResponse
	if err := json.Unmarshal(body, &introspection); err != nil {
		return nil, fmt.Errorf("failed to decode introspection response: %w: %v", ErrMalformedResponse, err)
	}
	return &introspection, nil
}

// ListSKUs queries /api/skus with the given query parameters
func (c *Client) ListSKUs(ctx context.Context, accessToken string, query url.Values) (*models.Document, error) {
	return c.getDocument(ctx, accessToken, "/api/skus", query, OperationSKUs)
}

// ListSKUListSKUs queries the SKUs belonging to a SKU list
func (c *Client) ListSKUListSKUs(ctx context.Context, accessToken, skuListID string, query url.Values) (*models.Document, error) {
	path := fmt.Sprintf("/api/sku_lists/%s/skus", url.PathEscape(skuListID))
	return c.getDocument(ctx, accessToken, path, query, OperationSKUListSKUs)
}

func (c *Client) getDocument(ctx context.Context, accessToken, path string, query url.Values, operation string) (*models.Document, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", jsonAPIMediaType)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	slog.Debug("Querying Commerce Layer", "operation", operation, "path", path, "query", query.Encode())

	body, err := c.do(ctx, c.apiClient, req, operation)
	if err != nil {
		return nil, err
	}

	var doc models.Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w: %v", operation, ErrMalformedResponse, err)
	}

	return &doc, nil
}

// do executes req and returns the body of a 2xx response
func (c *Client) do(ctx context.Context, httpClient *http.Client, req *http.Request, operation string) ([]byte, error) {
	start := time.Now()
	statusCode := 0

	body, err := func() ([]byte, error) {
		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to make request: %w", err)
		}
		defer resp.Body.Close()
		statusCode = resp.StatusCode

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &ResponseError{StatusCode: resp.StatusCode, Body: body}
		}
		return body, nil
	}()

	if c.observer != nil {
		c.observer.ObserveUpstreamCall(ctx, operation, statusCode, time.Since(start), err)
	}

	if err != nil {
		slog.Warn("Commerce Layer request failed",
			"operation", operation,
			"status_code", statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err)
	}

	return body, err
}
