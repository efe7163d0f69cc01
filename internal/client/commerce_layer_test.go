package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type observedCall struct {
	operation  string
	statusCode int
	err        error
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []observedCall
}

func (o *recordingObserver) ObserveUpstreamCall(ctx context.Context, operation string, statusCode int, duration time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, observedCall{operation: operation, statusCode: statusCode, err: err})
}

func TestClient_RequestToken(t *testing.T) {
	// Arrange
	var received TokenRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"abc","token_type":"bearer","expires_in":14400,"scope":"market:id:m1","created_at":1700000000}`))
	}))
	defer server.Close()

	observer := &recordingObserver{}
	c := NewClient(server.URL+"/oauth/token", server.URL, time.Second, time.Second)
	c.SetObserver(observer)

	// Act
	resp, err := c.RequestToken(context.Background(), TokenRequest{
		ClientID:     "id",
		ClientSecret: "secret",
		Scope:        "market:id:m1",
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "client_credentials", received.GrantType, "grant type defaults to client credentials")
	assert.Equal(t, "market:id:m1", received.Scope)
	lifetime := int64(14400)
	assert.Equal(t, &TokenResponse{
		AccessToken: "abc",
		TokenType:   "bearer",
		ExpiresIn:   &lifetime,
		Scope:       "market:id:m1",
		CreatedAt:   1700000000,
	}, resp)
	assert.Equal(t, int64(14400), resp.Lifetime())

	require.Len(t, observer.calls, 1)
	assert.Equal(t, observedCall{operation: OperationToken, statusCode: http.StatusOK}, observer.calls[0])
}

func TestClient_RequestToken_ErrorStatus(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"errors":[{"title":"Unauthorized","detail":"Invalid client credentials"}]}`))
	}))
	defer server.Close()

	observer := &recordingObserver{}
	c := NewClient(server.URL, server.URL, time.Second, time.Second)
	c.SetObserver(observer)

	// Act
	_, err := c.RequestToken(context.Background(), TokenRequest{})

	// Assert
	var respErr *ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, http.StatusUnauthorized, respErr.StatusCode)
	assert.Equal(t, "Invalid client credentials", respErr.Detail())
	require.Len(t, respErr.APIErrors(), 1)

	require.Len(t, observer.calls, 1)
	assert.Equal(t, http.StatusUnauthorized, observer.calls[0].statusCode)
	assert.Error(t, observer.calls[0].err)
}

func TestClient_RequestToken_Malformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer server.Close()

	c := NewClient(server.URL, server.URL, time.Second, time.Second)

	_, err := c.RequestToken(context.Background(), TokenRequest{})

	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestClient_ListSKUs(t *testing.T) {
	// Arrange
	var gotPath, gotAuth, gotAccept string
	var gotQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")

		w.Header().Set("Content-Type", jsonAPIMediaType)
		w.Write([]byte(`{"data":[{"id":"sku1","type":"skus","attributes":{"code":"C1"}}],"included":[]}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, server.URL+"/", time.Second, time.Second)

	query := url.Values{}
	query.Set("filter[q][sku_list_id_eq]", "list1")
	query.Set("include", "prices,stock_items")

	// Act
	doc, err := c.ListSKUs(context.Background(), "tok", query)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "/api/skus", gotPath)
	assert.Equal(t, "list1", gotQuery.Get("filter[q][sku_list_id_eq]"))
	assert.Equal(t, "prices,stock_items", gotQuery.Get("include"))
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, jsonAPIMediaType, gotAccept)
	require.Len(t, doc.Data, 1)
	assert.Equal(t, "sku1", doc.Data[0].ID)
}

func TestClient_ListSKUListSKUs(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	observer := &recordingObserver{}
	c := NewClient(server.URL, server.URL, time.Second, time.Second)
	c.SetObserver(observer)

	doc, err := c.ListSKUListSKUs(context.Background(), "tok", "list1", url.Values{"fields[skus]": {"code"}})

	require.NoError(t, err)
	assert.Equal(t, "/api/sku_lists/list1/skus", gotPath)
	assert.Empty(t, doc.Data)
	require.Len(t, observer.calls, 1)
	assert.Equal(t, OperationSKUListSKUs, observer.calls[0].operation)
}

func TestClient_ListSKUs_ErrorBodies(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantDetail string
	}{
		{
			name:       "json api errors",
			status:     http.StatusUnprocessableEntity,
			body:       `{"errors":[{"title":"Invalid filter","detail":"a is invalid"},{"title":"Invalid include","detail":"b is invalid"}]}`,
			wantDetail: "a is invalid; b is invalid",
		},
		{
			name:       "plain json",
			status:     http.StatusBadGateway,
			body:       `{ "message" : "upstream down" }`,
			wantDetail: `{"message":"upstream down"}`,
		},
		{
			name:       "plain text",
			status:     http.StatusInternalServerError,
			body:       "  oops \n",
			wantDetail: "oops",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := NewClient(server.URL, server.URL, time.Second, time.Second)
			_, err := c.ListSKUs(context.Background(), "tok", nil)

			var respErr *ResponseError
			require.True(t, errors.As(err, &respErr))
			assert.Equal(t, tt.status, respErr.StatusCode)
			assert.Equal(t, tt.wantDetail, respErr.Detail())
		})
	}
}

func TestClient_ListSKUs_Timeout(t *testing.T) {
	// Arrange
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	observer := &recordingObserver{}
	c := NewClient(server.URL, server.URL, time.Second, 50*time.Millisecond)
	c.SetObserver(observer)

	// Act
	_, err := c.ListSKUs(context.Background(), "tok", nil)

	// Assert
	require.Error(t, err)
	var respErr *ResponseError
	assert.False(t, errors.As(err, &respErr))
	require.Len(t, observer.calls, 1)
	assert.Equal(t, 0, observer.calls[0].statusCode)
}

func TestTokenResponse_ExpiresInPresence(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantPresent bool
		wantSeconds int64
	}{
		{name: "positive", body: `{"access_token":"abc","expires_in":7200}`, wantPresent: true, wantSeconds: 7200},
		{name: "zero", body: `{"access_token":"abc","expires_in":0}`, wantPresent: true, wantSeconds: 0},
		{name: "absent", body: `{"access_token":"abc"}`, wantPresent: false, wantSeconds: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp TokenResponse
			require.NoError(t, json.Unmarshal([]byte(tt.body), &resp))

			assert.Equal(t, tt.wantPresent, resp.ExpiresIn != nil)
			assert.Equal(t, tt.wantSeconds, resp.Lifetime())
		})
	}
}

func TestClient_IntrospectToken(t *testing.T) {
	// Arrange
	var gotPath, gotAuth, gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"active":true,"sub":"cust-1","email":"jo@example.com","scope":"market:id:m1"}`))
	}))
	defer server.Close()

	observer := &recordingObserver{}
	c := NewClient(server.URL+"/oauth/token", server.URL, time.Second, time.Second)
	c.SetObserver(observer)

	// Act
	resp, err := c.IntrospectToken(context.Background(), "tok-1")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, gotMethod)
	assert.Equal(t, "/oauth/introspect", gotPath)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, &IntrospectionResponse{Active: true, Subject: "cust-1", Email: "jo@example.com", Scope: "market:id:m1"}, resp)

	require.Len(t, observer.calls, 1)
	assert.Equal(t, OperationIntrospect, observer.calls[0].operation)
}

func TestClient_IntrospectToken_Errors(t *testing.T) {
	t.Run("rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"errors":[{"detail":"Invalid token"}]}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, server.URL, time.Second, time.Second)
		_, err := c.IntrospectToken(context.Background(), "tok-1")

		var respErr *ResponseError
		require.True(t, errors.As(err, &respErr))
		assert.Equal(t, http.StatusUnauthorized, respErr.StatusCode)
		assert.Equal(t, "Invalid token", respErr.Detail())
	})

	t.Run("malformed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		}))
		defer server.Close()

		c := NewClient(server.URL, server.URL, time.Second, time.Second)
		_, err := c.IntrospectToken(context.Background(), "tok-1")

		assert.ErrorIs(t, err, ErrMalformedResponse)
	})
}
