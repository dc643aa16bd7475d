package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointment-gateway/internal/identity"
)

func TestClient_GetAttachesBearerAndQuery(t *testing.T) {
	var gotAuth, gotPath, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	store := identity.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), identity.KeyToken, "tok-1"))

	client := NewClient(server.URL+"/api/", store)
	resp, err := client.Get(context.Background(), "/appointments", url.Values{"clinicId": {"c-1"}})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "[]", string(resp.Data))
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "/api/appointments", gotPath)
	assert.Equal(t, "clinicId=c-1", gotQuery)
}

func TestClient_NoCredential(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer server.Close()

	_, err := NewClient(server.URL, identity.NewMemoryStore()).Delete(context.Background(), "appointments/1")
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestClient_PostEncodesJSON(t *testing.T) {
	var body, contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		contentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"_id":"a-1"}`))
	}))
	defer server.Close()

	resp, err := NewClient(server.URL, nil).Post(context.Background(), "appointments", map[string]string{"notes": "x"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.JSONEq(t, `{"notes":"x"}`, body)
	assert.Equal(t, "application/json", contentType)
}

func TestClient_ErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"message":"slot taken"}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, nil).Put(context.Background(), "appointments/1", map[string]string{})
	require.Error(t, err)

	var terr *Error
	require.True(t, errors.As(err, &terr))
	require.NotNil(t, terr.Response)
	assert.Equal(t, http.StatusConflict, terr.Response.Status)
	assert.JSONEq(t, `{"message":"slot taken"}`, string(terr.Response.Data))
	assert.Equal(t, "request failed with status code 409", terr.Error())
}

func TestClient_UnauthorizedClearsCredential(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	ctx := context.Background()
	store := identity.NewMemoryStore()
	require.NoError(t, store.Set(ctx, identity.KeyToken, "expired"))

	redirected := false
	client := NewClient(server.URL, store, WithUnauthorizedHandler(func(context.Context) {
		redirected = true
	}))

	_, err := client.Get(ctx, "appointments", nil)
	require.Error(t, err)
	assert.True(t, redirected)

	_, ok, _ := store.Get(ctx, identity.KeyToken)
	assert.False(t, ok, "credential should be removed after 401")
}

func TestClient_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	_, err := NewClient(addr, nil).Get(context.Background(), "appointments", nil)
	require.Error(t, err)

	var terr *Error
	require.True(t, errors.As(err, &terr))
	assert.Nil(t, terr.Response)
	assert.NotNil(t, terr.Err)
}

func TestClient_Ping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	assert.NoError(t, NewClient(server.URL, nil).Ping(context.Background()))
}

func TestClient_TimeoutDoesNotMutateSuppliedClient(t *testing.T) {
	shared := &http.Client{Timeout: time.Minute}

	c := NewClient("http://example.test", nil, WithTimeout(2*time.Second), WithHTTPClient(shared))
	assert.Equal(t, 2*time.Second, c.httpClient.Timeout)
	assert.Equal(t, time.Minute, shared.Timeout)

	c = NewClient("http://example.test", nil, WithHTTPClient(http.DefaultClient), WithTimeout(time.Second))
	assert.Equal(t, time.Second, c.httpClient.Timeout)
	assert.NotSame(t, http.DefaultClient, c.httpClient)
	assert.Zero(t, http.DefaultClient.Timeout)

	c = NewClient("http://example.test", nil, WithHTTPClient(shared))
	assert.Same(t, shared, c.httpClient)

	c = NewClient("http://example.test", nil)
	assert.Equal(t, defaultTimeout, c.httpClient.Timeout)
}
