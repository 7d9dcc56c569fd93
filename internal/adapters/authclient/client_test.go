package authclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/collections/users/auth-with-password", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["identity"] != "v@aid.test" || in["password"] != "pw" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":400,"message":"Failed to authenticate.","data":{}}`))
			return
		}
		_, _ = w.Write([]byte(`{"token":"tok-1","record":{"id":"u1","email":"v@aid.test","name":"Vic","role":"volunteer","collectionId":"_pb_users_auth_"}}`))
	})
	mux.HandleFunc("POST /api/collections/users/auth-refresh", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":401,"message":"The request requires valid record authorization token.","data":{}}`))
			return
		}
		_, _ = w.Write([]byte(`{"token":"tok-2","record":{"id":"u1","email":"v@aid.test","role":"volunteer"}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestAuthWithPassword(t *testing.T) {
	c := New(newBackend(t).URL+"/", time.Second)

	token, p, err := c.AuthWithPassword(context.Background(), "v@aid.test", "pw")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, &domain.Principal{ID: "u1", Email: "v@aid.test", Name: "Vic", Role: "volunteer"}, p)
}

func TestAuthWithPasswordRejected(t *testing.T) {
	c := New(newBackend(t).URL, time.Second)

	_, p, err := c.AuthWithPassword(context.Background(), "bad@x.com", "wrong")
	require.Error(t, err)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.Equal(t, "Failed to authenticate.", err.Error())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestAuthRefresh(t *testing.T) {
	c := New(newBackend(t).URL, time.Second)

	token, p, err := c.AuthRefresh(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token)
	assert.Equal(t, "u1", p.ID)

	_, _, err = c.AuthRefresh(context.Background(), "stale")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, _, err = c.AuthRefresh(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestPlainTextErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, _, err := New(srv.URL, time.Second).AuthWithPassword(context.Background(), "a", "b")
	require.Error(t, err)
	assert.Equal(t, "upstream down", err.Error())
	assert.NotErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestEmptyRecordIsUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":"x"}`))
	}))
	defer srv.Close()

	_, _, err := New(srv.URL, time.Second).AuthRefresh(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
