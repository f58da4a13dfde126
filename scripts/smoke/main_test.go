package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEnvelope(t *testing.T) {
	assert.NoError(t, validateEnvelope(http.StatusOK, []byte(`{"data":[]}`)))
	assert.Error(t, validateEnvelope(http.StatusOK, []byte(`{}`)))
	assert.NoError(t, validateEnvelope(http.StatusForbidden, []byte(`{"error":{"code":"FORBIDDEN","message":"no"}}`)))
	assert.Error(t, validateEnvelope(http.StatusForbidden, []byte(`{"error":{}}`)))
	assert.Error(t, validateEnvelope(http.StatusOK, []byte(`not json`)))
}

func TestRunnerLoginAndCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			_, _ = w.Write([]byte(`{"data":{"access_token":"tok","expires_in":60}}`))
		case "/notifications":
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"missing token"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"data":[],"meta":{"unread":0}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	r := &runner{client: srv.Client(), base: srv.URL, tokens: map[string]string{}}
	token, err := r.login(credentials{Email: "a@b.c", Password: "secret"})
	require.NoError(t, err)
	r.tokens["student"] = token

	res := r.run(check{Name: "notifications", Path: "notifications", Role: "student", Expect: http.StatusOK})
	assert.True(t, res.ok())

	res = r.run(check{Name: "anonymous", Path: "/notifications", Expect: http.StatusUnauthorized})
	assert.True(t, res.ok())

	res = r.run(check{Name: "unknown role", Path: "/notifications", Role: "admin", Expect: http.StatusOK})
	assert.False(t, res.ok())
}
