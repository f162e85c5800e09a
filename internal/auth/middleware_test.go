/*-------------------------------------------------------------------------
 *
 * Postgres Schema MCP Server
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// okHandler records the token hash it was called with
func okHandler(seen *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = GetTokenHashFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func serve(handler http.Handler, path, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestAuthMiddlewareDisabled(t *testing.T) {
	var seen string
	handler := AuthMiddleware(nil, false)(okHandler(&seen))

	w := serve(handler, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, seen)
}

func TestAuthMiddlewareHealthBypass(t *testing.T) {
	var seen string
	handler := AuthMiddleware(NewTokenStore(), true)(okHandler(&seen))

	w := serve(handler, HealthCheckPath, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddlewareRejects(t *testing.T) {
	store := NewTokenStore()
	past := time.Now().Add(-time.Hour)
	require.NoError(t, store.AddToken("old", HashToken("old-token"), "", &past))

	tests := []struct {
		name   string
		header string
		body   string
	}{
		{"missing header", "", "Missing Authorization header"},
		{"no scheme", "just-a-token", "Invalid Authorization header format"},
		{"wrong scheme", "Basic dXNlcjpwYXNz", "Invalid Authorization header format"},
		{"empty token", "Bearer   ", "Invalid Authorization header format"},
		{"unknown token", "Bearer nope", "Invalid or unknown token"},
		{"expired token", "Bearer old-token", "Invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			handler := AuthMiddleware(store, true)(okHandler(&seen))

			w := serve(handler, "/", tt.header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
			assert.NotContains(t, w.Body.String(), "expired", "no detail leaks to the client")
		})
	}
}

func TestAuthMiddlewareNilStore(t *testing.T) {
	var seen string
	handler := AuthMiddleware(nil, true)(okHandler(&seen))

	w := serve(handler, "/", "Bearer anything")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddlewareValidToken(t *testing.T) {
	token, err := GenerateToken()
	require.NoError(t, err)
	store := NewTokenStore()
	require.NoError(t, store.AddToken("client", HashToken(token), "", nil))

	var seen string
	handler := AuthMiddleware(store, true)(okHandler(&seen))

	w := serve(handler, "/", "bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, HashToken(token), seen)
}

func TestGetTokenHashFromContext(t *testing.T) {
	assert.Empty(t, GetTokenHashFromContext(context.Background()))
	assert.Empty(t, TokenLabel(context.Background()))

	hash := HashToken("x")
	ctx := context.WithValue(context.Background(), TokenHashContextKey, hash)
	assert.Equal(t, hash, GetTokenHashFromContext(ctx))
	assert.Equal(t, hash[:12], TokenLabel(ctx))

	ctx = context.WithValue(context.Background(), TokenHashContextKey, 42)
	assert.Empty(t, GetTokenHashFromContext(ctx), "wrong type is ignored")
}
