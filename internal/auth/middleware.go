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
	"errors"
	"net/http"
	"strings"

	"postgres-schema-mcp/internal/logging"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// TokenHashContextKey is the context key for storing the authenticated token hash
	TokenHashContextKey contextKey = "token_hash"

	// HealthCheckPath is the path for the health check endpoint (bypasses authentication)
	HealthCheckPath = "/health"
)

// GetTokenHashFromContext retrieves the token hash from the request context
// Returns empty string if no token hash is found (e.g., unauthenticated request)
func GetTokenHashFromContext(ctx context.Context) string {
	if hash, ok := ctx.Value(TokenHashContextKey).(string); ok {
		return hash
	}
	return ""
}

// TokenLabel returns a short, loggable prefix of the caller's token hash
func TokenLabel(ctx context.Context) string {
	hash := GetTokenHashFromContext(ctx)
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

// AuthMiddleware creates an HTTP middleware that validates API tokens
func AuthMiddleware(tokenStore *TokenStore, enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled || r.URL.Path == HealthCheckPath {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "Invalid Authorization header format. Expected: Bearer <token>", http.StatusUnauthorized)
				return
			}
			token = strings.TrimSpace(token)

			if tokenStore == nil {
				logging.Error("auth_no_token_store")
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			valid, err := tokenStore.ValidateToken(token)
			if err != nil {
				// Details stay in the log, the client gets a generic message
				if errors.Is(err, ErrTokenExpired) {
					logging.Warn("auth_token_expired", "remote", r.RemoteAddr)
				} else {
					logging.Warn("auth_token_error", "remote", r.RemoteAddr, "error", err)
				}
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			if !valid {
				logging.Warn("auth_token_unknown", "remote", r.RemoteAddr)
				http.Error(w, "Invalid or unknown token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), TokenHashContextKey, HashToken(token))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
