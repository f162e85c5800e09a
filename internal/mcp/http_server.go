/*-------------------------------------------------------------------------
 *
 * Postgres Schema MCP Server
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package mcp

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"postgres-schema-mcp/internal/auth"
	"postgres-schema-mcp/internal/logging"
)

// maxRequestBodySize bounds a single HTTP request body
const maxRequestBodySize = ScannerMaxBufferSize

// shutdownTimeout bounds graceful shutdown once the run context ends
const shutdownTimeout = 10 * time.Second

// HTTPConfig holds configuration for HTTP/HTTPS server mode
type HTTPConfig struct {
	Addr        string           // Server address (e.g., ":3333")
	Path        string           // MCP endpoint path (e.g., "/")
	TLSEnable   bool             // Enable HTTPS
	CertFile    string           // Path to TLS certificate file
	KeyFile     string           // Path to TLS key file
	ChainFile   string           // Optional path to certificate chain file
	AuthEnabled bool             // Enable API token authentication
	TokenStore  *auth.TokenStore // Token store for authentication
}

// httpErrorBody is written for failures outside the JSON-RPC envelope
type httpErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// Handler returns the HTTP handler serving the MCP endpoint and /health
func (s *Server) Handler(config *HTTPConfig) http.Handler {
	path := "/"
	if config != nil && config.Path != "" {
		path = config.Path
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealthCheck)
	if path != "/health" {
		mux.HandleFunc(path, s.handleHTTPRequest)
	}

	var handler http.Handler = mux
	if config != nil && config.AuthEnabled {
		handler = auth.AuthMiddleware(config.TokenStore, true)(handler)
	}
	return handler
}

// RunHTTP starts the MCP server in HTTP/HTTPS mode and shuts it down
// gracefully when ctx is cancelled
func (s *Server) RunHTTP(ctx context.Context, config *HTTPConfig) error {
	if config == nil {
		return fmt.Errorf("HTTP config is required")
	}

	httpServer := &http.Server{
		Addr:              config.Addr,
		Handler:           s.Handler(config),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if config.TLSEnable {
		tlsConfig, err := loadTLSConfig(config)
		if err != nil {
			return fmt.Errorf("failed to load TLS config: %w", err)
		}
		httpServer.TLSConfig = tlsConfig
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("http_server_listening",
			"addr", config.Addr, "path", config.Path, "tls", config.TLSEnable, "auth", config.AuthEnabled)
		if config.TLSEnable {
			// Certificates are already in TLSConfig
			errCh <- httpServer.ListenAndServeTLS("", "")
			return
		}
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		logging.Info("http_server_shutdown")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP shutdown: %w", err)
		}
		return nil
	}
}

// loadTLSConfig loads TLS certificates and creates a TLS configuration
func loadTLSConfig(config *HTTPConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(config.CertFile, config.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate and key: %w", err)
	}

	if config.ChainFile != "" {
		chainData, err := os.ReadFile(config.ChainFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read certificate chain: %w", err)
		}
		chain, err := decodeCertificateChain(chainData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate chain: %w", err)
		}
		cert.Certificate = append(cert.Certificate, chain...)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// decodeCertificateChain returns the DER bytes of every CERTIFICATE block
func decodeCertificateChain(data []byte) ([][]byte, error) {
	var chain [][]byte
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			chain = append(chain, block.Bytes)
		}
	}
	if len(chain) == 0 {
		return nil, errors.New("no PEM certificates found")
	}
	return chain, nil
}

// handleHTTPRequest handles one POST carrying a JSON-RPC message or batch.
// Sessions are not used: every request stands alone.
func (s *Server) handleHTTPRequest(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Error("http_handler_panic", "panic", fmt.Sprint(rec))
			writeHTTPError(w, http.StatusInternalServerError, "Failed to handle MCP request", fmt.Sprint(rec))
		}
	}()

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		writeHTTPError(w, http.StatusBadRequest, "Invalid JSON body", err.Error())
		return
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		writeJSON(w, http.StatusBadRequest,
			createErrorResponse(nil, CodeInvalidRequest, "Invalid Request", "empty request body"))
		return
	}

	if !json.Valid(trimmed) {
		var probe interface{}
		details := "invalid JSON"
		if err := json.Unmarshal(trimmed, &probe); err != nil {
			details = err.Error()
		}
		writeHTTPError(w, http.StatusBadRequest, "Invalid JSON body", details)
		return
	}

	if trimmed[0] == '[' {
		s.handleBatch(w, r, trimmed)
		return
	}

	req, errResp := decodeRequest(trimmed)
	if errResp != nil {
		writeJSON(w, http.StatusBadRequest, errResp)
		return
	}

	logging.Debug("http_request", "method", req.Method, "remote", r.RemoteAddr, "token", auth.TokenLabel(r.Context()))

	resp := s.dispatch(r.Context(), req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request, body []byte) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		writeHTTPError(w, http.StatusBadRequest, "Invalid JSON body", err.Error())
		return
	}
	if len(raw) == 0 {
		writeJSON(w, http.StatusBadRequest,
			createErrorResponse(nil, CodeInvalidRequest, "Invalid Request", "empty batch"))
		return
	}

	responses := make([]*JSONRPCResponse, 0, len(raw))
	for _, msg := range raw {
		req, errResp := decodeRequest(msg)
		if errResp != nil {
			responses = append(responses, errResp)
			continue
		}
		if resp := s.dispatch(r.Context(), req); resp != nil {
			responses = append(responses, resp)
		}
	}

	if len(responses) == 0 {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, responses)
}

// decodeRequest parses one JSON-RPC message that is known to be valid JSON
func decodeRequest(data []byte) (JSONRPCRequest, *JSONRPCResponse) {
	var req JSONRPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return req, createErrorResponse(nil, CodeInvalidRequest, "Invalid Request", err.Error())
	}
	return req, nil
}

// handleHealthCheck provides a simple health check endpoint
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"server":  ServerName,
		"version": ServerVersion,
	})
}

func writeHTTPError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, httpErrorBody{Error: message, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("http_encode_failed", "error", err)
	}
}
