/*-------------------------------------------------------------------------
 *
 * Postgres Schema MCP Server
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"postgres-schema-mcp/internal/logging"
)

const (
	ProtocolVersion = "2024-11-05"
	ServerName      = "postgres-schema-sql"
)

// A stdio message is one line. Lines start in a 64 KiB buffer that may
// grow to 1 MiB; a longer line ends the loop with a scanner error. The
// HTTP transport applies the same bound to request bodies.
const (
	ScannerInitialBufferSize = 64 * 1024
	ScannerMaxBufferSize     = 1024 * 1024
)

// ServerVersion is overridden at build time with -ldflags "-X"
var ServerVersion = "0.1.0"

// ToolProvider is an interface for listing and executing tools
type ToolProvider interface {
	List() []Tool
	Execute(ctx context.Context, name string, args map[string]interface{}) (ToolResponse, error)
}

// Server handles MCP protocol communication
type Server struct {
	tools ToolProvider

	in  io.Reader
	out io.Writer

	// writeMu serialises lines written to out
	writeMu sync.Mutex
	// inflight tracks tools/call requests still running in stdio mode
	inflight sync.WaitGroup
}

// NewServer creates a new MCP server reading stdin and writing stdout
func NewServer(tools ToolProvider) *Server {
	return &Server{
		tools: tools,
		in:    os.Stdin,
		out:   os.Stdout,
	}
}

// SetIO replaces the stdio streams
func (s *Server) SetIO(in io.Reader, out io.Writer) {
	s.in = in
	s.out = out
}

// Run starts the stdio server loop. It returns at end of input once every
// in-flight tool call has answered, or when ctx is cancelled between lines.
func (s *Server) Run(ctx context.Context) error {
	defer s.inflight.Wait()

	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, ScannerInitialBufferSize), ScannerMaxBufferSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var req JSONRPCRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			s.writeResponse(createErrorResponse(nil, CodeParseError, "Parse error", err.Error()))
			continue
		}

		// Tool calls hit the database, so they run concurrently; everything
		// else is answered in arrival order
		if req.Method == "tools/call" && !req.IsNotification() {
			s.inflight.Add(1)
			go func(req JSONRPCRequest) {
				defer s.inflight.Done()
				s.writeResponse(s.safeDispatch(ctx, req))
			}(req)
			continue
		}

		s.writeResponse(s.safeDispatch(ctx, req))
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	return nil
}

// safeDispatch turns a panic in a handler into an internal error response
func (s *Server) safeDispatch(ctx context.Context, req JSONRPCRequest) (resp *JSONRPCResponse) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("mcp_handler_panic", "method", req.Method, "panic", fmt.Sprint(r))
			if req.IsNotification() {
				resp = nil
				return
			}
			resp = createErrorResponse(req.ID, CodeInternalError, "Internal error", fmt.Sprint(r))
		}
	}()
	return s.dispatch(ctx, req)
}

// dispatch handles one request for either transport. It returns nil for
// notifications.
func (s *Server) dispatch(ctx context.Context, req JSONRPCRequest) *JSONRPCResponse {
	logging.Debug("mcp_request", "method", req.Method, "id", req.ID)

	if req.JSONRPC != "2.0" || req.Method == "" {
		if req.IsNotification() {
			return nil
		}
		return createErrorResponse(req.ID, CodeInvalidRequest, "Invalid Request", nil)
	}

	// Notifications never get a response, whatever the method
	if req.IsNotification() {
		return nil
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "ping":
		return newResult(req.ID, struct{}{})
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolCall(ctx, req)
	default:
		return createErrorResponse(req.ID, CodeMethodNotFound, "Method not found", nil)
	}
}

func (s *Server) handleInitialize(req JSONRPCRequest) *JSONRPCResponse {
	var params InitializeParams
	if err := decodeParams(req.Params, &params); err != nil {
		return createErrorResponse(req.ID, CodeInvalidParams, "Invalid params", err.Error())
	}

	// Accept the client's protocol version for compatibility
	protocolVersion := params.ProtocolVersion
	if protocolVersion == "" {
		protocolVersion = ProtocolVersion
	}

	logging.Info("mcp_initialize",
		"client", params.ClientInfo.Name,
		"client_version", params.ClientInfo.Version,
		"protocol_version", protocolVersion)

	return newResult(req.ID, InitializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities: map[string]interface{}{
			"tools": map[string]interface{}{},
		},
		ServerInfo: Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
	})
}

func (s *Server) handleToolsList(req JSONRPCRequest) *JSONRPCResponse {
	tools := s.tools.List()
	if tools == nil {
		tools = []Tool{}
	}
	return newResult(req.ID, ToolsListResult{Tools: tools})
}

func (s *Server) handleToolCall(ctx context.Context, req JSONRPCRequest) *JSONRPCResponse {
	var params ToolCallParams
	if err := decodeParams(req.Params, &params); err != nil {
		return createErrorResponse(req.ID, CodeInvalidParams, "Invalid params", err.Error())
	}
	if params.Name == "" {
		return createErrorResponse(req.ID, CodeInvalidParams, "Invalid params", "tool name is required")
	}

	response, err := s.tools.Execute(ctx, params.Name, params.Arguments)
	if err != nil {
		if errors.Is(err, ErrToolNotFound) {
			return createErrorResponse(req.ID, CodeInvalidParams,
				fmt.Sprintf("Tool not found: %s", params.Name), nil)
		}
		return createErrorResponse(req.ID, CodeInternalError, "Tool execution error", err.Error())
	}

	return newResult(req.ID, response)
}

// writeResponse writes one response line; nil responses are skipped
func (s *Server) writeResponse(resp *JSONRPCResponse) {
	if resp == nil {
		return
	}

	data, err := json.Marshal(resp)
	if err != nil {
		logging.Error("mcp_marshal_failed", "error", err)
		data, _ = json.Marshal(createErrorResponse(resp.ID, CodeInternalError, "Internal error", err.Error()))
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := fmt.Fprintln(s.out, string(data)); err != nil {
		logging.Error("mcp_write_failed", "error", err)
		return
	}
	if f, ok := s.out.(*os.File); ok {
		_ = f.Sync()
	}
}
