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

import "encoding/json"

// JSONRPCRequest represents an incoming JSON-RPC 2.0 request. A request
// without an id member is a notification and gets no response; "id": null
// is still answered.
type JSONRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id,omitempty"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`

	// hasID is set when the decoded message carried an id member
	hasID bool
}

// UnmarshalJSON records whether the id member was present
func (r *JSONRPCRequest) UnmarshalJSON(data []byte) error {
	type plain JSONRPCRequest
	var fields struct {
		plain
		RawID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*r = JSONRPCRequest(fields.plain)
	r.hasID = fields.RawID != nil
	if r.hasID {
		if err := json.Unmarshal(fields.RawID, &r.ID); err != nil {
			return err
		}
	}
	return nil
}

// IsNotification reports whether the request expects no response
func (r JSONRPCRequest) IsNotification() bool {
	return r.ID == nil && !r.hasID
}

// JSONRPCResponse represents an outgoing JSON-RPC 2.0 response. The id is
// always written, as null when the request id could not be read.
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// JSON-RPC 2.0 error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// InitializeParams represents the parameters for the initialize request
type InitializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ClientInfo      Implementation         `json:"clientInfo"`
}

// Implementation names a client or server and its version
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the response to an initialize request
type InitializeResult struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ServerInfo      Implementation         `json:"serverInfo"`
}

// Tool represents an MCP tool definition
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

// InputSchema defines the JSON schema for tool input
type InputSchema struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
	Required   []string               `json:"required,omitempty"`
}

// ToolCallParams represents parameters for calling a tool
type ToolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// ToolResponse represents the response from a tool execution
type ToolResponse struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// ContentItem represents a piece of content in a tool response
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolsListResult represents the result of tools/list request
type ToolsListResult struct {
	Tools []Tool `json:"tools"`
}
