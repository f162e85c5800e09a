/*-------------------------------------------------------------------------
 *
 * Postgres Schema MCP Server
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"postgres-schema-mcp/internal/logging"
	"postgres-schema-mcp/internal/mcp"
)

// Handler is a function that executes a tool. A returned error becomes a
// tool result with isError set; it never ends the session.
type Handler func(ctx context.Context, args map[string]interface{}) (mcp.ToolResponse, error)

// Tool represents a registered MCP tool
type Tool struct {
	Definition mcp.Tool
	Handler    Handler
}

// Registry manages available MCP tools in registration order
type Registry struct {
	order []string
	tools map[string]Tool
}

var _ mcp.ToolProvider = (*Registry)(nil)

// NewRegistry creates a new tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry. Registering a name twice replaces
// the tool but keeps its original position.
func (r *Registry) Register(name string, tool Tool) {
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = tool
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (Tool, bool) {
	tool, exists := r.tools[name]
	return tool, exists
}

// List returns all registered tool definitions
func (r *Registry) List() []mcp.Tool {
	tools := make([]mcp.Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name].Definition)
	}
	return tools
}

// Execute runs a tool by name with the given arguments
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) (mcp.ToolResponse, error) {
	tool, exists := r.Get(name)
	if !exists {
		return mcp.ToolResponse{}, fmt.Errorf("%w: %s", mcp.ErrToolNotFound, name)
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	start := time.Now()
	resp, err := tool.Handler(ctx, args)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			logging.Info("tool_rejected", "tool", name, "param", verr.Param, "error", verr.Message)
		} else {
			logging.Warn("tool_failed", "tool", name, "duration", time.Since(start).String(), "error", err)
		}
		return mcp.NewToolError(err.Error())
	}

	logging.Debug("tool_executed", "tool", name, "duration", time.Since(start).String())
	return resp, nil
}
