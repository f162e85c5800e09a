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
	"bytes"
	"encoding/json"
	"fmt"

	"postgres-schema-mcp/internal/mcp"
)

// FormatJSON renders v with a two-space indent and without HTML escaping
func FormatJSON(v interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// jsonResponse wraps v as the single text block of a successful result
func jsonResponse(v interface{}) (mcp.ToolResponse, error) {
	text, err := FormatJSON(v)
	if err != nil {
		return mcp.ToolResponse{}, err
	}
	return mcp.NewToolSuccess(text)
}
