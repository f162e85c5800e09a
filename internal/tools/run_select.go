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
	"fmt"
	"strings"

	"postgres-schema-mcp/internal/config"
	"postgres-schema-mcp/internal/database"
	"postgres-schema-mcp/internal/mcp"
)

// SelectResult is the run_select result
type SelectResult struct {
	SQL     string         `json:"sql"`
	MaxRows int            `json:"maxRows"`
	Columns []string       `json:"columns"`
	Rows    []database.Row `json:"rows"`
}

// RunSelectTool creates the run_select tool
func RunSelectTool(db database.Querier, defaultSchema string, limits config.RunSelectLimit) Tool {
	return Tool{
		Definition: mcp.Tool{
			Name:        "run_select",
			Description: "Execute a read-only SELECT query against Postgres. The query must start with SELECT and cannot modify data.",
			InputSchema: mcp.InputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"sql": map[string]interface{}{
						"type":        "string",
						"description": "The SELECT SQL query to run. Must begin with SELECT and should reference tables in " + defaultSchema + ".",
					},
					"max_rows": map[string]interface{}{
						"type": "number",
						"description": fmt.Sprintf("Maximum number of rows to return (default %d, max %d).",
							limits.DefaultMaxRows, limits.MaxMaxRows),
						"default": limits.DefaultMaxRows,
					},
				},
				Required: []string{"sql"},
			},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (mcp.ToolResponse, error) {
			raw, ok := args["sql"].(string)
			if !ok {
				return mcp.ToolResponse{}, newValidationError("sql", "Missing or invalid 'sql' argument")
			}
			sql := strings.TrimSpace(raw)

			rawMax, present, err := ValidateOptionalNumberParam(args, "max_rows")
			if err != nil {
				return mcp.ToolResponse{}, err
			}
			maxRows := ClampLimit(rawMax, present, limits.DefaultMaxRows, limits.MaxMaxRows)

			if err := CheckSelect(sql); err != nil {
				return mcp.ToolResponse{}, err
			}

			wrapped := fmt.Sprintf("SELECT * FROM (%s) AS sub LIMIT $1", sql)
			result, err := db.Query(ctx, wrapped, maxRows)
			if err != nil {
				return mcp.ToolResponse{}, err
			}

			columns, rows := result.Columns, result.Rows
			if columns == nil {
				columns = []string{}
			}
			if rows == nil {
				rows = []database.Row{}
			}
			return jsonResponse(SelectResult{
				SQL:     sql,
				MaxRows: maxRows,
				Columns: columns,
				Rows:    rows,
			})
		},
	}
}
