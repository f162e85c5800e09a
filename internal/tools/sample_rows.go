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

	"postgres-schema-mcp/internal/config"
	"postgres-schema-mcp/internal/database"
	"postgres-schema-mcp/internal/mcp"
)

// SampleResult is the sample_rows result
type SampleResult struct {
	Schema string         `json:"schema"`
	Table  string         `json:"table"`
	Limit  int            `json:"limit"`
	Rows   []database.Row `json:"rows"`
}

// SampleRowsTool creates the sample_rows tool
func SampleRowsTool(db database.Querier, defaultSchema string, limits config.SampleRowsLimit) Tool {
	return Tool{
		Definition: mcp.Tool{
			Name:        "sample_rows",
			Description: "Return a small sample of rows from a table.",
			InputSchema: mcp.InputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"table": map[string]interface{}{
						"type":        "string",
						"description": "Table name to sample (without schema or with schema.table).",
					},
					"schema": map[string]interface{}{
						"type":        "string",
						"description": "Optional schema if table name is not qualified. Defaults to " + defaultSchema + ".",
						"default":     defaultSchema,
					},
					"limit": map[string]interface{}{
						"type": "number",
						"description": fmt.Sprintf("Maximum sample size (default %d, max %d).",
							limits.DefaultLimit, limits.MaxLimit),
						"default": limits.DefaultLimit,
					},
				},
				Required: []string{"table"},
			},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (mcp.ToolResponse, error) {
			ref, err := tableArgs(args, defaultSchema)
			if err != nil {
				return mcp.ToolResponse{}, err
			}
			rawLimit, present, err := ValidateOptionalNumberParam(args, "limit")
			if err != nil {
				return mcp.ToolResponse{}, err
			}
			limit := ClampLimit(rawLimit, present, limits.DefaultLimit, limits.MaxLimit)

			// Identifiers cannot be bound, so they are quoted instead
			query := fmt.Sprintf("SELECT * FROM %s LIMIT $1", ref.Quoted())
			result, err := db.Query(ctx, query, limit)
			if err != nil {
				return mcp.ToolResponse{}, err
			}

			rows := result.Rows
			if rows == nil {
				rows = []database.Row{}
			}
			return jsonResponse(SampleResult{
				Schema: ref.Schema,
				Table:  ref.Table,
				Limit:  limit,
				Rows:   rows,
			})
		},
	}
}
