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

	"postgres-schema-mcp/internal/database"
	"postgres-schema-mcp/internal/mcp"
)

const describeTableSQL = `SELECT column_name, data_type, is_nullable, column_default
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`

// TableDescription is the describe_table result. An unknown table has no
// columns.
type TableDescription struct {
	Schema  string         `json:"schema"`
	Table   string         `json:"table"`
	Columns []database.Row `json:"columns"`
}

// DescribeTableTool creates the describe_table tool
func DescribeTableTool(db database.Querier, defaultSchema string) Tool {
	return Tool{
		Definition: mcp.Tool{
			Name:        "describe_table",
			Description: "Describe columns for a given table (name and type).",
			InputSchema: mcp.InputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"table": map[string]interface{}{
						"type":        "string",
						"description": "Table name to describe (without schema or with schema.table).",
					},
					"schema": map[string]interface{}{
						"type":        "string",
						"description": "Optional schema if table name is not qualified. Defaults to " + defaultSchema + ".",
						"default":     defaultSchema,
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

			result, err := db.Query(ctx, describeTableSQL, ref.Schema, ref.Table)
			if err != nil {
				return mcp.ToolResponse{}, err
			}

			columns := result.Rows
			if columns == nil {
				columns = []database.Row{}
			}
			return jsonResponse(TableDescription{
				Schema:  ref.Schema,
				Table:   ref.Table,
				Columns: columns,
			})
		},
	}
}
