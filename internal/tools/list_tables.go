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

const listTablesSQL = `SELECT table_schema, table_name
FROM information_schema.tables
WHERE table_schema = $1
ORDER BY table_name`

// ListTablesTool creates the list_tables tool
func ListTablesTool(db database.Querier, defaultSchema string) Tool {
	return Tool{
		Definition: mcp.Tool{
			Name:        "list_tables",
			Description: "List tables in the " + defaultSchema + " schema (or specified schema).",
			InputSchema: mcp.InputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"schema": map[string]interface{}{
						"type":        "string",
						"description": "Postgres schema name. Defaults to " + defaultSchema + ".",
						"default":     defaultSchema,
					},
				},
			},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (mcp.ToolResponse, error) {
			schema, err := ValidateOptionalStringParam(args, "schema", defaultSchema)
			if err != nil {
				return mcp.ToolResponse{}, err
			}

			result, err := db.Query(ctx, listTablesSQL, schema)
			if err != nil {
				return mcp.ToolResponse{}, err
			}

			rows := result.Rows
			if rows == nil {
				rows = []database.Row{}
			}
			return jsonResponse(rows)
		},
	}
}
