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
	"postgres-schema-mcp/internal/config"
	"postgres-schema-mcp/internal/database"
)

// NewSchemaRegistry registers the four schema tools in their listing order
func NewSchemaRegistry(db database.Querier, cfg config.ToolsConfig) *Registry {
	schema := cfg.DefaultSchema
	if schema == "" {
		schema = config.DefaultSchema
	}

	registry := NewRegistry()
	registry.Register("list_tables", ListTablesTool(db, schema))
	registry.Register("describe_table", DescribeTableTool(db, schema))
	registry.Register("sample_rows", SampleRowsTool(db, schema, cfg.SampleRows))
	registry.Register("run_select", RunSelectTool(db, schema, cfg.RunSelect))
	return registry
}
