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
	"strings"

	"github.com/jackc/pgx/v5"
)

// TableRef is a resolved schema-qualified table name
type TableRef struct {
	Schema string
	Table  string
}

// Quoted returns the reference as a quoted SQL identifier, safe to
// interpolate into a statement
func (t TableRef) Quoted() string {
	return pgx.Identifier{t.Schema, t.Table}.Sanitize()
}

// ResolveTable splits table on its first "." into schema and table. A
// qualified name always wins over schema. Either side may be empty; such a
// name matches no table.
func ResolveTable(table, schema string) TableRef {
	before, after, qualified := strings.Cut(table, ".")
	if !qualified {
		return TableRef{Schema: schema, Table: table}
	}
	return TableRef{Schema: before, Table: after}
}

// tableArgs reads the table and schema arguments shared by the table tools
func tableArgs(args map[string]interface{}, defaultSchema string) (TableRef, error) {
	table, err := ValidateStringParam(args, "table")
	if err != nil {
		return TableRef{}, err
	}
	schema, err := ValidateOptionalStringParam(args, "schema", defaultSchema)
	if err != nil {
		return TableRef{}, err
	}
	return ResolveTable(table, schema), nil
}
