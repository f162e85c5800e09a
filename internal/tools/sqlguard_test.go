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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckSelect(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		wantErr string
	}{
		{"simple select", "SELECT 1 AS x", ""},
		{"lower case", "select * from mcp_demo.orders", ""},
		{"parenthesised", "((SELECT 1))", ""},
		{"paren then space", "( SELECT 1)", ""},
		{"with cte", "WITH x AS (SELECT 1) SELECT * FROM x", "Only SELECT queries are allowed in run_select."},
		{"update", "UPDATE foo SET x=1", "Only SELECT queries are allowed in run_select."},
		{"empty", "", "Only SELECT queries are allowed in run_select."},
		{"two statements", "SELECT 1; SELECT 2", "Multiple statements are not allowed; omit the semicolon."},
		{"semicolon in literal", "SELECT ';'", "Multiple statements are not allowed; omit the semicolon."},
		{"trailing comment drop", "SELECT * FROM t -- DROP TABLE t", "Keyword DROP is not allowed in run_select."},
		{"semicolon wins over keyword", "SELECT * FROM t; -- DROP TABLE t", "Multiple statements are not allowed; omit the semicolon."},
		{"keyword order", "SELECT 'drop', 'insert'", "Keyword INSERT is not allowed in run_select."},
		{"substring false positive", "SELECT created_at FROM t", "Keyword CREATE is not allowed in run_select."},
		{"lower case keyword", "select * from t where note = 'grant'", "Keyword GRANT is not allowed in run_select."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSelect(tt.sql)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}
