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
	"encoding/json"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"postgres-schema-mcp/internal/config"
	"postgres-schema-mcp/internal/database"
	"postgres-schema-mcp/internal/mcp"
)

type mockQuerier struct {
	mock.Mock
}

func (m *mockQuerier) Query(ctx context.Context, sql string, args ...interface{}) (*database.Result, error) {
	called := m.Called(ctx, sql, args)
	var result *database.Result
	if r := called.Get(0); r != nil {
		result = r.(*database.Result)
	}
	return result, called.Error(1)
}

func testToolsConfig() config.ToolsConfig {
	return config.ToolsConfig{
		DefaultSchema: "mcp_demo",
		SampleRows:    config.SampleRowsLimit{DefaultLimit: 10, MaxLimit: 100},
		RunSelect:     config.RunSelectLimit{DefaultMaxRows: 100, MaxMaxRows: 500},
	}
}

func newTestRegistry(q *mockQuerier) *Registry {
	return NewSchemaRegistry(q, testToolsConfig())
}

func resultOf(columns []string, rows ...[]interface{}) *database.Result {
	result := &database.Result{Columns: columns, Rows: make([]database.Row, 0, len(rows))}
	for _, values := range rows {
		result.Rows = append(result.Rows, database.NewRow(columns, values))
	}
	return result
}

// call runs a tool and returns its single text block
func call(t *testing.T, registry *Registry, name string, args map[string]interface{}) mcp.ToolResponse {
	t.Helper()
	resp, err := registry.Execute(context.Background(), name, args)
	require.NoError(t, err)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "text", resp.Content[0].Type)
	return resp
}

func TestSchemaRegistryListing(t *testing.T) {
	registry := newTestRegistry(&mockQuerier{})

	var names []string
	for _, tool := range registry.List() {
		names = append(names, tool.Name)
		assert.Equal(t, "object", tool.InputSchema.Type)
		assert.NotEmpty(t, tool.Description)
	}
	assert.Equal(t, []string{"list_tables", "describe_table", "sample_rows", "run_select"}, names)

	tool, _ := registry.Get("sample_rows")
	assert.Equal(t, []string{"table"}, tool.Definition.InputSchema.Required)
	tool, _ = registry.Get("run_select")
	assert.Equal(t, []string{"sql"}, tool.Definition.InputSchema.Required)
	tool, _ = registry.Get("list_tables")
	assert.Empty(t, tool.Definition.InputSchema.Required)
}

func TestListTables(t *testing.T) {
	q := &mockQuerier{}
	q.On("Query", mock.Anything, listTablesSQL, []interface{}{"public"}).Return(
		resultOf([]string{"table_schema", "table_name"},
			[]interface{}{"public", "customers"},
			[]interface{}{"public", "orders"}), nil)

	resp := call(t, newTestRegistry(q), "list_tables", map[string]interface{}{"schema": "public"})
	assert.False(t, resp.IsError)
	assert.Equal(t, `[
  {
    "table_schema": "public",
    "table_name": "customers"
  },
  {
    "table_schema": "public",
    "table_name": "orders"
  }
]`, resp.Content[0].Text)
	q.AssertExpectations(t)
}

func TestListTablesDefaultSchemaAndEmpty(t *testing.T) {
	q := &mockQuerier{}
	q.On("Query", mock.Anything, listTablesSQL, []interface{}{"mcp_demo"}).Return(
		resultOf([]string{"table_schema", "table_name"}), nil)

	resp := call(t, newTestRegistry(q), "list_tables", nil)
	assert.False(t, resp.IsError)
	assert.Equal(t, "[]", resp.Content[0].Text)
	q.AssertExpectations(t)
}

func TestListTablesDatabaseError(t *testing.T) {
	q := &mockQuerier{}
	q.On("Query", mock.Anything, listTablesSQL, mock.Anything).Return(nil,
		&database.Error{Err: &pgconn.PgError{Code: "28P01", Message: `password authentication failed for user "app"`}})

	resp := call(t, newTestRegistry(q), "list_tables", nil)
	assert.True(t, resp.IsError)
	assert.Equal(t, `password authentication failed for user "app"`, resp.Content[0].Text)
}

func TestDescribeTable(t *testing.T) {
	columns := []string{"column_name", "data_type", "is_nullable", "column_default"}
	q := &mockQuerier{}
	q.On("Query", mock.Anything, describeTableSQL, []interface{}{"sales", "orders"}).Return(
		resultOf(columns,
			[]interface{}{"id", "integer", "NO", "nextval('orders_id_seq'::regclass)"},
			[]interface{}{"placed_at", "timestamp with time zone", "YES", nil},
			[]interface{}{"total", "numeric", "YES", nil}), nil)

	resp := call(t, newTestRegistry(q), "describe_table",
		map[string]interface{}{"table": "sales.orders", "schema": "ignored"})
	require.False(t, resp.IsError, resp.Content[0].Text)

	var got struct {
		Schema  string                   `json:"schema"`
		Table   string                   `json:"table"`
		Columns []map[string]interface{} `json:"columns"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.Content[0].Text), &got))
	assert.Equal(t, "sales", got.Schema)
	assert.Equal(t, "orders", got.Table)
	require.Len(t, got.Columns, 3)
	assert.Equal(t, "id", got.Columns[0]["column_name"])
	assert.Equal(t, "total", got.Columns[2]["column_name"])
	assert.Nil(t, got.Columns[1]["column_default"])
	assert.Contains(t, resp.Content[0].Text, "nextval('orders_id_seq'::regclass)", "no HTML escaping")
	q.AssertExpectations(t)
}

func TestDescribeTableUnknown(t *testing.T) {
	q := &mockQuerier{}
	q.On("Query", mock.Anything, describeTableSQL, []interface{}{"mcp_demo", "nope"}).Return(
		&database.Result{Columns: []string{"column_name"}}, nil)

	resp := call(t, newTestRegistry(q), "describe_table", map[string]interface{}{"table": "nope"})
	assert.False(t, resp.IsError)
	assert.JSONEq(t, `{"schema":"mcp_demo","table":"nope","columns":[]}`, resp.Content[0].Text)
}

func TestDescribeTableEmptyNameParts(t *testing.T) {
	tests := []struct {
		table  string
		schema string
		name   string
	}{
		{".orders", "", "orders"},
		{"sales.", "sales", ""},
		{"", "mcp_demo", ""},
	}

	for _, tt := range tests {
		t.Run(tt.table, func(t *testing.T) {
			q := &mockQuerier{}
			q.On("Query", mock.Anything, describeTableSQL, []interface{}{tt.schema, tt.name}).Return(
				&database.Result{Columns: []string{"column_name"}}, nil)

			resp := call(t, newTestRegistry(q), "describe_table", map[string]interface{}{"table": tt.table})
			require.False(t, resp.IsError, resp.Content[0].Text)

			var got TableDescription
			require.NoError(t, json.Unmarshal([]byte(resp.Content[0].Text), &got))
			assert.Equal(t, tt.schema, got.Schema)
			assert.Equal(t, tt.name, got.Table)
			assert.NotNil(t, got.Columns)
			assert.Empty(t, got.Columns)
			assert.Contains(t, resp.Content[0].Text, `"columns": []`)
			q.AssertExpectations(t)
		})
	}
}

func TestDescribeTableMissingTable(t *testing.T) {
	q := &mockQuerier{}

	resp := call(t, newTestRegistry(q), "describe_table", map[string]interface{}{})
	assert.True(t, resp.IsError)
	assert.Equal(t, "Missing or invalid 'table' argument", resp.Content[0].Text)
	q.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything)
}

func TestSampleRows(t *testing.T) {
	q := &mockQuerier{}
	q.On("Query", mock.Anything, `SELECT * FROM "mcp_demo"."orders" LIMIT $1`, []interface{}{3}).Return(
		resultOf([]string{"id", "note"},
			[]interface{}{int32(1), "<b>first</b>"}), nil)

	resp := call(t, newTestRegistry(q), "sample_rows", map[string]interface{}{"table": "orders", "limit": 3.0})
	require.False(t, resp.IsError, resp.Content[0].Text)
	assert.Equal(t, `{
  "schema": "mcp_demo",
  "table": "orders",
  "limit": 3,
  "rows": [
    {
      "id": 1,
      "note": "<b>first</b>"
    }
  ]
}`, resp.Content[0].Text)
	q.AssertExpectations(t)
}

func TestSampleRowsLimitClamping(t *testing.T) {
	tests := []struct {
		name  string
		limit interface{}
		want  int
	}{
		{"absent", nil, 10},
		{"zero", 0.0, 10},
		{"negative", -5.0, 10},
		{"too large", 1000.0, 100},
		{"fraction", 7.8, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &mockQuerier{}
			q.On("Query", mock.Anything, mock.Anything, []interface{}{tt.want}).Return(
				resultOf([]string{"id"}), nil)

			args := map[string]interface{}{"table": "orders"}
			if tt.limit != nil {
				args["limit"] = tt.limit
			}
			resp := call(t, newTestRegistry(q), "sample_rows", args)
			require.False(t, resp.IsError, resp.Content[0].Text)

			var got SampleResult
			require.NoError(t, json.Unmarshal([]byte(resp.Content[0].Text), &got))
			assert.Equal(t, tt.want, got.Limit)
			q.AssertExpectations(t)
		})
	}
}

func TestSampleRowsQuotesIdentifiers(t *testing.T) {
	q := &mockQuerier{}
	q.On("Query", mock.Anything, `SELECT * FROM "mcp_demo"."t; DROP TABLE x" LIMIT $1`, []interface{}{10}).Return(
		nil, &database.Error{Err: &pgconn.PgError{Code: "42P01", Message: `relation "mcp_demo.t; DROP TABLE x" does not exist`}})

	resp := call(t, newTestRegistry(q), "sample_rows", map[string]interface{}{"table": "t; DROP TABLE x"})
	assert.True(t, resp.IsError)
	assert.Equal(t, `relation "mcp_demo.t; DROP TABLE x" does not exist`, resp.Content[0].Text)
	q.AssertExpectations(t)
}

func TestSampleRowsInvalidLimit(t *testing.T) {
	q := &mockQuerier{}

	resp := call(t, newTestRegistry(q), "sample_rows", map[string]interface{}{"table": "orders", "limit": "ten"})
	assert.True(t, resp.IsError)
	assert.Equal(t, "Error: limit must be a number", resp.Content[0].Text)
	q.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunSelect(t *testing.T) {
	q := &mockQuerier{}
	q.On("Query", mock.Anything, "SELECT * FROM (SELECT 1 AS x) AS sub LIMIT $1", []interface{}{500}).Return(
		resultOf([]string{"x"}, []interface{}{int32(1)}), nil)

	resp := call(t, newTestRegistry(q), "run_select",
		map[string]interface{}{"sql": "  SELECT 1 AS x \n", "max_rows": 500.0})
	require.False(t, resp.IsError, resp.Content[0].Text)
	assert.Equal(t, `{
  "sql": "SELECT 1 AS x",
  "maxRows": 500,
  "columns": [
    "x"
  ],
  "rows": [
    {
      "x": 1
    }
  ]
}`, resp.Content[0].Text)
	q.AssertExpectations(t)
}

func TestRunSelectMaxRowsClamping(t *testing.T) {
	tests := []struct {
		name    string
		maxRows interface{}
		want    int
	}{
		{"absent", nil, 100},
		{"zero", 0.0, 100},
		{"too large", 10000.0, 500},
		{"in range", 25.0, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &mockQuerier{}
			q.On("Query", mock.Anything, mock.Anything, []interface{}{tt.want}).Return(
				resultOf([]string{"x"}), nil)

			args := map[string]interface{}{"sql": "SELECT 1 AS x"}
			if tt.maxRows != nil {
				args["max_rows"] = tt.maxRows
			}
			resp := call(t, newTestRegistry(q), "run_select", args)
			require.False(t, resp.IsError, resp.Content[0].Text)

			var got SelectResult
			require.NoError(t, json.Unmarshal([]byte(resp.Content[0].Text), &got))
			assert.Equal(t, tt.want, got.MaxRows)
			assert.Equal(t, []string{"x"}, got.Columns)
			assert.Empty(t, got.Rows)
			q.AssertExpectations(t)
		})
	}
}

func TestRunSelectRejections(t *testing.T) {
	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"update", map[string]interface{}{"sql": "UPDATE foo SET x=1"}, "Only SELECT queries are allowed in run_select."},
		{"multiple statements", map[string]interface{}{"sql": "SELECT 1; SELECT 2"}, "Multiple statements are not allowed; omit the semicolon."},
		{"drop keyword", map[string]interface{}{"sql": "SELECT * FROM t -- DROP TABLE t"}, "Keyword DROP is not allowed in run_select."},
		{"missing sql", map[string]interface{}{}, "Missing or invalid 'sql' argument"},
		{"non-string sql", map[string]interface{}{"sql": 1.0}, "Missing or invalid 'sql' argument"},
		{"bad max_rows", map[string]interface{}{"sql": "SELECT 1", "max_rows": "all"}, "Error: max_rows must be a number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &mockQuerier{}

			resp := call(t, newTestRegistry(q), "run_select", tt.args)
			assert.True(t, resp.IsError)
			assert.Equal(t, tt.want, resp.Content[0].Text)
			q.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestRunSelectDatabaseError(t *testing.T) {
	q := &mockQuerier{}
	q.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(nil,
		&database.Error{Err: &pgconn.PgError{Code: "42703", Message: `column "nope" does not exist`}})

	resp := call(t, newTestRegistry(q), "run_select", map[string]interface{}{"sql": "SELECT nope FROM t"})
	assert.True(t, resp.IsError)
	assert.Equal(t, `column "nope" does not exist`, resp.Content[0].Text)
}

func TestRunSelectPassesContext(t *testing.T) {
	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "request")

	q := &mockQuerier{}
	q.On("Query", mock.MatchedBy(func(c context.Context) bool {
		return c.Value(ctxKey{}) == "request"
	}), mock.Anything, mock.Anything).Return(resultOf([]string{"x"}), nil)

	resp, err := newTestRegistry(q).Execute(ctx, "run_select", map[string]interface{}{"sql": "SELECT 1 AS x"})
	require.NoError(t, err)
	assert.False(t, resp.IsError)
	q.AssertExpectations(t)
}

func TestNewSchemaRegistryDefaultSchema(t *testing.T) {
	q := &mockQuerier{}
	q.On("Query", mock.Anything, listTablesSQL, []interface{}{config.DefaultSchema}).Return(
		resultOf([]string{"table_schema", "table_name"}), nil)

	cfg := testToolsConfig()
	cfg.DefaultSchema = ""
	call(t, NewSchemaRegistry(q, cfg), "list_tables", nil)
	q.AssertExpectations(t)
}

func TestFormatJSON(t *testing.T) {
	text, err := FormatJSON(map[string]interface{}{"a": "<&>"})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": \"<&>\"\n}", text)

	_, err = FormatJSON(func() {})
	assert.Error(t, err)
}
