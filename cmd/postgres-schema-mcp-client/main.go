/*-------------------------------------------------------------------------
 *
 * Postgres Schema MCP Server
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
)

var (
	serverURL  string
	serverBin  string
	token      string
	schemaName string
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "postgres-schema-mcp-client",
	Short: "Exercise a postgres-schema-mcp server end to end",
	Long: `postgres-schema-mcp-client connects to a postgres-schema-mcp server, lists its
tools and runs one call of each against the demo schema.

By default it starts the server binary itself and talks to it over stdio;
the server reads its usual configuration and environment (PGUSER etc.).
With --url it talks to a running server over HTTP instead.`,
	Args: cobra.NoArgs,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVar(&serverURL, "url", "", "HTTP endpoint of a running server (e.g. http://localhost:3333/)")
	rootCmd.Flags().StringVar(&serverBin, "server", "postgres-schema-mcp", "Server binary to start in stdio mode")
	rootCmd.Flags().StringVar(&token, "token", "", "Bearer token for HTTP servers with authentication enabled")
	rootCmd.Flags().StringVar(&schemaName, "schema", "mcp_demo", "Schema holding the demo tables")
	rootCmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Overall time limit")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// bearerTransport adds an Authorization header to every request
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(req)
}

func newTransport() mcp.Transport {
	if serverURL == "" {
		cmd := exec.Command(serverBin)
		cmd.Stderr = os.Stderr
		return &mcp.CommandTransport{Command: cmd}
	}

	httpClient := &http.Client{}
	if token != "" {
		httpClient.Transport = &bearerTransport{token: token, base: http.DefaultTransport}
	}
	return &mcp.StreamableClientTransport{Endpoint: serverURL, HTTPClient: httpClient}
}

// demoCalls are run in order, one per tool
func demoCalls(schema string) []*mcp.CallToolParams {
	return []*mcp.CallToolParams{
		{Name: "list_tables", Arguments: map[string]any{"schema": schema}},
		{Name: "describe_table", Arguments: map[string]any{"table": "clients", "schema": schema}},
		{Name: "sample_rows", Arguments: map[string]any{"table": "deals", "schema": schema, "limit": 3}},
		{Name: "run_select", Arguments: map[string]any{
			"sql": fmt.Sprintf("SELECT c.name, d.deal_name, d.amount FROM %[1]s.deals d "+
				"JOIN %[1]s.clients c ON c.client_id = d.client_id ORDER BY d.deal_id", schema),
			"max_rows": 10,
		}},
	}
}

func run(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	client := mcp.NewClient(&mcp.Implementation{Name: "postgres-schema-mcp-client", Version: "0.1.0"}, nil)
	session, err := client.Connect(ctx, newTransport(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer session.Close()

	out := cmd.OutOrStdout()

	tools, err := session.ListTools(ctx, nil)
	if err != nil {
		return fmt.Errorf("tools/list failed: %w", err)
	}
	fmt.Fprintln(out, "=== tools ===")
	for _, tool := range tools.Tools {
		fmt.Fprintf(out, "- %s: %s\n", tool.Name, tool.Description)
	}

	failed := 0
	for _, params := range demoCalls(schemaName) {
		argsJSON, _ := json.Marshal(params.Arguments)
		fmt.Fprintf(out, "\n=== %s(%s) ===\n", params.Name, argsJSON)

		result, err := session.CallTool(ctx, params)
		if err != nil {
			return fmt.Errorf("%s failed: %w", params.Name, err)
		}
		if result.IsError {
			failed++
		}
		printContent(out, result)
	}

	if failed > 0 {
		return fmt.Errorf("%d tool call(s) returned an error", failed)
	}
	return nil
}

func printContent(out io.Writer, result *mcp.CallToolResult) {
	if result.IsError {
		fmt.Fprint(out, "ERROR: ")
	}
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			fmt.Fprintln(out, text.Text)
			continue
		}
		data, err := json.MarshalIndent(content, "", "  ")
		if err != nil {
			fmt.Fprintf(out, "%v\n", content)
			continue
		}
		fmt.Fprintln(out, string(data))
	}
}
