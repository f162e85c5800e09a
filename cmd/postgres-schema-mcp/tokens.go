/*-------------------------------------------------------------------------
 *
 * Postgres Schema MCP Server
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"postgres-schema-mcp/internal/auth"
)

func newTokenCommand() *cobra.Command {
	var (
		note   string
		expiry string
	)

	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API tokens for the HTTP transport",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create a new API token and print it once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			var expiresIn time.Duration
			switch {
			case expiry == "never":
				expiresIn = -1
			case expiry != "":
				var err error
				if expiresIn, err = parseDuration(expiry); err != nil {
					return fmt.Errorf("invalid expiry duration: %w", err)
				}
			}
			promptIn := io.Reader(nil)
			if !cmd.Flags().Changed("note") || expiry == "" {
				promptIn = cmd.InOrStdin()
			}
			return addTokenCommand(cmd.OutOrStdout(), promptIn, resolveTokenFile(), note, expiresIn)
		},
	}
	addCmd.Flags().StringVar(&note, "note", "", "Annotation for the new token")
	addCmd.Flags().StringVar(&expiry, "expires", "",
		"Token expiry duration: '30d', '1y', '2w', '12h', 'never' (prompted when omitted)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List API tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return listTokensCommand(cmd.OutOrStdout(), resolveTokenFile())
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <id|hash-prefix>",
		Short: "Remove an API token by ID or hash prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return removeTokenCommand(cmd.OutOrStdout(), resolveTokenFile(), args[0])
		},
	}

	tokenCmd.AddCommand(addCmd, listCmd, removeCmd)
	return tokenCmd
}

// resolveTokenFile returns --token-file or the default next to the binary
func resolveTokenFile() string {
	if tokenFile != "" {
		return tokenFile
	}
	execPath, err := os.Executable()
	if err != nil {
		execPath = os.Args[0]
	}
	return auth.GetDefaultTokenPath(execPath)
}

// addTokenCommand creates a token. A zero expiresIn prompts for a
// duration, a negative one never expires. prompts are read from in when
// it is non-nil.
func addTokenCommand(out io.Writer, in io.Reader, path, annotation string, expiresIn time.Duration) error {
	var store *auth.TokenStore
	if _, err := os.Stat(path); os.IsNotExist(err) {
		store = auth.NewTokenStore()
		fmt.Fprintf(out, "Creating new token file: %s\n", path)
	} else {
		var err error
		store, err = auth.LoadTokenStore(path)
		if err != nil {
			return fmt.Errorf("failed to load token file: %w", err)
		}
	}

	token, err := auth.GenerateToken()
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}
	hash := auth.HashToken(token)

	var reader *bufio.Reader
	if in != nil {
		reader = bufio.NewReader(in)
	}
	prompt := func(question string) string {
		if reader == nil {
			return ""
		}
		fmt.Fprint(out, question)
		input, _ := reader.ReadString('\n')
		return strings.TrimSpace(input)
	}

	if annotation == "" {
		annotation = prompt("Enter annotation/note for this token (optional): ")
	}

	var expiresAt *time.Time
	if expiresIn == 0 {
		input := prompt("Enter expiry duration (e.g., '30d', '1y', or 'never'): ")
		if input != "" && input != "never" {
			if expiresIn, err = parseDuration(input); err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
		}
	}
	if expiresIn > 0 {
		expiry := time.Now().Add(expiresIn)
		expiresAt = &expiry
	}

	tokenID := fmt.Sprintf("token-%d", time.Now().UnixNano())
	if err := store.AddToken(tokenID, hash, annotation, expiresAt); err != nil {
		return fmt.Errorf("failed to add token: %w", err)
	}
	if err := auth.SaveTokenStore(path, store); err != nil {
		return fmt.Errorf("failed to save token file: %w", err)
	}

	rule := strings.Repeat("=", 70)
	fmt.Fprintln(out, "\n"+rule)
	fmt.Fprintln(out, "Token created successfully!")
	fmt.Fprintln(out, rule)
	fmt.Fprintf(out, "\nToken: %s\n", token)
	fmt.Fprintf(out, "Hash:  %s...\n", hash[:16])
	fmt.Fprintf(out, "ID:    %s\n", tokenID)
	if annotation != "" {
		fmt.Fprintf(out, "Note:  %s\n", annotation)
	}
	if expiresAt != nil {
		fmt.Fprintf(out, "Expires: %s\n", expiresAt.Format(time.RFC3339))
	} else {
		fmt.Fprintln(out, "Expires: Never")
	}
	fmt.Fprintln(out, rule)
	fmt.Fprintln(out, "\nIMPORTANT: Save this token securely - it will not be shown again!")
	fmt.Fprintln(out, "Use it in API requests with: Authorization: Bearer <token>")
	fmt.Fprintln(out, rule)

	return nil
}

// removeTokenCommand handles the remove-token command
func removeTokenCommand(out io.Writer, path, identifier string) error {
	store, err := auth.LoadTokenStore(path)
	if err != nil {
		return fmt.Errorf("failed to load token file: %w", err)
	}

	removed, err := store.RemoveToken(identifier)
	if err != nil {
		return fmt.Errorf("failed to remove token: %w", err)
	}
	if !removed {
		return fmt.Errorf("token not found: %s", identifier)
	}

	if err := auth.SaveTokenStore(path, store); err != nil {
		return fmt.Errorf("failed to save token file: %w", err)
	}

	fmt.Fprintf(out, "Token removed successfully: %s\n", identifier)
	return nil
}

// listTokensCommand handles the list-tokens command
func listTokensCommand(out io.Writer, path string) error {
	store, err := auth.LoadTokenStore(path)
	if err != nil {
		return fmt.Errorf("failed to load token file: %w", err)
	}

	tokens := store.ListTokens()
	if len(tokens) == 0 {
		fmt.Fprintln(out, "No tokens found.")
		return nil
	}

	fmt.Fprintln(out, "\nAPI Tokens:")
	fmt.Fprintln(out, strings.Repeat("=", 80))
	fmt.Fprintf(out, "%-26s %-14s %-18s %-8s %s\n", "ID", "Hash Prefix", "Expires", "Status", "Annotation")
	fmt.Fprintln(out, strings.Repeat("-", 80))

	for _, token := range tokens {
		status := "Active"
		if token.Expired {
			status = "EXPIRED"
		}

		expiryStr := "Never"
		if token.ExpiresAt != nil {
			expiryStr = token.ExpiresAt.Format("2006-01-02 15:04")
		}

		annotation := token.Annotation
		if len(annotation) > 20 {
			annotation = annotation[:17] + "..."
		}

		fmt.Fprintf(out, "%-26s %-14s %-18s %-8s %s\n",
			token.ID, token.HashPrefix, expiryStr, status, annotation)
	}
	fmt.Fprintln(out, strings.Repeat("=", 80))

	return nil
}

// parseDuration parses durations like "30d", "1y", "2w", "12h"
func parseDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration format")
	}

	numStr, unit := s[:len(s)-1], s[len(s)-1]
	num, err := strconv.Atoi(numStr)
	if err != nil || num <= 0 {
		return 0, fmt.Errorf("invalid number in duration: %q", numStr)
	}

	day := 24 * time.Hour
	switch unit {
	case 'h':
		return time.Duration(num) * time.Hour, nil
	case 'd':
		return time.Duration(num) * day, nil
	case 'w':
		return time.Duration(num) * 7 * day, nil
	case 'm':
		return time.Duration(num) * 30 * day, nil
	case 'y':
		return time.Duration(num) * 365 * day, nil
	default:
		return 0, fmt.Errorf("invalid duration unit: %c (use h, d, w, m, or y)", unit)
	}
}
