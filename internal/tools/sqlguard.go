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
)

// ForbiddenKeywords are rejected anywhere in a run_select statement,
// checked in this order. Matching is by substring, so identifiers such as
// created_at are rejected too.
var ForbiddenKeywords = []string{
	"INSERT",
	"UPDATE",
	"DELETE",
	"ALTER",
	"DROP",
	"TRUNCATE",
	"CREATE",
	"GRANT",
	"REVOKE",
}

// CheckSelect applies the run_select text rules to an already trimmed
// statement. The transaction is read-only regardless.
func CheckSelect(sql string) error {
	normalized := strings.ToUpper(strings.TrimSpace(strings.TrimLeft(sql, "(")))

	if !strings.HasPrefix(normalized, "SELECT") {
		return newValidationError("sql", "Only SELECT queries are allowed in run_select.")
	}
	if strings.Contains(sql, ";") {
		return newValidationError("sql", "Multiple statements are not allowed; omit the semicolon.")
	}
	for _, kw := range ForbiddenKeywords {
		if strings.Contains(normalized, kw) {
			return newValidationError("sql", "Keyword %s is not allowed in run_select.", kw)
		}
	}
	return nil
}
