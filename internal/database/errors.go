/*-------------------------------------------------------------------------
 *
 * Postgres Schema MCP Server
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotConnected is returned when Query is called before Connect
var ErrNotConnected = errors.New("database client is not connected")

// Error wraps a failure reported by the driver or the server. Its message
// is the server's own text so callers can pass it through unchanged.
type Error struct {
	Err error
}

func newError(err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Err: err}
}

func (e *Error) Error() string {
	var pgErr *pgconn.PgError
	if errors.As(e.Err, &pgErr) {
		return pgErr.Message
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// SQLState returns the five-character SQLSTATE code, or "" when the
// failure did not come from the server
func (e *Error) SQLState() string {
	var pgErr *pgconn.PgError
	if errors.As(e.Err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
