/*-------------------------------------------------------------------------
 *
 * Postgres Schema MCP Server
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package tools

import (
	"encoding/json"
	"fmt"
	"math"
)

// ValidationError reports a bad argument. It is raised before any
// statement reaches the database.
type ValidationError struct {
	Param   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(param, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Param: param, Message: fmt.Sprintf(format, args...)}
}

// ValidateStringParam extracts a required string argument. The empty
// string is accepted.
func ValidateStringParam(args map[string]interface{}, name string) (string, error) {
	value, ok := args[name].(string)
	if !ok {
		return "", newValidationError(name, "Missing or invalid '%s' argument", name)
	}
	return value, nil
}

// ValidateOptionalStringParam extracts an optional string argument.
// Absent or null yields defaultValue; any other non-string is rejected.
func ValidateOptionalStringParam(args map[string]interface{}, name string, defaultValue string) (string, error) {
	raw, present := args[name]
	if !present || raw == nil {
		return defaultValue, nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", newValidationError(name, "Invalid '%s' argument: expected a string", name)
	}
	return value, nil
}

// ValidateOptionalNumberParam extracts an optional number argument. The
// boolean result is false when the argument is absent or null.
func ValidateOptionalNumberParam(args map[string]interface{}, name string) (float64, bool, error) {
	raw, present := args[name]
	if !present || raw == nil {
		return 0, false, nil
	}

	var value float64
	switch v := raw.(type) {
	case float64:
		value = v
	case float32:
		value = float64(v)
	case int:
		value = float64(v)
	case int32:
		value = float64(v)
	case int64:
		value = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false, newValidationError(name, "Error: %s must be a number", name)
		}
		value = f
	default:
		return 0, false, newValidationError(name, "Error: %s must be a number", name)
	}
	return value, true, nil
}

// ClampLimit normalizes a row cap: absent, non-finite or non-positive
// values become def, values above max become max. Fractions are
// truncated first.
func ClampLimit(value float64, present bool, def, max int) int {
	if !present || math.IsNaN(value) || math.IsInf(value, 0) {
		return def
	}
	value = math.Trunc(value)
	if value <= 0 {
		return def
	}
	if value > float64(max) {
		return max
	}
	return int(value)
}
