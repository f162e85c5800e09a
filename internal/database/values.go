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
	"database/sql/driver"
	"fmt"
	"math"
	"net"
	"net/netip"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// NormalizeValue converts a value decoded by pgx into something
// encoding/json renders the way a client expects: UUIDs and numerics as
// strings, timestamps as RFC 3339, bytea as text. Arrays and JSON
// documents are converted element by element.
func NormalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return val
	case float32:
		return normalizeFloat(float64(val))
	case float64:
		return normalizeFloat(val)
	case []byte:
		return string(val)
	case [16]byte:
		return formatUUID(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case time.Duration:
		return val.String()
	case pgtype.Numeric:
		return valuerString(val)
	case pgtype.Interval:
		return valuerString(val)
	case pgtype.Time:
		return valuerString(val)
	case netip.Prefix:
		return val.String()
	case netip.Addr:
		return val.String()
	case net.IPNet:
		return val.String()
	case *net.IPNet:
		return val.String()
	case net.HardwareAddr:
		return val.String()
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, elem := range val {
			out[i] = NormalizeValue(elem)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, elem := range val {
			out[k] = NormalizeValue(elem)
		}
		return out
	case driver.Valuer:
		return valuerString(val)
	case fmt.Stringer:
		return val.String()
	default:
		return val
	}
}

// normalizeFloat keeps finite floats as numbers; NaN and the infinities
// have no JSON encoding and are rendered the way PostgreSQL spells them
func normalizeFloat(f float64) interface{} {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return f
}

func valuerString(v driver.Valuer) interface{} {
	dv, err := v.Value()
	if err != nil || dv == nil {
		return nil
	}
	switch out := dv.(type) {
	case string:
		return out
	case []byte:
		return string(out)
	default:
		return NormalizeValue(out)
	}
}

func formatUUID(b [16]byte) string {
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}
