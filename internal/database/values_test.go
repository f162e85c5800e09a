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
	"math"
	"math/big"
	"net/netip"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeValue(t *testing.T) {
	ts := time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		input    interface{}
		expected interface{}
	}{
		{"nil", nil, nil},
		{"string", "hello", "hello"},
		{"int32", int32(42), int32(42)},
		{"int64", int64(-17), int64(-17)},
		{"bool", true, true},
		{"float64", 3.5, 3.5},
		{"NaN", math.NaN(), "NaN"},
		{"positive infinity", math.Inf(1), "Infinity"},
		{"negative infinity", float32(math.Inf(-1)), "-Infinity"},
		{"bytea", []byte("bytes"), "bytes"},
		{"uuid", [16]byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0, 0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0},
			"12345678-9abc-def0-1234-56789abcdef0"},
		{"timestamp", ts, "2024-06-15T10:30:00Z"},
		{"numeric", pgtype.Numeric{Int: big.NewInt(12345), Exp: -2, Valid: true}, "123.45"},
		{"numeric null", pgtype.Numeric{}, nil},
		{"numeric NaN", pgtype.Numeric{NaN: true, Valid: true}, "NaN"},
		{"inet", netip.MustParsePrefix("10.0.0.1/32"), "10.0.0.1/32"},
		{"array", []interface{}{[]byte("a"), int64(1), nil}, []interface{}{"a", int64(1), nil}},
		{"json object", map[string]interface{}{"when": ts, "n": 1.5},
			map[string]interface{}{"when": "2024-06-15T10:30:00Z", "n": 1.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeValue(tt.input))
		})
	}
}
