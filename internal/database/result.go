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
	"bytes"
	"encoding/json"
)

// Result holds the outcome of one statement
type Result struct {
	Columns []string
	Rows    []Row
}

// Row is one result row. It marshals to a JSON object whose keys follow
// the column order of the statement. When two columns share a name the
// key keeps its first position and takes the last value, matching what a
// plain object assignment would do.
type Row struct {
	keys   []string
	values map[string]interface{}
}

// NewRow builds a row from parallel column and value slices
func NewRow(columns []string, values []interface{}) Row {
	r := Row{
		keys:   make([]string, 0, len(columns)),
		values: make(map[string]interface{}, len(columns)),
	}
	for i, col := range columns {
		var v interface{}
		if i < len(values) {
			v = values[i]
		}
		r.Set(col, v)
	}
	return r
}

// Set assigns a value, appending the key if it is new
func (r *Row) Set(key string, value interface{}) {
	if r.values == nil {
		r.values = make(map[string]interface{})
	}
	if _, exists := r.values[key]; !exists {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value stored under key
func (r Row) Get(key string) (interface{}, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the distinct keys in output order
func (r Row) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Len returns the number of distinct keys
func (r Row) Len() int {
	return len(r.keys)
}

// MarshalJSON implements json.Marshaler
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := marshalNoEscape(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := marshalNoEscape(r.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalNoEscape encodes v without HTML escaping so "<" and "&" in data
// survive as written
func marshalNoEscape(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
