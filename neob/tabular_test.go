// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package neob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable() *DataTable {
	return &DataTable{
		Name: "users",
		Columns: []DataColumn{
			{Name: "id", TypeName: "int32", AutoIncrement: true, Unique: true},
			{Name: "name", TypeName: "string", AllowNull: true},
		},
		Rows: [][]any{
			{int32(1), "ada"},
			{int32(2), nil},
		},
	}
}

func TestDataTableBinaryRoundTrip(t *testing.T) {
	s := newTestSerializer(WithTabularBinaryEncoding(true))
	got := roundTrip(t, s, sampleTable()).(*DataTable)

	require.Equal(t, "users", got.Name)
	require.Equal(t, sampleTable().Columns, got.Columns)
	require.Len(t, got.Rows, 2)
	// The binary encoding preserves cell types exactly.
	assert.Equal(t, int32(1), got.Rows[0][0])
	assert.Equal(t, "ada", got.Rows[0][1])
	assert.Equal(t, int32(2), got.Rows[1][0])
	assert.Nil(t, got.Rows[1][1])
}

func TestDataTableJSONRoundTrip(t *testing.T) {
	s := newTestSerializer() // JSON is the default tabular encoding
	data, err := s.Serialize(sampleTable())
	require.NoError(t, err)
	// The JSON rendering travels base64-wrapped, never as raw text.
	assert.NotContains(t, string(data), `"name"`)

	got := roundTrip(t, s, sampleTable()).(*DataTable)

	require.Equal(t, "users", got.Name)
	require.Equal(t, sampleTable().Columns, got.Columns)
	require.Len(t, got.Rows, 2)
	// JSON numbers come back as float64; that is the documented trade-off.
	assert.Equal(t, float64(1), got.Rows[0][0])
	assert.Equal(t, "ada", got.Rows[0][1])
	assert.Nil(t, got.Rows[1][1])
}

func TestDataTableRowShapeMismatch(t *testing.T) {
	s := newTestSerializer(WithTabularBinaryEncoding(true))
	bad := &DataTable{
		Name:    "bad",
		Columns: []DataColumn{{Name: "only", TypeName: "int32"}},
		Rows:    [][]any{{int32(1), int32(2)}},
	}
	_, err := s.Serialize(bad)
	require.Error(t, err)
	require.Contains(t, err.Error(), "columns")
}

func TestDataSetRoundTripSharesTables(t *testing.T) {
	s := newTestSerializer(WithTabularBinaryEncoding(true))
	shared := sampleTable()
	ds := &DataSet{Name: "catalog", Tables: []*DataTable{shared, shared}}

	got := roundTrip(t, s, ds).(*DataSet)
	require.Equal(t, "catalog", got.Name)
	require.Len(t, got.Tables, 2)
	require.Same(t, got.Tables[0], got.Tables[1])
	require.Equal(t, "users", got.Tables[0].Name)
}

func TestEmptyDataTable(t *testing.T) {
	s := newTestSerializer(WithTabularBinaryEncoding(true))
	got := roundTrip(t, s, &DataTable{Name: "empty"}).(*DataTable)
	require.Equal(t, "empty", got.Name)
	require.Empty(t, got.Columns)
	require.Empty(t, got.Rows)
}
