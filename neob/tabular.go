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
	"encoding/base64"
	"reflect"

	jsoniter "github.com/json-iterator/go"
)

var tabularJSONAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// DataColumn is the schema of one tabular column.
type DataColumn struct {
	Name          string `json:"name"`
	TypeName      string `json:"typeName"`
	AllowNull     bool   `json:"allowNull"`
	AutoIncrement bool   `json:"autoIncrement"`
	Unique        bool   `json:"unique"`
	ReadOnly      bool   `json:"readOnly"`
}

// DataTable is a named, schema-carrying row set. Rows hold one cell per
// column; a nil cell is a null.
type DataTable struct {
	Name    string       `json:"name"`
	Columns []DataColumn `json:"columns"`
	Rows    [][]any      `json:"rows"`
}

// DataSet is a named collection of tables.
type DataSet struct {
	Name   string
	Tables []*DataTable
}

// Column schema flag bits.
const (
	columnAllowNull     byte = 1 << 0
	columnAutoIncrement byte = 1 << 1
	columnUnique        byte = 1 << 2
	columnReadOnly      byte = 1 << 3
)

// writeDataTablePayload encodes a table, prefixed with the encoding
// selector byte. The binary form preserves cell types exactly through the
// graph walk; the JSON form is a portable text rendering whose numeric
// cells decode as float64.
func writeDataTablePayload(ctx *WriteContext, v reflect.Value) {
	table := v.Interface().(DataTable)
	if ctx.tabularBinary {
		ctx.buffer.WriteByte_(tabularBinary)
		writeTableBinary(ctx, &table)
		return
	}
	ctx.buffer.WriteByte_(tabularJSON)
	writeTableJSON(ctx, &table)
}

func writeTableBinary(ctx *WriteContext, table *DataTable) {
	buf := ctx.buffer
	buf.WriteString(table.Name)
	buf.WriteLength(len(table.Columns))
	for _, col := range table.Columns {
		buf.WriteString(col.Name)
		buf.WriteString(col.TypeName)
		flags := byte(0)
		if col.AllowNull {
			flags |= columnAllowNull
		}
		if col.AutoIncrement {
			flags |= columnAutoIncrement
		}
		if col.Unique {
			flags |= columnUnique
		}
		if col.ReadOnly {
			flags |= columnReadOnly
		}
		buf.WriteByte_(flags)
	}
	buf.WriteLength(len(table.Rows))
	for _, row := range table.Rows {
		if ctx.HasError() {
			return
		}
		if len(row) != len(table.Columns) {
			ctx.SetError(SerializationErrorf("neob: row has %d cells, table %q has %d columns",
				len(row), table.Name, len(table.Columns)))
			return
		}
		for _, cell := range row {
			writeValue(ctx, reflect.ValueOf(cell))
		}
	}
}

// writeTableJSON emits the portable text form: the JSON rendering travels
// base64-wrapped as a length-prefixed string inside the binary stream.
func writeTableJSON(ctx *WriteContext, table *DataTable) {
	raw, err := tabularJSONAPI.Marshal(table)
	if err != nil {
		ctx.SetError(SerializationErrorf("neob: cannot encode table %q as json: %s", table.Name, err))
		return
	}
	ctx.buffer.WriteString(base64.StdEncoding.EncodeToString(raw))
}

// readDataTablePayload decodes a table in either encoding, dispatching on
// the selector byte.
func readDataTablePayload(ctx *ReadContext, id int32) reflect.Value {
	buf := ctx.buffer
	pos := buf.ReaderIndex()
	selector := buf.ReadByte_(ctx.Err())
	if ctx.HasError() {
		return reflect.Value{}
	}
	switch selector {
	case tabularBinary:
		return readTableBinary(ctx, id)
	case tabularJSON:
		return readTableJSON(ctx, id)
	default:
		ctx.SetError(ProtocolErrorf(pos, buf.HexDumpAround(pos),
			"invalid tabular encoding selector 0x%02x", selector))
		return reflect.Value{}
	}
}

func readTableBinary(ctx *ReadContext, id int32) reflect.Value {
	buf := ctx.buffer
	table := &DataTable{}
	ptr := reflect.ValueOf(table)
	ctx.register(id, ptr)

	table.Name = buf.ReadString(ctx.Err())
	cols := buf.ReadLength(ctx.Err())
	if ctx.HasError() {
		return reflect.Value{}
	}
	if cols < 0 || cols > buf.Remaining() {
		ctx.SetError(DeserializationErrorf("neob: column count %d exceeds remaining %d bytes", cols, buf.Remaining()))
		return reflect.Value{}
	}
	table.Columns = make([]DataColumn, cols)
	for i := range table.Columns {
		col := &table.Columns[i]
		col.Name = buf.ReadString(ctx.Err())
		col.TypeName = buf.ReadString(ctx.Err())
		flags := buf.ReadByte_(ctx.Err())
		if ctx.HasError() {
			return reflect.Value{}
		}
		col.AllowNull = flags&columnAllowNull != 0
		col.AutoIncrement = flags&columnAutoIncrement != 0
		col.Unique = flags&columnUnique != 0
		col.ReadOnly = flags&columnReadOnly != 0
	}

	rows := buf.ReadLength(ctx.Err())
	if ctx.HasError() {
		return reflect.Value{}
	}
	if rows < 0 || (cols > 0 && rows*cols > buf.Remaining()) {
		ctx.SetError(DeserializationErrorf("neob: row count %d exceeds remaining %d bytes", rows, buf.Remaining()))
		return reflect.Value{}
	}
	table.Rows = make([][]any, rows)
	for r := range table.Rows {
		row := make([]any, cols)
		table.Rows[r] = row
		for c := 0; c < cols; c++ {
			if ctx.HasError() {
				return ptr
			}
			cell := readValue(ctx)
			if ctx.HasError() {
				return ptr
			}
			if refID, pending := isForwardRef(cell); pending {
				ctx.addPending(pendingAssign{kind: pendingIndex, target: reflect.ValueOf(row), index: c, id: refID})
				continue
			}
			if cell.IsValid() {
				row[c] = cell.Interface()
			}
		}
	}
	return ptr
}

func readTableJSON(ctx *ReadContext, id int32) reflect.Value {
	buf := ctx.buffer
	pos := buf.ReaderIndex()
	wrapped := buf.ReadString(ctx.Err())
	if ctx.HasError() {
		return reflect.Value{}
	}
	raw, err := base64.StdEncoding.DecodeString(wrapped)
	if err != nil {
		ctx.SetError(ProtocolErrorf(pos, buf.HexDumpAround(pos), "malformed base64 table payload: %s", err))
		return reflect.Value{}
	}
	table := &DataTable{}
	if err := tabularJSONAPI.Unmarshal(raw, table); err != nil {
		ctx.SetError(DeserializationErrorf("neob: cannot decode json table: %s", err))
		return reflect.Value{}
	}
	ptr := reflect.ValueOf(table)
	ctx.register(id, ptr)
	return ptr
}

// writeDataSetPayload encodes a set: name, table count, then each table
// through the graph walk so tables keep their identity and can be shared.
func writeDataSetPayload(ctx *WriteContext, v reflect.Value) {
	ds := v.Interface().(DataSet)
	ctx.buffer.WriteString(ds.Name)
	ctx.buffer.WriteLength(len(ds.Tables))
	for _, table := range ds.Tables {
		if ctx.HasError() {
			return
		}
		writeValue(ctx, reflect.ValueOf(table))
	}
}

func readDataSetPayload(ctx *ReadContext, id int32) reflect.Value {
	buf := ctx.buffer
	ds := &DataSet{}
	ptr := reflect.ValueOf(ds)
	ctx.register(id, ptr)

	ds.Name = buf.ReadString(ctx.Err())
	n := buf.ReadLength(ctx.Err())
	if ctx.HasError() {
		return reflect.Value{}
	}
	if n < 0 || n > buf.Remaining() {
		ctx.SetError(DeserializationErrorf("neob: table count %d exceeds remaining %d bytes", n, buf.Remaining()))
		return reflect.Value{}
	}
	ds.Tables = make([]*DataTable, n)
	for i := 0; i < n; i++ {
		if ctx.HasError() {
			return ptr
		}
		tv := readValue(ctx)
		if ctx.HasError() {
			return ptr
		}
		if refID, pending := isForwardRef(tv); pending {
			ctx.addPending(pendingAssign{kind: pendingIndex, target: reflect.ValueOf(ds.Tables), index: i, id: refID})
			continue
		}
		if tv.IsValid() {
			if table, ok := tv.Interface().(*DataTable); ok {
				ds.Tables[i] = table
			} else {
				ctx.SetError(DeserializationErrorf("neob: data set slot %d holds %s, not a table", i, tv.Type()))
				return ptr
			}
		}
	}
	return ptr
}
