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

import "reflect"

// writeMapPayload encodes a map as entry count plus alternating key/value
// graph walks. Iteration order is whatever the runtime yields; consumers
// must not rely on entry order.
func writeMapPayload(ctx *WriteContext, v reflect.Value) {
	ctx.buffer.WriteLength(v.Len())
	iter := v.MapRange()
	for !ctx.HasError() && iter.Next() {
		writeValue(ctx, iter.Key())
		writeValue(ctx, iter.Value())
	}
}

// readMapPayload decodes a map of the resolved type. The map is registered
// before entries are read. Values whose referent has not materialized are
// tracked as pending (map, key) assignments; keys must always be fully
// materialized since they participate in hashing immediately.
func readMapPayload(ctx *ReadContext, id int32, t reflect.Type) reflect.Value {
	buf := ctx.buffer
	n := buf.ReadLength(ctx.Err())
	if ctx.HasError() {
		return reflect.Value{}
	}
	// Each entry carries at least two marker bytes.
	if n < 0 || n*2 > buf.Remaining() {
		ctx.SetError(DeserializationErrorf("neob: map entry count %d exceeds remaining %d bytes", n, buf.Remaining()))
		return reflect.Value{}
	}
	m := reflect.MakeMapWithSize(t, n)
	ctx.register(id, m)
	for i := 0; i < n; i++ {
		if ctx.HasError() {
			return m
		}
		kv := readValue(ctx)
		if ctx.HasError() {
			return m
		}
		if _, pending := isForwardRef(kv); pending {
			ctx.SetError(DeserializationErrorf("neob: map keys cannot forward-reference unmaterialized objects"))
			return m
		}
		if !kv.IsValid() {
			ctx.SetError(DeserializationErrorf("neob: map keys cannot be null"))
			return m
		}
		key := reflect.New(t.Key()).Elem()
		assignCompat(key, kv)

		vv := readValue(ctx)
		if ctx.HasError() {
			return m
		}
		if refID, pending := isForwardRef(vv); pending {
			ctx.addPending(pendingAssign{kind: pendingMapValue, target: m, key: key, id: refID})
			continue
		}
		val := reflect.New(t.Elem()).Elem()
		if vv.IsValid() {
			assignCompat(val, vv)
		}
		m.SetMapIndex(key, val)
	}
	return m
}
