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

// writeListPayload encodes a general list: element count followed by each
// element through the full graph walk, so elements carry their own markers,
// identity and nulls.
func writeListPayload(ctx *WriteContext, v reflect.Value) {
	n := v.Len()
	ctx.buffer.WriteLength(n)
	for i := 0; i < n && !ctx.HasError(); i++ {
		writeValue(ctx, v.Index(i))
	}
}

// readListPayload decodes a list into a freshly allocated slice of the
// resolved type. The slice is registered before any element is read so
// elements may back-reference their own container. Slots whose referent has
// not materialized are tracked explicitly by (list, index) and resolved in
// the pending passes; they are never null-coalesced.
func readListPayload(ctx *ReadContext, id int32, t reflect.Type) reflect.Value {
	buf := ctx.buffer
	n := buf.ReadLength(ctx.Err())
	if ctx.HasError() {
		return reflect.Value{}
	}
	// Every element occupies at least its one marker byte.
	if n < 0 || n > buf.Remaining() {
		ctx.SetError(DeserializationErrorf("neob: list length %d exceeds remaining %d bytes", n, buf.Remaining()))
		return reflect.Value{}
	}
	s := reflect.MakeSlice(t, n, n)
	ctx.register(id, s)
	for i := 0; i < n; i++ {
		if ctx.HasError() {
			return s
		}
		ev := readValue(ctx)
		if ctx.HasError() {
			return s
		}
		if refID, pending := isForwardRef(ev); pending {
			ctx.addPending(pendingAssign{kind: pendingIndex, target: s, index: i, id: refID})
			continue
		}
		if ev.IsValid() {
			assignCompat(s.Index(i), ev)
		}
	}
	return s
}
