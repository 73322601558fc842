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
	"reflect"
)

// writeValue is the recursive graph walker. Every value is preceded by
// exactly one marker. Identity is tracked by reference, not by structural
// equality: distinct but equal objects are never merged, and cycles
// terminate at the back-reference marker.
func writeValue(ctx *WriteContext, v reflect.Value) {
	if !ctx.enter() {
		return
	}
	defer ctx.leave()

	for v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if !v.IsValid() || isNilValue(v) {
		ctx.buffer.WriteByte_(MarkerNull)
		return
	}

	class := classifyType(v.Type())
	if class == classPrimitive || class == classEnum {
		// Never identity-tracked; arrays and collections never land here
		// even when their element type is primitive.
		elem := derefValue(v)
		ctx.buffer.WriteByte_(MarkerPrimitive)
		writeTypeDescriptor(ctx.buffer, ctx.table, ctx.registry.DescriptorFor(elem.Type(), ctx.includeVersions))
		writePrimitivePayload(ctx.buffer, elem, ctx.Err())
		return
	}
	if class == classUnknown {
		ctx.SetError(SerializationErrorf("neob: unsupported type %s", v.Type()))
		return
	}

	id, seen := ctx.trackIdentity(v)
	if seen {
		ctx.buffer.WriteByte_(MarkerRef)
		ctx.buffer.WriteInt32(id)
		return
	}

	ctx.buffer.WriteByte_(MarkerObject)
	ctx.buffer.WriteInt32(id)

	elem := derefValue(v)
	switch class {
	case classArray:
		writeArrayObject(ctx, elem)
	case classList:
		writeTypeDescriptor(ctx.buffer, ctx.table, ctx.registry.DescriptorFor(elem.Type(), ctx.includeVersions))
		writeListPayload(ctx, elem)
	case classMap:
		writeTypeDescriptor(ctx.buffer, ctx.table, ctx.registry.DescriptorFor(elem.Type(), ctx.includeVersions))
		writeMapPayload(ctx, elem)
	case classDataSet:
		writeTypeDescriptor(ctx.buffer, ctx.table, ctx.registry.DescriptorFor(elem.Type(), ctx.includeVersions))
		writeDataSetPayload(ctx, elem)
	case classDataTable:
		writeTypeDescriptor(ctx.buffer, ctx.table, ctx.registry.DescriptorFor(elem.Type(), ctx.includeVersions))
		writeDataTablePayload(ctx, elem)
	case classError:
		writeTypeDescriptor(ctx.buffer, ctx.table, ctx.registry.DescriptorFor(elem.Type(), ctx.includeVersions))
		writeErrorPayload(ctx, elem)
	case classReflectType:
		writeTypeDescriptor(ctx.buffer, ctx.table, ctx.registry.DescriptorFor(typeOfReflectTyp, ctx.includeVersions))
		writeReflectTypePayload(ctx, v)
	case classMemberRef:
		writeTypeDescriptor(ctx.buffer, ctx.table, ctx.registry.DescriptorFor(elem.Type(), ctx.includeVersions))
		writeMemberRefPayload(ctx, elem)
	case classCustom:
		writeTypeDescriptor(ctx.buffer, ctx.table, ctx.registry.DescriptorFor(elem.Type(), ctx.includeVersions))
		writeCustomPayload(ctx, v)
	default: // classStruct
		writeTypeDescriptor(ctx.buffer, ctx.table, ctx.registry.DescriptorFor(elem.Type(), ctx.includeVersions))
		if ctx.compactLayout {
			ctx.buffer.WriteByte_(CompactLayoutTag)
		}
		codec := ctx.codecs.get(elem.Type())
		codec.writeFields(ctx, elem, ctx.compactLayout)
	}
}

// readValue mirrors writeValue. For identity-tracked objects the instance
// is registered in the id table before its payload is decoded, so
// self-referential slots resolve immediately. A back-reference to an id not
// yet materialized yields a typed forwardRef placeholder that callers must
// record as a pending assignment.
func readValue(ctx *ReadContext) reflect.Value {
	if !ctx.enter() {
		return reflect.Value{}
	}
	defer ctx.leave()

	buf := ctx.buffer
	markerPos := buf.ReaderIndex()
	marker := buf.ReadByte_(ctx.Err())
	if ctx.HasError() {
		return reflect.Value{}
	}

	switch marker {
	case MarkerNull:
		return reflect.Value{}

	case MarkerPrimitive:
		desc := readTypeDescriptor(buf, ctx.table, ctx.Err())
		if ctx.HasError() {
			return reflect.Value{}
		}
		if err := ctx.gate.ValidateName(desc); err != nil {
			ctx.SetError(err)
			return reflect.Value{}
		}
		t, err := ctx.registry.ResolveType(desc)
		if err != nil {
			ctx.SetError(err)
			return reflect.Value{}
		}
		if err := ctx.validateType(desc, t); err != nil {
			ctx.SetError(err)
			return reflect.Value{}
		}
		return readPrimitivePayload(buf, t, ctx.Err())

	case MarkerRef:
		id := buf.ReadInt32(ctx.Err())
		if ctx.HasError() {
			return reflect.Value{}
		}
		return ctx.lookup(id)

	case MarkerObject:
		id := buf.ReadInt32(ctx.Err())
		desc := readTypeDescriptor(buf, ctx.table, ctx.Err())
		if ctx.HasError() {
			return reflect.Value{}
		}
		if err := ctx.gate.ValidateName(desc); err != nil {
			ctx.SetError(err)
			return reflect.Value{}
		}
		t, err := ctx.registry.ResolveType(desc)
		if err != nil {
			ctx.SetError(err)
			return reflect.Value{}
		}
		if err := ctx.validateType(desc, t); err != nil {
			ctx.SetError(err)
			return reflect.Value{}
		}
		return readObjectPayload(ctx, id, desc, t)

	default:
		ctx.SetError(ProtocolErrorf(markerPos, buf.HexDumpAround(markerPos),
			"invalid marker byte 0x%02x", marker))
		return reflect.Value{}
	}
}

// readObjectPayload decodes one identity-tracked object of resolved type t.
func readObjectPayload(ctx *ReadContext, id int32, desc TypeDescriptor, t reflect.Type) reflect.Value {
	// Multi-dimensional descriptors resolve to flat rank-1 slice types, so
	// the descriptor's rank decides the payload shape, not the class.
	if _, rank, ok := splitArrayNotation(desc.Name); ok && rank > 1 {
		return readArrayObject(ctx, id, desc, t)
	}
	switch classifyType(t) {
	case classArray:
		return readArrayObject(ctx, id, desc, t)
	case classList:
		return readListPayload(ctx, id, t)
	case classMap:
		return readMapPayload(ctx, id, t)
	case classDataSet:
		return readDataSetPayload(ctx, id)
	case classDataTable:
		return readDataTablePayload(ctx, id)
	case classError:
		return readErrorPayload(ctx, id, t)
	case classReflectType:
		return readReflectTypePayload(ctx, id)
	case classMemberRef:
		return readMemberRefPayload(ctx, id)
	case classCustom:
		return readCustomPayload(ctx, id, t)
	case classStruct:
		compact := false
		if ctx.buffer.PeekByte() == CompactLayoutTag {
			ctx.buffer.ReadByte_(ctx.Err())
			compact = true
		}
		ptr, err := ctx.registry.newInstance(t)
		if err != nil {
			ctx.SetError(err)
			return reflect.Value{}
		}
		ctx.register(id, ptr)
		codec := ctx.codecs.get(t)
		codec.readFields(ctx, ptr.Elem(), id, compact)
		return ptr
	default:
		ctx.SetError(DeserializationErrorf("neob: cannot decode payload of type %s", t))
		return reflect.Value{}
	}
}

// derefValue unwraps pointers down to the addressed element.
func derefValue(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	return v
}

func isNilValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Map, reflect.Ptr, reflect.Slice:
		return v.IsNil()
	case reflect.Interface:
		if !v.IsValid() {
			return true
		}
		return v.IsNil() || isNilValue(v.Elem())
	case reflect.Invalid:
		return true
	}
	return false
}
