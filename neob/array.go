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
	"encoding/binary"
	"reflect"
	"unsafe"
)

// NDArray is the Go-side shape of a rectangular multi-dimensional array:
// row-major flat element storage plus explicit dimensions. Rank-1 values
// round-trip as plain Go slices; NDArray only appears for rank >= 2.
type NDArray struct {
	Dims     []int32
	Elements any
}

// maxArrayRank bounds the rank header during the legacy-format probe and
// rejects corrupt streams before any allocation happens.
const maxArrayRank = 32

// writeArrayObject writes the descriptor and payload of an array-class
// object: [rank][dim0..dimN-1][total][elements]. Called after the object
// marker and id.
func writeArrayObject(ctx *WriteContext, v reflect.Value) {
	buf := ctx.buffer
	if v.Type() == typeOfNDArray {
		nd := v.Interface().(NDArray)
		elems := reflect.ValueOf(nd.Elements)
		if !elems.IsValid() || elems.Kind() != reflect.Slice {
			ctx.SetError(SerializationErrorf("neob: NDArray elements must be a flat slice, got %T", nd.Elements))
			return
		}
		total := 1
		for _, d := range nd.Dims {
			total *= int(d)
		}
		if len(nd.Dims) == 0 || total != elems.Len() {
			ctx.SetError(SerializationErrorf("neob: NDArray dims %v do not cover %d elements", nd.Dims, elems.Len()))
			return
		}
		// A rank-1 wrapper around non-numeric elements degenerates to the
		// list encoding; the wrapper only reappears for rank >= 2.
		if len(nd.Dims) == 1 && !isBulkElemKind(elems.Type().Elem().Kind()) {
			writeTypeDescriptor(buf, ctx.table,
				ctx.registry.DescriptorFor(elems.Type(), ctx.includeVersions))
			writeListPayload(ctx, elems)
			return
		}
		writeTypeDescriptor(buf, ctx.table,
			ctx.registry.arrayDescriptor(elems.Type().Elem(), len(nd.Dims), ctx.includeVersions))
		buf.WriteVaruint32(uint32(len(nd.Dims)))
		for _, d := range nd.Dims {
			buf.WriteVaruint32(uint32(d))
		}
		buf.WriteVaruint32(uint32(total))
		writeArrayElements(ctx, elems)
		return
	}
	if v.Kind() == reflect.Array {
		s := reflect.MakeSlice(reflect.SliceOf(v.Type().Elem()), v.Len(), v.Len())
		reflect.Copy(s, v)
		v = s
	}
	writeTypeDescriptor(buf, ctx.table,
		ctx.registry.arrayDescriptor(v.Type().Elem(), 1, ctx.includeVersions))
	n := v.Len()
	buf.WriteVaruint32(1)
	buf.WriteVaruint32(uint32(n))
	buf.WriteVaruint32(uint32(n))
	writeArrayElements(ctx, v)
}

// readArrayObject decodes an array payload. The resolved type is always a
// rank-1 Go slice; the rank header decides whether the result stays a slice
// or is wrapped in an NDArray. Byte arrays additionally probe for the
// legacy bare-length form with no rank header.
func readArrayObject(ctx *ReadContext, id int32, desc TypeDescriptor, t reflect.Type) reflect.Value {
	buf := ctx.buffer
	if t.Kind() != reflect.Slice {
		ctx.SetError(DeserializationErrorf("neob: array descriptor %q resolved to non-slice type %s", desc.Name, t))
		return reflect.Value{}
	}
	elem := t.Elem()
	elemSize := wireElemSize(elem.Kind())

	start := buf.ReaderIndex()
	probe := Error{}
	rank := int(buf.ReadVaruint32(&probe))
	dims := make([]int32, 0, 4)
	total := 1
	declared := 0
	plausible := probe.Ok() && rank >= 1 && rank <= maxArrayRank
	if plausible {
		for i := 0; i < rank; i++ {
			d := int(buf.ReadVaruint32(&probe))
			if probe.HasError() || d < 0 {
				plausible = false
				break
			}
			dims = append(dims, int32(d))
			total *= d
		}
	}
	if plausible {
		declared = int(buf.ReadVaruint32(&probe))
		// Graph-walked elements occupy at least one marker byte each.
		minBytes := total
		if elemSize > 0 {
			minBytes = total * elemSize
		}
		plausible = probe.Ok() && declared == total && total >= 0 && minBytes <= buf.Remaining()
	}
	if !plausible {
		// Legacy byte arrays carry a bare length and raw data.
		if elem.Kind() != reflect.Uint8 {
			ctx.SetError(ProtocolErrorf(start, buf.HexDumpAround(start),
				"malformed array header for %q", desc.Name))
			return reflect.Value{}
		}
		buf.SetReaderIndex(start)
		n := buf.ReadLength(ctx.Err())
		if ctx.HasError() {
			return reflect.Value{}
		}
		if n < 0 || n > buf.Remaining() {
			ctx.SetError(DeserializationErrorf("neob: byte array length %d exceeds remaining %d bytes", n, buf.Remaining()))
			return reflect.Value{}
		}
		s := reflect.MakeSlice(t, n, n)
		raw := buf.ReadBinary(n, ctx.Err())
		if ctx.HasError() {
			return reflect.Value{}
		}
		reflect.Copy(s, reflect.ValueOf(raw))
		ctx.register(id, s)
		return s
	}

	flat := reflect.MakeSlice(t, total, total)
	if rank == 1 {
		ctx.register(id, flat)
		readArrayElements(ctx, flat)
		return flat
	}
	nd := &NDArray{Dims: dims, Elements: flat.Interface()}
	ptr := reflect.ValueOf(nd)
	ctx.register(id, ptr)
	readArrayElements(ctx, flat)
	return ptr
}

// writeArrayElements writes the flat element block. Fixed-width numeric
// elements on a little-endian host go out as one contiguous memory copy;
// the scalar loop produces byte-identical output everywhere else. Elements
// without a fixed wire width take the full graph walk, one marker each.
func writeArrayElements(ctx *WriteContext, s reflect.Value) {
	buf := ctx.buffer
	n := s.Len()
	if n == 0 {
		return
	}
	kind := s.Type().Elem().Kind()
	size := wireElemSize(kind)
	if size == 0 {
		for i := 0; i < n && !ctx.HasError(); i++ {
			writeValue(ctx, s.Index(i))
		}
		return
	}
	if ctx.bulkArrays && (size == 1 || nativeEndian == binary.LittleEndian) {
		raw := unsafe.Slice((*byte)(unsafe.Pointer(s.Pointer())), n*size)
		buf.WriteBinary(raw)
		return
	}
	for i := 0; i < n; i++ {
		e := s.Index(i)
		switch kind {
		case reflect.Bool:
			buf.WriteBool(e.Bool())
		case reflect.Int8:
			buf.WriteInt8(int8(e.Int()))
		case reflect.Int16:
			buf.WriteInt16(int16(e.Int()))
		case reflect.Int32:
			buf.WriteInt32(int32(e.Int()))
		case reflect.Int64:
			buf.WriteInt64(e.Int())
		case reflect.Uint8:
			buf.WriteByte_(byte(e.Uint()))
		case reflect.Uint16:
			buf.WriteUint16(uint16(e.Uint()))
		case reflect.Uint32:
			buf.WriteUint32(uint32(e.Uint()))
		case reflect.Uint64:
			buf.WriteUint64(e.Uint())
		case reflect.Float32:
			buf.WriteFloat32(float32(e.Float()))
		case reflect.Float64:
			buf.WriteFloat64(e.Float())
		default:
			ctx.SetError(SerializationErrorf("neob: unsupported array element kind %s", kind))
			return
		}
	}
}

// readArrayElements fills a pre-sized flat slice from the element block.
func readArrayElements(ctx *ReadContext, s reflect.Value) {
	buf := ctx.buffer
	n := s.Len()
	if n == 0 {
		return
	}
	kind := s.Type().Elem().Kind()
	size := wireElemSize(kind)
	if size == 0 {
		for i := 0; i < n; i++ {
			if ctx.HasError() {
				return
			}
			ev := readValue(ctx)
			if ctx.HasError() {
				return
			}
			if refID, pending := isForwardRef(ev); pending {
				ctx.addPending(pendingAssign{kind: pendingIndex, target: s, index: i, id: refID})
				continue
			}
			if ev.IsValid() {
				assignCompat(s.Index(i), ev)
			}
		}
		return
	}
	if ctx.bulkArrays && (size == 1 || nativeEndian == binary.LittleEndian) {
		raw := buf.ReadBinary(n*size, ctx.Err())
		if ctx.HasError() {
			return
		}
		dst := unsafe.Slice((*byte)(unsafe.Pointer(s.Pointer())), n*size)
		copy(dst, raw)
		return
	}
	err := ctx.Err()
	for i := 0; i < n && !ctx.HasError(); i++ {
		e := s.Index(i)
		switch kind {
		case reflect.Bool:
			e.SetBool(buf.ReadBool(err))
		case reflect.Int8:
			e.SetInt(int64(buf.ReadInt8(err)))
		case reflect.Int16:
			e.SetInt(int64(buf.ReadInt16(err)))
		case reflect.Int32:
			e.SetInt(int64(buf.ReadInt32(err)))
		case reflect.Int64:
			e.SetInt(buf.ReadInt64(err))
		case reflect.Uint8:
			e.SetUint(uint64(buf.ReadByte_(err)))
		case reflect.Uint16:
			e.SetUint(uint64(buf.ReadUint16(err)))
		case reflect.Uint32:
			e.SetUint(uint64(buf.ReadUint32(err)))
		case reflect.Uint64:
			e.SetUint(buf.ReadUint64(err))
		case reflect.Float32:
			e.SetFloat(float64(buf.ReadFloat32(err)))
		case reflect.Float64:
			e.SetFloat(buf.ReadFloat64(err))
		default:
			ctx.SetError(DeserializationErrorf("neob: unsupported array element kind %s", kind))
			return
		}
	}
}

// wireElemSize returns the fixed wire width of an array element kind, or 0
// for kinds that never take the array encoding.
func wireElemSize(k reflect.Kind) int {
	switch k {
	case reflect.Bool, reflect.Int8, reflect.Uint8:
		return 1
	case reflect.Int16, reflect.Uint16:
		return 2
	case reflect.Int32, reflect.Uint32, reflect.Float32:
		return 4
	case reflect.Int64, reflect.Uint64, reflect.Float64:
		return 8
	}
	return 0
}
