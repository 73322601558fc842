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
	"sync"
	"time"
	"unsafe"

	"github.com/shopspring/decimal"
)

// Top-level value markers. Exactly one of these precedes every encoded
// value in the stream.
const (
	// MarkerNull encodes a nil value
	MarkerNull byte = 0
	// MarkerObject encodes an identity-tracked object: id, descriptor, payload
	MarkerObject byte = 1
	// MarkerRef encodes a back-reference to a previously written object id
	MarkerRef byte = 2
	// MarkerPrimitive encodes a non-tracked simple value: descriptor, payload
	MarkerPrimitive byte = 3
	// CompactLayoutTag follows a type descriptor when the compact field
	// layout (no names, no count) is active for the object payload
	CompactLayoutTag byte = 0xFE
)

// Envelope flag bits (u16 field in the header).
const (
	// FlagAssemblyVersions includes assembly versions in type descriptors
	FlagAssemblyVersions uint16 = 1 << 0
	// FlagTypeRefTable replaces repeated type descriptors with table indices
	FlagTypeRefTable uint16 = 1 << 1
)

// Tabular encoding selector bytes, written ahead of table payloads.
const (
	tabularBinary byte = 0
	tabularJSON   byte = 1
)

// typeClass is the closed classification of a runtime type, computed once
// per type and cached. Dispatch order over a value follows the priority
// array > list > map > row set > table > error > reflection > struct, so a
// type satisfying several capabilities always classifies the same way.
type typeClass uint8

const (
	classUnknown typeClass = iota
	classPrimitive
	classEnum
	classArray
	classList
	classMap
	classDataSet
	classDataTable
	classError
	classReflectType
	classMemberRef
	classCustom
	classStruct
)

var (
	typeOfTime       = reflect.TypeOf(time.Time{})
	typeOfDuration   = reflect.TypeOf(time.Duration(0))
	typeOfDecimal    = reflect.TypeOf(decimal.Decimal{})
	typeOfReflectTyp = reflect.TypeOf((*reflect.Type)(nil)).Elem()
	typeOfError      = reflect.TypeOf((*error)(nil)).Elem()
	typeOfAny        = reflect.TypeOf((*any)(nil)).Elem()
	typeOfNDArray    = reflect.TypeOf(NDArray{})
	typeOfDataTable  = reflect.TypeOf(DataTable{})
	typeOfDataSet    = reflect.TypeOf(DataSet{})
	typeOfMemberRef  = reflect.TypeOf(MemberRef{})
	typeOfRemoteErr  = reflect.TypeOf(RemoteError{})
	typeOfCustomSer  = reflect.TypeOf((*CustomSerializable)(nil)).Elem()
)

// classCache memoizes classifications process-wide; safe for concurrent use.
var classCache sync.Map // reflect.Type -> typeClass

// classifyType returns the wire classification for a concrete type.
// Pointer types classify as their element type.
func classifyType(t reflect.Type) typeClass {
	if t == nil {
		return classUnknown
	}
	if cached, ok := classCache.Load(t); ok {
		return cached.(typeClass)
	}
	c := classifyTypeSlow(t)
	classCache.Store(t, c)
	return c
}

func classifyTypeSlow(t reflect.Type) typeClass {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t {
	case typeOfTime, typeOfDuration, typeOfDecimal:
		return classPrimitive
	case typeOfNDArray:
		return classArray
	case typeOfDataTable:
		return classDataTable
	case typeOfDataSet:
		return classDataSet
	case typeOfMemberRef:
		return classMemberRef
	case typeOfRemoteErr:
		return classError
	}
	// The runtime's concrete reflect.Type implementation only satisfies the
	// interface through its pointer, which classifyType stripped above.
	if t == typeOfReflectTyp ||
		(t.Kind() != reflect.Interface && (t.Implements(typeOfReflectTyp) || reflect.PtrTo(t).Implements(typeOfReflectTyp))) {
		return classReflectType
	}
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.String:
		// Named integer types other than rune are enums: written as their
		// underlying integer, re-boxed via the resolved type on read.
		if t.PkgPath() != "" && isIntegerKind(t.Kind()) {
			return classEnum
		}
		return classPrimitive
	case reflect.Array:
		// Fixed arrays of numeric elements take the array encoding; other
		// element types round-trip element-by-element as a general list,
		// matching how the same element type classifies as a slice.
		if isBulkElemKind(t.Elem().Kind()) {
			return classArray
		}
		return classList
	case reflect.Slice:
		// Numeric element slices take the array encoding with its bulk
		// fast path; everything else is a general list.
		if isBulkElemKind(t.Elem().Kind()) {
			return classArray
		}
		return classList
	case reflect.Map:
		return classMap
	case reflect.Struct:
		if reflect.PtrTo(t).Implements(typeOfCustomSer) || t.Implements(typeOfCustomSer) {
			return classCustom
		}
		if reflect.PtrTo(t).Implements(typeOfError) {
			return classError
		}
		return classStruct
	case reflect.Interface:
		if t.Implements(typeOfError) {
			return classError
		}
		return classUnknown
	}
	return classUnknown
}

func isIntegerKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

// isBulkElemKind reports element kinds that use the array encoding,
// including the contiguous-memory bulk fast path kinds.
func isBulkElemKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool, reflect.Uint8, reflect.Int8, reflect.Int16, reflect.Uint16,
		reflect.Int32, reflect.Uint32, reflect.Int64, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// nativeEndian is the host byte order, used to decide whether the bulk
// array fast path can reinterpret memory directly.
var nativeEndian binary.ByteOrder = func() binary.ByteOrder {
	var x uint16 = 1
	if *(*byte)(unsafe.Pointer(&x)) == 1 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}()
