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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericSliceRoundTrip(t *testing.T) {
	s := newTestSerializer()

	ints := make([]int32, 10_000)
	for i := range ints {
		ints[i] = int32(i - 5000)
	}
	assert.Equal(t, ints, roundTrip(t, s, ints))

	floats := make([]float64, 4096)
	for i := range floats {
		floats[i] = float64(i) * 0.25
	}
	assert.Equal(t, floats, roundTrip(t, s, floats))

	assert.Equal(t, []byte{0, 1, 255}, roundTrip(t, s, []byte{0, 1, 255}))
	assert.Equal(t, []bool{true, false, true}, roundTrip(t, s, []bool{true, false, true}))
	assert.Equal(t, []int64{-1, 1 << 62}, roundTrip(t, s, []int64{-1, 1 << 62}))
	assert.Equal(t, []byte{}, roundTrip(t, s, []byte{}))
}

func TestBulkAndScalarPathsMatchOnWire(t *testing.T) {
	reg := testRegistry()
	bulk := New(WithRegistry(reg), WithBulkArrays(true))
	scalar := New(WithRegistry(reg), WithBulkArrays(false))

	for _, v := range []any{
		[]int32{1, -2, 3, 1 << 30},
		[]float64{0.5, -1.25, 1e300},
		[]uint16{0, 65535},
	} {
		bulkData, err := bulk.Serialize(v)
		require.NoError(t, err)
		scalarData, err := scalar.Serialize(v)
		require.NoError(t, err)
		require.Equal(t, scalarData, bulkData, "wire bytes diverge for %T", v)

		got, err := scalar.Deserialize(bulkData)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestFixedArrayBecomesSlice(t *testing.T) {
	s := newTestSerializer()
	got := roundTrip(t, s, [4]int32{1, 2, 3, 4})
	require.Equal(t, []int32{1, 2, 3, 4}, got)
}

func TestFixedArrayOfStrings(t *testing.T) {
	s := newTestSerializer()
	got := roundTrip(t, s, [2]string{"a", "b"})
	require.Equal(t, []string{"a", "b"}, got)
}

func TestFixedArrayOfStructs(t *testing.T) {
	s := newTestSerializer()
	got := roundTrip(t, s, [2]testNode{{Name: "x"}, {Name: "y"}})
	require.Equal(t, []testNode{{Name: "x"}, {Name: "y"}}, got)
}

func TestNDArrayOfStrings(t *testing.T) {
	s := newTestSerializer()
	nd := NDArray{
		Dims:     []int32{2, 2},
		Elements: []string{"a", "b", "c", "d"},
	}
	got := roundTrip(t, s, nd).(*NDArray)
	require.Equal(t, nd.Dims, got.Dims)
	require.Equal(t, nd.Elements, got.Elements)
}

func TestNDArrayOfStructs(t *testing.T) {
	s := newTestSerializer()
	nd := NDArray{
		Dims:     []int32{2, 1},
		Elements: []testNode{{Name: "left"}, {Name: "right"}},
	}
	got := roundTrip(t, s, nd).(*NDArray)
	require.Equal(t, nd.Dims, got.Dims)
	elems := got.Elements.([]testNode)
	require.Len(t, elems, 2)
	assert.Equal(t, "left", elems[0].Name)
	assert.Equal(t, "right", elems[1].Name)
}

func TestRankOneNDArrayOfStringsDegeneratesToSlice(t *testing.T) {
	s := newTestSerializer()
	got := roundTrip(t, s, NDArray{Dims: []int32{3}, Elements: []string{"x", "y", "z"}})
	require.Equal(t, []string{"x", "y", "z"}, got)
}

func TestNDArrayRoundTrip(t *testing.T) {
	s := newTestSerializer()
	nd := NDArray{
		Dims:     []int32{2, 3},
		Elements: []int32{1, 2, 3, 4, 5, 6},
	}
	got := roundTrip(t, s, nd).(*NDArray)
	require.Equal(t, nd.Dims, got.Dims)
	require.Equal(t, nd.Elements, got.Elements)
}

func TestNDArrayRankThree(t *testing.T) {
	s := newTestSerializer()
	nd := NDArray{
		Dims:     []int32{2, 2, 2},
		Elements: []float64{1, 2, 3, 4, 5, 6, 7, 8},
	}
	got := roundTrip(t, s, nd).(*NDArray)
	require.Equal(t, nd.Dims, got.Dims)
	require.Equal(t, nd.Elements, got.Elements)
}

func TestNDArrayDimsMustCoverElements(t *testing.T) {
	s := newTestSerializer()
	_, err := s.Serialize(NDArray{Dims: []int32{2, 2}, Elements: []int32{1, 2, 3}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "dims")
}

func TestLegacyBareByteArray(t *testing.T) {
	ctx := newReadContext(NewRegistry(), newCodecCache(8, nil),
		NewTypeGate(TypeGateConfig{AllowUnknown: true}), 16)

	payload := make([]byte, 200)
	for i := range payload {
		payload[i] = byte(i)
	}
	buf := NewByteBuffer(nil)
	buf.WriteLength(len(payload)) // no rank header: the legacy form
	buf.WriteBinary(payload)
	ctx.buffer.SetData(buf.GetData())

	v := readArrayObject(ctx, 0, TypeDescriptor{Name: "uint8[]"}, reflect.TypeOf([]byte(nil)))
	require.False(t, ctx.HasError(), "%v", ctx.err.Error())
	require.Equal(t, payload, v.Interface())
}

func TestCorruptArrayHeader(t *testing.T) {
	ctx := newReadContext(NewRegistry(), newCodecCache(8, nil),
		NewTypeGate(TypeGateConfig{AllowUnknown: true}), 16)

	buf := NewByteBuffer(nil)
	buf.WriteVaruint32(200) // implausible rank, and not a byte array
	buf.WriteVaruint32(1)
	ctx.buffer.SetData(buf.GetData())

	readArrayObject(ctx, 0, TypeDescriptor{Name: "int32[]"}, reflect.TypeOf([]int32(nil)))
	require.True(t, ctx.HasError())
	require.Equal(t, ErrKindProtocol, ctx.err.Kind())
}

func TestArrayHeaderCannotOverAllocate(t *testing.T) {
	ctx := newReadContext(NewRegistry(), newCodecCache(8, nil),
		NewTypeGate(TypeGateConfig{AllowUnknown: true}), 16)

	// A rank-1 header declaring a billion elements with only 4 data bytes.
	buf := NewByteBuffer(nil)
	buf.WriteVaruint32(1)
	buf.WriteVaruint32(1_000_000_000)
	buf.WriteVaruint32(1_000_000_000)
	buf.WriteUint32(0xDEADBEEF)
	ctx.buffer.SetData(buf.GetData())

	readArrayObject(ctx, 0, TypeDescriptor{Name: "int32[]"}, reflect.TypeOf([]int32(nil)))
	require.True(t, ctx.HasError())
}
