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
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVaruint32RoundTrip(t *testing.T) {
	values := []uint32{0, 1, 127, 128, 300, 16383, 16384, 1 << 21, math.MaxUint32}
	buf := NewByteBuffer(nil)
	for _, v := range values {
		buf.WriteVaruint32(v)
	}
	var err Error
	for _, v := range values {
		assert.Equal(t, v, buf.ReadVaruint32(&err))
	}
	require.True(t, err.Ok())
}

func TestVarint32ZigZag(t *testing.T) {
	values := []int32{0, -1, 1, -64, 64, math.MinInt32, math.MaxInt32}
	buf := NewByteBuffer(nil)
	for _, v := range values {
		buf.WriteVarint32(v)
	}
	var err Error
	for _, v := range values {
		assert.Equal(t, v, buf.ReadVarint32(&err))
	}
	require.True(t, err.Ok())
}

func TestVaruint64RoundTrip(t *testing.T) {
	values := []uint64{0, 127, 128, 1 << 35, math.MaxUint64}
	buf := NewByteBuffer(nil)
	for _, v := range values {
		buf.WriteVaruint64(v)
	}
	var err Error
	for _, v := range values {
		assert.Equal(t, v, buf.ReadVaruint64(&err))
	}
	require.True(t, err.Ok())
}

func TestVarint64ZigZag(t *testing.T) {
	values := []int64{0, -1, 1, math.MinInt64, math.MaxInt64}
	buf := NewByteBuffer(nil)
	for _, v := range values {
		buf.WriteVarint64(v)
	}
	var err Error
	for _, v := range values {
		assert.Equal(t, v, buf.ReadVarint64(&err))
	}
	require.True(t, err.Ok())
}

func TestStringRoundTrip(t *testing.T) {
	buf := NewByteBuffer(nil)
	values := []string{"", "a", "héllo wörld", strings.Repeat("x", 1000)}
	for _, v := range values {
		buf.WriteString(v)
	}
	var err Error
	for _, v := range values {
		assert.Equal(t, v, buf.ReadString(&err))
	}
	require.True(t, err.Ok())
}

func TestFixedWidthLittleEndian(t *testing.T) {
	buf := NewByteBuffer(nil)
	buf.WriteInt32(0x01020304)
	require.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, buf.GetData())
}

func TestReadBeyondBounds(t *testing.T) {
	buf := NewByteBuffer(nil)
	buf.SetData([]byte{0x01, 0x02})
	var err Error
	buf.ReadInt32(&err)
	require.True(t, err.HasError())
	require.Equal(t, ErrKindBufferOutOfBound, err.Kind())
	require.Contains(t, err.Error(), "buffer out of bound")
}

func TestTruncatedVaruint(t *testing.T) {
	buf := NewByteBuffer(nil)
	buf.SetData([]byte{0x80, 0x80})
	var err Error
	buf.ReadVaruint32(&err)
	require.True(t, err.HasError())
}

func TestHexDumpAroundMarksPosition(t *testing.T) {
	buf := NewByteBuffer(nil)
	buf.SetData([]byte{0x00, 0x11, 0x22, 0x33, 0x44})
	dump := buf.HexDumpAround(2)
	require.Contains(t, dump, "|22")
	require.Contains(t, dump, "00 11")
}

func TestResetAndReuse(t *testing.T) {
	buf := NewByteBuffer(nil)
	buf.WriteInt64(12345)
	buf.Reset()
	require.Equal(t, 0, buf.WriterIndex())
	buf.WriteByte_(0xAB)
	require.Equal(t, []byte{0xAB}, buf.GetData())
}
