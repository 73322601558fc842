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
	"fmt"
	"math"
	"strings"
	"unsafe"
)

const (
	MaxInt32 = math.MaxInt32
	MinInt32 = math.MinInt32
)

// ByteBuffer is a growable little-endian binary buffer with separate
// reader/writer cursors. All wire values are little-endian regardless of
// the host byte order.
type ByteBuffer struct {
	writerIndex int
	readerIndex int
	data        []byte
}

func NewByteBuffer(data []byte) *ByteBuffer {
	return &ByteBuffer{data: data}
}

func (b *ByteBuffer) grow(n int) {
	l := b.writerIndex
	if l+n < len(b.data) {
		return
	}
	if l+n < cap(b.data) {
		b.data = b.data[:cap(b.data)]
	} else {
		newBuf := make([]byte, 2*(l+n))
		copy(newBuf, b.data)
		b.data = newBuf
	}
}

func (b *ByteBuffer) WriteBool(value bool) {
	b.grow(1)
	if value {
		b.data[b.writerIndex] = 1
	} else {
		b.data[b.writerIndex] = 0
	}
	b.writerIndex++
}

func (b *ByteBuffer) WriteByte_(value byte) {
	b.grow(1)
	b.data[b.writerIndex] = value
	b.writerIndex++
}

func (b *ByteBuffer) WriteInt8(value int8) {
	b.grow(1)
	b.data[b.writerIndex] = byte(value)
	b.writerIndex++
}

func (b *ByteBuffer) WriteInt16(value int16) {
	b.grow(2)
	binary.LittleEndian.PutUint16(b.data[b.writerIndex:], uint16(value))
	b.writerIndex += 2
}

func (b *ByteBuffer) WriteUint16(value uint16) {
	b.grow(2)
	binary.LittleEndian.PutUint16(b.data[b.writerIndex:], value)
	b.writerIndex += 2
}

func (b *ByteBuffer) WriteInt32(value int32) {
	b.grow(4)
	binary.LittleEndian.PutUint32(b.data[b.writerIndex:], uint32(value))
	b.writerIndex += 4
}

func (b *ByteBuffer) WriteUint32(value uint32) {
	b.grow(4)
	binary.LittleEndian.PutUint32(b.data[b.writerIndex:], value)
	b.writerIndex += 4
}

func (b *ByteBuffer) WriteInt64(value int64) {
	b.grow(8)
	binary.LittleEndian.PutUint64(b.data[b.writerIndex:], uint64(value))
	b.writerIndex += 8
}

func (b *ByteBuffer) WriteUint64(value uint64) {
	b.grow(8)
	binary.LittleEndian.PutUint64(b.data[b.writerIndex:], value)
	b.writerIndex += 8
}

func (b *ByteBuffer) WriteFloat32(value float32) {
	b.grow(4)
	binary.LittleEndian.PutUint32(b.data[b.writerIndex:], math.Float32bits(value))
	b.writerIndex += 4
}

func (b *ByteBuffer) WriteFloat64(value float64) {
	b.grow(8)
	binary.LittleEndian.PutUint64(b.data[b.writerIndex:], math.Float64bits(value))
	b.writerIndex += 8
}

func (b *ByteBuffer) WriteBinary(p []byte) {
	b.grow(len(p))
	l := copy(b.data[b.writerIndex:], p)
	if l != len(p) {
		panic(fmt.Errorf("should write %d bytes, but written %d bytes", len(p), l))
	}
	b.writerIndex += len(p)
}

// WriteVaruint32 writes an unsigned 32-bit integer in LEB128 form.
func (b *ByteBuffer) WriteVaruint32(value uint32) {
	b.grow(5)
	for value >= 0x80 {
		b.data[b.writerIndex] = byte(value) | 0x80
		b.writerIndex++
		value >>= 7
	}
	b.data[b.writerIndex] = byte(value)
	b.writerIndex++
}

// WriteVarint32 writes a signed 32-bit integer zigzag-encoded.
func (b *ByteBuffer) WriteVarint32(value int32) {
	b.WriteVaruint32(uint32((value << 1) ^ (value >> 31)))
}

// WriteVaruint64 writes an unsigned 64-bit integer in LEB128 form.
func (b *ByteBuffer) WriteVaruint64(value uint64) {
	b.grow(10)
	for value >= 0x80 {
		b.data[b.writerIndex] = byte(value) | 0x80
		b.writerIndex++
		value >>= 7
	}
	b.data[b.writerIndex] = byte(value)
	b.writerIndex++
}

// WriteVarint64 writes a signed 64-bit integer zigzag-encoded.
func (b *ByteBuffer) WriteVarint64(value int64) {
	b.WriteVaruint64(uint64((value << 1) ^ (value >> 63)))
}

// WriteLength writes a non-negative length as varuint.
func (b *ByteBuffer) WriteLength(value int) {
	if value >= MaxInt32 {
		panic(fmt.Errorf("too long: %d", value))
	}
	b.WriteVaruint32(uint32(value))
}

// WriteString writes a varuint-length-prefixed UTF-8 string.
func (b *ByteBuffer) WriteString(value string) {
	b.WriteVaruint32(uint32(len(value)))
	if len(value) > 0 {
		b.WriteBinary(unsafe.Slice(unsafe.StringData(value), len(value)))
	}
}

// ReadBool reads a bool and sets error on bounds violation
func (b *ByteBuffer) ReadBool(err *Error) bool {
	if b.readerIndex+1 > len(b.data) {
		*err = BufferOutOfBoundError(b.readerIndex, 1, len(b.data))
		return false
	}
	v := b.data[b.readerIndex]
	b.readerIndex++
	return v != 0
}

// ReadByte_ reads a byte and sets error on bounds violation
func (b *ByteBuffer) ReadByte_(err *Error) byte {
	if b.readerIndex+1 > len(b.data) {
		*err = BufferOutOfBoundError(b.readerIndex, 1, len(b.data))
		return 0
	}
	v := b.data[b.readerIndex]
	b.readerIndex++
	return v
}

// PeekByte returns the next byte without consuming it, or 0 past the end.
func (b *ByteBuffer) PeekByte() byte {
	if b.readerIndex >= len(b.data) {
		return 0
	}
	return b.data[b.readerIndex]
}

// ReadInt8 reads an int8 and sets error on bounds violation
func (b *ByteBuffer) ReadInt8(err *Error) int8 {
	return int8(b.ReadByte_(err))
}

// ReadInt16 reads an int16 and sets error on bounds violation
func (b *ByteBuffer) ReadInt16(err *Error) int16 {
	return int16(b.ReadUint16(err))
}

// ReadUint16 reads a uint16 and sets error on bounds violation
func (b *ByteBuffer) ReadUint16(err *Error) uint16 {
	if b.readerIndex+2 > len(b.data) {
		*err = BufferOutOfBoundError(b.readerIndex, 2, len(b.data))
		return 0
	}
	v := binary.LittleEndian.Uint16(b.data[b.readerIndex:])
	b.readerIndex += 2
	return v
}

// ReadUint32 reads a uint32 and sets error on bounds violation
func (b *ByteBuffer) ReadUint32(err *Error) uint32 {
	if b.readerIndex+4 > len(b.data) {
		*err = BufferOutOfBoundError(b.readerIndex, 4, len(b.data))
		return 0
	}
	i := binary.LittleEndian.Uint32(b.data[b.readerIndex:])
	b.readerIndex += 4
	return i
}

// ReadUint64 reads a uint64 and sets error on bounds violation
func (b *ByteBuffer) ReadUint64(err *Error) uint64 {
	if b.readerIndex+8 > len(b.data) {
		*err = BufferOutOfBoundError(b.readerIndex, 8, len(b.data))
		return 0
	}
	i := binary.LittleEndian.Uint64(b.data[b.readerIndex:])
	b.readerIndex += 8
	return i
}

func (b *ByteBuffer) ReadInt32(err *Error) int32 {
	return int32(b.ReadUint32(err))
}

func (b *ByteBuffer) ReadInt64(err *Error) int64 {
	return int64(b.ReadUint64(err))
}

func (b *ByteBuffer) ReadFloat32(err *Error) float32 {
	return math.Float32frombits(b.ReadUint32(err))
}

func (b *ByteBuffer) ReadFloat64(err *Error) float64 {
	return math.Float64frombits(b.ReadUint64(err))
}

// ReadVaruint32 reads a LEB128-encoded unsigned 32-bit integer.
func (b *ByteBuffer) ReadVaruint32(err *Error) uint32 {
	var result uint32
	var shift uint
	for {
		if b.readerIndex >= len(b.data) {
			*err = BufferOutOfBoundError(b.readerIndex, 1, len(b.data))
			return 0
		}
		v := b.data[b.readerIndex]
		b.readerIndex++
		result |= uint32(v&0x7F) << shift
		if v < 0x80 {
			return result
		}
		shift += 7
		if shift >= 35 {
			*err = ProtocolError(b.readerIndex, b.HexDumpAround(b.readerIndex), "malformed varuint32")
			return 0
		}
	}
}

// ReadVarint32 reads a zigzag-encoded signed 32-bit integer.
func (b *ByteBuffer) ReadVarint32(err *Error) int32 {
	v := b.ReadVaruint32(err)
	return int32(v>>1) ^ -int32(v&1)
}

// ReadVaruint64 reads a LEB128-encoded unsigned 64-bit integer.
func (b *ByteBuffer) ReadVaruint64(err *Error) uint64 {
	var result uint64
	var shift uint
	for {
		if b.readerIndex >= len(b.data) {
			*err = BufferOutOfBoundError(b.readerIndex, 1, len(b.data))
			return 0
		}
		v := b.data[b.readerIndex]
		b.readerIndex++
		result |= uint64(v&0x7F) << shift
		if v < 0x80 {
			return result
		}
		shift += 7
		if shift >= 70 {
			*err = ProtocolError(b.readerIndex, b.HexDumpAround(b.readerIndex), "malformed varuint64")
			return 0
		}
	}
}

// ReadVarint64 reads a zigzag-encoded signed 64-bit integer.
func (b *ByteBuffer) ReadVarint64(err *Error) int64 {
	v := b.ReadVaruint64(err)
	return int64(v>>1) ^ -int64(v&1)
}

// ReadLength reads a varuint-encoded length.
func (b *ByteBuffer) ReadLength(err *Error) int {
	return int(b.ReadVaruint32(err))
}

// ReadString reads a varuint-length-prefixed UTF-8 string.
func (b *ByteBuffer) ReadString(err *Error) string {
	length := int(b.ReadVaruint32(err))
	if err.HasError() {
		return ""
	}
	raw := b.ReadBinary(length, err)
	if err.HasError() {
		return ""
	}
	return string(raw)
}

// ReadBinary reads n bytes and sets error on bounds violation.
// The returned slice aliases the buffer; callers must copy if they retain it.
func (b *ByteBuffer) ReadBinary(length int, err *Error) []byte {
	if length < 0 || b.readerIndex+length > len(b.data) {
		*err = BufferOutOfBoundError(b.readerIndex, length, len(b.data))
		return nil
	}
	v := b.data[b.readerIndex : b.readerIndex+length]
	b.readerIndex += length
	return v
}

// GetData returns the written bytes. The slice aliases the buffer and is
// only valid until the next write or reset.
func (b *ByteBuffer) GetData() []byte {
	return b.data[:b.writerIndex]
}

// GetByteSlice returns a copy of the bytes in [start, end).
func (b *ByteBuffer) GetByteSlice(start, end int) []byte {
	result := make([]byte, end-start)
	copy(result, b.data[start:end])
	return result
}

func (b *ByteBuffer) WriterIndex() int {
	return b.writerIndex
}

func (b *ByteBuffer) ReaderIndex() int {
	return b.readerIndex
}

func (b *ByteBuffer) SetReaderIndex(i int) {
	b.readerIndex = i
}

func (b *ByteBuffer) Reset() {
	b.writerIndex = 0
	b.readerIndex = 0
}

func (b *ByteBuffer) SetData(data []byte) {
	b.data = data
	b.writerIndex = len(data)
	b.readerIndex = 0
}

func (b *ByteBuffer) Remaining() int {
	return len(b.data) - b.readerIndex
}

// HexDumpAround renders up to 16 bytes on each side of pos for protocol
// error diagnostics.
func (b *ByteBuffer) HexDumpAround(pos int) string {
	start := pos - 16
	if start < 0 {
		start = 0
	}
	end := pos + 16
	if end > len(b.data) {
		end = len(b.data)
	}
	var sb strings.Builder
	for i := start; i < end; i++ {
		if i == pos {
			sb.WriteString("|")
		}
		fmt.Fprintf(&sb, "%02x", b.data[i])
		if i != end-1 {
			sb.WriteString(" ")
		}
	}
	return sb.String()
}
