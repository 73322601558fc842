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
	"math/big"
	"reflect"
	"time"

	"github.com/shopspring/decimal"
)

// Ticks are 100 ns intervals since 0001-01-01T00:00:00 UTC.
const (
	ticksPerSecond = int64(10_000_000)
	// Seconds between year 1 and the Unix epoch.
	unixEpochSeconds = int64(62_135_596_800)
)

func timeToTicks(t time.Time) int64 {
	t = t.UTC()
	return (t.Unix()+unixEpochSeconds)*ticksPerSecond + int64(t.Nanosecond())/100
}

func ticksToTime(ticks int64) time.Time {
	sec := ticks/ticksPerSecond - unixEpochSeconds
	nsec := (ticks % ticksPerSecond) * 100
	return time.Unix(sec, nsec).UTC()
}

// writePrimitivePayload writes the fixed-width or length-prefixed payload
// of a primitive value. The type descriptor written by the caller carries
// everything the reader needs to pick the matching decode.
func writePrimitivePayload(buf *ByteBuffer, v reflect.Value, err *Error) {
	t := v.Type()
	switch t {
	case typeOfTime:
		buf.WriteInt64(timeToTicks(v.Interface().(time.Time)))
		return
	case typeOfDuration:
		buf.WriteInt64(int64(v.Interface().(time.Duration)))
		return
	case typeOfDecimal:
		writeDecimal(buf, v.Interface().(decimal.Decimal), err)
		return
	}
	switch v.Kind() {
	case reflect.Bool:
		buf.WriteBool(v.Bool())
	case reflect.Int8:
		buf.WriteInt8(int8(v.Int()))
	case reflect.Int16:
		buf.WriteInt16(int16(v.Int()))
	case reflect.Int32:
		buf.WriteInt32(int32(v.Int()))
	case reflect.Int64, reflect.Int:
		buf.WriteInt64(v.Int())
	case reflect.Uint8:
		buf.WriteByte_(byte(v.Uint()))
	case reflect.Uint16:
		buf.WriteUint16(uint16(v.Uint()))
	case reflect.Uint32:
		buf.WriteUint32(uint32(v.Uint()))
	case reflect.Uint64, reflect.Uint:
		buf.WriteUint64(v.Uint())
	case reflect.Float32:
		buf.WriteFloat32(float32(v.Float()))
	case reflect.Float64:
		buf.WriteFloat64(v.Float())
	case reflect.String:
		buf.WriteString(v.String())
	default:
		err.SetError(SerializationErrorf("neob: %s is not a primitive type", t))
	}
}

// readPrimitivePayload decodes a primitive payload into a value of the
// resolved type. Named integer types (enums) are re-boxed via t.
func readPrimitivePayload(buf *ByteBuffer, t reflect.Type, err *Error) reflect.Value {
	switch t {
	case typeOfTime:
		return reflect.ValueOf(ticksToTime(buf.ReadInt64(err)))
	case typeOfDuration:
		return reflect.ValueOf(time.Duration(buf.ReadInt64(err)))
	case typeOfDecimal:
		return reflect.ValueOf(readDecimal(buf, err))
	}
	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Bool:
		v.SetBool(buf.ReadBool(err))
	case reflect.Int8:
		v.SetInt(int64(buf.ReadInt8(err)))
	case reflect.Int16:
		v.SetInt(int64(buf.ReadInt16(err)))
	case reflect.Int32:
		v.SetInt(int64(buf.ReadInt32(err)))
	case reflect.Int64, reflect.Int:
		v.SetInt(buf.ReadInt64(err))
	case reflect.Uint8:
		v.SetUint(uint64(buf.ReadByte_(err)))
	case reflect.Uint16:
		v.SetUint(uint64(buf.ReadUint16(err)))
	case reflect.Uint32:
		v.SetUint(uint64(buf.ReadUint32(err)))
	case reflect.Uint64, reflect.Uint:
		v.SetUint(buf.ReadUint64(err))
	case reflect.Float32:
		v.SetFloat(float64(buf.ReadFloat32(err)))
	case reflect.Float64:
		v.SetFloat(buf.ReadFloat64(err))
	case reflect.String:
		v.SetString(buf.ReadString(err))
	default:
		err.SetError(DeserializationErrorf("neob: %s is not a primitive type", t))
	}
	return v
}

// ============================================================================
// Decimal: four 32-bit words (low, mid, high, flags+scale)
// ============================================================================

const (
	decimalScaleShift = 16
	decimalSignBit    = uint32(1) << 31
	maxDecimalScale   = 28
)

var bigTen = big.NewInt(10)

// writeDecimal preserves the exact coefficient and scale: no floating-point
// round trip, no normalization. 123.45000 keeps scale 5.
func writeDecimal(buf *ByteBuffer, d decimal.Decimal, err *Error) {
	coeff := new(big.Int).Set(d.Coefficient())
	scale := int32(0)
	if exp := d.Exponent(); exp < 0 {
		scale = -exp
	} else if exp > 0 {
		// Positive exponents fold into the coefficient so scale stays >= 0.
		coeff.Mul(coeff, new(big.Int).Exp(bigTen, big.NewInt(int64(exp)), nil))
	}
	if scale > maxDecimalScale {
		err.SetError(SerializationErrorf("neob: decimal scale %d exceeds maximum %d", scale, maxDecimalScale))
		return
	}
	neg := coeff.Sign() < 0
	abs := new(big.Int).Abs(coeff)
	if abs.BitLen() > 96 {
		err.SetError(SerializationErrorf("neob: decimal coefficient exceeds 96 bits"))
		return
	}
	var raw [12]byte
	abs.FillBytes(raw[:])
	flags := uint32(scale) << decimalScaleShift
	if neg {
		flags |= decimalSignBit
	}
	buf.WriteUint32(binary.BigEndian.Uint32(raw[8:12])) // low
	buf.WriteUint32(binary.BigEndian.Uint32(raw[4:8]))  // mid
	buf.WriteUint32(binary.BigEndian.Uint32(raw[0:4]))  // high
	buf.WriteUint32(flags)
}

func readDecimal(buf *ByteBuffer, err *Error) decimal.Decimal {
	lo := buf.ReadUint32(err)
	mid := buf.ReadUint32(err)
	hi := buf.ReadUint32(err)
	flags := buf.ReadUint32(err)
	if err.HasError() {
		return decimal.Decimal{}
	}
	scale := int32((flags >> decimalScaleShift) & 0xFF)
	coeff := new(big.Int).SetUint64(uint64(hi))
	coeff.Lsh(coeff, 32)
	coeff.Or(coeff, new(big.Int).SetUint64(uint64(mid)))
	coeff.Lsh(coeff, 32)
	coeff.Or(coeff, new(big.Int).SetUint64(uint64(lo)))
	if flags&decimalSignBit != 0 {
		coeff.Neg(coeff)
	}
	return decimal.NewFromBigInt(coeff, -scale)
}
