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
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payloadRoundTrip(t *testing.T, v any) any {
	t.Helper()
	buf := NewByteBuffer(nil)
	var err Error
	writePrimitivePayload(buf, reflect.ValueOf(v), &err)
	require.True(t, err.Ok(), "write: %v", err.Error())
	got := readPrimitivePayload(buf, reflect.TypeOf(v), &err)
	require.True(t, err.Ok(), "read: %v", err.Error())
	return got.Interface()
}

func TestPrimitiveBoundaries(t *testing.T) {
	values := []any{
		true, false,
		int8(math.MinInt8), int8(math.MaxInt8),
		int16(math.MinInt16), int16(math.MaxInt16),
		int32(math.MinInt32), int32(math.MaxInt32),
		int64(math.MinInt64), int64(math.MaxInt64),
		int(math.MinInt64), int(math.MaxInt64),
		uint8(0), uint8(math.MaxUint8),
		uint16(math.MaxUint16),
		uint32(math.MaxUint32),
		uint64(math.MaxUint64),
		uint(math.MaxUint64),
		float32(math.MaxFloat32), float32(math.SmallestNonzeroFloat32),
		math.MaxFloat64, math.SmallestNonzeroFloat64,
		"", "héllo",
	}
	for _, v := range values {
		assert.Equal(t, v, payloadRoundTrip(t, v))
	}
}

func TestFloatSpecials(t *testing.T) {
	assert.True(t, math.IsNaN(payloadRoundTrip(t, math.NaN()).(float64)))
	assert.Equal(t, math.Inf(1), payloadRoundTrip(t, math.Inf(1)))
	assert.Equal(t, math.Inf(-1), payloadRoundTrip(t, math.Inf(-1)))
	assert.True(t, math.IsNaN(float64(payloadRoundTrip(t, float32(math.NaN())).(float32))))
}

func TestTimeTicks(t *testing.T) {
	yearOne := time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, int64(0), timeToTicks(yearOne))
	require.Equal(t, unixEpochSeconds*ticksPerSecond, timeToTicks(time.Unix(0, 0)))

	// 100 ns resolution survives the round trip.
	moment := time.Date(2024, 6, 15, 12, 30, 45, 123456700, time.UTC)
	got := payloadRoundTrip(t, moment).(time.Time)
	require.True(t, got.Equal(moment), "got %v, want %v", got, moment)
}

func TestDurationRoundTrip(t *testing.T) {
	d := 3*time.Hour + 7*time.Millisecond
	require.Equal(t, d, payloadRoundTrip(t, d))
}

func TestDecimalPreservesScale(t *testing.T) {
	d := decimal.RequireFromString("123.45000")
	got := payloadRoundTrip(t, d).(decimal.Decimal)
	require.Equal(t, int32(-5), got.Exponent())
	require.Equal(t, "123.45000", got.String())
}

func TestDecimalValues(t *testing.T) {
	values := []string{
		"0", "1", "-1", "0.1", "-123.456",
		"0.0000000000000000000000000001",
		"79228162514264337593543950335",
		"-79228162514264337593543950335",
	}
	for _, s := range values {
		d := decimal.RequireFromString(s)
		got := payloadRoundTrip(t, d).(decimal.Decimal)
		assert.True(t, got.Equal(d), "value %s", s)
		assert.Equal(t, d.Exponent(), got.Exponent(), "scale of %s", s)
	}
}

func TestDecimalPositiveExponentFolds(t *testing.T) {
	d := decimal.New(5, 3) // 5000
	got := payloadRoundTrip(t, d).(decimal.Decimal)
	require.True(t, got.Equal(d))
	require.Equal(t, int32(0), got.Exponent())
}

func TestDecimalScaleOverflow(t *testing.T) {
	buf := NewByteBuffer(nil)
	var err Error
	writePrimitivePayload(buf, reflect.ValueOf(decimal.New(1, -29)), &err)
	require.True(t, err.HasError())
	require.Equal(t, ErrKindSerializationFailed, err.Kind())
	require.Contains(t, err.Error(), "scale")
}

func TestDecimalCoefficientOverflow(t *testing.T) {
	// 2^96 needs 97 bits.
	d := decimal.RequireFromString("79228162514264337593543950336")
	buf := NewByteBuffer(nil)
	var err Error
	writePrimitivePayload(buf, reflect.ValueOf(d), &err)
	require.True(t, err.HasError())
	require.Contains(t, err.Error(), "96 bits")
}
