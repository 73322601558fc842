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
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testNode struct {
	Name string
	Next *testNode
}

type testPair struct {
	Left  *testNode
	Right *testNode
}

type testColor int32

type testProfile struct {
	Name    string
	Age     int32
	Tags    []string
	Scores  map[string]float64
	Color   testColor
	Created time.Time
}

func testRegistry() *Registry {
	r := NewRegistry()
	_ = r.RegisterNamedType(testNode{}, "test.Node", "test", "1.0.0")
	_ = r.RegisterNamedType(testPair{}, "test.Pair", "test", "1.0.0")
	_ = r.RegisterNamedType(testProfile{}, "test.Profile", "test", "1.0.0")
	_ = r.RegisterNamedType(testColor(0), "test.Color", "test", "1.0.0")
	return r
}

func newTestSerializer(opts ...Option) *Serializer {
	return New(append([]Option{WithRegistry(testRegistry())}, opts...)...)
}

func roundTrip(t *testing.T, s *Serializer, v any) any {
	t.Helper()
	data, err := s.Serialize(v)
	require.NoError(t, err)
	got, err := s.Deserialize(data)
	require.NoError(t, err)
	return got
}

func TestRoundTripPrimitiveRoots(t *testing.T) {
	s := newTestSerializer()
	values := []any{
		true, int8(-5), int16(1000), int32(-70000), int64(1) << 40, int(-3),
		uint8(200), uint16(60000), uint32(4000000000), uint64(1) << 60, uint(7),
		float32(1.5), 2.75, "héllo", "",
		3 * time.Second,
	}
	for _, v := range values {
		assert.Equal(t, v, roundTrip(t, s, v))
	}
}

func TestRoundTripTimeRoot(t *testing.T) {
	s := newTestSerializer()
	moment := time.Date(2024, 3, 1, 8, 0, 0, 500, time.UTC).Round(100)
	got := roundTrip(t, s, moment).(time.Time)
	require.True(t, got.Equal(moment))
}

func TestRoundTripNil(t *testing.T) {
	s := newTestSerializer()
	require.Nil(t, roundTrip(t, s, nil))

	var typed *testNode
	require.Nil(t, roundTrip(t, s, typed))
}

func TestRoundTripEnum(t *testing.T) {
	s := newTestSerializer()
	got := roundTrip(t, s, testColor(3))
	require.Equal(t, testColor(3), got)
}

func TestRoundTripStruct(t *testing.T) {
	s := newTestSerializer()
	p := &testProfile{
		Name:    "ada",
		Age:     36,
		Tags:    []string{"math", "engines"},
		Scores:  map[string]float64{"precision": 99.5},
		Color:   testColor(2),
		Created: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	got := roundTrip(t, s, p).(*testProfile)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, p.Age, got.Age)
	assert.Equal(t, p.Tags, got.Tags)
	assert.Equal(t, p.Scores, got.Scores)
	assert.Equal(t, p.Color, got.Color)
	assert.True(t, got.Created.Equal(p.Created))
}

func TestRoundTripLists(t *testing.T) {
	s := newTestSerializer()
	assert.Equal(t, []string{"a", "b", ""}, roundTrip(t, s, []string{"a", "b", ""}))
	assert.Equal(t, []any{int32(1), "x", nil}, roundTrip(t, s, []any{int32(1), "x", nil}))
	assert.Equal(t, []string{}, roundTrip(t, s, []string{}))
}

func TestRoundTripMaps(t *testing.T) {
	s := newTestSerializer()
	m := map[string]int32{"a": 1, "b": -2}
	assert.Equal(t, m, roundTrip(t, s, m))

	nested := map[int64][]string{1: {"x"}, 2: {"y", "z"}}
	assert.Equal(t, nested, roundTrip(t, s, nested))
}

func TestSharedIdentityPreserved(t *testing.T) {
	s := newTestSerializer()
	leaf := &testNode{Name: "shared-leaf"}
	pair := &testPair{Left: leaf, Right: leaf}

	data, err := s.Serialize(pair)
	require.NoError(t, err)
	// The shared node's payload appears exactly once on the wire.
	require.Equal(t, 1, bytes.Count(data, []byte("shared-leaf")))

	got, err := s.Deserialize(data)
	require.NoError(t, err)
	res := got.(*testPair)
	require.NotNil(t, res.Left)
	require.Same(t, res.Left, res.Right)
	require.Equal(t, "shared-leaf", res.Left.Name)
}

func TestEqualButDistinctObjectsStayDistinct(t *testing.T) {
	s := newTestSerializer()
	pair := &testPair{Left: &testNode{Name: "twin"}, Right: &testNode{Name: "twin"}}
	res := roundTrip(t, s, pair).(*testPair)
	require.Equal(t, res.Left.Name, res.Right.Name)
	require.NotSame(t, res.Left, res.Right)
}

func TestSelfCycle(t *testing.T) {
	s := newTestSerializer()
	n := &testNode{Name: "loop"}
	n.Next = n
	res := roundTrip(t, s, n).(*testNode)
	require.Equal(t, "loop", res.Name)
	require.Same(t, res, res.Next)
}

func TestTwoNodeCycle(t *testing.T) {
	s := newTestSerializer()
	a := &testNode{Name: "a"}
	b := &testNode{Name: "b"}
	a.Next = b
	b.Next = a
	res := roundTrip(t, s, a).(*testNode)
	require.Equal(t, "a", res.Name)
	require.Equal(t, "b", res.Next.Name)
	require.Same(t, res, res.Next.Next)
}

func TestCycleThroughList(t *testing.T) {
	s := newTestSerializer()
	list := make([]any, 2)
	list[0] = "head"
	list[1] = list // the slice contains itself
	res := roundTrip(t, s, list).([]any)
	require.Equal(t, "head", res[0])
	inner, ok := res[1].([]any)
	require.True(t, ok)
	require.Equal(t, "head", inner[0])
}

func TestBackReferenceMarkerOnWire(t *testing.T) {
	s := newTestSerializer()
	n := &testNode{Name: "solo"}
	n.Next = n
	data, err := s.Serialize(n)
	require.NoError(t, err)
	// Self-cycle: back-reference to id 0 is the last value in the stream.
	tail := data[len(data)-5:]
	require.Equal(t, []byte{MarkerRef, 0, 0, 0, 0}, tail)
}
