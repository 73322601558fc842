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

func TestReflectTypeRoundTrip(t *testing.T) {
	s := newTestSerializer(WithAllowReflectionTypes(true))

	data, err := s.Serialize(reflect.TypeOf(testNode{}))
	require.NoError(t, err)
	got, err := s.Deserialize(data)
	require.NoError(t, err)

	rt, ok := got.(reflect.Type)
	require.True(t, ok)
	assert.Equal(t, reflect.TypeOf(testNode{}), rt)
}

func TestReflectTypeDisabledByDefault(t *testing.T) {
	producer := newTestSerializer(WithAllowReflectionTypes(true))
	data, err := producer.Serialize(reflect.TypeOf(testNode{}))
	require.NoError(t, err)

	consumer := newTestSerializer()
	_, err = consumer.Deserialize(data)
	require.Error(t, err)
	e, ok := err.(Error)
	require.True(t, ok)
	assert.Equal(t, ErrKindUnsafeType, e.Kind())
	assert.Contains(t, e.Reason(), "reflection")
}

func TestReflectTypeUnresolvableIsNil(t *testing.T) {
	// A type handle that does not exist locally decodes to nil, not an error.
	s := newTestSerializer(WithAllowReflectionTypes(true))
	buf := NewByteBuffer(nil)
	s.writeHeader(buf)
	buf.WriteByte_(MarkerObject)
	buf.WriteInt32(0)
	buf.WriteString("TypeRef")
	buf.WriteString("")
	buf.WriteString("")
	buf.WriteString("ghost.Type")
	buf.WriteString("")
	buf.WriteString("")

	got, err := s.Deserialize(buf.GetData())
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestMemberRefRoundTrip(t *testing.T) {
	s := newTestSerializer(WithAllowReflectionTypes(true))
	mr := &MemberRef{
		Declaring: TypeDescriptor{Name: "test.Node", Assembly: "test"},
		Name:      "Name",
		Kind:      MemberKindProperty,
	}
	got := roundTrip(t, s, mr).(*MemberRef)
	assert.Equal(t, mr, got)
}

func TestMemberRefDisabledByDefault(t *testing.T) {
	producer := newTestSerializer()
	data, err := producer.Serialize(&MemberRef{Name: "Anything"})
	require.NoError(t, err)

	_, err = producer.Deserialize(data)
	require.Error(t, err)
	e, ok := err.(Error)
	require.True(t, ok)
	assert.Equal(t, ErrKindUnsafeType, e.Kind())
}
