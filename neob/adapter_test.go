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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapterRoundTrip(t *testing.T) {
	a, err := NewAdapter(newTestSerializer())
	require.NoError(t, err)

	data, err := a.Serialize(&testNode{Name: "hello"})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, envelopeMagic[:]))

	got, err := a.Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.(*testNode).Name)
}

func TestAdapterCompression(t *testing.T) {
	compressing, err := NewAdapter(newTestSerializer(), WithCompression(true))
	require.NoError(t, err)

	msg := strings.Repeat("compressible payload ", 500)
	data, err := compressing.Serialize(msg)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, zstdMagic))
	assert.Less(t, len(data), len(msg))

	got, err := compressing.Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestAdapterSniffsCompressedInput(t *testing.T) {
	// A non-compressing adapter still accepts compressed payloads; the zstd
	// magic in the payload decides, not local configuration.
	compressing, err := NewAdapter(newTestSerializer(), WithCompression(true))
	require.NoError(t, err)
	plain, err := NewAdapter(newTestSerializer())
	require.NoError(t, err)

	data, err := compressing.Serialize(strings.Repeat("x", 4096))
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, zstdMagic))

	got, err := plain.Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 4096), got)
}

func TestAdapterImplementsWireCodec(t *testing.T) {
	a, err := NewAdapter(New())
	require.NoError(t, err)
	var codec WireCodec = a
	assert.False(t, codec.NeedsEnvelope())
}
