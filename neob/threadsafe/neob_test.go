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

package threadsafe

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theRainbird/CoreRemoting-sub001/neob"
)

func TestConcurrentRoundTrips(t *testing.T) {
	s := New()
	const goroutines = 32
	const iterations = 50

	var wg sync.WaitGroup
	errs := make(chan error, goroutines)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				msg := map[string]any{
					"worker": int32(g),
					"seq":    int32(i),
					"tag":    fmt.Sprintf("msg-%d-%d", g, i),
				}
				data, err := s.Serialize(msg)
				if err != nil {
					errs <- err
					return
				}
				got, err := s.Deserialize(data)
				if err != nil {
					errs <- err
					return
				}
				back := got.(map[string]any)
				if back["worker"] != int32(g) || back["seq"] != int32(i) {
					errs <- fmt.Errorf("goroutine %d iteration %d: got %v", g, i, back)
					return
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestOptionsApplyToEveryPooledInstance(t *testing.T) {
	s := New(neob.WithTypeReferenceTable(true))

	var wg sync.WaitGroup
	results := make([][]byte, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, err := s.Serialize([]any{"one", "two", "three"})
			if err == nil {
				results[i] = data
			}
		}(i)
	}
	wg.Wait()

	for _, data := range results {
		require.NotNil(t, data)
		got, err := s.Deserialize(data)
		require.NoError(t, err)
		assert.Equal(t, []any{"one", "two", "three"}, got)
	}
}

func TestSharedRegistry(t *testing.T) {
	// A shared registry reaches every pooled instance.
	type ping struct {
		Seq int32
	}
	reg := neob.NewRegistry()
	require.NoError(t, reg.RegisterNamedType(ping{}, "ts.Ping", "ts", ""))

	s := New(neob.WithRegistry(reg))
	data, err := s.Serialize(&ping{Seq: 7})
	require.NoError(t, err)
	got, err := s.Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, int32(7), got.(*ping).Seq)
}
