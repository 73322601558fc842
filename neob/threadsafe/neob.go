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

// Package threadsafe provides a goroutine-safe wrapper around the
// serializer. Each call borrows an identically configured instance from a
// pool, so calls never contend on per-call state.
package threadsafe

import (
	"sync"

	"github.com/theRainbird/CoreRemoting-sub001/neob"
)

// Serializer is a goroutine-safe serializer backed by a pool of instances
// sharing one configuration and type registry.
type Serializer struct {
	pool sync.Pool
}

// New creates a goroutine-safe serializer. Options are applied to every
// pooled instance. Pass neob.WithRegistry to share registrations across
// serializers; the default registry is shared process-wide anyway.
func New(opts ...neob.Option) *Serializer {
	return &Serializer{
		pool: sync.Pool{
			New: func() any { return neob.New(opts...) },
		},
	}
}

// Serialize encodes one object graph; safe for concurrent use.
func (s *Serializer) Serialize(v any) ([]byte, error) {
	inner := s.pool.Get().(*neob.Serializer)
	defer s.pool.Put(inner)
	return inner.Serialize(v)
}

// Deserialize decodes one envelope; safe for concurrent use.
func (s *Serializer) Deserialize(data []byte) (any, error) {
	inner := s.pool.Get().(*neob.Serializer)
	defer s.pool.Put(inner)
	return inner.Deserialize(data)
}
