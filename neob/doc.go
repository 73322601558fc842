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

// Package neob implements a self-describing binary envelope format for
// arbitrary object graphs, built as the wire encoding of an RPC channel.
//
// Every envelope opens with magic, format version, producer version and
// flags, followed by exactly one object graph. Object identity is preserved
// across the wire: shared objects serialize once and reappear as
// back-references, so cyclic graphs round-trip without expansion. Type
// identity travels as descriptors (name, assembly, optional version) that
// the receiving side resolves through a registry and validates against a
// configurable security gate before any instance is created.
//
// The zero-configuration entry point:
//
//	s := neob.New()
//	data, err := s.Serialize(graph)
//	graph2, err := s.Deserialize(data)
//
// A Serializer is not safe for concurrent use; see package threadsafe.
package neob
