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
	"unsafe"
)

// refKey identifies an object by reference identity for one call. For
// slices the start address alone is ambiguous (a sub-slice shares it), so
// the length participates in the key as well.
type refKey struct {
	pointer unsafe.Pointer
	length  int
}

// WriteContext holds all per-call serialization state. It is created fresh
// (or pool-reset) per top-level Serialize call and must not be shared
// across goroutines.
type WriteContext struct {
	buffer          *ByteBuffer
	registry        *Registry
	table           *typeRefTable // nil when the type-reference table is off
	includeVersions bool
	compactLayout   bool
	tabularBinary   bool
	bulkArrays      bool
	depth           int
	maxDepth        int
	codecs          *codecCache
	err             Error

	// Identity tracking: dense ids in first-sight (pre-order) order.
	idOf   map[refKey]int32
	nextID int32
}

func newWriteContext(registry *Registry, codecs *codecCache, maxDepth int) *WriteContext {
	return &WriteContext{
		buffer:     NewByteBuffer(nil),
		registry:   registry,
		codecs:     codecs,
		maxDepth:   maxDepth,
		bulkArrays: true,
		idOf:       make(map[refKey]int32),
	}
}

// Reset clears all call-scoped state for reuse, including on error paths.
func (c *WriteContext) Reset() {
	c.buffer.Reset()
	c.depth = 0
	c.nextID = 0
	c.err = Error{}
	clear(c.idOf)
	if c.table != nil {
		c.table.reset()
	}
}

// Buffer returns the underlying buffer.
func (c *WriteContext) Buffer() *ByteBuffer { return c.buffer }

// Err returns the context error accumulator.
func (c *WriteContext) Err() *Error { return &c.err }

// HasError reports whether a previous step failed.
func (c *WriteContext) HasError() bool { return c.err.HasError() }

// SetError records the first error encountered.
func (c *WriteContext) SetError(err error) { c.err.SetError(err) }

// enter/leave guard recursion depth across the graph walk.
func (c *WriteContext) enter() bool {
	c.depth++
	if c.depth > c.maxDepth {
		c.SetError(MaxDepthExceededError(c.depth))
		return false
	}
	return true
}

func (c *WriteContext) leave() { c.depth-- }

// trackIdentity returns the existing id for a previously seen reference, or
// allocates the next dense id on first sight. ok is false when the value
// carries no stable identity (a copied struct value); such values always
// get a fresh id and can never be back-referenced.
func (c *WriteContext) trackIdentity(v reflect.Value) (id int32, seen bool) {
	key, hasKey := identityKey(v)
	if hasKey {
		if prev, ok := c.idOf[key]; ok {
			return prev, true
		}
	}
	id = c.nextID
	c.nextID++
	if hasKey {
		c.idOf[key] = id
	}
	return id, false
}

// identityKey extracts a stable identity for reference-shaped values.
func identityKey(v reflect.Value) (refKey, bool) {
	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() {
			return refKey{}, false
		}
		length := 0
		if v.Elem().Kind() == reflect.Array {
			length = v.Elem().Len()
		}
		return refKey{pointer: unsafe.Pointer(v.Pointer()), length: length}, true
	case reflect.Map:
		if v.IsNil() {
			return refKey{}, false
		}
		return refKey{pointer: unsafe.Pointer(v.Pointer())}, true
	case reflect.Slice:
		if v.IsNil() {
			return refKey{}, false
		}
		return refKey{pointer: unsafe.Pointer(v.Pointer()), length: v.Len()}, true
	}
	return refKey{}, false
}

// ============================================================================
// Forward references
// ============================================================================

// forwardRef is the typed placeholder produced when a back-reference marker
// points at an id whose object has not been materialized yet. It never
// survives past the resolution passes into the application-visible graph.
type forwardRef struct {
	id int32
}

var typeOfForwardRef = reflect.TypeOf(forwardRef{})

func isForwardRef(v reflect.Value) (int32, bool) {
	if v.IsValid() && v.Type() == typeOfForwardRef {
		return v.Interface().(forwardRef).id, true
	}
	return 0, false
}

type pendingKind uint8

const (
	pendingField pendingKind = iota
	pendingIndex
	pendingMapValue
)

// pendingAssign records a container slot that referred to an object not yet
// materialized when the slot was read. Struct fields, list slots and map
// values are all tracked explicitly; nothing is null-coalesced.
type pendingAssign struct {
	kind   pendingKind
	target reflect.Value // *struct, slice or map
	field  int
	index  int
	key    reflect.Value
	id     int32
}

// ReadContext holds all per-call deserialization state.
type ReadContext struct {
	buffer          *ByteBuffer
	registry        *Registry
	gate            *TypeGate
	table           *typeRefTable
	allowReflection bool
	bulkArrays      bool
	depth           int
	maxDepth        int
	codecs          *codecCache
	err             Error

	// byId holds every identity-tracked object, registered before its
	// fields are populated so self-references resolve immediately.
	byId    []reflect.Value
	isReady []bool

	pending []pendingAssign

	// validated records types already checked against the gate this call.
	validated map[reflect.Type]struct{}
}

func newReadContext(registry *Registry, codecs *codecCache, gate *TypeGate, maxDepth int) *ReadContext {
	return &ReadContext{
		buffer:     NewByteBuffer(nil),
		registry:   registry,
		codecs:     codecs,
		gate:       gate,
		maxDepth:   maxDepth,
		bulkArrays: true,
		validated:  make(map[reflect.Type]struct{}),
	}
}

// Reset clears all call-scoped state for reuse, including on error paths.
func (c *ReadContext) Reset() {
	c.buffer.Reset()
	c.depth = 0
	c.err = Error{}
	c.byId = c.byId[:0]
	c.isReady = c.isReady[:0]
	c.pending = c.pending[:0]
	clear(c.validated)
	if c.table != nil {
		c.table.reset()
	}
}

// Buffer returns the underlying buffer.
func (c *ReadContext) Buffer() *ByteBuffer { return c.buffer }

// Err returns the context error accumulator.
func (c *ReadContext) Err() *Error { return &c.err }

// HasError reports whether a previous step failed.
func (c *ReadContext) HasError() bool { return c.err.HasError() }

// SetError records the first error encountered.
func (c *ReadContext) SetError(err error) { c.err.SetError(err) }

func (c *ReadContext) enter() bool {
	c.depth++
	if c.depth > c.maxDepth {
		c.SetError(MaxDepthExceededError(c.depth))
		return false
	}
	return true
}

func (c *ReadContext) leave() { c.depth-- }

// register places an object in the id table before its payload is decoded.
func (c *ReadContext) register(id int32, v reflect.Value) {
	for int(id) >= len(c.byId) {
		c.byId = append(c.byId, reflect.Value{})
		c.isReady = append(c.isReady, false)
	}
	c.byId[id] = v
	c.isReady[id] = true
}

// lookup returns the object for id, or a forwardRef placeholder when the
// object has not been materialized yet.
func (c *ReadContext) lookup(id int32) reflect.Value {
	if int(id) < len(c.byId) && c.isReady[id] {
		return c.byId[id]
	}
	return reflect.ValueOf(forwardRef{id: id})
}

// validateType runs the security gate exactly once per distinct resolved
// type per call.
func (c *ReadContext) validateType(d TypeDescriptor, t reflect.Type) error {
	if t == nil {
		return nil
	}
	if _, done := c.validated[t]; done {
		return nil
	}
	if err := c.gate.Validate(d, t); err != nil {
		return err
	}
	c.validated[t] = struct{}{}
	return nil
}

// addPending records a slot whose referent is not materialized yet.
func (c *ReadContext) addPending(p pendingAssign) {
	c.pending = append(c.pending, p)
}

// resolvePending runs up to len(pending)+1 passes over the pending slots,
// assigning every referent that has materialized. It returns the entries
// that could not be resolved.
func (c *ReadContext) resolvePending() []pendingAssign {
	for pass := 0; pass <= len(c.pending); pass++ {
		if len(c.pending) == 0 {
			break
		}
		remaining := c.pending[:0]
		progress := false
		for _, p := range c.pending {
			if int(p.id) < len(c.byId) && c.isReady[p.id] {
				applyPending(p, c.byId[p.id])
				progress = true
			} else {
				remaining = append(remaining, p)
			}
		}
		c.pending = remaining
		if !progress {
			break
		}
	}
	return c.pending
}

// applyPending assigns a materialized referent into the recorded slot.
func applyPending(p pendingAssign, obj reflect.Value) {
	switch p.kind {
	case pendingField:
		target := p.target
		for target.Kind() == reflect.Ptr {
			target = target.Elem()
		}
		assignCompat(target.Field(p.field), obj)
	case pendingIndex:
		assignCompat(p.target.Index(p.index), obj)
	case pendingMapValue:
		elem := reflect.New(p.target.Type().Elem()).Elem()
		assignCompat(elem, obj)
		p.target.SetMapIndex(p.key, elem)
	}
}

// assignCompat sets src into dst, converting or dereferencing as needed.
func assignCompat(dst, src reflect.Value) {
	if !dst.CanSet() || !src.IsValid() {
		return
	}
	srcType := src.Type()
	dstType := dst.Type()
	switch {
	case srcType.AssignableTo(dstType):
		dst.Set(src)
	case srcType.ConvertibleTo(dstType):
		dst.Set(src.Convert(dstType))
	case src.Kind() == reflect.Ptr && srcType.Elem().AssignableTo(dstType):
		dst.Set(src.Elem())
	case src.Kind() == reflect.Ptr && srcType.Elem().ConvertibleTo(dstType):
		dst.Set(src.Elem().Convert(dstType))
	case dst.Kind() == reflect.Ptr && srcType.AssignableTo(dstType.Elem()):
		ptr := reflect.New(dstType.Elem())
		ptr.Elem().Set(src)
		dst.Set(ptr)
	}
}
