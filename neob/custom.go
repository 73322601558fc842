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

import "reflect"

// SerializationEntry is one named slot of a custom-serialized object. Type
// is informational: on read it reports the decoded value's runtime type.
// The wire carries each value's own descriptor, so writers may leave it nil.
type SerializationEntry struct {
	Name  string
	Type  reflect.Type
	Value any
}

// CustomSerializable lets a type take over its own wire representation.
// GetObjectData produces the entries to write; SetObjectData restores state
// from the entries read back, called on a fresh zero-value instance.
type CustomSerializable interface {
	GetObjectData() []SerializationEntry
	SetObjectData(entries []SerializationEntry) error
}

// CustomHandler serializes a type that cannot implement CustomSerializable
// itself, registered per type via Registry.RegisterCustomHandler.
type CustomHandler interface {
	Write(obj any) ([]SerializationEntry, error)
	Read(entries []SerializationEntry) (any, error)
}

// RegisterCustomHandler installs an external serialization handler for a
// type. Handlers win over the type's own CustomSerializable implementation.
func (r *Registry) RegisterCustomHandler(type_ any, handler CustomHandler) error {
	t, err := toReflectType(type_)
	if err != nil {
		return err
	}
	r.customByType.Store(t, handler)
	return nil
}

func (r *Registry) customHandler(t reflect.Type) (CustomHandler, bool) {
	if h, ok := r.customByType.Load(t); ok {
		return h.(CustomHandler), true
	}
	return nil, false
}

// writeCustomPayload encodes an object through its handler or its own
// CustomSerializable implementation: entry count, then name/value pairs
// where values take the full graph walk.
func writeCustomPayload(ctx *WriteContext, v reflect.Value) {
	t := derefValue(v).Type()
	var entries []SerializationEntry
	if handler, ok := ctx.registry.customHandler(t); ok {
		var err error
		entries, err = handler.Write(derefValue(v).Interface())
		if err != nil {
			ctx.SetError(SerializationErrorf("neob: custom handler for %s failed: %s", t, err))
			return
		}
	} else {
		cs, ok := asCustomSerializable(v)
		if !ok {
			ctx.SetError(SerializationErrorf("neob: %s has no custom serialization path", t))
			return
		}
		entries = cs.GetObjectData()
	}
	ctx.buffer.WriteLength(len(entries))
	for _, entry := range entries {
		if ctx.HasError() {
			return
		}
		ctx.buffer.WriteString(entry.Name)
		writeValue(ctx, reflect.ValueOf(entry.Value))
	}
}

// readCustomPayload decodes the entry list and hands it to the handler or
// the freshly constructed instance. Entries are delivered in one batch, so
// forward references inside them cannot be deferred and are an error.
func readCustomPayload(ctx *ReadContext, id int32, t reflect.Type) reflect.Value {
	buf := ctx.buffer
	ptr, err := ctx.registry.newInstance(t)
	if err != nil {
		ctx.SetError(err)
		return reflect.Value{}
	}
	ctx.register(id, ptr)

	n := buf.ReadLength(ctx.Err())
	if ctx.HasError() {
		return reflect.Value{}
	}
	if n < 0 || n > buf.Remaining() {
		ctx.SetError(DeserializationErrorf("neob: custom entry count %d exceeds remaining %d bytes", n, buf.Remaining()))
		return reflect.Value{}
	}
	entries := make([]SerializationEntry, 0, n)
	for i := 0; i < n; i++ {
		name := buf.ReadString(ctx.Err())
		ev := readValue(ctx)
		if ctx.HasError() {
			return ptr
		}
		if _, pending := isForwardRef(ev); pending {
			ctx.SetError(DeserializationErrorf(
				"neob: custom serialization entry %q forward-references an unmaterialized object", name))
			return ptr
		}
		entry := SerializationEntry{Name: name}
		if ev.IsValid() {
			entry.Type = ev.Type()
			entry.Value = ev.Interface()
		}
		entries = append(entries, entry)
	}

	if handler, ok := ctx.registry.customHandler(t); ok {
		obj, err := handler.Read(entries)
		if err != nil {
			ctx.SetError(DeserializationErrorf("neob: custom handler for %s failed: %s", t, err))
			return ptr
		}
		v := reflect.ValueOf(obj)
		ctx.register(id, v)
		return v
	}
	cs, ok := ptr.Interface().(CustomSerializable)
	if !ok {
		ctx.SetError(DeserializationErrorf("neob: %s has no custom serialization path", t))
		return ptr
	}
	if err := cs.SetObjectData(entries); err != nil {
		ctx.SetError(DeserializationErrorf("neob: %s rejected its serialization entries: %s", t, err))
	}
	return ptr
}

// asCustomSerializable boxes v as CustomSerializable, taking the address
// when the methods have a pointer receiver.
func asCustomSerializable(v reflect.Value) (CustomSerializable, bool) {
	if v.Type().Implements(typeOfCustomSer) {
		cs, ok := v.Interface().(CustomSerializable)
		return cs, ok
	}
	elem := derefValue(v)
	if reflect.PtrTo(elem.Type()).Implements(typeOfCustomSer) {
		ptr := reflect.New(elem.Type())
		ptr.Elem().Set(elem)
		return ptr.Interface().(CustomSerializable), true
	}
	return nil, false
}
