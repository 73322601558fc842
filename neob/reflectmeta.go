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

// MemberKind distinguishes what a MemberRef points at.
type MemberKind uint8

const (
	MemberKindField MemberKind = iota
	MemberKindMethod
	MemberKindProperty
)

// MemberRef names a member of a type without holding any runtime handle,
// so member identity survives the wire even when the declaring type does
// not exist on the receiving side.
type MemberRef struct {
	Declaring TypeDescriptor
	Name      string
	Kind      MemberKind
}

// writeReflectTypePayload encodes a reflect.Type value as its descriptor.
func writeReflectTypePayload(ctx *WriteContext, v reflect.Value) {
	rt, ok := v.Interface().(reflect.Type)
	if !ok || rt == nil {
		ctx.SetError(SerializationErrorf("neob: %s does not carry a reflect.Type", v.Type()))
		return
	}
	writeTypeDescriptor(ctx.buffer, ctx.table, ctx.registry.DescriptorFor(rt, ctx.includeVersions))
}

// readReflectTypePayload decodes a type payload. Reflection payloads are
// refused unless explicitly enabled; when the named type cannot be resolved
// the result is nil rather than an error, since a type handle that does not
// exist locally is still a valid remote statement.
func readReflectTypePayload(ctx *ReadContext, id int32) reflect.Value {
	desc := readTypeDescriptor(ctx.buffer, ctx.table, ctx.Err())
	if ctx.HasError() {
		return reflect.Value{}
	}
	if !ctx.allowReflection {
		ctx.SetError(UnsafeTypeError(desc.Name, desc.Assembly, "reflection payloads are disabled"))
		return reflect.Value{}
	}
	t, err := ctx.registry.ResolveType(desc)
	if err != nil || t == nil {
		ctx.register(id, reflect.Value{})
		return reflect.Value{}
	}
	v := reflect.ValueOf(t)
	ctx.register(id, v)
	return v
}

// writeMemberRefPayload encodes a member reference.
func writeMemberRefPayload(ctx *WriteContext, v reflect.Value) {
	mr := v.Interface().(MemberRef)
	writeTypeDescriptor(ctx.buffer, ctx.table, mr.Declaring)
	ctx.buffer.WriteString(mr.Name)
	ctx.buffer.WriteByte_(byte(mr.Kind))
}

// readMemberRefPayload decodes a member reference. The declaring type is
// carried as a descriptor only and is never resolved or validated here; a
// MemberRef is inert data until someone dereferences it.
func readMemberRefPayload(ctx *ReadContext, id int32) reflect.Value {
	buf := ctx.buffer
	if !ctx.allowReflection {
		ctx.SetError(UnsafeTypeError("MemberRef", "", "reflection payloads are disabled"))
		return reflect.Value{}
	}
	mr := &MemberRef{}
	ptr := reflect.ValueOf(mr)
	ctx.register(id, ptr)
	mr.Declaring = readTypeDescriptor(buf, ctx.table, ctx.Err())
	mr.Name = buf.ReadString(ctx.Err())
	mr.Kind = MemberKind(buf.ReadByte_(ctx.Err()))
	return ptr
}
