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
	"errors"
	"reflect"
)

// RemoteError is the wire-portable error shape. Remote failures arrive as
// RemoteError values carrying the far side's message, origin and cause
// chain; local error types with matching field names round-trip losslessly.
type RemoteError struct {
	Message    string
	Source     string
	StackTrace string
	HelpLink   string
	Code       int32
	Inner      error
	Data       map[string]any
}

func (e *RemoteError) Error() string {
	if e.Source != "" {
		return e.Source + ": " + e.Message
	}
	return e.Message
}

func (e *RemoteError) Unwrap() error { return e.Inner }

// ArgumentError is the well-known subtype for invalid call arguments.
type ArgumentError struct {
	RemoteError
	ParamName   string
	ActualValue any
}

// Error payload subtype section kinds.
const (
	subtypeNone      byte = 0
	subtypeArgument  byte = 1
	subtypeReflected byte = 2
)

// standardErrorFields are carried in the fixed standard block and excluded
// from the reflected extras section.
var standardErrorFields = map[string]struct{}{
	"Message": {}, "Source": {}, "StackTrace": {}, "HelpLink": {},
	"Code": {}, "Inner": {}, "Data": {},
	"RemoteError": {}, "ParamName": {}, "ActualValue": {},
}

// writeErrorPayload encodes an error-class object: the fixed standard block
// (message, source, stack trace, help link, code, inner cause, data map)
// followed by a subtype section. Well-known subtypes get a dedicated
// section; anything else ships its non-standard exported fields by
// reflection so foreign error types degrade instead of failing.
func writeErrorPayload(ctx *WriteContext, v reflect.Value) {
	buf := ctx.buffer
	view := makeErrorView(v)
	buf.WriteString(view.message)
	buf.WriteString(view.source)
	buf.WriteString(view.stackTrace)
	buf.WriteString(view.helpLink)
	buf.WriteInt32(view.code)
	writeValue(ctx, view.inner)
	writeValue(ctx, view.data)
	if ctx.HasError() {
		return
	}

	t := v.Type()
	switch {
	case t == typeOfRemoteErr:
		buf.WriteByte_(subtypeNone)
	case hasStringField(t, "ParamName"):
		buf.WriteByte_(subtypeArgument)
		buf.WriteString(v.FieldByName("ParamName").String())
		writeValue(ctx, v.FieldByName("ActualValue"))
	default:
		buf.WriteByte_(subtypeReflected)
		writeReflectedExtras(ctx, v)
	}
}

func writeReflectedExtras(ctx *WriteContext, v reflect.Value) {
	codec := ctx.codecs.get(v.Type())
	var extras []fieldInfo
	for _, f := range codec.fields {
		if _, standard := standardErrorFields[f.name]; standard {
			continue
		}
		extras = append(extras, f)
	}
	ctx.buffer.WriteLength(len(extras))
	for _, f := range extras {
		if ctx.HasError() {
			return
		}
		ctx.buffer.WriteString(f.name)
		writeValue(ctx, v.Field(f.index))
	}
}

// readErrorPayload decodes an error-class object into the resolved type.
// Standard fields are matched by name so RemoteError and compatible foreign
// shapes share one decode path.
func readErrorPayload(ctx *ReadContext, id int32, t reflect.Type) reflect.Value {
	buf := ctx.buffer
	message := buf.ReadString(ctx.Err())
	source := buf.ReadString(ctx.Err())
	stackTrace := buf.ReadString(ctx.Err())
	helpLink := buf.ReadString(ctx.Err())
	code := buf.ReadInt32(ctx.Err())
	if ctx.HasError() {
		return reflect.Value{}
	}

	ptr, err := ctx.registry.newInstance(t)
	if err != nil {
		ctx.SetError(err)
		return reflect.Value{}
	}
	ctx.register(id, ptr)
	elem := ptr.Elem()
	setNamedField(elem, "Message", reflect.ValueOf(message))
	setNamedField(elem, "Source", reflect.ValueOf(source))
	setNamedField(elem, "StackTrace", reflect.ValueOf(stackTrace))
	setNamedField(elem, "HelpLink", reflect.ValueOf(helpLink))
	setNamedField(elem, "Code", reflect.ValueOf(code))

	readErrorSlot(ctx, elem, "Inner", id)
	readErrorSlot(ctx, elem, "Data", id)
	if ctx.HasError() {
		return ptr
	}

	pos := buf.ReaderIndex()
	kind := buf.ReadByte_(ctx.Err())
	if ctx.HasError() {
		return ptr
	}
	switch kind {
	case subtypeNone:
	case subtypeArgument:
		setNamedField(elem, "ParamName", reflect.ValueOf(buf.ReadString(ctx.Err())))
		readErrorSlot(ctx, elem, "ActualValue", id)
	case subtypeReflected:
		n := buf.ReadLength(ctx.Err())
		if ctx.HasError() {
			return ptr
		}
		for i := 0; i < n && !ctx.HasError(); i++ {
			name := buf.ReadString(ctx.Err())
			readErrorSlot(ctx, elem, name, id)
		}
	default:
		ctx.SetError(ProtocolErrorf(pos, buf.HexDumpAround(pos),
			"invalid error subtype kind 0x%02x", kind))
	}
	return ptr
}

// readErrorSlot reads one graph value into the named field of elem, tracking
// forward references against the field's immediate containing struct.
func readErrorSlot(ctx *ReadContext, elem reflect.Value, name string, selfID int32) {
	fv := readValue(ctx)
	if ctx.HasError() {
		return
	}
	sf, ok := elem.Type().FieldByName(name)
	if !ok {
		return
	}
	if refID, pending := isForwardRef(fv); pending {
		parent, index := fieldSlot(elem, sf.Index)
		if refID == selfID {
			assignCompat(parent.Field(index), ctx.byId[selfID])
			return
		}
		ctx.addPending(pendingAssign{kind: pendingField, target: parent.Addr(), field: index, id: refID})
		return
	}
	if fv.IsValid() {
		parent, index := fieldSlot(elem, sf.Index)
		assignCompat(parent.Field(index), fv)
	}
}

// fieldSlot walks an embedded field index path down to the immediate parent
// struct and the local field index within it.
func fieldSlot(elem reflect.Value, index []int) (reflect.Value, int) {
	parent := elem
	for _, i := range index[:len(index)-1] {
		parent = parent.Field(i)
	}
	return parent, index[len(index)-1]
}

func setNamedField(elem reflect.Value, name string, v reflect.Value) {
	f := elem.FieldByName(name)
	if f.IsValid() && f.CanSet() {
		assignCompat(f, v)
	}
}

func hasStringField(t reflect.Type, name string) bool {
	sf, ok := t.FieldByName(name)
	return ok && sf.Type.Kind() == reflect.String
}

// errorView is the standard block extracted from an arbitrary error value.
type errorView struct {
	message    string
	source     string
	stackTrace string
	helpLink   string
	code       int32
	inner      reflect.Value
	data       reflect.Value
}

// makeErrorView pulls the standard fields out of any error-class value,
// falling back to the Error() string and errors.Unwrap for types that do
// not expose the fields directly.
func makeErrorView(v reflect.Value) errorView {
	view := errorView{}
	if v.Kind() == reflect.Struct {
		if f := v.FieldByName("Message"); f.IsValid() && f.Kind() == reflect.String {
			view.message = f.String()
		}
		if f := v.FieldByName("Source"); f.IsValid() && f.Kind() == reflect.String {
			view.source = f.String()
		}
		if f := v.FieldByName("StackTrace"); f.IsValid() && f.Kind() == reflect.String {
			view.stackTrace = f.String()
		}
		if f := v.FieldByName("HelpLink"); f.IsValid() && f.Kind() == reflect.String {
			view.helpLink = f.String()
		}
		if f := v.FieldByName("Code"); f.IsValid() && f.CanInt() {
			view.code = int32(f.Int())
		}
		if f := v.FieldByName("Inner"); f.IsValid() {
			view.inner = f
		}
		if f := v.FieldByName("Data"); f.IsValid() && f.Kind() == reflect.Map {
			view.data = f
		}
	}
	if asErr := asError(v); asErr != nil {
		if view.message == "" {
			view.message = asErr.Error()
		}
		if !view.inner.IsValid() {
			if cause := errors.Unwrap(asErr); cause != nil {
				view.inner = reflect.ValueOf(cause)
			}
		}
	}
	return view
}

// asError boxes a value as the error interface, taking the address when the
// Error method has a pointer receiver.
func asError(v reflect.Value) error {
	if v.Type().Implements(typeOfError) {
		return v.Interface().(error)
	}
	if reflect.PtrTo(v.Type()).Implements(typeOfError) {
		ptr := reflect.New(v.Type())
		ptr.Elem().Set(v)
		return ptr.Interface().(error)
	}
	return nil
}
