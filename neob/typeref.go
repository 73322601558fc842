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
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/spaolacci/murmur3"
)

// TypeDescriptor is the serializable identity of a runtime type: a possibly
// assembly-neutral name plus its assembly and optional version. The zero
// descriptor is the null-type sentinel and encodes as an empty triple.
type TypeDescriptor struct {
	Name     string
	Assembly string
	Version  string
}

// IsZero reports whether this is the null-type sentinel.
func (d TypeDescriptor) IsZero() bool {
	return d.Name == ""
}

// SimpleName returns the name after the last namespace separator.
func (d TypeDescriptor) SimpleName() string {
	if i := strings.LastIndexByte(d.Name, '.'); i >= 0 {
		return d.Name[i+1:]
	}
	return d.Name
}

// Namespace returns the name up to the last separator, empty for simple names.
func (d TypeDescriptor) Namespace() string {
	if i := strings.LastIndexByte(d.Name, '.'); i >= 0 {
		return d.Name[:i]
	}
	return ""
}

func (d TypeDescriptor) hash() uint64 {
	return murmur3.Sum64([]byte(d.Name + "|" + d.Assembly + "|" + d.Version))
}

// Descriptor kind bytes used when the type-reference table is active.
const (
	descKindInline  byte = 0
	descKindIndexed byte = 1
)

// typeRefTable replaces repeated type descriptors with small integer
// indices within one serialize/deserialize call pair. It is stream-local
// state and never persists across calls.
type typeRefTable struct {
	descriptors []TypeDescriptor
	index       map[TypeDescriptor]uint32
}

func newTypeRefTable() *typeRefTable {
	return &typeRefTable{index: make(map[TypeDescriptor]uint32)}
}

func (t *typeRefTable) reset() {
	t.descriptors = t.descriptors[:0]
	clear(t.index)
}

func (t *typeRefTable) lookup(d TypeDescriptor) (uint32, bool) {
	idx, ok := t.index[d]
	return idx, ok
}

func (t *typeRefTable) register(d TypeDescriptor) uint32 {
	idx := uint32(len(t.descriptors))
	t.descriptors = append(t.descriptors, d)
	t.index[d] = idx
	return idx
}

func (t *typeRefTable) get(idx uint32) (TypeDescriptor, bool) {
	if int(idx) >= len(t.descriptors) {
		return TypeDescriptor{}, false
	}
	return t.descriptors[idx], true
}

// writeTypeDescriptor writes a descriptor, consulting the table when active.
// The null type is always written as an empty triple so stream alignment is
// identical in both modes.
func writeTypeDescriptor(buf *ByteBuffer, table *typeRefTable, d TypeDescriptor) {
	if table == nil || d.IsZero() {
		if table != nil {
			buf.WriteByte_(descKindInline)
		}
		buf.WriteString(d.Name)
		buf.WriteString(d.Assembly)
		buf.WriteString(d.Version)
		return
	}
	if idx, ok := table.lookup(d); ok {
		buf.WriteByte_(descKindIndexed)
		buf.WriteVaruint32(idx)
		return
	}
	buf.WriteByte_(descKindInline)
	buf.WriteString(d.Name)
	buf.WriteString(d.Assembly)
	buf.WriteString(d.Version)
	table.register(d)
}

// readTypeDescriptor mirrors writeTypeDescriptor.
func readTypeDescriptor(buf *ByteBuffer, table *typeRefTable, err *Error) TypeDescriptor {
	if table == nil {
		return TypeDescriptor{
			Name:     buf.ReadString(err),
			Assembly: buf.ReadString(err),
			Version:  buf.ReadString(err),
		}
	}
	kind := buf.ReadByte_(err)
	if err.HasError() {
		return TypeDescriptor{}
	}
	switch kind {
	case descKindIndexed:
		idx := buf.ReadVaruint32(err)
		if err.HasError() {
			return TypeDescriptor{}
		}
		d, ok := table.get(idx)
		if !ok {
			*err = ProtocolErrorf(buf.ReaderIndex(), buf.HexDumpAround(buf.ReaderIndex()),
				"type reference index %d out of range", idx)
		}
		return d
	case descKindInline:
		d := TypeDescriptor{
			Name:     buf.ReadString(err),
			Assembly: buf.ReadString(err),
			Version:  buf.ReadString(err),
		}
		if !d.IsZero() && !err.HasError() {
			table.register(d)
		}
		return d
	default:
		*err = ProtocolErrorf(buf.ReaderIndex(), buf.HexDumpAround(buf.ReaderIndex()),
			"invalid type descriptor kind 0x%02x", kind)
		return TypeDescriptor{}
	}
}

// ============================================================================
// Registry - process-wide name<->type resolution with concurrent caches
// ============================================================================

// Registry resolves runtime types to and from serializable descriptors.
// All caches are safe for concurrent read/insert; the Registry is intended
// to be shared across many concurrent serialization calls.
type Registry struct {
	namesByType  sync.Map // reflect.Type -> registeredName
	typesByName  sync.Map // string full name -> reflect.Type
	typesBySimp  sync.Map // string simple name -> reflect.Type
	resolved     sync.Map // uint64 descriptor hash -> reflect.Type
	descCache    sync.Map // descCacheKey -> TypeDescriptor
	factories    sync.Map // reflect.Type -> func() reflect.Value
	customByType sync.Map // reflect.Type -> CustomHandler
}

type registeredName struct {
	name     string
	assembly string
	version  string
}

type descCacheKey struct {
	type_           reflect.Type
	includeVersions bool
}

// builtinTypes is the static table for well-known primitive names.
var builtinTypes = map[string]reflect.Type{
	"bool":     reflect.TypeOf(false),
	"int8":     reflect.TypeOf(int8(0)),
	"int16":    reflect.TypeOf(int16(0)),
	"int32":    reflect.TypeOf(int32(0)),
	"int64":    reflect.TypeOf(int64(0)),
	"int":      reflect.TypeOf(int(0)),
	"uint8":    reflect.TypeOf(uint8(0)),
	"uint16":   reflect.TypeOf(uint16(0)),
	"uint32":   reflect.TypeOf(uint32(0)),
	"uint64":   reflect.TypeOf(uint64(0)),
	"uint":     reflect.TypeOf(uint(0)),
	"float32":  reflect.TypeOf(float32(0)),
	"float64":  reflect.TypeOf(float64(0)),
	"string":   reflect.TypeOf(""),
	"datetime": typeOfTime,
	"duration": typeOfDuration,
	"decimal":  typeOfDecimal,
	"object":   typeOfAny,
}

var builtinNames = func() map[reflect.Type]string {
	m := make(map[reflect.Type]string, len(builtinTypes))
	for name, t := range builtinTypes {
		m[t] = name
	}
	return m
}()

// defaultRegistry backs serializer instances that are not given an explicit
// registry, so resolution caches are shared process-wide.
var defaultRegistry = NewRegistry()

// NewRegistry creates a registry pre-populated with the well-known wire
// types, so both sides resolve them without explicit registration.
func NewRegistry() *Registry {
	r := &Registry{}
	_ = r.RegisterNamedType(reflect.TypeOf(RemoteError{}), "RemoteError", "", "")
	_ = r.RegisterNamedType(reflect.TypeOf(ArgumentError{}), "ArgumentError", "", "")
	_ = r.RegisterNamedType(reflect.TypeOf(DataTable{}), "DataTable", "", "")
	_ = r.RegisterNamedType(reflect.TypeOf(DataSet{}), "DataSet", "", "")
	_ = r.RegisterNamedType(reflect.TypeOf(MemberRef{}), "MemberRef", "", "")
	_ = r.RegisterNamedType(typeOfReflectTyp, "TypeRef", "", "")
	return r
}

// RegisterNamedType maps a Go type to a stable wire name. type_ can be a
// reflect.Type or an instance. Version may be empty.
func (r *Registry) RegisterNamedType(type_ any, name, assembly, version string) error {
	t, err := toReflectType(type_)
	if err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("neob: type name must not be empty")
	}
	r.namesByType.Store(t, registeredName{name: name, assembly: assembly, version: version})
	r.typesByName.Store(name, t)
	simple := name
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		simple = name[i+1:]
	}
	r.typesBySimp.Store(simple, t)
	return nil
}

// RegisterFactory installs a construction hook for a type, tried before the
// default zero-value allocation when instances are materialized.
func (r *Registry) RegisterFactory(type_ any, factory func() reflect.Value) error {
	t, err := toReflectType(type_)
	if err != nil {
		return err
	}
	r.factories.Store(t, factory)
	return nil
}

func toReflectType(type_ any) (reflect.Type, error) {
	if type_ == nil {
		return nil, fmt.Errorf("neob: nil type")
	}
	if rt, ok := type_.(reflect.Type); ok {
		return rt, nil
	}
	t := reflect.TypeOf(type_)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t, nil
}

// newInstance creates an addressable *T value, trying a registered factory
// first and falling back to zero-value allocation.
func (r *Registry) newInstance(t reflect.Type) (v reflect.Value, err error) {
	if f, ok := r.factories.Load(t); ok {
		v = f.(func() reflect.Value)()
		if !v.IsValid() || v.Type() != reflect.PtrTo(t) {
			return reflect.Value{}, ConstructionError(t.String(), "factory returned wrong type")
		}
		return v, nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = ConstructionError(t.String(), fmt.Sprint(rec))
		}
	}()
	return reflect.New(t), nil
}

// DescriptorFor renders the wire descriptor of a runtime type. Generic and
// element names compose recursively; pointer types describe their element.
func (r *Registry) DescriptorFor(t reflect.Type, includeVersions bool) TypeDescriptor {
	key := descCacheKey{type_: t, includeVersions: includeVersions}
	if cached, ok := r.descCache.Load(key); ok {
		return cached.(TypeDescriptor)
	}
	d := r.descriptorForSlow(t, includeVersions)
	r.descCache.Store(key, d)
	return d
}

func (r *Registry) descriptorForSlow(t reflect.Type, includeVersions bool) TypeDescriptor {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if name, ok := builtinNames[t]; ok {
		return TypeDescriptor{Name: name}
	}
	if reg, ok := r.namesByType.Load(t); ok {
		rn := reg.(registeredName)
		version := ""
		if includeVersions {
			version = rn.version
		}
		return TypeDescriptor{Name: rn.name, Assembly: rn.assembly, Version: version}
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		elem := r.DescriptorFor(t.Elem(), includeVersions)
		return TypeDescriptor{Name: elem.Name + "[]", Assembly: elem.Assembly, Version: elem.Version}
	case reflect.Map:
		k := r.DescriptorFor(t.Key(), includeVersions)
		v := r.DescriptorFor(t.Elem(), includeVersions)
		return TypeDescriptor{Name: fmt.Sprintf("Dictionary`2[[%s],[%s]]", k.Name, v.Name)}
	}
	if t.PkgPath() != "" {
		return TypeDescriptor{Name: t.PkgPath() + "." + t.Name(), Assembly: t.PkgPath()}
	}
	return TypeDescriptor{Name: t.String()}
}

// arrayDescriptor renders an array descriptor of the given rank, appending
// the bracket notation ("[]", "[,]", ...) to the element's own name.
func (r *Registry) arrayDescriptor(elem reflect.Type, rank int, includeVersions bool) TypeDescriptor {
	ed := r.DescriptorFor(elem, includeVersions)
	return TypeDescriptor{
		Name:     ed.Name + "[" + strings.Repeat(",", rank-1) + "]",
		Assembly: ed.Assembly,
		Version:  ed.Version,
	}
}

// ResolveType maps a descriptor back to a runtime type. The layered chain
// is: builtin table, resolved-type cache, registered full name, registered
// simple name, then assembly-neutral parsing of array/generic notation.
// Failure is fatal for the call; it indicates corruption or a missing
// registration on the receiving side.
func (r *Registry) ResolveType(d TypeDescriptor) (reflect.Type, error) {
	if d.IsZero() {
		return nil, nil
	}
	if t, ok := builtinTypes[d.Name]; ok {
		return t, nil
	}
	h := d.hash()
	if cached, ok := r.resolved.Load(h); ok {
		return cached.(reflect.Type), nil
	}
	t, err := r.resolveSlow(d)
	if err != nil {
		return nil, err
	}
	r.resolved.Store(h, t)
	return t, nil
}

func (r *Registry) resolveSlow(d TypeDescriptor) (reflect.Type, error) {
	if t, ok := r.typesByName.Load(d.Name); ok {
		return t.(reflect.Type), nil
	}
	if t, ok := r.typesBySimp.Load(d.SimpleName()); ok {
		return t.(reflect.Type), nil
	}
	// Assembly-neutral reconstruction: arrays by rank, then generic maps.
	if elemName, rank, ok := splitArrayNotation(d.Name); ok {
		elem, err := r.ResolveType(TypeDescriptor{Name: elemName, Assembly: d.Assembly, Version: d.Version})
		if err != nil {
			return nil, err
		}
		_ = rank // rank is carried by the array payload header
		return reflect.SliceOf(elem), nil
	}
	if keyName, valName, ok := splitDictionaryNotation(d.Name); ok {
		key, err := r.ResolveType(TypeDescriptor{Name: keyName})
		if err != nil {
			return nil, err
		}
		val, err := r.ResolveType(TypeDescriptor{Name: valName})
		if err != nil {
			return nil, err
		}
		if !key.Comparable() {
			return nil, TypeResolutionError(d.Name, d.Assembly, "map key type is not comparable")
		}
		return reflect.MapOf(key, val), nil
	}
	return nil, TypeResolutionError(d.Name, d.Assembly, "type is not registered on this side")
}

// splitArrayNotation strips a trailing "[]"/"[,]"/... and returns the
// element name and rank.
func splitArrayNotation(name string) (string, int, bool) {
	if !strings.HasSuffix(name, "]") {
		return "", 0, false
	}
	open := strings.LastIndexByte(name, '[')
	if open <= 0 {
		return "", 0, false
	}
	inner := name[open+1 : len(name)-1]
	for _, c := range inner {
		if c != ',' {
			return "", 0, false
		}
	}
	return name[:open], len(inner) + 1, true
}

// splitDictionaryNotation parses the recursive generic rendering
// Dictionary`2[[K],[V]], honoring nested brackets in the arguments.
func splitDictionaryNotation(name string) (string, string, bool) {
	const prefix = "Dictionary`2[["
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, "]]") {
		return "", "", false
	}
	body := name[len(prefix)-1 : len(name)-1] // "[K],[V]"
	args := splitBracketedArgs(body)
	if len(args) != 2 {
		return "", "", false
	}
	return args[0], args[1], true
}

// splitBracketedArgs splits "[A],[B],..." at depth zero.
func splitBracketedArgs(s string) []string {
	var args []string
	depth := 0
	start := -1
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			if depth == 0 {
				start = i + 1
			}
			depth++
		case ']':
			depth--
			if depth == 0 && start >= 0 {
				args = append(args, s[start:i])
				start = -1
			}
		}
	}
	if depth != 0 {
		return nil
	}
	return args
}
