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
	"sort"
	"sync"
	"sync/atomic"
	"time"
	"unicode"
	"unicode/utf8"
)

// fieldInfo describes one serializable field of a struct type.
type fieldInfo struct {
	name  string
	index int
	type_ reflect.Type
}

// structCodec is the frozen, per-type field enumeration plus access
// bookkeeping for eviction scoring. The field list is computed once and
// never changes for the type's lifetime.
type structCodec struct {
	type_      reflect.Type
	fields     []fieldInfo
	createdAt  time.Time
	lastAccess atomic.Int64 // unix nanos
	hits       atomic.Int64
}

// newStructCodec enumerates the instance fields of t in a fixed,
// deterministic order (sorted by name) that both sides of the wire
// reproduce identically. Unexported, func-typed, channel and explicitly
// ignored (`neob:"-"`) fields are filtered out.
func newStructCodec(t reflect.Type) *structCodec {
	var fields []fieldInfo
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		firstRune, _ := utf8.DecodeRuneInString(field.Name)
		if unicode.IsLower(firstRune) || firstRune == '_' {
			continue
		}
		if tag := field.Tag.Get("neob"); tag == "-" {
			continue
		}
		switch field.Type.Kind() {
		case reflect.Func, reflect.Chan, reflect.UnsafePointer:
			continue
		}
		fields = append(fields, fieldInfo{name: field.Name, index: i, type_: field.Type})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].name < fields[j].name })
	codec := &structCodec{
		type_:     t,
		fields:    fields,
		createdAt: time.Now(),
	}
	codec.lastAccess.Store(time.Now().UnixNano())
	return codec
}

// touch records an access for eviction scoring.
func (sc *structCodec) touch() {
	sc.lastAccess.Store(time.Now().UnixNano())
	sc.hits.Add(1)
}

// score combines recency and frequency, recency weighted higher. Lower
// scores evict first.
func (sc *structCodec) score(now int64) float64 {
	ageSeconds := float64(now-sc.lastAccess.Load()) / float64(time.Second)
	if ageSeconds < 0 {
		ageSeconds = 0
	}
	recency := 1.0 / (1.0 + ageSeconds)
	hits := float64(sc.hits.Load())
	frequency := hits / (hits + 10.0)
	return 0.75*recency + 0.25*frequency
}

// maxLegacyFieldCount bounds the legacy layout's field count. Counts below
// 254 never start their varuint with 0xFE, so the compact-layout tag peek
// after the type descriptor stays unambiguous.
const maxLegacyFieldCount = 253

// writeFields encodes a struct payload. Legacy layout writes the field
// count and each name ahead of its value; compact layout writes values
// only, relying on both sides sharing the exact enumeration order.
func (sc *structCodec) writeFields(ctx *WriteContext, v reflect.Value, compact bool) {
	if !compact {
		if len(sc.fields) > maxLegacyFieldCount {
			ctx.SetError(SerializationErrorf(
				"neob: %s has %d fields, the named layout carries at most %d; use the compact layout",
				sc.type_, len(sc.fields), maxLegacyFieldCount))
			return
		}
		ctx.buffer.WriteLength(len(sc.fields))
	}
	for _, f := range sc.fields {
		if ctx.HasError() {
			return
		}
		if !compact {
			ctx.buffer.WriteString(f.name)
		}
		writeValue(ctx, v.Field(f.index))
	}
}

// readFields decodes a struct payload into target (an addressable struct
// value). Field names in the legacy layout are re-read and discarded; both
// layouts rely on identical enumeration order between producer and
// consumer. Forward references are recorded as pending field assignments,
// except self-references which are satisfied immediately.
func (sc *structCodec) readFields(ctx *ReadContext, target reflect.Value, selfID int32, compact bool) {
	count := len(sc.fields)
	if !compact {
		count = ctx.buffer.ReadLength(ctx.Err())
		if ctx.HasError() {
			return
		}
		if count != len(sc.fields) {
			ctx.SetError(DeserializationErrorf(
				"neob: field count %d does not match %d fields of %s; incompatible layouts",
				count, len(sc.fields), sc.type_))
			return
		}
	}
	for i := 0; i < count; i++ {
		if ctx.HasError() {
			return
		}
		if !compact {
			_ = ctx.buffer.ReadString(ctx.Err()) // names are layout padding on read
		}
		f := sc.fields[i]
		fv := readValue(ctx)
		if ctx.HasError() {
			return
		}
		if refID, pending := isForwardRef(fv); pending {
			if refID == selfID {
				// Self-reference: the object itself is already registered.
				assignCompat(target.Field(f.index), ctx.byId[selfID])
			} else {
				ctx.addPending(pendingAssign{
					kind:   pendingField,
					target: target.Addr(),
					field:  f.index,
					id:     refID,
				})
			}
			continue
		}
		if fv.IsValid() {
			assignCompat(target.Field(f.index), fv)
		}
	}
}

// ============================================================================
// codecCache - per-type codec cache with weighted recency/frequency eviction
// ============================================================================

// codecCache memoizes struct codecs process-wide. It is safe for concurrent
// use; eviction runs under the same lock as insertion.
type codecCache struct {
	mu       sync.Mutex
	codecs   map[reflect.Type]*structCodec
	capacity int
	metrics  *cacheMetrics // nil when metrics are disabled
}

func newCodecCache(capacity int, metrics *cacheMetrics) *codecCache {
	return &codecCache{
		codecs:   make(map[reflect.Type]*structCodec),
		capacity: capacity,
		metrics:  metrics,
	}
}

// get returns the codec for t, compiling and caching it on first use.
func (cc *codecCache) get(t reflect.Type) *structCodec {
	cc.mu.Lock()
	if codec, ok := cc.codecs[t]; ok {
		cc.mu.Unlock()
		codec.touch()
		cc.metrics.hit()
		return codec
	}
	codec := newStructCodec(t)
	cc.codecs[t] = codec
	if cc.capacity > 0 && len(cc.codecs) > cc.capacity {
		cc.evictLocked()
	}
	cc.mu.Unlock()
	codec.touch()
	cc.metrics.miss()
	return codec
}

// evictLocked removes the lowest-scoring entries until within capacity.
func (cc *codecCache) evictLocked() {
	now := time.Now().UnixNano()
	for len(cc.codecs) > cc.capacity {
		var victim reflect.Type
		lowest := 0.0
		first := true
		for t, codec := range cc.codecs {
			s := codec.score(now)
			if first || s < lowest {
				victim = t
				lowest = s
				first = false
			}
		}
		if first {
			return
		}
		delete(cc.codecs, victim)
		cc.metrics.eviction()
	}
}

// len reports the number of cached codecs.
func (cc *codecCache) len() int {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return len(cc.codecs)
}
