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
	"sync"

	"github.com/blang/semver/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Envelope constants.
const (
	// FormatVersion is the envelope format version this build speaks.
	FormatVersion uint16 = 1
	// producerVersion travels in every envelope; consumers reject a
	// different major version.
	producerVersion = "1.0.0"
)

var envelopeMagic = [4]byte{'N', 'E', 'O', 'B'}

// Defaults applied when options leave a knob unset.
const (
	DefaultMaxDepth           = 100
	DefaultMaxSize            = 64 << 20
	DefaultCodecCacheCapacity = 1024
)

type config struct {
	registry        *Registry
	gate            TypeGateConfig
	logger          *zap.Logger
	metricsRegistry prometheus.Registerer

	includeVersions bool
	useRefTable     bool
	compactLayout   bool
	tabularBinary   bool
	bulkArrays      bool
	allowReflection bool
	maxDepth        int
	maxSize         int
	cacheCapacity   int
}

// Option configures a Serializer.
type Option func(*config)

// WithIncludeAssemblyVersions includes version strings in type descriptors.
func WithIncludeAssemblyVersions(on bool) Option {
	return func(c *config) { c.includeVersions = on }
}

// WithTypeReferenceTable replaces repeated type descriptors with small
// integer indices within each envelope.
func WithTypeReferenceTable(on bool) Option {
	return func(c *config) { c.useRefTable = on }
}

// WithCompactLayout drops field names and counts from struct payloads. Both
// sides must share the exact type shapes.
func WithCompactLayout(on bool) Option {
	return func(c *config) { c.compactLayout = on }
}

// WithTabularBinaryEncoding switches tables from the portable JSON form to
// the type-preserving binary form.
func WithTabularBinaryEncoding(on bool) Option {
	return func(c *config) { c.tabularBinary = on }
}

// WithBulkArrays toggles the contiguous-memory fast path for numeric
// arrays. The wire bytes are identical either way.
func WithBulkArrays(on bool) Option {
	return func(c *config) { c.bulkArrays = on }
}

// WithAllowReflectionTypes permits decoding reflect.Type and MemberRef
// payloads, which name arbitrary types by design.
func WithAllowReflectionTypes(on bool) Option {
	return func(c *config) { c.allowReflection = on }
}

// WithMaxDepth bounds object graph recursion.
func WithMaxDepth(depth int) Option {
	return func(c *config) { c.maxDepth = depth }
}

// WithMaxSize bounds envelope size in bytes on both directions; zero
// disables the check.
func WithMaxSize(size int) Option {
	return func(c *config) { c.maxSize = size }
}

// WithAllowedTypes adds full wire names to the allow-list.
func WithAllowedTypes(names ...string) Option {
	return func(c *config) { c.gate.AllowedTypes = append(c.gate.AllowedTypes, names...) }
}

// WithAllowedNamespaces adds namespace prefixes to the allow-list.
func WithAllowedNamespaces(namespaces ...string) Option {
	return func(c *config) { c.gate.AllowedNamespaces = append(c.gate.AllowedNamespaces, namespaces...) }
}

// WithBlockedTypes adds full wire names to the block-list.
func WithBlockedTypes(names ...string) Option {
	return func(c *config) { c.gate.BlockedTypes = append(c.gate.BlockedTypes, names...) }
}

// WithBlockedNamespaces adds namespace prefixes to the block-list.
func WithBlockedNamespaces(namespaces ...string) Option {
	return func(c *config) { c.gate.BlockedNamespaces = append(c.gate.BlockedNamespaces, namespaces...) }
}

// WithAllowUnknownTypes decides the fate of types matching no rule.
func WithAllowUnknownTypes(on bool) Option {
	return func(c *config) { c.gate.AllowUnknown = on }
}

// WithAllowDelegates permits function-typed payloads, blocked by default.
func WithAllowDelegates(on bool) Option {
	return func(c *config) { c.gate.AllowDelegates = on }
}

// WithRegistry shares a type registry across serializers.
func WithRegistry(r *Registry) Option {
	return func(c *config) { c.registry = r }
}

// WithLogger installs a structured logger; the default is a no-op.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithMetricsRegistry enables codec-cache counters on the given registry.
func WithMetricsRegistry(reg prometheus.Registerer) Option {
	return func(c *config) { c.metricsRegistry = reg }
}

// WithCodecCacheCapacity bounds the per-type codec cache; the lowest-scoring
// entries evict first.
func WithCodecCacheCapacity(capacity int) Option {
	return func(c *config) { c.cacheCapacity = capacity }
}

// Serializer encodes and decodes object graphs to the envelope format. One
// instance is NOT safe for concurrent use; wrap it in threadsafe.Serializer
// or give each goroutine its own.
type Serializer struct {
	registry *Registry
	gate     *TypeGate
	codecs   *codecCache
	logger   *zap.Logger

	includeVersions bool
	useRefTable     bool
	compactLayout   bool
	tabularBinary   bool
	bulkArrays      bool
	allowReflection bool
	maxDepth        int
	maxSize         int

	wctx *WriteContext
	rctx *ReadContext

	// pendingMu guards the final forward-reference pass so concurrent calls
	// through the threadsafe wrapper cannot race on shared referents.
	pendingMu sync.Mutex
}

// New creates a Serializer with the given options applied over defaults.
func New(opts ...Option) *Serializer {
	cfg := config{
		bulkArrays:    true,
		maxDepth:      DefaultMaxDepth,
		maxSize:       DefaultMaxSize,
		cacheCapacity: DefaultCodecCacheCapacity,
		gate:          TypeGateConfig{AllowUnknown: true},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.registry == nil {
		cfg.registry = defaultRegistry
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.maxDepth <= 0 {
		cfg.maxDepth = DefaultMaxDepth
	}

	s := &Serializer{
		registry:        cfg.registry,
		gate:            NewTypeGate(cfg.gate),
		codecs:          newCodecCache(cfg.cacheCapacity, newCacheMetrics(cfg.metricsRegistry)),
		logger:          cfg.logger,
		includeVersions: cfg.includeVersions,
		useRefTable:     cfg.useRefTable,
		compactLayout:   cfg.compactLayout,
		tabularBinary:   cfg.tabularBinary,
		bulkArrays:      cfg.bulkArrays,
		allowReflection: cfg.allowReflection,
		maxDepth:        cfg.maxDepth,
		maxSize:         cfg.maxSize,
	}
	s.wctx = newWriteContext(s.registry, s.codecs, s.maxDepth)
	s.rctx = newReadContext(s.registry, s.codecs, s.gate, s.maxDepth)
	if s.useRefTable {
		s.wctx.table = newTypeRefTable()
	}
	return s
}

// Registry returns the type registry backing this serializer.
func (s *Serializer) Registry() *Registry { return s.registry }

// Serialize encodes a complete envelope for one object graph.
func (s *Serializer) Serialize(v any) ([]byte, error) {
	ctx := s.wctx
	defer ctx.Reset()

	ctx.includeVersions = s.includeVersions
	ctx.compactLayout = s.compactLayout
	ctx.tabularBinary = s.tabularBinary
	ctx.bulkArrays = s.bulkArrays

	s.writeHeader(ctx.buffer)
	writeValue(ctx, reflect.ValueOf(v))
	if err := ctx.err.CheckError(); err != nil {
		s.logger.Debug("serialize failed", zap.Error(err))
		return nil, err
	}
	data := ctx.buffer.GetData()
	if s.maxSize > 0 && len(data) > s.maxSize {
		return nil, SizeLimitError(len(data), s.maxSize)
	}
	out := make([]byte, len(data))
	copy(out, data)
	s.logger.Debug("serialized envelope", zap.Int("bytes", len(out)))
	return out, nil
}

// Deserialize decodes one envelope back into an object graph. The stream's
// own flags decide descriptor handling; local configuration never has to
// match the producer's.
func (s *Serializer) Deserialize(data []byte) (any, error) {
	if s.maxSize > 0 && len(data) > s.maxSize {
		return nil, SizeLimitError(len(data), s.maxSize)
	}
	ctx := s.rctx
	defer ctx.Reset()

	ctx.allowReflection = s.allowReflection
	ctx.bulkArrays = s.bulkArrays
	ctx.buffer.SetData(data)

	flags, err := s.readHeader(ctx.buffer, ctx.Err())
	if err != nil {
		s.logFailure(err)
		return nil, err
	}
	if flags&FlagTypeRefTable != 0 {
		if ctx.table == nil {
			ctx.table = newTypeRefTable()
		}
	} else {
		ctx.table = nil
	}

	root := readValue(ctx)
	if err := ctx.err.CheckError(); err != nil {
		s.logFailure(err)
		return nil, err
	}
	if refID, pending := isForwardRef(root); pending {
		return nil, UnresolvedRefError(refID)
	}

	if leftovers := ctx.resolvePending(); len(leftovers) > 0 {
		// Final pass under the serializer lock; referents materialized by
		// the resolution passes above may unblock chained entries.
		s.pendingMu.Lock()
		leftovers = ctx.resolvePending()
		s.pendingMu.Unlock()
		if len(leftovers) > 0 {
			return nil, UnresolvedRefError(leftovers[0].id)
		}
	}
	if !root.IsValid() {
		return nil, nil
	}
	return root.Interface(), nil
}

// logFailure reports a decode failure. Security rejections and framing
// faults are operationally interesting and log at Warn; everything else
// stays at Debug.
func (s *Serializer) logFailure(err error) {
	if e, ok := err.(Error); ok {
		switch e.Kind() {
		case ErrKindUnsafeType:
			s.logger.Warn("rejected unsafe type",
				zap.String("type", e.TypeName()),
				zap.String("assembly", e.AssemblyName()),
				zap.String("reason", e.Reason()))
			return
		case ErrKindProtocol:
			s.logger.Warn("protocol fault", zap.Error(err))
			return
		}
	}
	s.logger.Debug("deserialize failed", zap.Error(err))
}

// SerializeAs encodes a typed value. It mirrors Serialize and exists so
// call sites keep their static type alongside DeserializeAs.
func SerializeAs[T any](s *Serializer, v T) ([]byte, error) {
	return s.Serialize(v)
}

// DeserializeAs decodes one envelope and asserts the root to T, accepting a
// decoded *T for value-typed T.
func DeserializeAs[T any](s *Serializer, data []byte) (T, error) {
	var zero T
	v, err := s.Deserialize(data)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	if typed, ok := v.(T); ok {
		return typed, nil
	}
	if ptr, ok := v.(*T); ok {
		return *ptr, nil
	}
	return zero, DeserializationErrorf("neob: decoded %T, want %s",
		v, reflect.TypeOf((*T)(nil)).Elem())
}

// writeHeader emits magic, format version, producer version and flags.
func (s *Serializer) writeHeader(buf *ByteBuffer) {
	buf.WriteBinary(envelopeMagic[:])
	buf.WriteUint16(FormatVersion)
	buf.WriteString(producerVersion)
	flags := uint16(0)
	if s.includeVersions {
		flags |= FlagAssemblyVersions
	}
	if s.useRefTable {
		flags |= FlagTypeRefTable
	}
	buf.WriteUint16(flags)
}

// readHeader validates the envelope prologue and returns the flags. A
// different producer major version is fatal; minor and patch drift is fine.
func (s *Serializer) readHeader(buf *ByteBuffer, err *Error) (uint16, error) {
	var magic [4]byte
	for i := range magic {
		magic[i] = buf.ReadByte_(err)
	}
	if e := err.CheckError(); e != nil {
		return 0, e
	}
	if magic != envelopeMagic {
		return 0, ProtocolErrorf(0, buf.HexDumpAround(0), "bad magic %q", magic[:])
	}
	version := buf.ReadUint16(err)
	if e := err.CheckError(); e != nil {
		return 0, e
	}
	if version != FormatVersion {
		return 0, ProtocolErrorf(4, buf.HexDumpAround(4),
			"unsupported format version %d, this build speaks %d", version, FormatVersion)
	}
	producer := buf.ReadString(err)
	flags := buf.ReadUint16(err)
	if e := err.CheckError(); e != nil {
		return 0, e
	}
	remote, perr := semver.Parse(producer)
	if perr != nil {
		return 0, ProtocolErrorf(6, buf.HexDumpAround(6), "malformed producer version %q", producer)
	}
	local := semver.MustParse(producerVersion)
	if remote.Major != local.Major {
		return 0, ProtocolErrorf(6, buf.HexDumpAround(6),
			"producer version %s is incompatible with %s", producer, producerVersion)
	}
	return flags, nil
}
