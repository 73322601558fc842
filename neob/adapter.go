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
	"bytes"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

// WireCodec is the contract an RPC channel programs against. Implementations
// turn one message graph into one self-describing byte envelope and back.
type WireCodec interface {
	Serialize(v any) ([]byte, error)
	Deserialize(data []byte) (any, error)
	// NeedsEnvelope reports whether the channel must add its own framing
	// around the payload. This codec's envelopes are self-delimiting.
	NeedsEnvelope() bool
}

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithCompression compresses outgoing envelopes. Incoming payloads are
// sniffed, so both sides may toggle this independently.
func WithCompression(on bool) AdapterOption {
	return func(a *Adapter) { a.compress = on }
}

// WithAdapterLogger installs a structured logger on the adapter boundary.
func WithAdapterLogger(logger *zap.Logger) AdapterOption {
	return func(a *Adapter) { a.logger = logger }
}

// Adapter binds a Serializer to the WireCodec contract, adding optional
// transparent zstd compression. It is as concurrency-safe as the serializer
// it wraps.
type Adapter struct {
	serializer *Serializer
	compress   bool
	logger     *zap.Logger
	encoder    *zstd.Encoder
	decoder    *zstd.Decoder
}

// NewAdapter wraps a serializer for channel use.
func NewAdapter(s *Serializer, opts ...AdapterOption) (*Adapter, error) {
	a := &Adapter{serializer: s, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	var err error
	if a.encoder, err = zstd.NewWriter(nil); err != nil {
		return nil, errors.Wrap(err, "neob: creating zstd encoder")
	}
	if a.decoder, err = zstd.NewReader(nil); err != nil {
		return nil, errors.Wrap(err, "neob: creating zstd decoder")
	}
	return a, nil
}

// Serialize encodes one message graph into a wire payload.
func (a *Adapter) Serialize(v any) ([]byte, error) {
	data, err := a.serializer.Serialize(v)
	if err != nil {
		return nil, errors.Wrap(err, "neob: encoding message")
	}
	if !a.compress {
		return data, nil
	}
	compressed := a.encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
	a.logger.Debug("compressed envelope",
		zap.Int("raw", len(data)), zap.Int("compressed", len(compressed)))
	return compressed, nil
}

// Deserialize decodes one wire payload back into a message graph,
// decompressing first when the payload carries a zstd frame.
func (a *Adapter) Deserialize(data []byte) (any, error) {
	if bytes.HasPrefix(data, zstdMagic) {
		raw, err := a.decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, errors.Wrap(err, "neob: decompressing envelope")
		}
		data = raw
	}
	v, err := a.serializer.Deserialize(data)
	if err != nil {
		return nil, errors.Wrap(err, "neob: decoding message")
	}
	return v, nil
}

// NeedsEnvelope reports false: envelopes carry their own magic, version and
// flags and need no extra framing.
func (a *Adapter) NeedsEnvelope() bool { return false }
