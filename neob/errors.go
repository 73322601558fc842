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

import "fmt"

// ErrorKind represents categories of serialization errors for fast dispatch.
// Each kind maps to a distinct failure class so callers can special-case
// security rejections from ordinary corruption without string matching.
type ErrorKind uint8

const (
	// ErrKindOK indicates no error occurred
	ErrKindOK ErrorKind = iota
	// ErrKindProtocol indicates a framing fault: bad magic, unsupported
	// version, invalid marker byte or a malformed header
	ErrKindProtocol
	// ErrKindBufferOutOfBound indicates a read beyond buffer bounds
	// (truncated stream)
	ErrKindBufferOutOfBound
	// ErrKindTypeResolution indicates a type descriptor that cannot be
	// mapped to a known runtime type
	ErrKindTypeResolution
	// ErrKindUnsafeType indicates the security validator rejected a type
	ErrKindUnsafeType
	// ErrKindSizeLimit indicates the payload exceeds the configured maximum
	ErrKindSizeLimit
	// ErrKindConstruction indicates an instance could not be created for a
	// resolved type
	ErrKindConstruction
	// ErrKindUnresolvedRef indicates a forward reference that was never
	// materialized by the end of the call
	ErrKindUnresolvedRef
	// ErrKindMaxDepthExceeded indicates recursion depth limit exceeded
	ErrKindMaxDepthExceeded
	// ErrKindSerializationFailed indicates a general serialization failure
	ErrKindSerializationFailed
	// ErrKindDeserializationFailed indicates a general deserialization failure
	ErrKindDeserializationFailed
)

// Error is a lightweight error type optimized for hot path performance.
// It stores error details without allocating until Error() is called.
type Error struct {
	kind    ErrorKind
	message string
	// For buffer out of bound and protocol errors
	offset int
	need   int
	size   int
	// Hex dump of bytes surrounding the fault, captured for protocol errors
	surrounding string
	// For type resolution and security errors
	typeName     string
	assemblyName string
	reason       string
}

// Ok returns true if no error occurred
func (e Error) Ok() bool {
	return e.kind == ErrKindOK
}

// HasError returns true if an error occurred
func (e Error) HasError() bool {
	return e.kind != ErrKindOK
}

// Kind returns the error kind for fast dispatch
func (e Error) Kind() ErrorKind {
	return e.kind
}

// TypeName returns the offending type name for type resolution and
// security errors, empty otherwise.
func (e Error) TypeName() string {
	return e.typeName
}

// AssemblyName returns the offending assembly name for security errors.
func (e Error) AssemblyName() string {
	return e.assemblyName
}

// Reason returns the human-readable rejection reason for security errors.
func (e Error) Reason() string {
	return e.reason
}

// Error implements the error interface with lazy formatting
func (e Error) Error() string {
	switch e.kind {
	case ErrKindOK:
		return ""
	case ErrKindProtocol:
		if e.surrounding != "" {
			return fmt.Sprintf("neob: protocol error at offset %d: %s; surrounding bytes: %s",
				e.offset, e.message, e.surrounding)
		}
		return fmt.Sprintf("neob: protocol error at offset %d: %s", e.offset, e.message)
	case ErrKindBufferOutOfBound:
		if e.message != "" {
			return e.message
		}
		return fmt.Sprintf("neob: buffer out of bound: offset=%d, need=%d, size=%d", e.offset, e.need, e.size)
	case ErrKindTypeResolution:
		return fmt.Sprintf("neob: cannot resolve type %q (assembly %q): %s", e.typeName, e.assemblyName, e.message)
	case ErrKindUnsafeType:
		return fmt.Sprintf("neob: unsafe deserialization of type %q (assembly %q) blocked: %s",
			e.typeName, e.assemblyName, e.reason)
	case ErrKindSizeLimit:
		return fmt.Sprintf("neob: payload size %d exceeds configured maximum %d", e.size, e.need)
	default:
		if e.message != "" {
			return e.message
		}
		return fmt.Sprintf("neob: error kind=%d", e.kind)
	}
}

// ProtocolError creates a framing error annotated with the stream position
// and a hex dump of the surrounding bytes.
func ProtocolError(offset int, surrounding, msg string) Error {
	return Error{
		kind:        ErrKindProtocol,
		offset:      offset,
		surrounding: surrounding,
		message:     msg,
	}
}

// ProtocolErrorf creates a formatted framing error.
func ProtocolErrorf(offset int, surrounding, format string, args ...any) Error {
	return ProtocolError(offset, surrounding, fmt.Sprintf(format, args...))
}

// BufferOutOfBoundError creates a buffer out of bound error
func BufferOutOfBoundError(offset, need, size int) Error {
	return Error{
		kind:   ErrKindBufferOutOfBound,
		offset: offset,
		need:   need,
		size:   size,
	}
}

// TypeResolutionError creates an error for a descriptor that cannot be
// mapped to a runtime type.
func TypeResolutionError(typeName, assemblyName, msg string) Error {
	return Error{
		kind:         ErrKindTypeResolution,
		typeName:     typeName,
		assemblyName: assemblyName,
		message:      msg,
	}
}

// UnsafeTypeError creates a security rejection carrying the offending
// type/assembly and the rule that fired.
func UnsafeTypeError(typeName, assemblyName, reason string) Error {
	return Error{
		kind:         ErrKindUnsafeType,
		typeName:     typeName,
		assemblyName: assemblyName,
		reason:       reason,
	}
}

// SizeLimitError creates a size limit error
func SizeLimitError(size, limit int) Error {
	return Error{
		kind: ErrKindSizeLimit,
		size: size,
		need: limit,
	}
}

// ConstructionError creates an instance construction error
func ConstructionError(typeName, msg string) Error {
	return Error{
		kind:     ErrKindConstruction,
		typeName: typeName,
		message:  fmt.Sprintf("neob: cannot construct instance of %s: %s", typeName, msg),
	}
}

// UnresolvedRefError creates an error for a dangling forward reference
func UnresolvedRefError(objectID int32) Error {
	return Error{
		kind:    ErrKindUnresolvedRef,
		message: fmt.Sprintf("neob: forward reference to object %d was never resolved", objectID),
	}
}

// MaxDepthExceededError creates a max depth exceeded error
func MaxDepthExceededError(depth int) Error {
	return Error{
		kind:    ErrKindMaxDepthExceeded,
		message: fmt.Sprintf("neob: max object graph depth exceeded: depth=%d", depth),
	}
}

// SerializationErrorf creates a formatted serialization error
func SerializationErrorf(format string, args ...any) Error {
	return Error{
		kind:    ErrKindSerializationFailed,
		message: fmt.Sprintf(format, args...),
	}
}

// DeserializationErrorf creates a formatted deserialization error
func DeserializationErrorf(format string, args ...any) Error {
	return Error{
		kind:    ErrKindDeserializationFailed,
		message: fmt.Sprintf(format, args...),
	}
}

// FromError converts a standard error to a neob Error.
// If err is already a neob Error, it returns it as-is.
func FromError(err error) Error {
	if err == nil {
		return Error{kind: ErrKindOK}
	}
	if e, ok := err.(Error); ok {
		return e
	}
	return Error{
		kind:    ErrKindDeserializationFailed,
		message: err.Error(),
	}
}

// SetError sets the error if no error has occurred yet (first-error-wins)
func (e *Error) SetError(err error) {
	if e == nil || e.kind != ErrKindOK {
		return
	}
	if err != nil {
		*e = FromError(err)
	}
}

// TakeError returns the error and clears it
func (e *Error) TakeError() error {
	if e == nil || e.kind == ErrKindOK {
		return nil
	}
	result := *e
	*e = Error{kind: ErrKindOK}
	return result
}

// CheckError returns the error if one occurred, nil otherwise
func (e *Error) CheckError() error {
	if e == nil || e.kind == ErrKindOK {
		return nil
	}
	return *e
}
