/*
 *
 * Copyright 2026 The QUICKCOM authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

// Package shmem provides one-shot memory exchange handles and the mapped
// regions they yield.
//
// An ExchangeHandle is an opaque capability for one shared memory region,
// together with the access mode the region must be mapped with. Consuming the
// handle is the only way to obtain a mapped Region; a handle is spent after a
// single Consume or Detach and every further use fails. This makes accidental
// reuse of a transferred capability a runtime error at the earliest possible
// point instead of silent double-mapping.
package shmem

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrHandleSpent indicates a one-shot exchange handle was used twice.
	ErrHandleSpent = errors.New("shmem: exchange handle already consumed")

	// ErrNotTransferable indicates the handle has no file descriptor to detach.
	ErrNotTransferable = errors.New("shmem: exchange handle is not transferable")

	// ErrUnsupported indicates shared memory mapping is not available on this
	// platform.
	ErrUnsupported = errors.New("shmem: shared memory not supported on this platform")
)

// AccessMode declares how a region must be mapped by the receiving process.
type AccessMode uint8

const (
	// ReadOnly maps the region without write permission.
	ReadOnly AccessMode = iota
	// ReadWrite maps the region with write permission.
	ReadWrite
)

// String returns the access mode name.
func (m AccessMode) String() string {
	switch m {
	case ReadOnly:
		return "ReadOnly"
	case ReadWrite:
		return "ReadWrite"
	default:
		return fmt.Sprintf("AccessMode(%d)", uint8(m))
	}
}

// ExchangeHandle is a one-shot capability yielding a mapped shared memory
// region. It is backed either by a file descriptor received from a peer or by
// process-local memory (in-process transports and tests).
type ExchangeHandle struct {
	file   *os.File
	buf    []byte
	size   uint64
	access AccessMode
	spent  bool
}

// NewHandle wraps an open file descriptor into an exchange handle. The handle
// takes ownership of file; the caller must not close it.
func NewHandle(file *os.File, size uint64, access AccessMode) *ExchangeHandle {
	return &ExchangeHandle{file: file, size: size, access: access}
}

// NewBufferHandle creates a handle backed by process-local memory. Consuming it
// yields a Region over buf directly. Buffer handles cannot be detached for
// cross-process transport.
func NewBufferHandle(buf []byte, access AccessMode) *ExchangeHandle {
	return &ExchangeHandle{buf: buf, size: uint64(len(buf)), access: access}
}

// Size returns the declared region size in bytes.
func (h *ExchangeHandle) Size() uint64 { return h.size }

// Access returns the declared access mode.
func (h *ExchangeHandle) Access() AccessMode { return h.access }

// Consume maps the region with the declared access mode and spends the handle.
// The handle is spent even when mapping fails; there is no retry on a
// capability.
func (h *ExchangeHandle) Consume() (*Region, error) {
	if h.spent {
		return nil, ErrHandleSpent
	}
	h.spent = true

	if h.buf != nil {
		return &Region{mem: h.buf, access: h.access}, nil
	}

	file := h.file
	h.file = nil
	defer file.Close()

	mem, err := mapFile(file, int(h.size), h.access)
	if err != nil {
		return nil, fmt.Errorf("shmem: mapping %d bytes failed: %w", h.size, err)
	}
	return &Region{mem: mem, access: h.access, mapped: true}, nil
}

// Detach surrenders the underlying file descriptor for transport to a peer and
// spends the handle. The caller owns the returned file.
func (h *ExchangeHandle) Detach() (*os.File, error) {
	if h.spent {
		return nil, ErrHandleSpent
	}
	if h.file == nil {
		return nil, ErrNotTransferable
	}
	h.spent = true
	file := h.file
	h.file = nil
	return file, nil
}

// Dup creates an independent handle for the same region with the given access
// mode. Dup does not spend the handle; it is how an allocator hands a read-only
// capability to a peer while keeping its own mapping.
func (h *ExchangeHandle) Dup(access AccessMode) (*ExchangeHandle, error) {
	if h.spent {
		return nil, ErrHandleSpent
	}
	if h.buf != nil {
		return &ExchangeHandle{buf: h.buf, size: h.size, access: access}, nil
	}
	file, err := dupFile(h.file)
	if err != nil {
		return nil, fmt.Errorf("shmem: dup failed: %w", err)
	}
	return &ExchangeHandle{file: file, size: h.size, access: access}, nil
}

// Close releases an unspent handle without consuming it. Closing a spent
// handle is a no-op.
func (h *ExchangeHandle) Close() error {
	if h.spent {
		return nil
	}
	h.spent = true
	if h.file != nil {
		file := h.file
		h.file = nil
		return file.Close()
	}
	return nil
}
