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

// Package slotqueue implements the cross-process queue pair used to exchange
// slot identifiers between a sender and a receiver over shared memory.
//
// Each side owns one queue memory region with an identical layout: a 64-byte
// header followed by a power-of-two ring of uint32 slot identifiers. The ring
// and its producer index live in the producing side's region; the consumer
// index for the opposite ring lives in the consuming side's region. Each
// process therefore only ever writes its own region, which is what makes the
// single-producer/single-consumer discipline structural rather than
// convention.
//
// Every index written by the peer is untrusted input: it is loaded atomically
// and range-checked against the ring capacity before any ring element is
// dereferenced. A peer that corrupts its indices produces a detected protocol
// violation, never an out-of-bounds access.
package slotqueue

import (
	"bytes"
	"fmt"
	"sync/atomic"
	"unsafe"
)

const (
	// RegionMagic identifies a queue memory region.
	RegionMagic = "SLOTQMM\x00"

	// RegionVersion is the current layout version.
	RegionVersion = uint32(1)

	// HeaderSize is the region header size in bytes (64-byte aligned so the
	// ring data starts on a cache line).
	HeaderSize = 64

	// slotIDSize is the size of one ring element.
	slotIDSize = 4
)

// regionHeader is the shared layout at the start of every queue memory region.
// Offsets are fixed; the reserved tail pads the header to 64 bytes.
type regionHeader struct {
	magic    [8]byte // 0x00: "SLOTQMM\0"
	version  uint32  // 0x08: layout version
	capacity uint32  // 0x0C: ring capacity (power of two)
	prodIdx  uint64  // 0x10: monotonic producer index of the ring in this region
	consIdx  uint64  // 0x18: monotonic consumer index for the peer region's ring
	reserved [32]byte
}

// Version returns the layout version.
func (h *regionHeader) Version() uint32 {
	return atomic.LoadUint32(&h.version)
}

// Capacity returns the ring capacity.
func (h *regionHeader) Capacity() uint32 {
	return atomic.LoadUint32(&h.capacity)
}

// ProducerIndex returns the monotonic producer index.
func (h *regionHeader) ProducerIndex() uint64 {
	return atomic.LoadUint64(&h.prodIdx)
}

// SetProducerIndex publishes a new producer index. The store has release
// semantics: ring elements written before it are visible to a peer that
// observes the new index.
func (h *regionHeader) SetProducerIndex(idx uint64) {
	atomic.StoreUint64(&h.prodIdx, idx)
}

// ConsumerIndex returns the monotonic consumer index.
func (h *regionHeader) ConsumerIndex() uint64 {
	return atomic.LoadUint64(&h.consIdx)
}

// SetConsumerIndex publishes a new consumer index, releasing the consumed ring
// element back to the producer.
func (h *regionHeader) SetConsumerIndex(idx uint64) {
	atomic.StoreUint64(&h.consIdx, idx)
}

// headerOf returns the typed header view of a region.
func headerOf(mem []byte) *regionHeader {
	return (*regionHeader)(unsafe.Pointer(&mem[0]))
}

// slotAt returns the ring element at position i.
func slotAt(mem []byte, i uint32) *uint32 {
	return (*uint32)(unsafe.Pointer(&mem[HeaderSize+uintptr(i)*slotIDSize]))
}

// IsPowerOfTwo reports whether n is a power of two.
func IsPowerOfTwo(n uint32) bool {
	return n > 0 && n&(n-1) == 0
}

// CapacityFor returns the ring capacity used for the given slot count: the
// smallest power of two that can hold every slot identifier at once, so the
// free queue can never legitimately overflow.
func CapacityFor(numSlots uint32) uint32 {
	if numSlots == 0 {
		return 0
	}
	capacity := uint32(1)
	for capacity < numSlots {
		capacity <<= 1
	}
	return capacity
}

// RegionSize returns the required region size for a ring of the given
// capacity.
func RegionSize(capacity uint32) uint64 {
	return HeaderSize + uint64(capacity)*slotIDSize
}

// InitRegion writes a fresh header into mem for a ring of the given capacity.
// The indices start at zero; ring contents are left as mapped (zero for newly
// allocated shared memory).
func InitRegion(mem []byte, capacity uint32) error {
	if !IsPowerOfTwo(capacity) {
		return fmt.Errorf("slotqueue: capacity %d is not a power of two", capacity)
	}
	if uint64(len(mem)) < RegionSize(capacity) {
		return fmt.Errorf("slotqueue: region too small: %d bytes, need %d", len(mem), RegionSize(capacity))
	}
	h := headerOf(mem)
	copy(h.magic[:], RegionMagic)
	atomic.StoreUint32(&h.version, RegionVersion)
	atomic.StoreUint32(&h.capacity, capacity)
	h.SetProducerIndex(0)
	h.SetConsumerIndex(0)
	return nil
}

// ValidateRegion checks a peer-supplied region against the expected capacity.
// Everything in the header is untrusted; mismatches are reported, not assumed
// away.
func ValidateRegion(mem []byte, capacity uint32) error {
	if uint64(len(mem)) < RegionSize(capacity) {
		return fmt.Errorf("slotqueue: region too small: %d bytes, need %d", len(mem), RegionSize(capacity))
	}
	h := headerOf(mem)
	if !bytes.Equal(h.magic[:], []byte(RegionMagic)) {
		return fmt.Errorf("slotqueue: bad region magic %q", h.magic)
	}
	if v := h.Version(); v != RegionVersion {
		return fmt.Errorf("slotqueue: unsupported region version %d, expected %d", v, RegionVersion)
	}
	if got := h.Capacity(); got != capacity {
		return fmt.Errorf("slotqueue: capacity mismatch: region declares %d, expected %d", got, capacity)
	}
	return nil
}

// Info is a read-only snapshot of a region header, used by diagnostics.
type Info struct {
	Magic         string
	Version       uint32
	Capacity      uint32
	ProducerIndex uint64
	ConsumerIndex uint64
}

// Inspect reads the header of a queue region without validating it against an
// expected configuration.
func Inspect(mem []byte) (Info, error) {
	if len(mem) < HeaderSize {
		return Info{}, fmt.Errorf("slotqueue: region too small for header: %d bytes", len(mem))
	}
	h := headerOf(mem)
	return Info{
		Magic:         string(bytes.TrimRight(h.magic[:], "\x00")),
		Version:       h.Version(),
		Capacity:      h.Capacity(),
		ProducerIndex: h.ProducerIndex(),
		ConsumerIndex: h.ConsumerIndex(),
	}, nil
}
