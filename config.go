/*
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
 */

package slotipc

import "fmt"

// MemoryTechnology identifies the kind of memory backing the shared regions.
type MemoryTechnology uint8

const (
	// TechnologySystemMemory is plain anonymous shared memory.
	TechnologySystemMemory MemoryTechnology = iota
	// TechnologyPinnedMemory is page-locked memory suitable for DMA peers.
	TechnologyPinnedMemory
)

// String returns the technology name.
func (t MemoryTechnology) String() string {
	switch t {
	case TechnologySystemMemory:
		return "SystemMemory"
	case TechnologyPinnedMemory:
		return "PinnedMemory"
	default:
		return fmt.Sprintf("MemoryTechnology(%d)", uint8(t))
	}
}

// SlotMemoryConfig describes the slot memory region: how many slots it holds
// and how each slot is laid out.
type SlotMemoryConfig struct {
	SlotContentSize      uint32
	SlotContentAlignment uint32
	NumSlots             uint32
	Technology           MemoryTechnology
}

// Validate checks the config for internal consistency.
func (c SlotMemoryConfig) Validate() error {
	if c.NumSlots == 0 {
		return fmt.Errorf("slotipc: slot memory config: NumSlots must be positive")
	}
	if c.SlotContentSize == 0 {
		return fmt.Errorf("slotipc: slot memory config: SlotContentSize must be positive")
	}
	if c.SlotContentAlignment == 0 || c.SlotContentAlignment&(c.SlotContentAlignment-1) != 0 {
		return fmt.Errorf("slotipc: slot memory config: alignment %d is not a power of two", c.SlotContentAlignment)
	}
	return nil
}

// SlotStride returns the distance between consecutive slots: the content size
// rounded up to the alignment.
func (c SlotMemoryConfig) SlotStride() uint32 {
	return (c.SlotContentSize + c.SlotContentAlignment - 1) &^ (c.SlotContentAlignment - 1)
}

// TotalSize returns the required slot memory region size.
func (c SlotMemoryConfig) TotalSize() uint64 {
	return uint64(c.SlotStride()) * uint64(c.NumSlots)
}

// QueueMemoryConfig describes one queue memory region.
type QueueMemoryConfig struct {
	NumSlots   uint32
	Technology MemoryTechnology
}

// Validate checks the config for internal consistency.
func (c QueueMemoryConfig) Validate() error {
	if c.NumSlots == 0 {
		return fmt.Errorf("slotipc: queue memory config: NumSlots must be positive")
	}
	return nil
}

// ValidateSlotMemoryConfig cross-checks a server-declared slot memory config
// against a locally configured expectation. A nil expectation accepts any
// internally consistent config. A mismatch is a failed validation, not a
// panic; the caller decides the resulting state transition.
func ValidateSlotMemoryConfig(declared SlotMemoryConfig, expected *SlotMemoryConfig) bool {
	if declared.Validate() != nil {
		return false
	}
	if expected == nil {
		return true
	}
	return declared == *expected
}
