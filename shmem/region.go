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

package shmem

// Region is a mapped shared memory region. Regions obtained from read-only
// handles are mapped without write permission; writing through the returned
// byte slice faults.
type Region struct {
	mem    []byte
	access AccessMode
	mapped bool // true when backed by an OS mapping rather than a Go slice
}

// NewBufferRegion wraps process-local memory in a Region. Used by in-process
// transports and tests; Close is a no-op for buffer regions.
func NewBufferRegion(buf []byte, access AccessMode) *Region {
	return &Region{mem: buf, access: access}
}

// Bytes returns the mapped memory. The slice stays valid until Close.
func (r *Region) Bytes() []byte { return r.mem }

// Len returns the region size in bytes.
func (r *Region) Len() int { return len(r.mem) }

// Access returns the access mode the region was mapped with.
func (r *Region) Access() AccessMode { return r.access }

// Close unmaps the region. The byte slice returned by Bytes must not be used
// afterwards. Close is idempotent.
func (r *Region) Close() error {
	if r.mem == nil {
		return nil
	}
	mem := r.mem
	r.mem = nil
	if !r.mapped {
		return nil
	}
	return unmapMem(mem)
}
