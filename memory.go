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

import (
	"fmt"

	"github.com/AnkiHonnaiah/QUICKCOM-POC-sub005/internal/slotqueue"
	"github.com/AnkiHonnaiah/QUICKCOM-POC-sub005/shmem"
)

// allocateRegion is the allocator for the locally owned queue region.
// Replaceable in tests.
var allocateRegion = shmem.Allocate

// preparedMemory owns the three mapped regions and the queue pair from the
// moment the connection request is accepted until the connection is torn down.
type preparedMemory struct {
	slotMem     *shmem.Region // slot contents, read-only
	senderQueue *shmem.Region // sender-owned queue half, read-only
	clientQueue *shmem.Region // locally owned queue half, read-write

	// clientHandle is the read-only capability for the local queue region,
	// created before the region is consumed so it can be transferred to the
	// peer in the queue initialization message.
	clientHandle *shmem.ExchangeHandle

	queues   *slotqueue.Pair
	capacity uint32
}

// prepareMemory consumes both exchange handles from the connection request,
// maps the slot and sender queue regions read-only, allocates and maps the
// local queue region read-write, and constructs the queue pair.
//
// On any failure every region mapped so far is unmapped and every unspent
// handle is released before the error is returned; no partial state leaks.
// All returned errors wrap ErrMemory except region-content validation
// failures, which wrap ErrProtocol.
func prepareMemory(req ConnectionRequest) (*preparedMemory, error) {
	m := &preparedMemory{capacity: slotqueue.CapacityFor(req.QueueConfig.NumSlots)}

	fail := func(err error) (*preparedMemory, error) {
		m.close()
		req.close()
		return nil, err
	}

	// Slot memory must arrive as a read-only capability; a writable slot
	// region would let this side corrupt in-flight content.
	if req.SlotMemory.Access() != shmem.ReadOnly {
		return fail(fmt.Errorf("%w: slot memory handle declares %s access", ErrProtocol, req.SlotMemory.Access()))
	}
	if req.QueueMemory.Access() != shmem.ReadOnly {
		return fail(fmt.Errorf("%w: sender queue handle declares %s access", ErrProtocol, req.QueueMemory.Access()))
	}

	slotMem, err := req.SlotMemory.Consume()
	req.SlotMemory = nil
	if err != nil {
		return fail(fmt.Errorf("%w: slot memory: %v", ErrMemory, err))
	}
	m.slotMem = slotMem

	if uint64(slotMem.Len()) < req.SlotConfig.TotalSize() {
		return fail(fmt.Errorf("%w: slot memory region holds %d bytes, config needs %d",
			ErrProtocol, slotMem.Len(), req.SlotConfig.TotalSize()))
	}

	senderQueue, err := req.QueueMemory.Consume()
	req.QueueMemory = nil
	if err != nil {
		return fail(fmt.Errorf("%w: sender queue memory: %v", ErrMemory, err))
	}
	m.senderQueue = senderQueue

	if err := slotqueue.ValidateRegion(senderQueue.Bytes(), m.capacity); err != nil {
		return fail(fmt.Errorf("%w: sender queue region: %v", ErrProtocol, err))
	}

	localHandle, err := allocateRegion("slotipc-queue", slotqueue.RegionSize(m.capacity))
	if err != nil {
		return fail(fmt.Errorf("%w: allocating local queue region: %v", ErrMemory, err))
	}
	m.clientHandle, err = localHandle.Dup(shmem.ReadOnly)
	if err != nil {
		localHandle.Close()
		return fail(fmt.Errorf("%w: duplicating local queue handle: %v", ErrMemory, err))
	}
	clientQueue, err := localHandle.Consume()
	if err != nil {
		return fail(fmt.Errorf("%w: mapping local queue region: %v", ErrMemory, err))
	}
	m.clientQueue = clientQueue

	if err := slotqueue.InitRegion(clientQueue.Bytes(), m.capacity); err != nil {
		return fail(fmt.Errorf("%w: initializing local queue region: %v", ErrMemory, err))
	}

	pair, err := slotqueue.NewPair(senderQueue.Bytes(), clientQueue.Bytes(), m.capacity)
	if err != nil {
		return fail(fmt.Errorf("%w: constructing queue pair: %v", ErrMemory, err))
	}
	m.queues = pair

	return m, nil
}

// takeClientHandle moves the read-only handle for the local queue region out
// of the prepared memory for transfer to the peer.
func (m *preparedMemory) takeClientHandle() *shmem.ExchangeHandle {
	h := m.clientHandle
	m.clientHandle = nil
	return h
}

// close unmaps every region and releases the unsent client handle. Idempotent.
func (m *preparedMemory) close() {
	if m.clientHandle != nil {
		m.clientHandle.Close()
		m.clientHandle = nil
	}
	if m.clientQueue != nil {
		m.clientQueue.Close()
		m.clientQueue = nil
	}
	if m.senderQueue != nil {
		m.senderQueue.Close()
		m.senderQueue = nil
	}
	if m.slotMem != nil {
		m.slotMem.Close()
		m.slotMem = nil
	}
	m.queues = nil
}
