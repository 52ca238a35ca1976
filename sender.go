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

// Sender is the producing side of a slot exchange connection. It allocates
// the slot and queue memory, announces them to a receiver through a
// ConnectionRequest, and then hands out slots through the available queue and
// takes them back through the free queue.
//
// Like Client, a Sender is single-threaded by contract.
type Sender struct {
	cfg      SlotMemoryConfig
	capacity uint32

	slotMem     *shmem.Region // read-write
	queueMem    *shmem.Region // read-write, sender-owned queue half
	receiverMem *shmem.Region // read-only, attached from the receiver

	slotHandle  *shmem.ExchangeHandle // read-only dup for the receiver
	queueHandle *shmem.ExchangeHandle // read-only dup for the receiver

	queues   *slotqueue.Pair
	inFlight []bool
}

// NewSender allocates the shared regions for the given slot layout. The
// regions are anonymous shared memory; they vanish when both sides are done
// with them.
func NewSender(cfg SlotMemoryConfig) (*Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Sender{
		cfg:      cfg,
		capacity: slotqueue.CapacityFor(cfg.NumSlots),
		inFlight: make([]bool, cfg.NumSlots),
	}

	fail := func(err error) (*Sender, error) {
		s.Close()
		return nil, err
	}

	slotAlloc, err := shmem.Allocate("slotipc-slots", cfg.TotalSize())
	if err != nil {
		return fail(fmt.Errorf("%w: slot memory: %v", ErrMemory, err))
	}
	if s.slotHandle, err = slotAlloc.Dup(shmem.ReadOnly); err != nil {
		slotAlloc.Close()
		return fail(fmt.Errorf("%w: slot handle: %v", ErrMemory, err))
	}
	if s.slotMem, err = slotAlloc.Consume(); err != nil {
		return fail(fmt.Errorf("%w: mapping slot memory: %v", ErrMemory, err))
	}

	queueAlloc, err := shmem.Allocate("slotipc-queue", slotqueue.RegionSize(s.capacity))
	if err != nil {
		return fail(fmt.Errorf("%w: queue memory: %v", ErrMemory, err))
	}
	if s.queueHandle, err = queueAlloc.Dup(shmem.ReadOnly); err != nil {
		queueAlloc.Close()
		return fail(fmt.Errorf("%w: queue handle: %v", ErrMemory, err))
	}
	if s.queueMem, err = queueAlloc.Consume(); err != nil {
		return fail(fmt.Errorf("%w: mapping queue memory: %v", ErrMemory, err))
	}
	if err := slotqueue.InitRegion(s.queueMem.Bytes(), s.capacity); err != nil {
		return fail(fmt.Errorf("%w: initializing queue region: %v", ErrMemory, err))
	}

	return s, nil
}

// ConnectionRequest moves the read-only region handles out of the sender for
// transfer to the receiver. It can be called once.
func (s *Sender) ConnectionRequest() (ConnectionRequest, error) {
	if s.slotHandle == nil || s.queueHandle == nil {
		return ConnectionRequest{}, fmt.Errorf("%w: connection request already issued", ErrUnexpectedState)
	}
	req := ConnectionRequest{
		SlotConfig:  s.cfg,
		SlotMemory:  s.slotHandle,
		QueueConfig: QueueMemoryConfig{NumSlots: s.cfg.NumSlots, Technology: s.cfg.Technology},
		QueueMemory: s.queueHandle,
	}
	s.slotHandle = nil
	s.queueHandle = nil
	return req, nil
}

// AttachReceiverQueue consumes the receiver's queue initialization handle,
// validates the region, and constructs the queue pair. After attaching, the
// sender acknowledges with AckQueueInitialization over its side channel.
func (s *Sender) AttachReceiverQueue(h *shmem.ExchangeHandle) error {
	if s.queues != nil {
		return fmt.Errorf("%w: receiver queue already attached", ErrUnexpectedState)
	}
	if h.Access() != shmem.ReadOnly {
		h.Close()
		return fmt.Errorf("%w: receiver queue handle declares %s access", ErrProtocol, h.Access())
	}
	region, err := h.Consume()
	if err != nil {
		return fmt.Errorf("%w: mapping receiver queue: %v", ErrMemory, err)
	}
	if err := slotqueue.ValidateRegion(region.Bytes(), s.capacity); err != nil {
		region.Close()
		return fmt.Errorf("%w: receiver queue region: %v", ErrProtocol, err)
	}
	pair, err := slotqueue.NewPair(s.queueMem.Bytes(), region.Bytes(), s.capacity)
	if err != nil {
		region.Close()
		return fmt.Errorf("%w: constructing queue pair: %v", ErrMemory, err)
	}
	s.receiverMem = region
	s.queues = pair
	return nil
}

// Slot returns the writable content view of a slot. Only slots not currently
// in flight may be written.
func (s *Sender) Slot(id uint32) ([]byte, error) {
	if id >= s.cfg.NumSlots {
		return nil, fmt.Errorf("%w: slot id %d outside [0,%d)", ErrUnexpectedState, id, s.cfg.NumSlots)
	}
	if s.inFlight[id] {
		return nil, fmt.Errorf("%w: slot %d is in flight", ErrUnexpectedState, id)
	}
	off := uint64(id) * uint64(s.cfg.SlotStride())
	return s.slotMem.Bytes()[off : off+uint64(s.cfg.SlotContentSize)], nil
}

// SendSlot transfers ownership of a slot to the receiver through the
// available queue.
func (s *Sender) SendSlot(id uint32) error {
	if s.queues == nil {
		return fmt.Errorf("%w: receiver queue not attached", ErrUnexpectedState)
	}
	if id >= s.cfg.NumSlots {
		return fmt.Errorf("%w: slot id %d outside [0,%d)", ErrUnexpectedState, id, s.cfg.NumSlots)
	}
	if s.inFlight[id] {
		return fmt.Errorf("%w: slot %d already in flight", ErrUnexpectedState, id)
	}
	ok, err := s.queues.Avail.TryPush(id)
	if err != nil {
		return fmt.Errorf("%w: available queue: %v", ErrProtocol, err)
	}
	if !ok {
		return fmt.Errorf("%w: available queue full", ErrProtocol)
	}
	s.inFlight[id] = true
	return nil
}

// ReclaimSlots drains the free queue and returns the identifiers the receiver
// has finished with. Identifiers out of range or not in flight violate the
// protocol.
func (s *Sender) ReclaimSlots() ([]uint32, error) {
	if s.queues == nil {
		return nil, fmt.Errorf("%w: receiver queue not attached", ErrUnexpectedState)
	}
	var reclaimed []uint32
	for {
		id, ok, err := s.queues.Free.TryPop()
		if err != nil {
			return reclaimed, fmt.Errorf("%w: free queue: %v", ErrProtocol, err)
		}
		if !ok {
			return reclaimed, nil
		}
		if id >= s.cfg.NumSlots || !s.inFlight[id] {
			return reclaimed, fmt.Errorf("%w: reclaimed slot id %d was not in flight", ErrProtocol, id)
		}
		s.inFlight[id] = false
		reclaimed = append(reclaimed, id)
	}
}

// Close releases all regions and any unissued handles.
func (s *Sender) Close() error {
	if s.slotHandle != nil {
		s.slotHandle.Close()
		s.slotHandle = nil
	}
	if s.queueHandle != nil {
		s.queueHandle.Close()
		s.queueHandle = nil
	}
	for _, r := range []*shmem.Region{s.receiverMem, s.queueMem, s.slotMem} {
		if r != nil {
			r.Close()
		}
	}
	s.receiverMem, s.queueMem, s.slotMem = nil, nil, nil
	s.queues = nil
	return nil
}
