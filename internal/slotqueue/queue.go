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

package slotqueue

import (
	"errors"
	"fmt"
)

// ErrIndexCorrupt indicates a peer-written queue index is outside the legal
// range for the ring. The queue must not be used afterwards.
var ErrIndexCorrupt = errors.New("slotqueue: peer queue index out of range")

// Queue is one single-producer/single-consumer ring of slot identifiers.
//
// prodMem is the region holding the ring storage and the producer index;
// consMem is the region holding the consumer index. Exactly one process calls
// TryPush (the owner of prodMem) and exactly one calls TryPop (the owner of
// consMem). Neither operation blocks.
type Queue struct {
	prodMem  []byte
	consMem  []byte
	capacity uint32
	capMask  uint32
}

// NewQueue constructs a queue over the two region halves. Both regions must
// have been validated (or initialized) for the given capacity.
func NewQueue(prodMem, consMem []byte, capacity uint32) (*Queue, error) {
	if !IsPowerOfTwo(capacity) {
		return nil, fmt.Errorf("slotqueue: capacity %d is not a power of two", capacity)
	}
	if uint64(len(prodMem)) < RegionSize(capacity) {
		return nil, fmt.Errorf("slotqueue: producer region too small: %d bytes", len(prodMem))
	}
	if len(consMem) < HeaderSize {
		return nil, fmt.Errorf("slotqueue: consumer region too small: %d bytes", len(consMem))
	}
	return &Queue{
		prodMem:  prodMem,
		consMem:  consMem,
		capacity: capacity,
		capMask:  capacity - 1,
	}, nil
}

// Capacity returns the ring capacity.
func (q *Queue) Capacity() uint32 { return q.capacity }

// TryPush appends id to the ring. It returns false when the ring is full and
// an error when the peer-owned consumer index is corrupt. The element is
// stored before the producer index is published, so a consumer that observes
// the new index always reads a fully written element.
func (q *Queue) TryPush(id uint32) (bool, error) {
	prod := headerOf(q.prodMem).ProducerIndex()
	cons := headerOf(q.consMem).ConsumerIndex()

	used := prod - cons
	if used > uint64(q.capacity) {
		// The peer advanced its consumer index past our producer index.
		return false, fmt.Errorf("%w: consumer=%d producer=%d capacity=%d",
			ErrIndexCorrupt, cons, prod, q.capacity)
	}
	if used == uint64(q.capacity) {
		return false, nil
	}

	*slotAt(q.prodMem, uint32(prod)&q.capMask) = id
	headerOf(q.prodMem).SetProducerIndex(prod + 1)
	return true, nil
}

// TryPop removes the oldest identifier from the ring. It returns ok=false when
// the ring is empty and an error when the peer-owned producer index is
// corrupt. The producer index is loaded before the element is read, so the
// element is fully visible by the time it is returned.
func (q *Queue) TryPop() (uint32, bool, error) {
	cons := headerOf(q.consMem).ConsumerIndex()
	prod := headerOf(q.prodMem).ProducerIndex()

	avail := prod - cons
	if avail > uint64(q.capacity) {
		// Non-monotonic or runaway producer index.
		return 0, false, fmt.Errorf("%w: producer=%d consumer=%d capacity=%d",
			ErrIndexCorrupt, prod, cons, q.capacity)
	}
	if avail == 0 {
		return 0, false, nil
	}

	id := *slotAt(q.prodMem, uint32(cons)&q.capMask)
	headerOf(q.consMem).SetConsumerIndex(cons + 1)
	return id, true, nil
}

// Pair bundles the two queues of one connection.
//
// The available queue announces newly sent slots (sender produces, receiver
// consumes); the free queue returns reclaimed slots (receiver produces, sender
// consumes). Both are built over the same two regions: the sender-owned region
// stores the available ring, the receiver-owned region stores the free ring.
type Pair struct {
	Avail *Queue
	Free  *Queue
}

// NewPair builds the queue pair over the sender-owned and receiver-owned
// region halves.
func NewPair(senderMem, receiverMem []byte, capacity uint32) (*Pair, error) {
	avail, err := NewQueue(senderMem, receiverMem, capacity)
	if err != nil {
		return nil, fmt.Errorf("slotqueue: available queue: %w", err)
	}
	free, err := NewQueue(receiverMem, senderMem, capacity)
	if err != nil {
		return nil, fmt.Errorf("slotqueue: free queue: %w", err)
	}
	return &Pair{Avail: avail, Free: free}, nil
}
