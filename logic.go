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

// SlotToken is an opaque capability representing temporary ownership of one
// received slot. Tokens are issued by ReceiveSlot and consumed by ReleaseSlot;
// the zero value is never a valid token and a released token never validates
// again, even if the same slot identifier is received later.
type SlotToken struct {
	id    uint32
	nonce uint64
}

// String renders the token for logging.
func (t SlotToken) String() string {
	return fmt.Sprintf("slot(%d/%d)", t.id, t.nonce)
}

// logicClient owns the mapped regions and the queue pair and exposes them as
// slot-level operations. It has no knowledge of connection state; the state
// machine decides which operations are currently legal.
type logicClient struct {
	mem       *preparedMemory
	slotSize  uint32
	stride    uint32
	numSlots  uint32
	owned     []uint64 // nonce per slot identifier; 0 = not owned
	live      uint32
	lastNonce uint64
}

func newLogicClient(mem *preparedMemory, cfg SlotMemoryConfig) *logicClient {
	return &logicClient{
		mem:      mem,
		slotSize: cfg.SlotContentSize,
		stride:   cfg.SlotStride(),
		numSlots: cfg.NumSlots,
		owned:    make([]uint64, cfg.NumSlots),
	}
}

// receive pops the available queue. An empty pop is not an error. A popped
// identifier outside the slot range or already owned by this side violates
// the protocol.
func (l *logicClient) receive() (SlotToken, bool, error) {
	id, ok, err := l.mem.queues.Avail.TryPop()
	if err != nil {
		return SlotToken{}, false, fmt.Errorf("%w: available queue: %v", ErrProtocol, err)
	}
	if !ok {
		return SlotToken{}, false, nil
	}
	if id >= l.numSlots {
		return SlotToken{}, false, fmt.Errorf("%w: received slot id %d outside [0,%d)", ErrProtocol, id, l.numSlots)
	}
	if l.owned[id] != 0 {
		return SlotToken{}, false, fmt.Errorf("%w: received slot id %d while still owned", ErrProtocol, id)
	}

	l.lastNonce++
	l.owned[id] = l.lastNonce
	l.live++
	return SlotToken{id: id, nonce: l.lastNonce}, true, nil
}

// access returns the read-only content view for an owned token. The region is
// mapped without write permission, so the view cannot be abused to mutate the
// slot.
func (l *logicClient) access(t SlotToken) ([]byte, error) {
	if !l.owns(t) {
		return nil, fmt.Errorf("%w: token %s is not currently owned", ErrUnexpectedState, t)
	}
	off := uint64(t.id) * uint64(l.stride)
	return l.mem.slotMem.Bytes()[off : off+uint64(l.slotSize)], nil
}

// release consumes the token and pushes the identifier to the free queue. A
// full free queue means the peer is not honoring the negotiated slot bound.
func (l *logicClient) release(t SlotToken) error {
	if !l.owns(t) {
		return fmt.Errorf("%w: token %s is not currently owned", ErrUnexpectedState, t)
	}
	ok, err := l.mem.queues.Free.TryPush(t.id)
	if err != nil {
		return fmt.Errorf("%w: free queue: %v", ErrProtocol, err)
	}
	if !ok {
		return fmt.Errorf("%w: free queue full while releasing slot %d", ErrProtocol, t.id)
	}
	l.forget(t)
	return nil
}

// releaseLocal drops ownership of a token without touching the free queue.
// Used while Corrupted, where the queues can no longer be trusted.
func (l *logicClient) releaseLocal(t SlotToken) error {
	if !l.owns(t) {
		return fmt.Errorf("%w: token %s is not currently owned", ErrUnexpectedState, t)
	}
	l.forget(t)
	return nil
}

func (l *logicClient) owns(t SlotToken) bool {
	return t.nonce != 0 && t.id < l.numSlots && l.owned[t.id] == t.nonce
}

func (l *logicClient) forget(t SlotToken) {
	l.owned[t.id] = 0
	l.live--
}

// liveTokens returns the number of currently owned slots.
func (l *logicClient) liveTokens() uint32 {
	return l.live
}

// close unmaps all regions. The logic client must not be used afterwards.
func (l *logicClient) close() {
	l.mem.close()
}
