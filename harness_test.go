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
	"errors"
	"testing"

	"github.com/AnkiHonnaiah/QUICKCOM-POC-sub005/internal/slotqueue"
	"github.com/AnkiHonnaiah/QUICKCOM-POC-sub005/shmem"
)

// fakeMessenger records outbound side-channel traffic and can be told to fail.
type fakeMessenger struct {
	queueInits []*shmem.ExchangeHandle
	starts     int
	stops      int
	shutdowns  int
	failWith   error
}

func (m *fakeMessenger) SendQueueInitialization(h *shmem.ExchangeHandle) error {
	if m.failWith != nil {
		h.Close()
		return m.failWith
	}
	m.queueInits = append(m.queueInits, h)
	return nil
}

func (m *fakeMessenger) SendStartListening() error {
	if m.failWith != nil {
		return m.failWith
	}
	m.starts++
	return nil
}

func (m *fakeMessenger) SendStopListening() error {
	if m.failWith != nil {
		return m.failWith
	}
	m.stops++
	return nil
}

func (m *fakeMessenger) SendShutdown() error {
	if m.failWith != nil {
		return m.failWith
	}
	m.shutdowns++
	return nil
}

// errSendFailed stands in for a broken side channel.
var errSendFailed = errors.New("send failed")

// testEnv is an in-process stand-in for the sender: heap-backed regions plus
// a sender-side view of the queue pair.
type testEnv struct {
	t      *testing.T
	client *Client
	msgr   *fakeMessenger
	cfg    SlotMemoryConfig

	slotBuf   []byte
	senderMem []byte // sender-owned queue half
	clientMem []byte // client-owned queue half, captured from the allocator

	sender *slotqueue.Pair // the sender's view over the same regions
}

const (
	testSlotSize  = 64
	testNumSlots  = 4
	testSlotAlign = 64
)

func testSlotConfig() SlotMemoryConfig {
	return SlotMemoryConfig{
		SlotContentSize:      testSlotSize,
		SlotContentAlignment: testSlotAlign,
		NumSlots:             testNumSlots,
		Technology:           TechnologySystemMemory,
	}
}

// useHeapAllocator redirects the client's local queue allocation onto the
// heap and captures the allocated buffer.
func useHeapAllocator(t *testing.T, captured *[]byte) {
	t.Helper()
	prev := allocateRegion
	allocateRegion = func(name string, size uint64) (*shmem.ExchangeHandle, error) {
		buf := make([]byte, size)
		*captured = buf
		return shmem.NewBufferHandle(buf, shmem.ReadWrite), nil
	}
	t.Cleanup(func() { allocateRegion = prev })
}

// newTestRequest builds a valid connection request over heap regions.
func newTestRequest(t *testing.T, cfg SlotMemoryConfig) (ConnectionRequest, []byte, []byte) {
	t.Helper()

	capacity := slotqueue.CapacityFor(cfg.NumSlots)
	senderMem := make([]byte, slotqueue.RegionSize(capacity))
	if err := slotqueue.InitRegion(senderMem, capacity); err != nil {
		t.Fatalf("InitRegion failed: %v", err)
	}

	slotBuf := make([]byte, cfg.TotalSize())
	for i := range slotBuf {
		slotBuf[i] = byte(i)
	}

	req := ConnectionRequest{
		SlotConfig:  cfg,
		SlotMemory:  shmem.NewBufferHandle(slotBuf, shmem.ReadOnly),
		QueueConfig: QueueMemoryConfig{NumSlots: cfg.NumSlots, Technology: cfg.Technology},
		QueueMemory: shmem.NewBufferHandle(senderMem, shmem.ReadOnly),
	}
	return req, slotBuf, senderMem
}

// newArmedClient returns a client in Connecting(armed).
func newArmedClient(t *testing.T) (*Client, *fakeMessenger) {
	t.Helper()
	msgr := &fakeMessenger{}
	c := NewClient(msgr)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return c, msgr
}

// newConnectedEnv runs the full handshake against heap regions and returns a
// client in Connected(Polling) together with the sender-side queue view.
func newConnectedEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{t: t, cfg: testSlotConfig()}
	useHeapAllocator(t, &env.clientMem)

	env.msgr = &fakeMessenger{}
	env.client = NewClient(env.msgr)
	if err := env.client.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	req, slotBuf, senderMem := newTestRequest(t, env.cfg)
	env.slotBuf = slotBuf
	env.senderMem = senderMem

	env.client.OnConnectionRequest(req)
	if got := env.client.State(); got != StateConnecting {
		t.Fatalf("after connection request: state = %s, want Connecting", got)
	}
	if len(env.msgr.queueInits) != 1 {
		t.Fatalf("expected 1 queue initialization message, got %d", len(env.msgr.queueInits))
	}

	env.client.OnAckQueueInitialization()
	if got := env.client.State(); got != StateConnected {
		t.Fatalf("after queue ack: state = %s, want Connected", got)
	}

	capacity := slotqueue.CapacityFor(env.cfg.NumSlots)
	pair, err := slotqueue.NewPair(env.senderMem, env.clientMem, capacity)
	if err != nil {
		t.Fatalf("sender pair construction failed: %v", err)
	}
	env.sender = pair

	return env
}

// push announces a slot from the sender side.
func (e *testEnv) push(id uint32) {
	e.t.Helper()
	ok, err := e.sender.Avail.TryPush(id)
	if err != nil || !ok {
		e.t.Fatalf("sender push %d: ok=%v err=%v", id, ok, err)
	}
}

// popFree reclaims one slot from the sender side.
func (e *testEnv) popFree() (uint32, bool) {
	e.t.Helper()
	id, ok, err := e.sender.Free.TryPop()
	if err != nil {
		e.t.Fatalf("sender free pop: %v", err)
	}
	return id, ok
}
