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

import "github.com/AnkiHonnaiah/QUICKCOM-POC-sub005/shmem"

// ConnectionRequest is the sender's opening control message: the negotiated
// memory parameters plus the one-shot handles for the two sender-allocated
// regions. The receiver takes ownership of both handles.
type ConnectionRequest struct {
	SlotConfig  SlotMemoryConfig
	SlotMemory  *shmem.ExchangeHandle
	QueueConfig QueueMemoryConfig
	QueueMemory *shmem.ExchangeHandle
}

// close releases any handles still unspent, e.g. when the request arrives in a
// state that rejects it.
func (r ConnectionRequest) close() {
	if r.SlotMemory != nil {
		r.SlotMemory.Close()
	}
	if r.QueueMemory != nil {
		r.QueueMemory.Close()
	}
}

// Messenger is the client's outbound half of the side channel. The concrete
// transport is external; sidechannel/unixsock provides one.
type Messenger interface {
	// SendQueueInitialization acknowledges memory preparation and transfers
	// the read-only handle for the client-allocated queue region to the peer.
	// The messenger takes ownership of the handle.
	SendQueueInitialization(handle *shmem.ExchangeHandle) error

	// SendStartListening asks the peer to emit Notification messages for
	// newly sent slots.
	SendStartListening() error

	// SendStopListening reverts the peer to silent (polled) operation.
	SendStopListening() error

	// SendShutdown announces graceful teardown of this side.
	SendShutdown() error
}

// ControlHandler is the inbound half of the side channel: the callbacks a
// transport invokes for messages received from the peer. Client implements
// it. Calls must be serialized with the client's public API by the caller.
type ControlHandler interface {
	OnConnectionRequest(req ConnectionRequest)
	OnAckQueueInitialization()
	OnNotification()
	OnShutdown()
	OnTermination()
	OnError(code ErrorCode)
}

// NotifyFunc is invoked for each inbound Notification while listening.
type NotifyFunc func()
