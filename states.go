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

// ConnectionState is the closed set of connection states. Exactly one is
// active at a time; transitions are performed only by the state machine core
// after the triggering call or callback returns.
type ConnectionState uint8

const (
	// StateConnecting covers everything before the handshake completes.
	StateConnecting ConnectionState = iota
	// StateConnected is the operational state; slots flow through the queues.
	StateConnected
	// StateDisconnectedRemote means the peer announced graceful shutdown;
	// remaining slots can still be drained.
	StateDisconnectedRemote
	// StateDisconnected is terminal: all memory released, nothing accepted.
	StateDisconnected
	// StateCorrupted is terminal after a protocol or peer failure; already
	// owned slots can still be drained.
	StateCorrupted
)

// String returns the state name.
func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateDisconnectedRemote:
		return "DisconnectedRemote"
	case StateDisconnected:
		return "Disconnected"
	case StateCorrupted:
		return "Corrupted"
	default:
		return fmt.Sprintf("ConnectionState(%d)", uint8(s))
	}
}

// ReceiveMode distinguishes polled from notified operation while Connected.
type ReceiveMode uint8

const (
	// ModePolling means the application polls ReceiveSlot.
	ModePolling ReceiveMode = iota
	// ModeNotified means the peer announces new slots via Notification
	// messages and the registered NotifyFunc is invoked.
	ModeNotified
)

// String returns the mode name.
func (m ReceiveMode) String() string {
	switch m {
	case ModePolling:
		return "Polling"
	case ModeNotified:
		return "Notified"
	default:
		return fmt.Sprintf("ReceiveMode(%d)", uint8(m))
	}
}

// connectPhase is the sub-state of StateConnecting.
type connectPhase uint8

const (
	// phaseIdle: constructed, Connect not yet called; inbound handshake
	// messages are dropped.
	phaseIdle connectPhase = iota
	// phaseArmed: Connect called, awaiting the ConnectionRequest.
	phaseArmed
	// phaseIntermediate: memory prepared and acknowledged, awaiting the
	// AckQueueInitialization.
	phaseIntermediate
)

// pendingTransition is the single transition a state may request per call or
// callback. The core applies it after the handler returns.
type pendingTransition struct {
	target ConnectionState
	code   ErrorCode
}

// requestTransition records the transition to apply once the current handler
// returns. Requesting a second transition before the first is applied is a
// precondition violation and panics; a state never silently overwrites a
// decision already made.
func (c *Client) requestTransition(target ConnectionState, code ErrorCode) {
	if c.pending != nil {
		panic(fmt.Sprintf("slotipc: transition to %s requested while transition to %s is in flight",
			target, c.pending.target))
	}
	c.pending = &pendingTransition{target: target, code: code}
}

// applyPending performs the requested transition, if any. Entering
// Disconnected drops the logic client and releases all mapped memory;
// entering Corrupted keeps an existing logic client so in-flight tokens can
// still be drained.
func (c *Client) applyPending() {
	p := c.pending
	if p == nil {
		return
	}
	c.pending = nil

	from := c.state
	switch p.target {
	case StateConnected:
		c.mode = ModePolling
	case StateDisconnectedRemote:
		// Queues stay usable for draining.
	case StateDisconnected:
		c.dropMemory()
	case StateCorrupted:
		if c.logic == nil {
			// Nothing to drain; release whatever was prepared.
			c.dropMemory()
		}
		c.onNotify = nil
	}
	c.state = p.target

	entry := c.log.WithFields(map[string]interface{}{
		"from": from.String(),
		"to":   c.state.String(),
	})
	if p.code != CodeNone {
		entry = entry.WithField("code", p.code.String())
	}
	entry.Info("connection state changed")
}

// dropMemory releases the logic client or any half-prepared memory.
func (c *Client) dropMemory() {
	if c.logic != nil {
		c.logic.close()
		c.logic = nil
	}
	if c.prepared != nil {
		c.prepared.close()
		c.prepared = nil
	}
	c.onNotify = nil
}
