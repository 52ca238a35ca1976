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
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Client is the receiving side of a slot exchange connection.
//
// A Client is not safe for concurrent use: all public calls and all inbound
// side-channel callbacks must be serialized by the caller, typically by
// driving both from a single dispatch loop. No method blocks.
type Client struct {
	id        uuid.UUID
	messenger Messenger
	expected  *SlotMemoryConfig
	log       logrus.FieldLogger

	state    ConnectionState
	phase    connectPhase
	mode     ReceiveMode
	onNotify NotifyFunc

	slotCfg  SlotMemoryConfig
	prepared *preparedMemory // between ConnectionRequest and AckQueueInitialization
	logic    *logicClient    // from Connected onward

	pending *pendingTransition
}

// NewClient constructs a client in the Connecting state. The messenger is the
// outbound half of the side channel; inbound messages are delivered by
// invoking the ControlHandler methods on the returned client.
func NewClient(messenger Messenger) *Client {
	id := uuid.New()
	return &Client{
		id:        id,
		messenger: messenger,
		log:       log.WithField("conn", id.String()[:8]),
	}
}

// SetExpectedSlotMemoryConfig pins the slot memory parameters this client is
// willing to accept. A ConnectionRequest declaring anything else corrupts the
// connection. Without an expectation any internally consistent config is
// accepted.
func (c *Client) SetExpectedSlotMemoryConfig(cfg SlotMemoryConfig) {
	c.expected = &cfg
}

// ID returns the client's connection identity, used in logs and by transports
// that multiplex several connections.
func (c *Client) ID() uuid.UUID { return c.id }

// State returns the current connection state.
func (c *Client) State() ConnectionState { return c.state }

// Mode returns the receive mode; meaningful only while Connected.
func (c *Client) Mode() ReceiveMode { return c.mode }

// SlotMemoryConfig returns the negotiated slot memory parameters; valid from
// the moment the connection request was accepted.
func (c *Client) SlotMemoryConfig() SlotMemoryConfig { return c.slotCfg }

// Connect arms the client for the handshake. Until Connect is called, inbound
// handshake messages are dropped.
func (c *Client) Connect() error {
	if c.state != StateConnecting || c.phase != phaseIdle {
		return fmt.Errorf("%w: Connect in %s", ErrUnexpectedState, c.describeState())
	}
	c.phase = phaseArmed
	c.log.Debug("client armed, awaiting connection request")
	return nil
}

// Disconnect tears the connection down and releases all shared memory. Every
// SlotToken must have been released first; a live token makes Disconnect fail
// without any state change.
func (c *Client) Disconnect() error {
	defer c.applyPending()

	switch c.state {
	case StateConnected:
		if live := c.logic.liveTokens(); live != 0 {
			return fmt.Errorf("%w: Disconnect with %d live slot tokens", ErrUnexpectedState, live)
		}
		if err := c.messenger.SendShutdown(); err != nil {
			c.requestTransition(StateCorrupted, CodePeerCrashed)
			return fmt.Errorf("%w: sending shutdown: %v", ErrPeerCrashed, err)
		}
		c.requestTransition(StateDisconnected, CodeNone)
		return nil
	case StateDisconnectedRemote:
		if live := c.logic.liveTokens(); live != 0 {
			return fmt.Errorf("%w: Disconnect with %d live slot tokens", ErrUnexpectedState, live)
		}
		// The peer is already gone; no shutdown message to send.
		c.requestTransition(StateDisconnected, CodeNone)
		return nil
	default:
		return fmt.Errorf("%w: Disconnect in %s", ErrUnexpectedState, c.describeState())
	}
}

// StartListening switches to notified operation: the peer announces each sent
// slot with a Notification message and fn is invoked for it. Only legal while
// Connected and polling.
func (c *Client) StartListening(fn NotifyFunc) error {
	defer c.applyPending()

	if c.state != StateConnected || c.mode != ModePolling {
		return fmt.Errorf("%w: StartListening in %s", ErrUnexpectedState, c.describeState())
	}
	if fn == nil {
		return fmt.Errorf("%w: StartListening requires a notify callback", ErrUnexpectedState)
	}
	if err := c.messenger.SendStartListening(); err != nil {
		c.requestTransition(StateCorrupted, CodePeerCrashed)
		return fmt.Errorf("%w: sending start-listening: %v", ErrPeerCrashed, err)
	}
	c.mode = ModeNotified
	c.onNotify = fn
	return nil
}

// StopListening reverts to polled operation. Only legal while Connected and
// notified.
func (c *Client) StopListening() error {
	defer c.applyPending()

	if c.state != StateConnected || c.mode != ModeNotified {
		return fmt.Errorf("%w: StopListening in %s", ErrUnexpectedState, c.describeState())
	}
	if err := c.messenger.SendStopListening(); err != nil {
		c.requestTransition(StateCorrupted, CodePeerCrashed)
		return fmt.Errorf("%w: sending stop-listening: %v", ErrPeerCrashed, err)
	}
	c.mode = ModePolling
	c.onNotify = nil
	return nil
}

// ReceiveSlot pops the next announced slot and issues a fresh token for it.
// ok=false means no slot is ready, which is not an error. Legal while
// Connected and, for draining, while DisconnectedRemote.
func (c *Client) ReceiveSlot() (SlotToken, bool, error) {
	defer c.applyPending()

	switch c.state {
	case StateConnected, StateDisconnectedRemote:
		tok, ok, err := c.logic.receive()
		if err != nil {
			c.requestTransition(StateCorrupted, CodeProtocol)
			return SlotToken{}, false, err
		}
		return tok, ok, nil
	default:
		return SlotToken{}, false, fmt.Errorf("%w: ReceiveSlot in %s", ErrUnexpectedState, c.describeState())
	}
}

// AccessSlotContent returns a read-only view of the slot content behind an
// owned token. Permitted while Connected, DisconnectedRemote, and Corrupted
// (draining already-owned tokens).
func (c *Client) AccessSlotContent(t SlotToken) ([]byte, error) {
	switch c.state {
	case StateConnected, StateDisconnectedRemote:
		return c.logic.access(t)
	case StateCorrupted:
		if c.logic == nil {
			return nil, fmt.Errorf("%w: AccessSlotContent in %s without owned slots", ErrUnexpectedState, c.state)
		}
		return c.logic.access(t)
	default:
		return nil, fmt.Errorf("%w: AccessSlotContent in %s", ErrUnexpectedState, c.describeState())
	}
}

// ReleaseSlot consumes the token and hands the slot back to the peer through
// the free queue. While Corrupted the queues are no longer trusted, so release
// only drops local ownership.
func (c *Client) ReleaseSlot(t SlotToken) error {
	defer c.applyPending()

	switch c.state {
	case StateConnected, StateDisconnectedRemote:
		err := c.logic.release(t)
		if errors.Is(err, ErrProtocol) {
			c.requestTransition(StateCorrupted, CodeProtocol)
		}
		return err
	case StateCorrupted:
		if c.logic == nil {
			return fmt.Errorf("%w: ReleaseSlot in %s without owned slots", ErrUnexpectedState, c.state)
		}
		return c.logic.releaseLocal(t)
	default:
		return fmt.Errorf("%w: ReleaseSlot in %s", ErrUnexpectedState, c.describeState())
	}
}

// OnConnectionRequest handles the sender's opening message: validates the
// declared configs, maps the shared regions, and acknowledges memory
// preparation with the local queue region handle.
func (c *Client) OnConnectionRequest(req ConnectionRequest) {
	defer c.applyPending()

	switch {
	case c.state == StateConnecting && c.phase == phaseArmed:
		// Handled below.
	case c.state == StateConnecting && c.phase == phaseIdle:
		c.log.Warn("connection request before Connect, dropping")
		req.close()
		return
	case c.state == StateConnected || c.state == StateDisconnectedRemote,
		c.state == StateConnecting && c.phase == phaseIntermediate:
		c.log.WithField("state", c.describeState()).Error("unexpected connection request")
		req.close()
		c.requestTransition(StateCorrupted, CodeProtocol)
		return
	default:
		req.close()
		return
	}

	if !ValidateSlotMemoryConfig(req.SlotConfig, c.expected) {
		c.log.WithFields(map[string]interface{}{
			"slots":     req.SlotConfig.NumSlots,
			"slot_size": req.SlotConfig.SlotContentSize,
		}).Error("slot memory config rejected")
		req.close()
		c.requestTransition(StateCorrupted, CodeProtocol)
		return
	}
	if req.QueueConfig.Validate() != nil || req.QueueConfig.NumSlots != req.SlotConfig.NumSlots {
		c.log.Error("queue memory config rejected")
		req.close()
		c.requestTransition(StateCorrupted, CodeProtocol)
		return
	}

	mem, err := prepareMemory(req)
	if err != nil {
		c.log.WithError(err).Error("memory preparation failed")
		c.requestTransition(StateCorrupted, CodeProtocol)
		return
	}

	if err := c.messenger.SendQueueInitialization(mem.takeClientHandle()); err != nil {
		c.log.WithError(err).Error("sending queue initialization failed")
		mem.close()
		c.requestTransition(StateCorrupted, CodePeerCrashed)
		return
	}

	c.prepared = mem
	c.slotCfg = req.SlotConfig
	c.phase = phaseIntermediate
	c.log.WithFields(map[string]interface{}{
		"slots":     req.SlotConfig.NumSlots,
		"slot_size": req.SlotConfig.SlotContentSize,
	}).Debug("memory prepared, awaiting queue ack")
}

// OnAckQueueInitialization finalizes the handshake: the peer has attached the
// local queue region and the connection becomes operational.
func (c *Client) OnAckQueueInitialization() {
	defer c.applyPending()

	switch {
	case c.state == StateConnecting && c.phase == phaseIntermediate:
		c.logic = newLogicClient(c.prepared, c.slotCfg)
		c.prepared = nil
		c.requestTransition(StateConnected, CodeNone)
	case c.state == StateConnecting && c.phase == phaseIdle:
		c.log.Warn("queue ack before Connect, dropping")
	case c.state == StateConnecting && c.phase == phaseArmed,
		c.state == StateConnected, c.state == StateDisconnectedRemote:
		c.log.WithField("state", c.describeState()).Error("unexpected queue ack")
		c.requestTransition(StateCorrupted, CodeProtocol)
	}
}

// OnNotification invokes the registered notify callback while listening.
// Anywhere else the message is dropped; it races benignly with StopListening.
func (c *Client) OnNotification() {
	if c.state == StateConnected && c.mode == ModeNotified && c.onNotify != nil {
		c.onNotify()
		return
	}
	c.log.Debug("notification ignored")
}

// OnShutdown handles the peer's graceful teardown announcement.
func (c *Client) OnShutdown() {
	defer c.applyPending()

	switch c.state {
	case StateConnecting:
		c.requestTransition(StateDisconnected, CodePeerDisconnected)
	case StateConnected:
		c.requestTransition(StateDisconnectedRemote, CodePeerDisconnected)
	case StateDisconnectedRemote:
		c.requestTransition(StateCorrupted, CodeProtocol)
	}
}

// OnTermination handles the abrupt peer-crash signal.
func (c *Client) OnTermination() {
	defer c.applyPending()

	switch c.state {
	case StateConnecting, StateConnected, StateDisconnectedRemote:
		c.requestTransition(StateCorrupted, CodePeerCrashed)
	}
}

// OnError handles an inbound error message. A PeerDisconnected error is
// expected while DisconnectedRemote and ignored there; every other error in a
// non-terminal state corrupts the connection.
func (c *Client) OnError(code ErrorCode) {
	defer c.applyPending()

	switch c.state {
	case StateDisconnectedRemote:
		if code == CodePeerDisconnected {
			c.log.Debug("peer disconnect error after shutdown, ignoring")
			return
		}
		c.requestTransition(StateCorrupted, code)
	case StateConnecting, StateConnected:
		c.requestTransition(StateCorrupted, code)
	}
}

// describeState renders the state with its sub-state for error messages.
func (c *Client) describeState() string {
	switch c.state {
	case StateConnecting:
		switch c.phase {
		case phaseIdle:
			return "Connecting(idle)"
		case phaseArmed:
			return "Connecting(armed)"
		case phaseIntermediate:
			return "Connecting(intermediate)"
		}
	case StateConnected:
		return fmt.Sprintf("Connected(%s)", c.mode)
	}
	return c.state.String()
}
