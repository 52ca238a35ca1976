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
	"testing"

	"github.com/stretchr/testify/require"
)

// stateID enumerates every distinguishable client situation, including the
// Connecting sub-phases and the Connected receive modes.
type stateID int

const (
	sIdle stateID = iota // constructed, Connect not called
	sArmed
	sIntermediate
	sConnected // polling
	sNotified
	sDisconnectedRemote
	sDisconnected
	sCorrupted
)

func (s stateID) String() string {
	switch s {
	case sIdle:
		return "Connecting/idle"
	case sArmed:
		return "Connecting/armed"
	case sIntermediate:
		return "Connecting/intermediate"
	case sConnected:
		return "Connected/polling"
	case sNotified:
		return "Connected/notified"
	case sDisconnectedRemote:
		return "DisconnectedRemote"
	case sDisconnected:
		return "Disconnected"
	case sCorrupted:
		return "Corrupted"
	}
	return fmt.Sprintf("stateID(%d)", int(s))
}

// buildClient drives a fresh client into the requested situation.
func buildClient(t *testing.T, s stateID) (*Client, *fakeMessenger) {
	t.Helper()

	var clientMem []byte
	useHeapAllocator(t, &clientMem)
	msgr := &fakeMessenger{}
	c := NewClient(msgr)

	if s == sIdle {
		return c, msgr
	}
	require.NoError(t, c.Connect())
	if s == sArmed {
		return c, msgr
	}

	req, _, _ := newTestRequest(t, testSlotConfig())
	c.OnConnectionRequest(req)
	require.Equal(t, StateConnecting, c.State())
	if s == sIntermediate {
		return c, msgr
	}

	c.OnAckQueueInitialization()
	require.Equal(t, StateConnected, c.State())

	switch s {
	case sConnected:
	case sNotified:
		require.NoError(t, c.StartListening(func() {}))
	case sDisconnectedRemote:
		c.OnShutdown()
		require.Equal(t, StateDisconnectedRemote, c.State())
	case sDisconnected:
		require.NoError(t, c.Disconnect())
		require.Equal(t, StateDisconnected, c.State())
	case sCorrupted:
		c.OnError(CodeProtocol)
		require.Equal(t, StateCorrupted, c.State())
	}
	return c, msgr
}

// fireEvent applies one public call or inbound callback. Callbacks have no
// return value; they report a nil error.
func fireEvent(t *testing.T, c *Client, event string) error {
	t.Helper()
	switch event {
	case "Connect":
		return c.Connect()
	case "Disconnect":
		return c.Disconnect()
	case "StartListening":
		return c.StartListening(func() {})
	case "StopListening":
		return c.StopListening()
	case "ReceiveSlot":
		_, _, err := c.ReceiveSlot()
		return err
	case "ConnectionRequest":
		req, _, _ := newTestRequest(t, testSlotConfig())
		c.OnConnectionRequest(req)
		return nil
	case "AckQueueInitialization":
		c.OnAckQueueInitialization()
		return nil
	case "Shutdown":
		c.OnShutdown()
		return nil
	case "Termination":
		c.OnTermination()
		return nil
	case "ErrorProtocol":
		c.OnError(CodeProtocol)
		return nil
	case "ErrorPeerDisconnected":
		c.OnError(CodePeerDisconnected)
		return nil
	}
	t.Fatalf("unknown event %q", event)
	return nil
}

func TestConnectionStateTable(t *testing.T) {
	type row struct {
		state   stateID
		event   string
		want    ConnectionState
		wantErr error // nil means the event must not report an error
	}

	rows := []row{
		// Before Connect: handshake messages are dropped, teardown signals land.
		{sIdle, "Connect", StateConnecting, nil},
		{sIdle, "Disconnect", StateConnecting, ErrUnexpectedState},
		{sIdle, "StartListening", StateConnecting, ErrUnexpectedState},
		{sIdle, "StopListening", StateConnecting, ErrUnexpectedState},
		{sIdle, "ReceiveSlot", StateConnecting, ErrUnexpectedState},
		{sIdle, "ConnectionRequest", StateConnecting, nil},
		{sIdle, "AckQueueInitialization", StateConnecting, nil},
		{sIdle, "Shutdown", StateDisconnected, nil},
		{sIdle, "Termination", StateCorrupted, nil},
		{sIdle, "ErrorProtocol", StateCorrupted, nil},
		{sIdle, "ErrorPeerDisconnected", StateCorrupted, nil},

		// Armed: only the ConnectionRequest advances the handshake.
		{sArmed, "Connect", StateConnecting, ErrUnexpectedState},
		{sArmed, "Disconnect", StateConnecting, ErrUnexpectedState},
		{sArmed, "StartListening", StateConnecting, ErrUnexpectedState},
		{sArmed, "StopListening", StateConnecting, ErrUnexpectedState},
		{sArmed, "ReceiveSlot", StateConnecting, ErrUnexpectedState},
		{sArmed, "ConnectionRequest", StateConnecting, nil},
		{sArmed, "AckQueueInitialization", StateCorrupted, nil},
		{sArmed, "Shutdown", StateDisconnected, nil},
		{sArmed, "Termination", StateCorrupted, nil},
		{sArmed, "ErrorProtocol", StateCorrupted, nil},

		// Intermediate: only the queue ack completes the handshake.
		{sIntermediate, "Connect", StateConnecting, ErrUnexpectedState},
		{sIntermediate, "Disconnect", StateConnecting, ErrUnexpectedState},
		{sIntermediate, "StartListening", StateConnecting, ErrUnexpectedState},
		{sIntermediate, "ReceiveSlot", StateConnecting, ErrUnexpectedState},
		{sIntermediate, "ConnectionRequest", StateCorrupted, nil},
		{sIntermediate, "AckQueueInitialization", StateConnected, nil},
		{sIntermediate, "Shutdown", StateDisconnected, nil},
		{sIntermediate, "Termination", StateCorrupted, nil},
		{sIntermediate, "ErrorProtocol", StateCorrupted, nil},

		// Connected, polling.
		{sConnected, "Connect", StateConnected, ErrUnexpectedState},
		{sConnected, "Disconnect", StateDisconnected, nil},
		{sConnected, "StartListening", StateConnected, nil},
		{sConnected, "StopListening", StateConnected, ErrUnexpectedState},
		{sConnected, "ReceiveSlot", StateConnected, nil},
		{sConnected, "ConnectionRequest", StateCorrupted, nil},
		{sConnected, "AckQueueInitialization", StateCorrupted, nil},
		{sConnected, "Shutdown", StateDisconnectedRemote, nil},
		{sConnected, "Termination", StateCorrupted, nil},
		{sConnected, "ErrorProtocol", StateCorrupted, nil},
		{sConnected, "ErrorPeerDisconnected", StateCorrupted, nil},

		// Connected, notified.
		{sNotified, "StartListening", StateConnected, ErrUnexpectedState},
		{sNotified, "StopListening", StateConnected, nil},
		{sNotified, "Shutdown", StateDisconnectedRemote, nil},

		// Remote already shut down: draining only.
		{sDisconnectedRemote, "Connect", StateDisconnectedRemote, ErrUnexpectedState},
		{sDisconnectedRemote, "Disconnect", StateDisconnected, nil},
		{sDisconnectedRemote, "StartListening", StateDisconnectedRemote, ErrUnexpectedState},
		{sDisconnectedRemote, "StopListening", StateDisconnectedRemote, ErrUnexpectedState},
		{sDisconnectedRemote, "ReceiveSlot", StateDisconnectedRemote, nil},
		{sDisconnectedRemote, "ConnectionRequest", StateCorrupted, nil},
		{sDisconnectedRemote, "AckQueueInitialization", StateCorrupted, nil},
		{sDisconnectedRemote, "Shutdown", StateCorrupted, nil},
		{sDisconnectedRemote, "Termination", StateCorrupted, nil},
		{sDisconnectedRemote, "ErrorProtocol", StateCorrupted, nil},
		{sDisconnectedRemote, "ErrorPeerDisconnected", StateDisconnectedRemote, nil},

		// Terminal: Disconnected accepts nothing.
		{sDisconnected, "Connect", StateDisconnected, ErrUnexpectedState},
		{sDisconnected, "Disconnect", StateDisconnected, ErrUnexpectedState},
		{sDisconnected, "StartListening", StateDisconnected, ErrUnexpectedState},
		{sDisconnected, "StopListening", StateDisconnected, ErrUnexpectedState},
		{sDisconnected, "ReceiveSlot", StateDisconnected, ErrUnexpectedState},
		{sDisconnected, "ConnectionRequest", StateDisconnected, nil},
		{sDisconnected, "AckQueueInitialization", StateDisconnected, nil},
		{sDisconnected, "Shutdown", StateDisconnected, nil},
		{sDisconnected, "Termination", StateDisconnected, nil},
		{sDisconnected, "ErrorProtocol", StateDisconnected, nil},

		// Terminal: Corrupted ignores further signals.
		{sCorrupted, "Connect", StateCorrupted, ErrUnexpectedState},
		{sCorrupted, "Disconnect", StateCorrupted, ErrUnexpectedState},
		{sCorrupted, "StartListening", StateCorrupted, ErrUnexpectedState},
		{sCorrupted, "StopListening", StateCorrupted, ErrUnexpectedState},
		{sCorrupted, "ReceiveSlot", StateCorrupted, ErrUnexpectedState},
		{sCorrupted, "ConnectionRequest", StateCorrupted, nil},
		{sCorrupted, "AckQueueInitialization", StateCorrupted, nil},
		{sCorrupted, "Shutdown", StateCorrupted, nil},
		{sCorrupted, "Termination", StateCorrupted, nil},
		{sCorrupted, "ErrorProtocol", StateCorrupted, nil},
	}

	for _, r := range rows {
		t.Run(fmt.Sprintf("%s/%s", r.state, r.event), func(t *testing.T) {
			c, _ := buildClient(t, r.state)
			err := fireEvent(t, c, r.event)
			if r.wantErr != nil {
				require.ErrorIs(t, err, r.wantErr)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, r.want, c.State())
		})
	}
}

func TestStateMachinePhaseProgression(t *testing.T) {
	c, msgr := buildClient(t, sIdle)
	require.Equal(t, phaseIdle, c.phase)

	require.NoError(t, c.Connect())
	require.Equal(t, phaseArmed, c.phase)

	req, _, _ := newTestRequest(t, testSlotConfig())
	c.OnConnectionRequest(req)
	require.Equal(t, phaseIntermediate, c.phase)
	require.Len(t, msgr.queueInits, 1)

	c.OnAckQueueInitialization()
	require.Equal(t, StateConnected, c.State())
	require.Equal(t, ModePolling, c.Mode())
}

func TestRequestTransitionIsSingleShot(t *testing.T) {
	c, _ := buildClient(t, sIdle)

	c.requestTransition(StateDisconnected, CodeNone)
	require.PanicsWithValue(t,
		"slotipc: transition to Corrupted requested while transition to Disconnected is in flight",
		func() { c.requestTransition(StateCorrupted, CodeProtocol) })

	// After the pending transition is applied a new one may be requested.
	c.applyPending()
	require.Equal(t, StateDisconnected, c.State())
	require.NotPanics(t, func() { c.requestTransition(StateCorrupted, CodeProtocol) })
	c.applyPending()
	require.Equal(t, StateCorrupted, c.State())
}

func TestDisconnectedDropsMemory(t *testing.T) {
	env := newConnectedEnv(t)
	require.NotNil(t, env.client.logic)

	require.NoError(t, env.client.Disconnect())
	require.Nil(t, env.client.logic)
	require.Nil(t, env.client.prepared)
	require.Equal(t, 1, env.msgr.shutdowns)
}

func TestCorruptedKeepsLogicForDraining(t *testing.T) {
	env := newConnectedEnv(t)
	env.client.OnTermination()
	require.Equal(t, StateCorrupted, env.client.State())
	require.NotNil(t, env.client.logic)
}

func TestCorruptedBeforeMemoryDropsPreparation(t *testing.T) {
	c, _ := buildClient(t, sIntermediate)
	require.NotNil(t, c.prepared)

	c.OnTermination()
	require.Equal(t, StateCorrupted, c.State())
	require.Nil(t, c.prepared)
	require.Nil(t, c.logic)
}
