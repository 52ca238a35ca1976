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
)

// Error taxonomy.
//
// ErrUnexpectedState reports a local precondition violation: the call is
// illegal in the current connection state, nothing was mutated, and the caller
// may retry in a valid state. ErrProtocol, ErrPeerCrashed and ErrMemory are
// connection-fatal: they accompany a one-way transition into Corrupted.
// ErrPeerDisconnected is the expected teardown signal.
var (
	ErrUnexpectedState  = errors.New("slotipc: operation not allowed in current connection state")
	ErrProtocol         = errors.New("slotipc: protocol violation")
	ErrPeerDisconnected = errors.New("slotipc: peer disconnected")
	ErrPeerCrashed      = errors.New("slotipc: peer crashed")
	ErrMemory           = errors.New("slotipc: shared memory setup failed")
)

// ErrorCode is the wire representation of an error carried by a side-channel
// Error message.
type ErrorCode uint32

const (
	// CodeNone is the zero value; it never travels on the wire.
	CodeNone ErrorCode = iota
	// CodePeerDisconnected signals an expected peer teardown.
	CodePeerDisconnected
	// CodePeerCrashed signals abrupt loss of the peer.
	CodePeerCrashed
	// CodeProtocol signals a violation of the slot exchange contract.
	CodeProtocol
)

// String returns the code name.
func (c ErrorCode) String() string {
	switch c {
	case CodeNone:
		return "None"
	case CodePeerDisconnected:
		return "PeerDisconnected"
	case CodePeerCrashed:
		return "PeerCrashed"
	case CodeProtocol:
		return "Protocol"
	default:
		return fmt.Sprintf("ErrorCode(%d)", uint32(c))
	}
}

// Err maps the wire code onto the local error taxonomy.
func (c ErrorCode) Err() error {
	switch c {
	case CodePeerDisconnected:
		return ErrPeerDisconnected
	case CodePeerCrashed:
		return ErrPeerCrashed
	case CodeProtocol:
		return ErrProtocol
	default:
		return nil
	}
}
