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

// Package slotipc implements a zero-copy slot-exchange primitive between two
// processes on the same machine.
//
// A receiving Client connects to a sending peer over a small out-of-band
// control channel (the side channel), negotiates and maps shared memory
// regions, and then exchanges ownership of fixed-size memory slots through two
// lock-free single-producer/single-consumer queues living in that shared
// memory. Slot content is never copied between the processes; only slot
// identifiers move through the queues.
//
// The client is a closed state machine (Connecting, Connected,
// DisconnectedRemote, Disconnected, Corrupted). All public calls and all
// inbound side-channel callbacks must be serialized by the caller, typically
// by a single-threaded dispatch loop; no operation blocks. Any protocol-level
// violation by the peer, including corrupted queue indices and out-of-range
// slot identifiers, moves the connection one-way into the Corrupted state
// where already-owned slots can still be drained but nothing new is accepted.
//
// The sidechannel/unixsock package provides a ready-made side channel over a
// Unix domain socket with file descriptor passing; the Sender type implements
// the producing peer.
package slotipc
