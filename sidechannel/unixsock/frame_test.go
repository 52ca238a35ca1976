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

package unixsock

import (
	"testing"

	slotipc "github.com/AnkiHonnaiah/QUICKCOM-POC-sub005"
	"github.com/AnkiHonnaiah/QUICKCOM-POC-sub005/shmem"
)

func TestFrameHeaderRoundTrip(t *testing.T) {
	in := frameHeader{Length: 48, Type: msgError, Flags: 0, Code: 3}
	buf := make([]byte, frameHeaderSize)
	encodeFrameHeader(buf, in)

	out, err := decodeFrameHeader(buf)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestFrameHeaderRejectsOversizedPayload(t *testing.T) {
	buf := make([]byte, frameHeaderSize)
	encodeFrameHeader(buf, frameHeader{Length: maxPayloadSize + 1, Type: msgShutdown})

	if _, err := decodeFrameHeader(buf); err == nil {
		t.Fatal("expected error for oversized payload length")
	}
}

func TestFrameHeaderRejectsShortBuffer(t *testing.T) {
	if _, err := decodeFrameHeader(make([]byte, frameHeaderSize-1)); err == nil {
		t.Fatal("expected error for short header")
	}
}

func TestConnectionRequestRoundTrip(t *testing.T) {
	in := connectionRequestWire{
		SlotConfig: slotipc.SlotMemoryConfig{
			SlotContentSize:      4096,
			SlotContentAlignment: 64,
			NumSlots:             8,
			Technology:           slotipc.TechnologyPinnedMemory,
		},
		QueueConfig: slotipc.QueueMemoryConfig{
			NumSlots:   8,
			Technology: slotipc.TechnologyPinnedMemory,
		},
		SlotRegionSize:  4096 * 8,
		QueueRegionSize: 96,
		SlotAccess:      shmem.ReadOnly,
		QueueAccess:     shmem.ReadOnly,
	}

	out, err := decodeConnectionRequest(encodeConnectionRequest(in))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestConnectionRequestRejectsShortPayload(t *testing.T) {
	if _, err := decodeConnectionRequest(make([]byte, connectionRequestSize-1)); err == nil {
		t.Fatal("expected error for short payload")
	}
}

func TestQueueInitializationRoundTrip(t *testing.T) {
	b := encodeQueueInitialization(96, shmem.ReadOnly)
	size, access, err := decodeQueueInitialization(b)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if size != 96 || access != shmem.ReadOnly {
		t.Fatalf("round trip mismatch: size=%d access=%s", size, access)
	}
}
