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
	"encoding/binary"
	"errors"
	"fmt"

	slotipc "github.com/AnkiHonnaiah/QUICKCOM-POC-sub005"
	"github.com/AnkiHonnaiah/QUICKCOM-POC-sub005/shmem"
)

// Control frame layout (16 bytes, little-endian):
// uint32 length    // payload length in bytes (excludes the 16-byte header)
// uint8  type      // msgType
// uint8  flags     // per-type flags; zero for all current types
// uint16 reserved  // set to zero
// uint32 code      // error code for msgError; zero otherwise
// uint32 reserved2 // set to zero
const frameHeaderSize = 16

// maxPayloadSize bounds control message payloads; the side channel only ever
// carries small fixed-size structs.
const maxPayloadSize = 4096

type msgType uint8

const (
	msgConnectionRequest   msgType = 0x01 // sender -> receiver, 2 fds attached
	msgQueueInitialization msgType = 0x02 // receiver -> sender, 1 fd attached
	msgAckQueueInit        msgType = 0x03 // sender -> receiver
	msgStartListening      msgType = 0x04 // receiver -> sender
	msgStopListening       msgType = 0x05 // receiver -> sender
	msgNotification        msgType = 0x06 // sender -> receiver
	msgShutdown            msgType = 0x07 // either direction
	msgTermination         msgType = 0x08 // either direction
	msgError               msgType = 0x09 // either direction, code in header
)

type frameHeader struct {
	Length uint32
	Type   msgType
	Flags  uint8
	Code   uint32
}

func encodeFrameHeader(dst []byte, fh frameHeader) {
	binary.LittleEndian.PutUint32(dst[0:4], fh.Length)
	dst[4] = byte(fh.Type)
	dst[5] = fh.Flags
	binary.LittleEndian.PutUint16(dst[6:8], 0)
	binary.LittleEndian.PutUint32(dst[8:12], fh.Code)
	binary.LittleEndian.PutUint32(dst[12:16], 0)
}

func decodeFrameHeader(b []byte) (frameHeader, error) {
	if len(b) < frameHeaderSize {
		return frameHeader{}, errors.New("unixsock: frame header too short")
	}
	fh := frameHeader{
		Length: binary.LittleEndian.Uint32(b[0:4]),
		Type:   msgType(b[4]),
		Flags:  b[5],
		Code:   binary.LittleEndian.Uint32(b[8:12]),
	}
	if fh.Length > maxPayloadSize {
		return frameHeader{}, fmt.Errorf("unixsock: payload length %d exceeds limit %d", fh.Length, maxPayloadSize)
	}
	return fh, nil
}

// connectionRequest payload (48 bytes, little-endian):
// slot config:  uint32 content size, uint32 alignment, uint32 num slots,
//
//	uint8 technology, 3 bytes padding
//
// queue config: uint32 num slots, uint8 technology, 3 bytes padding
// uint64 slot region size, uint64 queue region size
// uint8 slot access mode, uint8 queue access mode, 6 bytes padding
const connectionRequestSize = 48

type connectionRequestWire struct {
	SlotConfig      slotipc.SlotMemoryConfig
	QueueConfig     slotipc.QueueMemoryConfig
	SlotRegionSize  uint64
	QueueRegionSize uint64
	SlotAccess      shmem.AccessMode
	QueueAccess     shmem.AccessMode
}

func encodeConnectionRequest(w connectionRequestWire) []byte {
	b := make([]byte, connectionRequestSize)
	binary.LittleEndian.PutUint32(b[0:4], w.SlotConfig.SlotContentSize)
	binary.LittleEndian.PutUint32(b[4:8], w.SlotConfig.SlotContentAlignment)
	binary.LittleEndian.PutUint32(b[8:12], w.SlotConfig.NumSlots)
	b[12] = byte(w.SlotConfig.Technology)
	binary.LittleEndian.PutUint32(b[16:20], w.QueueConfig.NumSlots)
	b[20] = byte(w.QueueConfig.Technology)
	binary.LittleEndian.PutUint64(b[24:32], w.SlotRegionSize)
	binary.LittleEndian.PutUint64(b[32:40], w.QueueRegionSize)
	b[40] = byte(w.SlotAccess)
	b[41] = byte(w.QueueAccess)
	return b
}

func decodeConnectionRequest(b []byte) (connectionRequestWire, error) {
	if len(b) < connectionRequestSize {
		return connectionRequestWire{}, fmt.Errorf("unixsock: connection request payload too short: %d bytes", len(b))
	}
	return connectionRequestWire{
		SlotConfig: slotipc.SlotMemoryConfig{
			SlotContentSize:      binary.LittleEndian.Uint32(b[0:4]),
			SlotContentAlignment: binary.LittleEndian.Uint32(b[4:8]),
			NumSlots:             binary.LittleEndian.Uint32(b[8:12]),
			Technology:           slotipc.MemoryTechnology(b[12]),
		},
		QueueConfig: slotipc.QueueMemoryConfig{
			NumSlots:   binary.LittleEndian.Uint32(b[16:20]),
			Technology: slotipc.MemoryTechnology(b[20]),
		},
		SlotRegionSize:  binary.LittleEndian.Uint64(b[24:32]),
		QueueRegionSize: binary.LittleEndian.Uint64(b[32:40]),
		SlotAccess:      shmem.AccessMode(b[40]),
		QueueAccess:     shmem.AccessMode(b[41]),
	}, nil
}

// queueInitialization payload (16 bytes, little-endian):
// uint64 region size, uint8 access mode, 7 bytes padding
const queueInitializationSize = 16

func encodeQueueInitialization(size uint64, access shmem.AccessMode) []byte {
	b := make([]byte, queueInitializationSize)
	binary.LittleEndian.PutUint64(b[0:8], size)
	b[8] = byte(access)
	return b
}

func decodeQueueInitialization(b []byte) (uint64, shmem.AccessMode, error) {
	if len(b) < queueInitializationSize {
		return 0, 0, fmt.Errorf("unixsock: queue initialization payload too short: %d bytes", len(b))
	}
	return binary.LittleEndian.Uint64(b[0:8]), shmem.AccessMode(b[8]), nil
}
