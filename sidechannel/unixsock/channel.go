//go:build linux

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

// Package unixsock provides a side channel over a Unix domain socket.
//
// Control messages travel as small fixed-layout frames on a SOCK_SEQPACKET
// socket ("unixpacket"); memory exchange handles travel alongside them as
// SCM_RIGHTS file descriptors. ClientChannel implements slotipc.Messenger for
// the receiving side; SenderChannel is its counterpart for the producing
// side.
//
// Neither channel spawns goroutines. DispatchNext reads exactly one inbound
// message and invokes the matching handler callback, so a caller that drives
// DispatchNext and the slotipc API from one loop gets the serialization the
// client demands for free.
package unixsock

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"

	slotipc "github.com/AnkiHonnaiah/QUICKCOM-POC-sub005"
	"github.com/AnkiHonnaiah/QUICKCOM-POC-sub005/shmem"
)

// Network is the socket type both endpoints must use: SOCK_SEQPACKET keeps
// frame boundaries intact, so one read is always one control message.
const Network = "unixpacket"

// channel is the transport shared by both endpoint roles.
type channel struct {
	conn *net.UnixConn
}

func (ch *channel) writeMsg(fh frameHeader, payload []byte, files ...*os.File) error {
	buf := make([]byte, frameHeaderSize+len(payload))
	fh.Length = uint32(len(payload))
	encodeFrameHeader(buf, fh)
	copy(buf[frameHeaderSize:], payload)

	var oob []byte
	if len(files) > 0 {
		fds := make([]int, len(files))
		for i, f := range files {
			fds[i] = int(f.Fd())
		}
		oob = unix.UnixRights(fds...)
	}

	_, _, err := ch.conn.WriteMsgUnix(buf, oob, nil)
	if err != nil {
		return fmt.Errorf("unixsock: write failed: %w", err)
	}
	return nil
}

// readMsg reads one control frame and any attached file descriptors. The
// returned files carry ownership; the caller closes what it does not use.
func (ch *channel) readMsg() (frameHeader, []byte, []*os.File, error) {
	buf := make([]byte, frameHeaderSize+maxPayloadSize)
	oob := make([]byte, unix.CmsgSpace(4*4))

	n, oobn, _, _, err := ch.conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return frameHeader{}, nil, nil, err
	}

	fh, err := decodeFrameHeader(buf[:n])
	if err != nil {
		return frameHeader{}, nil, nil, err
	}
	if n < frameHeaderSize+int(fh.Length) {
		return frameHeader{}, nil, nil, fmt.Errorf("unixsock: truncated frame: %d of %d payload bytes", n-frameHeaderSize, fh.Length)
	}
	payload := buf[frameHeaderSize : frameHeaderSize+int(fh.Length)]

	var files []*os.File
	if oobn > 0 {
		cmsgs, err := unix.ParseSocketControlMessage(oob[:oobn])
		if err != nil {
			return frameHeader{}, nil, nil, fmt.Errorf("unixsock: parsing control message: %w", err)
		}
		for _, cmsg := range cmsgs {
			fds, err := unix.ParseUnixRights(&cmsg)
			if err != nil {
				continue
			}
			for _, fd := range fds {
				unix.CloseOnExec(fd)
				files = append(files, os.NewFile(uintptr(fd), "slotipc-shm"))
			}
		}
	}
	return fh, payload, files, nil
}

func (ch *channel) close() error {
	return ch.conn.Close()
}

func closeFiles(files []*os.File) {
	for _, f := range files {
		f.Close()
	}
}

// ClientChannel is the receiving side's endpoint. It implements
// slotipc.Messenger.
type ClientChannel struct {
	channel
}

// Dial connects to a sender listening at path.
func Dial(path string) (*ClientChannel, error) {
	conn, err := net.DialUnix(Network, nil, &net.UnixAddr{Name: path, Net: Network})
	if err != nil {
		return nil, fmt.Errorf("unixsock: dial %s: %w", path, err)
	}
	return NewClientChannel(conn), nil
}

// NewClientChannel wraps an established connection.
func NewClientChannel(conn *net.UnixConn) *ClientChannel {
	return &ClientChannel{channel{conn: conn}}
}

// SendQueueInitialization transfers the local queue region handle to the
// sender. The handle is spent regardless of the outcome.
func (ch *ClientChannel) SendQueueInitialization(handle *shmem.ExchangeHandle) error {
	size, access := handle.Size(), handle.Access()
	file, err := handle.Detach()
	if err != nil {
		return fmt.Errorf("unixsock: detaching queue handle: %w", err)
	}
	defer file.Close()
	return ch.writeMsg(frameHeader{Type: msgQueueInitialization}, encodeQueueInitialization(size, access), file)
}

// SendStartListening asks the sender to emit notifications.
func (ch *ClientChannel) SendStartListening() error {
	return ch.writeMsg(frameHeader{Type: msgStartListening}, nil)
}

// SendStopListening reverts the sender to silent operation.
func (ch *ClientChannel) SendStopListening() error {
	return ch.writeMsg(frameHeader{Type: msgStopListening}, nil)
}

// SendShutdown announces graceful teardown.
func (ch *ClientChannel) SendShutdown() error {
	return ch.writeMsg(frameHeader{Type: msgShutdown}, nil)
}

// DispatchNext reads one inbound control message and delivers it to the
// handler. It blocks until a message arrives or the connection fails; it
// never blocks while holding a message.
func (ch *ClientChannel) DispatchNext(h slotipc.ControlHandler) error {
	fh, payload, files, err := ch.readMsg()
	if err != nil {
		return err
	}

	switch fh.Type {
	case msgConnectionRequest:
		wire, err := decodeConnectionRequest(payload)
		if err != nil {
			closeFiles(files)
			return err
		}
		if len(files) != 2 {
			closeFiles(files)
			return fmt.Errorf("unixsock: connection request carried %d descriptors, expected 2", len(files))
		}
		h.OnConnectionRequest(slotipc.ConnectionRequest{
			SlotConfig:  wire.SlotConfig,
			SlotMemory:  shmem.NewHandle(files[0], wire.SlotRegionSize, wire.SlotAccess),
			QueueConfig: wire.QueueConfig,
			QueueMemory: shmem.NewHandle(files[1], wire.QueueRegionSize, wire.QueueAccess),
		})
	case msgAckQueueInit:
		closeFiles(files)
		h.OnAckQueueInitialization()
	case msgNotification:
		closeFiles(files)
		h.OnNotification()
	case msgShutdown:
		closeFiles(files)
		h.OnShutdown()
	case msgTermination:
		closeFiles(files)
		h.OnTermination()
	case msgError:
		closeFiles(files)
		h.OnError(slotipc.ErrorCode(fh.Code))
	default:
		// Unknown types are dropped for forward compatibility.
		closeFiles(files)
	}
	return nil
}

// Close closes the connection.
func (ch *ClientChannel) Close() error { return ch.close() }

// SenderHandler receives the control messages a sender gets from its
// receiver.
type SenderHandler interface {
	OnQueueInitialization(handle *shmem.ExchangeHandle)
	OnStartListening()
	OnStopListening()
	OnShutdown()
	OnTermination()
	OnError(code slotipc.ErrorCode)
}

// SenderChannel is the producing side's endpoint.
type SenderChannel struct {
	channel
}

// NewSenderChannel wraps an accepted connection.
func NewSenderChannel(conn *net.UnixConn) *SenderChannel {
	return &SenderChannel{channel{conn: conn}}
}

// SendConnectionRequest transfers the region handles and declared configs to
// the receiver. Both handles are spent.
func (ch *SenderChannel) SendConnectionRequest(req slotipc.ConnectionRequest) error {
	wire := connectionRequestWire{
		SlotConfig:      req.SlotConfig,
		QueueConfig:     req.QueueConfig,
		SlotRegionSize:  req.SlotMemory.Size(),
		QueueRegionSize: req.QueueMemory.Size(),
		SlotAccess:      req.SlotMemory.Access(),
		QueueAccess:     req.QueueMemory.Access(),
	}
	slotFile, err := req.SlotMemory.Detach()
	if err != nil {
		return fmt.Errorf("unixsock: detaching slot handle: %w", err)
	}
	defer slotFile.Close()
	queueFile, err := req.QueueMemory.Detach()
	if err != nil {
		return fmt.Errorf("unixsock: detaching queue handle: %w", err)
	}
	defer queueFile.Close()
	return ch.writeMsg(frameHeader{Type: msgConnectionRequest}, encodeConnectionRequest(wire), slotFile, queueFile)
}

// SendAckQueueInitialization confirms the receiver queue region is attached.
func (ch *SenderChannel) SendAckQueueInitialization() error {
	return ch.writeMsg(frameHeader{Type: msgAckQueueInit}, nil)
}

// SendNotification announces a newly sent slot to a listening receiver.
func (ch *SenderChannel) SendNotification() error {
	return ch.writeMsg(frameHeader{Type: msgNotification}, nil)
}

// SendShutdown announces graceful teardown.
func (ch *SenderChannel) SendShutdown() error {
	return ch.writeMsg(frameHeader{Type: msgShutdown}, nil)
}

// SendTermination announces abrupt teardown.
func (ch *SenderChannel) SendTermination() error {
	return ch.writeMsg(frameHeader{Type: msgTermination}, nil)
}

// SendError reports a protocol-level error to the receiver.
func (ch *SenderChannel) SendError(code slotipc.ErrorCode) error {
	return ch.writeMsg(frameHeader{Type: msgError, Code: uint32(code)}, nil)
}

// DispatchNext reads one inbound control message and delivers it to the
// handler.
func (ch *SenderChannel) DispatchNext(h SenderHandler) error {
	fh, payload, files, err := ch.readMsg()
	if err != nil {
		return err
	}

	switch fh.Type {
	case msgQueueInitialization:
		size, access, err := decodeQueueInitialization(payload)
		if err != nil {
			closeFiles(files)
			return err
		}
		if len(files) != 1 {
			closeFiles(files)
			return fmt.Errorf("unixsock: queue initialization carried %d descriptors, expected 1", len(files))
		}
		h.OnQueueInitialization(shmem.NewHandle(files[0], size, access))
	case msgStartListening:
		closeFiles(files)
		h.OnStartListening()
	case msgStopListening:
		closeFiles(files)
		h.OnStopListening()
	case msgShutdown:
		closeFiles(files)
		h.OnShutdown()
	case msgTermination:
		closeFiles(files)
		h.OnTermination()
	case msgError:
		closeFiles(files)
		h.OnError(slotipc.ErrorCode(fh.Code))
	default:
		closeFiles(files)
	}
	return nil
}

// Close closes the connection.
func (ch *SenderChannel) Close() error { return ch.close() }

// Listener accepts receiver connections for a sender.
type Listener struct {
	l *net.UnixListener
}

// Listen binds a sender-side listener at path.
func Listen(path string) (*Listener, error) {
	l, err := net.ListenUnix(Network, &net.UnixAddr{Name: path, Net: Network})
	if err != nil {
		return nil, fmt.Errorf("unixsock: listen %s: %w", path, err)
	}
	return &Listener{l: l}, nil
}

// Accept waits for one receiver connection.
func (ln *Listener) Accept() (*SenderChannel, error) {
	conn, err := ln.l.AcceptUnix()
	if err != nil {
		return nil, err
	}
	return NewSenderChannel(conn), nil
}

// Close stops accepting and removes the socket file.
func (ln *Listener) Close() error { return ln.l.Close() }
