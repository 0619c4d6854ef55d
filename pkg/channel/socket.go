/*
Copyright 2024 The Nuclio Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package channel

import (
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nuclio/rpcruntime/pkg/common"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
	"github.com/rs/xid"
)

const (
	socketPathTemplate      = "/tmp/rpcruntime-%s.sock"
	DefaultConnectTimeout   = 2 * time.Minute
	DefaultSocketInboxSize  = 256
	DefaultSocketWriteLimit = 10 * time.Second
	DefaultSocketStallLimit = time.Minute
)

// SocketChannel is a Channel over a stream socket (unix or tcp). a reader goroutine drains the
// connection into a bounded inbox so that TryReceive never blocks
type SocketChannel struct {
	logger       logger.Logger
	conn         net.Conn
	maxSize      int
	writeTimeout time.Duration
	stallLimit   time.Duration
	inbox        chan []byte
	done         chan struct{}
	closed       atomic.Bool
	closeOnce    sync.Once
}

// NewSocketChannel wraps an established connection
func NewSocketChannel(parentLogger logger.Logger,
	conn net.Conn,
	maxSize int,
	inboxSize int,
	writeTimeout time.Duration) *SocketChannel {

	if inboxSize <= 0 {
		inboxSize = DefaultSocketInboxSize
	}

	newSocketChannel := &SocketChannel{
		logger:       parentLogger.GetChild("socket"),
		conn:         conn,
		maxSize:      maxSize,
		writeTimeout: writeTimeout,
		stallLimit:   DefaultSocketStallLimit,
		inbox:        make(chan []byte, inboxSize),
		done:         make(chan struct{}),
	}

	go newSocketChannel.readLoop()

	return newSocketChannel
}

func (sc *SocketChannel) MaxSize() int {
	return sc.maxSize
}

// Send writes the whole payload. a write that can't complete within the write timeout is reported
// as ErrChannelFull only when nothing was written, since a partial write can't be undone. once a
// prefix is out, Send blocks until the peer takes the rest; a peer that takes nothing for the stall
// limit is considered gone and the channel is closed
func (sc *SocketChannel) Send(payload []byte) error {
	if len(payload) > sc.maxSize {
		return ErrPayloadTooLarge
	}

	if sc.closed.Load() {
		return ErrChannelClosed
	}

	written := 0
	lastProgress := time.Now()

	for written < len(payload) {
		if sc.writeTimeout > 0 {
			if err := sc.conn.SetWriteDeadline(time.Now().Add(sc.writeTimeout)); err != nil {
				return errors.Wrap(ErrChannelClosed, "Can't set write deadline")
			}
		}

		n, err := sc.conn.Write(payload[written:])
		written += n

		if n > 0 {
			lastProgress = time.Now()
		}

		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				if written == 0 {
					return ErrChannelFull
				}

				if sc.stallLimit > 0 && time.Since(lastProgress) >= sc.stallLimit {
					sc.logger.WarnWith("Peer stopped reading mid chunk, closing",
						"written", written,
						"size", len(payload),
						"stallLimit", sc.stallLimit.String())

					sc.Close() // nolint: errcheck
					return errors.Wrapf(ErrChannelClosed, "Peer stalled with %d of %d bytes written", written, len(payload))
				}

				// keep going, the peer already has a prefix of this chunk
				continue
			}

			sc.logger.DebugWith("Failed to write to socket", "err", err.Error(), "written", written)
			sc.Close() // nolint: errcheck
			return ErrChannelClosed
		}
	}

	return nil
}

func (sc *SocketChannel) TryReceive() ([]byte, error) {
	select {
	case chunk, ok := <-sc.inbox:
		if !ok {
			return nil, ErrChannelClosed
		}
		return chunk, nil
	default:
		return nil, nil
	}
}

func (sc *SocketChannel) Close() error {
	var err error

	sc.closeOnce.Do(func() {
		sc.closed.Store(true)
		close(sc.done)
		err = sc.conn.Close()
	})

	return err
}

// GetAddress returns the remote address of the connection
func (sc *SocketChannel) GetAddress() string {
	return sc.conn.RemoteAddr().String()
}

func (sc *SocketChannel) readLoop() {
	defer close(sc.inbox)
	defer common.CatchAndLogPanic(sc.logger, "socket read loop", nil)

	for {
		buffer := make([]byte, sc.maxSize)

		n, err := sc.conn.Read(buffer)
		if n > 0 {
			select {
			case sc.inbox <- buffer[:n]:
			case <-sc.done:
				return
			}
		}

		if err != nil {
			if !sc.closed.Load() {
				sc.logger.DebugWith("Socket read loop exiting", "err", err.Error())
			}

			sc.closed.Store(true)
			return
		}
	}
}

// Listen creates a listener of the given kind. for unix sockets an empty address yields a unique
// socket path, for tcp an empty address picks a free port. returns the listener and its address
func Listen(parentLogger logger.Logger, kind Kind, address string) (net.Listener, string, error) {
	switch kind {
	case UnixKind:
		return createUnixListener(parentLogger, address)
	case TCPKind:
		return createTCPListener(parentLogger, address)
	default:
		return nil, "", errors.New(fmt.Sprintf("Can't listen on channel of kind %q", kind))
	}
}

// Accept waits up to timeout for a peer to connect to listener and wraps the connection
func Accept(parentLogger logger.Logger,
	listener net.Listener,
	maxSize int,
	inboxSize int,
	timeout time.Duration) (*SocketChannel, error) {

	type deadlineSetter interface {
		SetDeadline(time.Time) error
	}

	if timeout > 0 {
		if typedListener, ok := listener.(deadlineSetter); ok {
			if err := typedListener.SetDeadline(time.Now().Add(timeout)); err != nil {
				return nil, errors.Wrap(err, "Can't set deadline")
			}
		}
	}

	conn, err := listener.Accept()
	if err != nil {
		return nil, errors.Wrap(err, "Can't get connection from peer")
	}

	parentLogger.DebugWith("Peer connected", "address", listener.Addr().String())

	return NewSocketChannel(parentLogger, conn, maxSize, inboxSize, DefaultSocketWriteLimit), nil
}

// Dial connects to a listening peer
func Dial(parentLogger logger.Logger,
	kind Kind,
	address string,
	maxSize int,
	inboxSize int,
	timeout time.Duration) (*SocketChannel, error) {

	if kind != UnixKind && kind != TCPKind {
		return nil, errors.New(fmt.Sprintf("Can't dial channel of kind %q", kind))
	}

	conn, err := net.DialTimeout(string(kind), address, timeout)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't connect to %s", address)
	}

	parentLogger.DebugWith("Connected to peer", "kind", kind, "address", address)

	return NewSocketChannel(parentLogger, conn, maxSize, inboxSize, DefaultSocketWriteLimit), nil
}

// create a listener on unix domain socket, return listener, path to socket and error
func createUnixListener(parentLogger logger.Logger, socketPath string) (net.Listener, string, error) {
	if socketPath == "" {
		socketPath = fmt.Sprintf(socketPathTemplate, xid.New().String())
	}

	if common.FileExists(socketPath) {
		if err := os.Remove(socketPath); err != nil {
			return nil, "", errors.Wrapf(err, "Can't remove socket at %q", socketPath)
		}
	}

	parentLogger.DebugWith("Creating listener socket", "path", socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, "", errors.Wrapf(err, "Can't listen on %s", socketPath)
	}

	return listener, socketPath, nil
}

// create a listener on TCP, return listener, address and error
func createTCPListener(parentLogger logger.Logger, address string) (net.Listener, string, error) {
	if address == "" {
		address = "127.0.0.1:0"
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, "", errors.Wrapf(err, "Can't listen on %s", address)
	}

	parentLogger.DebugWith("Created TCP listener", "address", listener.Addr().String())

	return listener, listener.Addr().String(), nil
}
