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
	"github.com/nuclio/errors"
)

var (
	ErrChannelFull     = errors.New("Channel is full")
	ErrChannelClosed   = errors.New("Channel is closed")
	ErrPayloadTooLarge = errors.New("Payload exceeds channel maximum size")
)

// Kind is the kind of a channel implementation
type Kind string

const (
	MemoryKind Kind = "memory"
	UnixKind   Kind = "unix"
	TCPKind    Kind = "tcp"
)

// Channel is a unicast, single-producer / single-consumer byte pipe
type Channel interface {

	// MaxSize returns the maximum number of bytes a single Send or TryReceive carries
	MaxSize() int

	// Send transmits payload (at most MaxSize bytes). implementations must not retain payload after
	// returning. returns ErrChannelFull when the peer can't take more right now, ErrChannelClosed when
	// the pipe is gone
	Send(payload []byte) error

	// TryReceive returns whatever bytes are available without blocking. nil with no error means
	// there is nothing to read yet. returned bytes may span message boundaries
	TryReceive() ([]byte, error)

	// Close closes the channel. pending bytes are still delivered to the peer
	Close() error
}
