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

package framing

import (
	"github.com/nuclio/rpcruntime/pkg/channel"
)

// CursorState is the state of a Cursor
type CursorState int

const (
	AwaitingHeader CursorState = iota
	AwaitingPayload
	Ready
)

func (cs CursorState) String() string {
	switch cs {
	case AwaitingHeader:
		return "awaitingHeader"
	case AwaitingPayload:
		return "awaitingPayload"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// Cursor reassembles frames without ever blocking. each Advance performs at most one receive
type Cursor struct {
	channel      channel.Channel
	reassembler  reassembler
	state        CursorState
	header       Header
	payload      []byte
	taken        bool
	lastReceived int
}

// NewCursor creates a cursor over channelInstance. maxFrameSize bounds accepted payloads
// (0 means MaxPayloadSize)
func NewCursor(channelInstance channel.Channel, maxFrameSize int) *Cursor {
	return &Cursor{
		channel:     channelInstance,
		reassembler: reassembler{maxFrameSize: resolveMaxFrameSize(maxFrameSize)},
	}
}

// Advance moves the cursor forward. it returns true while a frame is still in progress and false
// once a frame is Ready. a cursor whose buffer already holds a complete frame doesn't receive
func (c *Cursor) Advance() (bool, error) {
	c.lastReceived = 0

	if c.state == Ready {
		return false, nil
	}

	// a previous receive may have carried the next frame already
	if ready, err := c.update(); err != nil || ready {
		return !ready, err
	}

	chunk, err := c.channel.TryReceive()
	if err != nil {
		return true, wrapReceiveError(err, c.reassembler.buffered())
	}

	if len(chunk) == 0 {
		return true, nil
	}

	c.lastReceived = len(chunk)
	c.reassembler.feed(chunk)

	ready, err := c.update()
	return !ready, err
}

// State returns the current state
func (c *Cursor) State() CursorState {
	return c.state
}

// LastReceived returns the number of bytes the last Advance received
func (c *Cursor) LastReceived() int {
	return c.lastReceived
}

// ID returns the custom id of the ready frame
func (c *Cursor) ID() uint8 {
	if c.state != Ready {
		panic("framing: ID called on a cursor that is not ready")
	}

	return c.header.CustomID
}

// TakePayload hands over the payload of the ready frame. it may be called once per frame
func (c *Cursor) TakePayload() []byte {
	if c.state != Ready {
		panic("framing: TakePayload called on a cursor that is not ready")
	}

	if c.taken {
		panic("framing: TakePayload called twice without Reset")
	}

	payload := c.payload
	c.payload = nil
	c.taken = true

	return payload
}

// Reset readies the cursor for the next frame. buffered bytes of the next frame are kept
func (c *Cursor) Reset() {
	c.state = AwaitingHeader
	c.header = Header{}
	c.payload = nil
	c.taken = false
}

func (c *Cursor) update() (bool, error) {
	header, payload, found, err := c.reassembler.next()
	if err != nil {
		return false, err
	}

	if found {
		c.header = header
		c.payload = payload
		c.state = Ready
		return true, nil
	}

	if _, headerFound, _ := c.reassembler.peekHeader(); headerFound {
		c.state = AwaitingPayload
	} else {
		c.state = AwaitingHeader
	}

	return false, nil
}
