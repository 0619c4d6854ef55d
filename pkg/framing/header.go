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

/*
Package framing turns a Channel into a stream of typed messages.

# Wire Protocol
Every frame is a 4 byte header followed by exactly size payload bytes:

	uint32 little-endian, bits [0:8) custom id, bits [8:32) payload size

There is no other delimiter. A frame may be split over any number of channel sends and a single
receive may carry the tail of one frame, a whole frame and the head of the next.
*/
package framing

import (
	"encoding/binary"

	"github.com/nuclio/errors"
)

const (
	HeaderSize     = 4
	MaxPayloadSize = 1<<24 - 1
)

var (
	ErrMalformedFrame  = errors.New("Malformed frame")
	ErrPayloadTooLarge = errors.New("Payload exceeds maximum frame size")
	ErrInvalidMaxSize  = errors.New("Channel maximum size must be positive")
)

// Header is the fixed 4 byte record preceding every frame
type Header struct {
	CustomID uint8
	Size     uint32
}

// AppendTo appends the wire encoding of the header to buffer
func (h Header) AppendTo(buffer []byte) []byte {
	var encoded [HeaderSize]byte
	binary.LittleEndian.PutUint32(encoded[:], uint32(h.CustomID)|h.Size<<8)

	return append(buffer, encoded[:]...)
}

// DecodeHeader decodes the first HeaderSize bytes of buffer
func DecodeHeader(buffer []byte) Header {
	packed := binary.LittleEndian.Uint32(buffer[:HeaderSize])

	return Header{
		CustomID: uint8(packed & 0xff),
		Size:     packed >> 8,
	}
}

// reassembler accumulates received chunks and cuts complete frames out of them
type reassembler struct {
	buffer       []byte
	maxFrameSize uint32
}

func (r *reassembler) feed(chunk []byte) {
	r.buffer = append(r.buffer, chunk...)
}

func (r *reassembler) buffered() int {
	return len(r.buffer)
}

// peekHeader returns the header at the front of the buffer, if one was fully received
func (r *reassembler) peekHeader() (Header, bool, error) {
	if len(r.buffer) < HeaderSize {
		return Header{}, false, nil
	}

	header := DecodeHeader(r.buffer)
	if r.maxFrameSize != 0 && header.Size > r.maxFrameSize {
		return Header{}, false, errors.Wrapf(ErrMalformedFrame,
			"Frame declares %d bytes, limit is %d",
			header.Size,
			r.maxFrameSize)
	}

	return header, true, nil
}

// next cuts the first complete frame out of the buffer. bytes past the frame stay buffered
func (r *reassembler) next() (Header, []byte, bool, error) {
	header, found, err := r.peekHeader()
	if err != nil || !found {
		return Header{}, nil, false, err
	}

	frameSize := HeaderSize + int(header.Size)
	if len(r.buffer) < frameSize {
		return Header{}, nil, false, nil
	}

	payload := make([]byte, header.Size)
	copy(payload, r.buffer[HeaderSize:frameSize])

	// shift the carry-over to the front so the buffer doesn't grow without bound
	remaining := copy(r.buffer, r.buffer[frameSize:])
	r.buffer = r.buffer[:remaining]

	return header, payload, true, nil
}
