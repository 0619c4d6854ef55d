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
	"context"
	"time"

	"github.com/nuclio/rpcruntime/pkg/channel"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
)

const DefaultPollInterval = time.Millisecond

// Framer writes typed messages into an accumulator that is flushed to a channel in MaxSize chunks,
// and reads typed messages back out of the channel
type Framer struct {
	logger       logger.Logger
	channel      channel.Channel
	accumulator  []byte
	flushed      int
	reassembler  reassembler
	pollInterval time.Duration
}

// NewFramer creates a framer over channelInstance. maxFrameSize bounds the payload size accepted on
// receive (0 means MaxPayloadSize)
func NewFramer(parentLogger logger.Logger, channelInstance channel.Channel, maxFrameSize int) *Framer {
	return &Framer{
		logger:       parentLogger.GetChild("framer"),
		channel:      channelInstance,
		reassembler:  reassembler{maxFrameSize: resolveMaxFrameSize(maxFrameSize)},
		pollInterval: DefaultPollInterval,
	}
}

// SetPollInterval sets how long RecvTyped waits between empty receives
func (f *Framer) SetPollInterval(pollInterval time.Duration) {
	f.pollInterval = pollInterval
}

// SendTyped appends a frame to the accumulator. nothing is sent until Flush
func (f *Framer) SendTyped(customID uint8, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return errors.Wrapf(ErrPayloadTooLarge, "Payload of %d bytes can't be framed", len(payload))
	}

	f.accumulator = Header{CustomID: customID, Size: uint32(len(payload))}.AppendTo(f.accumulator)
	f.accumulator = append(f.accumulator, payload...)

	return nil
}

// Flush sends the accumulated bytes in chunks of at most MaxSize. on failure the channel error is
// returned and the unsent bytes stay accumulated; the next Flush resumes from the first byte the
// channel did not accept, so nothing already on the wire is sent twice
func (f *Framer) Flush() error {
	maxSize := f.channel.MaxSize()
	if maxSize <= 0 {
		return errors.Wrapf(ErrInvalidMaxSize, "Can't flush %d bytes over a channel of maximum size %d",
			f.Pending(),
			maxSize)
	}

	for f.flushed < len(f.accumulator) {
		chunkEnd := f.flushed + maxSize
		if chunkEnd > len(f.accumulator) {
			chunkEnd = len(f.accumulator)
		}

		if err := f.channel.Send(f.accumulator[f.flushed:chunkEnd]); err != nil {
			return errors.Wrapf(err, "Failed to send chunk (%d bytes pending)", f.Pending())
		}

		f.flushed = chunkEnd
	}

	f.accumulator = f.accumulator[:0]
	f.flushed = 0

	return nil
}

// Pending returns the number of accumulated bytes not yet accepted by the channel
func (f *Framer) Pending() int {
	return len(f.accumulator) - f.flushed
}

// Discard drops every accumulated byte
func (f *Framer) Discard() {
	f.accumulator = f.accumulator[:0]
	f.flushed = 0
}

// RecvTyped blocks until a complete frame is received or ctx is done
func (f *Framer) RecvTyped(ctx context.Context) (uint8, []byte, error) {
	for {
		header, payload, found, err := f.reassembler.next()
		if err != nil {
			return 0, nil, err
		}

		if found {
			return header.CustomID, payload, nil
		}

		chunk, err := f.channel.TryReceive()
		if err != nil {
			return 0, nil, wrapReceiveError(err, f.reassembler.buffered())
		}

		if len(chunk) > 0 {
			f.reassembler.feed(chunk)
			continue
		}

		select {
		case <-ctx.Done():
			return 0, nil, ctx.Err()
		case <-time.After(f.pollInterval):
		}
	}
}

// a channel that closes mid-frame leaves a frame that can never complete
func wrapReceiveError(err error, buffered int) error {
	if errors.RootCause(err) == channel.ErrChannelClosed && buffered > 0 {
		return errors.Wrapf(ErrMalformedFrame, "Channel closed with %d bytes of a partial frame buffered", buffered)
	}

	return err
}

func resolveMaxFrameSize(maxFrameSize int) uint32 {
	if maxFrameSize <= 0 || maxFrameSize > MaxPayloadSize {
		return MaxPayloadSize
	}

	return uint32(maxFrameSize)
}
