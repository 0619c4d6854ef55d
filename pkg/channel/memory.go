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
	"sync"
)

// SplitFunc re-chunks the bytes of a single send before they are delivered to the peer
type SplitFunc func(payload []byte) [][]byte

// FixedSplitFunc returns a SplitFunc that delivers payloads in chunks of at most chunkSize bytes
func FixedSplitFunc(chunkSize int) SplitFunc {
	return func(payload []byte) [][]byte {
		var chunks [][]byte

		for len(payload) > chunkSize {
			chunks = append(chunks, payload[:chunkSize])
			payload = payload[chunkSize:]
		}

		return append(chunks, payload)
	}
}

type pipe struct {
	lock     sync.Mutex
	chunks   [][]byte
	capacity int
	closed   bool
}

func newPipe(capacity int) *pipe {
	return &pipe{
		capacity: capacity,
	}
}

func (p *pipe) push(chunks [][]byte) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.closed {
		return ErrChannelClosed
	}

	if p.capacity > 0 && len(p.chunks)+len(chunks) > p.capacity {
		return ErrChannelFull
	}

	p.chunks = append(p.chunks, chunks...)

	return nil
}

func (p *pipe) pop() ([]byte, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if len(p.chunks) == 0 {
		if p.closed {
			return nil, ErrChannelClosed
		}

		return nil, nil
	}

	chunk := p.chunks[0]
	p.chunks[0] = nil
	p.chunks = p.chunks[1:]

	return chunk, nil
}

func (p *pipe) close() {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.closed = true
}

// MemoryChannel is one end of an in-process channel pair
type MemoryChannel struct {
	maxSize   int
	outbox    *pipe
	inbox     *pipe
	splitLock sync.Mutex
	splitFunc SplitFunc
}

// NewMemoryPair returns two connected endpoints. capacity bounds the number of undelivered chunks
// in each direction (0 means unbounded)
func NewMemoryPair(maxSize int, capacity int) (*MemoryChannel, *MemoryChannel) {
	forward := newPipe(capacity)
	backward := newPipe(capacity)

	return &MemoryChannel{maxSize: maxSize, outbox: forward, inbox: backward},
		&MemoryChannel{maxSize: maxSize, outbox: backward, inbox: forward}
}

// SetSplitFunc makes every subsequent Send deliver its bytes as the chunks returned by splitFunc
func (mc *MemoryChannel) SetSplitFunc(splitFunc SplitFunc) {
	mc.splitLock.Lock()
	defer mc.splitLock.Unlock()

	mc.splitFunc = splitFunc
}

func (mc *MemoryChannel) MaxSize() int {
	return mc.maxSize
}

func (mc *MemoryChannel) Send(payload []byte) error {
	if len(payload) > mc.maxSize {
		return ErrPayloadTooLarge
	}

	payloadCopy := append([]byte(nil), payload...)
	chunks := [][]byte{payloadCopy}

	mc.splitLock.Lock()
	splitFunc := mc.splitFunc
	mc.splitLock.Unlock()

	if splitFunc != nil {
		chunks = splitFunc(payloadCopy)
	}

	return mc.outbox.push(chunks)
}

func (mc *MemoryChannel) TryReceive() ([]byte, error) {
	return mc.inbox.pop()
}

func (mc *MemoryChannel) Close() error {
	mc.outbox.close()
	mc.inbox.close()

	return nil
}
