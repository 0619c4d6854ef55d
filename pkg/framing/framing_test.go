//go:build test_unit

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
	"math/rand"
	"testing"
	"time"

	"github.com/nuclio/rpcruntime/pkg/channel"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
	nucliozap "github.com/nuclio/zap"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type typedMessage struct {
	id      uint8
	payload []byte
}

type FramingTestSuite struct {
	suite.Suite
	logger logger.Logger
	ctx    context.Context
}

func (suite *FramingTestSuite) SetupSuite() {
	suite.logger, _ = nucliozap.NewNuclioZapTest("test")
	suite.ctx = context.Background()
}

func (suite *FramingTestSuite) TestHeaderBitLayout() {
	encoded := Header{CustomID: 0x05, Size: 0x123456}.AppendTo(nil)
	suite.Require().Equal([]byte{0x05, 0x56, 0x34, 0x12}, encoded)

	decoded := DecodeHeader(encoded)
	suite.Require().Equal(uint8(0x05), decoded.CustomID)
	suite.Require().Equal(uint32(0x123456), decoded.Size)

	maxHeader := DecodeHeader(Header{CustomID: 0xff, Size: MaxPayloadSize}.AppendTo(nil))
	suite.Require().Equal(uint8(0xff), maxHeader.CustomID)
	suite.Require().Equal(uint32(MaxPayloadSize), maxHeader.Size)
}

func (suite *FramingTestSuite) TestFramerRoundTripArbitrarySplits() {
	for _, seed := range []int64{1, 7, 42, 1337} {
		random := rand.New(rand.NewSource(seed))
		messages := suite.randomMessages(random, 16, 16)

		sender, receiver := channel.NewMemoryPair(16, 0)
		sender.SetSplitFunc(randomSplitFunc(random))

		suite.Require().NoError(suite.sendAll(NewFramer(suite.logger, sender, 0), messages))

		receivingFramer := NewFramer(suite.logger, receiver, 0)
		ctx, cancel := context.WithTimeout(suite.ctx, 5*time.Second)

		for _, expected := range messages {
			id, payload, err := receivingFramer.RecvTyped(ctx)
			suite.Require().NoError(err)
			suite.Require().Equal(expected.id, id)
			suite.Require().Equal(expected.payload, payload)
		}

		cancel()
	}
}

func (suite *FramingTestSuite) TestCursorRoundTripArbitrarySplits() {
	for _, seed := range []int64{3, 11, 99} {
		random := rand.New(rand.NewSource(seed))
		messages := suite.randomMessages(random, 20, 24)

		sender, receiver := channel.NewMemoryPair(24, 0)
		sender.SetSplitFunc(randomSplitFunc(random))

		suite.Require().NoError(suite.sendAll(NewFramer(suite.logger, sender, 0), messages))

		cursor := NewCursor(receiver, 0)
		var received []typedMessage

		for attempt := 0; attempt < 10000 && len(received) < len(messages); attempt++ {
			inProgress, err := cursor.Advance()
			suite.Require().NoError(err)

			if inProgress {
				continue
			}

			suite.Require().Equal(Ready, cursor.State())
			received = append(received, typedMessage{id: cursor.ID(), payload: cursor.TakePayload()})
			cursor.Reset()
		}

		suite.Require().Equal(messages, received)
	}
}

func (suite *FramingTestSuite) TestSingleReceiveSpansMessages() {
	sender, receiver := channel.NewMemoryPair(64, 0)

	// all three frames go out in a single chunk
	framer := NewFramer(suite.logger, sender, 0)
	suite.Require().NoError(framer.SendTyped(1, []byte("first")))
	suite.Require().NoError(framer.SendTyped(2, []byte("second")))
	suite.Require().NoError(framer.SendTyped(3, []byte("third")))
	suite.Require().NoError(framer.Flush())

	cursor := NewCursor(receiver, 0)

	inProgress, err := cursor.Advance()
	suite.Require().NoError(err)
	suite.Require().False(inProgress)
	suite.Require().Equal(uint8(1), cursor.ID())
	suite.Require().Equal([]byte("first"), cursor.TakePayload())
	cursor.Reset()

	// the following frames come out of the carry-over without another receive
	for _, expected := range []typedMessage{{2, []byte("second")}, {3, []byte("third")}} {
		inProgress, err = cursor.Advance()
		suite.Require().NoError(err)
		suite.Require().False(inProgress)
		suite.Require().Equal(0, cursor.LastReceived())
		suite.Require().Equal(expected.id, cursor.ID())
		suite.Require().Equal(expected.payload, cursor.TakePayload())
		cursor.Reset()
	}
}

func (suite *FramingTestSuite) TestZeroSizePayload() {
	sender, receiver := channel.NewMemoryPair(8, 0)

	framer := NewFramer(suite.logger, sender, 0)
	suite.Require().NoError(framer.SendTyped(9, nil))
	suite.Require().NoError(framer.SendTyped(10, []byte{}))
	suite.Require().NoError(framer.Flush())

	receivingFramer := NewFramer(suite.logger, receiver, 0)
	ctx, cancel := context.WithTimeout(suite.ctx, time.Second)
	defer cancel()

	for _, expectedID := range []uint8{9, 10} {
		id, payload, err := receivingFramer.RecvTyped(ctx)
		suite.Require().NoError(err)
		suite.Require().Equal(expectedID, id)
		suite.Require().Len(payload, 0)
	}
}

func (suite *FramingTestSuite) TestCursorStates() {
	sender, receiver := channel.NewMemoryPair(4, 0)
	cursor := NewCursor(receiver, 0)

	// nothing received, state doesn't move
	inProgress, err := cursor.Advance()
	suite.Require().NoError(err)
	suite.Require().True(inProgress)
	suite.Require().Equal(AwaitingHeader, cursor.State())

	framer := NewFramer(suite.logger, sender, 0)
	suite.Require().NoError(framer.SendTyped(4, []byte("abcdef")))
	suite.Require().NoError(framer.Flush())

	// header arrives in the first chunk
	inProgress, err = cursor.Advance()
	suite.Require().NoError(err)
	suite.Require().True(inProgress)
	suite.Require().Equal(AwaitingPayload, cursor.State())

	inProgress, err = cursor.Advance()
	suite.Require().NoError(err)
	suite.Require().True(inProgress)
	suite.Require().Equal(AwaitingPayload, cursor.State())

	inProgress, err = cursor.Advance()
	suite.Require().NoError(err)
	suite.Require().False(inProgress)
	suite.Require().Equal(Ready, cursor.State())

	// a ready cursor doesn't move until reset
	inProgress, err = cursor.Advance()
	suite.Require().NoError(err)
	suite.Require().False(inProgress)

	suite.Require().Equal([]byte("abcdef"), cursor.TakePayload())
	suite.Require().Panics(func() { cursor.TakePayload() })

	cursor.Reset()
	suite.Require().Equal(AwaitingHeader, cursor.State())
	suite.Require().Panics(func() { cursor.ID() })
}

func (suite *FramingTestSuite) TestMalformedFrameTooLarge() {
	sender, receiver := channel.NewMemoryPair(16, 0)
	suite.Require().NoError(sender.Send(Header{CustomID: 1, Size: 1024}.AppendTo(nil)))

	cursor := NewCursor(receiver, 512)
	_, err := cursor.Advance()
	suite.Require().Error(err)
	suite.Require().Equal(ErrMalformedFrame, errors.RootCause(err))
}

func (suite *FramingTestSuite) TestMalformedFrameTruncated() {
	sender, receiver := channel.NewMemoryPair(16, 0)

	// header claims 10 bytes, only 3 ever arrive
	suite.Require().NoError(sender.Send(append(Header{CustomID: 1, Size: 10}.AppendTo(nil), 1, 2, 3)))
	suite.Require().NoError(sender.Close())

	framer := NewFramer(suite.logger, receiver, 0)
	ctx, cancel := context.WithTimeout(suite.ctx, time.Second)
	defer cancel()

	_, _, err := framer.RecvTyped(ctx)
	suite.Require().Error(err)
	suite.Require().Equal(ErrMalformedFrame, errors.RootCause(err))
}

func (suite *FramingTestSuite) TestRecvTypedHonoursContext() {
	_, receiver := channel.NewMemoryPair(16, 0)

	framer := NewFramer(suite.logger, receiver, 0)
	ctx, cancel := context.WithTimeout(suite.ctx, 20*time.Millisecond)
	defer cancel()

	_, _, err := framer.RecvTyped(ctx)
	suite.Require().Equal(context.DeadlineExceeded, err)
}

func (suite *FramingTestSuite) TestSendTypedTooLarge() {
	sender, _ := channel.NewMemoryPair(16, 0)

	err := NewFramer(suite.logger, sender, 0).SendTyped(1, make([]byte, MaxPayloadSize+1))
	suite.Require().Equal(ErrPayloadTooLarge, errors.RootCause(err))
}

func (suite *FramingTestSuite) TestFlushResumesAfterChannelFull() {
	mockChannel := &channel.MockChannel{}
	mockChannel.On("MaxSize").Return(4)

	framer := NewFramer(suite.logger, mockChannel, 0)
	suite.Require().NoError(framer.SendTyped(1, []byte("abcdefgh")))

	// 12 bytes: the first chunk goes out, the second hits a full channel
	encodedFrame := append(Header{CustomID: 1, Size: 8}.AppendTo(nil), []byte("abcdefgh")...)
	mockChannel.On("Send", encodedFrame[0:4]).Return(nil).Once()
	mockChannel.On("Send", encodedFrame[4:8]).Return(channel.ErrChannelFull).Once()

	err := framer.Flush()
	suite.Require().Equal(channel.ErrChannelFull, errors.RootCause(err))
	suite.Require().Equal(8, framer.Pending())

	// the retry picks up at the chunk that failed, never resending the first one
	mockChannel.On("Send", encodedFrame[4:8]).Return(nil).Once()
	mockChannel.On("Send", encodedFrame[8:12]).Return(nil).Once()

	suite.Require().NoError(framer.Flush())
	suite.Require().Equal(0, framer.Pending())
	mockChannel.AssertNumberOfCalls(suite.T(), "Send", 4)
	mockChannel.AssertExpectations(suite.T())
}

func (suite *FramingTestSuite) TestFlushRejectsNonPositiveMaxSize() {
	for _, maxSize := range []int{0, -1} {
		mockChannel := &channel.MockChannel{}
		mockChannel.On("MaxSize").Return(maxSize)

		framer := NewFramer(suite.logger, mockChannel, 0)
		suite.Require().NoError(framer.SendTyped(1, []byte("abc")))

		err := framer.Flush()
		suite.Require().Equal(ErrInvalidMaxSize, errors.RootCause(err))
		suite.Require().Equal(7, framer.Pending())
		mockChannel.AssertNotCalled(suite.T(), "Send", mock.Anything)
	}
}

func (suite *FramingTestSuite) TestDiscard() {
	mockChannel := &channel.MockChannel{}
	mockChannel.On("MaxSize").Return(4)
	mockChannel.On("Send", mock.Anything).Return(channel.ErrChannelClosed)

	framer := NewFramer(suite.logger, mockChannel, 0)
	suite.Require().NoError(framer.SendTyped(1, []byte("abc")))
	suite.Require().Error(framer.Flush())
	suite.Require().Equal(7, framer.Pending())

	framer.Discard()
	suite.Require().Equal(0, framer.Pending())
}

func (suite *FramingTestSuite) sendAll(framer *Framer, messages []typedMessage) error {
	for _, message := range messages {
		if err := framer.SendTyped(message.id, message.payload); err != nil {
			return err
		}
	}

	return framer.Flush()
}

func (suite *FramingTestSuite) randomMessages(random *rand.Rand, count int, maxSize int) []typedMessage {
	var messages []typedMessage

	for i := 0; i < count; i++ {

		// payloads up to several multiples of the channel size, including empty ones
		payload := make([]byte, random.Intn(maxSize*4))
		random.Read(payload) // nolint: errcheck

		messages = append(messages, typedMessage{id: uint8(random.Intn(256)), payload: payload})
	}

	return messages
}

func randomSplitFunc(random *rand.Rand) channel.SplitFunc {
	return func(payload []byte) [][]byte {
		var chunks [][]byte

		for len(payload) > 0 {
			size := 1 + random.Intn(len(payload))
			chunks = append(chunks, payload[:size])
			payload = payload[size:]
		}

		return chunks
	}
}

func TestFramingTestSuite(t *testing.T) {
	suite.Run(t, new(FramingTestSuite))
}
