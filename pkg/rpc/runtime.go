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

package rpc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nuclio/rpcruntime/pkg/callregistry"
	"github.com/nuclio/rpcruntime/pkg/channel"
	"github.com/nuclio/rpcruntime/pkg/errgroup"
	"github.com/nuclio/rpcruntime/pkg/framing"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
	"github.com/samber/lo"
)

// Runtime multiplexes command lists of several logical channels over a single Channel. the tick
// loop is the only user of the Channel; each logical channel has a worker executing incoming batches
type Runtime struct {

	// accessed atomically, keep as first field for alignment
	statistics Statistics

	logger        logger.Logger
	configuration *Configuration
	channel       channel.Channel
	registry      callregistry.CallRegistry
	framer        *framing.Framer
	cursor        *framing.Cursor
	threadData    []*threadData

	// serializes ticks
	tickLock sync.Mutex

	lifecycleLock sync.Mutex
	group         *errgroup.Group
	cancel        context.CancelFunc
	stopped       atomic.Bool
}

// NewRuntime creates a runtime over channelInstance. both peers must use the same number of
// channels, the same codec and registries that agree on call ids
func NewRuntime(parentLogger logger.Logger,
	channelInstance channel.Channel,
	registry callregistry.CallRegistry,
	configuration *Configuration) (*Runtime, error) {

	if configuration == nil {
		configuration = &Configuration{}
	}

	if err := configuration.enrichAndValidate(); err != nil {
		return nil, errors.Wrap(err, "Invalid runtime configuration")
	}

	if channelInstance.MaxSize() <= 0 {
		return nil, errors.Wrapf(framing.ErrInvalidMaxSize, "Channel maximum size is %d", channelInstance.MaxSize())
	}

	runtimeLogger := parentLogger.GetChild("rpc")

	newRuntime := &Runtime{
		logger:        runtimeLogger,
		configuration: configuration,
		channel:       channelInstance,
		registry:      registry,
		framer:        framing.NewFramer(runtimeLogger, channelInstance, configuration.MaxFrameSize),
		cursor:        framing.NewCursor(channelInstance, configuration.MaxFrameSize),
		threadData:    make([]*threadData, configuration.NumChannels),
	}

	for channelID := range newRuntime.threadData {
		newRuntime.threadData[channelID] = newThreadData(channelID)
	}

	newRuntime.logger.DebugWith("Created runtime",
		"numChannels", configuration.NumChannels,
		"codec", configuration.Codec.GetName(),
		"maxSize", channelInstance.MaxSize())

	return newRuntime, nil
}

// GetConfiguration returns the resolved configuration
func (r *Runtime) GetConfiguration() *Configuration {
	return r.configuration
}

// GetStatistics returns the runtime counters
func (r *Runtime) GetStatistics() *Statistics {
	return &r.statistics
}

// CreateCommandList creates a command list bound to channelID. the list takes a handle right away,
// reusing the most recently released one
func (r *Runtime) CreateCommandList(channelID int) (*CommandList, error) {
	if err := r.validateChannelID(channelID); err != nil {
		return nil, err
	}

	return newCommandList(r.logger, r, channelID), nil
}

// Commit queues the batch of commandList for the next push. batches with returns register their
// pending returns under the list handle; batches without returns go out with handle 0 and free
// their handle right away
func (r *Runtime) Commit(commandList *CommandList) error {
	if commandList.rpcRuntime != r {
		return ErrForeignList
	}

	if r.stopped.Load() {
		return ErrRuntimeStopped
	}

	if commandList.closed {
		return ErrListClosed
	}

	if commandList.callCount == 0 {
		if commandList.committed {
			return ErrDoubleCommit
		}

		return ErrEmptyCommit
	}

	threadData := r.threadData[commandList.channelID]
	handle := commandList.handle

	var wireHandle uint64
	if len(commandList.pendingReturns) > 0 {
		wireHandle = handle
	}

	payload, err := commandList.buildPayload(wireHandle)
	if err != nil {
		return errors.Wrap(err, "Failed to build batch")
	}

	// register before queueing so the result can never arrive first
	if wireHandle != 0 {
		threadData.addPending(handle, commandList.pendingReturns)
	} else {
		threadData.handles.release(handle)
	}

	threadData.queueCommit(wireHandle, payload)
	commandList.markCommitted()

	atomic.AddUint64(&r.statistics.BatchesCommitted, 1)

	return nil
}

// ReleaseHandle abandons a committed batch whose results are no longer wanted. its futures fail
// with ErrAbandoned and the handle is reused only after the late results arrive
func (r *Runtime) ReleaseHandle(channelID int, handle uint64) error {
	if err := r.validateChannelID(channelID); err != nil {
		return err
	}

	pendingReturns, err := r.threadData[channelID].abandonPending(handle)
	if err != nil {
		return errors.Wrapf(err, "Can't release handle %d of channel %d", handle, channelID)
	}

	failPendingReturns(pendingReturns, ErrAbandoned)

	return nil
}

// TickPush frames everything queued on every logical channel and flushes it to the channel.
// ErrChannelFull leaves the unsent bytes buffered for the next push; ErrChannelClosed is final
func (r *Runtime) TickPush() error {
	r.tickLock.Lock()
	defer r.tickLock.Unlock()

	// bytes stuck behind a full channel go out before anything new
	if r.framer.Pending() > 0 {
		if err := r.framer.Flush(); err != nil {
			atomic.AddUint64(&r.statistics.PushFailures, 1)
			return err
		}
	}

	for channelID, threadData := range r.threadData {
		commits, results := threadData.drainOutgoing()

		for _, commit := range commits {
			if err := r.framer.SendTyped(newBatchFrameID(channelID), commit.payload); err != nil {
				r.dropCommit(threadData, commit, err)
				continue
			}

			atomic.AddUint64(&r.statistics.FramesSent, 1)
		}

		for _, result := range results {
			if err := r.sendResult(channelID, result); err != nil {
				return err
			}

			atomic.AddUint64(&r.statistics.FramesSent, 1)
		}
	}

	if err := r.framer.Flush(); err != nil {
		atomic.AddUint64(&r.statistics.PushFailures, 1)
		return err
	}

	return nil
}

// TickPop performs a single cursor step and dispatches the frame if one completed. returns true if
// the step received bytes or dispatched a frame
func (r *Runtime) TickPop() (bool, error) {
	r.tickLock.Lock()
	defer r.tickLock.Unlock()

	inProgress, err := r.cursor.Advance()
	if err != nil {
		if errors.RootCause(err) == framing.ErrMalformedFrame {
			atomic.AddUint64(&r.statistics.ProtocolErrors, 1)
		}

		return false, err
	}

	if inProgress {
		return r.cursor.LastReceived() > 0, nil
	}

	frameID := r.cursor.ID()
	payload := r.cursor.TakePayload()
	r.cursor.Reset()

	atomic.AddUint64(&r.statistics.FramesReceived, 1)

	channelID := int(frameID / 2)
	if channelID >= len(r.threadData) {
		atomic.AddUint64(&r.statistics.BatchesDropped, 1)
		atomic.AddUint64(&r.statistics.ProtocolErrors, 1)

		r.logger.WarnWith("Dropping frame of unknown channel",
			"frameID", frameID,
			"channelID", channelID,
			"numChannels", len(r.threadData),
			"size", len(payload))

		return true, nil
	}

	threadData := r.threadData[channelID]

	if isBatchFrameID(frameID) {
		threadData.tasks.push(payload)
		return true, nil
	}

	numResolved, err := Readback(r.logger, r.configuration.Codec, payload, threadData.resolvePending)
	atomic.AddUint64(&r.statistics.ResultsResolved, uint64(numResolved))

	if err != nil {
		if errors.RootCause(err) == ErrAbandoned {
			atomic.AddUint64(&r.statistics.ResultsDropped, 1)
			r.logger.DebugWith("Dropped results of abandoned batch", "channelID", channelID)

			return true, nil
		}

		atomic.AddUint64(&r.statistics.ProtocolErrors, 1)
		return true, errors.Wrapf(err, "Failed to read back results of channel %d", channelID)
	}

	return true, nil
}

// ExecuteRemote runs the batches arriving on channelID until ctx is done
func (r *Runtime) ExecuteRemote(ctx context.Context, channelID int) error {
	if err := r.validateChannelID(channelID); err != nil {
		return err
	}

	threadData := r.threadData[channelID]
	workerLogger := r.logger.GetChild(fmt.Sprintf("worker-%d", channelID))

	for {
		payload, err := threadData.tasks.pop(ctx)
		if err != nil {
			workerLogger.DebugWith("Worker stopped", "reason", err.Error())
			return nil
		}

		result := ExecuteBatch(workerLogger, r.registry, r.configuration.Codec, payload)

		atomic.AddUint64(&r.statistics.BatchesExecuted, 1)
		atomic.AddUint64(&r.statistics.CallsExecuted, uint64(result.CallsExecuted))
		atomic.AddUint64(&r.statistics.CallsFailed, uint64(result.CallsFailed))

		if result.Aborted() {
			atomic.AddUint64(&r.statistics.BatchesAborted, 1)
		}

		if result.Payload != nil {
			threadData.queueResult(result.Handle, result.Payload)
		}
	}
}

// Run ticks until ctx is done or the channel fails: push, pop until no progress, sleep
func (r *Runtime) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.configuration.TickInterval)
	defer ticker.Stop()

	for {
		if err := r.TickPush(); err != nil {
			if isFatal(err) {
				return errors.Wrap(err, "Failed to push")
			}

			r.logger.DebugWith("Push deferred", "reason", err.Error(), "pending", r.pendingPushBytes())
		}

		for pop := 0; pop < r.configuration.MaxPopsPerTick; pop++ {
			progressed, err := r.TickPop()
			if err != nil {
				if isFatal(err) {
					return errors.Wrap(err, "Failed to pop")
				}

				r.logger.WarnWith("Failed to process frame", "err", errors.GetErrorStackString(err, 5))
			}

			if !progressed {
				break
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Start runs a worker per logical channel and the tick loop in the background
func (r *Runtime) Start(ctx context.Context) error {
	r.lifecycleLock.Lock()
	defer r.lifecycleLock.Unlock()

	if r.stopped.Load() {
		return ErrRuntimeStopped
	}

	if r.group != nil {
		return ErrRuntimeStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx, r.logger, r.configuration.NumChannels+1)

	lo.ForEach(lo.Range(r.configuration.NumChannels), func(channelID int, _ int) {
		group.Go(fmt.Sprintf("execute remote %d", channelID), func() error {
			return r.ExecuteRemote(groupCtx, channelID)
		})
	})

	group.Go("tick", func() error {
		return r.Run(groupCtx)
	})

	r.group = group
	r.cancel = cancel

	r.logger.InfoWith("Runtime started", "numChannels", r.configuration.NumChannels)

	return nil
}

// Wait blocks until the background goroutines exit and returns the first error
func (r *Runtime) Wait() error {
	r.lifecycleLock.Lock()
	group := r.group
	r.lifecycleLock.Unlock()

	if group == nil {
		return nil
	}

	return group.Wait()
}

// Shutdown stops the background goroutines and fails every pending future with ErrRuntimeStopped
func (r *Runtime) Shutdown() error {
	r.lifecycleLock.Lock()
	cancel := r.cancel
	alreadyStopped := r.stopped.Swap(true)
	r.lifecycleLock.Unlock()

	if alreadyStopped {
		return nil
	}

	if cancel != nil {
		cancel()
	}

	err := r.Wait()

	numFailed := 0
	for _, threadData := range r.threadData {
		numFailed += threadData.failAllPending(ErrRuntimeStopped)
	}

	r.logger.InfoWith("Runtime stopped", "failedFutures", numFailed)

	if err != nil && errors.RootCause(err) != context.Canceled {
		return err
	}

	return nil
}

func (r *Runtime) sendResult(channelID int, result outgoingBatch) error {
	err := r.framer.SendTyped(newResultFrameID(channelID), result.payload)
	if err == nil || errors.RootCause(err) != framing.ErrPayloadTooLarge {
		return err
	}

	// the peer is still waiting on the handle, tell it the batch is lost
	r.logger.WarnWith("Result batch too large, sending abort instead",
		"channelID", channelID,
		"handle", result.handle,
		"size", len(result.payload))

	abortPayload, err := encodeAbortResult(r.configuration.Codec, result.handle, err.Error())
	if err != nil {
		return err
	}

	return r.framer.SendTyped(newResultFrameID(channelID), abortPayload)
}

func (r *Runtime) dropCommit(threadData *threadData, commit outgoingBatch, err error) {
	atomic.AddUint64(&r.statistics.BatchesDropped, 1)

	r.logger.WarnWith("Dropping batch that can't be framed",
		"channelID", threadData.channelID,
		"handle", commit.handle,
		"size", len(commit.payload),
		"err", err.Error())

	if commit.handle == 0 {
		return
	}

	pendingReturns, resolveErr := threadData.resolvePending(commit.handle)
	if resolveErr == nil {
		failPendingReturns(pendingReturns, errors.Wrap(ErrBatchAborted, err.Error()))
	}
}

func (r *Runtime) pendingPushBytes() int {
	r.tickLock.Lock()
	defer r.tickLock.Unlock()

	return r.framer.Pending()
}

func (r *Runtime) validateChannelID(channelID int) error {
	if channelID < 0 || channelID >= len(r.threadData) {
		return errors.Wrapf(ErrInvalidChannel, "Channel %d is out of range [0, %d)", channelID, len(r.threadData))
	}

	return nil
}

func newBatchFrameID(channelID int) uint8 {
	return uint8(2 * channelID)
}

func newResultFrameID(channelID int) uint8 {
	return uint8(2*channelID + 1)
}

func isBatchFrameID(frameID uint8) bool {
	return frameID%2 == 0
}
