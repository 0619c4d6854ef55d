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
	"runtime"

	"github.com/nuclio/rpcruntime/pkg/callregistry"
	"github.com/nuclio/rpcruntime/pkg/codec"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
)

// CommandList batches calls bound for one logical channel. a list holds a handle from creation,
// belongs to a single goroutine and can be reused: after Commit the next AddCall starts a new batch
// under a fresh handle
type CommandList struct {
	logger         logger.Logger
	rpcRuntime     *Runtime
	channelID      int
	handle         uint64
	hasHandle      bool
	encoder        codec.Encoder
	callCount      int
	pendingReturns []*PendingReturn
	committed      bool
	closed         bool
}

func newCommandList(parentLogger logger.Logger, rpcRuntime *Runtime, channelID int) *CommandList {
	commandList := &CommandList{
		logger:     parentLogger,
		rpcRuntime: rpcRuntime,
		channelID:  channelID,
		encoder:    rpcRuntime.configuration.Codec.NewEncoder(),
	}

	commandList.allocateHandle()

	runtime.SetFinalizer(commandList, (*CommandList).reportLeak)

	return commandList
}

// AddCall appends a call to the batch. the returned future is nil for calls without a return value
func (cl *CommandList) AddCall(callID callregistry.CallID, self uint64, args interface{}) (*Future, error) {
	if cl.closed {
		return nil, ErrListClosed
	}

	callMeta, found := cl.rpcRuntime.registry.Lookup(callID)
	if !found {
		return nil, errors.Wrapf(ErrUnknownCall, "Call %s is not registered", callID)
	}

	// a committed list takes its next handle when reused
	if !cl.hasHandle {
		cl.allocateHandle()
		cl.committed = false
	}

	callStart := cl.encoder.Len()

	if err := cl.writeCall(callMeta, self, args); err != nil {

		// leave the batch as it was before this call
		cl.encoder.Truncate(callStart)
		return nil, errors.Wrapf(err, "Failed to add call %s", callMeta.Name())
	}

	cl.callCount++

	if !callMeta.HasReturn() {
		return nil, nil
	}

	future := newFuture(callMeta.Name())
	cl.pendingReturns = append(cl.pendingReturns, &PendingReturn{
		CallMeta: callMeta,
		Future:   future,
	})

	return future, nil
}

// Commit queues the batch for the next push
func (cl *CommandList) Commit() error {
	return cl.rpcRuntime.Commit(cl)
}

// Len returns the number of calls added since the last commit
func (cl *CommandList) Len() int {
	return cl.callCount
}

// Handle returns the handle of the current batch, or of the last committed one
func (cl *CommandList) Handle() uint64 {
	return cl.handle
}

// ChannelID returns the logical channel the list is bound to
func (cl *CommandList) ChannelID() int {
	return cl.channelID
}

// Discard drops every uncommitted call and fails their futures. the list keeps its handle and
// remains usable
func (cl *CommandList) Discard() {
	failPendingReturns(cl.pendingReturns, ErrListDiscarded)
	cl.reset()
}

// Close releases the list. closing a list with uncommitted calls drops them and fails with
// ErrNonEmptyListDestroyed
func (cl *CommandList) Close() error {
	if cl.closed {
		return nil
	}

	cl.closed = true
	runtime.SetFinalizer(cl, nil)

	if cl.callCount == 0 {
		cl.releaseHandle()
		return nil
	}

	cl.logger.ErrorWith("Command list closed with uncommitted calls",
		"channelID", cl.channelID,
		"handle", cl.handle,
		"calls", cl.callCount)

	failPendingReturns(cl.pendingReturns, ErrNonEmptyListDestroyed)
	cl.releaseHandle()
	cl.reset()

	return errors.Wrapf(ErrNonEmptyListDestroyed, "Dropped %d calls", cl.callCount)
}

// buildPayload returns the wire batch: the handle (0 when no call returns a value) and the calls
func (cl *CommandList) buildPayload(wireHandle uint64) ([]byte, error) {
	handleEncoder := cl.rpcRuntime.configuration.Codec.NewEncoder()
	if err := handleEncoder.Encode(wireHandle); err != nil {
		return nil, errors.Wrap(err, "Failed to encode handle")
	}

	payload := make([]byte, 0, handleEncoder.Len()+cl.encoder.Len())
	payload = append(payload, handleEncoder.Bytes()...)
	payload = append(payload, cl.encoder.Bytes()...)

	return payload, nil
}

func (cl *CommandList) writeCall(callMeta callregistry.CallMeta, self uint64, args interface{}) error {
	if err := cl.encoder.Encode(callMeta.ID().Bytes()); err != nil {
		return errors.Wrap(err, "Failed to encode call id")
	}

	if err := cl.encoder.Encode(self); err != nil {
		return errors.Wrap(err, "Failed to encode call target")
	}

	return callMeta.WriteArgs(cl.encoder, args)
}

// markCommitted readies the list for its next batch. the committed handle stays readable
func (cl *CommandList) markCommitted() {
	cl.hasHandle = false
	cl.committed = true
	cl.encoder.Reset()
	cl.callCount = 0
	cl.pendingReturns = nil
}

func (cl *CommandList) allocateHandle() {
	cl.handle = cl.rpcRuntime.threadData[cl.channelID].handles.allocate()
	cl.hasHandle = true
}

func (cl *CommandList) releaseHandle() {
	if cl.hasHandle {
		cl.rpcRuntime.threadData[cl.channelID].handles.release(cl.handle)
		cl.hasHandle = false
	}
}

func (cl *CommandList) reset() {
	cl.encoder.Reset()
	cl.callCount = 0
	cl.pendingReturns = nil
}

func (cl *CommandList) reportLeak() {
	if cl.closed {
		return
	}

	if cl.callCount > 0 {
		cl.logger.ErrorWith("Command list garbage collected with uncommitted calls",
			"channelID", cl.channelID,
			"handle", cl.handle,
			"calls", cl.callCount)

		failPendingReturns(cl.pendingReturns, ErrNonEmptyListDestroyed)
	}

	cl.releaseHandle()
}

// AddTypedCall adds a call whose return value is an R. void calls return a nil future
func AddTypedCall[R any](commandList *CommandList,
	callMeta callregistry.CallMeta,
	self uint64,
	args interface{}) (*TypedFuture[R], error) {

	future, err := commandList.AddCall(callMeta.ID(), self, args)
	if err != nil || future == nil {
		return nil, err
	}

	return &TypedFuture[R]{Future: future}, nil
}
