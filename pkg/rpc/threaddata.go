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
	"sync"
)

// outgoingBatch is an encoded batch waiting for the next push
type outgoingBatch struct {
	handle  uint64
	payload []byte
}

// pendingBatch is the chain of pending returns of a committed batch, in addition order
type pendingBatch struct {
	pendingReturns []*PendingReturn
	abandoned      bool
}

// threadData is the state of a single logical channel
type threadData struct {
	channelID int
	tasks     *taskQueue
	handles   *handleAllocator

	pendingLock sync.Mutex
	pending     map[uint64]*pendingBatch

	outgoingLock    sync.Mutex
	outgoingCommits []outgoingBatch
	outgoingResults []outgoingBatch
}

func newThreadData(channelID int) *threadData {
	return &threadData{
		channelID: channelID,
		tasks:     newTaskQueue(),
		handles:   newHandleAllocator(),
		pending:   map[uint64]*pendingBatch{},
	}
}

func (td *threadData) addPending(handle uint64, pendingReturns []*PendingReturn) {
	td.pendingLock.Lock()
	defer td.pendingLock.Unlock()

	td.pending[handle] = &pendingBatch{pendingReturns: pendingReturns}
}

// resolvePending removes the pending batch of handle and frees the handle
func (td *threadData) resolvePending(handle uint64) ([]*PendingReturn, error) {
	td.pendingLock.Lock()
	defer td.pendingLock.Unlock()

	batch, found := td.pending[handle]
	if !found {
		return nil, ErrHandleNotFound
	}

	delete(td.pending, handle)
	td.handles.release(handle)

	if batch.abandoned {
		return nil, ErrAbandoned
	}

	return batch.pendingReturns, nil
}

// abandonPending detaches the futures of a pending batch. the handle stays reserved until the
// late result arrives, so it can't be matched against a newer batch
func (td *threadData) abandonPending(handle uint64) ([]*PendingReturn, error) {
	td.pendingLock.Lock()
	defer td.pendingLock.Unlock()

	batch, found := td.pending[handle]
	if !found || batch.abandoned {
		return nil, ErrHandleNotFound
	}

	pendingReturns := batch.pendingReturns
	batch.pendingReturns = nil
	batch.abandoned = true

	return pendingReturns, nil
}

// failAllPending resolves every pending future with err and forgets the batches
func (td *threadData) failAllPending(err error) int {
	td.pendingLock.Lock()
	defer td.pendingLock.Unlock()

	numFailed := 0

	for handle, batch := range td.pending {
		failPendingReturns(batch.pendingReturns, err)
		numFailed += len(batch.pendingReturns)

		delete(td.pending, handle)
		td.handles.release(handle)
	}

	return numFailed
}

func (td *threadData) numPending() int {
	td.pendingLock.Lock()
	defer td.pendingLock.Unlock()

	return len(td.pending)
}

func (td *threadData) queueCommit(handle uint64, payload []byte) {
	td.outgoingLock.Lock()
	defer td.outgoingLock.Unlock()

	td.outgoingCommits = append(td.outgoingCommits, outgoingBatch{handle: handle, payload: payload})
}

func (td *threadData) queueResult(handle uint64, payload []byte) {
	td.outgoingLock.Lock()
	defer td.outgoingLock.Unlock()

	td.outgoingResults = append(td.outgoingResults, outgoingBatch{handle: handle, payload: payload})
}

// drainOutgoing hands over everything queued since the last drain
func (td *threadData) drainOutgoing() ([]outgoingBatch, []outgoingBatch) {
	td.outgoingLock.Lock()
	defer td.outgoingLock.Unlock()

	commits, results := td.outgoingCommits, td.outgoingResults
	td.outgoingCommits, td.outgoingResults = nil, nil

	return commits, results
}
