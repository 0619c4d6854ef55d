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

// handleAllocator hands out batch handles. handles start at 1 (0 marks a batch with no returns),
// grow monotonically and released handles are reused last-in first-out
type handleAllocator struct {
	lock      sync.Mutex
	next      uint64
	free      []uint64
	allocated map[uint64]struct{}
}

func newHandleAllocator() *handleAllocator {
	return &handleAllocator{
		next:      1,
		allocated: map[uint64]struct{}{},
	}
}

func (ha *handleAllocator) allocate() uint64 {
	ha.lock.Lock()
	defer ha.lock.Unlock()

	var handle uint64

	if numFree := len(ha.free); numFree > 0 {
		handle = ha.free[numFree-1]
		ha.free = ha.free[:numFree-1]
	} else {
		handle = ha.next
		ha.next++
	}

	ha.allocated[handle] = struct{}{}

	return handle
}

// release returns a handle to the free list. releasing a handle that isn't allocated is a no-op
func (ha *handleAllocator) release(handle uint64) bool {
	ha.lock.Lock()
	defer ha.lock.Unlock()

	if _, found := ha.allocated[handle]; !found {
		return false
	}

	delete(ha.allocated, handle)
	ha.free = append(ha.free, handle)

	return true
}

func (ha *handleAllocator) numAllocated() int {
	ha.lock.Lock()
	defer ha.lock.Unlock()

	return len(ha.allocated)
}
