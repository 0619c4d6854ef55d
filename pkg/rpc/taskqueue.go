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
	"sync"
)

// taskQueue is an unbounded FIFO of batch payloads. the tick loop pushes without blocking and a
// single worker pops
type taskQueue struct {
	lock   sync.Mutex
	tasks  [][]byte
	signal chan struct{}
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		signal: make(chan struct{}, 1),
	}
}

func (tq *taskQueue) push(task []byte) {
	tq.lock.Lock()
	tq.tasks = append(tq.tasks, task)
	tq.lock.Unlock()

	select {
	case tq.signal <- struct{}{}:
	default:
	}
}

// pop blocks until a task is available or ctx is done
func (tq *taskQueue) pop(ctx context.Context) ([]byte, error) {
	for {
		if task, found := tq.tryPop(); found {
			return task, nil
		}

		select {
		case <-tq.signal:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (tq *taskQueue) tryPop() ([]byte, bool) {
	tq.lock.Lock()
	defer tq.lock.Unlock()

	if len(tq.tasks) == 0 {
		return nil, false
	}

	task := tq.tasks[0]
	tq.tasks[0] = nil
	tq.tasks = tq.tasks[1:]

	return task, true
}

func (tq *taskQueue) len() int {
	tq.lock.Lock()
	defer tq.lock.Unlock()

	return len(tq.tasks)
}
